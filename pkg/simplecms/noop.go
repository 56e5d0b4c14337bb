package simplecms

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// EntryCreated does nothing and returns nil
func (n *NoopEventSink) EntryCreated(ctx context.Context, entry *Entry) error {
	return nil
}

// EntryUpdated does nothing and returns nil
func (n *NoopEventSink) EntryUpdated(ctx context.Context, entry *Entry) error {
	return nil
}

// EntryDeleted does nothing and returns nil
func (n *NoopEventSink) EntryDeleted(ctx context.Context, ct *ContentType, entryID uuid.UUID) error {
	return nil
}

// EntriesDestroyed does nothing and returns nil
func (n *NoopEventSink) EntriesDestroyed(ctx context.Context, ct *ContentType, count int) error {
	return nil
}

// AccountDeleted does nothing and returns nil
func (n *NoopEventSink) AccountDeleted(ctx context.Context, accountID uuid.UUID, siteIDs []uuid.UUID) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses
// slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger.With("component", "events")}
}

// EntryCreated logs the entry creation event
func (l *LoggingEventSink) EntryCreated(ctx context.Context, entry *Entry) error {
	l.logger.InfoContext(ctx, "entry created",
		"entry_id", entry.ID, "content_type_id", entry.ContentTypeID, "slug", entry.Permalink)
	return nil
}

// EntryUpdated logs the entry update event
func (l *LoggingEventSink) EntryUpdated(ctx context.Context, entry *Entry) error {
	l.logger.InfoContext(ctx, "entry updated", "entry_id", entry.ID, "content_type_id", entry.ContentTypeID)
	return nil
}

// EntryDeleted logs the entry deletion event
func (l *LoggingEventSink) EntryDeleted(ctx context.Context, ct *ContentType, entryID uuid.UUID) error {
	l.logger.InfoContext(ctx, "entry deleted", "entry_id", entryID, "content_type", ct.Slug)
	return nil
}

// EntriesDestroyed logs a bulk delete
func (l *LoggingEventSink) EntriesDestroyed(ctx context.Context, ct *ContentType, count int) error {
	l.logger.InfoContext(ctx, "entries destroyed", "content_type", ct.Slug, "site_id", ct.SiteID, "count", count)
	return nil
}

// AccountDeleted logs the account deletion event
func (l *LoggingEventSink) AccountDeleted(ctx context.Context, accountID uuid.UUID, siteIDs []uuid.UUID) error {
	l.logger.InfoContext(ctx, "account deleted", "account_id", accountID, "sites", len(siteIDs))
	return nil
}
