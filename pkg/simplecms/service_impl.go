package simplecms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-cms/pkg/simplecms/metrics"
)

// service implements the Service interface
type service struct {
	repository Repository
	eventSink  EventSink
	locker     SiteLocker
	hasher     PasswordHasher
	logger     *slog.Logger

	registryTTL    time.Duration
	guardRetries   int
	defaultPerPage int
	maxPerPage     int

	registry *Registry
	guard    *Guard
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithSiteLocker serializes guarded membership changes per site through locker
func WithSiteLocker(locker SiteLocker) Option {
	return func(s *service) {
		s.locker = locker
	}
}

// WithPasswordHasher sets the hasher used for account passwords
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *service) {
		s.hasher = hasher
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithPagination sets the default and maximum page sizes
func WithPagination(defaultPerPage, maxPerPage int) Option {
	return func(s *service) {
		s.defaultPerPage = defaultPerPage
		s.maxPerPage = maxPerPage
	}
}

// WithRegistryTTL sets how long resolved content types are cached
func WithRegistryTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.registryTTL = ttl
	}
}

// WithGuardRetries sets how many times a conflicting guarded change is retried
func WithGuardRetries(n int) Option {
	return func(s *service) {
		s.guardRetries = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		registryTTL:    DefaultRegistryTTL,
		guardRetries:   DefaultGuardRetries,
		defaultPerPage: DefaultPerPage,
		maxPerPage:     MaxPerPage,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.maxPerPage < 1 || s.defaultPerPage < 1 || s.defaultPerPage > s.maxPerPage {
		return nil, fmt.Errorf("invalid pagination bounds: default %d, max %d", s.defaultPerPage, s.maxPerPage)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hasher == nil {
		s.hasher = NewArgon2Hasher(DefaultArgon2Params)
	}

	s.registry = NewRegistry(s.repository, s.registryTTL)
	s.guard = NewGuard(s.repository, s.locker, s.guardRetries)
	s.guard.logger = s.logger

	return s, nil
}

// Content type operations

func (s *service) ResolveContentType(ctx context.Context, siteID uuid.UUID, slug string) (*ContentType, error) {
	return s.registry.Resolve(ctx, siteID, slug)
}

func (s *service) ListContentTypes(ctx context.Context, siteID uuid.UUID) ([]*ContentType, error) {
	return s.registry.List(ctx, siteID)
}

func (s *service) CreateContentType(ctx context.Context, req CreateContentTypeRequest) (*ContentType, error) {
	ct, err := s.registry.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("content type created", "site_id", ct.SiteID, "slug", ct.Slug, "fields", len(ct.Fields))
	return ct, nil
}

func (s *service) UpdateContentType(ctx context.Context, req UpdateContentTypeRequest) (*ContentType, error) {
	return s.registry.Update(ctx, req)
}

func (s *service) DeleteContentType(ctx context.Context, siteID uuid.UUID, slug string) error {
	if err := s.registry.Delete(ctx, siteID, slug); err != nil {
		return err
	}
	s.logger.Info("content type deleted", "site_id", siteID, "slug", slug)
	return nil
}

// Entry operations

func (s *service) entryStore(ctx context.Context, siteID uuid.UUID, slug string) (*EntryStore, error) {
	ct, err := s.registry.Resolve(ctx, siteID, slug)
	if err != nil {
		return nil, err
	}
	return NewEntryStore(s.repository, ct), nil
}

func (s *service) ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryPage, error) {
	store, err := s.entryStore(ctx, req.SiteID, req.Slug)
	if err != nil {
		return nil, err
	}
	ct := store.ContentType()
	filter, err := ParseWhere(ct, req.Where)
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, EntryQuery{
		Filter:  filter,
		OrderBy: NormalizeOrderBy(ct, req.OrderBy),
		Page:    NormalizePage(req.Page),
		PerPage: NormalizePerPage(req.PerPage, s.defaultPerPage, s.maxPerPage),
	})
}

func (s *service) GetEntry(ctx context.Context, req GetEntryRequest) (*Entry, error) {
	store, err := s.entryStore(ctx, req.SiteID, req.Slug)
	if err != nil {
		return nil, err
	}
	return store.FindByPermalink(ctx, req.IDOrPermalink)
}

func (s *service) CreateEntry(ctx context.Context, req CreateEntryRequest) (*Entry, error) {
	store, err := s.entryStore(ctx, req.SiteID, req.Slug)
	if err != nil {
		return nil, err
	}
	entry, err := store.Create(ctx, req.Values)
	if err != nil {
		s.countValidationFailure(err)
		return nil, err
	}
	metrics.EntriesCreatedTotal.Inc()

	// Fire event
	if s.eventSink != nil {
		if err := s.eventSink.EntryCreated(ctx, entry); err != nil {
			s.logger.Warn("event sink failed", "event", "entry_created", "entry_id", entry.ID, "err", err)
		}
	}
	return entry, nil
}

func (s *service) UpdateEntry(ctx context.Context, req UpdateEntryRequest) (*Entry, error) {
	store, err := s.entryStore(ctx, req.SiteID, req.Slug)
	if err != nil {
		return nil, err
	}
	current, err := store.FindByPermalink(ctx, req.IDOrPermalink)
	if err != nil {
		return nil, err
	}
	entry, err := store.Update(ctx, current.ID, req.Values)
	if err != nil {
		s.countValidationFailure(err)
		return nil, err
	}
	metrics.EntriesUpdatedTotal.Inc()

	if s.eventSink != nil {
		if err := s.eventSink.EntryUpdated(ctx, entry); err != nil {
			s.logger.Warn("event sink failed", "event", "entry_updated", "entry_id", entry.ID, "err", err)
		}
	}
	return entry, nil
}

func (s *service) DeleteEntry(ctx context.Context, req DeleteEntryRequest) error {
	store, err := s.entryStore(ctx, req.SiteID, req.Slug)
	if err != nil {
		return err
	}
	current, err := store.FindByPermalink(ctx, req.IDOrPermalink)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, current.ID); err != nil {
		return err
	}
	metrics.EntriesDeletedTotal.Inc()

	if s.eventSink != nil {
		if err := s.eventSink.EntryDeleted(ctx, store.ContentType(), current.ID); err != nil {
			s.logger.Warn("event sink failed", "event", "entry_deleted", "entry_id", current.ID, "err", err)
		}
	}
	return nil
}

func (s *service) DestroyAll(ctx context.Context, req DestroyAllRequest) (int, error) {
	store, err := s.entryStore(ctx, req.SiteID, req.Slug)
	if err != nil {
		return 0, err
	}
	ct := store.ContentType()
	filter, err := ParseWhere(ct, req.Where)
	if err != nil {
		return 0, err
	}
	if req.DryRun {
		return store.Count(ctx, filter)
	}
	n, err := store.DeleteAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	metrics.EntriesBulkDeletedTotal.Add(float64(n))
	s.logger.Info("entries destroyed", "site_id", ct.SiteID, "content_type", ct.Slug, "count", n)

	if s.eventSink != nil {
		if err := s.eventSink.EntriesDestroyed(ctx, ct, n); err != nil {
			s.logger.Warn("event sink failed", "event", "entries_destroyed", "content_type", ct.Slug, "err", err)
		}
	}
	return n, nil
}

func (s *service) countValidationFailure(err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		metrics.ValidationFailuresTotal.Inc()
	}
}
