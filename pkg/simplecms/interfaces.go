package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for account, site, content type and entry persistence
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error

	// Site operations. A site is always created together with its first admin.
	CreateSite(ctx context.Context, site *Site, admin *Membership) error
	GetSite(ctx context.Context, id uuid.UUID) (*Site, error)
	ListSitesByAccount(ctx context.Context, accountID uuid.UUID) ([]*Site, error)

	// Membership operations
	CreateMembership(ctx context.Context, membership *Membership) error
	GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error)
	ListMembershipsBySite(ctx context.Context, siteID uuid.UUID) ([]*Membership, error)
	ListMembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]*Membership, error)

	// RunMembershipTx runs fn as one atomic unit. Writes made through tx are
	// visible to others only if fn returns nil.
	RunMembershipTx(ctx context.Context, fn func(ctx context.Context, tx MembershipTx) error) error

	// Content type operations. Deleting a content type deletes its entries.
	CreateContentType(ctx context.Context, ct *ContentType) error
	GetContentTypeBySlug(ctx context.Context, siteID uuid.UUID, slug string) (*ContentType, error)
	ListContentTypes(ctx context.Context, siteID uuid.UUID) ([]*ContentType, error)
	UpdateContentType(ctx context.Context, ct *ContentType) error
	DeleteContentType(ctx context.Context, id uuid.UUID) error

	// Entry reads
	GetEntry(ctx context.Context, ct *ContentType, id uuid.UUID) (*Entry, error)
	GetEntryByPermalink(ctx context.Context, ct *ContentType, permalink string) (*Entry, error)
	QueryEntries(ctx context.Context, ct *ContentType, q EntryQuery) ([]*Entry, int, error)
	CountEntries(ctx context.Context, ct *ContentType, filter Filter) (int, error)

	// WithinContentType runs fn while holding the content type's writer lock,
	// so checks made through tx stay true until fn returns.
	WithinContentType(ctx context.Context, ct *ContentType, fn func(ctx context.Context, tx EntryTx) error) error
}

// EntryTx is the write view of one content type's entries.
type EntryTx interface {
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	// PermalinkTaken reports whether another entry than exclude uses permalink.
	PermalinkTaken(ctx context.Context, permalink string, exclude uuid.UUID) (bool, error)
	// ValueTaken reports whether another entry than exclude holds v in field.
	ValueTaken(ctx context.Context, field string, v Value, exclude uuid.UUID) (bool, error)
	NextPosition(ctx context.Context) (int, error)
	InsertEntry(ctx context.Context, entry *Entry) error
	UpdateEntry(ctx context.Context, entry *Entry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	DeleteEntries(ctx context.Context, filter Filter) (int, error)
}

// MembershipTx is the view of accounts and memberships inside RunMembershipTx.
type MembershipTx interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error)
	ListMembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]*Membership, error)
	// LockSites takes exclusive row locks on the sites in the given order.
	LockSites(ctx context.Context, siteIDs []uuid.UUID) error
	ListAdminMemberships(ctx context.Context, siteID uuid.UUID) ([]*Membership, error)
	UpdateMembership(ctx context.Context, membership *Membership) error
	DeleteMembership(ctx context.Context, id uuid.UUID) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// SiteLocker serializes guarded membership changes per site across processes.
type SiteLocker interface {
	// LockSites acquires every site lock or none. A lock that cannot be taken
	// yields an error wrapping ErrConcurrencyConflict.
	LockSites(ctx context.Context, siteIDs []uuid.UUID) (unlock func(context.Context) error, err error)
}

// EventSink defines the interface for event handling
type EventSink interface {
	// EntryCreated is fired when an entry is created
	EntryCreated(ctx context.Context, entry *Entry) error

	// EntryUpdated is fired when an entry is updated
	EntryUpdated(ctx context.Context, entry *Entry) error

	// EntryDeleted is fired when an entry is deleted
	EntryDeleted(ctx context.Context, ct *ContentType, entryID uuid.UUID) error

	// EntriesDestroyed is fired after a bulk delete
	EntriesDestroyed(ctx context.Context, ct *ContentType, count int) error

	// AccountDeleted is fired when an account and its memberships are gone
	AccountDeleted(ctx context.Context, accountID uuid.UUID, siteIDs []uuid.UUID) error
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}
