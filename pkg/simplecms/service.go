package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-cms library. Every
// operation takes its site scope explicitly.
type Service interface {
	// Content type operations
	ResolveContentType(ctx context.Context, siteID uuid.UUID, slug string) (*ContentType, error)
	ListContentTypes(ctx context.Context, siteID uuid.UUID) ([]*ContentType, error)
	CreateContentType(ctx context.Context, req CreateContentTypeRequest) (*ContentType, error)
	UpdateContentType(ctx context.Context, req UpdateContentTypeRequest) (*ContentType, error)
	DeleteContentType(ctx context.Context, siteID uuid.UUID, slug string) error

	// Entry operations
	ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryPage, error)
	GetEntry(ctx context.Context, req GetEntryRequest) (*Entry, error)
	CreateEntry(ctx context.Context, req CreateEntryRequest) (*Entry, error)
	UpdateEntry(ctx context.Context, req UpdateEntryRequest) (*Entry, error)
	DeleteEntry(ctx context.Context, req DeleteEntryRequest) error
	// DestroyAll deletes (or, for a dry run, counts) the matching entries.
	DestroyAll(ctx context.Context, req DestroyAllRequest) (int, error)

	// Account operations
	Signup(ctx context.Context, req SignupRequest) (*Account, error)
	Authenticate(ctx context.Context, email, password string) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	RegenerateAPIKey(ctx context.Context, id uuid.UUID) (*Account, error)
	IsLocalAdmin(ctx context.Context, id uuid.UUID) (bool, error)
	ListAccountSites(ctx context.Context, id uuid.UUID) ([]*Site, error)

	// Site and membership operations
	CreateSite(ctx context.Context, req CreateSiteRequest) (*Site, error)
	GetSite(ctx context.Context, id uuid.UUID) (*Site, error)
	AddMembership(ctx context.Context, req AddMembershipRequest) (*Membership, error)
	ListMemberships(ctx context.Context, siteID uuid.UUID) ([]*Membership, error)

	// Guarded operations. Each keeps every site with at least one admin.
	DeleteAccount(ctx context.Context, id uuid.UUID) (Outcome, error)
	RemoveMembership(ctx context.Context, membershipID uuid.UUID) (Outcome, error)
	ChangeRole(ctx context.Context, membershipID uuid.UUID, role Role) (Outcome, error)
}
