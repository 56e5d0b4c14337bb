package simplecms

import "github.com/google/uuid"

// Request/Response DTOs

// ListEntriesRequest carries loosely typed listing parameters as received
// from the outside. Page, PerPage and OrderBy are normalized; Where must be a
// JSON object.
type ListEntriesRequest struct {
	SiteID  uuid.UUID
	Slug    string
	Page    string
	PerPage string
	OrderBy string
	Where   string
}

// GetEntryRequest looks an entry up by id or permalink.
type GetEntryRequest struct {
	SiteID uuid.UUID
	Slug   string
	// IDOrPermalink is an entry identifier or a permalink.
	IDOrPermalink string
}

// CreateEntryRequest contains the field values of a new entry.
type CreateEntryRequest struct {
	SiteID uuid.UUID
	Slug   string
	Values map[string]any
}

// UpdateEntryRequest contains the fields to merge into an entry.
type UpdateEntryRequest struct {
	SiteID        uuid.UUID
	Slug          string
	IDOrPermalink string
	Values        map[string]any
}

// DeleteEntryRequest identifies one entry to delete.
type DeleteEntryRequest struct {
	SiteID        uuid.UUID
	Slug          string
	IDOrPermalink string
}

// DestroyAllRequest deletes every entry of a content type matching Where.
// DryRun only counts.
type DestroyAllRequest struct {
	SiteID uuid.UUID
	Slug   string
	Where  string
	DryRun bool
}

// CreateContentTypeRequest contains parameters for defining a content type
type CreateContentTypeRequest struct {
	SiteID         uuid.UUID  `json:"-"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Fields         []FieldDef `json:"fields"`
	OrderBy        string     `json:"order_by"`
	PermalinkField string     `json:"permalink_field"`
}

// UpdateContentTypeRequest changes a content type. Nil members are left as is.
type UpdateContentTypeRequest struct {
	SiteID         uuid.UUID  `json:"-"`
	Slug           string     `json:"-"`
	Name           *string    `json:"name"`
	NewSlug        *string    `json:"slug"`
	Fields         []FieldDef `json:"fields"`
	OrderBy        *string    `json:"order_by"`
	PermalinkField *string    `json:"permalink_field"`
}

// SignupRequest contains the parameters of a new account
type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Locale   string `json:"locale"`
}

// CreateSiteRequest creates a site owned by an admin account
type CreateSiteRequest struct {
	Name      string    `json:"name" validate:"required"`
	Subdomain string    `json:"subdomain" validate:"required"`
	OwnerID   uuid.UUID `json:"owner_id"`
}

// AddMembershipRequest adds an account to a site
type AddMembershipRequest struct {
	SiteID    uuid.UUID `json:"-"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
}
