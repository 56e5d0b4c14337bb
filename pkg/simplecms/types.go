package simplecms

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Role is the domain type for a membership role.
type Role string

// Membership role constants (typed).
const (
	RoleAdmin    Role = "admin"
	RoleDesigner Role = "designer"
	RoleAuthor   Role = "author"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDesigner, RoleAuthor:
		return true
	}
	return false
}

// DefaultLocale is assigned to accounts created without a locale.
const DefaultLocale = "en"

// Account is a collaborator that can belong to many sites through memberships.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Locale       string    `json:"locale"`
	APIKey       string    `json:"api_key,omitempty"`
	SuperAdmin   bool      `json:"super_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Site is a tenant. A site always has at least one admin membership.
type Site struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links one account to one site with a role.
type Membership struct {
	ID        uuid.UUID `json:"id"`
	SiteID    uuid.UUID `json:"site_id"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the membership grants the admin role.
func (m *Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// FieldDef describes one field of a content type.
type FieldDef struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
	// Options lists the allowed values of a select field.
	Options []string `json:"options,omitempty"`
}

// ContentType is a schema defined at runtime by a site.
//
// OrderBy holds the default ordering rule in order_by syntax ("_position",
// "title desc", "price asc, created_at desc"). PermalinkField, when set, names
// a string-kinded field whose value seeds each entry's permalink.
type ContentType struct {
	ID             uuid.UUID  `json:"id"`
	SiteID         uuid.UUID  `json:"site_id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Fields         []FieldDef `json:"fields"`
	OrderBy        string     `json:"order_by,omitempty"`
	PermalinkField string     `json:"permalink_field,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Field returns the definition of the named field.
func (ct *ContentType) Field(name string) (FieldDef, bool) {
	for _, f := range ct.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// AttrKind returns the kind of a field or implicit entry attribute.
func (ct *ContentType) AttrKind(name string) (FieldKind, bool) {
	switch name {
	case AttrID, AttrPermalink:
		return KindString, true
	case AttrPosition:
		return KindInteger, true
	case AttrCreatedAt, AttrUpdatedAt:
		return KindDateTime, true
	}
	f, ok := ct.Field(name)
	return f.Kind, ok
}

// Entry is a record of a content type. Values conform to the type's fields at
// write time.
type Entry struct {
	ID            uuid.UUID        `json:"_id"`
	SiteID        uuid.UUID        `json:"-"`
	ContentTypeID uuid.UUID        `json:"-"`
	Permalink     string           `json:"_slug,omitempty"`
	Position      int              `json:"_position"`
	Values        map[string]Value `json:"-"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Values = make(map[string]Value, len(e.Values))
	for k, v := range e.Values {
		c.Values[k] = v.clone()
	}
	return &c
}

// MarshalJSON flattens field values next to the implicit attributes.
func (e *Entry) MarshalJSON() ([]byte, error) {
	out := EncodeValues(e.Values)
	out[AttrID] = e.ID
	if e.Permalink != "" {
		out[AttrPermalink] = e.Permalink
	}
	out[AttrPosition] = e.Position
	out[AttrCreatedAt] = e.CreatedAt
	out[AttrUpdatedAt] = e.UpdatedAt
	return json.Marshal(out)
}

// Implicit entry attributes usable in filters and ordering.
const (
	AttrID        = "_id"
	AttrPermalink = "_slug"
	AttrPosition  = "_position"
	AttrCreatedAt = "created_at"
	AttrUpdatedAt = "updated_at"
)

// Attr returns the value of a field or implicit attribute of the entry.
func (e *Entry) Attr(name string) (Value, bool) {
	switch name {
	case AttrID:
		return StringValue(e.ID.String()), true
	case AttrPermalink:
		if e.Permalink == "" {
			return Value{}, false
		}
		return StringValue(e.Permalink), true
	case AttrPosition:
		return IntValue(int64(e.Position)), true
	case AttrCreatedAt:
		return DateTimeValue(e.CreatedAt), true
	case AttrUpdatedAt:
		return DateTimeValue(e.UpdatedAt), true
	}
	v, ok := e.Values[name]
	return v, ok
}

// Operator is a filter comparison.
type Operator string

// Filter operators.
const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
	OpNin Operator = "nin"
)

// IsValid reports whether op is a known operator.
func (op Operator) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin:
		return true
	}
	return false
}

// Predicate matches entries whose Field compares to Value under Op. For OpIn
// and OpNin, Values holds the candidate set.
type Predicate struct {
	Field  string
	Op     Operator
	Value  Value
	Values []Value
}

// Filter is a conjunction of predicates. An empty filter matches everything.
type Filter []Predicate

// OrderField is one key of an ordering rule.
type OrderField struct {
	Field string
	Desc  bool
}

// EntryQuery is the strict query shape accepted by the store.
type EntryQuery struct {
	Filter  Filter
	OrderBy []OrderField
	Page    int
	PerPage int
}

// Offset returns the zero-based offset of the first entry of the page,
// saturating instead of overflowing for huge page numbers.
func (q EntryQuery) Offset() int64 {
	if q.Page < 1 || q.PerPage < 1 {
		return 0
	}
	if int64(q.Page-1) > math.MaxInt64/int64(q.PerPage) {
		return math.MaxInt64
	}
	return int64(q.Page-1) * int64(q.PerPage)
}

// EntryPage is one page of query results with the total match count.
type EntryPage struct {
	Entries    []*Entry `json:"entries"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
}

// Outcome is the terminal state of a guarded membership change.
type Outcome string

// Guard outcomes.
const (
	OutcomeCommitted Outcome = "committed"
	OutcomeRejected  Outcome = "rejected"
)
