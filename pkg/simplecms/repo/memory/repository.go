package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Repository implements simplecms.Repository using in-memory storage
type Repository struct {
	mu              sync.RWMutex
	accounts        map[uuid.UUID]*simplecms.Account
	accountsByEmail map[string]uuid.UUID
	sites           map[uuid.UUID]*simplecms.Site
	subdomains      map[string]uuid.UUID
	memberships     map[uuid.UUID]*simplecms.Membership
	contentTypes    map[uuid.UUID]*simplecms.ContentType
	entries         map[uuid.UUID]map[uuid.UUID]*simplecms.Entry // content_type_id -> entry_id -> entry

	typeLocksMu sync.Mutex
	typeLocks   map[uuid.UUID]*sync.Mutex
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		accounts:        make(map[uuid.UUID]*simplecms.Account),
		accountsByEmail: make(map[string]uuid.UUID),
		sites:           make(map[uuid.UUID]*simplecms.Site),
		subdomains:      make(map[string]uuid.UUID),
		memberships:     make(map[uuid.UUID]*simplecms.Membership),
		contentTypes:    make(map[uuid.UUID]*simplecms.ContentType),
		entries:         make(map[uuid.UUID]map[uuid.UUID]*simplecms.Entry),
		typeLocks:       make(map[uuid.UUID]*sync.Mutex),
	}
}

var _ simplecms.Repository = (*Repository)(nil)

// Account operations

func (r *Repository) CreateAccount(ctx context.Context, account *simplecms.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := r.accountsByEmail[email]; exists {
		return simplecms.ErrAlreadyExists
	}
	accountCopy := *account
	r.accounts[account.ID] = &accountCopy
	r.accountsByEmail[email] = account.ID
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*simplecms.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, simplecms.ErrAccountNotFound
	}
	accountCopy := *account
	return &accountCopy, nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*simplecms.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.accountsByEmail[strings.ToLower(email)]
	if !exists {
		return nil, simplecms.ErrAccountNotFound
	}
	accountCopy := *r.accounts[id]
	return &accountCopy, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, account *simplecms.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.accounts[account.ID]
	if !exists {
		return simplecms.ErrAccountNotFound
	}
	oldEmail, newEmail := strings.ToLower(current.Email), strings.ToLower(account.Email)
	if oldEmail != newEmail {
		if _, taken := r.accountsByEmail[newEmail]; taken {
			return simplecms.ErrAlreadyExists
		}
		delete(r.accountsByEmail, oldEmail)
		r.accountsByEmail[newEmail] = account.ID
	}
	accountCopy := *account
	r.accounts[account.ID] = &accountCopy
	return nil
}

// Site operations

func (r *Repository) CreateSite(ctx context.Context, site *simplecms.Site, admin *simplecms.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subdomains[site.Subdomain]; exists {
		return simplecms.ErrAlreadyExists
	}
	if _, exists := r.accounts[admin.AccountID]; !exists {
		return simplecms.ErrAccountNotFound
	}
	siteCopy := *site
	adminCopy := *admin
	r.sites[site.ID] = &siteCopy
	r.subdomains[site.Subdomain] = site.ID
	r.memberships[admin.ID] = &adminCopy
	return nil
}

func (r *Repository) GetSite(ctx context.Context, id uuid.UUID) (*simplecms.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	site, exists := r.sites[id]
	if !exists {
		return nil, simplecms.ErrSiteNotFound
	}
	siteCopy := *site
	return &siteCopy, nil
}

func (r *Repository) ListSitesByAccount(ctx context.Context, accountID uuid.UUID) ([]*simplecms.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplecms.Site{}
	for _, m := range r.memberships {
		if m.AccountID != accountID {
			continue
		}
		if site, exists := r.sites[m.SiteID]; exists {
			siteCopy := *site
			result = append(result, &siteCopy)
		}
	}
	slices.SortFunc(result, func(a, b *simplecms.Site) int {
		return strings.Compare(a.Subdomain, b.Subdomain)
	})
	return result, nil
}

// Membership operations

func (r *Repository) CreateMembership(ctx context.Context, membership *simplecms.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sites[membership.SiteID]; !exists {
		return simplecms.ErrSiteNotFound
	}
	if _, exists := r.accounts[membership.AccountID]; !exists {
		return simplecms.ErrAccountNotFound
	}
	for _, m := range r.memberships {
		if m.SiteID == membership.SiteID && m.AccountID == membership.AccountID {
			return simplecms.ErrAlreadyExists
		}
	}
	membershipCopy := *membership
	r.memberships[membership.ID] = &membershipCopy
	return nil
}

func (r *Repository) GetMembership(ctx context.Context, id uuid.UUID) (*simplecms.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.memberships[id]
	if !exists {
		return nil, simplecms.ErrMembershipNotFound
	}
	membershipCopy := *m
	return &membershipCopy, nil
}

func (r *Repository) ListMembershipsBySite(ctx context.Context, siteID uuid.UUID) ([]*simplecms.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterMemberships(func(m *simplecms.Membership) bool { return m.SiteID == siteID }), nil
}

func (r *Repository) ListMembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]*simplecms.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterMemberships(func(m *simplecms.Membership) bool { return m.AccountID == accountID }), nil
}

// filterMemberships returns copies of the matching memberships ordered by
// creation time. Callers hold r.mu.
func (r *Repository) filterMemberships(keep func(*simplecms.Membership) bool) []*simplecms.Membership {
	result := []*simplecms.Membership{}
	for _, m := range r.memberships {
		if keep(m) {
			membershipCopy := *m
			result = append(result, &membershipCopy)
		}
	}
	sortMemberships(result)
	return result
}

func sortMemberships(ms []*simplecms.Membership) {
	slices.SortFunc(ms, func(a, b *simplecms.Membership) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// RunMembershipTx holds the repository write lock while fn runs. Writes are
// staged and applied only when fn returns nil.
func (r *Repository) RunMembershipTx(ctx context.Context, fn func(ctx context.Context, tx simplecms.MembershipTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &membershipTx{
		r:                  r,
		deletedMemberships: make(map[uuid.UUID]bool),
		deletedAccounts:    make(map[uuid.UUID]bool),
		updatedMemberships: make(map[uuid.UUID]*simplecms.Membership),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

// Content type operations

func (r *Repository) CreateContentType(ctx context.Context, ct *simplecms.ContentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sites[ct.SiteID]; !exists {
		return simplecms.ErrSiteNotFound
	}
	if r.slugTaken(ct.SiteID, ct.Slug, ct.ID) {
		return simplecms.ErrAlreadyExists
	}
	r.contentTypes[ct.ID] = copyContentType(ct)
	r.entries[ct.ID] = make(map[uuid.UUID]*simplecms.Entry)
	return nil
}

func (r *Repository) GetContentTypeBySlug(ctx context.Context, siteID uuid.UUID, slug string) (*simplecms.ContentType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ct := range r.contentTypes {
		if ct.SiteID == siteID && ct.Slug == slug {
			return copyContentType(ct), nil
		}
	}
	return nil, simplecms.ErrContentTypeNotFound
}

func (r *Repository) ListContentTypes(ctx context.Context, siteID uuid.UUID) ([]*simplecms.ContentType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplecms.ContentType{}
	for _, ct := range r.contentTypes {
		if ct.SiteID == siteID {
			result = append(result, copyContentType(ct))
		}
	}
	return result, nil
}

func (r *Repository) UpdateContentType(ctx context.Context, ct *simplecms.ContentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contentTypes[ct.ID]; !exists {
		return simplecms.ErrContentTypeNotFound
	}
	if r.slugTaken(ct.SiteID, ct.Slug, ct.ID) {
		return simplecms.ErrAlreadyExists
	}
	r.contentTypes[ct.ID] = copyContentType(ct)
	return nil
}

func (r *Repository) DeleteContentType(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contentTypes[id]; !exists {
		return simplecms.ErrContentTypeNotFound
	}
	delete(r.contentTypes, id)
	delete(r.entries, id)
	return nil
}

func (r *Repository) slugTaken(siteID uuid.UUID, slug string, self uuid.UUID) bool {
	for _, other := range r.contentTypes {
		if other.ID != self && other.SiteID == siteID && other.Slug == slug {
			return true
		}
	}
	return false
}

func copyContentType(ct *simplecms.ContentType) *simplecms.ContentType {
	c := *ct
	c.Fields = make([]simplecms.FieldDef, len(ct.Fields))
	for i, f := range ct.Fields {
		f.Options = slices.Clone(f.Options)
		c.Fields[i] = f
	}
	return &c
}
