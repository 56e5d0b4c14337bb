package simplecms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultRegistryTTL bounds how long a resolved content type is reused.
const DefaultRegistryTTL = 30 * time.Second

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type registryKey struct {
	siteID uuid.UUID
	slug   string
}

type registryItem struct {
	ct      *ContentType
	expires time.Time
}

// Registry resolves content types by site and slug and manages their
// definitions. Resolved types are cached per process for a short TTL.
type Registry struct {
	repo  Repository
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	cache map[registryKey]registryItem
}

// NewRegistry returns a registry over repo. A ttl <= 0 disables caching.
func NewRegistry(repo Repository, ttl time.Duration) *Registry {
	return &Registry{
		repo:  repo,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[registryKey]registryItem),
	}
}

// Resolve returns the content type with the given slug in the site, or
// ErrContentTypeNotFound.
func (r *Registry) Resolve(ctx context.Context, siteID uuid.UUID, slug string) (*ContentType, error) {
	key := registryKey{siteID: siteID, slug: slug}
	if ct, ok := r.cached(key); ok {
		return ct, nil
	}

	v, err, _ := r.group.Do(siteID.String()+"/"+slug, func() (any, error) {
		ct, err := r.repo.GetContentTypeBySlug(ctx, siteID, slug)
		if err != nil {
			return nil, err
		}
		r.store(key, ct)
		return ct, nil
	})
	if err != nil {
		if errors.Is(err, ErrContentTypeNotFound) {
			return nil, ErrContentTypeNotFound
		}
		return nil, fmt.Errorf("resolve content type %q: %w", slug, err)
	}
	return v.(*ContentType), nil
}

// List returns the site's content types ordered by name.
func (r *Registry) List(ctx context.Context, siteID uuid.UUID) ([]*ContentType, error) {
	types, err := r.repo.ListContentTypes(ctx, siteID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(types, func(a, b *ContentType) int {
		if a.Name == b.Name {
			return strings.Compare(a.Slug, b.Slug)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return types, nil
}

// Create validates and stores a new content type.
func (r *Registry) Create(ctx context.Context, req CreateContentTypeRequest) (*ContentType, error) {
	if _, err := r.repo.GetSite(ctx, req.SiteID); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	ct := &ContentType{
		ID:             uuid.New(),
		SiteID:         req.SiteID,
		Name:           req.Name,
		Slug:           req.Slug,
		Fields:         slices.Clone(req.Fields),
		OrderBy:        req.OrderBy,
		PermalinkField: req.PermalinkField,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ct.Slug == "" {
		ct.Slug = Slugify(ct.Name)
	}
	if err := validateContentType(ct); err != nil {
		return nil, err
	}
	if err := r.repo.CreateContentType(ctx, ct); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, NewValidationError("slug", MsgTaken)
		}
		return nil, fmt.Errorf("create content type: %w", err)
	}
	r.invalidate(registryKey{siteID: ct.SiteID, slug: ct.Slug})
	return ct, nil
}

// Update replaces the definition of an existing content type. Entries keep
// their stored values; values that no longer fit a field are dropped on read.
func (r *Registry) Update(ctx context.Context, req UpdateContentTypeRequest) (*ContentType, error) {
	current, err := r.repo.GetContentTypeBySlug(ctx, req.SiteID, req.Slug)
	if err != nil {
		return nil, err
	}
	ct := *current
	if req.Name != nil {
		ct.Name = *req.Name
	}
	if req.NewSlug != nil {
		ct.Slug = *req.NewSlug
	}
	if req.Fields != nil {
		ct.Fields = slices.Clone(req.Fields)
	}
	if req.OrderBy != nil {
		ct.OrderBy = *req.OrderBy
	}
	if req.PermalinkField != nil {
		ct.PermalinkField = *req.PermalinkField
	}
	ct.UpdatedAt = r.now().UTC()
	if err := validateContentType(&ct); err != nil {
		return nil, err
	}
	if err := r.repo.UpdateContentType(ctx, &ct); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, NewValidationError("slug", MsgTaken)
		}
		return nil, fmt.Errorf("update content type: %w", err)
	}
	r.invalidate(registryKey{siteID: ct.SiteID, slug: current.Slug})
	r.invalidate(registryKey{siteID: ct.SiteID, slug: ct.Slug})
	return &ct, nil
}

// Delete removes a content type and all of its entries.
func (r *Registry) Delete(ctx context.Context, siteID uuid.UUID, slug string) error {
	ct, err := r.repo.GetContentTypeBySlug(ctx, siteID, slug)
	if err != nil {
		return err
	}
	if err := r.repo.DeleteContentType(ctx, ct.ID); err != nil {
		return fmt.Errorf("delete content type: %w", err)
	}
	r.invalidate(registryKey{siteID: siteID, slug: slug})
	return nil
}

func (r *Registry) cached(key registryKey) (*ContentType, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.cache[key]
	if !ok || r.now().After(item.expires) {
		return nil, false
	}
	return item.ct, true
}

func (r *Registry) store(key registryKey, ct *ContentType) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = registryItem{ct: ct, expires: r.now().Add(r.ttl)}
}

func (r *Registry) invalidate(key registryKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, key)
}

func validateContentType(ct *ContentType) error {
	verr := &ValidationError{}
	if ct.Name == "" {
		verr.Add("name", MsgBlank)
	}
	if !IsSlug(ct.Slug) {
		verr.Add("slug", MsgInvalid)
	}
	if len(ct.Fields) == 0 {
		verr.Add("fields", MsgBlank)
	}

	seen := make(map[string]bool, len(ct.Fields))
	for i, f := range ct.Fields {
		at := fmt.Sprintf("fields[%d]", i)
		switch {
		case !fieldNamePattern.MatchString(f.Name), f.Name == AttrCreatedAt, f.Name == AttrUpdatedAt:
			verr.Add(at+".name", MsgInvalid)
		case seen[f.Name]:
			verr.Add(at+".name", MsgTaken)
		}
		seen[f.Name] = true
		if !f.Kind.IsValid() {
			verr.Add(at+".kind", MsgInvalid)
		}
		if f.Kind == KindSelect && len(f.Options) == 0 {
			verr.Add(at+".options", MsgBlank)
		}
		if f.Kind != KindSelect && len(f.Options) > 0 {
			verr.Add(at+".options", MsgInvalid)
		}
		if f.Unique && f.Kind == KindTags {
			verr.Add(at+".unique", MsgInvalid)
		}
	}

	if ct.PermalinkField != "" {
		f, ok := ct.Field(ct.PermalinkField)
		if !ok || !f.Kind.IsTextual() {
			verr.Add("permalink_field", MsgInvalid)
		}
	}
	if ct.OrderBy != "" {
		if _, ok := ParseOrderBy(ct, ct.OrderBy); !ok {
			verr.Add("order_by", MsgInvalid)
		}
	}
	return verr.OrNil()
}
