package simplecms

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// EntryStore reads and writes the entries of one resolved content type.
type EntryStore struct {
	repo Repository
	ct   *ContentType
	now  func() time.Time
}

// NewEntryStore returns a store scoped to ct.
func NewEntryStore(repo Repository, ct *ContentType) *EntryStore {
	return &EntryStore{
		repo: repo,
		ct:   ct,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ContentType returns the content type the store is scoped to.
func (s *EntryStore) ContentType() *ContentType {
	return s.ct
}

// FindByID returns the entry with the given identifier.
func (s *EntryStore) FindByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetEntry(ctx, s.ct, id)
}

// FindByPermalink looks an entry up by id or permalink. A value that parses as
// an identifier is looked up by id only; anything else is a permalink.
func (s *EntryStore) FindByPermalink(ctx context.Context, value string) (*Entry, error) {
	if id, err := uuid.Parse(value); err == nil {
		return s.FindByID(ctx, id)
	}
	if value == "" {
		return nil, ErrEntryNotFound
	}
	return s.repo.GetEntryByPermalink(ctx, s.ct, value)
}

// Create validates values against the content type and inserts a new entry.
// The reserved keys _slug and _position set the permalink and position.
func (s *EntryStore) Create(ctx context.Context, values map[string]any) (*Entry, error) {
	var created *Entry
	err := s.repo.WithinContentType(ctx, s.ct, func(ctx context.Context, tx EntryTx) error {
		now := s.now()
		entry := &Entry{
			ID:            uuid.New(),
			SiteID:        s.ct.SiteID,
			ContentTypeID: s.ct.ID,
			Values:        map[string]Value{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		in, err := s.prepare(ctx, tx, entry, values)
		if err != nil {
			return err
		}
		if !in.hasPosition {
			pos, err := tx.NextPosition(ctx)
			if err != nil {
				return err
			}
			entry.Position = pos
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return &EntryError{EntryID: entry.ID, Op: "create", Err: err}
		}
		created = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update merges values into an existing entry. Fields absent from values keep
// their current value; a null or empty value clears the field.
func (s *EntryStore) Update(ctx context.Context, id uuid.UUID, values map[string]any) (*Entry, error) {
	var updated *Entry
	err := s.repo.WithinContentType(ctx, s.ct, func(ctx context.Context, tx EntryTx) error {
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		entry := current.Clone()
		if _, err := s.prepare(ctx, tx, entry, values); err != nil {
			return err
		}
		entry.UpdatedAt = s.now()
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return &EntryError{EntryID: entry.ID, Op: "update", Err: err}
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes one entry.
func (s *EntryStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.WithinContentType(ctx, s.ct, func(ctx context.Context, tx EntryTx) error {
		return tx.DeleteEntry(ctx, id)
	})
}

// Query returns one page of the entries matching q. An empty OrderBy uses the
// content type's default rule; _position and _id always break ties.
func (s *EntryStore) Query(ctx context.Context, q EntryQuery) (*EntryPage, error) {
	verr := &ValidationError{}
	if q.Page < 1 {
		verr.Add("page", MsgInvalid)
	}
	if q.PerPage < 1 {
		verr.Add("per_page", MsgInvalid)
	}
	s.checkFilter(q.Filter, verr)
	for _, f := range q.OrderBy {
		if _, ok := s.ct.AttrKind(f.Field); !ok {
			verr.Add("order_by", f.Field+" "+MsgUnknown)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if len(q.OrderBy) == 0 {
		q.OrderBy = DefaultOrder(s.ct)
	}
	q.OrderBy = withTieBreakers(q.OrderBy)

	entries, total, err := s.repo.QueryEntries(ctx, s.ct, q)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return &EntryPage{
		Entries:    entries,
		TotalCount: total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: (total + q.PerPage - 1) / q.PerPage,
	}, nil
}

// Count returns how many entries match filter. It is the dry run of DeleteAll.
func (s *EntryStore) Count(ctx context.Context, filter Filter) (int, error) {
	verr := &ValidationError{}
	s.checkFilter(filter, verr)
	if err := verr.OrNil(); err != nil {
		return 0, err
	}
	return s.repo.CountEntries(ctx, s.ct, filter)
}

// DeleteAll deletes every entry matching filter and returns how many were
// deleted. Repeating the call deletes nothing and succeeds.
func (s *EntryStore) DeleteAll(ctx context.Context, filter Filter) (int, error) {
	verr := &ValidationError{}
	s.checkFilter(filter, verr)
	if err := verr.OrNil(); err != nil {
		return 0, err
	}
	var n int
	err := s.repo.WithinContentType(ctx, s.ct, func(ctx context.Context, tx EntryTx) error {
		var err error
		n, err = tx.DeleteEntries(ctx, filter)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *EntryStore) checkFilter(filter Filter, verr *ValidationError) {
	for _, p := range filter {
		kind, ok := s.ct.AttrKind(p.Field)
		switch {
		case !ok:
			verr.Add("where", p.Field+" "+MsgUnknown)
		case !p.Op.IsValid():
			verr.Add("where", p.Field+"."+string(p.Op)+" "+MsgInvalid)
		case kind == KindTags && !p.Op.isSetMatch():
			verr.Add("where", p.Field+"."+string(p.Op)+" "+MsgInvalid)
		}
	}
}

type preparedInput struct {
	hasPosition bool
}

// prepare coerces and merges values into entry, then checks required fields,
// select options, unique fields and the permalink. It never writes.
func (s *EntryStore) prepare(ctx context.Context, tx EntryTx, entry *Entry, values map[string]any) (preparedInput, error) {
	var in preparedInput
	verr := &ValidationError{}

	explicitSlug, slugGiven := "", false
	for key, raw := range values {
		switch key {
		case AttrID, AttrCreatedAt, AttrUpdatedAt:
			continue
		case AttrPermalink:
			v, err := Coerce(KindString, raw)
			if err != nil {
				verr.Add(key, MsgInvalid)
				continue
			}
			explicitSlug, slugGiven = v.Str(), true
			continue
		case AttrPosition:
			v, err := Coerce(KindInteger, raw)
			if err != nil {
				verr.Add(key, MsgInvalid)
				continue
			}
			if !v.IsAbsent() {
				entry.Position = int(v.Int())
				in.hasPosition = true
			}
			continue
		}

		f, ok := s.ct.Field(key)
		if !ok {
			verr.Add(key, MsgUnknown)
			continue
		}
		v, err := Coerce(f.Kind, raw)
		if err != nil {
			verr.Add(key, MsgInvalid)
			continue
		}
		if v.IsAbsent() {
			delete(entry.Values, key)
			continue
		}
		if f.Kind == KindSelect && len(f.Options) > 0 && !slices.Contains(f.Options, v.Str()) {
			verr.Add(key, MsgNotIncluded)
			continue
		}
		entry.Values[key] = v
	}

	for _, f := range s.ct.Fields {
		v, ok := entry.Values[f.Name]
		if !ok || v.IsAbsent() {
			if f.Required && !verr.Has(f.Name) {
				verr.Add(f.Name, MsgBlank)
			}
			continue
		}
		if !f.Unique || verr.Has(f.Name) {
			continue
		}
		taken, err := tx.ValueTaken(ctx, f.Name, v, entry.ID)
		if err != nil {
			return in, err
		}
		if taken {
			verr.Add(f.Name, MsgTaken)
		}
	}
	if err := verr.OrNil(); err != nil {
		return in, err
	}

	base := ""
	switch {
	case slugGiven:
		base = Slugify(explicitSlug)
	case entry.Permalink == "" && s.ct.PermalinkField != "":
		if v, ok := entry.Values[s.ct.PermalinkField]; ok {
			base = Slugify(v.String())
		}
	}
	if slugGiven && base == "" {
		entry.Permalink = ""
		return in, nil
	}
	if base == "" || base == entry.Permalink {
		return in, nil
	}
	permalink, err := s.uniquePermalink(ctx, tx, base, entry.ID)
	if err != nil {
		return in, err
	}
	entry.Permalink = permalink
	return in, nil
}

func (s *EntryStore) uniquePermalink(ctx context.Context, tx EntryTx, base string, self uuid.UUID) (string, error) {
	for candidate := range permalinkCandidates(base) {
		taken, err := tx.PermalinkTaken(ctx, candidate, self)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.New("permalink candidates exhausted")
}
