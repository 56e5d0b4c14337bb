package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Entry operations

func (r *Repository) GetEntry(ctx context.Context, ct *simplecms.ContentType, id uuid.UUID) (*simplecms.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.getEntry(ct, id)
}

func (r *Repository) GetEntryByPermalink(ctx context.Context, ct *simplecms.ContentType, permalink string) (*simplecms.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries[ct.ID] {
		if e.Permalink != "" && e.Permalink == permalink {
			return simplecms.ReadEntry(ct, e), nil
		}
	}
	return nil, simplecms.ErrEntryNotFound
}

func (r *Repository) QueryEntries(ctx context.Context, ct *simplecms.ContentType, q simplecms.EntryQuery) ([]*simplecms.Entry, int, error) {
	r.mu.RLock()
	matched := r.match(ct, q.Filter)
	r.mu.RUnlock()

	simplecms.SortEntries(matched, q.OrderBy)
	page := simplecms.Paginate(matched, q.Page, q.PerPage)
	return page, len(matched), nil
}

func (r *Repository) CountEntries(ctx context.Context, ct *simplecms.ContentType, filter simplecms.Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.match(ct, filter)), nil
}

// WithinContentType serializes writers of one content type with a per-type
// mutex.
func (r *Repository) WithinContentType(ctx context.Context, ct *simplecms.ContentType, fn func(ctx context.Context, tx simplecms.EntryTx) error) error {
	lock := r.typeLock(ct.ID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	_, exists := r.contentTypes[ct.ID]
	r.mu.RUnlock()
	if !exists {
		return simplecms.ErrContentTypeNotFound
	}
	return fn(ctx, &entryTx{r: r, ct: ct})
}

func (r *Repository) typeLock(id uuid.UUID) *sync.Mutex {
	r.typeLocksMu.Lock()
	defer r.typeLocksMu.Unlock()

	lock, ok := r.typeLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.typeLocks[id] = lock
	}
	return lock
}

// getEntry returns a copy of the entry read against ct. Callers hold r.mu.
func (r *Repository) getEntry(ct *simplecms.ContentType, id uuid.UUID) (*simplecms.Entry, error) {
	e, exists := r.entries[ct.ID][id]
	if !exists {
		return nil, simplecms.ErrEntryNotFound
	}
	return simplecms.ReadEntry(ct, e), nil
}

// match returns copies of the entries matching filter. Stored values are
// read against ct first, so values that no longer fit a field never match.
// Callers hold r.mu.
func (r *Repository) match(ct *simplecms.ContentType, filter simplecms.Filter) []*simplecms.Entry {
	result := []*simplecms.Entry{}
	for _, e := range r.entries[ct.ID] {
		if e = simplecms.ReadEntry(ct, e); filter.Match(ct, e) {
			result = append(result, e)
		}
	}
	return result
}

// entryTx is the write view handed out by WithinContentType.
type entryTx struct {
	r  *Repository
	ct *simplecms.ContentType
}

func (tx *entryTx) GetEntry(ctx context.Context, id uuid.UUID) (*simplecms.Entry, error) {
	tx.r.mu.RLock()
	defer tx.r.mu.RUnlock()

	return tx.r.getEntry(tx.ct, id)
}

func (tx *entryTx) PermalinkTaken(ctx context.Context, permalink string, exclude uuid.UUID) (bool, error) {
	tx.r.mu.RLock()
	defer tx.r.mu.RUnlock()

	for _, e := range tx.r.entries[tx.ct.ID] {
		if e.ID != exclude && e.Permalink == permalink {
			return true, nil
		}
	}
	return false, nil
}

func (tx *entryTx) ValueTaken(ctx context.Context, field string, v simplecms.Value, exclude uuid.UUID) (bool, error) {
	tx.r.mu.RLock()
	defer tx.r.mu.RUnlock()

	for _, e := range tx.r.entries[tx.ct.ID] {
		if e.ID == exclude {
			continue
		}
		if other, ok := simplecms.ReadEntry(tx.ct, e).Values[field]; ok && other.Equal(v) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *entryTx) NextPosition(ctx context.Context) (int, error) {
	tx.r.mu.RLock()
	defer tx.r.mu.RUnlock()

	next := 0
	for _, e := range tx.r.entries[tx.ct.ID] {
		if e.Position >= next {
			next = e.Position + 1
		}
	}
	return next, nil
}

func (tx *entryTx) InsertEntry(ctx context.Context, entry *simplecms.Entry) error {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()

	entries, ok := tx.r.entries[tx.ct.ID]
	if !ok {
		return simplecms.ErrContentTypeNotFound
	}
	if _, exists := entries[entry.ID]; exists {
		return simplecms.ErrAlreadyExists
	}
	entries[entry.ID] = entry.Clone()
	return nil
}

func (tx *entryTx) UpdateEntry(ctx context.Context, entry *simplecms.Entry) error {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()

	entries := tx.r.entries[tx.ct.ID]
	if _, exists := entries[entry.ID]; !exists {
		return simplecms.ErrEntryNotFound
	}
	entries[entry.ID] = entry.Clone()
	return nil
}

func (tx *entryTx) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()

	entries := tx.r.entries[tx.ct.ID]
	if _, exists := entries[id]; !exists {
		return simplecms.ErrEntryNotFound
	}
	delete(entries, id)
	return nil
}

func (tx *entryTx) DeleteEntries(ctx context.Context, filter simplecms.Filter) (int, error) {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()

	entries := tx.r.entries[tx.ct.ID]
	n := 0
	for id, e := range entries {
		if filter.Match(tx.ct, simplecms.ReadEntry(tx.ct, e)) {
			delete(entries, id)
			n++
		}
	}
	return n, nil
}
