package simplecms_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
)

// setupEntryStore creates a site with a "products" type in a fresh memory
// repository.
func setupEntryStore(t *testing.T) (*simplecms.EntryStore, *memory.Repository) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	now := time.Now().UTC()
	account := &simplecms.Account{ID: uuid.New(), Name: "Owner", Email: "owner@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateAccount(ctx, account))
	site := &simplecms.Site{ID: uuid.New(), Name: "Acme", Subdomain: "acme", CreatedAt: now, UpdatedAt: now}
	admin := &simplecms.Membership{ID: uuid.New(), SiteID: site.ID, AccountID: account.ID, Role: simplecms.RoleAdmin}
	require.NoError(t, repo.CreateSite(ctx, site, admin))

	ct := &simplecms.ContentType{
		ID:     uuid.New(),
		SiteID: site.ID,
		Name:   "Products",
		Slug:   "products",
		Fields: []simplecms.FieldDef{
			{Name: "title", Kind: simplecms.KindString, Required: true},
			{Name: "sku", Kind: simplecms.KindString, Unique: true},
			{Name: "price", Kind: simplecms.KindFloat},
			{Name: "size", Kind: simplecms.KindSelect, Options: []string{"s", "m", "l"}},
			{Name: "tags", Kind: simplecms.KindTags},
		},
		PermalinkField: "title",
	}
	require.NoError(t, repo.CreateContentType(ctx, ct))
	return simplecms.NewEntryStore(repo, ct), repo
}

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *simplecms.ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	out := map[string]string{}
	for _, f := range verr.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestEntryStore_CreateAssignsPermalinkAndPosition(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, map[string]any{"title": "Blue Shirt"})
	require.NoError(t, err)
	assert.Equal(t, "blue-shirt", first.Permalink)
	assert.Equal(t, 0, first.Position)

	second, err := store.Create(ctx, map[string]any{"title": "Blue  shirt!"})
	require.NoError(t, err)
	assert.Equal(t, "blue-shirt-1", second.Permalink)
	assert.Equal(t, 1, second.Position)

	explicit, err := store.Create(ctx, map[string]any{"title": "Red", "_slug": "Crimson Tee", "_position": 10})
	require.NoError(t, err)
	assert.Equal(t, "crimson-tee", explicit.Permalink)
	assert.Equal(t, 10, explicit.Position)

	next, err := store.Create(ctx, map[string]any{"title": "Green"})
	require.NoError(t, err)
	assert.Equal(t, 11, next.Position)
}

func TestEntryStore_CreateValidates(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, map[string]any{"title": "Hat", "sku": "H1"})
	require.NoError(t, err)

	_, err = store.Create(ctx, map[string]any{
		"sku":    "H1",
		"price":  "cheap",
		"size":   "xl",
		"colour": "red",
	})
	assert.Equal(t, map[string]string{
		"title":  simplecms.MsgBlank,
		"sku":    simplecms.MsgTaken,
		"price":  simplecms.MsgInvalid,
		"size":   simplecms.MsgNotIncluded,
		"colour": simplecms.MsgUnknown,
	}, validationFields(t, err))

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a rejected create writes nothing")
}

func TestEntryStore_RejectsNonFiniteFloats(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	priced, err := store.Create(ctx, map[string]any{"title": "Priced", "price": 5})
	require.NoError(t, err)

	for _, raw := range []any{"NaN", "Inf", "-Inf", " +Inf "} {
		_, err := store.Create(ctx, map[string]any{"title": "Broken", "price": raw})
		assert.Equal(t, map[string]string{"price": simplecms.MsgInvalid}, validationFields(t, err), "create with %v", raw)

		_, err = store.Update(ctx, priced.ID, map[string]any{"price": raw})
		assert.Equal(t, map[string]string{"price": simplecms.MsgInvalid}, validationFields(t, err), "update with %v", raw)
	}

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = simplecms.ParseWhere(store.ContentType(), `{"price":"NaN"}`)
	assert.Contains(t, validationFields(t, err), "where")

	filter, err := simplecms.ParseWhere(store.ContentType(), `{"price":5}`)
	require.NoError(t, err)
	page, err := store.Query(ctx, simplecms.EntryQuery{Filter: filter, Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, priced.ID, page.Entries[0].ID)

	_, err = json.Marshal(page.Entries[0])
	assert.NoError(t, err)
}

func TestEntryStore_Update(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	e, err := store.Create(ctx, map[string]any{"title": "Hat", "sku": "H1", "price": 10})
	require.NoError(t, err)
	other, err := store.Create(ctx, map[string]any{"title": "Cap", "sku": "C1"})
	require.NoError(t, err)

	updated, err := store.Update(ctx, e.ID, map[string]any{"price": 12.5})
	require.NoError(t, err)
	assert.Equal(t, 12.5, updated.Values["price"].Float())
	assert.Equal(t, "Hat", updated.Values["title"].Str(), "absent keys keep their value")
	assert.Equal(t, "hat", updated.Permalink)

	_, err = store.Update(ctx, e.ID, map[string]any{"sku": "H1"})
	require.NoError(t, err, "an entry does not collide with itself")

	_, err = store.Update(ctx, other.ID, map[string]any{"sku": "H1"})
	assert.Equal(t, map[string]string{"sku": simplecms.MsgTaken}, validationFields(t, err))

	_, err = store.Update(ctx, e.ID, map[string]any{"title": nil})
	assert.Equal(t, map[string]string{"title": simplecms.MsgBlank}, validationFields(t, err))

	cleared, err := store.Update(ctx, e.ID, map[string]any{"price": nil, "_slug": ""})
	require.NoError(t, err)
	_, ok := cleared.Values["price"]
	assert.False(t, ok)
	assert.Empty(t, cleared.Permalink)

	_, err = store.Update(ctx, uuid.New(), map[string]any{"price": 1})
	assert.ErrorIs(t, err, simplecms.ErrEntryNotFound)
}

func TestEntryStore_FindByPermalink(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	e, err := store.Create(ctx, map[string]any{"title": "Hat"})
	require.NoError(t, err)

	found, err := store.FindByPermalink(ctx, "hat")
	require.NoError(t, err)
	assert.Equal(t, e.ID, found.ID)

	found, err = store.FindByPermalink(ctx, e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, e.ID, found.ID)

	_, err = store.FindByPermalink(ctx, uuid.NewString())
	assert.ErrorIs(t, err, simplecms.ErrEntryNotFound, "an id-shaped value is never tried as a permalink")

	_, err = store.FindByPermalink(ctx, "")
	assert.ErrorIs(t, err, simplecms.ErrEntryNotFound)
}

func TestEntryStore_Query(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	for i, title := range []string{"Delta", "Alpha", "Charlie", "Bravo", "Echo"} {
		values := map[string]any{"title": title}
		if i%2 == 0 {
			values["price"] = float64(10 * (i + 1))
		}
		_, err := store.Create(ctx, values)
		require.NoError(t, err)
	}

	titles := func(page *simplecms.EntryPage) []string {
		out := make([]string, 0, len(page.Entries))
		for _, e := range page.Entries {
			out = append(out, e.Values["title"].Str())
		}
		return out
	}

	t.Run("default order is position", func(t *testing.T) {
		page, err := store.Query(ctx, simplecms.EntryQuery{Page: 1, PerPage: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"Delta", "Alpha", "Charlie", "Bravo", "Echo"}, titles(page))
		assert.Equal(t, 5, page.TotalCount)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run("pages partition the ordering", func(t *testing.T) {
		order := []simplecms.OrderField{{Field: "title"}}
		var seen []string
		for p := 1; p <= 3; p++ {
			page, err := store.Query(ctx, simplecms.EntryQuery{OrderBy: order, Page: p, PerPage: 2})
			require.NoError(t, err)
			assert.Equal(t, 3, page.TotalPages)
			seen = append(seen, titles(page)...)
		}
		assert.Equal(t, []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"}, seen)
	})

	t.Run("page past the end is empty with the true total", func(t *testing.T) {
		page, err := store.Query(ctx, simplecms.EntryQuery{Page: 99, PerPage: 2})
		require.NoError(t, err)
		assert.Empty(t, page.Entries)
		assert.NotNil(t, page.Entries)
		assert.Equal(t, 5, page.TotalCount)
	})

	t.Run("absent values sort first ascending and last descending", func(t *testing.T) {
		page, err := store.Query(ctx, simplecms.EntryQuery{
			OrderBy: []simplecms.OrderField{{Field: "price"}}, Page: 1, PerPage: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Alpha", "Bravo", "Delta", "Charlie", "Echo"}, titles(page))

		page, err = store.Query(ctx, simplecms.EntryQuery{
			OrderBy: []simplecms.OrderField{{Field: "price", Desc: true}}, Page: 1, PerPage: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Echo", "Charlie", "Delta", "Alpha", "Bravo"}, titles(page))
	})

	t.Run("filter", func(t *testing.T) {
		page, err := store.Query(ctx, simplecms.EntryQuery{
			Filter:  simplecms.Filter{{Field: "price", Op: simplecms.OpGt, Value: simplecms.FloatValue(10)}},
			Page:    1,
			PerPage: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Charlie", "Echo"}, titles(page))
		assert.Equal(t, 2, page.TotalCount)
	})

	t.Run("rejects unknown fields and bad paging", func(t *testing.T) {
		_, err := store.Query(ctx, simplecms.EntryQuery{
			Filter:  simplecms.Filter{{Field: "colour", Op: simplecms.OpEq}},
			OrderBy: []simplecms.OrderField{{Field: "weight"}},
			Page:    0,
			PerPage: 0,
		})
		fields := validationFields(t, err)
		assert.Contains(t, fields, "where")
		assert.Contains(t, fields, "order_by")
		assert.Contains(t, fields, "page")
		assert.Contains(t, fields, "per_page")
	})
}

func TestEntryStore_DeleteAll(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	for _, v := range []map[string]any{
		{"title": "Hat", "tags": []any{"summer"}},
		{"title": "Cap", "tags": []any{"summer", "sale"}},
		{"title": "Coat", "tags": []any{"winter"}},
		{"title": "Sock"},
	} {
		_, err := store.Create(ctx, v)
		require.NoError(t, err)
	}

	summer := simplecms.Filter{{Field: "tags", Op: simplecms.OpEq, Value: simplecms.TagsValue("summer")}}

	n, err := store.Count(ctx, summer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteAll(ctx, summer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteAll(ctx, summer)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "repeating a bulk delete succeeds with nothing to do")

	_, err = store.DeleteAll(ctx, simplecms.Filter{{Field: "tags", Op: simplecms.OpGt, Value: simplecms.TagsValue("a")}})
	assert.Contains(t, validationFields(t, err), "where")

	n, err = store.DeleteAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEntryStore_Delete(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	e, err := store.Create(ctx, map[string]any{"title": "Hat"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, e.ID))
	assert.ErrorIs(t, store.Delete(ctx, e.ID), simplecms.ErrEntryNotFound)

	again, err := store.Create(ctx, map[string]any{"title": "Hat"})
	require.NoError(t, err)
	assert.Equal(t, "hat", again.Permalink, "a deleted entry frees its permalink")
}

func TestEntryStore_ConcurrentCreatesKeepPermalinksAndUniqueFieldsDistinct(t *testing.T) {
	store, _ := setupEntryStore(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Create(ctx, map[string]any{"title": "Hat", "sku": fmt.Sprintf("S%d", i%10)})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, map[string]string{"sku": simplecms.MsgTaken}, validationFields(t, err))
	}
	assert.Equal(t, 10, created, "each sku is accepted exactly once")

	page, err := store.Query(ctx, simplecms.EntryQuery{Page: 1, PerPage: 100})
	require.NoError(t, err)
	permalinks := map[string]bool{}
	positions := map[int]bool{}
	for _, e := range page.Entries {
		assert.False(t, permalinks[e.Permalink], "duplicate permalink %s", e.Permalink)
		assert.False(t, positions[e.Position], "duplicate position %d", e.Position)
		permalinks[e.Permalink] = true
		positions[e.Position] = true
	}
}
