package simplecms_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
)

var cheapArgon2 = simplecms.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

// recordingSink remembers the events it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (s *recordingSink) record(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) EntryCreated(ctx context.Context, entry *simplecms.Entry) error {
	return s.record("entry_created")
}

func (s *recordingSink) EntryUpdated(ctx context.Context, entry *simplecms.Entry) error {
	return s.record("entry_updated")
}

func (s *recordingSink) EntryDeleted(ctx context.Context, ct *simplecms.ContentType, entryID uuid.UUID) error {
	return s.record("entry_deleted")
}

func (s *recordingSink) EntriesDestroyed(ctx context.Context, ct *simplecms.ContentType, count int) error {
	return s.record("entries_destroyed")
}

func (s *recordingSink) AccountDeleted(ctx context.Context, accountID uuid.UUID, siteIDs []uuid.UUID) error {
	return s.record("account_deleted")
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simplecms.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simplecms.Option{},
			expectError: true,
		},
		{
			name:    "with repository should succeed",
			options: []simplecms.Option{simplecms.WithRepository(memory.New())},
		},
		{
			name: "default page size above max should fail",
			options: []simplecms.Option{
				simplecms.WithRepository(memory.New()),
				simplecms.WithPagination(50, 10),
			},
			expectError: true,
		},
		{
			name: "fully configured should succeed",
			options: []simplecms.Option{
				simplecms.WithRepository(memory.New()),
				simplecms.WithEventSink(simplecms.NewNoopEventSink()),
				simplecms.WithPasswordHasher(simplecms.NewArgon2Hasher(cheapArgon2)),
				simplecms.WithPagination(10, 50),
				simplecms.WithRegistryTTL(0),
				simplecms.WithGuardRetries(1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplecms.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func setupTestService(t *testing.T, sink simplecms.EventSink) simplecms.Service {
	t.Helper()
	svc, err := simplecms.New(
		simplecms.WithRepository(memory.New()),
		simplecms.WithEventSink(sink),
		simplecms.WithPasswordHasher(simplecms.NewArgon2Hasher(cheapArgon2)),
		simplecms.WithPagination(2, 3),
	)
	require.NoError(t, err)
	return svc
}

func signup(t *testing.T, svc simplecms.Service, email string) *simplecms.Account {
	t.Helper()
	account, err := svc.Signup(context.Background(), simplecms.SignupRequest{Name: "User", Email: email, Password: "secret1"})
	require.NoError(t, err)
	return account
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, simplecms.NewNoopEventSink())

	account := signup(t, svc, " Prefix+Suffix@Email.com ")
	assert.Equal(t, "prefix+suffix@email.com", account.Email)
	assert.Equal(t, simplecms.DefaultLocale, account.Locale)
	assert.Len(t, account.APIKey, 2*simplecms.APIKeyBytes)
	assert.NotContains(t, account.PasswordHash, "secret1")

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Signup(ctx, simplecms.SignupRequest{Name: "Again", Email: "PREFIX+suffix@email.com", Password: "secret1"})
		assert.Equal(t, map[string]string{"email": simplecms.MsgTaken}, validationFields(t, err))
	})

	t.Run("invalid signup", func(t *testing.T) {
		_, err := svc.Signup(ctx, simplecms.SignupRequest{Email: "nope", Password: "abc"})
		fields := validationFields(t, err)
		assert.Equal(t, simplecms.MsgBlank, fields["name"])
		assert.Equal(t, simplecms.MsgInvalid, fields["email"])
		assert.Contains(t, fields["password"], "too short")
	})

	t.Run("authenticate", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "prefix+suffix@email.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)

		_, err = svc.Authenticate(ctx, "prefix+suffix@email.com", "wrong")
		assert.ErrorIs(t, err, simplecms.ErrInvalidCredentials)
		_, err = svc.Authenticate(ctx, "nobody@email.com", "secret1")
		assert.ErrorIs(t, err, simplecms.ErrInvalidCredentials)
	})

	t.Run("regenerate api key", func(t *testing.T) {
		regenerated, err := svc.RegenerateAPIKey(ctx, account.ID)
		require.NoError(t, err)
		assert.NotEqual(t, account.APIKey, regenerated.APIKey)

		stored, err := svc.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, regenerated.APIKey, stored.APIKey)
	})
}

func TestSitesAndMemberships(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, simplecms.NewNoopEventSink())
	owner := signup(t, svc, "owner@example.com")
	author := signup(t, svc, "author@example.com")

	site, err := svc.CreateSite(ctx, simplecms.CreateSiteRequest{Name: "Acme", Subdomain: " Acme ", OwnerID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, "acme", site.Subdomain)

	_, err = svc.CreateSite(ctx, simplecms.CreateSiteRequest{Name: "Other", Subdomain: "acme", OwnerID: owner.ID})
	assert.Equal(t, map[string]string{"subdomain": simplecms.MsgTaken}, validationFields(t, err))
	_, err = svc.CreateSite(ctx, simplecms.CreateSiteRequest{Name: "Other", Subdomain: "not valid", OwnerID: owner.ID})
	assert.Equal(t, map[string]string{"subdomain": simplecms.MsgInvalid}, validationFields(t, err))
	_, err = svc.CreateSite(ctx, simplecms.CreateSiteRequest{Name: "Other", Subdomain: "other", OwnerID: uuid.New()})
	assert.ErrorIs(t, err, simplecms.ErrAccountNotFound)

	isAdmin, err := svc.IsLocalAdmin(ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	m, err := svc.AddMembership(ctx, simplecms.AddMembershipRequest{SiteID: site.ID, AccountID: author.ID})
	require.NoError(t, err)
	assert.Equal(t, simplecms.RoleAuthor, m.Role)

	_, err = svc.AddMembership(ctx, simplecms.AddMembershipRequest{SiteID: site.ID, AccountID: author.ID, Role: simplecms.RoleDesigner})
	assert.Equal(t, map[string]string{"account_id": simplecms.MsgTaken}, validationFields(t, err))
	_, err = svc.AddMembership(ctx, simplecms.AddMembershipRequest{SiteID: site.ID, AccountID: author.ID, Role: "boss"})
	assert.Equal(t, map[string]string{"role": simplecms.MsgNotIncluded}, validationFields(t, err))

	isAdmin, err = svc.IsLocalAdmin(ctx, author.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	sites, err := svc.ListAccountSites(ctx, author.ID)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, site.ID, sites[0].ID)

	memberships, err := svc.ListMemberships(ctx, site.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 2)
}

func TestServiceDeleteAccount(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	svc := setupTestService(t, sink)
	owner := signup(t, svc, "owner@example.com")
	site, err := svc.CreateSite(ctx, simplecms.CreateSiteRequest{Name: "Acme", Subdomain: "acme", OwnerID: owner.ID})
	require.NoError(t, err)

	outcome, err := svc.DeleteAccount(ctx, owner.ID)
	assert.Equal(t, simplecms.OutcomeRejected, outcome)
	var violation *simplecms.IntegrityViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, []uuid.UUID{site.ID}, violation.SiteIDs)
	assert.Empty(t, sink.events)

	other := signup(t, svc, "other@example.com")
	_, err = svc.AddMembership(ctx, simplecms.AddMembershipRequest{SiteID: site.ID, AccountID: other.ID, Role: simplecms.RoleAdmin})
	require.NoError(t, err)

	outcome, err = svc.DeleteAccount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, simplecms.OutcomeCommitted, outcome)
	assert.Equal(t, []string{"account_deleted"}, sink.events)

	_, err = svc.GetAccount(ctx, owner.ID)
	assert.ErrorIs(t, err, simplecms.ErrAccountNotFound)
}

func TestServiceEntries(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{fail: true}
	svc := setupTestService(t, sink)
	owner := signup(t, svc, "owner@example.com")
	site, err := svc.CreateSite(ctx, simplecms.CreateSiteRequest{Name: "Acme", Subdomain: "acme", OwnerID: owner.ID})
	require.NoError(t, err)

	_, err = svc.CreateContentType(ctx, simplecms.CreateContentTypeRequest{
		SiteID:         site.ID,
		Name:           "Products",
		Fields:         []simplecms.FieldDef{{Name: "title", Kind: simplecms.KindString, Required: true}},
		PermalinkField: "title",
	})
	require.NoError(t, err)

	for _, title := range []string{"Hat", "Cap", "Coat", "Sock"} {
		_, err := svc.CreateEntry(ctx, simplecms.CreateEntryRequest{SiteID: site.ID, Slug: "products", Values: map[string]any{"title": title}})
		require.NoError(t, err, "a failing event sink does not fail the write")
	}

	page, err := svc.ListEntries(ctx, simplecms.ListEntriesRequest{SiteID: site.ID, Slug: "products", Page: "x", PerPage: "", OrderBy: "title"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PerPage, "configured default page size")
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, "Cap", page.Entries[0].Values["title"].Str())

	page, err = svc.ListEntries(ctx, simplecms.ListEntriesRequest{SiteID: site.ID, Slug: "products", PerPage: "500"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.PerPage, "page size is clamped to the configured max")

	_, err = svc.ListEntries(ctx, simplecms.ListEntriesRequest{SiteID: site.ID, Slug: "nope"})
	assert.ErrorIs(t, err, simplecms.ErrContentTypeNotFound)

	updated, err := svc.UpdateEntry(ctx, simplecms.UpdateEntryRequest{SiteID: site.ID, Slug: "products", IDOrPermalink: "hat", Values: map[string]any{"title": "Top Hat"}})
	require.NoError(t, err)
	assert.Equal(t, "hat", updated.Permalink, "renaming keeps the permalink")

	got, err := svc.GetEntry(ctx, simplecms.GetEntryRequest{SiteID: site.ID, Slug: "products", IDOrPermalink: updated.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "Top Hat", got.Values["title"].Str())

	require.NoError(t, svc.DeleteEntry(ctx, simplecms.DeleteEntryRequest{SiteID: site.ID, Slug: "products", IDOrPermalink: "hat"}))

	n, err := svc.DestroyAll(ctx, simplecms.DestroyAllRequest{SiteID: site.ID, Slug: "products", Where: `{"title.in": ["Cap", "Coat"]}`, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = svc.DestroyAll(ctx, simplecms.DestroyAllRequest{SiteID: site.ID, Slug: "products", Where: `{"title.in": ["Cap", "Coat"]}`})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = svc.DestroyAll(ctx, simplecms.DestroyAllRequest{SiteID: site.ID, Slug: "products", Where: `{"title.in": ["Cap", "Coat"]}`})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, []string{
		"entry_created", "entry_created", "entry_created", "entry_created",
		"entry_updated", "entry_deleted", "entries_destroyed", "entries_destroyed",
	}, sink.events)
}
