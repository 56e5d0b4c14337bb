package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

const testSchema = "simplecms_test"

// newTestRepository connects to TEST_DATABASE_URL, migrates a dedicated
// schema and truncates it. Tests are skipped in short mode or when no
// database is configured.
func newTestRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = testSchema

	admin, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	_, err = admin.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+testSchema)
	admin.Close()
	require.NoError(t, err, "Failed to create test schema")

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE entries, content_types, memberships, sites, accounts CASCADE")
	require.NoError(t, err, "Failed to truncate tables")

	return NewWithPool(pool).WithLockTimeout(500 * time.Millisecond), pool
}

func seedAccount(t *testing.T, repo *Repository, email string) *simplecms.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &simplecms.Account{
		ID:           uuid.New(),
		Name:         email,
		Email:        email,
		PasswordHash: "hash",
		Locale:       simplecms.DefaultLocale,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), a))
	return a
}

func seedSite(t *testing.T, repo *Repository, subdomain string, admin *simplecms.Account) (*simplecms.Site, *simplecms.Membership) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	site := &simplecms.Site{ID: uuid.New(), Name: subdomain, Subdomain: subdomain, CreatedAt: now, UpdatedAt: now}
	m := &simplecms.Membership{
		ID:        uuid.New(),
		SiteID:    site.ID,
		AccountID: admin.ID,
		Role:      simplecms.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateSite(context.Background(), site, m))
	return site, m
}

func seedContentType(t *testing.T, repo *Repository, site *simplecms.Site) *simplecms.ContentType {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	ct := &simplecms.ContentType{
		ID:     uuid.New(),
		SiteID: site.ID,
		Name:   "Products",
		Slug:   "products",
		Fields: []simplecms.FieldDef{
			{Name: "title", Kind: simplecms.KindString, Required: true},
			{Name: "price", Kind: simplecms.KindFloat},
			{Name: "stock", Kind: simplecms.KindInteger},
			{Name: "published", Kind: simplecms.KindBoolean},
			{Name: "tags", Kind: simplecms.KindTags},
		},
		PermalinkField: "title",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.CreateContentType(context.Background(), ct))
	return ct
}
