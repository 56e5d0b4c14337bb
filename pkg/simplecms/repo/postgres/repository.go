package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxBeginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type TxBeginner interface {
	DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// DefaultLockTimeout bounds how long a guarded membership change waits for
// site row locks before reporting a concurrency conflict.
const DefaultLockTimeout = 2 * time.Second

// Repository implements simplecms.Repository using PostgreSQL
type Repository struct {
	db          TxBeginner
	lockTimeout time.Duration
}

// New creates a new PostgreSQL repository
func New(db TxBeginner) *Repository {
	return &Repository{db: db, lockTimeout: DefaultLockTimeout}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

// WithLockTimeout sets the lock_timeout of membership transactions.
func (r *Repository) WithLockTimeout(d time.Duration) *Repository {
	r.lockTimeout = d
	return r
}

var _ simplecms.Repository = (*Repository)(nil)

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w (%s)", operation, simplecms.ErrAlreadyExists, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found (%s)", operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return fmt.Errorf("%s: %w: %s", operation, simplecms.ErrConcurrencyConflict, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// runTx runs fn in a transaction, rolling back on error or panic.
func (r *Repository) runTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return handlePostgresError("begin transaction", err)
	}
	rollback := func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return handlePostgresError("commit transaction", err)
	}
	return nil
}

// Account operations

const accountColumns = `id, name, email, password_hash, locale, api_key, super_admin, created_at, updated_at`

func scanAccount(row pgx.Row) (*simplecms.Account, error) {
	var a simplecms.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Locale, &a.APIKey, &a.SuperAdmin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *simplecms.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		account.ID, account.Name, account.Email, account.PasswordHash, account.Locale,
		account.APIKey, account.SuperAdmin, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return handlePostgresError("create account", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*simplecms.Account, error) {
	return getAccount(ctx, r.db, id)
}

func getAccount(ctx context.Context, db DBTX, id uuid.UUID) (*simplecms.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.ErrAccountNotFound
		}
		return nil, handlePostgresError("get account", err)
	}
	return account, nil
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*simplecms.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.ErrAccountNotFound
		}
		return nil, handlePostgresError("get account by email", err)
	}
	return account, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, account *simplecms.Account) error {
	query := `
		UPDATE accounts
		SET name = $2, email = $3, password_hash = $4, locale = $5, api_key = $6,
		    super_admin = $7, updated_at = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		account.ID, account.Name, account.Email, account.PasswordHash, account.Locale,
		account.APIKey, account.SuperAdmin, account.UpdatedAt)
	if err != nil {
		return handlePostgresError("update account", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrAccountNotFound
	}
	return nil
}

// Site operations

const siteColumns = `id, name, subdomain, created_at, updated_at`

func (r *Repository) CreateSite(ctx context.Context, site *simplecms.Site, admin *simplecms.Membership) error {
	return r.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO sites (`+siteColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			site.ID, site.Name, site.Subdomain, site.CreatedAt, site.UpdatedAt)
		if err != nil {
			return handlePostgresError("create site", err)
		}
		return createMembership(ctx, tx, admin)
	})
}

func (r *Repository) GetSite(ctx context.Context, id uuid.UUID) (*simplecms.Site, error) {
	var s simplecms.Site
	err := r.db.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Subdomain, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.ErrSiteNotFound
		}
		return nil, handlePostgresError("get site", err)
	}
	return &s, nil
}

func (r *Repository) ListSitesByAccount(ctx context.Context, accountID uuid.UUID) ([]*simplecms.Site, error) {
	query := `
		SELECT s.id, s.name, s.subdomain, s.created_at, s.updated_at
		FROM sites s
		JOIN memberships m ON m.site_id = s.id
		WHERE m.account_id = $1
		ORDER BY s.subdomain`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, handlePostgresError("list sites by account", err)
	}
	defer rows.Close()

	sites := []*simplecms.Site{}
	for rows.Next() {
		var s simplecms.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.Subdomain, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, handlePostgresError("scan site", err)
		}
		sites = append(sites, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list sites by account", err)
	}
	return sites, nil
}

// Membership operations

const membershipColumns = `id, site_id, account_id, role, created_at, updated_at`

func createMembership(ctx context.Context, db DBTX, m *simplecms.Membership) error {
	_, err := db.Exec(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.SiteID, m.AccountID, string(m.Role), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return handlePostgresError("create membership", err)
	}
	return nil
}

func (r *Repository) CreateMembership(ctx context.Context, membership *simplecms.Membership) error {
	return createMembership(ctx, r.db, membership)
}

func (r *Repository) GetMembership(ctx context.Context, id uuid.UUID) (*simplecms.Membership, error) {
	return getMembership(ctx, r.db, id)
}

func getMembership(ctx context.Context, db DBTX, id uuid.UUID) (*simplecms.Membership, error) {
	ms, err := queryMemberships(ctx, db, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, simplecms.ErrMembershipNotFound
	}
	return ms[0], nil
}

func (r *Repository) ListMembershipsBySite(ctx context.Context, siteID uuid.UUID) ([]*simplecms.Membership, error) {
	return queryMemberships(ctx, r.db,
		`SELECT `+membershipColumns+` FROM memberships WHERE site_id = $1 ORDER BY created_at, id`, siteID)
}

func (r *Repository) ListMembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]*simplecms.Membership, error) {
	return queryMemberships(ctx, r.db,
		`SELECT `+membershipColumns+` FROM memberships WHERE account_id = $1 ORDER BY created_at, id`, accountID)
}

func queryMemberships(ctx context.Context, db DBTX, query string, args ...interface{}) ([]*simplecms.Membership, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("query memberships", err)
	}
	defer rows.Close()

	result := []*simplecms.Membership{}
	for rows.Next() {
		var m simplecms.Membership
		var role string
		if err := rows.Scan(&m.ID, &m.SiteID, &m.AccountID, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, handlePostgresError("scan membership", err)
		}
		m.Role = simplecms.Role(role)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("query memberships", err)
	}
	return result, nil
}

// RunMembershipTx runs fn in a READ COMMITTED transaction whose row locks
// wait at most the configured lock timeout.
func (r *Repository) RunMembershipTx(ctx context.Context, fn func(ctx context.Context, tx simplecms.MembershipTx) error) error {
	return r.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return handlePostgresError("set lock timeout", err)
			}
		}
		return fn(ctx, &membershipTx{db: tx})
	})
}

// Content type operations

const contentTypeColumns = `id, site_id, name, slug, fields, order_by, permalink_field, created_at, updated_at`

func (r *Repository) CreateContentType(ctx context.Context, ct *simplecms.ContentType) error {
	query := `INSERT INTO content_types (` + contentTypeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		ct.ID, ct.SiteID, ct.Name, ct.Slug, ct.Fields, ct.OrderBy, ct.PermalinkField, ct.CreatedAt, ct.UpdatedAt)
	if err != nil {
		return handlePostgresError("create content type", err)
	}
	return nil
}

func scanContentType(row pgx.Row) (*simplecms.ContentType, error) {
	var ct simplecms.ContentType
	err := row.Scan(&ct.ID, &ct.SiteID, &ct.Name, &ct.Slug, &ct.Fields, &ct.OrderBy, &ct.PermalinkField, &ct.CreatedAt, &ct.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

func (r *Repository) GetContentTypeBySlug(ctx context.Context, siteID uuid.UUID, slug string) (*simplecms.ContentType, error) {
	query := `SELECT ` + contentTypeColumns + ` FROM content_types WHERE site_id = $1 AND slug = $2`
	ct, err := scanContentType(r.db.QueryRow(ctx, query, siteID, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.ErrContentTypeNotFound
		}
		return nil, handlePostgresError("get content type", err)
	}
	return ct, nil
}

func (r *Repository) ListContentTypes(ctx context.Context, siteID uuid.UUID) ([]*simplecms.ContentType, error) {
	rows, err := r.db.Query(ctx, `SELECT `+contentTypeColumns+` FROM content_types WHERE site_id = $1 ORDER BY name, slug`, siteID)
	if err != nil {
		return nil, handlePostgresError("list content types", err)
	}
	defer rows.Close()

	result := []*simplecms.ContentType{}
	for rows.Next() {
		ct, err := scanContentType(rows)
		if err != nil {
			return nil, handlePostgresError("scan content type", err)
		}
		result = append(result, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list content types", err)
	}
	return result, nil
}

func (r *Repository) UpdateContentType(ctx context.Context, ct *simplecms.ContentType) error {
	query := `
		UPDATE content_types
		SET name = $2, slug = $3, fields = $4, order_by = $5, permalink_field = $6, updated_at = $7
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, ct.ID, ct.Name, ct.Slug, ct.Fields, ct.OrderBy, ct.PermalinkField, ct.UpdatedAt)
	if err != nil {
		return handlePostgresError("update content type", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrContentTypeNotFound
	}
	return nil
}

// DeleteContentType deletes the type; entries go with it through ON DELETE
// CASCADE.
func (r *Repository) DeleteContentType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_types WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete content type", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrContentTypeNotFound
	}
	return nil
}
