package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// membershipTx is the view handed out by RunMembershipTx.
type membershipTx struct {
	db pgx.Tx
}

func (tx *membershipTx) GetAccount(ctx context.Context, id uuid.UUID) (*simplecms.Account, error) {
	return getAccount(ctx, tx.db, id)
}

func (tx *membershipTx) GetMembership(ctx context.Context, id uuid.UUID) (*simplecms.Membership, error) {
	return getMembership(ctx, tx.db, id)
}

func (tx *membershipTx) ListMembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]*simplecms.Membership, error) {
	return queryMemberships(ctx, tx.db,
		`SELECT `+membershipColumns+` FROM memberships WHERE account_id = $1 ORDER BY created_at, id`, accountID)
}

// LockSites takes row locks on the sites in id order so that two guarded
// changes over overlapping sites cannot deadlock.
func (tx *membershipTx) LockSites(ctx context.Context, siteIDs []uuid.UUID) error {
	if len(siteIDs) == 0 {
		return nil
	}
	rows, err := tx.db.Query(ctx, `SELECT id FROM sites WHERE id = ANY($1) ORDER BY id FOR UPDATE`, siteIDs)
	if err != nil {
		return handlePostgresError("lock sites", err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return handlePostgresError("lock sites", err)
	}
	if locked < len(siteIDs) {
		return simplecms.ErrSiteNotFound
	}
	return nil
}

func (tx *membershipTx) ListAdminMemberships(ctx context.Context, siteID uuid.UUID) ([]*simplecms.Membership, error) {
	return queryMemberships(ctx, tx.db,
		`SELECT `+membershipColumns+` FROM memberships WHERE site_id = $1 AND role = $2 ORDER BY created_at, id`,
		siteID, string(simplecms.RoleAdmin))
}

func (tx *membershipTx) UpdateMembership(ctx context.Context, m *simplecms.Membership) error {
	tag, err := tx.db.Exec(ctx,
		`UPDATE memberships SET role = $2, updated_at = $3 WHERE id = $1`,
		m.ID, string(m.Role), m.UpdatedAt)
	if err != nil {
		return handlePostgresError("update membership", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrMembershipNotFound
	}
	return nil
}

func (tx *membershipTx) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	tag, err := tx.db.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete membership", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrMembershipNotFound
	}
	return nil
}

// DeleteAccount relies on the memberships foreign key: an account that still
// has memberships fails with a foreign key violation.
func (tx *membershipTx) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := tx.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return simplecms.ErrAccountNotFound
	}
	return nil
}
