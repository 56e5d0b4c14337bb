package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// membershipTx reads through its staged writes. The repository write lock is
// held by RunMembershipTx for the whole lifetime of the tx.
type membershipTx struct {
	r                  *Repository
	deletedMemberships map[uuid.UUID]bool
	deletedAccounts    map[uuid.UUID]bool
	updatedMemberships map[uuid.UUID]*simplecms.Membership
}

func (tx *membershipTx) GetAccount(ctx context.Context, id uuid.UUID) (*simplecms.Account, error) {
	account, exists := tx.r.accounts[id]
	if !exists || tx.deletedAccounts[id] {
		return nil, simplecms.ErrAccountNotFound
	}
	accountCopy := *account
	return &accountCopy, nil
}

func (tx *membershipTx) GetMembership(ctx context.Context, id uuid.UUID) (*simplecms.Membership, error) {
	m, ok := tx.membership(id)
	if !ok {
		return nil, simplecms.ErrMembershipNotFound
	}
	return m, nil
}

func (tx *membershipTx) ListMembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]*simplecms.Membership, error) {
	return tx.list(func(m *simplecms.Membership) bool { return m.AccountID == accountID }), nil
}

// LockSites only checks that the sites exist; the write lock already
// excludes every other writer.
func (tx *membershipTx) LockSites(ctx context.Context, siteIDs []uuid.UUID) error {
	for _, id := range siteIDs {
		if _, exists := tx.r.sites[id]; !exists {
			return simplecms.ErrSiteNotFound
		}
	}
	return ctx.Err()
}

func (tx *membershipTx) ListAdminMemberships(ctx context.Context, siteID uuid.UUID) ([]*simplecms.Membership, error) {
	return tx.list(func(m *simplecms.Membership) bool { return m.SiteID == siteID && m.IsAdmin() }), nil
}

func (tx *membershipTx) UpdateMembership(ctx context.Context, membership *simplecms.Membership) error {
	if _, ok := tx.membership(membership.ID); !ok {
		return simplecms.ErrMembershipNotFound
	}
	membershipCopy := *membership
	tx.updatedMemberships[membership.ID] = &membershipCopy
	return nil
}

func (tx *membershipTx) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	if _, ok := tx.membership(id); !ok {
		return simplecms.ErrMembershipNotFound
	}
	tx.deletedMemberships[id] = true
	delete(tx.updatedMemberships, id)
	return nil
}

func (tx *membershipTx) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if _, err := tx.GetAccount(ctx, id); err != nil {
		return err
	}
	for _, m := range tx.r.memberships {
		if m.AccountID == id && !tx.deletedMemberships[m.ID] {
			return fmt.Errorf("account %s still has memberships", id)
		}
	}
	tx.deletedAccounts[id] = true
	return nil
}

func (tx *membershipTx) membership(id uuid.UUID) (*simplecms.Membership, bool) {
	if tx.deletedMemberships[id] {
		return nil, false
	}
	if m, ok := tx.updatedMemberships[id]; ok {
		membershipCopy := *m
		return &membershipCopy, true
	}
	m, ok := tx.r.memberships[id]
	if !ok {
		return nil, false
	}
	membershipCopy := *m
	return &membershipCopy, true
}

func (tx *membershipTx) list(keep func(*simplecms.Membership) bool) []*simplecms.Membership {
	result := []*simplecms.Membership{}
	for id := range tx.r.memberships {
		m, ok := tx.membership(id)
		if ok && keep(m) {
			result = append(result, m)
		}
	}
	sortMemberships(result)
	return result
}

func (tx *membershipTx) apply() {
	for id, m := range tx.updatedMemberships {
		tx.r.memberships[id] = m
	}
	for id := range tx.deletedMemberships {
		delete(tx.r.memberships, id)
	}
	for id := range tx.deletedAccounts {
		if account, ok := tx.r.accounts[id]; ok {
			delete(tx.r.accountsByEmail, strings.ToLower(account.Email))
		}
		delete(tx.r.accounts, id)
	}
}
