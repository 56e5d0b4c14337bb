package simplecms

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/tendant/simple-cms/pkg/simplecms/metrics"
)

// DefaultGuardRetries is how many times a conflicting guarded change is retried.
const DefaultGuardRetries = 5

// Guard enforces that every site keeps at least one admin membership. Each
// guarded change reads, checks and writes inside one membership transaction
// after locking the affected sites in ascending id order.
type Guard struct {
	repo       Repository
	locker     SiteLocker
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// NewGuard returns a guard over repo. locker may be nil.
func NewGuard(repo Repository, locker SiteLocker, maxRetries int) *Guard {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Guard{
		repo:       repo,
		locker:     locker,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
		logger: slog.Default(),
	}
}

// DeleteAccount deletes the account and all of its memberships, unless that
// would leave one of its sites without an admin. A rejection returns
// OutcomeRejected with an *IntegrityViolation and changes nothing.
func (g *Guard) DeleteAccount(ctx context.Context, accountID uuid.UUID) (Outcome, error) {
	return g.run(ctx, "delete_account", func(ctx context.Context) error {
		return g.deleteAccountOnce(ctx, accountID)
	})
}

// RemoveMembership deletes one membership unless it is the last admin of its
// site.
func (g *Guard) RemoveMembership(ctx context.Context, membershipID uuid.UUID) (Outcome, error) {
	return g.run(ctx, "remove_membership", func(ctx context.Context) error {
		return g.changeMembershipOnce(ctx, membershipID, func(ctx context.Context, tx MembershipTx, m *Membership) error {
			return tx.DeleteMembership(ctx, m.ID)
		}, true)
	})
}

// ChangeRole sets the role of a membership. Demoting the last admin of a site
// is rejected.
func (g *Guard) ChangeRole(ctx context.Context, membershipID uuid.UUID, role Role) (Outcome, error) {
	if !role.IsValid() {
		return OutcomeRejected, NewValidationError("role", MsgNotIncluded)
	}
	return g.run(ctx, "change_role", func(ctx context.Context) error {
		return g.changeMembershipOnce(ctx, membershipID, func(ctx context.Context, tx MembershipTx, m *Membership) error {
			m.Role = role
			m.UpdatedAt = time.Now().UTC()
			return tx.UpdateMembership(ctx, m)
		}, role != RoleAdmin)
	})
}

// run retries attempt while it reports ErrConcurrencyConflict. Any other
// error is final. A conflict left after the last retry is returned.
func (g *Guard) run(ctx context.Context, op string, attempt func(context.Context) error) (Outcome, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), g.maxRetries), ctx)
	err := backoff.Retry(func() error {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConcurrencyConflict) {
			metrics.GuardConflictsTotal.Inc()
			g.logger.Debug("guarded change conflicted, retrying", "op", op, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}, b)

	outcome := OutcomeCommitted
	if err != nil {
		outcome = OutcomeRejected
	}
	metrics.GuardOutcomesTotal.WithLabelValues(op, string(outcome)).Inc()
	return outcome, err
}

func (g *Guard) deleteAccountOnce(ctx context.Context, accountID uuid.UUID) error {
	memberships, err := g.repo.ListMembershipsByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	siteIDs := membershipSites(memberships)

	unlock, err := g.lockSites(ctx, siteIDs)
	if err != nil {
		return err
	}
	defer unlock()

	return g.repo.RunMembershipTx(ctx, func(ctx context.Context, tx MembershipTx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		if err := tx.LockSites(ctx, siteIDs); err != nil {
			return err
		}
		// Re-read under the locks. A membership added since the first read
		// lives on a site we do not hold.
		current, err := tx.ListMembershipsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !slices.Equal(membershipSites(current), siteIDs) {
			return ErrConcurrencyConflict
		}

		var lonely []uuid.UUID
		for _, m := range current {
			if !m.IsAdmin() {
				continue
			}
			ok, err := hasOtherAdmin(ctx, tx, m.SiteID, m.ID)
			if err != nil {
				return err
			}
			if !ok {
				lonely = append(lonely, m.SiteID)
			}
		}
		if len(lonely) > 0 {
			return &IntegrityViolation{Message: LastAdminMessage, SiteIDs: lonely}
		}

		for _, m := range current {
			if err := tx.DeleteMembership(ctx, m.ID); err != nil {
				return err
			}
		}
		return tx.DeleteAccount(ctx, accountID)
	})
}

func (g *Guard) changeMembershipOnce(ctx context.Context, membershipID uuid.UUID,
	apply func(context.Context, MembershipTx, *Membership) error, dropsAdmin bool) error {
	m, err := g.repo.GetMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	siteIDs := []uuid.UUID{m.SiteID}

	unlock, err := g.lockSites(ctx, siteIDs)
	if err != nil {
		return err
	}
	defer unlock()

	return g.repo.RunMembershipTx(ctx, func(ctx context.Context, tx MembershipTx) error {
		if err := tx.LockSites(ctx, siteIDs); err != nil {
			return err
		}
		current, err := tx.GetMembership(ctx, membershipID)
		if err != nil {
			return err
		}
		if current.IsAdmin() && dropsAdmin {
			ok, err := hasOtherAdmin(ctx, tx, current.SiteID, current.ID)
			if err != nil {
				return err
			}
			if !ok {
				return &IntegrityViolation{Message: LastAdminMessage, SiteIDs: siteIDs}
			}
		}
		return apply(ctx, tx, current)
	})
}

func (g *Guard) lockSites(ctx context.Context, siteIDs []uuid.UUID) (func(), error) {
	if g.locker == nil || len(siteIDs) == 0 {
		return func() {}, nil
	}
	release, err := g.locker.LockSites(ctx, siteIDs)
	if err != nil {
		return nil, err
	}
	return func() {
		// The release must run even when ctx is already done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			g.logger.Warn("failed to release site locks", "sites", siteIDs, "err", err)
		}
	}, nil
}

func hasOtherAdmin(ctx context.Context, tx MembershipTx, siteID, self uuid.UUID) (bool, error) {
	admins, err := tx.ListAdminMemberships(ctx, siteID)
	if err != nil {
		return false, err
	}
	for _, a := range admins {
		if a.ID != self {
			return true, nil
		}
	}
	return false, nil
}

// membershipSites returns the distinct site ids in ascending order.
func membershipSites(memberships []*Membership) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.SiteID)
	}
	SortIDs(ids)
	return slices.Compact(ids)
}

// SortIDs sorts ids in ascending byte order, the order sites are locked in.
func SortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
}
