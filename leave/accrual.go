package leave

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/warp/leave-engine/generic"
)

// AccrualService tops up accrual-driven pools to what the policy says the
// user has earned today. Running it twice on the same day writes nothing
// the second time.
type AccrualService struct {
	repo     TxRepository
	registry *Registry
	clock    generic.Clock
	logger   *slog.Logger
}

func NewAccrualService(repo TxRepository, registry *Registry, clock generic.Clock, logger *slog.Logger) *AccrualService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccrualService{repo: repo, registry: registry, clock: clock, logger: logger.With("component", "accrual")}
}

// AccrualReport summarizes one run.
type AccrualReport struct {
	Date    generic.TimePoint
	Users   int
	Entries int
	Failed  []UserID
}

// Run processes every user. A failing user is logged and skipped; the
// other users still commit.
func (s *AccrualService) Run(ctx context.Context) (AccrualReport, error) {
	today := generic.Today(s.clock)
	report := AccrualReport{Date: today}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return report, errors.Wrap(err, "list users")
	}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := s.RunUser(ctx, u, today)
		if err != nil {
			s.logger.Error("accrual failed", "user", u.ID, "error", err)
			report.Failed = append(report.Failed, u.ID)
			continue
		}
		report.Users++
		report.Entries += n
	}

	s.logger.Info("accrual run complete",
		"date", today.String(), "users", report.Users, "entries", report.Entries, "failed", len(report.Failed))
	return report, nil
}

// RunUser accrues one user's pools as of at and returns the number of
// entries written.
func (s *AccrualService) RunUser(ctx context.Context, user User, at generic.TimePoint) (int, error) {
	written := 0
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		written = 0
		pools, err := tx.LockUserPools(ctx, user.ID)
		if err != nil {
			return err
		}
		ledger := NewPoolLedger(tx, s.clock)

		for _, up := range pools {
			if !up.Pool.Window.Contains(at) || up.Pool.Name == PoolRestant {
				continue
			}
			policy, ok := s.registry.Lookup(up.Pool.VacationType, user.Country)
			if !ok {
				continue
			}
			earned, ok := policy.Accrued(user, at)
			if !ok {
				continue
			}
			target := policy.ConvertDays(earned)

			granted, err := ledger.Granted(ctx, user.ID, up.Pool, at)
			if err != nil {
				return err
			}

			delta := target.Sub(granted)
			if !delta.IsPositive() {
				continue
			}
			_, err = ledger.Append(ctx, AppendInput{
				User:           user.ID,
				Pool:           up.Pool,
				Delta:          delta,
				Date:           at,
				Kind:           generic.EntryAccrual,
				Flavor:         "accrual",
				IdempotencyKey: fmt.Sprintf("accrual:%s:%s:%s", user.ID, up.Pool.ID, at),
			})
			if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
				continue
			}
			if err != nil {
				return err
			}
			written++
		}
		return nil
	})
	return written, err
}
