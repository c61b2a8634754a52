/*
request.go - Leave request service

PURPOSE:
  Creates requests and drives them through the lifecycle. Each operation
  is one unit of work: the request row, its history record and the ledger
  entries commit together or not at all.

CREATION CHECKS (first failure wins):
  1. period and day count (weekends and holidays excluded, AM/PM halves)
  2. no overlap with the user's active requests
  3. type applies to the user's country and is visible to the actor
  4. reason rules (Exceptionnel, Récupération) and the recovered holiday
     for Compensatoire
  --- inside the transaction, with the user locked ---
  5. overlap again, against requests committed since step 2
  6. the (type, country) policy, if one is registered, against the pool
     year holding the start date (or the current one when none does, so
     that out-of-window dates get the policy's window message)

SUDO:
  An admin creating a request for someone else gets it approved straight
  away (APPROVED_ADMIN, notified), with the admin recorded as sudo user.

SEE ALSO:
  - transitions.go: allowed status moves
  - ledger.go: decrement and refund
*/
package leave

import (
	"context"
	"log/slog"
	"maps"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

const maxReasonLength = 140

type RequestService struct {
	repo     TxRepository
	registry *Registry
	holidays HolidaySource
	clock    generic.Clock
	logger   *slog.Logger
}

func NewRequestService(repo TxRepository, registry *Registry, holidays HolidaySource, clock generic.Clock, logger *slog.Logger) *RequestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestService{
		repo:     repo,
		registry: registry,
		holidays: holidays,
		clock:    clock,
		logger:   logger.With("component", "requests"),
	}
}

// CreateInput is a request submission. UserID defaults to ActorID.
type CreateInput struct {
	ActorID          UserID
	UserID           UserID
	VacationType     string
	DateFrom         generic.TimePoint
	DateTo           generic.TimePoint
	Breakdown        Breakdown
	Reason           string
	RecoveredHoliday generic.TimePoint
}

// =============================================================================
// CREATE
// =============================================================================

func (s *RequestService) Create(ctx context.Context, in CreateInput) (Request, error) {
	actor, err := s.repo.GetUser(ctx, in.ActorID)
	if err != nil {
		return Request{}, err
	}
	target := actor
	sudo := false
	if in.UserID != "" && in.UserID != actor.ID {
		if !actor.IsAdmin() {
			return Request{}, errors.Wrapf(ErrNotAllowed, "%s cannot request for %s", actor.ID, in.UserID)
		}
		if target, err = s.repo.GetUser(ctx, in.UserID); err != nil {
			return Request{}, err
		}
		sudo = true
	}

	vt, err := s.repo.GetVacationType(ctx, in.VacationType)
	if err != nil {
		return Request{}, err
	}

	if in.DateTo.Before(in.DateFrom) {
		return Request{}, invalid("period", "Invalid format for period.")
	}
	holidays, err := HolidaysBetween(ctx, s.holidays, target.Country, in.DateFrom, in.DateTo)
	if err != nil {
		return Request{}, errors.Wrap(err, "load holidays")
	}
	count, ve := CountDays(in.DateFrom, in.DateTo, holidays, in.Breakdown)
	if ve != nil {
		return Request{}, ve
	}

	today := generic.Today(s.clock)
	now := s.clock.Now()
	status := StatusPending
	if sudo {
		status = StatusApprovedAdmin
	}
	req := Request{
		ID:               RequestID(uuid.NewString()),
		UserID:           target.ID,
		DateFrom:         in.DateFrom,
		DateTo:           in.DateTo,
		Days:             count.Days,
		Label:            count.Label,
		VacationType:     vt.Name,
		Status:           status,
		Notified:         sudo,
		RecoveredHoliday: in.RecoveredHoliday,
		LastActionUserID: actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := checkOverlap(ctx, s.repo, req); err != nil {
		return Request{}, err
	}
	if ve := checkTypeAllowed(actor, target, vt); ve != nil {
		return Request{}, ve
	}
	if req.Message, ve = checkReason(vt.Name, in); ve != nil {
		return Request{}, ve
	}

	err = s.repo.WithTx(ctx, func(tx Repository) error {
		all, err := tx.LockUserPools(ctx, target.ID)
		if err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, req); err != nil {
			return err
		}

		pools := poolsForRequest(all, vt.Name, in.DateFrom, today)

		amount := count.Days
		snapshot := NewPoolSnapshot(pools)
		if policy, ok := s.registry.Lookup(vt.Name, target.Country); ok {
			amount = policy.ConvertDays(count.Days)
			for _, key := range policy.RequiredPools() {
				if _, ok := snapshot[key]; !ok {
					return errors.Wrapf(ErrMissingPool, "%s needs pool %q for %s", policy.Key(), key, target.ID)
				}
			}
			vin := ValidationInput{
				User:             target,
				Pools:            snapshot,
				Days:             amount,
				DateFrom:         in.DateFrom,
				DateTo:           in.DateTo,
				RecoveredHoliday: in.RecoveredHoliday,
			}
			if vt.Name == TypeCompensatoire {
				if vin.RecoveryCandidates, err = s.openRecoveries(ctx, tx, target, today); err != nil {
					return err
				}
			}
			if ve := policy.Validate(vin); ve != nil {
				return ve
			}
		}

		req.PoolStatus = snapshot.Amounts()
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		h := s.historyRecord(req, req.PoolStatus, "", actor.ID, "")
		if sudo {
			h.SudoUserID = actor.ID
		}
		if err := tx.AppendHistory(ctx, h); err != nil {
			return err
		}
		_, err = NewPoolLedger(tx, s.clock).Decrement(ctx, req, pools, amount, today)
		return err
	})
	if err != nil {
		return Request{}, err
	}

	s.logger.Info("request created",
		"request", req.ID, "user", req.UserID, "type", req.VacationType,
		"days", req.Days.String(), "status", req.Status, "sudo", sudo)
	return req, nil
}

func checkTypeAllowed(actor, target User, vt VacationType) *ValidationError {
	notAllowed := func() *ValidationError {
		return invalid("visibility", "You are not allowed to use type: %s", vt.Name)
	}
	if !vt.AppliesTo(target.Country) {
		return notAllowed()
	}
	if !actor.IsAdmin() && !vt.VisibleTo(actor.Role) {
		return notAllowed()
	}
	if vt.Name == TypeRTT && target.HasFeature(FeatureDisableRTT) {
		return notAllowed()
	}
	return nil
}

// checkReason returns the message stored on the request.
func checkReason(typeName string, in CreateInput) (string, *ValidationError) {
	switch typeName {
	case TypeExceptionnel, TypeRecuperation:
		if typeName == TypeExceptionnel && in.Reason == "" {
			return "", invalid("reason", "You must provide a reason for %s requests", typeName)
		}
		if utf8.RuneCountInString(in.Reason) > maxReasonLength {
			return "", invalid("reason", "%s reason must not exceed %d characters", typeName, maxReasonLength)
		}
		return in.Reason, nil
	case TypeCompensatoire:
		if in.RecoveredHoliday.IsZero() {
			return "", invalid("recovered", "You must select a date for %s", typeName)
		}
		return in.RecoveredHoliday.DMY(), nil
	}
	return in.Reason, nil
}

// checkOverlap rejects a request sharing a day with one of the user's
// active requests. AM and PM halves of the same day do not overlap.
func checkOverlap(ctx context.Context, repo Repository, req Request) error {
	active, err := repo.ListRequests(ctx, RequestFilter{
		UserIDs:     []UserID{req.UserID},
		Statuses:    ActiveStatuses,
		Overlapping: &generic.Period{Start: req.DateFrom, End: req.DateTo},
	})
	if err != nil {
		return err
	}
	for _, other := range active {
		if Overlaps(req, other) {
			return invalid("overlap", "Invalid period: days already requested.")
		}
	}
	return nil
}

// poolsHolding keeps the pools of the type whose window holds day.
func poolsHolding(pools []UserPool, typeName string, day generic.TimePoint) []UserPool {
	var out []UserPool
	for _, up := range pools {
		if up.Pool.VacationType == typeName && up.Pool.Window.Contains(day) {
			out = append(out, up)
		}
	}
	return out
}

// poolsForRequest picks the pool year that validates and funds a request:
// the one holding the start date, else the one holding today, else the
// latest pool of each key. It is empty only when the user holds no pool
// of the type.
func poolsForRequest(pools []UserPool, typeName string, from, today generic.TimePoint) []UserPool {
	if out := poolsHolding(pools, typeName, from); len(out) > 0 {
		return out
	}
	if out := poolsHolding(pools, typeName, today); len(out) > 0 {
		return out
	}
	latest := make(map[string]UserPool)
	var keys []string
	for _, up := range pools {
		if up.Pool.VacationType != typeName {
			continue
		}
		key := up.Pool.Key()
		prev, seen := latest[key]
		if !seen {
			keys = append(keys, key)
		}
		if !seen || up.Pool.Window.End.After(prev.Pool.Window.End) {
			latest[key] = up
		}
	}
	out := make([]UserPool, 0, len(keys))
	for _, k := range keys {
		out = append(out, latest[k])
	}
	return out
}

// =============================================================================
// RECOVERY
// =============================================================================

// RecoveryCandidates lists the weekend holidays the user can still take
// back as Compensatoire days at asOf.
func (s *RequestService) RecoveryCandidates(ctx context.Context, userID UserID, asOf generic.TimePoint) ([]generic.TimePoint, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = generic.Today(s.clock)
	}
	return s.openRecoveries(ctx, s.repo, user, asOf)
}

// openRecoveries drops holidays already used by an active Compensatoire request.
func (s *RequestService) openRecoveries(ctx context.Context, repo Repository, user User, asOf generic.TimePoint) ([]generic.TimePoint, error) {
	candidates, err := RecoveryCandidates(ctx, s.holidays, user, asOf)
	if err != nil {
		return nil, err
	}
	used, err := repo.ListRequests(ctx, RequestFilter{
		UserIDs:      []UserID{user.ID},
		Statuses:     ActiveStatuses,
		VacationType: TypeCompensatoire,
	})
	if err != nil {
		return nil, err
	}
	taken := generic.NewDateSet()
	for _, r := range used {
		if !r.RecoveredHoliday.IsZero() {
			taken.Add(r.RecoveredHoliday)
		}
	}
	var out []generic.TimePoint
	for _, d := range candidates {
		if !taken.Has(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Accept moves a request one approval step forward. Admins approve
// outright; the user's manager can only accept a pending request.
func (s *RequestService) Accept(ctx context.Context, id RequestID, actorID UserID) (Request, error) {
	return s.transition(ctx, id, actorID, func(actor, owner User, req *Request) (Status, error) {
		switch {
		case actor.IsAdmin():
			if req.Status == StatusPending {
				req.Notified = true
			}
			return StatusApprovedAdmin, nil
		case actor.IsManagerOf(owner) && req.Status == StatusPending:
			return StatusAcceptedManager, nil
		}
		return "", errors.Wrapf(ErrNotAllowed, "%s cannot accept %s", actor.ID, req.ID)
	})
}

// Refuse denies a request and refunds its days.
func (s *RequestService) Refuse(ctx context.Context, id RequestID, actorID UserID, reason string) (Request, error) {
	return s.transition(ctx, id, actorID, func(actor, owner User, req *Request) (Status, error) {
		if !actor.IsAdmin() && !(actor.IsManagerOf(owner) && req.Status == StatusPending) {
			return "", errors.Wrapf(ErrNotAllowed, "%s cannot refuse %s", actor.ID, req.ID)
		}
		req.RefusalReason = reason
		return StatusDenied, nil
	})
}

// Cancel withdraws a request and refunds its days. Once the request has
// started only an admin may cancel it.
func (s *RequestService) Cancel(ctx context.Context, id RequestID, actorID UserID) (Request, error) {
	return s.transition(ctx, id, actorID, func(actor, owner User, req *Request) (Status, error) {
		if !actor.IsAdmin() {
			if actor.ID != owner.ID && !actor.IsManagerOf(owner) {
				return "", errors.Wrapf(ErrNotAllowed, "%s cannot cancel %s", actor.ID, req.ID)
			}
			if !req.DateFrom.After(generic.Today(s.clock)) {
				s.logger.Warn("cancel rejected: request already started",
					"request", req.ID, "actor", actor.ID, "date_from", req.DateFrom.String())
				return "", errors.Wrapf(ErrRequestConsumed, "request %s started %s", req.ID, req.DateFrom)
			}
		}
		return StatusCanceled, nil
	})
}

// Fail flags a request whose processing went wrong. Days are not refunded.
func (s *RequestService) Fail(ctx context.Context, id RequestID, reason string) (Request, error) {
	return s.transition(ctx, id, "", func(_, _ User, req *Request) (Status, error) {
		req.RefusalReason = reason
		return StatusError, nil
	})
}

// MarkNotified records that the approvers have been told about the request.
func (s *RequestService) MarkNotified(ctx context.Context, id RequestID) error {
	return s.repo.WithTx(ctx, func(tx Repository) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		req.Notified = true
		req.UpdatedAt = s.clock.Now()
		return tx.SaveRequest(ctx, req)
	})
}

func (s *RequestService) Get(ctx context.Context, id RequestID) (Request, error) {
	return s.repo.GetRequest(ctx, id)
}

func (s *RequestService) History(ctx context.Context, id RequestID) ([]RequestHistory, error) {
	if _, err := s.repo.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, id)
}

// decideFunc picks the target status and may adjust the request.
type decideFunc func(actor, owner User, req *Request) (Status, error)

// transition runs one status change as a unit of work. An empty actorID
// is the system.
func (s *RequestService) transition(ctx context.Context, id RequestID, actorID UserID, decide decideFunc) (Request, error) {
	var out Request
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		owner, err := tx.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		actor := User{}
		if actorID != "" {
			if actor, err = tx.GetUser(ctx, actorID); err != nil {
				return err
			}
		}

		from := req.Status
		to, err := decide(actor, owner, &req)
		if err != nil {
			return err
		}
		if !CanTransition(from, to) {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
		}

		pools, err := tx.LockUserPools(ctx, owner.ID)
		if err != nil {
			return err
		}
		today := generic.Today(s.clock)
		if to.refunds() {
			if _, err := NewPoolLedger(tx, s.clock).Refund(ctx, req, today, actorID); err != nil {
				return err
			}
			if pools, err = tx.UserPools(ctx, owner.ID); err != nil {
				return err
			}
		}

		req.Status = to
		req.LastActionUserID = actorID
		req.UpdatedAt = s.clock.Now()
		// req.PoolStatus stays the creation snapshot; the pools as they
		// stand after this transition go on the history record.
		current := NewPoolSnapshot(poolsForRequest(pools, req.VacationType, req.DateFrom, today)).Amounts()
		if err := tx.AppendHistory(ctx, s.historyRecord(req, current, from, actorID, req.RefusalReason)); err != nil {
			return err
		}
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	s.logger.Info("request transitioned",
		"request", out.ID, "status", out.Status, "actor", actorID)
	return out, nil
}

func (s *RequestService) historyRecord(req Request, pools map[string]decimal.Decimal, from Status, actor UserID, reason string) RequestHistory {
	return RequestHistory{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		OldStatus:  from,
		NewStatus:  req.Status,
		ActorID:    actor,
		PoolStatus: maps.Clone(pools),
		Reason:     reason,
		CreatedAt:  s.clock.Now(),
	}
}
