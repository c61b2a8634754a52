package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUESTS
// =============================================================================

const selectRequests = `
	SELECT id, user_id, date_from, date_to, days::text, label, vacation_type, status, notified,
	       message, recovered_holiday, refusal_reason, pool_status, last_action_user_id,
	       created_at, updated_at
	  FROM requests`

func (r *repo) GetRequest(ctx context.Context, id leave.RequestID) (leave.Request, error) {
	req, err := scanRequest(r.q.QueryRow(ctx, selectRequests+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	return req, err
}

func (r *repo) SaveRequest(ctx context.Context, req leave.Request) error {
	poolStatus, err := encodePoolStatus(req.PoolStatus)
	if err != nil {
		return err
	}
	var recovered *time.Time
	if !req.RecoveredHoliday.IsZero() {
		recovered = &req.RecoveredHoliday.Time
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO requests (
			id, user_id, date_from, date_to, days, label, vacation_type, status, notified,
			message, recovered_holiday, refusal_reason, pool_status, last_action_user_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			notified = EXCLUDED.notified,
			message = EXCLUDED.message,
			refusal_reason = EXCLUDED.refusal_reason,
			pool_status = EXCLUDED.pool_status,
			last_action_user_id = EXCLUDED.last_action_user_id,
			updated_at = EXCLUDED.updated_at`,
		string(req.ID), string(req.UserID), req.DateFrom.Time, req.DateTo.Time, req.Days.String(),
		req.Label, req.VacationType, string(req.Status), req.Notified, req.Message, recovered,
		req.RefusalReason, poolStatus, string(req.LastActionUserID), req.CreatedAt, req.UpdatedAt)
	return errors.Wrapf(translatePgError(err), "save request %s", req.ID)
}

// ListRequests translates the filter into positional arguments.
func (r *repo) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.UserIDs) > 0 {
		where = append(where, "user_id = ANY("+arg(toStrings(f.UserIDs))+")")
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(toStrings(f.Statuses))+")")
	}
	if f.VacationType != "" {
		where = append(where, "vacation_type = "+arg(f.VacationType))
	}
	if f.Overlapping != nil {
		where = append(where, "date_from <= "+arg(f.Overlapping.End.Time)+" AND date_to >= "+arg(f.Overlapping.Start.Time))
	}

	query := selectRequests
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_from, id"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	defer rows.Close()

	var out []leave.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (leave.Request, error) {
	var (
		id, userID, days, label, vacationType, status string
		message, refusal, lastAction                  string
		from, to, createdAt, updatedAt                time.Time
		recovered                                     *time.Time
		notified                                      bool
		poolStatus                                    []byte
	)
	if err := row.Scan(&id, &userID, &from, &to, &days, &label, &vacationType, &status, &notified,
		&message, &recovered, &refusal, &poolStatus, &lastAction, &createdAt, &updatedAt); err != nil {
		return leave.Request{}, err
	}
	n, err := decimal.NewFromString(days)
	if err != nil {
		return leave.Request{}, errors.Wrapf(err, "request %s days", id)
	}
	ps, err := decodePoolStatus(poolStatus)
	if err != nil {
		return leave.Request{}, errors.Wrapf(err, "request %s pool status", id)
	}
	req := leave.Request{
		ID:               leave.RequestID(id),
		UserID:           leave.UserID(userID),
		DateFrom:         generic.DateOf(from),
		DateTo:           generic.DateOf(to),
		Days:             n,
		Label:            label,
		VacationType:     vacationType,
		Status:           leave.Status(status),
		Notified:         notified,
		Message:          message,
		RefusalReason:    refusal,
		PoolStatus:       ps,
		LastActionUserID: leave.UserID(lastAction),
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
	if recovered != nil {
		req.RecoveredHoliday = generic.DateOf(*recovered)
	}
	return req, nil
}

// =============================================================================
// REQUEST HISTORY
// =============================================================================

func (r *repo) AppendHistory(ctx context.Context, h leave.RequestHistory) error {
	poolStatus, err := encodePoolStatus(h.PoolStatus)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO request_history (
			id, request_id, old_status, new_status, actor_id, sudo_user_id, pool_status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, string(h.RequestID), string(h.OldStatus), string(h.NewStatus),
		string(h.ActorID), string(h.SudoUserID), poolStatus, h.Reason, h.CreatedAt)
	return errors.Wrapf(translatePgError(err), "append history for %s", h.RequestID)
}

func (r *repo) ListHistory(ctx context.Context, id leave.RequestID) ([]leave.RequestHistory, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, request_id, old_status, new_status, actor_id, sudo_user_id, pool_status, reason, created_at
		  FROM request_history
		 WHERE request_id = $1
		 ORDER BY seq`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()

	var out []leave.RequestHistory
	for rows.Next() {
		var (
			hid, requestID, oldStatus, newStatus, actor, sudo, reason string
			poolStatus                                                []byte
			createdAt                                                 time.Time
		)
		if err := rows.Scan(&hid, &requestID, &oldStatus, &newStatus, &actor, &sudo,
			&poolStatus, &reason, &createdAt); err != nil {
			return nil, err
		}
		ps, err := decodePoolStatus(poolStatus)
		if err != nil {
			return nil, err
		}
		out = append(out, leave.RequestHistory{
			ID:         hid,
			RequestID:  leave.RequestID(requestID),
			OldStatus:  leave.Status(oldStatus),
			NewStatus:  leave.Status(newStatus),
			ActorID:    leave.UserID(actor),
			SudoUserID: leave.UserID(sudo),
			PoolStatus: ps,
			Reason:     reason,
			CreatedAt:  createdAt,
		})
	}
	return out, rows.Err()
}

// pool_status is stored as {"CP acquis": "9.5"}: strings keep the decimal
// exact through JSONB.
func encodePoolStatus(m map[string]decimal.Decimal) ([]byte, error) {
	raw := make(map[string]string, len(m))
	for k, v := range m {
		raw[k] = v.String()
	}
	return json.Marshal(raw)
}

func decodePoolStatus(b []byte) (map[string]decimal.Decimal, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}
