/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API. Domain types carry generic.TimePoint and
  decimal.Decimal; here dates become "YYYY-MM-DD" strings and amounts
  decimal strings ("12.5"), so no precision is lost on the wire.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the leave package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/seed"
)

// =============================================================================
// USERS AND POOLS
// =============================================================================

type UserDTO struct {
	ID          string   `json:"id"`
	Login       string   `json:"login"`
	Name        string   `json:"name"`
	Country     string   `json:"country"`
	Role        string   `json:"role"`
	ArrivalDate string   `json:"arrival_date"`
	ManagerID   string   `json:"manager_id,omitempty"`
	OrgUnit     string   `json:"org_unit,omitempty"`
	Teams       []string `json:"teams,omitempty"`
}

type PoolDTO struct {
	ID           string          `json:"id"`
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	VacationType string          `json:"vacation_type"`
	Start        string          `json:"start"`
	End          string          `json:"end"`
	Unit         string          `json:"unit"`
	Amount       decimal.Decimal `json:"amount"`
}

type HistoryRowDTO struct {
	Date      string          `json:"date"`
	Value     decimal.Decimal `json:"value"`
	Name      string          `json:"name"`
	Flavor    string          `json:"flavor"`
	Kind      string          `json:"kind"`
	RequestID string          `json:"request_id,omitempty"`
	Restant   decimal.Decimal `json:"restant"`
	Acquis    decimal.Decimal `json:"acquis"`
	Balance   decimal.Decimal `json:"balance"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequestRequest submits a leave request. UserID defaults to the actor;
// an admin setting it to someone else creates the request on their behalf.
type CreateRequestRequest struct {
	UserID           string `json:"user_id,omitempty"`
	VacationType     string `json:"vacation_type"`
	DateFrom         string `json:"date_from"`
	DateTo           string `json:"date_to"`
	Breakdown        string `json:"breakdown,omitempty"` // FULL, AM or PM
	Reason           string `json:"reason,omitempty"`
	RecoveredHoliday string `json:"recovered_holiday,omitempty"`
}

type RefuseRequest struct {
	Reason string `json:"reason"`
}

type RequestDTO struct {
	ID               string                     `json:"id"`
	UserID           string                     `json:"user_id"`
	VacationType     string                     `json:"vacation_type"`
	DateFrom         string                     `json:"date_from"`
	DateTo           string                     `json:"date_to"`
	Days             decimal.Decimal            `json:"days"`
	Label            string                     `json:"label,omitempty"`
	Status           string                     `json:"status"`
	Notified         bool                       `json:"notified"`
	Message          string                     `json:"message,omitempty"`
	RecoveredHoliday string                     `json:"recovered_holiday,omitempty"`
	RefusalReason    string                     `json:"refusal_reason,omitempty"`
	PoolStatus       map[string]decimal.Decimal `json:"pool_status,omitempty"`
	LastActionUserID string                     `json:"last_action_user_id,omitempty"`
	CreatedAt        string                     `json:"created_at"`
	UpdatedAt        string                     `json:"updated_at"`
}

type RequestHistoryDTO struct {
	OldStatus  string                     `json:"old_status,omitempty"`
	NewStatus  string                     `json:"new_status"`
	ActorID    string                     `json:"actor_id"`
	SudoUserID string                     `json:"sudo_user_id,omitempty"`
	PoolStatus map[string]decimal.Decimal `json:"pool_status,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
	CreatedAt  string                     `json:"created_at"`
}

type ConflictDTO struct {
	User    UserDTO    `json:"user"`
	Request RequestDTO `json:"request"`
}

// =============================================================================
// CALENDAR, ACCRUALS, SCENARIOS
// =============================================================================

type HolidayDTO struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type AccrualRunDTO struct {
	Date    string   `json:"date"`
	Users   int      `json:"users"`
	Entries int      `json:"entries"`
	Failed  []string `json:"failed,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	ScenarioID string      `json:"scenario_id"`
	Report     seed.Report `json:"report"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u leave.User) UserDTO {
	return UserDTO{
		ID:          string(u.ID),
		Login:       u.Login,
		Name:        u.Name,
		Country:     u.Country,
		Role:        string(u.Role),
		ArrivalDate: u.ArrivalDate.String(),
		ManagerID:   string(u.ManagerID),
		OrgUnit:     u.OrgUnit,
		Teams:       u.Teams,
	}
}

func toPoolDTO(up leave.UserPool) PoolDTO {
	return PoolDTO{
		ID:           string(up.Pool.ID),
		Key:          up.Pool.Key(),
		Name:         up.Pool.Name,
		VacationType: up.Pool.VacationType,
		Start:        up.Pool.Window.Start.String(),
		End:          up.Pool.Window.End.String(),
		Unit:         string(up.Pool.Unit),
		Amount:       up.Amount,
	}
}

func toHistoryRowDTO(r leave.HistoryRow) HistoryRowDTO {
	return HistoryRowDTO{
		Date:      r.Date.String(),
		Value:     r.Value,
		Name:      r.Name,
		Flavor:    r.Flavor,
		Kind:      string(r.Kind),
		RequestID: string(r.RequestID),
		Restant:   r.Restant,
		Acquis:    r.Acquis,
		Balance:   r.Balance,
	}
}

func toRequestDTO(r leave.Request) RequestDTO {
	dto := RequestDTO{
		ID:               string(r.ID),
		UserID:           string(r.UserID),
		VacationType:     r.VacationType,
		DateFrom:         r.DateFrom.String(),
		DateTo:           r.DateTo.String(),
		Days:             r.Days,
		Label:            r.Label,
		Status:           string(r.Status),
		Notified:         r.Notified,
		Message:          r.Message,
		RefusalReason:    r.RefusalReason,
		PoolStatus:       r.PoolStatus,
		LastActionUserID: string(r.LastActionUserID),
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        r.UpdatedAt.Format(time.RFC3339),
	}
	if !r.RecoveredHoliday.IsZero() {
		dto.RecoveredHoliday = r.RecoveredHoliday.String()
	}
	return dto
}

func toRequestHistoryDTO(h leave.RequestHistory) RequestHistoryDTO {
	return RequestHistoryDTO{
		OldStatus:  string(h.OldStatus),
		NewStatus:  string(h.NewStatus),
		ActorID:    string(h.ActorID),
		SudoUserID: string(h.SudoUserID),
		PoolStatus: h.PoolStatus,
		Reason:     h.Reason,
		CreatedAt:  h.CreatedAt.Format(time.RFC3339),
	}
}

func toConflictDTOs(cs []leave.Conflict) []ConflictDTO {
	out := make([]ConflictDTO, len(cs))
	for i, c := range cs {
		out[i] = ConflictDTO{User: toUserDTO(c.User), Request: toRequestDTO(c.Request)}
	}
	return out
}

func toHolidayDTOs(hs []calendar.Holiday) []HolidayDTO {
	out := make([]HolidayDTO, len(hs))
	for i, h := range hs {
		out[i] = HolidayDTO{Date: h.Date.String(), Name: h.Name}
	}
	return out
}

func toAccrualRunDTO(r leave.AccrualReport) AccrualRunDTO {
	dto := AccrualRunDTO{Date: r.Date.String(), Users: r.Users, Entries: r.Entries}
	for _, id := range r.Failed {
		dto.Failed = append(dto.Failed, string(id))
	}
	return dto
}
