/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the leave package.

ENDPOINTS:
  Requests:
    POST   /api/requests                         Create a request
    GET    /api/requests                         List (?user=&status=&type=)
    GET    /api/requests/{id}                    Get one request
    POST   /api/requests/{id}/accept             Manager or admin approval
    POST   /api/requests/{id}/refuse             Refuse with reason (refund)
    POST   /api/requests/{id}/cancel             Cancel (refund)
    POST   /api/requests/{id}/notified           Mark the owner notified
    GET    /api/requests/{id}/history            Status transitions
    GET    /api/requests/{id}/conflicts          Overlapping colleagues (?scope=)
    GET    /api/requests/{id}/conflicts/teams    Same, grouped by team

  Users:
    GET    /api/users                            List users
    GET    /api/users/{id}                       Get one user
    GET    /api/users/{id}/pools                 Pools with current amounts
    GET    /api/users/{id}/pools/{type}/history  Pool timeline (?year=)
    GET    /api/users/{id}/recovery-candidates   Weekend holidays to recover

  Calendar and admin:
    GET    /api/holidays/{country}/{year}        Public holidays
    POST   /api/admin/accruals                   Run the accrual job now

ACTOR:
  The acting user is read from the X-User-ID header. Authentication is
  handled in front of this service.

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status picked by statusFor:
  - 400: Validation errors, invalid input
  - 403: Actor not allowed
  - 404: Resource not found
  - 409: Invalid transition, request already started, duplicate key
  - 500: Data integrity and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// ActorHeader carries the id of the user performing the call.
const ActorHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo      leave.TxRepository
	Requests  *leave.RequestService
	Accruals  *leave.AccrualService
	Conflicts *leave.ConflictDetector
	Holidays  *calendar.Provider
	Clock     generic.Clock
	Logger    *slog.Logger

	scenarios *scenarioState
}

func NewHandler(
	repo leave.TxRepository,
	requests *leave.RequestService,
	accruals *leave.AccrualService,
	holidays *calendar.Provider,
	clock generic.Clock,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Repo:      repo,
		Requests:  requests,
		Accruals:  accruals,
		Conflicts: leave.NewConflictDetector(repo),
		Holidays:  holidays,
		Clock:     clock,
		Logger:    logger.With("component", "api"),
		scenarios: &scenarioState{},
	}
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// CreateRequest submits a request for the actor, or for body.user_id when
// an admin creates it on their behalf.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := generic.ParseDate(body.DateFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_from format (use YYYY-MM-DD)", err)
		return
	}
	to, err := generic.ParseDate(body.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_to format (use YYYY-MM-DD)", err)
		return
	}
	in := leave.CreateInput{
		ActorID:      actor,
		UserID:       leave.UserID(body.UserID),
		VacationType: body.VacationType,
		DateFrom:     from,
		DateTo:       to,
		Breakdown:    leave.Breakdown(strings.ToUpper(body.Breakdown)),
		Reason:       body.Reason,
	}
	if body.RecoveredHoliday != "" {
		if in.RecoveredHoliday, err = generic.ParseDate(body.RecoveredHoliday); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recovered_holiday format (use YYYY-MM-DD)", err)
			return
		}
	}

	req, err := h.Requests.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to create request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// ListRequests filters by ?user=, ?status= (comma separated) and ?type=.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f leave.RequestFilter
	if u := q.Get("user"); u != "" {
		f.UserIDs = []leave.UserID{leave.UserID(u)}
	}
	if s := q.Get("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			f.Statuses = append(f.Statuses, leave.Status(strings.ToUpper(strings.TrimSpace(st))))
		}
	}
	f.VacationType = q.Get("type")

	reqs, err := h.Repo.ListRequests(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list requests", err)
		return
	}
	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Get(r.Context(), requestID(r))
	if err != nil {
		h.fail(w, r, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, err := h.Requests.Accept(r.Context(), requestID(r), actor)
	if err != nil {
		h.fail(w, r, "Failed to accept request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

func (h *Handler) RefuseRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body RefuseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	req, err := h.Requests.Refuse(r.Context(), requestID(r), actor, body.Reason)
	if err != nil {
		h.fail(w, r, "Failed to refuse request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, err := h.Requests.Cancel(r.Context(), requestID(r), actor)
	if err != nil {
		h.fail(w, r, "Failed to cancel request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// MarkNotified is called by notifiers once the owner has been told.
func (h *Handler) MarkNotified(w http.ResponseWriter, r *http.Request) {
	if err := h.Requests.MarkNotified(r.Context(), requestID(r)); err != nil {
		h.fail(w, r, "Failed to mark request notified", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRequestHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.Requests.History(r.Context(), requestID(r))
	if err != nil {
		h.fail(w, r, "Failed to get request history", err)
		return
	}
	dtos := make([]RequestHistoryDTO, len(hist))
	for i, rec := range hist {
		dtos[i] = toRequestHistoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	scope, err := leave.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scope", err)
		return
	}
	conflicts, err := h.Conflicts.Conflicts(r.Context(), requestID(r), scope)
	if err != nil {
		h.fail(w, r, "Failed to compute conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, toConflictDTOs(conflicts))
}

func (h *Handler) GetConflictsByTeam(w http.ResponseWriter, r *http.Request) {
	byTeam, err := h.Conflicts.ByTeam(r.Context(), requestID(r))
	if err != nil {
		h.fail(w, r, "Failed to compute conflicts", err)
		return
	}
	out := make(map[string][]ConflictDTO, len(byTeam))
	for team, cs := range byTeam {
		out[team] = toConflictDTOs(cs)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Repo.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list users", err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Repo.GetUser(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) GetPools(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if _, err := h.Repo.GetUser(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	pools, err := h.Repo.UserPools(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get pools", err)
		return
	}
	dtos := make([]PoolDTO, len(pools))
	for i, up := range pools {
		dtos[i] = toPoolDTO(up)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPoolHistory returns the pool timeline for ?year= (default: this year).
func (h *Handler) GetPoolHistory(w http.ResponseWriter, r *http.Request) {
	year := generic.Today(h.Clock).Year()
	if y := r.URL.Query().Get("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = n
	}
	u, err := h.Repo.GetUser(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, "Failed to get user", err)
		return
	}
	rows, err := leave.NewPoolLedger(h.Repo, h.Clock).History(r.Context(), u, chi.URLParam(r, "type"), year)
	if err != nil {
		h.fail(w, r, "Failed to build pool history", err)
		return
	}
	dtos := make([]HistoryRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toHistoryRowDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRecoveryCandidates lists holidays recoverable at ?as_of= (default: today).
func (h *Handler) GetRecoveryCandidates(w http.ResponseWriter, r *http.Request) {
	asOf := generic.Today(h.Clock)
	if s := r.URL.Query().Get("as_of"); s != "" {
		var err error
		if asOf, err = generic.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
	}
	days, err := h.Requests.RecoveryCandidates(r.Context(), userID(r), asOf)
	if err != nil {
		h.fail(w, r, "Failed to list recovery candidates", err)
		return
	}
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// CALENDAR AND ADMIN
// =============================================================================

func (h *Handler) GetHolidays(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	list, err := h.Holidays.Named(r.Context(), strings.ToLower(chi.URLParam(r, "country")), year)
	if err != nil {
		h.fail(w, r, "Failed to list holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, toHolidayDTOs(list))
}

// RunAccruals runs the accrual job immediately. Admins only.
func (h *Handler) RunAccruals(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	report, err := h.Accruals.Run(r.Context())
	if err != nil {
		h.fail(w, r, "Accrual run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccrualRunDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func requestID(r *http.Request) leave.RequestID { return leave.RequestID(chi.URLParam(r, "id")) }
func userID(r *http.Request) leave.UserID       { return leave.UserID(chi.URLParam(r, "id")) }

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (leave.UserID, bool) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+ActorHeader+" header", nil)
		return "", false
	}
	return leave.UserID(id), true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	id, ok := h.actor(w, r)
	if !ok {
		return false
	}
	u, err := h.Repo.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get actor", err)
		return false
	}
	if !u.IsAdmin() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return false
	}
	return true
}

// fail maps a service error to a response. Server-side failures are logged;
// client errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message,
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}

	var ve *leave.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, status, ErrorResponse{Error: ve.Message, Code: ve.Rule})
		return
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case leave.IsValidation(err), errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, leave.ErrNotAllowed):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, leave.ErrInvalidTransition), errors.Is(err, leave.ErrRequestConsumed),
		errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
