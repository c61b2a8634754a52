// Package leave implements employee leave on top of the generic ledger:
// entitlement pools, country policies (CP, RTT, Compensatoire), the
// request lifecycle and its ledger side effects.
package leave

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// USERS
// =============================================================================

type UserID string

type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// FeatureDisableRTT removes RTT from the types a user may request.
const FeatureDisableRTT = "disable_rtt"

type User struct {
	ID          UserID
	Login       string
	Name        string
	Country     string
	Role        Role
	ArrivalDate generic.TimePoint // seniority anchor
	ManagerID   UserID
	OrgUnit     string
	Teams       []string
	Features    []string
}

func (u User) IsAdmin() bool               { return u.Role == RoleAdmin }
func (u User) HasFeature(name string) bool { return slices.Contains(u.Features, name) }
func (u User) Entity() generic.EntityID    { return generic.EntityID(u.ID) }
func (u User) IsManagerOf(other User) bool { return other.ManagerID != "" && other.ManagerID == u.ID }

// =============================================================================
// VACATION TYPES
// =============================================================================

const (
	TypeCP            = "CP"
	TypeRTT           = "RTT"
	TypeExceptionnel  = "Exceptionnel"
	TypeCompensatoire = "Compensatoire"
	TypeRecuperation  = "Récupération"
)

type VacationType struct {
	Name       string
	Countries  []string
	Visibility []Role // empty: every role may use it
}

func (v VacationType) AppliesTo(country string) bool { return slices.Contains(v.Countries, country) }

func (v VacationType) VisibleTo(role Role) bool {
	return len(v.Visibility) == 0 || slices.Contains(v.Visibility, role)
}

// =============================================================================
// POOLS
// =============================================================================

// Pool names inside the CP group.
const (
	PoolAcquis  = "acquis"
	PoolRestant = "restant"
)

// Pool is an entitlement bucket for one vacation type and one pool year.
type Pool struct {
	ID           generic.PoolID
	Name         string
	VacationType string
	Country      string
	Group        string // e.g. "CP" links "CP acquis" and "CP restant"
	Window       generic.Period
	Unit         generic.Unit
}

// Key is how policies address a pool: "CP acquis" for grouped pools, the
// vacation type name otherwise.
func (p Pool) Key() string {
	if p.Group != "" {
		return p.Group + " " + p.Name
	}
	return p.VacationType
}

// UserPool is a pool assigned to a user with its current amount.
// Amount mirrors the ledger sum and is only changed by ledger appends.
type UserPool struct {
	UserID UserID
	Pool   Pool
	Amount decimal.Decimal
}

// PoolSnapshot indexes a user's pools by Pool.Key.
type PoolSnapshot map[string]UserPool

func NewPoolSnapshot(pools []UserPool) PoolSnapshot {
	s := make(PoolSnapshot, len(pools))
	for _, p := range pools {
		s[p.Pool.Key()] = p
	}
	return s
}

// Amounts is the audit form stored with requests and history.
func (s PoolSnapshot) Amounts() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s))
	for k, p := range s {
		out[k] = p.Amount
	}
	return out
}

// =============================================================================
// REQUESTS
// =============================================================================

type RequestID string

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAcceptedManager Status = "ACCEPTED_MANAGER"
	StatusApprovedAdmin   Status = "APPROVED_ADMIN"
	StatusDenied          Status = "DENIED"
	StatusCanceled        Status = "CANCELED"
	StatusError           Status = "ERROR"
)

// Half-day labels.
const (
	LabelAM = "AM"
	LabelPM = "PM"
)

type Request struct {
	ID               RequestID
	UserID           UserID
	DateFrom         generic.TimePoint
	DateTo           generic.TimePoint
	Days             decimal.Decimal
	Label            string
	VacationType     string
	Status           Status
	Notified         bool
	Message          string
	RecoveredHoliday generic.TimePoint // Compensatoire only
	RefusalReason    string
	PoolStatus       map[string]decimal.Decimal
	LastActionUserID UserID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (r Request) Period() generic.Period { return generic.Period{Start: r.DateFrom, End: r.DateTo} }

func (r Request) IsHalfDay() bool { return r.Label == LabelAM || r.Label == LabelPM }

// RequestHistory is written once per status transition and never changed.
type RequestHistory struct {
	ID         string
	RequestID  RequestID
	OldStatus  Status // empty for the creation record
	NewStatus  Status
	ActorID    UserID
	SudoUserID UserID
	PoolStatus map[string]decimal.Decimal
	Reason     string
	CreatedAt  time.Time
}
