/*
policy.go - Per-(vacation type, country) rules

PURPOSE:
  A Policy answers three questions for one (type, country) pair:
    - how much has a user accrued at a date
    - is a request acceptable given the user's pool snapshot
    - how many pool units does a number of days cost

  Only pairs with a registered policy get these checks. Requests of other
  types (Exceptionnel, Récupération, CP_us...) pass straight through and
  decrement whatever pools the user holds for the type.

REGISTRY:
  The Registry is built once at startup and never mutated afterwards.
  Lookups are by key "<type>_<country>", e.g. "CP_lu".

SEE ALSO:
  - policy_cp.go, policy_rtt.go, policy_compensatoire.go
  - schedule.go: accrual schedules
*/
package leave

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

type PolicyKey string

func KeyFor(vacationType, country string) PolicyKey {
	return PolicyKey(vacationType + "_" + country)
}

// ValidationInput is everything a policy may look at. Days is already in
// pool units (ConvertDays has been applied).
type ValidationInput struct {
	User     User
	Pools    PoolSnapshot
	Days     decimal.Decimal
	DateFrom generic.TimePoint
	DateTo   generic.TimePoint

	// Compensatoire only.
	RecoveredHoliday   generic.TimePoint
	RecoveryCandidates []generic.TimePoint
}

type Policy interface {
	Key() PolicyKey
	Unit() generic.Unit

	// Accrued returns the entitlement earned at a date, in days.
	// ok is false when the policy has no computed accrual.
	Accrued(user User, at generic.TimePoint) (amount decimal.Decimal, ok bool)

	// Validate returns nil when the request is acceptable.
	Validate(in ValidationInput) *ValidationError

	ConvertDays(days decimal.Decimal) decimal.Decimal

	// RequiredPools lists the pool keys Validate reads.
	RequiredPools() []string
}

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	byKey map[PolicyKey]Policy
	order []PolicyKey
}

func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{byKey: make(map[PolicyKey]Policy, len(policies))}
	for _, p := range policies {
		if _, dup := r.byKey[p.Key()]; dup {
			return nil, errors.Newf("leave: duplicate policy %s", p.Key())
		}
		r.byKey[p.Key()] = p
		r.order = append(r.order, p.Key())
	}
	return r, nil
}

func (r *Registry) Lookup(vacationType, country string) (Policy, bool) {
	p, ok := r.byKey[KeyFor(vacationType, country)]
	return p, ok
}

// Keys returns policy keys in registration order.
func (r *Registry) Keys() []PolicyKey {
	return append([]PolicyKey(nil), r.order...)
}

// PolicyConfig holds the tunable numbers of the built-in policies.
type PolicyConfig struct {
	RTTAnnualDays        decimal.Decimal
	LUCPNominalDays      decimal.Decimal
	LUHoursPerDay        decimal.Decimal
	LUSeniorityMonths    int
	RecoveryWindowMonths int // how long a recovered holiday stays usable
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		RTTAnnualDays:        decimal.NewFromInt(10),
		LUCPNominalDays:      decimal.NewFromInt(10),
		LUHoursPerDay:        decimal.NewFromInt(8),
		LUSeniorityMonths:    3,
		RecoveryWindowMonths: 3,
	}
}

// DefaultPolicies returns the built-in policies in registry order:
// CP_lu, CP_fr, RTT_fr, Compensatoire_lu.
func DefaultPolicies(cfg PolicyConfig, clock generic.Clock) []Policy {
	return []Policy{
		NewLuxembourgCP(cfg, clock),
		NewFranceCP(clock),
		NewFranceRTT(cfg),
		NewCompensatoire(cfg),
	}
}

// NewDefaultRegistry is NewRegistry(DefaultPolicies(...)...).
func NewDefaultRegistry(cfg PolicyConfig, clock generic.Clock) *Registry {
	r, err := NewRegistry(DefaultPolicies(cfg, clock)...)
	if err != nil {
		panic(err)
	}
	return r
}
