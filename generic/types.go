/*
Package generic provides the ledger engine underneath leave pools.

PURPOSE:
  Domain-agnostic bookkeeping for time-bounded entitlements. An entity
  (an employee) holds pools (an entitlement bucket for one validity
  window), and every balance change to a pool is an immutable signed
  Entry. The leave package layers vacation semantics on top: which pools
  exist, who may draw from them and in which order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal quantity with a unit (days or hours)
  - Entry: An immutable ledger entry recording one balance change
  - EntityID / PoolID / EntryID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only compensated
  2. Precision: decimal.Decimal everywhere, so a refund restores the exact
     pre-decrement balance
  3. Ordering: entries replay by (EffectiveAt, Seq); Seq is assigned by
     the store at append time

USAGE:
  entry := generic.Entry{
      EntityID:    "u-42",
      PoolID:      "cp-acquis-2024",
      EffectiveAt: generic.NewTimePoint(2024, time.March, 4),
      Delta:       generic.NewAmount(-2.5, generic.UnitDays),
      Kind:        generic.EntryConsumption,
  }

SEE ALSO:
  - ledger.go: Append and balance replay
  - store.go: Persistence contract
  - time.go: TimePoint, day ranges, clocks
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type PoolID string
type EntryID string

// =============================================================================
// ENTRY - Atomic change to a pool balance
// =============================================================================

type EntryKind string

const (
	EntryAccrual     EntryKind = "accrual"     // Entitlement earned (monthly step, yearly grant)
	EntryConsumption EntryKind = "consumption" // Days reserved by a request
	EntryRefund      EntryKind = "refund"      // Inverse of a consumption (denied/canceled request)
	EntryAdjustment  EntryKind = "adjustment"  // Manual admin correction
)

// Entry is one signed balance change on one pool.
// Positive deltas are accruals or refunds, negative deltas are consumption.
type Entry struct {
	ID          EntryID
	EntityID    EntityID
	PoolID      PoolID
	EffectiveAt TimePoint
	Delta       Amount
	Kind        EntryKind

	// Name is the pool name the entry hit ("acquis", "restant", "RTT").
	Name string
	// Flavor is the label shown in history views.
	Flavor string

	ReferenceID    string // request id, when a request caused the entry
	IdempotencyKey string

	CreatedBy string
	CreatedAt TimePoint

	// Seq is the store-assigned append order, used to break date ties.
	Seq int64
}
