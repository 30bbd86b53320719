/*
Package engine implements the fillup chain consistency engine.

PURPOSE:
  Keeps every fillup's distance_traveled and fuel_consumption correct and
  mutually consistent as records are inserted, edited, deleted, bulk-imported,
  or as the vehicle's baseline odometer changes - even when edits land out of
  chronological order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Vehicle: owns a baseline odometer and a fixed mileage mode
  - Fillup: one fuel purchase; derived fields recomputed by the engine
  - MileageMode: closed variant deciding which input the chain trusts
  - Chain order: (date, seq) ascending; seq is the store-assigned tie-break

DESIGN PRINCIPLES:
  1. Precision: all quantities use decimal.Decimal, never float64
  2. Closed variants: every mode branch is exhaustive over MileageMode
  3. Purity: derived fields are a function of (baseline, mode, ordered chain);
     the recalculator performs no I/O

SEE ALSO:
  - recalc.go: the full-chain recalculation walk
  - service.go: mutation operations that invoke it
  - store.go: persistence interface
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type VehicleID string
type FillupID string

// =============================================================================
// MILEAGE MODE - Closed, per-vehicle, immutable after creation
// =============================================================================

// MileageMode decides which mileage input a vehicle's fillups carry.
// OdometerMode records absolute readings and the engine derives distance;
// DistanceMode records distance directly and odometer stays null forever.
// The mode never changes after creation: switching mid-history would
// invalidate the meaning of every record in the chain.
type MileageMode string

const (
	OdometerMode MileageMode = "odometer"
	DistanceMode MileageMode = "distance"
)

func (m MileageMode) Valid() bool {
	return m == OdometerMode || m == DistanceMode
}

// =============================================================================
// VEHICLE
// =============================================================================

// Vehicle anchors a fillup chain. BaselineOdometer is the reading before any
// recorded fillup and acts as the virtual zeroth chain element.
type Vehicle struct {
	ID               VehicleID
	Name             string
	BaselineOdometer decimal.Decimal
	MileageMode      MileageMode
	CreatedAt        time.Time
}

// =============================================================================
// FILLUP
// =============================================================================

// Fillup is one fuel purchase.
//
// Odometer is present only in OdometerMode and always nil in DistanceMode.
// DistanceTraveled is derived in OdometerMode and authoritative user input in
// DistanceMode. FuelConsumption is nil when distance is zero or unknown.
type Fillup struct {
	ID        FillupID
	VehicleID VehicleID

	// Chain position. Seq is assigned by the store at insert time and breaks
	// same-day ties, so chain order is deterministic.
	Date time.Time
	Seq  int64

	FuelAmount decimal.Decimal
	TotalPrice decimal.Decimal
	Odometer   *decimal.Decimal

	// Derived fields (see package doc).
	DistanceTraveled decimal.Decimal
	FuelConsumption  *decimal.Decimal
	PricePerUnit     decimal.Decimal

	CreatedAt time.Time
}

// Before reports whether f precedes other in chain order.
func (f Fillup) Before(other Fillup) bool {
	if !f.Date.Equal(other.Date) {
		return f.Date.Before(other.Date)
	}
	return f.Seq < other.Seq
}

// SortChain orders fillups in place by (date, seq) ascending.
func SortChain(fillups []Fillup) {
	sort.SliceStable(fillups, func(i, j int) bool {
		return fillups[i].Before(fillups[j])
	})
}

// DecimalPtr returns a pointer to d. Convenience for nullable fields.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
