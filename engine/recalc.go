/*
recalc.go - Full-chain recalculation

PURPOSE:
  Recomputes every record's derived fields in one deterministic pass over a
  vehicle's COMPLETE fillup set and reports which records actually changed.

KEY INSIGHT:
  "Only recompute records after the edited row" is unsound: a date edit can
  move a record earlier or later in the chain, changing which records are its
  neighbors. Recomputing the whole ordered chain on every mutation is O(n),
  always correct, and idempotent - running it twice with no intervening change
  yields an empty patch list the second time.

ALGORITHM:
  1. Sort by (date, seq) ascending.
  2. reference := vehicle baseline odometer.
  3. Walk the chain:
     - OdometerMode with a reading: distance = max(0, reading - reference),
       warn on regression (raw delta < 0) or stagnation (raw delta == 0),
       then reference = reading regardless of warning.
     - Otherwise (DistanceMode, or a legitimately null reading): trust the
       stored distance and advance reference by it so any later reading still
       diffs against a sane anchor. The advanced reference is bookkeeping
       only; it is never persisted or exposed.
     - consumption = Consumption(distance, fuel).
  4. Emit a patch only when the recomputed value differs from the stored one
     beyond tolerance.

TOLERANCES:
  distance 0.1, consumption 0.01. They absorb floating rounding from
  decimal-place truncation elsewhere in the system; without them every run
  would re-write identical values forever.

PURITY:
  No I/O. All reads happen before the call, all writes after, via the store.

SEE ALSO:
  - service.go: runs this after every mutation and persists the patches
*/
package engine

import "github.com/shopspring/decimal"

var (
	distanceTolerance    = decimal.RequireFromString("0.1")
	consumptionTolerance = decimal.RequireFromString("0.01")
)

// =============================================================================
// PATCHES - What the walk decided must change
// =============================================================================

// Patch carries the recomputed derived fields for one fillup whose stored
// values differ beyond tolerance.
type Patch struct {
	FillupID         FillupID
	DistanceTraveled decimal.Decimal
	FuelConsumption  *decimal.Decimal
}

// RecalcResult is the outcome of one full-chain walk.
type RecalcResult struct {
	Updated  []Patch
	Warnings []Warning
}

// =============================================================================
// RECALCULATE - The single full-chain walk
// =============================================================================

// Recalculate walks the vehicle's complete fillup set in chain order and
// returns the patches needed to restore the chain invariant, plus any
// consistency warnings. The input slice is not modified.
func Recalculate(vehicle Vehicle, fillups []Fillup) RecalcResult {
	ordered := make([]Fillup, len(fillups))
	copy(ordered, fillups)
	SortChain(ordered)

	var result RecalcResult
	reference := vehicle.BaselineOdometer

	for _, f := range ordered {
		var newDistance decimal.Decimal

		if vehicle.MileageMode == OdometerMode && f.Odometer != nil {
			rawDelta := DistanceFromOdometers(*f.Odometer, reference)
			switch {
			case rawDelta.IsNegative():
				newDistance = decimal.Zero
				result.Warnings = append(result.Warnings, Warning{
					FillupID:  f.ID,
					Code:      WarnOdometerRegression,
					Odometer:  *f.Odometer,
					Reference: reference,
					Delta:     rawDelta,
				})
			case rawDelta.IsZero():
				newDistance = decimal.Zero
				result.Warnings = append(result.Warnings, Warning{
					FillupID:  f.ID,
					Code:      WarnOdometerStagnant,
					Odometer:  *f.Odometer,
					Reference: reference,
					Delta:     rawDelta,
				})
			default:
				newDistance = rawDelta
			}
			// Advance the chain regardless of warning.
			reference = *f.Odometer
		} else {
			// DistanceMode, or an OdometerMode record whose reading is
			// legitimately null (e.g. imported without one). The stored
			// distance is authoritative here; never derive it from a
			// neighboring record.
			newDistance = f.DistanceTraveled
			reference = reference.Add(newDistance)
		}

		newConsumption := Consumption(newDistance, f.FuelAmount)

		if !withinTolerance(newDistance, f.DistanceTraveled, distanceTolerance) ||
			!nullableWithinTolerance(newConsumption, f.FuelConsumption, consumptionTolerance) {
			result.Updated = append(result.Updated, Patch{
				FillupID:         f.ID,
				DistanceTraveled: newDistance,
				FuelConsumption:  newConsumption,
			})
		}
	}

	return result
}

func withinTolerance(a, b, tol decimal.Decimal) bool {
	return !a.Sub(b).Abs().GreaterThan(tol)
}

func nullableWithinTolerance(a, b *decimal.Decimal, tol decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return withinTolerance(*a, *b, tol)
}
