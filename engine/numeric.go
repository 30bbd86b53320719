/*
numeric.go - Pure numeric primitives for the fillup chain

PURPOSE:
  The three calculations everything else is built on. They are deliberately
  dumb: no chain knowledge, no clamping policy, no I/O.

DIVISION OF RESPONSIBILITY:
  DistanceFromOdometers returns the RAW signed delta. Clamping to the chain
  invariant (distance >= 0) belongs to the recalculator, which also needs the
  raw value to detect odometer regression for warnings.

SEE ALSO:
  - recalc.go: applies these along the ordered chain
*/
package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Consumption returns fuel per 100 distance units, or nil when distance is
// zero or negative (covers clamped and missing distances). Never divides by
// zero.
func Consumption(distance, fuelAmount decimal.Decimal) *decimal.Decimal {
	if !distance.IsPositive() {
		return nil
	}
	c := fuelAmount.Div(distance).Mul(hundred)
	return &c
}

// PricePerUnit returns totalPrice / fuelAmount, or zero when fuelAmount is
// not positive. Price-per-unit has no meaningful failure mode that should
// propagate as null; callers treat it as always present.
func PricePerUnit(totalPrice, fuelAmount decimal.Decimal) decimal.Decimal {
	if !fuelAmount.IsPositive() {
		return decimal.Zero
	}
	return totalPrice.Div(fuelAmount)
}

// DistanceFromOdometers returns current - reference, unclamped.
func DistanceFromOdometers(current, reference decimal.Decimal) decimal.Decimal {
	return current.Sub(reference)
}
