/*
warnings.go - Non-fatal consistency warnings

PURPOSE:
  A warning flags a suspicious but saveable chain state. It never blocks a
  write; the record is saved (with distance clamped to zero where needed) and
  the caller decides how to surface it.

CODES:
  odometer_regression: a reading lower than its chain reference
  odometer_stagnant:   a reading equal to its chain reference

SEE ALSO:
  - errors.go: blocking errors, which warnings are explicitly not
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type WarningCode string

const (
	WarnOdometerRegression WarningCode = "odometer_regression"
	WarnOdometerStagnant   WarningCode = "odometer_stagnant"
)

// Warning describes a non-blocking consistency flag on a single fillup.
// Reference is the odometer value the record was compared against (previous
// record's reading, or the vehicle baseline for the first record); Delta is
// the raw signed difference.
type Warning struct {
	FillupID  FillupID
	Code      WarningCode
	Odometer  decimal.Decimal
	Reference decimal.Decimal
	Delta     decimal.Decimal
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: fillup %s odometer %s vs reference %s (delta %s)",
		w.Code, w.FillupID, w.Odometer, w.Reference, w.Delta)
}
