/*
stats.go - Chain-level statistics

PURPOSE:
  Totals and consumption aggregates derived from the same ordered set the
  recalculator walks. Pure; the store is never touched here.
*/
package engine

import "github.com/shopspring/decimal"

// ChainStats aggregates a vehicle's fillup chain.
//
// AverageConsumption is total fuel over total distance (per 100 units), not
// the mean of per-fillup values; that keeps it weighted by distance. Best is
// the lowest non-null per-fillup consumption, Worst the highest. All three
// are nil when no distance has been covered.
type ChainStats struct {
	FillupCount   int
	TotalFuel     decimal.Decimal
	TotalCost     decimal.Decimal
	TotalDistance decimal.Decimal

	AverageConsumption  *decimal.Decimal
	BestConsumption     *decimal.Decimal
	WorstConsumption    *decimal.Decimal
	AveragePricePerUnit decimal.Decimal
}

// Stats computes chain totals. Order does not matter; sums are commutative.
func Stats(fillups []Fillup) ChainStats {
	st := ChainStats{FillupCount: len(fillups)}

	for _, f := range fillups {
		st.TotalFuel = st.TotalFuel.Add(f.FuelAmount)
		st.TotalCost = st.TotalCost.Add(f.TotalPrice)
		st.TotalDistance = st.TotalDistance.Add(f.DistanceTraveled)

		if f.FuelConsumption == nil {
			continue
		}
		if st.BestConsumption == nil || f.FuelConsumption.LessThan(*st.BestConsumption) {
			st.BestConsumption = f.FuelConsumption
		}
		if st.WorstConsumption == nil || f.FuelConsumption.GreaterThan(*st.WorstConsumption) {
			st.WorstConsumption = f.FuelConsumption
		}
	}

	st.AverageConsumption = Consumption(st.TotalDistance, st.TotalFuel)
	st.AveragePricePerUnit = PricePerUnit(st.TotalCost, st.TotalFuel)
	return st
}
