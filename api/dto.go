/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's decimal-based model from the external API contract: clients
  speak float64 JSON numbers, the engine speaks decimal.Decimal, and the
  conversion (with 2-decimal rounding of user input) happens here and only
  here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - engine: the domain model these types wrap
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tanklog/fillup-engine/engine"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// VehicleDTO represents a vehicle in API responses.
type VehicleDTO struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BaselineOdometer float64 `json:"baseline_odometer"`
	MileageMode      string  `json:"mileage_mode"`
	CreatedAt        string  `json:"created_at,omitempty"`
}

// CreateVehicleRequest is the request to create a vehicle.
type CreateVehicleRequest struct {
	Name             string  `json:"name"`
	BaselineOdometer float64 `json:"baseline_odometer"`
	MileageMode      string  `json:"mileage_mode"`
}

// BaselineRequest is the request to change a vehicle's baseline odometer.
type BaselineRequest struct {
	BaselineOdometer float64 `json:"baseline_odometer"`
}

// FillupDTO represents a fillup in API responses.
type FillupDTO struct {
	ID               string   `json:"id"`
	VehicleID        string   `json:"vehicle_id"`
	Date             string   `json:"date"`
	FuelAmount       float64  `json:"fuel_amount"`
	TotalPrice       float64  `json:"total_price"`
	Odometer         *float64 `json:"odometer,omitempty"`
	DistanceTraveled float64  `json:"distance_traveled"`
	FuelConsumption  *float64 `json:"fuel_consumption,omitempty"`
	PricePerUnit     float64  `json:"price_per_unit"`
}

// CreateFillupRequest is the request to record a fillup. Exactly one of
// odometer / distance_traveled is accepted, matching the vehicle's mode.
type CreateFillupRequest struct {
	Date             string   `json:"date"`
	FuelAmount       float64  `json:"fuel_amount"`
	TotalPrice       float64  `json:"total_price"`
	Odometer         *float64 `json:"odometer,omitempty"`
	DistanceTraveled *float64 `json:"distance_traveled,omitempty"`
}

// UpdateFillupRequest is a partial edit; absent fields are left unchanged.
type UpdateFillupRequest struct {
	Date             *string  `json:"date,omitempty"`
	FuelAmount       *float64 `json:"fuel_amount,omitempty"`
	TotalPrice       *float64 `json:"total_price,omitempty"`
	Odometer         *float64 `json:"odometer,omitempty"`
	DistanceTraveled *float64 `json:"distance_traveled,omitempty"`
}

// ImportFillupsRequest is the request to bulk-import already-parsed records.
type ImportFillupsRequest struct {
	Fillups []CreateFillupRequest `json:"fillups"`
}

// WarningDTO is a non-fatal consistency flag attached to a mutation response.
type WarningDTO struct {
	FillupID  string  `json:"fillup_id"`
	Code      string  `json:"code"`
	Odometer  float64 `json:"odometer"`
	Reference float64 `json:"reference"`
	Delta     float64 `json:"delta"`
}

// MutationResponseDTO is returned by every mutation endpoint.
type MutationResponseDTO struct {
	Fillup           *FillupDTO   `json:"fillup,omitempty"`
	Imported         int          `json:"imported,omitempty"`
	UpdatedEntries   int          `json:"updated_entries"`
	AttemptedEntries int          `json:"attempted_entries"`
	Warnings         []WarningDTO `json:"warnings"`
}

// StatsDTO summarizes a vehicle's fillup chain.
type StatsDTO struct {
	FillupCount         int      `json:"fillup_count"`
	TotalFuel           float64  `json:"total_fuel"`
	TotalCost           float64  `json:"total_cost"`
	TotalDistance       float64  `json:"total_distance"`
	AverageConsumption  *float64 `json:"average_consumption,omitempty"`
	BestConsumption     *float64 `json:"best_consumption,omitempty"`
	WorstConsumption    *float64 `json:"worst_consumption,omitempty"`
	AveragePricePerUnit float64  `json:"average_price_per_unit"`
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

// userDecimal converts client input the way the rest of the system hands
// values to the engine: rounded to 2 decimals.
func userDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func userDecimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := userDecimal(*f)
	return &d
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

func toVehicleDTO(v engine.Vehicle) VehicleDTO {
	baseline, _ := v.BaselineOdometer.Float64()
	return VehicleDTO{
		ID:               string(v.ID),
		Name:             v.Name,
		BaselineOdometer: baseline,
		MileageMode:      string(v.MileageMode),
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
	}
}

func toFillupDTO(f engine.Fillup) FillupDTO {
	fuel, _ := f.FuelAmount.Float64()
	price, _ := f.TotalPrice.Float64()
	distance, _ := f.DistanceTraveled.Float64()
	ppu, _ := f.PricePerUnit.Float64()
	return FillupDTO{
		ID:               string(f.ID),
		VehicleID:        string(f.VehicleID),
		Date:             f.Date.Format(time.RFC3339),
		FuelAmount:       fuel,
		TotalPrice:       price,
		Odometer:         floatPtr(f.Odometer),
		DistanceTraveled: distance,
		FuelConsumption:  floatPtr(f.FuelConsumption),
		PricePerUnit:     ppu,
	}
}

func toFillupDTOs(fillups []engine.Fillup) []FillupDTO {
	dtos := make([]FillupDTO, len(fillups))
	for i, f := range fillups {
		dtos[i] = toFillupDTO(f)
	}
	return dtos
}

func toWarningDTOs(warnings []engine.Warning) []WarningDTO {
	dtos := make([]WarningDTO, len(warnings))
	for i, w := range warnings {
		odometer, _ := w.Odometer.Float64()
		reference, _ := w.Reference.Float64()
		delta, _ := w.Delta.Float64()
		dtos[i] = WarningDTO{
			FillupID:  string(w.FillupID),
			Code:      string(w.Code),
			Odometer:  odometer,
			Reference: reference,
			Delta:     delta,
		}
	}
	return dtos
}

func toMutationResponse(res engine.MutationResult) MutationResponseDTO {
	dto := MutationResponseDTO{
		Imported:         res.Imported,
		UpdatedEntries:   res.UpdatedEntries,
		AttemptedEntries: res.AttemptedEntries,
		Warnings:         toWarningDTOs(res.Warnings),
	}
	if res.Fillup != nil {
		f := toFillupDTO(*res.Fillup)
		dto.Fillup = &f
	}
	return dto
}

func toStatsDTO(st engine.ChainStats) StatsDTO {
	fuel, _ := st.TotalFuel.Float64()
	cost, _ := st.TotalCost.Float64()
	distance, _ := st.TotalDistance.Float64()
	ppu, _ := st.AveragePricePerUnit.Float64()
	return StatsDTO{
		FillupCount:         st.FillupCount,
		TotalFuel:           fuel,
		TotalCost:           cost,
		TotalDistance:       distance,
		AverageConsumption:  floatPtr(st.AverageConsumption),
		BestConsumption:     floatPtr(st.BestConsumption),
		WorstConsumption:    floatPtr(st.WorstConsumption),
		AveragePricePerUnit: ppu,
	}
}
