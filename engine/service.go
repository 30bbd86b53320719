/*
service.go - Mutation operations

PURPOSE:
  The orchestration layer over the record store. Each operation performs its
  direct effect on one record, then delegates to Recalculate over the FULL
  fillup set to restore global consistency, and persists only the rows whose
  derived fields actually changed.

OPERATIONS:
  CreateFillup           insert one record, recalculate
  UpdateFillup           partial edit, recalculate
  DeleteFillup           remove, recalculate the remainder
  BatchImportFillups     insert many, recalculate once
  ChangeVehicleBaseline  re-anchor the chain, recalculate

CONCURRENCY:
  Every mutation is a read-modify-recalculate-write critical section per
  vehicle: a keyed mutex serializes mutations on the same vehicle, while
  different vehicles proceed fully in parallel. Without this, a concurrent
  writer could invalidate the snapshot the recalculation read.

FAILURE SEMANTICS:
  Failure in the direct write is fatal and propagated. Failure while writing
  one of the recalculated chain entries is reported as a ChainWriteError with
  applied-vs-attempted counts; already-fixed rows stay committed.

SEE ALSO:
  - recalc.go: the walk every operation delegates to
  - errors.go: ValidationError / ChainWriteError
*/
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service executes mutation operations against a record store.
type Service struct {
	store Store

	mu    sync.Mutex
	locks map[VehicleID]*sync.Mutex
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		locks: make(map[VehicleID]*sync.Mutex),
	}
}

// lockVehicle serializes mutations per vehicle. Returns the unlock func.
func (s *Service) lockVehicle(id VehicleID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// =============================================================================
// INPUTS AND RESULTS
// =============================================================================

// VehicleInput creates a vehicle. MileageMode is immutable after creation.
type VehicleInput struct {
	Name             string
	BaselineOdometer decimal.Decimal
	MileageMode      MileageMode
}

// FillupInput carries the user-supplied fields for a new fillup. Exactly one
// of Odometer / DistanceTraveled must be set, matching the vehicle's mode.
type FillupInput struct {
	Date             time.Time
	FuelAmount       decimal.Decimal
	TotalPrice       decimal.Decimal
	Odometer         *decimal.Decimal
	DistanceTraveled *decimal.Decimal
}

// FillupUpdate is a partial edit; nil fields are left unchanged.
type FillupUpdate struct {
	Date             *time.Time
	FuelAmount       *decimal.Decimal
	TotalPrice       *decimal.Decimal
	Odometer         *decimal.Decimal
	DistanceTraveled *decimal.Decimal
}

// MutationResult is returned by every mutation operation.
//
// UpdatedEntries is the number of chain rows whose derived fields were
// actually rewritten by the recalculation, including the directly-edited
// record when its own derived fields changed. AttemptedEntries differs from
// UpdatedEntries only after a partial chain write failure.
type MutationResult struct {
	Fillup           *Fillup
	Imported         int
	UpdatedEntries   int
	AttemptedEntries int
	Warnings         []Warning
}

// =============================================================================
// VEHICLE OPERATIONS
// =============================================================================

func (s *Service) CreateVehicle(ctx context.Context, in VehicleInput) (Vehicle, error) {
	if in.Name == "" {
		return Vehicle{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !in.MileageMode.Valid() {
		return Vehicle{}, &ValidationError{Field: "mileage_mode", Reason: "must be odometer or distance"}
	}
	if in.BaselineOdometer.IsNegative() {
		return Vehicle{}, &ValidationError{Field: "baseline_odometer", Reason: "must not be negative"}
	}

	v := Vehicle{
		ID:               VehicleID(uuid.NewString()),
		Name:             in.Name,
		BaselineOdometer: in.BaselineOdometer,
		MileageMode:      in.MileageMode,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.InsertVehicle(ctx, v); err != nil {
		return Vehicle{}, err
	}
	return v, nil
}

func (s *Service) GetVehicle(ctx context.Context, id VehicleID) (Vehicle, error) {
	v, err := s.vehicle(ctx, id)
	if err != nil {
		return Vehicle{}, err
	}
	return *v, nil
}

func (s *Service) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	return s.store.ListVehicles(ctx)
}

// ListFillups returns the vehicle's fillups in chain order.
func (s *Service) ListFillups(ctx context.Context, vehicleID VehicleID) ([]Fillup, error) {
	if _, err := s.vehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	fillups, err := s.store.ListFillups(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	SortChain(fillups)
	return fillups, nil
}

// VehicleStats derives chain totals for one vehicle.
func (s *Service) VehicleStats(ctx context.Context, vehicleID VehicleID) (ChainStats, error) {
	if _, err := s.vehicle(ctx, vehicleID); err != nil {
		return ChainStats{}, err
	}
	fillups, err := s.store.ListFillups(ctx, vehicleID)
	if err != nil {
		return ChainStats{}, err
	}
	return Stats(fillups), nil
}

// ChangeVehicleBaseline re-anchors the chain. This is the only operation that
// can change the first chronological fillup's distance without any fillup
// being edited.
func (s *Service) ChangeVehicleBaseline(ctx context.Context, vehicleID VehicleID, newBaseline decimal.Decimal) (MutationResult, error) {
	if newBaseline.IsNegative() {
		return MutationResult{}, &ValidationError{Field: "baseline_odometer", Reason: "must not be negative"}
	}

	unlock := s.lockVehicle(vehicleID)
	defer unlock()

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return MutationResult{}, err
	}

	if err := s.store.UpdateVehicleBaseline(ctx, vehicleID, newBaseline); err != nil {
		return MutationResult{}, err
	}
	v.BaselineOdometer = newBaseline

	return s.recalculateAndApply(ctx, v, nil)
}

// =============================================================================
// FILLUP OPERATIONS
// =============================================================================

// CreateFillup validates the input against the vehicle's mode, computes the
// new record's own derived fields against its chain predecessor (or the
// baseline), persists it, then recalculates the full chain.
func (s *Service) CreateFillup(ctx context.Context, vehicleID VehicleID, in FillupInput) (MutationResult, error) {
	unlock := s.lockVehicle(vehicleID)
	defer unlock()

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return MutationResult{}, err
	}
	if err := validateFillupInput(v, in); err != nil {
		return MutationResult{}, err
	}

	existing, err := s.store.ListFillups(ctx, vehicleID)
	if err != nil {
		return MutationResult{}, err
	}

	record := s.newRecord(v, in, existing)
	created, err := s.store.InsertFillup(ctx, record)
	if err != nil {
		return MutationResult{}, err
	}

	result, err := s.recalculateAndApply(ctx, v, &created)
	result.Fillup = &created
	return result, err
}

// UpdateFillup applies only the supplied fields, then recalculates. An edit
// to odometer, date, fuel amount, or price can affect the whole downstream
// chain; the recalculation handles reordering by date transparently.
func (s *Service) UpdateFillup(ctx context.Context, vehicleID VehicleID, fillupID FillupID, upd FillupUpdate) (MutationResult, error) {
	unlock := s.lockVehicle(vehicleID)
	defer unlock()

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return MutationResult{}, err
	}
	existing, err := s.fillup(ctx, vehicleID, fillupID)
	if err != nil {
		return MutationResult{}, err
	}
	if err := validateFillupUpdate(v, upd); err != nil {
		return MutationResult{}, err
	}

	direct := FieldPatch{
		Date:             upd.Date,
		FuelAmount:       upd.FuelAmount,
		TotalPrice:       upd.TotalPrice,
		Odometer:         upd.Odometer,
		DistanceTraveled: upd.DistanceTraveled,
	}

	// Price per unit is chain-independent; recompute it here, not in the walk.
	if upd.FuelAmount != nil || upd.TotalPrice != nil {
		fuel := existing.FuelAmount
		if upd.FuelAmount != nil {
			fuel = *upd.FuelAmount
		}
		price := existing.TotalPrice
		if upd.TotalPrice != nil {
			price = *upd.TotalPrice
		}
		ppu := PricePerUnit(price, fuel)
		direct.PricePerUnit = &ppu
	}

	if err := s.store.UpdateFillupFields(ctx, fillupID, direct); err != nil {
		return MutationResult{}, err
	}

	result, applyErr := s.recalculateAndApply(ctx, v, nil)

	updated, err := s.store.GetFillup(ctx, fillupID)
	if err != nil {
		return result, err
	}
	result.Fillup = updated
	return result, applyErr
}

// DeleteFillup removes the record and recalculates the remaining chain.
func (s *Service) DeleteFillup(ctx context.Context, vehicleID VehicleID, fillupID FillupID) (MutationResult, error) {
	unlock := s.lockVehicle(vehicleID)
	defer unlock()

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return MutationResult{}, err
	}
	if _, err := s.fillup(ctx, vehicleID, fillupID); err != nil {
		return MutationResult{}, err
	}

	if err := s.store.DeleteFillupByID(ctx, fillupID); err != nil {
		return MutationResult{}, err
	}

	return s.recalculateAndApply(ctx, v, nil)
}

// BatchImportFillups inserts all records in one batch and recalculates once
// over the full resulting set. Every imported record is interpreted under the
// vehicle's single mileage mode; fuel consumption is left unset and filled in
// by the recalculation.
func (s *Service) BatchImportFillups(ctx context.Context, vehicleID VehicleID, inputs []FillupInput) (MutationResult, error) {
	unlock := s.lockVehicle(vehicleID)
	defer unlock()

	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return MutationResult{}, err
	}
	for _, in := range inputs {
		if err := validateImportInput(v, in); err != nil {
			return MutationResult{}, err
		}
	}

	records := make([]Fillup, len(inputs))
	for i, in := range inputs {
		records[i] = Fillup{
			ID:           FillupID(uuid.NewString()),
			VehicleID:    vehicleID,
			Date:         in.Date.UTC(),
			FuelAmount:   in.FuelAmount,
			TotalPrice:   in.TotalPrice,
			PricePerUnit: PricePerUnit(in.TotalPrice, in.FuelAmount),
			CreatedAt:    time.Now().UTC(),
		}
		switch v.MileageMode {
		case OdometerMode:
			// A row may arrive without a reading; its distance (if any) is
			// then trusted as-is and the walk advances the reference by it.
			records[i].Odometer = in.Odometer
			if in.Odometer == nil && in.DistanceTraveled != nil {
				records[i].DistanceTraveled = *in.DistanceTraveled
			}
		case DistanceMode:
			records[i].DistanceTraveled = *in.DistanceTraveled
		}
	}

	if batch, ok := s.store.(BatchStore); ok {
		if _, err := batch.InsertFillups(ctx, records); err != nil {
			return MutationResult{}, err
		}
	} else {
		for _, r := range records {
			if _, err := s.store.InsertFillup(ctx, r); err != nil {
				return MutationResult{}, err
			}
		}
	}

	result, err := s.recalculateAndApply(ctx, v, nil)
	result.Imported = len(records)
	return result, err
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) vehicle(ctx context.Context, id VehicleID) (*Vehicle, error) {
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVehicleNotFound
	}
	return v, nil
}

func (s *Service) fillup(ctx context.Context, vehicleID VehicleID, id FillupID) (*Fillup, error) {
	f, err := s.store.GetFillup(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil || f.VehicleID != vehicleID {
		return nil, ErrFillupNotFound
	}
	return f, nil
}

// recalculateAndApply runs the full-chain walk over the vehicle's current set
// and persists every patch. tracked, when non-nil, is kept in sync with any
// patch targeting it so callers can return the fresh record without a reload.
func (s *Service) recalculateAndApply(ctx context.Context, v *Vehicle, tracked *Fillup) (MutationResult, error) {
	fillups, err := s.store.ListFillups(ctx, v.ID)
	if err != nil {
		return MutationResult{}, err
	}

	recalc := Recalculate(*v, fillups)
	result := MutationResult{
		AttemptedEntries: len(recalc.Updated),
		Warnings:         recalc.Warnings,
	}

	for i, p := range recalc.Updated {
		fp := FieldPatch{DistanceTraveled: &p.DistanceTraveled}
		if p.FuelConsumption != nil {
			fp.FuelConsumption = p.FuelConsumption
		} else {
			fp.ClearConsumption = true
		}
		if err := s.store.UpdateFillupFields(ctx, p.FillupID, fp); err != nil {
			result.UpdatedEntries = i
			return result, &ChainWriteError{Applied: i, Attempted: len(recalc.Updated), Cause: err}
		}
		if tracked != nil && tracked.ID == p.FillupID {
			tracked.DistanceTraveled = p.DistanceTraveled
			tracked.FuelConsumption = p.FuelConsumption
		}
	}
	result.UpdatedEntries = len(recalc.Updated)
	return result, nil
}

// newRecord builds a fillup with its own derived fields computed against the
// immediately preceding record in chain order, or the baseline if none. The
// follow-up recalculation fixes anything downstream.
func (s *Service) newRecord(v *Vehicle, in FillupInput, existing []Fillup) Fillup {
	f := Fillup{
		ID:           FillupID(uuid.NewString()),
		VehicleID:    v.ID,
		Date:         in.Date.UTC(),
		FuelAmount:   in.FuelAmount,
		TotalPrice:   in.TotalPrice,
		PricePerUnit: PricePerUnit(in.TotalPrice, in.FuelAmount),
		CreatedAt:    time.Now().UTC(),
	}

	switch v.MileageMode {
	case OdometerMode:
		f.Odometer = in.Odometer
		ordered := make([]Fillup, len(existing))
		copy(ordered, existing)
		SortChain(ordered)

		// Same-day ties sort after existing records (the new record gets the
		// highest seq), so every record dated at or before the new one is a
		// potential reference.
		reference := v.BaselineOdometer
		for _, prev := range ordered {
			if prev.Date.After(f.Date) {
				break
			}
			if prev.Odometer != nil {
				reference = *prev.Odometer
			} else {
				reference = reference.Add(prev.DistanceTraveled)
			}
		}

		raw := DistanceFromOdometers(*in.Odometer, reference)
		if raw.IsNegative() {
			f.DistanceTraveled = decimal.Zero
		} else {
			f.DistanceTraveled = raw
		}
	case DistanceMode:
		f.DistanceTraveled = *in.DistanceTraveled
	}

	f.FuelConsumption = Consumption(f.DistanceTraveled, f.FuelAmount)
	return f
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateFillupInput(v *Vehicle, in FillupInput) error {
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if !in.FuelAmount.IsPositive() {
		return &ValidationError{Field: "fuel_amount", Reason: "must be positive"}
	}
	if in.TotalPrice.IsNegative() {
		return &ValidationError{Field: "total_price", Reason: "must not be negative"}
	}

	switch v.MileageMode {
	case OdometerMode:
		if in.DistanceTraveled != nil {
			return &ValidationError{Field: "distance_traveled", Reason: "not accepted for an odometer-mode vehicle"}
		}
		if in.Odometer == nil {
			return &ValidationError{Field: "odometer", Reason: "is required for an odometer-mode vehicle"}
		}
		if in.Odometer.IsNegative() {
			return &ValidationError{Field: "odometer", Reason: "must not be negative"}
		}
	case DistanceMode:
		if in.Odometer != nil {
			return &ValidationError{Field: "odometer", Reason: "not accepted for a distance-mode vehicle"}
		}
		if in.DistanceTraveled == nil {
			return &ValidationError{Field: "distance_traveled", Reason: "is required for a distance-mode vehicle"}
		}
		if in.DistanceTraveled.IsNegative() {
			return &ValidationError{Field: "distance_traveled", Reason: "must not be negative"}
		}
	default:
		return &ValidationError{Field: "mileage_mode", Reason: "unknown mode"}
	}
	return nil
}

// validateImportInput is validateFillupInput relaxed for import sources: an
// odometer-mode row without a reading may carry a distance instead (never
// both).
func validateImportInput(v *Vehicle, in FillupInput) error {
	if v.MileageMode != OdometerMode || in.Odometer != nil {
		return validateFillupInput(v, in)
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if !in.FuelAmount.IsPositive() {
		return &ValidationError{Field: "fuel_amount", Reason: "must be positive"}
	}
	if in.TotalPrice.IsNegative() {
		return &ValidationError{Field: "total_price", Reason: "must not be negative"}
	}
	if in.DistanceTraveled != nil && in.DistanceTraveled.IsNegative() {
		return &ValidationError{Field: "distance_traveled", Reason: "must not be negative"}
	}
	return nil
}

func validateFillupUpdate(v *Vehicle, upd FillupUpdate) error {
	if upd.Date != nil && upd.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "must not be zero"}
	}
	if upd.FuelAmount != nil && !upd.FuelAmount.IsPositive() {
		return &ValidationError{Field: "fuel_amount", Reason: "must be positive"}
	}
	if upd.TotalPrice != nil && upd.TotalPrice.IsNegative() {
		return &ValidationError{Field: "total_price", Reason: "must not be negative"}
	}

	switch v.MileageMode {
	case OdometerMode:
		if upd.DistanceTraveled != nil {
			return &ValidationError{Field: "distance_traveled", Reason: "not accepted for an odometer-mode vehicle"}
		}
		if upd.Odometer != nil && upd.Odometer.IsNegative() {
			return &ValidationError{Field: "odometer", Reason: "must not be negative"}
		}
	case DistanceMode:
		if upd.Odometer != nil {
			return &ValidationError{Field: "odometer", Reason: "not accepted for a distance-mode vehicle"}
		}
		if upd.DistanceTraveled != nil && upd.DistanceTraveled.IsNegative() {
			return &ValidationError{Field: "distance_traveled", Reason: "must not be negative"}
		}
	default:
		return &ValidationError{Field: "mileage_mode", Reason: "unknown mode"}
	}
	return nil
}
