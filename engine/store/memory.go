// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tanklog/fillup-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	vehicles map[engine.VehicleID]engine.Vehicle
	fillups  map[engine.FillupID]engine.Fillup
	nextSeq  map[engine.VehicleID]int64
}

func NewMemory() *Memory {
	return &Memory{
		vehicles: make(map[engine.VehicleID]engine.Vehicle),
		fillups:  make(map[engine.FillupID]engine.Fillup),
		nextSeq:  make(map[engine.VehicleID]int64),
	}
}

func (m *Memory) GetVehicle(_ context.Context, id engine.VehicleID) (*engine.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vehicles[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) InsertVehicle(_ context.Context, v engine.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

func (m *Memory) ListVehicles(_ context.Context) ([]engine.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		result = append(result, v)
	}
	return result, nil
}

func (m *Memory) UpdateVehicleBaseline(_ context.Context, id engine.VehicleID, newBaseline decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[id]
	if !ok {
		return engine.ErrVehicleNotFound
	}
	v.BaselineOdometer = newBaseline
	m.vehicles[id] = v
	return nil
}

func (m *Memory) ListFillups(_ context.Context, vehicleID engine.VehicleID) ([]engine.Fillup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Fillup
	for _, f := range m.fillups {
		if f.VehicleID == vehicleID {
			result = append(result, cloneFillup(f))
		}
	}
	return result, nil
}

func (m *Memory) GetFillup(_ context.Context, id engine.FillupID) (*engine.Fillup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.fillups[id]
	if !ok {
		return nil, nil
	}
	c := cloneFillup(f)
	return &c, nil
}

func (m *Memory) InsertFillup(_ context.Context, f engine.Fillup) (engine.Fillup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(f), nil
}

// InsertFillups implements engine.BatchStore. Memory writes cannot fail
// halfway, so slice-order inserts are already atomic under the lock.
func (m *Memory) InsertFillups(_ context.Context, fillups []engine.Fillup) ([]engine.Fillup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]engine.Fillup, len(fillups))
	for i, f := range fillups {
		result[i] = m.insertLocked(f)
	}
	return result, nil
}

func (m *Memory) insertLocked(f engine.Fillup) engine.Fillup {
	m.nextSeq[f.VehicleID]++
	f.Seq = m.nextSeq[f.VehicleID]
	m.fillups[f.ID] = cloneFillup(f)
	return f
}

func (m *Memory) UpdateFillupFields(_ context.Context, id engine.FillupID, patch engine.FieldPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.fillups[id]
	if !ok {
		return engine.ErrFillupNotFound
	}

	if patch.Date != nil {
		f.Date = *patch.Date
	}
	if patch.FuelAmount != nil {
		f.FuelAmount = *patch.FuelAmount
	}
	if patch.TotalPrice != nil {
		f.TotalPrice = *patch.TotalPrice
	}
	if patch.Odometer != nil {
		f.Odometer = engine.DecimalPtr(*patch.Odometer)
	}
	if patch.DistanceTraveled != nil {
		f.DistanceTraveled = *patch.DistanceTraveled
	}
	if patch.ClearConsumption {
		f.FuelConsumption = nil
	} else if patch.FuelConsumption != nil {
		f.FuelConsumption = engine.DecimalPtr(*patch.FuelConsumption)
	}
	if patch.PricePerUnit != nil {
		f.PricePerUnit = *patch.PricePerUnit
	}

	m.fillups[id] = f
	return nil
}

func (m *Memory) DeleteFillupByID(_ context.Context, id engine.FillupID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.fillups[id]; !ok {
		return engine.ErrFillupNotFound
	}
	delete(m.fillups, id)
	return nil
}

// cloneFillup deep-copies the nullable fields so callers never alias store
// state.
func cloneFillup(f engine.Fillup) engine.Fillup {
	if f.Odometer != nil {
		f.Odometer = engine.DecimalPtr(*f.Odometer)
	}
	if f.FuelConsumption != nil {
		f.FuelConsumption = engine.DecimalPtr(*f.FuelConsumption)
	}
	return f
}
