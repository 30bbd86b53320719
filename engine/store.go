/*
store.go - Persistence interface consumed by the engine

PURPOSE:
  The engine's only view of persistence. Mutation operations read the vehicle
  and its complete fillup set through this interface, apply their direct
  change, recalculate, and write back only the rows whose derived fields
  changed.

CONVENTIONS:
  - Missing records are (nil, nil), not an error; the service maps them to
    the not-found sentinels.
  - ListFillups order is NOT required; the recalculator sorts internally.
  - InsertFillup assigns Seq (the chain tie-break) and returns the stored
    record.

IMPLEMENTATIONS:
  - engine/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  production SQLite
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FieldPatch is a partial update to one fillup. Nil pointers mean "leave
// unchanged". ClearConsumption sets fuel_consumption to null (zero-distance
// rows); it wins over FuelConsumption when both are set.
type FieldPatch struct {
	Date             *time.Time
	FuelAmount       *decimal.Decimal
	TotalPrice       *decimal.Decimal
	Odometer         *decimal.Decimal
	DistanceTraveled *decimal.Decimal
	FuelConsumption  *decimal.Decimal
	ClearConsumption bool
	PricePerUnit     *decimal.Decimal
}

// Store is the record store adapter the engine reads from and writes to.
type Store interface {
	// Vehicles
	GetVehicle(ctx context.Context, id VehicleID) (*Vehicle, error)
	InsertVehicle(ctx context.Context, v Vehicle) error
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	UpdateVehicleBaseline(ctx context.Context, id VehicleID, newBaseline decimal.Decimal) error

	// Fillups
	ListFillups(ctx context.Context, vehicleID VehicleID) ([]Fillup, error)
	GetFillup(ctx context.Context, id FillupID) (*Fillup, error)
	InsertFillup(ctx context.Context, f Fillup) (Fillup, error)
	UpdateFillupFields(ctx context.Context, id FillupID, patch FieldPatch) error
	DeleteFillupByID(ctx context.Context, id FillupID) error
}

// BatchStore extends Store with atomic multi-record insert, used by batch
// import. Stores that don't implement it get row-by-row inserts instead.
type BatchStore interface {
	Store

	// InsertFillups persists all records atomically: either all are written
	// or none are. Seq assignment follows slice order.
	InsertFillups(ctx context.Context, fillups []Fillup) ([]Fillup, error)
}
