/*
Package sqlite provides the SQLite-backed record store adapter.

PURPOSE:
  Implements engine.Store (and engine.BatchStore) on SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  vehicles: one row per vehicle (baseline odometer, mileage mode)
  fillups:  one row per fuel purchase, including derived fields

DECIMALS:
  All quantities are stored as TEXT and parsed with shopspring/decimal, so
  values round-trip exactly. REAL columns would reintroduce the float noise
  the engine's tolerances exist to absorb.

SEQ ASSIGNMENT:
  Each fillup gets a per-vehicle monotonically increasing seq at insert time
  (MAX(seq)+1 under the store mutex). Seq is the chain tie-break for
  same-day records, so it must never be reused or reordered.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/tanklog.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  svc := engine.NewService(st)

SEE ALSO:
  - engine/store.go: interface definitions
  - engine/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tanklog/fillup-engine/engine"
)

// Store implements engine.BatchStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		baseline_odometer TEXT NOT NULL,
		mileage_mode TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fillups (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
		date TEXT NOT NULL,
		seq INTEGER NOT NULL,
		fuel_amount TEXT NOT NULL,
		total_price TEXT NOT NULL,
		odometer TEXT,
		distance_traveled TEXT NOT NULL,
		fuel_consumption TEXT,
		price_per_unit TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Chain walks load a vehicle's full set; keep that one path indexed.
	CREATE INDEX IF NOT EXISTS idx_fillups_vehicle_date
		ON fillups(vehicle_id, date, seq);

	-- Seq is the chain tie-break; it must stay unique per vehicle.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_fillups_vehicle_seq
		ON fillups(vehicle_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// VEHICLES
// =============================================================================

func (s *Store) GetVehicle(ctx context.Context, id engine.VehicleID) (*engine.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, baseline_odometer, mileage_mode, created_at
		FROM vehicles WHERE id = ?`, string(id))

	v, err := scanVehicle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) InsertVehicle(ctx context.Context, v engine.Vehicle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, name, baseline_odometer, mileage_mode, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(v.ID), v.Name, v.BaselineOdometer.String(), string(v.MileageMode),
		v.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) ListVehicles(ctx context.Context) ([]engine.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, baseline_odometer, mileage_mode, created_at
		FROM vehicles ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []engine.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

func (s *Store) UpdateVehicleBaseline(ctx context.Context, id engine.VehicleID, newBaseline decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vehicles SET baseline_odometer = ? WHERE id = ?`,
		newBaseline.String(), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrVehicleNotFound
	}
	return nil
}

// =============================================================================
// FILLUPS
// =============================================================================

const fillupColumns = `id, vehicle_id, date, seq, fuel_amount, total_price,
	odometer, distance_traveled, fuel_consumption, price_per_unit, created_at`

func (s *Store) ListFillups(ctx context.Context, vehicleID engine.VehicleID) ([]engine.Fillup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fillupColumns+` FROM fillups WHERE vehicle_id = ? ORDER BY date, seq`,
		string(vehicleID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []engine.Fillup
	for rows.Next() {
		f, err := scanFillup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	return result, rows.Err()
}

func (s *Store) GetFillup(ctx context.Context, id engine.FillupID) (*engine.Fillup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fillupColumns+` FROM fillups WHERE id = ?`, string(id))

	f, err := scanFillup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) InsertFillup(ctx context.Context, f engine.Fillup) (engine.Fillup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engine.Fillup{}, err
	}
	defer tx.Rollback()

	inserted, err := insertFillupTx(ctx, tx, f)
	if err != nil {
		return engine.Fillup{}, err
	}
	if err := tx.Commit(); err != nil {
		return engine.Fillup{}, err
	}
	return inserted, nil
}

// InsertFillups implements engine.BatchStore: all records are written in one
// transaction, in slice order.
func (s *Store) InsertFillups(ctx context.Context, fillups []engine.Fillup) ([]engine.Fillup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result := make([]engine.Fillup, len(fillups))
	for i, f := range fillups {
		inserted, err := insertFillupTx(ctx, tx, f)
		if err != nil {
			return nil, err
		}
		result[i] = inserted
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertFillupTx(ctx context.Context, tx *sql.Tx, f engine.Fillup) (engine.Fillup, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM fillups WHERE vehicle_id = ?`,
		string(f.VehicleID)).Scan(&seq)
	if err != nil {
		return engine.Fillup{}, err
	}
	f.Seq = seq

	var odometer, consumption any
	if f.Odometer != nil {
		odometer = f.Odometer.String()
	}
	if f.FuelConsumption != nil {
		consumption = f.FuelConsumption.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fillups (`+fillupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(f.ID), string(f.VehicleID), f.Date.UTC().Format(time.RFC3339Nano), f.Seq,
		f.FuelAmount.String(), f.TotalPrice.String(), odometer,
		f.DistanceTraveled.String(), consumption, f.PricePerUnit.String(),
		f.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return engine.Fillup{}, err
	}
	return f, nil
}

func (s *Store) UpdateFillupFields(ctx context.Context, id engine.FillupID, patch engine.FieldPatch) error {
	var sets []string
	var args []any

	if patch.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, patch.Date.UTC().Format(time.RFC3339Nano))
	}
	if patch.FuelAmount != nil {
		sets = append(sets, "fuel_amount = ?")
		args = append(args, patch.FuelAmount.String())
	}
	if patch.TotalPrice != nil {
		sets = append(sets, "total_price = ?")
		args = append(args, patch.TotalPrice.String())
	}
	if patch.Odometer != nil {
		sets = append(sets, "odometer = ?")
		args = append(args, patch.Odometer.String())
	}
	if patch.DistanceTraveled != nil {
		sets = append(sets, "distance_traveled = ?")
		args = append(args, patch.DistanceTraveled.String())
	}
	if patch.ClearConsumption {
		sets = append(sets, "fuel_consumption = NULL")
	} else if patch.FuelConsumption != nil {
		sets = append(sets, "fuel_consumption = ?")
		args = append(args, patch.FuelConsumption.String())
	}
	if patch.PricePerUnit != nil {
		sets = append(sets, "price_per_unit = ?")
		args = append(args, patch.PricePerUnit.String())
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, string(id))

	res, err := s.db.ExecContext(ctx,
		`UPDATE fillups SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrFillupNotFound
	}
	return nil
}

func (s *Store) DeleteFillupByID(ctx context.Context, id engine.FillupID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fillups WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrFillupNotFound
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*engine.Vehicle, error) {
	var id, name, baseline, mode, createdAt string
	if err := row.Scan(&id, &name, &baseline, &mode, &createdAt); err != nil {
		return nil, err
	}

	baselineDec, err := decimal.NewFromString(baseline)
	if err != nil {
		return nil, fmt.Errorf("corrupt baseline_odometer for vehicle %s: %w", id, err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for vehicle %s: %w", id, err)
	}

	return &engine.Vehicle{
		ID:               engine.VehicleID(id),
		Name:             name,
		BaselineOdometer: baselineDec,
		MileageMode:      engine.MileageMode(mode),
		CreatedAt:        created,
	}, nil
}

func scanFillup(row rowScanner) (*engine.Fillup, error) {
	var (
		id, vehicleID, date, fuelAmount, totalPrice string
		distance, pricePerUnit, createdAt           string
		odometer, consumption                       sql.NullString
		seq                                         int64
	)
	if err := row.Scan(&id, &vehicleID, &date, &seq, &fuelAmount, &totalPrice,
		&odometer, &distance, &consumption, &pricePerUnit, &createdAt); err != nil {
		return nil, err
	}

	f := &engine.Fillup{
		ID:        engine.FillupID(id),
		VehicleID: engine.VehicleID(vehicleID),
		Seq:       seq,
	}

	var err error
	if f.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return nil, fmt.Errorf("corrupt date for fillup %s: %w", id, err)
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for fillup %s: %w", id, err)
	}
	if f.FuelAmount, err = decimal.NewFromString(fuelAmount); err != nil {
		return nil, fmt.Errorf("corrupt fuel_amount for fillup %s: %w", id, err)
	}
	if f.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
		return nil, fmt.Errorf("corrupt total_price for fillup %s: %w", id, err)
	}
	if f.DistanceTraveled, err = decimal.NewFromString(distance); err != nil {
		return nil, fmt.Errorf("corrupt distance_traveled for fillup %s: %w", id, err)
	}
	if f.PricePerUnit, err = decimal.NewFromString(pricePerUnit); err != nil {
		return nil, fmt.Errorf("corrupt price_per_unit for fillup %s: %w", id, err)
	}
	if odometer.Valid {
		d, err := decimal.NewFromString(odometer.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt odometer for fillup %s: %w", id, err)
		}
		f.Odometer = &d
	}
	if consumption.Valid {
		d, err := decimal.NewFromString(consumption.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt fuel_consumption for fillup %s: %w", id, err)
		}
		f.FuelConsumption = &d
	}

	return f, nil
}
