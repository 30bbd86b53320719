package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanklog/fillup-engine/engine"
	"github.com/tanklog/fillup-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestService(t *testing.T) (*engine.Service, context.Context) {
	t.Helper()
	return engine.NewService(store.NewMemory()), context.Background()
}

func mustCreateVehicle(t *testing.T, svc *engine.Service, ctx context.Context, mode engine.MileageMode, baseline float64) engine.Vehicle {
	t.Helper()
	v, err := svc.CreateVehicle(ctx, engine.VehicleInput{
		Name:             "tester",
		BaselineOdometer: dec(baseline),
		MileageMode:      mode,
	})
	require.NoError(t, err)
	return v
}

func mustCreateOdoFillup(t *testing.T, svc *engine.Service, ctx context.Context, vid engine.VehicleID, d int, odometer, fuel, price float64) engine.MutationResult {
	t.Helper()
	res, err := svc.CreateFillup(ctx, vid, engine.FillupInput{
		Date:       day(d),
		FuelAmount: dec(fuel),
		TotalPrice: dec(price),
		Odometer:   engine.DecimalPtr(dec(odometer)),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Fillup)
	return res
}

// =============================================================================
// VEHICLES
// =============================================================================

func TestCreateVehicle_RejectsUnknownMode(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.CreateVehicle(ctx, engine.VehicleInput{Name: "x", MileageMode: "teleport"})
	assert.True(t, engine.IsClientError(err))
}

func TestGetVehicle_Unknown_ReturnsNotFound(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.GetVehicle(ctx, "nope")
	assert.ErrorIs(t, err, engine.ErrVehicleNotFound)
}

// =============================================================================
// CREATE FILLUP
// =============================================================================

func TestCreateFillup_OdometerMode_DerivesFromBaseline(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 10000)

	res := mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 10500, 50, 75)

	f := res.Fillup
	assert.True(t, approxEqual(f.DistanceTraveled, 500), "distance: %v", f.DistanceTraveled)
	require.NotNil(t, f.FuelConsumption)
	assert.True(t, approxEqual(*f.FuelConsumption, 10), "consumption: %v", f.FuelConsumption)
	assert.True(t, approxEqual(f.PricePerUnit, 1.5), "price per unit: %v", f.PricePerUnit)
	// The new record was built consistent, so the follow-up walk had nothing
	// to rewrite.
	assert.Zero(t, res.UpdatedEntries)
	assert.Empty(t, res.Warnings)
}

func TestCreateFillup_ModeFieldMismatch_Rejected(t *testing.T) {
	svc, ctx := newTestService(t)
	odoV := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)
	distV := mustCreateVehicle(t, svc, ctx, engine.DistanceMode, 0)

	// Odometer-mode vehicle given a distance.
	_, err := svc.CreateFillup(ctx, odoV.ID, engine.FillupInput{
		Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60),
		DistanceTraveled: engine.DecimalPtr(dec(300)),
	})
	assert.True(t, engine.IsClientError(err))

	// Odometer-mode vehicle given neither.
	_, err = svc.CreateFillup(ctx, odoV.ID, engine.FillupInput{
		Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60),
	})
	assert.True(t, engine.IsClientError(err))

	// Distance-mode vehicle given an odometer reading.
	_, err = svc.CreateFillup(ctx, distV.ID, engine.FillupInput{
		Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60),
		Odometer: engine.DecimalPtr(dec(500)),
	})
	assert.True(t, engine.IsClientError(err))
}

func TestCreateFillup_BackdatedInsert_UpdatesSuccessor(t *testing.T) {
	// GIVEN: one fillup at day 10 (odometer 1500, distance 1500 from baseline 0)
	// WHEN: a fillup is inserted at day 7 with odometer 950
	// THEN: the day-10 record is rewritten to distance 550

	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	a := mustCreateOdoFillup(t, svc, ctx, v.ID, 10, 1500, 55, 80)
	res := mustCreateOdoFillup(t, svc, ctx, v.ID, 7, 950, 47.5, 70)

	assert.Equal(t, 1, res.UpdatedEntries)

	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, fillups, 2)
	// Chain order: the backdated record first.
	assert.Equal(t, res.Fillup.ID, fillups[0].ID)
	assert.Equal(t, a.Fillup.ID, fillups[1].ID)
	assert.True(t, approxEqual(fillups[1].DistanceTraveled, 550), "distance: %v", fillups[1].DistanceTraveled)
	require.NotNil(t, fillups[1].FuelConsumption)
	assert.True(t, approxEqual(*fillups[1].FuelConsumption, 10))
}

func TestCreateFillup_RegressingReading_SavedWithWarning(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 1000)

	res := mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 800, 40, 60)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, engine.WarnOdometerRegression, res.Warnings[0].Code)
	assert.True(t, res.Fillup.DistanceTraveled.IsZero())
	assert.Nil(t, res.Fillup.FuelConsumption)

	// The record is persisted despite the warning.
	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, fillups, 1)
}

// =============================================================================
// UPDATE FILLUP
// =============================================================================

func TestUpdateFillup_DateEdit_CascadesThroughChain(t *testing.T) {
	// GIVEN: four consistent fillups 100 apart (A day 1, B day 4, C day 7,
	//        D day 10)
	// WHEN: C's date moves between A and B
	// THEN: C, B and D are all rewritten (3 entries) and B carries a
	//       regression warning

	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 100, 10, 15)
	b := mustCreateOdoFillup(t, svc, ctx, v.ID, 4, 200, 10, 15)
	c := mustCreateOdoFillup(t, svc, ctx, v.ID, 7, 300, 10, 15)
	mustCreateOdoFillup(t, svc, ctx, v.ID, 10, 400, 10, 15)

	newDate := day(2)
	res, err := svc.UpdateFillup(ctx, v.ID, c.Fillup.ID, engine.FillupUpdate{Date: &newDate})
	require.NoError(t, err)

	assert.Equal(t, 3, res.UpdatedEntries)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, engine.WarnOdometerRegression, res.Warnings[0].Code)
	assert.Equal(t, b.Fillup.ID, res.Warnings[0].FillupID)

	// The edited record now diffs against A: 300 - 100 = 200.
	assert.True(t, approxEqual(res.Fillup.DistanceTraveled, 200), "distance: %v", res.Fillup.DistanceTraveled)

	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, fillups, 4)
	// New chain order: A, C, B, D.
	assert.Equal(t, c.Fillup.ID, fillups[1].ID)
	assert.True(t, fillups[2].DistanceTraveled.IsZero(), "displaced B clamps to 0")
	assert.Nil(t, fillups[2].FuelConsumption)
	assert.True(t, approxEqual(fillups[3].DistanceTraveled, 200), "D rebases onto B's reading")
}

func TestUpdateFillup_PriceEdit_RecomputesPricePerUnit(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)
	created := mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 500, 50, 75)

	newPrice := dec(100)
	res, err := svc.UpdateFillup(ctx, v.ID, created.Fillup.ID, engine.FillupUpdate{TotalPrice: &newPrice})
	require.NoError(t, err)

	assert.True(t, approxEqual(res.Fillup.PricePerUnit, 2), "price per unit: %v", res.Fillup.PricePerUnit)
	// Price doesn't feed the chain walk.
	assert.Zero(t, res.UpdatedEntries)
}

func TestUpdateFillup_WrongVehicle_NotFound(t *testing.T) {
	svc, ctx := newTestService(t)
	v1 := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)
	v2 := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)
	created := mustCreateOdoFillup(t, svc, ctx, v1.ID, 1, 100, 10, 15)

	_, err := svc.UpdateFillup(ctx, v2.ID, created.Fillup.ID, engine.FillupUpdate{})
	assert.ErrorIs(t, err, engine.ErrFillupNotFound)
}

// =============================================================================
// DELETE FILLUP
// =============================================================================

func TestDeleteFillup_BridgesTheGap(t *testing.T) {
	// GIVEN: A (odo 500), B (odo 950), C (odo 1500)
	// WHEN: B is deleted
	// THEN: C diffs directly against A: distance 1000

	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 500, 40, 60)
	b := mustCreateOdoFillup(t, svc, ctx, v.ID, 5, 950, 45, 65)
	mustCreateOdoFillup(t, svc, ctx, v.ID, 9, 1500, 55, 80)

	res, err := svc.DeleteFillup(ctx, v.ID, b.Fillup.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedEntries)

	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, fillups, 2)
	assert.True(t, approxEqual(fillups[1].DistanceTraveled, 1000), "distance: %v", fillups[1].DistanceTraveled)
}

func TestDeleteFillup_Unknown_NotFound(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	_, err := svc.DeleteFillup(ctx, v.ID, "ghost")
	assert.ErrorIs(t, err, engine.ErrFillupNotFound)
}

// =============================================================================
// BASELINE CHANGE
// =============================================================================

func TestChangeVehicleBaseline_ReanchorsFirstFillup(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 10000)
	mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 10500, 60, 90)

	res, err := svc.ChangeVehicleBaseline(ctx, v.ID, dec(10200))
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedEntries)

	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, fillups, 1)
	assert.True(t, approxEqual(fillups[0].DistanceTraveled, 300), "distance: %v", fillups[0].DistanceTraveled)
	require.NotNil(t, fillups[0].FuelConsumption)
	assert.True(t, approxEqual(*fillups[0].FuelConsumption, 20), "consumption: %v", fillups[0].FuelConsumption)
}

func TestChangeVehicleBaseline_Negative_Rejected(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	_, err := svc.ChangeVehicleBaseline(ctx, v.ID, dec(-1))
	assert.True(t, engine.IsClientError(err))
}

// =============================================================================
// BATCH IMPORT
// =============================================================================

func TestBatchImportFillups_RecalculatesOnce(t *testing.T) {
	// Rows arrive in arbitrary order with no consumption; one recalculation
	// fills everything in chain order.

	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	res, err := svc.BatchImportFillups(ctx, v.ID, []engine.FillupInput{
		{Date: day(9), FuelAmount: dec(50), TotalPrice: dec(75), Odometer: engine.DecimalPtr(dec(1500))},
		{Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60), Odometer: engine.DecimalPtr(dec(500))},
		{Date: day(5), FuelAmount: dec(45), TotalPrice: dec(65), Odometer: engine.DecimalPtr(dec(950))},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, fillups, 3)
	assert.True(t, approxEqual(fillups[0].DistanceTraveled, 500))
	assert.True(t, approxEqual(fillups[1].DistanceTraveled, 450))
	assert.True(t, approxEqual(fillups[2].DistanceTraveled, 550))
	for _, f := range fillups {
		assert.NotNil(t, f.FuelConsumption)
	}
}

func TestBatchImportFillups_OdometerMode_AcceptsDistanceOnlyRows(t *testing.T) {
	// An import source may lack odometer readings for some rows; those rows'
	// distances are trusted and the chain walks through them.

	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	res, err := svc.BatchImportFillups(ctx, v.ID, []engine.FillupInput{
		{Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60), Odometer: engine.DecimalPtr(dec(500))},
		{Date: day(3), FuelAmount: dec(20), TotalPrice: dec(30), DistanceTraveled: engine.DecimalPtr(dec(200))},
		{Date: day(5), FuelAmount: dec(30), TotalPrice: dec(45), Odometer: engine.DecimalPtr(dec(1000))},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	fillups, err := svc.ListFillups(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, fillups, 3)
	assert.True(t, approxEqual(fillups[1].DistanceTraveled, 200), "trusted distance kept")
	assert.True(t, approxEqual(fillups[2].DistanceTraveled, 300), "1000 - (500+200)")
}

func TestBatchImportFillups_RejectsRowWithBothFields(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	_, err := svc.BatchImportFillups(ctx, v.ID, []engine.FillupInput{
		{
			Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60),
			Odometer:         engine.DecimalPtr(dec(500)),
			DistanceTraveled: engine.DecimalPtr(dec(500)),
		},
	})
	assert.True(t, engine.IsClientError(err))
}

// =============================================================================
// PARTIAL CHAIN WRITE FAILURE
// =============================================================================

// flakyStore fails UpdateFillupFields after a set number of successful calls.
type flakyStore struct {
	*store.Memory
	succeedFirst int
	calls        int
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) UpdateFillupFields(ctx context.Context, id engine.FillupID, patch engine.FieldPatch) error {
	f.calls++
	if f.calls > f.succeedFirst {
		return errDiskFull
	}
	return f.Memory.UpdateFillupFields(ctx, id, patch)
}

func TestMutation_PartialChainWrite_ReportsAppliedVsAttempted(t *testing.T) {
	// GIVEN: a date edit that needs 3 chain rewrites, on a store that fails
	//        after the direct write plus one chain write
	// WHEN: updating
	// THEN: a ChainWriteError with applied=1, attempted=3; the one applied
	//       row stays committed

	flaky := &flakyStore{Memory: store.NewMemory(), succeedFirst: 1000}
	svc := engine.NewService(flaky)
	ctx := context.Background()

	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)
	mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 100, 10, 15)
	mustCreateOdoFillup(t, svc, ctx, v.ID, 4, 200, 10, 15)
	c := mustCreateOdoFillup(t, svc, ctx, v.ID, 7, 300, 10, 15)
	mustCreateOdoFillup(t, svc, ctx, v.ID, 10, 400, 10, 15)

	// Allow the direct field write and the first chain patch, then fail.
	flaky.calls = 0
	flaky.succeedFirst = 2

	newDate := day(2)
	_, err := svc.UpdateFillup(ctx, v.ID, c.Fillup.ID, engine.FillupUpdate{Date: &newDate})

	var chainErr *engine.ChainWriteError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 1, chainErr.Applied)
	assert.Equal(t, 3, chainErr.Attempted)
	assert.ErrorIs(t, chainErr, errDiskFull)
	assert.False(t, engine.IsClientError(err))
}

// =============================================================================
// STATS
// =============================================================================

func TestVehicleStats_SummarizesChain(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	mustCreateOdoFillup(t, svc, ctx, v.ID, 1, 500, 40, 60)  // consumption 8
	mustCreateOdoFillup(t, svc, ctx, v.ID, 5, 1000, 60, 90) // consumption 12

	st, err := svc.VehicleStats(ctx, v.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, st.FillupCount)
	assert.True(t, approxEqual(st.TotalFuel, 100))
	assert.True(t, approxEqual(st.TotalCost, 150))
	assert.True(t, approxEqual(st.TotalDistance, 1000))
	require.NotNil(t, st.AverageConsumption)
	assert.True(t, approxEqual(*st.AverageConsumption, 10), "average: %v", st.AverageConsumption)
	require.NotNil(t, st.BestConsumption)
	assert.True(t, approxEqual(*st.BestConsumption, 8))
	require.NotNil(t, st.WorstConsumption)
	assert.True(t, approxEqual(*st.WorstConsumption, 12))
	assert.True(t, approxEqual(st.AveragePricePerUnit, 1.5), "price per unit: %v", st.AveragePricePerUnit)
}

func TestVehicleStats_EmptyChain(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.OdometerMode, 0)

	st, err := svc.VehicleStats(ctx, v.ID)
	require.NoError(t, err)
	assert.Zero(t, st.FillupCount)
	assert.Nil(t, st.AverageConsumption)
}

// =============================================================================
// DISTANCE MODE SERVICE BEHAVIOR
// =============================================================================

func TestCreateFillup_DistanceMode_NoOdometerBookkeeping(t *testing.T) {
	svc, ctx := newTestService(t)
	v := mustCreateVehicle(t, svc, ctx, engine.DistanceMode, 0)

	res, err := svc.CreateFillup(ctx, v.ID, engine.FillupInput{
		Date: day(1), FuelAmount: dec(40), TotalPrice: dec(60),
		DistanceTraveled: engine.DecimalPtr(dec(400)),
	})
	require.NoError(t, err)

	assert.Nil(t, res.Fillup.Odometer)
	assert.True(t, approxEqual(res.Fillup.DistanceTraveled, 400))
	require.NotNil(t, res.Fillup.FuelConsumption)
	assert.True(t, approxEqual(*res.Fillup.FuelConsumption, 10))
	assert.Empty(t, res.Warnings)
}
