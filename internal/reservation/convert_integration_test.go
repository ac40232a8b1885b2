package reservation_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// These tests run against a real database and exercise the booking flows end
// to end. Set TEST_DATABASE_URL to enable them; each test seeds its own
// property so runs are isolated and repeatable.

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, store.Migrate(dsn))
	pool, err := store.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type fixture struct {
	propertyID string
	roomTypeID string
	checkin    time.Time
	checkout   time.Time
}

// seedProperty creates a property with one room type and inventory for two
// nights starting 30 days out.
func seedProperty(t *testing.T, pool *pgxpool.Pool, invTotal int) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		propertyID: "prop_" + uuid.NewString(),
		roomTypeID: "rt_std",
		checkin:    time.Now().AddDate(0, 0, 30).Truncate(24 * time.Hour),
	}
	f.checkout = f.checkin.AddDate(0, 0, 2)

	_, err := pool.Exec(ctx, `INSERT INTO properties (id, name) VALUES ($1, 'Test Hotel')`, f.propertyID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO room_types (property_id, id, name, max_adults, max_children)
		VALUES ($1, $2, 'Standard', 2, 2)`, f.propertyID, f.roomTypeID)
	require.NoError(t, err)
	for d := f.checkin; d.Before(f.checkout); d = d.AddDate(0, 0, 1) {
		_, err = pool.Exec(ctx, `
			INSERT INTO ari_days (property_id, room_type_id, date, inv_total)
			VALUES ($1, $2, $3, $4)`, f.propertyID, f.roomTypeID, d, invTotal)
		require.NoError(t, err)
	}
	return f
}

func ariCounts(t *testing.T, pool *pgxpool.Pool, f fixture, date time.Time) (booked, held int) {
	t.Helper()
	err := pool.QueryRow(context.Background(), `
		SELECT inv_booked, inv_held FROM ari_days
		WHERE property_id = $1 AND room_type_id = $2 AND date = $3`,
		f.propertyID, f.roomTypeID, date).Scan(&booked, &held)
	require.NoError(t, err)
	return booked, held
}

func createHold(t *testing.T, engine *inventory.Engine, f fixture, expiresAt time.Time) *inventory.Hold {
	t.Helper()
	hold, err := engine.CreateHold(context.Background(), inventory.CreateHoldParams{
		PropertyID: f.propertyID,
		RoomTypeID: f.roomTypeID,
		Checkin:    f.checkin,
		Checkout:   f.checkout,
		AdultCount: 2,
		TotalCents: 40000,
		Currency:   "BRL",
		ExpiresAt:  expiresAt,
		GuestName:  "Ana Souza",
	})
	require.NoError(t, err)
	return hold
}

func TestConvertHoldHappyPath(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 3)
	engine := inventory.NewEngine(pool)
	ctx := context.Background()

	hold := createHold(t, engine, f, time.Now().Add(30*time.Minute))
	booked, held := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, booked)
	assert.Equal(t, 1, held)

	params := reservation.ConvertParams{
		PropertyID:       f.propertyID,
		EventID:          "evt_" + uuid.NewString(),
		Provider:         "stripe",
		ProviderObjectID: "cs_" + uuid.NewString(),
		HoldID:           hold.ID,
		AmountCents:      40000,
		Currency:         "BRL",
		ChangedBy:        "system:stripe",
	}
	res, err := reservation.ConvertHold(ctx, pool, params)
	require.NoError(t, err)
	require.NotNil(t, res.Reservation)
	assert.False(t, res.Duplicate)
	assert.Equal(t, reservation.StatusConfirmed, res.Reservation.Status)
	assert.NotZero(t, res.ConfirmedEventID)
	require.NotNil(t, res.Reservation.GuestID)

	booked, held = ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 1, booked)
	assert.Equal(t, 0, held)

	got, err := engine.GetHold(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.HoldConverted, got.Status)

	// Same provider event again: the receipt collapses it.
	replay, err := reservation.ConvertHold(ctx, pool, params)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	booked, held = ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 1, booked)
	assert.Equal(t, 0, held)
}

func TestLastUnitContention(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 1)
	engine := inventory.NewEngine(pool)

	results := make([]error, 2)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			_, err := engine.CreateHold(context.Background(), inventory.CreateHoldParams{
				PropertyID: f.propertyID,
				RoomTypeID: f.roomTypeID,
				Checkin:    f.checkin,
				Checkout:   f.checkout,
				AdultCount: 2,
				TotalCents: 40000,
				Currency:   "BRL",
				ExpiresAt:  time.Now().Add(30 * time.Minute),
				GuestName:  "Guest",
			})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, inventory.ErrNoInventory):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	booked, held := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, booked)
	assert.Equal(t, 1, held)
}

func TestExpireThenConvertIsNoop(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	engine := inventory.NewEngine(pool)
	ctx := context.Background()

	hold := createHold(t, engine, f, time.Now().Add(-time.Minute))

	outcome, err := engine.ExpireHold(ctx, "expire-hold_"+hold.ID, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.Released, outcome)
	_, held := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, held)

	res, err := reservation.ConvertHold(ctx, pool, reservation.ConvertParams{
		PropertyID:       f.propertyID,
		EventID:          "evt_" + uuid.NewString(),
		Provider:         "stripe",
		ProviderObjectID: "cs_" + uuid.NewString(),
		HoldID:           hold.ID,
		AmountCents:      40000,
		Currency:         "BRL",
		ChangedBy:        "system:stripe",
	})
	require.NoError(t, err)
	assert.True(t, res.Noop)
	assert.Nil(t, res.Reservation)

	booked, held := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, booked)
	assert.Equal(t, 0, held)
}

func TestLatePaymentNeedsManual(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	engine := inventory.NewEngine(pool)
	ctx := context.Background()

	// The hold is past its deadline but the expire task has not fired yet.
	hold := createHold(t, engine, f, time.Now().Add(-time.Minute))

	res, err := reservation.ConvertHold(ctx, pool, reservation.ConvertParams{
		PropertyID:       f.propertyID,
		EventID:          "evt_" + uuid.NewString(),
		Provider:         "stripe",
		ProviderObjectID: "cs_" + uuid.NewString(),
		HoldID:           hold.ID,
		AmountCents:      40000,
		Currency:         "BRL",
		ChangedBy:        "system:stripe",
	})
	require.NoError(t, err)
	assert.True(t, res.Late)
	assert.Nil(t, res.Reservation)

	var status string
	err = pool.QueryRow(ctx, `
		SELECT status FROM payments WHERE property_id = $1 AND hold_id = $2`,
		f.propertyID, hold.ID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "needs_manual", status)

	booked, _ := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, booked)
}

func TestCancelHoldReplay(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	engine := inventory.NewEngine(pool)
	ctx := context.Background()

	hold := createHold(t, engine, f, time.Now().Add(30*time.Minute))

	taskID := "cancel_" + hold.ID
	outcome, err := engine.CancelHold(ctx, taskID, hold.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, inventory.Released, outcome)

	// Redelivery of the same task.
	outcome, err = engine.CancelHold(ctx, taskID, hold.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, inventory.ReleaseNoop, outcome)

	// A different caller after release: still a no-op, nights stay freed.
	outcome, err = engine.CancelHold(ctx, "cancel-again_"+hold.ID, hold.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, inventory.ReleaseNoop, outcome)

	_, held := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, held)
}
