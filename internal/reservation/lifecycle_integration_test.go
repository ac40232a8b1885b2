package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
)

func seedRoom(t *testing.T, pool *pgxpool.Pool, f fixture, governance string) string {
	t.Helper()
	roomID := "rom_" + uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO rooms (property_id, id, room_type_id, label, governance_status)
		VALUES ($1, $2, $3, '101', $4)`,
		f.propertyID, roomID, f.roomTypeID, governance)
	require.NoError(t, err)
	return roomID
}

func createManual(t *testing.T, svc *reservation.Service, f fixture) *reservation.Reservation {
	t.Helper()
	rsv, err := svc.CreateManual(context.Background(), reservation.CreateManualParams{
		PropertyID: f.propertyID,
		RoomTypeID: f.roomTypeID,
		GuestName:  "Carlos Lima",
		Checkin:    f.checkin,
		Checkout:   f.checkout,
		AdultCount: 2,
		TotalCents: 50000,
		Currency:   "BRL",
		CreatedBy:  "user:staff1",
	})
	require.NoError(t, err)
	return rsv
}

func TestManualReservationAutoConfirm(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	svc := reservation.NewService(pool)
	ctx := context.Background()

	rsv := createManual(t, svc, f)
	assert.Equal(t, reservation.StatusPendingPayment, rsv.Status)
	booked, _ := ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 1, booked)

	// Half the total: below the default 1.00 threshold, stays pending.
	_, err := svc.RecordFolioPayment(ctx, f.propertyID, rsv.ID, "pix", 25000, "BRL", "user:staff1")
	require.NoError(t, err)
	got, err := svc.Get(ctx, f.propertyID, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPendingPayment, got.Status)

	// The rest tips it over.
	_, err = svc.RecordFolioPayment(ctx, f.propertyID, rsv.ID, "cash", 25000, "BRL", "user:staff1")
	require.NoError(t, err)
	got, err = svc.Get(ctx, f.propertyID, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConfirmed, got.Status)

	log, err := svc.StatusLog(ctx, f.propertyID, rsv.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
}

func TestManualConfirmRequiresJustification(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	svc := reservation.NewService(pool)
	ctx := context.Background()

	rsv := createManual(t, svc, f)

	err := svc.ManualConfirm(ctx, f.propertyID, rsv.ID, "", "user:manager1")
	require.ErrorIs(t, err, reservation.ErrJustificationRequired)

	err = svc.ManualConfirm(ctx, f.propertyID, rsv.ID, "Corporate account, invoiced monthly", "user:manager1")
	require.NoError(t, err)

	got, err := svc.Get(ctx, f.propertyID, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConfirmed, got.Status)

	// Already confirmed: the transition is spent.
	err = svc.ManualConfirm(ctx, f.propertyID, rsv.ID, "again", "user:manager1")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)
}

func TestCheckInGates(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	// Stay starts in the past so the date gate passes.
	f.checkin = time.Now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	f.checkout = f.checkin.AddDate(0, 0, 2)
	for d := f.checkin; d.Before(f.checkout); d = d.AddDate(0, 0, 1) {
		_, err := pool.Exec(context.Background(), `
			INSERT INTO ari_days (property_id, room_type_id, date, inv_total)
			VALUES ($1, $2, $3, 2) ON CONFLICT DO NOTHING`,
			f.propertyID, f.roomTypeID, d)
		require.NoError(t, err)
	}
	svc := reservation.NewService(pool)
	ctx := context.Background()

	rsv := createManual(t, svc, f)
	require.NoError(t, svc.ManualConfirm(ctx, f.propertyID, rsv.ID, "walk-in deposit", "user:manager1"))

	// No room assigned yet.
	err := svc.CheckIn(ctx, f.propertyID, rsv.ID, "user:staff1")
	require.ErrorIs(t, err, reservation.ErrRoomNotAssigned)

	dirtyRoom := seedRoom(t, pool, f, "dirty")
	require.NoError(t, svc.AssignRoom(ctx, f.propertyID, rsv.ID, dirtyRoom, "user:staff1"))

	// Housekeeping has not released the room.
	err = svc.CheckIn(ctx, f.propertyID, rsv.ID, "user:staff1")
	require.ErrorIs(t, err, reservation.ErrRoomNotClean)

	_, err = pool.Exec(ctx, `
		UPDATE rooms SET governance_status = 'clean' WHERE property_id = $1 AND id = $2`,
		f.propertyID, dirtyRoom)
	require.NoError(t, err)

	require.NoError(t, svc.CheckIn(ctx, f.propertyID, rsv.ID, "user:staff1"))
	got, err := svc.Get(ctx, f.propertyID, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusInHouse, got.Status)
}

func TestCheckOutRequiresSettledFolio(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	f.checkin = time.Now().AddDate(0, 0, -2).Truncate(24 * time.Hour)
	f.checkout = f.checkin.AddDate(0, 0, 2)
	for d := f.checkin; d.Before(f.checkout); d = d.AddDate(0, 0, 1) {
		_, err := pool.Exec(context.Background(), `
			INSERT INTO ari_days (property_id, room_type_id, date, inv_total)
			VALUES ($1, $2, $3, 2) ON CONFLICT DO NOTHING`,
			f.propertyID, f.roomTypeID, d)
		require.NoError(t, err)
	}
	svc := reservation.NewService(pool)
	ctx := context.Background()

	rsv := createManual(t, svc, f)
	require.NoError(t, svc.ManualConfirm(ctx, f.propertyID, rsv.ID, "deposit on file", "user:manager1"))
	room := seedRoom(t, pool, f, "clean")
	require.NoError(t, svc.AssignRoom(ctx, f.propertyID, rsv.ID, room, "user:staff1"))
	require.NoError(t, svc.CheckIn(ctx, f.propertyID, rsv.ID, "user:staff1"))

	err := svc.CheckOut(ctx, f.propertyID, rsv.ID, "user:staff1")
	require.ErrorIs(t, err, reservation.ErrFolioBalanceDue)

	_, err = svc.RecordFolioPayment(ctx, f.propertyID, rsv.ID, "card", 50000, "BRL", "user:staff1")
	require.NoError(t, err)
	require.NoError(t, svc.CheckOut(ctx, f.propertyID, rsv.ID, "user:staff1"))

	// Room flips to dirty for housekeeping.
	var governance string
	err = pool.QueryRow(ctx, `
		SELECT governance_status FROM rooms WHERE property_id = $1 AND id = $2`,
		f.propertyID, room).Scan(&governance)
	require.NoError(t, err)
	assert.Equal(t, "dirty", governance)
}

func TestCancelReturnsInventory(t *testing.T) {
	pool := testPool(t)
	f := seedProperty(t, pool, 2)
	svc := reservation.NewService(pool)
	ctx := context.Background()

	rsv := createManual(t, svc, f)
	booked, _ := ariCounts(t, pool, f, f.checkin)
	require.Equal(t, 1, booked)

	require.NoError(t, svc.Cancel(ctx, f.propertyID, rsv.ID, "user:staff1", "guest request"))
	booked, _ = ariCounts(t, pool, f, f.checkin)
	assert.Equal(t, 0, booked)

	// Cancelled is terminal.
	err := svc.Cancel(ctx, f.propertyID, rsv.ID, "user:staff1", "again")
	require.ErrorIs(t, err, reservation.ErrInvalidTransition)
}
