package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPendingPayment, StatusConfirmed, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusConfirmed, StatusInHouse, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusInHouse, StatusCheckedOut, true},

		// Reservations only advance.
		{StatusConfirmed, StatusPendingPayment, false},
		{StatusInHouse, StatusConfirmed, false},
		{StatusCheckedOut, StatusInHouse, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusPendingPayment, StatusInHouse, false},
		{StatusPendingPayment, StatusCheckedOut, false},
		{StatusInHouse, StatusCancelled, false},
		{StatusCheckedOut, StatusCancelled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOperationalStatuses_ExcludeCancelled(t *testing.T) {
	assert.NotContains(t, OperationalStatuses, StatusCancelled)
	assert.Contains(t, OperationalStatuses, StatusPendingPayment)
	assert.Contains(t, OperationalStatuses, StatusCheckedOut)
}

func TestDecodeAges(t *testing.T) {
	var ages []int
	assert.NoError(t, decodeAges([]byte(`[2,9]`), &ages))
	assert.Equal(t, []int{2, 9}, ages)

	assert.NoError(t, decodeAges(nil, &ages))
	assert.Nil(t, ages)

	assert.Error(t, decodeAges([]byte(`{"bad":true}`), &ages))
}
