package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNightsBetween_HalfOpenRange(t *testing.T) {
	nights := NightsBetween("rt1", d("2026-04-10"), d("2026-04-13"))

	assert.Len(t, nights, 3)
	assert.Equal(t, d("2026-04-10"), nights[0].Date)
	assert.Equal(t, d("2026-04-12"), nights[2].Date)
	// Checkout night is never occupied.
	for _, n := range nights {
		assert.True(t, n.Date.Before(d("2026-04-13")))
	}
}

func TestNightsBetween_SingleNight(t *testing.T) {
	nights := NightsBetween("rt1", d("2026-04-10"), d("2026-04-11"))
	assert.Len(t, nights, 1)
}

func TestNightsBetween_AscendingOrder(t *testing.T) {
	nights := NightsBetween("rt1", d("2026-04-10"), d("2026-04-20"))
	for i := 1; i < len(nights); i++ {
		assert.True(t, nights[i-1].Date.Before(nights[i].Date),
			"nights must be walked in ascending date order for canonical lock acquisition")
	}
}

func TestAgesJSON_RoundTrip(t *testing.T) {
	var ages []int
	assert.NoError(t, unmarshalAges(agesJSON([]int{3, 8}), &ages))
	assert.Equal(t, []int{3, 8}, ages)

	// nil encodes as an empty array, not null.
	assert.Equal(t, "[]", string(agesJSON(nil)))
}
