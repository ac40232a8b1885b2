package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func cents(v int64) *int64 { return &v }

func rate(date string, twoPax int64) rateDay {
	return rateDay{
		date:      day(date),
		currency:  "BRL",
		paxPrices: [4]*int64{cents(twoPax - 5000), cents(twoPax), cents(twoPax + 5000), cents(twoPax + 10000)},
		bucketPrices: [3]*int64{
			cents(0), cents(5000), cents(10000),
		},
		minNights: 1,
	}
}

var testBuckets = []ageBucket{
	{bucket: 1, ageMin: 0, ageMax: 5},
	{bucket: 2, ageMin: 6, ageMax: 11},
	{bucket: 3, ageMin: 12, ageMax: 17},
}

func stdRequest() Request {
	return Request{
		PropertyID: "p1",
		RoomTypeID: "rt1",
		Checkin:    day("2026-04-10"),
		Checkout:   day("2026-04-12"),
		AdultCount: 2,
	}
}

func TestPrice_TwoAdultsTwoNights(t *testing.T) {
	rates := []rateDay{rate("2026-04-10", 30000), rate("2026-04-11", 35000)}

	q, err := price(stdRequest(), rates, nil, 2)
	require.NoError(t, err)

	assert.True(t, q.OK)
	assert.Equal(t, int64(65000), q.TotalCents)
	assert.Equal(t, "BRL", q.Currency)
	assert.Equal(t, 2, q.Nights)
}

func TestPrice_ChildrenBuckets(t *testing.T) {
	rates := []rateDay{rate("2026-04-10", 30000), rate("2026-04-11", 30000)}
	req := stdRequest()
	req.ChildrenAges = []int{3, 8, 15} // bucket1 free, bucket2 5000, bucket3 10000

	q, err := price(req, rates, testBuckets, 2)
	require.NoError(t, err)

	assert.True(t, q.OK)
	// (30000 + 0 + 5000 + 10000) per night, two nights.
	assert.Equal(t, int64(90000), q.TotalCents)
}

func TestPrice_ReasonCodes(t *testing.T) {
	maxOne := 1
	tests := []struct {
		name   string
		mutate func(r *[]rateDay, req *Request)
		want   ReasonCode
	}{
		{
			"blocked night",
			func(r *[]rateDay, req *Request) { (*r)[1].isBlocked = true },
			ReasonBlocked,
		},
		{
			"closed to arrival on checkin night",
			func(r *[]rateDay, req *Request) { (*r)[0].closedToArrival = true },
			ReasonClosedToArrival,
		},
		{
			"closed to departure on last night",
			func(r *[]rateDay, req *Request) { (*r)[1].closedToDeparture = true },
			ReasonClosedToDeparture,
		},
		{
			"min nights",
			func(r *[]rateDay, req *Request) { (*r)[0].minNights = 3 },
			ReasonMinNights,
		},
		{
			"max nights",
			func(r *[]rateDay, req *Request) { (*r)[0].maxNights = &maxOne },
			ReasonMaxNights,
		},
		{
			"pax price missing",
			func(r *[]rateDay, req *Request) { (*r)[0].paxPrices[1] = nil },
			ReasonNoRate,
		},
		{
			"currency mixed across nights",
			func(r *[]rateDay, req *Request) { (*r)[1].currency = "USD" },
			ReasonCurrencyMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rates := []rateDay{rate("2026-04-10", 30000), rate("2026-04-11", 30000)}
			req := stdRequest()
			tt.mutate(&rates, &req)

			q, err := price(req, rates, testBuckets, 2)
			require.NoError(t, err)
			assert.False(t, q.OK)
			assert.Equal(t, tt.want, q.Reason)
		})
	}
}

func TestPrice_ClosedToArrivalOnlyChecksFirstNight(t *testing.T) {
	rates := []rateDay{rate("2026-04-10", 30000), rate("2026-04-11", 30000)}
	rates[1].closedToArrival = true // not the arrival night

	q, err := price(stdRequest(), rates, nil, 2)
	require.NoError(t, err)
	assert.True(t, q.OK)
}

func TestPrice_ChildOutsideBuckets(t *testing.T) {
	rates := []rateDay{rate("2026-04-10", 30000)}
	req := stdRequest()
	req.Checkout = day("2026-04-11")
	req.ChildrenAges = []int{9}

	// Buckets with a gap at ages 6..11.
	gappy := []ageBucket{
		{bucket: 1, ageMin: 0, ageMax: 5},
		{bucket: 3, ageMin: 12, ageMax: 17},
	}
	q, err := price(req, rates, gappy, 1)
	require.NoError(t, err)
	assert.False(t, q.OK)
	assert.Equal(t, ReasonChildrenBucketMissing, q.Reason)
}

func TestPrice_ChildBucketPriceMissing(t *testing.T) {
	rates := []rateDay{rate("2026-04-10", 30000)}
	rates[0].bucketPrices[1] = nil
	req := stdRequest()
	req.Checkout = day("2026-04-11")
	req.ChildrenAges = []int{8}

	q, err := price(req, rates, testBuckets, 1)
	require.NoError(t, err)
	assert.False(t, q.OK)
	assert.Equal(t, ReasonNoRate, q.Reason)
}

func TestPrice_Overflow(t *testing.T) {
	huge := int64(1) << 62
	rates := []rateDay{rate("2026-04-10", huge), rate("2026-04-11", huge)}

	q, err := price(stdRequest(), rates, nil, 2)
	require.NoError(t, err)
	assert.False(t, q.OK)
	assert.Equal(t, ReasonPriceOverflow, q.Reason)
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, 1, bucketFor(testBuckets, 0))
	assert.Equal(t, 1, bucketFor(testBuckets, 5))
	assert.Equal(t, 2, bucketFor(testBuckets, 6))
	assert.Equal(t, 3, bucketFor(testBuckets, 17))
	assert.Equal(t, 0, bucketFor(nil, 4))
}
