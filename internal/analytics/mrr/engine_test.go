package mrr

import (
	"fmt"
	"testing"
	"time"

	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func monthly(id, customer string, amount int64, start time.Time, end *time.Time) subscriptiondomain.Subscription {
	status := subscriptiondomain.StatusActive
	if end != nil {
		status = subscriptiondomain.StatusCanceled
	}
	return subscriptiondomain.Subscription{
		ExternalID:         id,
		CustomerExternalID: customer,
		Status:             status,
		UnitAmountCents:    amount,
		Quantity:           1,
		Interval:           subscriptiondomain.IntervalMonth,
		StartedAt:          ptr(start),
		EndedAt:            end,
	}
}

func byMonth(t *testing.T, snaps []Snapshot) map[string]Snapshot {
	t.Helper()
	out := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		out[s.Month.Format("2006-01")] = s
	}
	return out
}

func assertIdentity(t *testing.T, snaps []Snapshot) {
	t.Helper()
	var prev int64
	for _, s := range snaps {
		want := prev + s.NewMRRCents + s.ExpansionMRRCents + s.ReactivationMRRCents - s.ContractionMRRCents - s.ChurnedMRRCents
		assert.Equal(t, want, s.MRRCents, "identity broken in %s", s.Month.Format("2006-01"))
		assert.Equal(t, s.MRRCents*12, s.ARRCents)
		prev = s.MRRCents
	}
}

func TestComputeNewMRRIsCountedOnce(t *testing.T) {
	subs := []subscriptiondomain.Subscription{monthly("sub_1", "cus_1", 2000, date(2024, 1, 15), nil)}

	snaps := Compute(subs, nil, date(2024, 2, 20))
	require.Len(t, snaps, 2)
	m := byMonth(t, snaps)

	assert.Equal(t, int64(2000), m["2024-01"].MRRCents)
	assert.Equal(t, int64(2000), m["2024-01"].NewMRRCents)
	assert.Equal(t, int64(1), m["2024-01"].NewCustomers)

	assert.Equal(t, int64(2000), m["2024-02"].MRRCents)
	assert.Zero(t, m["2024-02"].NewMRRCents)
	assert.Zero(t, m["2024-02"].NewCustomers)
	assert.Equal(t, int64(1), m["2024-02"].ActiveCustomers)
	assertIdentity(t, snaps)
}

func TestComputePriceIncreaseIsExpansion(t *testing.T) {
	sub := monthly("sub_1", "cus_1", 3500, date(2024, 1, 15), nil)
	revisions := []subscriptiondomain.Revision{
		{SubscriptionExternalID: "sub_1", EffectiveAt: date(2024, 1, 15), UnitAmountCents: 2000, Quantity: 1, Interval: "month"},
		{SubscriptionExternalID: "sub_1", EffectiveAt: date(2024, 3, 1), UnitAmountCents: 3500, Quantity: 1, Interval: "month"},
	}

	snaps := Compute([]subscriptiondomain.Subscription{sub}, revisions, date(2024, 3, 31))
	m := byMonth(t, snaps)

	assert.Equal(t, int64(2000), m["2024-02"].MRRCents)
	assert.Equal(t, int64(3500), m["2024-03"].MRRCents)
	assert.Equal(t, int64(1500), m["2024-03"].ExpansionMRRCents)
	assert.Zero(t, m["2024-03"].NewMRRCents)
	assertIdentity(t, snaps)
}

func TestComputeCancellationIsChurn(t *testing.T) {
	sub := monthly("sub_1", "cus_1", 3500, date(2024, 1, 15), ptr(date(2024, 4, 1)))
	revisions := []subscriptiondomain.Revision{
		{SubscriptionExternalID: "sub_1", EffectiveAt: date(2024, 1, 15), UnitAmountCents: 2000, Quantity: 1, Interval: "month"},
		{SubscriptionExternalID: "sub_1", EffectiveAt: date(2024, 3, 1), UnitAmountCents: 3500, Quantity: 1, Interval: "month"},
	}
	other := monthly("sub_2", "cus_2", 1000, date(2024, 2, 3), nil)

	snaps := Compute([]subscriptiondomain.Subscription{sub, other}, revisions, date(2024, 4, 10))
	m := byMonth(t, snaps)

	april := m["2024-04"]
	assert.Equal(t, int64(3500), april.ChurnedMRRCents)
	assert.Equal(t, int64(1), april.ChurnedCustomers)
	assert.Equal(t, int64(1), april.ActiveCustomers)
	assert.Equal(t, int64(1000), april.MRRCents)
	assertIdentity(t, snaps)
}

func TestComputeYearlyPlanIsNormalized(t *testing.T) {
	sub := monthly("sub_1", "cus_1", 12000, date(2024, 1, 1), nil)
	sub.Interval = subscriptiondomain.IntervalYear

	snaps := Compute([]subscriptiondomain.Subscription{sub}, nil, date(2024, 1, 1))
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(1000), snaps[0].MRRCents)
	assert.Equal(t, int64(12000), snaps[0].ARRCents)
}

func TestComputeReturningCustomerWithNewSubscriptionIsNew(t *testing.T) {
	subs := []subscriptiondomain.Subscription{
		monthly("sub_1", "cus_1", 2000, date(2024, 1, 10), ptr(date(2024, 2, 10))),
		monthly("sub_2", "cus_1", 2500, date(2024, 4, 5), nil),
	}

	snaps := Compute(subs, nil, date(2024, 4, 30))
	m := byMonth(t, snaps)

	assert.Equal(t, int64(2000), m["2024-03"].ChurnedMRRCents)
	assert.Zero(t, m["2024-03"].ActiveCustomers)

	april := m["2024-04"]
	assert.Equal(t, int64(2500), april.NewMRRCents)
	assert.Equal(t, int64(1), april.NewCustomers)
	assert.Zero(t, april.ReactivationMRRCents)
	assert.Equal(t, int64(2500), april.MRRCents)
	assertIdentity(t, snaps)
}

func TestComputeGapInActivityNeedsAStartToReturn(t *testing.T) {
	// cus_1 lapses in March and comes back in May with a second plan while
	// cus_2 stays continuously active; only cus_1 moves between buckets.
	subs := []subscriptiondomain.Subscription{
		monthly("sub_1", "cus_1", 2000, date(2024, 1, 10), ptr(date(2024, 2, 10))),
		monthly("sub_2", "cus_1", 1500, date(2024, 5, 1), nil),
		monthly("sub_3", "cus_2", 1000, date(2024, 1, 20), nil),
	}

	snaps := Compute(subs, nil, date(2024, 5, 31))
	require.Len(t, snaps, 5)
	m := byMonth(t, snaps)

	for _, month := range []string{"2024-01", "2024-02", "2024-03", "2024-04", "2024-05"} {
		assert.Zero(t, m[month].ReactivationMRRCents, month)
	}
	assert.Equal(t, int64(2), m["2024-01"].NewCustomers)
	assert.Equal(t, int64(1), m["2024-03"].ChurnedCustomers)
	assert.Equal(t, int64(1000), m["2024-04"].MRRCents)
	assert.Equal(t, int64(1500), m["2024-05"].NewMRRCents)
	assert.Equal(t, int64(1), m["2024-05"].NewCustomers)
	assert.Equal(t, int64(2500), m["2024-05"].MRRCents)
	assertIdentity(t, snaps)
}

func TestComputeIgnoresIncompleteSubscriptions(t *testing.T) {
	incomplete := monthly("sub_1", "cus_1", 9900, date(2023, 6, 1), nil)
	incomplete.Status = subscriptiondomain.StatusIncompleteExpired
	subs := []subscriptiondomain.Subscription{incomplete, monthly("sub_2", "cus_2", 1000, date(2024, 1, 1), nil)}

	snaps := Compute(subs, nil, date(2024, 1, 15))
	require.Len(t, snaps, 1, "range starts at the earliest billable start")
	assert.Equal(t, int64(1000), snaps[0].MRRCents)
}

func TestComputeWithoutSubscriptions(t *testing.T) {
	assert.Empty(t, Compute(nil, nil, date(2024, 1, 1)))
}

func TestComputeChurnedCustomersWereActiveLastMonth(t *testing.T) {
	var subs []subscriptiondomain.Subscription
	for i := 0; i < 40; i++ {
		start := date(2023, time.Month(1+i%12), 1+i%27)
		var end *time.Time
		if i%3 == 0 {
			end = ptr(start.AddDate(0, 2+i%5, 3))
		}
		sub := monthly(fmt.Sprintf("sub_%d", i), fmt.Sprintf("cus_%d", i%15), int64(1000+i*137), start, end)
		if i%4 == 0 {
			sub.Interval = subscriptiondomain.IntervalYear
			sub.UnitAmountCents = int64(10000 + i*71)
		}
		subs = append(subs, sub)
	}

	snaps := Compute(subs, nil, date(2024, 6, 30))
	require.NotEmpty(t, snaps)
	assertIdentity(t, snaps)

	var prevActive int64
	for _, s := range snaps {
		assert.LessOrEqual(t, s.ChurnedCustomers, prevActive)
		assert.GreaterOrEqual(t, s.MRRCents, int64(0))
		prevActive = s.ActiveCustomers
	}
}
