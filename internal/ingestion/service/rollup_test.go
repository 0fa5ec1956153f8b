package service

import (
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

func sub(id string, status subscriptiondomain.Status, amount int64, interval string, started *time.Time) subscriptiondomain.Subscription {
	return subscriptiondomain.Subscription{
		ExternalID:         id,
		CustomerExternalID: "cus_1",
		Status:             status,
		PlanName:           "Plan " + id,
		UnitAmountCents:    amount,
		Interval:           interval,
		Quantity:           1,
		StartedAt:          started,
	}
}

func TestRollupNoSubscriptions(t *testing.T) {
	got := Rollup(nil, date(2024, 3, 15))
	assert.Equal(t, "canceled", got.SubscriptionStatus)
	assert.Zero(t, got.MRRCents)
	assert.Nil(t, got.PlanName)
	assert.Nil(t, got.FirstSubscriptionAt)
	assert.Nil(t, got.ChurnedAt)
	assert.Zero(t, got.LTVCents)
}

func TestRollupActivePrecedence(t *testing.T) {
	now := date(2024, 3, 15)
	subs := []subscriptiondomain.Subscription{
		sub("old", subscriptiondomain.StatusActive, 1000, subscriptiondomain.IntervalMonth, ptr(date(2024, 1, 1))),
		sub("new", subscriptiondomain.StatusTrialing, 12000, subscriptiondomain.IntervalYear, ptr(date(2024, 2, 1))),
		sub("gone", subscriptiondomain.StatusCanceled, 500, subscriptiondomain.IntervalMonth, ptr(date(2023, 6, 1))),
	}
	subs[2].EndedAt = ptr(date(2023, 12, 1))

	got := Rollup(subs, now)
	assert.Equal(t, "active", got.SubscriptionStatus)
	assert.Equal(t, int64(1000+1000), got.MRRCents)
	require.NotNil(t, got.PlanName)
	assert.Equal(t, "Plan new", *got.PlanName)
	require.NotNil(t, got.FirstSubscriptionAt)
	assert.True(t, date(2023, 6, 1).Equal(*got.FirstSubscriptionAt))
	assert.Nil(t, got.ChurnedAt, "live subscriptions mean the customer has not churned")
}

func TestRollupTrialingOnly(t *testing.T) {
	subs := []subscriptiondomain.Subscription{
		sub("trial", subscriptiondomain.StatusTrialing, 3000, subscriptiondomain.IntervalMonth, ptr(date(2024, 3, 1))),
	}
	got := Rollup(subs, date(2024, 3, 15))
	assert.Equal(t, "trialing", got.SubscriptionStatus)
	assert.Equal(t, int64(3000), got.MRRCents)
}

func TestRollupChurnedCustomer(t *testing.T) {
	first := sub("a", subscriptiondomain.StatusCanceled, 1000, subscriptiondomain.IntervalMonth, ptr(date(2023, 1, 1)))
	first.EndedAt = ptr(date(2023, 4, 1))
	second := sub("b", subscriptiondomain.StatusPastDue, 2000, subscriptiondomain.IntervalMonth, ptr(date(2023, 6, 1)))
	second.CanceledAt = ptr(date(2023, 9, 1))

	got := Rollup([]subscriptiondomain.Subscription{first, second}, date(2024, 3, 15))
	assert.Equal(t, "past_due", got.SubscriptionStatus, "status of the most recently started subscription")
	assert.Zero(t, got.MRRCents)
	assert.Nil(t, got.PlanName)
	require.NotNil(t, got.ChurnedAt)
	assert.True(t, date(2023, 4, 1).Equal(*got.ChurnedAt), "a scheduled cancellation is not an end")
}

func TestRollupCancellationWithoutEndIsNotChurn(t *testing.T) {
	pastDue := sub("p", subscriptiondomain.StatusPastDue, 2000, subscriptiondomain.IntervalMonth, ptr(date(2024, 1, 1)))
	pastDue.CanceledAt = ptr(date(2024, 3, 10))

	got := Rollup([]subscriptiondomain.Subscription{pastDue}, date(2024, 3, 15))
	assert.Equal(t, "past_due", got.SubscriptionStatus)
	assert.Nil(t, got.ChurnedAt)
}

func TestRollupIgnoresIncompleteForHistory(t *testing.T) {
	incomplete := sub("x", subscriptiondomain.StatusIncompleteExpired, 9900, subscriptiondomain.IntervalMonth, ptr(date(2023, 1, 1)))
	got := Rollup([]subscriptiondomain.Subscription{incomplete}, date(2024, 3, 15))
	assert.Equal(t, "incomplete_expired", got.SubscriptionStatus)
	assert.Nil(t, got.FirstSubscriptionAt)
	assert.Zero(t, got.LTVCents)
}

func TestRollupLifetimeValue(t *testing.T) {
	now := date(2024, 3, 15)

	monthly := sub("m", subscriptiondomain.StatusActive, 1000, subscriptiondomain.IntervalMonth, ptr(date(2024, 1, 10)))
	ended := sub("e", subscriptiondomain.StatusCanceled, 500, subscriptiondomain.IntervalMonth, ptr(date(2023, 1, 1)))
	ended.EndedAt = ptr(date(2023, 3, 1))
	yearly := sub("y", subscriptiondomain.StatusActive, 12000, subscriptiondomain.IntervalYear, ptr(date(2023, 3, 20)))
	yearly.Quantity = 2

	got := Rollup([]subscriptiondomain.Subscription{monthly, ended, yearly}, now)
	// monthly: Jan 10, Feb 10, Mar 10. ended: Jan 1, Feb 1. yearly: 2023-03-20 only.
	assert.Equal(t, int64(3*1000+2*500+1*24000), got.LTVCents)
}

func TestBilledPeriods(t *testing.T) {
	start := date(2024, 1, 1)
	tests := []struct {
		name     string
		end      time.Time
		interval string
		want     int64
	}{
		{"same instant", start, subscriptiondomain.IntervalMonth, 1},
		{"partial month", date(2024, 1, 20), subscriptiondomain.IntervalMonth, 1},
		{"exact month boundary", date(2024, 2, 1), subscriptiondomain.IntervalMonth, 1},
		{"into second month", date(2024, 2, 2), subscriptiondomain.IntervalMonth, 2},
		{"weeks", date(2024, 1, 16), subscriptiondomain.IntervalWeek, 3},
		{"days", date(2024, 1, 4), subscriptiondomain.IntervalDay, 3},
		{"years", date(2026, 1, 2), subscriptiondomain.IntervalYear, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, billedPeriods(start, tt.end, tt.interval))
		})
	}
}
