package revenue

import (
	"testing"
	"time"

	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestNormalizeMonthly(t *testing.T) {
	cases := []struct {
		name     string
		amount   int64
		interval string
		want     int64
	}{
		{name: "monthly passes through", amount: 2000, interval: "month", want: 2000},
		{name: "yearly divides by twelve", amount: 12000, interval: "year", want: 1000},
		{name: "yearly rounds half up", amount: 18, interval: "year", want: 2},
		{name: "yearly rounds down", amount: 17, interval: "year", want: 1},
		{name: "weekly", amount: 1200, interval: "week", want: 5200},
		{name: "daily", amount: 100, interval: "day", want: 3042},
		{name: "unknown is monthly", amount: 999, interval: "fortnight", want: 999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeMonthly(tc.amount, tc.interval))
		})
	}
}

func TestMonthArithmetic(t *testing.T) {
	assert.Equal(t, date(2024, 1, 1), MonthStart(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, date(2025, 2, 1), AddMonths(date(2024, 12, 1), 2))
	assert.Equal(t, 14, MonthsBetween(date(2024, 1, 15), date(2025, 3, 2)))
	assert.Equal(t, 0, MonthsBetween(date(2024, 1, 1), date(2024, 1, 31)))
	assert.Equal(t, -1, MonthsBetween(date(2024, 2, 1), date(2024, 1, 31)))
}

func TestActiveDuring(t *testing.T) {
	start, end := date(2024, 3, 1), date(2024, 4, 1)
	sub := subscriptiondomain.Subscription{Status: subscriptiondomain.StatusActive, StartedAt: ptr(date(2024, 1, 15))}

	assert.True(t, ActiveDuring(sub, start, end))

	sub.EndedAt = ptr(date(2024, 3, 1))
	assert.False(t, ActiveDuring(sub, start, end), "ended exactly at window start")

	sub.EndedAt = ptr(date(2024, 3, 2))
	assert.True(t, ActiveDuring(sub, start, end))

	late := subscriptiondomain.Subscription{Status: subscriptiondomain.StatusActive, StartedAt: ptr(date(2024, 4, 1))}
	assert.False(t, ActiveDuring(late, start, end), "starts at window end")

	incomplete := subscriptiondomain.Subscription{Status: subscriptiondomain.StatusIncomplete, StartedAt: ptr(date(2024, 1, 1))}
	assert.False(t, ActiveDuring(incomplete, start, end))

	assert.False(t, ActiveDuring(subscriptiondomain.Subscription{Status: subscriptiondomain.StatusActive}, start, end))
}

func TestPricerUsesLatestRevisionBeforeEnd(t *testing.T) {
	sub := subscriptiondomain.Subscription{
		ExternalID:      "sub_1",
		UnitAmountCents: 3500,
		Quantity:        1,
		Interval:        "month",
	}
	p := NewPricer([]subscriptiondomain.Revision{
		{SubscriptionExternalID: "sub_1", EffectiveAt: date(2024, 3, 10), UnitAmountCents: 3500, Quantity: 1, Interval: "month"},
		{SubscriptionExternalID: "sub_1", EffectiveAt: date(2024, 1, 15), UnitAmountCents: 2000, Quantity: 1, Interval: "month"},
	})

	assert.Equal(t, int64(2000), p.MonthlyBefore(sub, date(2024, 2, 1)))
	assert.Equal(t, int64(2000), p.MonthlyBefore(sub, date(2024, 3, 1)))
	assert.Equal(t, int64(3500), p.MonthlyBefore(sub, date(2024, 4, 1)))

	other := subscriptiondomain.Subscription{ExternalID: "sub_2", UnitAmountCents: 12000, Quantity: 2, Interval: "year"}
	assert.Equal(t, int64(2000), p.MonthlyBefore(other, date(2024, 4, 1)))
}

func TestRatesRoundWithDecimal(t *testing.T) {
	assert.Equal(t, 0.7, Ratio(7, 10, 4))
	assert.Equal(t, 0.3333, Ratio(1, 3, 4))
	assert.Equal(t, 0.0, Ratio(1, 0, 4))

	assert.Equal(t, 33.33, Percent(1, 3))
	assert.Equal(t, 66.67, Percent(2, 3))
	assert.Equal(t, -12.5, Percent(-1, 8))
	assert.Equal(t, 0.0, Percent(5, 0))
}
