package service

import (
	"time"

	"github.com/smallbiznis/revlens/internal/analytics/revenue"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
)

// Rollup derives a customer's computed fields from its subscriptions as of now.
func Rollup(subs []subscriptiondomain.Subscription, now time.Time) customerdomain.Computed {
	out := customerdomain.Computed{SubscriptionStatus: string(subscriptiondomain.StatusCanceled)}

	var (
		hasActive, hasTrialing bool
		latest, latestLive     *subscriptiondomain.Subscription
		churnedAt              *time.Time
	)
	for i := range subs {
		sub := &subs[i]

		switch sub.Status {
		case subscriptiondomain.StatusActive:
			hasActive = true
		case subscriptiondomain.StatusTrialing:
			hasTrialing = true
		}
		if sub.Status.Live() {
			out.MRRCents += revenue.MonthlyAmount(*sub)
			if startedAfter(sub, latestLive) {
				latestLive = sub
			}
		}
		if latest == nil || startedAfter(sub, latest) {
			latest = sub
		}

		if sub.StartedAt != nil && !sub.Status.Incomplete() {
			if out.FirstSubscriptionAt == nil || sub.StartedAt.Before(*out.FirstSubscriptionAt) {
				out.FirstSubscriptionAt = utcPtr(*sub.StartedAt)
			}
			out.LTVCents += lifetimeValue(*sub, now)
		}

		if sub.EndedAt != nil && (churnedAt == nil || sub.EndedAt.After(*churnedAt)) {
			churnedAt = sub.EndedAt
		}
	}

	switch {
	case hasActive:
		out.SubscriptionStatus = string(subscriptiondomain.StatusActive)
	case hasTrialing:
		out.SubscriptionStatus = string(subscriptiondomain.StatusTrialing)
	case latest != nil:
		out.SubscriptionStatus = string(latest.Status)
	}

	if latestLive != nil && latestLive.PlanName != "" {
		name := latestLive.PlanName
		out.PlanName = &name
	}
	if !hasActive && !hasTrialing && churnedAt != nil {
		out.ChurnedAt = utcPtr(*churnedAt)
	}
	return out
}

// startedAfter orders subscriptions by start time. A missing start sorts first.
func startedAfter(a, b *subscriptiondomain.Subscription) bool {
	if b == nil {
		return true
	}
	if a.StartedAt == nil {
		return false
	}
	if b.StartedAt == nil {
		return true
	}
	return a.StartedAt.After(*b.StartedAt)
}

// lifetimeValue charges the current price once for every billing period
// started between the subscription start and its end or now.
func lifetimeValue(sub subscriptiondomain.Subscription, now time.Time) int64 {
	end := now
	if sub.EndedAt != nil && sub.EndedAt.Before(end) {
		end = *sub.EndedAt
	}
	qty := sub.Quantity
	if qty <= 0 {
		qty = 1
	}
	return sub.UnitAmountCents * qty * billedPeriods(*sub.StartedAt, end, sub.Interval)
}

func billedPeriods(start, end time.Time, interval string) int64 {
	if !end.After(start) {
		return 1
	}

	var period time.Duration
	switch interval {
	case subscriptiondomain.IntervalDay:
		period = 24 * time.Hour
	case subscriptiondomain.IntervalWeek:
		period = 7 * 24 * time.Hour
	}
	if period > 0 {
		elapsed := end.Sub(start)
		n := int64(elapsed / period)
		if elapsed%period != 0 {
			n++
		}
		return n
	}

	step := 1
	if interval == subscriptiondomain.IntervalYear {
		step = 12
	}
	var n int64
	for k := 0; start.AddDate(0, k*step, 0).Before(end); k++ {
		n++
	}
	return n
}

func utcPtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
