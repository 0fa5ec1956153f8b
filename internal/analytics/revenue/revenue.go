// Package revenue holds the month arithmetic and MRR normalization shared by
// the sync roll-up and the analytics engines.
package revenue

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
)

// MonthStart truncates t to the first instant of its UTC calendar month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves a month start by n calendar months.
func AddMonths(monthStart time.Time, n int) time.Time {
	return monthStart.AddDate(0, n, 0)
}

// MonthsBetween counts whole calendar months from the month of a to the
// month of b. It is negative when b precedes a.
func MonthsBetween(a, b time.Time) int {
	a, b = MonthStart(a), MonthStart(b)
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// NormalizeMonthly converts a per-interval amount into its monthly value,
// rounding half away from zero. Unknown intervals are taken as monthly.
func NormalizeMonthly(amountCents int64, interval string) int64 {
	switch interval {
	case subscriptiondomain.IntervalYear:
		return roundDiv(amountCents, 12)
	case subscriptiondomain.IntervalWeek:
		return roundDiv(amountCents*52, 12)
	case subscriptiondomain.IntervalDay:
		return roundDiv(amountCents*365, 12)
	default:
		return amountCents
	}
}

// MonthlyAmount is the normalized MRR of one subscription at its current terms.
func MonthlyAmount(sub subscriptiondomain.Subscription) int64 {
	return NormalizeMonthly(sub.UnitAmountCents*quantity(sub.Quantity), sub.Interval)
}

// ActiveDuring reports whether sub overlaps [start, end) and ever became billable.
func ActiveDuring(sub subscriptiondomain.Subscription, start, end time.Time) bool {
	if sub.Status.Incomplete() || sub.StartedAt == nil {
		return false
	}
	if !sub.StartedAt.Before(end) {
		return false
	}
	return sub.EndedAt == nil || sub.EndedAt.After(start)
}

// StartedDuring reports whether sub started within [start, end).
func StartedDuring(sub subscriptiondomain.Subscription, start, end time.Time) bool {
	if sub.StartedAt == nil {
		return false
	}
	return !sub.StartedAt.Before(start) && sub.StartedAt.Before(end)
}

// Pricer prices subscriptions as they were at a point in time using their
// recorded revisions.
type Pricer struct {
	revisions map[string][]subscriptiondomain.Revision
}

func NewPricer(revisions []subscriptiondomain.Revision) *Pricer {
	p := &Pricer{revisions: make(map[string][]subscriptiondomain.Revision)}
	for _, rev := range revisions {
		p.revisions[rev.SubscriptionExternalID] = append(p.revisions[rev.SubscriptionExternalID], rev)
	}
	for id := range p.revisions {
		revs := p.revisions[id]
		sort.Slice(revs, func(i, j int) bool { return revs[i].EffectiveAt.Before(revs[j].EffectiveAt) })
	}
	return p
}

// MonthlyBefore returns the normalized MRR of sub under the latest revision
// effective before end, falling back to the subscription's current terms.
func (p *Pricer) MonthlyBefore(sub subscriptiondomain.Subscription, end time.Time) int64 {
	if p != nil {
		revs := p.revisions[sub.ExternalID]
		for i := len(revs) - 1; i >= 0; i-- {
			if revs[i].EffectiveAt.Before(end) {
				rev := revs[i]
				return NormalizeMonthly(rev.UnitAmountCents*quantity(rev.Quantity), rev.Interval)
			}
		}
	}
	return MonthlyAmount(sub)
}

// Ratio returns num/den rounded to places decimals, or 0 when den is 0.
func Ratio(num, den int64, places int32) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Round(places).InexactFloat64()
}

// Percent returns num/den as a percentage rounded to 2 decimals, or 0 when
// den is 0.
func Percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(num).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(den)).
		Round(2).
		InexactFloat64()
}

func quantity(q int64) int64 {
	if q <= 0 {
		return 1
	}
	return q
}

func roundDiv(n, d int64) int64 {
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}
