// Package mrr computes monthly recurring revenue snapshots and their
// movement decomposition.
package mrr

import (
	"time"

	"github.com/smallbiznis/revlens/internal/analytics/revenue"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
)

// Compute builds one snapshot per calendar month from the month of the
// earliest subscription start up to the month of now, in chronological order.
//
// A customer active this month is classified against last month:
// still active moves into expansion or contraction by the delta; not active
// last month and starting a subscription this month is new, even when the
// customer had lapsed before; any other return is a reactivation. Customers
// active last month and gone now are churned at their previous MRR. With
// those rules the month-over-month identity
//
//	mrr(m) = mrr(m-1) + new + expansion + reactivation - contraction - churned
//
// holds exactly.
func Compute(subs []subscriptiondomain.Subscription, revisions []subscriptiondomain.Revision, now time.Time) []Snapshot {
	first, ok := earliestStart(subs)
	if !ok {
		return nil
	}

	pricer := revenue.NewPricer(revisions)
	last := revenue.MonthStart(now)

	var (
		out      []Snapshot
		previous = map[string]int64{}
	)
	for month := revenue.MonthStart(first); !month.After(last); month = revenue.AddMonths(month, 1) {
		end := revenue.AddMonths(month, 1)

		current := map[string]int64{}
		startedNow := map[string]bool{}
		for _, sub := range subs {
			if !revenue.ActiveDuring(sub, month, end) {
				continue
			}
			current[sub.CustomerExternalID] += pricer.MonthlyBefore(sub, end)
			if revenue.StartedDuring(sub, month, end) {
				startedNow[sub.CustomerExternalID] = true
			}
		}

		snap := Snapshot{Month: month, ActiveCustomers: int64(len(current))}
		for customerID, amount := range current {
			snap.MRRCents += amount

			prevAmount, wasActive := previous[customerID]
			switch {
			case wasActive:
				if delta := amount - prevAmount; delta > 0 {
					snap.ExpansionMRRCents += delta
				} else if delta < 0 {
					snap.ContractionMRRCents += -delta
				}
			case startedNow[customerID]:
				snap.NewMRRCents += amount
				snap.NewCustomers++
			default:
				snap.ReactivationMRRCents += amount
			}
		}
		for customerID, prevAmount := range previous {
			if _, stillActive := current[customerID]; !stillActive {
				snap.ChurnedMRRCents += prevAmount
				snap.ChurnedCustomers++
			}
		}
		snap.ARRCents = snap.MRRCents * 12

		previous = current
		out = append(out, snap)
	}
	return out
}

func earliestStart(subs []subscriptiondomain.Subscription) (time.Time, bool) {
	var (
		first time.Time
		found bool
	)
	for _, sub := range subs {
		if sub.StartedAt == nil || sub.Status.Incomplete() {
			continue
		}
		if !found || sub.StartedAt.Before(first) {
			first = *sub.StartedAt
			found = true
		}
	}
	return first, found
}
