// Package cohort computes retention grids of customers grouped by the month
// of their first subscription.
package cohort

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/smallbiznis/revlens/internal/analytics/revenue"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
)

// Compute builds the retention grid ordered by cohort month then offset.
// Offsets run from 0 to the months elapsed until now, capped at maxOffset.
// A member is retained at an offset when any of its subscriptions overlaps
// that month.
func Compute(
	customers []customerdomain.Customer,
	subs []subscriptiondomain.Subscription,
	revisions []subscriptiondomain.Revision,
	now time.Time,
	maxOffset int,
) []Snapshot {
	if maxOffset < 0 {
		maxOffset = DefaultMaxOffset
	}

	members := lo.Filter(customers, func(c customerdomain.Customer, _ int) bool {
		return c.FirstSubscriptionAt != nil
	})
	cohorts := lo.GroupBy(members, func(c customerdomain.Customer) time.Time {
		return revenue.MonthStart(*c.FirstSubscriptionAt)
	})
	subsByCustomer := lo.GroupBy(subs, func(s subscriptiondomain.Subscription) string {
		return s.CustomerExternalID
	})

	months := lo.Keys(cohorts)
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	pricer := revenue.NewPricer(revisions)
	current := revenue.MonthStart(now)

	var out []Snapshot
	for _, cohortMonth := range months {
		group := cohorts[cohortMonth]
		size := int64(len(group))
		last := revenue.MonthsBetween(cohortMonth, current)
		if last > maxOffset {
			last = maxOffset
		}

		for offset := 0; offset <= last; offset++ {
			start := revenue.AddMonths(cohortMonth, offset)
			end := revenue.AddMonths(start, 1)

			var retained, mrrCents int64
			for _, member := range group {
				active := false
				for _, sub := range subsByCustomer[member.ExternalID] {
					if !revenue.ActiveDuring(sub, start, end) {
						continue
					}
					active = true
					mrrCents += pricer.MonthlyBefore(sub, end)
				}
				if active {
					retained++
				}
			}

			out = append(out, Snapshot{
				CohortMonth:    cohortMonth,
				MonthOffset:    offset,
				CohortSize:     size,
				RetainedCount:  retained,
				RetentionRate:  revenue.Ratio(retained, size, 4),
				CohortMRRCents: mrrCents,
			})
		}
	}
	return out
}
