// Package transform maps provider records onto the stored schema.
//
// Every function is pure and returns ok=false for a record that cannot be
// stored at all (nil or missing identifiers). Optional fields degrade to
// their defaults so one odd record never fails a page.
package transform

import (
	"encoding/json"
	"strings"
	"time"

	eventdomain "github.com/smallbiznis/revlens/internal/billingevent/domain"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"github.com/stripe/stripe-go/v74"
	"gorm.io/datatypes"
)

const defaultCurrency = "usd"

func Customer(merchantID string, c *stripe.Customer) (customerdomain.Customer, bool) {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return customerdomain.Customer{}, false
	}

	return customerdomain.Customer{
		MerchantID:        merchantID,
		ExternalID:        c.ID,
		Email:             strings.TrimSpace(c.Email),
		Name:              optionalString(c.Name),
		Currency:          currency(string(c.Currency)),
		Metadata:          metadata(c.Metadata),
		ProviderCreatedAt: unixTime(c.Created),
		Computed: customerdomain.Computed{
			SubscriptionStatus: string(subscriptiondomain.StatusCanceled),
		},
	}, true
}

// Subscription prices the subscription from its first item.
func Subscription(merchantID string, s *stripe.Subscription) (subscriptiondomain.Subscription, bool) {
	if s == nil || strings.TrimSpace(s.ID) == "" || s.Customer == nil || s.Customer.ID == "" {
		return subscriptiondomain.Subscription{}, false
	}
	if s.Status == "" {
		return subscriptiondomain.Subscription{}, false
	}

	sub := subscriptiondomain.Subscription{
		MerchantID:         merchantID,
		ExternalID:         s.ID,
		CustomerExternalID: s.Customer.ID,
		Status:             subscriptiondomain.Status(s.Status),
		Interval:           subscriptiondomain.IntervalMonth,
		Quantity:           1,
		Currency:           currency(string(s.Currency)),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		StartedAt:          unixTime(s.StartDate),
		EndedAt:            unixTime(s.EndedAt),
		CanceledAt:         unixTime(s.CanceledAt),
		TrialStart:         unixTime(s.TrialStart),
		TrialEnd:           unixTime(s.TrialEnd),
		Metadata:           metadata(s.Metadata),
	}

	item := firstItem(s)
	if item == nil {
		return sub, true
	}
	if item.Quantity > 0 {
		sub.Quantity = item.Quantity
	}

	price := item.Price
	if price == nil {
		return sub, true
	}
	sub.PlanID = price.ID
	sub.PlanName = planName(price)
	if price.UnitAmount > 0 {
		sub.UnitAmountCents = price.UnitAmount
	}
	if price.Currency != "" {
		sub.Currency = currency(string(price.Currency))
	}
	if price.Recurring != nil && price.Recurring.Interval != "" {
		sub.Interval = string(price.Recurring.Interval)
	}
	return sub, true
}

// Event keeps the raw event object as the payload.
func Event(merchantID string, e *stripe.Event) (eventdomain.BillingEvent, bool) {
	if e == nil || strings.TrimSpace(e.ID) == "" || e.Type == "" {
		return eventdomain.BillingEvent{}, false
	}

	occurredAt := unixTime(e.Created)
	if occurredAt == nil {
		return eventdomain.BillingEvent{}, false
	}

	payload := datatypes.JSON("{}")
	var object map[string]interface{}
	if e.Data != nil {
		object = e.Data.Object
		if len(e.Data.Raw) > 0 && json.Valid(e.Data.Raw) {
			payload = datatypes.JSON(e.Data.Raw)
		} else if object != nil {
			if raw, err := json.Marshal(object); err == nil {
				payload = datatypes.JSON(raw)
			}
		}
	}

	return eventdomain.BillingEvent{
		MerchantID:         merchantID,
		ExternalID:         e.ID,
		Type:               string(e.Type),
		CustomerExternalID: eventCustomerID(object),
		Payload:            payload,
		OccurredAt:         *occurredAt,
	}, true
}

func firstItem(s *stripe.Subscription) *stripe.SubscriptionItem {
	if s.Items == nil || len(s.Items.Data) == 0 {
		return nil
	}
	return s.Items.Data[0]
}

// planName prefers the product name, then the product id, then the price nickname.
func planName(price *stripe.Price) string {
	if p := price.Product; p != nil {
		if name := strings.TrimSpace(p.Name); name != "" {
			return name
		}
		if p.ID != "" {
			return p.ID
		}
	}
	return strings.TrimSpace(price.Nickname)
}

func eventCustomerID(object map[string]interface{}) *string {
	if object == nil {
		return nil
	}
	switch v := object["customer"].(type) {
	case string:
		if v != "" {
			return &v
		}
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok && id != "" {
			return &id
		}
	}
	if kind, _ := object["object"].(string); kind == "customer" {
		if id, ok := object["id"].(string); ok && id != "" {
			return &id
		}
	}
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func currency(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return defaultCurrency
	}
	return v
}

func metadata(in map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
