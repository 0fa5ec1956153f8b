// Package domain contains persistence models for provider subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status mirrors the provider's subscription lifecycle states.
type Status string

const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPaused            Status = "paused"
)

// Billing intervals. Anything else is treated as monthly.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Live reports whether the status currently generates recurring revenue.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusTrialing
}

// Incomplete reports whether the subscription never became billable.
func (s Status) Incomplete() bool {
	return s == StatusIncomplete || s == StatusIncompleteExpired
}

type Subscription struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	MerchantID         string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_subscriptions_merchant_external" json:"merchant_id"`
	ExternalID         string            `gorm:"type:varchar(255);not null;uniqueIndex:ux_subscriptions_merchant_external" json:"external_id"`
	CustomerExternalID string            `gorm:"type:varchar(255);not null;index" json:"customer_external_id"`
	Status             Status            `gorm:"type:varchar(32);not null" json:"status"`
	PlanID             string            `gorm:"type:varchar(255);not null;default:''" json:"plan_id"`
	PlanName           string            `gorm:"type:text;not null;default:''" json:"plan_name"`
	UnitAmountCents    int64             `gorm:"not null;default:0" json:"unit_amount_cents"`
	Interval           string            `gorm:"column:billing_interval;type:varchar(16);not null;default:'month'" json:"interval"`
	Quantity           int64             `gorm:"not null;default:1" json:"quantity"`
	Currency           string            `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	CancelAtPeriodEnd  bool              `gorm:"not null;default:false" json:"cancel_at_period_end"`
	StartedAt          *time.Time        `json:"started_at,omitempty"`
	EndedAt            *time.Time        `json:"ended_at,omitempty"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	TrialStart         *time.Time        `json:"trial_start,omitempty"`
	TrialEnd           *time.Time        `json:"trial_end,omitempty"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Revision records the price terms of a subscription from EffectiveAt on.
// The provider only exposes the current price, so revisions are what lets a
// past month be priced as it was billed.
type Revision struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	MerchantID             string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_subscription_revisions_effective" json:"merchant_id"`
	SubscriptionExternalID string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_subscription_revisions_effective" json:"subscription_external_id"`
	EffectiveAt            time.Time    `gorm:"not null;uniqueIndex:ux_subscription_revisions_effective" json:"effective_at"`
	UnitAmountCents        int64        `gorm:"not null" json:"unit_amount_cents"`
	Quantity               int64        `gorm:"not null" json:"quantity"`
	Interval               string       `gorm:"column:billing_interval;type:varchar(16);not null" json:"interval"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Revision) TableName() string { return "subscription_revisions" }

// SameTerms reports whether the subscription is still priced as r.
func (r Revision) SameTerms(s Subscription) bool {
	return r.UnitAmountCents == s.UnitAmountCents &&
		r.Quantity == s.Quantity &&
		r.Interval == s.Interval
}
