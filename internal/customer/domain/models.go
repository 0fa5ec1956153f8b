package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Customer mirrors a provider customer for one merchant. The computed block
// is owned by the sync roll-up and never comes from the provider.
type Customer struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	MerchantID        string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_customers_merchant_external" json:"merchant_id"`
	ExternalID        string            `gorm:"type:varchar(255);not null;uniqueIndex:ux_customers_merchant_external" json:"external_id"`
	Email             string            `gorm:"type:text;not null;default:''" json:"email"`
	Name              *string           `gorm:"type:text" json:"name,omitempty"`
	Currency          string            `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	ProviderCreatedAt *time.Time        `json:"provider_created_at,omitempty"`

	Computed

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// Computed holds the per-customer roll-up of its subscriptions.
type Computed struct {
	MRRCents            int64      `gorm:"column:mrr_cents;not null;default:0" json:"mrr_cents"`
	SubscriptionStatus  string     `gorm:"type:varchar(32);not null;default:'canceled'" json:"subscription_status"`
	PlanName            *string    `gorm:"type:text" json:"plan_name,omitempty"`
	FirstSubscriptionAt *time.Time `json:"first_subscription_at,omitempty"`
	ChurnedAt           *time.Time `json:"churned_at,omitempty"`
	LTVCents            int64      `gorm:"column:ltv_cents;not null;default:0" json:"ltv_cents"`
}
