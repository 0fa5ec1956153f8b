package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingEvent is an audit record of a provider event. Stored events are
// never rewritten.
type BillingEvent struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	MerchantID         string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_billing_events_merchant_external" json:"merchant_id"`
	ExternalID         string         `gorm:"type:varchar(255);not null;uniqueIndex:ux_billing_events_merchant_external" json:"external_id"`
	Type               string         `gorm:"type:varchar(128);not null;index" json:"type"`
	CustomerExternalID *string        `gorm:"type:varchar(255)" json:"customer_external_id,omitempty"`
	Payload            datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	OccurredAt         time.Time      `gorm:"not null" json:"occurred_at"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

type Repository interface {
	// InsertBatch stores new events and ignores ones already stored.
	InsertBatch(ctx context.Context, db *gorm.DB, events []BillingEvent) error
	CountByMerchant(ctx context.Context, db *gorm.DB, merchantID string) (int64, error)
}
