package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// DefaultAccountName is shown when the provider account has no display name.
const DefaultAccountName = "Stripe Account"

// Connection is a merchant's link to the billing provider and the outcome of
// its most recent sync. The credential is only ever stored sealed.
type Connection struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	MerchantID           string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"merchant_id"`
	CredentialCiphertext datatypes.JSON `gorm:"type:jsonb;not null" json:"-"`
	AccountName          string         `gorm:"type:text;not null;default:''" json:"account_name"`
	IsValid              bool           `gorm:"not null;default:true" json:"is_valid"`
	LastSyncAt           *time.Time     `json:"last_sync_at,omitempty"`
	LastSyncStatus       SyncStatus     `gorm:"type:varchar(16);not null;default:'pending'" json:"last_sync_status"`
	LastSyncError        *string        `gorm:"type:text" json:"last_sync_error,omitempty"`
	CustomerCount        int64          `gorm:"not null;default:0" json:"customer_count"`
	CreatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Connection) TableName() string { return "sync_connections" }

// Validation is the result of a credential pre-flight check.
type Validation struct {
	Valid        bool   `json:"valid"`
	AccountName  string `json:"account_name"`
	HasCustomers bool   `json:"has_customers"`
}
