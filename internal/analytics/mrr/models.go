package mrr

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Snapshot is the recurring revenue of one merchant in one calendar month
// and how it moved against the month before.
type Snapshot struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"-"`
	MerchantID           string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_mrr_snapshots_merchant_month" json:"-"`
	Month                time.Time    `gorm:"not null;uniqueIndex:ux_mrr_snapshots_merchant_month" json:"month"`
	MRRCents             int64        `gorm:"column:mrr_cents;not null" json:"mrr_cents"`
	ARRCents             int64        `gorm:"column:arr_cents;not null" json:"arr_cents"`
	NewMRRCents          int64        `gorm:"column:new_mrr_cents;not null" json:"new_mrr_cents"`
	ExpansionMRRCents    int64        `gorm:"column:expansion_mrr_cents;not null" json:"expansion_mrr_cents"`
	ContractionMRRCents  int64        `gorm:"column:contraction_mrr_cents;not null" json:"contraction_mrr_cents"`
	ChurnedMRRCents      int64        `gorm:"column:churned_mrr_cents;not null" json:"churned_mrr_cents"`
	ReactivationMRRCents int64        `gorm:"column:reactivation_mrr_cents;not null" json:"reactivation_mrr_cents"`
	ActiveCustomers      int64        `gorm:"not null" json:"active_customers"`
	NewCustomers         int64        `gorm:"not null" json:"new_customers"`
	ChurnedCustomers     int64        `gorm:"not null" json:"churned_customers"`
	ComputedAt           time.Time    `gorm:"not null" json:"computed_at"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "mrr_snapshots" }

// NetNewMRR is the month over month change in MRR.
func (s Snapshot) NetNewMRR() int64 {
	return s.NewMRRCents + s.ExpansionMRRCents + s.ReactivationMRRCents - s.ContractionMRRCents - s.ChurnedMRRCents
}
