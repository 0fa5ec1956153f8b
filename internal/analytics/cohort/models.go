package cohort

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultMaxOffset is the last month offset tracked for a cohort.
const DefaultMaxOffset = 24

var ErrInvalidMerchant = errors.New("invalid_merchant")

// Snapshot is one cell of the retention grid: how many customers of a cohort
// were still subscribed MonthOffset months after the cohort month.
type Snapshot struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"-"`
	MerchantID     string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_cohort_snapshots_cell" json:"-"`
	CohortMonth    time.Time    `gorm:"not null;uniqueIndex:ux_cohort_snapshots_cell" json:"cohort_month"`
	MonthOffset    int          `gorm:"not null;uniqueIndex:ux_cohort_snapshots_cell" json:"month_offset"`
	CohortSize     int64        `gorm:"not null" json:"cohort_size"`
	RetainedCount  int64        `gorm:"not null" json:"retained_count"`
	RetentionRate  float64      `gorm:"type:numeric(6,4);not null" json:"retention_rate"`
	CohortMRRCents int64        `gorm:"column:cohort_mrr_cents;not null" json:"cohort_mrr_cents"`
	ComputedAt     time.Time    `gorm:"not null" json:"computed_at"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "cohort_snapshots" }
