package cohort

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Replace upserts the grid keyed by (merchant_id, cohort_month,
	// month_offset) and removes cells that are no longer produced.
	Replace(ctx context.Context, db *gorm.DB, merchantID string, snapshots []Snapshot) error
	List(ctx context.Context, db *gorm.DB, merchantID string) ([]Snapshot, error)
}

type repo struct{}

func NewRepository() Repository {
	return &repo{}
}

func (r *repo) Replace(ctx context.Context, db *gorm.DB, merchantID string, snapshots []Snapshot) error {
	for _, s := range snapshots {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO cohort_snapshots (id, merchant_id, cohort_month, month_offset, cohort_size, retained_count,
			   retention_rate, cohort_mrr_cents, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (merchant_id, cohort_month, month_offset)
			 DO UPDATE SET cohort_size = EXCLUDED.cohort_size,
			   retained_count = EXCLUDED.retained_count,
			   retention_rate = EXCLUDED.retention_rate,
			   cohort_mrr_cents = EXCLUDED.cohort_mrr_cents,
			   computed_at = EXCLUDED.computed_at`,
			s.ID,
			merchantID,
			s.CohortMonth.UTC(),
			s.MonthOffset,
			s.CohortSize,
			s.RetainedCount,
			s.RetentionRate,
			s.CohortMRRCents,
			s.ComputedAt,
		).Error
		if err != nil {
			return err
		}
	}

	if len(snapshots) == 0 {
		return db.WithContext(ctx).Exec(`DELETE FROM cohort_snapshots WHERE merchant_id = ?`, merchantID).Error
	}

	lastOffset := make(map[time.Time]int)
	for _, s := range snapshots {
		month := s.CohortMonth.UTC()
		if cur, ok := lastOffset[month]; !ok || s.MonthOffset > cur {
			lastOffset[month] = s.MonthOffset
		}
	}
	months := make([]time.Time, 0, len(lastOffset))
	for month, offset := range lastOffset {
		months = append(months, month)
		err := db.WithContext(ctx).Exec(
			`DELETE FROM cohort_snapshots WHERE merchant_id = ? AND cohort_month = ? AND month_offset > ?`,
			merchantID,
			month,
			offset,
		).Error
		if err != nil {
			return err
		}
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM cohort_snapshots WHERE merchant_id = ? AND cohort_month NOT IN ?`,
		merchantID,
		months,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, merchantID string) ([]Snapshot, error) {
	var snapshots []Snapshot
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("cohort_month asc, month_offset asc").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		snapshots[i].CohortMonth = snapshots[i].CohortMonth.UTC()
	}
	return snapshots, nil
}
