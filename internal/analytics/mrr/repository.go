package mrr

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Replace upserts snapshots keyed by (merchant_id, month) and removes any
	// stored month outside their range.
	Replace(ctx context.Context, db *gorm.DB, merchantID string, snapshots []Snapshot) error
	// List returns snapshots in chronological order. A positive limit keeps
	// only the most recent months.
	List(ctx context.Context, db *gorm.DB, merchantID string, limit int) ([]Snapshot, error)
}

type repo struct{}

func NewRepository() Repository {
	return &repo{}
}

func (r *repo) Replace(ctx context.Context, db *gorm.DB, merchantID string, snapshots []Snapshot) error {
	if len(snapshots) == 0 {
		return db.WithContext(ctx).Exec(`DELETE FROM mrr_snapshots WHERE merchant_id = ?`, merchantID).Error
	}

	for _, s := range snapshots {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO mrr_snapshots (id, merchant_id, month, mrr_cents, arr_cents, new_mrr_cents, expansion_mrr_cents,
			   contraction_mrr_cents, churned_mrr_cents, reactivation_mrr_cents, active_customers, new_customers,
			   churned_customers, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (merchant_id, month)
			 DO UPDATE SET mrr_cents = EXCLUDED.mrr_cents,
			   arr_cents = EXCLUDED.arr_cents,
			   new_mrr_cents = EXCLUDED.new_mrr_cents,
			   expansion_mrr_cents = EXCLUDED.expansion_mrr_cents,
			   contraction_mrr_cents = EXCLUDED.contraction_mrr_cents,
			   churned_mrr_cents = EXCLUDED.churned_mrr_cents,
			   reactivation_mrr_cents = EXCLUDED.reactivation_mrr_cents,
			   active_customers = EXCLUDED.active_customers,
			   new_customers = EXCLUDED.new_customers,
			   churned_customers = EXCLUDED.churned_customers,
			   computed_at = EXCLUDED.computed_at`,
			s.ID,
			merchantID,
			s.Month.UTC(),
			s.MRRCents,
			s.ARRCents,
			s.NewMRRCents,
			s.ExpansionMRRCents,
			s.ContractionMRRCents,
			s.ChurnedMRRCents,
			s.ReactivationMRRCents,
			s.ActiveCustomers,
			s.NewCustomers,
			s.ChurnedCustomers,
			s.ComputedAt,
		).Error
		if err != nil {
			return err
		}
	}

	first, last := snapshots[0].Month.UTC(), snapshots[len(snapshots)-1].Month.UTC()
	return db.WithContext(ctx).Exec(
		`DELETE FROM mrr_snapshots WHERE merchant_id = ? AND (month < ? OR month > ?)`,
		merchantID,
		first,
		last,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, merchantID string, limit int) ([]Snapshot, error) {
	stmt := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("month desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var snapshots []Snapshot
	if err := stmt.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}
	for i := range snapshots {
		snapshots[i].Month = snapshots[i].Month.UTC()
	}
	return snapshots, nil
}
