package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/revlens/internal/billingevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, events []domain.BillingEvent) error {
	for _, e := range events {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO billing_events (id, merchant_id, external_id, type, customer_external_id, payload, occurred_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (merchant_id, external_id) DO NOTHING`,
			e.ID,
			e.MerchantID,
			e.ExternalID,
			e.Type,
			e.CustomerExternalID,
			e.Payload,
			e.OccurredAt,
			time.Now().UTC(),
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) CountByMerchant(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.BillingEvent{}).
		Where("merchant_id = ?", merchantID).
		Count(&count).Error
	return count, err
}
