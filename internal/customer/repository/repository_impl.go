package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/revlens/internal/customer/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertBatch(ctx context.Context, db *gorm.DB, customers []domain.Customer) error {
	now := time.Now().UTC()
	for _, c := range customers {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		metadata := c.Metadata
		if metadata == nil {
			metadata = datatypes.JSONMap{}
		}
		err := db.WithContext(ctx).Exec(
			`INSERT INTO customers (id, merchant_id, external_id, email, name, currency, metadata, provider_created_at,
			   mrr_cents, subscription_status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 'canceled', ?, ?)
			 ON CONFLICT (merchant_id, external_id)
			 DO UPDATE SET email = EXCLUDED.email,
			   name = EXCLUDED.name,
			   currency = EXCLUDED.currency,
			   metadata = EXCLUDED.metadata,
			   provider_created_at = EXCLUDED.provider_created_at,
			   updated_at = EXCLUDED.updated_at`,
			c.ID,
			c.MerchantID,
			c.ExternalID,
			c.Email,
			c.Name,
			c.Currency,
			metadata,
			c.ProviderCreatedAt,
			createdAt,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListByMerchant(ctx context.Context, db *gorm.DB, merchantID string) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("external_id asc").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) UpdateComputed(ctx context.Context, db *gorm.DB, merchantID, externalID string, computed domain.Computed) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET mrr_cents = ?, subscription_status = ?, plan_name = ?, first_subscription_at = ?,
		   churned_at = ?, ltv_cents = ?, updated_at = ?
		 WHERE merchant_id = ? AND external_id = ?`,
		computed.MRRCents,
		computed.SubscriptionStatus,
		computed.PlanName,
		computed.FirstSubscriptionAt,
		computed.ChurnedAt,
		computed.LTVCents,
		time.Now().UTC(),
		merchantID,
		externalID,
	).Error
}

func (r *repo) CountByMerchant(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("merchant_id = ?", merchantID).
		Count(&count).Error
	return count, err
}
