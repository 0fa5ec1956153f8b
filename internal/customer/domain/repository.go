package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// UpsertBatch inserts customers or fully replaces the provider fields of
	// existing ones keyed by (merchant_id, external_id). Computed fields are
	// left untouched on conflict.
	UpsertBatch(ctx context.Context, db *gorm.DB, customers []Customer) error
	ListByMerchant(ctx context.Context, db *gorm.DB, merchantID string) ([]Customer, error)
	UpdateComputed(ctx context.Context, db *gorm.DB, merchantID, externalID string, computed Computed) error
	CountByMerchant(ctx context.Context, db *gorm.DB, merchantID string) (int64, error)
}
