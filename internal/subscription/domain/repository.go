package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// UpsertBatch fully replaces provider fields keyed by (merchant_id, external_id).
	UpsertBatch(ctx context.Context, db *gorm.DB, subscriptions []Subscription) error
	FindByExternalIDs(ctx context.Context, db *gorm.DB, merchantID string, externalIDs []string) ([]Subscription, error)
	ListByMerchant(ctx context.Context, db *gorm.DB, merchantID string) ([]Subscription, error)
	// InsertRevisions appends revisions, ignoring ones already recorded.
	InsertRevisions(ctx context.Context, db *gorm.DB, revisions []Revision) error
	ListRevisions(ctx context.Context, db *gorm.DB, merchantID string) ([]Revision, error)
	CountAtRisk(ctx context.Context, db *gorm.DB, merchantID string) (int64, error)
}
