package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/revlens/internal/subscription/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertBatch(ctx context.Context, db *gorm.DB, subscriptions []domain.Subscription) error {
	now := time.Now().UTC()
	for _, s := range subscriptions {
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		metadata := s.Metadata
		if metadata == nil {
			metadata = datatypes.JSONMap{}
		}
		err := db.WithContext(ctx).Exec(
			`INSERT INTO subscriptions (id, merchant_id, external_id, customer_external_id, status, plan_id, plan_name,
			   unit_amount_cents, billing_interval, quantity, currency, cancel_at_period_end, started_at, ended_at,
			   canceled_at, trial_start, trial_end, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (merchant_id, external_id)
			 DO UPDATE SET customer_external_id = EXCLUDED.customer_external_id,
			   status = EXCLUDED.status,
			   plan_id = EXCLUDED.plan_id,
			   plan_name = EXCLUDED.plan_name,
			   unit_amount_cents = EXCLUDED.unit_amount_cents,
			   billing_interval = EXCLUDED.billing_interval,
			   quantity = EXCLUDED.quantity,
			   currency = EXCLUDED.currency,
			   cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			   started_at = EXCLUDED.started_at,
			   ended_at = EXCLUDED.ended_at,
			   canceled_at = EXCLUDED.canceled_at,
			   trial_start = EXCLUDED.trial_start,
			   trial_end = EXCLUDED.trial_end,
			   metadata = EXCLUDED.metadata,
			   updated_at = EXCLUDED.updated_at`,
			s.ID,
			s.MerchantID,
			s.ExternalID,
			s.CustomerExternalID,
			s.Status,
			s.PlanID,
			s.PlanName,
			s.UnitAmountCents,
			s.Interval,
			s.Quantity,
			s.Currency,
			s.CancelAtPeriodEnd,
			s.StartedAt,
			s.EndedAt,
			s.CanceledAt,
			s.TrialStart,
			s.TrialEnd,
			metadata,
			createdAt,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByExternalIDs(ctx context.Context, db *gorm.DB, merchantID string, externalIDs []string) ([]domain.Subscription, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND external_id IN ?", merchantID, externalIDs).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ListByMerchant(ctx context.Context, db *gorm.DB, merchantID string) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("external_id asc").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) InsertRevisions(ctx context.Context, db *gorm.DB, revisions []domain.Revision) error {
	for _, rev := range revisions {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO subscription_revisions (id, merchant_id, subscription_external_id, effective_at,
			   unit_amount_cents, quantity, billing_interval, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (merchant_id, subscription_external_id, effective_at) DO NOTHING`,
			rev.ID,
			rev.MerchantID,
			rev.SubscriptionExternalID,
			rev.EffectiveAt.UTC(),
			rev.UnitAmountCents,
			rev.Quantity,
			rev.Interval,
			time.Now().UTC(),
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListRevisions(ctx context.Context, db *gorm.DB, merchantID string) ([]domain.Revision, error) {
	var revisions []domain.Revision
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("subscription_external_id asc, effective_at asc").
		Find(&revisions).Error
	if err != nil {
		return nil, err
	}
	return revisions, nil
}

// CountAtRisk counts distinct customers holding an active subscription that
// is set to cancel at the end of its period.
func (r *repo) CountAtRisk(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT customer_external_id)
		 FROM subscriptions
		 WHERE merchant_id = ? AND status = ? AND cancel_at_period_end = ?`,
		merchantID,
		domain.StatusActive,
		true,
	).Scan(&count).Error
	return count, err
}
