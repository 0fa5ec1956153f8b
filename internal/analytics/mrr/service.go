package mrr

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/clock"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultHistoryMonths is how many months the read API returns when the
// caller does not ask for a window.
const DefaultHistoryMonths = 12

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             Repository
	SubscriptionRepo subscriptiondomain.Repository
	Metrics          *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    Repository
	subRepo subscriptiondomain.Repository
	metrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("analytics.mrr"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		subRepo: p.SubscriptionRepo,
		metrics: p.Metrics,
	}
}

// Recompute rebuilds every MRR snapshot of the merchant from its stored
// subscriptions and returns how many months were written.
func (s *Service) Recompute(ctx context.Context, merchantID string) (n int, err error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return 0, ErrInvalidMerchant
	}

	ctx, span := tracing.Start(ctx, "analytics.mrr.recompute", attribute.String("merchant_id", merchantID))
	defer func() { tracing.End(span, err) }()

	subs, err := s.subRepo.ListByMerchant(ctx, s.db, merchantID)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}
	revisions, err := s.subRepo.ListRevisions(ctx, s.db, merchantID)
	if err != nil {
		return 0, fmt.Errorf("load revisions: %w", err)
	}

	now := s.clock.Now()
	snapshots := Compute(subs, revisions, now)
	for i := range snapshots {
		snapshots[i].ID = s.genID.Generate()
		snapshots[i].MerchantID = merchantID
		snapshots[i].ComputedAt = now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Replace(ctx, tx, merchantID, snapshots)
	})
	if err != nil {
		return 0, fmt.Errorf("store mrr snapshots: %w", err)
	}

	s.metrics.RecordSnapshots(ctx, "mrr", len(snapshots))
	s.log.Info("analytics.mrr.recomputed",
		zap.String("merchant_id", merchantID),
		zap.Int("months", len(snapshots)),
	)
	return len(snapshots), nil
}

// History returns the most recent months of snapshots, oldest first.
func (s *Service) History(ctx context.Context, merchantID string, months int) ([]Snapshot, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, ErrInvalidMerchant
	}
	if months <= 0 {
		months = DefaultHistoryMonths
	}
	return s.repo.List(ctx, s.db, merchantID, months)
}
