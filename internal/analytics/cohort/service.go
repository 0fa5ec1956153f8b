package cohort

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Tuning           *config.AnalyticsConfigHolder
	Repo             Repository
	CustomerRepo     customerdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Metrics          *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	tuning       *config.AnalyticsConfigHolder
	repo         Repository
	customerRepo customerdomain.Repository
	subRepo      subscriptiondomain.Repository
	metrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("analytics.cohort"),
		genID:        p.GenID,
		clock:        p.Clock,
		tuning:       p.Tuning,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		subRepo:      p.SubscriptionRepo,
		metrics:      p.Metrics,
	}
}

// Recompute rebuilds the merchant's retention grid and returns the number of
// cells written.
func (s *Service) Recompute(ctx context.Context, merchantID string) (n int, err error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return 0, ErrInvalidMerchant
	}

	ctx, span := tracing.Start(ctx, "analytics.cohort.recompute", attribute.String("merchant_id", merchantID))
	defer func() { tracing.End(span, err) }()

	customers, err := s.customerRepo.ListByMerchant(ctx, s.db, merchantID)
	if err != nil {
		return 0, fmt.Errorf("load customers: %w", err)
	}
	subs, err := s.subRepo.ListByMerchant(ctx, s.db, merchantID)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}
	revisions, err := s.subRepo.ListRevisions(ctx, s.db, merchantID)
	if err != nil {
		return 0, fmt.Errorf("load revisions: %w", err)
	}

	now := s.clock.Now()
	snapshots := Compute(customers, subs, revisions, now, s.maxOffset())
	for i := range snapshots {
		snapshots[i].ID = s.genID.Generate()
		snapshots[i].MerchantID = merchantID
		snapshots[i].ComputedAt = now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Replace(ctx, tx, merchantID, snapshots)
	})
	if err != nil {
		return 0, fmt.Errorf("store cohort snapshots: %w", err)
	}

	s.metrics.RecordSnapshots(ctx, "cohort", len(snapshots))
	s.log.Info("analytics.cohort.recomputed",
		zap.String("merchant_id", merchantID),
		zap.Int("cells", len(snapshots)),
	)
	return len(snapshots), nil
}

func (s *Service) List(ctx context.Context, merchantID string) ([]Snapshot, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, ErrInvalidMerchant
	}
	return s.repo.List(ctx, s.db, merchantID)
}

func (s *Service) maxOffset() int {
	if s.tuning == nil {
		return DefaultMaxOffset
	}
	if v := s.tuning.Get().Cohort.MaxOffset; v > 0 {
		return v
	}
	return DefaultMaxOffset
}
