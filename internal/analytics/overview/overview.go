// Package overview assembles the headline KPIs of a merchant's dashboard.
package overview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revlens/internal/analytics/churn"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/analytics/revenue"
	customerdomain "github.com/smallbiznis/revlens/internal/customer/domain"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidMerchant = errors.New("invalid_merchant")

type KPIs struct {
	MRRCents              int64   `json:"mrr"`
	ARRCents              int64   `json:"arr"`
	MRRGrowth             float64 `json:"mrr_growth"`
	ActiveCustomers       int64   `json:"active_customers"`
	ActiveCustomersGrowth float64 `json:"active_customers_growth"`
	TotalCustomers        int64   `json:"total_customers"`
	CustomerChurnRate     float64 `json:"customer_churn_rate"`
	ARPUCents             int64   `json:"arpu"`
	CLVCents              int64   `json:"clv"`
	AtRiskCustomers       int64   `json:"at_risk_customers"`
	NewMRRCents           int64   `json:"new_mrr"`
	ExpansionMRRCents     int64   `json:"expansion_mrr"`
	ChurnedMRRCents       int64   `json:"churned_mrr"`
}

// Compute derives the KPIs from the latest and previous snapshots. Growth
// figures are 0 without a previous month. Lifetime value is ARPU divided by
// the unrounded customer churn ratio and is 0 while nobody churned.
func Compute(latest, previous *mrr.Snapshot, totalCustomers, atRisk int64) KPIs {
	out := KPIs{TotalCustomers: totalCustomers, AtRiskCustomers: atRisk}
	if latest == nil {
		return out
	}

	out.MRRCents = latest.MRRCents
	out.ARRCents = latest.MRRCents * 12
	out.ActiveCustomers = latest.ActiveCustomers
	out.NewMRRCents = latest.NewMRRCents
	out.ExpansionMRRCents = latest.ExpansionMRRCents
	out.ChurnedMRRCents = latest.ChurnedMRRCents
	out.CustomerChurnRate = churn.RatesOf(*latest).CustomerChurnRate

	if previous != nil {
		out.MRRGrowth = revenue.Percent(latest.MRRCents-previous.MRRCents, previous.MRRCents)
		out.ActiveCustomersGrowth = revenue.Percent(latest.ActiveCustomers-previous.ActiveCustomers, previous.ActiveCustomers)
	}

	if latest.ActiveCustomers > 0 {
		arpu := decimal.NewFromInt(latest.MRRCents).Div(decimal.NewFromInt(latest.ActiveCustomers))
		out.ARPUCents = arpu.Round(0).IntPart()

		if latest.ChurnedCustomers > 0 {
			base := decimal.NewFromInt(latest.ActiveCustomers + latest.ChurnedCustomers)
			churnRatio := decimal.NewFromInt(latest.ChurnedCustomers).Div(base)
			out.CLVCents = arpu.Div(churnRatio).Round(0).IntPart()
		}
	}
	return out
}

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	SnapshotRepo     mrr.Repository
	CustomerRepo     customerdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	snapshotRepo mrr.Repository
	customerRepo customerdomain.Repository
	subRepo      subscriptiondomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("analytics.overview"),
		snapshotRepo: p.SnapshotRepo,
		customerRepo: p.CustomerRepo,
		subRepo:      p.SubscriptionRepo,
	}
}

func (s *Service) Get(ctx context.Context, merchantID string) (KPIs, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return KPIs{}, ErrInvalidMerchant
	}

	snapshots, err := s.snapshotRepo.List(ctx, s.db, merchantID, 2)
	if err != nil {
		return KPIs{}, fmt.Errorf("load mrr snapshots: %w", err)
	}
	total, err := s.customerRepo.CountByMerchant(ctx, s.db, merchantID)
	if err != nil {
		return KPIs{}, fmt.Errorf("count customers: %w", err)
	}
	atRisk, err := s.subRepo.CountAtRisk(ctx, s.db, merchantID)
	if err != nil {
		return KPIs{}, fmt.Errorf("count at-risk customers: %w", err)
	}

	var latest, previous *mrr.Snapshot
	switch len(snapshots) {
	case 0:
	case 1:
		latest = &snapshots[0]
	default:
		previous, latest = &snapshots[len(snapshots)-2], &snapshots[len(snapshots)-1]
	}
	return Compute(latest, previous, total, atRisk), nil
}
