// Package churn derives customer and revenue churn rates from MRR snapshots.
package churn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/analytics/revenue"
	subscriptiondomain "github.com/smallbiznis/revlens/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidMerchant = errors.New("invalid_merchant")

// Rates are percentages rounded to two decimals. Net revenue churn is
// negative when expansion outgrows churn.
type Rates struct {
	CustomerChurnRate   float64 `json:"customer_churn_rate"`
	RevenueChurnRate    float64 `json:"revenue_churn_rate"`
	NetRevenueChurnRate float64 `json:"net_revenue_churn_rate"`
}

type Metrics struct {
	Month *time.Time `json:"month,omitempty"`
	Rates
	PreviousCustomerChurnRate float64 `json:"previous_customer_churn_rate"`
	ChurnedCustomers          int64   `json:"churned_customers"`
	ChurnedMRRCents           int64   `json:"churned_mrr_cents"`
	AtRiskCustomers           int64   `json:"at_risk_customers"`
}

type TrendPoint struct {
	Month time.Time `json:"month"`
	Rates
	ChurnedCustomers int64 `json:"churned_customers"`
	ChurnedMRRCents  int64 `json:"churned_mrr_cents"`
}

// RatesOf applies the churn formulas to one snapshot. Each rate is 0 when
// its denominator is 0.
func RatesOf(s mrr.Snapshot) Rates {
	customerBase := s.ActiveCustomers + s.ChurnedCustomers
	revenueBase := s.MRRCents + s.ChurnedMRRCents
	return Rates{
		CustomerChurnRate:   revenue.Percent(s.ChurnedCustomers, customerBase),
		RevenueChurnRate:    revenue.Percent(s.ChurnedMRRCents, revenueBase),
		NetRevenueChurnRate: revenue.Percent(s.ChurnedMRRCents-s.ExpansionMRRCents, revenueBase),
	}
}

// Summarize reads the latest snapshot, and the one before it for the delta.
// Snapshots must be in chronological order.
func Summarize(snapshots []mrr.Snapshot) Metrics {
	if len(snapshots) == 0 {
		return Metrics{}
	}
	latest := snapshots[len(snapshots)-1]
	month := latest.Month

	out := Metrics{
		Month:            &month,
		Rates:            RatesOf(latest),
		ChurnedCustomers: latest.ChurnedCustomers,
		ChurnedMRRCents:  latest.ChurnedMRRCents,
	}
	if len(snapshots) > 1 {
		out.PreviousCustomerChurnRate = RatesOf(snapshots[len(snapshots)-2]).CustomerChurnRate
	}
	return out
}

// TrendOf applies RatesOf across the whole history.
func TrendOf(snapshots []mrr.Snapshot) []TrendPoint {
	out := make([]TrendPoint, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, TrendPoint{
			Month:            s.Month,
			Rates:            RatesOf(s),
			ChurnedCustomers: s.ChurnedCustomers,
			ChurnedMRRCents:  s.ChurnedMRRCents,
		})
	}
	return out
}

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	SnapshotRepo     mrr.Repository
	SubscriptionRepo subscriptiondomain.Repository
}

type Aggregator struct {
	db           *gorm.DB
	log          *zap.Logger
	snapshotRepo mrr.Repository
	subRepo      subscriptiondomain.Repository
}

func NewAggregator(p Params) *Aggregator {
	return &Aggregator{
		db:           p.DB,
		log:          p.Log.Named("analytics.churn"),
		snapshotRepo: p.SnapshotRepo,
		subRepo:      p.SubscriptionRepo,
	}
}

func (a *Aggregator) Current(ctx context.Context, merchantID string) (Metrics, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return Metrics{}, ErrInvalidMerchant
	}

	snapshots, err := a.snapshotRepo.List(ctx, a.db, merchantID, 2)
	if err != nil {
		return Metrics{}, fmt.Errorf("load mrr snapshots: %w", err)
	}
	atRisk, err := a.subRepo.CountAtRisk(ctx, a.db, merchantID)
	if err != nil {
		return Metrics{}, fmt.Errorf("count at-risk customers: %w", err)
	}

	out := Summarize(snapshots)
	out.AtRiskCustomers = atRisk
	return out, nil
}

func (a *Aggregator) Trend(ctx context.Context, merchantID string) ([]TrendPoint, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, ErrInvalidMerchant
	}

	snapshots, err := a.snapshotRepo.List(ctx, a.db, merchantID, 0)
	if err != nil {
		return nil, fmt.Errorf("load mrr snapshots: %w", err)
	}
	return TrendOf(snapshots), nil
}
