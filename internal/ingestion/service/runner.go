package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	"github.com/smallbiznis/revlens/internal/ingestion/domain"
	obscontext "github.com/smallbiznis/revlens/internal/observability/context"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/synclock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const releaseTimeout = 5 * time.Second

type RunnerParams struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Tuning      *config.AnalyticsConfigHolder
	Guard       synclock.Guard
	Connections connectiondomain.Service
	Clients     billingapidomain.Factory
	Coordinator *Coordinator
	MRR         *mrr.Service
	Cohorts     *cohort.Service
}

type Runner struct {
	log         *zap.Logger
	clock       clock.Clock
	tuning      *config.AnalyticsConfigHolder
	guard       synclock.Guard
	connections connectiondomain.Service
	clients     billingapidomain.Factory
	coordinator *Coordinator
	mrr         *mrr.Service
	cohorts     *cohort.Service
	metrics     *obsmetrics.SyncMetrics
}

func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		log:         p.Log.Named("ingestion.runner"),
		clock:       p.Clock,
		tuning:      p.Tuning,
		guard:       p.Guard,
		connections: p.Connections,
		clients:     p.Clients,
		coordinator: p.Coordinator,
		mrr:         p.MRR,
		cohorts:     p.Cohorts,
		metrics:     obsmetrics.Sync(),
	}
}

// Run syncs one merchant while holding its lease, then rebuilds the MRR and
// cohort snapshots when the sync completed.
func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.SyncResult, error) {
	merchantID := strings.TrimSpace(req.MerchantID)
	if merchantID == "" {
		return domain.SyncResult{}, domain.ErrInvalidMerchant
	}
	if req.Trigger == "" {
		req.Trigger = domain.TriggerManual
	}

	ctx, cid := obscontext.EnsureCorrelationID(ctx)
	ctx = obscontext.WithMerchantID(ctx, merchantID)
	ctx = obscontext.WithTrigger(ctx, string(req.Trigger))
	log := r.log.With(
		zap.String("merchant_id", merchantID),
		zap.String("trigger", string(req.Trigger)),
		zap.String("correlation_id", cid),
	)
	start := r.clock.Now()

	if key := strings.TrimSpace(req.APIKey); key != "" {
		if _, err := r.connections.Store(ctx, merchantID, key); err != nil {
			return domain.SyncResult{}, err
		}
	}

	conn, err := r.connections.Get(ctx, merchantID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if !conn.IsValid {
		return domain.SyncResult{}, connectiondomain.ErrInvalidCredential
	}

	lease, err := r.guard.Acquire(ctx, merchantID)
	if err != nil {
		if errors.Is(err, synclock.ErrSyncInProgress) {
			r.metrics.IncLockContention()
			r.metrics.ObserveRun(string(req.Trigger), obsmetrics.SyncStatusSkipped, 0)
			log.Info("ingestion.sync_skipped", zap.String("reason", "in_progress"))
		}
		return domain.SyncResult{}, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Warn("ingestion.lease_release_failed", zap.Error(err))
		}
	}()

	if err := r.checkCooldown(req, conn); err != nil {
		r.metrics.ObserveRun(string(req.Trigger), obsmetrics.SyncStatusSkipped, 0)
		return domain.SyncResult{}, err
	}

	credential, err := r.connections.Credential(ctx, conn)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("open credential: %w", err)
	}
	client, err := r.clients.New(credential)
	if err != nil {
		return domain.SyncResult{}, err
	}

	result, err := r.coordinator.Sync(ctx, domain.SyncRequest{
		MerchantID: merchantID,
		Client:     client,
		FullSync:   req.FullSync,
		LastSyncAt: conn.LastSyncAt,
	})
	if err != nil {
		r.metrics.ObserveRun(string(req.Trigger), obsmetrics.SyncStatusFailed, r.clock.Now().Sub(start))
		return result, err
	}

	r.refreshAnalytics(ctx, log, merchantID)

	r.metrics.ObserveRun(string(req.Trigger), obsmetrics.SyncStatusCompleted, r.clock.Now().Sub(start))
	return result, nil
}

// checkCooldown only limits manual incremental syncs.
func (r *Runner) checkCooldown(req domain.RunRequest, conn *connectiondomain.Connection) error {
	if req.Trigger != domain.TriggerManual || req.FullSync || conn.LastSyncAt == nil {
		return nil
	}
	cooldown := r.tuning.Get().Sync.Cooldown
	if cooldown <= 0 {
		return nil
	}
	elapsed := r.clock.Now().Sub(*conn.LastSyncAt)
	if elapsed >= cooldown {
		return nil
	}
	return &domain.CooldownError{RetryAfter: cooldown - elapsed}
}

// refreshAnalytics rebuilds both snapshot sets. Failures are logged and left
// for the next completed sync, which recomputes everything from scratch.
func (r *Runner) refreshAnalytics(ctx context.Context, log *zap.Logger, merchantID string) {
	if _, err := r.mrr.Recompute(ctx, merchantID); err != nil {
		r.metrics.IncError(obsmetrics.SyncStageAnalytics, err)
		log.Error("ingestion.mrr_recompute_failed", zap.Error(err))
	}
	if _, err := r.cohorts.Recompute(ctx, merchantID); err != nil {
		r.metrics.IncError(obsmetrics.SyncStageAnalytics, err)
		log.Error("ingestion.cohort_recompute_failed", zap.Error(err))
	}
}
