package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/clock"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	ingestiondomain "github.com/smallbiznis/revlens/internal/ingestion/domain"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/synclock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const jobSyncSweep = "sync_sweep"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Merchant outcomes of a sweep.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Connections connectiondomain.Service
	Runner      ingestiondomain.Runner
	Config      Config `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	connections connectiondomain.Service
	runner      ingestiondomain.Runner
}

// MerchantResult is the outcome of one merchant's sync within a sweep.
type MerchantResult struct {
	MerchantID string                     `json:"merchant_id"`
	Outcome    string                     `json:"outcome"`
	Result     ingestiondomain.SyncResult `json:"result"`
	Error      string                     `json:"error,omitempty"`
}

type SweepReport struct {
	RunID   string           `json:"run_id"`
	Results []MerchantResult `json:"results"`
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Connections == nil || p.Runner == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		connections: p.Connections,
		runner:      p.Runner,
	}, nil
}

// Sweep syncs every merchant with a valid connection, at most
// Config.Concurrency at a time. A merchant's failure never stops the others;
// all failures are joined into the returned error.
func (s *Scheduler) Sweep(parent context.Context) (SweepReport, error) {
	start := s.clock.Now()
	metrics := obsmetrics.Sync()
	metrics.IncJobRun(jobSyncSweep)

	ctx, run := s.startJobRun(parent, jobSyncSweep)
	report := SweepReport{RunID: run.runID}

	conns, err := s.connections.ListValid(ctx)
	if err != nil {
		metrics.IncJobError(jobSyncSweep, err)
		return report, fmt.Errorf("list connections: %w", err)
	}
	s.logJobStart(ctx, run, len(conns))

	report.Results = make([]MerchantResult, len(conns))
	errs := make([]error, len(conns))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, conn := range conns {
		g.Go(func() error {
			report.Results[i], errs[i] = s.syncMerchant(ctx, conn.MerchantID)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range report.Results {
		switch res.Outcome {
		case OutcomeCompleted:
			run.completed++
		case OutcomeSkipped:
			run.skipped++
		default:
			run.failed++
			s.logMerchantError(ctx, run, res.MerchantID, errs[i])
		}
	}

	joined := errors.Join(errs...)
	if joined != nil {
		metrics.IncJobError(jobSyncSweep, joined)
	}
	metrics.ObserveJobDuration(jobSyncSweep, s.clock.Now().Sub(start))
	s.logJobFinish(ctx, run)
	return report, joined
}

// syncMerchant bounds a single sync with the run timeout. The timeout only
// guards against a stuck provider; the runner never cancels on its own.
func (s *Scheduler) syncMerchant(parent context.Context, merchantID string) (MerchantResult, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	out := MerchantResult{MerchantID: merchantID}
	result, err := s.runner.Run(ctx, ingestiondomain.RunRequest{
		MerchantID: merchantID,
		Trigger:    ingestiondomain.TriggerSweep,
	})
	out.Result = result

	switch {
	case err == nil:
		out.Outcome = OutcomeCompleted
		return out, nil
	case errors.Is(err, synclock.ErrSyncInProgress):
		out.Outcome = OutcomeSkipped
		out.Error = err.Error()
		return out, nil
	default:
		out.Outcome = OutcomeFailed
		out.Error = err.Error()
		return out, fmt.Errorf("merchant %s: %w", merchantID, err)
	}
}

// RunForever sweeps once per RunInterval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()
	metrics := obsmetrics.Sync()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		nextRun = nextRun.Add(s.cfg.RunInterval)
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			metrics.ObserveRunLoopLag(lag)
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Warn("scheduler sweep finished with errors", zap.Error(err))
		}
	}
}
