package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/revlens/internal/observability/context"
	obslogger "github.com/smallbiznis/revlens/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	job         string
	runID       string
	concurrency int
	startedAt   time.Time
	completed   int
	skipped     int
	failed      int
}

func (s *Scheduler) startJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:         job,
		runID:       s.genID.Generate().String(),
		concurrency: s.cfg.Concurrency,
		startedAt:   s.clock.Now(),
	}
	ctx = obscontext.WithCorrelationID(ctx, run.runID)
	ctx = obscontext.WithTrigger(ctx, job)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun, merchants int) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("concurrency", run.concurrency),
		zap.Int("merchants", merchants),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("completed_count", run.completed),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.failed),
	}
	log := s.logger(ctx)
	if run.failed > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logMerchantError(ctx context.Context, run *jobRun, merchantID string, err error) {
	s.logger(ctx).Error("scheduler.merchant.failed",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("merchant_id", merchantID),
		zap.String("error_type", obsmetrics.ClassifyError(err)),
		zap.Bool("retryable", obsmetrics.IsRetryable(err)),
		zap.Error(err),
	)
}
