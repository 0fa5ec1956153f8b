package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/revlens/internal/analytics/churn"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/analytics/overview"
	"github.com/smallbiznis/revlens/internal/config"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	ingestiondomain "github.com/smallbiznis/revlens/internal/ingestion/domain"
	"github.com/smallbiznis/revlens/internal/observability"
	obsmiddleware "github.com/smallbiznis/revlens/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	obstracing "github.com/smallbiznis/revlens/internal/observability/tracing"
	"github.com/smallbiznis/revlens/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type sweeper interface {
	Sweep(ctx context.Context) (scheduler.SweepReport, error)
}

type mrrReader interface {
	History(ctx context.Context, merchantID string, months int) ([]mrr.Snapshot, error)
}

type cohortReader interface {
	List(ctx context.Context, merchantID string) ([]cohort.Snapshot, error)
}

type churnReader interface {
	Current(ctx context.Context, merchantID string) (churn.Metrics, error)
	Trend(ctx context.Context, merchantID string) ([]churn.TrendPoint, error)
}

type overviewReader interface {
	Get(ctx context.Context, merchantID string) (overview.KPIs, error)
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	connectionSvc connectiondomain.Service
	runner        ingestiondomain.Runner
	sweeper       sweeper
	mrrSvc        mrrReader
	cohortSvc     cohortReader
	churnSvc      churnReader
	overviewSvc   overviewReader
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	ConnectionSvc connectiondomain.Service
	Runner        ingestiondomain.Runner
	Scheduler     *scheduler.Scheduler
	MRRSvc        *mrr.Service
	CohortSvc     *cohort.Service
	ChurnSvc      *churn.Aggregator
	OverviewSvc   *overview.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http"),
		connectionSvc: p.ConnectionSvc,
		runner:        p.Runner,
		sweeper:       p.Scheduler,
		mrrSvc:        p.MRRSvc,
		cohortSvc:     p.CohortSvc,
		churnSvc:      p.ChurnSvc,
		overviewSvc:   p.OverviewSvc,
	}

	svc.registerAPIRoutes()
	svc.registerCronRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", MerchantRequired())

	api.GET("/connections", s.GetConnection)
	api.POST("/connections", s.CreateConnection)
	api.POST("/connections/validate", s.ValidateConnection)

	api.POST("/sync", s.TriggerSync)

	analytics := api.Group("/analytics")
	{
		analytics.GET("/mrr", s.GetMRR)
		analytics.GET("/cohorts", s.GetCohorts)
		analytics.GET("/churn", s.GetChurn)
		analytics.GET("/overview", s.GetOverview)
	}
}

func (s *Server) registerCronRoutes() {
	cron := s.engine.Group("/api/cron", s.CronAuthRequired())

	cron.POST("/sync", s.CronSync)
}
