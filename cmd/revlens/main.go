package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/analytics/churn"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/analytics/overview"
	"github.com/smallbiznis/revlens/internal/billingapi"
	"github.com/smallbiznis/revlens/internal/billingevent"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	"github.com/smallbiznis/revlens/internal/connection"
	"github.com/smallbiznis/revlens/internal/customer"
	"github.com/smallbiznis/revlens/internal/ingestion"
	"github.com/smallbiznis/revlens/internal/migration"
	"github.com/smallbiznis/revlens/internal/observability"
	"github.com/smallbiznis/revlens/internal/scheduler"
	"github.com/smallbiznis/revlens/internal/server"
	"github.com/smallbiznis/revlens/internal/subscription"
	"github.com/smallbiznis/revlens/internal/synclock"
	"github.com/smallbiznis/revlens/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Storage
		customer.Module,
		subscription.Module,
		billingevent.Module,

		// Sync
		billingapi.Module,
		connection.Module,
		synclock.Module,
		ingestion.Module,
		scheduler.Module,

		// Analytics
		mrr.Module,
		cohort.Module,
		churn.Module,
		overview.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
