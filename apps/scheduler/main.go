package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/billingapi"
	"github.com/smallbiznis/revlens/internal/billingevent"
	"github.com/smallbiznis/revlens/internal/clock"
	"github.com/smallbiznis/revlens/internal/config"
	"github.com/smallbiznis/revlens/internal/connection"
	"github.com/smallbiznis/revlens/internal/customer"
	"github.com/smallbiznis/revlens/internal/ingestion"
	"github.com/smallbiznis/revlens/internal/observability"
	"github.com/smallbiznis/revlens/internal/scheduler"
	"github.com/smallbiznis/revlens/internal/subscription"
	"github.com/smallbiznis/revlens/internal/synclock"
	"github.com/smallbiznis/revlens/pkg/db"
	"go.uber.org/fx"
)

// The scheduler binary runs the periodic sync sweep without the HTTP
// surface. Run one instance per deployment; the sync lock keeps a merchant
// from being synced twice when the API also triggers one.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		customer.Module,
		subscription.Module,
		billingevent.Module,

		billingapi.Module,
		connection.Module,
		synclock.Module,
		ingestion.Module,
		scheduler.Module,

		// Runner refreshes snapshots after each completed sync.
		mrr.Module,
		cohort.Module,

		// No server module; reads are served by cmd/revlens.
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
