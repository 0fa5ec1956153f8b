package churn

import "go.uber.org/fx"

var Module = fx.Module("analytics.churn",
	fx.Provide(NewAggregator),
)
