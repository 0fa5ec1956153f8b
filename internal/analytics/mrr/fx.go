package mrr

import "go.uber.org/fx"

var Module = fx.Module("analytics.mrr",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
)
