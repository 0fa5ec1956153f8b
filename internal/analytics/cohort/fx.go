package cohort

import "go.uber.org/fx"

var Module = fx.Module("analytics.cohort",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
)
