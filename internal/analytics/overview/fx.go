package overview

import "go.uber.org/fx"

var Module = fx.Module("analytics.overview",
	fx.Provide(NewService),
)
