package ingestion

import (
	"github.com/smallbiznis/revlens/internal/ingestion/domain"
	"github.com/smallbiznis/revlens/internal/ingestion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingestion.service",
	fx.Provide(service.NewCoordinator),
	fx.Provide(
		service.NewRunner,
		func(r *service.Runner) domain.Runner { return r },
	),
)
