package billingapi

import (
	"github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/smallbiznis/revlens/internal/billingapi/stripeclient"
	"go.uber.org/fx"
)

var Module = fx.Module("billingapi",
	fx.Provide(
		fx.Annotate(stripeclient.NewFactory, fx.As(new(domain.Factory))),
	),
)
