package billingevent

import (
	"github.com/smallbiznis/revlens/internal/billingevent/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent.repository",
	fx.Provide(repository.Provide),
)
