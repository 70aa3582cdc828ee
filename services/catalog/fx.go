package catalog

import "go.uber.org/fx"

var Module = fx.Module("catalog.repository",
	fx.Provide(NewRepository),
)
