package discount

import "go.uber.org/fx"

var Module = fx.Module("discount.service",
	fx.Provide(NewService),
)
