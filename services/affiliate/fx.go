package affiliate

import "go.uber.org/fx"

var Module = fx.Module("affiliate.service",
	fx.Provide(PolicyFromConfig),
	fx.Provide(NewService),
)
