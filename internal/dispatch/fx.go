package dispatch

import (
	"context"

	"github.com/smallbiznis/simwatch/internal/coordinator"
	"go.uber.org/fx"
)

const defaultEntryID = "primary"

var Module = fx.Module("dispatch",
	fx.Provide(NewRegistry),
	fx.Provide(NewDispatcher),
	fx.Invoke(registerCoordinator),
)

func registerCoordinator(lc fx.Lifecycle, registry *Registry, coord *coordinator.Coordinator) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			registry.Register(defaultEntryID, coord)
			return nil
		},
		OnStop: func(context.Context) error {
			registry.Deregister(defaultEntryID)
			return nil
		},
	})
}
