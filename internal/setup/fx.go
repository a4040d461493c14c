package setup

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/simwatch/internal/simbase"
)

var Module = fx.Module("setup",
	fx.Invoke(runStartupChecks),
)

// runStartupChecks probes credentials before the refresh loop starts so a
// bad key fails the boot instead of producing an endlessly stale snapshot.
func runStartupChecks(lc fx.Lifecycle, client *simbase.Client, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ValidateCredentials(ctx, client, log.Named("setup"))
		},
	})
}
