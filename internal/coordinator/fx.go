package coordinator

import (
	"context"
	"time"

	"github.com/smallbiznis/simwatch/internal/config"
	"github.com/smallbiznis/simwatch/internal/setup"
	"github.com/smallbiznis/simwatch/internal/simbase"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("coordinator",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideIntervalSource),
	fx.Provide(func(c *simbase.Client) API { return c }),
	fx.Provide(New),
	fx.Invoke(Start),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		ScanInterval: cfg.ScanInterval,
		BulkDelay:    cfg.BulkDelay,
	}
}

// ProvideIntervalSource feeds the hot-reloaded options interval into the
// refresh loop. The options value wins over the env default whenever set.
func ProvideIntervalSource(holder *config.OptionsHolder, log *zap.Logger) IntervalSource {
	log = log.Named("coordinator")
	return func() time.Duration {
		opts := setup.NormalizeOptions(holder.Get(), log)
		return time.Duration(opts.ScanIntervalSeconds) * time.Second
	}
}

// Start runs the refresh loop for the application lifetime. The first cycle
// runs immediately so a snapshot is available shortly after boot.
func Start(lc fx.Lifecycle, coord *Coordinator) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			loopCtx, cancel := context.WithCancel(context.Background())

			go coord.RunForever(loopCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
