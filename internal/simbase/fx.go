package simbase

import (
	"github.com/smallbiznis/simwatch/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("simbase",
	fx.Provide(provideClient),
)

func provideClient(cfg config.Config, log *zap.Logger) (*Client, error) {
	return New(Config{
		BaseURL:   cfg.APIBaseURL,
		APIKey:    cfg.APIKey,
		PageLimit: cfg.PageLimit,
		PageDelay: cfg.PageDelay,
	}, log)
}
