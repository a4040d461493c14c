package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/simwatch/internal/clock"
	"github.com/smallbiznis/simwatch/internal/config"
	"github.com/smallbiznis/simwatch/internal/coordinator"
	"github.com/smallbiznis/simwatch/internal/dispatch"
	"github.com/smallbiznis/simwatch/internal/observability"
	"github.com/smallbiznis/simwatch/internal/server"
	"github.com/smallbiznis/simwatch/internal/setup"
	"github.com/smallbiznis/simwatch/internal/simbase"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),

		// Functional domains
		simbase.Module,
		setup.Module,
		coordinator.Module,
		dispatch.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
