package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/forecast/internal/clock"
	"github.com/smallbiznis/forecast/internal/config"
	"github.com/smallbiznis/forecast/internal/dataset"
	"github.com/smallbiznis/forecast/internal/forecast"
	"github.com/smallbiznis/forecast/internal/migration"
	"github.com/smallbiznis/forecast/internal/mlmodel"
	"github.com/smallbiznis/forecast/internal/observability"
	"github.com/smallbiznis/forecast/internal/refresh"
	"github.com/smallbiznis/forecast/internal/scheduler"
	"github.com/smallbiznis/forecast/internal/server"
	"github.com/smallbiznis/forecast/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		dataset.Module,
		mlmodel.Module,
		forecast.Module,
		refresh.Module,
		scheduler.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
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
