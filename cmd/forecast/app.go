package main

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/forecast/internal/clock"
	"github.com/smallbiznis/forecast/internal/config"
	"github.com/smallbiznis/forecast/internal/dataset"
	"github.com/smallbiznis/forecast/internal/forecast"
	"github.com/smallbiznis/forecast/internal/migration"
	"github.com/smallbiznis/forecast/internal/mlmodel"
	"github.com/smallbiznis/forecast/internal/observability"
	"github.com/smallbiznis/forecast/pkg/db"
	"go.uber.org/fx"
)

// appOptions selects the parts of the service graph a command needs.
type appOptions struct {
	// csvPath forces the CSV source when set.
	csvPath string
	// store wires the database and model store.
	store bool
}

// startApp builds the dependency graph, starts it and fills targets.
// The returned stop function must be called once the command finishes.
func startApp(ctx context.Context, opts appOptions, targets ...any) (func(), error) {
	options := []fx.Option{
		config.Module,
		observability.Module,
		clock.Module,
		dataset.Module,
		forecast.Module,
		fx.NopLogger,
		fx.Decorate(func(cfg config.Config) config.Config {
			if path := strings.TrimSpace(opts.csvPath); path != "" {
				cfg.Dataset.Source = config.SourceCSV
				cfg.Dataset.CSVPath = path
			}
			return cfg
		}),
		fx.Populate(targets...),
	}
	if opts.store {
		options = append(options,
			fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(2) }),
			db.Module,
			migration.Module,
			mlmodel.Module,
		)
	}

	app := fx.New(options...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		_ = app.Stop(context.Background())
	}, nil
}
