package forecast

import (
	"github.com/smallbiznis/forecast/internal/config"
	"github.com/smallbiznis/forecast/internal/forecast/artifact"
	"github.com/smallbiznis/forecast/internal/forecast/service"
	"go.uber.org/fx"
)

var Module = fx.Module("forecast.pipeline",
	fx.Provide(func(cfg config.Config) *artifact.Store { return artifact.NewStore(cfg.ArtifactDir) }),
	fx.Provide(service.New),
)
