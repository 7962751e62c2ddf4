package mlmodel

import (
	"github.com/smallbiznis/forecast/internal/mlmodel/repository"
	"github.com/smallbiznis/forecast/internal/mlmodel/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mlmodel.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
