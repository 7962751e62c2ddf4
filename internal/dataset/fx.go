package dataset

import (
	"github.com/smallbiznis/forecast/internal/dataset/repository"
	"github.com/smallbiznis/forecast/internal/dataset/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dataset.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewSource),
	fx.Provide(service.New),
)
