package refresh

import (
	"github.com/smallbiznis/forecast/internal/refresh/lock"
	"github.com/smallbiznis/forecast/internal/refresh/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refresh.service",
	fx.Provide(lock.NewRedisClient),
	fx.Provide(lock.New),
	fx.Provide(service.New),
)
