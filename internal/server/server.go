package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/forecast/internal/authorization"
	"github.com/smallbiznis/forecast/internal/config"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
	"github.com/smallbiznis/forecast/internal/observability"
	obsmiddleware "github.com/smallbiznis/forecast/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
	obstracing "github.com/smallbiznis/forecast/internal/observability/tracing"
	"github.com/smallbiznis/forecast/internal/ratelimit"
	refreshdomain "github.com/smallbiznis/forecast/internal/refresh/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	forecast *config.ForecastConfigHolder
	authzSvc authorization.Service
	refresh  refreshdomain.Service
	models   mlmodeldomain.Service
	pipeline forecastdomain.Pipeline
	limiter  ratelimit.Limiter
	log      *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Forecast *config.ForecastConfigHolder
	AuthzSvc authorization.Service
	Refresh  refreshdomain.Service
	Models   mlmodeldomain.Service
	Pipeline forecastdomain.Pipeline
	Limiter  ratelimit.Limiter `optional:"true"`
	Log      *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		forecast: p.Forecast,
		authzSvc: p.AuthzSvc,
		refresh:  p.Refresh,
		models:   p.Models,
		pipeline: p.Pipeline,
		limiter:  p.Limiter,
		log:      p.Log.Named("http.server"),
	}

	svc.registerForecastRoutes()
	svc.registerModelRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerForecastRoutes() {
	forecast := s.engine.Group("/forecast", s.APIKeyRequired())

	forecast.GET("", s.authorize(authorization.ObjectForecast, authorization.ActionForecastView), s.GetForecast)
	forecast.POST("/refresh", s.authorize(authorization.ObjectForecast, authorization.ActionForecastRefresh), s.TrainRateLimit(), s.RefreshForecast)
}

func (s *Server) registerModelRoutes() {
	api := s.engine.Group("", s.APIKeyRequired())

	// -------- Models --------
	api.GET("/models", s.authorize(authorization.ObjectModel, authorization.ActionModelView), s.ListModels)
	api.GET("/models/active", s.authorize(authorization.ObjectModel, authorization.ActionModelView), s.GetActiveModel)
	api.GET("/models/:id", s.authorize(authorization.ObjectModel, authorization.ActionModelView), s.GetModelByID)
	api.POST("/models/train", s.authorize(authorization.ObjectModel, authorization.ActionModelTrain), s.TrainRateLimit(), s.TrainModel)

	// -------- Predictions --------
	api.GET("/predictions", s.authorize(authorization.ObjectModel, authorization.ActionModelView), s.ListPredictions)
}
