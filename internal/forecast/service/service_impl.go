package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smallbiznis/forecast/internal/clock"
	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	"github.com/smallbiznis/forecast/internal/forecast/artifact"
	"github.com/smallbiznis/forecast/internal/forecast/assembler"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/smallbiznis/forecast/internal/forecast/evaluate"
	"github.com/smallbiznis/forecast/internal/forecast/features"
	"github.com/smallbiznis/forecast/internal/forecast/projector"
	"github.com/smallbiznis/forecast/internal/forecast/regression"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
	obscontext "github.com/smallbiznis/forecast/internal/observability/context"
	"github.com/smallbiznis/forecast/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
	"github.com/smallbiznis/forecast/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidCompany = errors.New("invalid_company_id")

// versionLayout keeps default versions unique across runs in the same second.
const versionLayout = "20060102150405.000000"

type Params struct {
	fx.In

	Dataset   datasetdomain.Service
	Models    mlmodeldomain.Service `optional:"true"`
	Forecast  *config.ForecastConfigHolder
	Clock     clock.Clock
	Artifacts *artifact.Store
	Log       *zap.Logger
	Metrics   *obsmetrics.ForecastMetrics `optional:"true"`
	Recorder  *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	dataset   datasetdomain.Service
	models    mlmodeldomain.Service
	forecast  *config.ForecastConfigHolder
	clock     clock.Clock
	artifacts *artifact.Store
	log       *zap.Logger
	metrics   *obsmetrics.ForecastMetrics
	recorder  *obsmetrics.Metrics
}

func New(p Params) forecastdomain.Pipeline {
	return &Service{
		dataset:   p.Dataset,
		models:    p.Models,
		forecast:  p.Forecast,
		clock:     p.Clock,
		artifacts: p.Artifacts,
		log:       p.Log.Named("forecast.service"),
		metrics:   p.Metrics,
		recorder:  p.Recorder,
	}
}

// trainingSet is the feature table restricted to rows with an observed target.
type trainingSet struct {
	X [][]float64
	y []float64
}

func (s *Service) Train(ctx context.Context, req forecastdomain.TrainRequest) (result forecastdomain.TrainResult, err error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return forecastdomain.TrainResult{}, ErrInvalidCompany
	}

	cfg := s.forecast.Get()
	now := s.clock.Now()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = cfg.ModelName
	}
	version := strings.TrimSpace(req.Version)
	if version == "" {
		version = "v" + now.UTC().Format(versionLayout)
	}

	ctx, runID := obscontext.EnsureRunID(ctx)
	ctx = obscontext.WithCompanyID(ctx, companyID)
	ctx, end := tracing.Start(ctx, "forecast.train",
		attribute.String("company_id", companyID),
		attribute.String("model_name", name),
		attribute.String("version", version),
	)
	started := time.Now()
	log := logger.FromContext(ctx).With(zap.String("model_name", name), zap.String("version", version))
	defer func() {
		s.metrics.ObservePipeline(time.Since(started), err)
		end(err)
		if err != nil {
			log.Warn("training failed", zap.Error(err))
		}
	}()

	result = forecastdomain.TrainResult{
		RunID:     runID,
		CompanyID: companyID,
		Name:      name,
		Version:   version,
		TrainedAt: now,
	}

	var frame *datasetdomain.Frame
	if err = s.stage(ctx, obsmetrics.StageLoad, func(ctx context.Context) error {
		frame, err = s.dataset.Load(ctx, companyID)
		return err
	}); err != nil {
		return result, err
	}

	var (
		table *features.Table
		set   trainingSet
	)
	if err = s.stage(ctx, obsmetrics.StageFeatures, func(context.Context) error {
		table, err = features.Build(frame, cfg.Target, datasetdomain.Columns)
		if err != nil {
			return err
		}
		set, result.SkippedRows = observedRows(table)
		if result.SkippedRows > 0 {
			log.Warn("rows without an observed target left out of training",
				zap.String("target", cfg.Target),
				zap.Int("skipped_rows", result.SkippedRows),
			)
		}
		if len(set.y) == 0 {
			return fmt.Errorf("%w: no observed %s values", forecastdomain.ErrInsufficientData, cfg.Target)
		}
		return nil
	}); err != nil {
		return result, err
	}
	result.Rows = len(set.y)
	result.Features = table.Columns

	params := regression.ParamsFromConfig(cfg.Forest)
	var forest *regression.Forest
	if err = s.stage(ctx, obsmetrics.StageEvaluate, func(ctx context.Context) error {
		result.Metrics, err = holdOut(ctx, set, cfg.TrainRatio, params)
		return err
	}); err != nil {
		return result, err
	}
	if err = s.stage(ctx, obsmetrics.StageTrain, func(ctx context.Context) error {
		forest, err = regression.Fit(ctx, set.X, set.y, params)
		return err
	}); err != nil {
		return result, err
	}
	s.metrics.SetModelScore(name, "mae", result.Metrics.MAE)
	s.metrics.SetModelScore(name, "rmse", result.Metrics.RMSE)
	s.metrics.SetModelScore(name, "mape", result.Metrics.MAPE)

	horizon := max(cfg.LongestHorizonDays(), req.HorizonDays)
	if horizon > cfg.MaxHorizonDays {
		log.Warn("horizon clamped", zap.Int("requested_days", horizon), zap.Int("max_days", cfg.MaxHorizonDays))
		horizon = cfg.MaxHorizonDays
	}
	if err = s.stage(ctx, obsmetrics.StageProject, func(ctx context.Context) error {
		projected, err := projector.Project(ctx, projector.Request{
			History:        frame,
			Target:         cfg.Target,
			Schema:         datasetdomain.Columns,
			FeatureColumns: table.Columns,
			RollingWindow:  cfg.RollingWindow,
			HorizonDays:    horizon,
		}, forest)
		if err != nil {
			return err
		}
		result.Forecast, err = assembler.Assemble(cfg.Target, now, projected.Dates[0], projected.Predictions, cfg.HorizonMonths)
		return err
	}); err != nil {
		return result, err
	}

	if err = s.stage(ctx, obsmetrics.StageArtifact, func(context.Context) error {
		result.ArtifactURI, err = s.artifacts.Write(companyID, version, result.Metrics, result.Forecast)
		return err
	}); err != nil {
		return result, err
	}

	if req.SkipPersist || s.models == nil {
		log.Info("training finished without commit", zap.Int("rows", result.Rows), zap.String("artifact_uri", result.ArtifactURI))
		return result, nil
	}

	if err = s.stage(ctx, obsmetrics.StagePersist, func(ctx context.Context) error {
		model, err := s.models.Commit(ctx, mlmodeldomain.CommitRequest{
			CompanyID:         companyID,
			Name:              name,
			Version:           version,
			Status:            mlmodeldomain.StatusActive,
			Metrics:           result.Metrics,
			Forecast:          result.Forecast,
			DeprecatePrevious: true,
			TrainedAt:         now,
			ArtifactURI:       result.ArtifactURI,
		})
		if err != nil {
			return err
		}
		result.ModelID = int64(model.ID)
		return nil
	}); err != nil {
		return result, err
	}
	s.recorder.RecordModelCommitted(ctx, string(mlmodeldomain.StatusActive))

	log.Info("model trained",
		zap.Int64("model_id", result.ModelID),
		zap.Int("rows", result.Rows),
		zap.Int("horizon_days", horizon),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, end := tracing.Start(ctx, "forecast."+name)
	started := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStage(name, time.Since(started))
	end(err)
	return err
}

// holdOut fits on the chronological head and scores the tail.
func holdOut(ctx context.Context, set trainingSet, ratio float64, params regression.Params) (forecastdomain.Metrics, error) {
	split := evaluate.Split(len(set.y), ratio)
	if split >= len(set.y) {
		return forecastdomain.Metrics{}, nil
	}
	forest, err := regression.Fit(ctx, set.X[:split], set.y[:split], params)
	if err != nil {
		return forecastdomain.Metrics{}, err
	}
	predicted, err := forest.PredictBatch(set.X[split:])
	if err != nil {
		return forecastdomain.Metrics{}, err
	}
	return evaluate.Score(set.y[split:], predicted)
}

// observedRows keeps rows with an observed target and counts the rest.
func observedRows(table *features.Table) (trainingSet, int) {
	set := trainingSet{
		X: make([][]float64, 0, table.Len()),
		y: make([]float64, 0, table.Len()),
	}
	skipped := 0
	for i, target := range table.Target {
		if math.IsNaN(target) {
			skipped++
			continue
		}
		set.X = append(set.X, table.Rows[i])
		set.y = append(set.y, target)
	}
	return set, skipped
}
