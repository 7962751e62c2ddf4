package service

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/forecast/internal/clock"
	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	datasetmocks "github.com/smallbiznis/forecast/internal/dataset/mocks"
	"github.com/smallbiznis/forecast/internal/forecast/artifact"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
	mlmodelrepository "github.com/smallbiznis/forecast/internal/mlmodel/repository"
	mlmodelservice "github.com/smallbiznis/forecast/internal/mlmodel/service"
	"github.com/smallbiznis/forecast/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var historyStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatHistory(days int, target float64) *datasetdomain.Frame {
	frame := datasetdomain.NewFrame(datasetdomain.Columns)
	for i := 0; i < days; i++ {
		values := map[string]float64{}
		for _, column := range datasetdomain.Columns {
			values[column] = 10
		}
		values[datasetdomain.DefaultTarget] = target
		frame.Append(historyStart.AddDate(0, 0, i), values)
	}
	return frame
}

type fixture struct {
	pipeline  forecastdomain.Pipeline
	dataset   *datasetmocks.MockService
	models    mlmodeldomain.Service
	clock     *clock.FakeClock
	artifacts string
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	conn := dbtest.Open(t)
	require.NoError(t, conn.AutoMigrate(&mlmodeldomain.Model{}, &mlmodeldomain.Prediction{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	models := mlmodelservice.New(mlmodelservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  mlmodelrepository.Provide(),
	})

	cfg := config.DefaultForecastConfig()
	cfg.Forest.Trees = 10
	cfg.Forest.Workers = 2

	dataset := datasetmocks.NewMockService(ctrl)
	dir := t.TempDir()
	return fixture{
		pipeline: New(Params{
			Dataset:   dataset,
			Models:    models,
			Forecast:  config.NewStaticForecastConfigHolder(cfg),
			Clock:     fake,
			Artifacts: artifact.NewStore(dir),
			Log:       zap.NewNop(),
		}),
		dataset:   dataset,
		models:    models,
		clock:     fake,
		artifacts: dir,
	}
}

func TestTrainFlatHistoryForecastsFlatRevenue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(120, 1000), nil).Times(1)

	result, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, "forecast_rf", result.Name)
	assert.Equal(t, "v20240601090000.000000", result.Version)
	assert.Equal(t, 120, result.Rows)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 90000.0, result.Forecast.Totals["3_months"])
	assert.Equal(t, 180000.0, result.Forecast.Totals["6_months"])
	assert.Equal(t, 360000.0, result.Forecast.Totals["12_months"])
	require.Len(t, result.Forecast.Daily, 360)
	assert.Equal(t, "2024-04-30", result.Forecast.Daily[0].Date)
	require.True(t, result.Metrics.Available())
	assert.Zero(t, *result.Metrics.MAE)

	active, err := f.models.QueryActive(ctx, "c-1", "forecast_rf")
	require.NoError(t, err)
	assert.Equal(t, result.ModelID, int64(active.ID))
	assert.Equal(t, result.ArtifactURI, active.ArtifactURI)

	total, err := f.models.QueryTotal(ctx, active.ID, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), 90)
	require.NoError(t, err)
	assert.Equal(t, "90000", total.PredictedRevenue.String())

	for _, name := range []string{artifact.MetricsFile, artifact.ForecastFile} {
		_, err := os.Stat(filepath.Join(f.artifacts, "c-1", result.Version, name))
		assert.NoError(t, err)
	}
}

func TestTrainTwiceKeepsOneActiveModel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(40, 500), nil).Times(2)

	first, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1"})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)

	deprecated, err := f.models.ListModels(ctx, mlmodeldomain.ListModelsRequest{CompanyID: "c-1", Status: "DEPRECATED"})
	require.NoError(t, err)
	require.Len(t, deprecated.Models, 1)
	assert.Equal(t, first.Version, deprecated.Models[0].Version)

	active, err := f.models.QueryActive(ctx, "c-1", "forecast_rf")
	require.NoError(t, err)
	assert.Equal(t, second.Version, active.Version)
}

func TestTrainSkipPersistLeavesStoreUntouched(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(10, 100), nil)

	result, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1", SkipPersist: true, HorizonDays: 400})
	require.NoError(t, err)
	assert.Zero(t, result.ModelID)
	assert.Len(t, result.Forecast.Daily, 400)

	_, err = f.models.QueryActive(ctx, "c-1", "forecast_rf")
	assert.ErrorIs(t, err, mlmodeldomain.ErrNotFound)
}

func TestTrainPropagatesLoadErrors(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().Load(gomock.Any(), "ghost").
		Return(nil, datasetdomain.ErrNoHistory)

	_, err := f.pipeline.Train(context.Background(), forecastdomain.TrainRequest{CompanyID: "ghost"})
	assert.ErrorIs(t, err, datasetdomain.ErrNoHistory)

	_, err = f.pipeline.Train(context.Background(), forecastdomain.TrainRequest{CompanyID: "  "})
	assert.ErrorIs(t, err, ErrInvalidCompany)
}

func TestTrainWithoutObservedTarget(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(5, math.NaN()), nil)

	_, err := f.pipeline.Train(context.Background(), forecastdomain.TrainRequest{CompanyID: "c-1"})
	assert.ErrorIs(t, err, forecastdomain.ErrInsufficientData)
}

func TestTrainRejectsDuplicateVersion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(10, 100), nil).Times(2)

	_, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1", Version: "v1"})
	require.NoError(t, err)
	_, err = f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1", Version: "v1"})
	assert.ErrorIs(t, err, mlmodeldomain.ErrVersionConflict)
}

func TestTrainClampsHorizonToLimit(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(10, 100), nil)

	result, err := f.pipeline.Train(context.Background(), forecastdomain.TrainRequest{CompanyID: "c-1", SkipPersist: true, HorizonDays: 27000})
	require.NoError(t, err)
	assert.Len(t, result.Forecast.Daily, config.DefaultForecastConfig().MaxHorizonDays)
}

func TestTrainCountsRowsWithoutTarget(t *testing.T) {
	f := setup(t)
	history := flatHistory(30, 100)
	for _, i := range []int{4, 11, 20} {
		history.Set(datasetdomain.DefaultTarget, i, math.NaN())
	}
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(history, nil)

	result, err := f.pipeline.Train(context.Background(), forecastdomain.TrainRequest{CompanyID: "c-1", SkipPersist: true})
	require.NoError(t, err)
	assert.Equal(t, 27, result.Rows)
	assert.Equal(t, 3, result.SkippedRows)
}

func TestTrainDefaultVersionsDifferWithinOneSecond(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.dataset.EXPECT().Load(gomock.Any(), "c-1").Return(flatHistory(20, 100), nil).Times(2)

	first, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1"})
	require.NoError(t, err)
	f.clock.Advance(250 * time.Millisecond)
	second, err := f.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: "c-1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Version, second.Version)
	assert.Equal(t, "v20240601090000.250000", second.Version)
}
