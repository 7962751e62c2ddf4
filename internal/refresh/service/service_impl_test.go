package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	datasetmocks "github.com/smallbiznis/forecast/internal/dataset/mocks"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	forecastmocks "github.com/smallbiznis/forecast/internal/forecast/mocks"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
	mlmodelmocks "github.com/smallbiznis/forecast/internal/mlmodel/mocks"
	"github.com/smallbiznis/forecast/internal/refresh/domain"
	"github.com/smallbiznis/forecast/internal/refresh/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	latest = time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	first  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      domain.Service
	dataset  *datasetmocks.MockService
	models   *mlmodelmocks.MockService
	pipeline *forecastmocks.MockPipeline
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := fixture{
		dataset:  datasetmocks.NewMockService(ctrl),
		models:   mlmodelmocks.NewMockService(ctrl),
		pipeline: forecastmocks.NewMockPipeline(ctrl),
	}
	f.svc = New(Params{
		Dataset:  f.dataset,
		Models:   f.models,
		Pipeline: f.pipeline,
		Forecast: config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
		Locker:   lock.NewKeyedMutex(),
		Log:      zaptest.NewLogger(t),
	})
	return f
}

func model(id int64) mlmodeldomain.Model {
	trained := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	return mlmodeldomain.Model{
		ID:        snowflake.ID(id),
		CompanyID: "c-1",
		Name:      "forecast_rf",
		Status:    mlmodeldomain.StatusActive,
		TrainedAt: &trained,
	}
}

func daily(m mlmodeldomain.Model, from time.Time, days int) []mlmodeldomain.Prediction {
	rows := make([]mlmodeldomain.Prediction, days)
	for i := range rows {
		rows[i] = mlmodeldomain.Prediction{
			ID:               snowflake.ID(1000 + i),
			ModelID:          m.ID,
			PredictionDate:   from.AddDate(0, 0, i),
			HorizonDays:      mlmodeldomain.DailyHorizon,
			PredictedRevenue: decimal.NewFromInt(100),
		}
	}
	return rows
}

func TestGetForecastServesStoredPredictions(t *testing.T) {
	f := setup(t)
	active := model(1)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)
	f.models.EXPECT().QueryActive(gomock.Any(), "c-1", "forecast_rf").Return(active, nil)
	f.models.EXPECT().QueryDaily(gomock.Any(), active.ID, first, 30).Return(daily(active, first, 30), nil)
	f.models.EXPECT().QueryTotal(gomock.Any(), active.ID, first, 30).
		Return(mlmodeldomain.Prediction{PredictedRevenue: decimal.NewFromInt(3000)}, nil)
	f.pipeline.EXPECT().Train(gomock.Any(), gomock.Any()).Times(0)

	resp, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", HorizonDays: 30})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ModelID)
	assert.Equal(t, 30, resp.HorizonDays)
	assert.Equal(t, 3000.0, resp.Total)
	assert.False(t, resp.Refreshed)
	require.Len(t, resp.Daily, 30)
	assert.Equal(t, "2024-06-01", resp.Daily[0].Date)
	assert.Equal(t, "2024-06-30", resp.Daily[29].Date)
}

func TestGetForecastRetrainsExactlyOnceOnShortfall(t *testing.T) {
	f := setup(t)
	stale, fresh := model(1), model(2)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)
	f.models.EXPECT().QueryActive(gomock.Any(), "c-1", "forecast_rf").Return(stale, nil).Times(2)
	f.models.EXPECT().QueryActive(gomock.Any(), "c-1", "forecast_rf").Return(fresh, nil).Times(1)
	f.models.EXPECT().QueryDaily(gomock.Any(), stale.ID, first, 30).Return(daily(stale, first, 10), nil).Times(2)
	f.models.EXPECT().QueryDaily(gomock.Any(), fresh.ID, first, 30).Return(daily(fresh, first, 30), nil)
	f.models.EXPECT().QueryTotal(gomock.Any(), fresh.ID, first, 30).
		Return(mlmodeldomain.Prediction{}, mlmodeldomain.ErrNotFound)
	f.pipeline.EXPECT().
		Train(gomock.Any(), forecastdomain.TrainRequest{CompanyID: "c-1", Name: "forecast_rf", HorizonDays: 30}).
		Return(forecastdomain.TrainResult{ModelID: 2}, nil).
		Times(1)

	resp, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", HorizonDays: 30})
	require.NoError(t, err)
	assert.True(t, resp.Refreshed)
	assert.Equal(t, "2", resp.ModelID)
	assert.Equal(t, 3000.0, resp.Total)
}

func TestGetForecastReportsPersistentShortfall(t *testing.T) {
	f := setup(t)
	active := model(1)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)
	f.models.EXPECT().QueryActive(gomock.Any(), "c-1", "forecast_rf").Return(active, nil).Times(3)
	f.models.EXPECT().QueryDaily(gomock.Any(), active.ID, first, 30).Return(daily(active, first, 10), nil).Times(3)
	f.pipeline.EXPECT().Train(gomock.Any(), gomock.Any()).Return(forecastdomain.TrainResult{}, nil).Times(1)

	_, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", HorizonDays: 30})
	assert.ErrorIs(t, err, domain.ErrNotEnoughPredictions)
	assert.ErrorIs(t, err, forecastdomain.ErrInsufficientData)
	assert.True(t, domain.RefreshAttempted(err))
}

func TestGetForecastRejectsStartBeforeHistoryEnd(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)

	start := latest.AddDate(0, 0, -30)
	_, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", StartDate: &start, HorizonDays: 30})
	assert.ErrorIs(t, err, domain.ErrStartBeforeHistoryEnd)
	assert.False(t, domain.RefreshAttempted(err))
}

func TestGetForecastLaterStartExtendsTrainingHorizon(t *testing.T) {
	f := setup(t)
	active := model(1)
	start := first.AddDate(0, 0, 9)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)
	f.models.EXPECT().QueryActive(gomock.Any(), "c-1", "forecast_rf").Return(active, nil).Times(3)
	f.models.EXPECT().QueryDaily(gomock.Any(), active.ID, start, 30).Return(nil, nil).Times(2)
	f.models.EXPECT().QueryDaily(gomock.Any(), active.ID, start, 30).Return(daily(active, start, 30), nil)
	f.models.EXPECT().QueryTotal(gomock.Any(), active.ID, start, 30).Return(mlmodeldomain.Prediction{}, mlmodeldomain.ErrNotFound)
	f.pipeline.EXPECT().
		Train(gomock.Any(), forecastdomain.TrainRequest{CompanyID: "c-1", Name: "forecast_rf", HorizonDays: 39}).
		Return(forecastdomain.TrainResult{}, nil)

	resp, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", StartDate: &start, HorizonDays: 30})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", resp.Daily[0].Date)
}

func TestGetForecastRequiresActiveModel(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)
	f.models.EXPECT().QueryActive(gomock.Any(), "c-1", "forecast_rf").Return(mlmodeldomain.Model{}, mlmodeldomain.ErrNotFound)

	_, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", HorizonDays: 30})
	assert.ErrorIs(t, err, domain.ErrNoActiveModel)
	assert.False(t, domain.RefreshAttempted(err))
}

func TestGetForecastWithoutHistory(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "ghost").
		Return(time.Time{}, fmt.Errorf("%w: %w", forecastdomain.ErrInsufficientData, datasetdomain.ErrNoHistory))

	_, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "ghost", HorizonDays: 30})
	assert.ErrorIs(t, err, domain.ErrNoHistory)

	_, err = f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidHorizon)
}

func TestTriggerRefreshAllCompanies(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().Companies(gomock.Any()).Return(nil, datasetdomain.ErrCompanyListingUnsupported)
	f.models.EXPECT().Companies(gomock.Any()).Return([]string{"a", "b"}, nil)
	f.pipeline.EXPECT().Train(gomock.Any(), forecastdomain.TrainRequest{CompanyID: "a", Name: "forecast_rf"}).
		Return(forecastdomain.TrainResult{ModelID: 7, Version: "v1"}, nil)
	f.pipeline.EXPECT().Train(gomock.Any(), forecastdomain.TrainRequest{CompanyID: "b", Name: "forecast_rf"}).
		Return(forecastdomain.TrainResult{}, errors.New("boom"))

	results, err := f.svc.TriggerRefresh(context.Background(), "")
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.RefreshResult{CompanyID: "a", ModelID: "7", Version: "v1"}, results[0])
	assert.Equal(t, "boom", results[1].Error)
}

func TestTriggerRefreshSingleCompany(t *testing.T) {
	f := setup(t)
	f.pipeline.EXPECT().Train(gomock.Any(), forecastdomain.TrainRequest{CompanyID: "c-1", Name: "forecast_rf"}).
		Return(forecastdomain.TrainResult{ModelID: 3, Version: "v9"}, nil)

	results, err := f.svc.TriggerRefresh(context.Background(), " c-1 ")
	require.NoError(t, err)
	assert.Equal(t, []domain.RefreshResult{{CompanyID: "c-1", ModelID: "3", Version: "v9"}}, results)
}

func TestGetForecastRejectsHorizonBeyondLimit(t *testing.T) {
	f := setup(t)
	limit := config.DefaultForecastConfig().MaxHorizonDays

	_, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", HorizonDays: limit + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidHorizon)
}

func TestGetForecastRejectsFarStartDate(t *testing.T) {
	f := setup(t)
	f.dataset.EXPECT().LatestDate(gomock.Any(), "c-1").Return(latest, nil)
	f.pipeline.EXPECT().Train(gomock.Any(), gomock.Any()).Times(0)

	start := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.GetForecast(context.Background(), domain.ForecastRequest{CompanyID: "c-1", StartDate: &start, HorizonDays: 30})
	assert.ErrorIs(t, err, domain.ErrStartTooFar)
	assert.False(t, domain.RefreshAttempted(err))
}

type recordingLocker struct {
	keys []string
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.keys = append(l.keys, key)
	return func() {}, nil
}

func TestRefreshLocksPerCompanyAndModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	pipeline := forecastmocks.NewMockPipeline(ctrl)
	locker := &recordingLocker{}
	svc := New(Params{
		Dataset:  datasetmocks.NewMockService(ctrl),
		Models:   mlmodelmocks.NewMockService(ctrl),
		Pipeline: pipeline,
		Forecast: config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
		Locker:   locker,
		Log:      zaptest.NewLogger(t),
	})
	pipeline.EXPECT().Train(gomock.Any(), gomock.Any()).Return(forecastdomain.TrainResult{}, nil)

	_, err := svc.TriggerRefresh(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1:forecast_rf"}, locker.keys)
}
