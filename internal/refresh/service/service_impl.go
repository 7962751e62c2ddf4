package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	"github.com/smallbiznis/forecast/internal/forecast/assembler"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
	obscontext "github.com/smallbiznis/forecast/internal/observability/context"
	"github.com/smallbiznis/forecast/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
	"github.com/smallbiznis/forecast/internal/observability/tracing"
	"github.com/smallbiznis/forecast/internal/refresh/domain"
	"github.com/smallbiznis/forecast/internal/refresh/lock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	reasonMiss   = "miss"
	reasonManual = "manual"
)

type Params struct {
	fx.In

	Dataset  datasetdomain.Service
	Models   mlmodeldomain.Service
	Pipeline forecastdomain.Pipeline
	Forecast *config.ForecastConfigHolder
	Locker   lock.Locker
	Log      *zap.Logger
	Metrics  *obsmetrics.ForecastMetrics `optional:"true"`
	Recorder *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	dataset  datasetdomain.Service
	models   mlmodeldomain.Service
	pipeline forecastdomain.Pipeline
	forecast *config.ForecastConfigHolder
	locker   lock.Locker
	log      *zap.Logger
	metrics  *obsmetrics.ForecastMetrics
	recorder *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		dataset:  p.Dataset,
		models:   p.Models,
		pipeline: p.Pipeline,
		forecast: p.Forecast,
		locker:   p.Locker,
		log:      p.Log.Named("refresh.service"),
		metrics:  p.Metrics,
		recorder: p.Recorder,
	}
}

// window is the contiguous run of days a request needs.
type window struct {
	latest time.Time
	first  time.Time
	days   int
}

// trainHorizon is the projection length that reaches the window's last day.
func (w window) trainHorizon() int {
	return int(w.first.Sub(w.latest).Hours()/24) - 1 + w.days
}

func (s *Service) GetForecast(ctx context.Context, req domain.ForecastRequest) (resp domain.ForecastResponse, err error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return domain.ForecastResponse{}, domain.ErrInvalidCompany
	}
	if req.HorizonDays <= 0 {
		return domain.ForecastResponse{}, domain.ErrInvalidHorizon
	}
	cfg := s.forecast.Get()
	if req.HorizonDays > cfg.MaxHorizonDays {
		return domain.ForecastResponse{}, fmt.Errorf("%w: %d exceeds %d", domain.ErrInvalidHorizon, req.HorizonDays, cfg.MaxHorizonDays)
	}

	ctx = obscontext.WithCompanyID(ctx, companyID)
	ctx, end := tracing.Start(ctx, "refresh.get_forecast",
		attribute.String("company_id", companyID),
		attribute.Int("horizon_days", req.HorizonDays),
	)
	defer func() {
		s.recordRead(ctx, resp, err)
		end(err)
	}()

	latest, err := s.dataset.LatestDate(ctx, companyID)
	if err != nil {
		return domain.ForecastResponse{}, err
	}
	w := window{latest: latest, first: latest.AddDate(0, 0, 1), days: req.HorizonDays}
	if req.StartDate != nil {
		start := datasetdomain.NormalizeDate(*req.StartDate)
		if start.Before(latest) {
			return domain.ForecastResponse{}, fmt.Errorf("%w: start %s is before latest history %s",
				domain.ErrStartBeforeHistoryEnd, start.Format(forecastdomain.DateLayout), latest.Format(forecastdomain.DateLayout))
		}
		if start.After(w.first) {
			w.first = start
		}
		if w.trainHorizon() > cfg.MaxHorizonDays {
			return domain.ForecastResponse{}, fmt.Errorf("%w: start %s needs %d projected days, limit %d",
				domain.ErrStartTooFar, start.Format(forecastdomain.DateLayout), w.trainHorizon(), cfg.MaxHorizonDays)
		}
	}

	name := cfg.ModelName
	model, err := s.models.QueryActive(ctx, companyID, name)
	if errors.Is(err, mlmodeldomain.ErrNotFound) {
		return domain.ForecastResponse{}, &domain.InsufficientError{Code: domain.ErrNoActiveModel, Detail: companyID}
	}
	if err != nil {
		return domain.ForecastResponse{}, err
	}

	resp, ok, err := s.lookup(ctx, model, w)
	if err != nil || ok {
		return resp, err
	}

	if err := s.refreshOnMiss(ctx, companyID, name, w); err != nil {
		return domain.ForecastResponse{}, err
	}

	model, err = s.models.QueryActive(ctx, companyID, name)
	if errors.Is(err, mlmodeldomain.ErrNotFound) {
		return domain.ForecastResponse{}, &domain.InsufficientError{Code: domain.ErrNoActiveModel, RefreshAttempted: true, Detail: companyID}
	}
	if err != nil {
		return domain.ForecastResponse{}, err
	}
	resp, ok, err = s.lookup(ctx, model, w)
	if err != nil {
		return domain.ForecastResponse{}, err
	}
	if !ok {
		return domain.ForecastResponse{}, &domain.InsufficientError{
			Code:             domain.ErrNotEnoughPredictions,
			RefreshAttempted: true,
			Detail:           fmt.Sprintf("need %d days from %s", w.days, w.first.Format(forecastdomain.DateLayout)),
		}
	}
	resp.Refreshed = true
	return resp, nil
}

func lockKey(companyID, name string) string {
	return companyID + ":" + name
}

// refreshOnMiss retrains once under the (company, model name) lock. A concurrent request
// that already refreshed the window satisfies this one.
func (s *Service) refreshOnMiss(ctx context.Context, companyID, name string, w window) error {
	waitStart := time.Now()
	release, err := s.locker.Lock(ctx, lockKey(companyID, name))
	if err != nil {
		return err
	}
	defer release()
	s.metrics.ObserveLockWait(time.Since(waitStart))

	if model, err := s.models.QueryActive(ctx, companyID, name); err == nil {
		if _, ok, err := s.lookup(ctx, model, w); err == nil && ok {
			return nil
		}
	}

	s.recorder.RecordRefreshTriggered(ctx, reasonMiss)
	logger.FromContext(ctx).Info("predictions missing, retraining",
		zap.String("first_date", w.first.Format(forecastdomain.DateLayout)),
		zap.Int("horizon_days", w.days),
	)
	_, err = s.pipeline.Train(ctx, forecastdomain.TrainRequest{
		CompanyID:   companyID,
		Name:        name,
		HorizonDays: w.trainHorizon(),
	})
	return err
}

// lookup serves w from model's stored daily rows when they cover it.
func (s *Service) lookup(ctx context.Context, model mlmodeldomain.Model, w window) (domain.ForecastResponse, bool, error) {
	rows, err := s.models.QueryDaily(ctx, model.ID, w.first, w.days)
	if err != nil {
		return domain.ForecastResponse{}, false, err
	}
	if len(rows) < w.days {
		return domain.ForecastResponse{}, false, nil
	}

	daily := make([]forecastdomain.DailyValue, len(rows))
	for i, row := range rows {
		date := datasetdomain.NormalizeDate(row.PredictionDate)
		if !date.Equal(w.first.AddDate(0, 0, i)) {
			return domain.ForecastResponse{}, false, nil
		}
		daily[i] = forecastdomain.DailyValue{
			Date:  date.Format(forecastdomain.DateLayout),
			Value: row.PredictedRevenue.InexactFloat64(),
		}
	}

	var stored *float64
	if row, err := s.models.QueryTotal(ctx, model.ID, w.first, w.days); err == nil {
		value := row.PredictedRevenue.InexactFloat64()
		stored = &value
	}
	total, agrees := assembler.Reconcile(stored, daily)
	if !agrees {
		logger.FromContext(ctx).Warn("stored total disagrees with daily rows",
			zap.String("model_id", model.ID.String()),
			zap.Float64("stored", *stored),
			zap.Float64("recomputed", total),
		)
	}

	return domain.ForecastResponse{
		ModelID:     model.ID.String(),
		TrainedAt:   model.TrainedAt,
		HorizonDays: w.days,
		Total:       total,
		Daily:       daily,
	}, true, nil
}

func (s *Service) recordRead(ctx context.Context, resp domain.ForecastResponse, err error) {
	outcome := obsmetrics.ReadOutcomeHit
	switch {
	case errors.Is(err, domain.ErrNoActiveModel):
		outcome = obsmetrics.ReadOutcomeNoActiveModel
	case errors.Is(err, forecastdomain.ErrInsufficientData):
		outcome = obsmetrics.ReadOutcomeInsufficient
	case err != nil:
		outcome = obsmetrics.ReadOutcomeError
	case resp.Refreshed:
		outcome = obsmetrics.ReadOutcomeRefreshed
	}
	s.metrics.IncForecastRead(outcome)
	s.recorder.RecordForecastRead(ctx, outcome)
}

func (s *Service) TriggerRefresh(ctx context.Context, companyID string) ([]domain.RefreshResult, error) {
	companies, err := s.companies(ctx, strings.TrimSpace(companyID))
	if err != nil {
		return nil, err
	}

	name := s.forecast.Get().ModelName
	results := make([]domain.RefreshResult, 0, len(companies))
	var errs []error
	for _, id := range companies {
		result, err := s.refresh(ctx, id, name)
		if err != nil {
			result.Error = err.Error()
			errs = append(errs, fmt.Errorf("company %s: %w", id, err))
		}
		results = append(results, result)
		if ctx.Err() != nil {
			break
		}
	}
	return results, errors.Join(errs...)
}

func (s *Service) refresh(ctx context.Context, companyID, name string) (domain.RefreshResult, error) {
	result := domain.RefreshResult{CompanyID: companyID}
	ctx = obscontext.WithCompanyID(ctx, companyID)

	release, err := s.locker.Lock(ctx, lockKey(companyID, name))
	if err != nil {
		return result, err
	}
	defer release()

	s.recorder.RecordRefreshTriggered(ctx, reasonManual)
	trained, err := s.pipeline.Train(ctx, forecastdomain.TrainRequest{CompanyID: companyID, Name: name})
	if err != nil {
		return result, err
	}
	result.Version = trained.Version
	if trained.ModelID != 0 {
		result.ModelID = fmt.Sprint(trained.ModelID)
	}
	return result, nil
}

func (s *Service) companies(ctx context.Context, companyID string) ([]string, error) {
	if companyID != "" {
		return []string{companyID}, nil
	}
	companies, err := s.dataset.Companies(ctx)
	if errors.Is(err, datasetdomain.ErrCompanyListingUnsupported) {
		companies, err = s.models.Companies(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, domain.ErrNoCompanies
	}
	return companies, nil
}
