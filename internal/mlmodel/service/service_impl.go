package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/forecast/internal/clock"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/smallbiznis/forecast/internal/mlmodel/domain"
	"github.com/smallbiznis/forecast/internal/observability/logger"
	pkgdb "github.com/smallbiznis/forecast/pkg/db"
	"github.com/smallbiznis/forecast/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("mlmodel.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Commit(ctx context.Context, req domain.CommitRequest) (domain.Model, error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return domain.Model{}, domain.ErrInvalidCompany
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Model{}, domain.ErrInvalidName
	}
	version := strings.TrimSpace(req.Version)
	if version == "" {
		return domain.Model{}, domain.ErrInvalidVersion
	}
	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return domain.Model{}, domain.ErrInvalidStatus
	}

	metricsJSON, err := json.Marshal(req.Metrics)
	if err != nil {
		return domain.Model{}, fmt.Errorf("%w: encode metrics: %w", forecastdomain.ErrPersistence, err)
	}

	now := s.clock.Now()
	trainedAt := req.TrainedAt.UTC()
	if req.TrainedAt.IsZero() {
		trainedAt = now
	}
	model := domain.Model{
		ID:          s.genID.Generate(),
		CompanyID:   companyID,
		Name:        name,
		Version:     version,
		Status:      status,
		TrainedAt:   &trainedAt,
		MetricsJSON: datatypes.JSON(metricsJSON),
		ArtifactURI: req.ArtifactURI,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	predictions, err := s.predictions(model, req.Forecast, now)
	if err != nil {
		return domain.Model{}, err
	}

	log := logger.FromContext(ctx).With(
		zap.String("company_id", companyID),
		zap.String("model_name", name),
		zap.String("version", version),
	)

	var deprecated int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Lock(ctx, tx, companyID, name); err != nil {
			return err
		}

		existing, err := s.repo.FindByVersion(ctx, tx, companyID, name, version)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrVersionConflict
		}

		if status == domain.StatusActive {
			if req.DeprecatePrevious {
				deprecated, err = s.repo.DeprecateActive(ctx, tx, companyID, name, now)
				if err != nil {
					return err
				}
			} else {
				active, err := s.repo.FindActive(ctx, tx, companyID, name)
				if err != nil {
					return err
				}
				if active != nil {
					return domain.ErrActiveModelExists
				}
			}
		}

		if err := s.repo.InsertModel(ctx, tx, &model); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return domain.ErrVersionConflict
			}
			return err
		}
		return s.repo.InsertPredictions(ctx, tx, predictions)
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrActiveModelExists) {
			return domain.Model{}, err
		}
		log.Error("commit failed", zap.Error(err))
		return domain.Model{}, fmt.Errorf("%w: commit model: %w", forecastdomain.ErrPersistence, err)
	}

	log.Info("model committed",
		zap.String("model_id", model.ID.String()),
		zap.String("status", string(status)),
		zap.Int64("deprecated", deprecated),
		zap.Int("predictions", len(predictions)),
	)
	return model, nil
}

// predictions lays out one row per daily value and one row per month total,
// totals keyed at the first forecast date.
func (s *Service) predictions(model domain.Model, forecast forecastdomain.Forecast, now time.Time) ([]domain.Prediction, error) {
	if len(forecast.Daily) == 0 {
		return nil, fmt.Errorf("%w: no daily predictions", domain.ErrInvalidForecast)
	}

	rows := make([]domain.Prediction, 0, len(forecast.Daily)+len(forecast.Totals))
	var first time.Time
	for i, day := range forecast.Daily {
		date, err := time.ParseInLocation(forecastdomain.DateLayout, day.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: daily date %q", domain.ErrInvalidForecast, day.Date)
		}
		if i == 0 {
			first = date
		}
		rows = append(rows, s.prediction(model, date, domain.DailyHorizon, day.Value, now))
	}

	keys := make([]string, 0, len(forecast.Totals))
	for key := range forecast.Totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		months, err := monthsFromKey(key)
		if err != nil {
			return nil, err
		}
		rows = append(rows, s.prediction(model, first, months*30, forecast.Totals[key], now))
	}
	return rows, nil
}

func (s *Service) prediction(model domain.Model, date time.Time, horizonDays int, value float64, now time.Time) domain.Prediction {
	return domain.Prediction{
		ID:               s.genID.Generate(),
		CompanyID:        model.CompanyID,
		ModelID:          model.ID,
		PredictionDate:   date,
		HorizonDays:      horizonDays,
		PredictedRevenue: decimal.NewFromFloat(value).Round(2),
		CreatedAt:        now,
	}
}

func monthsFromKey(key string) (int, error) {
	raw, ok := strings.CutSuffix(key, "_months")
	if !ok {
		return 0, fmt.Errorf("%w: total key %q", domain.ErrInvalidForecast, key)
	}
	months, err := strconv.Atoi(raw)
	if err != nil || months <= 0 {
		return 0, fmt.Errorf("%w: total key %q", domain.ErrInvalidForecast, key)
	}
	return months, nil
}

func (s *Service) QueryActive(ctx context.Context, companyID, name string) (domain.Model, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return domain.Model{}, domain.ErrInvalidCompany
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Model{}, domain.ErrInvalidName
	}

	model, err := s.repo.FindActive(ctx, s.db, companyID, name)
	if err != nil {
		return domain.Model{}, fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	if model == nil {
		return domain.Model{}, domain.ErrNotFound
	}
	return *model, nil
}

func (s *Service) QueryDaily(ctx context.Context, modelID snowflake.ID, from time.Time, limit int) ([]domain.Prediction, error) {
	if limit <= 0 {
		return []domain.Prediction{}, nil
	}
	y, m, d := from.Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	predictions, err := s.repo.ListDaily(ctx, s.db, modelID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	return predictions, nil
}

func (s *Service) QueryTotal(ctx context.Context, modelID snowflake.ID, date time.Time, horizonDays int) (domain.Prediction, error) {
	y, m, d := date.Date()
	prediction, err := s.repo.FindTotal(ctx, s.db, modelID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), horizonDays)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	if prediction == nil {
		return domain.Prediction{}, domain.ErrNotFound
	}
	return *prediction, nil
}

func (s *Service) GetModel(ctx context.Context, id string) (domain.Model, error) {
	modelID, err := parseID(id)
	if err != nil {
		return domain.Model{}, err
	}
	model, err := s.repo.FindByID(ctx, s.db, modelID)
	if err != nil {
		return domain.Model{}, fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	if model == nil {
		return domain.Model{}, domain.ErrNotFound
	}
	return *model, nil
}

func (s *Service) ListModels(ctx context.Context, req domain.ListModelsRequest) (domain.ListModelsResponse, error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return domain.ListModelsResponse{}, domain.ErrInvalidCompany
	}
	status := domain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return domain.ListModelsResponse{}, domain.ErrInvalidStatus
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, err := s.repo.ListModels(ctx, s.db, domain.ListModelsFilter{
		CompanyID: companyID,
		Name:      strings.TrimSpace(req.Name),
		Status:    status,
	}, pagination.Pagination{
		PageToken: strings.TrimSpace(req.PageToken),
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListModelsResponse{}, err
	}

	items, pageInfo, err := pagination.Page(items, int(pageSize), func(model *domain.Model) pagination.Cursor {
		return pagination.Cursor{CreatedAt: model.CreatedAt, ID: model.ID.String()}
	})
	if err != nil {
		return domain.ListModelsResponse{}, err
	}

	models := make([]domain.Model, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		models = append(models, *item)
	}

	return domain.ListModelsResponse{PageInfo: pageInfo, Models: models}, nil
}

func (s *Service) ListPredictions(ctx context.Context, req domain.ListPredictionsRequest) ([]domain.Prediction, error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return nil, domain.ErrInvalidCompany
	}
	filter := domain.ListPredictionsFilter{
		CompanyID:   companyID,
		From:        req.From,
		To:          req.To,
		HorizonDays: req.HorizonDays,
	}
	if strings.TrimSpace(req.ModelID) != "" {
		id, err := parseID(req.ModelID)
		if err != nil {
			return nil, err
		}
		filter.ModelID = id
	}
	return s.repo.ListPredictions(ctx, s.db, filter)
}

func (s *Service) Companies(ctx context.Context) ([]string, error) {
	return s.repo.ListCompanies(ctx, s.db)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
