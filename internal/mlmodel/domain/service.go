package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/smallbiznis/forecast/pkg/db/pagination"
)

// CommitRequest persists a trained model together with its forecast.
type CommitRequest struct {
	CompanyID string
	Name      string
	Version   string
	Status    Status
	Metrics   forecastdomain.Metrics
	Forecast  forecastdomain.Forecast
	// DeprecatePrevious flips the current ACTIVE model to DEPRECATED in the
	// same transaction.
	DeprecatePrevious bool
	TrainedAt         time.Time
	ArtifactURI       string
}

type ListModelsRequest struct {
	CompanyID string
	Name      string
	Status    string
	PageToken string
	PageSize  int32
}

type ListModelsResponse struct {
	pagination.PageInfo
	Models []Model `json:"models"`
}

type ListPredictionsRequest struct {
	CompanyID   string
	ModelID     string
	From        *time.Time
	To          *time.Time
	HorizonDays int
}

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks

type Service interface {
	Commit(ctx context.Context, req CommitRequest) (Model, error)
	QueryActive(ctx context.Context, companyID, name string) (Model, error)
	QueryDaily(ctx context.Context, modelID snowflake.ID, from time.Time, limit int) ([]Prediction, error)
	QueryTotal(ctx context.Context, modelID snowflake.ID, date time.Time, horizonDays int) (Prediction, error)
	GetModel(ctx context.Context, id string) (Model, error)
	ListModels(ctx context.Context, req ListModelsRequest) (ListModelsResponse, error)
	ListPredictions(ctx context.Context, req ListPredictionsRequest) ([]Prediction, error)
	Companies(ctx context.Context) ([]string, error)
}

var (
	ErrNotFound          = errors.New("model_not_found")
	ErrActiveModelExists = errors.New("active_model_exists")
	ErrVersionConflict   = errors.New("model_version_conflict")
	ErrInvalidCompany    = errors.New("invalid_company_id")
	ErrInvalidName       = errors.New("invalid_model_name")
	ErrInvalidVersion    = errors.New("invalid_model_version")
	ErrInvalidStatus     = errors.New("invalid_model_status")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidForecast   = errors.New("invalid_forecast")
)
