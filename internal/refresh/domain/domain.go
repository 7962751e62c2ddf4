package domain

import (
	"context"
	"errors"
	"time"

	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
)

type ForecastRequest struct {
	CompanyID string
	// StartDate defaults to the day after the latest history date.
	StartDate   *time.Time
	HorizonDays int
}

type ForecastResponse struct {
	ModelID     string                      `json:"model_id"`
	TrainedAt   *time.Time                  `json:"trained_at"`
	HorizonDays int                         `json:"horizon_days"`
	Total       float64                     `json:"total"`
	Daily       []forecastdomain.DailyValue `json:"daily"`
	// Refreshed is set when the request retrained before answering.
	Refreshed bool `json:"refreshed"`
}

type RefreshResult struct {
	CompanyID string `json:"company_id"`
	ModelID   string `json:"model_id,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

//go:generate mockgen -source=domain.go -destination=../mocks/mock_service.go -package=mocks

type Service interface {
	GetForecast(ctx context.Context, req ForecastRequest) (ForecastResponse, error)
	// TriggerRefresh retrains companyID, or every known company when empty.
	TriggerRefresh(ctx context.Context, companyID string) ([]RefreshResult, error)
}

var (
	ErrNoHistory             = datasetdomain.ErrNoHistory
	ErrStartBeforeHistoryEnd = errors.New("start_before_history_end")
	ErrStartTooFar           = errors.New("start_date_too_far")
	ErrNoActiveModel         = errors.New("no_active_model")
	ErrNotEnoughPredictions  = errors.New("not_enough_predictions")
	ErrInvalidCompany        = errors.New("invalid_company_id")
	ErrInvalidHorizon        = errors.New("invalid_horizon_days")
	ErrNoCompanies           = errors.New("no_companies")
)

// InsufficientError reports a forecast that cannot be served from the store.
type InsufficientError struct {
	Code             error
	RefreshAttempted bool
	Detail           string
}

func (e *InsufficientError) Error() string {
	if e.Detail == "" {
		return e.Code.Error()
	}
	return e.Code.Error() + ": " + e.Detail
}

func (e *InsufficientError) Unwrap() []error {
	return []error{e.Code, forecastdomain.ErrInsufficientData}
}

// RefreshAttempted reports whether err was produced after a retrain.
func RefreshAttempted(err error) bool {
	var insufficient *InsufficientError
	return errors.As(err, &insufficient) && insufficient.RefreshAttempted
}
