package domain

import (
	"context"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DailyValue is one day of a forecast.
type DailyValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Forecast is the assembled output of a training run.
type Forecast struct {
	Target      string             `json:"target"`
	GeneratedAt time.Time          `json:"generated_at"`
	Totals      map[string]float64 `json:"totals"`
	Daily       []DailyValue       `json:"daily_predictions"`
}

// Metrics holds hold-out scores. Nil fields mean no hold-out rows existed.
type Metrics struct {
	MAE  *float64 `json:"mae"`
	RMSE *float64 `json:"rmse"`
	MAPE *float64 `json:"mape"`
}

// Available reports whether the hold-out split produced scores.
func (m Metrics) Available() bool {
	return m.MAE != nil && m.RMSE != nil && m.MAPE != nil
}

// TrainRequest describes one pipeline run.
type TrainRequest struct {
	CompanyID string
	// Name defaults to the configured model name.
	Name string
	// Version defaults to a timestamped label derived from the run clock.
	Version string
	// HorizonDays extends the projection beyond the longest month horizon.
	HorizonDays int
	// SkipPersist trains and writes artifacts without committing to the store.
	SkipPersist bool
}

// TrainResult summarises a completed run.
type TrainResult struct {
	RunID     string
	ModelID   int64
	CompanyID string
	Name      string
	Version   string
	TrainedAt time.Time
	Rows      int
	// SkippedRows had no observed target and were left out of training.
	SkippedRows int
	Features    []string
	Metrics     Metrics
	Forecast    Forecast
	ArtifactURI string
}

//go:generate mockgen -source=forecast.go -destination=../mocks/mock_pipeline.go -package=mocks

// Pipeline runs load → features → train → evaluate → project → assemble → persist.
type Pipeline interface {
	Train(ctx context.Context, req TrainRequest) (TrainResult, error)
}
