// Package projector extends a daily history into the future, one day at a
// time, recomputing features over history plus the days already projected.
package projector

import (
	"context"
	"fmt"
	"math"
	"time"

	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/smallbiznis/forecast/internal/forecast/features"
	"gonum.org/v1/gonum/stat"
)

// Predictor maps one feature vector to a target value.
type Predictor interface {
	Predict(x []float64) (float64, error)
}

type Request struct {
	History        *datasetdomain.Frame
	Target         string
	Schema         []string
	FeatureColumns []string
	// RollingWindow is the number of trailing days averaged for exogenous inputs.
	RollingWindow int
	HorizonDays   int
}

type Result struct {
	Dates []time.Time
	// Features are the final feature rows of the projected days, ordered as
	// Request.FeatureColumns.
	Features [][]float64
	// Predictions is nil when no predictor was given.
	Predictions []float64
}

// Project builds the feature rows for the HorizonDays following the last
// history date. With a predictor, each day's prediction is written back as
// that day's target before the next day is derived. History is not modified.
func Project(ctx context.Context, req Request, predictor Predictor) (*Result, error) {
	if req.HorizonDays <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", forecastdomain.ErrSchema, req.HorizonDays)
	}
	if req.History == nil || req.History.Len() == 0 {
		return nil, fmt.Errorf("%w: empty history", forecastdomain.ErrInsufficientData)
	}
	if !req.History.Has(req.Target) {
		return nil, &forecastdomain.MissingColumnError{Columns: []string{req.Target}}
	}

	arena := req.History.Aggregate()
	last, _ := arena.LastDate()
	exogenous := flatInputs(arena, req.Target, req.Schema, req.RollingWindow)

	result := &Result{Dates: make([]time.Time, 0, req.HorizonDays)}
	if predictor != nil {
		result.Predictions = make([]float64, 0, req.HorizonDays)
	}

	for day := 1; day <= req.HorizonDays; day++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := last.AddDate(0, 0, day)
		arena.Append(date, exogenous)
		result.Dates = append(result.Dates, date)

		if predictor == nil {
			continue
		}
		table, err := features.Build(arena, req.Target, req.Schema)
		if err != nil {
			return nil, err
		}
		row := table.Len() - 1
		x, err := table.Select(row, req.FeatureColumns)
		if err != nil {
			return nil, err
		}
		value, err := predictor.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", date.Format(forecastdomain.DateLayout), err)
		}
		arena.Set(req.Target, arena.Len()-1, value)
		result.Predictions = append(result.Predictions, value)
	}

	table, err := features.Build(arena, req.Target, req.Schema)
	if err != nil {
		return nil, err
	}
	result.Features = make([][]float64, 0, req.HorizonDays)
	for row := table.Len() - req.HorizonDays; row < table.Len(); row++ {
		x, err := table.Select(row, req.FeatureColumns)
		if err != nil {
			return nil, err
		}
		result.Features = append(result.Features, x)
	}
	return result, nil
}

// flatInputs holds every exogenous column at its trailing-window mean. The
// target is left missing.
func flatInputs(history *datasetdomain.Frame, target string, schema []string, window int) map[string]float64 {
	if window <= 0 {
		window = history.Len()
	}
	tail := history.Tail(window)
	values := make(map[string]float64, len(schema))
	for _, column := range schema {
		if column == target {
			continue
		}
		values[column] = observedMean(tail.Column(column))
	}
	values[target] = math.NaN()
	return values
}

func observedMean(values []float64) float64 {
	observed := make([]float64, 0, len(values))
	for _, value := range values {
		if !math.IsNaN(value) {
			observed = append(observed, value)
		}
	}
	if len(observed) == 0 {
		return math.NaN()
	}
	return stat.Mean(observed, nil)
}
