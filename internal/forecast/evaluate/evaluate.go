// Package evaluate splits feature tables chronologically and scores predictions.
package evaluate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"gonum.org/v1/gonum/floats"
)

// DefaultTrainRatio is the leading share of rows used for fitting.
const DefaultTrainRatio = 0.75

// mapeFloor keeps MAPE finite on zero-valued days.
const mapeFloor = 1e-6

// Split returns the number of leading rows used for training. The tail is
// held out; it is empty when n is too small.
func Split(n int, ratio float64) int {
	if n <= 0 {
		return 0
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultTrainRatio
	}
	return max(int(math.Floor(float64(n)*ratio)), 1)
}

// Score computes MAE, RMSE and MAPE over the hold-out rows. All fields are
// nil when there are no hold-out rows.
func Score(actual, predicted []float64) (forecastdomain.Metrics, error) {
	if len(actual) != len(predicted) {
		return forecastdomain.Metrics{}, fmt.Errorf("score: %d actuals, %d predictions", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return forecastdomain.Metrics{}, nil
	}

	n := float64(len(actual))
	residuals := make([]float64, len(actual))
	floats.SubTo(residuals, actual, predicted)

	var absSum, pctSum float64
	for i, r := range residuals {
		absSum += math.Abs(r)
		pctSum += math.Abs(r) / math.Max(math.Abs(actual[i]), mapeFloor)
	}
	mae := absSum / n
	rmse := floats.Norm(residuals, 2) / math.Sqrt(n)
	mape := pctSum / n * 100

	return forecastdomain.Metrics{
		MAE:  round(mae, 4),
		RMSE: round(rmse, 4),
		MAPE: round(mape, 2),
	}, nil
}

func round(value float64, places int32) *float64 {
	rounded := decimal.NewFromFloat(value).Round(places).InexactFloat64()
	return &rounded
}
