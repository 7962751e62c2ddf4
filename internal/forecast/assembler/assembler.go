// Package assembler shapes per-day predictions into a forecast document.
package assembler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
)

// DaysPerMonth converts month horizons into days.
const DaysPerMonth = 30

// TotalKey is the totals key for a month horizon.
func TotalKey(months int) string {
	return fmt.Sprintf("%d_months", months)
}

// Assemble builds the daily series starting at firstDate and the month totals.
// Each total is the rounded sum of the rounded leading daily values.
func Assemble(target string, generatedAt, firstDate time.Time, predictions []float64, horizons []int) (forecastdomain.Forecast, error) {
	daily := Daily(firstDate, predictions)

	totals := make(map[string]float64, len(horizons))
	for _, months := range horizons {
		days := months * DaysPerMonth
		if days <= 0 || days > len(daily) {
			return forecastdomain.Forecast{}, fmt.Errorf("%w: horizon of %d months needs %d days, have %d",
				forecastdomain.ErrInsufficientData, months, days, len(daily))
		}
		totals[TotalKey(months)] = Total(daily[:days])
	}

	return forecastdomain.Forecast{
		Target:      target,
		GeneratedAt: generatedAt.UTC(),
		Totals:      totals,
		Daily:       daily,
	}, nil
}

// Daily pairs predictions with consecutive dates from firstDate, rounded to cents.
func Daily(firstDate time.Time, predictions []float64) []forecastdomain.DailyValue {
	daily := make([]forecastdomain.DailyValue, len(predictions))
	for i, value := range predictions {
		daily[i] = forecastdomain.DailyValue{
			Date:  firstDate.AddDate(0, 0, i).Format(forecastdomain.DateLayout),
			Value: Round(value),
		}
	}
	return daily
}

// Total sums daily values exactly and rounds to cents.
func Total(daily []forecastdomain.DailyValue) float64 {
	sum := decimal.Zero
	for _, day := range daily {
		sum = sum.Add(decimal.NewFromFloat(day.Value))
	}
	return sum.Round(2).InexactFloat64()
}

// Reconcile recomputes the total of daily. Recomputed values win; agrees is
// false when a stored total exists and differs.
func Reconcile(stored *float64, daily []forecastdomain.DailyValue) (total float64, agrees bool) {
	total = Total(daily)
	if stored == nil {
		return total, true
	}
	return total, decimal.NewFromFloat(*stored).Equal(decimal.NewFromFloat(total))
}

// Round rounds to two decimal places.
func Round(value float64) float64 {
	return decimal.NewFromFloat(value).Round(2).InexactFloat64()
}
