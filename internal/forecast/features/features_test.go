package features

import (
	"math"
	"math/rand"
	"testing"
	"time"

	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // a Monday

func series(n int, value func(i int) float64) *datasetdomain.Frame {
	frame := datasetdomain.NewFrame(datasetdomain.Columns)
	for i := 0; i < n; i++ {
		values := map[string]float64{}
		for _, column := range datasetdomain.Columns {
			values[column] = value(i)
		}
		frame.Append(start.AddDate(0, 0, i), values)
	}
	return frame
}

func TestColumnOrder(t *testing.T) {
	names := ColumnNames("new_cash_collected", []string{"a", "new_cash_collected"})
	assert.Equal(t, []string{
		"a",
		DayOfWeek, DayOfMonth, Month, WeekOfYear,
		"a_lag_1", "a_lag_7", "a_lag_30", "a_roll_mean_7", "a_roll_mean_30", "a_roll_mean_60",
		"new_cash_collected_lag_1", "new_cash_collected_lag_7", "new_cash_collected_lag_30",
		"new_cash_collected_roll_mean_7", "new_cash_collected_roll_mean_30", "new_cash_collected_roll_mean_60",
	}, names)
}

func TestBuildSingleRowImputesZeros(t *testing.T) {
	table, err := Build(series(1, func(int) float64 { return 5 }), datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	for _, column := range datasetdomain.Columns {
		for _, k := range Lags {
			assert.Zero(t, table.Value(LagName(column, k), 0))
		}
		for _, w := range Windows {
			assert.Zero(t, table.Value(RollingName(column, w), 0))
		}
	}
	assert.Equal(t, 5.0, table.Value("pickups", 0))
	assert.Equal(t, 0.0, table.Value(DayOfWeek, 0))
	assert.Equal(t, 1.0, table.Value(WeekOfYear, 0))
}

func TestBuildLagsAndRollingWindows(t *testing.T) {
	table, err := Build(series(70, func(i int) float64 { return float64(i) }), datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)

	target := datasetdomain.DefaultTarget
	assert.Equal(t, 64.0, table.Value(LagName(target, 1), 65))
	assert.Equal(t, 35.0, table.Value(LagName(target, 30), 65))
	// rows 58..64
	assert.InDelta(t, 61.0, table.Value(RollingName(target, 7), 65), 1e-9)
	// rows 5..64
	assert.InDelta(t, 34.5, table.Value(RollingName(target, 60), 65), 1e-9)
	// a window needs w prior rows
	assert.Zero(t, table.Value(RollingName(target, 7), 6))
	assert.InDelta(t, 3.0, table.Value(RollingName(target, 7), 7), 1e-9)
	assert.Zero(t, table.Value(RollingName(target, 60), 59))
}

func TestBuildWindowWithMissingValueIsZero(t *testing.T) {
	frame := series(20, func(int) float64 { return 1 })
	frame.Set(datasetdomain.DefaultTarget, 10, math.NaN())

	table, err := Build(frame, datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)
	assert.Zero(t, table.Value(RollingName(datasetdomain.DefaultTarget, 7), 12))
	assert.Zero(t, table.Value(LagName(datasetdomain.DefaultTarget, 1), 11))
	assert.Equal(t, 1.0, table.Value(RollingName(datasetdomain.DefaultTarget, 7), 18))
	assert.True(t, math.IsNaN(table.Target[10]))
}

func TestBuildSortsAndIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ordered := series(90, func(i int) float64 { return float64(i%13) * 3 })

	shuffled := datasetdomain.NewFrame(datasetdomain.Columns)
	for _, i := range rng.Perm(ordered.Len()) {
		values := map[string]float64{}
		for _, column := range datasetdomain.Columns {
			values[column] = ordered.Value(column, i)
		}
		shuffled.Append(ordered.Dates[i], values)
	}

	a, err := Build(ordered, datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)
	b, err := Build(shuffled, datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)
	assert.Equal(t, a.Dates, b.Dates)
	assert.Equal(t, a.Rows, b.Rows)
	for i := 1; i < b.Len(); i++ {
		assert.True(t, b.Dates[i].After(b.Dates[i-1]))
	}
}

func TestBuildHasNoLookAhead(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	full := series(120, func(int) float64 { return rng.Float64() * 100 })

	complete, err := Build(full, datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)

	for _, cut := range []int{0, 1, 29, 60, 119} {
		prefix, err := Build(full.Truncate(full.Dates[cut]), datasetdomain.DefaultTarget, datasetdomain.Columns)
		require.NoError(t, err)
		require.Equal(t, cut+1, prefix.Len())
		for i := 0; i <= cut; i++ {
			assert.Equal(t, complete.Rows[i], prefix.Rows[i], "row %d with cut %d", i, cut)
		}
	}
}

func TestBuildMissingColumn(t *testing.T) {
	frame := datasetdomain.NewFrame([]string{"pickups"})
	frame.Append(start, map[string]float64{"pickups": 1})

	_, err := Build(frame, datasetdomain.DefaultTarget, datasetdomain.Columns)
	var missing *forecastdomain.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Columns, datasetdomain.DefaultTarget)
}

func TestBuildLagsCountReportedDays(t *testing.T) {
	frame := datasetdomain.NewFrame(datasetdomain.Columns)
	for i, offset := range []int{0, 1, 5, 6} {
		values := map[string]float64{}
		for _, column := range datasetdomain.Columns {
			values[column] = float64(10 * (i + 1))
		}
		frame.Append(start.AddDate(0, 0, offset), values)
	}

	table, err := Build(frame, datasetdomain.DefaultTarget, datasetdomain.Columns)
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())
	// Jan 6 follows Jan 2 with no rows between them.
	assert.Equal(t, 20.0, table.Value(LagName(datasetdomain.DefaultTarget, 1), 2))
	assert.Equal(t, 30.0, table.Value(LagName(datasetdomain.DefaultTarget, 1), 3))
}
