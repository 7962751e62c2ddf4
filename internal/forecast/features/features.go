// Package features turns a daily frame into a supervised feature table.
package features

import (
	"fmt"
	"math"
	"time"

	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"gonum.org/v1/gonum/floats"
)

// Lags are the row offsets of the lag features.
var Lags = []int{1, 7, 30}

// Windows are the trailing rolling-mean sizes. Each window ends one row
// before the row it describes.
var Windows = []int{7, 30, 60}

// Calendar feature names, in table order.
const (
	DayOfWeek  = "day_of_week"
	DayOfMonth = "day_of_month"
	Month      = "month"
	WeekOfYear = "week_of_year"
)

var calendarColumns = []string{DayOfWeek, DayOfMonth, Month, WeekOfYear}

// Table is a dense feature matrix. Missing feature values are already 0.
type Table struct {
	Dates   []time.Time
	Columns []string
	Rows    [][]float64
	// Target holds the raw target per row; NaN where unobserved.
	Target []float64

	index map[string]int
}

func (t *Table) Len() int {
	return len(t.Dates)
}

// Value returns feature name at row i.
func (t *Table) Value(name string, i int) float64 {
	j, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.Rows) {
		return math.NaN()
	}
	return t.Rows[i][j]
}

// Select projects row i onto columns, which must all exist.
func (t *Table) Select(i int, columns []string) ([]float64, error) {
	out := make([]float64, len(columns))
	for k, name := range columns {
		j, ok := t.index[name]
		if !ok {
			return nil, &forecastdomain.MissingColumnError{Columns: []string{name}}
		}
		out[k] = t.Rows[i][j]
	}
	return out, nil
}

// LagName is the feature name of lag k for column.
func LagName(column string, k int) string {
	return fmt.Sprintf("%s_lag_%d", column, k)
}

// RollingName is the feature name of the w-row rolling mean for column.
func RollingName(column string, w int) string {
	return fmt.Sprintf("%s_roll_mean_%d", column, w)
}

// ColumnNames returns the feature columns Build produces for target and schema.
func ColumnNames(target string, schema []string) []string {
	derived := derivedColumns(target, schema)
	names := make([]string, 0, len(schema)+len(calendarColumns)+len(derived)*(len(Lags)+len(Windows)))
	for _, column := range schema {
		if column != target {
			names = append(names, column)
		}
	}
	names = append(names, calendarColumns...)
	for _, column := range derived {
		for _, k := range Lags {
			names = append(names, LagName(column, k))
		}
		for _, w := range Windows {
			names = append(names, RollingName(column, w))
		}
	}
	return names
}

func derivedColumns(target string, schema []string) []string {
	for _, column := range schema {
		if column == target {
			return schema
		}
	}
	return append(append([]string(nil), schema...), target)
}

// Build derives calendar, lag, and rolling features from frame. Rows are
// sorted by date and duplicate dates merged. Every schema column and the
// target must be present in frame.
func Build(frame *datasetdomain.Frame, target string, schema []string) (*Table, error) {
	var missing []string
	for _, column := range derivedColumns(target, schema) {
		if !frame.Has(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, &forecastdomain.MissingColumnError{Columns: missing}
	}

	data := frame.Aggregate()
	n := data.Len()
	columns := ColumnNames(target, schema)

	table := &Table{
		Dates:   data.Dates,
		Columns: columns,
		Rows:    make([][]float64, n),
		Target:  append([]float64(nil), data.Column(target)...),
		index:   make(map[string]int, len(columns)),
	}
	for j, name := range columns {
		table.index[name] = j
	}
	backing := make([]float64, n*len(columns))
	for i := range table.Rows {
		table.Rows[i] = backing[i*len(columns) : (i+1)*len(columns)]
	}

	j := 0
	for _, column := range schema {
		if column == target {
			continue
		}
		values := data.Column(column)
		for i := 0; i < n; i++ {
			table.Rows[i][j] = zeroMissing(values[i])
		}
		j++
	}

	for i, date := range data.Dates {
		_, week := date.ISOWeek()
		table.Rows[i][j] = float64((int(date.Weekday()) + 6) % 7)
		table.Rows[i][j+1] = float64(date.Day())
		table.Rows[i][j+2] = float64(date.Month())
		table.Rows[i][j+3] = float64(week)
	}
	j += len(calendarColumns)

	// Lags and windows count rows, not calendar days: with a gap in the
	// history lag_1 is the previous reported day.
	for _, column := range derivedColumns(target, schema) {
		values := data.Column(column)
		for _, k := range Lags {
			for i := k; i < n; i++ {
				table.Rows[i][j] = zeroMissing(values[i-k])
			}
			j++
		}
		sums, gaps := prefixSums(values)
		for _, w := range Windows {
			for i := w; i < n; i++ {
				// rows i-w .. i-1
				if gaps[i]-gaps[i-w] > 0 {
					continue
				}
				table.Rows[i][j] = (sums[i] - sums[i-w]) / float64(w)
			}
			j++
		}
	}

	return table, nil
}

// prefixSums returns running sums and running missing-value counts with a
// leading zero, so the window [a, b) sums to sums[b]-sums[a].
func prefixSums(values []float64) ([]float64, []int) {
	clean := make([]float64, len(values)+1)
	gaps := make([]int, len(values)+1)
	for i, value := range values {
		gaps[i+1] = gaps[i]
		if math.IsNaN(value) {
			gaps[i+1]++
			continue
		}
		clean[i+1] = value
	}
	floats.CumSum(clean, clean)
	return clean, gaps
}

func zeroMissing(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
