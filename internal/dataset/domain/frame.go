package domain

import (
	"math"
	"sort"
	"time"
)

// Frame is a columnar daily table. Missing values are NaN.
type Frame struct {
	Dates   []time.Time
	columns []string
	values  map[string][]float64
}

// NewFrame returns an empty frame with the given numeric columns.
func NewFrame(columns []string) *Frame {
	f := &Frame{
		columns: append([]string(nil), columns...),
		values:  make(map[string][]float64, len(columns)),
	}
	for _, column := range columns {
		f.values[column] = nil
	}
	return f
}

func (f *Frame) Len() int {
	return len(f.Dates)
}

// Columns returns the numeric column names in insertion order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

func (f *Frame) Has(column string) bool {
	_, ok := f.values[column]
	return ok
}

// Column returns the backing slice for column. Callers must not modify it.
func (f *Frame) Column(column string) []float64 {
	return f.values[column]
}

// Value returns the value at row i, NaN when absent.
func (f *Frame) Value(column string, i int) float64 {
	values, ok := f.values[column]
	if !ok || i < 0 || i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

// Set overwrites a single cell.
func (f *Frame) Set(column string, i int, value float64) {
	if values, ok := f.values[column]; ok && i >= 0 && i < len(values) {
		values[i] = value
	}
}

// Append adds one row. Columns absent from values are recorded as NaN.
func (f *Frame) Append(date time.Time, values map[string]float64) {
	f.Dates = append(f.Dates, normalizeDate(date))
	for _, column := range f.columns {
		value, ok := values[column]
		if !ok {
			value = math.NaN()
		}
		f.values[column] = append(f.values[column], value)
	}
}

// LastDate returns the most recent date in the frame.
func (f *Frame) LastDate() (time.Time, bool) {
	if f.Len() == 0 {
		return time.Time{}, false
	}
	last := f.Dates[0]
	for _, date := range f.Dates[1:] {
		if date.After(last) {
			last = date
		}
	}
	return last, true
}

// Aggregate returns a new frame sorted by date with one row per date.
// Duplicate dates are summed; missing values are skipped and a cell stays
// missing only when every contribution was missing.
func (f *Frame) Aggregate() *Frame {
	index := make(map[time.Time]int, f.Len())
	order := make([]time.Time, 0, f.Len())
	for _, date := range f.Dates {
		if _, ok := index[date]; !ok {
			index[date] = 0
			order = append(order, date)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	for i, date := range order {
		index[date] = i
	}

	out := NewFrame(f.columns)
	out.Dates = order
	for _, column := range f.columns {
		sums := make([]float64, len(order))
		for i := range sums {
			sums[i] = math.NaN()
		}
		for row, value := range f.values[column] {
			if math.IsNaN(value) {
				continue
			}
			pos := index[f.Dates[row]]
			if math.IsNaN(sums[pos]) {
				sums[pos] = 0
			}
			sums[pos] += value
		}
		out.values[column] = sums
	}
	return out
}

// Tail returns the last n rows as a new frame.
func (f *Frame) Tail(n int) *Frame {
	if n > f.Len() {
		n = f.Len()
	}
	start := f.Len() - n
	out := NewFrame(f.columns)
	out.Dates = append([]time.Time(nil), f.Dates[start:]...)
	for _, column := range f.columns {
		out.values[column] = append([]float64(nil), f.values[column][start:]...)
	}
	return out
}

// Truncate returns the rows dated on or before cutoff.
func (f *Frame) Truncate(cutoff time.Time) *Frame {
	cutoff = normalizeDate(cutoff)
	out := NewFrame(f.columns)
	for i, date := range f.Dates {
		if date.After(cutoff) {
			continue
		}
		out.Dates = append(out.Dates, date)
		for _, column := range f.columns {
			out.values[column] = append(out.values[column], f.values[column][i])
		}
	}
	return out
}

func normalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeDate truncates t to a UTC calendar date.
func NormalizeDate(t time.Time) time.Time {
	return normalizeDate(t)
}
