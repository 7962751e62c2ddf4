package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
)

// RawRow is one record as delivered by a source, before alias mapping.
type RawRow map[string]any

// NormalizeOptions controls how raw rows become a Frame.
type NormalizeOptions struct {
	Aliases AliasTable
	// AllowMissing fills absent schema columns with 0 instead of failing.
	AllowMissing bool
}

// NormalizeReport describes what normalization discarded or coerced.
type NormalizeReport struct {
	Rows          int
	UnknownFields []string
	// InvalidValues counts cells per column that could not be read as numbers.
	InvalidValues map[string]int
	// MissingValues counts null or empty cells per column. They stay NaN.
	MissingValues map[string]int
	FilledColumns []string
}

// HasIssues reports whether anything was dropped, coerced, or filled.
func (r NormalizeReport) HasIssues() bool {
	return len(r.UnknownFields) > 0 || len(r.InvalidValues) > 0 || len(r.MissingValues) > 0 || len(r.FilledColumns) > 0
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// Normalize maps raw rows onto the canonical schema and aggregates by date.
func Normalize(rows []RawRow, opts NormalizeOptions) (*Frame, NormalizeReport, error) {
	report := NormalizeReport{Rows: len(rows), InvalidValues: map[string]int{}, MissingValues: map[string]int{}}
	unknown := map[string]struct{}{}
	present := map[string]struct{}{}

	frame := NewFrame(Columns)
	undated := -1
	for i, row := range rows {
		values := make(map[string]float64, len(Columns))
		var rawDate any
		hasDate := false
		for key, raw := range row {
			column, ok := opts.Aliases.Resolve(key)
			if !ok {
				unknown[key] = struct{}{}
				continue
			}
			present[column] = struct{}{}
			if column == DateColumn {
				rawDate, hasDate = raw, true
				continue
			}
			value, valid := toFloat(raw)
			switch {
			case !valid:
				report.InvalidValues[column]++
			case math.IsNaN(value):
				report.MissingValues[column]++
			}
			if existing, ok := values[column]; ok && !math.IsNaN(existing) {
				// Two source keys mapped to one column: keep the sum.
				if !math.IsNaN(value) {
					value += existing
				} else {
					value = existing
				}
			}
			values[column] = value
		}
		if !hasDate {
			if undated < 0 {
				undated = i
			}
			continue
		}
		date, err := parseDate(rawDate)
		if err != nil {
			return nil, report, fmt.Errorf("%w: invalid report_date at row %d: %v", forecastdomain.ErrSchema, i, err)
		}
		frame.Append(date, values)
	}

	var missing []string
	if _, ok := present[DateColumn]; !ok && len(rows) > 0 {
		missing = append(missing, DateColumn)
	}
	for _, column := range Columns {
		if _, ok := present[column]; !ok && len(rows) > 0 {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		if !opts.AllowMissing || missing[0] == DateColumn {
			return nil, report, &forecastdomain.MissingColumnError{Columns: missing}
		}
		for _, column := range missing {
			fillColumn(frame, column)
		}
		report.FilledColumns = missing
	}
	if undated >= 0 {
		return nil, report, fmt.Errorf("%w: missing report_date at row %d", forecastdomain.ErrSchema, undated)
	}

	for key := range unknown {
		report.UnknownFields = append(report.UnknownFields, key)
	}
	sort.Strings(report.UnknownFields)
	if len(report.InvalidValues) == 0 {
		report.InvalidValues = nil
	}
	if len(report.MissingValues) == 0 {
		report.MissingValues = nil
	}

	return frame.Aggregate(), report, nil
}

func fillColumn(frame *Frame, column string) {
	values := frame.values[column]
	for i := range values {
		values[i] = 0
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return math.NaN(), true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return math.NaN(), false
		}
		return f, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return math.NaN(), false
	}
}

func parseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return NormalizeDate(v), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return NormalizeDate(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %v", raw)
	}
}
