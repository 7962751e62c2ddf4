package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
)

// periodMonths are the period values read as months; anything else is days.
var periodMonths = map[int]struct{}{3: {}, 6: {}, 12: {}}

const daysPerMonth = 30

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalDate accepts YYYY-MM-DD or RFC3339 and truncates to the UTC day.
func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(forecastdomain.DateLayout, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		return &day, nil
	}
	return nil, errors.New("invalid_date")
}

// resolveHorizonDays turns period and horizon_days into a day count. Period
// 3, 6 and 12 are months of 30 days; other period values are taken as days.
// horizon_days wins when both are set.
func resolveHorizonDays(period, horizonDays string, fallback int) (int, error) {
	if days, err := parseOptionalInt(horizonDays); err != nil {
		return 0, newValidationError("horizon_days", "invalid_horizon_days", "horizon_days must be an integer")
	} else if days != nil {
		if *days <= 0 {
			return 0, newValidationError("horizon_days", "invalid_horizon_days", "horizon_days must be positive")
		}
		return *days, nil
	}

	p, err := parseOptionalInt(period)
	if err != nil {
		return 0, newValidationError("period", "invalid_period", "period must be an integer")
	}
	if p == nil {
		return fallback, nil
	}
	if *p <= 0 {
		return 0, newValidationError("period", "invalid_period", "period must be positive")
	}
	if _, ok := periodMonths[*p]; ok {
		return *p * daysPerMonth, nil
	}
	return *p, nil
}

// checkHorizonLimit rejects horizons longer than the configured cap.
func (s *Server) checkHorizonLimit(days int) error {
	limit := s.forecast.Get().MaxHorizonDays
	if days > limit {
		return newValidationError("horizon_days", "horizon_too_long", fmt.Sprintf("horizon must not exceed %d days", limit))
	}
	return nil
}
