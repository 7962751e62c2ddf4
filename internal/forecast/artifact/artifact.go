// Package artifact writes the per-run metrics and forecast documents.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
)

const (
	MetricsFile  = "metrics.json"
	ForecastFile = "forecast.json"
)

var ErrInvalidPathSegment = errors.New("invalid_artifact_path_segment")

// Store lays artifacts out as <dir>/<company_id>/<version>/.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = "artifacts"
	}
	return &Store{dir: dir}
}

// Write stores both documents and returns the run directory.
func (s *Store) Write(companyID, version string, metrics forecastdomain.Metrics, forecast forecastdomain.Forecast) (string, error) {
	runDir, err := s.RunDir(companyID, version)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create artifact dir: %w", forecastdomain.ErrPersistence, err)
	}
	if err := writeJSON(filepath.Join(runDir, MetricsFile), metrics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, ForecastFile), forecast); err != nil {
		return "", err
	}
	return runDir, nil
}

// RunDir resolves the directory for one run without touching the filesystem.
func (s *Store) RunDir(companyID, version string) (string, error) {
	for _, segment := range []string{companyID, version} {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPathSegment, segment)
		}
	}
	return filepath.Join(s.dir, companyID, version), nil
}

// ReadForecast loads a forecast document written by Write.
func ReadForecast(path string) (forecastdomain.Forecast, error) {
	var forecast forecastdomain.Forecast
	raw, err := os.ReadFile(path)
	if err != nil {
		return forecast, err
	}
	err = json.Unmarshal(raw, &forecast)
	return forecast, err
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", forecastdomain.ErrPersistence, filepath.Base(path), err)
	}
	raw = append(raw, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", forecastdomain.ErrPersistence, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", forecastdomain.ErrPersistence, err)
	}
	return nil
}
