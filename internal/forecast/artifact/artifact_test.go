package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLaysOutRunDirectory(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	mae := 12.5
	forecast := forecastdomain.Forecast{
		Target:      "new_cash_collected",
		GeneratedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Totals:      map[string]float64{"3_months": 90000},
		Daily:       []forecastdomain.DailyValue{{Date: "2024-06-01", Value: 1000}},
	}

	runDir, err := store.Write("c-1", "v1", forecastdomain.Metrics{MAE: &mae}, forecast)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "c-1", "v1"), runDir)

	metrics, err := os.ReadFile(filepath.Join(runDir, MetricsFile))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"mae\": 12.5,\n  \"rmse\": null,\n  \"mape\": null\n}\n", string(metrics))

	raw, err := os.ReadFile(filepath.Join(runDir, ForecastFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"daily_predictions"`)
	assert.Contains(t, string(raw), `"generated_at": "2024-06-01T08:00:00Z"`)

	loaded, err := ReadForecast(filepath.Join(runDir, ForecastFile))
	require.NoError(t, err)
	assert.Equal(t, forecast, loaded)

	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunDirRejectsTraversal(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, segment := range []string{"", "..", "a/b", `a\b`} {
		_, err := store.RunDir(segment, "v1")
		assert.ErrorIs(t, err, ErrInvalidPathSegment, segment)
	}
}
