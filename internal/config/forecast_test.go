package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultForecastConfigIsValid(t *testing.T) {
	cfg := DefaultForecastConfig()
	require.NoError(t, ValidateForecastConfig(cfg))
	assert.Equal(t, 360, cfg.LongestHorizonDays())
	assert.Equal(t, 730, cfg.MaxHorizonDays)
	assert.Equal(t, 0.75, cfg.TrainRatio)
}

func TestValidateForecastConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ForecastConfig)
	}{
		{name: "empty target", mutate: func(c *ForecastConfig) { c.Target = " " }},
		{name: "no horizons", mutate: func(c *ForecastConfig) { c.HorizonMonths = nil }},
		{name: "negative horizon", mutate: func(c *ForecastConfig) { c.HorizonMonths = []int{3, -1} }},
		{name: "cap below longest horizon", mutate: func(c *ForecastConfig) { c.MaxHorizonDays = 300 }},
		{name: "zero window", mutate: func(c *ForecastConfig) { c.RollingWindow = 0 }},
		{name: "ratio out of range", mutate: func(c *ForecastConfig) { c.TrainRatio = 1 }},
		{name: "no trees", mutate: func(c *ForecastConfig) { c.Forest.Trees = 0 }},
		{name: "duplicate alias", mutate: func(c *ForecastConfig) {
			c.Aliases = append(c.Aliases, FieldAlias{From: "date", To: "report_date"})
		}},
		{name: "incomplete alias", mutate: func(c *ForecastConfig) {
			c.Aliases = []FieldAlias{{From: "x"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultForecastConfig()
			tc.mutate(&cfg)
			if err := ValidateForecastConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNewForecastConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`forecast:
  target: contract_value
  horizonMonths: [1, 2]
  rollingWindow: 14
  forest:
    trees: 25
    seed: 7
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forecast-test.yml"), content, 0o600))

	holder, err := NewForecastConfigHolder(Config{
		ForecastConfigName: "forecast-test",
		ForecastConfigDirs: []string{dir},
	}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, "contract_value", got.Target)
	assert.Equal(t, []int{1, 2}, got.HorizonMonths)
	assert.Equal(t, 14, got.RollingWindow)
	assert.Equal(t, 25, got.Forest.Trees)
	assert.Equal(t, int64(7), got.Forest.Seed)
	assert.Equal(t, "forecast_rf", got.ModelName)
	assert.Equal(t, 0.75, got.TrainRatio)
}

func TestNewForecastConfigHolderFallsBackToDefaults(t *testing.T) {
	holder, err := NewForecastConfigHolder(Config{
		ForecastConfigName: "does-not-exist",
		ForecastConfigDirs: []string{t.TempDir()},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultForecastConfig().Target, holder.Get().Target)
	assert.Len(t, holder.Get().Aliases, len(DefaultForecastConfig().Aliases))
}
