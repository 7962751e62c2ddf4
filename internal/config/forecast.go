package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ForecastConfig holds the tunables of the training pipeline.
type ForecastConfig struct {
	Target        string `mapstructure:"target"`
	ModelName     string `mapstructure:"modelName"`
	HorizonMonths []int  `mapstructure:"horizonMonths"`
	// MaxHorizonDays caps any projection, requested or implied by a start date.
	MaxHorizonDays int          `mapstructure:"maxHorizonDays"`
	RollingWindow  int          `mapstructure:"rollingWindow"`
	TrainRatio     float64      `mapstructure:"trainRatio"`
	Forest         ForestConfig `mapstructure:"forest"`
	Aliases        []FieldAlias `mapstructure:"aliases"`
}

// ForestConfig configures the regression forest.
type ForestConfig struct {
	Trees           int   `mapstructure:"trees"`
	Seed            int64 `mapstructure:"seed"`
	MaxDepth        int   `mapstructure:"maxDepth"`
	MinSamplesSplit int   `mapstructure:"minSamplesSplit"`
	MinSamplesLeaf  int   `mapstructure:"minSamplesLeaf"`
	// MaxFeatures is the fraction of features considered per split. Zero means sqrt(p).
	MaxFeatures float64 `mapstructure:"maxFeatures"`
	Workers     int     `mapstructure:"workers"`
}

// FieldAlias maps an external field name onto a canonical column.
type FieldAlias struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Target:         "new_cash_collected",
		ModelName:      "forecast_rf",
		HorizonMonths:  []int{3, 6, 12},
		MaxHorizonDays: 730,
		RollingWindow:  30,
		TrainRatio:     0.75,
		Forest: ForestConfig{
			Trees:           300,
			Seed:            42,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
		},
		Aliases: []FieldAlias{
			{From: "reportDate", To: "report_date"},
			{From: "date", To: "report_date"},
			{From: "outboundDials", To: "outbound_dials"},
			{From: "conversations30sPlus", To: "conversations_30s_plus"},
			{From: "salesCallBookedFromOutbound", To: "sales_call_booked_from_outbound"},
			{From: "salesCallOnCalendar", To: "sales_call_on_calendar"},
			{From: "noShow", To: "no_show"},
			{From: "rescheduleRequest", To: "reschedule_request"},
			{From: "salesOneCallClose", To: "sales_one_call_close"},
			{From: "followupSales", To: "followup_sales"},
			{From: "upsellConversationTaken", To: "upsell_conversation_taken"},
			{From: "contractValue", To: "contract_value"},
			{From: "newCashCollected", To: "new_cash_collected"},
		},
	}
}

// LongestHorizonDays is the projection every run needs for its totals.
func (c ForecastConfig) LongestHorizonDays() int {
	longest := 0
	for _, months := range c.HorizonMonths {
		if months > longest {
			longest = months
		}
	}
	return longest * 30
}

type ForecastConfigHolder struct {
	current atomic.Value // holds ForecastConfig
}

// NewStaticForecastConfigHolder wraps a fixed configuration.
func NewStaticForecastConfigHolder(cfg ForecastConfig) *ForecastConfigHolder {
	holder := &ForecastConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewForecastConfigHolder(cfg Config, log *zap.Logger) (*ForecastConfigHolder, error) {
	log = log.Named("forecast-config")
	v := viper.New()

	name := strings.TrimSpace(cfg.ForecastConfigName)
	if name == "" {
		name = "forecast"
	}
	v.SetConfigName(name)
	v.SetConfigType("yml")
	for _, dir := range cfg.ForecastConfigDirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setForecastDefaults(v, DefaultForecastConfig())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	current, err := decodeForecastConfig(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateForecastConfig(current); err != nil {
		return nil, err
	}

	holder := NewStaticForecastConfigHolder(current)
	if !fileLoaded {
		log.Info("forecast config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeForecastConfig(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := ValidateForecastConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ForecastConfigHolder) Get() ForecastConfig {
	return h.current.Load().(ForecastConfig)
}

// decodeForecastConfig unmarshals the merged settings so nested defaults
// survive a partial file.
func decodeForecastConfig(v *viper.Viper) (ForecastConfig, error) {
	var wrapper struct {
		Forecast ForecastConfig `mapstructure:"forecast"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return ForecastConfig{}, err
	}
	return wrapper.Forecast, nil
}

func setForecastDefaults(v *viper.Viper, d ForecastConfig) {
	v.SetDefault("forecast.target", d.Target)
	v.SetDefault("forecast.modelName", d.ModelName)
	v.SetDefault("forecast.horizonMonths", d.HorizonMonths)
	v.SetDefault("forecast.maxHorizonDays", d.MaxHorizonDays)
	v.SetDefault("forecast.rollingWindow", d.RollingWindow)
	v.SetDefault("forecast.trainRatio", d.TrainRatio)
	v.SetDefault("forecast.forest.trees", d.Forest.Trees)
	v.SetDefault("forecast.forest.seed", d.Forest.Seed)
	v.SetDefault("forecast.forest.maxDepth", d.Forest.MaxDepth)
	v.SetDefault("forecast.forest.minSamplesSplit", d.Forest.MinSamplesSplit)
	v.SetDefault("forecast.forest.minSamplesLeaf", d.Forest.MinSamplesLeaf)
	v.SetDefault("forecast.forest.maxFeatures", d.Forest.MaxFeatures)
	v.SetDefault("forecast.forest.workers", d.Forest.Workers)
	v.SetDefault("forecast.aliases", d.Aliases)
}

func ValidateForecastConfig(cfg ForecastConfig) error {
	if strings.TrimSpace(cfg.Target) == "" {
		return errors.New("forecast.target cannot be empty")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return errors.New("forecast.modelName cannot be empty")
	}
	if len(cfg.HorizonMonths) == 0 {
		return errors.New("forecast.horizonMonths cannot be empty")
	}
	for _, months := range cfg.HorizonMonths {
		if months <= 0 {
			return fmt.Errorf("forecast.horizonMonths must be positive, got %d", months)
		}
	}
	if cfg.MaxHorizonDays < cfg.LongestHorizonDays() {
		return fmt.Errorf("forecast.maxHorizonDays must cover the longest horizon (%d days)", cfg.LongestHorizonDays())
	}
	if cfg.RollingWindow <= 0 {
		return errors.New("forecast.rollingWindow must be positive")
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		return errors.New("forecast.trainRatio must be between 0 and 1")
	}
	if cfg.Forest.Trees <= 0 {
		return errors.New("forecast.forest.trees must be positive")
	}
	if cfg.Forest.MaxFeatures < 0 || cfg.Forest.MaxFeatures > 1 {
		return errors.New("forecast.forest.maxFeatures must be within [0, 1]")
	}
	seen := make(map[string]struct{}, len(cfg.Aliases))
	for _, alias := range cfg.Aliases {
		from := strings.TrimSpace(alias.From)
		if from == "" || strings.TrimSpace(alias.To) == "" {
			return errors.New("forecast.aliases entries need both from and to")
		}
		if _, ok := seen[from]; ok {
			return fmt.Errorf("forecast.aliases has duplicate source %q", from)
		}
		seen[from] = struct{}{}
	}
	return nil
}
