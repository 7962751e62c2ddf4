package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string `env:"APP_SERVICE" envDefault:"forecast"`
	AppVersion  string `env:"APP_VERSION" envDefault:"0.1.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OtelEnabled       bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol      string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	OtelSamplingRatio float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
	PushgatewayURL    string  `env:"PUSHGATEWAY_URL"`

	DBType            string `env:"DATABASE_TYPE" envDefault:"postgres"`
	DBHost            string `env:"DATABASE_HOST" envDefault:"localhost"`
	DBPort            string `env:"DATABASE_PORT" envDefault:"5432"`
	DBName            string `env:"DATABASE_NAME" envDefault:"postgres"`
	DBUser            string `env:"DATABASE_USER" envDefault:"postgres"`
	DBPassword        string `env:"DATABASE_PASSWORD"`
	DBSSLMode         string `env:"DATABASE_SSLMODE" envDefault:"disable"`
	DBPath            string `env:"DATABASE_PATH" envDefault:"forecast.db"`
	DBMaxIdleConn     int    `env:"DATABASE_MAX_IDLE_CONN" envDefault:"5"`
	DBMaxOpenConn     int    `env:"DATABASE_MAX_OPEN_CONN" envDefault:"20"`
	DBConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"300"`
	DBConnMaxIdleTime int    `env:"DATABASE_CONN_MAX_IDLE_TIME" envDefault:"60"`
	DBRunMigrations   bool   `env:"DATABASE_RUN_MIGRATIONS" envDefault:"true"`

	Redis RedisConfig `envPrefix:"REDIS_"`

	// APIKey is the single shared key accepted in the X-API-Key header.
	APIKey string `env:"FORECAST_API_KEY"`
	// APIKeys lists additional keys as key:role pairs.
	APIKeys []string `env:"FORECAST_API_KEYS" envSeparator:","`

	ForecastConfigName string        `env:"FORECAST_CONFIG_NAME" envDefault:"forecast"`
	ForecastConfigDirs []string      `env:"FORECAST_CONFIG_DIRS" envSeparator:"," envDefault:"/etc/forecast,."`
	ArtifactDir        string        `env:"ARTIFACT_DIR" envDefault:"artifacts"`
	RefreshCron        string        `env:"FORECAST_REFRESH_CRON"`
	RefreshLockTTL     time.Duration `env:"FORECAST_REFRESH_LOCK_TTL" envDefault:"15m"`

	Dataset DatasetConfig `envPrefix:"DATASET_"`

	TrainRateLimit TrainRateLimitConfig `envPrefix:"TRAIN_RATE_LIMIT_"`
}

// TrainRateLimitConfig throttles manual retrains per caller. Zero disables it.
type TrainRateLimitConfig struct {
	PerMinute float64 `env:"PER_MINUTE" envDefault:"0"`
	Burst     int     `env:"BURST" envDefault:"3"`
}

// RedisConfig configures the optional distributed refresh lock.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// DatasetConfig selects and configures the history source.
type DatasetConfig struct {
	Source   string `env:"SOURCE" envDefault:"db"`
	APIURL   string `env:"API_URL"`
	APIToken string `env:"API_TOKEN"`
	// APIKey is sent upstream as X-API-Key. It is unrelated to FORECAST_API_KEY.
	APIKey       string        `env:"API_KEY"`
	APITimeout   time.Duration `env:"API_TIMEOUT" envDefault:"30s"`
	CSVPath      string        `env:"CSV_PATH" envDefault:"data/daily_report.csv"`
	AllowMissing bool          `env:"ALLOW_MISSING" envDefault:"false"`
}

const (
	SourceDB  = "db"
	SourceAPI = "api"
	SourceCSV = "csv"
)

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Dataset.Source = strings.ToLower(strings.TrimSpace(cfg.Dataset.Source))
	switch cfg.Dataset.Source {
	case SourceDB, SourceAPI, SourceCSV:
	default:
		return Config{}, fmt.Errorf("unsupported dataset source %q", cfg.Dataset.Source)
	}
	if cfg.Dataset.Source == SourceAPI && strings.TrimSpace(cfg.Dataset.APIURL) == "" {
		return Config{}, fmt.Errorf("DATASET_API_URL is required for the api source")
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in a production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
