package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/smallbiznis/forecast/internal/config"
	"github.com/smallbiznis/forecast/internal/dataset/apisource"
	"github.com/smallbiznis/forecast/internal/dataset/csvio"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/smallbiznis/forecast/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SourceParams struct {
	fx.In

	DB     *gorm.DB `optional:"true"`
	Config config.Config
	Log    *zap.Logger
	Repo   datasetdomain.Repository
}

// NewSource selects the history source named by DATASET_SOURCE.
func NewSource(p SourceParams) (datasetdomain.Source, error) {
	switch p.Config.Dataset.Source {
	case config.SourceAPI:
		return apisource.New(p.Config, p.Log), nil
	case config.SourceCSV:
		return csvio.NewSource(p.Config), nil
	case config.SourceDB, "":
		if p.DB == nil {
			return nil, fmt.Errorf("dataset source %q requires a database", config.SourceDB)
		}
		return NewDBSource(p.DB, p.Repo), nil
	default:
		return nil, fmt.Errorf("unsupported dataset source %q", p.Config.Dataset.Source)
	}
}

type Params struct {
	fx.In

	Source   datasetdomain.Source
	Config   config.Config
	Forecast *config.ForecastConfigHolder
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	source       datasetdomain.Source
	forecast     *config.ForecastConfigHolder
	allowMissing bool
	log          *zap.Logger
	metrics      *obsmetrics.Metrics
}

func New(p Params) datasetdomain.Service {
	return &Service{
		source:   p.Source,
		forecast: p.Forecast,
		// Remote payloads routinely omit zero-valued metrics.
		allowMissing: p.Config.Dataset.AllowMissing || p.Source.Name() == config.SourceAPI,
		log:          p.Log.Named("dataset.service"),
		metrics:      p.Metrics,
	}
}

func (s *Service) Load(ctx context.Context, companyID string) (*datasetdomain.Frame, error) {
	log := logger.FromContext(ctx).With(zap.String("source", s.source.Name()))

	raw, err := s.source.Fetch(ctx, companyID)
	if err != nil {
		return nil, upstream(s.source.Name(), err)
	}

	aliases, err := datasetdomain.NewAliasTable(s.forecast.Get().Aliases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forecastdomain.ErrSchema, err)
	}

	frame, report, err := datasetdomain.Normalize(raw, datasetdomain.NormalizeOptions{
		Aliases:      aliases,
		AllowMissing: s.allowMissing,
	})
	if err != nil {
		return nil, err
	}
	if report.HasIssues() {
		log.Warn("dataset normalized with issues",
			zap.Strings("unknown_fields", report.UnknownFields),
			zap.Any("invalid_values", report.InvalidValues),
			zap.Any("missing_values", report.MissingValues),
			zap.Strings("filled_columns", report.FilledColumns),
		)
	}
	if frame.Len() == 0 {
		return nil, noHistory(companyID)
	}

	s.metrics.RecordDatasetRows(ctx, s.source.Name(), report.Rows)
	log.Debug("dataset loaded", zap.Int("raw_rows", report.Rows), zap.Int("days", frame.Len()))
	return frame, nil
}

func (s *Service) LatestDate(ctx context.Context, companyID string) (time.Time, error) {
	if dater, ok := s.source.(datasetdomain.LatestDater); ok {
		latest, found, err := dater.LatestDate(ctx, companyID)
		if err != nil {
			return time.Time{}, upstream(s.source.Name(), err)
		}
		if !found {
			return time.Time{}, noHistory(companyID)
		}
		return latest, nil
	}

	frame, err := s.Load(ctx, companyID)
	if err != nil {
		return time.Time{}, err
	}
	latest, _ := frame.LastDate()
	return latest, nil
}

func (s *Service) Companies(ctx context.Context) ([]string, error) {
	lister, ok := s.source.(datasetdomain.CompanyLister)
	if !ok {
		return nil, datasetdomain.ErrCompanyListingUnsupported
	}
	companies, err := lister.Companies(ctx)
	if err != nil {
		return nil, err
	}
	return companies, nil
}

func (s *Service) Export(ctx context.Context, companyID string, w io.Writer) (int, error) {
	frame, err := s.Load(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if err := csvio.Write(w, frame); err != nil {
		return 0, err
	}
	return frame.Len(), nil
}

func noHistory(companyID string) error {
	return fmt.Errorf("%w: %w: company %s", forecastdomain.ErrInsufficientData, datasetdomain.ErrNoHistory, companyID)
}

func upstream(source string, err error) error {
	if forecastdomain.Kind(err) != nil {
		return err
	}
	return &forecastdomain.UpstreamError{Source: source, Err: err}
}
