package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	"github.com/smallbiznis/forecast/internal/dataset/repository"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/smallbiznis/forecast/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn := dbtest.Open(t)
	require.NoError(t, conn.AutoMigrate(&datasetdomain.DailyReport{}, &datasetdomain.DailyReportInput{}))
	return conn
}

func seedReport(t *testing.T, conn *gorm.DB, node *snowflake.Node, companyID string, day time.Time, cash float64) {
	t.Helper()
	dials := int64(10)
	report := &datasetdomain.DailyReport{
		ID:         node.Generate(),
		CompanyID:  companyID,
		ReportDate: day,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	input := &datasetdomain.DailyReportInput{
		ID:               node.Generate(),
		OutboundDials:    &dials,
		NewCashCollected: &cash,
	}
	require.NoError(t, repository.Provide().InsertReport(context.Background(), conn, report, input))
}

func newService(t *testing.T, conn *gorm.DB, allowMissing bool) datasetdomain.Service {
	t.Helper()
	cfg := config.Config{}
	cfg.Dataset.AllowMissing = allowMissing
	return New(Params{
		Source:   NewDBSource(conn, repository.Provide()),
		Config:   cfg,
		Forecast: config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
		Log:      zap.NewNop(),
	})
}

func TestLoadFromDatabase(t *testing.T) {
	conn := setupDB(t)
	node, _ := snowflake.NewNode(1)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seedReport(t, conn, node, "c-1", day.AddDate(0, 0, 1), 200)
	seedReport(t, conn, node, "c-1", day, 100)
	seedReport(t, conn, node, "c-1", day, 50)
	seedReport(t, conn, node, "c-2", day, 999)

	svc := newService(t, conn, true)
	frame, err := svc.Load(context.Background(), "c-1")
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, 150.0, frame.Value("new_cash_collected", 0))
	assert.Equal(t, 20.0, frame.Value("outbound_dials", 0))
	assert.Equal(t, 200.0, frame.Value("new_cash_collected", 1))

	latest, err := svc.LatestDate(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, 1), latest)

	companies, err := svc.Companies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, companies)

	var buf bytes.Buffer
	n, err := svc.Export(context.Background(), "c-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(buf.String(), "report_date,outbound_dials,"))
}

func TestLoadWithoutHistory(t *testing.T) {
	conn := setupDB(t)
	svc := newService(t, conn, true)

	_, err := svc.Load(context.Background(), "ghost")
	assert.True(t, errors.Is(err, datasetdomain.ErrNoHistory))
	assert.True(t, errors.Is(err, forecastdomain.ErrInsufficientData))

	_, err = svc.LatestDate(context.Background(), "ghost")
	assert.True(t, errors.Is(err, datasetdomain.ErrNoHistory))
}

type failingSource struct{}

func (failingSource) Name() string { return "stub" }

func (failingSource) Fetch(context.Context, string) ([]datasetdomain.RawRow, error) {
	return nil, errors.New("connection reset")
}

func TestLoadWrapsSourceFailure(t *testing.T) {
	svc := New(Params{
		Source:   failingSource{},
		Forecast: config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
		Log:      zap.NewNop(),
	})

	_, err := svc.Load(context.Background(), "c-1")
	assert.True(t, errors.Is(err, forecastdomain.ErrUpstreamFetch))

	_, err = svc.Companies(context.Background())
	assert.ErrorIs(t, err, datasetdomain.ErrCompanyListingUnsupported)
}
