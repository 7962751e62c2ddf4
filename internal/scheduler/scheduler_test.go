package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/forecast/internal/clock"
	obsmetrics "github.com/smallbiznis/forecast/internal/observability/metrics"
	refreshdomain "github.com/smallbiznis/forecast/internal/refresh/domain"
	refreshmocks "github.com/smallbiznis/forecast/internal/refresh/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(t *testing.T, cfg Config, refresh refreshdomain.Service) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Config:  cfg,
		Refresh: refresh,
		Clock:   clock.SystemClock{},
		Log:     zap.NewNop(),
		Metrics: obsmetrics.NewForecastMetricsForTest(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return s
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Params{Clock: clock.SystemClock{}, Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRejectsMalformedSpec(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := New(Params{
		Config:  Config{Spec: "every tuesday"},
		Refresh: refreshmocks.NewMockService(ctrl),
		Clock:   clock.SystemClock{},
		Log:     zap.NewNop(),
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRefreshesAllCompanies(t *testing.T) {
	ctrl := gomock.NewController(t)
	refresh := refreshmocks.NewMockService(ctrl)
	refresh.EXPECT().TriggerRefresh(gomock.Any(), "").Return([]refreshdomain.RefreshResult{
		{CompanyID: "c-1", ModelID: "1", Version: "v1"},
		{CompanyID: "c-2", Error: "no_history"},
	}, nil)

	s := newScheduler(t, Config{}, refresh)
	require.NoError(t, s.RunOnce(context.Background()))
}

func TestRunOnceWrapsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	refresh := refreshmocks.NewMockService(ctrl)
	boom := errors.New("boom")
	refresh.EXPECT().TriggerRefresh(gomock.Any(), "").Return(nil, boom)

	s := newScheduler(t, Config{}, refresh)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), jobRefreshAll)
}

func TestRunOnceTreatsTimeoutAsSoft(t *testing.T) {
	ctrl := gomock.NewController(t)
	refresh := refreshmocks.NewMockService(ctrl)
	refresh.EXPECT().TriggerRefresh(gomock.Any(), "").DoAndReturn(
		func(ctx context.Context, _ string) ([]refreshdomain.RefreshResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	s := newScheduler(t, Config{Timeout: 20 * time.Millisecond}, refresh)
	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestStartWithoutSpecIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newScheduler(t, Config{}, refreshmocks.NewMockService(ctrl))

	require.NoError(t, s.Start(context.Background()))
	assert.Nil(t, s.cron)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartRunsOnSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	refresh := refreshmocks.NewMockService(ctrl)
	var calls atomic.Int32
	refresh.EXPECT().TriggerRefresh(gomock.Any(), "").DoAndReturn(
		func(context.Context, string) ([]refreshdomain.RefreshResult, error) {
			calls.Add(1)
			return nil, nil
		}).MinTimes(1)

	s := newScheduler(t, Config{Spec: "@every 1s"}, refresh)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
