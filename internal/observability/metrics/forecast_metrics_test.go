package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObservePipeline(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newForecastMetrics(registry, Config{ServiceName: "forecast", Environment: "test"})

	m.ObservePipeline(time.Second, nil)
	m.ObservePipeline(time.Second, errors.New("boom"))
	m.ObservePipeline(time.Second, nil)

	if got := testutil.ToFloat64(m.pipelineRuns.WithLabelValues(PipelineOutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 successful runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.pipelineRuns.WithLabelValues(PipelineOutcomeFailure)); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
}

func TestSetModelScoreSkipsMissing(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newForecastMetrics(registry, Config{})

	mae := 12.5
	m.SetModelScore("forecast_rf", "mae", &mae)
	m.SetModelScore("forecast_rf", "mape", nil)

	if got := testutil.ToFloat64(m.modelScore.WithLabelValues("forecast_rf", "mae")); got != 12.5 {
		t.Fatalf("expected mae 12.5, got %v", got)
	}
	if got := testutil.CollectAndCount(m.modelScore); got != 1 {
		t.Fatalf("expected a single score series, got %d", got)
	}
}

func TestHTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/models/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/models/1", "/models/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/models/:id", "200")); got != 2 {
		t.Fatalf("expected 2 templated requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unknown", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}
