package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPusherDisabledWithoutEndpoint(t *testing.T) {
	p := NewPusher("  ", "forecast_train", nil)
	assert.Nil(t, p)
	assert.NoError(t, p.Push(context.Background(), prometheus.NewRegistry()))
}

func TestPusherPushesGroupedJob(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "forecast_train_runs_total", Help: "runs"})
	reg.MustRegister(counter)
	counter.Inc()

	p := NewPusher(srv.URL, "forecast_train", map[string]string{"company_id": "c-1", "": "skipped"})
	require.NoError(t, p.Push(context.Background(), reg))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/forecast_train/company_id/c-1", path)
}

func TestPusherRequiresJob(t *testing.T) {
	p := NewPusher("http://localhost:9091", "", nil)
	assert.Error(t, p.Push(context.Background(), prometheus.NewRegistry()))
}
