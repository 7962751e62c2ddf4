package apisource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/forecast/internal/config"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{APIKey: "inbound-trainer-key"}
	cfg.Dataset.APIURL = srv.URL + "/reports"
	cfg.Dataset.APIToken = "token"
	return New(cfg, zap.NewNop()).WithClient(srv.Client())
}

func TestFetchEnvelopeAndFlatten(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-API-Key"))
		assert.Equal(t, "c-1", r.URL.Query().Get("company_id"))
		_, _ = w.Write([]byte(`{"data":[{"reportDate":"2024-01-01","inputs":{"newCashCollected":10.5,"outboundDials":3}}]}`))
	})

	rows, err := src.Fetch(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-01", rows[0]["reportDate"])
	assert.Contains(t, rows[0], "newCashCollected")
	assert.NotContains(t, rows[0], "inputs")
}

func TestFetchPlainList(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"date":"2024-01-01"},{"date":"2024-01-02"}]`))
	})

	rows, err := src.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFetchFailuresAreUpstreamErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"scalar payload": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`42`))
		},
		"non object item": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[1, 2]`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newSource(t, handler).Fetch(context.Background(), "c-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, forecastdomain.ErrUpstreamFetch))
		})
	}
}

func TestFetchSendsDatasetAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upstream-key", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{APIKey: "inbound-trainer-key"}
	cfg.Dataset.APIURL = srv.URL
	cfg.Dataset.APIKey = "upstream-key"
	_, err := New(cfg, zap.NewNop()).WithClient(srv.Client()).Fetch(context.Background(), "c-1")
	require.NoError(t, err)
}
