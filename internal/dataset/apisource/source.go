// Package apisource fetches daily reports from a remote JSON endpoint.
package apisource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const sourceName = config.SourceAPI

// maxBodyBytes bounds the response body read from the endpoint.
const maxBodyBytes = 64 << 20

type Source struct {
	url    string
	token  string
	apiKey string
	client *http.Client
	log    *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Source {
	timeout := cfg.Dataset.APITimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{
		url:    strings.TrimSpace(cfg.Dataset.APIURL),
		token:  strings.TrimSpace(cfg.Dataset.APIToken),
		apiKey: strings.TrimSpace(cfg.Dataset.APIKey),
		client: &http.Client{Timeout: timeout},
		log:    log.Named("dataset.api"),
	}
}

// WithClient replaces the HTTP client, mainly for tests.
func (s *Source) WithClient(client *http.Client) *Source {
	s.client = client
	return s
}

func (s *Source) Name() string {
	return sourceName
}

// Fetch returns the rows of the endpoint. Nested objects are flattened one level.
func (s *Source) Fetch(ctx context.Context, companyID string) ([]datasetdomain.RawRow, error) {
	endpoint, err := url.Parse(s.url)
	if err != nil {
		return nil, s.upstream(fmt.Errorf("parse url: %w", err))
	}
	if companyID != "" {
		query := endpoint.Query()
		query.Set("company_id", companyID)
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, s.upstream(err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.upstream(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, s.upstream(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	rows, err := decodePayload(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, s.upstream(err)
	}

	s.log.Debug("fetched rows",
		zap.Int("rows", len(rows)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return rows, nil
}

func (s *Source) upstream(err error) error {
	return &forecastdomain.UpstreamError{Source: sourceName, Err: err}
}

func decodePayload(r io.Reader) ([]datasetdomain.RawRow, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if envelope, ok := payload.(map[string]any); ok {
		data, found := envelope["data"]
		if !found {
			return nil, errors.New("payload object has no data field")
		}
		payload = data
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, errors.New("payload must be a list of records or a data array")
	}

	rows := make([]datasetdomain.RawRow, 0, len(items))
	for i, item := range items {
		object, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		rows = append(rows, flatten(object))
	}
	return rows, nil
}

func flatten(item map[string]any) datasetdomain.RawRow {
	row := make(datasetdomain.RawRow, len(item))
	for key, value := range item {
		if nested, ok := value.(map[string]any); ok {
			for nestedKey, nestedValue := range nested {
				row[nestedKey] = nestedValue
			}
			continue
		}
		row[key] = value
	}
	return row
}
