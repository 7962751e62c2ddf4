package domain

import (
	"errors"
	"strings"
)

// Error kinds. Component errors wrap exactly one of these.
var (
	ErrSchema           = errors.New("schema_error")
	ErrInsufficientData = errors.New("insufficient_data")
	ErrPersistence      = errors.New("persistence_error")
	ErrUpstreamFetch    = errors.New("upstream_fetch_error")
)

// MissingColumnError reports schema columns absent from an input table.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return "missing_column: " + strings.Join(e.Columns, ", ")
}

func (e *MissingColumnError) Unwrap() error {
	return ErrSchema
}

// UpstreamError wraps a failure of a history source.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return "upstream_fetch_error: " + e.Source + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamFetch, e.Err}
}

// Kind returns the taxonomy kind of err, or nil when err is unclassified.
func Kind(err error) error {
	for _, kind := range []error{ErrSchema, ErrInsufficientData, ErrPersistence, ErrUpstreamFetch} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
