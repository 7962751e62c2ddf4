package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNoHistory                 = errors.New("no_historical_data")
	ErrCompanyListingUnsupported = errors.New("company_listing_unsupported")
	ErrInvalidCompanyID          = errors.New("invalid_company_id")
)

// Source fetches raw daily rows for a company.
type Source interface {
	Name() string
	Fetch(ctx context.Context, companyID string) ([]RawRow, error)
}

// CompanyLister is implemented by sources that can enumerate tenants.
type CompanyLister interface {
	Companies(ctx context.Context) ([]string, error)
}

// LatestDater is implemented by sources that answer the latest date cheaply.
type LatestDater interface {
	LatestDate(ctx context.Context, companyID string) (time.Time, bool, error)
}

//go:generate mockgen -source=domain.go -destination=../mocks/mock_service.go -package=mocks

// Service loads normalized history for the forecast pipeline.
type Service interface {
	Load(ctx context.Context, companyID string) (*Frame, error)
	LatestDate(ctx context.Context, companyID string) (time.Time, error)
	Companies(ctx context.Context) ([]string, error)
	Export(ctx context.Context, companyID string, w io.Writer) (int, error)
}
