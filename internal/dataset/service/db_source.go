package service

import (
	"context"
	"time"

	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	"gorm.io/gorm"
)

// dbSource reads the daily_reports join through the repository.
type dbSource struct {
	db   *gorm.DB
	repo datasetdomain.Repository
}

// NewDBSource returns a Source backed by the relational store.
func NewDBSource(db *gorm.DB, repo datasetdomain.Repository) datasetdomain.Source {
	return &dbSource{db: db, repo: repo}
}

func (s *dbSource) Name() string {
	return config.SourceDB
}

func (s *dbSource) Fetch(ctx context.Context, companyID string) ([]datasetdomain.RawRow, error) {
	rows, err := s.repo.FetchDaily(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]datasetdomain.RawRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Raw())
	}
	return out, nil
}

func (s *dbSource) Companies(ctx context.Context) ([]string, error) {
	return s.repo.ListCompanies(ctx, s.db)
}

func (s *dbSource) LatestDate(ctx context.Context, companyID string) (time.Time, bool, error) {
	latest, err := s.repo.LatestDate(ctx, s.db, companyID)
	if err != nil || latest == nil {
		return time.Time{}, false, err
	}
	return *latest, true, nil
}
