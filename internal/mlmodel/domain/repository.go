package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/forecast/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListModelsFilter struct {
	CompanyID string
	Name      string
	Status    Status
}

type ListPredictionsFilter struct {
	CompanyID   string
	ModelID     snowflake.ID
	From        *time.Time
	To          *time.Time
	HorizonDays int
}

type Repository interface {
	// Lock serialises commits for (companyID, name) until the transaction ends.
	Lock(ctx context.Context, db *gorm.DB, companyID, name string) error
	InsertModel(ctx context.Context, db *gorm.DB, model *Model) error
	InsertPredictions(ctx context.Context, db *gorm.DB, predictions []Prediction) error
	DeprecateActive(ctx context.Context, db *gorm.DB, companyID, name string, now time.Time) (int64, error)
	FindActive(ctx context.Context, db *gorm.DB, companyID, name string) (*Model, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Model, error)
	FindByVersion(ctx context.Context, db *gorm.DB, companyID, name, version string) (*Model, error)
	ListModels(ctx context.Context, db *gorm.DB, filter ListModelsFilter, page pagination.Pagination) ([]*Model, error)
	ListDaily(ctx context.Context, db *gorm.DB, modelID snowflake.ID, from time.Time, limit int) ([]Prediction, error)
	ListPredictions(ctx context.Context, db *gorm.DB, filter ListPredictionsFilter) ([]Prediction, error)
	FindTotal(ctx context.Context, db *gorm.DB, modelID snowflake.ID, date time.Time, horizonDays int) (*Prediction, error)
	ListCompanies(ctx context.Context, db *gorm.DB) ([]string, error)
}
