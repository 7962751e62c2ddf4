package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusDeprecated Status = "DEPRECATED"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDeprecated
}

// DailyHorizon marks per-day prediction rows.
const DailyHorizon = 1

// Model is one trained model version for a company.
type Model struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	CompanyID   string         `gorm:"type:varchar(64);not null;uniqueIndex:uq_ml_models_version,priority:1" json:"company_id"`
	Name        string         `gorm:"type:varchar(128);not null;uniqueIndex:uq_ml_models_version,priority:2" json:"name"`
	Version     string         `gorm:"type:varchar(64);not null;uniqueIndex:uq_ml_models_version,priority:3" json:"version"`
	Status      Status         `gorm:"type:varchar(16);not null" json:"status"`
	TrainedAt   *time.Time     `json:"trained_at"`
	MetricsJSON datatypes.JSON `gorm:"column:metrics_json" json:"metrics"`
	ArtifactURI string         `gorm:"column:artifact_uri" json:"artifact_uri,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Model) TableName() string { return "ml_models" }

// Prediction is a daily value (HorizonDays == 1) or a pre-aggregated total
// keyed at the first forecast date.
type Prediction struct {
	ID               snowflake.ID        `gorm:"primaryKey" json:"id"`
	CompanyID        string              `gorm:"type:varchar(64);not null;index" json:"company_id"`
	ModelID          snowflake.ID        `gorm:"not null;uniqueIndex:uq_ml_predictions_day,priority:1" json:"model_id"`
	PredictionDate   time.Time           `gorm:"type:date;not null;uniqueIndex:uq_ml_predictions_day,priority:2" json:"prediction_date"`
	HorizonDays      int                 `gorm:"not null;uniqueIndex:uq_ml_predictions_day,priority:3" json:"horizon_days"`
	PredictedRevenue decimal.Decimal     `gorm:"type:numeric(19,2);not null" json:"predicted_revenue"`
	LowerBound       decimal.NullDecimal `gorm:"type:numeric(19,2)" json:"lower_bound"`
	UpperBound       decimal.NullDecimal `gorm:"type:numeric(19,2)" json:"upper_bound"`
	CreatedAt        time.Time           `gorm:"not null" json:"created_at"`
}

func (Prediction) TableName() string { return "ml_predictions" }
