package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cespare/xxhash/v2"
	"github.com/smallbiznis/forecast/internal/mlmodel/domain"
	pkgdb "github.com/smallbiznis/forecast/pkg/db"
	"github.com/smallbiznis/forecast/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const predictionBatchSize = 500

const modelColumns = `id, company_id, name, version, status, trained_at, metrics_json, artifact_uri, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Lock takes a transaction-scoped advisory lock on PostgreSQL. Other dialects
// rely on their own write serialisation.
func (r *repo) Lock(ctx context.Context, db *gorm.DB, companyID, name string) error {
	if !pkgdb.IsPostgres(db) {
		return nil
	}
	return db.WithContext(ctx).Exec(`SELECT pg_advisory_xact_lock(?)`, lockKey(companyID, name)).Error
}

func lockKey(companyID, name string) int64 {
	return int64(xxhash.Sum64String("ml_models:" + companyID + ":" + name))
}

func (r *repo) InsertModel(ctx context.Context, db *gorm.DB, model *domain.Model) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ml_models (`+modelColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.ID,
		model.CompanyID,
		model.Name,
		model.Version,
		model.Status,
		model.TrainedAt,
		model.MetricsJSON,
		model.ArtifactURI,
		model.CreatedAt,
		model.UpdatedAt,
	).Error
}

func (r *repo) InsertPredictions(ctx context.Context, db *gorm.DB, predictions []domain.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model_id"}, {Name: "prediction_date"}, {Name: "horizon_days"}},
			DoUpdates: clause.AssignmentColumns([]string{"predicted_revenue", "lower_bound", "upper_bound"}),
		}).
		CreateInBatches(predictions, predictionBatchSize).Error
}

func (r *repo) DeprecateActive(ctx context.Context, db *gorm.DB, companyID, name string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE ml_models SET status = ?, updated_at = ?
		 WHERE company_id = ? AND name = ? AND status = ?`,
		domain.StatusDeprecated,
		now,
		companyID,
		name,
		domain.StatusActive,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, companyID, name string) (*domain.Model, error) {
	var models []domain.Model
	err := db.WithContext(ctx).Raw(
		`SELECT `+modelColumns+`
		 FROM ml_models
		 WHERE company_id = ? AND name = ? AND status = ?
		 ORDER BY CASE WHEN trained_at IS NULL THEN 1 ELSE 0 END, trained_at DESC, created_at DESC
		 LIMIT 1`,
		companyID,
		name,
		domain.StatusActive,
	).Scan(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return &models[0], nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Model, error) {
	var model domain.Model
	err := db.WithContext(ctx).Raw(
		`SELECT `+modelColumns+` FROM ml_models WHERE id = ?`,
		id,
	).Scan(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == 0 {
		return nil, nil
	}
	return &model, nil
}

func (r *repo) FindByVersion(ctx context.Context, db *gorm.DB, companyID, name, version string) (*domain.Model, error) {
	var model domain.Model
	err := db.WithContext(ctx).Raw(
		`SELECT `+modelColumns+`
		 FROM ml_models WHERE company_id = ? AND name = ? AND version = ?`,
		companyID,
		name,
		version,
	).Scan(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == 0 {
		return nil, nil
	}
	return &model, nil
}

func (r *repo) ListModels(ctx context.Context, db *gorm.DB, filter domain.ListModelsFilter, page pagination.Pagination) ([]*domain.Model, error) {
	var models []*domain.Model
	stmt := db.WithContext(ctx).
		Model(&domain.Model{}).
		Where("company_id = ?", filter.CompanyID)
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", pagination.ErrInvalidToken, err)
		}
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, id)
	}
	if page.PageSize > 0 {
		stmt = stmt.Limit(page.PageSize + 1)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (r *repo) ListDaily(ctx context.Context, db *gorm.DB, modelID snowflake.ID, from time.Time, limit int) ([]domain.Prediction, error) {
	var predictions []domain.Prediction
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, model_id, prediction_date, horizon_days, predicted_revenue, lower_bound, upper_bound, created_at
		 FROM ml_predictions
		 WHERE model_id = ? AND horizon_days = ? AND prediction_date >= ?
		 ORDER BY prediction_date ASC
		 LIMIT ?`,
		modelID,
		domain.DailyHorizon,
		from,
		limit,
	).Scan(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *repo) ListPredictions(ctx context.Context, db *gorm.DB, filter domain.ListPredictionsFilter) ([]domain.Prediction, error) {
	var predictions []domain.Prediction
	stmt := db.WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("company_id = ?", filter.CompanyID)
	if filter.ModelID != 0 {
		stmt = stmt.Where("model_id = ?", filter.ModelID)
	}
	if filter.HorizonDays > 0 {
		stmt = stmt.Where("horizon_days = ?", filter.HorizonDays)
	}
	if filter.From != nil {
		stmt = stmt.Where("prediction_date >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("prediction_date <= ?", *filter.To)
	}
	err := stmt.
		Order("prediction_date asc, horizon_days asc").
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *repo) FindTotal(ctx context.Context, db *gorm.DB, modelID snowflake.ID, date time.Time, horizonDays int) (*domain.Prediction, error) {
	var predictions []domain.Prediction
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, model_id, prediction_date, horizon_days, predicted_revenue, lower_bound, upper_bound, created_at
		 FROM ml_predictions
		 WHERE model_id = ? AND prediction_date = ? AND horizon_days = ?`,
		modelID,
		date,
		horizonDays,
	).Scan(&predictions).Error
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, nil
	}
	return &predictions[0], nil
}

func (r *repo) ListCompanies(ctx context.Context, db *gorm.DB) ([]string, error) {
	var companies []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT company_id FROM ml_models ORDER BY company_id`,
	).Scan(&companies).Error
	if err != nil {
		return nil, err
	}
	return companies, nil
}
