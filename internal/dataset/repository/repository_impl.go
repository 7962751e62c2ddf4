package repository

import (
	"context"
	"time"

	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() datasetdomain.Repository {
	return &repo{}
}

func (r *repo) FetchDaily(ctx context.Context, db *gorm.DB, companyID string) ([]datasetdomain.DailyReportRow, error) {
	var rows []datasetdomain.DailyReportRow
	err := db.WithContext(ctx).Raw(
		`SELECT dr.report_date,
		        di.outbound_dials,
		        di.pickups,
		        di.conversations_30s_plus,
		        di.sales_call_booked_from_outbound,
		        di.sales_call_on_calendar,
		        di.no_show,
		        di.reschedule_request,
		        di.cancel,
		        di.deposits,
		        di.sales_one_call_close,
		        di.followup_sales,
		        di.upsell_conversation_taken,
		        di.upsells,
		        di.contract_value,
		        di.new_cash_collected
		 FROM daily_reports dr
		 JOIN daily_report_inputs di ON di.daily_report_id = dr.id
		 WHERE dr.company_id = ?
		 ORDER BY dr.report_date`,
		companyID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) LatestDate(ctx context.Context, db *gorm.DB, companyID string) (*time.Time, error) {
	var rows []struct {
		ReportDate time.Time `gorm:"column:report_date"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT dr.report_date
		 FROM daily_reports dr
		 JOIN daily_report_inputs di ON di.daily_report_id = dr.id
		 WHERE dr.company_id = ?
		 ORDER BY dr.report_date DESC
		 LIMIT 1`,
		companyID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	latest := datasetdomain.NormalizeDate(rows[0].ReportDate)
	return &latest, nil
}

func (r *repo) ListCompanies(ctx context.Context, db *gorm.DB) ([]string, error) {
	var companies []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT company_id FROM daily_reports ORDER BY company_id`,
	).Scan(&companies).Error
	if err != nil {
		return nil, err
	}
	return companies, nil
}

func (r *repo) InsertReport(ctx context.Context, db *gorm.DB, report *datasetdomain.DailyReport, input *datasetdomain.DailyReportInput) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		input.DailyReportID = report.ID
		return tx.Create(input).Error
	})
}
