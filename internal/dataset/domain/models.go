package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DailyReport is the per-company, per-day header row.
type DailyReport struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	CompanyID  string       `gorm:"type:varchar(64);not null;index:idx_daily_reports_company_date,priority:1"`
	ReportDate time.Time    `gorm:"type:date;not null;index:idx_daily_reports_company_date,priority:2"`
	CreatedAt  time.Time    `gorm:"not null"`
	UpdatedAt  time.Time    `gorm:"not null"`
}

func (DailyReport) TableName() string { return "daily_reports" }

// DailyReportInput holds the metrics captured for a DailyReport.
type DailyReportInput struct {
	ID                          snowflake.ID `gorm:"primaryKey"`
	DailyReportID               snowflake.ID `gorm:"not null;index"`
	OutboundDials               *int64
	Pickups                     *int64
	Conversations30sPlus        *int64 `gorm:"column:conversations_30s_plus"`
	SalesCallBookedFromOutbound *int64
	SalesCallOnCalendar         *int64
	NoShow                      *int64
	RescheduleRequest           *int64
	Cancel                      *int64
	Deposits                    *int64
	SalesOneCallClose           *int64
	FollowupSales               *int64
	UpsellConversationTaken     *int64
	Upsells                     *int64
	ContractValue               *float64 `gorm:"type:numeric(19,2)"`
	NewCashCollected            *float64 `gorm:"type:numeric(19,2)"`
}

func (DailyReportInput) TableName() string { return "daily_report_inputs" }

// DailyReportRow is the joined read model of a report and its inputs.
type DailyReportRow struct {
	ReportDate                  time.Time `gorm:"column:report_date"`
	OutboundDials               *float64  `gorm:"column:outbound_dials"`
	Pickups                     *float64  `gorm:"column:pickups"`
	Conversations30sPlus        *float64  `gorm:"column:conversations_30s_plus"`
	SalesCallBookedFromOutbound *float64  `gorm:"column:sales_call_booked_from_outbound"`
	SalesCallOnCalendar         *float64  `gorm:"column:sales_call_on_calendar"`
	NoShow                      *float64  `gorm:"column:no_show"`
	RescheduleRequest           *float64  `gorm:"column:reschedule_request"`
	Cancel                      *float64  `gorm:"column:cancel"`
	Deposits                    *float64  `gorm:"column:deposits"`
	SalesOneCallClose           *float64  `gorm:"column:sales_one_call_close"`
	FollowupSales               *float64  `gorm:"column:followup_sales"`
	UpsellConversationTaken     *float64  `gorm:"column:upsell_conversation_taken"`
	Upsells                     *float64  `gorm:"column:upsells"`
	ContractValue               *float64  `gorm:"column:contract_value"`
	NewCashCollected            *float64  `gorm:"column:new_cash_collected"`
}

// Raw converts the row into canonical raw form. NULL metrics become nil.
func (r DailyReportRow) Raw() RawRow {
	row := RawRow{DateColumn: r.ReportDate}
	for column, value := range map[string]*float64{
		"outbound_dials":                  r.OutboundDials,
		"pickups":                         r.Pickups,
		"conversations_30s_plus":          r.Conversations30sPlus,
		"sales_call_booked_from_outbound": r.SalesCallBookedFromOutbound,
		"sales_call_on_calendar":          r.SalesCallOnCalendar,
		"no_show":                         r.NoShow,
		"reschedule_request":              r.RescheduleRequest,
		"cancel":                          r.Cancel,
		"deposits":                        r.Deposits,
		"sales_one_call_close":            r.SalesOneCallClose,
		"followup_sales":                  r.FollowupSales,
		"upsell_conversation_taken":       r.UpsellConversationTaken,
		"upsells":                         r.Upsells,
		"contract_value":                  r.ContractValue,
		"new_cash_collected":              r.NewCashCollected,
	} {
		if value == nil {
			row[column] = nil
			continue
		}
		row[column] = *value
	}
	return row
}

// Repository reads daily reports from the relational store.
type Repository interface {
	FetchDaily(ctx context.Context, db *gorm.DB, companyID string) ([]DailyReportRow, error)
	LatestDate(ctx context.Context, db *gorm.DB, companyID string) (*time.Time, error)
	ListCompanies(ctx context.Context, db *gorm.DB) ([]string, error)
	InsertReport(ctx context.Context, db *gorm.DB, report *DailyReport, input *DailyReportInput) error
}
