package domain

// DateColumn carries the calendar date of a row.
const DateColumn = "report_date"

// DefaultTarget is the column forecast when none is configured.
const DefaultTarget = "new_cash_collected"

// Columns lists the numeric metrics of a daily report in canonical order.
var Columns = []string{
	"outbound_dials",
	"pickups",
	"conversations_30s_plus",
	"sales_call_booked_from_outbound",
	"sales_call_on_calendar",
	"no_show",
	"reschedule_request",
	"cancel",
	"deposits",
	"sales_one_call_close",
	"followup_sales",
	"upsell_conversation_taken",
	"upsells",
	"contract_value",
	"new_cash_collected",
}

// Schema returns a copy of Columns.
func Schema() []string {
	out := make([]string, len(Columns))
	copy(out, Columns)
	return out
}

// IsSchemaColumn reports whether name is a canonical numeric column.
func IsSchemaColumn(name string) bool {
	for _, column := range Columns {
		if column == name {
			return true
		}
	}
	return false
}
