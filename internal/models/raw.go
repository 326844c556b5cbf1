package models

import (
	"strings"
	"time"
)

// RawPage is one page as served by the source. It is never persisted.
type RawPage struct {
	ActionType  ActionType
	Number      int
	Token       string
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// RawFieldMapping is one source row keyed by field name. Values are untouched strings.
type RawFieldMapping struct {
	Fields    map[string]string
	SourceRef string
}

// Get returns the trimmed value of a field, or "" if it is absent.
func (m RawFieldMapping) Get(field string) string {
	return strings.TrimSpace(m.Fields[field])
}

// Has reports whether a field carries a non-blank value.
func (m RawFieldMapping) Has(field string) bool {
	return !IsBlank(m.Fields[field])
}

// IsBlank treats empty strings and the source's dash placeholder as missing.
func IsBlank(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "-" || v == "--"
}

// Field names shared by parsers, the manual store and normalizers.
const (
	FieldSymbol             = "symbol"
	FieldOldRatio           = "old_ratio"
	FieldNewRatio           = "new_ratio"
	FieldRatio              = "ratio"
	FieldFactor             = "factor"
	FieldPrice              = "price"
	FieldPriceLow           = "price_low"
	FieldPriceHigh          = "price_high"
	FieldVolume             = "volume"
	FieldBudget             = "budget"
	FieldAmount             = "amount"
	FieldCurrency           = "currency"
	FieldCumDate            = "cum_date"
	FieldExDate             = "ex_date"
	FieldRecordingDate      = "recording_date"
	FieldPaymentDate        = "payment_date"
	FieldSubscriptionDate   = "subscription_date"
	FieldTradingPeriodStart = "trading_period_start"
	FieldTradingPeriodEnd   = "trading_period_end"
	FieldExDateCash         = "ex_date_cash"
	FieldExerciseStart      = "exercise_start"
	FieldExerciseEnd        = "exercise_end"
	FieldMaturityDate       = "maturity_date"
	FieldMeetingDate        = "meeting_date"
	FieldPlace              = "place"
	FieldStartDate          = "start_date"
	FieldEndDate            = "end_date"
	// FieldTransactions holds a JSON array of buyback executions (manual entries only).
	FieldTransactions = "transactions"
)
