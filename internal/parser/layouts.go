package parser

import "github.com/supertypeai/sectors-corporate-actions/internal/models"

// Column maps one table cell to a field. Negative indexes count from the end of the row.
type Column struct {
	Field    string
	Index    int
	Required bool
	// Anchor takes the text of the first link in the cell.
	Anchor bool
}

// Layout is the expected row shape for one action type's listing.
type Layout struct {
	ActionType models.ActionType
	Columns    []Column
}

// MinColumns is the narrowest header that can hold every required column.
func (l Layout) MinColumns() int {
	n := 0
	for _, c := range l.Columns {
		if !c.Required {
			continue
		}
		need := c.Index + 1
		if c.Index < 0 {
			need = -c.Index
		}
		if need > n {
			n = need
		}
	}
	return n
}

// Every listing starts with a running number, the ticker link and the company name.
var symbolColumn = Column{Field: models.FieldSymbol, Index: 1, Required: true, Anchor: true}

var layouts = map[models.ActionType]Layout{
	models.Dividend: {
		ActionType: models.Dividend,
		Columns: []Column{
			symbolColumn,
			{Field: models.FieldCurrency, Index: 3, Required: true},
			{Field: models.FieldAmount, Index: 4, Required: true},
			{Field: models.FieldCumDate, Index: 5, Required: true},
			{Field: models.FieldExDate, Index: 6},
			{Field: models.FieldRecordingDate, Index: -3},
			{Field: models.FieldPaymentDate, Index: -2},
		},
	},
	models.StockSplit: {
		ActionType: models.StockSplit,
		Columns:    splitColumns,
	},
	models.ReverseStockSplit: {
		ActionType: models.ReverseStockSplit,
		Columns:    splitColumns,
	},
	models.RightsIssue: {
		ActionType: models.RightsIssue,
		Columns: []Column{
			symbolColumn,
			{Field: models.FieldOldRatio, Index: 3, Required: true},
			{Field: models.FieldNewRatio, Index: 4, Required: true},
			{Field: models.FieldPrice, Index: 5, Required: true},
			{Field: models.FieldCumDate, Index: 6, Required: true},
			{Field: models.FieldExDate, Index: 7},
			{Field: models.FieldRecordingDate, Index: -5},
			{Field: models.FieldTradingPeriodStart, Index: -4},
			{Field: models.FieldTradingPeriodEnd, Index: -3},
			{Field: models.FieldSubscriptionDate, Index: -2},
		},
	},
	models.Buyback: {
		ActionType: models.Buyback,
		Columns: []Column{
			symbolColumn,
			{Field: models.FieldStartDate, Index: 3, Required: true},
			{Field: models.FieldEndDate, Index: 4},
			{Field: models.FieldVolume, Index: 5, Required: true},
			{Field: models.FieldPrice, Index: 6},
			{Field: models.FieldPriceLow, Index: 7},
			{Field: models.FieldPriceHigh, Index: 8},
			{Field: models.FieldBudget, Index: 9},
		},
	},
	models.Bonus: {
		ActionType: models.Bonus,
		Columns: []Column{
			symbolColumn,
			{Field: models.FieldOldRatio, Index: 3, Required: true},
			{Field: models.FieldNewRatio, Index: 4, Required: true},
			{Field: models.FieldCumDate, Index: 5, Required: true},
			{Field: models.FieldExDate, Index: 6},
			{Field: models.FieldRecordingDate, Index: -3},
			{Field: models.FieldPaymentDate, Index: -2},
		},
	},
	models.Warrant: {
		ActionType: models.Warrant,
		Columns: []Column{
			symbolColumn,
			{Field: models.FieldOldRatio, Index: 3, Required: true},
			{Field: models.FieldNewRatio, Index: 4, Required: true},
			{Field: models.FieldPrice, Index: 5, Required: true},
			{Field: models.FieldTradingPeriodStart, Index: 6, Required: true},
			{Field: models.FieldTradingPeriodEnd, Index: 7},
			{Field: models.FieldExDateCash, Index: -5},
			{Field: models.FieldExerciseStart, Index: -4},
			{Field: models.FieldExerciseEnd, Index: -3},
			{Field: models.FieldMaturityDate, Index: -2},
		},
	},
	models.ShareholderMeeting: {
		ActionType: models.ShareholderMeeting,
		Columns: []Column{
			symbolColumn,
			{Field: models.FieldMeetingDate, Index: 3, Required: true},
			{Field: models.FieldPlace, Index: -3},
			{Field: models.FieldRecordingDate, Index: -2, Required: true},
		},
	},
}

var splitColumns = []Column{
	symbolColumn,
	{Field: models.FieldOldRatio, Index: 3, Required: true},
	{Field: models.FieldNewRatio, Index: 4, Required: true},
	{Field: models.FieldCumDate, Index: 5, Required: true},
	{Field: models.FieldExDate, Index: 6},
	{Field: models.FieldRecordingDate, Index: -2},
}

// LayoutFor returns the row shape for at.
func LayoutFor(at models.ActionType) (Layout, bool) {
	l, ok := layouts[at]
	return l, ok
}
