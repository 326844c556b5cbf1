package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitRecord() *Record {
	ex := NewDate(2024, 3, 12)
	return &Record{
		SecurityID:       "BBCA.JK",
		ActionType:       StockSplit,
		AnnouncementDate: NewDate(2024, 3, 10),
		EffectiveDate:    &ex,
		Payload:          StockSplitPayload{SplitTerms{Ratio: decimal.RequireFromString("5")}},
		Source:           SourceScraped,
	}
}

func TestIdentityKey(t *testing.T) {
	r := splitRecord()
	assert.Equal(t, IdentityKey("BBCA.JK|stock_split|2024-03-10"), r.IdentityKey())

	div := &Record{
		SecurityID:       "TLKM.JK",
		ActionType:       Dividend,
		AnnouncementDate: NewDate(2024, 5, 1),
		Payload:          DividendPayload{Amount: decimal.NewFromInt(100), Currency: "idr"},
	}
	assert.Equal(t, IdentityKey("TLKM.JK|dividend|2024-05-01|IDR"), div.IdentityKey())
}

func TestIdentityKeyIgnoresMutableFields(t *testing.T) {
	a := splitRecord()
	b := splitRecord()
	later := NewDate(2024, 4, 1)
	b.EffectiveDate = &later
	b.Payload = StockSplitPayload{SplitTerms{Ratio: decimal.RequireFromString("2")}}
	assert.Equal(t, a.IdentityKey(), b.IdentityKey())
	assert.False(t, a.MutableEqual(b))
}

func TestValidate(t *testing.T) {
	r := splitRecord()
	require.NoError(t, r.Validate())

	early := NewDate(2024, 3, 1)
	r.EffectiveDate = &early
	assert.ErrorIs(t, r.Validate(), ErrEffectiveBeforeAnnouncement)

	r = splitRecord()
	r.ActionType = ReverseStockSplit
	assert.Error(t, r.Validate())

	r = splitRecord()
	r.SecurityID = ""
	assert.Error(t, r.Validate())
}

func TestMutableEqualIgnoresAuditFields(t *testing.T) {
	a := splitRecord()
	b := a.Clone()
	ref := "https://example.test/?page=2#row=3"
	b.SourceRef = &ref
	assert.True(t, a.MutableEqual(b))

	// Trailing zeros do not count as a change.
	b.Payload = StockSplitPayload{SplitTerms{Ratio: decimal.RequireFromString("5.000")}}
	assert.True(t, a.MutableEqual(b))

	b.Source = SourceManual
	assert.False(t, a.MutableEqual(b))
}

func TestCloneDoesNotShareDates(t *testing.T) {
	a := splitRecord()
	b := a.Clone()
	*b.EffectiveDate = NewDate(2030, 1, 1)
	assert.Equal(t, "2024-03-12", a.EffectiveDate.String())
}

func TestPayloadRoundTrip(t *testing.T) {
	price := decimal.RequireFromString("8500")
	ex := NewDate(2024, 6, 3)
	payloads := []Payload{
		DividendPayload{Amount: decimal.RequireFromString("12.5"), Currency: "IDR", PaymentDate: &ex},
		ReverseSplitPayload{SplitTerms{Ratio: decimal.RequireFromString("0.1")}},
		RightsIssuePayload{OldRatio: decimal.NewFromInt(10), NewRatio: decimal.NewFromInt(3), Price: price},
		BuybackPayload{Volume: decimal.NewFromInt(1000000), Price: &price, Transactions: []BuybackTransaction{{Date: ex, Shares: decimal.NewFromInt(500)}}},
		ShareholderMeetingPayload{Place: "Jakarta", Cancelled: true},
	}
	for _, p := range payloads {
		t.Run(string(p.ActionType()), func(t *testing.T) {
			data, err := EncodePayload(p)
			require.NoError(t, err)
			got, err := DecodePayload(p.ActionType(), data)
			require.NoError(t, err)
			again, err := EncodePayload(got)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(again))
		})
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	_, err := DecodePayload(ActionType("merger"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2024, 1, 2)
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-02"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(d))
	assert.Error(t, json.Unmarshal([]byte(`"02-01-2024"`), &back))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(" - "))
	assert.True(t, IsBlank(""))
	assert.False(t, IsBlank("0"))
	m := RawFieldMapping{Fields: map[string]string{"volume": " 1,000 ", "price": "-"}}
	assert.Equal(t, "1,000", m.Get("volume"))
	assert.True(t, m.Has("volume"))
	assert.False(t, m.Has("price"))
	assert.False(t, m.Has("missing"))
}
