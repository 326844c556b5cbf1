package normalizer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

func row(kv ...string) models.RawFieldMapping {
	m := models.RawFieldMapping{Fields: map[string]string{}, SourceRef: "https://source.test/?page=1#row=1"}
	for i := 0; i+1 < len(kv); i += 2 {
		m.Fields[kv[i]] = kv[i+1]
	}
	return m
}

func newRegistry() *Registry {
	return NewRegistry(Options{ExchangeSuffix: ".JK"})
}

func TestStockSplitRatioOneRejected(t *testing.T) {
	reg := newRegistry()
	for _, raw := range []models.RawFieldMapping{
		row("symbol", "BBCA", "ratio", "1", "cum_date", "10-Mar-2024"),
		row("symbol", "BBCA", "old_ratio", "5", "new_ratio", "5", "cum_date", "10-Mar-2024"),
		row("symbol", "BBCA", "ratio", "0", "cum_date", "10-Mar-2024"),
	} {
		_, err := reg.Normalize(raw, models.StockSplit)
		var nerr *NormalizationError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, models.StockSplit, nerr.ActionType)
		assert.Equal(t, raw.Fields, nerr.Raw.Fields)
	}
}

func TestStockSplit(t *testing.T) {
	rec, err := newRegistry().Normalize(row(
		"symbol", "bbca", "old_ratio", "1", "new_ratio", "5",
		"cum_date", "10-Mar-2024", "ex_date", "11-Mar-2024", "recording_date", "12-Mar-2024",
	), models.StockSplit)
	require.NoError(t, err)
	assert.Equal(t, "BBCA.JK", rec.SecurityID)
	assert.Equal(t, "2024-03-10", rec.AnnouncementDate.String())
	assert.Equal(t, "2024-03-11", rec.EffectiveDate.String())
	assert.Equal(t, models.SourceScraped, rec.Source)
	require.NotNil(t, rec.SourceRef)

	p, ok := rec.Payload.(models.StockSplitPayload)
	require.True(t, ok)
	assert.True(t, p.Ratio.Equal(decimal.NewFromInt(5)))
}

func TestReverseSplitRatioNotation(t *testing.T) {
	rec, err := newRegistry().Normalize(row(
		"symbol", "GOTO.jk", "ratio", "10:1", "cum_date", "2024-05-02",
	), models.ReverseStockSplit)
	require.NoError(t, err)
	p := rec.Payload.(models.ReverseSplitPayload)
	assert.Equal(t, "0.1", p.Ratio.String())
	assert.Equal(t, "GOTO.JK", rec.SecurityID)
	assert.Nil(t, rec.EffectiveDate)

	_, err = newRegistry().Normalize(row(
		"symbol", "GOTO", "ratio", "1:10", "cum_date", "2024-05-02",
	), models.ReverseStockSplit)
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Reason, "below 1")
}

func TestDividend(t *testing.T) {
	reg := newRegistry()

	rec, err := reg.Normalize(row(
		"symbol", "TLKM", "currency", "idr", "amount", "1,234.50",
		"cum_date", "01-Apr-2024", "payment_date", "20-Apr-2024",
	), models.Dividend)
	require.NoError(t, err)
	p := rec.Payload.(models.DividendPayload)
	assert.Equal(t, "1234.5", p.Amount.String())
	assert.Equal(t, "IDR", p.Currency)
	assert.Equal(t, models.IdentityKey("TLKM.JK|dividend|2024-04-01|IDR"), rec.IdentityKey())

	tests := []struct {
		name string
		raw  models.RawFieldMapping
	}{
		{"zero amount", row("symbol", "TLKM", "currency", "IDR", "amount", "0", "cum_date", "01-Apr-2024")},
		{"negative amount", row("symbol", "TLKM", "currency", "IDR", "amount", "-5", "cum_date", "01-Apr-2024")},
		{"text amount", row("symbol", "TLKM", "currency", "IDR", "amount", "n/a", "cum_date", "01-Apr-2024")},
		{"missing currency", row("symbol", "TLKM", "amount", "10", "cum_date", "01-Apr-2024")},
		{"bad currency", row("symbol", "TLKM", "currency", "RUPIAH", "amount", "10", "cum_date", "01-Apr-2024")},
		{"ambiguous date", row("symbol", "TLKM", "currency", "IDR", "amount", "10", "cum_date", "04/01/2024")},
		{"payment before cum", row("symbol", "TLKM", "currency", "IDR", "amount", "10", "cum_date", "01-Apr-2024", "payment_date", "01-Mar-2024")},
		{"bad ticker", row("symbol", "TL KM!", "currency", "IDR", "amount", "10", "cum_date", "01-Apr-2024")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Normalize(tt.raw, models.Dividend)
			var nerr *NormalizationError
			assert.ErrorAs(t, err, &nerr)
		})
	}
}

func TestRightsIssue(t *testing.T) {
	reg := newRegistry()
	rec, err := reg.Normalize(row(
		"symbol", "BBRI", "old_ratio", "10", "new_ratio", "3", "price", "3,400",
		"cum_date", "12-Mar-2024", "ex_date", "13-Mar-2024", "subscription_date", "21-Mar-2024",
	), models.RightsIssue)
	require.NoError(t, err)
	p := rec.Payload.(models.RightsIssuePayload)
	assert.Equal(t, "3400", p.Price.String())
	assert.Equal(t, "2024-03-21", rec.EffectiveDate.String())

	_, err = reg.Normalize(row("symbol", "BBRI", "old_ratio", "10", "new_ratio", "3", "cum_date", "12-Mar-2024"), models.RightsIssue)
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Reason, "price")

	_, err = reg.Normalize(row("symbol", "BBRI", "price", "100", "cum_date", "12-Mar-2024"), models.RightsIssue)
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Reason, "old_ratio")
}

func TestBuyback(t *testing.T) {
	reg := newRegistry()
	tests := []struct {
		name    string
		raw     models.RawFieldMapping
		wantErr string
	}{
		{"single price", row("symbol", "BBCA", "volume", "1,000,000", "price", "9,500", "start_date", "01-Apr-2024", "end_date", "30-Sep-2024"), ""},
		{"price range", row("symbol", "BBCA", "volume", "1000", "price_low", "9000", "price_high", "9500", "start_date", "01-Apr-2024"), ""},
		{"missing volume", row("symbol", "BBCA", "price", "9500", "start_date", "01-Apr-2024"), "volume"},
		{"no price", row("symbol", "BBCA", "volume", "1000", "start_date", "01-Apr-2024"), "price"},
		{"half range", row("symbol", "BBCA", "volume", "1000", "price_low", "9000", "start_date", "01-Apr-2024"), "price"},
		{"inverted range", row("symbol", "BBCA", "volume", "1000", "price_low", "9600", "price_high", "9500", "start_date", "01-Apr-2024"), "inverted"},
		{"bad transactions", row("symbol", "BBCA", "volume", "1000", "price", "1", "start_date", "01-Apr-2024", "transactions", "{"), "transactions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := reg.Normalize(tt.raw, models.Buyback)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "2024-04-01", rec.AnnouncementDate.String())
				return
			}
			var nerr *NormalizationError
			require.ErrorAs(t, err, &nerr)
			assert.Contains(t, nerr.Reason, tt.wantErr)
		})
	}
}

func TestBuybackTransactions(t *testing.T) {
	rec, err := newRegistry().Normalize(row(
		"symbol", "BBCA", "volume", "1500", "price", "9500", "start_date", "2024-04-01",
		"transactions", `[{"date":"2024-04-03","shares":"500","average_price":"9400"},{"date":"2024-04-05","shares":"1000"}]`,
	), models.Buyback)
	require.NoError(t, err)
	p := rec.Payload.(models.BuybackPayload)
	require.Len(t, p.Transactions, 2)
	assert.Equal(t, "2024-04-05", p.Transactions[1].Date.String())
}

func TestBonusWarrantMeeting(t *testing.T) {
	reg := newRegistry()

	rec, err := reg.Normalize(row("symbol", "ASII", "old_ratio", "4", "new_ratio", "1", "cum_date", "01-Jul-2024", "payment_date", "15-Jul-2024"), models.Bonus)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-15", rec.EffectiveDate.String())

	rec, err = reg.Normalize(row("symbol", "MDKA", "old_ratio", "5", "new_ratio", "1", "price", "0",
		"trading_period_start", "02-Jan-2024", "maturity_date", "02-Jan-2027"), models.Warrant)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", rec.AnnouncementDate.String())

	rec, err = reg.Normalize(row("symbol", "UNVR", "meeting_date", "20-Jun-2024", "recording_date", "28-May-2024", "place", "Dibatalkan"), models.ShareholderMeeting)
	require.NoError(t, err)
	p := rec.Payload.(models.ShareholderMeetingPayload)
	assert.True(t, p.Cancelled)
	assert.Equal(t, "2024-05-28", rec.AnnouncementDate.String())

	_, err = reg.Normalize(row("symbol", "UNVR", "recording_date", "28-May-2024"), models.ShareholderMeeting)
	assert.Error(t, err)
}

func TestListedFilter(t *testing.T) {
	reg := NewRegistry(Options{ExchangeSuffix: ".JK", Listed: map[string]bool{"BBCA.JK": true}})
	_, err := reg.Normalize(row("symbol", "BBCA", "ratio", "2", "cum_date", "10-Mar-2024"), models.StockSplit)
	require.NoError(t, err)

	_, err = reg.Normalize(row("symbol", "ZZZZ", "ratio", "2", "cum_date", "10-Mar-2024"), models.StockSplit)
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Reason, "unlisted")
}

func TestRejectFuture(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	reg := NewRegistry(Options{ExchangeSuffix: ".JK", RejectFuture: true, Now: func() time.Time { return now }})

	_, err := reg.Normalize(row("symbol", "BBCA", "ratio", "2", "cum_date", "10-Mar-2024"), models.StockSplit)
	require.NoError(t, err, "today is not the future")

	_, err = reg.Normalize(row("symbol", "BBCA", "ratio", "2", "cum_date", "11-Mar-2024"), models.StockSplit)
	assert.Error(t, err)
}

func TestManualSource(t *testing.T) {
	n, err := newRegistry().For(models.RightsIssue)
	require.NoError(t, err)
	raw := row("symbol", "BBRI.JK", "old_ratio", "10", "new_ratio", "3", "price", "3400", "cum_date", "2024-03-12")
	raw.SourceRef = ""
	rec, err := n.Normalize(raw, models.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, models.SourceManual, rec.Source)
	assert.Nil(t, rec.SourceRef)
}

func TestCanonicalSymbol(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"bbca", "BBCA.JK", false},
		{" BBCA.JK ", "BBCA.JK", false},
		{"bbca.jk", "BBCA.JK", false},
		{"", "", true},
		{"BB CA", "", true},
		{"TOOLONGTICKER123", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalSymbol(tt.in, ".jk")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"05-Mar-2024", "5-Mar-2024", "2024-03-05", "2024-03-05T00:00:00Z"} {
		d, err := parseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, "2024-03-05", d.String())
	}
	for _, s := range []string{"03/05/2024", "2024-13-01", "yesterday"} {
		_, err := parseDate(s)
		assert.Error(t, err, s)
	}
}

func TestUnknownActionType(t *testing.T) {
	_, err := newRegistry().Normalize(row("symbol", "BBCA"), "merger")
	assert.ErrorIs(t, err, models.ErrUnknownActionType)
}
