package manual

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
)

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.ListRecords(context.Background(), models.Buyback, nil)

	var unavailable *ManualStoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, models.Buyback, unavailable.ActionType)
	assert.ErrorIs(t, err, ErrNotConfigured)

	boom := errors.New("dial tcp: connection refused")
	_, err = Unavailable{Err: boom}.ListRecords(context.Background(), models.RightsIssue, nil)
	assert.ErrorIs(t, err, boom)
}

func TestStatic_FiltersBySince(t *testing.T) {
	old := &models.Record{SecurityID: "BBRI.JK", ActionType: models.Buyback, LastUpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	fresh := &models.Record{SecurityID: "BMRI.JK", ActionType: models.Buyback, LastUpdatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	store := &Static{Records: map[models.ActionType][]*models.Record{models.Buyback: {old, fresh}}}

	all, err := store.ListRecords(context.Background(), models.Buyback, nil)
	require.NoError(t, err)
	assert.Len(t, all.Records, 2)

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recent, err := store.ListRecords(context.Background(), models.Buyback, &since)
	require.NoError(t, err)
	require.Len(t, recent.Records, 1)
	assert.Equal(t, "BMRI.JK", recent.Records[0].SecurityID)

	_, err = store.ListRecords(context.Background(), models.Dividend, nil)
	assert.Error(t, err)
}

func TestBuybackRow_FlattensJSONColumns(t *testing.T) {
	details := []byte(`[
		{"date": "2024-03-04T00:00:00", "share_amount": 1000, "average_price": 4000},
		{"date": "2024-03-05", "amount": "3,000", "price": "4200"},
		{"date": "", "share_amount": null}
	]`)
	funds := []byte(`[{"allocated_fund": 1000000000, "utilized_fund": 16600000}]`)

	raw := buybackRow("bbri", "0", "2024-03-01", "2024-09-01", details, funds)

	assert.Equal(t, "bbri", raw.Get(models.FieldSymbol))
	assert.Equal(t, "4000", raw.Get(models.FieldVolume))
	assert.Equal(t, "4150", raw.Get(models.FieldPrice))
	assert.Equal(t, "1000000000", raw.Get(models.FieldBudget))
	assert.JSONEq(t,
		`[{"date":"2024-03-04","shares":"1000","average_price":"4000"},{"date":"2024-03-05","shares":"3000","average_price":"4200"}]`,
		raw.Get(models.FieldTransactions))
}

func TestBuybackRow_NormalizesAsManual(t *testing.T) {
	details := []byte(`[{"date": "2024-03-04", "share_amount": 500, "average_price": 910}]`)
	raw := buybackRow("TLKM.JK", "500", "2024-03-01", "2024-06-01", details, nil)

	n, err := normalizer.NewRegistry(normalizer.Options{ExchangeSuffix: ".JK"}).For(models.Buyback)
	require.NoError(t, err)
	batch := normalizeRows(n, []models.RawFieldMapping{raw})
	require.Empty(t, batch.Rejected)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.Equal(t, models.SourceManual, rec.Source)
	assert.Equal(t, "TLKM.JK", rec.SecurityID)
	p := rec.Payload.(models.BuybackPayload)
	assert.True(t, p.Volume.Equal(decimal.NewFromInt(500)))
	require.Len(t, p.Transactions, 1)
	assert.Equal(t, models.NewDate(2024, time.March, 4), p.Transactions[0].Date)
}

func TestNormalizeRows_CountsRejects(t *testing.T) {
	n, err := normalizer.NewRegistry(normalizer.Options{ExchangeSuffix: ".JK"}).For(models.Buyback)
	require.NoError(t, err)

	noPrice := buybackRow("BBCA", "100", "2024-03-01", "", nil, nil)
	batch := normalizeRows(n, []models.RawFieldMapping{noPrice})
	assert.Empty(t, batch.Records)
	assert.Len(t, batch.Rejected, 1)
}
