package manual

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
)

const manualSchema = `
CREATE TABLE idx_right_issue (
    symbol TEXT NOT NULL,
    recording_date DATE,
    old_ratio NUMERIC,
    new_ratio NUMERIC,
    price NUMERIC,
    factor NUMERIC,
    cum_date DATE,
    ex_date DATE,
    trading_period_start DATE,
    trading_period_end DATE,
    subscription_date DATE,
    updated_on TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (symbol, recording_date)
);
CREATE TABLE idx_stock_split (
    symbol TEXT NOT NULL,
    split_ratio NUMERIC NOT NULL,
    recording_date DATE,
    cum_date DATE,
    "date" DATE,
    updated_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE idx_buybacks (
    symbol TEXT NOT NULL,
    accumulated_shares_purchased BIGINT,
    mandate JSONB,
    transaction_details JSONB,
    company_fund JSONB,
    updated_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func setupManualDatabase(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("manual_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, manualSchema)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO idx_right_issue (symbol, recording_date, old_ratio, new_ratio, price, cum_date, ex_date, subscription_date)
		VALUES ('BBRI.JK', '2024-07-03', 10, 3, 3400, '2024-07-01', '2024-07-02', '2024-07-15'),
		       ('BMRI.JK', '2024-07-03', 10, 3, 0, '2024-07-01', '2024-07-02', '2024-07-15')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO idx_stock_split (symbol, split_ratio, recording_date, cum_date, "date")
		VALUES ('GOTO.JK', 0.1, '2024-05-03', '2024-05-01', '2024-05-02'),
		       ('BBCA.JK', 5, '2024-05-03', '2024-05-01', '2024-05-02')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO idx_buybacks (symbol, accumulated_shares_purchased, mandate, transaction_details, company_fund, updated_on)
		VALUES ('TLKM', 2000,
		        '{"start_date": "2024-03-01", "end_date": "2024-09-01"}',
		        '[{"date": "2024-03-04", "share_amount": 2000, "average_price": 3900}]',
		        '[{"allocated_fund": 3000000000, "utilized_fund": 7800000}]',
		        '2024-03-05T00:00:00Z')`)
	require.NoError(t, err)

	return connStr
}

func TestPostgresStore_ListRecords(t *testing.T) {
	connStr := setupManualDatabase(t)
	norm := normalizer.NewRegistry(normalizer.Options{ExchangeSuffix: ".JK"})
	store, err := NewPostgresStore(connStr, Tables{
		RightsIssue:  "idx_right_issue",
		ReverseSplit: "idx_stock_split",
		Buyback:      "idx_buybacks",
	}, norm, logging.Nop())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	t.Run("rights issue with invalid row rejected", func(t *testing.T) {
		batch, err := store.ListRecords(ctx, models.RightsIssue, nil)
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		assert.Len(t, batch.Rejected, 1)

		rec := batch.Records[0]
		assert.Equal(t, "BBRI.JK", rec.SecurityID)
		assert.Equal(t, models.SourceManual, rec.Source)
		assert.Equal(t, models.NewDate(2024, time.July, 1), rec.AnnouncementDate)
	})

	t.Run("only ratios below one are reverse splits", func(t *testing.T) {
		batch, err := store.ListRecords(ctx, models.ReverseStockSplit, nil)
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		assert.Equal(t, "GOTO.JK", batch.Records[0].SecurityID)
	})

	t.Run("buyback since filter", func(t *testing.T) {
		batch, err := store.ListRecords(ctx, models.Buyback, nil)
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		p := batch.Records[0].Payload.(models.BuybackPayload)
		assert.Equal(t, "3900", p.Price.String())

		since := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		batch, err = store.ListRecords(ctx, models.Buyback, &since)
		require.NoError(t, err)
		assert.Empty(t, batch.Records)
	})
}

func TestPostgresStore_Unreachable(t *testing.T) {
	norm := normalizer.NewRegistry(normalizer.Options{ExchangeSuffix: ".JK"})
	store, err := NewPostgresStore("postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", Tables{
		RightsIssue: "idx_right_issue",
	}, norm, logging.Nop())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.ListRecords(context.Background(), models.RightsIssue, nil)
	var unavailable *ManualStoreUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
