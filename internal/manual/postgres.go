package manual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/supertypeai/sectors-corporate-actions/internal/database"
	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
)

// Tables names the manual-entry tables.
type Tables struct {
	RightsIssue  string
	ReverseSplit string
	Buyback      string
}

// PostgresStore reads the manual-entry tables. Connections are opened lazily, so an
// unreachable database surfaces as ManualStoreUnavailableError on the first listing.
type PostgresStore struct {
	pool       *pgxpool.Pool
	tables     Tables
	normalizer *normalizer.Registry
	logger     *logging.Logger
}

func NewPostgresStore(dsn string, tables Tables, norm *normalizer.Registry, logger *logging.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manual store config: %w", err)
	}
	config.MaxConns = 2
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create manual store pool: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStore{pool: pool, tables: tables, normalizer: norm, logger: logger}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ListRecords(ctx context.Context, at models.ActionType, since *time.Time) (*Batch, error) {
	var (
		rows []models.RawFieldMapping
		err  error
	)
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	switch at {
	case models.RightsIssue:
		rows, err = s.rightsIssues(ctx, since)
	case models.ReverseStockSplit:
		rows, err = s.reverseSplits(ctx, since)
	case models.Buyback:
		rows, err = s.buybacks(ctx, since)
	default:
		return nil, fmt.Errorf("no manual records for %s", at)
	}
	if err != nil {
		return nil, &ManualStoreUnavailableError{ActionType: at, Err: err}
	}

	n, err := s.normalizer.For(at)
	if err != nil {
		return nil, err
	}
	batch := normalizeRows(n, rows)
	s.logger.DebugContext(ctx, "Manual records loaded",
		logging.ActionType(string(at)),
		"records", len(batch.Records),
		"rejected", len(batch.Rejected))
	return batch, nil
}

func (s *PostgresStore) rightsIssues(ctx context.Context, since *time.Time) ([]models.RawFieldMapping, error) {
	table := s.tables.RightsIssue
	query := fmt.Sprintf(`
		SELECT symbol, old_ratio::text, new_ratio::text, price::text, factor::text,
		       cum_date::text, ex_date::text, recording_date::text,
		       trading_period_start::text, trading_period_end::text, subscription_date::text
		FROM %s
		WHERE ($1::timestamptz IS NULL OR updated_on >= $1)
		ORDER BY cum_date, symbol
	`, pgx.Identifier{table}.Sanitize())

	fields := []string{
		models.FieldSymbol, models.FieldOldRatio, models.FieldNewRatio, models.FieldPrice, models.FieldFactor,
		models.FieldCumDate, models.FieldExDate, models.FieldRecordingDate,
		models.FieldTradingPeriodStart, models.FieldTradingPeriodEnd, models.FieldSubscriptionDate,
	}
	return s.scanRows(ctx, table, query, since, fields)
}

func (s *PostgresStore) reverseSplits(ctx context.Context, since *time.Time) ([]models.RawFieldMapping, error) {
	table := s.tables.ReverseSplit
	query := fmt.Sprintf(`
		SELECT symbol, split_ratio::text, cum_date::text, "date"::text, recording_date::text
		FROM %s
		WHERE split_ratio < 1
		  AND ($1::timestamptz IS NULL OR updated_on >= $1)
		ORDER BY cum_date, symbol
	`, pgx.Identifier{table}.Sanitize())

	fields := []string{
		models.FieldSymbol, models.FieldRatio, models.FieldCumDate, models.FieldExDate, models.FieldRecordingDate,
	}
	return s.scanRows(ctx, table, query, since, fields)
}

// scanRows reads every column as nullable text into the named fields.
func (s *PostgresStore) scanRows(ctx context.Context, table, query string, since *time.Time, fields []string) ([]models.RawFieldMapping, error) {
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.RawFieldMapping
	for rows.Next() {
		values := make([]*string, len(fields))
		dest := make([]any, len(fields))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		raw := models.RawFieldMapping{Fields: make(map[string]string, len(fields))}
		for i, v := range values {
			if v != nil && !models.IsBlank(*v) {
				raw.Fields[fields[i]] = *v
			}
		}
		raw.SourceRef = manualRef(table, raw.Get(models.FieldSymbol), raw.Get(fields[len(fields)-1]))
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return out, nil
}

func (s *PostgresStore) buybacks(ctx context.Context, since *time.Time) ([]models.RawFieldMapping, error) {
	table := s.tables.Buyback
	query := fmt.Sprintf(`
		SELECT symbol, accumulated_shares_purchased::text,
		       mandate->>'start_date', mandate->>'end_date',
		       transaction_details, company_fund
		FROM %s
		WHERE ($1::timestamptz IS NULL OR updated_on >= $1)
		ORDER BY symbol
	`, pgx.Identifier{table}.Sanitize())

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.RawFieldMapping
	for rows.Next() {
		var (
			symbol, accumulated, start, end *string
			details, funds                  []byte
		)
		if err := rows.Scan(&symbol, &accumulated, &start, &end, &details, &funds); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		raw := buybackRow(deref(symbol), deref(accumulated), deref(start), deref(end), details, funds)
		raw.SourceRef = manualRef(table, deref(symbol), deref(start))
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return out, nil
}

// buybackRow flattens the JSON columns of a manual buyback. Volume falls back to the sum of
// transaction shares and price to their volume-weighted average.
func buybackRow(symbol, accumulated, start, end string, details, funds []byte) models.RawFieldMapping {
	raw := models.RawFieldMapping{Fields: map[string]string{}}
	set := func(field, v string) {
		if !models.IsBlank(v) {
			raw.Fields[field] = strings.TrimSpace(v)
		}
	}
	set(models.FieldSymbol, symbol)
	set(models.FieldStartDate, start)
	set(models.FieldEndDate, end)

	var (
		txs       []map[string]string
		shares    = decimal.Zero
		notional  = decimal.Zero
		pricedVol = decimal.Zero
	)
	for _, entry := range decodeObjects(details) {
		qty, okQty := numberField(entry, "share_amount", "amount")
		if !okQty {
			continue
		}
		tx := map[string]string{"date": stringField(entry, "date"), "shares": qty.String()}
		shares = shares.Add(qty)
		if price, ok := numberField(entry, "average_price", "price"); ok {
			tx["average_price"] = price.String()
			notional = notional.Add(price.Mul(qty))
			pricedVol = pricedVol.Add(qty)
		}
		txs = append(txs, tx)
	}
	if len(txs) > 0 {
		if b, err := json.Marshal(txs); err == nil {
			raw.Fields[models.FieldTransactions] = string(b)
		}
	}

	volume, err := decimal.NewFromString(strings.TrimSpace(accumulated))
	if err != nil || !volume.IsPositive() {
		volume = shares
	}
	if volume.IsPositive() {
		raw.Fields[models.FieldVolume] = volume.String()
	}
	if pricedVol.IsPositive() {
		raw.Fields[models.FieldPrice] = notional.Div(pricedVol).Round(4).String()
	}

	budget := decimal.Zero
	for _, entry := range decodeObjects(funds) {
		if v, ok := numberField(entry, "allocated_fund"); ok {
			budget = budget.Add(v)
		}
	}
	if budget.IsPositive() {
		raw.Fields[models.FieldBudget] = budget.String()
	}
	return raw
}

func decodeObjects(data []byte) []map[string]any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

// numberField returns the first of keys holding a numeric value. Spreadsheet editors store
// numbers as JSON numbers or strings.
func numberField(m map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		var s string
		switch v := m[k].(type) {
		case json.Number:
			s = v.String()
		case string:
			s = v
		default:
			continue
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
		if err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	v = strings.TrimSpace(v)
	// Editors may store a full timestamp; the date part is enough.
	if len(v) > 10 {
		if _, err := models.ParseDate(v[:10]); err == nil {
			return v[:10]
		}
	}
	return v
}

func manualRef(table, symbol, at string) string {
	return fmt.Sprintf("manual:%s/%s@%s", table, strings.ToUpper(symbol), at)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
