package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supertypeai/sectors-corporate-actions/internal/database"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against connString and verifies connectivity.
func NewPostgresStore(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := database.QueryContext(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for components sharing the database.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Atomically holds a transaction-scoped advisory lock on (table, key). Unlike a row lock
// it also covers keys that have no row yet, so two runs cannot both insert the same record.
func (s *PostgresStore) Atomically(ctx context.Context, at models.ActionType, key models.IdentityKey, fn func(ctx context.Context, tx Tx) error) error {
	if !at.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownActionType, at)
	}
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &StorageWriteError{ActionType: at, Key: key, Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, at.Table()+"|"+key.String()); err != nil {
		return &StorageWriteError{ActionType: at, Key: key, Op: "lock", Err: err}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageWriteError{ActionType: at, Key: key, Op: "commit", Err: err}
	}
	return nil
}

// List returns all records of at.
func (s *PostgresStore) List(ctx context.Context, at models.ActionType) ([]*models.Record, error) {
	if !at.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownActionType, at)
	}
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY announcement_date, security_id, identity_key
	`, recordColumns, at.Table())

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", at, err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(at, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", at, err)
	}
	return out, nil
}

// ListedSecurities reads the exchange listing table and returns canonical security ids.
// Listing values may be bare or lower-case tickers; suffix is appended as the normalizer does.
func (s *PostgresStore) ListedSecurities(ctx context.Context, table, column, suffix string) (map[string]bool, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s`, pgx.Identifier{column}.Sanitize(), pgx.Identifier{table}.Sanitize())
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read listed securities: %w", err)
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read listed securities: %w", err)
	}
	return canonicalSet(symbols, suffix), nil
}

// canonicalSet skips values that are not tickers.
func canonicalSet(symbols []string, suffix string) map[string]bool {
	out := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		sec, err := normalizer.CanonicalSymbol(raw, suffix)
		if err != nil {
			continue
		}
		out[sec] = true
	}
	return out
}

const recordColumns = `id, security_id, action_type, announcement_date, effective_date,
			payload, source, source_ref, created_at, last_updated_at`

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetByIdentityKey(ctx context.Context, at models.ActionType, key models.IdentityKey) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE identity_key = $1 FOR UPDATE`, recordColumns, at.Table())
	rec, err := scanRecord(at, t.tx.QueryRow(ctx, query, key.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", at, key, err)
	}
	return rec, nil
}

func (t *pgTx) Insert(ctx context.Context, rec *models.Record) error {
	payload, err := models.EncodePayload(rec.Payload)
	if err != nil {
		return &StorageWriteError{ActionType: rec.ActionType, Key: rec.IdentityKey(), Op: "insert", Err: err}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, identity_key, security_id, action_type, announcement_date, effective_date,
		 payload, source, source_ref, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ActionType.Table())

	_, err = t.tx.Exec(ctx, query,
		rec.ID,
		rec.IdentityKey().String(),
		rec.SecurityID,
		string(rec.ActionType),
		rec.AnnouncementDate.Time,
		dateArg(rec.EffectiveDate),
		payload,
		string(rec.Source),
		rec.SourceRef,
		rec.CreatedAt,
		rec.LastUpdatedAt,
	)
	if err != nil {
		return &StorageWriteError{ActionType: rec.ActionType, Key: rec.IdentityKey(), Op: "insert", Err: err}
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, rec *models.Record) error {
	payload, err := models.EncodePayload(rec.Payload)
	if err != nil {
		return &StorageWriteError{ActionType: rec.ActionType, Key: rec.IdentityKey(), Op: "update", Err: err}
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET effective_date = $2, payload = $3, source = $4, source_ref = $5, last_updated_at = $6
		WHERE id = $1
	`, rec.ActionType.Table())

	tag, err := t.tx.Exec(ctx, query,
		rec.ID,
		dateArg(rec.EffectiveDate),
		payload,
		string(rec.Source),
		rec.SourceRef,
		rec.LastUpdatedAt,
	)
	if err != nil {
		return &StorageWriteError{ActionType: rec.ActionType, Key: rec.IdentityKey(), Op: "update", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &StorageWriteError{ActionType: rec.ActionType, Key: rec.IdentityKey(), Op: "update", Err: ErrRecordNotFound}
	}
	return nil
}

func scanRecord(at models.ActionType, row pgx.Row) (*models.Record, error) {
	var (
		rec          models.Record
		actionType   string
		source       string
		announcement time.Time
		effective    *time.Time
		payload      []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.SecurityID,
		&actionType,
		&announcement,
		&effective,
		&payload,
		&source,
		&rec.SourceRef,
		&rec.CreatedAt,
		&rec.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ActionType = models.ActionType(actionType)
	rec.Source = models.Source(source)
	rec.AnnouncementDate = models.DateOf(announcement)
	if effective != nil {
		d := models.DateOf(*effective)
		rec.EffectiveDate = &d
	}
	rec.Payload, err = models.DecodePayload(at, payload)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func dateArg(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}
