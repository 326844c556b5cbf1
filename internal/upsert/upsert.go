// Package upsert deduplicates normalized records against the persisted store.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/metrics"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/repository"
)

// Result is the outcome of one upsert.
type Result int

const (
	Inserted Result = iota + 1
	Updated
	Unchanged
)

func (r Result) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Upserter writes records by identity key.
type Upserter struct {
	store  repository.Store
	now    func() time.Time
	newID  func() (uuid.UUID, error)
	logger *logging.Logger
}

type Option func(*Upserter)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(u *Upserter) { u.now = now }
}

func WithLogger(l *logging.Logger) Option {
	return func(u *Upserter) { u.logger = l }
}

func New(store repository.Store, opts ...Option) *Upserter {
	u := &Upserter{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewV7,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upsert inserts rec when its identity key is new, updates the stored record's mutable
// fields when they differ, and otherwise leaves the store untouched. A stored manual record
// is never replaced by a scraped one.
//
// On Inserted or Updated the returned record is the stored state.
func (u *Upserter) Upsert(ctx context.Context, rec *models.Record) (Result, *models.Record, error) {
	if err := rec.Validate(); err != nil {
		return 0, nil, fmt.Errorf("invalid record: %w", err)
	}
	key := rec.IdentityKey()
	start := time.Now()

	var (
		result Result
		stored *models.Record
	)
	err := u.store.Atomically(ctx, rec.ActionType, key, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.GetByIdentityKey(ctx, rec.ActionType, key)
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return u.insert(ctx, tx, rec, &result, &stored)
		case err != nil:
			return &repository.StorageWriteError{ActionType: rec.ActionType, Key: key, Op: "get", Err: err}
		}

		if existing.Source == models.SourceManual && rec.Source == models.SourceScraped {
			result = Unchanged
			return nil
		}
		if existing.MutableEqual(rec) {
			result = Unchanged
			return nil
		}

		next := existing.Clone()
		next.EffectiveDate = rec.Clone().EffectiveDate
		next.Payload = rec.Payload
		next.Source = rec.Source
		next.SourceRef = rec.Clone().SourceRef
		next.LastUpdatedAt = u.now().UTC()
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		result, stored = Updated, next
		return nil
	})
	metrics.StorageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var swe *repository.StorageWriteError
		if !errors.As(err, &swe) {
			err = &repository.StorageWriteError{ActionType: rec.ActionType, Key: key, Op: "upsert", Err: err}
		}
		metrics.UpsertResults.WithLabelValues(string(rec.ActionType), "error").Inc()
		return 0, nil, err
	}

	metrics.UpsertResults.WithLabelValues(string(rec.ActionType), result.String()).Inc()
	u.logger.DebugContext(ctx, "Record upserted",
		logging.IdentityKey(key.String()),
		"result", result.String())
	return result, stored, nil
}

func (u *Upserter) insert(ctx context.Context, tx repository.Tx, rec *models.Record, result *Result, stored **models.Record) error {
	id, err := u.newID()
	if err != nil {
		return fmt.Errorf("failed to generate record id: %w", err)
	}
	now := u.now().UTC()
	fresh := rec.Clone()
	fresh.ID = id
	fresh.CreatedAt = now
	fresh.LastUpdatedAt = now
	if err := tx.Insert(ctx, fresh); err != nil {
		return err
	}
	*result, *stored = Inserted, fresh
	return nil
}
