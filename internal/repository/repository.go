package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

var ErrRecordNotFound = errors.New("corporate action record not found")

// StorageWriteError aborts one record's upsert. The rest of the run continues.
type StorageWriteError struct {
	ActionType models.ActionType
	Key        models.IdentityKey
	Op         string
	Err        error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage %s failed for %s %s: %v", e.Op, e.ActionType, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// Tx exposes the per-record operations available while the record lock is held.
type Tx interface {
	// GetByIdentityKey returns ErrRecordNotFound when no record exists.
	GetByIdentityKey(ctx context.Context, at models.ActionType, key models.IdentityKey) (*models.Record, error)
	Insert(ctx context.Context, rec *models.Record) error
	// Update rewrites the mutable fields of the record with rec.ID. Identity fields are never touched.
	Update(ctx context.Context, rec *models.Record) error
}

// Store is the persisted record set, one logical table per action type.
type Store interface {
	// Atomically runs fn as a single read-modify-write for key. Concurrent calls for the
	// same key are serialized; fn's writes are committed only if fn returns nil.
	Atomically(ctx context.Context, at models.ActionType, key models.IdentityKey, fn func(ctx context.Context, tx Tx) error) error
	// List returns every record of an action type ordered by announcement date.
	List(ctx context.Context, at models.ActionType) ([]*models.Record, error)
	Close()
}
