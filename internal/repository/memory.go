package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// InMemoryStore keeps records in process memory. Atomically holds the table lock for the
// whole callback and applies staged writes only on success.
type InMemoryStore struct {
	mu     sync.RWMutex
	tables map[models.ActionType]*memTable
}

type memTable struct {
	mu    sync.Mutex
	byKey map[models.IdentityKey]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{tables: make(map[models.ActionType]*memTable)}
	for _, at := range models.AllActionTypes() {
		s.tables[at] = &memTable{byKey: make(map[models.IdentityKey]*models.Record)}
	}
	return s
}

func (s *InMemoryStore) table(at models.ActionType) (*memTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[at]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownActionType, at)
	}
	return t, nil
}

func (s *InMemoryStore) Atomically(ctx context.Context, at models.ActionType, key models.IdentityKey, fn func(ctx context.Context, tx Tx) error) error {
	t, err := s.table(at)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &StorageWriteError{ActionType: at, Key: key, Op: "begin", Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tx := &memTx{table: t, staged: make(map[models.IdentityKey]*models.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, rec := range tx.staged {
		t.byKey[k] = rec
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, at models.ActionType) ([]*models.Record, error) {
	t, err := s.table(at)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	out := make([]*models.Record, 0, len(t.byKey))
	for _, rec := range t.byKey {
		out = append(out, rec.Clone())
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.AnnouncementDate.Equal(b.AnnouncementDate) {
			return a.AnnouncementDate.Before(b.AnnouncementDate)
		}
		if a.SecurityID != b.SecurityID {
			return a.SecurityID < b.SecurityID
		}
		return a.IdentityKey() < b.IdentityKey()
	})
	return out, nil
}

// Len returns the number of records stored for at.
func (s *InMemoryStore) Len(at models.ActionType) int {
	t, err := s.table(at)
	if err != nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

func (s *InMemoryStore) Close() {}

type memTx struct {
	table  *memTable
	staged map[models.IdentityKey]*models.Record
}

func (tx *memTx) lookup(key models.IdentityKey) (*models.Record, bool) {
	if rec, ok := tx.staged[key]; ok {
		return rec, true
	}
	rec, ok := tx.table.byKey[key]
	return rec, ok
}

func (tx *memTx) GetByIdentityKey(_ context.Context, _ models.ActionType, key models.IdentityKey) (*models.Record, error) {
	rec, ok := tx.lookup(key)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (tx *memTx) Insert(_ context.Context, rec *models.Record) error {
	key := rec.IdentityKey()
	if _, ok := tx.lookup(key); ok {
		return &StorageWriteError{ActionType: rec.ActionType, Key: key, Op: "insert", Err: fmt.Errorf("duplicate identity key")}
	}
	tx.staged[key] = rec.Clone()
	return nil
}

func (tx *memTx) Update(_ context.Context, rec *models.Record) error {
	key := rec.IdentityKey()
	existing, ok := tx.lookup(key)
	if !ok || existing.ID != rec.ID {
		return &StorageWriteError{ActionType: rec.ActionType, Key: key, Op: "update", Err: ErrRecordNotFound}
	}
	updated := existing.Clone()
	updated.EffectiveDate = rec.Clone().EffectiveDate
	updated.Payload = rec.Payload
	updated.Source = rec.Source
	updated.SourceRef = rec.Clone().SourceRef
	updated.LastUpdatedAt = rec.LastUpdatedAt
	tx.staged[key] = updated
	return nil
}
