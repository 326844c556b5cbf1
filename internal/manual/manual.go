// Package manual reads corporate actions entered by hand for the action types whose
// scraped data is unreliable.
package manual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
)

var ErrNotConfigured = errors.New("manual store is not configured")

// ManualStoreUnavailableError means manual records could not be read. Callers fall back to
// scraped records only.
type ManualStoreUnavailableError struct {
	ActionType models.ActionType
	Err        error
}

func (e *ManualStoreUnavailableError) Error() string {
	return fmt.Sprintf("manual store unavailable for %s: %v", e.ActionType, e.Err)
}

func (e *ManualStoreUnavailableError) Unwrap() error { return e.Err }

// Batch is the result of one listing. Rows that fail normalization are returned in Rejected
// rather than failing the listing.
type Batch struct {
	Records  []*models.Record
	Rejected []error
}

// Store is the read-only view of the manual-entry application's data.
type Store interface {
	// ListRecords returns manual records of at changed at or after since (all when nil).
	ListRecords(ctx context.Context, at models.ActionType, since *time.Time) (*Batch, error)
}

// normalizeRows runs manual rows through the shared normalizer with manual provenance.
func normalizeRows(n normalizer.Normalizer, rows []models.RawFieldMapping) *Batch {
	batch := &Batch{}
	for _, raw := range rows {
		rec, err := n.Normalize(raw, models.SourceManual)
		if err != nil {
			batch.Rejected = append(batch.Rejected, err)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch
}

// Unavailable is a Store that always reports itself unreachable.
type Unavailable struct {
	Err error
}

func (u Unavailable) ListRecords(_ context.Context, at models.ActionType, _ *time.Time) (*Batch, error) {
	err := u.Err
	if err == nil {
		err = ErrNotConfigured
	}
	return nil, &ManualStoreUnavailableError{ActionType: at, Err: err}
}

// Static serves fixed records, keyed by action type.
type Static struct {
	Records map[models.ActionType][]*models.Record
}

func (s *Static) ListRecords(_ context.Context, at models.ActionType, since *time.Time) (*Batch, error) {
	if !at.IsException() {
		return nil, fmt.Errorf("no manual records for %s", at)
	}
	batch := &Batch{}
	for _, rec := range s.Records[at] {
		if since != nil && rec.LastUpdatedAt.Before(*since) {
			continue
		}
		batch.Records = append(batch.Records, rec.Clone())
	}
	return batch, nil
}
