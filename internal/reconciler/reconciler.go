// Package reconciler merges scraped and manually entered records for the action types
// whose source data is unreliable.
package reconciler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

var ErrNotReconciled = errors.New("action type is not reconciled against manual entries")

// Outcome is the merged record set for one action type.
type Outcome struct {
	Records []*models.Record
	// Superseded counts scraped records discarded in favor of a manual record.
	Superseded int
	// Duplicates counts records dropped because an earlier record of the same
	// provenance already claimed the identity key.
	Duplicates int
}

// Reconcile groups scraped and manual records by identity key. A manual record always
// wins over a scraped one; keys seen on one side only are kept as they are. The result
// holds one record per identity key, ordered by announcement date.
func Reconcile(at models.ActionType, scraped, manual []*models.Record) (*Outcome, error) {
	if !at.IsException() {
		return nil, fmt.Errorf("%w: %s", ErrNotReconciled, at)
	}

	out := &Outcome{}
	merged := make(map[models.IdentityKey]*models.Record, len(scraped)+len(manual))

	for _, rec := range manual {
		if err := check(at, rec, models.SourceManual); err != nil {
			return nil, err
		}
		key := rec.IdentityKey()
		if _, ok := merged[key]; ok {
			out.Duplicates++
			continue
		}
		merged[key] = rec
	}

	seenScraped := make(map[models.IdentityKey]bool, len(scraped))
	for _, rec := range scraped {
		if err := check(at, rec, models.SourceScraped); err != nil {
			return nil, err
		}
		key := rec.IdentityKey()
		if seenScraped[key] {
			out.Duplicates++
			continue
		}
		seenScraped[key] = true
		if winner, ok := merged[key]; ok && winner.Source == models.SourceManual {
			out.Superseded++
			continue
		}
		merged[key] = rec
	}

	out.Records = make([]*models.Record, 0, len(merged))
	for _, rec := range merged {
		out.Records = append(out.Records, rec)
	}
	sort.Slice(out.Records, func(i, j int) bool {
		a, b := out.Records[i], out.Records[j]
		if !a.AnnouncementDate.Equal(b.AnnouncementDate) {
			return a.AnnouncementDate.Before(b.AnnouncementDate)
		}
		return a.IdentityKey() < b.IdentityKey()
	})
	return out, nil
}

func check(at models.ActionType, rec *models.Record, source models.Source) error {
	if rec.ActionType != at {
		return fmt.Errorf("record %s has action type %s, want %s", rec.IdentityKey(), rec.ActionType, at)
	}
	if rec.Source != source {
		return fmt.Errorf("record %s has source %s, want %s", rec.IdentityKey(), rec.Source, source)
	}
	return nil
}
