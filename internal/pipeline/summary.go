package pipeline

import (
	"encoding/json"
	"time"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Status is the outcome of a run or of one action type.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// FlagManualUnavailable marks a type reconciled without manual records.
const FlagManualUnavailable = "manual_source_unavailable"

// TypeSummary reports one action type's pipeline.
type TypeSummary struct {
	ActionType       models.ActionType `json:"action_type"`
	Status           Status            `json:"status"`
	Error            string            `json:"error,omitempty"`
	PagesFetched     int               `json:"pages_fetched"`
	PagesUnparseable int               `json:"pages_unparseable"`
	RowsParsed       int               `json:"rows_parsed"`
	RowsRejected     int               `json:"rows_rejected"`
	RowsBeforeCutoff int               `json:"rows_before_cutoff"`
	Inserted         int               `json:"inserted"`
	Updated          int               `json:"updated"`
	Unchanged        int               `json:"unchanged"`
	Superseded       int               `json:"superseded"`
	Duplicates       int               `json:"duplicates"`
	StorageErrors    int               `json:"storage_errors"`
	ManualRejected   int               `json:"manual_rejected"`
	Flags            []string          `json:"flags,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	Duration         time.Duration     `json:"-"`
}

// HasFlag reports whether flag was raised.
func (s *TypeSummary) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (s *TypeSummary) flag(flag string) {
	if !s.HasFlag(flag) {
		s.Flags = append(s.Flags, flag)
	}
}

func (s TypeSummary) MarshalJSON() ([]byte, error) {
	type alias TypeSummary
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"duration_ms"`
	}{alias: alias(s), DurationMS: s.Duration.Milliseconds()})
}

// RunSummary aggregates every action type of one run.
type RunSummary struct {
	RunID      string                             `json:"run_id"`
	Status     Status                             `json:"status"`
	Error      string                             `json:"error,omitempty"`
	StartedAt  time.Time                          `json:"started_at"`
	FinishedAt time.Time                          `json:"finished_at"`
	Types      map[models.ActionType]*TypeSummary `json:"types"`
	Order      []models.ActionType                `json:"-"`
}

// Type returns the summary of at, or nil when at was not requested.
func (r *RunSummary) Type(at models.ActionType) *TypeSummary {
	return r.Types[at]
}

// Ordered returns the type summaries in request order.
func (r *RunSummary) Ordered() []*TypeSummary {
	out := make([]*TypeSummary, 0, len(r.Order))
	for _, at := range r.Order {
		if ts, ok := r.Types[at]; ok {
			out = append(out, ts)
		}
	}
	return out
}

// Totals sums the counters of every type.
func (r *RunSummary) Totals() TypeSummary {
	var t TypeSummary
	for _, ts := range r.Types {
		t.PagesFetched += ts.PagesFetched
		t.PagesUnparseable += ts.PagesUnparseable
		t.RowsParsed += ts.RowsParsed
		t.RowsRejected += ts.RowsRejected
		t.RowsBeforeCutoff += ts.RowsBeforeCutoff
		t.Inserted += ts.Inserted
		t.Updated += ts.Updated
		t.Unchanged += ts.Unchanged
		t.Superseded += ts.Superseded
		t.Duplicates += ts.Duplicates
		t.StorageErrors += ts.StorageErrors
		t.ManualRejected += ts.ManualRejected
	}
	return t
}

// resolve sets the overall status from the type statuses unless the run already failed.
func (r *RunSummary) resolve() {
	if r.Status == StatusFailed {
		return
	}
	r.Status = StatusSuccess
	for _, ts := range r.Types {
		if ts.Status != StatusSuccess {
			r.Status = StatusPartial
			return
		}
	}
}
