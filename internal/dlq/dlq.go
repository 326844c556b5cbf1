// Package dlq records rejected rows, pages and records so they can be inspected and
// replayed after a run.
package dlq

import (
	"context"
	"time"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Kind is the stage that rejected an entry.
type Kind string

const (
	KindRow     Kind = "row"
	KindPage    Kind = "page"
	KindRecord  Kind = "record"
	KindStorage Kind = "storage"
)

// Entry is one rejected unit.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	RunID      string            `json:"run_id"`
	ActionType models.ActionType `json:"action_type"`
	Kind       Kind              `json:"kind"`
	Page       int               `json:"page,omitempty"`
	SourceRef  string            `json:"source_ref,omitempty"`
	Error      string            `json:"error"`
	Raw        map[string]string `json:"raw,omitempty"`
}

// Writer accepts rejected units. Implementations must be safe for concurrent use.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoOp discards every entry.
type NoOp struct{}

func (NoOp) Write(context.Context, Entry) error { return nil }

func stamp(e *Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
