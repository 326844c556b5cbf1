package parser

import (
	"fmt"
	"strings"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// UnparseableRowError describes a single row that could not be mapped. It is collected, not returned.
type UnparseableRowError struct {
	ActionType models.ActionType
	Page       int
	Row        int
	Reason     string
	Cells      []string
	SourceRef  string
}

func (e *UnparseableRowError) Error() string {
	return fmt.Sprintf("unparseable %s row %d on page %d: %s", e.ActionType, e.Row, e.Page, e.Reason)
}

// Raw returns the row cells keyed by position, for dead-letter records.
func (e *UnparseableRowError) Raw() map[string]string {
	out := make(map[string]string, len(e.Cells))
	for i, c := range e.Cells {
		out[fmt.Sprintf("col_%d", i)] = c
	}
	return out
}

// UnparseablePageError means the page structure was not recognised at all.
type UnparseablePageError struct {
	ActionType models.ActionType
	Page       int
	URL        string
	Reason     string
}

func (e *UnparseablePageError) Error() string {
	return fmt.Sprintf("unparseable %s page %d (%s): %s", e.ActionType, e.Page, e.URL, e.Reason)
}

func missingReason(fields []string) string {
	return "missing required " + strings.Join(fields, ", ")
}
