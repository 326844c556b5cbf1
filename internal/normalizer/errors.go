package normalizer

import (
	"fmt"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// NormalizationError rejects one row. The row is dropped for this run only.
type NormalizationError struct {
	ActionType models.ActionType
	Reason     string
	Raw        models.RawFieldMapping
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.ActionType, e.Reason)
}
