package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the pipeline.
const (
	FieldRunID      = "run_id"
	FieldActionType = "action_type"
	FieldPage       = "page"
	FieldAttempt    = "attempt"
	FieldURL        = "url"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldSecurity   = "security_id"
	FieldIdentity   = "identity_key"
	FieldTable      = "table"
)

// RunID returns a slog attribute for the run identifier.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// ActionType returns a slog attribute for the action type.
func ActionType(t string) slog.Attr {
	return slog.String(FieldActionType, t)
}

// Page returns a slog attribute for a page number.
func Page(n int) slog.Attr {
	return slog.Int(FieldPage, n)
}

// Attempt returns a slog attribute for a retry attempt.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// URL returns a slog attribute for a request URL.
func URL(u string) slog.Attr {
	return slog.String(FieldURL, u)
}

// Status returns a slog attribute for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Security returns a slog attribute for a canonical security identifier.
func Security(id string) slog.Attr {
	return slog.String(FieldSecurity, id)
}

// IdentityKey returns a slog attribute for a record identity key.
func IdentityKey(key string) slog.Attr {
	return slog.String(FieldIdentity, key)
}

// Table returns a slog attribute for a storage table name.
func Table(name string) slog.Attr {
	return slog.String(FieldTable, name)
}
