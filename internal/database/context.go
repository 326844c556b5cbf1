package database

import (
	"context"
	"time"
)

// Timeouts applied to corporate action storage calls. The run-level context still bounds
// all of them.
const (
	// DefaultQueryTimeout covers a single lookup by identity key or a manual table read.
	DefaultQueryTimeout = 5 * time.Second
	// DefaultWriteTimeout covers one upsert transaction, lock wait included.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultBulkTimeout covers listing a whole action table or the listed-securities table.
	DefaultBulkTimeout = 30 * time.Second
)

// QueryContext bounds parent by DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext bounds parent by DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext bounds parent by DefaultBulkTimeout.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}
