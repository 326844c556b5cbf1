package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutContexts(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) (context.Context, context.CancelFunc)
		want time.Duration
	}{
		{"query", QueryContext, DefaultQueryTimeout},
		{"write", WriteContext, DefaultWriteTimeout},
		{"bulk", BulkContext, DefaultBulkTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			ctx, cancel := tt.fn(context.Background())
			defer cancel()
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, start.Add(tt.want), deadline, time.Second)
		})
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	_, _, err := Migrate("postgres://localhost:1/none?sslmode=disable", t.TempDir(), Direction("sideways"))
	assert.Error(t, err)
}
