// Package notify announces finished pipeline runs to downstream consumers.
package notify

import (
	"context"
	"fmt"

	"github.com/supertypeai/sectors-corporate-actions/internal/pipeline"
)

// Publisher is the part of the NATS client the notifier needs.
type Publisher interface {
	PublishJSON(ctx context.Context, subject string, data any) error
}

// RunNotifier publishes each RunSummary to subject and a status-specific
// subject (<subject>.<status>) so consumers can listen for failures only.
type RunNotifier struct {
	pub     Publisher
	subject string
}

func NewRunNotifier(pub Publisher, subject string) *RunNotifier {
	return &RunNotifier{pub: pub, subject: subject}
}

func (n *RunNotifier) RunCompleted(ctx context.Context, summary *pipeline.RunSummary) error {
	if err := n.pub.PublishJSON(ctx, n.subject, summary); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	if err := n.pub.PublishJSON(ctx, n.subject+"."+string(summary.Status), summary); err != nil {
		return fmt.Errorf("publish run status: %w", err)
	}
	return nil
}
