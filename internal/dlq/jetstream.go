package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/messaging/nats"
)

// publisher is the part of the JetStream client the queue needs.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// JetStreamQueue publishes entries to a JetStream stream so every run host shares one
// dead-letter queue.
type JetStreamQueue struct {
	pub     publisher
	prefix  string
	logger  *logging.Logger
	written uint64
}

type jsPublisher struct {
	js *nats.JetStreamClient
}

func (p jsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.PublishSync(ctx, subject, data)
	return err
}

// NewJetStreamQueue ensures the stream exists and returns a queue publishing under
// stream's subject prefix.
func NewJetStreamQueue(ctx context.Context, js *nats.JetStreamClient, stream nats.StreamConfig, subjectPrefix string, logger *logging.Logger) (*JetStreamQueue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("DLQ stream ready", "stream", stream.Name)
	return &JetStreamQueue{pub: jsPublisher{js: js}, prefix: subjectPrefix, logger: logger}, nil
}

// Subject returns the subject for an entry: <prefix>.<action_type>.<kind>.
func (q *JetStreamQueue) Subject(e Entry) string {
	return fmt.Sprintf("%s.%s.%s", q.prefix, e.ActionType, e.Kind)
}

func (q *JetStreamQueue) Write(ctx context.Context, entry Entry) error {
	stamp(&entry)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := q.pub.Publish(ctx, q.Subject(entry), data); err != nil {
		q.logger.ErrorContext(ctx, "Failed to publish DLQ entry", logging.Error(err))
		return fmt.Errorf("publish dlq entry: %w", err)
	}
	atomic.AddUint64(&q.written, 1)
	return nil
}

// Written returns the number of entries published by this queue.
func (q *JetStreamQueue) Written() uint64 {
	return atomic.LoadUint64(&q.written)
}
