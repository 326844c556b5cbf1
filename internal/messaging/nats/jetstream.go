package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamClient extends Client with JetStream persistence.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64

	// Retention policy (LimitsPolicy, InterestPolicy, WorkQueuePolicy).
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// DeadLetterStream returns the stream holding rejected rows, pages and records.
// Entries are kept until they expire so they can be inspected after a run.
func DeadLetterStream(name, subjectPrefix string, maxAge time.Duration) StreamConfig {
	return StreamConfig{
		Name:      name,
		Subjects:  []string{subjectPrefix + ".>"},
		MaxAge:    maxAge,
		MaxBytes:  256 * 1024 * 1024,
		MaxMsgs:   1_000_000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// PublishSync publishes a message and waits for the stream acknowledgment.
func (c *JetStreamClient) PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}
