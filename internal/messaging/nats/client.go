// Package nats wraps the NATS connection used for run notifications and the
// JetStream dead-letter stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
)

// Client publishes messages over a single NATS connection.
type Client struct {
	conn   *nats.Conn
	logger *logging.Logger
}

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration

	// Username and Password are optional.
	Username string
	Password string

	Logger *logging.Logger
}

// DefaultConfig returns a Config for a short-lived pipeline run.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "corpaction",
		MaxReconnects: 5,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewClient connects to NATS.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn, logger: logger}, nil
}

// Publish sends a message to the specified subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(subject, data)
}

// PublishJSON marshals data to JSON and publishes it to subject.
func (c *Client) PublishJSON(ctx context.Context, subject string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.Publish(ctx, subject, b)
}

// Flush waits until the server has processed every published message.
func (c *Client) Flush(ctx context.Context) error {
	return c.conn.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() error {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}
