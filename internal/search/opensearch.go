// Package search mirrors stored corporate actions into OpenSearch for ad hoc querying.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	FlushInterval time.Duration
}

// NewClient creates an OpenSearch client and verifies the cluster answers.
func NewClient(cfg Config) (*opensearch.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}
	return client, nil
}

// Stats counts mirrored documents.
type Stats struct {
	Indexed uint64 `json:"indexed"`
	Failed  uint64 `json:"failed"`
}

// Mirror bulk-indexes records, one index per action type. Documents are keyed by record
// id, so re-mirroring a record overwrites it.
type Mirror struct {
	bi      opensearchutil.BulkIndexer
	prefix  string
	logger  *logging.Logger
	indexed atomic.Uint64
	failed  atomic.Uint64
}

func NewMirror(client *opensearch.Client, cfg Config, logger *logging.Logger) (*Mirror, error) {
	if logger == nil {
		logger = logging.Default()
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 2 * time.Second
	}
	m := &Mirror{prefix: cfg.IndexPrefix, logger: logger}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    1,
		FlushInterval: flush,
		OnError: func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "OpenSearch bulk request failed", logging.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}
	m.bi = bi
	return m, nil
}

// IndexName returns the index holding records of at.
func (m *Mirror) IndexName(at models.ActionType) string {
	return fmt.Sprintf("%s-%s", m.prefix, at)
}

// Index queues rec for indexing.
func (m *Mirror) Index(ctx context.Context, rec *models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return m.bi.Add(ctx, opensearchutil.BulkIndexerItem{
		Index:      m.IndexName(rec.ActionType),
		Action:     "index",
		DocumentID: rec.ID.String(),
		Body:       bytes.NewReader(data),
		OnSuccess: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem) {
			m.indexed.Add(1)
		},
		OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
			m.failed.Add(1)
			if err == nil {
				err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
			}
			m.logger.WarnContext(ctx, "Failed to mirror record", "document_id", item.DocumentID, logging.Error(err))
		},
	})
}

// Close flushes pending documents and returns the totals.
func (m *Mirror) Close(ctx context.Context) (Stats, error) {
	err := m.bi.Close(ctx)
	return Stats{Indexed: m.indexed.Load(), Failed: m.failed.Load()}, err
}
