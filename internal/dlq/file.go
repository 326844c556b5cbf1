package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
)

// FileQueue writes one JSON file per entry under basePath.
type FileQueue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	written  uint64
}

// NewFileQueue creates the directory if needed.
func NewFileQueue(basePath string, logger *logging.Logger) (*FileQueue, error) {
	if basePath == "" {
		basePath = "dlq"
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{basePath: basePath, logger: logger}, nil
}

func (q *FileQueue) Write(ctx context.Context, entry Entry) error {
	stamp(&entry)

	q.mu.Lock()
	defer q.mu.Unlock()

	filename := fmt.Sprintf("%s_%s_%d_%06d.json",
		entry.ActionType,
		entry.Kind,
		entry.Timestamp.UnixNano(),
		q.written,
	)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0o644); err != nil {
		q.logger.ErrorContext(ctx, "Failed to write DLQ entry", logging.Error(err))
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	q.logger.DebugContext(ctx, "DLQ entry written", "file", filename, "kind", string(entry.Kind))
	return nil
}

// Written returns the number of entries written by this queue.
func (q *FileQueue) Written() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}

// List returns up to limit entries (all when limit <= 0) in write order.
func (q *FileQueue) List(limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var entries []Entry
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(q.basePath, file.Name()))
		if err != nil {
			q.logger.Warn("Failed to read DLQ file", "file", file.Name(), logging.Error(err))
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			q.logger.Warn("Failed to parse DLQ file", "file", file.Name(), logging.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Purge removes all entries.
func (q *FileQueue) Purge() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(q.basePath, "*.json"))
	if err != nil {
		return fmt.Errorf("search dlq files: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("delete dlq file: %w", err)
		}
	}
	return nil
}
