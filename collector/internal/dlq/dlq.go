// Package dlq persists batches that left the pipeline undelivered, so they
// can be inspected or replayed. Backends absorb their own write failures: a
// broken DLQ must never take the export path down with it.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// Entry captures one dead-lettered batch with enough context for replay.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Signal    model.Signal   `json:"signal"`
	Reason    string         `json:"reason"`
	Error     string         `json:"error,omitempty"`
	Bytes     int64          `json:"bytes"`
	Records   []model.Record `json:"records"`
}

func newEntry(batch *model.Batch, reason string, cause error) Entry {
	e := Entry{
		Timestamp: time.Now().UTC(),
		Signal:    batch.Signal,
		Reason:    reason,
		Bytes:     batch.Bytes,
		Records:   batch.Records,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// FileQueue writes dead-lettered batches to a local directory, one JSON file
// per batch.
type FileQueue struct {
	basePath string
	logger   *slog.Logger

	mu      sync.Mutex
	written uint64
}

// NewFileQueue creates a DLQ directory and a queue writing into it.
func NewFileQueue(basePath string, logger *slog.Logger) (*FileQueue, error) {
	if basePath == "" {
		basePath = "/var/lib/traceway/dlq"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{
		basePath: basePath,
		logger:   logger,
	}, nil
}

// Write records an undelivered batch. Failures are logged, not returned; the
// caller has already given up on the batch.
func (q *FileQueue) Write(ctx context.Context, batch *model.Batch, reason string, cause error) {
	if q == nil || batch.Len() == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.Marshal(newEntry(batch, reason, cause))
	if err != nil {
		q.logger.Error("failed to marshal dlq entry", slog.String("error", err.Error()))
		return
	}

	filename := fmt.Sprintf("batch_%s_%d_%d.json", batch.Signal, time.Now().Unix(), q.written)
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0o644); err != nil {
		q.logger.Error("failed to write dlq entry",
			slog.String("file", filename),
			slog.String("error", err.Error()),
		)
		return
	}

	q.written++
	metrics.DLQWritten.WithLabelValues(reason).Inc()
	q.logger.Warn("batch dead lettered",
		slog.String("signal", string(batch.Signal)),
		slog.String("reason", reason),
		slog.Int("records", batch.Len()),
		slog.String("file", filename),
	)
}

// List returns up to limit stored entries, oldest first.
func (q *FileQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var entries []Entry
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(q.basePath, file.Name()))
		if err != nil {
			q.logger.Error("failed to read dlq file",
				slog.String("file", file.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			q.logger.Error("failed to parse dlq file",
				slog.String("file", file.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Purge removes all stored entries.
func (q *FileQueue) Purge(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return 0, fmt.Errorf("read dlq directory: %w", err)
	}

	deleted := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(q.basePath, file.Name())); err != nil {
			q.logger.Error("failed to delete dlq file",
				slog.String("file", file.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}
	return deleted, nil
}
