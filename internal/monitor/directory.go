package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/worker"
	"github.com/redis/go-redis/v9"
)

// Snapshot is the status a worker process reports about itself
type Snapshot struct {
	WorkerID          string        `json:"worker_id"`
	Hostname          string        `json:"hostname"`
	IsRunning         bool          `json:"is_running"`
	PollIntervalMs    int64         `json:"poll_interval_ms"`
	CurrentBackoffMs  int64         `json:"current_backoff_ms"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	Stats             *domain.Stats `json:"stats,omitempty"`
	ReportedAt        time.Time     `json:"reported_at"`
}

// NewSnapshot builds a snapshot from a worker status
func NewSnapshot(workerID, hostname string, status worker.Status, stats *domain.Stats, at time.Time) Snapshot {
	return Snapshot{
		WorkerID:          workerID,
		Hostname:          hostname,
		IsRunning:         status.IsRunning,
		PollIntervalMs:    status.PollInterval.Milliseconds(),
		CurrentBackoffMs:  status.CurrentBackoff.Milliseconds(),
		ConsecutiveErrors: status.ConsecutiveErrors,
		Stats:             stats,
		ReportedAt:        at.UTC(),
	}
}

// Directory stores worker snapshots in Redis. Each snapshot lives under its
// own key with a TTL, so a crashed worker drops out once the TTL passes. The
// worker id set is an index only and is pruned lazily on read.
type Directory struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewDirectory creates a Directory. An empty prefix falls back to
// DefaultKeyPrefix.
func NewDirectory(rdb *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Directory {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Directory{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Publish writes the snapshot and refreshes its TTL
func (d *Directory) Publish(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal worker snapshot: %w", err)
	}

	pipe := d.rdb.TxPipeline()
	pipe.Set(ctx, WorkerKey(d.prefix, snap.WorkerID), body, d.ttl)
	pipe.SAdd(ctx, WorkerSetKey(d.prefix), snap.WorkerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish worker snapshot: %w", err)
	}

	d.logger.Debug("Published worker snapshot",
		slog.String("worker_id", snap.WorkerID),
		slog.Duration("ttl", d.ttl),
	)
	return nil
}

// Remove deletes a worker's snapshot, used on clean shutdown
func (d *Directory) Remove(ctx context.Context, workerID string) error {
	pipe := d.rdb.TxPipeline()
	pipe.Del(ctx, WorkerKey(d.prefix, workerID))
	pipe.SRem(ctx, WorkerSetKey(d.prefix), workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove worker snapshot: %w", err)
	}
	return nil
}

// ListWorkers returns live snapshots ordered by worker id
func (d *Directory) ListWorkers(ctx context.Context) ([]Snapshot, error) {
	ids, err := d.rdb.SMembers(ctx, WorkerSetKey(d.prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list worker ids: %w", err)
	}
	if len(ids) == 0 {
		return []Snapshot{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = WorkerKey(d.prefix, id)
	}

	values, err := d.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch worker snapshots: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}

		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			d.logger.Warn("Skipping unreadable worker snapshot",
				slog.String("worker_id", ids[i]),
				slog.String("error", err.Error()),
			)
			continue
		}
		snapshots = append(snapshots, snap)
	}

	if len(expired) > 0 {
		if err := d.rdb.SRem(ctx, WorkerSetKey(d.prefix), expired...).Err(); err != nil {
			d.logger.Warn("Failed to prune expired workers", slog.String("error", err.Error()))
		}
	}

	return snapshots, nil
}
