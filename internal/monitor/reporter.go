package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/worker"
)

// StatsSource is implemented by the queue store
type StatsSource interface {
	GetStats(ctx context.Context) (*domain.Stats, error)
}

// StatusSource is implemented by the worker
type StatusSource interface {
	ID() string
	Status() worker.Status
}

// Reporter periodically logs queue stats together with the worker status
// and, when a Directory is set, publishes the snapshot to Redis.
type Reporter struct {
	logger    *slog.Logger
	stats     StatsSource
	worker    StatusSource
	directory *Directory
	hostname  string
	now       func() time.Time
}

// NewReporter creates a Reporter. directory may be nil.
func NewReporter(logger *slog.Logger, stats StatsSource, w StatusSource, directory *Directory, hostname string) *Reporter {
	return &Reporter{
		logger:    logger,
		stats:     stats,
		worker:    w,
		directory: directory,
		hostname:  hostname,
		now:       time.Now,
	}
}

// Run reports every interval until ctx is done
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report logs one status line. Failures are logged and never returned: a
// status report must not affect job processing.
func (r *Reporter) Report(ctx context.Context) {
	status := r.worker.Status()

	stats, err := r.stats.GetStats(ctx)
	if err != nil {
		r.logger.Error("Failed to get queue stats", slog.String("error", err.Error()))
	} else {
		r.logger.Info("Queue status",
			slog.Int("total", stats.Total),
			slog.Int("pending", stats.Pending),
			slog.Int("processing", stats.Processing),
			slog.Int("completed", stats.Completed),
			slog.Int("failed", stats.Failed),
			slog.Bool("worker_running", status.IsRunning),
			slog.Duration("poll_interval", status.PollInterval),
			slog.Duration("current_backoff", status.CurrentBackoff),
			slog.Int("consecutive_errors", status.ConsecutiveErrors),
		)
	}

	if r.directory == nil {
		return
	}

	snap := NewSnapshot(r.worker.ID(), r.hostname, status, stats, r.now())
	if err := r.directory.Publish(ctx, snap); err != nil {
		r.logger.Warn("Failed to publish worker status", slog.String("error", err.Error()))
	}
}
