package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/monitor"
	"github.com/cuongbtq/learning-hub/internal/storage"
)

// JobStore is the part of the queue store the API uses
type JobStore interface {
	Enqueue(ctx context.Context, payloadRef string) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	GetStats(ctx context.Context) (*domain.Stats, error)
}

// Publisher sends enqueue notifications to workers
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// WorkerDirectory lists live worker snapshots
type WorkerDirectory interface {
	ListWorkers(ctx context.Context) ([]monitor.Snapshot, error)
}

// Dependencies holds all dependencies needed by handlers. Publisher and
// Workers are optional and left nil when the feature is disabled.
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Store       JobStore
	Publisher   Publisher
	Workers     WorkerDirectory
}

// JobHandler handles queue-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     JobStore
	publisher Publisher
	workers   WorkerDirectory
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
		workers:   deps.Workers,
	}
}
