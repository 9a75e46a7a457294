package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Dialect selects dialect-specific SQL
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const jobColumns = `seq, id, status, payload_ref, attempts, max_attempts, last_error, created_at, updated_at, completed_at`

// Store is the database-backed processing queue. Every status transition
// goes through Enqueue, ClaimNext, MarkCompleted or MarkFailed.
type Store struct {
	db          *sqlx.DB
	logger      *slog.Logger
	dialect     Dialect
	maxAttempts int
	now         func() time.Time
}

// NewStore creates a Store. maxAttempts is recorded on each enqueued job and
// bounds how many times it can be claimed; values below 1 are raised to 1.
func NewStore(db *sqlx.DB, logger *slog.Logger, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{
		db:          db,
		logger:      logger,
		dialect:     dialectFor(db.DriverName()),
		maxAttempts: maxAttempts,
		now:         defaultNow,
	}
}

// Timestamps are kept in UTC at microsecond precision so both dialects
// store and compare them identically.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func dialectFor(driverName string) Dialect {
	if strings.HasPrefix(driverName, "sqlite") {
		return DialectSQLite
	}
	return DialectPostgres
}

// Dialect returns the SQL dialect in use
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// MaxAttempts returns the attempt limit applied to new jobs
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

// Enqueue inserts a new pending job for payloadRef. Duplicate payload
// references create distinct jobs.
func (s *Store) Enqueue(ctx context.Context, payloadRef string) (*domain.Job, error) {
	payloadRef = strings.TrimSpace(payloadRef)
	if payloadRef == "" {
		return nil, domain.ErrInvalidPayloadRef
	}

	now := s.now()
	job := &domain.Job{
		ID:          uuid.New().String(),
		Status:      domain.JobStatusPending,
		PayloadRef:  payloadRef,
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := s.db.Rebind(`
		INSERT INTO processing_jobs (
			id, status, payload_ref, attempts, max_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`)

	err := s.db.QueryRowContext(ctx, query,
		job.ID,
		job.Status,
		job.PayloadRef,
		job.Attempts,
		job.MaxAttempts,
		job.CreatedAt,
		job.UpdatedAt,
	).Scan(&job.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("payload_ref", job.PayloadRef),
		slog.Int("max_attempts", job.MaxAttempts),
	)

	return job, nil
}

// GetJob retrieves a job by its ID
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}

	var job domain.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = ?`)

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// JobFilter narrows ListJobs results
type JobFilter struct {
	Status     string
	PayloadRef string
	PageSize   int
	Cursor     *JobCursor
}

// JobCursor is the keyset position of the last job on the previous page
type JobCursor struct {
	CreatedAt time.Time
	Seq       int64
}

// ListJobs returns jobs newest first. It fetches one row more than PageSize
// so callers can tell whether another page exists.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.PayloadRef != "" {
		query += " AND payload_ref = ?"
		args = append(args, filter.PayloadRef)
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND seq < ?))"
		createdAt := filter.Cursor.CreatedAt.UTC()
		args = append(args, createdAt, createdAt, filter.Cursor.Seq)
	}

	query += " ORDER BY created_at DESC, seq DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// GetStats counts jobs by status. Counts come from a single aggregate query
// and are not isolated from concurrent writers.
func (s *Store) GetStats(ctx context.Context) (*domain.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}

		switch status {
		case domain.JobStatusPending:
			stats.Pending = count
		case domain.JobStatusProcessing:
			stats.Processing = count
		case domain.JobStatusCompleted:
			stats.Completed = count
		case domain.JobStatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return stats, nil
}
