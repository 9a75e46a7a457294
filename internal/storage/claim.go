package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/learning-hub/internal/domain"
)

// claimSQLPostgres picks the oldest pending job. FOR UPDATE SKIP LOCKED lets
// a concurrent claimer move on to the next row instead of blocking on (and
// then losing) the same one.
const claimSQLPostgres = `
	UPDATE processing_jobs
	SET status = ?,
	    attempts = attempts + 1,
	    updated_at = ?
	WHERE id = (
		SELECT id FROM processing_jobs
		WHERE status = ?
		ORDER BY seq
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	  AND status = ?
	RETURNING id
`

// claimSQLSQLite relies on SQLite serializing writers; the status condition
// keeps the update a compare-and-swap.
const claimSQLSQLite = `
	UPDATE processing_jobs
	SET status = ?,
	    attempts = attempts + 1,
	    updated_at = ?
	WHERE id = (
		SELECT id FROM processing_jobs
		WHERE status = ?
		ORDER BY seq
		LIMIT 1
	)
	  AND status = ?
	RETURNING id
`

// ClaimNext atomically moves the oldest pending job to processing,
// increments its attempts and returns it. Age is insertion order (seq), not
// created_at, so a wall clock step cannot reorder the queue. Returns nil, nil when no job is
// pending.
func (s *Store) ClaimNext(ctx context.Context) (*domain.Job, error) {
	query := claimSQLPostgres
	if s.dialect == DialectSQLite {
		query = claimSQLSQLite
	}

	var jobID string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query),
		domain.JobStatusProcessing,
		s.now(),
		domain.JobStatusPending,
		domain.JobStatusPending,
	).Scan(&jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	// Only the claimer may move a processing job, so this read is stable.
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed job %s: %w", jobID, err)
	}

	s.logger.Debug("Job claimed",
		slog.String("job_id", job.ID),
		slog.String("payload_ref", job.PayloadRef),
		slog.Int("attempts", job.Attempts),
	)

	return job, nil
}

// MarkCompleted moves a processing job to completed
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	now := s.now()
	query := s.db.Rebind(`
		UPDATE processing_jobs
		SET status = ?,
		    updated_at = ?,
		    completed_at = ?
		WHERE id = ? AND status = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted, now, now, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return s.transitionError(ctx, jobID)
	}

	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
	)

	return nil
}

// MarkFailed records errMsg on a processing job. The job returns to pending
// while attempts < max_attempts and becomes terminally failed otherwise.
// The resulting status is returned.
func (s *Store) MarkFailed(ctx context.Context, jobID, errMsg string) (string, error) {
	query := s.db.Rebind(`
		UPDATE processing_jobs
		SET status = CASE WHEN attempts < max_attempts THEN CAST(? AS TEXT) ELSE CAST(? AS TEXT) END,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING status
	`)

	var status string
	err := s.db.QueryRowContext(ctx, query,
		domain.JobStatusPending,
		domain.JobStatusFailed,
		errMsg,
		s.now(),
		jobID,
		domain.JobStatusProcessing,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", s.transitionError(ctx, jobID)
		}
		return "", fmt.Errorf("failed to mark job failed: %w", err)
	}

	if status == domain.JobStatusFailed {
		s.logger.Warn("Job failed permanently",
			slog.String("job_id", jobID),
			slog.String("error", errMsg),
		)
	} else {
		s.logger.Info("Job returned to queue for retry",
			slog.String("job_id", jobID),
			slog.String("error", errMsg),
		)
	}

	return status, nil
}

// transitionError explains why a conditional update matched no row
func (s *Store) transitionError(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.logger.Warn("Job is not processing, transition rejected",
		slog.String("job_id", jobID),
		slog.String("status", job.Status),
	)
	return fmt.Errorf("%w: job %s is %s", domain.ErrJobNotProcessing, jobID, job.Status)
}
