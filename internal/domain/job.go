package domain

import (
	"database/sql"
	"time"
)

// Job is a unit of deferred material processing work
type Job struct {
	Seq         int64          `db:"seq" json:"-"`
	ID          string         `db:"id" json:"id"`
	Status      string         `db:"status" json:"status"`
	PayloadRef  string         `db:"payload_ref" json:"payload_ref"`
	Attempts    int            `db:"attempts" json:"attempts"`
	MaxAttempts int            `db:"max_attempts" json:"max_attempts"`
	LastError   sql.NullString `db:"last_error" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"-"`
}

// IsTerminal reports whether the job can no longer change status
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Stats holds job counts by status
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// JobMessage is the notification published after a job is enqueued
type JobMessage struct {
	JobID      string `json:"job_id"`
	PayloadRef string `json:"payload_ref"`
}
