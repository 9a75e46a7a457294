package dto

import (
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/monitor"
)

type EnqueueJobRequest struct {
	PayloadRef string `json:"payload_ref" binding:"required"`
}

type ListJobsRequest struct {
	Status     string `form:"status"`
	PayloadRef string `form:"payload_ref"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID       string `json:"job_id"`
	PayloadRef  string `json:"payload_ref"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type StatsResponse struct {
	Stats *domain.Stats `json:"stats"`
}

type WorkersResponse struct {
	Workers []monitor.Snapshot `json:"workers"`
}

// NewJobDTO converts a stored job into its API representation
func NewJobDTO(job *domain.Job) JobDTO {
	out := JobDTO{
		JobID:       job.ID,
		PayloadRef:  job.PayloadRef,
		Status:      job.Status,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if job.LastError.Valid {
		out.LastError = job.LastError.String
	}
	if job.CompletedAt.Valid {
		out.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339Nano)
	}
	return out
}
