package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
)

// poll runs one claim-process-record cycle. Processor and store failures are
// logged and turned into backoff; they never escape the loop.
func (w *Worker) poll(ctx context.Context) {
	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		w.logger.Error("Failed to claim next job",
			slog.String("error", err.Error()),
		)
		w.recordFailure()
		return
	}

	if job == nil {
		w.recordIdle()
		return
	}

	log := w.logger.With(
		slog.String("job_id", job.ID),
		slog.String("payload_ref", job.PayloadRef),
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
	)

	log.Info("Processing job")
	start := time.Now()

	if procErr := w.runProcessor(ctx, job); procErr != nil {
		log.Error("Job processing failed",
			slog.String("error", procErr.Error()),
			slog.Duration("duration", time.Since(start)),
		)

		status, markErr := w.queue.MarkFailed(ctx, job.ID, procErr.Error())
		if markErr != nil {
			log.Error("Failed to record job failure",
				slog.String("error", markErr.Error()),
			)
		} else if status == domain.JobStatusFailed {
			log.Warn("Job exceeded max attempts")
		} else {
			log.Info("Job will be retried")
		}

		w.recordFailure()
		return
	}

	if err := w.queue.MarkCompleted(ctx, job.ID); err != nil {
		log.Error("Failed to mark job completed",
			slog.String("error", err.Error()),
		)
		w.recordFailure()
		return
	}

	log.Info("Job completed successfully",
		slog.Duration("duration", time.Since(start)),
	)
	w.recordSuccess()
}

// runProcessor converts a processor panic into an error
func (w *Worker) runProcessor(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Processor panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	return w.processor.Process(ctx, job.PayloadRef)
}
