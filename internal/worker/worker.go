package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/processor"
)

// DefaultPollInterval is used when Config.PollInterval is not set
const DefaultPollInterval = 5 * time.Second

var (
	// ErrAlreadyRunning is returned by Start when the loop is already running
	ErrAlreadyRunning = errors.New("worker is already running")

	// ErrInvalidInterval is returned for non-positive poll intervals
	ErrInvalidInterval = errors.New("poll interval must be greater than 0")
)

// Queue is the subset of the queue store the worker drives
type Queue interface {
	ClaimNext(ctx context.Context) (*domain.Job, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) (string, error)
}

// Config holds worker configuration
type Config struct {
	ID                string
	Logger            *slog.Logger
	Queue             Queue
	Processor         processor.Processor
	PollInterval      time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Status is a point-in-time view of the worker loop
type Status struct {
	IsRunning         bool
	PollInterval      time.Duration
	CurrentBackoff    time.Duration
	ConsecutiveErrors int
}

// Worker polls the queue and runs one job at a time. Several workers, in one
// process or many, may share a queue; exclusivity comes from the store's
// atomic claim.
type Worker struct {
	id         string
	logger     *slog.Logger
	queue      Queue
	processor  processor.Processor
	maxBackoff time.Duration
	multiplier float64

	mu                sync.Mutex
	running           bool
	pollInterval      time.Duration
	currentBackoff    time.Duration
	consecutiveErrors int
	backingOff        bool
	stopChan          chan struct{}
	done              chan struct{}

	wake chan struct{}
}

// NewWorker creates a stopped worker
func NewWorker(cfg *Config) *Worker {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff < poll {
		maxBackoff = poll
	}

	return &Worker{
		id:             cfg.ID,
		logger:         cfg.Logger.With(slog.String("worker_id", cfg.ID)),
		queue:          cfg.Queue,
		processor:      cfg.Processor,
		maxBackoff:     maxBackoff,
		multiplier:     cfg.BackoffMultiplier,
		pollInterval:   poll,
		currentBackoff: poll,
		wake:           make(chan struct{}, 1),
	}
}

// ID returns the worker identifier
func (w *Worker) ID() string {
	return w.id
}

// Start launches the polling loop in its own goroutine. The loop runs until
// Stop is called or ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	w.logger.Info("Starting worker",
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("max_backoff", w.maxBackoff),
		slog.Float64("backoff_multiplier", w.multiplier),
	)

	go w.run(ctx, w.stopChan, w.done)
	return nil
}

// Stop signals the loop to exit and waits for it. A job that is being
// processed is allowed to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stop, done := w.stopChan, w.done
	select {
	case <-stop:
	default:
		close(stop)
	}
	w.mu.Unlock()

	w.logger.Info("Stopping worker...")
	<-done
	w.logger.Info("Worker stopped")
}

// SetPollInterval changes the base interval. The current backoff follows it
// unless the worker is recovering from errors.
func (w *Worker) SetPollInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pollInterval = d
	if w.maxBackoff < d {
		w.maxBackoff = d
	}
	if w.consecutiveErrors == 0 {
		w.currentBackoff = d
	}

	w.logger.Info("Poll interval updated", slog.Duration("poll_interval", d))
	return nil
}

// Status returns the current loop state
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Status{
		IsRunning:         w.running,
		PollInterval:      w.pollInterval,
		CurrentBackoff:    w.currentBackoff,
		ConsecutiveErrors: w.consecutiveErrors,
	}
}

// Wake cuts the current idle sleep short. Signals sent while the worker is
// backing off after errors are dropped, not deferred.
func (w *Worker) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.backingOff {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
	}()

	// In-flight jobs and their bookkeeping are not interrupted by shutdown.
	jobCtx := context.WithoutCancel(ctx)

	for {
		interval, wakeable := w.nextSleep()
		if !w.sleep(ctx, stop, interval, wakeable) {
			w.logger.Info("Worker loop exiting")
			return
		}

		w.poll(jobCtx)
	}
}

// nextSleep returns the backoff after a failed iteration and the base poll
// interval otherwise.
func (w *Worker) nextSleep() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.backingOff {
		return w.currentBackoff, false
	}
	return w.pollInterval, true
}

func (w *Worker) sleep(ctx context.Context, stop <-chan struct{}, d time.Duration, wakeable bool) bool {
	var wake <-chan struct{}
	if wakeable {
		wake = w.wake
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-wake:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) recordIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backingOff = false
}

func (w *Worker) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consecutiveErrors = 0
	w.currentBackoff = w.pollInterval
	w.backingOff = false
}

func (w *Worker) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consecutiveErrors++
	w.currentBackoff = nextBackoff(w.currentBackoff, w.pollInterval, w.maxBackoff, w.multiplier)
	w.backingOff = true

	// A signal queued before the failure must not end the backoff early.
	select {
	case <-w.wake:
	default:
	}

	w.logger.Warn("Backing off",
		slog.Int("consecutive_errors", w.consecutiveErrors),
		slog.Duration("backoff", w.currentBackoff),
	)
}
