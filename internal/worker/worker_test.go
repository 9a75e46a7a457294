package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/learning-hub/internal/domain"
	"github.com/cuongbtq/learning-hub/internal/processor"
	"github.com/cuongbtq/learning-hub/internal/storage"
	"github.com/cuongbtq/learning-hub/shared/logger"
	"github.com/cuongbtq/learning-hub/shared/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu          sync.Mutex
	pending     []*domain.Job
	claimErr    error
	completeErr error
	completed   []string
	failed      map[string]string
}

func newFakeQueue(refs ...string) *fakeQueue {
	q := &fakeQueue{failed: map[string]string{}}
	for i, ref := range refs {
		q.pending = append(q.pending, &domain.Job{
			ID:          ref + "-id",
			PayloadRef:  ref,
			Status:      domain.JobStatusPending,
			MaxAttempts: 3,
			Seq:         int64(i + 1),
		})
	}
	return q
}

func (q *fakeQueue) ClaimNext(ctx context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = domain.JobStatusProcessing
	job.Attempts++
	return job, nil
}

func (q *fakeQueue) MarkCompleted(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.completeErr != nil {
		return q.completeErr
	}
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, jobID, errMsg string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = errMsg
	return domain.JobStatusPending, nil
}

func newTestWorker(q Queue, p processor.Processor) *Worker {
	return NewWorker(&Config{
		ID:                "test-worker",
		Logger:            logger.NewNop().Logger,
		Queue:             q,
		Processor:         p,
		PollInterval:      100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
	})
}

var succeed = processor.Func(func(ctx context.Context, payloadRef string) error { return nil })

var alwaysFail = processor.Func(func(ctx context.Context, payloadRef string) error {
	return errors.New("text extraction failed")
})

func TestNextBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	ceiling := time.Second

	tests := []struct {
		name       string
		current    time.Duration
		multiplier float64
		want       time.Duration
	}{
		{"doubles from base", base, 2, 200 * time.Millisecond},
		{"doubles again", 200 * time.Millisecond, 2, 400 * time.Millisecond},
		{"capped at ceiling", 800 * time.Millisecond, 2, ceiling},
		{"stays at ceiling", ceiling, 2, ceiling},
		{"below base is raised first", 0, 2, 200 * time.Millisecond},
		{"multiplier below one holds steady", 300 * time.Millisecond, 0.5, 300 * time.Millisecond},
		{"overflow saturates", time.Duration(1 << 62), 8, ceiling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextBackoff(tt.current, base, ceiling, tt.multiplier))
		})
	}

	t.Run("ceiling below base uses base", func(t *testing.T) {
		assert.Equal(t, base, nextBackoff(base, base, time.Millisecond, 2))
	})
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(&Config{ID: "w", Logger: logger.NewNop().Logger, MaxBackoff: time.Second})
	status := w.Status()
	assert.Equal(t, DefaultPollInterval, status.PollInterval)
	assert.Equal(t, DefaultPollInterval, status.CurrentBackoff)
	assert.False(t, status.IsRunning)
	assert.Equal(t, "w", w.ID())
}

func TestWorker_PollSuccess(t *testing.T) {
	q := newFakeQueue("material-1")
	var got string
	w := newTestWorker(q, processor.Func(func(ctx context.Context, payloadRef string) error {
		got = payloadRef
		return nil
	}))

	w.poll(context.Background())

	assert.Equal(t, "material-1", got)
	assert.Equal(t, []string{"material-1-id"}, q.completed)
	assert.Empty(t, q.failed)

	status := w.Status()
	assert.Equal(t, 0, status.ConsecutiveErrors)
	assert.Equal(t, 100*time.Millisecond, status.CurrentBackoff)

	interval, wakeable := w.nextSleep()
	assert.Equal(t, 100*time.Millisecond, interval)
	assert.True(t, wakeable)
}

func TestWorker_PollIdle(t *testing.T) {
	w := newTestWorker(newFakeQueue(), succeed)

	w.poll(context.Background())

	interval, wakeable := w.nextSleep()
	assert.Equal(t, 100*time.Millisecond, interval)
	assert.True(t, wakeable)
	assert.Equal(t, 0, w.Status().ConsecutiveErrors)
}

func TestWorker_BackoffGrowsAndResets(t *testing.T) {
	refs := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
	q := newFakeQueue(refs...)
	var fail atomic.Bool
	fail.Store(true)
	w := newTestWorker(q, processor.Func(func(ctx context.Context, payloadRef string) error {
		if fail.Load() {
			return errors.New("extractor down")
		}
		return nil
	}))

	var previous time.Duration
	for i := 1; i <= 5; i++ {
		w.poll(context.Background())

		status := w.Status()
		assert.Equal(t, i, status.ConsecutiveErrors)
		assert.GreaterOrEqual(t, status.CurrentBackoff, previous, "backoff must not decrease")
		assert.LessOrEqual(t, status.CurrentBackoff, time.Second, "backoff must not exceed ceiling")
		previous = status.CurrentBackoff

		interval, wakeable := w.nextSleep()
		assert.Equal(t, status.CurrentBackoff, interval)
		assert.False(t, wakeable)
	}
	assert.Equal(t, time.Second, previous)
	assert.Equal(t, "extractor down", q.failed["m1-id"])

	fail.Store(false)
	w.poll(context.Background())

	status := w.Status()
	assert.Equal(t, 0, status.ConsecutiveErrors)
	assert.Equal(t, 100*time.Millisecond, status.CurrentBackoff)
	assert.Equal(t, []string{"m6-id"}, q.completed)
}

func TestWorker_IdleAfterErrorUsesPollInterval(t *testing.T) {
	q := newFakeQueue("m1")
	w := newTestWorker(q, alwaysFail)

	w.poll(context.Background())
	interval, _ := w.nextSleep()
	assert.Equal(t, 200*time.Millisecond, interval)

	w.poll(context.Background())
	interval, wakeable := w.nextSleep()
	assert.Equal(t, 100*time.Millisecond, interval)
	assert.True(t, wakeable)

	// consecutive errors only reset on success
	assert.Equal(t, 1, w.Status().ConsecutiveErrors)
}

func TestWorker_ClaimErrorTriggersBackoff(t *testing.T) {
	q := newFakeQueue("m1")
	q.claimErr = errors.New("connection refused")
	w := newTestWorker(q, succeed)

	w.poll(context.Background())
	w.poll(context.Background())

	status := w.Status()
	assert.Equal(t, 2, status.ConsecutiveErrors)
	assert.Equal(t, 400*time.Millisecond, status.CurrentBackoff)
	assert.Empty(t, q.failed)
	assert.Empty(t, q.completed)
}

func TestWorker_MarkCompletedErrorTriggersBackoff(t *testing.T) {
	q := newFakeQueue("m1")
	q.completeErr = errors.New("database is locked")
	w := newTestWorker(q, succeed)

	w.poll(context.Background())

	assert.Equal(t, 1, w.Status().ConsecutiveErrors)
}

func TestWorker_ProcessorPanicIsRecorded(t *testing.T) {
	q := newFakeQueue("m1")
	w := newTestWorker(q, processor.Func(func(ctx context.Context, payloadRef string) error {
		panic("nil page tree")
	}))

	assert.NotPanics(t, func() { w.poll(context.Background()) })
	assert.Equal(t, "processor panic: nil page tree", q.failed["m1-id"])
	assert.Equal(t, 1, w.Status().ConsecutiveErrors)
}

func TestWorker_SetPollInterval(t *testing.T) {
	w := newTestWorker(newFakeQueue("m1"), alwaysFail)

	assert.ErrorIs(t, w.SetPollInterval(0), ErrInvalidInterval)
	assert.ErrorIs(t, w.SetPollInterval(-time.Second), ErrInvalidInterval)

	require.NoError(t, w.SetPollInterval(50*time.Millisecond))
	status := w.Status()
	assert.Equal(t, 50*time.Millisecond, status.PollInterval)
	assert.Equal(t, 50*time.Millisecond, status.CurrentBackoff)

	w.poll(context.Background())
	backoff := w.Status().CurrentBackoff
	assert.Equal(t, 100*time.Millisecond, backoff)

	// while recovering from errors the backoff is kept
	require.NoError(t, w.SetPollInterval(10*time.Millisecond))
	assert.Equal(t, backoff, w.Status().CurrentBackoff)
	assert.Equal(t, 10*time.Millisecond, w.Status().PollInterval)
}

func TestWorker_StartStop(t *testing.T) {
	w := newTestWorker(newFakeQueue(), succeed)
	require.NoError(t, w.SetPollInterval(5*time.Millisecond))

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Status().IsRunning)
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)

	w.Stop()
	assert.False(t, w.Status().IsRunning)

	// stopping twice is a no-op, restarting works
	w.Stop()
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestWorker_ContextCancelStopsLoop(t *testing.T) {
	w := newTestWorker(newFakeQueue(), succeed)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, w.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !w.Status().IsRunning }, time.Second, 5*time.Millisecond)
}

func TestWorker_StopWaitsForInFlightJob(t *testing.T) {
	q := newFakeQueue("slow-material")
	started := make(chan struct{})
	release := make(chan struct{})
	var jobCtxErr error

	w := newTestWorker(q, processor.Func(func(ctx context.Context, payloadRef string) error {
		close(started)
		<-release
		jobCtxErr = ctx.Err()
		return nil
	}))
	require.NoError(t, w.SetPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	<-started

	stopped := make(chan struct{})
	go func() {
		cancel()
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped

	assert.NoError(t, jobCtxErr, "shutdown must not cancel the in-flight job")
	assert.Equal(t, []string{"slow-material-id"}, q.completed)
}

func TestWorker_WakeCutsIdleSleep(t *testing.T) {
	q := newFakeQueue()
	done := make(chan string, 1)
	w := newTestWorker(q, processor.Func(func(ctx context.Context, payloadRef string) error {
		done <- payloadRef
		return nil
	}))
	require.NoError(t, w.SetPollInterval(time.Hour))

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	q.mu.Lock()
	q.pending = append(q.pending, &domain.Job{ID: "late-id", PayloadRef: "late"})
	q.mu.Unlock()
	w.Wake()

	select {
	case ref := <-done:
		assert.Equal(t, "late", ref)
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not trigger a poll")
	}
}

func TestWorker_WakeDroppedWhileBackingOff(t *testing.T) {
	q := newFakeQueue()
	q.claimErr = errors.New("connection refused")
	w := newTestWorker(q, succeed)

	w.poll(context.Background())
	w.Wake()
	assert.False(t, drainWake(w))

	q.mu.Lock()
	q.claimErr = nil
	q.mu.Unlock()
	w.poll(context.Background())

	w.Wake()
	assert.True(t, drainWake(w))
}

func TestWorker_FailureDiscardsQueuedWake(t *testing.T) {
	q := newFakeQueue()
	q.claimErr = errors.New("connection refused")
	w := newTestWorker(q, succeed)

	w.Wake()
	w.poll(context.Background())

	assert.False(t, drainWake(w))
	interval, wakeable := w.nextSleep()
	assert.Equal(t, 200*time.Millisecond, interval)
	assert.False(t, wakeable)
}

func newSQLiteStore(t *testing.T, maxAttempts int) *storage.Store {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{Path: filepath.Join(t.TempDir(), "queue.db")}, logger.NewNop().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := storage.NewStore(client.GetDB(), logger.NewNop().Logger, maxAttempts)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestWorker_AlwaysFailingJobEndsFailed(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t, 3)

	job, err := store.Enqueue(ctx, "material-broken")
	require.NoError(t, err)

	var calls atomic.Int32
	w := NewWorker(&Config{
		ID:     "it-worker",
		Logger: logger.NewNop().Logger,
		Queue:  store,
		Processor: processor.Func(func(ctx context.Context, payloadRef string) error {
			calls.Add(1)
			return errors.New("unsupported encoding")
		}),
		PollInterval:      time.Millisecond,
		MaxBackoff:        4 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool {
		j, err := store.GetJob(ctx, job.ID)
		return err == nil && j.Status == domain.JobStatusFailed
	}, 5*time.Second, 5*time.Millisecond)

	// give the loop a few more iterations to prove the job is not re-claimed
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, "unsupported encoding", final.LastError.String)
	assert.Equal(t, 3, w.Status().ConsecutiveErrors)
}

func TestWorker_DrainsQueue(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t, 3)

	for i := 0; i < 5; i++ {
		_, err := store.Enqueue(ctx, "material")
		require.NoError(t, err)
	}

	w := NewWorker(&Config{
		ID:                "drain",
		Logger:            logger.NewNop().Logger,
		Queue:             store,
		Processor:         succeed,
		PollInterval:      time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		stats, err := store.GetStats(ctx)
		return err == nil && stats.Completed == 5
	}, 5*time.Second, 5*time.Millisecond)
}
