package processor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a processor does not finish before its deadline
var ErrTimeout = errors.New("processor timed out")

// Processor performs the work for a single job
type Processor interface {
	Process(ctx context.Context, payloadRef string) error
}

// Func adapts a plain function to Processor
type Func func(ctx context.Context, payloadRef string) error

// Process calls f
func (f Func) Process(ctx context.Context, payloadRef string) error {
	return f(ctx, payloadRef)
}

type timeoutProcessor struct {
	next    Processor
	timeout time.Duration
}

// WithTimeout bounds every call to p by d. Expiry is reported as ErrTimeout.
// A non-positive d returns p unchanged.
func WithTimeout(p Processor, d time.Duration) Processor {
	if d <= 0 {
		return p
	}
	return &timeoutProcessor{next: p, timeout: d}
}

func (t *timeoutProcessor) Process(ctx context.Context, payloadRef string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.next.Process(ctx, payloadRef)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, t.timeout, err)
	}
	return err
}
