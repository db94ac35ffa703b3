package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

var (
	// ErrTimeout is returned when a capability call exceeds the task timeout.
	ErrTimeout = errors.New("invocation timed out")
	// ErrPanic wraps a panic raised by capability code.
	ErrPanic = errors.New("capability panicked")
)

type outcome[T any] struct {
	value T
	err   error
}

// invoke runs fn in its own goroutine, converting panics to ErrPanic and
// abandoning the call once timeout elapses. A zero timeout only honours
// ctx. An abandoned call keeps running until fn returns, but its worker
// slot is released.
func invoke[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
