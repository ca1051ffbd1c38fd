// Package cancellation runs operation implementations under a deadline with
// cooperative cancellation.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

const logPrefix = "cancellation:cancellation"

var (
	// ErrTimeout is returned when the deadline elapses before fn returns.
	ErrTimeout = errors.New("operation timed out")
	// ErrCancelled is returned when the caller's context ends before fn returns.
	ErrCancelled = errors.New("operation cancelled")
)

// PanicError carries a panic recovered from fn.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Func is the unit of work run by Run.
type Func func(ctx context.Context) (any, error)

type outcome struct {
	value any
	err   error
}

// Run calls fn in its own goroutine with a context that is cancelled when timeout
// elapses or ctx ends. A timeout of zero or less adds no deadline beyond ctx.
//
// Once the context is cancelled Run waits up to grace for fn to return. If fn
// finishes within grace its own result is discarded and Run reports ErrTimeout or
// ErrCancelled. Cancellation is advisory: an fn that ignores its context keeps
// running after Run returns, and its eventual result is dropped.
//
// fn is never started when ctx is already done.
func Run(ctx context.Context, timeout, grace time.Duration, fn Func) (any, error) {
	if ctx.Err() != nil {
		return nil, stopReason(ctx)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := fn(runCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		// A result that races with the deadline still counts when it arrived first,
		// unless it is just the context error echoed back.
		if out.err != nil && runCtx.Err() != nil && isContextError(out.err) {
			return nil, stopReason(ctx)
		}
		return out.value, out.err
	case <-runCtx.Done():
	}

	reason := stopReason(ctx)

	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-done:
			slog.Debug(fmt.Sprintf("%s - operation stopped within grace after %v", logPrefix, reason))
		case <-timer.C:
			slog.Warn(fmt.Sprintf("%s - operation still running %s after %v, abandoning it", logPrefix, grace, reason))
		}
	}
	return nil, reason
}

// stopReason treats an expired parent deadline as a timeout and only an explicit
// cancel of the parent as cancellation.
func stopReason(parent context.Context) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return ErrCancelled
	}
	return ErrTimeout
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
