package guardrail

import (
	"context"
	"time"

	"github.com/ent0n29/soundboard/internal/speech"
)

var ErrTimeout = speech.Errorf(speech.CodeTimeout, "operation timed out")

// WithTimeout races fn against a timer. A non-positive d disables the limit.
// On expiry fn is left running and its result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case o := <-done:
		return o.val, o.err
	case <-timer.C:
		return zero, speech.Errorf(speech.CodeTimeout, "operation exceeded %s", d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
