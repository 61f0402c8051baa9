// Package retry implements the escalating-fail_pause/opt_retries backoff
// discipline shared by the Work Fetcher and Submit Worker (spec.md §4.2,
// §4.6, §7): one attempt plus up to opt_retries retries of the whole
// operation, sleeping fail_pause seconds between them (initially 5, +5 per consecutive
// failure), reset at the start of each new operation. This wires
// cenkalti/backoff's Retry harness around a custom linear BackOff,
// because the library's default exponential curve does not match the
// spec's linear escalation (see DESIGN.md).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the final error once opt_retries is exceeded; the
// caller treats this as fatal (spec.md §7 "Fatal").
var ErrExhausted = errors.New("retry: attempts exhausted")

// LinearBackOff implements backoff.BackOff with cgminer's fail_pause
// escalation: Base seconds on the first failure, +Increment for each
// consecutive failure thereafter.
type LinearBackOff struct {
	Base      time.Duration
	Increment time.Duration

	current time.Duration
}

// NextBackOff returns the next pause duration and advances the escalation.
func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.current == 0 {
		b.current = b.Base
	}
	d := b.current
	b.current += b.Increment
	return d
}

// Reset returns the escalation to its starting point (called on success).
func (b *LinearBackOff) Reset() {
	b.current = 0
}

// DefaultBackOff returns the spec's default escalation: 5s, +5s per
// consecutive failure (spec.md §4.2).
func DefaultBackOff() *LinearBackOff {
	return &LinearBackOff{Base: 5 * time.Second, Increment: 5 * time.Second}
}

// Do runs fn, retrying with LinearBackOff escalation on error until it
// succeeds, the context is cancelled, or retries is exceeded. retries<0
// means infinite retries (spec.md §4.2 opt_retries=-1). On exhaustion,
// the returned error wraps ErrExhausted.
func Do(ctx context.Context, retries int, fn func() error) error {
	var bo backoff.BackOff = DefaultBackOff()
	if retries >= 0 {
		bo = backoff.WithMaxRetries(bo, uint64(retries))
	}
	bo = backoff.WithContext(bo, ctx)

	err := backoff.Retry(fn, bo)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	return nil
}

// OnRetry returns a backoff.Notify compatible callback that forwards
// each failed attempt to the supplied logging function, e.g. for
// emitting "Retrying after %d seconds" style log lines (spec.md §7).
func OnRetry(log func(err error, pause time.Duration)) backoff.Notify {
	return func(err error, pause time.Duration) {
		log(err, pause)
	}
}
