package eventlog

import (
	"context"
	"errors"
	"time"
)

// RetryOnConflict retries issue while it keeps failing with a
// *ConflictError, backing off exponentially between attempts (10ms,
// 20ms, 40ms, ...). It stops and returns the error unchanged as soon as
// issue fails with anything else, or after maxAttempts. Callers use
// this to automate the documented re-replay-and-retry loop after an
// AggregateVersionConflict from a stale read, rather than hand-writing
// it; it does not change Pipeline.IssueCommand's own no-retry contract.
//
// Adapted from the teacher repo's BaseRepository.RetryOnConflict.
func RetryOnConflict(ctx context.Context, maxAttempts int, issue func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := issue(ctx)
		if err == nil {
			return nil
		}

		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		lastErr = err

		backoff := 10 * time.Millisecond * (1 << uint(attempt))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
