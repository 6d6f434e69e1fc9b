package fileops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var removeAll = os.RemoveAll

// ErrRetriesExhausted is wrapped together with the last filesystem error
// when RemoveAllWithRetry gives up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RemoveAllWithRetry removes path recursively, retrying up to attempts
// times with a fixed backoff. Killed processes on some platforms release
// file handles late, so the first attempts may fail.
func RemoveAllWithRetry(ctx context.Context, path string, attempts int, backoff time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = removeAll(path)
		if lastErr == nil {
			if _, err := statFile(path); errors.Is(err, os.ErrNotExist) {
				return nil
			}
			lastErr = fmt.Errorf("%s still exists after removal", path)
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("remove %s after %d attempts: %w: %w", path, attempts, ErrRetriesExhausted, lastErr)
}
