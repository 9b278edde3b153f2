package utils

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"
)

// RetryWithBackoff runs op up to maxAttempts times, sleeping between
// attempts with exponential backoff starting at baseDelay. It returns nil on
// the first success, the last error once attempts are exhausted, and
// ctx.Err() if the context ends while waiting.
func RetryWithBackoff(
	ctx context.Context,
	logger golog.Logger,
	maxAttempts int,
	baseDelay time.Duration,
	op func(ctx context.Context) error,
) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			logger.Debugw("retrying after backoff", "attempt", attempt+1, "delay", delay)
			if !goutils.SelectContextOrWait(ctx, delay) {
				return ctx.Err()
			}
		}
		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
