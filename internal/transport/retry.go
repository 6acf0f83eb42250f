package transport

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	maxFloodRetries  = 3
	defaultFloodWait = 2 * time.Second
)

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// parseRetryAfter extracts the wait Telegram asks for in a 429 error.
func parseRetryAfter(err error) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	seconds, convErr := strconv.Atoi(m[1])
	if convErr != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func isFloodError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "429")
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withFloodRetry runs send, waiting and retrying while Telegram answers with
// flood control errors. Other errors are returned at once.
func (t *Telegram) withFloodRetry(ctx context.Context, op string, send func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxFloodRetries; attempt++ {
		err := send()
		if err == nil {
			if attempt > 1 {
				t.log.Info("sent after flood wait", "op", op, "attempts", attempt)
			}
			return nil
		}
		if !isFloodError(err) {
			return err
		}
		lastErr = err

		wait, ok := parseRetryAfter(err)
		if !ok {
			wait = defaultFloodWait
		}
		t.log.Warn("rate limit hit", "op", op, "attempt", attempt, "max", maxFloodRetries, "wait", wait)
		if err := t.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: cancelled during flood wait: %w", op, err)
		}
	}
	return fmt.Errorf("%s: max retries (%d) exceeded: %w", op, maxFloodRetries, lastErr)
}
