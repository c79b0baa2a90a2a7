// Package retry implements the bounded synchronous retry helper (C9):
// fixed-delay retries around external calls (RPC, DA fetch, outbound HTTP)
// so transient I/O failures (§7) don't abort a tick iteration outright.
package retry

import (
	"fmt"
	"log/slog"
	"time"
)

// Do calls f up to maxAttempts times, sleeping delay between attempts. It
// returns on the first success; if every attempt fails it returns the last
// error, wrapped with the attempt count and name for diagnosis.
func Do(name string, maxAttempts int, delay time.Duration, f func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := f(); err != nil {
			lastErr = err
			slog.Warn("retryable call failed",
				"name", name,
				"attempt", attempt,
				"maxAttempts", maxAttempts,
				"error", err,
			)
			if attempt < maxAttempts {
				time.Sleep(delay)
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("%s: exhausted %d attempts: %w", name, maxAttempts, lastErr)
}
