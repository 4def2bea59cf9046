package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// RetryPolicy controls exponential backoff for idempotent statements.
type RetryPolicy struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	BackoffFactor      float64
	SlowQueryThreshold time.Duration
}

// DefaultRetryPolicy retries three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         3,
		BaseDelay:          100 * time.Millisecond,
		MaxDelay:           2 * time.Second,
		BackoffFactor:      2.0,
		SlowQueryThreshold: 500 * time.Millisecond,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// executeWithRetry runs operation, retrying transient failures. Only use it
// for statements that are safe to repeat.
func executeWithRetry(ctx context.Context, policy RetryPolicy, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.delay(attempt)
			logrus.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
				"error":   lastErr,
			}).Warn("Retrying database operation")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		err := operation()
		if duration := time.Since(start); duration > policy.SlowQueryThreshold {
			logrus.WithFields(logrus.Fields{
				"duration": duration,
				"attempt":  attempt,
			}).Warn("Slow database query detected")
		}

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("database operation failed after %d retries: %w", policy.MaxRetries, lastErr)
}

// isRetryableError reports serialization failures, deadlocks and dropped
// connections.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "40001", pqErr.Code == "40P01":
			return true
		case pqErr.Code.Class() == "08":
			return true
		}
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"server shutdown",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
