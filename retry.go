package segconv

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// retryConfig is the exponential backoff policy for predictor requests.
type retryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

func defaultRetryConfig(maxRetries int) retryConfig {
	return retryConfig{
		MaxRetries:      maxRetries,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// delay computes the delay before the given retry (0 based) using exponential backoff.
func (c retryConfig) delay(retry int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(retry)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// withRetry calls fn until it succeeds, returns a permanent error, the retries are exhausted or ctx
// is done.
func withRetry(ctx context.Context, c retryConfig, name string, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			d := c.delay(attempt - 1)
			log.Printf("%s retry attempt %d/%d after %v: %v", name, attempt+1, c.MaxRetries+1, d, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}

		err = fn(attempt)
		if err == nil {
			return nil
		}
		if p, ok := err.(permanentError); ok {
			return p.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
