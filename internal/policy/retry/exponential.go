// Package retry decides when a failed marketplace request is worth repeating
// and how long to wait first.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"
)

// Config tunes an ExponentialPolicy. Zero values take the defaults.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ExponentialPolicy retries with jittered, capped exponential backoff.
type ExponentialPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponential builds a policy. Defaults: 3 attempts, 500ms base, 8s cap.
func NewExponential(cfg Config) *ExponentialPolicy {
	p := &ExponentialPolicy{
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    8 * time.Second,
	}
	if cfg.MaxAttempts > 0 {
		p.maxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.baseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.maxDelay = cfg.MaxDelay
	}
	return p
}

// MaxAttempts is the total number of tries allowed per endpoint.
func (p *ExponentialPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryableStatus reports whether an HTTP status is throttling or a server
// fault.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// ShouldRetryStatus reports whether another try is allowed after attempt
// (1-based) ended with the given status.
func (p *ExponentialPolicy) ShouldRetryStatus(code, attempt int) bool {
	return attempt < p.maxAttempts && RetryableStatus(code)
}

// ShouldRetry decides whether a transport error is retryable. Only timeouts
// are; refused connections and DNS failures move on immediately.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Backoff returns the wait before the try following attempt (1-based).
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Wait sleeps for Backoff(attempt) or until ctx ends.
func (p *ExponentialPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
