// Package ratelimit provides per-request-class inter-request delays,
// linear (base delay × attempt) backoff retries, and the forced
// concurrency-1 guard.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blampe/shelfpress/internal/logging"
	"golang.org/x/time/rate"
)

// Class names a request category with its own minimum inter-request delay.
type Class string

const (
	// Discovery covers search-pagination requests (default 1.5s).
	Discovery Class = "discovery"
	// Download paces book boundaries (default 10s between books). The
	// job controller waits on it once per book; the chapter/asset
	// requests within one book are not individually throttled.
	Download Class = "download"
)

// Policy holds one limiter per request class plus the session-reuse gate.
type Policy struct {
	mu       sync.Mutex
	limiters map[Class]*rate.Limiter

	sessionReuseDelay time.Duration
	lastSessionUse    time.Time
}

// NewPolicy creates a Policy with the given per-class delays.
func NewPolicy(discoveryDelay, downloadDelay, sessionReuseDelay time.Duration) *Policy {
	return &Policy{
		limiters: map[Class]*rate.Limiter{
			Discovery: rate.NewLimiter(rate.Every(discoveryDelay), 1),
			Download:  rate.NewLimiter(rate.Every(downloadDelay), 1),
		},
		sessionReuseDelay: sessionReuseDelay,
	}
}

// Wait blocks until the class's limiter admits the next request.
func (p *Policy) Wait(ctx context.Context, class Class) error {
	p.mu.Lock()
	limiter := p.limiters[class]
	p.mu.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// WaitSessionBoundary enforces the minimum delay since the last
// session-impacting request.
func (p *Policy) WaitSessionBoundary(ctx context.Context) error {
	p.mu.Lock()
	elapsed := time.Since(p.lastSessionUse)
	wait := p.sessionReuseDelay - elapsed
	p.lastSessionUse = time.Now()
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Guard forces concurrency to 1 and logs a warning if the caller asked for
// more.
func Guard(ctx context.Context, requested int) int {
	if requested > 1 {
		logging.Log(ctx).Warn("forcing concurrency to 1; the sliding-token scheme is incompatible with concurrent in-flight requests on one session", "requested", requested)
	}
	return 1
}

// retryableTransport retries transport errors and 5xx responses up to
// maxAttempts times with base delay*attempt backoff.
type retryableTransport struct {
	http.RoundTripper
	maxAttempts int
	baseDelay   time.Duration
	onRetry     func(attempt int)
}

// NewRetryTransport wraps rt with a retry policy: transport errors and
// 5xx responses retry up to maxAttempts times with delay baseDelay*attempt.
func NewRetryTransport(rt http.RoundTripper, maxAttempts int, baseDelay time.Duration, onRetry func(attempt int)) http.RoundTripper {
	return &retryableTransport{RoundTripper: rt, maxAttempts: maxAttempts, baseDelay: baseDelay, onRetry: onRetry}
}

func (t *retryableTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		resp, err := t.RoundTripper.RoundTrip(r)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %s", resp.Status)
		} else {
			lastErr = err
		}

		if attempt == t.maxAttempts {
			break
		}
		if t.onRetry != nil {
			t.onRetry(attempt)
		}

		delay := t.baseDelay * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			return nil, r.Context().Err()
		}
	}
	return nil, lastErr
}
