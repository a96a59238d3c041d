package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestGuardForcesConcurrencyToOne(t *testing.T) {
	assert.Equal(t, 1, Guard(context.Background(), 1))
	assert.Equal(t, 1, Guard(context.Background(), 8))
	assert.Equal(t, 1, Guard(context.Background(), 0))
}

func TestPolicyWaitUnknownClassIsNoop(t *testing.T) {
	p := NewPolicy(time.Hour, time.Hour, time.Hour)
	err := p.Wait(context.Background(), Class("unknown"))
	assert.NoError(t, err)
}

func TestPolicyWaitEnforcesDelayBetweenConsecutiveCalls(t *testing.T) {
	p := NewPolicy(time.Millisecond, 40*time.Millisecond, time.Millisecond)
	require.NoError(t, p.Wait(context.Background(), Download))

	start := time.Now()
	require.NoError(t, p.Wait(context.Background(), Download))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitSessionBoundaryFirstCallDoesNotBlock(t *testing.T) {
	p := NewPolicy(time.Millisecond, time.Millisecond, 50*time.Millisecond)
	start := time.Now()
	require.NoError(t, p.WaitSessionBoundary(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitSessionBoundaryEnforcesDelayBetweenCalls(t *testing.T) {
	p := NewPolicy(time.Millisecond, time.Millisecond, 40*time.Millisecond)
	require.NoError(t, p.WaitSessionBoundary(context.Background()))

	start := time.Now()
	require.NoError(t, p.WaitSessionBoundary(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitSessionBoundaryRespectsContextCancellation(t *testing.T) {
	p := NewPolicy(time.Millisecond, time.Millisecond, time.Hour)
	require.NoError(t, p.WaitSessionBoundary(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.WaitSessionBoundary(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryableTransportSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	})
	rt := NewRetryTransport(inner, 3, time.Millisecond, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestRetryableTransportRetriesOn5xxThenSucceeds(t *testing.T) {
	calls := 0
	var retries []int
	inner := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return &http.Response{StatusCode: 503, Body: http.NoBody, Status: "503 Service Unavailable"}, nil
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	})
	rt := NewRetryTransport(inner, 3, time.Millisecond, func(attempt int) { retries = append(retries, attempt) })

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryableTransportExhaustsAttemptsOnPersistent5xx(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 500, Body: http.NoBody, Status: "500 Internal Server Error"}, nil
	})
	rt := NewRetryTransport(inner, 3, time.Millisecond, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	_, err := rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryableTransportRetriesOnTransportError(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	inner := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 2 {
			return nil, boom
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	})
	rt := NewRetryTransport(inner, 3, time.Millisecond, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRetryableTransportDoesNotRetry4xx(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 404, Body: http.NoBody}, nil
	})
	rt := NewRetryTransport(inner, 3, time.Millisecond, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, 1, calls, "4xx responses are not retried, only 5xx and transport errors")
}
