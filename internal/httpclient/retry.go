package httpclient

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls transient-failure retries. Connection errors,
// timeouts, 429, and 5xx are retryable; other 4xx never are.
type RetryPolicy struct {
	MaxAttempts int           // total tries including the first
	BaseBackoff time.Duration // retry n waits BaseBackoff * 2^(n-1), jittered
	MaxBackoff  time.Duration
	Max429Wait  time.Duration // cap on honoring Retry-After
}

// DefaultRetryPolicy: five attempts, 1s doubling capped at 32s, ±50% jitter.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseBackoff: 1 * time.Second,
	MaxBackoff:  32 * time.Second,
	Max429Wait:  60 * time.Second,
}

// DoWithRetry performs req, retrying transient failures per policy. Only for
// bodyless requests; callers with bodies use DoWithRetryFunc and rebuild per
// attempt. Caller closes resp.Body when err is nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	return DoWithRetryFunc(ctx, client, policy, func() (*http.Request, error) {
		clone := req.Clone(ctx)
		clone.Body = nil
		return clone, nil
	})
}

// DoWithRetryFunc rebuilds the request for each attempt. Every attempt takes
// a per-host slot from hostSlots before sending, so concurrent callers
// cannot pile onto one upstream.
func DoWithRetryFunc(ctx context.Context, client *http.Client, policy RetryPolicy, build func() (*http.Request, error)) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(policy, attempt, lastWait(lastErr))):
			}
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		release, err := hostSlots.acquire(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		release()
		if err != nil {
			lastErr = err
			continue // connect error or timeout: retry
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		wait := time.Duration(0)
		if resp.StatusCode == http.StatusTooManyRequests {
			wait = parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = &StatusError{Code: resp.StatusCode, Wait: wait}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ctx.Err()
}

// StatusError reports a retryable status that exhausted its attempts.
type StatusError struct {
	Code int
	Wait time.Duration
}

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.Code)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		http.StatusInternalServerError:
		return true
	}
	return false
}

// backoff computes the wait before retry n: exponential with ±50% jitter,
// or the server-requested wait when larger.
func backoff(policy RetryPolicy, attempt int, serverWait time.Duration) time.Duration {
	d := policy.BaseBackoff << (attempt - 1)
	if d > policy.MaxBackoff || d <= 0 {
		d = policy.MaxBackoff
	}
	jittered := d/2 + time.Duration(rand.Int63n(int64(d)))
	if serverWait > jittered {
		return serverWait
	}
	return jittered
}

func lastWait(err error) time.Duration {
	if se, ok := err.(*StatusError); ok {
		return se.Wait
	}
	return 0
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date), capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1 * time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 1 * time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
