package model

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds exponential backoff for transient failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns 5 attempts, 1s initial delay doubling up to 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Minute, Factor: 2}
}

// Delay returns the wait before attempt n+1 (n starts at 1).
func (p RetryPolicy) Delay(n int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.InitialDelay)
	for i := 1; i < n; i++ {
		d *= factor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Attempt describes one call made by InvokeWithRetry.
type Attempt struct {
	N        int
	Response Response
	Err      error
	Latency  time.Duration
}

// RetryExhaustedError is returned once every attempt failed transiently.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// InvokeWithRetry calls c until it succeeds, fails fatally, the context ends
// or the policy runs out of attempts. observe (optional) sees every attempt.
func InvokeWithRetry(ctx context.Context, c Client, req Request, p RetryPolicy, observe func(Attempt)) (Response, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var last error
	for n := 1; n <= maxAttempts; n++ {
		start := time.Now()
		resp, err := c.Invoke(ctx, req)
		latency := time.Since(start)
		resp.Usage.Latency = latency
		resp.Usage.Calls = 1

		if observe != nil {
			observe(Attempt{N: n, Response: resp, Err: err, Latency: latency})
		}

		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return Response{}, err
		}

		last = err
		if n == maxAttempts {
			break
		}
		if serr := p.sleep(ctx, p.Delay(n)); serr != nil {
			return Response{}, serr
		}
	}

	return Response{}, &RetryExhaustedError{Attempts: maxAttempts, Last: last}
}
