package model

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter builds the shared outbound limiter for requestsPerMinute.
// A non-positive rate disables limiting.
func NewLimiter(requestsPerMinute float64, burst int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/requestsPerMinute)), burst)
}

// RateLimited queues calls on a limiter shared by every client of a run, so
// the aggregate request rate holds regardless of how many cases are in flight.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next with limiter.
func NewRateLimited(next Client, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

// Invoke implements Client. A call that cannot get a token before the
// context deadline stays queued until the deadline and then fails with the
// context's error.
func (r *RateLimited) Invoke(ctx context.Context, req Request) (Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				if _, ok := ctx.Deadline(); !ok {
					return Response{}, err
				}
				<-ctx.Done()
			}
			return Response{}, ctx.Err()
		}
	}
	return r.next.Invoke(ctx, req)
}

// Info implements Client.
func (r *RateLimited) Info() Info { return r.next.Info() }
