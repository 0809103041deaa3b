package model

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Client = (*ScriptedModel)(nil)
	_ Client = (*RateLimited)(nil)
	_ Client = (*ClientFunc)(nil)
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 16*time.Second, p.Delay(5))
	assert.Equal(t, time.Minute, p.Delay(10))
}

func TestInvokeWithRetry_RecoversFromTransient(t *testing.T) {
	m := NewScriptedModel("m").Enqueue(
		Step{Err: Transient("test", errors.New("429"))},
		Step{Err: Transient("test", errors.New("timeout"))},
		Step{Text: "ok"},
	)
	p := DefaultRetryPolicy()
	p.Sleep = noSleep

	var seen []int
	resp, err := InvokeWithRetry(context.Background(), m, Request{}, p, func(a Attempt) { seen = append(seen, a.N) })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, resp.Usage.Calls)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestInvokeWithRetry_Exhausted(t *testing.T) {
	m := NewScriptedModel("m")
	m.SetFallback(func(Request) (Response, error) { return Response{}, Transient("test", errors.New("503")) })

	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 2}
	var delays []time.Duration
	p.Sleep = func(_ context.Context, d time.Duration) error { delays = append(delays, d); return nil }

	_, err := InvokeWithRetry(context.Background(), m, Request{}, p, nil)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, IsTransient(err))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	assert.Len(t, m.Calls(), 3)
}

func TestInvokeWithRetry_FatalStopsImmediately(t *testing.T) {
	m := NewScriptedModel("m").Enqueue(Step{Err: Fatal("test", errors.New("401"))}, Step{Text: "never"})
	_, err := InvokeWithRetry(context.Background(), m, Request{}, RetryPolicy{MaxAttempts: 5, Sleep: noSleep}, nil)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, 1, m.Remaining())
}

func TestInvokeWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	m := NewScriptedModel("m")
	m.SetFallback(func(Request) (Response, error) { return Response{}, Transient("test", errors.New("429")) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := InvokeWithRetry(ctx, m, Request{}, RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	assert.True(t, IsTransient(Classify("p", 429, errors.New("x"))))
	assert.True(t, IsTransient(Classify("p", 503, errors.New("x"))))
	assert.False(t, IsTransient(Classify("p", 400, errors.New("x"))))
	assert.True(t, IsTransient(Classify("p", 0, &net.OpError{Op: "dial", Err: errors.New("refused")})))
	assert.ErrorIs(t, Classify("p", 0, context.Canceled), context.Canceled)
	assert.ErrorIs(t, Classify("p", 0, errors.New("bad")), ErrFatal)
	assert.Nil(t, Classify("p", 500, nil))
}

func TestScriptedModel_AddResponseAndExhaustion(t *testing.T) {
	m := NewScriptedModel("m")
	m.AddResponse("hello", "world")

	resp, err := m.Invoke(context.Background(), Request{Messages: []Message{User("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)

	_, err = m.Invoke(context.Background(), Request{Messages: []Message{User("other")}})
	assert.ErrorIs(t, err, ErrScriptExhausted)
}

func TestRateLimited_SharedLimiter(t *testing.T) {
	limiter := NewLimiter(600, 1) // one token every 100ms
	a := NewRateLimited(NewScriptedModel("a").EnqueueText("1", "2"), limiter)
	b := NewRateLimited(NewScriptedModel("b").EnqueueText("1"), limiter)

	start := time.Now()
	for _, c := range []Client{a, b, a} {
		_, err := c.Invoke(context.Background(), Request{})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimited_QueuesUntilDeadline(t *testing.T) {
	limiter := NewLimiter(1, 1)
	require.True(t, limiter.Allow())

	c := NewRateLimited(NewScriptedModel("a").EnqueueText("1"), limiter)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Invoke(ctx, Request{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestRequest_Helpers(t *testing.T) {
	r := Request{System: "sys", Messages: []Message{User("a"), Assistant("b"), User("c")}}
	assert.Equal(t, "c", r.LastUserText())
	assert.Equal(t, "sys\n[user] a\n[assistant] b\n[user] c", r.Transcript())
}
