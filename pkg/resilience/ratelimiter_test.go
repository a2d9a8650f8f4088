package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/wessley-tutor/pkg/fn"
)

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on call %d", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected rejection after burst exhausted")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("zero rate should not limit, rejected call %d", i)
		}
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.1, Burst: 1})
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error waiting ten seconds for a token")
	}
}

func TestLimiterStageWait(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1})
	stage := LimiterStageWait(l, fn.Stage[int, int](func(_ context.Context, v int) fn.Result[int] { return fn.Ok(v * 2) }))

	for i := 0; i < 3; i++ {
		if v, err := stage(context.Background(), i).Unwrap(); err != nil || v != i*2 {
			t.Fatalf("got %d %v", v, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	slow.Allow()
	s := LimiterStageWait(slow, fn.Stage[int, int](func(_ context.Context, v int) fn.Result[int] { return fn.Ok(v) }))
	if _, err := s(ctx, 1).Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
