package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(context.Context) error { return errors.New("fail") }
func passing(context.Context) error { return nil }

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Call(ctx, failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	called := false
	err := b.Call(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker should not run f")
	}
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, passing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("success should reset the failure count, got %v", b.State())
	}
}

func TestBreakerHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("expected open")
	}

	now = now.Add(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	if err := b.Call(ctx, passing); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("successful probe should close, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbeFails(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(time.Minute)
	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("failed probe should reopen, got %v", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	_ = b.Call(context.Background(), func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Fatalf("caller cancellation should not trip, got %v", b.State())
	}
}

func TestBreakerCustomFailure(t *testing.T) {
	ignored := errors.New("bad request")
	b := NewBreaker(BreakerOpts{FailThreshold: 1, IsFailure: func(err error) bool { return !errors.Is(err, ignored) }})
	_ = b.Call(context.Background(), func(context.Context) error { return ignored })
	if b.State() != StateClosed {
		t.Fatalf("ignored error should not trip, got %v", b.State())
	}
}

func TestBreakerStateChanges(t *testing.T) {
	now := time.Now()
	var changes []string
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second,
		OnStateChange: func(from, to State) { changes = append(changes, from.String()+"->"+to.String()) }})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(time.Second)
	_ = b.Call(ctx, passing)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v", changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes = %v, want %v", changes, want)
		}
	}
}

func TestDo(t *testing.T) {
	b := NewBreaker(DefaultBreakerOpts)
	v, err := Do(context.Background(), b, func(context.Context) (string, error) { return "answer", nil })
	if err != nil || v != "answer" {
		t.Fatalf("got %q %v", v, err)
	}
}

func TestStateString(t *testing.T) {
	if StateHalfOpen.String() != "half-open" || State(9).String() != "unknown" {
		t.Fatal("bad state names")
	}
}
