package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("registry unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open state, got %v", b.State())
	}
}

func TestTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}

	if b.Allow() {
		t.Fatal("expected open breaker to reject")
	}

	now = now.Add(2 * time.Second)

	if !b.Allow() {
		t.Fatal("expected half-open breaker to allow one call")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Second)

	if !b.Allow() {
		t.Fatal("expected half-open to allow")
	}
	b.RecordFailure()

	if b.Allow() {
		t.Fatal("expected reopened breaker to reject")
	}
}

func TestSuccessClosesAndResets(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	now = now.Add(2 * time.Second)

	_ = b.Allow()
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Fatalf("expected closed after success, got %v", b.State())
	}

	// A single new failure must not re-open below the threshold.
	b.RecordFailure()
	if !b.Allow() {
		t.Fatal("expected closed breaker to allow below threshold")
	}
}

func TestOnOpenHookFiresOncePerTransition(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	opened := 0
	b.OnOpen(func() { opened++ })

	b.RecordFailure()
	b.RecordFailure()

	if opened != 1 {
		t.Fatalf("expected 1 open transition, got %d", opened)
	}
}
