package infra

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Deduplicator Tests
// =============================================================================

func TestNewDeduplicator(t *testing.T) {
	d := NewDeduplicator[string]()
	if d == nil {
		t.Fatal("NewDeduplicator returned nil")
	}
	if d.inflight == nil {
		t.Error("inflight map is nil")
	}
}

func TestDeduplicator_Do_SingleRequest(t *testing.T) {
	d := NewDeduplicator[string]()

	called := 0
	result, shared, err := d.Do(context.Background(), "DE123456789", func() (string, error) {
		called++
		return "valid", nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if shared {
		t.Error("expected shared=false for single request")
	}
	if result != "valid" {
		t.Errorf("expected result='valid', got %q", result)
	}
	if called != 1 {
		t.Errorf("expected function to be called once, got %d", called)
	}
}

func TestDeduplicator_Do_ConcurrentRequests(t *testing.T) {
	d := NewDeduplicator[string]()

	var callCount int32
	var sharedCount int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	// The leader blocks until every follower has joined.
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, shared, err := d.Do(context.Background(), "shared-key", func() (string, error) {
				atomic.AddInt32(&callCount, 1)
				<-release
				return "shared-value", nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if result != "shared-value" {
				t.Errorf("expected 'shared-value', got %q", result)
			}
			if shared {
				atomic.AddInt32(&sharedCount, 1)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		c := d.inflight["shared-key"]
		joined := c != nil && c.waiters == 10
		d.mu.Unlock()
		if joined || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("expected function to be called once, got %d", callCount)
	}
	if atomic.LoadInt32(&sharedCount) != 9 {
		t.Errorf("expected 9 shared results, got %d", sharedCount)
	}
}

func TestDeduplicator_Do_DifferentKeys(t *testing.T) {
	d := NewDeduplicator[string]()

	var callCount int32
	var wg sync.WaitGroup

	for _, key := range []string{"DE1", "FR1", "IT1", "NL1", "AT1"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, _, err := d.Do(context.Background(), k, func() (string, error) {
				atomic.AddInt32(&callCount, 1)
				time.Sleep(10 * time.Millisecond)
				return k, nil
			})
			if err != nil {
				t.Errorf("unexpected error for key %s: %v", k, err)
			}
		}(key)
	}

	wg.Wait()

	if atomic.LoadInt32(&callCount) != 5 {
		t.Errorf("expected 5 calls for different keys, got %d", callCount)
	}
}

func TestDeduplicator_Do_ErrorPropagation(t *testing.T) {
	d := NewDeduplicator[*int]()

	expectedErr := errors.New("test error")
	result, _, err := d.Do(context.Background(), "error-key", func() (*int, error) {
		return nil, expectedErr
	})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestDeduplicator_Do_ContextCancellation(t *testing.T) {
	d := NewDeduplicator[string]()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _, _ = d.Do(context.Background(), "slow-key", func() (string, error) {
			close(started)
			<-release
			return "slow-value", nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := d.Do(ctx, "slow-key", func() (string, error) {
		return "should-not-call", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled error, got %v", err)
	}
}

func TestDeduplicator_Do_StarterCancelLeavesCallRunning(t *testing.T) {
	d := NewDeduplicator[string]()

	started := make(chan struct{})
	release := make(chan struct{})
	fn := func() (string, error) {
		close(started)
		<-release
		return "valid", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := d.Do(ctx, "DE123456789", fn)
		first <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		result, shared, err := d.Do(context.Background(), "DE123456789", func() (string, error) {
			return "second call", nil
		})
		if err != nil || !shared {
			t.Errorf("shared=%v err=%v", shared, err)
		}
		second <- result
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("starter should see its own cancellation, got %v", err)
	}

	close(release)
	if got := <-second; got != "valid" {
		t.Errorf("second caller got %q, want the shared result", got)
	}
}

func TestDeduplicator_Do_PanicBecomesError(t *testing.T) {
	d := NewDeduplicator[string]()

	_, _, err := d.Do(context.Background(), "key", func() (string, error) {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected panic error, got %v", err)
	}
	if d.InFlight() != 0 {
		t.Error("panicked call should leave the in-flight set")
	}
}

func TestDeduplicator_InFlight(t *testing.T) {
	d := NewDeduplicator[string]()

	if d.InFlight() != 0 {
		t.Errorf("expected 0 in-flight, got %d", d.InFlight())
	}

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _, _ = d.Do(context.Background(), "slow-key", func() (string, error) {
			close(started)
			<-release
			return "value", nil
		})
	}()

	<-started
	if d.InFlight() != 1 {
		t.Errorf("expected 1 in-flight, got %d", d.InFlight())
	}

	close(release)
	<-finished

	if d.InFlight() != 0 {
		t.Errorf("expected 0 in-flight after completion, got %d", d.InFlight())
	}
}

// =============================================================================
// CircuitBreaker Tests
// =============================================================================

func newTestBreaker(clock *fakeClock, transitions *[]string) *CircuitBreaker {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     10 * time.Second,
		HalfOpenMax:      2,
		OnStateChange: func(from, to CircuitState) {
			if transitions != nil {
				*transitions = append(*transitions, from.String()+"->"+to.String())
			}
		},
	})
	cb.now = clock.Now
	return cb
}

func TestNewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker()
	if cb == nil {
		t.Fatal("NewCircuitBreaker returned nil")
	}
	if cb.cfg.FailureThreshold != 5 {
		t.Errorf("expected FailureThreshold=5, got %d", cb.cfg.FailureThreshold)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("expected ResetTimeout=30s, got %v", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != 2 {
		t.Errorf("expected HalfOpenMax=2, got %d", cb.cfg.HalfOpenMax)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state closed, got %s", cb.State())
	}
}

func TestNewCircuitBreakerWithConfig_Defaults(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{FailureThreshold: 7})
	if cb.cfg.FailureThreshold != 7 {
		t.Errorf("expected FailureThreshold=7, got %d", cb.cfg.FailureThreshold)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("expected default ResetTimeout, got %v", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != 2 {
		t.Errorf("expected default HalfOpenMax, got %d", cb.cfg.HalfOpenMax)
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := newTestBreaker(clock, &transitions)

	for range 3 {
		if !cb.Allow() {
			t.Fatal("closed breaker should allow requests")
		}
		cb.RecordFailure()
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after threshold, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker should reject requests")
	}

	clock.Advance(11 * time.Second)
	if !cb.Allow() {
		t.Fatal("breaker should allow a trial request after the reset timeout")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)

	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(11 * time.Second)
	cb.Allow()
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Errorf("expected open after half-open failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenMaxRequests(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)

	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(11 * time.Second)

	allowed := 0
	for range 5 {
		if cb.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("expected 2 trial requests in half-open, got %d", allowed)
	}
}

func TestCircuitBreaker_RecordAbortReturnsTrialSlot(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)

	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(11 * time.Second)

	// Trial requests that never reach the service must not use up the half-open budget.
	for range 5 {
		if !cb.Allow() {
			t.Fatal("aborted trials should leave room for another")
		}
		cb.RecordAbort()
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("state = %s, want half-open", cb.State())
	}

	cb.Allow()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed after a successful trial", cb.State())
	}
}

func TestCircuitBreaker_RecordAbortWhenClosed(t *testing.T) {
	cb := newTestBreaker(newFakeClock(), nil)
	cb.RecordFailure()
	cb.RecordAbort()

	stats := cb.Stats()
	if stats.State != "closed" || stats.ConsecutiveFails != 1 {
		t.Errorf("abort should not change a closed breaker, got %+v", stats)
	}
}

func TestCircuitBreaker_RecordSuccessResetsFails(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, success should reset the count; got %s", cb.State())
	}
	if cb.Stats().ConsecutiveFails != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", cb.Stats().ConsecutiveFails)
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)
	cb.RecordFailure()

	stats := cb.Stats()
	if stats.State != "closed" {
		t.Errorf("State = %q, want closed", stats.State)
	}
	if !stats.LastFailure.Equal(clock.Now()) {
		t.Errorf("LastFailure = %v, want %v", stats.LastFailure, clock.Now())
	}
	if !stats.RetryAt.Equal(clock.Now().Add(10 * time.Second)) {
		t.Errorf("RetryAt = %v", stats.RetryAt)
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestErrCircuitOpen_Error(t *testing.T) {
	retryAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := &ErrCircuitOpen{Service: "vies", RetryAt: retryAt, Failures: 5}

	msg := err.Error()
	if !strings.Contains(msg, "vies") {
		t.Errorf("error should name the service: %q", msg)
	}
	if !strings.Contains(msg, "2026-03-01T10:00:00Z") {
		t.Errorf("error should include retry time: %q", msg)
	}
}

func TestCircuitBreaker_ConcurrencySafety(t *testing.T) {
	cb := NewCircuitBreaker()
	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				cb.Allow()
				if i%2 == 0 {
					cb.RecordFailure()
				} else {
					cb.RecordSuccess()
				}
				_ = cb.Stats()
			}
		}(i)
	}
	wg.Wait()
}
