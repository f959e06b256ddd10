package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(t *testing.T, config CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb, err := NewCircuitBreaker(config, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cb, clock
}

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
	}
}

var errBackend = errors.New("backend down")

func failing() error { return errBackend }

func succeeding() error { return nil }

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(t, DefaultCircuitBreakerConfig())

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be CLOSED, got %v", cb.State())
	}

	if cb.Failures() != 0 {
		t.Errorf("Expected initial failures to be 0, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CircuitBreakerConfig)
	}{
		{"max failures", func(c *CircuitBreakerConfig) { c.MaxFailures = 0 }},
		{"timeout", func(c *CircuitBreakerConfig) { c.Timeout = 0 }},
		{"concurrency", func(c *CircuitBreakerConfig) { c.MaxConcurrentRequests = 0 }},
		{"success threshold", func(c *CircuitBreakerConfig) { c.SuccessThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultCircuitBreakerConfig()
			tt.mutate(&config)
			cb, err := NewCircuitBreaker(config)
			if cb != nil {
				t.Error("Expected nil breaker")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestCircuitBreaker_SuccessfulExecution(t *testing.T) {
	cb, _ := newTestBreaker(t, DefaultCircuitBreakerConfig())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if !called {
		t.Error("Expected function to be called")
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to remain CLOSED, got %v", cb.State())
	}
}

func TestCircuitBreaker_FailuresLeadToOpen(t *testing.T) {
	config := testBreakerConfig()
	cb, _ := newTestBreaker(t, config)

	for i := 0; i < config.MaxFailures; i++ {
		if err := cb.Execute(failing); err != errBackend {
			t.Errorf("Expected the backend error unchanged, got %v", err)
		}
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected state to be OPEN after %d failures, got %v", config.MaxFailures, cb.State())
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to be called while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, testBreakerConfig())

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	_ = cb.Execute(succeeding)
	_ = cb.Execute(failing)

	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED since failures were not consecutive, got %v", cb.State())
	}
	if cb.Failures() != 1 {
		t.Errorf("Expected 1 failure, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	config := testBreakerConfig()
	cb, clock := newTestBreaker(t, config)

	for i := 0; i < config.MaxFailures; i++ {
		_ = cb.Execute(failing)
	}
	clock.Advance(config.Timeout)

	if err := cb.Execute(succeeding); err != nil {
		t.Errorf("Expected probe to run, got %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected HALF_OPEN after one success, got %v", cb.State())
	}

	_ = cb.Execute(succeeding)
	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED after %d successes, got %v", config.SuccessThreshold, cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("Expected failures reset, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	config := testBreakerConfig()
	cb, clock := newTestBreaker(t, config)

	for i := 0; i < config.MaxFailures; i++ {
		_ = cb.Execute(failing)
	}
	clock.Advance(config.Timeout + time.Millisecond)

	_ = cb.Execute(failing)
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after half-open failure, got %v", cb.State())
	}
	if err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen right after reopening, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenConcurrencyLimit(t *testing.T) {
	config := testBreakerConfig()
	cb, clock := newTestBreaker(t, config)

	for i := 0; i < config.MaxFailures; i++ {
		_ = cb.Execute(failing)
	}
	clock.Advance(config.Timeout)

	var inner error
	err := cb.Execute(func() error {
		inner = cb.Execute(succeeding)
		return nil
	})
	if err != nil {
		t.Errorf("Expected probe to succeed, got %v", err)
	}
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("Expected the second concurrent probe to be rejected, got %v", inner)
	}
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	config := testBreakerConfig()
	notFound := errors.New("not found")
	config.IsFailure = func(err error) bool { return !errors.Is(err, notFound) }
	cb, _ := newTestBreaker(t, config)

	for i := 0; i < 10; i++ {
		if err := cb.Execute(func() error { return notFound }); err != notFound {
			t.Fatalf("Expected not found error, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected ignored errors to keep the circuit CLOSED, got %v", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	config := testBreakerConfig()
	cb, _ := newTestBreaker(t, config)

	for i := 0; i < config.MaxFailures; i++ {
		_ = cb.Execute(failing)
	}
	cb.Reset()

	stats := cb.Stats()
	if stats.State != StateClosed || stats.Failures != 0 {
		t.Errorf("Expected reset stats, got %+v", stats)
	}
}

func TestCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cb, _ := newTestBreaker(t, DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(succeeding)
		}()
	}
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED, got %v", cb.State())
	}
}

func TestCircuitBreakerState_String(t *testing.T) {
	for state, want := range map[CircuitBreakerState]string{
		StateClosed:             "CLOSED",
		StateHalfOpen:           "HALF_OPEN",
		StateOpen:               "OPEN",
		CircuitBreakerState(42): "UNKNOWN",
	} {
		if got := state.String(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}
