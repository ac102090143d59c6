package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(), WithLogger(zap.NewNop()))

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsAtMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	exec := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("operation must not run on a cancelled context")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatal("IsCircuitOpen should report the open state")
	}

	// breakers are per operation
	if err := exec.Execute(context.Background(), "other", func(context.Context) error { return nil }, classifier); err != nil {
		t.Fatalf("independent operation failed: %v", err)
	}
}

func TestExecuteBreakerUsesEachCallsClassifier(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})
	errCancelled := errors.New("caller gave up")
	ignore := func(error) ErrorClassification { return ErrorClassification{} }
	record := func(error) ErrorClassification { return ErrorClassification{RecordFailure: true} }

	for i := 0; i < 3; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error { return errCancelled }, ignore)
		if err != errCancelled {
			t.Fatalf("iteration %d: expected the operation error unchanged, got %v", i, err)
		}
	}

	errDown := errors.New("down")
	for i := 0; i < 3; i++ {
		if err := exec.Execute(context.Background(), "op", func(context.Context) error { return errDown }, record); !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected down error, got %v", i, err)
		}
	}
	err := exec.Execute(context.Background(), "op", func(context.Context) error { return nil }, record)
	if !IsCircuitOpen(err) {
		t.Fatalf("recorded failures should open the circuit, got %v", err)
	}
}

func TestExecuteStopsRetryingWhenContextEnds(t *testing.T) {
	exec := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	retryable := func(error) ErrorClassification { return ErrorClassification{Retryable: true} }

	err := exec.Execute(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transport")
	}, retryable)
	if err == nil || calls != 1 {
		t.Fatalf("expected one call and an error, got calls=%d err=%v", calls, err)
	}
}

func TestWithJitterBounds(t *testing.T) {
	cfg := DefaultConfig()
	for _, tc := range []struct {
		name string
		u    float64
		want time.Duration
	}{
		{"low", 0, 1600 * time.Millisecond},
		{"mid", 0.5, 2 * time.Second},
		{"high", 1, 2400 * time.Millisecond},
	} {
		t.Run(tc.name, func(t *testing.T) {
			u := tc.u
			exec := NewExecutor(cfg, WithJitterSource(func() float64 { return u }))
			got := exec.withJitter(2 * time.Second)
			if diff := got - tc.want; diff > time.Microsecond || diff < -time.Microsecond {
				t.Errorf("withJitter = %v, want %v", got, tc.want)
			}
		})
	}

	exec := NewExecutor(cfg, WithJitterSource(func() float64 { return 0.5 }))
	if got := exec.withJitter(time.Minute); got < 8*time.Second-time.Microsecond || got > 8*time.Second+time.Microsecond {
		t.Errorf("withJitter should cap at max backoff, got %v", got)
	}
}

func TestDefaultConfigNormalize(t *testing.T) {
	got := Config{}.normalize()
	def := DefaultConfig()
	if got.RetryMaxAttempts != 3 || got.RetryInitialBackoff != 2*time.Second || got.RetryMaxBackoff != 8*time.Second {
		t.Errorf("normalize() = %+v", got)
	}
	if got.JitterFraction != def.JitterFraction {
		t.Errorf("JitterFraction = %v, want %v", got.JitterFraction, def.JitterFraction)
	}
}
