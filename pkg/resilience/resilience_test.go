package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "broken", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	assert.Equal(t, 2, attempts)
}

func TestRetrySkipsNonRetryableErrors(t *testing.T) {
	for _, permanent := range []error{
		apperrors.New(apperrors.ErrDocumentNotFound, http.StatusNotFound, "missing"),
		apperrors.Wrap(apperrors.ErrUnavailable, http.StatusServiceUnavailable, ErrCircuitOpen, "catalog"),
	} {
		attempts := 0
		err := Retry(context.Background(), "lookup", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
			attempts++
			return permanent
		})
		assert.Same(t, permanent, err)
		assert.Equal(t, 1, attempts)
	}
}

func TestRetryCountsRetriesInMetrics(t *testing.T) {
	m := metrics.NewUnregistered()
	attempts := 0
	err := Retry(context.Background(), "catalog list", RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Metrics:      m,
		Retryable:    func(error) bool { return true },
	}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BackendRetriesTotal.WithLabelValues("catalog list")))
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 10}.withDefaults()
	assert.LessOrEqual(t, backoff(5, cfg), time.Second)
	assert.InDelta(t, float64(100*time.Millisecond), float64(backoff(1, cfg)), float64(10*time.Millisecond))
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))

	err = WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	err = WithTimeout(context.Background(), 0, "unbounded", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 20 * time.Millisecond})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.False(t, called)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, "closed", cb.GetState().String())
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "drain", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}

func TestCircuitBreakerReportsStateToMetrics(t *testing.T) {
	m := metrics.NewUnregistered()
	cb := NewCircuitBreaker("catalog", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		OnStateChange:    ReportTo(m),
	})
	assert.Equal(t, float64(StateClosed), testutil.ToFloat64(m.BreakerState.WithLabelValues("catalog")))

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, float64(StateOpen), testutil.ToFloat64(m.BreakerState.WithLabelValues("catalog")))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, float64(StateClosed), testutil.ToFloat64(m.BreakerState.WithLabelValues("catalog")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransitionsTotal.WithLabelValues("catalog", "open")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransitionsTotal.WithLabelValues("catalog", "half-open")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransitionsTotal.WithLabelValues("catalog", "closed")))
}
