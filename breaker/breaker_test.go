package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/metrics"
)

var errBroker = errors.New("broker down")

func TestBreaker_DisabledPassesThrough(t *testing.T) {
	b := NewBreaker(Settings{Name: "relay"}, nil)
	assert.False(t, b.Enabled())

	for range 20 {
		_, err := b.Execute(func() (any, error) { return nil, errBroker })
		assert.ErrorIs(t, err, errBroker)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	m := metrics.NewMetrics("test")
	b := NewBreaker(Settings{
		Name:        "relay",
		Config:      config.CircuitBreakerConfig{Enabled: true, Timeout: time.Minute, MaxRequests: 1},
		MinRequests: 3,
	}, m)

	for range 3 {
		_, err := b.Execute(func() (any, error) { return nil, errBroker })
		require.ErrorIs(t, err, errBroker)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("relay")))

	called := false
	_, err := b.Execute(func() (any, error) { called = true; return nil, nil })
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.False(t, called)
}

func TestExecuteTyped(t *testing.T) {
	b := NewBreaker(Settings{Name: "typed", Config: config.CircuitBreakerConfig{Enabled: true}}, nil)
	n, err := ExecuteTyped(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestBreaker_IsSuccessful(t *testing.T) {
	ignored := errors.New("client error")
	b := NewBreaker(Settings{
		Name:         "filtered",
		Config:       config.CircuitBreakerConfig{Enabled: true, Timeout: time.Minute},
		MinRequests:  1,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, ignored) },
	}, nil)

	for range 5 {
		_, err := b.Execute(func() (any, error) { return nil, ignored })
		assert.ErrorIs(t, err, ignored)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
