package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"secret-reflector/pkg/log"
)

// ResilientClient decorates a Client with retry and circuit breaking.
// Throttled and Unavailable errors are retried with exponential backoff;
// NotFound and Auth errors fail the attempt immediately so the next retry
// happens on the mapping's normal refresh tick, not in a retry storm.
type ResilientClient struct {
	inner          Client
	circuitBreaker *gobreaker.CircuitBreaker
	retryOptFunc   func() []backoff.RetryOption
	logger         zerolog.Logger
}

func NewResilientClient(storeName string, inner Client) *ResilientClient {
	return &ResilientClient{
		inner:          inner,
		circuitBreaker: newFetchCircuitBreaker(storeName),
		retryOptFunc:   newBackoffStrategy,
		logger: log.Logger.With().
			Str("component", "resilient_backend").
			Str("store", storeName).
			Str("kind", inner.Kind()).
			Logger(),
	}
}

func (c *ResilientClient) Kind() string {
	return c.inner.Kind()
}

func (c *ResilientClient) Fetch(ctx context.Context, remoteKey string) (map[string]string, error) {
	operation := func() (map[string]string, error) {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.inner.Fetch(ctx, remoteKey)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				c.logger.Warn().Str("remote_key", remoteKey).Msg("Circuit breaker open, failing fetch fast")
				return nil, backoff.Permanent(fmt.Errorf("%w: circuit breaker open: %v", ErrUnavailable, err))
			}
			if !IsRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			c.logger.Debug().Err(err).Str("remote_key", remoteKey).Msg("Transient fetch failure, will retry")
			return nil, err
		}
		return result.(map[string]string), nil
	}

	return backoff.Retry(ctx, operation, c.retryOptFunc()...)
}

// Probe is not retried; the registry caches probe results on its own TTL.
func (c *ResilientClient) Probe(ctx context.Context) error {
	return c.inner.Probe(ctx)
}

//nolint:mnd
func newBackoffStrategy() []backoff.RetryOption {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 1 * time.Second
	strategy.MaxInterval = 60 * time.Second
	strategy.RandomizationFactor = 0.2
	strategy.Multiplier = 2

	return []backoff.RetryOption{
		backoff.WithBackOff(strategy),
		backoff.WithMaxTries(5),
	}
}

//nolint:mnd
func newFetchCircuitBreaker(storeName string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        storeName + "_fetch_breaker",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// NotFound and Auth are definitive backend answers, not signs of an
		// unhealthy backend; only transient errors may trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	})
}
