package embedding

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// newProviderBreaker wraps a Provider's calls in a circuit breaker so that a
// string of model-inference failures trips into ModelUnavailable instead of
// hammering an unhealthy backend. Grounded on the hand-rolled
// breaker (pkg/embedding/circuit_breaker.go); this uses sony/gobreaker
// directly since the pack already depends on it (internal/resilience) and
// the instructions favor an ecosystem library over a hand-rolled one.
func newProviderBreaker(name string, failureThreshold uint32, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// errBreakerOpen is returned by gobreaker when the breaker is open; the
// caller maps it to ModelUnavailable.
var errBreakerOpen = gobreaker.ErrOpenState

func isBreakerOpen(err error) bool {
	return errors.Is(err, errBreakerOpen)
}
