package strategy

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the tick cannot resolve a trade amount or asset.
	ErrConfiguration = errors.New("configuration error")

	// ErrQuote means the quote client failed or returned no usable route.
	ErrQuote = errors.New("quote error")

	// ErrExecution means a swap attempt failed.
	ErrExecution = errors.New("execution error")

	// ErrBalance means the wallet balance could not be verified.
	ErrBalance = errors.New("balance error")

	// ErrZeroBaseline means a profit was requested against a zero baseline.
	ErrZeroBaseline = errors.New("profit baseline is zero")

	// ErrCircuitBreakerTripped is wrapped by every CircuitBreakerError.
	ErrCircuitBreakerTripped = errors.New("circuit breaker tripped")
)

// Breaker identifies which counter tripped.
type Breaker string

const (
	BreakerErrors     Breaker = "consecutive_errors"
	BreakerLowBalance Breaker = "low_balance"
)

// CircuitBreakerError is returned when a failure counter exceeds its limit.
// The bot must stop scheduling ticks once it sees one.
type CircuitBreakerError struct {
	Breaker Breaker
	Count   int
	Limit   int
	Detail  string
}

func (e *CircuitBreakerError) Error() string {
	msg := fmt.Sprintf("%s: %s count %d exceeds limit %d", ErrCircuitBreakerTripped, e.Breaker, e.Count, e.Limit)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *CircuitBreakerError) Unwrap() error {
	return ErrCircuitBreakerTripped
}
