// Package cli provides the circuit breaker and backoff primitives shared by
// the pipeline's LLM gateway and its dependency installer.
package cli

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Circuit breaker configuration constants
const (
	CircuitBreakerFailureThreshold = 5                // Number of failures before circuit opens
	CircuitBreakerCooldownDuration = 30 * time.Second // Time to wait before retrying
	MaxRetryAttempts               = 3                // Maximum number of retry attempts
	BaseRetryDelay                 = 1 * time.Second  // Base delay for exponential backoff
	MaxRetryDelay                  = 30 * time.Second // Maximum delay for exponential backoff
	JitterFactor                   = 0.1              // Jitter factor for randomization (10%)
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	// CircuitClosed - normal operation, requests are allowed
	CircuitClosed CircuitBreakerState = iota
	// CircuitOpen - circuit is open, requests are blocked
	CircuitOpen
	// CircuitHalfOpen - limited requests allowed to test if service is back
	CircuitHalfOpen
)

// String returns a string representation of the circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker implements the circuit breaker pattern for provider fault tolerance
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            CircuitBreakerState
	failureCount     int
	lastFailureTime  time.Time
	nextRetryTime    time.Time
	failureThreshold int
	cooldownDuration time.Duration
}

// NewCircuitBreaker creates a new circuit breaker with default settings
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: CircuitBreakerFailureThreshold,
		cooldownDuration: CircuitBreakerCooldownDuration,
	}
}

// CanExecute returns true if the circuit breaker allows the request to proceed
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		// Check if enough time has passed to attempt a retry
		return time.Now().After(cb.nextRetryTime)
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful operation and may close the circuit
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Reset failure count on any success
	cb.failureCount = 0

	// If circuit is half-open, close it completely
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
	}
}

// RecordFailure records a failed operation and may open the circuit
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.failureThreshold {
		cb.state = CircuitOpen
		cb.nextRetryTime = time.Now().Add(cb.cooldownDuration)
	}
}

// GetState returns the current state of the circuit breaker (thread-safe)
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetFailureCount returns the current failure count (thread-safe)
func (cb *CircuitBreaker) GetFailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// RetryWithBackoff implements exponential backoff with jitter for retrying failed operations
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Try the operation
		err := operation()
		if err == nil {
			return nil // Success
		}

		lastErr = err

		// Don't wait after the last attempt
		if attempt == maxAttempts-1 {
			break
		}

		// Calculate exponential backoff delay with jitter
		delay := calculateBackoffDelay(attempt)

		// Wait for the calculated delay or until context is cancelled
		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}

// BackoffDelay exposes calculateBackoffDelay to callers outside this package
// that need to pace their own retry loop (e.g. a retry loop that mutates its
// arguments between attempts and so can't use RetryWithBackoff directly).
func BackoffDelay(attempt int) time.Duration {
	return calculateBackoffDelay(attempt)
}

// calculateBackoffDelay calculates the delay for exponential backoff with jitter
func calculateBackoffDelay(attempt int) time.Duration {
	// Exponential backoff: delay = base * 2^attempt
	delay := BaseRetryDelay * time.Duration(math.Pow(2, float64(attempt)))

	// Cap the delay at maximum
	if delay > MaxRetryDelay {
		delay = MaxRetryDelay
	}

	// Add jitter: ±10% random variation
	jitter := time.Duration(float64(delay) * JitterFactor * (2*rand.Float64() - 1))
	delay += jitter

	// Ensure delay is never negative
	if delay < 0 {
		delay = BaseRetryDelay
	}

	return delay
}
