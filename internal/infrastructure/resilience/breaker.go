// Package resilience guards outbound calls to the library server.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject calls
	StateHalfOpen              // Testing if the server recovered
)

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker trips after a run of consecutive failures and rejects calls until
// the reset timeout elapses, then lets a probe call through.
// Transitions: Closed → Open (after threshold consecutive failures)
//
//	Open → HalfOpen (after resetTimeout expires)
//	HalfOpen → Closed (on success) or Open (on failure)
type Breaker struct {
	mu           sync.Mutex
	state        State
	failCount    int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
}

// NewBreaker creates a breaker with the given consecutive-failure threshold
// and reset timeout.
func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Execute runs fn through the breaker. Returns ErrCircuitOpen without calling
// fn while the breaker is open and the reset timeout has not elapsed.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failCount++
		if b.failCount >= b.threshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
		return err
	}

	b.failCount = 0
	b.state = StateClosed
	return nil
}

// CurrentState returns the breaker's state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
