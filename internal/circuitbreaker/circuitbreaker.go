// Package circuitbreaker stops attempts to reach a peer that keeps failing,
// retrying it once per reset timeout.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/internal/clock"
)

var log = logging.Logger("ledgerbft/internal/circuitbreaker")

// ErrOpen is returned by Run without attempting anything.
var ErrOpen = errors.New("circuit breaker is open")

type Status int

const (
	Closed Status = iota
	Open
	HalfOpen
)

var statusNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half-open"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

type CircuitBreaker struct {
	name         string
	clk          clock.Clock
	maxFailures  int
	resetTimeout time.Duration

	// mu serialises attempts.
	mu       sync.Mutex
	status   Status
	failures int
	openedAt time.Time
}

// New returns a closed breaker that opens after maxFailures consecutive
// failed attempts.
func New(clk clock.Clock, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return NewNamed("", clk, maxFailures, resetTimeout)
}

// NewNamed is like New, and logs status changes under the given name.
func NewNamed(name string, clk clock.Clock, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		clk:          clk,
		maxFailures:  max(1, maxFailures),
		resetTimeout: resetTimeout,
	}
}

// Run calls attempt unless the breaker is open. Once resetTimeout has passed
// since the breaker opened, a single attempt is let through: success closes
// the breaker and failure opens it again.
func (cb *CircuitBreaker) Run(attempt func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.status == Open {
		if cb.clk.Since(cb.openedAt) < cb.resetTimeout {
			return ErrOpen
		}
		cb.transition(HalfOpen)
	}
	err := attempt()
	switch {
	case err == nil:
		cb.failures = 0
		cb.transition(Closed)
	case cb.status == HalfOpen:
		cb.trip()
	default:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	}
	return err
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.clk.Now()
	cb.transition(Open)
}

func (cb *CircuitBreaker) transition(to Status) {
	if cb.status == to {
		return
	}
	if cb.name != "" {
		log.Debugw("circuit breaker status changed", "name", cb.name, "from", cb.status, "to", to, "failures", cb.failures)
	}
	cb.status = to
}

func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}
