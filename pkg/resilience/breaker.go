package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the classic three-state machine.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes the breaker. Zero values get the standard policy: open
// after five consecutive failures, probe again after thirty seconds.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}

	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}

	return c
}

// CircuitBreaker sheds calls to a failing dependency. Closed passes calls
// through and counts consecutive failures; open rejects immediately until the
// cooldown elapses; half-open lets one probe through and closes on success or
// reopens on failure.
type CircuitBreaker struct {
	config BreakerConfig
	logger *slog.Logger

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	probeInFlight bool

	now func() time.Time
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(config BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		config: config.withDefaults(),
		logger: logger.With("module", "resilience"),
		now:    time.Now,
	}
}

// State returns the current state, accounting for an elapsed cooldown.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked()

	return cb.state
}

// Call runs fn through the breaker.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.after(err)

	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked()

	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.probeInFlight {
			return ErrCircuitOpen
		}

		cb.probeInFlight = true
	}

	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false

		if err != nil {
			cb.tripLocked()

			return
		}

		cb.logger.Info("circuit closed after successful probe")
		cb.state = StateClosed
		cb.failures = 0

		return
	}

	if err == nil {
		cb.failures = 0

		return
	}

	cb.failures++

	if cb.failures >= cb.config.FailureThreshold {
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.logger.Warn("circuit opened", "cooldown", cb.config.Cooldown)
}

func (cb *CircuitBreaker) maybeHalfOpenLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Cooldown {
		cb.state = StateHalfOpen
		cb.probeInFlight = false
	}
}
