package bretry

import (
	"fmt"
	"sync"
	"time"
)

// State is the circuit breaker's three-state machine.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker. Zero values take sane defaults.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// Breaker protects a network client (in this module, the Kafka sink's
// producer) from repeatedly calling a peer that is down. Unlike a CTF
// medium's own AGAIN/retry_duration_us loop (Backoff, above), a Breaker
// trips open after consecutive failures and stops calling out entirely
// until OpenTimeout elapses.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	nextRetryTime time.Time
}

// NewBreaker builds a Breaker with sane defaults for unset fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once OpenTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Now().Before(b.nextRetryTime) {
			return false
		}
		b.state = HalfOpen
		b.successes = 0
		return true
	default:
		return true
	}
}

// RecordSuccess closes the circuit from HalfOpen once SuccessThreshold
// consecutive successes are observed, and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == HalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = Closed
		}
	}
}

// RecordFailure trips the breaker open once FailureThreshold consecutive
// failures accumulate, or immediately on any HalfOpen failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trip()
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.trip()
	}
}

// trip assumes the lock is held.
func (b *Breaker) trip() {
	b.state = Open
	b.nextRetryTime = time.Now().Add(b.cfg.OpenTimeout)
}

// State reports the current state, mostly for metrics/debug surfaces.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ErrOpen is returned by Do when the breaker refuses the call.
type ErrOpen struct{ Name string }

func (e *ErrOpen) Error() string { return fmt.Sprintf("circuit breaker %q is open", e.Name) }

// Do runs fn guarded by the breaker, recording success/failure.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return &ErrOpen{Name: b.cfg.Name}
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
