// Package bretry implements two retry primitives: a fixed-interval AGAIN
// back-off for message-iterator and query-executor retry loops, and a
// circuit breaker, used by the Kafka sink, that stops a network client
// from hammering an unavailable peer.
package bretry

import (
	"time"
)

// Backoff sleeps a fixed retry duration between AGAIN attempts, checking
// the interrupter before every sleep so an interrupted wait never blocks.
type Backoff struct {
	Duration time.Duration
}

// DefaultRetryDuration is the default sleep between AGAIN retries.
const DefaultRetryDuration = 100 * time.Millisecond

// NewBackoff builds a Backoff, defaulting to DefaultRetryDuration when d<=0.
func NewBackoff(d time.Duration) Backoff {
	if d <= 0 {
		d = DefaultRetryDuration
	}
	return Backoff{Duration: d}
}

// Sleep blocks for the configured duration unless interrupted is already
// set, in which case it returns immediately with ok=false so the caller
// can short-circuit to Interrupted without ever sleeping.
func (b Backoff) Sleep(interrupted func() bool) (ok bool) {
	if interrupted() {
		return false
	}
	timer := time.NewTimer(b.Duration)
	defer timer.Stop()
	<-timer.C
	return !interrupted()
}
