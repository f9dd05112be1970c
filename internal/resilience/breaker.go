// Package resilience guards outbound tool traffic with per-host circuit
// breakers.
//
// Built-in tools that leave the process (web search, HTTP proxy) call
// arbitrary third-party endpoints on behalf of tenants. A misbehaving host
// would otherwise burn the full per-request timeout on every call; a tripped
// breaker fails those calls immediately until the host recovers.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Allow] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// state is the breaker's operating mode: closed (normal), open (rejecting),
// or half-open (probing with a single call).
type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a three-state circuit breaker sized for outbound HTTP calls.
// It is safe for concurrent use.
//
// Unlike a generic Execute-wrapper, Breaker separates admission from
// outcome reporting: callers invoke [Breaker.Allow] before dialing and
// [Breaker.Report] after the call completes. This keeps the breaker out of
// the request's timing window — the handlers measure their own bodies and a
// closure-based wrapper would fold lock acquisition into that measurement.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	st       state
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker that opens after threshold consecutive
// failures and stays open for cooldown before probing. Non-positive arguments
// fall back to 5 failures and 30 seconds.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. In the open state it returns
// [ErrOpen] until the cooldown elapses, then admits exactly one probe call;
// further callers are rejected until that probe is reported.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.st = stateHalfOpen
		b.probing = true
		return nil
	case stateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Report records the outcome of a call previously admitted by [Breaker.Allow].
func (b *Breaker) Report(host string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.st != stateClosed {
			slog.Info("circuit closed", "host", host)
		}
		b.st = stateClosed
		b.failures = 0
		b.probing = false
		return
	}

	switch b.st {
	case stateHalfOpen:
		// Probe failed: back to open, restart the cooldown.
		b.st = stateOpen
		b.openedAt = time.Now()
		b.probing = false
		slog.Warn("circuit re-opened after failed probe", "host", host)
	default:
		b.failures++
		if b.failures >= b.threshold {
			b.st = stateOpen
			b.openedAt = time.Now()
			slog.Warn("circuit opened", "host", host, "consecutive_failures", b.failures)
		}
	}
}
