// Copyright 2025 James Ross
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

type result struct {
	t  time.Time
	ok bool
}

// CircuitBreaker with sliding window and cooldown. Guards a single
// dependency (the job store's Postgres connection, the job queue's Redis
// connection) from being hammered once it starts failing.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	state            State
	window           time.Duration
	cooldown         time.Duration
	failureThresh    float64
	minSamples       int
	lastTransition   time.Time
	results          []result
	halfOpenInFlight bool
	onTransition     func(name string, s State)
}

func New(window time.Duration, cooldown time.Duration, failureThresh float64, minSamples int) *CircuitBreaker {
	return &CircuitBreaker{state: Closed, window: window, cooldown: cooldown, failureThresh: failureThresh, minSamples: minSamples, lastTransition: time.Now()}
}

// NewNamed is New plus a name used to label emitted metrics, and a hook
// invoked on every state transition. onTransition may be nil.
func NewNamed(name string, window, cooldown time.Duration, failureThresh float64, minSamples int, onTransition func(name string, s State)) *CircuitBreaker {
	cb := New(window, cooldown, failureThresh, minSamples)
	cb.name = name
	cb.onTransition = onTransition
	return cb
}

// Name returns the breaker's label, empty for breakers built with New.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// setState transitions the breaker and fires onTransition, if set. Caller
// must hold cb.mu.
func (cb *CircuitBreaker) setState(s State, now time.Time) {
	cb.state = s
	cb.lastTransition = now
	if cb.onTransition != nil {
		cb.onTransition(cb.name, s)
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Open:
		if time.Since(cb.lastTransition) >= cb.cooldown {
			cb.setState(HalfOpen, time.Now())
			cb.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	// purge old
	cutoff := now.Add(-cb.window)
	filtered := cb.results[:0]
	for _, r := range cb.results {
		if r.t.After(cutoff) {
			filtered = append(filtered, r)
		}
	}
	cb.results = append(filtered, result{t: now, ok: ok})

	// compute failure rate
	total := len(cb.results)
	if total < cb.minSamples {
		if cb.state == HalfOpen {
			if ok {
				cb.setState(Closed, now)
			} else {
				cb.setState(Open, now)
			}
		}
		return
	}
	fails := 0
	for _, r := range cb.results {
		if !r.ok {
			fails++
		}
	}
	rate := float64(fails) / float64(total)
	switch cb.state {
	case Closed:
		if rate >= cb.failureThresh {
			cb.setState(Open, now)
		}
	case HalfOpen:
		if ok {
			cb.setState(Closed, now)
		} else {
			cb.setState(Open, now)
		}
		// the single probe completed; allow a future probe after cooldown or next Allow
		cb.halfOpenInFlight = false
	case Open:
		// handled in Allow()
	}
}
