// Copyright 2025 James Ross
package breaker

import (
    "testing"
    "time"
)

func TestBreakerTransitions(t *testing.T) {
    cb := New(2*time.Second, 200*time.Millisecond, 0.5, 2)
    if cb.State() != Closed { t.Fatal("expected closed") }
    cb.Record(false)
    cb.Record(false)
    time.Sleep(10 * time.Millisecond)
    if cb.State() != Open { t.Fatal("expected open") }
    if cb.Allow() != false { t.Fatal("should not allow until cooldown") }
    time.Sleep(250 * time.Millisecond)
    if cb.Allow() != true { t.Fatal("should allow probe in half-open") }
    cb.Record(true)
    if cb.State() != Closed { t.Fatal("expected closed after probe success") }
}

func TestNewNamedFiresOnTransition(t *testing.T) {
    var seen []State
    cb := NewNamed("jobstore", 2*time.Second, 50*time.Millisecond, 0.5, 2, func(name string, s State) {
        if name != "jobstore" {
            t.Fatalf("unexpected breaker name %q", name)
        }
        seen = append(seen, s)
    })
    cb.Record(false)
    cb.Record(false)
    if len(seen) != 1 || seen[0] != Open {
        t.Fatalf("expected a single Open transition, got %v", seen)
    }
    if cb.Name() != "jobstore" {
        t.Fatalf("expected name jobstore, got %q", cb.Name())
    }
}
