// Package rptimer provides a cancelable single-shot timer that its own
// callback re-arms with a fresh delay and argument.
package rptimer

import (
	"sync"
	"time"
)

// Stopper is the part of *time.Timer the Timer needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Timer holds at most one pending invocation of fn. Rescheduling cancels the
// pending one first; a canceled invocation never runs, even if its
// underlying timer already fired.
type Timer[T any] struct {
	mu      sync.Mutex
	fn      func(T)
	after   AfterFunc
	pending Stopper
	gen     uint64
}

func New[T any](fn func(T)) *Timer[T] {
	return NewWithAfterFunc(fn, realAfterFunc)
}

func NewWithAfterFunc[T any](fn func(T), after AfterFunc) *Timer[T] {
	return &Timer[T]{fn: fn, after: after}
}

// Reschedule replaces any pending invocation with fn(arg) after delay.
func (t *Timer[T]) Reschedule(delay time.Duration, arg T) {
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.pending = t.after(delay, func() { t.fire(gen, arg) })
}

// Clear cancels the pending invocation. It is safe to call at any time.
func (t *Timer[T]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
}

// Pending reports whether an invocation is scheduled.
func (t *Timer[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

func (t *Timer[T]) stopLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer[T]) fire(gen uint64, arg T) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	t.fn(arg)
}
