// Package debounce coalesces bursts of calls into one trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays fn until delay has passed since the last Schedule. Only
// the latest scheduled value is delivered.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	// run is held while fn executes, so Cancel and FlushNow return only
	// after an in-flight call has finished.
	run sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending T
	has     bool
	stopped bool
}

func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Schedule replaces any pending value with v and restarts the timer.
// It is a no-op after Stop.
func (d *Debouncer[T]) Schedule(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending, d.has = v, true
	d.resetLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// FlushNow runs fn synchronously with the pending value, if any.
func (d *Debouncer[T]) FlushNow() bool {
	d.run.Lock()
	defer d.run.Unlock()
	v, ok := d.take()
	if ok {
		d.fn(v)
	}
	return ok
}

// Cancel drops the pending value and returns it. If fn is running it
// waits for it to return first.
func (d *Debouncer[T]) Cancel() (T, bool) {
	d.run.Lock()
	defer d.run.Unlock()
	return d.take()
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.has
}

// Stop cancels the pending call and rejects further scheduling.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.resetLocked()
	var zero T
	d.pending, d.has = zero, false
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.run.Lock()
	defer d.run.Unlock()
	d.mu.Lock()
	if gen != d.gen || !d.has {
		d.mu.Unlock()
		return
	}
	v := d.pending
	var zero T
	d.pending, d.has = zero, false
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

func (d *Debouncer[T]) take() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.pending, d.has
	var zero T
	d.pending, d.has = zero, false
	d.resetLocked()
	return v, ok
}

// resetLocked stops the timer and invalidates any callback already queued.
func (d *Debouncer[T]) resetLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
