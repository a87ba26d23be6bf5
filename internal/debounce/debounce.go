// Package debounce provides a trailing-edge debouncer driven by an injectable clock.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer delays a call until Wait has elapsed without a newer Trigger.
// Only the most recently triggered function runs.
type Debouncer struct {
	clock clockwork.Clock
	wait  time.Duration

	mu      sync.Mutex
	timer   clockwork.Timer
	pending func()
	gen     uint64 // bumped on every Trigger and Cancel; stale timers check it
	stopped bool
}

// New creates a debouncer. A nil clock uses the real clock.
func New(clock clockwork.Clock, wait time.Duration) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{clock: clock, wait: wait}
}

// Trigger schedules fn, replacing any call that has not fired yet.
// With a non-positive wait fn runs synchronously.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.wait <= 0 {
		d.mu.Unlock()
		fn()
		return
	}

	d.gen++
	gen := d.gen
	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.wait, func() { d.fire(gen) })
	d.mu.Unlock()
}

// Cancel drops the pending call without stopping the debouncer.
// A call that has already started is not affected.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop()
}

// Stop cancels the pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.drop()
}

func (d *Debouncer) drop() {
	d.gen++
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
