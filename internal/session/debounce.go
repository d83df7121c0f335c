package session

import (
	"sync"
	"time"
)

// debouncer coalesces rapid calls into a single callback after a quiet
// period. Unlike a fixed-delay debouncer, each Call may specify its own
// delay so the on_typed timer can adapt to the detected source size
// without needing a second debouncer instance.
//
// A sequence number invalidates any in-flight timer callback once a
// newer Call or Cancel supersedes it, so a stale fire can never run
// after the debouncer has moved on.
type debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	seq     uint64
}

// Call (re)schedules fn to run after delay. A Call arriving before the
// previous delay elapses replaces it entirely; fn runs at most once per
// quiet period.
func (d *debouncer) Call(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.seq++
	current := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if !d.pending || d.seq != current {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.mu.Unlock()
		fn()
	})
}

// Cancel suppresses any pending call, including one whose timer has
// already fired but not yet run fn.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}
