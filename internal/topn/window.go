// Package topn maintains the bounded best-k collection a filter run
// publishes to the editor as the user types: a fixed-capacity sorted
// window over MatchedItems, rendered and rate-limited for publication.
package topn

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/clapfilter/internal/match"
)

// DefaultUpdateInterval is the minimum spacing between two Window
// publications, matched to the editor's own redraw cadence.
const DefaultUpdateInterval = 200 * time.Millisecond

// Update is one progress payload handed to a Sink.
type Update struct {
	Lines       []string
	Indices     [][]int
	Processed   int64
	Matched     int64
	Full        bool // false => counters moved but the top-k lines did not
}

// Sink receives Window publications. Implementations must not block the
// filter run; a session normally forwards updates over a channel.
type Sink interface {
	Publish(Update)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Update)

// Publish implements Sink.
func (f SinkFunc) Publish(u Update) { f(u) }

// Window holds the best Capacity MatchedItems seen by one filter run.
// Safe for concurrent use: Observe may be called from any number of
// scoring goroutines, each holding the mutex only long enough to insert
// or reject a single item; processed/matched are atomic counters, so
// Counts never takes the mutex (a publish still takes it briefly to
// check for and render changed lines).
type Window struct {
	Capacity       int
	UpdateInterval time.Duration
	Printer        Printer
	Sink           Sink

	mu    sync.Mutex
	items []match.MatchedItem
	dirty bool

	lastUpdate atomic.Int64 // unix nano
	processed  atomic.Int64
	matched    atomic.Int64
}

// NewWindow creates a Window with the given display capacity. Sink may
// be nil; Observe and Finish then become pure bookkeeping with no I/O.
func NewWindow(capacity int, printer Printer, sink Sink) *Window {
	w := &Window{
		Capacity:       capacity,
		UpdateInterval: DefaultUpdateInterval,
		Printer:        printer,
		Sink:           sink,
	}
	w.items = make([]match.MatchedItem, 0, capacity)
	return w
}

// Observe records the outcome of matching one candidate: processed is
// always incremented; when ok is true the item additionally competes
// for a slot in the top-k window.
func (w *Window) Observe(mi match.MatchedItem, ok bool) {
	w.processed.Add(1)
	if !ok {
		w.maybePublish()
		return
	}
	w.matched.Add(1)
	w.insert(mi)
	w.maybePublish()
}

func (w *Window) insert(mi match.MatchedItem) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) < w.Capacity {
		w.items = append(w.items, mi)
		w.resort()
		w.dirty = true
		return
	}
	last := w.items[len(w.items)-1]
	if mi.Result.Rank.Less(last.Result.Rank) {
		w.items[len(w.items)-1] = mi
		w.resort()
		w.dirty = true
	}
}

func (w *Window) resort() {
	sort.SliceStable(w.items, func(i, j int) bool {
		return w.items[i].Result.Rank.Less(w.items[j].Result.Rank)
	})
}

func (w *Window) maybePublish() {
	if w.Sink == nil {
		return
	}
	now := time.Now()
	last := w.lastUpdate.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < w.UpdateInterval {
		return
	}
	if !w.lastUpdate.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	w.publish(false)
}

// Finish emits a final, unconditional full update regardless of the
// rate limit, so the editor always ends up with a fully-consistent view.
func (w *Window) Finish() {
	w.lastUpdate.Store(time.Now().UnixNano())
	w.publish(true)
}

func (w *Window) publish(force bool) {
	if w.Sink == nil {
		return
	}
	w.mu.Lock()
	full := force || w.dirty
	var lines []string
	var indices [][]int
	if full {
		lines = make([]string, len(w.items))
		indices = make([][]int, len(w.items))
		for i, mi := range w.items {
			lines[i], indices[i] = w.Printer.Render(mi)
		}
		w.dirty = false
	}
	w.mu.Unlock()

	w.Sink.Publish(Update{
		Lines:     lines,
		Indices:   indices,
		Processed: w.processed.Load(),
		Matched:   w.matched.Load(),
		Full:      full,
	})
}

// Snapshot returns a copy of the current top-k items, best first.
func (w *Window) Snapshot() []match.MatchedItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]match.MatchedItem, len(w.items))
	copy(out, w.items)
	return out
}

// Counts returns the processed and matched counters without touching
// the item-list mutex.
func (w *Window) Counts() (processed, matched int64) {
	return w.processed.Load(), w.matched.Load()
}
