// Package session implements the per-provider Session Loop: a small
// state machine that receives debounced editor events, runs at most
// one filter pass at a time, and guarantees a superseded run's results
// never overwrite a fresher one.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/topn"
)

// State is one node of the session state machine.
type State int

const (
	StateSpawned State = iota
	StateInitializing
	StateIdle
	StateFiltering
	StatePreviewing
	StateFailed
	StateDead
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateFiltering:
		return "filtering"
	case StatePreviewing:
		return "previewing"
	case StateFailed:
		return "failed"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ID identifies a session uniquely within one process.
type ID uint64

// ScaleEstimate classifies a provider source by size immediately after
// first contact. The Session uses Count to pick the on_typed debounce
// delay; it does not read Kind, Path, Cmd or Msg.
type ScaleEstimate struct {
	Kind  ScaleKind
	Count int
	Path  string // populated for KindFile / KindCachedFile
	Cmd   string // populated for KindCommand
	Msg   string // populated for KindInitializationFailed
}

type ScaleKind int

const (
	KindUninitialized ScaleKind = iota
	KindInitializing
	KindSmall
	KindCachedFile
	KindFile
	KindCommand
	KindInitializationFailed
)

// Context is the immutable-after-creation description of one provider
// invocation: everything a Session needs besides its live state.
type Context struct {
	ProviderID    string
	Cwd           string
	StartBuffer   string
	IconPolicy    func(raw string) string
	Debounced     bool
	PreviewHeight int
	PreviewWidth  int
}

// MatcherBuilder constructs a fresh Matcher for one query string, given
// the session context (cwd, icon policy, etc. feed the Matcher's
// Options).
type MatcherBuilder func(query string, sctx Context) *match.Matcher

// SourceInitializer discovers a provider's Source on first on_initialize.
// Implementations live in package provider; Session depends only on this
// interface to avoid importing it.
type SourceInitializer interface {
	Initialize(ctx context.Context, sctx Context) (filter.Source, ScaleEstimate, error)
}

// MatcherBuilderOverride is optionally implemented by a SourceInitializer
// that discovers, during initialization, a provider-specific
// MatcherBuilder (scope narrowing, bonus weights) that should replace the
// Manager-wide default for this one session. Returning nil leaves the
// default in place.
type MatcherBuilderOverride interface {
	MatcherBuilderFor(sctx Context) MatcherBuilder
}

// Event is one inbound message dispatched to a session's event loop.
type Event struct {
	Kind EventKind
	// Query is populated for EventOnTyped.
	Query string
	// Key is populated for EventOnKey.
	Key string
	// Ack, when non-nil, is closed once EventForceTerminate has fully
	// drained the session (the only synchronous handshake in the
	// system).
	Ack chan struct{}
}

type EventKind int

const (
	EventOnInitialize EventKind = iota
	EventOnTyped
	EventOnMove
	EventOnKey
	EventTerminate
	EventForceTerminate
)

// Sink receives outbound notifications a Session produces: display
// updates, preview requests, warnings. Implementations normally forward
// onto the RPC Adapter's writer channel.
type Sink interface {
	DisplayUpdate(id ID, u topn.Update)
	PreviewUpdate(id ID, lineIndex int, payload any)
	Warn(id ID, message string)
}

// debounceDelay picks the adaptive on_typed debounce threshold for a
// source of the given size. The size breakpoints (10k, 100k, 200k items)
// are fixed here; the delays come from thresholds, which config.Config
// makes tunable.
func debounceDelay(sourceSize int, thresholds DebounceThresholds) time.Duration {
	switch {
	case sourceSize < 10_000:
		return thresholds.Tiny
	case sourceSize < 100_000:
		return thresholds.Small
	case sourceSize < 200_000:
		return thresholds.Medium
	default:
		return thresholds.Large
	}
}

// DebounceThresholds are the adaptive on_typed delays keyed by detected
// source size, plus the fixed on_move delay. Tunable, not load-bearing:
// wired from config.Config so they are overridable without being
// treated as fixed semantics.
type DebounceThresholds struct {
	Tiny   time.Duration
	Small  time.Duration
	Medium time.Duration
	Large  time.Duration
	OnMove time.Duration
}

// DefaultDebounceThresholds matches the 10/50/100/200 ms on_typed
// breakpoints and ~50 ms on_move delay.
func DefaultDebounceThresholds() DebounceThresholds {
	return DebounceThresholds{
		Tiny:   10 * time.Millisecond,
		Small:  50 * time.Millisecond,
		Medium: 100 * time.Millisecond,
		Large:  200 * time.Millisecond,
		OnMove: 50 * time.Millisecond,
	}
}

// atomicState wraps atomic.Int32 with the State type for readability.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Load() State      { return State(a.v.Load()) }
func (a *atomicState) Store(s State)    { a.v.Store(int32(s)) }
func (a *atomicState) CAS(old, new_ State) bool {
	return a.v.CompareAndSwap(int32(old), int32(new_))
}
