package session

import (
	"context"
	"fmt"

	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/topn"
)

// Config bundles the dependencies a Session needs beyond its Context:
// the bits that are process-wide rather than per-provider.
type Config struct {
	Thresholds     DebounceThresholds
	WindowCapacity int
	Printer        topn.Printer
	Workers        int
}

// Session is one active provider invocation: its event loop, its
// current filter run (if any), and the source it filters over.
type Session struct {
	ID  ID
	ctx Context
	cfg Config

	initializer SourceInitializer
	buildMatch  MatcherBuilder
	sink        Sink

	events chan Event
	state  atomicState

	terminated bool // only touched from the loop goroutine

	source filter.Source
	scale  ScaleEstimate

	onTyped debouncer
	onMove  debouncer

	currentCancel context.CancelFunc
	currentDone   chan struct{}

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// New creates a Session in StateSpawned. Call Run in its own goroutine
// to start the event loop; the loop performs on_initialize as its first
// action.
func New(id ID, sctx Context, cfg Config, init SourceInitializer, mb MatcherBuilder, sink Sink) *Session {
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Session{
		ID:          id,
		ctx:         sctx,
		cfg:         cfg,
		initializer: init,
		buildMatch:  mb,
		sink:        sink,
		events:      make(chan Event, 32),
		lifeCtx:     lifeCtx,
		lifeCancel:  lifeCancel,
	}
}

// Post enqueues an event for the session's loop. Safe for concurrent
// use; the loop itself processes events from one session strictly in
// arrival order.
func (s *Session) Post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.lifeCtx.Done():
	}
}

// Run is the session's event loop. It blocks until a Terminate or
// ForceTerminate event is processed, or the session's lifetime context
// is canceled from outside (process shutdown).
func (s *Session) Run() {
	s.state.Store(StateSpawned)
	s.onInitialize()

	for {
		select {
		case ev := <-s.events:
			if s.handle(ev) {
				return
			}
		case <-s.lifeCtx.Done():
			s.joinCurrentRun()
			s.state.Store(StateDead)
			return
		}
	}
}

// handle processes one event; it returns true once the session has
// reached StateDead and the loop should exit.
func (s *Session) handle(ev Event) bool {
	switch ev.Kind {
	case EventOnTyped:
		s.dispatchTyped(ev.Query)
	case EventOnMove:
		s.dispatchMove()
	case EventOnKey:
		// Key handling (Tab/Backspace/CR) has no generic core behavior.
		// The Session does not forward the key to any Provider's OnKey
		// hook; the event is accepted and ignored.
	case EventTerminate:
		s.joinCurrentRun()
		s.state.Store(StateDead)
		s.terminated = true
		if s.source != nil {
			s.source.Close()
		}
		s.lifeCancel()
		return true
	case EventForceTerminate:
		s.joinCurrentRun()
		s.state.Store(StateDead)
		s.terminated = true
		if s.source != nil {
			s.source.Close()
		}
		s.lifeCancel()
		if ev.Ack != nil {
			close(ev.Ack)
		}
		return true
	}
	return false
}

func (s *Session) onInitialize() {
	s.state.Store(StateInitializing)
	src, scale, err := s.initializer.Initialize(s.lifeCtx, s.ctx)
	if err != nil {
		s.state.Store(StateFailed)
		s.sink.Warn(s.ID, fmt.Sprintf("source initialization failed: %v", err))
		return
	}
	s.source = src
	s.scale = scale
	if mbo, ok := s.initializer.(MatcherBuilderOverride); ok {
		if mb := mbo.MatcherBuilderFor(s.ctx); mb != nil {
			s.buildMatch = mb
		}
	}
	// Push an initial display (an empty query matches every item,
	// ranked in source order and capped at the window capacity) so the
	// editor has something to render before the user types a single
	// character. The run itself drives the state back to StateIdle once
	// it settles, via the same path an ordinary on_typed run uses.
	s.runFilter("")
}

func (s *Session) dispatchTyped(query string) {
	if s.terminated || s.source == nil {
		return
	}
	if !s.ctx.Debounced {
		s.runFilter(query)
		return
	}
	delay := debounceDelay(s.scale.Count, s.cfg.Thresholds)
	s.onTyped.Call(delay, func() {
		s.runFilter(query)
	})
}

func (s *Session) dispatchMove() {
	if s.terminated {
		return
	}
	run := func() {
		s.state.Store(StatePreviewing)
		s.sink.PreviewUpdate(s.ID, 0, nil)
		if s.state.Load() == StatePreviewing {
			s.state.Store(StateIdle)
		}
	}
	if !s.ctx.Debounced {
		run()
		return
	}
	s.onMove.Call(s.cfg.Thresholds.OnMove, run)
}

// runFilter cancels any in-flight run, waits for it to fully stop (so
// two runs never write to the window or the editor concurrently), then
// starts a fresh one over the current source.
func (s *Session) runFilter(query string) {
	s.joinCurrentRun()
	if s.terminated || s.source == nil {
		return
	}

	runCtx, cancel := context.WithCancel(s.lifeCtx)
	done := make(chan struct{})
	s.currentCancel = cancel
	s.currentDone = done

	m := s.buildMatch(query, s.ctx)

	sink := topn.SinkFunc(func(u topn.Update) {
		if !s.terminated {
			s.sink.DisplayUpdate(s.ID, u)
		}
	})
	window := topn.NewWindow(s.cfg.WindowCapacity, s.cfg.Printer, sink)
	driver := filter.NewDriver(s.cfg.Workers)

	s.state.Store(StateFiltering)
	go func() {
		defer close(done)
		if err := driver.Run(runCtx, s.source, m, window); err != nil && runCtx.Err() == nil {
			s.sink.Warn(s.ID, fmt.Sprintf("filter run failed: %v", err))
		}
	}()

	// Opportunistically refresh the preview for the new top item once
	// this run settles. Posted as an event rather than called directly
	// so it goes through the loop goroutine like any other event: this
	// goroutine must not touch s.terminated or session state itself,
	// both of which are only safe to read/write from the loop.
	go func() {
		<-done
		s.Post(Event{Kind: EventOnMove})
	}()
}

// joinCurrentRun cancels the previous filter run (if any) and blocks
// until its goroutine has fully exited, satisfying the invariant that a
// new run never starts while an old one might still be writing to the
// display.
func (s *Session) joinCurrentRun() {
	if s.currentCancel == nil {
		return
	}
	s.currentCancel()
	<-s.currentDone
	s.currentCancel = nil
	s.currentDone = nil
}

// State reports the session's current state. Safe for concurrent use.
func (s *Session) State() State { return s.state.Load() }
