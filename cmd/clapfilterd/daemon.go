package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/dshills/clapfilter/internal/cache"
	"github.com/dshills/clapfilter/internal/config"
	"github.com/dshills/clapfilter/internal/integration/process"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/obslog"
	"github.com/dshills/clapfilter/internal/provider"
	"github.com/dshills/clapfilter/internal/rpc"
	"github.com/dshills/clapfilter/internal/session"
	"github.com/dshills/clapfilter/internal/topn"
)

// commandShutdownGrace bounds how long runDaemon's shutdown path waits
// for any still-running provider shell commands to exit on their own
// after SIGTERM before it escalates to SIGKILL.
const commandShutdownGrace = 2 * time.Second

// runDaemon wires the RPC Adapter to a session.Manager and blocks until
// the editor disconnects (adapter.OnFatal) or the process receives
// SIGINT/SIGTERM.
func runDaemon(cfg config.Config) int {
	store, err := cache.NewStore(cfg.CacheDir, cfg.CacheMaxEntries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open cache store: %v\n", err)
		return exitFailure
	}

	adapter := rpc.NewAdapter(os.Stdin, os.Stdout, nil)
	editor := rpc.NewEditorClient(adapter)

	reg := session.NewRegistry()
	provider.RegisterKnown(reg, editor)

	supervisor := process.NewSupervisor(process.WithProcessExitCallback(func(p *process.Process) {
		if err := p.ExitError(); err != nil && p.State() != process.StateKilled {
			obslog.Warn("provider command exited with error", "command", p.Name, "error", err)
		}
	}))

	alwaysRefresh := func(string) bool { return cfg.AlwaysRefresh }
	init := provider.NewInitializer(reg, editor, store, supervisor, alwaysRefresh)

	router := newSessionRouter()
	sink := &editorSink{client: editor, router: router}

	manager := session.NewManager(session.Config{
		Thresholds:     cfg.Debounce,
		WindowCapacity: cfg.TopNCapacity,
		Printer:        topn.Printer{ContainerWidth: 0, Tabstop: 8},
		Workers:        cfg.Workers,
	}, init, defaultMatcherBuilder, sink)

	d := &daemon{cfg: cfg, adapter: adapter, manager: manager, router: router}
	d.registerHandlers()

	var shutdownOnce sync.Once
	shutdown := make(chan struct{})
	triggerShutdown := func() {
		shutdownOnce.Do(func() {
			manager.Shutdown()
			supervisor.Shutdown(commandShutdownGrace)
			adapter.Close()
			close(shutdown)
		})
	}

	adapter.OnFatal(func(err error) {
		obslog.Warn("editor connection lost, shutting down", "error", err)
		triggerShutdown()
	})

	adapter.Start()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		obslog.Info("signal received, shutting down")
		triggerShutdown()
	}()

	<-shutdown
	return exitSuccess
}

// defaultMatcherBuilder is the Manager-wide fallback used for providers
// with no MatcherBuilderOverride (provider.Initializer.MatcherBuilderFor
// returning nil falls back to this).
func defaultMatcherBuilder(query string, sctx session.Context) *match.Matcher {
	return match.NewMatcher(query, match.Options{Cwd: sctx.Cwd})
}

// daemon bundles the pieces registerHandlers needs to translate
// editor-facing RPC methods into session.Manager calls.
type daemon struct {
	cfg     config.Config
	adapter *rpc.Adapter
	manager *session.Manager
	router  *sessionRouter
}

// registerHandlers installs the editor's inbound notification
// vocabulary: new_session, on_typed, on_move, on_key, exit_session,
// force_terminate.
func (d *daemon) registerHandlers() {
	d.adapter.OnNotification("new_session", d.handleNewSession)
	d.adapter.OnNotification("on_typed", d.handleOnTyped)
	d.adapter.OnNotification("on_move", d.handleOnMove)
	d.adapter.OnNotification("on_key", d.handleOnKey)
	d.adapter.OnNotification("exit_session", d.handleExitSession)
	d.adapter.OnNotification("force_terminate", d.handleForceTerminate)
}

// sessionKey is the editor-assigned session identifier (wire-level
// session_id:<u64>) that accompanies every inbound notification. It is
// chosen and owned by the editor, not the core, since new_session is a
// fire-and-forget notification with no response carrying an assigned id
// back.
type sessionKey = uint64

type newSessionParams struct {
	SessionID     sessionKey `json:"session_id"`
	ProviderID    string     `json:"provider_id"`
	Cwd           string     `json:"cwd"`
	StartBuffer   string     `json:"start_buffer"`
	Debounced     bool       `json:"debounced"`
	PreviewHeight int        `json:"preview_height"`
	PreviewWidth  int        `json:"preview_width"`
}

func (d *daemon) handleNewSession(raw json.RawMessage) {
	var p newSessionParams
	if err := decodeObjectParams(raw, &p); err != nil {
		obslog.Warn("malformed new_session params", "error", err)
		return
	}
	sctx := session.Context{
		ProviderID:    p.ProviderID,
		Cwd:           p.Cwd,
		StartBuffer:   p.StartBuffer,
		Debounced:     p.Debounced,
		PreviewHeight: p.PreviewHeight,
		PreviewWidth:  p.PreviewWidth,
	}
	displayKey := strconv.FormatUint(p.SessionID, 10)
	sess := d.manager.NewSession(displayKey, sctx)
	d.router.bind(p.SessionID, sess.ID)
}

func (d *daemon) handleOnTyped(raw json.RawMessage) {
	parts, err := decodeTuple(raw, 2)
	if err != nil {
		obslog.Warn("malformed on_typed params", "error", err)
		return
	}
	var key sessionKey
	var query string
	if err := json.Unmarshal(parts[0], &key); err != nil {
		return
	}
	if err := json.Unmarshal(parts[1], &query); err != nil {
		return
	}
	id, ok := d.router.lookup(key)
	if !ok {
		return
	}
	d.manager.Dispatch(id, session.Event{Kind: session.EventOnTyped, Query: query})
}

func (d *daemon) handleOnMove(raw json.RawMessage) {
	key, err := decodeSessionKey(raw)
	if err != nil {
		obslog.Warn("malformed on_move params", "error", err)
		return
	}
	id, ok := d.router.lookup(key)
	if !ok {
		return
	}
	d.manager.Dispatch(id, session.Event{Kind: session.EventOnMove})
}

func (d *daemon) handleOnKey(raw json.RawMessage) {
	parts, err := decodeTuple(raw, 2)
	if err != nil {
		obslog.Warn("malformed on_key params", "error", err)
		return
	}
	var key sessionKey
	var pressed string
	if err := json.Unmarshal(parts[0], &key); err != nil {
		return
	}
	if err := json.Unmarshal(parts[1], &pressed); err != nil {
		return
	}
	id, ok := d.router.lookup(key)
	if !ok {
		return
	}
	d.manager.Dispatch(id, session.Event{Kind: session.EventOnKey, Key: pressed})
}

func (d *daemon) handleExitSession(raw json.RawMessage) {
	key, err := decodeSessionKey(raw)
	if err != nil {
		obslog.Warn("malformed exit_session params", "error", err)
		return
	}
	id, ok := d.router.lookup(key)
	if !ok {
		return
	}
	d.manager.Terminate(id)
	d.router.unbind(key)
}

func (d *daemon) handleForceTerminate(raw json.RawMessage) {
	key, err := decodeSessionKey(raw)
	if err != nil {
		obslog.Warn("malformed force_terminate params", "error", err)
		return
	}
	id, ok := d.router.lookup(key)
	if !ok {
		return
	}
	ack := make(chan struct{})
	d.manager.Dispatch(id, session.Event{Kind: session.EventForceTerminate, Ack: ack})
	<-ack
	d.manager.Terminate(id)
	d.router.unbind(key)
}

// decodeObjectParams decodes params that may arrive either as a bare
// object or as a one-element array wrapping it, matching the
// marshalAsArray convention Adapter.Call/Notify use on the outbound
// side.
func decodeObjectParams(raw json.RawMessage, v any) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 1 {
			return json.Unmarshal(arr[0], v)
		}
		return fmt.Errorf("rpc: expected single-element params array, got %d elements", len(arr))
	}
	return json.Unmarshal(raw, v)
}

// decodeSessionKey decodes a one-element params array holding a single
// session id.
func decodeSessionKey(raw json.RawMessage) (sessionKey, error) {
	parts, err := decodeTuple(raw, 1)
	if err != nil {
		return 0, err
	}
	var k sessionKey
	if err := json.Unmarshal(parts[0], &k); err != nil {
		return 0, err
	}
	return k, nil
}

// decodeTuple decodes params as a positional array of exactly n
// elements.
func decodeTuple(raw json.RawMessage, n int) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) != n {
		return nil, fmt.Errorf("rpc: expected %d params, got %d", n, len(arr))
	}
	return arr, nil
}

// sessionRouter maps the editor's own session ids (wire-level
// session_id:<u64>, one per window/buffer it already tracks) onto
// internal session.IDs, so subsequent on_typed/on_move/on_key/
// exit_session calls naming the same id reach the right Session, and so
// editorSink can translate a session.ID back into the id the editor
// understands.
type sessionRouter struct {
	mu      sync.Mutex
	byKey   map[sessionKey]session.ID
	keyByID map[session.ID]sessionKey
}

func newSessionRouter() *sessionRouter {
	return &sessionRouter{
		byKey:   make(map[sessionKey]session.ID),
		keyByID: make(map[session.ID]sessionKey),
	}
}

func (r *sessionRouter) bind(key sessionKey, id session.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prevID, ok := r.byKey[key]; ok {
		delete(r.keyByID, prevID)
	}
	r.byKey[key] = id
	r.keyByID[id] = key
}

func (r *sessionRouter) lookup(key sessionKey) (session.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	return id, ok
}

func (r *sessionRouter) keyFor(id session.ID) (sessionKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keyByID[id]
	return key, ok
}

func (r *sessionRouter) unbind(key sessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[key]; ok {
		delete(r.keyByID, id)
	}
	delete(r.byKey, key)
}

// editorSink implements session.Sink by forwarding display/preview
// updates and warnings onto the editor's RPC connection, translating
// the internal session.ID back into the editor's own session key.
type editorSink struct {
	client *rpc.EditorClient
	router *sessionRouter
}

type displayUpdatePayload struct {
	SessionID sessionKey `json:"session_id"`
	Lines     []string   `json:"lines"`
	Indices   [][]int    `json:"indices"`
	Processed int64      `json:"processed"`
	Matched   int64      `json:"matched"`
	Full      bool       `json:"full"`
}

func (s *editorSink) DisplayUpdate(id session.ID, u topn.Update) {
	key, ok := s.router.keyFor(id)
	if !ok {
		return
	}
	payload := displayUpdatePayload{
		SessionID: key,
		Lines:     u.Lines,
		Indices:   u.Indices,
		Processed: u.Processed,
		Matched:   u.Matched,
		Full:      u.Full,
	}
	if err := s.client.DisplayUpdate(context.Background(), payload); err != nil {
		obslog.Warn("display_update failed", "session_id", key, "error", err)
	}
}

type previewUpdatePayload struct {
	SessionID sessionKey `json:"session_id"`
	LineIndex int        `json:"line_index"`
}

func (s *editorSink) PreviewUpdate(id session.ID, lineIndex int, payload any) {
	key, ok := s.router.keyFor(id)
	if !ok {
		return
	}
	if err := s.client.PreviewUpdate(context.Background(), previewUpdatePayload{SessionID: key, LineIndex: lineIndex}); err != nil {
		obslog.Warn("preview_update failed", "session_id", key, "error", err)
	}
}

func (s *editorSink) Warn(id session.ID, message string) {
	if err := s.client.Warn(message); err != nil {
		obslog.Warn("warn notification failed", "error", err)
	}
}
