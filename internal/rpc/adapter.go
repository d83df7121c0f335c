package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dshills/clapfilter/internal/obslog"
)

// ErrShutdown is returned to any in-flight Call once the Adapter is
// closed, and to calls made after closing.
var ErrShutdown = errors.New("rpc: adapter shut down")

// NotificationHandler handles one inbound notification.
type NotificationHandler func(params json.RawMessage)

// RequestHandler handles one inbound request and returns the result to
// send back, or an *RPCError to send back as an error response.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, *RPCError)

// Adapter is the RPC Adapter: a reader goroutine that decodes inbound
// frames onto a buffered channel, a dispatch goroutine that demuxes
// them into request/notification/response handling, and a writer
// goroutine that serializes outbound frames.
type Adapter struct {
	reader io.Reader
	writer io.Writer
	closer io.Closer

	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *response
	notifs   map[string]NotificationHandler
	requests map[string]RequestHandler

	inbound  chan []byte
	outbound chan []byte
	done     chan struct{}
	closed   atomic.Bool

	onFatal func(error)
}

// NewAdapter creates an Adapter reading from r and writing to w. c, if
// non-nil, is closed when the Adapter shuts down.
func NewAdapter(r io.Reader, w io.Writer, c io.Closer) *Adapter {
	return &Adapter{
		reader:   r,
		writer:   w,
		closer:   c,
		pending:  make(map[int64]chan *response),
		notifs:   make(map[string]NotificationHandler),
		requests: make(map[string]RequestHandler),
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// OnFatal registers a callback invoked when the reader goroutine
// observes EOF or a closed pipe, or the writer goroutine fails to write
// a frame — the editor has disconnected and the process should begin
// graceful shutdown. Both goroutines can invoke it, so it may run more
// than once.
func (a *Adapter) OnFatal(fn func(error)) { a.onFatal = fn }

// OnNotification registers a handler for inbound notifications with the
// given method name.
func (a *Adapter) OnNotification(method string, h NotificationHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifs[method] = h
}

// OnRequest registers a handler for inbound requests with the given
// method name.
func (a *Adapter) OnRequest(method string, h RequestHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests[method] = h
}

// Start launches the reader, dispatcher, and writer goroutines. Call
// once.
func (a *Adapter) Start() {
	br := bufio.NewReaderSize(a.reader, 64*1024)
	go a.readLoop(br)
	go a.dispatchLoop()
	go a.writeLoop()
}

// readLoop blocks on frame reads and pushes each decoded payload onto
// the buffered inbound channel for dispatchLoop, so a slow handler
// never stalls the next read.
func (a *Adapter) readLoop(r *bufio.Reader) {
	for {
		payload, err := readFrame(r)
		if err != nil {
			if a.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				if a.onFatal != nil {
					a.onFatal(err)
				}
				return
			}
			// Protocol error: malformed frame. Log, drop, keep reading.
			obslog.Warn("rpc: dropping malformed frame", "error", err)
			continue
		}
		select {
		case a.inbound <- payload:
		case <-a.done:
			return
		}
	}
}

// dispatchLoop drains the inbound channel, classifying and handling one
// frame at a time; request/notification handlers themselves run in
// their own goroutine (see handleRequest/handleNotification) so a slow
// handler never blocks demuxing the next frame.
func (a *Adapter) dispatchLoop() {
	for {
		select {
		case payload := <-a.inbound:
			a.dispatch(payload)
		case <-a.done:
			return
		}
	}
}

func (a *Adapter) writeLoop() {
	for {
		select {
		case payload := <-a.outbound:
			if err := writeFrame(a.writer, payload); err != nil {
				if a.onFatal != nil {
					a.onFatal(err)
				}
				return
			}
		case <-a.done:
			return
		}
	}
}

func (a *Adapter) dispatch(data []byte) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return // malformed frame: drop, per protocol error policy
	}

	switch {
	case p.isResponse():
		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		a.handleResponse(&resp)

	case p.isRequest():
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		go a.handleRequest(&req)

	case p.isNotification():
		var notif notification
		if err := json.Unmarshal(data, &notif); err != nil {
			return
		}
		a.handleNotification(&notif)
	}
}

func (a *Adapter) handleResponse(resp *response) {
	var id int64
	if err := json.Unmarshal(resp.ID, &id); err != nil {
		return
	}
	a.mu.Lock()
	ch, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.mu.Unlock()
	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

func (a *Adapter) handleRequest(req *request) {
	a.mu.Lock()
	h, ok := a.requests[req.Method]
	a.mu.Unlock()

	if !ok {
		a.sendResponse(req.ID, nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)})
		return
	}
	result, rpcErr := h(context.Background(), req.Params)
	if rpcErr != nil {
		a.sendResponse(req.ID, nil, rpcErr)
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		a.sendResponse(req.ID, nil, &RPCError{Code: CodeInternalError, Message: err.Error()})
		return
	}
	a.sendResponse(req.ID, raw, nil)
}

func (a *Adapter) handleNotification(notif *notification) {
	a.mu.Lock()
	h, ok := a.notifs[notif.Method]
	a.mu.Unlock()
	if ok && h != nil {
		go h(notif.Params)
	}
}

func (a *Adapter) sendResponse(id json.RawMessage, result json.RawMessage, rpcErr *RPCError) {
	resp := response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	a.enqueue(raw)
}

func (a *Adapter) enqueue(payload []byte) {
	select {
	case a.outbound <- payload:
	case <-a.done:
	}
}

// Call sends a request and blocks until a response arrives, ctx is
// done, or the Adapter shuts down. params is serialized as a JSON array
// (the editor expects a list): a slice/array value is sent as-is, a
// nil value becomes [], anything else is wrapped in a one-element
// array.
func (a *Adapter) Call(ctx context.Context, method string, params any, result any) error {
	if a.closed.Load() {
		return ErrShutdown
	}

	id := a.nextID.Add(1)
	ch := make(chan *response, 1)
	a.mu.Lock()
	a.pending[id] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
	}()

	paramsRaw, err := marshalAsArray(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params: %w", err)
	}
	idRaw, _ := json.Marshal(id)
	req := request{JSONRPC: "2.0", ID: idRaw, Method: method, Params: paramsRaw}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: marshal request: %w", err)
	}
	a.enqueue(raw)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrShutdown
	case resp, ok := <-ch:
		if !ok {
			return ErrShutdown
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("rpc: unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// Notify sends a fire-and-forget notification.
func (a *Adapter) Notify(method string, params any) error {
	if a.closed.Load() {
		return ErrShutdown
	}
	paramsRaw, err := marshalAsArray(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params: %w", err)
	}
	notif := notification{JSONRPC: "2.0", Method: method, Params: paramsRaw}
	raw, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("rpc: marshal notification: %w", err)
	}
	a.enqueue(raw)
	return nil
}

func marshalAsArray(params any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("[]"), nil
	}
	v := reflect.ValueOf(params)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return json.Marshal(params)
	}
	return json.Marshal([]any{params})
}

// Close shuts down the Adapter: pending Calls return ErrShutdown, the
// reader/writer goroutines exit, and the underlying closer (if any) is
// closed.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	close(a.done)
	a.mu.Lock()
	a.pending = make(map[int64]chan *response)
	a.mu.Unlock()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
