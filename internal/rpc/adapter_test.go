package rpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"
)

// duplex wires two Adapters together over a pair of io.Pipes, like two
// ends of a stdio connection.
type duplex struct {
	a, b *Adapter
}

func newDuplex() *duplex {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewAdapter(ar, aw, aw)
	b := NewAdapter(br, bw, bw)
	a.Start()
	b.Start()
	return &duplex{a: a, b: b}
}

func TestCallNotifyRoundTrip(t *testing.T) {
	d := newDuplex()
	defer d.a.Close()
	defer d.b.Close()

	d.b.OnRequest("echo", func(ctx context.Context, params json.RawMessage) (any, *RPCError) {
		var args []string
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return args[0], nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result string
	if err := d.a.Call(ctx, "echo", "hello", &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "hello" {
		t.Fatalf("got %q, want %q", result, "hello")
	}
}

func TestNotificationDispatch(t *testing.T) {
	d := newDuplex()
	defer d.a.Close()
	defer d.b.Close()

	received := make(chan string, 1)
	d.b.OnNotification("warn", func(params json.RawMessage) {
		var msg string
		if err := json.Unmarshal(params, &msg); err != nil {
			return
		}
		received <- msg
	})

	if err := d.a.Notify("warn", "slow command"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "slow command" {
			t.Fatalf("got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestCallMethodNotFound(t *testing.T) {
	d := newDuplex()
	defer d.a.Close()
	defer d.b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := d.a.Call(ctx, "nonexistent", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != CodeMethodNotFound {
		t.Fatalf("got code %d, want %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestCallContextCancellation(t *testing.T) {
	d := newDuplex()
	defer d.a.Close()
	defer d.b.Close()

	block := make(chan struct{})
	defer close(block)
	d.b.OnRequest("slow", func(ctx context.Context, params json.RawMessage) (any, *RPCError) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.a.Call(ctx, "slow", nil, nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestCloseIsIdempotentAndRejectsNewCalls(t *testing.T) {
	d := newDuplex()
	d.b.Close()

	if err := d.a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := d.a.Notify("warn", "x"); err != ErrShutdown {
		t.Fatalf("got %v, want ErrShutdown", err)
	}
	if err := d.a.Call(context.Background(), "x", nil, nil); err != ErrShutdown {
		t.Fatalf("got %v, want ErrShutdown", err)
	}
}

func TestCallPendingReturnsShutdownOnClose(t *testing.T) {
	// Nobody ever writes to pr, so the adapter's readLoop never sees a
	// response; a pending Call can only be released by Close.
	pr, _ := io.Pipe()
	a := NewAdapter(pr, io.Discard, nil)
	a.Start()

	done := make(chan error, 1)
	go func() {
		done <- a.Call(context.Background(), "never-answered", nil, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	a.Close()

	select {
	case err := <-done:
		if err != ErrShutdown {
			t.Fatalf("got %v, want ErrShutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after Close")
	}
}

func TestMarshalAsArray(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "[]"},
		{"slice", []string{"a", "b"}, `["a","b"]`},
		{"scalar", "solo", `["solo"]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := marshalAsArray(c.in)
			if err != nil {
				t.Fatalf("marshalAsArray: %v", err)
			}
			if string(got) != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}
