package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/topn"
)

type fakeInitializer struct {
	items []match.Item
}

func (f *fakeInitializer) Initialize(ctx context.Context, sctx Context) (filter.Source, ScaleEstimate, error) {
	return filter.NewSliceSource(f.items), ScaleEstimate{Kind: KindSmall, Count: len(f.items)}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	updates []topn.Update
	warns   []string
}

func (r *recordingSink) DisplayUpdate(id ID, u topn.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordingSink) PreviewUpdate(id ID, lineIndex int, payload any) {}

func (r *recordingSink) Warn(id ID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, message)
}

func (r *recordingSink) lastFull() (topn.Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].Full {
			return r.updates[i], true
		}
	}
	return topn.Update{}, false
}

func buildMatcher(query string, sctx Context) *match.Matcher {
	return match.NewMatcher(query, match.Options{})
}

func testConfig() Config {
	return Config{
		Thresholds:     DefaultDebounceThresholds(),
		WindowCapacity: 10,
		Printer:        topn.Printer{ContainerWidth: 80},
		Workers:        2,
	}
}

func newTestSession(t *testing.T, items []string, debounced bool) (*Session, *recordingSink) {
	t.Helper()
	var matchItems []match.Item
	for _, s := range items {
		matchItems = append(matchItems, match.Item{RawText: s, MatchText: s})
	}
	sink := &recordingSink{}
	sess := New(1, Context{ProviderID: "files", Debounced: debounced}, testConfig(),
		&fakeInitializer{items: matchItems}, buildMatcher, sink)
	return sess, sink
}

func TestSessionNonDebouncedFiltersImmediately(t *testing.T) {
	sess, sink := newTestSession(t, []string{"alpha.go", "beta.go", "gamma.txt"}, false)
	go sess.Run()
	defer sess.Post(Event{Kind: EventTerminate})

	time.Sleep(20 * time.Millisecond)
	sess.Post(Event{Kind: EventOnTyped, Query: "alpha"})

	deadline := time.After(time.Second)
	for {
		if u, ok := sink.lastFull(); ok && len(u.Lines) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected a full publish matching alpha.go")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionDebouncedCoalescesTyping(t *testing.T) {
	sess, sink := newTestSession(t, []string{"alpha.go"}, true)
	go sess.Run()
	defer sess.Post(Event{Kind: EventTerminate})

	time.Sleep(20 * time.Millisecond)
	sess.Post(Event{Kind: EventOnTyped, Query: "a"})
	sess.Post(Event{Kind: EventOnTyped, Query: "al"})
	sess.Post(Event{Kind: EventOnTyped, Query: "alp"})

	deadline := time.After(time.Second)
	for {
		if u, ok := sink.lastFull(); ok && len(u.Lines) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected eventual publish for coalesced typing")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionForceTerminateHandshake(t *testing.T) {
	sess, _ := newTestSession(t, []string{"one", "two"}, false)
	go sess.Run()

	ack := make(chan struct{})
	sess.Post(Event{Kind: EventForceTerminate, Ack: ack})

	select {
	case <-ack:
	case <-time.After(time.Second):
		t.Fatalf("force-terminate ack never arrived")
	}
	if sess.State() != StateDead {
		t.Fatalf("expected StateDead after force-terminate, got %v", sess.State())
	}
}
