package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dshills/clapfilter/internal/cache"
	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/integration/process"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/session"
)

// softCaptureTimeout bounds how long a freshly spawned shell-command
// source gets to finish before the session falls back to streaming it
// live. The command keeps running regardless; a completion past the
// timeout still populates the cache digest in the background.
const softCaptureTimeout = 300 * time.Millisecond

// commandRace drains a filter.CommandSource exactly once, forwarding
// each item to the session live while also accumulating every line it
// has seen so far so a completion (within or after the soft timeout)
// can be persisted to the Cache Digest Store.
type commandRace struct {
	cs        *filter.CommandSource
	forward   chan match.Item
	done      chan struct{}
	err       error
	mu        sync.Mutex
	lines     []string
}

func newCommandRace(ctx context.Context, cs *filter.CommandSource) *commandRace {
	r := &commandRace{
		cs:      cs,
		forward: make(chan match.Item, 256),
		done:    make(chan struct{}),
	}
	go r.drain(ctx)
	return r
}

func (r *commandRace) drain(ctx context.Context) {
	defer close(r.forward)
	defer close(r.done)
	for {
		item, ok, err := r.cs.Next(ctx)
		if err != nil {
			r.err = err
			return
		}
		if !ok {
			return
		}
		r.mu.Lock()
		r.lines = append(r.lines, item.RawText)
		r.mu.Unlock()
		select {
		case r.forward <- item:
		case <-ctx.Done():
			return
		}
	}
}

// Next implements filter.Source by reading whatever the drain goroutine
// has forwarded so far.
func (r *commandRace) Next(ctx context.Context) (match.Item, bool, error) {
	select {
	case item, ok := <-r.forward:
		if !ok {
			return match.Item{}, false, r.err
		}
		return item, true, nil
	case <-ctx.Done():
		return match.Item{}, false, ctx.Err()
	}
}

// Close implements filter.Source.
func (r *commandRace) Close() error { return r.cs.Close() }

func (r *commandRace) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// runCommandSource spawns shellCommand in dir and races its completion
// against softCaptureTimeout. A command that finishes in time yields a
// fully materialized, already-cached Source; one that doesn't yields a
// live-streaming Source, with the capture continuing in the background
// so a later new_session can reuse the digest.
func runCommandSource(ctx context.Context, supervisor *process.Supervisor, store *cache.Store, shellCommand, dir string) (filter.Source, session.ScaleEstimate, error) {
	cs, err := filter.NewCommandSource(ctx, supervisor, shellCommand, dir)
	if err != nil {
		return nil, session.ScaleEstimate{}, err
	}
	race := newCommandRace(ctx, cs)

	select {
	case <-race.done:
		lines := race.snapshot()
		items := make([]match.Item, len(lines))
		for i, l := range lines {
			items[i] = match.Item{RawText: l, MatchText: l}
		}
		if store != nil && race.err == nil {
			_, _ = store.Store(shellCommand, dir, strings.NewReader(strings.Join(lines, "\n")+"\n"))
		}
		return filter.NewSliceSource(items), session.ScaleEstimate{Kind: session.KindSmall, Count: len(items)}, nil

	case <-time.After(softCaptureTimeout):
		if store != nil {
			go func() {
				<-race.done
				if race.err == nil {
					lines := race.snapshot()
					_, _ = store.Store(shellCommand, dir, strings.NewReader(strings.Join(lines, "\n")+"\n"))
				}
			}()
		}
		return race, session.ScaleEstimate{Kind: session.KindCommand, Cmd: shellCommand}, nil

	case <-ctx.Done():
		race.cs.Close()
		return nil, session.ScaleEstimate{}, ctx.Err()
	}
}
