package filter

import (
	"context"
	"testing"
	"time"

	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/topn"
)

func TestDriverRunCollectsMatches(t *testing.T) {
	items := []match.Item{
		{RawText: "foo.go", MatchText: "foo.go"},
		{RawText: "bar.go", MatchText: "bar.go"},
		{RawText: "foobar.go", MatchText: "foobar.go"},
	}
	src := NewSliceSource(items)
	m := match.NewMatcher("foo", match.Options{})
	window := topn.NewWindow(10, topn.Printer{ContainerWidth: 80}, nil)

	d := NewDriver(2)
	if err := d.Run(context.Background(), src, m, window); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	snap := window.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 matches (foo.go, foobar.go), got %d: %+v", len(snap), snap)
	}
	processed, matched := window.Counts()
	if processed != 3 || matched != 2 {
		t.Fatalf("expected processed=3 matched=2, got processed=%d matched=%d", processed, matched)
	}
}

func TestDriverRunRespectsCancellation(t *testing.T) {
	items := make([]match.Item, 100000)
	for i := range items {
		items[i] = match.Item{RawText: "item", MatchText: "item"}
	}
	src := NewSliceSource(items)
	m := match.NewMatcher("item", match.Options{})
	window := topn.NewWindow(10, topn.Printer{ContainerWidth: 80}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDriver(4)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, src, m, window) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return promptly after cancellation")
	}
}

func TestDriverEmptySource(t *testing.T) {
	src := NewSliceSource(nil)
	m := match.NewMatcher("anything", match.Options{})
	window := topn.NewWindow(10, topn.Printer{ContainerWidth: 80}, nil)

	d := NewDriver(2)
	if err := d.Run(context.Background(), src, m, window); err != nil {
		t.Fatalf("Run returned error on empty source: %v", err)
	}
	if len(window.Snapshot()) != 0 {
		t.Fatalf("expected no matches")
	}
}
