package topn

import (
	"testing"
	"time"

	"github.com/dshills/clapfilter/internal/match"
)

func mi(score int32, text string) match.MatchedItem {
	return match.MatchedItem{
		Item:   match.Item{RawText: text, MatchText: text},
		Result: match.MatchResult{Score: score, Rank: match.RankCriteria{Score: score}},
	}
}

func TestWindowKeepsOnlyTopK(t *testing.T) {
	w := NewWindow(2, Printer{ContainerWidth: 80}, nil)
	w.Observe(mi(1, "a"), true)
	w.Observe(mi(5, "b"), true)
	w.Observe(mi(3, "c"), true)

	snap := w.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 items, got %d", len(snap))
	}
	if snap[0].Result.Score != 5 || snap[1].Result.Score != 3 {
		t.Fatalf("unexpected order: %+v", snap)
	}
}

func TestWindowRejectsWorseThanCurrentFloor(t *testing.T) {
	w := NewWindow(1, Printer{ContainerWidth: 80}, nil)
	w.Observe(mi(5, "best"), true)
	w.Observe(mi(1, "worse"), true)

	snap := w.Snapshot()
	if len(snap) != 1 || snap[0].Result.Score != 5 {
		t.Fatalf("expected floor to reject a worse item, got %+v", snap)
	}
}

func TestWindowCountsIncludeNonMatches(t *testing.T) {
	w := NewWindow(5, Printer{ContainerWidth: 80}, nil)
	w.Observe(mi(1, "a"), true)
	w.Observe(match.MatchedItem{}, false)

	processed, matched := w.Counts()
	if processed != 2 || matched != 1 {
		t.Fatalf("expected processed=2 matched=1, got processed=%d matched=%d", processed, matched)
	}
}

func TestWindowRateLimitsPublication(t *testing.T) {
	var updates []Update
	sink := SinkFunc(func(u Update) { updates = append(updates, u) })
	w := NewWindow(5, Printer{ContainerWidth: 80}, sink)
	w.UpdateInterval = time.Hour

	w.Observe(mi(1, "a"), true)
	w.Observe(mi(2, "b"), true)

	if len(updates) != 1 {
		t.Fatalf("expected exactly one publish under the rate limit, got %d", len(updates))
	}
}

func TestWindowFinishAlwaysPublishesFull(t *testing.T) {
	var updates []Update
	sink := SinkFunc(func(u Update) { updates = append(updates, u) })
	w := NewWindow(5, Printer{ContainerWidth: 80}, sink)
	w.UpdateInterval = time.Hour

	w.Observe(mi(1, "a"), true)
	w.Finish()

	if len(updates) != 2 {
		t.Fatalf("expected Observe + Finish to each publish, got %d", len(updates))
	}
	last := updates[len(updates)-1]
	if !last.Full {
		t.Fatalf("expected Finish update to be full")
	}
}

func TestTrimTextShortTextUntouched(t *testing.T) {
	text := "short.go"
	indices := []int{0, 1}
	out, idx, trimmed := TrimText(text, indices, 80, 4)
	if trimmed {
		t.Fatalf("did not expect truncation for short text")
	}
	if out != text {
		t.Fatalf("expected text unchanged, got %q", out)
	}
	if len(idx) != len(indices) {
		t.Fatalf("expected indices unchanged in count")
	}
}

func TestTrimTextLongPathTruncates(t *testing.T) {
	text := "directories/are/nested/a/lot/then/the/matched/items/will/be/invisible/file.scss"
	indices := []int{70, 71, 72, 73} // "file" inside the basename
	out, idx, trimmed := TrimText(text, indices, 50, 4)
	if !trimmed {
		t.Fatalf("expected truncation for a long path")
	}
	if len(out) == 0 || len(idx) == 0 {
		t.Fatalf("expected non-empty truncated output and indices")
	}
	for i := 1; i < len(idx); i++ {
		if idx[i] <= idx[i-1] {
			t.Fatalf("expected truncated indices strictly increasing, got %v", idx)
		}
	}
}
