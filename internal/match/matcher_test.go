package match

import "testing"

func TestParseQuerySigils(t *testing.T) {
	q := ParseQuery("foo 'bar ^baz $qux !nope")
	if q.Primary == nil || q.Primary.Text != "foo" {
		t.Fatalf("expected primary term foo, got %+v", q.Primary)
	}
	want := []Term{
		{Kind: Fuzzy, Text: "foo"},
		{Kind: ExactSubstring, Text: "bar"},
		{Kind: ExactPrefix, Text: "baz"},
		{Kind: ExactSuffix, Text: "qux"},
		{Kind: InverseSubstring, Text: "nope"},
	}
	if len(q.Terms) != len(want) {
		t.Fatalf("expected %d terms, got %d: %+v", len(want), len(q.Terms), q.Terms)
	}
	for i, w := range want {
		if q.Terms[i] != w {
			t.Fatalf("term %d: got %+v, want %+v", i, q.Terms[i], w)
		}
	}
}

func TestParseQuerySecondFuzzyBecomesSubstring(t *testing.T) {
	q := ParseQuery("foo bar")
	if q.Primary == nil || q.Primary.Text != "foo" {
		t.Fatalf("expected primary foo, got %+v", q.Primary)
	}
	if q.Terms[1].Kind != ExactSubstring {
		t.Fatalf("expected second term to become ExactSubstring, got %+v", q.Terms[1])
	}
}

func TestMatcherRejectsInverseTerm(t *testing.T) {
	m := NewMatcher("foo !test", Options{})
	_, ok := m.Match(Item{RawText: "test_foo.go", MatchText: "test_foo.go"})
	if ok {
		t.Fatalf("expected inverse term to reject item")
	}
}

func TestMatcherRequiresExactSubstring(t *testing.T) {
	m := NewMatcher("foo 'handler", Options{})
	if _, ok := m.Match(Item{RawText: "foo_service.go", MatchText: "foo_service.go"}); ok {
		t.Fatalf("expected rejection: missing required substring")
	}
	mi, ok := m.Match(Item{RawText: "foo_handler.go", MatchText: "foo_handler.go"})
	if !ok {
		t.Fatalf("expected match with required substring present")
	}
	if mi.Result.Score == 0 {
		t.Fatalf("expected a positive score")
	}
}

func TestMatcherExactPrefixSuffix(t *testing.T) {
	m := NewMatcher("main ^cmd $.go", Options{})
	if _, ok := m.Match(Item{RawText: "internal/main.go", MatchText: "internal/main.go"}); ok {
		t.Fatalf("expected rejection: does not start with cmd")
	}
	if _, ok := m.Match(Item{RawText: "cmd/main.txt", MatchText: "cmd/main.txt"}); ok {
		t.Fatalf("expected rejection: does not end with .go")
	}
	if _, ok := m.Match(Item{RawText: "cmd/main.go", MatchText: "cmd/main.go"}); !ok {
		t.Fatalf("expected match")
	}
}

func TestMatcherIndicesTranslatedByScope(t *testing.T) {
	opts := Options{
		Scope: func(matchText string) (string, int) {
			idx := 0
			for i := len(matchText) - 1; i >= 0; i-- {
				if matchText[i] == '/' {
					idx = i + 1
					break
				}
			}
			return matchText[idx:], idx
		},
	}
	m := NewMatcher("main", opts)
	mi, ok := m.Match(Item{RawText: "cmd/main.go", MatchText: "cmd/main.go"})
	if !ok {
		t.Fatalf("expected match")
	}
	for _, idx := range mi.Result.Indices {
		if idx < 4 {
			t.Fatalf("expected indices translated past the scope offset, got %v", mi.Result.Indices)
		}
	}
}

func TestMatcherBonuses(t *testing.T) {
	opts := Options{
		FileNameBonus: 100,
		IsBasenameMatch: func(scope string, indices []int) bool {
			return true
		},
	}
	plain := NewMatcher("main", Options{})
	bonus := NewMatcher("main", opts)

	plainResult, _ := plain.Match(Item{RawText: "cmd/main.go", MatchText: "cmd/main.go"})
	bonusResult, _ := bonus.Match(Item{RawText: "cmd/main.go", MatchText: "cmd/main.go"})

	if bonusResult.Result.Score <= plainResult.Result.Score {
		t.Fatalf("expected basename bonus to raise score: plain=%d bonus=%d", plainResult.Result.Score, bonusResult.Result.Score)
	}
}

func TestMatcherEmptyQueryMatchesEverything(t *testing.T) {
	m := NewMatcher("", Options{})
	mi, ok := m.Match(Item{RawText: "anything.go", MatchText: "anything.go"})
	if !ok {
		t.Fatalf("expected empty query to match")
	}
	if len(mi.Result.Indices) != 0 {
		t.Fatalf("expected no indices for empty query, got %v", mi.Result.Indices)
	}
}
