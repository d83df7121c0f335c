package match

import (
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/dshills/clapfilter/internal/fuzzy"
)

// ScopeFunc narrows an item down to the substring that should actually be
// scored, e.g. the basename of a file path rather than the whole path,
// and reports the byte offset of that substring within MatchText so
// indices can be translated back.
type ScopeFunc func(matchText string) (scope string, offset int)

// FullScope is the default ScopeFunc: score the whole MatchText.
func FullScope(matchText string) (string, int) {
	return matchText, 0
}

// Options configures bonus weights and scope selection for a Matcher.
// All bonus fields default to zero (no bonus) when left unset.
type Options struct {
	Scope ScopeFunc

	// Cwd, when non-empty, is compared against Item.Payload via
	// CwdPrefix to decide whether the CwdBonus applies.
	Cwd string
	// CwdPrefix extracts the path to compare against Cwd from an item,
	// used only when Cwd is non-empty.
	CwdPrefix func(Item) string

	FileNameBonus        int32
	LanguageKeywordBonus int32
	CwdBonus             int32

	// IsLanguageKeyword reports whether the matched scope text names a
	// language keyword, applied when non-nil.
	IsLanguageKeyword func(scope string) bool
	// IsBasenameMatch reports whether the matched indices (in scope
	// coordinates) fall entirely within scope's final path segment.
	IsBasenameMatch func(scope string, indices []int) bool
}

func (o Options) scope() ScopeFunc {
	if o.Scope != nil {
		return o.Scope
	}
	return FullScope
}

// Matcher applies one parsed Query, including its exact-term gate built
// once up front, against any number of Items.
type Matcher struct {
	query Query
	opts  Options
	slab  *fuzzy.Slab
	gate  *exactGate
}

// exactGate bundles the required and forbidden substring sets of a query
// into a single automaton so a multi-term query gates each item with one
// scan instead of one strings.Contains per term.
type exactGate struct {
	ac       *ahocorasick.Matcher
	required []int // indices into patterns that must all be present
	inverse  []int // indices into patterns that must all be absent
	patterns []string
	prefixes []Term
	suffixes []Term
}

// NewMatcher parses raw and builds the Matcher, including its exact-term
// automaton, once. Reuse the returned Matcher across every Item in a
// filter run; do not rebuild it per item.
func NewMatcher(raw string, opts Options) *Matcher {
	q := ParseQuery(raw)
	return &Matcher{
		query: q,
		opts:  opts,
		slab:  fuzzy.NewSlab(),
		gate:  buildGate(q),
	}
}

func buildGate(q Query) *exactGate {
	g := &exactGate{}
	for _, t := range q.Terms {
		switch t.Kind {
		case ExactSubstring:
			g.required = append(g.required, len(g.patterns))
			g.patterns = append(g.patterns, t.Text)
		case InverseSubstring:
			g.inverse = append(g.inverse, len(g.patterns))
			g.patterns = append(g.patterns, t.Text)
		case ExactPrefix, ExactSuffix:
			g.prefixes = append(g.prefixes, t)
		}
	}
	if len(g.patterns) > 0 {
		g.ac = ahocorasick.NewStringMatcher(g.patterns)
	}
	return g
}

// passes reports whether scope satisfies every exact/inverse/prefix/
// suffix term of the query.
func (g *exactGate) passes(scope string) bool {
	for _, t := range g.prefixes {
		if t.Kind == ExactPrefix && !strings.HasPrefix(scope, t.Text) {
			return false
		}
		if t.Kind == ExactSuffix && !strings.HasSuffix(scope, t.Text) {
			return false
		}
	}
	if g.ac == nil {
		return true
	}
	hit := make(map[int]bool, len(g.patterns))
	for _, idx := range g.ac.Match([]byte(scope)) {
		hit[idx] = true
	}
	for _, idx := range g.required {
		if !hit[idx] {
			return false
		}
	}
	for _, idx := range g.inverse {
		if hit[idx] {
			return false
		}
	}
	return true
}

// Match scores item against the Matcher's query, using the Matcher's own
// Slab. Only safe for single-goroutine use; concurrent callers (the
// parallel filter driver) must use MatchWithSlab with a Slab of their
// own instead, since a Slab's scratch matrices are mutated in place.
// The second return value is false when the item is rejected by an
// inverse/exact term or fails to match the primary fuzzy term.
func (m *Matcher) Match(item Item) (MatchedItem, bool) {
	return m.MatchWithSlab(item, m.slab)
}

// MatchWithSlab is Match, scoring with the given Slab instead of the
// Matcher's own. The Matcher itself holds no other mutable per-call
// state, so one Matcher may be shared read-only across goroutines as
// long as each goroutine passes its own Slab.
func (m *Matcher) MatchWithSlab(item Item, slab *fuzzy.Slab) (MatchedItem, bool) {
	scope, offset := m.opts.scope()(item.MatchText)
	if !m.gate.passes(scope) {
		return MatchedItem{}, false
	}

	var score int32
	var indices []int
	if m.query.Primary != nil {
		r := fuzzy.Score(slab, m.query.Primary.Text, scope)
		if !r.OK {
			return MatchedItem{}, false
		}
		score, indices = r.Score, r.Indices
	}

	score += m.bonuses(scope, indices, item)

	translated := make([]int, len(indices))
	for i, idx := range indices {
		translated[i] = idx + offset
	}
	if item.RankBonusHook != nil {
		translated = item.RankBonusHook(translated)
	}

	var begin, end int
	if len(translated) > 0 {
		begin, end = translated[0], translated[len(translated)-1]
	}
	result := MatchResult{
		Score:   score,
		Indices: translated,
		Rank: RankCriteria{
			Score:     score,
			NegBegin:  -begin,
			NegEnd:    -end,
			NegLength: -len(item.MatchText),
		},
	}
	return MatchedItem{Item: item, Result: result}, true
}

func (m *Matcher) bonuses(scope string, indices []int, item Item) int32 {
	var total int32
	if m.opts.IsLanguageKeyword != nil && m.opts.IsLanguageKeyword(scope) {
		total += m.opts.LanguageKeywordBonus
	}
	if m.opts.IsBasenameMatch != nil && m.opts.IsBasenameMatch(scope, indices) {
		total += m.opts.FileNameBonus
	}
	if m.opts.Cwd != "" && m.opts.CwdPrefix != nil {
		if strings.HasPrefix(m.opts.CwdPrefix(item), m.opts.Cwd) {
			total += m.opts.CwdBonus
		}
	}
	return total
}
