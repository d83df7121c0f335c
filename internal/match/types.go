package match

// Item is one candidate fed to a filter run.
type Item struct {
	// RawText is what gets displayed.
	RawText string
	// MatchText is what gets scored; usually equal to RawText, but a
	// provider may want scoring to ignore a decorative prefix (an icon)
	// or operate on a narrower scope (a file path's basename).
	MatchText string
	// RankBonusHook remaps indices produced against MatchText back into
	// RawText byte coordinates. Nil means MatchText and RawText share
	// coordinates (the common case).
	RankBonusHook func(indices []int) []int
	// Payload is provider-specific data: a buffer id, a tag location, a
	// grep file:line pair.
	Payload any
}

// RankCriteria is the ordered tie-break vector used to sort MatchedItems:
// highest Score first, then earliest match start, then earliest match
// end, then shortest match text. Comparisons happen left to right.
type RankCriteria struct {
	Score     int32
	NegBegin  int
	NegEnd    int
	NegLength int
}

// Less reports whether a ranks strictly better than b (a should sort
// before b in a descending-by-rank ordering).
func (a RankCriteria) Less(b RankCriteria) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.NegBegin != b.NegBegin {
		return a.NegBegin > b.NegBegin
	}
	if a.NegEnd != b.NegEnd {
		return a.NegEnd > b.NegEnd
	}
	return a.NegLength > b.NegLength
}

// MatchResult is the scoring outcome for one item against one query.
type MatchResult struct {
	Score   int32
	Indices []int // byte offsets into Item.RawText, strictly increasing
	Rank    RankCriteria
}

// MatchedItem pairs an Item with the MatchResult that ranked it.
type MatchedItem struct {
	Item   Item
	Result MatchResult
}
