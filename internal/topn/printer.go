package topn

import (
	"github.com/rivo/uniseg"

	"github.com/dshills/clapfilter/internal/match"
)

// IconFunc returns the decorative prefix (if any) to render before an
// item's text, keyed on the item so a provider can vary icons by file
// type, tag kind, and so on.
type IconFunc func(match.Item) string

// Printer renders a MatchedItem into a display line and a parallel
// array of match-index columns, truncating long lines to fit
// ContainerWidth and shifting indices past any icon prefix.
type Printer struct {
	ContainerWidth int
	Tabstop        int
	Icon           IconFunc
}

// Render produces the display line and display-coordinate indices for
// mi. Indices are rune/column positions within the returned line, not
// byte offsets — they already account for truncation and the icon
// prefix width.
func (p Printer) Render(mi match.MatchedItem) (string, []int) {
	text := mi.Item.RawText
	indices := mi.Result.Indices

	tabstop := p.Tabstop
	if tabstop <= 0 {
		tabstop = 4
	}

	width := p.ContainerWidth
	var prefix string
	var prefixWidth int
	if p.Icon != nil {
		prefix = p.Icon(mi.Item)
		prefixWidth = uniseg.StringWidth(prefix)
		if width > 0 {
			width -= prefixWidth
		}
	}

	line, shiftedIndices := text, byteIndicesToRunes(text, indices)
	if width > 0 {
		if trimmedLine, trimmedIdx, trimmed := TrimText(text, indices, width, tabstop); trimmed {
			line, shiftedIndices = trimmedLine, trimmedIdx
		}
	}

	if prefixWidth > 0 {
		for i := range shiftedIndices {
			shiftedIndices[i] += prefixWidth
		}
	}
	return prefix + line, shiftedIndices
}

func byteIndicesToRunes(text string, indices []int) []int {
	if len(indices) == 0 {
		return nil
	}
	byteOffsets, _ := runeLayout(text, 4)
	out := make([]int, len(indices))
	for i, b := range indices {
		out[i] = byteToRuneIndex(byteOffsets, b)
	}
	return out
}
