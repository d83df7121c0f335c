package topn

import (
	"strings"

	"github.com/rivo/uniseg"
)

// runeWidth returns the display width of a single rune, expanding tabs
// against the running column w per tabstop.
func runeWidth(r rune, w, tabstop int) int {
	if r == '\t' {
		return tabstop - (w % tabstop)
	}
	return uniseg.StringWidth(string(r))
}

// runeLayout walks text rune by rune, recording each rune's byte offset
// and the cumulative display width through that rune (inclusive) —
// the Go analogue of vim-clap's accumulate_text_width.
func runeLayout(text string, tabstop int) (byteOffsets []int, widths []int) {
	w := 0
	for i, r := range text {
		w += runeWidth(r, w, tabstop)
		byteOffsets = append(byteOffsets, i)
		widths = append(widths, w)
	}
	return
}

func byteToRuneIndex(byteOffsets []int, b int) int {
	for i, off := range byteOffsets {
		if off == b {
			return i
		}
	}
	return len(byteOffsets) - 1
}

func trimLeft(runes []rune, width, tabstop int) ([]rune, int) {
	trimmed := 0
	if len(runes) > width+2 {
		diff := len(runes) - width - 2
		runes = runes[diff:]
		trimmed = diff
	}
	for sumWidth(runes, tabstop) > width && len(runes) > 0 {
		runes = runes[1:]
		trimmed++
	}
	return runes, trimmed
}

func trimRight(runes []rune, width, tabstop int) []rune {
	w := 0
	for i, r := range runes {
		cw := runeWidth(r, w, tabstop)
		if w+cw > width {
			return runes[:i]
		}
		w += cw
	}
	return runes
}

func sumWidth(runes []rune, tabstop int) int {
	w := 0
	for _, r := range runes {
		w += runeWidth(r, w, tabstop)
	}
	return w
}

// TrimText fits text into containerWidth display columns, anchoring the
// visible window around the match so truncated text stays recognizable:
// "..suffix" when the match sits near the end, "prefix.." near the
// start, "..middle.." otherwise. indices are byte offsets into text (as
// produced by the scorer); the returned indices are rune positions
// within the returned, possibly-truncated string. trimmed reports
// whether any truncation happened.
func TrimText(text string, indices []int, containerWidth, tabstop int) (string, []int, bool) {
	if len(indices) == 0 || containerWidth <= 4 {
		return text, indices, false
	}

	byteOffsets, widths := runeLayout(text, tabstop)
	if len(widths) == 0 {
		return text, indices, false
	}
	fullWidth := widths[len(widths)-1]
	if fullWidth <= containerWidth {
		return text, indices, false
	}

	matchStart := byteToRuneIndex(byteOffsets, indices[0])
	matchEnd := byteToRuneIndex(byteOffsets, indices[len(indices)-1])

	var w1 int
	if matchStart > 0 {
		w1 = widths[matchStart-1]
	}
	w2 := widths[matchEnd] - w1
	w3 := fullWidth - w1 - w2

	runes := []rune(text)
	runeIndices := make([]int, len(indices))
	for i, b := range indices {
		runeIndices[i] = byteToRuneIndex(byteOffsets, b)
	}

	switch {
	case (w1 > w3 && w2+w3 <= containerWidth) || w3 <= 2:
		trimmedRunes, trimmedCount := trimLeft(runes, containerWidth-2, tabstop)
		out := ".." + string(trimmedRunes)
		shifted := make([]int, 0, len(runeIndices))
		for _, idx := range runeIndices {
			v := idx + 2 - trimmedCount
			if v > 1 {
				shifted = append(shifted, v)
			}
		}
		return out, shifted, true
	case w1 <= w3 && w1+w2 <= containerWidth:
		trimmedRunes := trimRight(runes, containerWidth-2, tabstop)
		out := string(trimmedRunes) + ".."
		shifted := make([]int, 0, len(runeIndices))
		for _, idx := range runeIndices {
			if idx+2 < containerWidth {
				shifted = append(shifted, idx)
			}
		}
		return out, shifted, true
	default:
		left := runes[matchStart:]
		trimmedRunes := trimRight(left, containerWidth-4, tabstop)
		out := ".." + string(trimmedRunes) + ".."
		shifted := make([]int, 0, len(runeIndices))
		for _, idx := range runeIndices {
			v := idx - matchStart + 2
			if v+2 < containerWidth {
				shifted = append(shifted, v)
			}
		}
		return out, shifted, true
	}
}

// stripTab replaces literal tabs with a single space. Printer.Render
// does not call it; tabs are measured against Tabstop instead.
func stripTab(s string) string {
	if !strings.ContainsRune(s, '\t') {
		return s
	}
	return strings.ReplaceAll(s, "\t", " ")
}
