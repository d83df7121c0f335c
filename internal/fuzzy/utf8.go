package fuzzy

import (
	"unicode"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// runeBonus mirrors byteBonus for the Unicode alphabet: digits and
// letters inherit the boundary class of whatever precedes them, a
// lowercase-to-uppercase transition gets the capital bonus, and every
// other rune is itself treated as a low, default-bonus boundary.
func runeBonus(prev, cur rune) Score {
	switch {
	case unicode.IsDigit(cur), unicode.IsLower(cur):
		return runeBonusForPrev(prev)
	case unicode.IsUpper(cur):
		if unicode.IsLower(prev) {
			return bonusCapital
		}
		return runeBonusForPrev(prev)
	default:
		return bonusDefault
	}
}

func runeBonusForPrev(prev rune) Score {
	switch prev {
	case '/':
		return bonusSlash
	case '-', '_', ' ':
		return bonusWord
	case '.':
		return bonusDot
	default:
		return bonusDefault
	}
}

func runeEqualFold(a, b rune) bool {
	return a == b || unicode.ToLower(a) == unicode.ToLower(b)
}

// utf8Subsequence is the Go analogue of the fulf crate's memchr-driven
// reverse-case pre-filter: fold both strings once up front (a Unicode
// correct fold, not merely ASCII case-flip) and walk them as a cheap
// subsequence check before paying for the DP. Unlike the original it
// does not track byte offsets through the fold, since it only needs a
// yes/no answer.
func utf8Subsequence(needle, haystack string) bool {
	fn := []rune(foldCaser.String(needle))
	fh := []rune(foldCaser.String(haystack))
	i := 0
	for j := 0; i < len(fn) && j < len(fh); j++ {
		if fn[i] == fh[j] {
			i++
		}
	}
	return i == len(fn)
}

func scoreUTF8(slab *Slab, needle, haystack string) (Score, []int, bool) {
	nrunes := []rune(needle)
	hrunes := []rune(haystack)
	nlen, hlen := len(nrunes), len(hrunes)
	if nlen == 0 {
		return ScoreMin, nil, true
	}
	if nlen > hlen {
		return 0, nil, false
	}
	if !utf8Subsequence(needle, haystack) {
		return 0, nil, false
	}

	byteOffsets := runeByteOffsets(haystack, hlen)

	if nlen == hlen {
		return ScoreMax, byteOffsets, true
	}

	bonus := make([]Score, hlen)
	var prev rune = '/'
	for j := 0; j < hlen; j++ {
		bonus[j] = runeBonus(prev, hrunes[j])
		prev = hrunes[j]
	}

	d, m := slab.matrices(nlen, hlen)

	for i := 0; i < nlen; i++ {
		row := i * hlen
		prevRow := (i - 1) * hlen
		gap := scoreGapInner
		if i == nlen-1 {
			gap = scoreGapTrailing
		}
		prevScore := ScoreMin
		nc := nrunes[i]
		for j := 0; j < hlen; j++ {
			if runeEqualFold(nc, hrunes[j]) {
				var score Score
				switch {
				case i == 0:
					score = bonus[j] + Score(j)*scoreGapLeading
				case j > 0:
					diag := m[prevRow+j-1] + bonus[j]
					consec := d[prevRow+j-1] + scoreMatchConsecutive
					if consec > diag {
						score = consec
					} else {
						score = diag
					}
				default:
					score = ScoreMin
				}
				if cand := prevScore + gap; cand > score {
					prevScore = cand
				} else {
					prevScore = score
				}
				d[row+j] = score
				m[row+j] = prevScore
			} else {
				prevScore += gap
				d[row+j] = ScoreMin
				m[row+j] = prevScore
			}
		}
	}

	finalScore := m[(nlen-1)*hlen+hlen-1]
	if finalScore <= ScoreMin {
		return 0, nil, false
	}

	runeIndices := make([]int, nlen)
	matchRequired := false
	j := hlen - 1
	for i := nlen - 1; i >= 0; i-- {
		for ; j >= 0; j-- {
			row := i * hlen
			dv := d[row+j]
			mv := m[row+j]
			if dv <= ScoreMin {
				continue
			}
			var last Score
			if i > 0 && j > 0 {
				last = d[(i-1)*hlen+j-1]
			}
			if matchRequired || dv == mv {
				matchRequired = i > 0 && j > 0 && mv == last+scoreMatchConsecutive
				runeIndices[i] = j
				j--
				break
			}
		}
	}

	indices := make([]int, nlen)
	for i, ri := range runeIndices {
		indices[i] = byteOffsets[ri]
	}
	return finalScore, indices, true
}

func runeByteOffsets(s string, n int) []int {
	offsets := make([]int, 0, n)
	for i := range s {
		offsets = append(offsets, i)
	}
	return offsets
}
