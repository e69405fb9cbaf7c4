// Package textdiff computes, cleans up and applies character level edit
// scripts between texts. Positions and lengths are counted in runes.
//
// Texts are treated as UTF-8. Invalid bytes are replaced with U+FFFD when a
// text is split into runes, so a diff only reproduces its input byte for
// byte when the input is valid UTF-8.
package textdiff

import (
	"strings"
	"time"
)

type Operation int8

const (
	OpDelete Operation = -1
	OpEqual  Operation = 0
	OpInsert Operation = 1
)

func (o Operation) String() string {
	switch o {
	case OpDelete:
		return "DELETE"
	case OpInsert:
		return "INSERT"
	default:
		return "EQUAL"
	}
}

type Diff struct {
	Type Operation
	Text string
}

// DiffMatchPatch holds the tuning knobs shared by diff, match and patch.
type DiffMatchPatch struct {
	// DiffTimeout bounds a single diff. Zero means no limit.
	DiffTimeout time.Duration
	// MatchThreshold is the fuzzy match tolerance: 0.0 exact, 1.0 anything.
	MatchThreshold float64
	// MatchDistance is how far from the expected location a match may drift
	// before it is scored as a complete mismatch.
	MatchDistance int
	// PatchDeleteThreshold bounds how different deleted text may be from the
	// expected text for large deletions.
	PatchDeleteThreshold float64
	// PatchMargin is the context kept around each patch.
	PatchMargin int
	// MatchMaxBits is the bit width used by the bitap matcher.
	MatchMaxBits int
}

func New() *DiffMatchPatch {
	return &DiffMatchPatch{
		DiffTimeout:          time.Second,
		MatchThreshold:       0.5,
		MatchDistance:        1000,
		PatchDeleteThreshold: 0.5,
		PatchMargin:          4,
		MatchMaxBits:         32,
	}
}

// Diff returns a semantically cleaned up edit script turning text1 into text2.
func (d *DiffMatchPatch) Diff(text1, text2 string) []Diff {
	return d.CleanupSemantic(d.DiffMain(text1, text2, true))
}

// DiffMain returns the raw edit script turning text1 into text2. When
// checkLines is set, large inputs are first diffed line by line.
func (d *DiffMatchPatch) DiffMain(text1, text2 string, checkLines bool) []Diff {
	return d.diffMainRunes([]rune(text1), []rune(text2), checkLines, d.deadline())
}

func (d *DiffMatchPatch) deadline() time.Time {
	if d.DiffTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d.DiffTimeout)
}

func (d *DiffMatchPatch) diffMainRunes(text1, text2 []rune, checkLines bool, deadline time.Time) []Diff {
	if runesEqual(text1, text2) {
		if len(text1) == 0 {
			return nil
		}
		return []Diff{{OpEqual, string(text1)}}
	}

	n := commonPrefixLength(text1, text2)
	prefix := text1[:n]
	text1 = text1[n:]
	text2 = text2[n:]

	n = commonSuffixLength(text1, text2)
	suffix := text1[len(text1)-n:]
	text1 = text1[:len(text1)-n]
	text2 = text2[:len(text2)-n]

	diffs := d.compute(text1, text2, checkLines, deadline)

	if len(prefix) > 0 {
		diffs = append([]Diff{{OpEqual, string(prefix)}}, diffs...)
	}
	if len(suffix) > 0 {
		diffs = append(diffs, Diff{OpEqual, string(suffix)})
	}
	return d.CleanupMerge(diffs)
}

// compute diffs two texts that share no common prefix or suffix.
func (d *DiffMatchPatch) compute(text1, text2 []rune, checkLines bool, deadline time.Time) []Diff {
	if len(text1) == 0 {
		return []Diff{{OpInsert, string(text2)}}
	}
	if len(text2) == 0 {
		return []Diff{{OpDelete, string(text1)}}
	}

	long, short := text1, text2
	if len(text1) < len(text2) {
		long, short = text2, text1
	}
	if i := runesIndex(long, short, 0); i != -1 {
		op := OpInsert
		if len(text1) > len(text2) {
			op = OpDelete
		}
		var diffs []Diff
		if i > 0 {
			diffs = append(diffs, Diff{op, string(long[:i])})
		}
		diffs = append(diffs, Diff{OpEqual, string(short)})
		if rest := long[i+len(short):]; len(rest) > 0 {
			diffs = append(diffs, Diff{op, string(rest)})
		}
		return diffs
	}
	if len(short) == 1 {
		return []Diff{{OpDelete, string(text1)}, {OpInsert, string(text2)}}
	}

	if hm := d.halfMatch(text1, text2); hm != nil {
		a := d.diffMainRunes(hm[0], hm[2], checkLines, deadline)
		b := d.diffMainRunes(hm[1], hm[3], checkLines, deadline)
		diffs := append(a, Diff{OpEqual, string(hm[4])})
		return append(diffs, b...)
	}

	if checkLines && len(text1) > 100 && len(text2) > 100 {
		return d.lineMode(text1, text2, deadline)
	}
	return d.bisect(text1, text2, deadline)
}

// bisect finds the middle snake of the edit graph and splits the problem in
// two there. When the deadline passes it gives up with a delete plus insert.
func (d *DiffMatchPatch) bisect(text1, text2 []rune, deadline time.Time) []Diff {
	len1, len2 := len(text1), len(text2)
	maxD := (len1 + len2 + 1) / 2
	vOffset := maxD
	vLength := 2 * maxD

	v1 := make([]int, vLength)
	v2 := make([]int, vLength)
	for i := range v1 {
		v1[i] = -1
		v2[i] = -1
	}
	v1[vOffset+1] = 0
	v2[vOffset+1] = 0

	delta := len1 - len2
	// With an odd delta the forward path collides with the reverse path.
	front := delta%2 != 0
	k1start, k1end, k2start, k2end := 0, 0, 0, 0

	for step := 0; step < maxD; step++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		for k1 := -step + k1start; k1 <= step-k1end; k1 += 2 {
			k1Offset := vOffset + k1
			var x1 int
			if k1 == -step || (k1 != step && v1[k1Offset-1] < v1[k1Offset+1]) {
				x1 = v1[k1Offset+1]
			} else {
				x1 = v1[k1Offset-1] + 1
			}
			y1 := x1 - k1
			for x1 < len1 && y1 < len2 && text1[x1] == text2[y1] {
				x1++
				y1++
			}
			v1[k1Offset] = x1
			switch {
			case x1 > len1:
				k1end += 2
			case y1 > len2:
				k1start += 2
			case front:
				k2Offset := vOffset + delta - k1
				if k2Offset >= 0 && k2Offset < vLength && v2[k2Offset] != -1 {
					x2 := len1 - v2[k2Offset]
					if x1 >= x2 {
						return d.bisectSplit(text1, text2, x1, y1, deadline)
					}
				}
			}
		}

		for k2 := -step + k2start; k2 <= step-k2end; k2 += 2 {
			k2Offset := vOffset + k2
			var x2 int
			if k2 == -step || (k2 != step && v2[k2Offset-1] < v2[k2Offset+1]) {
				x2 = v2[k2Offset+1]
			} else {
				x2 = v2[k2Offset-1] + 1
			}
			y2 := x2 - k2
			for x2 < len1 && y2 < len2 && text1[len1-x2-1] == text2[len2-y2-1] {
				x2++
				y2++
			}
			v2[k2Offset] = x2
			switch {
			case x2 > len1:
				k2end += 2
			case y2 > len2:
				k2start += 2
			case !front:
				k1Offset := vOffset + delta - k2
				if k1Offset >= 0 && k1Offset < vLength && v1[k1Offset] != -1 {
					x1 := v1[k1Offset]
					y1 := vOffset + x1 - k1Offset
					if x1 >= len1-x2 {
						return d.bisectSplit(text1, text2, x1, y1, deadline)
					}
				}
			}
		}
	}

	return []Diff{{OpDelete, string(text1)}, {OpInsert, string(text2)}}
}

func (d *DiffMatchPatch) bisectSplit(text1, text2 []rune, x, y int, deadline time.Time) []Diff {
	a := d.diffMainRunes(text1[:x], text2[:y], false, deadline)
	b := d.diffMainRunes(text1[x:], text2[y:], false, deadline)
	return append(a, b...)
}

// halfMatch looks for a substring shared by both texts that is at least half
// the length of the longer one. The result is text1 prefix, text1 suffix,
// text2 prefix, text2 suffix and the common middle. It may produce a
// non-minimal diff, so it only runs when a timeout is set.
func (d *DiffMatchPatch) halfMatch(text1, text2 []rune) [][]rune {
	if d.DiffTimeout <= 0 {
		return nil
	}

	long, short := text1, text2
	if len(text1) <= len(text2) {
		long, short = text2, text1
	}
	if len(long) < 4 || len(short)*2 < len(long) {
		return nil
	}

	hm1 := halfMatchAt(long, short, (len(long)+3)/4)
	hm2 := halfMatchAt(long, short, (len(long)+1)/2)

	var hm [][]rune
	switch {
	case hm1 == nil && hm2 == nil:
		return nil
	case hm2 == nil:
		hm = hm1
	case hm1 == nil:
		hm = hm2
	case len(hm1[4]) > len(hm2[4]):
		hm = hm1
	default:
		hm = hm2
	}

	if len(text1) > len(text2) {
		return hm
	}
	return [][]rune{hm[2], hm[3], hm[0], hm[1], hm[4]}
}

// halfMatchAt seeds the search with a quarter of long starting at i.
func halfMatchAt(long, short []rune, i int) [][]rune {
	seed := long[i : i+len(long)/4]

	var bestCommon, bestLongA, bestLongB, bestShortA, bestShortB []rune
	for j := runesIndex(short, seed, 0); j != -1; j = runesIndex(short, seed, j+1) {
		prefixLength := commonPrefixLength(long[i:], short[j:])
		suffixLength := commonSuffixLength(long[:i], short[:j])
		if len(bestCommon) < suffixLength+prefixLength {
			bestCommon = short[j-suffixLength : j+prefixLength]
			bestLongA = long[:i-suffixLength]
			bestLongB = long[i+prefixLength:]
			bestShortA = short[:j-suffixLength]
			bestShortB = short[j+prefixLength:]
		}
	}

	if len(bestCommon)*2 < len(long) {
		return nil
	}
	return [][]rune{bestLongA, bestLongB, bestShortA, bestShortB, bestCommon}
}

// lineMode diffs whole lines first and then re-diffs each replaced block
// character by character. Faster on large inputs, less minimal.
func (d *DiffMatchPatch) lineMode(text1, text2 []rune, deadline time.Time) []Diff {
	chars1, chars2, lines := linesToRunes(string(text1), string(text2))

	diffs := d.diffMainRunes(chars1, chars2, false, deadline)
	diffs = runesToLines(diffs, lines)
	diffs = d.CleanupSemantic(diffs)

	diffs = append(diffs, Diff{OpEqual, ""})
	var textDelete, textInsert strings.Builder
	countDelete, countInsert := 0, 0
	for pointer := 0; pointer < len(diffs); pointer++ {
		switch diffs[pointer].Type {
		case OpInsert:
			countInsert++
			textInsert.WriteString(diffs[pointer].Text)
		case OpDelete:
			countDelete++
			textDelete.WriteString(diffs[pointer].Text)
		case OpEqual:
			if countDelete >= 1 && countInsert >= 1 {
				sub := d.diffMainRunes([]rune(textDelete.String()), []rune(textInsert.String()), false, deadline)
				start := pointer - countDelete - countInsert
				diffs = splice(diffs, start, countDelete+countInsert, sub...)
				pointer = start + len(sub)
			}
			countDelete, countInsert = 0, 0
			textDelete.Reset()
			textInsert.Reset()
		}
	}
	return diffs[:len(diffs)-1]
}

// linesToRunes maps every distinct line to a single rune so the line
// sequences can be diffed with the character algorithm.
func linesToRunes(text1, text2 string) ([]rune, []rune, []string) {
	// Index 0 is reserved so that no line encodes to NUL.
	lines := []string{""}
	index := make(map[string]int)
	chars1 := encodeLines(text1, &lines, index, 40000)
	chars2 := encodeLines(text2, &lines, index, 65535)
	return chars1, chars2, lines
}

func encodeLines(text string, lines *[]string, index map[string]int, maxLines int) []rune {
	var chars []rune
	start := 0
	for start < len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end == -1 {
			end = len(text) - 1
		} else {
			end += start
		}
		line := text[start : end+1]

		if i, ok := index[line]; ok {
			chars = append(chars, lineRune(i))
		} else {
			if len(*lines) == maxLines {
				// Out of room: the rest of the text becomes one line.
				line = text[start:]
				end = len(text) - 1
			}
			*lines = append(*lines, line)
			i := len(*lines) - 1
			index[line] = i
			chars = append(chars, lineRune(i))
		}
		start = end + 1
	}
	return chars
}

func runesToLines(diffs []Diff, lines []string) []Diff {
	for i := range diffs {
		var b strings.Builder
		for _, r := range diffs[i].Text {
			b.WriteString(lines[runeLine(r)])
		}
		diffs[i].Text = b.String()
	}
	return diffs
}

const (
	surrogateMin = 0xD800
	surrogateLen = 0x800
)

// lineRune skips the surrogate range so encoded lines survive string conversion.
func lineRune(i int) rune {
	if i >= surrogateMin {
		i += surrogateLen
	}
	return rune(i)
}

func runeLine(r rune) int {
	i := int(r)
	if i >= surrogateMin+surrogateLen {
		i -= surrogateLen
	}
	return i
}

// Text1 returns the source text of an edit script.
func Text1(diffs []Diff) string {
	var b strings.Builder
	for _, d := range diffs {
		if d.Type != OpInsert {
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// Text2 returns the destination text of an edit script.
func Text2(diffs []Diff) string {
	var b strings.Builder
	for _, d := range diffs {
		if d.Type != OpDelete {
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// Levenshtein returns the number of inserted, deleted or substituted runes.
func Levenshtein(diffs []Diff) int {
	levenshtein, insertions, deletions := 0, 0, 0
	for _, d := range diffs {
		n := runeCount(d.Text)
		switch d.Type {
		case OpInsert:
			insertions += n
		case OpDelete:
			deletions += n
		case OpEqual:
			levenshtein += max(insertions, deletions)
			insertions, deletions = 0, 0
		}
	}
	return levenshtein + max(insertions, deletions)
}

// XIndex maps a rune offset in the source text to the destination text.
func XIndex(diffs []Diff, loc int) int {
	chars1, chars2 := 0, 0
	lastChars1, lastChars2 := 0, 0
	var last *Diff
	for i := range diffs {
		n := runeCount(diffs[i].Text)
		if diffs[i].Type != OpInsert {
			chars1 += n
		}
		if diffs[i].Type != OpDelete {
			chars2 += n
		}
		if chars1 > loc {
			last = &diffs[i]
			break
		}
		lastChars1, lastChars2 = chars1, chars2
	}
	if last != nil && last.Type == OpDelete {
		return lastChars2
	}
	return lastChars2 + (loc - lastChars1)
}
