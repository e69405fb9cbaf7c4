package textdiff

import (
	"strconv"
	"strings"
)

// Patch is a group of diffs with surrounding context. Start and length
// values are rune offsets into the source (1) and destination (2) texts.
type Patch struct {
	Diffs   []Diff
	Start1  int
	Start2  int
	Length1 int
	Length2 int
}

// String renders the patch in the GNU unified diff style. Newlines in the
// text are written as %0A so every diff stays on one line.
func (p Patch) String() string {
	var b strings.Builder
	b.WriteString("@@ -")
	b.WriteString(patchCoords(p.Start1, p.Length1))
	b.WriteString(" +")
	b.WriteString(patchCoords(p.Start2, p.Length2))
	b.WriteString(" @@\n")
	for _, d := range p.Diffs {
		switch d.Type {
		case OpInsert:
			b.WriteByte('+')
		case OpDelete:
			b.WriteByte('-')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(strings.ReplaceAll(d.Text, "\n", "%0A"))
		b.WriteByte('\n')
	}
	return b.String()
}

func patchCoords(start, length int) string {
	switch length {
	case 0:
		return strconv.Itoa(start) + ",0"
	case 1:
		return strconv.Itoa(start + 1)
	}
	return strconv.Itoa(start+1) + "," + strconv.Itoa(length)
}

// MakePatches groups an edit script into patches carrying PatchMargin runes
// of context on each side.
func (d *DiffMatchPatch) MakePatches(diffs []Diff) []Patch {
	return d.makePatches(Text1(diffs), diffs)
}

func (d *DiffMatchPatch) makePatches(text1 string, diffs []Diff) []Patch {
	if len(diffs) == 0 {
		return nil
	}

	var patches []Patch
	var patch Patch
	charCount1, charCount2 := 0, 0
	// prepatch is the text the current patch will be applied to, postpatch
	// the text with every patch so far applied.
	prepatch := []rune(text1)
	postpatch := prepatch

	for i, diff := range diffs {
		if len(patch.Diffs) == 0 && diff.Type != OpEqual {
			patch.Start1 = charCount1
			patch.Start2 = charCount2
		}

		text := []rune(diff.Text)
		switch diff.Type {
		case OpInsert:
			patch.Diffs = append(patch.Diffs, diff)
			patch.Length2 += len(text)
			postpatch = concatRunes(postpatch[:charCount2], text, postpatch[charCount2:])
		case OpDelete:
			patch.Diffs = append(patch.Diffs, diff)
			patch.Length1 += len(text)
			postpatch = concatRunes(postpatch[:charCount2], postpatch[charCount2+len(text):])
		case OpEqual:
			if len(text) <= 2*d.PatchMargin && len(patch.Diffs) != 0 && i != len(diffs)-1 {
				// Small equality inside a patch.
				patch.Diffs = append(patch.Diffs, diff)
				patch.Length1 += len(text)
				patch.Length2 += len(text)
			} else if len(text) >= 2*d.PatchMargin && len(patch.Diffs) != 0 {
				// Large equality: close the current patch.
				d.addContext(&patch, prepatch)
				patches = append(patches, patch)
				patch = Patch{}
				prepatch = postpatch
				charCount1 = charCount2
			}
		}

		if diff.Type != OpInsert {
			charCount1 += len(text)
		}
		if diff.Type != OpDelete {
			charCount2 += len(text)
		}
	}

	if len(patch.Diffs) != 0 {
		d.addContext(&patch, prepatch)
		patches = append(patches, patch)
	}
	return patches
}

// addContext grows the patch context until the pattern is unique in text,
// within what the matcher can handle.
func (d *DiffMatchPatch) addContext(patch *Patch, text []rune) {
	if len(text) == 0 {
		return
	}

	pattern := text[patch.Start2 : patch.Start2+patch.Length1]
	padding := 0
	for runesIndex(text, pattern, 0) != runesLastIndex(text, pattern, len(text)) &&
		len(pattern) < d.MatchMaxBits-2*d.PatchMargin {
		padding += d.PatchMargin
		pattern = text[max(0, patch.Start2-padding):min(len(text), patch.Start2+patch.Length1+padding)]
	}
	// One more chunk for good luck.
	padding += d.PatchMargin

	prefix := text[max(0, patch.Start2-padding):patch.Start2]
	if len(prefix) != 0 {
		patch.Diffs = append([]Diff{{OpEqual, string(prefix)}}, patch.Diffs...)
	}
	suffix := text[patch.Start2+patch.Length1 : min(len(text), patch.Start2+patch.Length1+padding)]
	if len(suffix) != 0 {
		patch.Diffs = append(patch.Diffs, Diff{OpEqual, string(suffix)})
	}

	patch.Start1 -= len(prefix)
	patch.Start2 -= len(prefix)
	patch.Length1 += len(prefix) + len(suffix)
	patch.Length2 += len(prefix) + len(suffix)
}

// ApplyPatches applies patches to text. Each patch is located with a fuzzy
// match near its expected offset; patches that cannot be placed are skipped
// and reported false in the returned flags.
func (d *DiffMatchPatch) ApplyPatches(patches []Patch, text string) (string, []bool) {
	if len(patches) == 0 {
		return text, nil
	}

	patches = copyPatches(patches)
	nullPadding := d.addPadding(patches)
	target := []rune(nullPadding + text + nullPadding)
	patches = d.splitMax(patches)

	delta := 0
	results := make([]bool, len(patches))
	for x, patch := range patches {
		expectedLoc := patch.Start2 + delta
		text1 := []rune(Text1(patch.Diffs))
		startLoc, endLoc := -1, -1

		if len(text1) > d.MatchMaxBits {
			// splitMax only leaves oversized patches for monster deletes;
			// match their two ends separately.
			startLoc = d.matchMain(target, text1[:d.MatchMaxBits], expectedLoc)
			if startLoc != -1 {
				endLoc = d.matchMain(target, text1[len(text1)-d.MatchMaxBits:], expectedLoc+len(text1)-d.MatchMaxBits)
				if endLoc == -1 || startLoc >= endLoc {
					startLoc = -1
				}
			}
		} else {
			startLoc = d.matchMain(target, text1, expectedLoc)
		}

		if startLoc == -1 {
			// Keep later patches aligned with where this one should have gone.
			delta -= patch.Length2 - patch.Length1
			continue
		}

		results[x] = true
		delta = startLoc - expectedLoc

		var text2 []rune
		if endLoc == -1 {
			text2 = target[startLoc:min(startLoc+len(text1), len(target))]
		} else {
			text2 = target[startLoc:min(endLoc+d.MatchMaxBits, len(target))]
		}

		if runesEqual(text1, text2) {
			target = concatRunes(target[:startLoc], []rune(Text2(patch.Diffs)), target[startLoc+len(text1):])
			continue
		}

		// Imperfect match: map each edit through the diff between the
		// expected and the found text.
		diffs := d.diffMainRunes(text1, text2, false, d.deadline())
		if len(text1) > d.MatchMaxBits && float64(Levenshtein(diffs))/float64(len(text1)) > d.PatchDeleteThreshold {
			results[x] = false
			continue
		}
		diffs = d.CleanupSemanticLossless(diffs)

		index1 := 0
		for _, mod := range patch.Diffs {
			n := runeCount(mod.Text)
			if mod.Type != OpEqual {
				index2 := XIndex(diffs, index1)
				switch mod.Type {
				case OpInsert:
					at := min(startLoc+index2, len(target))
					target = concatRunes(target[:at], []rune(mod.Text), target[at:])
				case OpDelete:
					from := min(startLoc+index2, len(target))
					to := min(startLoc+XIndex(diffs, index1+n), len(target))
					target = concatRunes(target[:from], target[to:])
				}
			}
			if mod.Type != OpDelete {
				index1 += n
			}
		}
	}

	padLength := len([]rune(nullPadding))
	return string(target[padLength : len(target)-padLength]), results
}

// addPadding surrounds the patches with control-character context so edits
// at either end of the text can still be matched. Returns the padding.
func (d *DiffMatchPatch) addPadding(patches []Patch) string {
	paddingLength := d.PatchMargin
	nullPadding := make([]rune, paddingLength)
	for i := range nullPadding {
		nullPadding[i] = rune(i + 1)
	}

	for i := range patches {
		patches[i].Start1 += paddingLength
		patches[i].Start2 += paddingLength
	}

	first := &patches[0]
	if len(first.Diffs) == 0 || first.Diffs[0].Type != OpEqual {
		first.Diffs = append([]Diff{{OpEqual, string(nullPadding)}}, first.Diffs...)
		first.Start1 -= paddingLength
		first.Start2 -= paddingLength
		first.Length1 += paddingLength
		first.Length2 += paddingLength
	} else if n := runeCount(first.Diffs[0].Text); paddingLength > n {
		extra := paddingLength - n
		first.Diffs[0].Text = string(nullPadding[n:]) + first.Diffs[0].Text
		first.Start1 -= extra
		first.Start2 -= extra
		first.Length1 += extra
		first.Length2 += extra
	}

	last := &patches[len(patches)-1]
	if len(last.Diffs) == 0 || last.Diffs[len(last.Diffs)-1].Type != OpEqual {
		last.Diffs = append(last.Diffs, Diff{OpEqual, string(nullPadding)})
		last.Length1 += paddingLength
		last.Length2 += paddingLength
	} else if n := runeCount(last.Diffs[len(last.Diffs)-1].Text); paddingLength > n {
		extra := paddingLength - n
		last.Diffs[len(last.Diffs)-1].Text += string(nullPadding[:extra])
		last.Length1 += extra
		last.Length2 += extra
	}

	return string(nullPadding)
}

// splitMax breaks up patches whose source is longer than the matcher can
// handle.
func (d *DiffMatchPatch) splitMax(patches []Patch) []Patch {
	patchSize := d.MatchMaxBits
	var out []Patch

	for _, big := range patches {
		if big.Length1 <= patchSize {
			out = append(out, big)
			continue
		}

		start1, start2 := big.Start1, big.Start2
		var precontext []rune
		diffs := append([]Diff(nil), big.Diffs...)

		for len(diffs) != 0 {
			patch := Patch{Start1: start1 - len(precontext), Start2: start2 - len(precontext)}
			empty := true
			if len(precontext) != 0 {
				patch.Length1 = len(precontext)
				patch.Length2 = len(precontext)
				patch.Diffs = append(patch.Diffs, Diff{OpEqual, string(precontext)})
			}

			for len(diffs) != 0 && patch.Length1 < patchSize-d.PatchMargin {
				diffType := diffs[0].Type
				diffText := []rune(diffs[0].Text)
				switch {
				case diffType == OpInsert:
					patch.Length2 += len(diffText)
					start2 += len(diffText)
					patch.Diffs = append(patch.Diffs, diffs[0])
					diffs = diffs[1:]
					empty = false
				case diffType == OpDelete && len(patch.Diffs) == 1 && patch.Diffs[0].Type == OpEqual && len(diffText) > 2*patchSize:
					// A huge deletion goes out in one piece.
					patch.Length1 += len(diffText)
					start1 += len(diffText)
					patch.Diffs = append(patch.Diffs, diffs[0])
					diffs = diffs[1:]
					empty = false
				default:
					full := len(diffText)
					diffText = diffText[:min(len(diffText), patchSize-patch.Length1-d.PatchMargin)]
					patch.Length1 += len(diffText)
					start1 += len(diffText)
					if diffType == OpEqual {
						patch.Length2 += len(diffText)
						start2 += len(diffText)
					} else {
						empty = false
					}
					patch.Diffs = append(patch.Diffs, Diff{diffType, string(diffText)})
					if len(diffText) == full {
						diffs = diffs[1:]
					} else {
						diffs[0].Text = string([]rune(diffs[0].Text)[len(diffText):])
					}
				}
			}

			precontext = []rune(Text2(patch.Diffs))
			precontext = precontext[max(0, len(precontext)-d.PatchMargin):]

			postcontext := []rune(Text1(diffs))
			if len(postcontext) > d.PatchMargin {
				postcontext = postcontext[:d.PatchMargin]
			}
			if len(postcontext) != 0 {
				patch.Length1 += len(postcontext)
				patch.Length2 += len(postcontext)
				if n := len(patch.Diffs); n != 0 && patch.Diffs[n-1].Type == OpEqual {
					patch.Diffs[n-1].Text += string(postcontext)
				} else {
					patch.Diffs = append(patch.Diffs, Diff{OpEqual, string(postcontext)})
				}
			}

			if !empty {
				out = append(out, patch)
			}
		}
	}
	return out
}

func copyPatches(patches []Patch) []Patch {
	out := make([]Patch, len(patches))
	for i, p := range patches {
		out[i] = p
		out[i].Diffs = append([]Diff(nil), p.Diffs...)
	}
	return out
}
