package textdiff

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanupMerge joins adjacent segments of the same kind, factors common
// prefixes and suffixes out of replaced blocks, and slides single edits
// sideways to absorb neighbouring equalities.
func (d *DiffMatchPatch) CleanupMerge(diffs []Diff) []Diff {
	diffs = append(diffs, Diff{OpEqual, ""})
	pointer := 0
	countDelete, countInsert := 0, 0
	var textDelete, textInsert []rune

	for pointer < len(diffs) {
		switch diffs[pointer].Type {
		case OpInsert:
			countInsert++
			textInsert = append(textInsert, []rune(diffs[pointer].Text)...)
			pointer++
		case OpDelete:
			countDelete++
			textDelete = append(textDelete, []rune(diffs[pointer].Text)...)
			pointer++
		case OpEqual:
			if countDelete+countInsert > 1 {
				if countDelete != 0 && countInsert != 0 {
					if n := commonPrefixLength(textInsert, textDelete); n != 0 {
						x := pointer - countDelete - countInsert
						if x > 0 && diffs[x-1].Type == OpEqual {
							diffs[x-1].Text += string(textInsert[:n])
						} else {
							diffs = splice(diffs, 0, 0, Diff{OpEqual, string(textInsert[:n])})
							pointer++
						}
						textInsert = textInsert[n:]
						textDelete = textDelete[n:]
					}
					if n := commonSuffixLength(textInsert, textDelete); n != 0 {
						diffs[pointer].Text = string(textInsert[len(textInsert)-n:]) + diffs[pointer].Text
						textInsert = textInsert[:len(textInsert)-n]
						textDelete = textDelete[:len(textDelete)-n]
					}
				}

				start := pointer - countDelete - countInsert
				var merged []Diff
				if len(textDelete) != 0 {
					merged = append(merged, Diff{OpDelete, string(textDelete)})
				}
				if len(textInsert) != 0 {
					merged = append(merged, Diff{OpInsert, string(textInsert)})
				}
				diffs = splice(diffs, start, countDelete+countInsert, merged...)
				pointer = start + len(merged) + 1
			} else if pointer != 0 && diffs[pointer-1].Type == OpEqual {
				diffs[pointer-1].Text += diffs[pointer].Text
				diffs = splice(diffs, pointer, 1)
			} else {
				pointer++
			}
			countDelete, countInsert = 0, 0
			textDelete, textInsert = nil, nil
		}
	}
	if diffs[len(diffs)-1].Text == "" {
		diffs = diffs[:len(diffs)-1]
	}

	// Second pass: an edit surrounded by equalities that repeats one of
	// them can slide over it, e.g. A<ins>BA</ins>C -> <ins>AB</ins>AC.
	changes := false
	for pointer = 1; pointer < len(diffs)-1; pointer++ {
		if diffs[pointer-1].Type != OpEqual || diffs[pointer+1].Type != OpEqual {
			continue
		}
		prev, cur, next := diffs[pointer-1].Text, diffs[pointer].Text, diffs[pointer+1].Text
		switch {
		case strings.HasSuffix(cur, prev):
			diffs[pointer].Text = prev + cur[:len(cur)-len(prev)]
			diffs[pointer+1].Text = prev + next
			diffs = splice(diffs, pointer-1, 1)
			changes = true
		case strings.HasPrefix(cur, next):
			diffs[pointer-1].Text += next
			diffs[pointer].Text = cur[len(next):] + next
			diffs = splice(diffs, pointer+1, 1)
			changes = true
		}
	}
	if changes {
		return d.CleanupMerge(diffs)
	}
	return diffs
}

// CleanupSemantic removes equalities too short to be meaningful between
// edits, then shifts edits to word boundaries and extracts overlaps between
// neighbouring deletions and insertions.
func (d *DiffMatchPatch) CleanupSemantic(diffs []Diff) []Diff {
	changes := false
	var equalities []int
	lastEquality := ""
	insertions1, deletions1 := 0, 0
	insertions2, deletions2 := 0, 0

	for pointer := 0; pointer < len(diffs); pointer++ {
		if diffs[pointer].Type == OpEqual {
			equalities = append(equalities, pointer)
			insertions1, deletions1 = insertions2, deletions2
			insertions2, deletions2 = 0, 0
			lastEquality = diffs[pointer].Text
			continue
		}

		if diffs[pointer].Type == OpInsert {
			insertions2 += runeCount(diffs[pointer].Text)
		} else {
			deletions2 += runeCount(diffs[pointer].Text)
		}

		n := runeCount(lastEquality)
		if lastEquality != "" && n <= max(insertions1, deletions1) && n <= max(insertions2, deletions2) {
			at := equalities[len(equalities)-1]
			diffs = splice(diffs, at, 0, Diff{OpDelete, lastEquality})
			diffs[at+1].Type = OpInsert

			// Drop the equality just replaced and re-examine the one before.
			equalities = equalities[:len(equalities)-1]
			if len(equalities) > 0 {
				equalities = equalities[:len(equalities)-1]
			}
			if len(equalities) > 0 {
				pointer = equalities[len(equalities)-1]
			} else {
				pointer = -1
			}

			insertions1, deletions1, insertions2, deletions2 = 0, 0, 0, 0
			lastEquality = ""
			changes = true
		}
	}

	if changes {
		diffs = d.CleanupMerge(diffs)
	}
	diffs = d.CleanupSemanticLossless(diffs)

	// <del>abcxxx</del><ins>xxxdef</ins> -> <del>abc</del>xxx<ins>def</ins>
	// <del>xxxabc</del><ins>defxxx</ins> -> <ins>def</ins>xxx<del>abc</del>
	for pointer := 1; pointer < len(diffs); pointer++ {
		if diffs[pointer-1].Type != OpDelete || diffs[pointer].Type != OpInsert {
			continue
		}
		deletion := []rune(diffs[pointer-1].Text)
		insertion := []rune(diffs[pointer].Text)
		overlap1 := commonOverlap(deletion, insertion)
		overlap2 := commonOverlap(insertion, deletion)
		if overlap1 >= overlap2 {
			if 2*overlap1 >= len(deletion) || 2*overlap1 >= len(insertion) {
				diffs = splice(diffs, pointer, 0, Diff{OpEqual, string(insertion[:overlap1])})
				diffs[pointer-1].Text = string(deletion[:len(deletion)-overlap1])
				diffs[pointer+1].Text = string(insertion[overlap1:])
				pointer++
			}
		} else if 2*overlap2 >= len(deletion) || 2*overlap2 >= len(insertion) {
			diffs = splice(diffs, pointer, 0, Diff{OpEqual, string(deletion[:overlap2])})
			diffs[pointer-1] = Diff{OpInsert, string(insertion[:len(insertion)-overlap2])}
			diffs[pointer+1] = Diff{OpDelete, string(deletion[overlap2:])}
			pointer++
		}
		pointer++
	}
	return diffs
}

// CleanupSemanticLossless slides single edits surrounded by equalities to
// the most natural boundary, e.g. The c<ins>at c</ins>ame. -> The <ins>cat </ins>came.
func (d *DiffMatchPatch) CleanupSemanticLossless(diffs []Diff) []Diff {
	for pointer := 1; pointer < len(diffs)-1; pointer++ {
		if diffs[pointer-1].Type != OpEqual || diffs[pointer+1].Type != OpEqual {
			continue
		}
		equality1 := diffs[pointer-1].Text
		edit := diffs[pointer].Text
		equality2 := diffs[pointer+1].Text

		// Shift the edit as far left as possible.
		if n := commonSuffixBytes(equality1, edit); n > 0 {
			common := edit[len(edit)-n:]
			equality1 = equality1[:len(equality1)-n]
			edit = common + edit[:len(edit)-n]
			equality2 = common + equality2
		}

		// Then step right one rune at a time, keeping the best score.
		bestEquality1, bestEdit, bestEquality2 := equality1, edit, equality2
		bestScore := semanticScore(equality1, edit) + semanticScore(edit, equality2)
		for edit != "" && equality2 != "" {
			r1, size1 := utf8.DecodeRuneInString(edit)
			r2, size2 := utf8.DecodeRuneInString(equality2)
			if r1 != r2 {
				break
			}
			equality1 += edit[:size1]
			edit = edit[size1:] + equality2[:size2]
			equality2 = equality2[size2:]
			// >= favours the rightmost of equally good positions.
			if score := semanticScore(equality1, edit) + semanticScore(edit, equality2); score >= bestScore {
				bestScore = score
				bestEquality1, bestEdit, bestEquality2 = equality1, edit, equality2
			}
		}

		if diffs[pointer-1].Text == bestEquality1 {
			continue
		}
		if bestEquality1 != "" {
			diffs[pointer-1].Text = bestEquality1
		} else {
			diffs = splice(diffs, pointer-1, 1)
			pointer--
		}
		diffs[pointer].Text = bestEdit
		if bestEquality2 != "" {
			diffs[pointer+1].Text = bestEquality2
		} else {
			diffs = splice(diffs, pointer+1, 1)
			pointer--
		}
	}
	return diffs
}

// semanticScore rates the boundary between one and two from 6 (best) to 0.
func semanticScore(one, two string) int {
	if one == "" || two == "" {
		return 6
	}

	char1, _ := utf8.DecodeLastRuneInString(one)
	char2, _ := utf8.DecodeRuneInString(two)
	nonAlphaNumeric1 := !unicode.IsLetter(char1) && !unicode.IsDigit(char1)
	nonAlphaNumeric2 := !unicode.IsLetter(char2) && !unicode.IsDigit(char2)
	whitespace1 := nonAlphaNumeric1 && unicode.IsSpace(char1)
	whitespace2 := nonAlphaNumeric2 && unicode.IsSpace(char2)
	lineBreak1 := whitespace1 && (char1 == '\n' || char1 == '\r')
	lineBreak2 := whitespace2 && (char2 == '\n' || char2 == '\r')
	blankLine1 := lineBreak1 && (strings.HasSuffix(one, "\n\n") || strings.HasSuffix(one, "\n\r\n"))
	blankLine2 := lineBreak2 && (strings.HasPrefix(two, "\n\n") || strings.HasPrefix(two, "\n\r\n") ||
		strings.HasPrefix(two, "\r\n\n") || strings.HasPrefix(two, "\r\n\r\n"))

	switch {
	case blankLine1 || blankLine2:
		return 5
	case lineBreak1 || lineBreak2:
		return 4
	case nonAlphaNumeric1 && !whitespace1 && whitespace2:
		// End of sentence.
		return 3
	case whitespace1 || whitespace2:
		return 2
	case nonAlphaNumeric1 || nonAlphaNumeric2:
		return 1
	}
	return 0
}
