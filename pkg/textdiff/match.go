package textdiff

// Match returns the rune offset of the best fuzzy match of pattern in text
// near loc, or -1 when nothing scores under MatchThreshold.
func (d *DiffMatchPatch) Match(text, pattern string, loc int) int {
	return d.matchMain([]rune(text), []rune(pattern), loc)
}

func (d *DiffMatchPatch) matchMain(text, pattern []rune, loc int) int {
	loc = max(0, min(loc, len(text)))
	switch {
	case runesEqual(text, pattern):
		return 0
	case len(text) == 0:
		return -1
	case loc+len(pattern) <= len(text) && runesEqual(text[loc:loc+len(pattern)], pattern):
		return loc
	}
	return d.matchBitap(text, pattern, loc)
}

// matchBitap runs the bitap algorithm allowing errors. Pattern must not be
// longer than MatchMaxBits.
func (d *DiffMatchPatch) matchBitap(text, pattern []rune, loc int) int {
	if len(pattern) > d.MatchMaxBits {
		return -1
	}

	alphabet := make(map[rune]int, len(pattern))
	for i, r := range pattern {
		alphabet[r] |= 1 << (len(pattern) - i - 1)
	}

	score := func(errors, x int) float64 {
		accuracy := float64(errors) / float64(len(pattern))
		proximity := loc - x
		if proximity < 0 {
			proximity = -proximity
		}
		if d.MatchDistance == 0 {
			if proximity == 0 {
				return accuracy
			}
			return 1.0
		}
		return accuracy + float64(proximity)/float64(d.MatchDistance)
	}

	threshold := d.MatchThreshold
	if best := runesIndex(text, pattern, loc); best != -1 {
		threshold = min(score(0, best), threshold)
		if best = runesLastIndex(text, pattern, loc+len(pattern)); best != -1 {
			threshold = min(score(0, best), threshold)
		}
	}

	matchMask := 1 << (len(pattern) - 1)
	bestLoc := -1
	binMax := len(pattern) + len(text)
	var lastRd []int

	for errs := 0; errs < len(pattern); errs++ {
		// Binary search for how far from loc a match at this error level
		// can still score under the threshold.
		binMin, binMid := 0, binMax
		for binMin < binMid {
			if score(errs, loc+binMid) <= threshold {
				binMin = binMid
			} else {
				binMax = binMid
			}
			binMid = (binMax-binMin)/2 + binMin
		}
		binMax = binMid

		start := max(1, loc-binMid+1)
		finish := min(loc+binMid, len(text)) + len(pattern)

		rd := make([]int, finish+2)
		rd[finish+1] = (1 << errs) - 1
		for j := finish; j >= start; j-- {
			charMatch := 0
			if j-1 < len(text) {
				charMatch = alphabet[text[j-1]]
			}
			if errs == 0 {
				rd[j] = ((rd[j+1] << 1) | 1) & charMatch
			} else {
				rd[j] = (((rd[j+1] << 1) | 1) & charMatch) |
					(((lastRd[j+1] | lastRd[j]) << 1) | 1) |
					lastRd[j+1]
			}
			if rd[j]&matchMask != 0 {
				if s := score(errs, j-1); s <= threshold {
					threshold = s
					bestLoc = j - 1
					if bestLoc <= loc {
						break
					}
					// Past loc: only look as far left as the mirror of this hit.
					start = max(1, 2*loc-bestLoc)
				}
			}
		}

		if score(errs+1, loc) > threshold {
			break
		}
		lastRd = rd
	}
	return bestLoc
}
