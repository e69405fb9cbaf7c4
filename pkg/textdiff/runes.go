package textdiff

import "unicode/utf8"

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// runesIndex returns the first index >= from at which pattern occurs in text.
func runesIndex(text, pattern []rune, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(pattern) <= len(text); i++ {
		if runesEqual(text[i:i+len(pattern)], pattern) {
			return i
		}
	}
	return -1
}

// runesLastIndex returns the last index <= from at which pattern occurs in text.
func runesLastIndex(text, pattern []rune, from int) int {
	i := len(text) - len(pattern)
	if from < i {
		i = from
	}
	for ; i >= 0; i-- {
		if runesEqual(text[i:i+len(pattern)], pattern) {
			return i
		}
	}
	return -1
}

func commonPrefixLength(a, b []rune) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func commonSuffixLength(a, b []rune) int {
	n := min(len(a), len(b))
	for i := 1; i <= n; i++ {
		if a[len(a)-i] != b[len(b)-i] {
			return i - 1
		}
	}
	return n
}

// commonOverlap returns the length of the longest suffix of a that is also a
// prefix of b.
func commonOverlap(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a = a[len(a)-len(b):]
	} else if len(a) < len(b) {
		b = b[:len(a)]
	}
	length := len(a)
	if runesEqual(a, b) {
		return length
	}

	best := 0
	for n := 1; ; {
		found := runesIndex(b, a[length-n:], 0)
		if found == -1 {
			return best
		}
		n += found
		if found == 0 || runesEqual(a[length-n:], b[:n]) {
			best = n
			n++
		}
	}
}

// commonSuffixBytes returns the byte length of the longest common suffix of
// a and b that starts on a rune boundary.
func commonSuffixBytes(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	for n > 0 && !utf8.RuneStart(a[len(a)-n]) {
		n--
	}
	return n
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}

func concatRunes(parts ...[]rune) []rune {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]rune, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// splice removes count diffs at start and inserts items in their place.
func splice(diffs []Diff, start, count int, items ...Diff) []Diff {
	out := make([]Diff, 0, len(diffs)-count+len(items))
	out = append(out, diffs[:start]...)
	out = append(out, items...)
	return append(out, diffs[start+count:]...)
}
