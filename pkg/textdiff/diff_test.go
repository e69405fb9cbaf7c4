package textdiff

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sanity-io/litter"
)

func TestDiffMain(t *testing.T) {
	dmp := New()

	tests := []struct {
		name  string
		text1 string
		text2 string
		want  []Diff
	}{
		{
			name:  "both empty",
			text1: "",
			text2: "",
			want:  nil,
		},
		{
			name:  "equal",
			text1: "abc",
			text2: "abc",
			want:  []Diff{{OpEqual, "abc"}},
		},
		{
			name:  "simple insertion",
			text1: "abc",
			text2: "ab123c",
			want:  []Diff{{OpEqual, "ab"}, {OpInsert, "123"}, {OpEqual, "c"}},
		},
		{
			name:  "simple deletion",
			text1: "a123bc",
			text2: "abc",
			want:  []Diff{{OpEqual, "a"}, {OpDelete, "123"}, {OpEqual, "bc"}},
		},
		{
			name:  "two insertions",
			text1: "abc",
			text2: "a123b456c",
			want:  []Diff{{OpEqual, "a"}, {OpInsert, "123"}, {OpEqual, "b"}, {OpInsert, "456"}, {OpEqual, "c"}},
		},
		{
			name:  "replacement",
			text1: "a",
			text2: "b",
			want:  []Diff{{OpDelete, "a"}, {OpInsert, "b"}},
		},
		{
			name:  "insert everything",
			text1: "",
			text2: "abc",
			want:  []Diff{{OpInsert, "abc"}},
		},
		{
			name:  "delete everything",
			text1: "abc",
			text2: "",
			want:  []Diff{{OpDelete, "abc"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dmp.DiffMain(tt.text1, tt.text2, false)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DiffMain(%q, %q) = %s, want %s", tt.text1, tt.text2, litter.Sdump(got), litter.Sdump(tt.want))
			}
		})
	}
}

func TestDiffSentences(t *testing.T) {
	dmp := New()

	tests := []struct {
		name  string
		text1 string
		text2 string
		want  []Diff
	}{
		{
			name:  "punctuation swap",
			text1: "Do or do not, there is no try.",
			text2: "Do or do not, there is no try!",
			want: []Diff{
				{OpEqual, "Do or do not, there is no try"},
				{OpDelete, "."},
				{OpInsert, "!"},
			},
		},
		{
			name:  "word extension",
			text1: "Do or do not, there is no try!",
			text2: "Do or do nothing, there is no try!",
			want: []Diff{
				{OpEqual, "Do or do not"},
				{OpInsert, "hing"},
				{OpEqual, ", there is no try!"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dmp.Diff(tt.text1, tt.text2)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() = %s, want %s", litter.Sdump(got), litter.Sdump(tt.want))
			}
		})
	}
}

func TestDiffReconstructsBothTexts(t *testing.T) {
	dmp := New()
	for _, pair := range roundTripPairs() {
		diffs := dmp.Diff(pair[0], pair[1])
		if got := Text1(diffs); got != pair[0] {
			t.Errorf("Text1 = %q, want %q", got, pair[0])
		}
		if got := Text2(diffs); got != pair[1] {
			t.Errorf("Text2 = %q, want %q", got, pair[1])
		}
	}
}

func TestDiffTextEncoding(t *testing.T) {
	dmp := New()

	tests := []struct {
		name  string
		text1 string
		text2 string
		want1 string
	}{
		{name: "valid utf-8", text1: "héllo wörld ✓", text2: "hello world", want1: "héllo wörld ✓"},
		{name: "invalid byte", text1: "ab\xffcd", text2: "abcd", want1: "ab\uFFFDcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffs := dmp.Diff(tt.text1, tt.text2)
			if got := Text1(diffs); got != tt.want1 {
				t.Errorf("Text1 = %q, want %q", got, tt.want1)
			}
			if got := Text2(diffs); got != tt.text2 {
				t.Errorf("Text2 = %q, want %q", got, tt.text2)
			}
		})
	}
}

func TestDiffTimeout(t *testing.T) {
	dmp := New()
	dmp.DiffTimeout = time.Millisecond

	rng := rand.New(rand.NewSource(7))
	a := randomText(rng, 20000, "abcdefghij \n")
	b := randomText(rng, 20000, "abcdefghij \n")

	diffs := dmp.DiffMain(a, b, false)
	if Text1(diffs) != a || Text2(diffs) != b {
		t.Fatal("a timed out diff must still reconstruct both inputs")
	}
}

func TestDiffLineMode(t *testing.T) {
	dmp := New()
	dmp.DiffTimeout = 0

	var a, b strings.Builder
	for i := 0; i < 60; i++ {
		a.WriteString("1234567890\n")
		b.WriteString("abcdefghij\n")
	}

	lines := dmp.DiffMain(a.String(), b.String(), true)
	chars := dmp.DiffMain(a.String(), b.String(), false)
	if Text2(lines) != Text2(chars) || Text1(lines) != Text1(chars) {
		t.Errorf("line mode and character mode disagree: %s vs %s", litter.Sdump(lines), litter.Sdump(chars))
	}
}

func TestCleanupMerge(t *testing.T) {
	dmp := New()

	tests := []struct {
		name string
		in   []Diff
		want []Diff
	}{
		{
			name: "merge equalities",
			in:   []Diff{{OpEqual, "a"}, {OpEqual, "b"}, {OpEqual, "c"}},
			want: []Diff{{OpEqual, "abc"}},
		},
		{
			name: "merge interweave",
			in:   []Diff{{OpDelete, "a"}, {OpInsert, "b"}, {OpDelete, "c"}, {OpInsert, "d"}, {OpEqual, "e"}, {OpEqual, "f"}},
			want: []Diff{{OpDelete, "ac"}, {OpInsert, "bd"}, {OpEqual, "ef"}},
		},
		{
			name: "prefix and suffix detection",
			in:   []Diff{{OpDelete, "a"}, {OpInsert, "abc"}, {OpDelete, "dc"}},
			want: []Diff{{OpEqual, "a"}, {OpDelete, "d"}, {OpInsert, "b"}, {OpEqual, "c"}},
		},
		{
			name: "slide edit left",
			in:   []Diff{{OpEqual, "a"}, {OpInsert, "ba"}, {OpEqual, "c"}},
			want: []Diff{{OpInsert, "ab"}, {OpEqual, "ac"}},
		},
		{
			name: "slide edit right",
			in:   []Diff{{OpEqual, "c"}, {OpInsert, "ab"}, {OpEqual, "a"}},
			want: []Diff{{OpEqual, "ca"}, {OpInsert, "ba"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dmp.CleanupMerge(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanupMerge() = %s, want %s", litter.Sdump(got), litter.Sdump(tt.want))
			}
		})
	}
}

func TestCleanupSemantic(t *testing.T) {
	dmp := New()

	tests := []struct {
		name string
		in   []Diff
		want []Diff
	}{
		{
			name: "no elimination",
			in:   []Diff{{OpDelete, "ab"}, {OpInsert, "cd"}, {OpEqual, "12"}, {OpDelete, "e"}},
			want: []Diff{{OpDelete, "ab"}, {OpInsert, "cd"}, {OpEqual, "12"}, {OpDelete, "e"}},
		},
		{
			name: "simple elimination",
			in:   []Diff{{OpDelete, "a"}, {OpEqual, "b"}, {OpDelete, "c"}},
			want: []Diff{{OpDelete, "abc"}, {OpInsert, "b"}},
		},
		{
			name: "overlap elimination",
			in:   []Diff{{OpDelete, "abcxxx"}, {OpInsert, "xxxdef"}},
			want: []Diff{{OpDelete, "abc"}, {OpEqual, "xxx"}, {OpInsert, "def"}},
		},
		{
			name: "reverse overlap elimination",
			in:   []Diff{{OpDelete, "xxxabc"}, {OpInsert, "defxxx"}},
			want: []Diff{{OpInsert, "def"}, {OpEqual, "xxx"}, {OpDelete, "abc"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dmp.CleanupSemantic(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanupSemantic() = %s, want %s", litter.Sdump(got), litter.Sdump(tt.want))
			}
		})
	}
}

func TestCleanupSemanticLossless(t *testing.T) {
	dmp := New()

	in := []Diff{{OpEqual, "The c"}, {OpInsert, "ow and the c"}, {OpEqual, "at."}}
	want := []Diff{{OpEqual, "The "}, {OpInsert, "cow and the "}, {OpEqual, "cat."}}

	got := dmp.CleanupSemanticLossless(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CleanupSemanticLossless() = %s, want %s", litter.Sdump(got), litter.Sdump(want))
	}
}

func TestLevenshteinAndXIndex(t *testing.T) {
	diffs := []Diff{{OpDelete, "abc"}, {OpInsert, "1234"}, {OpEqual, "xyz"}}
	if got := Levenshtein(diffs); got != 4 {
		t.Errorf("Levenshtein() = %d, want 4", got)
	}

	diffs = []Diff{{OpEqual, "a"}, {OpDelete, "1234"}, {OpEqual, "xyz"}}
	if got := XIndex(diffs, 2); got != 1 {
		t.Errorf("XIndex() inside a deletion = %d, want 1", got)
	}
	diffs = []Diff{{OpDelete, "a"}, {OpInsert, "1234"}, {OpEqual, "xyz"}}
	if got := XIndex(diffs, 2); got != 5 {
		t.Errorf("XIndex() after a replacement = %d, want 5", got)
	}
}

func roundTripPairs() [][2]string {
	rng := rand.New(rand.NewSource(42))
	pairs := [][2]string{
		{"", ""},
		{"", "new text"},
		{"old text", ""},
		{"Do or do not, there is no try.", "Do or do not, there is no try!"},
		{"The quick brown fox jumps over the lazy dog.", "That quick brown fox jumped over a lazy dog."},
		{"héllo wörld, ünïcode ✓", "hello world, unicode ✗ and more ☃"},
		{"日本語のテキスト", "日本語のテキストを編集しました"},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaabaaaaaaaaaaaaaaaaaaaa"},
	}

	var a, b strings.Builder
	for i := 0; i < 40; i++ {
		a.WriteString("line number ")
		a.WriteString(strings.Repeat("x", i%7))
		a.WriteString("\n")
		if i%5 != 0 {
			b.WriteString("line number ")
			b.WriteString(strings.Repeat("y", i%3))
			b.WriteString("\n")
		}
	}
	pairs = append(pairs, [2]string{a.String(), b.String()})

	for i := 0; i < 20; i++ {
		x := randomText(rng, 50+rng.Intn(400), "abc de\nfé✓")
		y := mutate(rng, x, "xyz \nü")
		pairs = append(pairs, [2]string{x, y})
	}
	pairs = append(pairs, [2]string{randomText(rng, 300, "ab"), randomText(rng, 300, "cd")})
	return pairs
}

func randomText(rng *rand.Rand, n int, alphabet string) string {
	letters := []rune(alphabet)
	out := make([]rune, n)
	for i := range out {
		out[i] = letters[rng.Intn(len(letters))]
	}
	return string(out)
}

// mutate applies a handful of random insertions and deletions to s.
func mutate(rng *rand.Rand, s, alphabet string) string {
	runes := []rune(s)
	for i := 0; i < 1+rng.Intn(8); i++ {
		if len(runes) == 0 {
			break
		}
		at := rng.Intn(len(runes))
		if rng.Intn(2) == 0 {
			end := min(len(runes), at+rng.Intn(20))
			runes = append(runes[:at:at], runes[end:]...)
		} else {
			ins := []rune(randomText(rng, 1+rng.Intn(15), alphabet))
			runes = concatRunes(runes[:at], ins, runes[at:])
		}
	}
	return string(runes)
}
