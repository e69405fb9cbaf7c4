package hash

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{
			name: "identical content",
			a:    "Do or do not, there is no try.",
			b:    "Do or do not, there is no try.",
			same: true,
		},
		{
			name: "single character differs",
			a:    "Do or do not, there is no try.",
			b:    "Do or do not, there is no try!",
			same: false,
		},
		{
			name: "empty and blank",
			a:    "",
			b:    " ",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Checksum(tt.a) == Checksum(tt.b)
			if got != tt.same {
				t.Errorf("Checksum(%q) == Checksum(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

func TestChecksumFormat(t *testing.T) {
	sum := Checksum("content")
	if len(sum) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(sum))
	}
	if sum != ChecksumBytes([]byte("content")) {
		t.Error("string and byte checksums differ")
	}
}
