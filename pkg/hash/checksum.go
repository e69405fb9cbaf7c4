package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Checksum returns a hex BLAKE2b-256 digest of content. It detects drift
// between replicas and carries no security meaning.
func Checksum(content string) string {
	return ChecksumBytes([]byte(content))
}

func ChecksumBytes(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
