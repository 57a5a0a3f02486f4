// Package id provides opaque session identifier generation.
package id

import (
	"crypto/rand"
	"math/big"
)

// alphabet is the restricted character set used for session identifiers:
// mixed-case ASCII letters only, so ids stay safe in URLs and file paths.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultLength is the number of characters in a generated identifier.
const DefaultLength = 8

// Generate creates a random identifier of the given length.
// A non-positive length falls back to DefaultLength.
func Generate(length int) string {
	if length <= 0 {
		length = DefaultLength
	}

	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the platform entropy source is
			// broken; the zero index keeps the id well-formed regardless.
			buf[i] = alphabet[0]
			continue
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf)
}
