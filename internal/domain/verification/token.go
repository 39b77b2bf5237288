package verification

import (
	"crypto/rand"
	"fmt"
)

// tokenAlphabet excludes ambiguous characters (0/O, 1/I/l) so codes
// survive being read aloud or retyped.
const tokenAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const DefaultTokenLength = 8

// NewToken returns a random token of the given length drawn from
// tokenAlphabet using crypto/rand.
func NewToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
