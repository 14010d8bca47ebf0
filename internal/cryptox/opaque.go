package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// DefaultTokenBytes is the entropy of single-use tokens.
const DefaultTokenBytes = 48

// HashOpaque returns the lowercase hex SHA-256 digest of value.
//
// It is only suitable for high-entropy random values such as refresh tokens
// or single-use links, where the token entropy rather than the algorithm
// cost makes brute force infeasible. Passwords go through PasswordHasher.
func HashOpaque(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken generates size random bytes, encodes them URL-safe without
// padding and returns the raw token together with its HashOpaque digest.
// Non-positive sizes use DefaultTokenBytes.
func NewOpaqueToken(size int) (raw string, hash string, err error) {
	if size <= 0 {
		size = DefaultTokenBytes
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashOpaque(raw), nil
}

// WipeByteArray overwrites b with zeros. A nil slice is ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
