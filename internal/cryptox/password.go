// Package cryptox holds the one-way hashing primitives of the server:
// a slow, salted hash for passwords and a fast digest for high-entropy
// random tokens.
package cryptox

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords with bcrypt at a fixed cost.
// The zero value uses bcrypt.DefaultCost.
type PasswordHasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordHasher returns a hasher with the given cost. Out-of-range costs
// fall back to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{Cost: cost}
}

func (h *PasswordHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash returns the bcrypt digest of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost())
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. Malformed digests never match.
func (h *PasswordHasher) Verify(plain, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	return err == nil
}

// VerifyDummy spends the same work as Verify against a fixed digest. Login
// calls it when the identifier is unknown so both failures take equally long.
func (h *PasswordHasher) VerifyDummy(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), h.cost())
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}

// IsTooLong reports whether err means the password exceeded bcrypt's limit.
func IsTooLong(err error) bool {
	return errors.Is(err, ErrPasswordTooLong)
}
