package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

var ErrPasswordMismatch = errors.New("password mismatch")

// Hasher hashes and verifies account passwords. Hashing happens explicitly
// at the service layer before a save, never as a hidden persistence hook.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// HashPassword produces a salted bcrypt hash. Two calls on the same
// plaintext yield different hashes; both verify.
func (h *Hasher) HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a candidate against a stored hash. A malformed
// stored hash fails closed as a mismatch.
func (h *Hasher) CheckPassword(hash, plaintext string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
