// Package security provides the password-hashing primitive and related
// helpers consumed by the core. The core never chooses a storage format
// itself; it only depends on the Hash/Verify contract.
package security

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes and verifies secrets with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given cost. Costs below the
// bcrypt minimum fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plain matches the stored hash.
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PlaceholderSecret returns a random unguessable secret for identities
// provisioned through a third-party login. Such accounts have no
// password-based login path until the secret is explicitly reset.
func PlaceholderSecret() string {
	return uuid.NewString()
}
