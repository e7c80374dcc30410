package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals plaintext")
	}

	if !h.Verify("correct horse battery staple", hash) {
		t.Error("correct secret rejected")
	}
	if h.Verify("wrong secret", hash) {
		t.Error("wrong secret accepted")
	}
}

func TestBcryptHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewBcryptHasher(-1)
	if h.cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", h.cost, bcrypt.DefaultCost)
	}
}

func TestPlaceholderSecret_Unique(t *testing.T) {
	a, b := PlaceholderSecret(), PlaceholderSecret()
	if a == "" || a == b {
		t.Errorf("placeholder secrets not unique: %q %q", a, b)
	}
}
