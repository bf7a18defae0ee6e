package crypto

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	t.Parallel()

	// MinCost keeps the test fast; production uses the configured cost.
	hasher := NewHasher(bcrypt.MinCost)

	hash, err := hasher.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Fatalf("hash %q is not a bcrypt hash", hash)
	}

	if err := hasher.CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("CheckPassword error: %v", err)
	}
}

func TestCheckPasswordMismatch(t *testing.T) {
	t.Parallel()

	hasher := NewHasher(bcrypt.MinCost)
	hash, err := hasher.HashPassword("right")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if err := hasher.CheckPassword(hash, "wrong"); err != ErrPasswordMismatch {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestCheckPasswordGarbageHash(t *testing.T) {
	t.Parallel()

	hasher := NewHasher(bcrypt.MinCost)
	if err := hasher.CheckPassword("not-a-hash", "anything"); err != ErrPasswordMismatch {
		t.Fatalf("expected ErrPasswordMismatch for garbage hash, got %v", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	t.Parallel()

	hasher := NewHasher(bcrypt.MinCost)
	first, err := hasher.HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	second, err := hasher.HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same input are identical, salt is missing")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	t.Parallel()

	hasher := NewHasher(100)
	hash, err := hasher.HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost error: %v", err)
	}
	if cost != DefaultCost {
		t.Fatalf("cost = %d, want %d", cost, DefaultCost)
	}
}
