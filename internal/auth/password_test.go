package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// newTestPasswordService uses bcrypt's minimum cost so tests run in
// milliseconds.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(bcrypt.MinCost)
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_IsSaltedBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash1, err := ps.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hash2, _ := ps.Hash("same-password")

	if !strings.HasPrefix(hash1, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash1)
	}
	if hash1 == "same-password" {
		t.Error("Hash() returned the plaintext")
	}
	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("Hash() should accept a %d-byte password, got error: %v", MaxPasswordBytes, err)
	}
	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Fatal("Hash() should reject passwords longer than the bcrypt limit")
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	cases := []struct {
		name     string
		hash     string
		password string
		wantErr  bool
		mismatch bool
	}{
		{"correct", hash, "correct-horse-battery-staple", false, false},
		{"wrong", hash, "correct-horse-battery", true, true},
		{"empty", hash, "", true, true},
		{"garbage hash", "not-a-bcrypt-hash", "x", true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ps.Verify(tc.hash, tc.password)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got := errors.Is(err, ErrPasswordMismatch); got != tc.mismatch {
				t.Errorf("errors.Is(err, ErrPasswordMismatch) = %v, want %v", got, tc.mismatch)
			}
		})
	}
}
