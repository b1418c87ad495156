package utils

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	h, err := HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !IsBcryptHash(h) {
		t.Fatalf("expected a bcrypt digest, got %q", h)
	}
	if !VerifyPassword(h, "s3cret") {
		t.Fatal("correct password should verify")
	}
	if VerifyPassword(h, "wrong") {
		t.Fatal("wrong password should not verify")
	}
}

func TestCheckAndUpgradeHashedRow(t *testing.T) {
	h, _ := HashPassword("s3cret", bcrypt.MinCost)

	ok, newHash, err := CheckAndUpgrade(h, "s3cret", bcrypt.MinCost)
	if err != nil || !ok {
		t.Fatalf("hashed match: ok=%v err=%v", ok, err)
	}
	if newHash != "" {
		t.Fatal("already-hashed rows need no rehash")
	}

	ok, _, err = CheckAndUpgrade(h, "wrong", bcrypt.MinCost)
	if err != nil || ok {
		t.Fatalf("hashed mismatch: ok=%v err=%v", ok, err)
	}
}

func TestCheckAndUpgradePlaintextRow(t *testing.T) {
	ok, newHash, err := CheckAndUpgrade("legacy-pass", "legacy-pass", bcrypt.MinCost)
	if err != nil || !ok {
		t.Fatalf("plaintext match: ok=%v err=%v", ok, err)
	}
	if newHash == "" || !IsBcryptHash(newHash) {
		t.Fatalf("plaintext match should produce a fresh hash, got %q", newHash)
	}
	if !VerifyPassword(newHash, "legacy-pass") {
		t.Fatal("upgraded hash should verify the same password")
	}

	ok, newHash, err = CheckAndUpgrade("legacy-pass", "wrong", bcrypt.MinCost)
	if err != nil || ok || newHash != "" {
		t.Fatalf("plaintext mismatch: ok=%v hash=%q err=%v", ok, newHash, err)
	}
}

func TestTokenShapes(t *testing.T) {
	tok, err := NewToken()
	if err != nil || len(tok) != 64 {
		t.Fatalf("token: %q err=%v", tok, err)
	}
	other, _ := NewToken()
	if tok == other {
		t.Fatal("tokens must not repeat")
	}

	code, err := NewVerificationCode()
	if err != nil || len(code) != 6 {
		t.Fatalf("code: %q err=%v", code, err)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("code should be numeric, got %q", code)
		}
	}

	emp, err := NewEmployeeID()
	if err != nil {
		t.Fatalf("employee id: %v", err)
	}
	if len(emp) < 8 || emp[:4] != "EMP-" {
		t.Fatalf("employee id shape: %q", emp)
	}
}
