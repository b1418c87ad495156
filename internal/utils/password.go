package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares a bcrypt hash and a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsBcryptHash reports whether stored looks like a bcrypt digest. Rows
// migrated from the legacy system may still hold plaintext passwords.
func IsBcryptHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

// CheckAndUpgrade verifies plain against stored, which may be either a
// bcrypt hash or a legacy plaintext value. On a successful plaintext match
// it returns a fresh hash for the caller to persist, upgrading the row;
// newHash is empty when no rehash is needed.
func CheckAndUpgrade(stored, plain string, cost int) (ok bool, newHash string, err error) {
	if IsBcryptHash(stored) {
		return VerifyPassword(stored, plain), "", nil
	}
	if SecureCompare(stored, plain) {
		h, err := HashPassword(plain, cost)
		if err != nil {
			return false, "", err
		}
		return true, h, nil
	}
	return false, "", nil
}
