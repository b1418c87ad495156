package utils // helper functions for credential material: tokens, codes, ids

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// NewToken returns a 64-character hex string from 32 bytes of
// cryptographically secure randomness. Used for every bearer credential:
// session tokens, customer access tokens, payment-link tokens.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewVerificationCode returns a 6-digit numeric code (leading zeros kept).
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NewEmployeeID returns a provider employee id of the form EMP-<ms>-<rand>.
func NewEmployeeID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EMP-%d-%d", time.Now().UnixMilli(), 1000+n.Int64()), nil
}

// SecureCompare compares two strings in constant time.
func SecureCompare(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
