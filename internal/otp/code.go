package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// GenerateCode returns a cryptographically random numeric code. Length is
// clamped to the 4-6 digit range callers can read over the phone.
func GenerateCode(length int) (string, error) {
	if length < 4 {
		length = 4
	}
	if length > 6 {
		length = 6
	}
	max := big.NewInt(10)
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("otp: generate code: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// NewSalt returns a fresh per-hold salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("otp: generate salt: %w", err)
	}
	return salt, nil
}

// HashCode derives the stored digest. Only the hash ever touches the
// database; the plain code exists in memory for the duration of one send.
func HashCode(code string, salt []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(code))
	return h.Sum(nil)
}

// Matches compares a candidate code against the stored digest in constant
// time.
func Matches(candidate string, salt, storedHash []byte) bool {
	if len(storedHash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashCode(candidate, salt), storedHash) == 1
}
