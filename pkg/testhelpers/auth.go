// Package testhelpers carries shared fixtures for the test suites.
package testhelpers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MintToken signs an HS256 token for the given subject, suitable for
// the insecure HMAC validator used in tests and local development.
func MintToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// MustMintToken is MintToken that panics on signing failure.
func MustMintToken(secret, userID string, ttl time.Duration) string {
	signed, err := MintToken(secret, userID, ttl)
	if err != nil {
		panic(err)
	}
	return signed
}
