package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcryptLimit is the longest input bcrypt accepts.
const bcryptLimit = 72

// secretBytes returns the bcrypt input for plain. Passwords longer than
// bcryptLimit bytes are reduced to their hex SHA-256 so they still hash.
func secretBytes(plain string) []byte {
	if len(plain) <= bcryptLimit {
		return []byte(plain)
	}
	sum := sha256.Sum256([]byte(plain))
	return []byte(hex.EncodeToString(sum[:]))
}

// HashPassword returns the bcrypt hash of plain. cost is clamped to the
// range bcrypt supports.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	b, err := bcrypt.GenerateFromPassword(secretBytes(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), secretBytes(plain)) == nil
}
