package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the default cost for bcrypt hashing.
	bcryptCost = 10
)

// dummyHash is compared against when the username is unknown so that
// login latency does not reveal which usernames exist.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("linechat-dummy-secret"), bcryptCost)

// HashSecret generates a salted bcrypt hash of the secret.
func HashSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// CompareSecret checks a plaintext secret against its bcrypt hash.
func CompareSecret(hashed, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret))
}
