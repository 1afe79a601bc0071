package bcrypt

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost = 10
)

// HashPIN hashes a staff PIN for storage on the event.
func HashPIN(pin string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(pin), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %v", err)
	}
	return string(hashedBytes), nil
}

func ComparePIN(hashedPIN, pin string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPIN), []byte(pin))
	if err != nil {
		return fmt.Errorf("pin comparison failed: %v", err)
	}
	return nil
}

// VerifyHash reports whether hash looks like a bcrypt hash.
func VerifyHash(hash string) bool {
	return len(hash) == 60 && hash[0:2] == "$2"
}
