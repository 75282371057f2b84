package utils

import (
	"crypto/rand"
	"fmt"
)

// Base34 is the id alphabet without the easily confused I and O.
const Base34 = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// RandBase34 generates a random base34 string of the given length
func RandBase34(length int) (string, error) {
	return RandString(Base34, length)
}

// RandString generates a random string of the given length drawn from alphabet
func RandString(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}
	if len(alphabet) == 0 || len(alphabet) > 256 {
		return "", fmt.Errorf("invalid alphabet size: %d", len(alphabet))
	}

	randBytes := make([]byte, length)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	tableLen := len(alphabet)
	for i := range randBytes {
		randBytes[i] = alphabet[int(randBytes[i])%tableLen]
	}

	return string(randBytes), nil
}
