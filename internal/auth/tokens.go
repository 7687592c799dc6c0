package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"tradejournal/internal/constants"
)

// GenerateOpaqueToken returns a hex-encoded random token used for email
// verification and password reset links.
func GenerateOpaqueToken() (string, error) {
	return generateSecureToken(constants.OpaqueTokenBytes)
}

// HashToken is the one-way digest under which reset and refresh tokens are
// stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
