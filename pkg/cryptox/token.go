package cryptox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenSize256 provides 256 bits of entropy (64 hex chars).
const TokenSize256 = 32

// GenerateHexToken creates a cryptographically secure random token of size
// bytes, hex encoded. Used for single-use email verification and password
// reset links.
func GenerateHexToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
