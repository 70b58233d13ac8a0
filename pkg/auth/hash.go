package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// ResetTokenBytes is the entropy of a password-reset bearer token
const ResetTokenBytes = 32

// GenerateToken reads n random bytes from r and encodes them URL-safe.
// A nil reader means crypto/rand.
func GenerateToken(r io.Reader, n int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// DecodedTokenLength returns the byte length of a URL-safe token, or -1 if it does not decode
func DecodedTokenLength(token string) int {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return -1
	}
	return len(raw)
}

// HashToken is the one-way hash stored in place of bearer tokens and used for device fingerprints.
// Not for passwords.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
