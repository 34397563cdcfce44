package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// GenerateRandomHex returns a hex string of byteLength cryptographically
// random bytes.
func GenerateRandomHex(byteLength int) (string, error) {
	if byteLength < 1 {
		return "", errors.New("length must be greater than 0")
	}
	b := make([]byte, byteLength)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the at-rest fingerprint of an opaque token. The raw value is
// never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NormalizeCodeChallenge decodes a base64url code challenge (padded or not)
// and re-encodes it unpadded, so the stored value has a single canonical form.
func NormalizeCodeChallenge(challenge string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(challenge, "="))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(decoded), nil
}

// DeriveCodeChallenge computes the S256 challenge for a code verifier,
// base64url encoded without padding.
func DeriveCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two strings without leaking where they differ.
func ConstantTimeEqual(a string, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
