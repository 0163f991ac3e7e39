package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

const (
	APIKeyPrefix      = "cg_live_"
	apiKeySecretBytes = 32
)

// HashAPIKey hashes the raw API key using the same strategy as key issuance.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashesEqual compares two key hashes in constant time.
func HashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateAPIKey returns a new plaintext key and its hash.
func GenerateAPIKey() (string, string, error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plain := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return plain, HashAPIKey(plain), nil
}
