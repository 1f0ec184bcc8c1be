package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// KeyPrefix is the lexical marker of a raw API key. It lets the
// websocket handler tell an API key apart from a bearer JWT in the
// query-string token.
const KeyPrefix = "cd_"

// GenerateAPIKey returns a fresh raw key and its stored hash. The raw
// key is shown to the owner exactly once; only the hash is persisted.
func GenerateAPIKey() (raw, hash string) {
	buf := make([]byte, 32)
	rand.Read(buf)
	raw = KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashAPIKey(raw)
}

// HashAPIKey is the deterministic one-way digest used both at issuance
// and at lookup.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// HasKeyShape reports whether token looks like a raw API key rather
// than a JWT.
func HasKeyShape(token string) bool {
	return strings.HasPrefix(token, KeyPrefix)
}
