// internal/pkg/hash/hash.go
package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces keyed one-way hashes of credentials and one-time codes so
// that raw secrets never reach storage.
type Hasher struct {
	key []byte
}

func NewHasher(key string) *Hasher {
	return &Hasher{key: []byte(key)}
}

// Token hashes a raw credential for storage or lookup.
func (h *Hasher) Token(raw string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Code hashes a one-time code. Same construction as Token, kept separate so
// call sites read clearly.
func (h *Hasher) Code(raw string) string {
	return h.Token(raw)
}

// Matches compares a raw value against a stored hash in constant time.
func (h *Hasher) Matches(raw, storedHash string) bool {
	return hmac.Equal([]byte(h.Token(raw)), []byte(storedHash))
}
