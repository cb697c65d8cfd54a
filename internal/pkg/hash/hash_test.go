package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenDeterministic(t *testing.T) {
	h := NewHasher("test-key")

	first := h.Token("some-credential")
	second := h.Token("some-credential")

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex-encoded sha256
}

func TestTokenKeyed(t *testing.T) {
	a := NewHasher("key-a")
	b := NewHasher("key-b")

	assert.NotEqual(t, a.Token("credential"), b.Token("credential"))
}

func TestMatches(t *testing.T) {
	h := NewHasher("test-key")
	stored := h.Token("raw-token")

	assert.True(t, h.Matches("raw-token", stored))
	assert.False(t, h.Matches("other-token", stored))
	assert.False(t, h.Matches("raw-token", "not-a-hash"))
}

func TestCodeUsesSameConstruction(t *testing.T) {
	h := NewHasher("test-key")
	assert.Equal(t, h.Token("123456"), h.Code("123456"))
}
