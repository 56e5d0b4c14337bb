package simplecms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testArgon2 = Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestArgon2Hasher(t *testing.T) {
	h := NewArgon2Hasher(testArgon2)

	encoded, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"), encoded)

	ok, err := h.Verify("secret1", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("secret2", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salts differ")
}

func TestArgon2VerifyUsesEncodedParams(t *testing.T) {
	encoded, err := NewArgon2Hasher(testArgon2).Hash("secret1")
	require.NoError(t, err)

	stronger := NewArgon2Hasher(Argon2Params{Memory: 128, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	ok, err := stronger.Verify("secret1", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2VerifyRejectsMalformed(t *testing.T) {
	h := NewArgon2Hasher(testArgon2)
	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=16$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!$a2V5",
	} {
		_, err := h.Verify("secret1", encoded)
		assert.Error(t, err, encoded)
	}
}
