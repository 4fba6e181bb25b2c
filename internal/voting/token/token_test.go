package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agora/pkg/domain"
)

// Cheap parameters keep the suite fast.
var testParams = Params{Time: 1, Memory: 1024, Threads: 1}

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(testParams)
	userID := id.UserID(id.NewVoterID())

	encoded, err := h.Hash("correct horse", 42, userID)
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")
	assert.NotContains(t, encoded, "correct horse")

	t.Run("matching inputs", func(t *testing.T) {
		ok, err := h.Verify("correct horse", 42, userID, encoded)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("one character off", func(t *testing.T) {
		ok, err := h.Verify("correct horsf", 42, userID, encoded)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different ballot number", func(t *testing.T) {
		ok, err := h.Verify("correct horse", 43, userID, encoded)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different user", func(t *testing.T) {
		ok, err := h.Verify("correct horse", 42, id.UserID(id.NewVoterID()), encoded)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestHashSaltsEachCall(t *testing.T) {
	h := NewHasher(testParams)
	userID := id.UserID(id.NewVoterID())

	a, err := h.Hash("s", 1, userID)
	require.NoError(t, err)
	b, err := h.Hash("s", 1, userID)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := NewHasher(testParams).Hash("", 1, id.UserID{})
	assert.Error(t, err)
}

func TestVerifyMalformed(t *testing.T) {
	h := NewHasher(testParams)
	for _, encoded := range []string{"", "plain", "$bcrypt$x$y$z$w", "$argon2id$v=19$m=x$salt$key"} {
		_, err := h.Verify("s", 1, id.UserID{}, encoded)
		assert.Error(t, err, encoded)
	}
}
