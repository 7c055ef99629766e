package dh

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip sends c the way a socket does, dropping the expected answer.
func roundTrip(t *testing.T, c *Challenge) *Challenge {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	var out Challenge
	require.NoError(t, json.Unmarshal(data, &out))
	return &out
}

func TestChallenge_HolderIsAccepted(t *testing.T) {
	secret, id, err := NewParty()
	require.NoError(t, err)

	c, err := NewChallenge(id)
	require.NoError(t, err)

	a, err := roundTrip(t, c).Answer(secret)
	require.NoError(t, err)
	assert.True(t, c.Accepts(a))
}

func TestChallenge_OtherSecretIsRejected(t *testing.T) {
	_, id, err := NewParty()
	require.NoError(t, err)
	other, _, err := NewParty()
	require.NoError(t, err)

	c, err := NewChallenge(id)
	require.NoError(t, err)

	a, err := roundTrip(t, c).Answer(other)
	require.NoError(t, err)
	assert.False(t, c.Accepts(a))

	assert.False(t, c.Accepts(nil))
	assert.False(t, c.Accepts(&Answer{Proof: "zz"}))
	assert.False(t, c.Accepts(&Answer{}))
}

func TestChallenge_AnswerIsBoundToNonce(t *testing.T) {
	secret, id, err := NewParty()
	require.NoError(t, err)

	first, err := NewChallenge(id)
	require.NoError(t, err)
	second, err := NewChallenge(id)
	require.NoError(t, err)

	a, err := roundTrip(t, first).Answer(secret)
	require.NoError(t, err)
	assert.False(t, second.Accepts(a))
}

func TestChallenge_InvalidInput(t *testing.T) {
	_, err := NewChallenge("not hex")
	assert.ErrorIs(t, err, ErrInvalidChallenge)
	_, err = NewChallenge("abcd")
	assert.ErrorIs(t, err, ErrInvalidChallenge)

	secret, id, err := NewParty()
	require.NoError(t, err)
	c, err := NewChallenge(id)
	require.NoError(t, err)

	_, err = c.Answer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidSecret)

	bad := roundTrip(t, c)
	bad.Nonce = "00"
	_, err = bad.Answer(secret)
	assert.ErrorIs(t, err, ErrInvalidChallenge)
}
