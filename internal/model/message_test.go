package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket_ledger/internal/cryptographic/hash"
)

func TestMessage_WireShape(t *testing.T) {
	parent := "1"
	m := &Message{
		ID:         "2",
		TicketID:   "t-1",
		ParentID:   &parent,
		Digest:     hash.Keccak256([]byte("doc")),
		Ciphertext: HexBytes{0xde, 0xad},
		IV:         HexBytes{0x01},
		RecipientKeys: []RecipientKey{
			{PublicID: "bank-a", WrappedKey: HexBytes{0xbe, 0xef}, IV: HexBytes{0x02}, Salt: HexBytes{0x03}},
		},
		Verification: Unverified,
		CreatedAt:    time.Unix(0, 0).UTC(),
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "dead", raw["ciphertext"])
	assert.Equal(t, m.Digest.Hex(), raw["digest"])
	assert.Equal(t, "1", raw["parentId"])
	keys := raw["recipientKeys"].([]any)
	assert.Equal(t, "beef", keys[0].(map[string]any)["wrappedKey"])

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Ciphertext, back.Ciphertext)
	assert.Equal(t, m.Digest, back.Digest)
	assert.True(t, back.HasRecipient("bank-a"))
	assert.False(t, back.IsRoot())
}

func TestMessage_RootHasNullParent(t *testing.T) {
	data, err := json.Marshal(&Message{ID: "1"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parentId":null`)
}

func TestVerificationState_Valid(t *testing.T) {
	assert.True(t, Verified.Valid())
	assert.False(t, VerificationState("maybe").Valid())
}

func TestCommitment_SigningPayloadBindsFields(t *testing.T) {
	c := &Commitment{TicketID: "t", Root: hash.Keccak256([]byte("r")), Size: 3, CommittedAt: time.Unix(100, 0)}
	p1 := c.SigningPayload()
	assert.Len(t, p1, 80)

	c.Size = 4
	assert.NotEqual(t, p1, c.SigningPayload())
}
