package model

import (
	"encoding/binary"
	"time"

	"ticket_ledger/internal/cryptographic/hash"
)

type TicketState string

const (
	TicketEmpty     TicketState = "empty"
	TicketOpen      TicketState = "open"
	TicketCommitted TicketState = "committed"
)

type (
	// Commitment is the summary of one ledger snapshot: the Merkle root over
	// Size ordered digests at CommittedAt.
	Commitment struct {
		TicketID    string    `json:"ticketId"`
		Root        hash.Hash `json:"root"`
		Size        int       `json:"size"`
		CommittedAt time.Time `json:"committedAt"`
		Signature   HexBytes  `json:"signature,omitempty"`
		SignerKey   HexBytes  `json:"signerKey,omitempty"`
	}

	Proof struct {
		TicketID string      `json:"ticketId"`
		Digest   hash.Hash   `json:"digest"`
		Root     hash.Hash   `json:"root"`
		Siblings []hash.Hash `json:"proof"`
	}

	VerifyResult struct {
		Valid bool `json:"valid"`
		// Root is the root the proof was checked against: the external one
		// when supplied, the locally recomputed one otherwise.
		Root         hash.Hash         `json:"root"`
		LocalRoot    hash.Hash         `json:"localRoot"`
		RootMismatch bool              `json:"rootMismatch"`
		MessageID    string            `json:"messageId,omitempty"`
		State        VerificationState `json:"verification,omitempty"`
	}
)

// SigningPayload is the byte string a gateway signs to vouch for a root:
// keccak256(ticketId) || root || uint64(size) || uint64(unix seconds).
func (c *Commitment) SigningPayload() []byte {
	ticket := hash.Keccak256([]byte(c.TicketID))
	out := make([]byte, 0, 2*hash.Size+16)
	out = append(out, ticket[:]...)
	out = append(out, c.Root[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(c.Size))
	out = binary.BigEndian.AppendUint64(out, uint64(c.CommittedAt.Unix()))
	return out
}
