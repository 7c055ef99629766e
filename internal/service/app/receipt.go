package app

import (
	"context"

	"ticket_ledger/internal/canonical"
	"ticket_ledger/internal/cryptographic/envelope"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/ledger/merkle"
	"ticket_ledger/internal/model"
)

// Receipt is what a party learns about one message by checking it locally.
type Receipt struct {
	Message  *model.Message
	Schema   string
	Document []byte
	Proof    *model.Proof
	// Included reports that the proof leads to CheckedRoot.
	Included    bool
	CheckedRoot hash.Hash
	// RootMismatch is set when an anchored root was given and the gateway's
	// current root differs from it.
	RootMismatch bool
}

// Inspect fetches a message, opens it with the party's own secret and checks
// its inclusion proof without trusting the gateway's verdict. With anchored
// set the proof is checked against that root instead of the one the gateway
// reports.
func Inspect(ctx context.Context, c *Client, secret []byte, ticketID, messageID string, anchored *hash.Hash) (*Receipt, error) {
	msg, err := c.Message(ctx, ticketID, messageID)
	if err != nil {
		return nil, err
	}

	plaintext, err := envelope.Open(envelope.FromMessage(msg), secret)
	if err != nil {
		return nil, err
	}
	schema, err := canonical.SchemaOf(plaintext)
	if err != nil {
		return nil, err
	}

	proof, err := c.Proof(ctx, ticketID, msg.Digest)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		Message:     msg,
		Schema:      schema,
		Document:    plaintext,
		Proof:       proof,
		CheckedRoot: proof.Root,
	}
	if anchored != nil {
		r.CheckedRoot = *anchored
		r.RootMismatch = *anchored != proof.Root
	}
	r.Included = merkle.Verify(r.CheckedRoot, msg.Digest, proof.Siblings)
	return r, nil
}
