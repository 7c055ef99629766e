package model

import (
	"encoding/hex"
	"fmt"
	"time"

	"ticket_ledger/internal/cryptographic/hash"
)

type VerificationState string

const (
	Unverified VerificationState = "unverified"
	Verified   VerificationState = "verified"
	Failed     VerificationState = "failed"
)

func (s VerificationState) Valid() bool {
	switch s {
	case Unverified, Verified, Failed:
		return true
	}
	return false
}

type (
	// HexBytes is a byte string that travels as lower case hex.
	HexBytes []byte

	// RecipientKey is the content key wrapped for one party.
	RecipientKey struct {
		PublicID   string   `json:"publicId"`
		WrappedKey HexBytes `json:"wrappedKey"`
		IV         HexBytes `json:"iv"`
		Salt       HexBytes `json:"salt"`
	}

	// Message is one sealed entry of a ticket chain. Everything except
	// Verification is fixed once the store has accepted it.
	Message struct {
		ID            string            `json:"id"`
		TicketID      string            `json:"ticketId"`
		ParentID      *string           `json:"parentId"`
		Digest        hash.Hash         `json:"digest"`
		Ciphertext    HexBytes          `json:"ciphertext"`
		IV            HexBytes          `json:"iv"`
		RecipientKeys []RecipientKey    `json:"recipientKeys"`
		Verification  VerificationState `json:"verification"`
		MessageType   string            `json:"messageType,omitempty"`
		CreatedAt     time.Time         `json:"createdAt"`
	}
)

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	out := make([]byte, hex.DecodedLen(len(text)))
	if _, err := hex.Decode(out, text); err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	*b = out
	return nil
}

func (m *Message) IsRoot() bool {
	return m.ParentID == nil
}

// HasRecipient reports whether publicID holds a wrapped key for m.
func (m *Message) HasRecipient(publicID string) bool {
	for _, rk := range m.RecipientKeys {
		if rk.PublicID == publicID {
			return true
		}
	}
	return false
}

func (m *Message) RecipientIDs() []string {
	ids := make([]string, 0, len(m.RecipientKeys))
	for _, rk := range m.RecipientKeys {
		ids = append(ids, rk.PublicID)
	}
	return ids
}
