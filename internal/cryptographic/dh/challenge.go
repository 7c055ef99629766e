package dh

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const nonceSize = 32

var ErrInvalidChallenge = errors.New("invalid challenge")

type (
	// Challenge asks a peer to prove it holds the secret behind a public id
	// without sending it: only the holder can reach the X25519 shared
	// secret with Ephemeral.
	Challenge struct {
		Ephemeral string `json:"ephemeral"`
		Nonce     string `json:"nonce"`

		expected []byte
	}

	Answer struct {
		Proof string `json:"proof"`
	}
)

// NewChallenge prepares a challenge addressed to publicID.
func NewChallenge(publicID string) (*Challenge, error) {
	raw, err := hex.DecodeString(publicID)
	if err != nil {
		return nil, fmt.Errorf("%w: public id: %v", ErrInvalidChallenge, err)
	}
	peer, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: public id: %v", ErrInvalidChallenge, err)
	}

	eph, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	shared, err := eph.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &Challenge{
		Ephemeral: hex.EncodeToString(eph.PublicKey().Bytes()),
		Nonce:     hex.EncodeToString(nonce),
		expected:  proof(shared, nonce),
	}, nil
}

// Answer computes the response the holder of secret sends back.
func (c *Challenge) Answer(secret []byte) (*Answer, error) {
	if len(secret) != SecretSize {
		return nil, ErrInvalidSecret
	}
	priv, err := ConvertToECDHFormat(secret)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(c.Ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral: %v", ErrInvalidChallenge, err)
	}
	eph, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral: %v", ErrInvalidChallenge, err)
	}
	nonce, err := hex.DecodeString(c.Nonce)
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce", ErrInvalidChallenge)
	}

	shared, err := priv.ECDH(eph)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	return &Answer{Proof: hex.EncodeToString(proof(shared, nonce))}, nil
}

// Accepts reports whether a answers a challenge created by NewChallenge.
func (c *Challenge) Accepts(a *Answer) bool {
	if a == nil || c.expected == nil {
		return false
	}
	got, err := hex.DecodeString(a.Proof)
	if err != nil {
		return false
	}
	return hmac.Equal(got, c.expected)
}

func proof(shared, nonce []byte) []byte {
	mac := hmac.New(sha256.New, shared)
	mac.Write([]byte("ticket-ledger notification socket"))
	mac.Write(nonce)
	return mac.Sum(nil)
}
