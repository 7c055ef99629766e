package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"ticket_ledger/internal/model"
)

var ErrInvalidSeed = errors.New("signing seed must be 32 bytes")

type (
	// Signer vouches for commitments with an ed25519 key so a root can be
	// handed to an external ledger together with proof of who produced it.
	Signer struct {
		priv ed25519.PrivateKey
	}
)

func NewEd25519Keypair() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSeed
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Signer) PublicKey() []byte {
	return s.priv.Public().(ed25519.PublicKey)
}

// SignCommitment fills in Signature and SignerKey.
func (s *Signer) SignCommitment(c *model.Commitment) {
	c.Signature = ED25519Sign(s.priv, c.SigningPayload())
	c.SignerKey = s.PublicKey()
}

// VerifyCommitment checks c against the expected signer public key.
func VerifyCommitment(pub []byte, c *model.Commitment) bool {
	if len(pub) != ed25519.PublicKeySize || len(c.Signature) != ed25519.SignatureSize {
		return false
	}
	return ED25519Verify(pub, c.SigningPayload(), c.Signature)
}

func ED25519Sign(privKeyBytes []byte, message []byte) []byte {
	privKey := ed25519.PrivateKey(privKeyBytes)
	return ed25519.Sign(privKey, message)
}

func ED25519Verify(pubKeyBytes []byte, message []byte, signature []byte) bool {
	pubKey := ed25519.PublicKey(pubKeyBytes)
	return ed25519.Verify(pubKey, message, signature)
}
