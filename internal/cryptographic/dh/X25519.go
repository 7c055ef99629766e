package dh

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

const SecretSize = curve25519.ScalarSize

var ErrInvalidSecret = errors.New("party secret must be 32 bytes")

// Generate a new X25519 key pair
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	return NewX25519KeyPairFrom(rand.Reader)
}

func NewX25519KeyPairFrom(r io.Reader) (priv, pub [32]byte, err error) {
	_, err = io.ReadFull(r, priv[:])
	if err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// PublicID derives the identifier a party is addressed by from its secret:
// the hex encoded X25519 public key.
func PublicID(secret []byte) (string, error) {
	if len(secret) != SecretSize {
		return "", ErrInvalidSecret
	}
	priv, err := ConvertToECDHFormat(secret)
	if err != nil {
		return "", fmt.Errorf("derive public id: %w", err)
	}
	return hex.EncodeToString(priv.PublicKey().Bytes()), nil
}

// NewParty returns a fresh secret and the public id that belongs to it.
func NewParty() (secret []byte, publicID string, err error) {
	priv, pub, err := NewX25519KeyPair()
	if err != nil {
		return nil, "", err
	}
	return priv[:], hex.EncodeToString(pub[:]), nil
}

func ConvertToECDHFormat(privKey []byte) (*ecdh.PrivateKey, error) {
	curve := ecdh.X25519()
	return curve.NewPrivateKey(privKey)
}
