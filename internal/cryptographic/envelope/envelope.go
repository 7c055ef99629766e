// Package envelope seals one plaintext for several parties at once.
//
// The plaintext is encrypted a single time under a random content key
// (AES-256-CBC). The content key is then wrapped separately for every
// recipient under a key derived from that recipient's own secret with
// PBKDF2, so a party that is not named cannot even locate a wrapped key.
//
// The sender must hold each recipient's secret. This is the scheme the
// gateway runs, not public key encryption; callers that need senders without
// access to recipient secrets need a different wrapping step.
package envelope

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/cryptographic/encryption"
	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/cryptographic/kdf"
	"ticket_ledger/internal/model"
)

const (
	KeySize  = 32
	SaltSize = 16
)

var (
	ErrRandomnessUnavailable = errors.New("secure randomness unavailable")
	ErrNotAuthorized         = errors.New("holder is not a recipient of this message")
	ErrDecryptionFailed      = errors.New("decryption failed")
	ErrNoRecipients          = errors.New("at least one recipient is required")
)

type (
	Recipient struct {
		PublicID string
		Secret   []byte
	}

	// Sealed is the output of Seal: everything a store needs to keep.
	Sealed struct {
		Ciphertext    []byte
		IV            []byte
		Digest        hash.Hash
		RecipientKeys []model.RecipientKey
	}

	Sealer struct {
		rand       io.Reader
		iterations int
	}

	Option func(*Sealer)
)

// WithRand replaces crypto/rand as the source of keys, IVs and salts.
func WithRand(r io.Reader) Option {
	return func(s *Sealer) { s.rand = r }
}

func New(opts ...Option) *Sealer {
	s := &Sealer{
		rand:       rand.Reader,
		iterations: kdf.Iterations,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecipientFromSecret builds a Recipient whose public id is derived from the
// secret.
func RecipientFromSecret(secret []byte) (Recipient, error) {
	id, err := dh.PublicID(secret)
	if err != nil {
		return Recipient{}, err
	}
	return Recipient{PublicID: id, Secret: secret}, nil
}

// Seal encrypts plaintext once and wraps the content key for every
// recipient, in the given order.
func (s *Sealer) Seal(plaintext []byte, recipients []Recipient) (*Sealed, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	contentKey, err := s.random(KeySize)
	if err != nil {
		return nil, err
	}
	iv, err := s.random(encryption.IVSize)
	if err != nil {
		return nil, err
	}

	ciphertext, err := encryption.CBCEncrypt(contentKey, iv, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	keys := make([]model.RecipientKey, 0, len(recipients))
	for _, r := range recipients {
		rk, err := s.wrap(contentKey, r)
		if err != nil {
			return nil, err
		}
		keys = append(keys, rk)
	}

	return &Sealed{
		Ciphertext:    ciphertext,
		IV:            iv,
		Digest:        hash.Keccak256(plaintext),
		RecipientKeys: keys,
	}, nil
}

func (s *Sealer) wrap(contentKey []byte, r Recipient) (model.RecipientKey, error) {
	salt, err := s.random(SaltSize)
	if err != nil {
		return model.RecipientKey{}, err
	}
	iv, err := s.random(encryption.IVSize)
	if err != nil {
		return model.RecipientKey{}, err
	}

	wrappingKey := kdf.PBKDF2(r.Secret, salt, s.iterations, KeySize)
	wrapped, err := encryption.CBCEncrypt(wrappingKey, iv, contentKey)
	if err != nil {
		return model.RecipientKey{}, fmt.Errorf("wrap key for %s: %w", r.PublicID, err)
	}

	return model.RecipientKey{
		PublicID:   r.PublicID,
		WrappedKey: wrapped,
		IV:         iv,
		Salt:       salt,
	}, nil
}

// Open recovers the plaintext for the holder of secret. The digest is always
// checked: a wrong key or a modified ciphertext can decrypt to garbage with
// valid padding.
func (s *Sealer) Open(sealed *Sealed, secret []byte) ([]byte, error) {
	publicID, err := dh.PublicID(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}

	var entry *model.RecipientKey
	for i := range sealed.RecipientKeys {
		if sealed.RecipientKeys[i].PublicID == publicID {
			entry = &sealed.RecipientKeys[i]
			break
		}
	}
	if entry == nil {
		return nil, ErrNotAuthorized
	}

	wrappingKey := kdf.PBKDF2(secret, entry.Salt, s.iterations, KeySize)
	contentKey, err := encryption.CBCDecrypt(wrappingKey, entry.IV, entry.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap key: %v", ErrDecryptionFailed, err)
	}
	if len(contentKey) != KeySize {
		return nil, fmt.Errorf("%w: unwrapped key has %d bytes", ErrDecryptionFailed, len(contentKey))
	}

	plaintext, err := encryption.CBCDecrypt(contentKey, sealed.IV, sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecryptionFailed, err)
	}

	if digest := hash.Keccak256(plaintext); !bytes.Equal(digest[:], sealed.Digest[:]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func (s *Sealer) random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
	}
	return b, nil
}

// FromMessage views a stored message as a Sealed envelope.
func FromMessage(m *model.Message) *Sealed {
	return &Sealed{
		Ciphertext:    m.Ciphertext,
		IV:            m.IV,
		Digest:        m.Digest,
		RecipientKeys: m.RecipientKeys,
	}
}

// Open is Sealer.Open with the default parameters.
func Open(sealed *Sealed, secret []byte) ([]byte, error) {
	return New().Open(sealed, secret)
}
