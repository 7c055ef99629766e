package kdf

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Iterations is the PBKDF2 work factor used to turn a party secret into a
// key wrapping key.
const Iterations = 100_000

// PBKDF2 derives keyLen bytes from secret and salt using HMAC-SHA256.
func PBKDF2(secret, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(secret, salt, iterations, keyLen, sha256.New)
}
