package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

const IVSize = aes.BlockSize

var (
	ErrInvalidIV      = errors.New("iv must be one block long")
	ErrInvalidLength  = errors.New("ciphertext is not a positive multiple of the block size")
	ErrInvalidPadding = errors.New("invalid pkcs7 padding")
)

// AES-CBC helper with PKCS#7 padding. key must be 16/24/32 bytes.
// The caller owns the iv; it is not prepended to the output.
func CBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, ErrInvalidIV
	}

	padded := pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func CBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	bs := block.BlockSize()
	if len(iv) != bs {
		return nil, ErrInvalidIV
	}
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, ErrInvalidLength
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out, bs)
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
