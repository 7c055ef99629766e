package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"ticket_ledger/internal/cryptographic/dh"
)

// LoadSecret reads a hex encoded party secret written by SaveSecret.
func LoadSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("secret file %s: %w", path, err)
	}
	if len(secret) != dh.SecretSize {
		return nil, fmt.Errorf("secret file %s: %w", path, dh.ErrInvalidSecret)
	}
	return secret, nil
}

func SaveSecret(path string, secret []byte) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(secret)+"\n"), 0o600)
}

// EnsureParty returns the registered party called name together with its
// secret. A missing party is registered with the secret in secretPath,
// which is generated first when the file does not exist yet.
func EnsureParty(ctx context.Context, c *Client, name, secretPath string) (*PartyInfo, []byte, error) {
	secret, err := LoadSecret(secretPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		secret, _, err = dh.NewParty()
		if err != nil {
			return nil, nil, err
		}
		if err := SaveSecret(secretPath, secret); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	publicID, err := dh.PublicID(secret)
	if err != nil {
		return nil, nil, err
	}

	party, err := c.GetParty(ctx, name)
	var apiErr *APIError
	switch {
	case err == nil:
		if party.PublicID != publicID {
			return nil, nil, fmt.Errorf("party %s is registered with a different secret than %s", name, secretPath)
		}
		return party, secret, nil
	case errors.As(err, &apiErr) && apiErr.Status == 404:
	default:
		return nil, nil, err
	}

	party, err = c.CreateParty(ctx, name, hex.EncodeToString(secret))
	if err != nil {
		return nil, nil, err
	}
	return party, secret, nil
}
