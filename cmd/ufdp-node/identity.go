package main

import (
	"fmt"
	"os"

	"github.com/ursa-labs/ufdp/podcrypto"
)

// loadOrCreateIdentity reads a 32-byte secp256k1 scalar from path, or
// generates and persists a fresh one if the file doesn't exist yet —
// the same load-or-initialize shape the lane ledger's file store uses.
func loadOrCreateIdentity(path string) (podcrypto.SecretKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return podcrypto.SecretKey{}, fmt.Errorf("identity file %s: want 32 bytes, got %d", path, len(raw))
		}
		var b [32]byte
		copy(b[:], raw)
		return podcrypto.SecretKeyFromBytes(b)
	}
	if !os.IsNotExist(err) {
		return podcrypto.SecretKey{}, err
	}

	secret, err := podcrypto.NewSecretKey()
	if err != nil {
		return podcrypto.SecretKey{}, err
	}
	b := secret.Bytes()
	if err := os.WriteFile(path, b[:], 0600); err != nil {
		return podcrypto.SecretKey{}, fmt.Errorf("persisting new identity to %s: %w", path, err)
	}
	return secret, nil
}
