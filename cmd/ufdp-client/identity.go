package main

import (
	"fmt"
	"os"

	"github.com/ursa-labs/ufdp/lane"
)

// loadOrCreateIdentity reads a 32-byte BLS seed from path, or generates
// and persists a fresh one if the file doesn't exist yet.
func loadOrCreateIdentity(path string) (lane.BLSKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return lane.BLSKey{}, fmt.Errorf("identity file %s: want 32 bytes, got %d", path, len(raw))
		}
		var seed [32]byte
		copy(seed[:], raw)
		return lane.BLSKeyFromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return lane.BLSKey{}, err
	}

	key, seed, err := lane.NewBLSKeyWithSeed()
	if err != nil {
		return lane.BLSKey{}, err
	}
	if err := os.WriteFile(path, seed[:], 0600); err != nil {
		return lane.BLSKey{}, fmt.Errorf("persisting new identity to %s: %w", path, err)
	}
	return key, nil
}
