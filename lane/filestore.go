package lane

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ursa-labs/ufdp/frame"
)

// jsonEntry is Entry's on-disk form: fixed-size byte arrays don't round
// trip through encoding/json directly the way they do through binary
// encodings, so they're carried as base64 strings, the same way the
// teacher's statefile.go persists its key material.
type jsonEntry struct {
	BytesDelivered     uint64           `json:"bytes_delivered"`
	Epoch              frame.EpochNonce `json:"epoch"`
	Commitment         string           `json:"commitment"`
	AggregateSignature string           `json:"aggregate_signature"`
}

// FileStore is a JSON-file-backed Store. The whole ledger fits comfortably
// in memory (at most MaxLanes entries per client), so every Save rewrites
// the file in full rather than appending; a partial write on crash leaves
// the previous, still-valid snapshot in place because the new file is
// written to a temporary path and renamed into place atomically.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries map[string]jsonEntry
}

// OpenFileStore loads path if it exists, or starts an empty ledger that
// will be created on the first Save, mirroring jsonServerStateFromFile's
// load-or-initialize behavior.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, entries: map[string]jsonEntry{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &fs.entries); err != nil {
		return nil, fmt.Errorf("lane: parsing %s: %w", path, err)
	}
	return fs, nil
}

func entryKey(client frame.BlsPublicKey, lane uint8) string {
	return fmt.Sprintf("%s:%d", base64.StdEncoding.EncodeToString(client[:]), lane)
}

// Load implements Store.
func (fs *FileStore) Load(client frame.BlsPublicKey, lane uint8) (Entry, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	je, ok := fs.entries[entryKey(client, lane)]
	if !ok {
		return Entry{}, false, nil
	}

	sigBytes, err := base64.StdEncoding.DecodeString(je.AggregateSignature)
	if err != nil {
		return Entry{}, false, fmt.Errorf("lane: decoding stored signature: %w", err)
	}
	commitmentBytes, err := base64.StdEncoding.DecodeString(je.Commitment)
	if err != nil {
		return Entry{}, false, fmt.Errorf("lane: decoding stored commitment: %w", err)
	}
	var e Entry
	e.BytesDelivered = je.BytesDelivered
	e.Epoch = je.Epoch
	copy(e.Commitment[:], commitmentBytes)
	copy(e.AggregateSignature[:], sigBytes)
	return e, true, nil
}

// Save implements Store. It rewrites the whole ledger file under the
// store's lock, using a temp-file-then-rename so a crash mid-write can
// never corrupt the previous, already-verified snapshot.
func (fs *FileStore) Save(client frame.BlsPublicKey, lane uint8, entry Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.entries[entryKey(client, lane)] = jsonEntry{
		BytesDelivered:     entry.BytesDelivered,
		Epoch:              entry.Epoch,
		Commitment:         base64.StdEncoding.EncodeToString(entry.Commitment[:]),
		AggregateSignature: base64.StdEncoding.EncodeToString(entry.AggregateSignature[:]),
	}

	encoded, err := json.MarshalIndent(fs.entries, "", "  ")
	if err != nil {
		return err
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, fs.path)
}
