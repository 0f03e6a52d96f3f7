package lane

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ursa-labs/ufdp/frame"
)

type memStore struct {
	entries map[string]Entry
}

func newMemStore() *memStore { return &memStore{entries: map[string]Entry{}} }

func (m *memStore) Load(client frame.BlsPublicKey, lane uint8) (Entry, bool, error) {
	e, ok := m.entries[entryKey(client, lane)]
	return e, ok, nil
}

func (m *memStore) Save(client frame.BlsPublicKey, lane uint8, entry Entry) error {
	m.entries[entryKey(client, lane)] = entry
	return nil
}

func TestAdvanceRejectsInvalidLane(t *testing.T) {
	l := New(newMemStore())
	var client frame.BlsPublicKey
	var sig frame.BlsSignature
	if err := l.Advance(client, frame.MaxLanes, 100, 0, frame.SchnorrTag{}, sig); err == nil {
		t.Fatal("Advance: want error for lane id >= MaxLanes")
	}
}

func TestAdvanceRejectsInvalidSignature(t *testing.T) {
	store := newMemStore()
	l := New(store)
	key, err := NewBLSKey()
	if err != nil {
		t.Fatalf("NewBLSKey: %v", err)
	}
	client := key.PublicKey()
	var sig frame.BlsSignature // all-zero, not a valid point encoding

	err = l.Advance(client, 0, 1024, 0, frame.SchnorrTag{}, sig)
	if err == nil {
		t.Fatal("Advance: want error for an invalid signature, got nil")
	}

	if _, ok, _ := store.Load(client, 0); ok {
		t.Fatal("Advance must not persist an entry when verification fails")
	}
}

func TestAdvanceRejectsNonMonotonicTotal(t *testing.T) {
	store := newMemStore()
	l := New(store)
	key, err := NewBLSKey()
	if err != nil {
		t.Fatalf("NewBLSKey: %v", err)
	}
	client := key.PublicKey()

	commitment := frame.SchnorrTag{0x1}
	message := DeliveryAckMessage(0, 1024, 5, commitment)
	sig, err := key.Sign(message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := l.Advance(client, 0, 1024, 5, commitment, sig); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	lowerMessage := DeliveryAckMessage(0, 512, 5, commitment)
	lowerSig, err := key.Sign(lowerMessage)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := l.Advance(client, 0, 512, 5, commitment, lowerSig); err == nil {
		t.Fatal("Advance: want error for a lower newTotal than the stored entry")
	}
}

func TestVerifyContinuity(t *testing.T) {
	key, err := NewBLSKey()
	if err != nil {
		t.Fatalf("NewBLSKey: %v", err)
	}
	entry := Entry{BytesDelivered: 2048, Epoch: 3, Commitment: frame.SchnorrTag{0x2}}
	sig, err := key.Sign(DeliveryAckMessage(1, entry.BytesDelivered, entry.Epoch, entry.Commitment))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	entry.AggregateSignature = sig

	ok, err := VerifyContinuity(key.PublicKey(), 1, entry)
	if err != nil {
		t.Fatalf("VerifyContinuity: %v", err)
	}
	if !ok {
		t.Fatal("VerifyContinuity: want true for a genuine signature")
	}

	entry.BytesDelivered = 4096 // tampered
	ok, err = VerifyContinuity(key.PublicKey(), 1, entry)
	if err != nil {
		t.Fatalf("VerifyContinuity: %v", err)
	}
	if ok {
		t.Fatal("VerifyContinuity: want false once BytesDelivered is tampered with")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	fs1, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}

	var client frame.BlsPublicKey
	client[0] = 0x42
	want := Entry{BytesDelivered: 4096, Epoch: 9}
	want.Commitment[0] = 0x3
	want.AggregateSignature[0] = 0x7

	if err := fs1.Save(client, 3, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected ledger file to exist: %v", err)
	}

	fs2, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore (reload): %v", err)
	}
	got, ok, err := fs2.Load(client, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load: want entry to be present after reload")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFileStoreMissingLaneNotFound(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	var client frame.BlsPublicKey
	if _, ok, err := fs.Load(client, 0); ok || err != nil {
		t.Fatalf("Load: got (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}
