package client

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ursa-labs/ufdp/frame"
	"github.com/ursa-labs/ufdp/lane"
	"github.com/ursa-labs/ufdp/node"
	"github.com/ursa-labs/ufdp/podcrypto"
)

type memStore struct {
	entries map[string]lane.Entry
}

func newMemStore() *memStore { return &memStore{entries: map[string]lane.Entry{}} }

func memKey(client frame.BlsPublicKey, l uint8) string {
	return fmt.Sprintf("%x:%d", client, l)
}

func (m *memStore) Load(client frame.BlsPublicKey, l uint8) (lane.Entry, bool, error) {
	e, ok := m.entries[memKey(client, l)]
	return e, ok, nil
}

func (m *memStore) Save(client frame.BlsPublicKey, l uint8, entry lane.Entry) error {
	m.entries[memKey(client, l)] = entry
	return nil
}

type fixedEpoch struct{}

func (fixedEpoch) Current() frame.EpochNonce { return 7 }

// steppingEpoch returns 1 for the first `after` calls to Current and 2 for
// every call after that, modeling a node that rotates its epoch once
// mid-stream.
type steppingEpoch struct {
	calls int
	after int
}

func (e *steppingEpoch) Current() frame.EpochNonce {
	e.calls++
	if e.calls <= e.after {
		return 1
	}
	return 2
}

type memContent struct {
	chunks map[frame.ContentID][][]byte
}

func (c *memContent) TotalChunks(hash frame.ContentID) (uint64, bool, error) {
	chunks, ok := c.chunks[hash]
	if !ok {
		return 0, false, nil
	}
	return uint64(len(chunks)), true, nil
}

func (c *memContent) Chunk(hash frame.ContentID, index uint64) ([]byte, []byte, error) {
	chunks := c.chunks[hash]
	if index >= uint64(len(chunks)) {
		return nil, nil, fmt.Errorf("chunk %d out of range", index)
	}
	return chunks[index], nil, nil
}

// startNode runs a node.Serve loop against a loopback listener for the
// duration of the test and returns its address.
func startNode(t *testing.T, cfg node.Config) (addr string, identity node.Identity) {
	t.Helper()

	secret, err := podcrypto.NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey: %v", err)
	}
	identity = node.Identity{Secret: secret}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go node.Serve(ctx, ln, identity, cfg)

	return ln.Addr().String(), identity
}

func newClientIdentity(t *testing.T) Identity {
	t.Helper()
	key, err := lane.NewBLSKey()
	if err != nil {
		t.Fatalf("NewBLSKey: %v", err)
	}
	return Identity{PublicKey: key.PublicKey(), Signer: key}
}

func drain(t *testing.T, blocks <-chan Block, errc <-chan error) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	for block := range blocks {
		out.Write(block.Plaintext)
	}
	select {
	case err := <-errc:
		return out.Bytes(), err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fetch to finish")
		return nil, nil
	}
}

func TestFetchContentWholeFile(t *testing.T) {
	hash := frame.ContentID{0xAA}
	want := []byte("hello, ursa fair delivery protocol")
	chunkSize := 8

	var chunks [][]byte
	for i := 0; i < len(want); i += chunkSize {
		end := i + chunkSize
		if end > len(want) {
			end = len(want)
		}
		chunks = append(chunks, want[i:end])
	}

	cfg := node.Config{
		MaxBlockSize: chunkSize,
		Content:      &memContent{chunks: map[frame.ContentID][][]byte{hash: chunks}},
		Ledger:       lane.New(newMemStore()),
		Epoch:        fixedEpoch{},
		Logger:       zerolog.Nop(),
	}
	addr, _ := startNode(t, cfg)

	sess, err := Dial(context.Background(), "tcp", addr, newClientIdentity(t), Config{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	blocks, errc := sess.FetchContent(hash)
	got, err := drain(t, blocks, errc)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFetchRangeSubsetOfChunks(t *testing.T) {
	hash := frame.ContentID{0xBB}
	chunkSize := 4
	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}

	cfg := node.Config{
		MaxBlockSize: chunkSize,
		Content:      &memContent{chunks: map[frame.ContentID][][]byte{hash: chunks}},
		Ledger:       lane.New(newMemStore()),
		Epoch:        fixedEpoch{},
		Logger:       zerolog.Nop(),
	}
	addr, _ := startNode(t, cfg)

	sess, err := Dial(context.Background(), "tcp", addr, newClientIdentity(t), Config{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	blocks, errc := sess.FetchRange(hash, 1, 2)
	got, err := drain(t, blocks, errc)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if want := "bbbbcccc"; string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFetchUnknownContentTerminates(t *testing.T) {
	cfg := node.Config{
		Content: &memContent{chunks: map[frame.ContentID][][]byte{}},
		Ledger:  lane.New(newMemStore()),
		Epoch:   fixedEpoch{},
		Logger:  zerolog.Nop(),
	}
	addr, _ := startNode(t, cfg)

	sess, err := Dial(context.Background(), "tcp", addr, newClientIdentity(t), Config{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	blocks, errc := sess.FetchContent(frame.ContentID{0xFF})
	if _, err := drain(t, blocks, errc); err == nil {
		t.Fatal("want error fetching unknown content, got nil")
	}
}

func TestFetchHandlesMidStreamEpochRotation(t *testing.T) {
	hash := frame.ContentID{0xDD}
	chunkSize := 4
	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc")}

	cfg := node.Config{
		MaxBlockSize: chunkSize,
		Content:      &memContent{chunks: map[frame.ContentID][][]byte{hash: chunks}},
		Ledger:       lane.New(newMemStore()),
		Epoch:        &steppingEpoch{after: 1},
		Logger:       zerolog.Nop(),
	}
	addr, _ := startNode(t, cfg)

	sess, err := Dial(context.Background(), "tcp", addr, newClientIdentity(t), Config{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	blocks, errc := sess.FetchContent(hash)
	got, err := drain(t, blocks, errc)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if want := "aaaabbbbcccc"; string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReconnectResumesFromLedgerState(t *testing.T) {
	hash := frame.ContentID{0xCC}
	chunkSize := 4
	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb")}

	store := newMemStore()
	cfg := node.Config{
		MaxBlockSize: chunkSize,
		Content:      &memContent{chunks: map[frame.ContentID][][]byte{hash: chunks}},
		Ledger:       lane.New(store),
		Epoch:        fixedEpoch{},
		Logger:       zerolog.Nop(),
	}
	addr, _ := startNode(t, cfg)

	identity := newClientIdentity(t)

	sess1, err := Dial(context.Background(), "tcp", addr, identity, Config{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	blocks, errc := sess1.FetchRange(hash, 0, 1)
	if _, err := drain(t, blocks, errc); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	sess1.Close()

	sess2, err := Dial(context.Background(), "tcp", addr, identity, Config{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("Dial (reconnect): %v", err)
	}
	defer sess2.Close()
	if sess2.delivered == 0 {
		t.Fatal("want reconnect to resume non-zero delivered total from the ledger")
	}
}
