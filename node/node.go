// Package node implements the server side of a UFDP session: handshake,
// lane selection, per-block encryption and pay-per-key release, gated by
// the lane ledger's signature verification.
package node

import (
	"github.com/rs/zerolog"
	"github.com/ursa-labs/ufdp/frame"
	"github.com/ursa-labs/ufdp/lane"
	"github.com/ursa-labs/ufdp/podcrypto"
)

// ContentSource abstracts the blockstore and chunking layer, which is out
// of scope for this module: Serve only needs to be able to enumerate a
// content id's chunks and read one at a time along with its Merkle
// inclusion proof.
type ContentSource interface {
	// TotalChunks reports how many fixed-size chunks hash has, or
	// found=false if the node doesn't have it.
	TotalChunks(hash frame.ContentID) (total uint64, found bool, err error)
	// Chunk returns the plaintext and inclusion proof for chunk index of
	// hash.
	Chunk(hash frame.ContentID, index uint64) (plaintext []byte, proof []byte, err error)
}

// EpochSource supplies the epoch nonce clients must sign delivery
// acknowledgments under. Epoch rotation policy (how often, driven by what
// consensus signal) is out of this module's scope; a session checks
// Current before every chunk and emits UpdateEpochSignal to the client
// whenever it has moved on from what the session last advertised.
type EpochSource interface {
	Current() frame.EpochNonce
}

// Config configures a node's Serve loop.
type Config struct {
	// MaxBlockSize bounds how large a single chunk's plaintext may be
	// before Serve refuses to encrypt and serve it. spec.md leaves this as
	// a node-local policy knob; codec.rs's value (256KiB) is the default a
	// zero Config falls back to.
	MaxBlockSize int
	// BufferChunkSize is the size of the raw Buffer frames a ContentResponse
	// header's proof+ciphertext payload is split into on the wire.
	BufferChunkSize int

	Content ContentSource
	Ledger  *lane.Ledger
	Epoch   EpochSource
	Logger  zerolog.Logger
}

const (
	defaultMaxBlockSize    = 256 * 1024
	defaultBufferChunkSize = 16 * 1024
)

func (c Config) withDefaults() Config {
	if c.MaxBlockSize <= 0 {
		c.MaxBlockSize = defaultMaxBlockSize
	}
	if c.BufferChunkSize <= 0 {
		c.BufferChunkSize = defaultBufferChunkSize
	}
	return c
}

// Identity is a node's long-lived secp256k1 identity. Every block this
// node ever encrypts is committed to under the same secret, so its public
// half (advertised in HandshakeResponse) lets a client verify Schnorr
// commitments across reconnects and across lanes.
type Identity struct {
	Secret podcrypto.SecretKey
}

// PublicKey returns the identity's compressed public point.
func (id Identity) PublicKey() frame.Secp256k1PublicKey {
	return id.Secret.PublicKey()
}
