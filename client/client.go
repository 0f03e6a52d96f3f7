// Package client implements the client side of a UFDP session: dialing a
// node, completing the handshake, requesting content, and verifying and
// paying for each block before decrypting it.
package client

import (
	"context"
	"fmt"
	"net"

	"github.com/ursa-labs/ufdp/frame"
	"github.com/ursa-labs/ufdp/lane"
	"github.com/ursa-labs/ufdp/podcrypto"
	"github.com/ursa-labs/ufdp/session"
	"github.com/zeebo/blake3"
)

// Identity is a client's BLS keypair. Signer is left as an interface
// rather than a concrete kilic/bls12-381 secret key so a caller can back
// it with a hardware signer or remote custody service without this
// package needing to know about it (see DESIGN.md).
type Identity struct {
	PublicKey frame.BlsPublicKey
	Signer    Signer
}

// Signer produces a BLS signature over message under the identity whose
// public key accompanies it in the handshake.
type Signer interface {
	Sign(message []byte) (frame.BlsSignature, error)
}

// Config configures a Session's behavior.
type Config struct {
	// Lane pins the session to a specific lane (0..frame.MaxLanes-1). Nil
	// requests server-assigned lane selection.
	Lane *uint8
	// BufferChunkSize is the chunk size used for incoming raw buffer
	// frames; it only affects how many ReadFrame calls draining a block
	// takes, not the bytes ultimately assembled.
	BufferChunkSize int
	// ChunkSize must match the node's Config.MaxBlockSize: the client
	// reconstructs each chunk's RequestInfo locally to verify the Schnorr
	// commitment, and that reconstruction's FromBytes/ToBytes only land on
	// the same values the node used if both sides agree on chunk size.
	ChunkSize int
}

const (
	defaultBufferChunkSize = 16 * 1024
	defaultChunkSize       = 256 * 1024
)

func (c Config) withDefaults() Config {
	if c.BufferChunkSize <= 0 {
		c.BufferChunkSize = defaultBufferChunkSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	return c
}

// Session is one handshaken connection to a node.
type Session struct {
	conn       *session.Conn
	cfg        Config
	identity   Identity
	nodePubkey frame.Secp256k1PublicKey
	clientID   [32]byte
	lane       uint8
	delivered  uint64
	// epoch is the epoch nonce the node most recently told this session to
	// sign delivery acknowledgments under, set at handshake and updated by
	// any UpdateEpochSignal received afterward.
	epoch frame.EpochNonce
}

// Dial connects to a node at addr, completes the handshake, and returns a
// ready-to-use Session.
func Dial(ctx context.Context, network, addr string, identity Identity, cfg Config) (*Session, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return newSession(raw, identity, cfg)
}

func newSession(raw net.Conn, identity Identity, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	conn := session.New(raw)

	req := frame.HandshakeRequest{
		Version: 1,
		Lane:    cfg.Lane,
		Pubkey:  identity.PublicKey,
	}
	if err := conn.WriteFrame(req); err != nil {
		raw.Close()
		return nil, err
	}

	f, err := conn.ReadFrame()
	if err != nil {
		raw.Close()
		return nil, err
	}
	resp, ok := f.(frame.HandshakeResponse)
	if !ok {
		raw.Close()
		return nil, fmt.Errorf("client: expected handshake response, got %v", f)
	}

	s := &Session{
		conn:       conn,
		cfg:        cfg,
		identity:   identity,
		nodePubkey: resp.Pubkey,
		clientID:   blake3.Sum256(identity.PublicKey[:]),
		lane:       resp.Lane,
		epoch:      resp.EpochNonce,
	}
	if resp.Last != nil {
		entry := lane.Entry{
			BytesDelivered:     resp.Last.BytesDelivered,
			Epoch:              resp.Last.Epoch,
			Commitment:         resp.Last.Commitment,
			AggregateSignature: resp.Last.AggregateSignature,
		}
		ok, err := lane.VerifyContinuity(identity.PublicKey, resp.Lane, entry)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("client: verifying lane continuity: %w", err)
		}
		if !ok {
			raw.Close()
			return nil, fmt.Errorf("client: node reported lane history with an invalid aggregate signature")
		}
		s.delivered = resp.Last.BytesDelivered
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// Block is one decrypted, verified chunk of content.
type Block struct {
	Plaintext []byte
	Proof     []byte
}

// FetchContent requests the entirety of hash and returns a channel of
// verified, decrypted blocks in order. The channel is closed once the node
// sends EndOfRequestSignal or an error occurs; the last receive on errc (if
// any) reports why the channel closed early.
func (s *Session) FetchContent(hash frame.ContentID) (<-chan Block, <-chan error) {
	return s.fetch(frame.ContentRequest{Hash: hash}, hash, 0)
}

// FetchRange requests chunkStart..chunkStart+chunks of hash.
func (s *Session) FetchRange(hash frame.ContentID, chunkStart uint64, chunks uint16) (<-chan Block, <-chan error) {
	return s.fetch(frame.ContentRangeRequest{Hash: hash, ChunkStart: chunkStart, Chunks: chunks}, hash, chunkStart)
}

func (s *Session) fetch(req frame.Frame, hash frame.ContentID, startIndex uint64) (<-chan Block, <-chan error) {
	blocks := make(chan Block)
	errc := make(chan error, 1)

	go func() {
		defer close(blocks)
		defer close(errc)

		if err := s.conn.WriteFrame(req); err != nil {
			errc <- err
			return
		}

		index := startIndex
		for {
			f, err := s.conn.ReadFrame()
			if err != nil {
				errc <- err
				return
			}
			switch v := f.(type) {
			case frame.EndOfRequestSignal:
				return
			case frame.TerminationSignal:
				errc <- fmt.Errorf("client: node terminated connection: %s", v.Reason)
				return
			case frame.UpdateEpochSignal:
				s.epoch = v.EpochNonce
			case frame.ContentResponse:
				block, err := s.receiveBlock(hash, index, v)
				if err != nil {
					errc <- err
					return
				}
				blocks <- block
				index++
			default:
				errc <- fmt.Errorf("client: unexpected frame %v", f)
				return
			}
		}
	}()

	return blocks, errc
}

// receiveBlock reads a ContentResponse header's proof+ciphertext tail,
// verifies the Schnorr commitment before paying for anything, pays with a
// signed delivery acknowledgment, and decrypts once the node reveals the
// key. Verification happens strictly before the DecryptionKeyRequest is
// sent: a client must never pay for a block it can prove was tampered
// with.
func (s *Session) receiveBlock(hash frame.ContentID, index uint64, header frame.ContentResponse) (Block, error) {
	total := int(header.ProofLen + header.BlockLen)
	s.conn.EnterBufferMode(total, s.cfg.BufferChunkSize)

	raw := make([]byte, 0, total)
	for s.conn.InBufferMode() {
		f, err := s.conn.ReadFrame()
		if err != nil {
			return Block{}, err
		}
		buf, ok := f.(frame.Buffer)
		if !ok {
			return Block{}, fmt.Errorf("client: expected buffer chunk, got %v", f)
		}
		raw = append(raw, buf.Data...)
	}

	proof := raw[:header.ProofLen]
	ciphertext := raw[header.ProofLen:]

	reqInfo := podcrypto.RequestInfo{
		ContentID: hash,
		Client:    s.clientID,
		Time:      index,
		FromBytes: index * uint64(s.cfg.ChunkSize),
		ToBytes:   index*uint64(s.cfg.ChunkSize) + uint64(len(ciphertext)),
	}
	ok, err := podcrypto.VerifySchnorrTag(s.nodePubkey, ciphertext, reqInfo.Hash(), header.Signature)
	if err != nil {
		return Block{}, fmt.Errorf("client: verifying commitment: %w", err)
	}
	if !ok {
		return Block{}, fmt.Errorf("client: invalid delivery commitment")
	}

	newTotal := s.delivered + uint64(len(ciphertext))
	ack, err := s.identity.Signer.Sign(lane.DeliveryAckMessage(s.lane, newTotal, s.epoch, header.Signature))
	if err != nil {
		return Block{}, err
	}
	if err := s.conn.WriteFrame(frame.DecryptionKeyRequest{DeliveryAcknowledgment: ack}); err != nil {
		return Block{}, err
	}

	f, err := s.conn.ReadFrame()
	if err != nil {
		return Block{}, err
	}
	keyResp, ok := f.(frame.DecryptionKeyResponse)
	if !ok {
		return Block{}, fmt.Errorf("client: expected decryption key response, got %v", f)
	}
	s.delivered = newTotal

	plaintext := podcrypto.DecryptBlock(keyResp.DecryptionKey, ciphertext)
	return Block{Plaintext: plaintext, Proof: proof}, nil
}
