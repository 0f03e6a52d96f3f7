// Package frame implements the UFDP wire codec and its cryptographic
// fixed-width primitives.
//
// Every frame on the wire is prefixed with a one-byte Tag. The high bit of
// the tag (IsResponseFlag) is set on every frame sent server-to-client; a
// side that receives a frame with the wrong direction bit can reject it
// outright without inspecting the rest of the tag. The ten frame variants
// and their payload layouts are described next to each type below; Decode
// and Encode are bit-exact with that layout (see codec.go).
package frame

import "fmt"

// Fixed-width wire primitives (spec.md §3).
type (
	ContentID            = [32]byte
	BlsPublicKey         = [48]byte
	BlsSignature         = [96]byte
	SchnorrTag           = [64]byte
	Secp256k1PublicKey   = [33]byte
	Secp256k1AffinePoint = [33]byte
	EpochNonce           = uint64
)

// Network is the 4-byte magic every HandshakeRequest must carry.
var Network = [4]byte{'U', 'R', 'S', 'A'}

const (
	// MaxFrameSize is the largest a single non-buffer frame may be.
	MaxFrameSize = 1024
	// MaxLanes is the maximum number of concurrent lanes a client may hold.
	MaxLanes = 24
	// AutoLane is the HandshakeRequest lane value meaning "server picks".
	AutoLane = 0xFF
	// MaxProofSize bounds a Merkle inclusion proof: a 2^64 byte file chunked
	// into 256KiB blocks has at most 2^46 leaves, for a tree height of 47;
	// 47 hashes of 32 bytes plus one presence bit per hash (ceil(47/8)).
	MaxProofSize = 47*32 + 6

	// IsResponseFlag is set on the tag of every server->client frame.
	IsResponseFlag = 0b1000_0000
)

// Compression bitmap bits (spec.md §6). Only these bits may be set; the
// node does not implement any of the corresponding codecs (see
// ContentResponse's Compression field doc and the compression bitmap entry
// under DESIGN.md's resolved Open Questions).
const (
	CompressionSnappy = 0x01
	CompressionGzip   = 0x01 << 2
	CompressionLZ4    = 0x01 << 3
)

// Tag identifies a frame variant on the wire.
type Tag uint8

const (
	TagHandshakeRequest      Tag = 0x01 << 0
	TagHandshakeResponse     Tag = IsResponseFlag | TagHandshakeRequest
	TagContentRequest        Tag = 0x01 << 1
	TagContentRangeRequest   Tag = 0x01 << 2
	TagContentResponse       Tag = IsResponseFlag | TagContentRequest
	TagDecryptionKeyRequest  Tag = 0x01 << 3
	TagDecryptionKeyResponse Tag = IsResponseFlag | TagDecryptionKeyRequest
	TagUpdateEpochSignal     Tag = IsResponseFlag | (0x01 << 4)
	TagEndOfRequestSignal    Tag = IsResponseFlag | (0x01 << 5)
	TagTerminationSignal     Tag = IsResponseFlag | (0x01 << 6)
)

// sizeHint is the fixed (non-tail) wire size of a frame carrying this tag,
// tag byte included. HandshakeResponse and ContentResponse both have a
// variable tail; sizeHint gives the size of the part the codec must see
// before it can tell whether more data follows.
func (t Tag) sizeHint() (int, error) {
	switch t {
	case TagHandshakeRequest:
		return 56, nil
	case TagHandshakeResponse:
		return 44, nil
	case TagContentRequest:
		return 33, nil
	case TagContentRangeRequest:
		return 43, nil
	case TagContentResponse:
		return 82, nil
	case TagDecryptionKeyRequest:
		return 97, nil
	case TagDecryptionKeyResponse:
		return 34, nil
	case TagUpdateEpochSignal:
		return 9, nil
	case TagEndOfRequestSignal:
		return 1, nil
	case TagTerminationSignal:
		return 2, nil
	default:
		return 0, InvalidTagError(t)
	}
}

func (t Tag) String() string {
	switch t {
	case TagHandshakeRequest:
		return "HandshakeRequest"
	case TagHandshakeResponse:
		return "HandshakeResponse"
	case TagContentRequest:
		return "ContentRequest"
	case TagContentRangeRequest:
		return "ContentRangeRequest"
	case TagContentResponse:
		return "ContentResponse"
	case TagDecryptionKeyRequest:
		return "DecryptionKeyRequest"
	case TagDecryptionKeyResponse:
		return "DecryptionKeyResponse"
	case TagUpdateEpochSignal:
		return "UpdateEpochSignal"
	case TagEndOfRequestSignal:
		return "EndOfRequestSignal"
	case TagTerminationSignal:
		return "TerminationSignal"
	default:
		return fmt.Sprintf("Tag(0x%02x)", uint8(t))
	}
}

// IsResponse reports whether this tag is only legal server->client.
func (t Tag) IsResponse() bool {
	return uint8(t)&IsResponseFlag != 0
}

// Reason is a TerminationSignal's cause, per spec.md §6/§9 note 3 (the
// superset of codec.rs's and connection.rs's reason enums).
type Reason uint8

const (
	ReasonUnexpectedFrame     Reason = 0x00
	ReasonInsufficientBalance Reason = 0x01
	ReasonUnknown             Reason = 0xFF
)

func (r Reason) String() string {
	switch r {
	case ReasonUnexpectedFrame:
		return "UnexpectedFrame"
	case ReasonInsufficientBalance:
		return "InsufficientBalance"
	case ReasonUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Reason(0x%02x)", uint8(r))
	}
}

func reasonFromByte(b byte) (Reason, bool) {
	switch Reason(b) {
	case ReasonUnexpectedFrame, ReasonInsufficientBalance, ReasonUnknown:
		return Reason(b), true
	default:
		return 0, false
	}
}

// LastLaneData is the resumption tail of a HandshakeResponse, present when
// the lane the server selected already has delivery history. Epoch and
// Commitment are the epoch_nonce and ciphertext_commitment that were in
// effect for the delivery acknowledgment AggregateSignature actually signs
// (spec.md §4.3): a reconnecting client needs all four fields to reproduce
// that message and verify continuity before trusting BytesDelivered.
type LastLaneData struct {
	BytesDelivered     uint64
	Epoch              EpochNonce
	Commitment         SchnorrTag
	AggregateSignature BlsSignature
}

// Frame is implemented by every concrete frame type plus Buffer. Tag
// returns false for Buffer, which has no tag of its own.
type Frame interface {
	Tag() (Tag, bool)
}

// HandshakeRequest is the client's request to open a UFDP session.
//
//	[ TAG . "URSA"(4) . version(1) . compression_bitmap(1) . lane(1, 0xFF=auto) . bls_pubkey(48) ]
//
// size: 56 bytes
type HandshakeRequest struct {
	Version                    uint8
	SupportedCompressionBitmap uint8
	// Lane is nil when the client asked the server to pick (wire value 0xFF).
	Lane   *uint8
	Pubkey BlsPublicKey
}

func (HandshakeRequest) Tag() (Tag, bool) { return TagHandshakeRequest, true }

// HandshakeResponse is the server's reply, optionally carrying the lane's
// delivery history so the client can resume after a reconnect.
//
//	[ TAG . lane(1) . epoch_nonce(8) . node_pubkey(33) . disc(1) ]
//	  [ disc==0x80: bytes(8) . last_epoch(8) . commitment(64) . sig(96) ]
//
// size: 44 or 220 bytes
type HandshakeResponse struct {
	Pubkey     Secp256k1PublicKey
	EpochNonce EpochNonce
	Lane       uint8
	Last       *LastLaneData
}

func (HandshakeResponse) Tag() (Tag, bool) { return TagHandshakeResponse, true }

// ContentRequest asks for the whole of one content id's delivery stream.
//
//	[ TAG . content_id(32) ]
//
// size: 33 bytes
type ContentRequest struct {
	Hash ContentID
}

func (ContentRequest) Tag() (Tag, bool) { return TagContentRequest, true }

// ContentRangeRequest asks for a bounded run of chunks starting at
// ChunkStart. A ChunkStart past the end of the content yields an
// EndOfRequestSignal rather than a ContentResponse.
//
//	[ TAG . content_id(32) . chunk_start(8) . chunks(2) ]
//
// size: 43 bytes
type ContentRangeRequest struct {
	Hash       ContentID
	ChunkStart uint64
	Chunks     uint16
}

func (ContentRangeRequest) Tag() (Tag, bool) { return TagContentRangeRequest, true }

// ContentResponse is the header preceding ProofLen+BlockLen raw bytes
// (first the Merkle proof, then the ciphertext), delivered as Buffer
// frames once the codec is switched into buffer mode.
//
//	[ TAG . compression(1) . proof_len(8) . block_len(8) . schnorr_tag(64) ]
//
// size: 82 bytes header, plus ProofLen+BlockLen raw bytes out of band.
//
// Compression is carried on the wire but not implemented by this node: a
// non-zero value is rejected by the codec (see the compression bitmap entry
// under DESIGN.md's resolved Open Questions).
type ContentResponse struct {
	Compression uint8
	ProofLen    uint64
	BlockLen    uint64
	Signature   SchnorrTag
}

func (ContentResponse) Tag() (Tag, bool) { return TagContentResponse, true }

// Buffer is not a tagged frame: it is a chunk of the raw bytes following a
// ContentResponse header, yielded once the codec has been told to expect
// ProofLen+BlockLen bytes via Decoder.EnterBufferMode.
type Buffer struct {
	Data []byte
}

func (Buffer) Tag() (Tag, bool) { return 0, false }

// DecryptionKeyRequest carries the client's BLS delivery acknowledgment:
// its signature over (lane_id, new_total, epoch_nonce, ciphertext_commitment)
// — see lane.DeliveryAckMessage — which is the "payment" that unlocks the
// block's decryption key.
//
//	[ TAG . bls_signature(96) ]
//
// size: 97 bytes
type DecryptionKeyRequest struct {
	DeliveryAcknowledgment BlsSignature
}

func (DecryptionKeyRequest) Tag() (Tag, bool) { return TagDecryptionKeyRequest, true }

// DecryptionKeyResponse reveals the seed point for the block's keystream.
//
//	[ TAG . decryption_key(33) ]
//
// size: 34 bytes
type DecryptionKeyResponse struct {
	DecryptionKey Secp256k1AffinePoint
}

func (DecryptionKeyResponse) Tag() (Tag, bool) { return TagDecryptionKeyResponse, true }

// UpdateEpochSignal notifies the client that subsequent delivery
// acknowledgments must be signed under a new epoch nonce.
//
//	[ TAG . epoch_nonce(8) ]
//
// size: 9 bytes
type UpdateEpochSignal struct {
	EpochNonce EpochNonce
}

func (UpdateEpochSignal) Tag() (Tag, bool) { return TagUpdateEpochSignal, true }

// EndOfRequestSignal marks the end of the current request's block stream.
//
//	[ TAG ]
//
// size: 1 byte
type EndOfRequestSignal struct{}

func (EndOfRequestSignal) Tag() (Tag, bool) { return TagEndOfRequestSignal, true }

// TerminationSignal tells the client the connection is closing and why.
//
//	[ TAG . reason(1) ]
//
// size: 2 bytes
type TerminationSignal struct {
	Reason Reason
}

func (TerminationSignal) Tag() (Tag, bool) { return TagTerminationSignal, true }
