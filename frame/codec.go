package frame

import (
	"bytes"
	"encoding/binary"
)

// handshakeResponseFixedSize is the portion of a HandshakeResponse that is
// always present, tag byte included; the discriminator byte at the end of
// it says whether LastLaneData's tail (handshakeResponseTailSize bytes)
// follows.
const handshakeResponseFixedSize = 44

// bytes delivered(8) + epoch(8) + commitment(64) + aggregate signature(96)
const handshakeResponseTailSize = 8 + 8 + 64 + 96

const (
	discriminatorNoLast = 0x00
	discriminatorLast   = 0x80
)

// Encoder serializes frames to their wire representation. It is stateless;
// a single Encoder may be shared across goroutines.
type Encoder struct{}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Encode appends f's wire representation to dst and returns the result.
// Buffer is not a tagged frame and is encoded as its raw bytes with no
// framing at all, mirroring how the codec streams chunks after a
// ContentResponse header.
func (*Encoder) Encode(dst []byte, f Frame) ([]byte, error) {
	switch v := f.(type) {
	case HandshakeRequest:
		dst = append(dst, byte(TagHandshakeRequest))
		dst = append(dst, Network[:]...)
		dst = append(dst, v.Version, v.SupportedCompressionBitmap)
		if v.Lane != nil {
			dst = append(dst, *v.Lane)
		} else {
			dst = append(dst, AutoLane)
		}
		dst = append(dst, v.Pubkey[:]...)
		return dst, nil

	case HandshakeResponse:
		dst = append(dst, byte(TagHandshakeResponse))
		dst = append(dst, v.Lane)
		dst = appendUint64(dst, v.EpochNonce)
		dst = append(dst, v.Pubkey[:]...)
		if v.Last == nil {
			dst = append(dst, discriminatorNoLast)
			return dst, nil
		}
		dst = append(dst, discriminatorLast)
		dst = appendUint64(dst, v.Last.BytesDelivered)
		dst = appendUint64(dst, v.Last.Epoch)
		dst = append(dst, v.Last.Commitment[:]...)
		dst = append(dst, v.Last.AggregateSignature[:]...)
		return dst, nil

	case ContentRequest:
		dst = append(dst, byte(TagContentRequest))
		dst = append(dst, v.Hash[:]...)
		return dst, nil

	case ContentRangeRequest:
		dst = append(dst, byte(TagContentRangeRequest))
		dst = append(dst, v.Hash[:]...)
		dst = appendUint64(dst, v.ChunkStart)
		dst = appendUint16(dst, v.Chunks)
		return dst, nil

	case ContentResponse:
		if v.BlockLen == 0 {
			return dst, ErrZeroLengthBlock
		}
		if v.Compression != 0 {
			return dst, ErrCompressionUnsupported
		}
		dst = append(dst, byte(TagContentResponse))
		dst = append(dst, v.Compression)
		dst = appendUint64(dst, v.ProofLen)
		dst = appendUint64(dst, v.BlockLen)
		dst = append(dst, v.Signature[:]...)
		return dst, nil

	case Buffer:
		dst = append(dst, v.Data...)
		return dst, nil

	case DecryptionKeyRequest:
		dst = append(dst, byte(TagDecryptionKeyRequest))
		dst = append(dst, v.DeliveryAcknowledgment[:]...)
		return dst, nil

	case DecryptionKeyResponse:
		dst = append(dst, byte(TagDecryptionKeyResponse))
		dst = append(dst, v.DecryptionKey[:]...)
		return dst, nil

	case UpdateEpochSignal:
		dst = append(dst, byte(TagUpdateEpochSignal))
		dst = appendUint64(dst, v.EpochNonce)
		return dst, nil

	case EndOfRequestSignal:
		dst = append(dst, byte(TagEndOfRequestSignal))
		return dst, nil

	case TerminationSignal:
		dst = append(dst, byte(TagTerminationSignal), byte(v.Reason))
		return dst, nil

	default:
		return dst, &CodecError{Reason: ReasonUnexpectedFrame, msg: "frame: encode: unknown frame type"}
	}
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// Decoder parses frames out of an accumulation buffer. It is stateful: it
// remembers whether it is mid buffer-mode streaming across calls, so one
// Decoder must be used per connection (the same role obfs4's framing.Decoder
// plays for a single Obfs4Conn).
type Decoder struct {
	take      int
	chunkSize int
}

// NewDecoder returns a Decoder ready to parse tagged frames.
func NewDecoder() *Decoder { return &Decoder{} }

// EnterBufferMode tells the Decoder that the next total bytes on the wire
// are raw data (a Merkle proof followed by ciphertext), to be yielded as a
// sequence of Buffer frames of at most chunkSize bytes each. The session
// layer calls this immediately after decoding a ContentResponse header,
// with total = ProofLen+BlockLen.
func (d *Decoder) EnterBufferMode(total, chunkSize int) {
	d.take = total
	d.chunkSize = chunkSize
}

// InBufferMode reports whether the Decoder still expects raw buffer bytes
// before it will resume parsing tagged frames.
func (d *Decoder) InBufferMode() bool { return d.take > 0 }

// Decode consumes exactly one frame's worth of bytes from src, if src holds
// enough. On success it returns the frame and drains the consumed bytes
// from src. If src does not yet hold a full frame, it returns ErrAgain and
// leaves src untouched; the caller should read more bytes from the
// transport and call Decode again.
func (d *Decoder) Decode(src *bytes.Buffer) (Frame, error) {
	if d.take > 0 {
		n := d.chunkSize
		if n > d.take {
			n = d.take
		}
		if src.Len() < n {
			return nil, ErrAgain
		}
		data := make([]byte, n)
		if _, err := src.Read(data); err != nil {
			return nil, err
		}
		d.take -= n
		return Buffer{Data: data}, nil
	}

	buf := src.Bytes()
	if len(buf) < 1 {
		return nil, ErrAgain
	}
	tag := Tag(buf[0])

	size, err := tag.sizeHint()
	if err != nil {
		return nil, err
	}

	// HandshakeResponse has a variable tail: peek the discriminator byte at
	// the end of its fixed part before deciding how much data we need.
	if tag == TagHandshakeResponse {
		if len(buf) < handshakeResponseFixedSize {
			return nil, ErrAgain
		}
		switch buf[handshakeResponseFixedSize-1] {
		case discriminatorLast:
			size = handshakeResponseFixedSize + handshakeResponseTailSize
		case discriminatorNoLast:
			size = handshakeResponseFixedSize
		default:
			return nil, &CodecError{Reason: ReasonUnexpectedFrame, msg: "frame: invalid handshake response discriminator"}
		}
	}

	if len(buf) < size {
		return nil, ErrAgain
	}

	frame, err := decodeFixed(tag, buf[:size])
	if err != nil {
		return nil, err
	}
	src.Next(size)
	return frame, nil
}

func decodeFixed(tag Tag, b []byte) (Frame, error) {
	switch tag {
	case TagHandshakeRequest:
		if !bytes.Equal(b[1:5], Network[:]) {
			return nil, InvalidNetworkError()
		}
		f := HandshakeRequest{
			Version:                    b[5],
			SupportedCompressionBitmap: b[6],
		}
		if b[7] != AutoLane {
			lane := b[7]
			f.Lane = &lane
		}
		copy(f.Pubkey[:], b[8:56])
		return f, nil

	case TagHandshakeResponse:
		f := HandshakeResponse{
			Lane:       b[1],
			EpochNonce: binary.BigEndian.Uint64(b[2:10]),
		}
		copy(f.Pubkey[:], b[10:43])
		if b[43] == discriminatorLast {
			f.Last = &LastLaneData{
				BytesDelivered: binary.BigEndian.Uint64(b[44:52]),
				Epoch:          binary.BigEndian.Uint64(b[52:60]),
			}
			copy(f.Last.Commitment[:], b[60:124])
			copy(f.Last.AggregateSignature[:], b[124:220])
		}
		return f, nil

	case TagContentRequest:
		f := ContentRequest{}
		copy(f.Hash[:], b[1:33])
		return f, nil

	case TagContentRangeRequest:
		f := ContentRangeRequest{
			ChunkStart: binary.BigEndian.Uint64(b[33:41]),
			Chunks:     binary.BigEndian.Uint16(b[41:43]),
		}
		copy(f.Hash[:], b[1:33])
		return f, nil

	case TagContentResponse:
		f := ContentResponse{
			Compression: b[1],
			ProofLen:    binary.BigEndian.Uint64(b[2:10]),
			BlockLen:    binary.BigEndian.Uint64(b[10:18]),
		}
		copy(f.Signature[:], b[18:82])
		if f.BlockLen == 0 {
			return nil, ErrZeroLengthBlock
		}
		if f.Compression != 0 {
			return nil, ErrCompressionUnsupported
		}
		return f, nil

	case TagDecryptionKeyRequest:
		f := DecryptionKeyRequest{}
		copy(f.DeliveryAcknowledgment[:], b[1:97])
		return f, nil

	case TagDecryptionKeyResponse:
		f := DecryptionKeyResponse{}
		copy(f.DecryptionKey[:], b[1:34])
		return f, nil

	case TagUpdateEpochSignal:
		return UpdateEpochSignal{EpochNonce: binary.BigEndian.Uint64(b[1:9])}, nil

	case TagEndOfRequestSignal:
		return EndOfRequestSignal{}, nil

	case TagTerminationSignal:
		reason, ok := reasonFromByte(b[1])
		if !ok {
			return nil, InvalidReasonError(b[1])
		}
		return TerminationSignal{Reason: reason}, nil

	default:
		return nil, InvalidTagError(tag)
	}
}
