package frame

import "fmt"

// CodecError is returned by Decode/Encode for malformed or out-of-protocol
// frame data. It always carries the Reason a TerminationSignal should cite
// if the caller decides to tear the connection down over it.
type CodecError struct {
	Reason Reason
	msg    string
}

func (e *CodecError) Error() string { return e.msg }

// InvalidNetworkError is returned when a HandshakeRequest's magic does not
// read "URSA".
func InvalidNetworkError() error {
	return &CodecError{Reason: ReasonUnexpectedFrame, msg: "frame: invalid network magic"}
}

// InvalidTagError is returned when a byte read as a tag matches none of the
// ten defined frame variants.
func InvalidTagError(got Tag) error {
	return &CodecError{
		Reason: ReasonUnexpectedFrame,
		msg:    fmt.Sprintf("frame: invalid tag 0x%02x", uint8(got)),
	}
}

// InvalidReasonError is returned when a TerminationSignal's reason byte
// matches none of the three defined reasons.
func InvalidReasonError(got byte) error {
	return &CodecError{
		Reason: ReasonUnexpectedFrame,
		msg:    fmt.Sprintf("frame: invalid termination reason 0x%02x", got),
	}
}

// UnexpectedFrameError is returned by session-level callers (not the codec
// itself) when a structurally valid frame arrives out of turn.
func UnexpectedFrameError(got Tag) error {
	return &CodecError{
		Reason: ReasonUnexpectedFrame,
		msg:    fmt.Sprintf("frame: unexpected frame %s", got),
	}
}

// ErrZeroLengthBlock is returned when a ContentResponse header declares a
// zero BlockLen, which spec.md forbids unconditionally.
var ErrZeroLengthBlock = &CodecError{Reason: ReasonUnexpectedFrame, msg: "frame: zero length block"}

// ErrCompressionUnsupported is returned when a ContentResponse header
// declares a non-zero compression bitmap; this node does not implement any
// of the advertised codecs (see the compression bitmap entry under
// DESIGN.md's resolved Open Questions).
var ErrCompressionUnsupported = &CodecError{Reason: ReasonUnexpectedFrame, msg: "frame: compression not supported"}

// ErrAgain signals that Decode needs more bytes before it can produce a
// frame. It is not a protocol error: callers should read more data from
// the transport and retry.
var ErrAgain = fmt.Errorf("frame: insufficient data, read more and retry")
