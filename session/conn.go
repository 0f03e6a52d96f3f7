// Package session implements the connection driver that sits between a raw
// byte stream and the frame codec: it owns the accumulation buffer, issues
// exactly one transport read whenever the codec needs more data, and turns
// a clean peer disconnect versus a mid-frame disconnect into distinct
// errors. Both node and client build their state machines on top of it.
package session

import (
	"bytes"
	"errors"
	"io"

	"github.com/ursa-labs/ufdp/frame"
)

// ErrConnectionReset is returned by ReadFrame when the peer closes its
// write side in the middle of a frame, as opposed to between frames.
var ErrConnectionReset = errors.New("session: connection reset mid-frame")

// readBufSize is the size of the scratch buffer used for each individual
// transport read.
const readBufSize = 4096

// Conn drives one UFDP connection's framing over an underlying byte
// stream. It is not safe for concurrent use: a connection has one reader
// and one writer role per direction, matching how a request/response frame
// pair is always fully settled before the next one starts.
type Conn struct {
	rw      io.ReadWriter
	dec     *frame.Decoder
	enc     *frame.Encoder
	recvBuf bytes.Buffer
	scratch [readBufSize]byte
}

// New wraps rw with a fresh frame codec and empty accumulation buffer.
func New(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:  rw,
		dec: frame.NewDecoder(),
		enc: frame.NewEncoder(),
	}
}

// EnterBufferMode switches the connection's decoder into raw-chunk mode,
// for reading the proof+ciphertext bytes that follow a ContentResponse
// header. See frame.Decoder.EnterBufferMode.
func (c *Conn) EnterBufferMode(total, chunkSize int) {
	c.dec.EnterBufferMode(total, chunkSize)
}

// InBufferMode reports whether the connection still expects raw buffer
// bytes before it resumes parsing tagged frames.
func (c *Conn) InBufferMode() bool { return c.dec.InBufferMode() }

// ReadFrame returns the next frame on the connection, blocking for exactly
// as many transport reads as necessary. It returns (nil, nil) on a clean
// EOF between frames, and ErrConnectionReset if the peer disconnects with a
// partial frame already buffered.
func (c *Conn) ReadFrame() (frame.Frame, error) {
	for {
		f, err := c.dec.Decode(&c.recvBuf)
		if err == nil {
			return f, nil
		}
		if err != frame.ErrAgain {
			return nil, err
		}

		n, rerr := c.rw.Read(c.scratch[:])
		if n > 0 {
			c.recvBuf.Write(c.scratch[:n])
		}
		if n == 0 {
			if rerr == nil || rerr == io.EOF {
				if c.recvBuf.Len() == 0 {
					return nil, nil
				}
				return nil, ErrConnectionReset
			}
			return nil, rerr
		}
		if rerr != nil && rerr != io.EOF {
			return nil, rerr
		}
	}
}

// WriteFrame serializes f and writes it to the underlying stream in one
// call. Buffer frames are written as raw bytes with no additional framing.
func (c *Conn) WriteFrame(f frame.Frame) error {
	wire, err := c.enc.Encode(nil, f)
	if err != nil {
		return err
	}
	_, err = c.rw.Write(wire)
	return err
}

// Close closes the underlying stream if it implements io.Closer.
func (c *Conn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
