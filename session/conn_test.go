package session

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ursa-labs/ufdp/frame"
)

// chunkedConn feeds back a fixed sequence of reads, one slice per Read
// call, then reports EOF or a terminal error.
type chunkedConn struct {
	chunks [][]byte
	pos    int
	write  bytes.Buffer
	eofErr error
}

func (c *chunkedConn) Read(p []byte) (int, error) {
	if c.pos >= len(c.chunks) {
		if c.eofErr != nil {
			return 0, c.eofErr
		}
		return 0, io.EOF
	}
	chunk := c.chunks[c.pos]
	c.pos++
	n := copy(p, chunk)
	return n, nil
}

func (c *chunkedConn) Write(p []byte) (int, error) {
	return c.write.Write(p)
}

func TestReadFrameAcrossPartialReads(t *testing.T) {
	enc := frame.NewEncoder()
	wire, err := enc.Encode(nil, frame.UpdateEpochSignal{EpochNonce: 42})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Split the 9-byte frame across three separate reads.
	tc := &chunkedConn{chunks: [][]byte{wire[:3], wire[3:6], wire[6:]}}
	conn := New(tc)

	got, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if diff := cmp.Diff(frame.Frame(frame.UpdateEpochSignal{EpochNonce: 42}), got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	tc := &chunkedConn{}
	conn := New(tc)

	got, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got != nil {
		t.Fatalf("ReadFrame: got %#v, want nil for clean EOF", got)
	}
}

func TestReadFrameConnectionReset(t *testing.T) {
	tc := &chunkedConn{chunks: [][]byte{{0x01, 0x02, 0x03}}}
	conn := New(tc)

	_, err := conn.ReadFrame()
	if err != ErrConnectionReset {
		t.Fatalf("ReadFrame err = %v, want ErrConnectionReset", err)
	}
}

func TestWriteFrame(t *testing.T) {
	tc := &chunkedConn{}
	conn := New(tc)

	if err := conn.WriteFrame(frame.EndOfRequestSignal{}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	want := []byte{byte(frame.TagEndOfRequestSignal)}
	if !bytes.Equal(tc.write.Bytes(), want) {
		t.Fatalf("wrote % x, want % x", tc.write.Bytes(), want)
	}
}

func TestBufferModeOverConn(t *testing.T) {
	tc := &chunkedConn{chunks: [][]byte{{1, 2}, {3, 4, 5}}}
	conn := New(tc)
	conn.EnterBufferMode(5, 5)

	got, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	buf, ok := got.(frame.Buffer)
	if !ok || !bytes.Equal(buf.Data, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("got %#v, want Buffer{1,2,3,4,5}", got)
	}
	if conn.InBufferMode() {
		t.Fatal("InBufferMode: want false once take is exhausted")
	}
}
