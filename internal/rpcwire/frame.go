package rpcwire

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
)

// maxFrameBytes bounds a single frame to guard a connection against a
// corrupt or hostile length prefix.
const maxFrameBytes = 64 << 20

// Conn wraps a net.Conn with a buffered reader and the length-prefixed gob
// framing shared by the Scheduler server and its clients: each frame is a
// 4-byte big-endian length followed by that many bytes of gob-encoded
// payload.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader
	w  *bufio.Writer
}

// NewConn wraps an already-dialed or accepted connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, r: bufio.NewReader(nc), w: bufio.NewWriter(nc)}
}

// Raw returns the underlying net.Conn, e.g. to set deadlines or close it.
func (c *Conn) Raw() net.Conn { return c.nc }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// WriteEnvelope frames and sends a request.
func (c *Conn) WriteEnvelope(e Envelope) error { return c.writeFrame(&e) }

// ReadEnvelope blocks for the next request frame.
func (c *Conn) ReadEnvelope() (Envelope, error) {
	var e Envelope
	err := c.readFrame(&e)
	return e, err
}

// WriteReply frames and sends a response.
func (c *Conn) WriteReply(r Reply) error { return c.writeFrame(&r) }

// ReadReply blocks for the next response frame.
func (c *Conn) ReadReply() (Reply, error) {
	var r Reply
	err := c.readFrame(&r)
	return r, err
}

func (c *Conn) writeFrame(v any) error {
	var buf countingBuffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("rpcwire: encode frame: %w", err)
	}
	if len(buf.b) > maxFrameBytes {
		return fmt.Errorf("rpcwire: frame of %d bytes exceeds limit", len(buf.b))
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf.b)))
	if _, err := c.w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("rpcwire: write length prefix: %w", err)
	}
	if _, err := c.w.Write(buf.b); err != nil {
		return fmt.Errorf("rpcwire: write payload: %w", err)
	}
	return c.w.Flush()
}

func (c *Conn) readFrame(v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(c.r, lenPrefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return fmt.Errorf("rpcwire: peer announced frame of %d bytes, exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return fmt.Errorf("rpcwire: read payload: %w", err)
	}
	dec := gob.NewDecoder(&byteReader{b: payload})
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("rpcwire: decode frame: %w", err)
	}
	return nil
}

// countingBuffer is a minimal io.Writer sink; avoids pulling in bytes.Buffer
// just for Write.
type countingBuffer struct{ b []byte }

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.b = append(c.b, p...)
	return len(p), nil
}

// byteReader is a minimal io.Reader over an in-memory slice; avoids pulling
// in bytes.Reader just for Read.
type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
