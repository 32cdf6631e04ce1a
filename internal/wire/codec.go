package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const frameHeaderBytes = 4

// MaxFrameBytes bounds a single frame payload. A peer declaring a larger
// length is malformed and the stream is not worth recovering.
const MaxFrameBytes = 1 << 20

// ProtocolError reports a malformed or truncated frame.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Encoder writes length-prefixed frames to a byte stream. Payload
// contents are opaque to the codec.
type Encoder struct {
	writer io.Writer
}

// Decoder reads length-prefixed frames from a byte stream.
type Decoder struct {
	reader *bufio.Reader
}

// NewEncoder creates a new encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// NewDecoder creates a new decoder for the given reader.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Reader returns the decoder's buffered reader. Bytes already pulled
// off the stream but not yet consumed by Decode are only reachable
// through it; reading the underlying stream directly would skip them.
func (d *Decoder) Reader() io.Reader { return d.reader }

// Encode writes one frame: a 4-byte big-endian length followed by the payload.
func (e *Encoder) Encode(payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return &ProtocolError{Reason: fmt.Sprintf("frame of %d bytes exceeds limit", len(payload))}
	}
	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := e.writer.Write(header); err != nil {
		return err
	}
	_, err := e.writer.Write(payload)
	return err
}

// Decode reads the next frame payload. It returns io.EOF when the stream
// ends cleanly at a frame boundary, and a *ProtocolError when the declared
// length is invalid or the stream ends mid-frame.
func (d *Decoder) Decode() ([]byte, error) {
	header := make([]byte, frameHeaderBytes)
	if _, err := io.ReadFull(d.reader, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &ProtocolError{Reason: "truncated frame header", Err: err}
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return nil, &ProtocolError{Reason: "frame length zero"}
	}
	if length > MaxFrameBytes {
		return nil, &ProtocolError{Reason: fmt.Sprintf("declared frame length %d exceeds limit", length)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &ProtocolError{Reason: "stream ended mid-frame", Err: err}
	}
	return payload, nil
}
