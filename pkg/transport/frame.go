package transport

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// LengthPrefixSize is the size of the frame length prefix.
	LengthPrefixSize = 4

	// frameHeaderSize is the length prefix plus the frame type byte.
	frameHeaderSize = LengthPrefixSize + 1

	// MaxFrameSize is the largest frame on the wire, header included.
	// A frame must fit in one packet of the in-memory pipe.
	MaxFrameSize = 64 * 1024

	// MaxPayloadSize is the largest payload a single frame can carry.
	MaxPayloadSize = MaxFrameSize - frameHeaderSize
)

// Frame is a single unit on the wire.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// Encode returns the wire encoding of the frame.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, ErrMessageTooLarge
	}
	buf := make([]byte, frameHeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[:LengthPrefixSize], uint32(1+len(f.Payload)))
	buf[LengthPrefixSize] = byte(f.Type)
	copy(buf[frameHeaderSize:], f.Payload)
	return buf, nil
}

// StreamReader reads length-prefixed frames from a stream.
type StreamReader struct {
	r *bufio.Reader
}

// NewStreamReader creates a new stream reader. The reader buffers a whole
// frame so packet-oriented connections are never read short.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReaderSize(r, MaxFrameSize)}
}

// ReadFrame reads the next frame. io.EOF is returned unchanged when the
// stream ends cleanly between frames.
func (sr *StreamReader) ReadFrame() (*Frame, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(sr.r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize-LengthPrefixSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidFrame, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(sr.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	ft := FrameType(body[0])
	if !ft.IsValid() {
		return nil, fmt.Errorf("%w: type 0x%02x", ErrInvalidFrame, body[0])
	}
	return &Frame{Type: ft, Payload: body[1:]}, nil
}

// StreamWriter writes length-prefixed frames to a stream.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a new stream writer.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteFrame writes a frame with a single Write call.
func (sw *StreamWriter) WriteFrame(f *Frame) error {
	buf, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = sw.w.Write(buf)
	return err
}

// Hello is the identity exchanged at the start of every connection.
type Hello struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name,omitempty"`
}

func encodeHello(h Hello) (*Frame, error) {
	payload, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: FrameTypeHello, Payload: payload}, nil
}

func decodeHello(f *Frame) (Hello, error) {
	var h Hello
	if f.Type != FrameTypeHello {
		return h, fmt.Errorf("%w: expected hello, got %s", ErrHandshakeFailed, f.Type)
	}
	if err := json.Unmarshal(f.Payload, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if h.PeerID == "" {
		return h, fmt.Errorf("%w: empty peer ID", ErrHandshakeFailed)
	}
	return h, nil
}
