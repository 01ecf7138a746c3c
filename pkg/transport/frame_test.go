package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameEncode(t *testing.T) {
	f := &Frame{Type: FrameTypeData, Payload: []byte("hi")}
	buf, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{0x03, 0x00, 0x00, 0x00, byte(FrameTypeData), 'h', 'i'}
	if !bytes.Equal(buf, want) {
		t.Errorf("Encode() = %x, want %x", buf, want)
	}

	big := &Frame{Type: FrameTypeData, Payload: make([]byte, MaxPayloadSize+1)}
	if _, err := big.Encode(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Encode() oversize error = %v, want ErrMessageTooLarge", err)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	frames := []*Frame{
		{Type: FrameTypeHello, Payload: []byte(`{"peerId":"a"}`)},
		{Type: FrameTypeData, Payload: []byte("one")},
		{Type: FrameTypeData, Payload: []byte{}},
		{Type: FrameTypeData, Payload: bytes.Repeat([]byte{0xAB}, MaxPayloadSize)},
	}
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	r := NewStreamReader(&buf)
	for i, want := range frames {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v", i, err)
		}
		if got.Type != want.Type || !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("ReadFrame() #%d = %s/%d bytes, want %s/%d bytes",
				i, got.Type, len(got.Payload), want.Type, len(want.Payload))
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestStreamReaderErrors(t *testing.T) {
	lenPrefix := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"zero length", lenPrefix(0), ErrInvalidFrame},
		{"too long", lenPrefix(MaxFrameSize), ErrInvalidFrame},
		{"unknown type", append(lenPrefix(1), 0x7F), ErrInvalidFrame},
		{"truncated body", append(lenPrefix(5), byte(FrameTypeData), 'a'), io.ErrUnexpectedEOF},
		{"truncated prefix", []byte{0x01, 0x00}, io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStreamReader(bytes.NewReader(tt.data)).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHelloCodec(t *testing.T) {
	f, err := encodeHello(Hello{PeerID: "p1", Name: "Desk"})
	if err != nil {
		t.Fatalf("encodeHello() error = %v", err)
	}
	h, err := decodeHello(f)
	if err != nil {
		t.Fatalf("decodeHello() error = %v", err)
	}
	if h.PeerID != "p1" || h.Name != "Desk" {
		t.Errorf("decodeHello() = %+v", h)
	}

	bad := []*Frame{
		{Type: FrameTypeData, Payload: []byte(`{"peerId":"p1"}`)},
		{Type: FrameTypeHello, Payload: []byte(`{`)},
		{Type: FrameTypeHello, Payload: []byte(`{"name":"x"}`)},
	}
	for i, f := range bad {
		if _, err := decodeHello(f); !errors.Is(err, ErrHandshakeFailed) {
			t.Errorf("decodeHello(bad[%d]) error = %v, want ErrHandshakeFailed", i, err)
		}
	}
}
