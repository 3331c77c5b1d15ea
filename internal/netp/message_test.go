package netp

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := NewHeader(NetworkTest, MessageKeepalive)
	want.Extensions = 0x1234

	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("expected %d encoded bytes, got %d", HeaderSize, buf.Len())
	}

	got, err := DecodeHeader(&buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, HeaderSize))
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatalf("expected error for all-zero (bad magic) header")
	}
}

func TestDecodeHeaderRejectsShortRead(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, HeaderSize-1))
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}
