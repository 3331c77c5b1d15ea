package latticetypes

import "testing"

func TestHashFromHexRoundTrip(t *testing.T) {
	want := BlakeHash([]byte("hello"))
	got, err := HashFromHex(want.String())
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if got != want {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestBlakeHashIsDeterministicAndSensitiveToInput(t *testing.T) {
	a := BlakeHash([]byte("foo"), []byte("bar"))
	b := BlakeHash([]byte("foo"), []byte("bar"))
	if a != b {
		t.Fatalf("BlakeHash should be deterministic for the same input parts")
	}
	c := BlakeHash([]byte("foo"), []byte("baz"))
	if a == c {
		t.Fatalf("different input parts should not hash the same")
	}
}

func TestHashFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := HashFromBytes(make([]byte, HashSize+1)); err == nil {
		t.Fatalf("expected error for oversized input")
	}
}

func TestZeroHashIsZero(t *testing.T) {
	if !ZeroHash.IsZero() {
		t.Fatalf("ZeroHash.IsZero() should be true")
	}
	if BlakeHash([]byte("x")).IsZero() {
		t.Fatalf("a real hash should not report IsZero")
	}
}
