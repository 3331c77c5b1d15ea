package blocks

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/latticenode/node/internal/latticetypes"
)

func fillHash(b byte) latticetypes.Hash {
	var h latticetypes.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func fillAccount(b byte) latticetypes.Account {
	return latticetypes.AccountFromHash(fillHash(b))
}

func TestCodecRoundTrip(t *testing.T) {
	cases := []Block{
		&SendBlock{PreviousHash: fillHash(1), Destination: fillAccount(2), BalanceAfter: latticetypes.AmountFromUint64(3), Sig: Signature{4}, WorkNonce: 5},
		&ReceiveBlock{PreviousHash: fillHash(6), Source: fillHash(7), Sig: Signature{8}, WorkNonce: 9},
		&OpenBlock{Source: fillHash(10), Representative: fillAccount(11), OwnerAccount: fillAccount(12), Sig: Signature{13}, WorkNonce: 14},
		&ChangeBlock{PreviousHash: fillHash(15), Representative: fillAccount(16), Sig: Signature{17}, WorkNonce: 18},
		&StateBlock{Account: fillAccount(19), PreviousHash: fillHash(20), Representative: fillAccount(21), BalanceAfter: latticetypes.AmountFromUint64(22), Link: fillHash(23), Sig: Signature{24}, WorkNonce: 25},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, want); err != nil {
			t.Fatalf("Encode(%T): %v", want, err)
		}

		typeByte, err := buf.ReadByte()
		if err != nil {
			t.Fatalf("read type prefix: %v", err)
		}
		got, err := Decode(&buf, Type(typeByte))
		if err != nil {
			t.Fatalf("Decode(%T): %v", want, err)
		}

		if got.Hash() != want.Hash() {
			t.Errorf("round trip changed hash for %T:\nwant %s\ngot  %s", want, spew.Sdump(want), spew.Sdump(got))
		}
		if got.BlockType() != want.BlockType() {
			t.Errorf("round trip changed type for %T", want)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil), Type(0xff))
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, ok := err.(ErrUnknownType); !ok {
		t.Fatalf("expected ErrUnknownType, got %T", err)
	}
}
