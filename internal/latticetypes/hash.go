// Package latticetypes defines the core wire/storage primitives shared by
// every package in the node: 256-bit hashes and accounts, and 128-bit
// amounts.
package latticetypes

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the width in bytes of a block hash or account public key.
const HashSize = 32

// Hash is a 256-bit blake2b digest of a block's canonical fields.
type Hash [HashSize]byte

// ZeroHash is the sentinel used for "no predecessor" / "no successor" /
// "not a pending source".
var ZeroHash = Hash{}

// IsZero reports whether h is the all-zero sentinel hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a freshly allocated copy of the hash bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes copies b into a Hash, erroring if the length is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("latticetypes: bad hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a hex-encoded hash, as used in config files and logs.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// BlakeHash hashes the concatenation of parts with blake2b-256, matching
// the block-hashing scheme of the original chain.
func BlakeHash(parts ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key, which we never pass.
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ErrBadLength is returned by fixed-width decoders given the wrong input size.
var ErrBadLength = errors.New("latticetypes: bad encoded length")
