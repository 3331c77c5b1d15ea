// Package blocks defines the tagged union of block variants, their
// canonical hashing, wire (de)serialization, and the sideband metadata
// stored alongside each committed block.
//
// The original design dispatches on block type through virtual calls on a
// common base class. Per the redesign notes this becomes a closed Go
// interface with a type switch at every call site that needs variant
// behavior (ledger.process, wire encode/decode) rather than a `visit`
// double-dispatch.
package blocks

import (
	"fmt"

	"github.com/latticenode/node/internal/latticetypes"
)

// Type is the one-byte wire tag of a block variant (spec §6).
type Type uint8

const (
	TypeInvalid    Type = 0
	TypeNotABlock  Type = 1
	TypeSend       Type = 2
	TypeReceive    Type = 3
	TypeOpen       Type = 4
	TypeChange     Type = 5
	TypeState      Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeNotABlock:
		return "not_a_block"
	case TypeSend:
		return "send"
	case TypeReceive:
		return "receive"
	case TypeOpen:
		return "open"
	case TypeChange:
		return "change"
	case TypeState:
		return "state"
	default:
		return "invalid"
	}
}

// Signature is the 64-byte ed25519 signature carried by every block.
type Signature [64]byte

// Work is a proof-of-work nonce, validated against a difficulty threshold
// by a Worker external to this package (spec §1 scope note).
type Work uint64

// Block is implemented by every block variant. Hash and Root are pure
// functions of the block's canonical fields; Signature/Work are mutable
// only until the block is committed to the ledger, after which blocks are
// immutable (spec §3 Lifecycles).
type Block interface {
	BlockType() Type
	Hash() latticetypes.Hash
	// Root is the proof-of-work root: Previous if the block has one,
	// otherwise the account (true only for Open and for State blocks
	// whose Previous is zero).
	Root() latticetypes.Account
	Previous() latticetypes.Hash
	Signature() Signature
	SetSignature(Signature)
	Work() Work
	SetWork(Work)
}

// StateSubtype classifies a State block's semantic effect, inferred per
// spec §4.2 step 6 rather than carried on the wire.
type StateSubtype uint8

const (
	StateSubtypeInvalid StateSubtype = iota
	StateSubtypeSend
	StateSubtypeReceive
	StateSubtypeOpen
	StateSubtypeChange
	StateSubtypeEpoch
)

func (s StateSubtype) String() string {
	switch s {
	case StateSubtypeSend:
		return "send"
	case StateSubtypeReceive:
		return "receive"
	case StateSubtypeOpen:
		return "open"
	case StateSubtypeChange:
		return "change"
	case StateSubtypeEpoch:
		return "epoch"
	default:
		return "invalid"
	}
}

// ErrUnknownType is returned by Decode for an unrecognized type byte.
type ErrUnknownType struct{ Got byte }

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("blocks: unknown block type byte 0x%02x", e.Got)
}
