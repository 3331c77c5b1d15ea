package blocks

import "github.com/latticenode/node/internal/latticetypes"

// SendBlock decreases the sender's balance and creates a pending entry
// addressed to Destination.
type SendBlock struct {
	PreviousHash latticetypes.Hash
	Destination  latticetypes.Account
	BalanceAfter latticetypes.Amount
	Sig          Signature
	WorkNonce    Work
}

func (b *SendBlock) BlockType() Type            { return TypeSend }
func (b *SendBlock) Previous() latticetypes.Hash { return b.PreviousHash }
func (b *SendBlock) Root() latticetypes.Account {
	return latticetypes.AccountFromHash(b.PreviousHash)
}
func (b *SendBlock) Signature() Signature     { return b.Sig }
func (b *SendBlock) SetSignature(s Signature) { b.Sig = s }
func (b *SendBlock) Work() Work               { return b.WorkNonce }
func (b *SendBlock) SetWork(w Work)           { b.WorkNonce = w }

func (b *SendBlock) Hash() latticetypes.Hash {
	return latticetypes.BlakeHash(
		b.PreviousHash[:],
		b.Destination[:],
		b.BalanceAfter[:],
	)
}

// ReceiveBlock consumes the pending entry created by Source.
type ReceiveBlock struct {
	PreviousHash latticetypes.Hash
	Source       latticetypes.Hash
	Sig          Signature
	WorkNonce    Work
}

func (b *ReceiveBlock) BlockType() Type            { return TypeReceive }
func (b *ReceiveBlock) Previous() latticetypes.Hash { return b.PreviousHash }
func (b *ReceiveBlock) Root() latticetypes.Account {
	return latticetypes.AccountFromHash(b.PreviousHash)
}
func (b *ReceiveBlock) Signature() Signature     { return b.Sig }
func (b *ReceiveBlock) SetSignature(s Signature) { b.Sig = s }
func (b *ReceiveBlock) Work() Work               { return b.WorkNonce }
func (b *ReceiveBlock) SetWork(w Work)           { b.WorkNonce = w }

func (b *ReceiveBlock) Hash() latticetypes.Hash {
	return latticetypes.BlakeHash(b.PreviousHash[:], b.Source[:])
}

// OpenBlock is the first block of a chain; it consumes the chain's first
// pending entry and assigns the initial representative.
type OpenBlock struct {
	Source         latticetypes.Hash
	Representative latticetypes.Account
	OwnerAccount   latticetypes.Account
	Sig            Signature
	WorkNonce      Work
}

func (b *OpenBlock) BlockType() Type             { return TypeOpen }
func (b *OpenBlock) Previous() latticetypes.Hash { return latticetypes.ZeroHash }
func (b *OpenBlock) Root() latticetypes.Account  { return b.OwnerAccount }
func (b *OpenBlock) Signature() Signature        { return b.Sig }
func (b *OpenBlock) SetSignature(s Signature)    { b.Sig = s }
func (b *OpenBlock) Work() Work                  { return b.WorkNonce }
func (b *OpenBlock) SetWork(w Work)              { b.WorkNonce = w }

func (b *OpenBlock) Hash() latticetypes.Hash {
	return latticetypes.BlakeHash(b.Source[:], b.Representative[:], b.OwnerAccount[:])
}

// ChangeBlock reassigns voting-weight delegation without moving balance.
type ChangeBlock struct {
	PreviousHash   latticetypes.Hash
	Representative latticetypes.Account
	Sig            Signature
	WorkNonce      Work
}

func (b *ChangeBlock) BlockType() Type            { return TypeChange }
func (b *ChangeBlock) Previous() latticetypes.Hash { return b.PreviousHash }
func (b *ChangeBlock) Root() latticetypes.Account {
	return latticetypes.AccountFromHash(b.PreviousHash)
}
func (b *ChangeBlock) Signature() Signature     { return b.Sig }
func (b *ChangeBlock) SetSignature(s Signature) { b.Sig = s }
func (b *ChangeBlock) Work() Work               { return b.WorkNonce }
func (b *ChangeBlock) SetWork(w Work)           { b.WorkNonce = w }

func (b *ChangeBlock) Hash() latticetypes.Hash {
	return latticetypes.BlakeHash(b.PreviousHash[:], b.Representative[:])
}

// StateBlock is the universal block variant; its semantic subtype is
// inferred from context (see Subtype).
type StateBlock struct {
	Account        latticetypes.Account
	PreviousHash   latticetypes.Hash
	Representative latticetypes.Account
	BalanceAfter   latticetypes.Amount
	Link           latticetypes.Hash
	Sig            Signature
	WorkNonce      Work
}

func (b *StateBlock) BlockType() Type             { return TypeState }
func (b *StateBlock) Previous() latticetypes.Hash { return b.PreviousHash }
func (b *StateBlock) Root() latticetypes.Account {
	if b.PreviousHash.IsZero() {
		return b.Account
	}
	return latticetypes.AccountFromHash(b.PreviousHash)
}
func (b *StateBlock) Signature() Signature     { return b.Sig }
func (b *StateBlock) SetSignature(s Signature) { b.Sig = s }
func (b *StateBlock) Work() Work               { return b.WorkNonce }
func (b *StateBlock) SetWork(w Work)           { b.WorkNonce = w }

func (b *StateBlock) Hash() latticetypes.Hash {
	return latticetypes.BlakeHash(
		stateBlockPreamble[:],
		b.Account[:],
		b.PreviousHash[:],
		b.Representative[:],
		b.BalanceAfter[:],
		b.Link[:],
	)
}

// stateBlockPreamble is a fixed 32-byte domain separator mixed into every
// state-block hash so that state blocks cannot collide with a digest of
// any legacy block type (matches the original's "STATE_BLOCK_PREAMBLE").
var stateBlockPreamble = latticetypes.Hash{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 6,
}

// SourceLink returns the hash a receive-like block depends on (the send
// block whose pending entry it consumes), for callers that need to key
// an unchecked-pool entry after a gap_source result. ok is false for
// block variants that never reference a source (Send, Change).
func SourceLink(b Block) (hash latticetypes.Hash, ok bool) {
	switch v := b.(type) {
	case *ReceiveBlock:
		return v.Source, true
	case *OpenBlock:
		return v.Source, true
	case *StateBlock:
		if v.Link.IsZero() {
			return latticetypes.Hash{}, false
		}
		return v.Link, true
	default:
		return latticetypes.Hash{}, false
	}
}

// IsEpochLink reports whether link matches one of the well-known
// epoch-upgrade sentinel links. Defined here (rather than in ledger) since
// it is a pure function of the wire constant and the block's own fields.
func IsEpochLink(link latticetypes.Hash, epochLinks ...latticetypes.Hash) bool {
	for _, l := range epochLinks {
		if link == l {
			return true
		}
	}
	return false
}

// Subtype infers a State block's semantic effect from its own fields and
// the account's prior balance, per spec §4.2 step 6. epochLink identifies
// the sentinel link value used for an epoch upgrade.
func (b *StateBlock) Subtype(previousBalance latticetypes.Amount, isOpen bool, epochLink latticetypes.Hash) StateSubtype {
	if isOpen {
		return StateSubtypeOpen
	}
	if b.BalanceAfter.Cmp(previousBalance) < 0 {
		return StateSubtypeSend
	}
	if b.Link.IsZero() {
		return StateSubtypeChange
	}
	if b.BalanceAfter.Cmp(previousBalance) == 0 && b.Link == epochLink {
		return StateSubtypeEpoch
	}
	return StateSubtypeReceive
}
