package ledger

import (
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
)

// GenesisSpec describes the network's single unconditional "open" block:
// the whole supply assigned to one account with no prior send to back it
// (spec §3 Lifecycles: "every chain but genesis' begins with an open
// block spending a pending entry created elsewhere").
type GenesisSpec struct {
	Account        Account
	Representative Account
	Balance        Amount
	Signature      blocks.Signature
	Work           blocks.Work
}

// InitGenesis seeds the ledger with spec's genesis account if (and only
// if) it is empty, bypassing Process's ordinary pending-entry requirement
// since genesis has no predecessor send. Safe to call on every startup:
// a populated ledger is left untouched.
func InitGenesis(tx kvstore.WriteTx, l *Ledger, spec GenesisSpec) error {
	_, ok, err := getAccountInfo(tx, spec.Account)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	open := &blocks.OpenBlock{
		Source:         latticetypes.ZeroHash,
		Representative: spec.Representative,
		OwnerAccount:   spec.Account,
		Sig:            spec.Signature,
		WorkNonce:      spec.Work,
	}
	hash := open.Hash()
	now := time.Unix(0, 0).UTC()

	info := AccountInfo{
		Head:                hash,
		OpenBlock:           hash,
		RepresentativeBlock: hash,
		Representative:      spec.Representative,
		Balance:             spec.Balance,
		ModifiedTimestamp:   now,
		BlockCount:          1,
		Epoch:               latticetypes.Epoch0,
	}
	sideband := blocks.Sideband{
		BlockType:      blocks.TypeOpen,
		Account:        spec.Account,
		Balance:        spec.Balance,
		Height:         1,
		Successor:      latticetypes.ZeroHash,
		Timestamp:      now,
		Representative: spec.Representative,
		Epoch:          latticetypes.Epoch0,
	}

	if err := putBlock(tx, hash, storedBlock{Block: open, Sideband: sideband}, latticetypes.Epoch0); err != nil {
		return err
	}
	if err := putFrontier(tx, hash, spec.Account); err != nil {
		return err
	}
	if err := putAccountInfo(tx, spec.Account, info); err != nil {
		return err
	}
	l.weights.add(spec.Representative, spec.Balance)
	return nil
}
