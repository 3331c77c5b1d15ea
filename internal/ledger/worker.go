package ledger

import "github.com/latticenode/node/internal/blocks"

// Worker validates a proof-of-work nonce against a root and difficulty.
// The PoW kernel itself (CPU/GPU generation) is an external collaborator
// per spec §1; the ledger only ever validates.
type Worker interface {
	Validate(root Account, work blocks.Work, difficulty uint64) bool
}

// Epochs identifies the signer account and sentinel link for each epoch
// upgrade, per spec §4.2 is_epoch_link / epoch_signer.
type Epochs struct {
	// Signer is the account whose signature marks a state block as an
	// epoch upgrade rather than an ordinary change (spec: "Epoch blocks
	// are only valid when signed by epoch_signer; if signed by the
	// account they are an ordinary change with zero effect").
	Signer Account
	// Link1 is the sentinel link value used by an epoch_0 -> epoch_1 upgrade.
	Link1 Hash
}

func (e Epochs) isEpochLink(link Hash) bool {
	return link == e.Link1
}
