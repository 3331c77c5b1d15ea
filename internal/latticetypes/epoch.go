package latticetypes

// Epoch is the schema-version tag carried by an account; epoch_1 unlocks
// state-block-only semantics (receives of epoch_1 pending entries must be
// state blocks, see ledger.unreceivable).
type Epoch uint8

const (
	EpochUnknown Epoch = iota
	Epoch0
	Epoch1
)

func (e Epoch) String() string {
	switch e {
	case Epoch0:
		return "epoch_0"
	case Epoch1:
		return "epoch_1"
	default:
		return "epoch_unknown"
	}
}
