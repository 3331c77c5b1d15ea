package blocks

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/latticenode/node/internal/latticetypes"
)

// Sideband is per-block metadata computed once at insertion time and
// never revisited: it is not part of the block's hash. Height and
// Successor let the ledger walk a chain forward/backward without
// recomputing account state from genesis (spec §3 Sideband).
type Sideband struct {
	BlockType Type
	Account   latticetypes.Account
	Balance   latticetypes.Amount
	Height    uint64
	Successor latticetypes.Hash
	Timestamp time.Time
	// Representative and Epoch denormalize the owning account's state as
	// of right after this block was applied. Neither is part of the
	// original sideband; both are carried so that ledger.Rollback can
	// reconstruct account_info from the previous block's row alone,
	// without a separate versioned history table.
	Representative latticetypes.Account
	Epoch          latticetypes.Epoch
}

// sidebandWireSize is the fixed encoded size: 1 (type) + 32 (account) +
// 16 (balance) + 8 (height) + 32 (successor) + 8 (unix seconds) +
// 32 (representative) + 1 (epoch).
const sidebandWireSize = 1 + 32 + 16 + 8 + 32 + 8 + 32 + 1

func (s Sideband) Encode(w io.Writer) error {
	var buf [sidebandWireSize]byte
	buf[0] = byte(s.BlockType)
	off := 1
	copy(buf[off:], s.Account[:])
	off += 32
	copy(buf[off:], s.Balance[:])
	off += 16
	binary.BigEndian.PutUint64(buf[off:], s.Height)
	off += 8
	copy(buf[off:], s.Successor[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:], uint64(s.Timestamp.Unix()))
	off += 8
	copy(buf[off:], s.Representative[:])
	off += 32
	buf[off] = byte(s.Epoch)
	_, err := w.Write(buf[:])
	return err
}

func DecodeSideband(b []byte) (Sideband, error) {
	var s Sideband
	if len(b) != sidebandWireSize {
		return s, latticetypes.ErrBadLength
	}
	s.BlockType = Type(b[0])
	off := 1
	copy(s.Account[:], b[off:off+32])
	off += 32
	copy(s.Balance[:], b[off:off+16])
	off += 16
	s.Height = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	copy(s.Successor[:], b[off:off+32])
	off += 32
	s.Timestamp = time.Unix(int64(binary.BigEndian.Uint64(b[off:off+8])), 0).UTC()
	off += 8
	copy(s.Representative[:], b[off:off+32])
	off += 32
	s.Epoch = latticetypes.Epoch(b[off])
	return s, nil
}
