// Package ledger is the single authority for applying a block to
// persistent state: the heart of spec §4.2. It owns account_info,
// pending, frontier and block-row tables and enforces every invariant in
// spec §3.
package ledger

import (
	"encoding/binary"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticetypes"
)

// Local aliases keep this package's signatures uncluttered.
type (
	Hash    = latticetypes.Hash
	Account = latticetypes.Account
	Amount  = latticetypes.Amount
	Epoch   = latticetypes.Epoch
)

// ZeroAmount is the zero value of Amount, re-exported for brevity.
var ZeroAmount = latticetypes.ZeroAmount

// AccountInfo is the per-account state of spec §3.
type AccountInfo struct {
	Head                latticetypes.Hash
	OpenBlock            latticetypes.Hash
	RepresentativeBlock  latticetypes.Hash
	// Representative denormalizes the representative account named by
	// RepresentativeBlock, avoiding a second block lookup on every
	// weight computation (spec §4.2 weight).
	Representative      latticetypes.Account
	Balance              latticetypes.Amount
	ModifiedTimestamp    time.Time
	BlockCount           uint64
	Epoch                latticetypes.Epoch
}

const accountInfoWireSize = 32 + 32 + 32 + 32 + 16 + 8 + 8 + 1

func (a AccountInfo) encode() []byte {
	buf := make([]byte, accountInfoWireSize)
	off := 0
	copy(buf[off:], a.Head[:])
	off += 32
	copy(buf[off:], a.OpenBlock[:])
	off += 32
	copy(buf[off:], a.RepresentativeBlock[:])
	off += 32
	copy(buf[off:], a.Representative[:])
	off += 32
	copy(buf[off:], a.Balance[:])
	off += 16
	binary.BigEndian.PutUint64(buf[off:], uint64(a.ModifiedTimestamp.Unix()))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], a.BlockCount)
	off += 8
	buf[off] = byte(a.Epoch)
	return buf
}

func decodeAccountInfo(b []byte) (AccountInfo, error) {
	var a AccountInfo
	if len(b) != accountInfoWireSize {
		return a, latticetypes.ErrBadLength
	}
	off := 0
	copy(a.Head[:], b[off:off+32])
	off += 32
	copy(a.OpenBlock[:], b[off:off+32])
	off += 32
	copy(a.RepresentativeBlock[:], b[off:off+32])
	off += 32
	copy(a.Representative[:], b[off:off+32])
	off += 32
	copy(a.Balance[:], b[off:off+16])
	off += 16
	a.ModifiedTimestamp = time.Unix(int64(binary.BigEndian.Uint64(b[off:off+8])), 0).UTC()
	off += 8
	a.BlockCount = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	a.Epoch = latticetypes.Epoch(b[off])
	return a, nil
}

// epochSuffix returns the "v0"/"v1" table-name suffix (accounts_v0 vs
// accounts_v1, pending_v0 vs pending_v1) for an account's (or a pending
// entry's) epoch tag.
func epochSuffix(e latticetypes.Epoch) string {
	if e == latticetypes.Epoch1 {
		return "v1"
	}
	return "v0"
}

// PendingKey identifies one pending (unreceived send) entry: spec §3 key
// (destination_account, send_hash).
type PendingKey struct {
	Destination latticetypes.Account
	SendHash    latticetypes.Hash
}

func (k PendingKey) encode() []byte {
	buf := make([]byte, 64)
	copy(buf[:32], k.Destination[:])
	copy(buf[32:], k.SendHash[:])
	return buf
}

// PendingEntry is the value stored at a PendingKey.
type PendingEntry struct {
	Source latticetypes.Account
	Amount latticetypes.Amount
	Epoch  latticetypes.Epoch
}

const pendingEntryWireSize = 32 + 16 + 1

func (p PendingEntry) encode() []byte {
	buf := make([]byte, pendingEntryWireSize)
	copy(buf[:32], p.Source[:])
	copy(buf[32:48], p.Amount[:])
	buf[48] = byte(p.Epoch)
	return buf
}

func decodePendingEntry(b []byte) (PendingEntry, error) {
	var p PendingEntry
	if len(b) != pendingEntryWireSize {
		return p, latticetypes.ErrBadLength
	}
	copy(p.Source[:], b[:32])
	copy(p.Amount[:], b[32:48])
	p.Epoch = latticetypes.Epoch(b[48])
	return p, nil
}

// ConfirmationHeightInfo is the per-account cementation marker of spec §3.
type ConfirmationHeightInfo struct {
	Height uint64
	Frontier latticetypes.Hash // cemented frontier hash at Height
}

const confHeightWireSize = 8 + 32

func (c ConfirmationHeightInfo) encode() []byte {
	buf := make([]byte, confHeightWireSize)
	binary.BigEndian.PutUint64(buf[:8], c.Height)
	copy(buf[8:], c.Frontier[:])
	return buf
}

func decodeConfirmationHeightInfo(b []byte) (ConfirmationHeightInfo, error) {
	var c ConfirmationHeightInfo
	if len(b) != confHeightWireSize {
		return c, latticetypes.ErrBadLength
	}
	c.Height = binary.BigEndian.Uint64(b[:8])
	copy(c.Frontier[:], b[8:])
	return c, nil
}

// storedBlock is the (block, sideband) pair persisted for every committed
// block row.
type storedBlock struct {
	Block    blocks.Block
	Sideband blocks.Sideband
}
