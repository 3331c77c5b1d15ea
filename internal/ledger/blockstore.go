package ledger

import (
	"bytes"
	"fmt"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
)

// blockTableFor returns the table a block variant is stored in. State
// blocks split across v0/v1 by the owning account's epoch at the time of
// insertion; legacy variants have one table each (spec §4.1).
func blockTableFor(t blocks.Type, epoch latticetypes.Epoch) kvstore.Table {
	switch t {
	case blocks.TypeSend:
		return kvstore.TableSendBlocks
	case blocks.TypeReceive:
		return kvstore.TableReceiveBlocks
	case blocks.TypeOpen:
		return kvstore.TableOpenBlocks
	case blocks.TypeChange:
		return kvstore.TableChangeBlocks
	case blocks.TypeState:
		if epoch == latticetypes.Epoch1 {
			return kvstore.TableStateBlocksV1
		}
		return kvstore.TableStateBlocksV0
	default:
		return ""
	}
}

// blockIndexEntry records where a hash's row lives.
type blockIndexEntry struct {
	Type  blocks.Type
	Epoch latticetypes.Epoch
}

func (e blockIndexEntry) encode() []byte { return []byte{byte(e.Type), byte(e.Epoch)} }

func decodeBlockIndexEntry(b []byte) (blockIndexEntry, error) {
	if len(b) != 2 {
		return blockIndexEntry{}, latticetypes.ErrBadLength
	}
	return blockIndexEntry{Type: blocks.Type(b[0]), Epoch: latticetypes.Epoch(b[1])}, nil
}

// putBlock stores sb's block row and sideband. epoch selects the v0/v1
// table for State blocks (the owning account's epoch *after* this block
// is applied); it is ignored for legacy variants, which have one table
// each regardless of epoch.
func putBlock(tx kvstore.WriteTx, hash latticetypes.Hash, sb storedBlock, epoch latticetypes.Epoch) error {
	table := blockTableFor(sb.Block.BlockType(), epoch)
	if table == "" {
		return fmt.Errorf("ledger: putBlock: unhandled type %v", sb.Block.BlockType())
	}
	var buf bytes.Buffer
	if err := blocks.Encode(&buf, sb.Block); err != nil {
		return err
	}
	if err := sb.Sideband.Encode(&buf); err != nil {
		return err
	}
	if err := tx.Put(table, hash[:], buf.Bytes()); err != nil {
		return err
	}
	idx := blockIndexEntry{Type: sb.Block.BlockType(), Epoch: epoch}
	return tx.Put(kvstore.TableBlockIndex, hash[:], idx.encode())
}

func getBlock(tx kvstore.Tx, hash latticetypes.Hash) (storedBlock, bool, error) {
	idxRaw, err := tx.Get(kvstore.TableBlockIndex, hash[:])
	if err != nil {
		if kvstore.IsNotFound(err) {
			return storedBlock{}, false, nil
		}
		return storedBlock{}, false, err
	}
	idx, err := decodeBlockIndexEntry(idxRaw)
	if err != nil {
		return storedBlock{}, false, err
	}
	table := blockTableFor(idx.Type, idx.Epoch)
	raw, err := tx.Get(table, hash[:])
	if err != nil {
		if kvstore.IsNotFound(err) {
			return storedBlock{}, false, nil
		}
		return storedBlock{}, false, err
	}
	return decodeStoredBlock(idx.Type, raw)
}

func deleteBlock(tx kvstore.WriteTx, hash latticetypes.Hash) error {
	idxRaw, err := tx.Get(kvstore.TableBlockIndex, hash[:])
	if err != nil {
		if kvstore.IsNotFound(err) {
			return nil
		}
		return err
	}
	idx, err := decodeBlockIndexEntry(idxRaw)
	if err != nil {
		return err
	}
	table := blockTableFor(idx.Type, idx.Epoch)
	if err := tx.Delete(table, hash[:]); err != nil {
		return err
	}
	return tx.Delete(kvstore.TableBlockIndex, hash[:])
}

func decodeStoredBlock(t blocks.Type, raw []byte) (storedBlock, bool, error) {
	// raw starts with the 1-byte type prefix blocks.Encode writes; t, from
	// the block index, already names the type to decode.
	if len(raw) < 1 {
		return storedBlock{}, false, latticetypes.ErrBadLength
	}
	r := bytes.NewReader(raw[1:])
	blk, err := blocks.Decode(r, t)
	if err != nil {
		return storedBlock{}, false, err
	}
	// whatever remains is the sideband.
	rest := make([]byte, r.Len())
	if _, err := r.Read(rest); err != nil {
		return storedBlock{}, false, err
	}
	sb, err := blocks.DecodeSideband(rest)
	if err != nil {
		return storedBlock{}, false, err
	}
	return storedBlock{Block: blk, Sideband: sb}, true, nil
}

func blockExists(tx kvstore.Tx, hash latticetypes.Hash) (bool, error) {
	return tx.Has(kvstore.TableBlockIndex, hash[:])
}
