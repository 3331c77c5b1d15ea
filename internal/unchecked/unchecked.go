// Package unchecked implements the dependency-keyed holding pool of spec
// §4.4: a block that fails ledger.process with gap_previous or
// gap_source is parked here until its dependency shows up in the
// ledger, at which point the block processor re-queues it.
package unchecked

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
)

// Source records where an unchecked block came from, so re-queued
// entries can be attributed correctly in logs and metrics.
type Source uint8

const (
	SourceLive Source = iota
	SourceBootstrap
	// SourceLocal marks a block generated by this node's own wallet
	// collaborator: already known-good, so the block processor routes it
	// to the forced queue and skips batch signature pre-verification.
	SourceLocal
)

// Entry is one parked block, keyed by the hash it is waiting on.
type Entry struct {
	Dependency latticetypes.Hash
	Block      blocks.Block
	Inserted   time.Time
	Source     Source
}

// Pool is a thin wrapper over kvstore.TableUnchecked. Every method takes
// the caller's transaction; Pool itself holds no state, matching the
// ledger package's own accessor style.
type Pool struct{}

func New() *Pool { return &Pool{} }

// key is dependency(32) || block_hash(32), so every entry waiting on the
// same dependency sorts contiguously and a scan starting at dependency
// finds them all without a secondary index.
func entryKey(dependency, blockHash latticetypes.Hash) []byte {
	buf := make([]byte, 64)
	copy(buf[:32], dependency[:])
	copy(buf[32:], blockHash[:])
	return buf
}

func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := blocks.Encode(&buf, e.Block); err != nil {
		return nil, err
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.Inserted.Unix()))
	buf.Write(ts[:])
	buf.WriteByte(byte(e.Source))
	return buf.Bytes(), nil
}

func decodeEntry(dependency latticetypes.Hash, raw []byte) (Entry, error) {
	if len(raw) < 1 {
		return Entry{}, latticetypes.ErrBadLength
	}
	t := blocks.Type(raw[0])
	r := bytes.NewReader(raw[1:])
	blk, err := blocks.Decode(r, t)
	if err != nil {
		return Entry{}, err
	}
	rest := make([]byte, r.Len())
	if _, err := r.Read(rest); err != nil {
		return Entry{}, err
	}
	if len(rest) != 9 {
		return Entry{}, latticetypes.ErrBadLength
	}
	return Entry{
		Dependency: dependency,
		Block:      blk,
		Inserted:   time.Unix(int64(binary.BigEndian.Uint64(rest[:8])), 0).UTC(),
		Source:     Source(rest[8]),
	}, nil
}

// Put parks b under dependency.
func (p *Pool) Put(tx kvstore.WriteTx, dependency latticetypes.Hash, b blocks.Block, source Source, now time.Time) error {
	raw, err := encodeEntry(Entry{Dependency: dependency, Block: b, Inserted: now, Source: source})
	if err != nil {
		return err
	}
	return tx.Put(kvstore.TableUnchecked, entryKey(dependency, b.Hash()), raw)
}

// Delete removes one specific parked block.
func (p *Pool) Delete(tx kvstore.WriteTx, dependency, blockHash latticetypes.Hash) error {
	return tx.Delete(kvstore.TableUnchecked, entryKey(dependency, blockHash))
}

// Dependents returns every block parked on dependency, per spec §4.4:
// "on each successful ledger insert of block B with hash H, ... scan
// unchecked rows where dependency = H".
func (p *Pool) Dependents(tx kvstore.Tx, dependency latticetypes.Hash) ([]Entry, error) {
	it := tx.Iterator(kvstore.TableUnchecked, dependency[:])
	defer it.Release()

	var out []Entry
	for it.Next() {
		key := it.Key()
		if len(key) < 32 || !bytes.Equal(key[:32], dependency[:]) {
			break
		}
		e, err := decodeEntry(dependency, it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, it.Error()
}

// CollectGarbage deletes every parked entry older than cutoff and returns
// how many it removed (spec §4.4).
func (p *Pool) CollectGarbage(tx kvstore.WriteTx, cutoff time.Time) (int, error) {
	it := tx.Iterator(kvstore.TableUnchecked, nil)
	defer it.Release()

	var stale [][]byte
	for it.Next() {
		if len(it.Key()) < 32 {
			continue
		}
		dep, err := latticetypes.HashFromBytes(it.Key()[:32])
		if err != nil {
			return 0, err
		}
		e, err := decodeEntry(dep, it.Value())
		if err != nil {
			return 0, err
		}
		if e.Inserted.Before(cutoff) {
			stale = append(stale, append([]byte{}, it.Key()...))
		}
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	for _, k := range stale {
		if err := tx.Delete(kvstore.TableUnchecked, k); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
