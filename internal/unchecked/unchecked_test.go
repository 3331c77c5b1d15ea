package unchecked

import (
	"testing"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
)

func testHash(b byte) latticetypes.Hash {
	var h latticetypes.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestPutDependentsDelete(t *testing.T) {
	store, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	dep := testHash(1)
	blk := &blocks.ChangeBlock{PreviousHash: dep, Representative: latticetypes.AccountFromHash(testHash(2))}
	pool := New()
	now := time.Unix(1700000000, 0).UTC()

	err = store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		return pool.Put(tx, dep, blk, SourceLive, now)
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	var entries []Entry
	err = store.View(func(tx kvstore.Tx) error {
		var err error
		entries, err = pool.Dependents(tx, dep)
		return err
	})
	if err != nil {
		t.Fatalf("Dependents: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Block.Hash() != blk.Hash() {
		t.Fatalf("decoded block hash mismatch")
	}
	if entries[0].Source != SourceLive {
		t.Fatalf("expected SourceLive, got %v", entries[0].Source)
	}
	if !entries[0].Inserted.Equal(now) {
		t.Fatalf("expected inserted %v, got %v", now, entries[0].Inserted)
	}

	err = store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		return pool.Delete(tx, dep, blk.Hash())
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	err = store.View(func(tx kvstore.Tx) error {
		var err error
		entries, err = pool.Dependents(tx, dep)
		return err
	})
	if err != nil {
		t.Fatalf("Dependents after delete: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestCollectGarbage(t *testing.T) {
	store, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	pool := New()
	oldDep := testHash(3)
	oldBlk := &blocks.ChangeBlock{PreviousHash: oldDep, Representative: latticetypes.AccountFromHash(testHash(4))}
	freshDep := testHash(5)
	freshBlk := &blocks.ChangeBlock{PreviousHash: freshDep, Representative: latticetypes.AccountFromHash(testHash(6))}

	old := time.Unix(1000, 0).UTC()
	fresh := time.Unix(2000000000, 0).UTC()
	cutoff := time.Unix(1000000000, 0).UTC()

	err = store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		if err := pool.Put(tx, oldDep, oldBlk, SourceLive, old); err != nil {
			return err
		}
		return pool.Put(tx, freshDep, freshBlk, SourceLive, fresh)
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	var removed int
	err = store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		var err error
		removed, err = pool.CollectGarbage(tx, cutoff)
		return err
	})
	if err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	var remaining []Entry
	err = store.View(func(tx kvstore.Tx) error {
		var err error
		remaining, err = pool.Dependents(tx, freshDep)
		return err
	})
	if err != nil {
		t.Fatalf("Dependents: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected the fresh entry to survive, got %d entries", len(remaining))
	}
}
