package kvstore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Tx is the read surface shared by read and write transactions.
type Tx interface {
	Get(table Table, key []byte) ([]byte, error)
	Has(table Table, key []byte) (bool, error)
	Count(table Table) (uint64, error)
	Iterator(table Table, start []byte) Iterator
	// MergedIterator presents tableV0 and tableV1 as one sorted view by
	// key, the way account/pending lookups must consider both epoch
	// generations without the caller juggling two cursors (spec §4.1).
	MergedIterator(tableV0, tableV1 Table, start []byte) Iterator
}

// WriteTx additionally allows mutation; it is only ever handed out one at
// a time across the whole Store (see writeQueue).
type WriteTx interface {
	Tx
	Put(table Table, key, value []byte) error
	Delete(table Table, key []byte) error
	Drop(table Table) error
}

// prefixScanner is the subset of leveldb.Snapshot / leveldb.Transaction
// used by countPrefix; both satisfy it.
type prefixScanner interface {
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// readTx wraps a leveldb.Snapshot: a stable point-in-time view, usable
// concurrently with other readers and with the single active writer.
type readTx struct {
	snap *leveldb.Snapshot
}

func (r *readTx) Get(table Table, key []byte) ([]byte, error) {
	return r.snap.Get(tableKey(table, key), nil)
}

func (r *readTx) Has(table Table, key []byte) (bool, error) {
	return r.snap.Has(tableKey(table, key), nil)
}

func (r *readTx) Count(table Table) (uint64, error) {
	return countPrefix(r.snap, table)
}

func (r *readTx) Iterator(table Table, start []byte) Iterator {
	return newPrefixIterator(r.snap, table, start)
}

func (r *readTx) MergedIterator(v0, v1 Table, start []byte) Iterator {
	return newMergedIterator(newPrefixIterator(r.snap, v0, start), newPrefixIterator(r.snap, v1, start))
}

func (r *readTx) release() { r.snap.Release() }

// writeTx wraps a leveldb.Transaction: a single serialized writer with
// read-your-writes visibility, committed atomically.
type writeTx struct {
	txn *leveldb.Transaction
}

func (w *writeTx) Get(table Table, key []byte) ([]byte, error) {
	return w.txn.Get(tableKey(table, key), nil)
}

func (w *writeTx) Has(table Table, key []byte) (bool, error) {
	return w.txn.Has(tableKey(table, key), nil)
}

func (w *writeTx) Count(table Table) (uint64, error) {
	return countPrefix(w.txn, table)
}

func (w *writeTx) Iterator(table Table, start []byte) Iterator {
	return newPrefixIterator(w.txn, table, start)
}

func (w *writeTx) MergedIterator(v0, v1 Table, start []byte) Iterator {
	return newMergedIterator(newPrefixIterator(w.txn, v0, start), newPrefixIterator(w.txn, v1, start))
}

func (w *writeTx) Put(table Table, key, value []byte) error {
	return w.txn.Put(tableKey(table, key), value, nil)
}

func (w *writeTx) Delete(table Table, key []byte) error {
	return w.txn.Delete(tableKey(table, key), nil)
}

func (w *writeTx) Drop(table Table) error {
	it := w.txn.NewIterator(util.BytesPrefix(tablePrefix(table)), nil)
	defer it.Release()
	for it.Next() {
		if err := w.txn.Delete(append([]byte{}, it.Key()...), nil); err != nil {
			return err
		}
	}
	return it.Error()
}

func countPrefix(r prefixScanner, table Table) (uint64, error) {
	it := r.NewIterator(util.BytesPrefix(tablePrefix(table)), nil)
	defer it.Release()
	var n uint64
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// View runs fn against a consistent read snapshot. Any number of Views may
// run concurrently with each other and with the single Update in flight.
func (s *Store) View(fn func(tx Tx) error) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return err
	}
	rtx := &readTx{snap: snap}
	defer rtx.release()
	return fn(rtx)
}

// Update runs fn inside a single serialized write transaction tagged with
// kind for diagnostics (spec §4.1, §5). fn's error aborts (discards) the
// transaction; a nil error commits it.
func (s *Store) Update(kind WriterKind, fn func(tx WriteTx) error) error {
	s.writeq.acquire(kind)
	defer s.writeq.release()

	txn, err := s.db.OpenTransaction()
	if err != nil {
		return err
	}
	wtx := &writeTx{txn: txn}
	if err := fn(wtx); err != nil {
		txn.Discard()
		return err
	}
	return txn.Commit()
}

// WriteHolder reports which writer_kind currently holds the write lock,
// for status/diagnostic surfaces.
func (s *Store) WriteHolder() (WriterKind, bool) {
	kind, _, held := s.writeq.Holder()
	return kind, held
}
