// Package kvstore implements the transactional, ordered key-value
// abstraction of spec §4.1: tables, read and write transactions, ordered
// iterators (including a merged v0/v1 view), and a schema-version upgrade
// gate. The engine is syndtr/goleveldb, the same library go-ethereum
// itself ships as one of its ethdb backends.
package kvstore

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/gofrs/flock"

	"github.com/latticenode/node/internal/latticelog"
)

// ErrNotFound is the sentinel "row absent" outcome. Per spec §4.1, Get
// returning this is success, not failure; every other error is fatal.
var ErrNotFound = leveldb.ErrNotFound

// Store owns the physical database handle, the directory lock, an
// optional fastcache instance, and the process-wide write queue that
// serializes writers (spec §5 Shared-resource policy).
type Store struct {
	db    *leveldb.DB
	cache *fastcache.Cache
	lock  *flock.Flock
	log   latticelog.Logger

	writeq *writeQueue
}

// Options configures a Store. ReadCacheBytes sizes the fastcache instance
// allocated alongside the database; zero leaves it unallocated. Reads do
// not consult the cache: every Get goes to leveldb.
type Options struct {
	ReadCacheBytes int
}

// Open opens (creating if absent) a durable store at dir, taking an
// exclusive flock so two node processes cannot share one data directory.
func Open(dir string, opts Options) (*Store, error) {
	fl := flock.New(fmt.Sprintf("%s/LOCK", dir))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("kvstore: acquiring data dir lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("kvstore: data dir %s is locked by another process", dir)
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("kvstore: open %s: %w", dir, err)
	}
	return newStore(db, fl, opts), nil
}

// OpenMemory opens an in-memory store, used by unit and scenario tests
// (spec §8) in place of a mock — the same way go-ethereum's own tests
// prefer an in-memory leveldb handle over a hand-rolled fake.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{})
	if err != nil {
		return nil, err
	}
	return newStore(db, nil, Options{}), nil
}

func newStore(db *leveldb.DB, fl *flock.Flock, opts Options) *Store {
	s := &Store{
		db:     db,
		lock:   fl,
		log:    latticelog.New("pkg", "kvstore"),
		writeq: newWriteQueue(),
	}
	if opts.ReadCacheBytes > 0 {
		s.cache = fastcache.New(opts.ReadCacheBytes)
	}
	return s
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		s.lock.Unlock()
	}
	return err
}

// IsNotFound reports whether err is the "row absent" outcome.
func IsNotFound(err error) bool {
	return err == ErrNotFound || err == errors.ErrNotFound
}
