// Package active implements the election index of spec §4.9: a narrow
// in-memory record of which qualified roots are currently under active
// voting, so the block processor and network layer can ask "is this
// fork still contested" without either owning vote aggregation or
// quorum computation themselves (spec §4.9: those belong to a separate
// consensus layer, out of scope here).
//
// Grounded on the teacher's go-ethereum core/txpool-style "is this still
// pending" index combined with this module's own Feed/goroutine idiom
// already established in internal/confheight and internal/blockproc; the
// index itself is a mutex-guarded map paired with a recently-erased LRU so a
// just-confirmed root answers Active(false) without a lock-wide sweep
// (spec §4.9 ADDED, and spec §9 redesign note on bounded caches over ad
// hoc mutexes).
package active

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/latticenode/node/internal/blockproc"
	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/confheight"
	"github.com/latticenode/node/internal/latticeevent"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticemetrics"
	"github.com/latticenode/node/internal/latticetypes"
)

// QualifiedRoot identifies one contested fork position: the previous
// block it extends and the proof-of-work root of the candidates
// competing for that position (spec §4.9: "keyed by qualified_root =
// (previous, root)").
type QualifiedRoot struct {
	Previous latticetypes.Hash
	Root     latticetypes.Account
}

// Election tracks the candidate blocks seen for one qualified root and
// which one, if any, has been declared the winner.
type Election struct {
	Root      QualifiedRoot
	Blocks    map[latticetypes.Hash]blocks.Block
	Started   time.Time
	confirmed bool
}

// StartedEvent is sent on Index.Started when a new qualified root enters
// the active set, and when a new candidate hash is recorded for a root
// already active.
type StartedEvent struct {
	Root QualifiedRoot
	Hash latticetypes.Hash
}

// ConfirmedEvent is sent on Index.Confirmed when Finalize declares a
// winner and erases the election, just before the winning hash is
// handed to the confirmation-height processor.
type ConfirmedEvent struct {
	Root QualifiedRoot
	Hash latticetypes.Hash
}

const recentlyErasedSize = 4096

// Index is the core contract of spec §4.9: Start admits a block's
// qualified root into the active set (or records it as an additional
// fork candidate if already active), Active answers whether a block's
// root is still contested, and Erase removes it. Quorum/vote tallying
// is deliberately absent — Finalize is the one bridge to
// internal/confheight, called externally once a quorum is reached by
// whatever voting component supplies it.
type Index struct {
	mu        sync.Mutex
	elections map[QualifiedRoot]*Election

	recentlyErased *lru.Cache

	confHeight *confheight.Processor

	started   latticeevent.Feed
	confirmed latticeevent.Feed

	log latticelog.Logger

	activeGauge interface{ Update(int64) }
}

// New returns an Index that hands confirmed winners to confHeight via
// Confirm. confHeight may be nil for tests that only exercise the index
// itself.
func New(confHeight *confheight.Processor) *Index {
	cache, _ := lru.New(recentlyErasedSize)
	return &Index{
		elections:      make(map[QualifiedRoot]*Election),
		recentlyErased: cache,
		confHeight:     confHeight,
		log:            latticelog.New("pkg", "active"),
		activeGauge:    latticemetrics.Gauge("active/elections"),
	}
}

func qualifiedRootOf(b blocks.Block) QualifiedRoot {
	return QualifiedRoot{Previous: b.Previous(), Root: b.Root()}
}

// Started returns the feed of StartedEvent, fired whenever a new
// qualified root is admitted to the active set or a new fork candidate
// is recorded for one.
func (idx *Index) Started() *latticeevent.Feed { return &idx.started }

// Confirmed returns the feed of ConfirmedEvent, fired whenever Finalize
// declares a winner and erases its election.
func (idx *Index) Confirmed() *latticeevent.Feed { return &idx.confirmed }

// Start admits b's qualified root into the active set if it isn't
// already, or records b as an additional fork candidate for an election
// already in progress (spec §4.9: start(block)).
func (idx *Index) Start(b blocks.Block) {
	root := qualifiedRootOf(b)
	hash := b.Hash()

	idx.mu.Lock()
	el, ok := idx.elections[root]
	if !ok {
		el = &Election{Root: root, Blocks: make(map[latticetypes.Hash]blocks.Block), Started: time.Now()}
		idx.elections[root] = el
	}
	_, already := el.Blocks[hash]
	el.Blocks[hash] = b
	idx.activeGauge.Update(int64(len(idx.elections)))
	idx.mu.Unlock()

	if !ok || !already {
		idx.started.Send(StartedEvent{Root: root, Hash: hash})
	}
}

// Active reports whether b's qualified root still has an election in
// progress (spec §4.9: active(block) -> bool).
func (idx *Index) Active(b blocks.Block) bool {
	root := qualifiedRootOf(b)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.elections[root]
	return ok
}

// ActiveRoot is the QualifiedRoot-keyed variant of Active, for callers
// that already have a root without a concrete block in hand (e.g. the
// bootstrap client deciding whether a pulled fork is still contested).
func (idx *Index) ActiveRoot(root QualifiedRoot) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.elections[root]
	return ok
}

// RecentlyErased reports whether root was confirmed or erased recently
// enough to still be in the bounded recently-erased cache, letting a
// caller distinguish "never contested" from "just settled" without
// holding the index's lock during a lookup that found nothing.
func (idx *Index) RecentlyErased(root QualifiedRoot) bool {
	_, ok := idx.recentlyErased.Get(root)
	return ok
}

// Erase drops b's qualified root from the active set without declaring
// a winner, used when every candidate for a root is superseded or
// garbage-collected (spec §4.9: erase(block)).
func (idx *Index) Erase(b blocks.Block) {
	idx.eraseRoot(qualifiedRootOf(b))
}

func (idx *Index) eraseRoot(root QualifiedRoot) {
	idx.mu.Lock()
	delete(idx.elections, root)
	idx.activeGauge.Update(int64(len(idx.elections)))
	idx.mu.Unlock()
	idx.recentlyErased.Add(root, struct{}{})
}

// Finalize declares hash the winner of its qualified root's election,
// erases the election, and forwards hash to the confirmation-height
// processor. The caller (a quorum/vote-aggregation component, out of
// this package's scope per spec §4.9) is responsible for deciding when
// quorum has actually been reached.
func (idx *Index) Finalize(root QualifiedRoot, hash latticetypes.Hash) {
	idx.mu.Lock()
	el, ok := idx.elections[root]
	if ok {
		el.confirmed = true
	}
	idx.mu.Unlock()
	if !ok {
		return
	}

	idx.eraseRoot(root)
	idx.confirmed.Send(ConfirmedEvent{Root: root, Hash: hash})
	if idx.confHeight != nil {
		idx.confHeight.Confirm(hash)
	}
}

// Len reports the number of qualified roots currently under election,
// for metrics and tests.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.elections)
}

// WatchForks subscribes to a block processor's fork feed and starts an
// election for every reported fork, in its own goroutine until quit is
// closed. This is the one place internal/active reaches outside its own
// package, mirroring how internal/blockproc documents Forks as feeding
// "the active-transactions/election subsystem (spec §4.9)".
func (idx *Index) WatchForks(forks *latticeevent.Feed, quit <-chan struct{}) {
	ch := make(chan blockproc.ForkEvent, 64)
	sub := forks.Subscribe(ch)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-ch:
				idx.Start(ev.Block)
			case <-sub.Err():
				return
			case <-quit:
				return
			}
		}
	}()
}
