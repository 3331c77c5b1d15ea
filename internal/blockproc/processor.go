// Package blockproc implements the single block-processing worker of
// spec §4.3: batched signature verification feeding a serialized ledger
// write loop, with gap/fork handling delegated to the unchecked pool and
// the fork feed respectively.
package blockproc

import (
	"sync"
	"time"

	"github.com/JekaMas/workerpool"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticeevent"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticemetrics"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/unchecked"
)

// Options configures queue limits and the write-transaction time budget.
type Options struct {
	VerifyBatchSize   int
	WriteTimeBudget   time.Duration
	HalfFullThreshold int
	VerifyWorkers     int
}

func defaultOptions() Options {
	return Options{
		VerifyBatchSize:   256,
		WriteTimeBudget:   250 * time.Millisecond,
		HalfFullThreshold: 16384,
		VerifyWorkers:     4,
	}
}

type queueItem struct {
	block  blocks.Block
	source unchecked.Source
}

// ForkEvent is delivered on Processor.Forks when ledger.Process reports
// fork: a competing block for an already-occupied chain position, handed
// to the active-transactions/election subsystem (spec §4.9).
type ForkEvent struct {
	Block  blocks.Block
	Result ledger.ProcessResult
}

// Processor owns the three block queues (state_blocks, blocks, forced)
// and the single worker loop that drains them into the ledger.
type Processor struct {
	store     *kvstore.Store
	ledger    *ledger.Ledger
	unchecked *unchecked.Pool
	pool      *workerpool.WorkerPool
	log       latticelog.Logger
	opts      Options

	mu          sync.Mutex
	stateBlocks []queueItem
	queued      []queueItem
	forced      []queueItem

	forks latticeevent.Feed

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	progressCounter interface{ Inc(int64) }
	rejectCounter   interface{ Inc(int64) }
}

func New(store *kvstore.Store, l *ledger.Ledger, unc *unchecked.Pool, opts Options) *Processor {
	if opts.VerifyBatchSize == 0 {
		opts = defaultOptions()
	}
	workers := opts.VerifyWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Processor{
		store:     store,
		ledger:    l,
		unchecked: unc,
		pool:      workerpool.New(workers),
		log:       latticelog.New("pkg", "blockproc"),
		opts:      opts,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),

		progressCounter: latticemetrics.Counter("block_processor/progress"),
		rejectCounter:   latticemetrics.Counter("block_processor/rejected"),
	}
}

// Forks lets the election subsystem subscribe to competing blocks.
func (p *Processor) Forks() *latticeevent.Feed { return &p.forks }

// Add enqueues a block for processing. Legacy/state-non-local blocks are
// routed by type; SourceLocal blocks go straight to forced (spec §4.3:
// "forced queue bypasses signature re-verification for locally-generated
// blocks").
func (p *Processor) Add(b blocks.Block, source unchecked.Source) {
	p.mu.Lock()
	item := queueItem{block: b, source: source}
	switch {
	case source == unchecked.SourceLocal:
		p.forced = append(p.forced, item)
	case b.BlockType() == blocks.TypeState:
		p.stateBlocks = append(p.stateBlocks, item)
	default:
		p.queued = append(p.queued, item)
	}
	p.mu.Unlock()
	p.signal()
}

func (p *Processor) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// HalfFull reports whether the combined queue depth warrants
// back-pressuring bootstrap receive (spec §4.3).
func (p *Processor) HalfFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stateBlocks)+len(p.queued)+len(p.forced) >= p.opts.HalfFullThreshold
}

// Start runs the worker loop in its own goroutine.
func (p *Processor) Start() {
	go p.run()
}

// Stop signals the worker loop to exit and waits for it.
func (p *Processor) Stop() {
	close(p.quit)
	<-p.done
	p.pool.StopWait()
}

func (p *Processor) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.opts.WriteTimeBudget)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-p.wake:
		case <-ticker.C:
		}
		p.verifyStateBlocks()
		if err := p.drainAndCommit(); err != nil {
			p.log.Error("block processor commit failed", "err", err)
		}
	}
}

func (p *Processor) popBatch(q *[]queueItem, max int) []queueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(*q)
	if max > 0 && n > max {
		n = max
	}
	batch := append([]queueItem(nil), (*q)[:n]...)
	*q = (*q)[n:]
	return batch
}

// verifyStateBlocks drains up to VerifyBatchSize entries from
// state_blocks, checks their signatures on the worker pool, and promotes
// survivors into the ordinary blocks queue (spec §4.3 step 1).
func (p *Processor) verifyStateBlocks() {
	batch := p.popBatch(&p.stateBlocks, p.opts.VerifyBatchSize)
	if len(batch) == 0 {
		return
	}
	valid := make([]bool, len(batch))
	var wg sync.WaitGroup
	for i, it := range batch {
		i, it := i, it
		wg.Add(1)
		p.pool.Submit(func() {
			defer wg.Done()
			valid[i] = p.verifyStateSignature(it.block.(*blocks.StateBlock))
		})
	}
	wg.Wait()

	p.mu.Lock()
	for i, it := range batch {
		if valid[i] {
			p.queued = append(p.queued, it)
		} else {
			p.rejectCounter.Inc(1)
			p.log.Debug("state block failed batch signature check", "hash", it.block.Hash())
		}
	}
	p.mu.Unlock()
}

// verifyStateSignature is a fast pre-filter, not the authoritative check:
// ledger.Process re-verifies with full account context regardless.
func (p *Processor) verifyStateSignature(b *blocks.StateBlock) bool {
	if p.ledger.IsEpochLink(b.Link) && blocks.Verify(b, p.ledger.EpochSigner()) {
		return true
	}
	return blocks.Verify(b, b.Account)
}

// drainAndCommit opens one write transaction and processes forced, then
// queued, blocks within the configured time budget (spec §4.3 steps 2-4).
func (p *Processor) drainAndCommit() error {
	return p.store.Update(kvstore.WriterBlockProcessor, func(tx kvstore.WriteTx) error {
		deadline := time.Now().Add(p.opts.WriteTimeBudget)
		for {
			batch := p.popBatch(&p.forced, 1)
			if len(batch) == 0 {
				break
			}
			if err := p.processOne(tx, batch[0]); err != nil {
				return err
			}
			if time.Now().After(deadline) {
				return nil
			}
		}
		for time.Now().Before(deadline) {
			batch := p.popBatch(&p.queued, 1)
			if len(batch) == 0 {
				break
			}
			if err := p.processOne(tx, batch[0]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Processor) processOne(tx kvstore.WriteTx, it queueItem) error {
	hash := it.block.Hash()
	result, err := p.ledger.Process(tx, it.block)
	if err != nil {
		return err
	}

	switch result.Code {
	case ledger.Progress:
		p.progressCounter.Inc(1)
		deps, err := p.unchecked.Dependents(tx, hash)
		if err != nil {
			return err
		}
		for _, e := range deps {
			if err := p.unchecked.Delete(tx, hash, e.Block.Hash()); err != nil {
				return err
			}
			p.Add(e.Block, e.Source)
		}

	case ledger.GapPrevious:
		if err := p.unchecked.Put(tx, it.block.Previous(), it.block, it.source, time.Now()); err != nil {
			return err
		}

	case ledger.GapSource:
		if dep, ok := blocks.SourceLink(it.block); ok {
			if err := p.unchecked.Put(tx, dep, it.block, it.source, time.Now()); err != nil {
				return err
			}
		}

	case ledger.Fork:
		if _, err := p.forks.Send(ForkEvent{Block: it.block, Result: result}); err != nil {
			p.log.Debug("fork feed send failed", "err", err)
		}

	default:
		p.rejectCounter.Inc(1)
		p.log.Debug("block rejected", "hash", hash, "code", result.Code.String())
	}
	return nil
}
