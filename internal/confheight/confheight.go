// Package confheight implements the confirmation-height processor of
// spec §4.5: it turns hashes the election subsystem deems confirmed into
// a monotonically advancing per-account cementation marker, recursively
// cementing any receive/open source chain first.
package confheight

import (
	"fmt"
	"sync"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticeevent"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticemetrics"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
)

type (
	Hash    = latticetypes.Hash
	Account = latticetypes.Account
)

// CementedEvent is fired, in commit order, for every block newly brought
// under confirmation_height (spec §4.5 step 4).
type CementedEvent struct {
	Hash    Hash
	Account Account
	Amount  ledger.Amount
	IsSend  bool
	Height  uint64
}

// Processor serializes confirmation requests onto a dedicated goroutine
// that shares the store's write queue with the block processor, so a
// block being cemented is never concurrently rolled back (spec §4.5
// Concurrency).
type Processor struct {
	store  *kvstore.Store
	ledger *ledger.Ledger
	log    latticelog.Logger

	cemented latticeevent.Feed

	mu    sync.Mutex
	queue []Hash

	invalidBlock interface{ Inc(int64) }

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func New(store *kvstore.Store, l *ledger.Ledger) *Processor {
	return &Processor{
		store:        store,
		ledger:       l,
		log:          latticelog.New("pkg", "confheight"),
		wake:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		invalidBlock: latticemetrics.Counter("confirmation_height/invalid_block"),
	}
}

// Cemented lets observers subscribe to every CementedEvent.
func (p *Processor) Cemented() *latticeevent.Feed { return &p.cemented }

// Confirm enqueues hash for cementation; safe to call from any goroutine.
func (p *Processor) Confirm(hash Hash) {
	p.mu.Lock()
	p.queue = append(p.queue, hash)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) Start() { go p.run() }

func (p *Processor) Stop() {
	close(p.quit)
	<-p.done
}

func (p *Processor) run() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case <-p.wake:
		}
		for {
			hash, ok := p.pop()
			if !ok {
				break
			}
			if err := p.cement(hash); err != nil {
				p.log.Error("confirmation height commit failed", "hash", hash, "err", err)
			}
		}
	}
}

func (p *Processor) pop() (Hash, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Hash{}, false
	}
	h := p.queue[0]
	p.queue = p.queue[1:]
	return h, true
}

// cement runs one confirmation request under a single write transaction.
func (p *Processor) cement(hash Hash) error {
	return p.store.Update(kvstore.WriterConfirmationHeight, func(tx kvstore.WriteTx) error {
		_, sb, ok, err := p.ledger.Block(tx, hash)
		if err != nil {
			return err
		}
		if !ok {
			// Rolled back between the election's confirm signal and our
			// write transaction acquiring the lock (spec §4.5 invariant).
			p.invalidBlock.Inc(1)
			return nil
		}

		current, err := p.ledger.ConfirmationHeight(tx, sb.Account)
		if err != nil {
			return err
		}
		if sb.Height <= current.Height {
			return nil
		}

		order, err := p.buildCementOrder(tx, hash)
		if err != nil {
			return err
		}

		heights := map[Account]uint64{}
		frontiers := map[Account]Hash{}
		for _, h := range order {
			_, hsb, ok, err := p.ledger.Block(tx, h)
			if err != nil {
				return err
			}
			if !ok {
				p.invalidBlock.Inc(1)
				return nil
			}
			if hsb.Height > heights[hsb.Account] {
				heights[hsb.Account] = hsb.Height
				frontiers[hsb.Account] = h
			}
		}
		for account, height := range heights {
			if err := p.ledger.SetConfirmationHeight(tx, account, ledger.ConfirmationHeightInfo{
				Height:   height,
				Frontier: frontiers[account],
			}); err != nil {
				return err
			}
		}

		for _, h := range order {
			cblk, csb, ok, err := p.ledger.Block(tx, h)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			amount, _, err := p.ledger.Amount(tx, h)
			if err != nil {
				return err
			}
			isSend, err := p.isSendBlock(tx, cblk)
			if err != nil {
				return err
			}
			if _, err := p.cemented.Send(CementedEvent{
				Hash:    h,
				Account: csb.Account,
				Amount:  amount,
				IsSend:  isSend,
				Height:  csb.Height,
			}); err != nil {
				p.log.Debug("cemented feed send failed", "err", err)
			}
		}
		return nil
	})
}

type frame struct {
	hash           Hash
	childrenPushed bool
}

// buildCementOrder performs the depth-first walk of spec §4.5 steps 2-3
// with an explicit stack: every block between the account's current
// confirmation height and root, plus (recursively) the source chain of
// any receive/open found along the way, in dependency-first order.
func (p *Processor) buildCementOrder(tx kvstore.Tx, root Hash) ([]Hash, error) {
	var order []Hash
	seen := map[Hash]bool{}
	stack := []frame{{hash: root}}

	for len(stack) > 0 {
		idx := len(stack) - 1
		h := stack[idx].hash

		if seen[h] {
			stack = stack[:idx]
			continue
		}

		blk, sb, ok, err := p.ledger.Block(tx, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("confheight: missing block %s", h)
		}

		confInfo, err := p.ledger.ConfirmationHeight(tx, sb.Account)
		if err != nil {
			return nil, err
		}
		if confInfo.Height >= sb.Height {
			seen[h] = true
			stack = stack[:idx]
			continue
		}

		if !stack[idx].childrenPushed {
			stack[idx].childrenPushed = true
			if !blk.Previous().IsZero() {
				stack = append(stack, frame{hash: blk.Previous()})
			}
			if src, ok, err := p.sourceDependency(tx, blk, sb); err != nil {
				return nil, err
			} else if ok {
				stack = append(stack, frame{hash: src})
			}
			continue
		}

		seen[h] = true
		order = append(order, h)
		stack = stack[:idx]
	}
	return order, nil
}

// sourceDependency returns the source-block hash a receive/open block
// depends on, so it can be cemented first; it must be cemented before a
// block depending on it (spec §4.5 step 3).
func (p *Processor) sourceDependency(tx kvstore.Tx, blk blocks.Block, sb blocks.Sideband) (Hash, bool, error) {
	switch v := blk.(type) {
	case *blocks.ReceiveBlock:
		return v.Source, true, nil
	case *blocks.OpenBlock:
		// The genesis open block has a zero source and no dependency.
		return v.Source, !v.Source.IsZero(), nil
	case *blocks.StateBlock:
		isOpen := v.PreviousHash.IsZero()
		prevBalance := ledger.ZeroAmount
		if !isOpen {
			_, prevSb, ok, err := p.ledger.Block(tx, v.PreviousHash)
			if err != nil {
				return Hash{}, false, err
			}
			if ok {
				prevBalance = prevSb.Balance
			}
		}
		subtype := v.Subtype(prevBalance, isOpen, p.ledger.EpochLink())
		if subtype == blocks.StateSubtypeReceive || subtype == blocks.StateSubtypeOpen {
			return v.Link, true, nil
		}
	}
	return Hash{}, false, nil
}

// isSendBlock reports whether blk moved value out of its own account,
// used to populate CementedEvent.IsSend for observers.
func (p *Processor) isSendBlock(tx kvstore.Tx, blk blocks.Block) (bool, error) {
	switch v := blk.(type) {
	case *blocks.SendBlock:
		return true, nil
	case *blocks.StateBlock:
		isOpen := v.PreviousHash.IsZero()
		prevBalance := ledger.ZeroAmount
		if !isOpen {
			_, prevSb, ok, err := p.ledger.Block(tx, v.PreviousHash)
			if err != nil {
				return false, err
			}
			if ok {
				prevBalance = prevSb.Balance
			}
		}
		subtype := v.Subtype(prevBalance, isOpen, p.ledger.EpochLink())
		return subtype == blocks.StateSubtypeSend, nil
	default:
		return false, nil
	}
}
