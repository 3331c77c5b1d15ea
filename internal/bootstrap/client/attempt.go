// Package client implements the bootstrap attempt state machine of spec
// §4.6: a node catching up to peers drives one Attempt through legacy
// frontier comparison, lazy hash walking, or wallet-seeded pending pulls.
//
// The original (nano::bootstrap_attempt and friends) chains the next
// step from inside each asio completion handler, so a single "attempt"
// is really a graph of nested callbacks with a shared_ptr keeping each
// frame alive. Per spec §9's redesign note we replace that with an
// explicit state machine driven by an ordinary goroutine: every
// suspension point (connect, frontier read, pull timeout) is a blocking
// call or a select, not a continuation.
package client

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/google/uuid"

	"github.com/latticenode/node/internal/blockproc"
	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticeevent"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticemetrics"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/netp"
	"github.com/latticenode/node/internal/unchecked"
)

// Mode selects the pull strategy (spec §4.6).
type Mode int

const (
	ModeLegacy Mode = iota
	ModeLazy
	ModeWalletLazy
)

func (m Mode) String() string {
	switch m {
	case ModeLazy:
		return "lazy"
	case ModeWalletLazy:
		return "wallet_lazy"
	default:
		return "legacy"
	}
}

const (
	connectionScaleTargetBlocks = 50000.0
	minBlocksPerSecond          = 10.0
	slowPeerElapsed             = 30 * time.Second
	legacyAttemptTimeout        = 30 * time.Minute
	lazyAttemptTimeout          = 48 * time.Hour
	baseRetryLimit              = 16
)

// Dialer is the subset of *netp.Server an attempt needs to open outbound
// bootstrap connections; narrowed to ease testing with a fake.
type Dialer interface {
	Dial(ctx context.Context, addr string) (*netp.Channel, error)
}

// StartedEvent / StoppedEvent are sent on Attempt's event feeds so the
// node's status endpoint (and tests) can observe attempt lifecycle
// without polling.
type StartedEvent struct {
	ID   uuid.UUID
	Mode Mode
}

type StoppedEvent struct {
	ID        uuid.UUID
	Mode      Mode
	Processed uint64
	Err       error
}

// pullTarget is one outstanding frontier-comparison or lazy-hash pull.
type pullTarget struct {
	account  latticetypes.Account // legacy: whose chain to pull
	start    latticetypes.Hash    // legacy: frontier to pull from (zero = from open)
	end      latticetypes.Hash    // legacy: known-good stop hash
	lazyHash latticetypes.Hash    // lazy: hash to fetch directly
	retries  int
}

// Attempt drives one bootstrap cycle against a peer set.
type Attempt struct {
	id   uuid.UUID
	mode Mode

	dialer Dialer
	peers  []string

	store    *kvstore.Store
	ledger   *ledger.Ledger
	proc     *blockproc.Processor
	log      latticelog.Logger
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	maxConns int64
	opts     Options

	mu           sync.Mutex
	pullQueue    []pullTarget
	lazyKeys     map[latticetypes.Hash]struct{}
	lazyStopped  int
	walletAccounts map[latticetypes.Account]struct{}
	processed    uint64

	started latticeevent.Feed
	stopped latticeevent.Feed

	processedMeter interface{ Mark(int64) }
}

// Options configures connection-pool scaling and bandwidth shaping
// (spec §5 Configuration surface: bootstrap_connections[_max],
// bandwidth_limit).
type Options struct {
	BootstrapConnections    int
	BootstrapConnectionsMax int
	BandwidthLimitBytesSec  int64
	LazyMaxPullBlocks       uint32
	LazyMaxStopped          uint32
}

func New(mode Mode, peers []string, dialer Dialer, store *kvstore.Store, l *ledger.Ledger, proc *blockproc.Processor, opts Options) *Attempt {
	maxConns := int64(opts.BootstrapConnectionsMax)
	if maxConns <= 0 {
		maxConns = 64
	}
	limit := rate.Limit(opts.BandwidthLimitBytesSec)
	if opts.BandwidthLimitBytesSec <= 0 {
		limit = rate.Inf
	}
	return &Attempt{
		id:             uuid.New(),
		mode:           mode,
		dialer:         dialer,
		peers:          peers,
		store:          store,
		ledger:         l,
		proc:           proc,
		log:            latticelog.New("pkg", "bootstrap_client", "mode", mode.String()),
		limiter:        rate.NewLimiter(limit, int(limit)+1),
		sem:            semaphore.NewWeighted(maxConns),
		maxConns:       maxConns,
		opts:           opts,
		lazyKeys:       make(map[latticetypes.Hash]struct{}),
		walletAccounts:  make(map[latticetypes.Account]struct{}),
		processedMeter: latticemetrics.Meter("bootstrap/blocks_per_second"),
	}
}

func (a *Attempt) Started() *latticeevent.Feed { return &a.started }
func (a *Attempt) Stopped() *latticeevent.Feed { return &a.stopped }

// AddLazyKey seeds the lazy hash frontier, used both for bootstrap_lazy
// RPCs and for hashes the legacy pass discovers it cannot resolve.
func (a *Attempt) AddLazyKey(h latticetypes.Hash) {
	a.mu.Lock()
	a.lazyKeys[h] = struct{}{}
	a.mu.Unlock()
}

// targetConnections scales linearly from bootstrap_connections to
// bootstrap_connections_max as the remaining pull count approaches
// connectionScaleTargetBlocks (spec §4.6 step 1).
func targetConnections(pullsRemaining int, min, max int) int {
	if max <= min {
		return min
	}
	frac := float64(pullsRemaining) / connectionScaleTargetBlocks
	if frac > 1 {
		frac = 1
	}
	n := min + int(math.Round(frac*float64(max-min)))
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

// Run drives the attempt to completion or until ctx is cancelled,
// returning the terminal error (nil on a clean drain).
func (a *Attempt) Run(ctx context.Context) error {
	a.started.Send(StartedEvent{ID: a.id, Mode: a.mode})

	timeout := legacyAttemptTimeout
	if a.mode != ModeLegacy {
		timeout = lazyAttemptTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var runErr error
	switch a.mode {
	case ModeLegacy:
		runErr = a.runLegacy(runCtx)
	case ModeLazy:
		runErr = a.runLazy(runCtx)
	case ModeWalletLazy:
		runErr = a.runWalletLazy(runCtx)
	}

	a.stopped.Send(StoppedEvent{ID: a.id, Mode: a.mode, Processed: a.processed, Err: runErr})
	return runErr
}

// runLegacy performs a frontier scan against every peer (each peer's
// frontier stream is read by its own goroutine, since they are
// independent), then pulls every account whose frontier disagrees with
// our own. Up to three full passes run if lazy hashes were injected
// along the way (spec §4.6 Transitions).
func (a *Attempt) runLegacy(ctx context.Context) error {
	for pass := 0; pass < 3; pass++ {
		if err := a.frontierScan(ctx); err != nil {
			return err
		}
		if err := a.drainPullQueue(ctx); err != nil {
			return err
		}
		a.mu.Lock()
		hasLazy := len(a.lazyKeys) > 0
		a.mu.Unlock()
		if !hasLazy {
			break
		}
		if err := a.runLazy(ctx); err != nil {
			return err
		}
	}
	return nil
}

// frontierScan requests every peer's full frontier table and enqueues a
// pull for any account whose reported head differs from our own
// (spec §4.6 step 2; original: frontier_req_client).
func (a *Attempt) frontierScan(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range a.peers {
		peer := peer
		g.Go(func() error {
			return a.scanOnePeer(gctx, peer)
		})
	}
	return g.Wait()
}

func (a *Attempt) scanOnePeer(ctx context.Context, peer string) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer a.sem.Release(1)

	ch, err := a.dialer.Dial(ctx, peer)
	if err != nil {
		a.log.Warn("frontier dial failed", "peer", peer, "err", err)
		return nil // a single unreachable peer does not fail the whole scan
	}
	defer ch.Close()

	frontiers, err := requestFrontiers(ctx, ch)
	if err != nil {
		a.log.Warn("frontier request failed", "peer", peer, "err", err)
		return nil
	}

	return a.store.View(func(tx kvstore.Tx) error {
		for _, f := range frontiers {
			ourHead, ok, err := a.ledger.Latest(tx, f.Account)
			if err != nil {
				return err
			}
			if !ok || ourHead != f.Head {
				// end is the hash we already have (or zero, pulling to the
				// open block); the peer's reported head is only used to
				// decide whether this account needs pulling at all.
				a.mu.Lock()
				a.pullQueue = append(a.pullQueue, pullTarget{account: f.Account, start: ourHead, end: ourHead})
				a.mu.Unlock()
			}
		}
		return nil
	})
}

// drainPullQueue pulls every queued account chain, scaling the worker
// pool per targetConnections and forcing out peers that fall below the
// minimum block rate (spec §4.6 step 1: slow peers >30s and <10 blocks/s
// are force-stopped).
func (a *Attempt) drainPullQueue(ctx context.Context) error {
	min := 4
	if a.maxConns < int64(min) {
		min = int(a.maxConns)
	}
	for {
		a.mu.Lock()
		remaining := len(a.pullQueue)
		a.mu.Unlock()
		if remaining == 0 {
			return nil
		}

		workers := targetConnections(remaining, min, int(a.maxConns))
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < workers; i++ {
			g.Go(func() error { return a.pullWorker(gctx) })
		}
		if err := g.Wait(); err != nil {
			return err
		}

		a.mu.Lock()
		stillRemaining := len(a.pullQueue)
		a.mu.Unlock()
		if stillRemaining == remaining {
			// no progress this round: every worker exhausted the queue
			// without being able to drain it further (peer unreachable).
			return nil
		}
	}
}

func (a *Attempt) pullWorker(ctx context.Context) error {
	for {
		target, ok := a.popPull()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.pullOne(ctx, target); err != nil {
			a.requeue(target, err)
		}
	}
}

func (a *Attempt) popPull() (pullTarget, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pullQueue) == 0 {
		return pullTarget{}, false
	}
	t := a.pullQueue[0]
	a.pullQueue = a.pullQueue[1:]
	return t, true
}

func (a *Attempt) requeue(t pullTarget, cause error) {
	limit := baseRetryLimit + int(a.processed/10000)
	if a.mode != ModeLegacy {
		limit *= 2
	}
	if t.retries >= limit {
		a.log.Warn("pull abandoned after retry limit", "account", t.account, "err", cause)
		return
	}
	t.retries++
	a.mu.Lock()
	a.pullQueue = append(a.pullQueue, t)
	a.mu.Unlock()
}

func (a *Attempt) pullOne(ctx context.Context, t pullTarget) error {
	peer := a.peers[0]
	if len(a.peers) > 1 {
		peer = a.peers[t.retries%len(a.peers)]
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer a.sem.Release(1)

	ch, err := a.dialer.Dial(ctx, peer)
	if err != nil {
		return err
	}
	defer ch.Close()

	start := time.Now()
	count := 0
	err = bulkPull(ctx, ch, t.account, t.end, a.limiter, func(b blocks.Block) error {
		a.proc.Add(b, unchecked.SourceBootstrap)
		count++
		a.processed++
		a.processedMeter.Mark(1)
		return nil
	})
	elapsed := time.Since(start)
	if elapsed > slowPeerElapsed && float64(count)/elapsed.Seconds() < minBlocksPerSecond {
		ch.Close()
	}
	return err
}

// runLazy walks the dependency graph forward from the seeded lazy hash
// set, fetching one block at a time and enqueuing whichever of its
// source/link/previous hashes are unknown (spec §4.6 Lazy mode).
func (a *Attempt) runLazy(ctx context.Context) error {
	peer := a.peers[0]
	maxPulls := a.opts.LazyMaxPullBlocks
	for {
		if maxPulls != 0 && a.processed >= uint64(maxPulls) {
			return nil
		}
		h, ok := a.popLazy()
		if !ok {
			return nil
		}
		a.mu.Lock()
		stopped := a.lazyStopped
		a.mu.Unlock()
		if uint32(stopped) >= maxLazyStopped(a) {
			return fmt.Errorf("bootstrap: lazy_max_stopped reached")
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ch, err := a.dialer.Dial(ctx, peer)
		if err != nil {
			a.bumpLazyStopped()
			continue
		}
		b, err := bulkPullSingle(ctx, ch, h)
		ch.Close()
		if err != nil {
			a.bumpLazyStopped()
			continue
		}
		a.proc.Add(b, unchecked.SourceBootstrap)
		a.processed++
		a.processedMeter.Mark(1)
		a.enqueueDependencies(b)
	}
}

func maxLazyStopped(a *Attempt) uint32 {
	if a.opts.LazyMaxStopped == 0 {
		return 256
	}
	return a.opts.LazyMaxStopped
}

func (a *Attempt) bumpLazyStopped() {
	a.mu.Lock()
	a.lazyStopped++
	a.mu.Unlock()
}

func (a *Attempt) popLazy() (latticetypes.Hash, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for h := range a.lazyKeys {
		delete(a.lazyKeys, h)
		return h, true
	}
	return latticetypes.Hash{}, false
}

// enqueueDependencies applies spec §4.6's lazy state-block balance
// heuristic: if balance <= previous_balance the link is a destination
// (no dependency to fetch); otherwise link is a source hash.
func (a *Attempt) enqueueDependencies(b blocks.Block) {
	switch v := b.(type) {
	case *blocks.ReceiveBlock:
		a.AddLazyKey(v.Source)
		if !v.PreviousHash.IsZero() {
			a.AddLazyKey(v.PreviousHash)
		}
	case *blocks.OpenBlock:
		a.AddLazyKey(v.Source)
	case *blocks.ChangeBlock:
		if !v.PreviousHash.IsZero() {
			a.AddLazyKey(v.PreviousHash)
		}
	case *blocks.SendBlock:
		if !v.PreviousHash.IsZero() {
			a.AddLazyKey(v.PreviousHash)
		}
	case *blocks.StateBlock:
		if !v.PreviousHash.IsZero() {
			a.AddLazyKey(v.PreviousHash)
		}
		if v.Link.IsZero() {
			return
		}
		isDestination := a.isLikelySend(v)
		if !isDestination {
			a.AddLazyKey(v.Link)
		}
	}
}

// isLikelySend asks the ledger for the previous block's balance; if the
// previous block is itself unknown the heuristic cannot decide and the
// link is conservatively treated as a dependency (spec §9 Open Question:
// "can mis-classify when the previous block is itself unknown").
func (a *Attempt) isLikelySend(v *blocks.StateBlock) bool {
	if v.PreviousHash.IsZero() {
		return false
	}
	var prevBalance latticetypes.Amount
	found := false
	a.store.View(func(tx kvstore.Tx) error {
		_, sb, ok, err := a.ledger.Block(tx, v.PreviousHash)
		if err != nil || !ok {
			return nil
		}
		prevBalance = sb.Balance
		found = true
		return nil
	})
	if !found {
		return false
	}
	return v.BalanceAfter.Cmp(prevBalance) <= 0
}

// runWalletLazy requests pending entries for a seeded account set via
// bulk_pull_account, adding every unknown send hash to the lazy set
// before falling into the same walk as runLazy (spec §4.6 Wallet lazy
// mode).
func (a *Attempt) runWalletLazy(ctx context.Context) error {
	peer := a.peers[0]
	for account := range a.walletAccounts {
		ch, err := a.dialer.Dial(ctx, peer)
		if err != nil {
			continue
		}
		pending, err := bulkPullAccount(ctx, ch, account)
		ch.Close()
		if err != nil {
			continue
		}
		for _, p := range pending {
			a.store.View(func(tx kvstore.Tx) error {
				if _, _, ok, _ := a.ledger.Block(tx, p.Hash); !ok {
					a.AddLazyKey(p.Hash)
				}
				return nil
			})
		}
	}
	return a.runLazy(ctx)
}

// SeedWallet adds an account to the wallet_lazy set (spec §4.6).
func (a *Attempt) SeedWallet(acc latticetypes.Account) {
	a.mu.Lock()
	a.walletAccounts[acc] = struct{}{}
	a.mu.Unlock()
}
