package ledger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticeevent"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticetypes"
)

// ProcessedEvent is broadcast on Ledger.Processed after every Progress
// result, so the unchecked pool and confirmation-height processor can
// react without the ledger knowing about either (spec §9 redesign note:
// Feed/Subscription in place of direct calls between components).
type ProcessedEvent struct {
	Hash    latticetypes.Hash
	Account Account
	Result  ProcessResult
}

// Ledger is the single authority for account_info, pending, frontier and
// block-row state (spec §4.2). One Ledger is shared by every caller; all
// mutation happens through the kvstore.Store's single write transaction.
type Ledger struct {
	store      *kvstore.Store
	worker     Worker
	epochs     Epochs
	difficulty uint64
	log        latticelog.Logger
	weights    *repWeights
	processed  latticeevent.Feed
}

func New(store *kvstore.Store, worker Worker, epochs Epochs, difficulty uint64) *Ledger {
	return &Ledger{
		store:      store,
		worker:     worker,
		epochs:     epochs,
		difficulty: difficulty,
		log:        latticelog.New("pkg", "ledger"),
		weights:    newRepWeights(),
	}
}

// Processed lets observers subscribe to every Progress result.
func (l *Ledger) Processed() *latticeevent.Feed { return &l.processed }

// BuildWeightCache rebuilds the in-memory representative-weight cache by
// iterating every account. Called once at startup; the cache is not
// persisted (see repweights.go).
func (l *Ledger) BuildWeightCache(tx kvstore.Tx) error {
	for _, table := range [...]kvstore.Table{kvstore.TableAccountsV0, kvstore.TableAccountsV1} {
		it := tx.Iterator(table, nil)
		for it.Next() {
			info, err := decodeAccountInfo(it.Value())
			if err != nil {
				it.Release()
				return err
			}
			l.weights.add(info.Representative, info.Balance)
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// Weight returns rep's currently delegated voting weight (spec §4.2 weight).
func (l *Ledger) Weight(rep Account) Amount { return l.weights.get(rep) }

// IterateAccounts calls fn for every account in key order across both
// the v0 and v1 accounts tables, stopping at the first error. Used by
// the bootstrap server's frontier_req responder (spec §4.7).
func (l *Ledger) IterateAccounts(tx kvstore.Tx, fn func(account Account, info AccountInfo) error) error {
	for _, table := range [...]kvstore.Table{kvstore.TableAccountsV0, kvstore.TableAccountsV1} {
		it := tx.Iterator(table, nil)
		for it.Next() {
			var account Account
			copy(account[:], it.Key())
			info, err := decodeAccountInfo(it.Value())
			if err != nil {
				it.Release()
				return err
			}
			if err := fn(account, info); err != nil {
				it.Release()
				return err
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// IteratePending calls fn for every pending entry addressed to
// destination, across both the v0 and v1 pending tables, stopping at the
// first error. Used by the bootstrap server's bulk_pull_account
// responder (spec §4.6 Wallet lazy mode).
func (l *Ledger) IteratePending(tx kvstore.Tx, destination Account, fn func(key PendingKey, entry PendingEntry) error) error {
	for _, table := range [...]kvstore.Table{kvstore.TablePendingV0, kvstore.TablePendingV1} {
		it := tx.Iterator(table, destination[:])
		for it.Next() {
			key := it.Key()
			if len(key) < 64 || !bytes.Equal(key[:32], destination[:]) {
				break
			}
			var pk PendingKey
			copy(pk.Destination[:], key[:32])
			copy(pk.SendHash[:], key[32:64])
			entry, err := decodePendingEntry(it.Value())
			if err != nil {
				it.Release()
				return err
			}
			if err := fn(pk, entry); err != nil {
				it.Release()
				return err
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// Account returns the owning account of a committed block (spec §4.2 account).
func (l *Ledger) Account(tx kvstore.Tx, hash Hash) (Account, bool, error) {
	sb, ok, err := getBlock(tx, hash)
	if err != nil || !ok {
		return Account{}, ok, err
	}
	return sb.Sideband.Account, true, nil
}

// Balance returns the account balance as of hash (spec §4.2 balance).
func (l *Ledger) Balance(tx kvstore.Tx, hash Hash) (Amount, bool, error) {
	sb, ok, err := getBlock(tx, hash)
	if err != nil || !ok {
		return Amount{}, ok, err
	}
	return sb.Sideband.Balance, true, nil
}

// Amount returns the value moved by a send/receive/open block (spec §4.2 amount).
func (l *Ledger) Amount(tx kvstore.Tx, hash Hash) (Amount, bool, error) {
	cur, ok, err := getBlock(tx, hash)
	if err != nil || !ok {
		return Amount{}, ok, err
	}
	if cur.Block.Previous().IsZero() {
		return cur.Sideband.Balance, true, nil
	}
	prev, ok, err := getBlock(tx, cur.Block.Previous())
	if err != nil || !ok {
		return Amount{}, ok, err
	}
	if cur.Sideband.Balance.Cmp(prev.Sideband.Balance) >= 0 {
		return cur.Sideband.Balance.Sub(prev.Sideband.Balance)
	}
	return prev.Sideband.Balance.Sub(cur.Sideband.Balance)
}

// Latest returns account's current head block hash (spec §4.2 latest).
func (l *Ledger) Latest(tx kvstore.Tx, account Account) (Hash, bool, error) {
	info, ok, err := getAccountInfo(tx, account)
	if err != nil || !ok {
		return Hash{}, ok, err
	}
	return info.Head, true, nil
}

// Block returns the committed block and its sideband for hash.
func (l *Ledger) Block(tx kvstore.Tx, hash Hash) (blocks.Block, blocks.Sideband, bool, error) {
	sb, ok, err := getBlock(tx, hash)
	if err != nil || !ok {
		return nil, blocks.Sideband{}, ok, err
	}
	return sb.Block, sb.Sideband, true, nil
}

// ConfirmationHeight returns account's current cementation marker.
func (l *Ledger) ConfirmationHeight(tx kvstore.Tx, account Account) (ConfirmationHeightInfo, error) {
	return getConfirmationHeight(tx, account)
}

// SetConfirmationHeight advances account's cementation marker.
func (l *Ledger) SetConfirmationHeight(tx kvstore.WriteTx, account Account, info ConfirmationHeightInfo) error {
	return putConfirmationHeight(tx, account, info)
}

// IsEpochLink reports whether link is the sentinel used by an epoch upgrade.
func (l *Ledger) IsEpochLink(link Hash) bool { return l.epochs.isEpochLink(link) }

// EpochSigner returns the account whose signature marks a state block as
// an epoch upgrade, used by the block processor's pre-ledger signature
// batch (spec §4.3) to pick a verification candidate before it has full
// ledger context.
func (l *Ledger) EpochSigner() Account { return l.epochs.Signer }

// EpochLink returns the sentinel link value of an epoch_0 -> epoch_1
// upgrade, needed by callers (confirmation-height) that must recompute a
// state block's subtype outside the ledger package.
func (l *Ledger) EpochLink() Hash { return l.epochs.Link1 }

// blockContext is the resolved per-call state Process needs before it can
// branch on block type: who owns this block, and what their account_info
// looked like immediately before this block is applied.
type blockContext struct {
	owner     Account
	prior     AccountInfo
	hasPrior  bool
	isOpen    bool
	prevStore storedBlock
	hasPrev   bool
}

// resolveContext locates the owning account and its pre-block state,
// detecting gap_previous and the account-level half of fork detection
// (spec §4.2 steps 4-5, reordered; see DESIGN.md).
func resolveContext(tx kvstore.Tx, b blocks.Block) (blockContext, *ProcessResult, error) {
	var ctx blockContext

	if b.Previous().IsZero() {
		ctx.isOpen = true
		switch v := b.(type) {
		case *blocks.OpenBlock:
			ctx.owner = v.OwnerAccount
		case *blocks.StateBlock:
			ctx.owner = v.Account
		default:
			return ctx, &ProcessResult{Code: BlockPosition}, nil
		}
		info, ok, err := getAccountInfo(tx, ctx.owner)
		if err != nil {
			return ctx, nil, err
		}
		if ok && info.BlockCount > 0 {
			// Account already has a chain; a differently-hashed "open"
			// for it can only be a competing fork (an identical hash
			// would already have been caught by the Old check).
			return ctx, &ProcessResult{Code: Fork}, nil
		}
		return ctx, nil, nil
	}

	prev, ok, err := getBlock(tx, b.Previous())
	if err != nil {
		return ctx, nil, err
	}
	if !ok {
		return ctx, &ProcessResult{Code: GapPrevious}, nil
	}
	ctx.prevStore = prev
	ctx.hasPrev = true
	ctx.owner = prev.Sideband.Account

	info, ok, err := getAccountInfo(tx, ctx.owner)
	if err != nil {
		return ctx, nil, err
	}
	if !ok {
		// previous exists but its account has no account_info: storage
		// is inconsistent, not a well-formed ledger error.
		return ctx, nil, fmt.Errorf("ledger: account_info missing for %s with existing block %s", ctx.owner, b.Previous())
	}
	ctx.prior = info
	ctx.hasPrior = true
	if info.Head != b.Previous() {
		return ctx, &ProcessResult{Code: Fork}, nil
	}
	if info.Epoch == latticetypes.Epoch1 {
		if _, isState := b.(*blocks.StateBlock); !isState {
			return ctx, &ProcessResult{Code: BlockPosition}, nil
		}
	}
	return ctx, nil, nil
}

// missingPendingResult distinguishes gap_source (the referenced source
// block hasn't arrived yet, so the pending entry may still appear) from
// unreceivable (the source block exists but created no usable pending
// entry for this account, or it was already received).
func missingPendingResult(tx kvstore.Tx, source Hash) (ProcessResult, error) {
	exists, err := blockExists(tx, source)
	if err != nil {
		return ProcessResult{}, err
	}
	if !exists {
		return ProcessResult{Code: GapSource}, nil
	}
	return ProcessResult{Code: Unreceivable}, nil
}

// Process applies b to the ledger inside tx, per spec §4.2's process
// operation. Every rejection is returned as a ProcessResult value, never
// as a Go error; a non-nil error means the store itself failed.
func (l *Ledger) Process(tx kvstore.WriteTx, b blocks.Block) (ProcessResult, error) {
	hash := b.Hash()

	// Spec §4.2 steps 1-2 (insufficient_work, bad_signature) precede step 3
	// (old). work_validate is a pure function of the block's own root/work
	// fields (neither is part of the hash, spec §6), so it can run first
	// unconditionally. If hash already names a stored block, that stored
	// copy already pins down the real signer, so the incoming block's
	// signature is checked against it here too -- a resubmission of an
	// existing hash carrying a corrupted work nonce or signature suffix is
	// reported as insufficient_work/bad_signature rather than masked as
	// old. For a genuinely new block, bad_signature/gap_previous/fork stay
	// in their present order: legacy send/receive/change blocks carry no
	// account field of their own, so their signer is only recoverable by
	// resolving the previous block -- the same lookup gap_previous and
	// fork detection depend on (see DESIGN.md).
	if !l.worker.Validate(b.Root(), b.Work(), l.difficulty) {
		return ProcessResult{Code: InsufficientWork}, nil
	}

	existing, exists, err := getBlock(tx, hash)
	if err != nil {
		return ProcessResult{}, err
	}
	if exists {
		signer := existing.Sideband.Account
		isEpochSigned := existing.Sideband.BlockType == blocks.TypeState && blocks.Verify(b, l.epochs.Signer)
		if !blocks.Verify(b, signer) && !isEpochSigned {
			return ProcessResult{Code: BadSignature}, nil
		}
		return ProcessResult{Code: Old}, nil
	}

	ctx, rejected, err := resolveContext(tx, b)
	if err != nil {
		return ProcessResult{}, err
	}
	if rejected != nil {
		return *rejected, nil
	}

	priorBalance := ZeroAmount
	priorRepresentative := Account{}
	priorEpoch := latticetypes.Epoch0
	if ctx.hasPrior {
		priorBalance = ctx.prior.Balance
		priorRepresentative = ctx.prior.Representative
		priorEpoch = ctx.prior.Epoch
	}

	var subtype blocks.StateSubtype
	state, isState := b.(*blocks.StateBlock)
	if isState {
		subtype = state.Subtype(priorBalance, ctx.isOpen, l.epochs.Link1)
		if !ctx.isOpen && state.Account != ctx.owner {
			return ProcessResult{Code: Fork}, nil
		}
	}

	signer := ctx.owner
	if isState && subtype == blocks.StateSubtypeEpoch {
		signer = l.epochs.Signer
	}
	if !blocks.Verify(b, signer) {
		// Epoch blocks are only valid when signed by epoch_signer; a block
		// that merely looks like an epoch upgrade (unchanged balance, link
		// equal to the epoch sentinel) but is signed by the account itself
		// falls back to ordinary change semantics with zero effect, per
		// spec §4.2's tie-breaks and edge cases, rather than BadSignature.
		if isState && subtype == blocks.StateSubtypeEpoch && blocks.Verify(b, ctx.owner) {
			subtype = blocks.StateSubtypeChange
		} else {
			return ProcessResult{Code: BadSignature}, nil
		}
	}

	newInfo := AccountInfo{
		Head:                hash,
		OpenBlock:           ctx.prior.OpenBlock,
		RepresentativeBlock: ctx.prior.RepresentativeBlock,
		Representative:      priorRepresentative,
		Balance:             priorBalance,
		ModifiedTimestamp:   time.Unix(0, 0).UTC(),
		BlockCount:          ctx.prior.BlockCount + 1,
		Epoch:               priorEpoch,
	}
	if ctx.isOpen {
		newInfo.OpenBlock = hash
	}

	var (
		resultAmount Amount
		isSend       bool
		pendingKey   PendingKey
		pendingPut   *PendingEntry
		pendingDrop  *PendingKey
	)

	switch v := b.(type) {
	case *blocks.SendBlock:
		if v.BalanceAfter.Cmp(priorBalance) >= 0 {
			return ProcessResult{Code: NegativeSpend}, nil
		}
		amount, err := priorBalance.Sub(v.BalanceAfter)
		if err != nil {
			return ProcessResult{}, err
		}
		newInfo.Balance = v.BalanceAfter
		resultAmount, isSend = amount, true
		pendingKey = PendingKey{Destination: v.Destination, SendHash: hash}
		entry := PendingEntry{Source: ctx.owner, Amount: amount, Epoch: priorEpoch}
		pendingPut = &entry

	case *blocks.ReceiveBlock:
		key := PendingKey{Destination: ctx.owner, SendHash: v.Source}
		entry, ok, err := getPending(tx, key)
		if err != nil {
			return ProcessResult{}, err
		}
		if !ok {
			return missingPendingResult(tx, v.Source)
		}
		if entry.Epoch == latticetypes.Epoch1 {
			return ProcessResult{Code: Unreceivable}, nil
		}
		newBalance, err := priorBalance.Add(entry.Amount)
		if err != nil {
			return ProcessResult{}, err
		}
		newInfo.Balance = newBalance
		resultAmount = entry.Amount
		pendingKey = key
		pendingDrop = &key

	case *blocks.OpenBlock:
		key := PendingKey{Destination: ctx.owner, SendHash: v.Source}
		entry, ok, err := getPending(tx, key)
		if err != nil {
			return ProcessResult{}, err
		}
		if !ok {
			return missingPendingResult(tx, v.Source)
		}
		if entry.Epoch == latticetypes.Epoch1 {
			return ProcessResult{Code: Unreceivable}, nil
		}
		newInfo.Balance = entry.Amount
		newInfo.Representative = v.Representative
		newInfo.RepresentativeBlock = hash
		resultAmount = entry.Amount
		pendingKey = key
		pendingDrop = &key

	case *blocks.ChangeBlock:
		newInfo.Representative = v.Representative
		newInfo.RepresentativeBlock = hash

	case *blocks.StateBlock:
		switch subtype {
		case blocks.StateSubtypeSend:
			if v.BalanceAfter.Cmp(priorBalance) >= 0 {
				return ProcessResult{Code: NegativeSpend}, nil
			}
			amount, err := priorBalance.Sub(v.BalanceAfter)
			if err != nil {
				return ProcessResult{}, err
			}
			newInfo.Balance = v.BalanceAfter
			newInfo.Representative = v.Representative
			newInfo.RepresentativeBlock = hash
			resultAmount, isSend = amount, true
			dest := latticetypes.AccountFromHash(v.Link)
			pendingKey = PendingKey{Destination: dest, SendHash: hash}
			entry := PendingEntry{Source: ctx.owner, Amount: amount, Epoch: priorEpoch}
			pendingPut = &entry

		case blocks.StateSubtypeReceive, blocks.StateSubtypeOpen:
			key := PendingKey{Destination: ctx.owner, SendHash: v.Link}
			entry, ok, err := getPending(tx, key)
			if err != nil {
				return ProcessResult{}, err
			}
			if !ok {
				return missingPendingResult(tx, v.Link)
			}
			expected, err := priorBalance.Add(entry.Amount)
			if err != nil {
				return ProcessResult{}, err
			}
			if v.BalanceAfter.Cmp(expected) != 0 {
				return ProcessResult{Code: BalanceMismatch}, nil
			}
			newInfo.Balance = v.BalanceAfter
			newInfo.Representative = v.Representative
			newInfo.RepresentativeBlock = hash
			resultAmount = entry.Amount
			pendingKey = key
			pendingDrop = &key

		case blocks.StateSubtypeChange:
			if v.BalanceAfter.Cmp(priorBalance) != 0 {
				return ProcessResult{Code: BalanceMismatch}, nil
			}
			newInfo.Balance = v.BalanceAfter
			newInfo.Representative = v.Representative
			newInfo.RepresentativeBlock = hash

		case blocks.StateSubtypeEpoch:
			if v.BalanceAfter.Cmp(priorBalance) != 0 || v.Representative != priorRepresentative {
				return ProcessResult{Code: BalanceMismatch}, nil
			}
			newInfo.Balance = v.BalanceAfter
			newInfo.Epoch = latticetypes.Epoch1

		default:
			return ProcessResult{Code: BlockPosition}, nil
		}

	default:
		return ProcessResult{Code: BlockPosition}, nil
	}

	sideband := blocks.Sideband{
		BlockType:      b.BlockType(),
		Account:        ctx.owner,
		Balance:        newInfo.Balance,
		Height:         newInfo.BlockCount,
		Successor:      latticetypes.ZeroHash,
		Timestamp:      newInfo.ModifiedTimestamp,
		Representative: newInfo.Representative,
		Epoch:          newInfo.Epoch,
	}

	if err := putBlock(tx, hash, storedBlock{Block: b, Sideband: sideband}, newInfo.Epoch); err != nil {
		return ProcessResult{}, err
	}
	if ctx.hasPrev {
		if err := setSuccessor(tx, ctx.prevStore, b.Previous(), hash); err != nil {
			return ProcessResult{}, err
		}
		if err := deleteFrontier(tx, ctx.prior.Head); err != nil {
			return ProcessResult{}, err
		}
	}
	if err := putFrontier(tx, hash, ctx.owner); err != nil {
		return ProcessResult{}, err
	}
	if err := putAccountInfo(tx, ctx.owner, newInfo); err != nil {
		return ProcessResult{}, err
	}
	if pendingPut != nil {
		if err := putPending(tx, pendingKey, *pendingPut); err != nil {
			return ProcessResult{}, err
		}
	}
	if pendingDrop != nil {
		if err := deletePending(tx, *pendingDrop); err != nil {
			return ProcessResult{}, err
		}
	}

	l.weights.move(priorRepresentative, priorBalance, newInfo.Representative, newInfo.Balance)

	result := ProcessResult{Code: Progress, Amount: resultAmount, Account: ctx.owner, IsSend: isSend}
	if _, err := l.processed.Send(ProcessedEvent{Hash: hash, Account: ctx.owner, Result: result}); err != nil {
		l.log.Debug("processed feed send failed", "err", err)
	}
	return result, nil
}

// setSuccessor rewrites prevHash's stored sideband to point at its new
// successor, re-encoding the unchanged block alongside it.
func setSuccessor(tx kvstore.WriteTx, prev storedBlock, prevHash, successor latticetypes.Hash) error {
	prev.Sideband.Successor = successor
	return putBlock(tx, prevHash, prev, prev.Sideband.Epoch)
}

// Rollback undoes every block from account's current head back through
// and including hash, per spec §4.2 rollback. It fails (returns false)
// if any block in that range has already been cemented.
func (l *Ledger) Rollback(tx kvstore.WriteTx, hash Hash) (bool, error) {
	target, ok, err := getBlock(tx, hash)
	if err != nil || !ok {
		return false, err
	}
	account := target.Sideband.Account

	info, ok, err := getAccountInfo(tx, account)
	if err != nil || !ok {
		return false, err
	}
	confHeight, err := getConfirmationHeight(tx, account)
	if err != nil {
		return false, err
	}
	if confHeight.Height >= target.Sideband.Height {
		return false, nil
	}

	cur := info
	for {
		head, ok, err := getBlock(tx, cur.Head)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("ledger: rollback: missing head block %s for %s", cur.Head, account)
		}

		if err := l.rollbackOne(tx, account, head, cur); err != nil {
			return false, err
		}

		if head.Block.Hash() == hash || cur.Head == hash {
			break
		}
		next, ok, err := getAccountInfo(tx, account)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		cur = next
	}
	return true, nil
}

// rollbackOne undoes exactly one block (the current head, "head") from
// account, restoring account_info, pending entries, the frontier index
// and representative weight to their pre-block state.
func (l *Ledger) rollbackOne(tx kvstore.WriteTx, account Account, head storedBlock, cur AccountInfo) error {
	headHash := head.Block.Hash()

	// Undo whatever pending-table effect this block had.
	switch v := head.Block.(type) {
	case *blocks.SendBlock:
		if err := deletePending(tx, PendingKey{Destination: v.Destination, SendHash: headHash}); err != nil {
			return err
		}
	case *blocks.ReceiveBlock:
		if err := l.restorePending(tx, account, v.Source, head.Sideband); err != nil {
			return err
		}
	case *blocks.OpenBlock:
		if err := l.restorePending(tx, account, v.Source, head.Sideband); err != nil {
			return err
		}
	case *blocks.StateBlock:
		prevBalance := ZeroAmount
		if !v.PreviousHash.IsZero() {
			prev, ok, err := getBlock(tx, v.PreviousHash)
			if err != nil {
				return err
			}
			if ok {
				prevBalance = prev.Sideband.Balance
			}
		}
		subtype := v.Subtype(prevBalance, v.PreviousHash.IsZero(), l.epochs.Link1)
		switch subtype {
		case blocks.StateSubtypeSend:
			dest := latticetypes.AccountFromHash(v.Link)
			if err := deletePending(tx, PendingKey{Destination: dest, SendHash: headHash}); err != nil {
				return err
			}
		case blocks.StateSubtypeReceive, blocks.StateSubtypeOpen:
			if err := l.restorePending(tx, account, v.Link, head.Sideband); err != nil {
				return err
			}
		}
	}

	priorRepresentative := cur.Representative
	priorBalance := cur.Balance

	if head.Block.Previous().IsZero() {
		if err := deleteAccountInfo(tx, account); err != nil {
			return err
		}
	} else {
		prev, ok, err := getBlock(tx, head.Block.Previous())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ledger: rollback: missing previous block %s", head.Block.Previous())
		}
		restored := AccountInfo{
			Head:                head.Block.Previous(),
			OpenBlock:           cur.OpenBlock,
			RepresentativeBlock: cur.RepresentativeBlock,
			Representative:      prev.Sideband.Representative,
			Balance:             prev.Sideband.Balance,
			ModifiedTimestamp:   prev.Sideband.Timestamp,
			BlockCount:          cur.BlockCount - 1,
			Epoch:               prev.Sideband.Epoch,
		}
		if err := putAccountInfo(tx, account, restored); err != nil {
			return err
		}
	}

	if err := deleteFrontier(tx, headHash); err != nil {
		return err
	}
	if !head.Block.Previous().IsZero() {
		if err := putFrontier(tx, head.Block.Previous(), account); err != nil {
			return err
		}
	}
	if err := deleteBlock(tx, headHash); err != nil {
		return err
	}

	newRep, newBalance := Account{}, ZeroAmount
	if !head.Block.Previous().IsZero() {
		prev, ok, err := getBlock(tx, head.Block.Previous())
		if err != nil {
			return err
		}
		if ok {
			newRep, newBalance = prev.Sideband.Representative, prev.Sideband.Balance
		}
	}
	l.weights.move(priorRepresentative, priorBalance, newRep, newBalance)
	return nil
}

// restorePending recreates the pending entry a receive/open block
// consumed, keyed by the original send's own account and epoch at the
// time (approximated by the sender's current epoch).
func (l *Ledger) restorePending(tx kvstore.WriteTx, destination Account, sourceHash Hash, receivedSideband blocks.Sideband) error {
	send, ok, err := getBlock(tx, sourceHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger: rollback: missing source block %s", sourceHash)
	}
	senderInfo, _, err := getAccountInfo(tx, send.Sideband.Account)
	if err != nil {
		return err
	}
	var prevBalance Amount
	if send.Block.Previous().IsZero() {
		prevBalance = ZeroAmount
	} else {
		prev, ok, err := getBlock(tx, send.Block.Previous())
		if err != nil {
			return err
		}
		if ok {
			prevBalance = prev.Sideband.Balance
		}
	}
	amount, err := send.Sideband.Balance.Sub(prevBalance)
	if err != nil {
		// The send decreased balance; Sub fails only if our reference
		// point is wrong, which would mean storage is inconsistent.
		amount, err = prevBalance.Sub(send.Sideband.Balance)
		if err != nil {
			return err
		}
	}
	return putPending(tx, PendingKey{Destination: destination, SendHash: sourceHash}, PendingEntry{
		Source: send.Sideband.Account,
		Amount: amount,
		Epoch:  senderInfo.Epoch,
	})
}
