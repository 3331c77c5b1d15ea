package ledger

import (
	"crypto/ed25519"
	"testing"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
)

// alwaysValid is a Worker stub that never rejects proof of work, so
// tests exercise ledger semantics without generating real nonces.
type alwaysValid struct{}

func (alwaysValid) Validate(Account, blocks.Work, uint64) bool { return true }

func newTestLedger(t *testing.T) (*Ledger, *kvstore.Store) {
	t.Helper()
	store, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, alwaysValid{}, Epochs{}, 0), store
}

func newAccount(t *testing.T) (latticetypes.Account, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var acct latticetypes.Account
	copy(acct[:], pub)
	return acct, priv
}

// TestGenesisSendOpenConsumesPendingAndDelegatesWeight drives spec §8
// scenario 1 end to end: genesis sends G-100 to a fresh account, which
// opens its chain on that pending entry. It checks every assertion the
// scenario requires, not just that Process returns progress.
func TestGenesisSendOpenConsumesPendingAndDelegatesWeight(t *testing.T) {
	l, store := newTestLedger(t)

	genesisAcct, genesisPriv := newAccount(t)
	destAcct, destPriv := newAccount(t)

	genesisBalance := latticetypes.MaxAmount
	sendAmount := latticetypes.AmountFromUint64(100)
	remaining, err := genesisBalance.Sub(sendAmount)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}

	var sendHash, openHash Hash
	err = store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		if err := InitGenesis(tx, l, GenesisSpec{
			Account:        genesisAcct,
			Representative: genesisAcct,
			Balance:        genesisBalance,
		}); err != nil {
			return err
		}

		head, ok, err := l.Latest(tx, genesisAcct)
		if err != nil || !ok {
			t.Fatalf("genesis account has no frontier: ok=%v err=%v", ok, err)
		}

		send := &blocks.SendBlock{
			PreviousHash: head,
			Destination:  destAcct,
			BalanceAfter: remaining,
		}
		blocks.Sign(send, genesisPriv)
		sendHash = send.Hash()

		result, err := l.Process(tx, send)
		if err != nil {
			return err
		}
		if result.Code != Progress {
			t.Fatalf("send: expected progress, got %s", result.Code)
		}
		if !result.IsSend {
			t.Fatalf("send: expected IsSend")
		}
		if result.Amount.Cmp(sendAmount) != 0 {
			t.Fatalf("send: expected amount %s, got %s", sendAmount, result.Amount)
		}

		open := &blocks.OpenBlock{
			Source:         sendHash,
			Representative: destAcct,
			OwnerAccount:   destAcct,
		}
		blocks.Sign(open, destPriv)
		openHash = open.Hash()

		result, err = l.Process(tx, open)
		if err != nil {
			return err
		}
		if result.Code != Progress {
			t.Fatalf("open: expected progress, got %s", result.Code)
		}
		if result.Amount.Cmp(sendAmount) != 0 {
			t.Fatalf("open: expected amount %s, got %s", sendAmount, result.Amount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = store.View(func(tx kvstore.Tx) error {
		genesisFinal, ok, err := l.Balance(tx, sendHash)
		if err != nil || !ok {
			t.Fatalf("genesis balance after send: ok=%v err=%v", ok, err)
		}
		if genesisFinal.Cmp(remaining) != 0 {
			t.Fatalf("balance(genesis): expected %s, got %s", remaining, genesisFinal)
		}

		destFinal, ok, err := l.Balance(tx, openHash)
		if err != nil || !ok {
			t.Fatalf("dest balance after open: ok=%v err=%v", ok, err)
		}
		if destFinal.Cmp(sendAmount) != 0 {
			t.Fatalf("balance(K1): expected %s, got %s", sendAmount, destFinal)
		}

		pendingLeft := 0
		if err := l.IteratePending(tx, destAcct, func(PendingKey, PendingEntry) error {
			pendingLeft++
			return nil
		}); err != nil {
			return err
		}
		if pendingLeft != 0 {
			t.Fatalf("expected no pending entries for K1 after open, found %d", pendingLeft)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	if w := l.Weight(destAcct); w.Cmp(sendAmount) != 0 {
		t.Fatalf("weight(K1): expected %s, got %s", sendAmount, w)
	}
}

func TestOpenWithWrongSignerIsRejected(t *testing.T) {
	l, store := newTestLedger(t)

	genesisAcct, genesisPriv := newAccount(t)
	destAcct, _ := newAccount(t)
	impostorPriv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))

	err := store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		if err := InitGenesis(tx, l, GenesisSpec{
			Account:        genesisAcct,
			Representative: genesisAcct,
			Balance:        latticetypes.MaxAmount,
		}); err != nil {
			return err
		}
		head, ok, err := l.Latest(tx, genesisAcct)
		if err != nil || !ok {
			t.Fatalf("genesis account has no frontier: ok=%v err=%v", ok, err)
		}

		remaining, err := latticetypes.MaxAmount.Sub(latticetypes.AmountFromUint64(100))
		if err != nil {
			return err
		}
		send := &blocks.SendBlock{PreviousHash: head, Destination: destAcct, BalanceAfter: remaining}
		blocks.Sign(send, genesisPriv)
		if result, err := l.Process(tx, send); err != nil {
			return err
		} else if result.Code != Progress {
			t.Fatalf("send: expected progress, got %s", result.Code)
		}

		open := &blocks.OpenBlock{
			Source:         send.Hash(),
			Representative: destAcct,
			OwnerAccount:   destAcct,
		}
		blocks.Sign(open, impostorPriv)

		result, err := l.Process(tx, open)
		if err != nil {
			return err
		}
		if result.Code != BadSignature {
			t.Fatalf("open with wrong key: expected bad_signature, got %s", result.Code)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

// TestEpochUpgradeRequiresEpochSigner exercises both branches of spec
// §4.2's epoch tie-break: a state block shaped like an epoch upgrade
// (balance and representative unchanged, link the epoch sentinel) bumps
// the account's epoch only when signed by epoch_signer; signed by the
// account itself, it is an ordinary change with zero effect instead of
// bad_signature.
func TestEpochUpgradeRequiresEpochSigner(t *testing.T) {
	epochSignerAcct, epochSignerPriv := newAccount(t)
	epochLink := latticetypes.Hash{0xAA}

	newEpochLedger := func(t *testing.T) (*Ledger, *kvstore.Store) {
		t.Helper()
		store, err := kvstore.OpenMemory()
		if err != nil {
			t.Fatalf("OpenMemory: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return New(store, alwaysValid{}, Epochs{Signer: epochSignerAcct, Link1: epochLink}, 0), store
	}

	t.Run("signed by epoch_signer bumps epoch", func(t *testing.T) {
		l, store := newEpochLedger(t)
		genesisAcct, _ := newAccount(t)

		err := store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
			if err := InitGenesis(tx, l, GenesisSpec{
				Account:        genesisAcct,
				Representative: genesisAcct,
				Balance:        latticetypes.MaxAmount,
			}); err != nil {
				return err
			}
			head, ok, err := l.Latest(tx, genesisAcct)
			if err != nil || !ok {
				t.Fatalf("genesis account has no frontier: ok=%v err=%v", ok, err)
			}

			epochBlock := &blocks.StateBlock{
				Account:        genesisAcct,
				PreviousHash:   head,
				Representative: genesisAcct,
				BalanceAfter:   latticetypes.MaxAmount,
				Link:           epochLink,
			}
			blocks.Sign(epochBlock, epochSignerPriv)

			result, err := l.Process(tx, epochBlock)
			if err != nil {
				return err
			}
			if result.Code != Progress {
				t.Fatalf("epoch upgrade: expected progress, got %s", result.Code)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		err = store.View(func(tx kvstore.Tx) error {
			info, ok, err := getAccountInfo(tx, genesisAcct)
			if err != nil || !ok {
				t.Fatalf("account_info: ok=%v err=%v", ok, err)
			}
			if info.Epoch != latticetypes.Epoch1 {
				t.Fatalf("expected epoch1 after epoch_signer upgrade, got %v", info.Epoch)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
	})

	t.Run("signed by account falls back to zero-effect change", func(t *testing.T) {
		l, store := newEpochLedger(t)
		genesisAcct, genesisPriv := newAccount(t)

		err := store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
			if err := InitGenesis(tx, l, GenesisSpec{
				Account:        genesisAcct,
				Representative: genesisAcct,
				Balance:        latticetypes.MaxAmount,
			}); err != nil {
				return err
			}
			head, ok, err := l.Latest(tx, genesisAcct)
			if err != nil || !ok {
				t.Fatalf("genesis account has no frontier: ok=%v err=%v", ok, err)
			}

			lookalike := &blocks.StateBlock{
				Account:        genesisAcct,
				PreviousHash:   head,
				Representative: genesisAcct,
				BalanceAfter:   latticetypes.MaxAmount,
				Link:           epochLink,
			}
			blocks.Sign(lookalike, genesisPriv)

			result, err := l.Process(tx, lookalike)
			if err != nil {
				return err
			}
			if result.Code != Progress {
				t.Fatalf("account-signed lookalike: expected progress, got %s", result.Code)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		err = store.View(func(tx kvstore.Tx) error {
			info, ok, err := getAccountInfo(tx, genesisAcct)
			if err != nil || !ok {
				t.Fatalf("account_info: ok=%v err=%v", ok, err)
			}
			if info.Epoch != latticetypes.Epoch0 {
				t.Fatalf("expected epoch to stay epoch0 on account-signed lookalike, got %v", info.Epoch)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
	})
}

func TestProcessRejectsReplay(t *testing.T) {
	l, store := newTestLedger(t)
	genesisAcct, genesisPriv := newAccount(t)

	err := store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		if err := InitGenesis(tx, l, GenesisSpec{
			Account:        genesisAcct,
			Representative: genesisAcct,
			Balance:        latticetypes.MaxAmount,
		}); err != nil {
			return err
		}
		head, _, err := l.Latest(tx, genesisAcct)
		if err != nil {
			return err
		}
		change := &blocks.ChangeBlock{PreviousHash: head, Representative: genesisAcct}
		blocks.Sign(change, genesisPriv)

		first, err := l.Process(tx, change)
		if err != nil {
			return err
		}
		if first.Code != Progress {
			t.Fatalf("first change: expected progress, got %s", first.Code)
		}
		second, err := l.Process(tx, change)
		if err != nil {
			return err
		}
		if second.Code != Old {
			t.Fatalf("replayed change: expected old, got %s", second.Code)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}
