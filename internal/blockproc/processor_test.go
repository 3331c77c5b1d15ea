package blockproc

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/unchecked"
)

type alwaysValidWorker struct{}

func (alwaysValidWorker) Validate(latticetypes.Account, blocks.Work, uint64) bool { return true }

func newTestAccount(t *testing.T) (latticetypes.Account, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var acct latticetypes.Account
	copy(acct[:], pub)
	return acct, priv
}

// TestForcedQueueReachesLedger drives a single properly-signed send block
// through Add -> the worker loop -> ledger.Process, and waits for the
// account's frontier to move, exercising the forced-queue path a locally
// generated block takes (spec §4.3).
func TestForcedQueueReachesLedger(t *testing.T) {
	store, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()

	genesisAcct, genesisPriv := newTestAccount(t)
	destAcct, _ := newTestAccount(t)

	l := ledger.New(store, alwaysValidWorker{}, ledger.Epochs{}, 0)
	err = store.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		return ledger.InitGenesis(tx, l, ledger.GenesisSpec{
			Account:        genesisAcct,
			Representative: genesisAcct,
			Balance:        latticetypes.MaxAmount,
		})
	})
	if err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}

	var genesisHead latticetypes.Hash
	err = store.View(func(tx kvstore.Tx) error {
		var ok bool
		var err error
		genesisHead, ok, err = l.Latest(tx, genesisAcct)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("genesis account has no frontier")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	send := &blocks.SendBlock{
		PreviousHash: genesisHead,
		Destination:  destAcct,
		BalanceAfter: latticetypes.ZeroAmount,
	}
	blocks.Sign(send, genesisPriv)

	proc := New(store, l, unchecked.New(), Options{})
	proc.Start()
	defer proc.Stop()

	proc.Add(send, unchecked.SourceLocal)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var head latticetypes.Hash
		var ok bool
		err := store.View(func(tx kvstore.Tx) error {
			var err error
			head, ok, err = l.Latest(tx, genesisAcct)
			return err
		})
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		if ok && head == send.Hash() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("send block was not committed to the ledger within the deadline")
}
