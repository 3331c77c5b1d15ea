package active

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticetypes"
)

func testOpenBlock(account latticetypes.Account, source latticetypes.Hash) *blocks.OpenBlock {
	return &blocks.OpenBlock{
		Source:         source,
		Representative: account,
		OwnerAccount:   account,
	}
}

func TestStartActiveErase(t *testing.T) {
	idx := New(nil)

	var acct latticetypes.Account
	acct[0] = 1
	var src latticetypes.Hash
	src[0] = 2
	b := testOpenBlock(acct, src)

	if idx.Active(b) {
		t.Fatalf("election should not be active before Start")
	}
	idx.Start(b)
	if !idx.Active(b) {
		t.Fatalf("election should be active after Start")
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 election, got %d", idx.Len())
	}

	idx.Erase(b)
	if idx.Active(b) {
		t.Fatalf("election should not be active after Erase")
	}
	root := qualifiedRootOf(b)
	if !idx.RecentlyErased(root) {
		t.Fatalf("root should be in the recently-erased cache")
	}
}

func TestStartTwiceSameRootOneElection(t *testing.T) {
	idx := New(nil)
	var acct latticetypes.Account
	acct[0] = 3
	var src1, src2 latticetypes.Hash
	src1[0] = 4
	src2[0] = 5

	b1 := testOpenBlock(acct, src1)
	b2 := testOpenBlock(acct, src2)

	idx.Start(b1)
	idx.Start(b2)
	if idx.Len() != 1 {
		t.Fatalf("expected one election shared by both fork candidates, got %d", idx.Len())
	}
}

func TestFinalizeErasesAndSkipsUnknownRoot(t *testing.T) {
	idx := New(nil)
	var acct latticetypes.Account
	acct[0] = 6
	var src latticetypes.Hash
	src[0] = 7
	b := testOpenBlock(acct, src)

	// Finalize on a root with no election is a no-op, not a panic.
	idx.Finalize(qualifiedRootOf(b), b.Hash())

	idx.Start(b)
	idx.Finalize(qualifiedRootOf(b), b.Hash())
	if idx.Active(b) {
		t.Fatalf("election should be erased after Finalize")
	}
}

func TestStartedFeedFires(t *testing.T) {
	defer goleak.VerifyNone(t)

	idx := New(nil)
	ch := make(chan StartedEvent, 1)
	sub := idx.Started().Subscribe(ch)
	defer sub.Unsubscribe()

	var acct latticetypes.Account
	acct[0] = 8
	var src latticetypes.Hash
	src[0] = 9
	b := testOpenBlock(acct, src)
	idx.Start(b)

	select {
	case ev := <-ch:
		if ev.Hash != b.Hash() {
			t.Fatalf("unexpected hash in StartedEvent")
		}
	default:
		t.Fatalf("expected StartedEvent to be sent")
	}
}
