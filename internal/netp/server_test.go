package netp

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/latticenode/node/internal/blockproc"
	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/unchecked"
)

type alwaysValidWorker struct{}

func (alwaysValidWorker) Validate(latticetypes.Account, blocks.Work, uint64) bool { return true }

func newTestServerDeps(t *testing.T) *blockproc.Processor {
	t.Helper()
	store, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	l := ledger.New(store, alwaysValidWorker{}, ledger.Epochs{}, 0)
	proc := blockproc.New(store, l, unchecked.New(), blockproc.Options{})
	proc.Start()
	t.Cleanup(proc.Stop)
	return proc
}

func TestDialCompletesMutualHandshake(t *testing.T) {
	pubA, privA, _ := ed25519.GenerateKey(nil)
	pubB, privB, _ := ed25519.GenerateKey(nil)
	var nodeA, nodeB latticetypes.Account
	copy(nodeA[:], pubA)
	copy(nodeB[:], pubB)

	tableA := NewTable(Options{AllowLoopback: true})
	tableB := NewTable(Options{AllowLoopback: true})

	srvA, err := NewServer(1, nodeA, privA, "127.0.0.1:0", "127.0.0.1:0", tableA, newTestServerDeps(t))
	if err != nil {
		t.Fatalf("NewServer A: %v", err)
	}
	defer srvA.Stop()
	srvA.Start()

	srvB, err := NewServer(1, nodeB, privB, "127.0.0.1:0", "127.0.0.1:0", tableB, newTestServerDeps(t))
	if err != nil {
		t.Fatalf("NewServer B: %v", err)
	}
	defer srvB.Stop()
	srvB.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := srvB.Dial(ctx, srvA.tcpLn.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if !ch.IsRealtime() {
		t.Fatalf("expected dialer's channel to be realtime immediately after Dial returns")
	}
	if ch.NodeID != nodeA {
		t.Fatalf("expected dialed channel's NodeID to be the acceptor's node id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(tableA.Realtime()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	realtimeA := tableA.Realtime()
	if len(realtimeA) != 1 {
		t.Fatalf("expected acceptor's table to have exactly one realtime channel, got %d", len(realtimeA))
	}
	if realtimeA[0].NodeID != nodeB {
		t.Fatalf("expected acceptor's channel NodeID to be the dialer's node id")
	}
}
