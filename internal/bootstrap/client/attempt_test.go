package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/latticenode/node/internal/blockproc"
	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/netp"
	bsserver "github.com/latticenode/node/internal/bootstrap/server"
	"github.com/latticenode/node/internal/unchecked"
)

func TestTargetConnectionsScalesBetweenMinAndMax(t *testing.T) {
	if got := targetConnections(0, 4, 64); got != 4 {
		t.Errorf("0 remaining: want min 4, got %d", got)
	}
	if got := targetConnections(connectionScaleTargetBlocks*2, 4, 64); got != 64 {
		t.Errorf("far over target: want max 64, got %d", got)
	}
	if got := targetConnections(int(connectionScaleTargetBlocks/2), 4, 64); got <= 4 || got >= 64 {
		t.Errorf("half target: want a value strictly between min and max, got %d", got)
	}
}

func TestTargetConnectionsMaxBelowMinReturnsMin(t *testing.T) {
	if got := targetConnections(1000, 10, 4); got != 10 {
		t.Errorf("want min returned when max <= min, got %d", got)
	}
}

func TestMaxLazyStoppedDefaultsTo256(t *testing.T) {
	a := &Attempt{opts: Options{}}
	if got := maxLazyStopped(a); got != 256 {
		t.Errorf("want default 256, got %d", got)
	}
}

func TestMaxLazyStoppedHonorsOption(t *testing.T) {
	a := &Attempt{opts: Options{LazyMaxStopped: 7}}
	if got := maxLazyStopped(a); got != 7 {
		t.Errorf("want configured 7, got %d", got)
	}
}

type alwaysValidWorker struct{}

func (alwaysValidWorker) Validate(latticetypes.Account, blocks.Work, uint64) bool { return true }

// tcpDialer is a minimal Dialer that opens a plain TCP connection and
// wraps it as an unhandshaked netp.Channel, enough to exercise the
// bootstrap wire protocol against a real bootstrap/server.Server without
// standing up the full netp handshake layer.
type tcpDialer struct{ addr string }

func (d tcpDialer) Dial(ctx context.Context, addr string) (*netp.Channel, error) {
	conn, err := net.Dial("tcp", d.addr)
	if err != nil {
		return nil, err
	}
	return &netp.Channel{TCPConn: conn}, nil
}

func TestRunLegacyPullsGenesisFromPeer(t *testing.T) {
	sourceStore, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer sourceStore.Close()

	var genesisAcct latticetypes.Account
	genesisAcct[0] = 1
	sourceLedger := ledger.New(sourceStore, alwaysValidWorker{}, ledger.Epochs{}, 0)
	err = sourceStore.Update(kvstore.WriterTesting, func(tx kvstore.WriteTx) error {
		return ledger.InitGenesis(tx, sourceLedger, ledger.GenesisSpec{
			Account:        genesisAcct,
			Representative: genesisAcct,
			Balance:        latticetypes.MaxAmount,
		})
	})
	if err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := bsserver.New(ln, sourceStore, sourceLedger, &noopAdder{}, 8, 5*time.Second)
	srv.Start()
	defer srv.Stop()

	destStore, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer destStore.Close()
	destLedger := ledger.New(destStore, alwaysValidWorker{}, ledger.Epochs{}, 0)
	unc := unchecked.New()
	proc := blockproc.New(destStore, destLedger, unc, blockproc.Options{})
	proc.Start()
	defer proc.Stop()

	attempt := New(ModeLegacy, []string{ln.Addr().String()}, tcpDialer{addr: ln.Addr().String()}, destStore, destLedger, proc, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := attempt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		err := destStore.View(func(tx kvstore.Tx) error {
			var err error
			_, ok, err = destLedger.Latest(tx, genesisAcct)
			return err
		})
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("genesis block was never bootstrapped into the destination ledger")
}

type noopAdder struct{}

func (noopAdder) Add(b blocks.Block, source unchecked.Source) {}
