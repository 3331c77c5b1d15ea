package server

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/netp"
	"github.com/latticenode/node/internal/unchecked"
)

type alwaysValidWorker struct{}

func (alwaysValidWorker) Validate(latticetypes.Account, blocks.Work, uint64) bool { return true }

type noopAdder struct{ added []blocks.Block }

func (a *noopAdder) Add(b blocks.Block, source unchecked.Source) { a.added = append(a.added, b) }

func newTestServer(t *testing.T) (*Server, *ledger.Ledger, *kvstore.Store, latticetypes.Account, net.Addr) {
	t.Helper()
	store, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var genesisAcct latticetypes.Account
	genesisAcct[0] = 1
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

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := New(ln, store, l, &noopAdder{}, 8, 5*time.Second)
	srv.Start()
	t.Cleanup(srv.Stop)

	return srv, l, store, genesisAcct, ln.Addr()
}

func TestServeFrontierReq(t *testing.T) {
	_, _, _, genesisAcct, addr := newTestServer(t)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	hdr := netp.NewHeader(netp.NetworkLive, netp.MessageFrontierReq)
	if err := hdr.Encode(conn); err != nil {
		t.Fatalf("Encode header: %v", err)
	}
	var req [40]byte
	binary.BigEndian.PutUint32(req[32:36], ^uint32(0))
	binary.BigEndian.PutUint32(req[36:40], ^uint32(0))
	if _, err := conn.Write(req[:]); err != nil {
		t.Fatalf("write req: %v", err)
	}

	r := bufio.NewReader(conn)
	var buf [64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		t.Fatalf("read frontier: %v", err)
	}
	var gotAccount latticetypes.Account
	copy(gotAccount[:], buf[:32])
	if gotAccount != genesisAcct {
		t.Fatalf("expected genesis account in frontier stream, got %x", gotAccount)
	}

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		t.Fatalf("read terminator: %v", err)
	}
	var zero [64]byte
	if buf != zero {
		t.Fatalf("expected zero terminator pair after the single frontier")
	}
}

func TestServeBulkPull(t *testing.T) {
	_, l, store, genesisAcct, addr := newTestServer(t)

	var head latticetypes.Hash
	err := store.View(func(tx kvstore.Tx) error {
		var ok bool
		var err error
		head, ok, err = l.Latest(tx, genesisAcct)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("no genesis frontier")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	hdr := netp.NewHeader(netp.NetworkLive, netp.MessageBulkPull)
	if err := hdr.Encode(conn); err != nil {
		t.Fatalf("Encode header: %v", err)
	}
	var req [64]byte
	copy(req[:32], genesisAcct[:])
	// end left zero: pull all the way to the open block
	if _, err := conn.Write(req[:]); err != nil {
		t.Fatalf("write req: %v", err)
	}

	r := bufio.NewReader(conn)
	typeByte, err := r.ReadByte()
	if err != nil {
		t.Fatalf("read type byte: %v", err)
	}
	blk, err := blocks.Decode(r, blocks.Type(typeByte))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if blk.Hash() != head {
		t.Fatalf("expected genesis block %s, got %s", head, blk.Hash())
	}

	terminator, err := r.ReadByte()
	if err != nil {
		t.Fatalf("read terminator: %v", err)
	}
	if blocks.Type(terminator) != blocks.TypeNotABlock {
		t.Fatalf("expected not_a_block terminator, got type %d", terminator)
	}
}
