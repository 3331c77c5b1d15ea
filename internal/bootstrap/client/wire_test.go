package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/netp"
)

func TestRequestFrontiersReadsUntilTerminator(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var acct latticetypes.Account
	acct[0] = 7
	var head latticetypes.Hash
	head[0] = 8

	go func() {
		// Drain the frontier_req header+body the client sends before
		// replying, mirroring a real bootstrap server's read-then-write.
		hdr, err := netp.DecodeHeader(serverConn)
		if err != nil || hdr.Type != netp.MessageFrontierReq {
			return
		}
		reqBody := make([]byte, frontierReqWireSize)
		if _, err := readFull(serverConn, reqBody); err != nil {
			return
		}
		serverConn.Write(acct[:])
		serverConn.Write(head[:])
		var zero [frontierWireSize]byte
		serverConn.Write(zero[:])
	}()

	ch := &netp.Channel{TCPConn: clientConn}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := requestFrontiers(ctx, ch)
	if err != nil {
		t.Fatalf("requestFrontiers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 frontier, got %d", len(got))
	}
	if got[0].Account != acct || got[0].Head != head {
		t.Fatalf("frontier mismatch: got %+v", got[0])
	}
}

func TestBulkPullSingleNotFound(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		netp.DecodeHeader(serverConn)
		body := make([]byte, 32+32) // bulk_pull body: account(32) + end(32)
		readFull(serverConn, body)
		serverConn.Write([]byte{byte(blocks.TypeNotABlock)})
	}()

	ch := &netp.Channel{TCPConn: clientConn}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var hash latticetypes.Hash
	hash[0] = 9
	if _, err := bulkPullSingle(ctx, ch, hash); err == nil {
		t.Fatalf("expected an error for a not_a_block reply")
	}
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestWireSize(t *testing.T) {
	send := &blocks.SendBlock{}
	if got, want := wireSize(send), 1+32+32+16+64+8; got != want {
		t.Errorf("SendBlock wireSize: want %d, got %d", want, got)
	}
}
