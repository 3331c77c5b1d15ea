package client

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/netp"
)

// frontier is one (account, head) pair of a peer's frontier stream
// (spec §4.6 step 2; original: frontier_req_client::received_frontier).
type frontier struct {
	Account latticetypes.Account
	Head    latticetypes.Hash
}

const frontierWireSize = 32 + 32
const frontierReqWireSize = 32 + 4 + 4

// requestFrontiers sends a frontier_req asking for every account
// (start=zero, age=max, count=max) and reads the response stream until
// the (zero, zero) terminator pair.
func requestFrontiers(ctx context.Context, ch *netp.Channel) ([]frontier, error) {
	conn := ch.TCPConn
	if conn == nil {
		return nil, fmt.Errorf("bootstrap: channel has no TCP connection")
	}
	hdr := netp.NewHeader(netp.NetworkLive, netp.MessageFrontierReq)
	if err := hdr.Encode(conn); err != nil {
		return nil, err
	}
	var req [frontierReqWireSize]byte // start(32) + age(4) + count(4) big-endian
	binary.BigEndian.PutUint32(req[32:36], ^uint32(0))
	binary.BigEndian.PutUint32(req[36:40], ^uint32(0))
	if _, err := conn.Write(req[:]); err != nil {
		return nil, err
	}

	r := bufio.NewReader(conn)
	var out []frontier
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		var buf [frontierWireSize]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return out, err
		}
		var f frontier
		copy(f.Account[:], buf[:32])
		copy(f.Head[:], buf[32:])
		if f.Account.IsZero() && f.Head.IsZero() {
			return out, nil
		}
		out = append(out, f)
	}
}

// bulkPullRequest is the wire body of bulk_pull: the account chain to
// pull and the known-good hash to stop at (zero means "to the open
// block").
type bulkPullRequest struct {
	Account latticetypes.Account
	End     latticetypes.Hash
}

func (r bulkPullRequest) encode(w io.Writer) error {
	if _, err := w.Write(r.Account[:]); err != nil {
		return err
	}
	_, err := w.Write(r.End[:])
	return err
}

// bulkPull streams an account's chain from its head down to end
// (exclusive), or down to the open block when end is not reached, until a
// not_a_block sentinel, feeding each decoded block to onBlock in the
// order the server emits it (spec §4.7 bulk_pull server reply format).
func bulkPull(ctx context.Context, ch *netp.Channel, account latticetypes.Account, end latticetypes.Hash, limiter *rate.Limiter, onBlock func(blocks.Block) error) error {
	conn := ch.TCPConn
	if conn == nil {
		return fmt.Errorf("bootstrap: channel has no TCP connection")
	}
	hdr := netp.NewHeader(netp.NetworkLive, netp.MessageBulkPull)
	if err := hdr.Encode(conn); err != nil {
		return err
	}
	if err := (bulkPullRequest{Account: account, End: end}).encode(conn); err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		typeByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		if blocks.Type(typeByte) == blocks.TypeNotABlock {
			return nil
		}
		b, err := blocks.Decode(r, blocks.Type(typeByte))
		if err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.WaitN(ctx, wireSize(b)); err != nil {
				return err
			}
		}
		if err := onBlock(b); err != nil {
			return err
		}
	}
}

// bulkPullSingle fetches exactly one block by hash, used by lazy mode
// (spec §4.6 Lazy mode: "bounded by lazy_max_pull_blocks per request").
func bulkPullSingle(ctx context.Context, ch *netp.Channel, hash latticetypes.Hash) (blocks.Block, error) {
	conn := ch.TCPConn
	if conn == nil {
		return nil, fmt.Errorf("bootstrap: channel has no TCP connection")
	}
	hdr := netp.NewHeader(netp.NetworkLive, netp.MessageBulkPull)
	if err := hdr.Encode(conn); err != nil {
		return nil, err
	}
	// A lazy pull asks for the single hash as both account-root and end:
	// the server resolves it via the block index rather than an account
	// chain walk (spec §4.7 lazy-pull variant).
	var asAccount latticetypes.Account
	copy(asAccount[:], hash[:])
	if err := (bulkPullRequest{Account: asAccount, End: hash}).encode(conn); err != nil {
		return nil, err
	}
	r := bufio.NewReader(conn)
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if blocks.Type(typeByte) == blocks.TypeNotABlock {
		return nil, fmt.Errorf("bootstrap: lazy pull %x not found", hash)
	}
	return blocks.Decode(r, blocks.Type(typeByte))
}

// pendingPair is one (hash, amount) entry of a bulk_pull_account reply
// (spec §4.6 Wallet lazy mode).
type pendingPair struct {
	Hash   latticetypes.Hash
	Amount latticetypes.Amount
}

func bulkPullAccount(ctx context.Context, ch *netp.Channel, account latticetypes.Account) ([]pendingPair, error) {
	conn := ch.TCPConn
	if conn == nil {
		return nil, fmt.Errorf("bootstrap: channel has no TCP connection")
	}
	hdr := netp.NewHeader(netp.NetworkLive, netp.MessageBulkPullAccount)
	if err := hdr.Encode(conn); err != nil {
		return nil, err
	}
	if _, err := conn.Write(account[:]); err != nil {
		return nil, err
	}

	r := bufio.NewReader(conn)
	var out []pendingPair
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		var buf [48]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return out, err
		}
		var p pendingPair
		copy(p.Hash[:], buf[:32])
		copy(p.Amount[:], buf[32:48])
		if p.Hash.IsZero() {
			return out, nil
		}
		out = append(out, p)
	}
}

// wireSize estimates a block's on-wire byte count for bandwidth shaping;
// exact to within the signature+work suffix shared by every variant.
func wireSize(b blocks.Block) int {
	const sigWork = 64 + 8
	switch b.(type) {
	case *blocks.SendBlock:
		return 1 + 32 + 32 + 16 + sigWork
	case *blocks.ReceiveBlock:
		return 1 + 32 + 32 + sigWork
	case *blocks.OpenBlock:
		return 1 + 32 + 32 + 32 + sigWork
	case *blocks.ChangeBlock:
		return 1 + 32 + 32 + sigWork
	case *blocks.StateBlock:
		return 1 + 32 + 32 + 32 + 16 + 32 + sigWork
	default:
		return 1 + sigWork
	}
}
