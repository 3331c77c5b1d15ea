package netp

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/latticenode/node/internal/blockproc"
	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticeevent"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticemetrics"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/unchecked"
)

// PublishedEvent is sent on Server.Published whenever a realtime peer
// broadcasts a block, for the block processor (or any other listener) to
// pick up without this package importing blockproc directly for anything
// beyond the Add signature.
type PublishedEvent struct {
	Block blocks.Block
	From  net.Addr
}

// Server owns the UDP socket and the TCP listener (node-id handshake),
// dispatching keepalive and publish frames into Table/Channel state per
// spec §4.8; frames of any other message type are counted as dropped.
type Server struct {
	network byte
	nodeID  latticetypes.Account
	priv    ed25519.PrivateKey

	udpConn *net.UDPConn
	tcpLn   net.Listener

	table *Table
	proc  *blockproc.Processor

	published latticeevent.Feed

	log latticelog.Logger

	rxMeter   interface{ Mark(int64) }
	dropMeter interface{ Mark(int64) }

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewServer binds the given UDP and TCP addresses and returns a Server
// ready for Start. priv is this node's ed25519 keypair, used to answer
// node-id handshake challenges.
func NewServer(network byte, nodeID latticetypes.Account, priv ed25519.PrivateKey, udpAddr, tcpAddr string, table *Table, proc *blockproc.Processor) (*Server, error) {
	uaddr, err := net.ResolveUDPAddr("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("netp: resolve udp addr: %w", err)
	}
	uconn, err := net.ListenUDP("udp", uaddr)
	if err != nil {
		return nil, fmt.Errorf("netp: listen udp: %w", err)
	}
	ln, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		uconn.Close()
		return nil, fmt.Errorf("netp: listen tcp: %w", err)
	}
	return &Server{
		network:   network,
		nodeID:    nodeID,
		priv:      priv,
		udpConn:   uconn,
		tcpLn:     ln,
		table:     table,
		proc:      proc,
		log:       latticelog.New("pkg", "netp"),
		rxMeter:   latticemetrics.Meter("netp/rx"),
		dropMeter: latticemetrics.Meter("netp/dropped"),
		quit:      make(chan struct{}),
	}, nil
}

func (s *Server) Published() *latticeevent.Feed { return &s.published }

func (s *Server) Start() {
	s.wg.Add(2)
	go s.udpLoop()
	go s.tcpAcceptLoop()
}

func (s *Server) Stop() {
	close(s.quit)
	s.udpConn.Close()
	s.tcpLn.Close()
	s.wg.Wait()
}

// udpLoop services keepalive and publish datagrams, the two message
// types spec §4.8 sends unconnected over UDP.
func (s *Server) udpLoop() {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn("udp read failed", "err", err)
				continue
			}
		}
		s.rxMeter.Mark(1)
		s.handleFrame(addr, buf[:n])
	}
}

// handleFrame dispatches one framed message, shared by the UDP read loop
// and the post-handshake TCP stream (both carry the same keepalive and
// publish message types once a channel is realtime).
func (s *Server) handleFrame(from net.Addr, frame []byte) {
	r := bytes.NewReader(frame)
	hdr, err := DecodeHeader(r)
	if err != nil {
		s.dropMeter.Mark(1)
		return
	}
	if hdr.Network != s.network {
		s.dropMeter.Mark(1)
		return
	}
	switch hdr.Type {
	case MessageKeepalive:
		s.table.NoteCandidate(from.String())
		if ch, ok := s.table.Get(from.String()); ok {
			ch.Touch()
		}
	case MessagePublish:
		s.handlePublish(from, r)
	default:
		s.dropMeter.Mark(1)
	}
}

func (s *Server) handlePublish(from net.Addr, r *bytes.Reader) {
	if r.Len() == 0 {
		s.dropMeter.Mark(1)
		return
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		s.dropMeter.Mark(1)
		return
	}
	b, err := blocks.Decode(r, blocks.Type(typeByte))
	if err != nil {
		s.dropMeter.Mark(1)
		return
	}
	s.proc.Add(b, unchecked.SourceLive)
	s.published.Send(PublishedEvent{Block: b, From: from})
}

// tcpAcceptLoop handles inbound connections: the node-id handshake, then
// keepalive and publish frames. Bootstrap requests are not served here.
func (s *Server) tcpAcceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn("tcp accept failed", "err", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.serveTCP(conn)
	}
}

// serveTCP handles an inbound connection: it owns the acceptor side of
// the handshake before falling into the shared post-handshake stream
// loop.
func (s *Server) serveTCP(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	ch := &Channel{Endpoint: conn.RemoteAddr(), TCPConn: conn, LastPacketReceived: time.Now()}
	s.table.Add(conn.RemoteAddr().String(), ch)
	defer s.table.Remove(conn.RemoteAddr().String())

	if err := s.acceptHandshake(conn, ch); err != nil {
		s.log.Debug("handshake failed", "peer", conn.RemoteAddr(), "err", err)
		return
	}

	s.streamLoop(conn, ch)
}

// streamLoop reads framed messages off an already-realtime connection
// until it closes or errors. Used for both inbound (after serveTCP's
// acceptHandshake) and outbound (after Dial's initiator handshake)
// channels.
func (s *Server) streamLoop(conn net.Conn, ch *Channel) {
	buf := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		ch.Touch()
		s.handleFrame(conn.RemoteAddr(), buf[:n])
	}
}

// acceptHandshake answers an initiator's cookie challenge and issues its
// own, completing the three-message mutual handshake of spec §4.8:
// query -> response (signature + piggybacked own query) -> finish.
func (s *Server) acceptHandshake(conn net.Conn, ch *Channel) error {
	hdr, err := DecodeHeader(conn)
	if err != nil {
		return err
	}
	if hdr.Type != MessageNodeIDHandshake {
		return fmt.Errorf("netp: expected handshake, got %v", hdr.Type)
	}
	query, err := DecodeHandshakeQuery(conn)
	if err != nil {
		return err
	}

	ownQuery, err := NewCookie()
	if err != nil {
		return err
	}
	resp := HandshakeResponse{
		NodeID:    s.nodeID,
		Signature: SignCookie(query.Cookie, s.priv),
		OwnQuery:  &ownQuery,
	}
	if err := NewHeader(s.network, MessageNodeIDHandshake).Encode(conn); err != nil {
		return err
	}
	if err := resp.Encode(conn); err != nil {
		return err
	}

	finHdr, err := DecodeHeader(conn)
	if err != nil {
		return err
	}
	if finHdr.Type != MessageNodeIDHandshake {
		return fmt.Errorf("netp: expected handshake finish, got %v", finHdr.Type)
	}
	fin, err := DecodeHandshakeFinish(conn)
	if err != nil {
		return err
	}
	if !VerifyCookie(ownQuery, fin.NodeID, fin.Signature) {
		return fmt.Errorf("netp: handshake finish signature invalid")
	}

	ch.Promote(fin.NodeID, hdr.VersionUsing)
	return nil
}

// Dial opens an outbound TCP channel and drives the initiator side of the
// handshake against a known peer address.
func (s *Server) Dial(ctx context.Context, addr string) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	ch := &Channel{Endpoint: conn.RemoteAddr(), TCPConn: conn, LastPacketReceived: time.Now()}

	cookie, err := NewCookie()
	if err != nil {
		conn.Close()
		return nil, err
	}
	hdr := NewHeader(s.network, MessageNodeIDHandshake)
	if err := hdr.Encode(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := (HandshakeQuery{Cookie: cookie}).Encode(conn); err != nil {
		conn.Close()
		return nil, err
	}

	respHdr, err := DecodeHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if respHdr.Type != MessageNodeIDHandshake {
		conn.Close()
		return nil, fmt.Errorf("netp: expected handshake response, got %v", respHdr.Type)
	}
	resp, err := DecodeHandshakeResponse(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !VerifyCookie(cookie, resp.NodeID, resp.Signature) {
		conn.Close()
		return nil, fmt.Errorf("netp: handshake response signature invalid")
	}

	if resp.OwnQuery != nil {
		fin := HandshakeFinish{NodeID: s.nodeID, Signature: SignCookie(*resp.OwnQuery, s.priv)}
		if err := NewHeader(s.network, MessageNodeIDHandshake).Encode(conn); err != nil {
			conn.Close()
			return nil, err
		}
		if err := fin.Encode(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	ch.Promote(resp.NodeID, respHdr.VersionUsing)
	s.table.Add(conn.RemoteAddr().String(), ch)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()
		defer s.table.Remove(conn.RemoteAddr().String())
		s.streamLoop(conn, ch)
	}()
	return ch, nil
}

// Broadcast sends a keepalive datagram to every realtime channel, the
// liveness mechanism spec §4.8 relies on to keep NAT mappings and peer
// lists fresh.
func (s *Server) Broadcast() {
	hdr := NewHeader(s.network, MessageKeepalive)
	var buf bytes.Buffer
	hdr.Encode(&buf)
	for _, ch := range s.table.Realtime() {
		s.sendTo(ch, buf.Bytes())
	}
}

// sendTo writes frame to ch over whichever transport it was established
// on: the shared UDP socket for realtime peers reached by datagram, or
// the channel's own TCP connection otherwise.
func (s *Server) sendTo(ch *Channel, frame []byte) {
	if ch.TCPConn != nil {
		ch.TCPConn.Write(frame)
		return
	}
	if udpAddr, ok := ch.Endpoint.(*net.UDPAddr); ok {
		s.udpConn.WriteToUDP(frame, udpAddr)
	}
}

// PublishBlock broadcasts b to every realtime peer through sendTo (the
// channel's TCP connection when it has one, else the UDP socket), the
// fire-and-forget propagation path for newly processed blocks.
func (s *Server) PublishBlock(b blocks.Block) error {
	var buf bytes.Buffer
	hdr := NewHeader(s.network, MessagePublish)
	if err := hdr.Encode(&buf); err != nil {
		return err
	}
	if err := blocks.Encode(&buf, b); err != nil {
		return err
	}
	for _, ch := range s.table.Realtime() {
		s.sendTo(ch, buf.Bytes())
	}
	return nil
}
