package netp

import (
	"net"
	"sync"
	"time"

	"github.com/latticenode/node/internal/latticetypes"
)

// ChannelState tracks whether a channel has completed the node-id
// handshake (spec §4.8: "a channel is promoted to realtime only after
// mutual handshake; until then it is undefined and may only serve
// bootstrap messages").
type ChannelState uint8

const (
	ChannelUndefined ChannelState = iota
	ChannelRealtime
)

// Channel is one peer connection, UDP or TCP.
type Channel struct {
	mu sync.RWMutex

	Endpoint           net.Addr
	NodeID             latticetypes.Account
	ProtocolVersion    byte
	LastPacketReceived time.Time
	State              ChannelState

	// TCPConn is non-nil for TCP (bootstrap/realtime) channels; a UDP
	// channel only ever has an Endpoint, messages going through the
	// shared UDP socket.
	TCPConn net.Conn
}

func (c *Channel) Touch() {
	c.mu.Lock()
	c.LastPacketReceived = time.Now()
	c.mu.Unlock()
}

func (c *Channel) Promote(nodeID latticetypes.Account, version byte) {
	c.mu.Lock()
	c.NodeID = nodeID
	c.ProtocolVersion = version
	c.State = ChannelRealtime
	c.mu.Unlock()
}

func (c *Channel) IsRealtime() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.State == ChannelRealtime
}

func (c *Channel) IdleFor(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Sub(c.LastPacketReceived)
}

func (c *Channel) Close() error {
	if c.TCPConn != nil {
		return c.TCPConn.Close()
	}
	return nil
}
