// Package netp is the network/channel layer of spec §4.8: UDP for
// keepalives and publish, TCP for bootstrap and realtime streams, both
// framed by the same 9-byte message header and gated by a node-id
// handshake before a channel is promoted to realtime.
package netp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the one-byte message tag carried in the header's type
// field.
type MessageType uint8

const (
	MessageInvalid MessageType = iota
	MessageNodeIDHandshake
	MessageKeepalive
	MessagePublish
	MessageConfirmReq
	MessageConfirmAck
	MessageBulkPull
	MessageBulkPullAccount
	MessageBulkPush
	MessageFrontierReq
)

// magic identifies the protocol; networkLive/Beta/Test distinguish the
// three logical networks a header can target (spec §6 Network field).
var magic = [2]byte{'L', 'N'}

const (
	NetworkLive byte = iota
	NetworkBeta
	NetworkTest
)

// ProtocolVersion is this build's wire version; ProtocolVersionMin is the oldest
// peer version this node still accepts.
const (
	ProtocolVersion    byte = 19
	ProtocolVersionMin byte = 18
)

// Header is the fixed 9-byte frame prefix on every message: magic(2) +
// network(1) + version_max(1) + version_using(1) + version_min(1) +
// type(1) + extensions(2, big-endian).
type Header struct {
	Network      byte
	VersionMax   byte
	VersionUsing byte
	VersionMin   byte
	Type         MessageType
	Extensions   uint16
}

const HeaderSize = 9

func (h Header) Encode(w io.Writer) error {
	var buf [HeaderSize]byte
	buf[0], buf[1] = magic[0], magic[1]
	buf[2] = h.Network
	buf[3] = h.VersionMax
	buf[4] = h.VersionUsing
	buf[5] = h.VersionMin
	buf[6] = byte(h.Type)
	binary.BigEndian.PutUint16(buf[7:], h.Extensions)
	_, err := w.Write(buf[:])
	return err
}

func DecodeHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	if buf[0] != magic[0] || buf[1] != magic[1] {
		return Header{}, fmt.Errorf("netp: bad magic %x%x", buf[0], buf[1])
	}
	return Header{
		Network:      buf[2],
		VersionMax:   buf[3],
		VersionUsing: buf[4],
		VersionMin:   buf[5],
		Type:         MessageType(buf[6]),
		Extensions:   binary.BigEndian.Uint16(buf[7:]),
	}, nil
}

func NewHeader(network byte, t MessageType) Header {
	return Header{
		Network:      network,
		VersionMax:   ProtocolVersion,
		VersionUsing: ProtocolVersion,
		VersionMin:   ProtocolVersionMin,
		Type:         t,
	}
}
