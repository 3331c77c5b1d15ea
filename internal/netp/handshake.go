package netp

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticetypes"
)

// Cookie is the random nonce a node-id handshake initiator challenges a
// peer to sign, proving possession of the claimed node key (spec §4.8).
type Cookie [32]byte

func NewCookie() (Cookie, error) {
	var c Cookie
	_, err := rand.Read(c[:])
	return c, err
}

// SignCookie answers a peer's challenge with this node's own signature.
func SignCookie(c Cookie, priv ed25519.PrivateKey) blocks.Signature {
	sig := ed25519.Sign(priv, c[:])
	var s blocks.Signature
	copy(s[:], sig)
	return s
}

// VerifyCookie checks a peer's signature over the cookie this node sent.
func VerifyCookie(c Cookie, nodeID latticetypes.Account, sig blocks.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(nodeID[:]), c[:], sig[:])
}

// HandshakeQuery is sent by the initiator: "query=cookie" (spec §4.8).
type HandshakeQuery struct {
	Cookie Cookie
}

func (q HandshakeQuery) Encode(w io.Writer) error {
	_, err := w.Write(q.Cookie[:])
	return err
}

func DecodeHandshakeQuery(r io.Reader) (HandshakeQuery, error) {
	var q HandshakeQuery
	_, err := io.ReadFull(r, q.Cookie[:])
	return q, err
}

// HandshakeResponse answers a query with a signature over it, and
// piggy-backs the responder's own query so the initiator can complete
// its side of the mutual handshake in the same round trip.
type HandshakeResponse struct {
	NodeID    latticetypes.Account
	Signature blocks.Signature
	OwnQuery  *Cookie
}

func (r HandshakeResponse) Encode(w io.Writer) error {
	if _, err := w.Write(r.NodeID[:]); err != nil {
		return err
	}
	if _, err := w.Write(r.Signature[:]); err != nil {
		return err
	}
	present := byte(0)
	if r.OwnQuery != nil {
		present = 1
	}
	if _, err := w.Write([]byte{present}); err != nil {
		return err
	}
	if present == 1 {
		if _, err := w.Write(r.OwnQuery[:]); err != nil {
			return err
		}
	}
	return nil
}

func DecodeHandshakeResponse(r io.Reader) (HandshakeResponse, error) {
	var resp HandshakeResponse
	if _, err := io.ReadFull(r, resp.NodeID[:]); err != nil {
		return resp, err
	}
	if _, err := io.ReadFull(r, resp.Signature[:]); err != nil {
		return resp, err
	}
	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return resp, err
	}
	if present[0] == 1 {
		var c Cookie
		if _, err := io.ReadFull(r, c[:]); err != nil {
			return resp, err
		}
		resp.OwnQuery = &c
	}
	return resp, nil
}

// HandshakeFinish is the initiator's final message: its own signature
// over the responder's piggy-backed query.
type HandshakeFinish struct {
	NodeID    latticetypes.Account
	Signature blocks.Signature
}

func (f HandshakeFinish) Encode(w io.Writer) error {
	if _, err := w.Write(f.NodeID[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Signature[:])
	return err
}

func DecodeHandshakeFinish(r io.Reader) (HandshakeFinish, error) {
	var f HandshakeFinish
	if _, err := io.ReadFull(r, f.NodeID[:]); err != nil {
		return f, err
	}
	_, err := io.ReadFull(r, f.Signature[:])
	return f, err
}
