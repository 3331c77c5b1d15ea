package blocks

import (
	"crypto/ed25519"

	"github.com/latticenode/node/internal/latticetypes"
)

// Sign computes b's signature over its hash using priv, and installs it
// via SetSignature. Callers typically use this only in tests and in the
// wallet collaborator outside this module; the ledger only ever verifies.
func Sign(b Block, priv ed25519.PrivateKey) {
	h := b.Hash()
	sig := ed25519.Sign(priv, h[:])
	var s Signature
	copy(s[:], sig)
	b.SetSignature(s)
}

// Verify reports whether b's signature is valid over its hash for the
// given public-key account.
func Verify(b Block, signer latticetypes.Account) bool {
	h := b.Hash()
	sig := b.Signature()
	return ed25519.Verify(ed25519.PublicKey(signer[:]), h[:], sig[:])
}
