// Package powwork provides the core's trivial CPU reference
// implementation of spec §1's Worker interface. Real proof-of-work
// generation (CPU farm, GPU, or a distributed work-server pool) is an
// external collaborator; this package exists so tests and local
// development don't need one.
//
// Validation is grounded on original_source/nano's work_validate: the
// work nonce is valid for root at a given difficulty when the 8-byte
// blake2b digest of (work_le || root), read as a little-endian uint64,
// is >= difficulty.
package powwork

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/latticenode/node/internal/blocks"
	"github.com/latticenode/node/internal/latticetypes"
)

// CPUWorker validates (and, for tests, generates) proof-of-work nonces
// by brute-force blake2b hashing on the calling goroutine.
type CPUWorker struct{}

func New() CPUWorker { return CPUWorker{} }

func workValue(root latticetypes.Account, work blocks.Work) uint64 {
	var workLE [8]byte
	binary.LittleEndian.PutUint64(workLE[:], uint64(work))

	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(err)
	}
	h.Write(workLE[:])
	h.Write(root[:])
	digest := h.Sum(nil)
	return binary.LittleEndian.Uint64(digest)
}

// Validate reports whether work satisfies difficulty for root.
func (CPUWorker) Validate(root latticetypes.Account, work blocks.Work, difficulty uint64) bool {
	return workValue(root, work) >= difficulty
}

// Generate brute-forces a nonce satisfying difficulty for root. Intended
// for tests and local single-node development only; a real deployment
// wires an external work-server pool instead (spec §1).
func (CPUWorker) Generate(root latticetypes.Account, difficulty uint64) (blocks.Work, error) {
	for nonce := uint64(0); ; nonce++ {
		w := blocks.Work(nonce)
		if workValue(root, w) >= difficulty {
			return w, nil
		}
	}
}
