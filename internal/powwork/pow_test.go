package powwork

import (
	"testing"

	"github.com/latticenode/node/internal/latticetypes"
)

func TestGenerateSatisfiesValidate(t *testing.T) {
	w := New()
	var root latticetypes.Account
	for i := range root {
		root[i] = byte(i)
	}

	const difficulty = uint64(0x0000000000000001) // trivially easy, keeps the test fast
	work, err := w.Generate(root, difficulty)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !w.Validate(root, work, difficulty) {
		t.Fatalf("generated work %d does not validate at difficulty %x", work, difficulty)
	}
}

func TestValidateRejectsWrongRoot(t *testing.T) {
	w := New()
	var rootA, rootB latticetypes.Account
	rootB[0] = 1

	const difficulty = uint64(0xf000000000000000)
	work, err := w.Generate(rootA, difficulty)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !w.Validate(rootA, work, difficulty) {
		t.Fatalf("work should validate against the root it was generated for")
	}
	if w.Validate(rootB, work, difficulty) {
		t.Fatalf("work generated for rootA unexpectedly validates against rootB")
	}
}

func TestValidateZeroDifficultyAlwaysPasses(t *testing.T) {
	w := CPUWorker{}
	var root latticetypes.Account
	if !w.Validate(root, 0, 0) {
		t.Fatalf("difficulty 0 must always validate")
	}
}
