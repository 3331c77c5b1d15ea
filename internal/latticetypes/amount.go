package latticetypes

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// AmountSize is the wire width of an Amount: a 128-bit unsigned integer.
const AmountSize = 16

// Amount is a 128-bit unsigned quantity of raw units, stored big-endian.
// Arithmetic is performed through uint256.Int (a teacher dependency sized
// for 256-bit EVM words) and checked back down into 128 bits, since the
// standard library has no native 128-bit integer and pulling in math/big
// for every add/sub on the hot ledger path would cost an allocation per
// operation that uint256's stack-allocated limbs avoid.
type Amount [AmountSize]byte

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// MaxAmount is 2^128 - 1, the maximum representable raw balance (and the
// genesis supply in the scenarios of spec §8).
var MaxAmount = func() Amount {
	var a Amount
	for i := range a {
		a[i] = 0xff
	}
	return a
}()

func (a Amount) IsZero() bool { return a == ZeroAmount }

func (a Amount) big() *uint256.Int {
	return new(uint256.Int).SetBytes(a[:])
}

func fromBig(u *uint256.Int) (Amount, error) {
	var a Amount
	if u.Sign() < 0 {
		return a, fmt.Errorf("latticetypes: negative amount")
	}
	b := u.Bytes()
	if len(b) > AmountSize {
		return a, fmt.Errorf("latticetypes: amount overflows 128 bits")
	}
	copy(a[AmountSize-len(b):], b)
	return a, nil
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// Add returns a+b, erroring on overflow past 2^128-1.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := new(uint256.Int).Add(a.big(), b.big())
	return fromBig(sum)
}

// Sub returns a-b, erroring if b > a (negative spend).
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Cmp(b) < 0 {
		return Amount{}, fmt.Errorf("latticetypes: negative amount (%s - %s)", a, b)
	}
	diff := new(uint256.Int).Sub(a.big(), b.big())
	return fromBig(diff)
}

func (a Amount) String() string {
	return a.big().Dec()
}

// AmountFromUint64 is a convenience constructor used throughout tests and
// the genesis block.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	b := new(big.Int).SetUint64(v).Bytes()
	copy(a[AmountSize-len(b):], b)
	return a
}

// AmountFromDecimal parses a base-10 raw-unit string, the wire form
// nodeconfig.Config uses for receive_minimum and online_weight_minimum
// since TOML has no native 128-bit integer type.
func AmountFromDecimal(s string) (Amount, error) {
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("latticetypes: invalid decimal amount %q: %w", s, err)
	}
	return fromBig(u)
}

func AmountFromBytes(b []byte) (Amount, error) {
	var a Amount
	if len(b) != AmountSize {
		return a, ErrBadLength
	}
	copy(a[:], b)
	return a, nil
}
