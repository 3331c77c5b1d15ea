package latticetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Exercised with testify where a table of independent comparisons reads
// more clearly as assertions than as a chain of if/t.Fatalf blocks,
// matching the teacher's mixed plain-testing/testify style.
func TestAmountCmp(t *testing.T) {
	small := AmountFromUint64(1)
	big := AmountFromUint64(2)

	require.Equal(t, -1, small.Cmp(big))
	require.Equal(t, 1, big.Cmp(small))
	require.Equal(t, 0, small.Cmp(AmountFromUint64(1)))
	require.True(t, ZeroAmount.Cmp(small) < 0)
	require.True(t, MaxAmount.Cmp(big) > 0)
}

func TestAmountStringIsDecimal(t *testing.T) {
	require.Equal(t, "12345", AmountFromUint64(12345).String())
	require.Equal(t, "0", ZeroAmount.String())
}
