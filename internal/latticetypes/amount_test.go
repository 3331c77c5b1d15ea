package latticetypes

import "testing"

func TestAmountAddSub(t *testing.T) {
	a := AmountFromUint64(100)
	b := AmountFromUint64(40)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.Cmp(AmountFromUint64(140)) != 0 {
		t.Fatalf("100+40: want 140, got %s", sum)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if diff.Cmp(AmountFromUint64(60)) != 0 {
		t.Fatalf("100-40: want 60, got %s", diff)
	}
}

func TestAmountSubNegativeErrors(t *testing.T) {
	a := AmountFromUint64(1)
	b := AmountFromUint64(2)
	if _, err := a.Sub(b); err == nil {
		t.Fatalf("expected error subtracting a larger amount")
	}
}

func TestAmountAddOverflowErrors(t *testing.T) {
	one := AmountFromUint64(1)
	if _, err := MaxAmount.Add(one); err == nil {
		t.Fatalf("expected overflow error adding to MaxAmount")
	}
}

func TestAmountFromDecimalRoundTrip(t *testing.T) {
	want := AmountFromUint64(123456789)
	got, err := AmountFromDecimal("123456789")
	if err != nil {
		t.Fatalf("AmountFromDecimal: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestAmountFromDecimalRejectsGarbage(t *testing.T) {
	if _, err := AmountFromDecimal("not-a-number"); err == nil {
		t.Fatalf("expected error for non-numeric input")
	}
}

func TestAmountFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := AmountFromBytes(make([]byte, AmountSize-1)); err == nil {
		t.Fatalf("expected error for short byte slice")
	}
}

func TestZeroAmountIsZero(t *testing.T) {
	if !ZeroAmount.IsZero() {
		t.Fatalf("ZeroAmount.IsZero() should be true")
	}
	if AmountFromUint64(1).IsZero() {
		t.Fatalf("non-zero amount reported as zero")
	}
}
