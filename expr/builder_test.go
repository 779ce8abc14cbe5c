package expr

import "testing"

func TestHashConsingReturnsSameStructuralNode(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	y := b.BVS("x", 32)
	if x.Id() != y.Id() {
		t.Fatalf("expected two BVS(\"x\", 32) calls to hash-cons to the same node")
	}

	sum1, err := b.Add(x, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	sum2, err := b.Add(x, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	if sum1.Id() != sum2.Id() {
		t.Fatalf("expected structurally identical Add() calls to hash-cons")
	}
}

func TestAddConstantFolding(t *testing.T) {
	b := NewBuilder()
	sum, err := b.Add(b.BVV(2, 32), b.BVV(3, 32))
	if err != nil {
		t.Fatal(err)
	}
	c, err := sum.GetConst()
	if err != nil {
		t.Fatalf("expected constant fold, got %v", err)
	}
	if c.AsULong() != 5 {
		t.Fatalf("2+3: expected 5, got %d", c.AsULong())
	}
}

func TestAddCancelsOpposites(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	negX := b.Neg(x)
	sum, err := b.Add(x, negX)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.IsZero() {
		t.Fatalf("x + (-x) should fold to 0, got %s", sum.String())
	}
}

func TestExtractOfExtractComposesLowBounds(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	inner, err := b.Extract(x, 23, 8) // bits [8,23] of x, width 16
	if err != nil {
		t.Fatal(err)
	}
	outer, err := b.Extract(inner, 11, 4) // bits [4,11] of inner, width 8
	if err != nil {
		t.Fatal(err)
	}
	// composed: should be bits [12,19] of x
	again, err := b.Extract(x, 19, 12)
	if err != nil {
		t.Fatal(err)
	}
	if outer.Id() != again.Id() {
		t.Fatalf("extract-of-extract should compose to Extract(x,19,12); got %s vs %s", outer.String(), again.String())
	}
}

func TestAShrConstantFolding(t *testing.T) {
	b := NewBuilder()
	negOne := b.BVV(-1, 8)
	shifted, err := b.AShr(negOne, b.BVV(1, 8))
	if err != nil {
		t.Fatal(err)
	}
	c, err := shifted.GetConst()
	if err != nil {
		t.Fatalf("expected constant fold, got %v", err)
	}
	if c.AsULong() != 0xff {
		t.Fatalf("AShr(-1, 1) over 8 bits should stay 0xff (sign-filled), got %x", c.AsULong())
	}
}

func TestUnsignedComparisonIsMagnitudeNotAbs(t *testing.T) {
	b := NewBuilder()
	// 0xff as an 8-bit value is 255 unsigned, 0x01 is 1: 0xff should be UGt 0x01.
	hi := b.BVV(-1, 8) // all-ones pattern
	lo := b.BVV(1, 8)
	gt, err := b.UGt(hi, lo)
	if err != nil {
		t.Fatal(err)
	}
	if !gt.IsTrue() {
		t.Fatalf("expected 0xff UGt 0x01 to fold true")
	}
}

func TestEqUsesValueComparison(t *testing.T) {
	b := NewBuilder()
	a := b.BVV(7, 16)
	c := b.BVV(7, 16)
	eq, err := b.Eq(a, c)
	if err != nil {
		t.Fatal(err)
	}
	if !eq.IsTrue() {
		t.Fatalf("expected two separately-built BVV(7,16) constants to compare equal")
	}
}
