package wp

import (
	"testing"

	"github.com/txinterp/core/expr"
)

func TestPushOneBranchTakenAddsCondition(t *testing.T) {
	b := expr.NewBuilder()
	p := NewPass(b)
	x := b.BVS("x", 32)
	cond, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	target := b.BoolVal(true)
	out, err := p.Run([]RecordedInstr{{IsBranch: true, Cond: cond, Flag: FlagTaken}}, target)
	if err != nil {
		t.Fatal(err)
	}
	expected, err := b.BoolAnd(target, cond)
	if err != nil {
		t.Fatal(err)
	}
	if out.Expr.Id() != expected.Id() {
		t.Fatalf("a taken branch should conjoin its condition onto the accumulator")
	}
}

func TestPushOneBranchNotTakenAddsNegation(t *testing.T) {
	b := expr.NewBuilder()
	p := NewPass(b)
	x := b.BVS("x", 32)
	cond, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	target := b.BoolVal(true)
	out, err := p.Run([]RecordedInstr{{IsBranch: true, Cond: cond, Flag: FlagNotTaken}}, target)
	if err != nil {
		t.Fatal(err)
	}
	notCond, err := b.BoolNot(cond)
	if err != nil {
		t.Fatal(err)
	}
	expected, err := b.BoolAnd(target, notCond)
	if err != nil {
		t.Fatal(err)
	}
	if out.Expr.Id() != expected.Id() {
		t.Fatalf("a not-taken branch should conjoin the condition's negation")
	}
}

func TestPushStoreSubstitutesAddress(t *testing.T) {
	b := expr.NewBuilder()
	p := NewPass(b)
	addr := b.BVS("p", 64)
	val := b.BVV(7, 64)
	target, err := b.Eq(addr, b.BVV(0, 64))
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Run([]RecordedInstr{{StoreAddr: addr, StoreValue: val}}, target)
	if err != nil {
		t.Fatal(err)
	}
	if out.Expr.Id() != b.BoolVal(false).Id() {
		t.Fatalf("pushing the store p := 7 through p == 0 should substitute the value for the address, folding to false")
	}
}

func TestArrayStoreMergeConcatenatesWrites(t *testing.T) {
	a := NewArrayStore("arr", 32)
	bStore := NewArrayStore("arr", 32)
	b := expr.NewBuilder()
	a.CreateAndInsert(b.BVV(0, 32), b.BVV(1, 32))
	bStore.CreateAndInsert(b.BVV(4, 32), b.BVV(2, 32))
	merged := a.Merge(bStore)
	if len(merged.writes) != 2 {
		t.Fatalf("merging two array stores should concatenate their write logs")
	}
}
