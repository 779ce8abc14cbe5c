package expr

import "testing"

func TestSubstituteReplacesFreeOccurrences(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	y := b.BVS("y", 32)
	sum, err := b.Add(x, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	substituted := b.Substitute(sum, x, y).(*BVExprPtr)

	expected, err := b.Add(y, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	if substituted.Id() != expected.Id() {
		t.Fatalf("Substitute(x+1, x, y) should equal y+1, got %s", substituted.String())
	}
}

func TestSubstituteIsNoopOnAbsentSymbol(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	y := b.BVS("y", 32)
	z := b.BVS("z", 32)
	e := b.Neg(x)
	out := b.Substitute(e, y, z).(*BVExprPtr)
	if out.Id() != e.Id() {
		t.Fatalf("substituting an absent symbol should be a no-op")
	}
}

func TestSubstituteReachesThroughITECondition(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	y := b.BVS("y", 32)
	cond, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	ite, err := b.ITE(cond, b.BVV(1, 32), b.BVV(2, 32))
	if err != nil {
		t.Fatal(err)
	}
	out := b.Substitute(ite, x, y).(*BVExprPtr)

	expectedCond, err := b.Eq(y, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	expected, err := b.ITE(expectedCond, b.BVV(1, 32), b.BVV(2, 32))
	if err != nil {
		t.Fatal(err)
	}
	if out.Id() != expected.Id() {
		t.Fatalf("substitution should rewrite inside an ITE's boolean condition, got %s", out.String())
	}
}

func TestArrayReadFoldsOverMostRecentWrite(t *testing.T) {
	b := NewBuilder()
	arr := b.NewArray("a", 32)
	idx := b.BVS("i", 32)
	v1 := b.BVV(10, 32)
	v2 := b.BVV(20, 32)

	arr, err := b.Update(arr, idx, v1)
	if err != nil {
		t.Fatal(err)
	}
	arr, err = b.Update(arr, idx, v2)
	if err != nil {
		t.Fatal(err)
	}
	read, err := b.Read(arr, idx)
	if err != nil {
		t.Fatal(err)
	}
	if read.Id() != v2.Id() {
		t.Fatalf("reading back an index with two writes at the same concrete index should fold to the last write")
	}
}

func TestExistsDropsUnusedBoundVariables(t *testing.T) {
	b := NewBuilder()
	x := b.BVS("x", 32)
	unused := b.BVS("unused", 32)
	body, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	q := b.Exists([]*BVExprPtr{x, unused}, body)
	bound := ExistsBound(q)
	if len(bound) != 1 || bound[0].Id() != x.Id() {
		t.Fatalf("Exists should drop bound variables with no free occurrence in the body")
	}
}
