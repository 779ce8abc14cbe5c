package memloc

import (
	"testing"

	"github.com/txinterp/core/expr"
)

func TestContextIsPrefixOf(t *testing.T) {
	full := CallHistory{1, 2, 3}
	prefix := CallHistory{1, 2}
	if !prefix.ContextIsPrefixOf(full) {
		t.Fatalf("expected [1,2] to be a prefix of [1,2,3]")
	}
	if full.ContextIsPrefixOf(prefix) {
		t.Fatalf("did not expect [1,2,3] to be a prefix of [1,2]")
	}
	mismatched := CallHistory{1, 5}
	if mismatched.ContextIsPrefixOf(full) {
		t.Fatalf("did not expect [1,5] to be a prefix of [1,2,3]")
	}
}

func TestNewChildLocationAccumulatesOffset(t *testing.T) {
	b := expr.NewBuilder()
	addr := b.BVS("base", 64)
	loc := NewLocation(1, CallHistory{1}, addr, 16)

	delta1 := b.BVV(4, 64)
	addr1, err := b.Add(addr, delta1)
	if err != nil {
		t.Fatal(err)
	}
	child, err := NewChildLocation(b, loc, addr1, delta1)
	if err != nil {
		t.Fatal(err)
	}
	if child.Offset.Id() != delta1.Id() {
		t.Fatalf("first child offset should equal its delta")
	}

	delta2 := b.BVV(8, 64)
	addr2, err := b.Add(child.Base, delta2)
	if err != nil {
		t.Fatal(err)
	}
	grandchild, err := NewChildLocation(b, child, addr2, delta2)
	if err != nil {
		t.Fatal(err)
	}
	expected, err := b.Add(delta1, delta2)
	if err != nil {
		t.Fatal(err)
	}
	if grandchild.Offset.Id() != expected.Id() {
		t.Fatalf("grandchild offset should accumulate both deltas")
	}
	if grandchild.AllocID != loc.AllocID {
		t.Fatalf("child locations should keep their ancestor's allocation identity")
	}
}

func TestWeakCompareIgnoresAllocID(t *testing.T) {
	b := expr.NewBuilder()
	addr := b.BVS("base", 64)
	l1 := NewLocation(1, CallHistory{}, addr, 8)
	l2 := NewLocation(1, CallHistory{}, addr, 8)
	if l1.AllocID == l2.AllocID {
		t.Fatalf("expected distinct allocation ids for two NewLocation calls")
	}
	if l1.WeakCompare(l2) != 0 {
		t.Fatalf("WeakCompare should ignore AllocID")
	}
	if l1.Compare(l2) == 0 {
		t.Fatalf("Compare should distinguish distinct allocation ids")
	}
}

func TestHasConstantAddress(t *testing.T) {
	b := expr.NewBuilder()
	constAddr := b.BVV(0x1000, 64)
	loc := NewLocation(1, CallHistory{}, constAddr, 8)
	if !loc.HasConstantAddress() {
		t.Fatalf("a location built over a constant base with no offset should be constant")
	}

	symAddr := b.BVS("p", 64)
	symLoc := NewLocation(2, CallHistory{}, symAddr, 8)
	if symLoc.HasConstantAddress() {
		t.Fatalf("a location built over a symbolic base should not be constant")
	}
}
