package itree

import (
	"testing"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/value"
)

type fakeLayout struct{}

func (fakeLayout) PointerWidth() uint                              { return 64 }
func (fakeLayout) SizeOf(typeID uint64) uint64                      { return 8 }
func (fakeLayout) OffsetOf(structTypeID uint64, field int) uint64 { return 0 }

func TestSplitProducesTwoActiveChildrenAndMarksParentSplit(t *testing.T) {
	b := expr.NewBuilder()
	dep := value.NewDependency(b, fakeLayout{})
	tr := NewTree(b, dep)

	left, right, err := tr.Split(tr.Root)
	if err != nil {
		t.Fatal(err)
	}
	if left == nil || right == nil {
		t.Fatalf("split should produce two children")
	}
	if tr.Root.Left != left || tr.Root.Right != right {
		t.Fatalf("tree should record the split children on the parent")
	}
	if err := tr.Root.AddConstraint(b.BoolVal(true), nil); err == nil {
		t.Fatalf("a split node should no longer accept constraints")
	}
	if err := left.AddConstraint(b.BoolVal(true), nil); err != nil {
		t.Fatalf("a fresh split child should accept constraints: %v", err)
	}
}

func TestRemovePrunesBothSiblingsUpToAncestor(t *testing.T) {
	b := expr.NewBuilder()
	dep := value.NewDependency(b, fakeLayout{})
	tr := NewTree(b, dep)
	left, right, err := tr.Split(tr.Root)
	if err != nil {
		t.Fatal(err)
	}

	tr.Remove(left)
	if !left.IsRemoved() {
		t.Fatalf("removed node should report IsRemoved")
	}
	if tr.Root.IsRemoved() {
		t.Fatalf("root should not be removed while right child is still live")
	}

	tr.Remove(right)
	if !tr.Root.IsRemoved() {
		t.Fatalf("once both children are removed, the parent should be pruned too")
	}
}

func TestGetInterpolantOnlyKeepsConstraintsOverCoreSymbols(t *testing.T) {
	b := expr.NewBuilder()
	dep := value.NewDependency(b, fakeLayout{})
	tr := NewTree(b, dep)

	x := b.BVS("x", 32)
	y := b.BVS("y", 32)
	xIsZero, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	yIsZero, err := b.Eq(y, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Root.AddConstraint(xIsZero, nil); err != nil {
		t.Fatal(err)
	}
	if err := tr.Root.AddConstraint(yIsZero, nil); err != nil {
		t.Fatal(err)
	}

	xVal := &value.Value{LLVMValueID: 1, Expr: x}
	xVal.MarkCore("test")
	dep.ValuesByLLVMID[1] = []*value.Value{xVal}

	interp, err := tr.Root.GetInterpolant(b)
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range b.InvolvedInputs(interp) {
		if sym.Id() == y.Id() {
			t.Fatalf("interpolant should not mention a symbol with no core dependency")
		}
	}
}

func TestRefineWithUnsatCoreDropsMarkersTheCoreDidNotName(t *testing.T) {
	b := expr.NewBuilder()
	dep := value.NewDependency(b, fakeLayout{})
	tr := NewTree(b, dep)

	x := b.BVS("x", 32)
	xIsZero, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	xIsOne, err := b.Eq(x, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Root.AddConstraint(xIsZero, nil); err != nil {
		t.Fatal(err)
	}
	if err := tr.Root.AddConstraint(xIsOne, nil); err != nil {
		t.Fatal(err)
	}

	xVal := &value.Value{LLVMValueID: 1, Expr: x}
	xVal.MarkCore("test")
	dep.ValuesByLLVMID[1] = []*value.Value{xVal}

	refined, err := tr.Root.RefineWithUnsatCore(b, []*expr.BoolExprPtr{xIsZero})
	if err != nil {
		t.Fatal(err)
	}
	conjuncts := expr.FlattenBoolAnd(refined)
	if len(conjuncts) != 1 || conjuncts[0].Id() != xIsZero.Id() {
		t.Fatalf("refined interpolant should keep only the marker the unsat core named, got %v", refined)
	}
}

func TestMakeMarkerMapSplitsDisjunctiveConstraints(t *testing.T) {
	b := expr.NewBuilder()
	dep := value.NewDependency(b, fakeLayout{})
	tr := NewTree(b, dep)

	x := b.BVS("x", 32)
	xIsZero, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	xIsOne, err := b.Eq(x, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	disjunction, err := b.BoolOr(xIsZero, xIsOne)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Root.AddConstraint(disjunction, nil); err != nil {
		t.Fatal(err)
	}

	mm := tr.Root.MakeMarkerMap()
	if _, ok := mm[xIsZero]; !ok {
		t.Fatalf("marker map should have a sub-marker for each disjunct")
	}
	if _, ok := mm[xIsOne]; !ok {
		t.Fatalf("marker map should have a sub-marker for each disjunct")
	}
	if _, ok := mm[disjunction]; ok {
		t.Fatalf("marker map should not also key the undivided disjunction")
	}
}
