package store

import (
	"testing"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/memloc"
)

func TestForkReadsThroughParentUntilWrite(t *testing.T) {
	b := expr.NewBuilder()
	root := NewFrame()
	addr := b.BVV(0x100, 64)
	loc := memloc.NewLocation(1, nil, addr, 8)

	root.Update(loc, Cell{Expr: b.BVV(42, 32)})
	child := root.Fork()

	c, ok := child.Read(loc)
	if !ok || c.Expr.(*expr.BVExprPtr).Id() != b.BVV(42, 32).Id() {
		t.Fatalf("child frame should read the parent's write before its own first write")
	}

	child.Update(loc, Cell{Expr: b.BVV(99, 32)})
	c2, _ := child.Read(loc)
	if c2.Expr.(*expr.BVExprPtr).Id() != b.BVV(99, 32).Id() {
		t.Fatalf("child's own write should shadow the parent's")
	}

	parentStill, _ := root.Read(loc)
	if parentStill.Expr.(*expr.BVExprPtr).Id() != b.BVV(42, 32).Id() {
		t.Fatalf("writing to a forked child must not mutate the parent frame")
	}
}

func TestStackFindFrameMatchesPrefixContext(t *testing.T) {
	s := NewStack()
	s.Push(memloc.CallHistory{1})
	inner := s.Push(memloc.CallHistory{1, 2})

	found := s.FindFrame(memloc.CallHistory{1, 2, 3})
	if found != inner {
		t.Fatalf("FindFrame should match the most specific prefix-compatible context")
	}

	s.Pop()
	found2 := s.FindFrame(memloc.CallHistory{1, 2, 3})
	if found2 == inner {
		t.Fatalf("after Pop, the popped frame should no longer be found")
	}
}

func TestForkStackIsolatesWrites(t *testing.T) {
	b := expr.NewBuilder()
	addr := b.BVV(0x200, 64)
	loc := memloc.NewLocation(1, nil, addr, 8)

	s := NewStack()
	top := s.Push(memloc.CallHistory{1})
	top.Update(loc, Cell{Expr: b.BVV(7, 32)})

	forked := s.ForkStack()
	forked.Top().Update(loc, Cell{Expr: b.BVV(9, 32)})

	origC, _ := s.Top().Read(loc)
	if origC.Expr.(*expr.BVExprPtr).Id() != b.BVV(7, 32).Id() {
		t.Fatalf("writing through a forked stack must not mutate the original")
	}
	forkedC, _ := forked.Top().Read(loc)
	if forkedC.Expr.(*expr.BVExprPtr).Id() != b.BVV(9, 32).Id() {
		t.Fatalf("forked stack should see its own write")
	}
}
