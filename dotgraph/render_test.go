package dotgraph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/itree"
	"github.com/txinterp/core/value"
)

type fakeLayout struct{}

func (fakeLayout) PointerWidth() uint                              { return 64 }
func (fakeLayout) SizeOf(typeID uint64) uint64                      { return 8 }
func (fakeLayout) OffsetOf(structTypeID uint64, field int) uint64 { return 0 }

func TestRenderMarksLeafFeasibilityByColor(t *testing.T) {
	b := expr.NewBuilder()
	dep := value.NewDependency(b, fakeLayout{})
	tr := itree.NewTree(b, dep)

	left, right, err := tr.Split(tr.Root)
	if err != nil {
		t.Fatal(err)
	}
	if err := left.MarkLeaf(true); err != nil {
		t.Fatal(err)
	}
	if err := right.MarkLeaf(false); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Render(tr, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "digraph itree {") {
		t.Fatalf("expected a digraph header, got: %s", out)
	}
	if !strings.Contains(out, "color=green") {
		t.Fatalf("expected the feasible leaf to render green: %s", out)
	}
	if !strings.Contains(out, "color=red") {
		t.Fatalf("expected the infeasible leaf to render red: %s", out)
	}
}
