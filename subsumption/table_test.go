package subsumption

import (
	"context"
	"testing"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/itree"
	"github.com/txinterp/core/solver"
	"github.com/txinterp/core/value"
	"github.com/txinterp/core/wp"
)

type fakeLayout struct{}

func (fakeLayout) PointerWidth() uint                             { return 64 }
func (fakeLayout) SizeOf(typeID uint64) uint64                    { return 8 }
func (fakeLayout) OffsetOf(structTypeID uint64, field int) uint64 { return 0 }

// stubOracle treats the constant false, and any query mentioning a variable
// named "unsat_sym", as unsatisfiable (and any implication over one as valid)
// and everything else as satisfiable, standing in for a real SMT backend in tests that only
// exercise the table's control flow.
type stubOracle struct {
	b *expr.Builder
}

func (s stubOracle) mentionsUnsatSym(q *expr.BoolExprPtr) bool {
	for _, sym := range s.b.InvolvedInputs(q) {
		if sym.String() == "unsat_sym" {
			return true
		}
	}
	return false
}

func (s stubOracle) Satisfiable(ctx context.Context, q *expr.BoolExprPtr) (bool, error) {
	if q.IsFalse() {
		return false, nil
	}
	return !s.mentionsUnsatSym(q), nil
}
func (s stubOracle) Validity(ctx context.Context, q *expr.BoolExprPtr) (bool, error) {
	return s.mentionsUnsatSym(q), nil
}
func (stubOracle) Evaluate(context.Context, *expr.BVExprPtr, *expr.BoolExprPtr, int) ([]*expr.BVConst, error) {
	return nil, nil
}
func (stubOracle) UnsatCore(context.Context, *expr.BoolExprPtr) ([]*expr.BoolExprPtr, error) {
	return nil, nil
}

var _ solver.Oracle = stubOracle{}

func newNode(b *expr.Builder) *itree.Node {
	dep := value.NewDependency(b, fakeLayout{})
	tr := itree.NewTree(b, dep)
	return tr.Root
}

func TestBuildEntryQuantifiesOverFreeSymbols(t *testing.T) {
	b := expr.NewBuilder()
	n := newNode(b)
	x := b.BVS("x", 32)
	cond, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := n.AddConstraint(cond, nil); err != nil {
		t.Fatal(err)
	}
	xv := &value.Value{LLVMValueID: 1, Expr: x}
	xv.MarkCore("test")
	n.Dep.ValuesByLLVMID[1] = []*value.Value{xv}

	entry, err := BuildEntry(b, n, 1, "sh")
	if err != nil {
		t.Fatal(err)
	}
	if entry.ProgramPoint != 1 {
		t.Fatalf("entry should record the program point it was built for")
	}
	if entry.Interpolant.Kind() != expr.KindExists {
		t.Fatalf("an entry built over a node with live free symbols should be existentially quantified")
	}
	if _, ok := entry.SingletonStore[1]; !ok {
		t.Fatalf("entry should snapshot the core value it was built over")
	}
}

func TestSubsumedAgainstUnsatQuery(t *testing.T) {
	b := expr.NewBuilder()
	n := newNode(b)
	oracle := stubOracle{b: b}
	table := NewTable(b)

	sym := b.BVS("unsat_sym", 32)
	alwaysTrue := b.BoolVal(true)
	entry := &Entry{Interpolant: alwaysTrue}
	table.Insert(1, entry)

	cond, err := b.Eq(sym, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := n.AddConstraint(cond, nil); err != nil {
		t.Fatal(err)
	}

	subsumed, err := table.Subsumed(context.Background(), oracle, n, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !subsumed {
		t.Fatalf("a node whose path condition mentions unsat_sym should be reported subsumed by the stub oracle")
	}
}

func TestSubsumedSkipsCandidateMissingACoreValue(t *testing.T) {
	b := expr.NewBuilder()
	n := newNode(b)
	oracle := stubOracle{b: b}
	table := NewTable(b)

	entry := &Entry{
		Interpolant:    b.BoolVal(true),
		SingletonStore: map[uint64]expr.ExprPtr{42: b.BVV(0, 32)},
	}
	table.Insert(1, entry)

	sym := b.BVS("unsat_sym", 32)
	cond, err := b.Eq(sym, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := n.AddConstraint(cond, nil); err != nil {
		t.Fatal(err)
	}

	subsumed, err := table.Subsumed(context.Background(), oracle, n, 1)
	if err != nil {
		t.Fatal(err)
	}
	if subsumed {
		t.Fatalf("a candidate depending on a core value the node never bound should not apply")
	}
}

func TestUpdateWithWPTightensInterpolant(t *testing.T) {
	b := expr.NewBuilder()
	n := newNode(b)

	x := b.BVS("x", 32)
	cond, err := b.Eq(x, b.BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := n.AddConstraint(cond, nil); err != nil {
		t.Fatal(err)
	}
	xv := &value.Value{LLVMValueID: 1, Expr: x}
	xv.MarkCore("test")
	n.Dep.ValuesByLLVMID[1] = []*value.Value{xv}

	table := NewTable(b)
	entry, err := BuildEntry(b, n, 1, "sh")
	if err != nil {
		t.Fatal(err)
	}
	before := entry.Interpolant

	y := b.BVS("y", 32)
	wpCond, err := b.Eq(y, b.BVV(1, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := table.UpdateWithWP(entry, wp.Result{Expr: wpCond}); err != nil {
		t.Fatal(err)
	}
	if entry.Interpolant.Id() == before.Id() {
		t.Fatalf("UpdateWithWP should produce a new, tightened interpolant")
	}
	if entry.WPInterpolant == nil {
		t.Fatalf("UpdateWithWP should record the shadowed WP formula")
	}
}

func TestStoresCompatibleRequiresCandidateKeysPresent(t *testing.T) {
	cand := &Entry{SingletonStore: map[uint64]expr.ExprPtr{1: nil, 2: nil}}
	current := map[uint64]expr.ExprPtr{1: nil}
	if storesCompatible(cand, current) {
		t.Fatalf("a candidate depending on value 2 should not be compatible with a node that lacks it")
	}
	current[2] = nil
	if !storesCompatible(cand, current) {
		t.Fatalf("a candidate whose stores are a subset of the node's current values should be compatible")
	}
}
