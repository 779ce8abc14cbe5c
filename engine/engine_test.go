package engine

import (
	"context"
	"testing"
	"time"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/solver"
	"github.com/txinterp/core/subsumption"
	"github.com/txinterp/core/value"
)

type fakeLayout struct{}

func (fakeLayout) PointerWidth() uint                             { return 64 }
func (fakeLayout) SizeOf(typeID uint64) uint64                    { return 8 }
func (fakeLayout) OffsetOf(structTypeID uint64, field int) uint64 { return 0 }

// stubOracle reports sat for Satisfiable queries and its negation for
// Validity, and both of those honor ctx like a real oracle would so the
// engine's context-threading behavior can be exercised without a solver.
// Evaluate and UnsatCore return nothing and ignore ctx.
type stubOracle struct {
	sat bool
}

func (s stubOracle) Satisfiable(ctx context.Context, _ *expr.BoolExprPtr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.sat, nil
}
func (s stubOracle) Validity(ctx context.Context, _ *expr.BoolExprPtr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !s.sat, nil
}
func (stubOracle) Evaluate(context.Context, *expr.BVExprPtr, *expr.BoolExprPtr, int) ([]*expr.BVConst, error) {
	return nil, nil
}
func (stubOracle) UnsatCore(context.Context, *expr.BoolExprPtr) ([]*expr.BoolExprPtr, error) {
	return nil, nil
}

var _ solver.Oracle = stubOracle{}

func TestSplitMovesCurrentNodeAndRecordsBranch(t *testing.T) {
	e := New(stubOracle{sat: true}, nil)
	e.NewTree(fakeLayout{})

	x := e.Builder().BVS("x", 32)
	cond, err := e.Builder().Eq(x, e.Builder().BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}
	left, right, err := e.Split(cond, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if e.CurrentNode() != left {
		t.Fatalf("Split(cond, nil, takeLeft=true) should move focus to the left child")
	}
	if right == nil {
		t.Fatalf("Split should still produce a right sibling")
	}
}

func TestExecuteWithoutCurrentNodeFails(t *testing.T) {
	e := New(stubOracle{sat: true}, nil)
	_, err := e.Execute(value.InstrInfo{Opcode: value.OpBinary}, nil, nil, false)
	if err == nil {
		t.Fatalf("Execute before NewTree/SetCurrentNode should fail")
	}
}

func TestCheckCurrentStateSubsumptionRespectsContextTimeout(t *testing.T) {
	e := New(stubOracle{sat: true}, nil)
	e.NewTree(fakeLayout{})
	e.table.Insert(1, &subsumption.Entry{Interpolant: e.Builder().BoolVal(true)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	subsumed, err := e.CheckCurrentStateSubsumption(ctx, 1)
	if err != nil {
		t.Fatalf("an expired context should be swallowed as \"not subsumed\" rather than surfaced as an error: %v", err)
	}
	if subsumed {
		t.Fatalf("an expired context should never report a node subsumed")
	}
}

func TestCheckCurrentStateSubsumptionInsertsEntryOnMiss(t *testing.T) {
	e := New(stubOracle{sat: true}, nil)
	e.NewTree(fakeLayout{})

	subsumed, err := e.CheckCurrentStateSubsumption(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if subsumed {
		t.Fatalf("a fresh table should not report the first node at a location as subsumed")
	}
	if e.Stats.SubsumptionChecks != 1 {
		t.Fatalf("expected one recorded subsumption check")
	}
	if len(e.table.EntriesAt(1)) != 1 {
		t.Fatalf("a miss should table one entry for the node at its location")
	}
}

func TestExecuteMemoryOperationSlackensBoundOnPassedCheck(t *testing.T) {
	e := New(stubOracle{sat: true}, nil)
	e.NewTree(fakeLayout{})

	allocaInstr := value.InstrInfo{ValueID: 1, Opcode: value.OpAlloca, SiteID: 7}
	size := value.Cell{Symbolic: e.Builder().BVV(64, 64)}
	base, err := e.Execute(allocaInstr, nil, []value.Cell{size}, false)
	if err != nil {
		t.Fatal(err)
	}

	gepInstr := value.InstrInfo{ValueID: 2, Opcode: value.OpGetElementPtr}
	offset := value.Cell{Symbolic: e.Builder().BVV(8, 64)}
	addr, err := e.Execute(gepInstr, nil, []value.Cell{{V: base}, offset}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(addr.Locations) == 0 {
		t.Fatalf("a GEP should produce a Value denoting a derived location")
	}

	loadInstr := value.InstrInfo{ValueID: 3, Opcode: value.OpLoad}
	_, err = e.ExecuteMemoryOperation(loadInstr, nil, []value.Cell{{V: addr}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.bounds[addr.Locations[0].AllocID]; !ok {
		t.Fatalf("a bounds-checked memory operation should widen the accessed allocation's bound")
	}
}

func TestTightenSubsumptionEntriesConjoinsWPResultIntoCachedEntries(t *testing.T) {
	e := New(stubOracle{sat: true}, nil)
	e.NewTree(fakeLayout{})

	entry, err := subsumption.BuildEntry(e.Builder(), e.CurrentNode(), 1, "sh")
	if err != nil {
		t.Fatal(err)
	}
	e.table.Insert(1, entry)
	before := entry.Interpolant

	y := e.Builder().BVS("y", 32)
	target, err := e.Builder().Eq(y, e.Builder().BVV(0, 32))
	if err != nil {
		t.Fatal(err)
	}

	if err := e.TightenSubsumptionEntries(1, nil, target); err != nil {
		t.Fatal(err)
	}
	if entry.Interpolant.Id() == before.Id() {
		t.Fatalf("TightenSubsumptionEntries should replace the cached entry's interpolant with a tightened one")
	}
}
