package value

import (
	"testing"

	"github.com/txinterp/core/expr"
)

type fakeLayout struct{}

func (fakeLayout) PointerWidth() uint                              { return 64 }
func (fakeLayout) SizeOf(typeID uint64) uint64                      { return 8 }
func (fakeLayout) OffsetOf(structTypeID uint64, field int) uint64 { return 0 }

func TestLoadAfterStoreReturnsStoredValue(t *testing.T) {
	b := expr.NewBuilder()
	dep := NewDependency(b, fakeLayout{})

	allocInstr := InstrInfo{ValueID: 1, Opcode: OpAlloca, SiteID: 1}
	addrVal, err := dep.Execute(allocInstr, nil, []Cell{{Symbolic: b.BVV(8, 64)}}, false)
	if err != nil {
		t.Fatal(err)
	}

	stored := &Value{LLVMValueID: 99, Expr: b.BVV(123, 32)}
	storeInstr := InstrInfo{ValueID: 2, Opcode: OpStore}
	if _, err := dep.Execute(storeInstr, nil, []Cell{{V: addrVal}, {V: stored}}, false); err != nil {
		t.Fatal(err)
	}

	loadInstr := InstrInfo{ValueID: 3, Opcode: OpLoad}
	loaded, err := dep.Execute(loadInstr, nil, []Cell{{V: addrVal}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Expr.(*expr.BVExprPtr).Id() != stored.Expr.(*expr.BVExprPtr).Id() {
		t.Fatalf("load right after a store to the same address should return the stored expression")
	}
}

func TestGEPAccumulatesOffsetIntoChildLocation(t *testing.T) {
	b := expr.NewBuilder()
	dep := NewDependency(b, fakeLayout{})

	allocInstr := InstrInfo{ValueID: 1, Opcode: OpAlloca, SiteID: 7}
	base, err := dep.Execute(allocInstr, nil, []Cell{{Symbolic: b.BVV(32, 64)}}, false)
	if err != nil {
		t.Fatal(err)
	}

	gepInstr := InstrInfo{ValueID: 2, Opcode: OpGetElementPtr}
	off := b.BVV(4, 64)
	child, err := dep.Execute(gepInstr, nil, []Cell{{V: base}, {Symbolic: off}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(child.Locations) != 1 {
		t.Fatalf("expected gep to derive exactly one child location from a single-location base")
	}
	if child.Locations[0].AllocID != base.Locations[0].AllocID {
		t.Fatalf("gep child should keep its base's allocation identity")
	}
	if child.Locations[0].Offset.Id() != off.Id() {
		t.Fatalf("gep child's offset should be the gep's index expression")
	}
}

func TestBinaryAddDispatch(t *testing.T) {
	b := expr.NewBuilder()
	dep := NewDependency(b, fakeLayout{})
	instr := InstrInfo{ValueID: 1, Opcode: OpBinary, TypeIDs: []uint64{uint64(BinAdd)}}
	out, err := dep.Execute(instr, nil, []Cell{{Symbolic: b.BVV(2, 32)}, {Symbolic: b.BVV(3, 32)}}, false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := out.Expr.(*expr.BVExprPtr).GetConst()
	if err != nil {
		t.Fatalf("expected constant fold, got %v", err)
	}
	if c.AsULong() != 5 {
		t.Fatalf("2+3 should fold to 5, got %d", c.AsULong())
	}
}

func TestUnknownExternalCallIsAnError(t *testing.T) {
	b := expr.NewBuilder()
	dep := NewDependency(b, fakeLayout{})
	instr := InstrInfo{ValueID: 1, Opcode: OpCall, CalleeName: "definitely_not_registered"}
	if _, err := dep.Execute(instr, nil, nil, false); err == nil {
		t.Fatalf("expected an error calling an unregistered external function")
	}
}

func TestMallocExternalReturnsFreshLocation(t *testing.T) {
	b := expr.NewBuilder()
	dep := NewDependency(b, fakeLayout{})
	instr := InstrInfo{ValueID: 1, Opcode: OpCall, CalleeName: "malloc"}
	v, err := dep.Execute(instr, nil, []Cell{{Symbolic: b.BVV(16, 64)}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Locations) != 1 {
		t.Fatalf("malloc should produce a value with exactly one location")
	}
}
