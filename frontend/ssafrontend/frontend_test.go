package ssafrontend

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/txinterp/core/engine"
	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/value"
)

const src = `
package p

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
`

func buildAbsFunction(t *testing.T) *ssa.Function {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	files := []*ast.File{f}
	pkg := types.NewPackage("p", "")
	ssaPkg, _, err := ssautil.BuildPackage(&types.Config{Importer: importer.Default()}, fset, pkg, files, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatal(err)
	}
	fn := ssaPkg.Func("abs")
	if fn == nil {
		t.Fatal("expected an abs function in the built package")
	}
	return fn
}

type fakeLayout struct{}

func (fakeLayout) PointerWidth() uint                              { return 64 }
func (fakeLayout) SizeOf(typeID uint64) uint64                      { return 8 }
func (fakeLayout) OffsetOf(structTypeID uint64, field int) uint64 { return 0 }

func TestTranslateBinOpFoldsConstantComparison(t *testing.T) {
	fn := buildAbsFunction(t)
	eng := engine.New(nil, nil)
	eng.NewTree(fakeLayout{})
	fe := New(eng, NewLayout(types.SizesFor("gc", "amd64")))

	entry := fn.Blocks[0]
	var ifInstr *ssa.If
	for _, instr := range entry.Instrs {
		if binop, ok := instr.(*ssa.BinOp); ok {
			if _, err := fe.ExecuteInstr(binop); err != nil {
				t.Fatalf("executing %s: %v", binop, err)
			}
		}
		if ifi, ok := instr.(*ssa.If); ok {
			ifInstr = ifi
		}
	}
	if ifInstr == nil {
		t.Fatal("expected the entry block to end in an If")
	}
	cond, err := fe.BranchCond(ifInstr)
	if err != nil {
		t.Fatal(err)
	}
	if cond == nil || cond.String() == "" {
		t.Fatalf("expected a well-formed branch condition, got %v", cond)
	}
}

func TestExecuteAllocaThenStoreThenLoadRoundTrips(t *testing.T) {
	eng := engine.New(nil, nil)
	eng.NewTree(fakeLayout{})

	b := eng.Builder()
	allocInstr := value.InstrInfo{ValueID: 1, Opcode: value.OpAlloca, SiteID: 1}
	addr, err := eng.Execute(allocInstr, nil, []value.Cell{{Symbolic: b.BVV(8, 64)}}, false)
	if err != nil {
		t.Fatal(err)
	}
	stored := b.BVV(42, 32)
	storeInstr := value.InstrInfo{Opcode: value.OpStore}
	if _, err := eng.Execute(storeInstr, nil, []value.Cell{{V: addr}, {Symbolic: stored}}, false); err != nil {
		t.Fatal(err)
	}
	loadInstr := value.InstrInfo{ValueID: 2, Opcode: value.OpLoad}
	loaded, err := eng.Execute(loadInstr, nil, []value.Cell{{V: addr}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Expr.(*expr.BVExprPtr).Id() != stored.Id() {
		t.Fatalf("expected the load to observe the just-stored constant")
	}
}
