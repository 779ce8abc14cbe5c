// Package ssafrontend drives an engine.Engine from a Go program's own SSA
// form (golang.org/x/tools/go/ssa), standing in for the LLVM bitcode
// frontend a native interpolation engine would normally sit behind: each
// ssa.Instruction becomes one value.InstrInfo, each *ssa.If becomes one
// engine.Split, and each *ssa.Const operand becomes a concrete bitvector
// built straight from the Go constant it already is.
package ssafrontend

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/txinterp/core/engine"
	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/value"
)

var (
	// ErrUnboundOperand is returned when an instruction references an
	// ssa.Value the frontend has not yet executed and that isn't itself a
	// constant or a function parameter — a malformed or out-of-order
	// instruction stream.
	ErrUnboundOperand = errors.New("ssafrontend: operand has no bound value")
	// ErrUnsupportedInstruction is returned for ssa.Instruction kinds this
	// frontend does not translate (e.g. ssa.Go, ssa.Select, ssa.MapUpdate).
	ErrUnsupportedInstruction = errors.New("ssafrontend: unsupported instruction")
	// ErrUnsupportedOperator is returned for a token.Token this frontend has
	// no BinOp/CmpOp mapping for (e.g. bitwise AND-NOT, floating point ops).
	ErrUnsupportedOperator = errors.New("ssafrontend: unsupported operator")
)

// Layout adapts go/types' own ABI size model to value.DataLayout, so the
// dependency tracker's allocation/GEP bookkeeping uses the same widths the
// Go compiler itself would.
type Layout struct {
	sizes   types.Sizes
	byID    map[uint64]types.Type
	ids     map[types.Type]uint64
	nextID  uint64
}

// NewLayout wraps sizes (typically types.SizesFor("gc", runtime.GOARCH)).
func NewLayout(sizes types.Sizes) *Layout {
	return &Layout{
		sizes: sizes,
		byID:  make(map[uint64]types.Type),
		ids:   make(map[types.Type]uint64),
	}
}

// TypeID returns a stable id for t, minting one on first use.
func (l *Layout) TypeID(t types.Type) uint64 {
	if id, ok := l.ids[t]; ok {
		return id
	}
	l.nextID++
	id := l.nextID
	l.ids[t] = id
	l.byID[id] = t
	return id
}

func (l *Layout) PointerWidth() uint { return uint(l.sizes.Sizeof(types.Typ[types.Uintptr])) * 8 }

func (l *Layout) SizeOf(typeID uint64) uint64 {
	t, ok := l.byID[typeID]
	if !ok {
		return uint64(l.sizes.Sizeof(types.Typ[types.Uint64]))
	}
	return uint64(l.sizes.Sizeof(t))
}

func (l *Layout) OffsetOf(structTypeID uint64, field int) uint64 {
	t, ok := l.byID[structTypeID]
	if !ok {
		return 0
	}
	st, ok := t.Underlying().(*types.Struct)
	if !ok {
		return 0
	}
	offs := l.sizes.Offsetsof(fieldVars(st))
	if field < 0 || field >= len(offs) {
		return 0
	}
	return uint64(offs[field])
}

func fieldVars(st *types.Struct) []*types.Var {
	vars := make([]*types.Var, st.NumFields())
	for i := range vars {
		vars[i] = st.Field(i)
	}
	return vars
}

func (l *Layout) width(t types.Type) uint {
	if t == nil {
		return l.PointerWidth()
	}
	n := uint(l.sizes.Sizeof(t)) * 8
	if n == 0 {
		return l.PointerWidth()
	}
	return n
}

// Frontend walks one ssa.Function's instructions in execution order,
// translating each into calls against an engine.Engine.
type Frontend struct {
	Engine *engine.Engine
	Layout *Layout

	ids    map[ssa.Value]uint64
	nextID uint64
}

// New creates a frontend bound to eng, which must already have an open
// tree (eng.NewTree was called with this Layout).
func New(eng *engine.Engine, layout *Layout) *Frontend {
	return &Frontend{
		Engine: eng,
		Layout: layout,
		ids:    make(map[ssa.Value]uint64),
	}
}

func (f *Frontend) idFor(v ssa.Value) uint64 {
	if id, ok := f.ids[v]; ok {
		return id
	}
	f.nextID++
	f.ids[v] = f.nextID
	return f.nextID
}

// cellFor resolves an ssa.Value operand to the Cell Execute expects: a
// fresh concrete expression for a *ssa.Const, a reference to the
// previously-bound Value, or, for an unbound *ssa.Parameter, a fresh symbol
// named after the parameter.
func (f *Frontend) cellFor(v ssa.Value) (value.Cell, error) {
	if c, ok := v.(*ssa.Const); ok {
		bv, err := f.constExpr(c)
		if err != nil {
			return value.Cell{}, err
		}
		return value.Cell{Symbolic: bv}, nil
	}
	id := f.idFor(v)
	bound := f.Engine.CurrentNode()
	if bound == nil {
		return value.Cell{}, engine.ErrNoCurrentNode
	}
	vv := bound.Dep.LatestValue(id)
	if vv == nil {
		if p, ok := v.(*ssa.Parameter); ok {
			return value.Cell{Symbolic: f.Engine.Builder().BVS(fmt.Sprintf("%s_%d", p.Name(), id), f.Layout.width(p.Type()))}, nil
		}
		return value.Cell{}, fmt.Errorf("%w: %s", ErrUnboundOperand, v.Name())
	}
	return value.Cell{V: vv}, nil
}

func (f *Frontend) constExpr(c *ssa.Const) (*expr.BVExprPtr, error) {
	b := f.Engine.Builder()
	width := f.Layout.width(c.Type())
	if c.Value == nil {
		return b.BVV(0, width), nil
	}
	n, ok := constant.Int64Val(constant.ToInt(c.Value))
	if !ok {
		return nil, fmt.Errorf("ssafrontend: non-integer constant %v", c)
	}
	return b.BVV(n, width), nil
}

var tokenToBinOp = map[token.Token]value.BinOp{
	token.ADD: value.BinAdd,
	token.SUB: value.BinSub,
	token.MUL: value.BinMul,
	token.QUO: value.BinSDiv,
	token.REM: value.BinSRem,
	token.AND: value.BinAnd,
	token.OR:  value.BinOr,
	token.XOR: value.BinXor,
	token.SHL: value.BinShl,
	token.SHR: value.BinAShr,
}

var tokenToCmpOp = map[token.Token]value.BinOp{
	token.EQL: value.CmpEq,
	token.NEQ: value.CmpNe,
	token.LSS: value.CmpSlt,
	token.LEQ: value.CmpSle,
	token.GTR: value.CmpSgt,
	token.GEQ: value.CmpSge,
}

// ExecuteInstr translates and executes one ssa.Instruction at the engine's
// current node, returning the resulting Value (nil for instructions with no
// result, such as *ssa.Store or *ssa.Return).
func (f *Frontend) ExecuteInstr(instr ssa.Instruction) (*value.Value, error) {
	switch ins := instr.(type) {
	case *ssa.BinOp:
		return f.executeBinOp(ins)
	case *ssa.UnOp:
		return f.executeUnOp(ins)
	case *ssa.Alloc:
		return f.executeAlloc(ins)
	case *ssa.Store:
		return f.executeStore(ins)
	case *ssa.Call:
		return f.executeCall(ins)
	case *ssa.Return:
		_, err := f.Engine.Execute(value.InstrInfo{Opcode: value.OpRet}, nil, nil, false)
		return nil, err
	case *ssa.Jump:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInstruction, instr)
	}
}

func (f *Frontend) executeBinOp(ins *ssa.BinOp) (*value.Value, error) {
	op, opcode, ok := f.resolveOp(ins.Op)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, ins.Op)
	}
	x, err := f.cellFor(ins.X)
	if err != nil {
		return nil, err
	}
	y, err := f.cellFor(ins.Y)
	if err != nil {
		return nil, err
	}
	instr := value.InstrInfo{ValueID: f.idFor(ins), Opcode: opcode, TypeIDs: []uint64{uint64(op)}}
	return f.Engine.Execute(instr, nil, []value.Cell{x, y}, false)
}

func (f *Frontend) resolveOp(tok token.Token) (value.BinOp, value.Opcode, bool) {
	if op, ok := tokenToBinOp[tok]; ok {
		return op, value.OpBinary, true
	}
	if op, ok := tokenToCmpOp[tok]; ok {
		return op, value.OpICmp, true
	}
	return 0, 0, false
}

func (f *Frontend) executeUnOp(ins *ssa.UnOp) (*value.Value, error) {
	if ins.Op != token.MUL {
		return nil, fmt.Errorf("%w: unop %s", ErrUnsupportedOperator, ins.Op)
	}
	addr, err := f.cellFor(ins.X)
	if err != nil {
		return nil, err
	}
	instr := value.InstrInfo{ValueID: f.idFor(ins), Opcode: value.OpLoad}
	return f.Engine.Execute(instr, nil, []value.Cell{addr}, false)
}

func (f *Frontend) executeAlloc(ins *ssa.Alloc) (*value.Value, error) {
	elem := ins.Type().Underlying().(*types.Pointer).Elem()
	size := f.Layout.SizeOf(f.Layout.TypeID(elem))
	instr := value.InstrInfo{ValueID: f.idFor(ins), Opcode: value.OpAlloca, SiteID: f.idFor(ins)}
	sizeBV := f.Engine.Builder().BVV(int64(size), f.Layout.PointerWidth())
	return f.Engine.Execute(instr, nil, []value.Cell{{Symbolic: sizeBV}}, false)
}

func (f *Frontend) executeStore(ins *ssa.Store) (*value.Value, error) {
	addr, err := f.cellFor(ins.Addr)
	if err != nil {
		return nil, err
	}
	val, err := f.cellFor(ins.Val)
	if err != nil {
		return nil, err
	}
	instr := value.InstrInfo{Opcode: value.OpStore}
	return f.Engine.Execute(instr, nil, []value.Cell{addr, val}, false)
}

func (f *Frontend) executeCall(ins *ssa.Call) (*value.Value, error) {
	callee := ins.Call.Value
	name := ""
	if callee != nil {
		name = callee.Name()
	}
	args := make([]value.Cell, 0, len(ins.Call.Args))
	for _, a := range ins.Call.Args {
		c, err := f.cellFor(a)
		if err != nil {
			return nil, err
		}
		args = append(args, c)
	}
	instr := value.InstrInfo{ValueID: f.idFor(ins), Opcode: value.OpCall, CalleeName: name}
	return f.Engine.Execute(instr, nil, args, false)
}

// BranchCond resolves the condition of ins, ready to pass to engine.Split.
func (f *Frontend) BranchCond(ins *ssa.If) (*expr.BoolExprPtr, error) {
	c, err := f.cellFor(ins.Cond)
	if err != nil {
		return nil, err
	}
	if c.V != nil {
		if b, ok := c.V.Expr.(*expr.BoolExprPtr); ok {
			return b, nil
		}
		bv, ok := c.V.Expr.(*expr.BVExprPtr)
		if !ok {
			return nil, fmt.Errorf("ssafrontend: branch condition %s has no boolean or bitvector form", ins.Cond.Name())
		}
		return f.Engine.Builder().Ult(f.Engine.Builder().BVV(0, bv.Size()), bv)
	}
	bv, ok := c.Symbolic.(*expr.BVExprPtr)
	if !ok {
		return nil, fmt.Errorf("ssafrontend: branch condition %s has no bitvector form", ins.Cond.Name())
	}
	return f.Engine.Builder().Ult(f.Engine.Builder().BVV(0, bv.Size()), bv)
}

// BindPhi resolves a *ssa.Phi against the edge actually taken (identified
// by which predecessor block pred is) and executes it at the current node.
func (f *Frontend) BindPhi(ins *ssa.Phi, pred *ssa.BasicBlock) (*value.Value, error) {
	block := ins.Block()
	idx := -1
	for i, p := range block.Preds {
		if p == pred {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("ssafrontend: %s is not a predecessor of phi's block", pred)
	}
	incoming, err := f.cellFor(ins.Edges[idx])
	if err != nil {
		return nil, err
	}
	return f.Engine.ExecutePHI(value.InstrInfo{ValueID: f.idFor(ins)}, incoming)
}

// IDFor exposes the frontend's ssa.Value-to-LLVM-id mapping, used by callers
// that need to correlate a later memloc.Location back to the ssa.Value that
// produced it.
func (f *Frontend) IDFor(v ssa.Value) uint64 { return f.idFor(v) }
