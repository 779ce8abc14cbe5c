// Package value is the dependency tracker: it turns each executed
// instruction into a Value carrying a symbolic expression plus the
// bookkeeping (source values, memory locations, "is this a core
// dependency" flag) the interpolation tree needs to build marking and
// interpolants from.
package value

import (
	"fmt"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/memloc"
	"github.com/txinterp/core/store"
)

// Value is one versioned SSA value produced during symbolic execution: an
// LLVM value id tagged with the symbolic expression it evaluated to, the
// locations it may denote (if it is itself an address), and which other
// values it was computed from.
type Value struct {
	LLVMValueID uint64
	Expr        expr.ExprPtr
	Version     uint64

	// Locations this value may point to, when it denotes an address
	// (e.g. the result of an Alloca or GEP).
	Locations []*memloc.Location

	// Sources maps each operand Value this value was computed from to the
	// memory location that operand was read through, if any — nil for
	// operands that contributed directly (registers, not loads).
	Sources map[*Value]*memloc.Location

	// Core marks a value as belonging to the unsatisfiability core the
	// weakest-precondition pass must account for.
	Core bool

	// Reasons records human-readable justification for why Core was set,
	// accumulated as the tree walks dependencies back from an infeasible
	// path's conflicting constraint.
	Reasons []string

	// CanInterpolateBound is false for values whose bound (e.g. an
	// allocation's size) must not be abstracted away by the allocation
	// graph's offset-widening, because doing so would make the resulting
	// interpolant unsound.
	CanInterpolateBound bool

	// LoadAddr/StoreAddr record the address value a Load/Store instruction
	// that produced or consumed this value went through, used by the
	// allocation graph to link values to locations transitively.
	LoadAddr  *Value
	StoreAddr *Value
}

func (v *Value) String() string {
	if v.Expr == nil {
		return fmt.Sprintf("v%d#%d(<no-expr>)", v.LLVMValueID, v.Version)
	}
	return fmt.Sprintf("v%d#%d(%s)", v.LLVMValueID, v.Version, v.Expr.String())
}

// MarkCore tags v (and, transitively, nothing else — callers walk Sources
// themselves) as part of the interpolation core, recording why.
func (v *Value) MarkCore(reason string) {
	v.Core = true
	v.Reasons = append(v.Reasons, reason)
}

// Cell is an operand as seen by Execute: either a concrete/symbolic
// expression already in hand, or a reference to the Value that produced it.
type Cell struct {
	Symbolic expr.ExprPtr
	V        *Value
}

// DataLayout abstracts over the pointer width / struct layout facts the
// dependency tracker needs from the frontend without depending on any one
// bitcode representation — deliberately narrow, so a test can supply a
// trivial fake.
type DataLayout interface {
	PointerWidth() uint
	SizeOf(typeID uint64) uint64
	OffsetOf(structTypeID uint64, field int) uint64
}

// InstrInfo is the minimal description of an executed instruction Execute
// needs: its LLVM value id (0 for instructions with no result, e.g. Store),
// an opcode tag, and TypeIDs, whose first element carries the operator code
// for binary and compare ops and the target bit width for casts (GEP does
// not read it).
type InstrInfo struct {
	ValueID  uint64
	Opcode   Opcode
	TypeIDs  []uint64
	SiteID   uint64 // for Alloca: the allocation-site identity
	CalleeName string // for Call: the callee's symbol name, looked up in externalHandlers
}

type Opcode int

const (
	OpAlloca Opcode = iota
	OpLoad
	OpStore
	OpGetElementPtr
	OpIntToPtr
	OpPtrToInt
	OpSelect
	OpBinary
	OpICmp
	OpFCmp
	OpInsertValue
	OpExtractValue
	OpSExt
	OpZExt
	OpTrunc
	OpBitCast
	OpBr
	OpCall
	OpPHI
	OpRet
)

// BinOp identifies which arithmetic/bitwise/compare operator an OpBinary,
// OpICmp, or OpFCmp instruction performs.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinUDiv
	BinSDiv
	BinURem
	BinSRem
	BinAnd
	BinOr
	BinXor
	BinShl
	BinLShr
	BinAShr
	CmpEq
	CmpNe
	CmpUlt
	CmpUle
	CmpUgt
	CmpUge
	CmpSlt
	CmpSle
	CmpSgt
	CmpSge
)

// Dependency is the per-path dependency tracker: it owns the expression
// builder's view of which LLVM values are live, the call stack of
// copy-on-write store frames memory operations read and write through, and
// the table of external (libc-ish) function handlers a Call may resolve to
// instead of being inlined.
type Dependency struct {
	Parent *Dependency

	ValuesByLLVMID map[uint64][]*Value

	stack *store.Stack

	TargetData DataLayout
	DebugLevel int

	builder *expr.Builder
}

// NewDependency creates a root dependency tracker (no parent), used at the
// entry node of the interpolation tree. It pushes the one root store frame
// every subsequent load/store resolves against until a call pushes a
// fresh one.
func NewDependency(builder *expr.Builder, td DataLayout) *Dependency {
	d := &Dependency{
		ValuesByLLVMID: make(map[uint64][]*Value),
		stack:          store.NewStack(),
		TargetData:     td,
		builder:        builder,
	}
	d.stack.Push(nil)
	return d
}

// Fork derives a child dependency tracker sharing this one's store stack
// copy-on-write, used when the interpolation tree splits a node.
func (d *Dependency) Fork() *Dependency {
	return &Dependency{
		Parent:         d,
		ValuesByLLVMID: make(map[uint64][]*Value),
		stack:          d.stack.ForkStack(),
		TargetData:     d.TargetData,
		DebugLevel:     d.DebugLevel,
		builder:        d.builder,
	}
}

// EnterCall pushes a fresh store frame scoped to ctx so a callee's locals
// don't leak writes into the caller's frame. Execute does not call it: a
// Call it cannot resolve as a known external is reported as an error.
func (d *Dependency) EnterCall(ctx memloc.CallHistory) *store.Frame {
	return d.stack.Push(ctx)
}

// ExitCall pops the frame EnterCall pushed, called once the callee returns.
func (d *Dependency) ExitCall() {
	d.stack.Pop()
}

// frameFor resolves the store frame a memory operation under call context
// ch should read and write through: the most specific pushed frame whose
// context is a prefix of ch, falling back to the top of the stack for
// operations with no call context of their own (e.g. top-level globals).
func (d *Dependency) frameFor(ch memloc.CallHistory) *store.Frame {
	if fr := d.stack.FindFrame(ch); fr != nil {
		return fr
	}
	return d.stack.Top()
}

func (d *Dependency) register(v *Value) {
	d.ValuesByLLVMID[v.LLVMValueID] = append(d.ValuesByLLVMID[v.LLVMValueID], v)
}

// LatestValue returns the most recently registered Value for an LLVM value
// id, walking up through Parent trackers on a local miss.
func (d *Dependency) LatestValue(id uint64) *Value {
	for dep := d; dep != nil; dep = dep.Parent {
		vs := dep.ValuesByLLVMID[id]
		if len(vs) > 0 {
			return vs[len(vs)-1]
		}
	}
	return nil
}
