// Package wp computes weakest preconditions along an interpolation-tree
// path: given the sequence of instructions executed and the branch
// directions taken, it pushes a target condition backward through the
// path to produce a formula the subsumption table can conjoin onto a
// cached interpolant to tighten it.
package wp

import (
	"fmt"

	"github.com/txinterp/core/expr"
)

// BranchFlag records whether a recorded conditional branch's condition
// should be ignored by the push-up (the branch didn't affect the target),
// treated as taken, or treated as not-taken.
type BranchFlag int

const (
	FlagIgnore BranchFlag = iota
	FlagTaken
	FlagNotTaken
)

// RecordedInstr is one step of the path the WP pass replays backward: a
// store (address/value pair) or a conditional branch (condition + flag).
// Exactly one of Store* or Cond is set.
type RecordedInstr struct {
	IsBranch bool

	// Store fields.
	StoreArray *ArrayStore
	StoreAddr  *expr.BVExprPtr
	StoreValue *expr.BVExprPtr

	// Branch fields.
	Cond *expr.BoolExprPtr
	Flag BranchFlag
}

// ArrayStore is the WP pass's own memory model: a named symbolic array
// (kept apart from an already-materialized expr.Array, since the pass needs
// to merge writes from several paths into one composite array before
// instantiating the final expression) plus the set of (address, value)
// writes recorded against it.
type ArrayStore struct {
	Name     string
	ElemBits uint
	writes   []write
}

type write struct {
	addr  *expr.BVExprPtr
	value *expr.BVExprPtr
}

func NewArrayStore(name string, elemBits uint) *ArrayStore {
	return &ArrayStore{Name: name, ElemBits: elemBits}
}

// CreateAndInsert records a new write, returning the store for chaining.
func (a *ArrayStore) CreateAndInsert(addr, value *expr.BVExprPtr) *ArrayStore {
	a.writes = append(a.writes, write{addr: addr, value: value})
	return a
}

// Merge folds other's writes onto a, oldest-first, used when two branches
// of a split rejoin and their array stores must be unified before the WP
// pass continues past the join point.
func (a *ArrayStore) Merge(other *ArrayStore) *ArrayStore {
	merged := &ArrayStore{Name: a.Name, ElemBits: a.ElemBits}
	merged.writes = append(merged.writes, a.writes...)
	merged.writes = append(merged.writes, other.writes...)
	return merged
}

// materialize replays the store's writes into the builder's array model,
// producing an *expr.Array an expression can Read from.
func (a *ArrayStore) materialize(builder *expr.Builder) (*expr.Array, error) {
	arr := builder.NewArray(a.Name, a.ElemBits)
	for _, w := range a.writes {
		var err error
		arr, err = builder.Update(arr, w.addr, w.value)
		if err != nil {
			return nil, err
		}
	}
	return arr, nil
}

// Result is what a completed WP pass hands back to the subsumption table:
// the pushed-back formula plus whichever array stores its path touched, so
// UpdateWithWP can materialize them against the table entry's own shadow
// map rather than the pass's transient one.
type Result struct {
	Expr    *expr.BoolExprPtr
	Touched []*ArrayStore
}

// Pass replays a recorded path backward over a target expression to
// produce its weakest precondition.
type Pass struct {
	builder *expr.Builder
	touched map[string]*ArrayStore
}

func NewPass(builder *expr.Builder) *Pass {
	return &Pass{builder: builder, touched: make(map[string]*ArrayStore)}
}

// Run pushes target up through path (given newest-last, the order a path
// was recorded in) and returns the resulting precondition together with
// the array stores that precondition still reads through.
func (p *Pass) Run(path []RecordedInstr, target *expr.BoolExprPtr) (Result, error) {
	p.touched = make(map[string]*ArrayStore)
	result := target
	for i := len(path) - 1; i >= 0; i-- {
		var err error
		result, err = p.pushOne(path[i], result)
		if err != nil {
			return Result{}, err
		}
	}
	final, err := p.InstantiateWPExpression(result)
	if err != nil {
		return Result{}, err
	}
	touched := make([]*ArrayStore, 0, len(p.touched))
	for _, a := range p.touched {
		touched = append(touched, a)
	}
	return Result{Expr: final, Touched: touched}, nil
}

func (p *Pass) pushOne(instr RecordedInstr, acc *expr.BoolExprPtr) (*expr.BoolExprPtr, error) {
	if instr.IsBranch {
		cond, err := p.getCondition(instr)
		if err != nil {
			return nil, err
		}
		if cond == nil {
			return acc, nil
		}
		return p.builder.BoolAnd(acc, cond)
	}
	return p.pushStore(instr, acc)
}

// getCondition resolves a recorded branch into the condition the WP
// formula must additionally assume, honoring its flag: an ignored branch
// contributes nothing, a taken branch contributes its condition as-is, a
// not-taken branch contributes its negation.
func (p *Pass) getCondition(instr RecordedInstr) (*expr.BoolExprPtr, error) {
	switch instr.Flag {
	case FlagIgnore:
		return nil, nil
	case FlagTaken:
		return instr.Cond, nil
	case FlagNotTaken:
		return p.builder.BoolNot(instr.Cond)
	default:
		return nil, fmt.Errorf("wp: unknown branch flag %d", instr.Flag)
	}
}

// getCmpCondition builds the WP condition for a comparison-shaped branch
// directly from operands, used when a caller has the compared values in
// hand rather than an already-built boolean (e.g. reconstructing a branch
// from a trace instead of from a live path condition).
func (p *Pass) getCmpCondition(lhs, rhs *expr.BVExprPtr, op expr.CmpOp, taken bool) (*expr.BoolExprPtr, error) {
	cond, err := p.builder.Cmp(lhs, rhs, op)
	if err != nil {
		return nil, err
	}
	if taken {
		return cond, nil
	}
	return p.builder.BoolNot(cond)
}

// pushStore substitutes every occurrence of a store's address in acc with
// a read through the (possibly-merged) array it was recorded against — the
// syntactic core of weakest-precondition computation for memory writes:
// "P holds after storing v at a" becomes "P[read(a) := v] holds before".
func (p *Pass) pushStore(instr RecordedInstr, acc *expr.BoolExprPtr) (*expr.BoolExprPtr, error) {
	if instr.StoreArray == nil {
		return p.builder.Substitute(acc, instr.StoreAddr, instr.StoreValue).(*expr.BoolExprPtr), nil
	}
	p.touched[instr.StoreArray.Name] = instr.StoreArray
	arr, err := instr.StoreArray.materialize(p.builder)
	if err != nil {
		return nil, err
	}
	read, err := p.builder.Read(arr, instr.StoreAddr)
	if err != nil {
		return nil, err
	}
	return p.builder.Substitute(acc, read, instr.StoreValue).(*expr.BoolExprPtr), nil
}

// generateExprFromOperand folds a constant operand into a bitvector of the
// given width. It handles constants only, and nothing in the module calls
// it.
func generateExprFromOperand(builder *expr.Builder, bits uint, constant int64) *expr.BVExprPtr {
	return builder.BVV(constant, bits)
}

// InstantiateWPExpression finalizes a weakest precondition for storage in
// the subsumption table. pushStore already substitutes a read immediately
// below the write that resolves it, but any read of an address never
// written on the path survives in acc as a bare TY_READ against the
// ArrayStore's name rather than a materialized expr.Array — this walk
// finds every such read and resolves it against p.touched, so the result
// the subsumption table stores never carries a dangling array name.
func (p *Pass) InstantiateWPExpression(acc *expr.BoolExprPtr) (*expr.BoolExprPtr, error) {
	reads := make(map[uintptr]*expr.BVExprPtr)
	collectReads(acc, reads, make(map[uintptr]bool))

	result := acc
	materialized := make(map[string]*expr.Array)
	for _, read := range reads {
		name, index, ok := expr.ReadInfo(read)
		if !ok {
			continue
		}
		store, touched := p.touched[name]
		if !touched {
			continue
		}
		arr, ok := materialized[name]
		if !ok {
			var err error
			arr, err = store.materialize(p.builder)
			if err != nil {
				return nil, err
			}
			materialized[name] = arr
		}
		resolved, err := p.builder.Read(arr, index)
		if err != nil {
			return nil, err
		}
		if resolved.Id() == read.Id() {
			continue
		}
		result = p.builder.Substitute(result, read, resolved).(*expr.BoolExprPtr)
	}
	return result, nil
}

// collectReads walks e's subexpression tree, at any depth, recording every
// distinct TY_READ node it finds into reads (keyed by pointer identity so a
// read shared across branches of the expression is only visited once).
// seen guards against revisiting a node already walked, since hash-consing
// means the same subexpression can be reachable through many parents.
func collectReads(e expr.ExprPtr, reads map[uintptr]*expr.BVExprPtr, seen map[uintptr]bool) {
	var id uintptr
	var numKids int
	var kid func(int) expr.ExprPtr

	switch v := e.(type) {
	case *expr.BVExprPtr:
		id = v.Id()
		numKids = expr.NumKids(v)
		kid = v.Kid
		if seen[id] {
			return
		}
		if _, _, isRead := expr.ReadInfo(v); isRead {
			reads[id] = v
		}
	case *expr.BoolExprPtr:
		id = v.Id()
		numKids = expr.NumKids(v)
		kid = v.Kid
	default:
		return
	}

	if seen[id] {
		return
	}
	seen[id] = true
	for i := 0; i < numKids; i++ {
		collectReads(kid(i), reads, seen)
	}
}
