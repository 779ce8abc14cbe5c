package expr

import "errors"

var errKindMismatch = errors.New("expr: mismatched bitvector/boolean operands")

// KindExists and KindEq re-export the TY_* kind tags a caller outside this
// package needs to branch on without reaching into builder internals.
const (
	KindExists = TY_EXISTS
	KindEq     = TY_EQ
)

// FlattenBoolAnd returns the top-level conjuncts of e: e itself if e is not
// a TY_BOOL_AND, otherwise every leaf of its (already-flattened, by
// construction) AND chain.
func FlattenBoolAnd(e *BoolExprPtr) []*BoolExprPtr {
	if e.Kind() != TY_BOOL_AND {
		return []*BoolExprPtr{e}
	}
	n, ok := e.e.(*internalBoolExprNaryOp)
	if !ok {
		return []*BoolExprPtr{e}
	}
	return n.children
}

// EqOperands returns the two sides of a TY_EQ comparison node.
func EqOperands(e *BoolExprPtr) (*BVExprPtr, *BVExprPtr) {
	c, ok := e.e.(*internalBoolExprCmp)
	if !ok {
		return nil, nil
	}
	return c.lhs, c.rhs
}

// FlattenBoolOr returns the top-level disjuncts of e: e itself if e is not
// a TY_BOOL_OR, otherwise every leaf of its (already-flattened, by
// construction) OR chain. The interpolation tree's marker map uses this to
// split a disjunctive path-condition constraint into one marker per
// disjunct, since an unsat core naming only some of the disjuncts still
// implicates the whole constraint.
func FlattenBoolOr(e *BoolExprPtr) []*BoolExprPtr {
	if e.Kind() != TY_BOOL_OR {
		return []*BoolExprPtr{e}
	}
	n, ok := e.e.(*internalBoolExprNaryOp)
	if !ok {
		return []*BoolExprPtr{e}
	}
	return n.children
}

// EqAny builds an equality between a and b regardless of whether they are
// bitvector or boolean expressions — dispatching to Eq or Iff — for callers
// (the subsumption state-equality constraint) comparing two Values whose
// Expr may hold either kind depending on which instruction produced them.
func (eb *Builder) EqAny(a, b ExprPtr) (*BoolExprPtr, error) {
	if abv, ok := a.(*BVExprPtr); ok {
		bbv, ok := b.(*BVExprPtr)
		if !ok {
			return nil, errKindMismatch
		}
		return eb.Eq(abv, bbv)
	}
	abool, ok := a.(*BoolExprPtr)
	if !ok {
		return nil, errKindMismatch
	}
	bbool, ok := b.(*BoolExprPtr)
	if !ok {
		return nil, errKindMismatch
	}
	return eb.Iff(abool, bbool)
}
