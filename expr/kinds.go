// Package expr implements the symbolic expression algebra the rest of the
// interpolation core is built on: a tagged recursive sum of bitvector and
// boolean expressions, constant-folding constructors, a hash-consing
// builder, and the array/read/update/exists theory the subsumption check
// and weakest-precondition pass need.
package expr

import "errors"

var errNotConst = errors.New("expr: not a constant")

const (
	TY_SYM     = 1
	TY_CONST   = 2
	TY_EXTRACT = 3
	TY_CONCAT  = 4
	TY_ZEXT    = 5
	TY_SEXT    = 6
	TY_ITE     = 7

	TY_NOT  = 8
	TY_NEG  = 9
	TY_SHL  = 10
	TY_LSHR = 11
	TY_ASHR = 12
	TY_AND  = 13
	TY_OR   = 14
	TY_XOR  = 15
	TY_ADD  = 16
	TY_MUL  = 17
	TY_SDIV = 18
	TY_UDIV = 19
	TY_SREM = 20
	TY_UREM = 21

	TY_ULT = 22
	TY_ULE = 23
	TY_UGT = 24
	TY_UGE = 25
	TY_SLT = 26
	TY_SLE = 27
	TY_SGT = 28
	TY_SGE = 29
	TY_EQ  = 30

	TY_BOOL_CONST = 31
	TY_BOOL_NOT   = 32
	TY_BOOL_AND   = 33
	TY_BOOL_OR    = 34

	// Array theory, so the core can express symbolic memory reads over a
	// log of updates, plus existential quantification over bound variables.
	TY_READ   = 35
	TY_EXISTS = 36
)

// internalExpr is the contract every expression node (BV, Bool, or Array)
// must satisfy. Visitors take the internal node and recurse; there is no
// virtual dispatch beyond this single kind switch.
type internalExpr interface {
	String() string

	kind() int
	hash() uint64
	isLeaf() bool
	rawPtr() uintptr
	subexprs() []internalExpr
}

type internalBVExpr interface {
	internalExpr

	size() uint
	deepEq(internalBVExpr) bool
	shallowEq(internalBVExpr) bool
}

type internalBoolExpr interface {
	internalExpr

	deepEq(internalBoolExpr) bool
	shallowEq(internalBoolExpr) bool
}

// ExprPtr is the public handle shared by BVExprPtr and BoolExprPtr so code
// that only cares about "some expression" (shadowing, substitution,
// InvolvedInputs) doesn't need to case on the two wrapper types.
type ExprPtr interface {
	getInternal() internalExpr
	String() string
}

// BVExprPtr is an immutable, hash-consed bitvector expression handle.
type BVExprPtr struct {
	e internalBVExpr
}

func (bv *BVExprPtr) getInternal() internalExpr { return bv.e }

func (bv *BVExprPtr) IsConst() bool {
	return bv.e.kind() == TY_CONST
}

func (bv *BVExprPtr) GetConst() (*BVConst, error) {
	if bv.e.kind() != TY_CONST {
		return nil, errNotConst
	}
	c := bv.e.(*internalBVV)
	return c.Value.Copy(), nil
}

func (bv *BVExprPtr) IsZero() bool {
	if !bv.IsConst() {
		return false
	}
	c, _ := bv.GetConst()
	return c.IsZero()
}

func (bv *BVExprPtr) IsOne() bool {
	if !bv.IsConst() {
		return false
	}
	c, _ := bv.GetConst()
	return c.IsOne()
}

func (bv *BVExprPtr) HasAllBitsSet() bool {
	if !bv.IsConst() {
		return false
	}
	c, _ := bv.GetConst()
	return c.HasAllBitsSet()
}

func (bv *BVExprPtr) IsOppositeOf(o *BVExprPtr) bool {
	if bv.Kind() == TY_NEG {
		negBv := bv.e.(*internalBVExprUnArithmetic)
		if o.Id() == negBv.child.Id() {
			return true
		}
	}
	if o.Kind() == TY_NEG {
		negO := o.e.(*internalBVExprUnArithmetic)
		return bv.Id() == negO.child.Id()
	}
	return false
}

func (bv *BVExprPtr) Size() uint       { return bv.e.size() }
func (bv *BVExprPtr) String() string   { return bv.e.String() }
func (bv *BVExprPtr) Id() uintptr      { return bv.e.rawPtr() }
func (bv *BVExprPtr) Kind() int        { return bv.e.kind() }
func (bv *BVExprPtr) Equals(o *BVExprPtr) bool {
	return bv.e.deepEq(o.e)
}

// BoolExprPtr is an immutable, hash-consed boolean expression handle.
type BoolExprPtr struct {
	e internalBoolExpr
}

func (e *BoolExprPtr) getInternal() internalExpr { return e.e }

func (e *BoolExprPtr) IsConst() bool {
	return e.e.kind() == TY_BOOL_CONST
}

func (e *BoolExprPtr) GetConst() (bool, error) {
	if e.e.kind() != TY_BOOL_CONST {
		return false, errNotConst
	}
	c := e.e.(*internalBoolVal)
	return c.Value.Value, nil
}

func (e *BoolExprPtr) IsTrue() bool {
	v, err := e.GetConst()
	return err == nil && v
}

func (e *BoolExprPtr) IsFalse() bool {
	v, err := e.GetConst()
	return err == nil && !v
}

func (e *BoolExprPtr) String() string { return e.e.String() }
func (e *BoolExprPtr) Id() uintptr    { return e.e.rawPtr() }
func (e *BoolExprPtr) Kind() int      { return e.e.kind() }
func (e *BoolExprPtr) Equals(o *BoolExprPtr) bool {
	return e.e.deepEq(o.e)
}

// Kid returns the i-th boolean/bitvector-agnostic subexpression, used by
// callers (the subsumption existential simplifier) that need to walk an
// expression generically the way KLEE's ref<Expr>::getKid does.
func (e *BoolExprPtr) Kid(i int) ExprPtr {
	return wrapInternal(e.e.subexprs()[i])
}

func (bv *BVExprPtr) Kid(i int) ExprPtr {
	return wrapInternal(bv.e.subexprs()[i])
}

func wrapInternal(ie internalExpr) ExprPtr {
	switch v := ie.(type) {
	case internalBVExpr:
		return &BVExprPtr{v}
	case internalBoolExpr:
		return &BoolExprPtr{v}
	default:
		panic("wrapInternal: unknown expr shape")
	}
}
