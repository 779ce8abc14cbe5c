package expr

// NumKids returns how many subexpressions e has, for callers (solver
// backends, the subsumption simplifier) that walk an expression generically
// via Kid without needing a type-specific accessor for every kind.
func NumKids(e ExprPtr) int {
	return len(e.getInternal().subexprs())
}

// ExtractBounds returns the (high, low) bit bounds of a TY_EXTRACT node.
func ExtractBounds(e *BVExprPtr) (high, low uint) {
	ex, ok := e.e.(*internalBVExprExtract)
	if !ok {
		return 0, 0
	}
	return ex.high, ex.low
}

// ExtendInfo returns whether a TY_ZEXT/TY_SEXT node sign-extends, and by
// how many bits.
func ExtendInfo(e *BVExprPtr) (signed bool, n uint) {
	ex, ok := e.e.(*internalBVExprExtend)
	if !ok {
		return false, 0
	}
	return ex.signed, ex.n
}

// ITEParts returns a TY_ITE node's condition and branches.
func ITEParts(e *BVExprPtr) (cond *BoolExprPtr, iftrue, iffalse *BVExprPtr) {
	ex, ok := e.e.(*internalBVExprITE)
	if !ok {
		return nil, nil, nil
	}
	return ex.cond, ex.iftrue, ex.iffalse
}
