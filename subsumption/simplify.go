package subsumption

import (
	"errors"

	"github.com/txinterp/core/expr"
)

var ErrNotBoolean = errors.New("subsumption: expected a boolean expression")

// simplifyExistsExpr drops a top-level exists wrapper whose bound
// variables have no free occurrence left after the rest of the query was
// built — GetShadowExpr already prunes unused binders when it constructs
// an entry, but the conjunction built in Subsumed can make a previously-
// relevant binder vanish again (e.g. if NOT cancels it out), so re-check
// here before handing the query to the solver.
func simplifyExistsExpr(builder *expr.Builder, e *expr.BoolExprPtr) *expr.BoolExprPtr {
	if e.Kind() != expr.KindExists {
		return e
	}
	bound := expr.ExistsBound(e)
	body := expr.ExistsBody(e)
	return builder.Exists(bound, body)
}

// simplifyArithmeticBody folds the body of an exists (or the expression
// itself, if unquantified) through the builder's constant-propagating
// constructors one more time via Eval — cheap insurance that the
// shadow-substitution step left behind foldable arithmetic the builder's
// own constructors would have collapsed had they seen it directly.
func simplifyArithmeticBody(builder *expr.Builder, e *expr.BoolExprPtr) *expr.BoolExprPtr {
	folded := builder.Eval(e, nil)
	b, ok := folded.(*expr.BoolExprPtr)
	if !ok {
		return e
	}
	return b
}

// simplifyEqualityExpr rewrites "exists x . x == c && P(x)" into "P(c)"
// when the equality pins the bound variable to a concrete or
// already-known expression — substituting the binding away entirely
// removes one quantifier per found equality instead of asking the solver
// to discover the substitution itself.
func simplifyEqualityExpr(builder *expr.Builder, e *expr.BoolExprPtr) *expr.BoolExprPtr {
	if e.Kind() != expr.KindExists {
		return e
	}
	bound := expr.ExistsBound(e)
	body := expr.ExistsBody(e)
	remaining := make([]*expr.BVExprPtr, 0, len(bound))
	for _, b := range bound {
		binding := findEqualityBinding(body, b)
		if binding != nil {
			body = builder.Substitute(body, b, binding).(*expr.BoolExprPtr)
			continue
		}
		remaining = append(remaining, b)
	}
	return builder.Exists(remaining, body)
}

// findEqualityBinding looks for a top-level conjunct of the form
// "sym == expr" (in either operand order) and returns the other side.
func findEqualityBinding(body *expr.BoolExprPtr, sym *expr.BVExprPtr) *expr.BVExprPtr {
	for _, conjunct := range expr.FlattenBoolAnd(body) {
		if conjunct.Kind() != expr.KindEq {
			continue
		}
		lhs, rhs := expr.EqOperands(conjunct)
		if lhs.Id() == sym.Id() {
			return rhs
		}
		if rhs.Id() == sym.Id() {
			return lhs
		}
	}
	return nil
}

// simplifyWithFourierMotzkin is a placeholder hook for eliminating bound
// variables that only ever appear in linear inequalities, by Fourier-Motzkin
// elimination ahead of falling back to the solver. Linear projection is not
// implemented here;
// the identity pass keeps the query semantically correct (it relies on
// simplifyEqualityExpr and the solver itself to discharge those
// quantifiers) while leaving the hook in place for that extension.
func simplifyWithFourierMotzkin(builder *expr.Builder, e *expr.BoolExprPtr) *expr.BoolExprPtr {
	return e
}
