// Package solver adapts the expression algebra to an SMT backend: the
// Oracle interface subsumption and the engine query against, and a Z3
// implementation of it.
package solver

import (
	"context"

	"github.com/txinterp/core/expr"
)

// Oracle answers the four questions a subsumption check and a branch
// feasibility check need, each scoped to the ctx passed at the call site
// rather than to the Oracle as a whole — a caller with a per-check deadline
// (the engine's subsumption check) threads the same ctx into every solver
// call it makes along the way, instead of racing one goroutine against the
// entire check.
type Oracle interface {
	// Satisfiable reports whether query is satisfiable.
	Satisfiable(ctx context.Context, query *expr.BoolExprPtr) (bool, error)

	// Validity reports whether query is valid, i.e. its negation is
	// unsatisfiable. The subsumption check dispatches here for a candidate
	// whose wrapped interpolant still binds shadow variables under an
	// exists, since "forall the free program symbols, does the interpolant hold"
	// is a validity question rather than a satisfiability one; every other
	// query goes through Satisfiable.
	Validity(ctx context.Context, query *expr.BoolExprPtr) (bool, error)

	// Evaluate enumerates up to n distinct values bv can take subject to
	// pi, used by concretization (e.g. resolving a symbolic call target).
	Evaluate(ctx context.Context, bv *expr.BVExprPtr, pi *expr.BoolExprPtr, n int) ([]*expr.BVConst, error)

	// UnsatCore returns the subset of query's top-level conjuncts that
	// were actually needed to prove it unsatisfiable. The interpolation
	// tree's marker walk uses this to decide which path-condition
	// constraints an interpolant must retain and which it may drop.
	UnsatCore(ctx context.Context, query *expr.BoolExprPtr) ([]*expr.BoolExprPtr, error)
}
