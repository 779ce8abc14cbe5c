// Package subsumption implements the subsumption table: a cache of
// previously-computed interpolants, keyed by program location, that a new
// tree node's state can be checked against to short-circuit exploring a
// path the table already proves infeasible (or already covers).
package subsumption

import (
	"context"
	"fmt"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/itree"
	"github.com/txinterp/core/solver"
	"github.com/txinterp/core/wp"
)

// Entry is one cached subsumption fact: an interpolant existentially
// quantified over the shadow variables standing in for the free symbols of
// the node it was built from, plus the store snapshots a later node's
// concrete state must be compared against before the interpolant alone
// can be trusted.
type Entry struct {
	// ProgramPoint is the location (e.g. LLVM basic block id) this entry
	// was cached under — carried on the entry itself, not just as the
	// table's map key, so a caller holding a *Entry out of context (e.g.
	// mid weakest-precondition pass) can still report where it came from.
	ProgramPoint uint64

	// Interpolant is existentially quantified over Existentials' scalar
	// counterparts: Exists(shadow.Shadows(), shadowedInterpolant).
	Interpolant *expr.BoolExprPtr

	// SingletonStore holds, per LLVM value id, the shadowed expression of
	// that value's single core version at the node this entry was built
	// from.
	SingletonStore map[uint64]expr.ExprPtr

	// CompositeStore holds every shadowed core version of a value, for
	// values whose binding changed mid-path — the state-equality
	// constraint checks a later node's current value against any one of
	// these, not just the latest.
	CompositeStore map[uint64][]expr.ExprPtr

	// Existentials are the shadow arrays (paralleling the scalar shadow
	// symbols bound by Interpolant's Exists) a stored expression reads
	// through, populated as UpdateWithWP folds array-store writes in.
	Existentials []*expr.Array

	// WPInterpolant is the weakest-precondition formula UpdateWithWP last
	// conjoined into Interpolant, kept unwrapped so a caller can inspect
	// what refined this entry without re-deriving it.
	WPInterpolant *expr.BoolExprPtr

	shadow *expr.ShadowMap
}

// BuildEntry existentially lifts n's interpolant (and the core value
// snapshots it was computed from) over its own free symbols, producing an
// entry whose truth does not depend on which concrete values those
// symbols happened to take at n.
func BuildEntry(builder *expr.Builder, n *itree.Node, loc uint64, prefix string) (*Entry, error) {
	interp, err := n.GetInterpolant(builder)
	if err != nil {
		return nil, err
	}
	shadow := expr.NewShadowMap(builder, prefix)
	shadowed, ok := shadow.GetShadowExpr(interp).(*expr.BoolExprPtr)
	if !ok {
		return nil, ErrNotBoolean
	}

	singleton := make(map[uint64]expr.ExprPtr)
	for id, e := range n.GetLatestCoreExpressions() {
		singleton[id] = shadow.GetShadowExpr(e)
	}
	composite := make(map[uint64][]expr.ExprPtr)
	for id, versions := range n.GetCompositeCoreExpressions() {
		for _, e := range versions {
			composite[id] = append(composite[id], shadow.GetShadowExpr(e))
		}
	}

	quantified := builder.Exists(shadow.Shadows(), shadowed)
	return &Entry{
		ProgramPoint:   loc,
		Interpolant:    quantified,
		SingletonStore: singleton,
		CompositeStore: composite,
		Existentials:   shadow.Arrays(),
		shadow:         shadow,
	}, nil
}

// Table is a program-location-keyed cache of Entry lists — one location
// (e.g. a loop header) may accumulate multiple entries over successive
// visits.
type Table struct {
	entries map[uint64][]*Entry
	builder *expr.Builder
}

func NewTable(builder *expr.Builder) *Table {
	return &Table{entries: make(map[uint64][]*Entry), builder: builder}
}

// Insert records e under loc (e.g. the LLVM basic block id a node
// revisits), appending to whatever is already cached there.
func (t *Table) Insert(loc uint64, e *Entry) {
	t.entries[loc] = append(t.entries[loc], e)
}

// EntriesAt returns every entry cached at loc, so a caller driving a
// weakest-precondition pass over a newly-infeasible path can tighten the
// entries it might refine via UpdateWithWP.
func (t *Table) EntriesAt(loc uint64) []*Entry {
	return t.entries[loc]
}

// Subsumed checks whether n's current state is already covered by some
// cached entry at loc. Each candidate is checked in seven steps:
//  1. fetch the candidate entries cached at loc
//  2. skip any whose stores reference a core value n does not currently
//     track (it cannot possibly apply)
//  3. build the state-equality constraint: n's current core values must
//     match the candidate's singleton store exactly and its composite
//     store disjunctively (any one recorded version is enough)
//  4. conjoin the state-equality constraint into the candidate's
//     interpolant, inside its existential scope, and build the query:
//     n's path condition AND NOT (that conjunction)
//  5. simplify the query's existential/arithmetic/equality shape so the
//     solver sees the smallest formula possible
//  6. dispatch to the oracle: Validity for a query whose candidate carries
//     live existentials (a universal claim over the shadow variables),
//     Satisfiable otherwise
//  7. an unsat query (a valid implication) means the candidate already
//     accounts for n's state — n is subsumed; the oracle's unsat core is
//     folded back into n's own markers before reporting success, so a
//     caller that still wants n's interpolant gets the tightened one
func (t *Table) Subsumed(ctx context.Context, oracle solver.Oracle, n *itree.Node, loc uint64) (bool, error) {
	candidates := t.entries[loc]
	pc, err := n.PC.Conjunction(t.builder)
	if err != nil {
		return false, err
	}
	current := n.GetLatestCoreExpressions()

	for _, cand := range candidates {
		if !storesCompatible(cand, current) {
			continue
		}

		stateEq, err := stateEquality(t.builder, cand, n)
		if err != nil {
			return false, err
		}

		bound := expr.ExistsBound(cand.Interpolant)
		body := expr.ExistsBody(cand.Interpolant)
		if body == nil {
			body = cand.Interpolant
		}
		combined, err := t.builder.BoolAnd(body, stateEq)
		if err != nil {
			return false, err
		}
		wrapped := t.builder.Exists(bound, combined)

		notWrapped, err := t.builder.BoolNot(wrapped)
		if err != nil {
			return false, err
		}
		query, err := t.builder.BoolAnd(pc, notWrapped)
		if err != nil {
			return false, err
		}
		query = simplifyExistsExpr(t.builder, query)
		query = simplifyArithmeticBody(t.builder, query)
		query = simplifyEqualityExpr(t.builder, query)
		query = simplifyWithFourierMotzkin(t.builder, query)

		var subsumedByCand bool
		if len(bound) > 0 {
			notPC, err := t.builder.BoolNot(pc)
			if err != nil {
				return false, err
			}
			implication, err := t.builder.BoolOr(notPC, wrapped)
			if err != nil {
				return false, err
			}
			subsumedByCand, err = oracle.Validity(ctx, implication)
			if err != nil {
				return false, err
			}
		} else {
			sat, err := oracle.Satisfiable(ctx, query)
			if err != nil {
				return false, err
			}
			subsumedByCand = !sat
		}

		if !subsumedByCand {
			continue
		}

		if core, err := oracle.UnsatCore(ctx, query); err == nil && core != nil {
			if _, err := n.RefineWithUnsatCore(t.builder, core); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

// storesCompatible requires every core value the candidate's stores name
// to still be tracked by current — an entry computed over fewer live
// values could still subsume a node that additionally tracks values the
// entry never depended on, but not the reverse.
func storesCompatible(cand *Entry, current map[uint64]expr.ExprPtr) bool {
	for id := range cand.SingletonStore {
		if _, ok := current[id]; !ok {
			return false
		}
	}
	for id := range cand.CompositeStore {
		if _, ok := current[id]; !ok {
			return false
		}
	}
	return true
}

// stateEquality builds the constraint linking a candidate's stored shadow
// state to n's current concrete state: every singleton value must match
// exactly, and every composite value must match at least one of its
// recorded versions (a disjunction), since the path that produced the
// candidate may have reached loc with that value bound differently on
// different occasions.
func stateEquality(builder *expr.Builder, cand *Entry, n *itree.Node) (*expr.BoolExprPtr, error) {
	current := n.GetLatestCoreExpressions()
	result := builder.BoolVal(true)

	for id, shadowVal := range cand.SingletonStore {
		curVal := current[id]
		eq, err := builder.EqAny(shadowVal, curVal)
		if err != nil {
			return nil, fmt.Errorf("subsumption: state-equality for value %d: %w", id, err)
		}
		result, err = builder.BoolAnd(result, eq)
		if err != nil {
			return nil, err
		}
	}

	currentComposite := n.GetCompositeCoreExpressions()
	for id, shadowVersions := range cand.CompositeStore {
		var disjunction *expr.BoolExprPtr
		for _, sv := range shadowVersions {
			for _, cv := range currentComposite[id] {
				eq, err := builder.EqAny(sv, cv)
				if err != nil {
					return nil, fmt.Errorf("subsumption: state-equality for value %d: %w", id, err)
				}
				if disjunction == nil {
					disjunction = eq
					continue
				}
				disjunction, err = builder.BoolOr(disjunction, eq)
				if err != nil {
					return nil, err
				}
			}
		}
		if disjunction == nil {
			continue
		}
		var err error
		result, err = builder.BoolAnd(result, disjunction)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UpdateWithWP refines e with a weakest-precondition result computed along
// the path that produced it, in four steps:
//  1. shadow the WP formula's free symbols so they line up with e's
//     existing shadow variables rather than introducing fresh, unrelated
//     ones
//  2. fold any array store the WP pass touched into e's own existentials,
//     shadowed the same way
//  3. conjoin the shadowed WP formula into e's interpolant, inside its
//     existing quantifier scope
//  4. record the shadowed WP formula on its own in e.WPInterpolant
func (t *Table) UpdateWithWP(e *Entry, wpResult wp.Result) error {
	shadowedWP, ok := e.shadow.GetShadowExpr(wpResult.Expr).(*expr.BoolExprPtr)
	if !ok {
		return ErrNotBoolean
	}

	for _, as := range wpResult.Touched {
		shadowArr := e.shadow.ShadowArray(&expr.Array{Name: as.Name, ElemBits: as.ElemBits})
		e.Existentials = append(e.Existentials, shadowArr)
	}

	bound := expr.ExistsBound(e.Interpolant)
	body := expr.ExistsBody(e.Interpolant)
	if body == nil {
		body = e.Interpolant
	}
	tightened, err := t.builder.BoolAnd(body, shadowedWP)
	if err != nil {
		return err
	}
	e.Interpolant = t.builder.Exists(bound, tightened)
	e.WPInterpolant = shadowedWP
	return nil
}
