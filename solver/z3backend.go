package solver

import (
	"context"
	"fmt"

	"github.com/aclements/go-z3/z3"

	"github.com/txinterp/core/expr"
)

// Z3Oracle is the Oracle implementation backed by Microsoft's Z3, adapted
// from the bitvector solver's conversion routine: it walks an expression
// tree only through the exported Kind()/Kid()/GetConst() surface, since it
// lives outside the expr package and cannot reach its unexported node
// types.
type Z3Oracle struct {
	ctx    *z3.Context
	solver *z3.Solver

	lastSymbols map[uintptr]z3.BV
}

func NewZ3Oracle() *Z3Oracle {
	cfg := z3.NewContextConfig()
	ctx := z3.NewContext(cfg)
	return &Z3Oracle{ctx: ctx, solver: z3.NewSolver(ctx)}
}

// runWithContext runs f on its own goroutine and returns as soon as either
// f finishes or ctx expires, whichever comes first. Z3's Go binding gives
// no way to interrupt a Solver.Check already in flight, so a caller whose
// ctx expires first gets its answer back promptly but f's goroutine keeps
// running the query to completion in the background; the next call into
// this Z3Oracle must not start until that happens; since every oracle
// method resets the shared solver before asserting, a caller that issues a
// second query before the first's goroutine has drained risks interleaving
// state with it.
func (s *Z3Oracle) runWithContext(ctx context.Context, f func() (bool, error)) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := f()
		done <- result{ok, err}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-done:
		return r.ok, r.err
	}
}

func (s *Z3Oracle) assertConjuncts(query *expr.BoolExprPtr, cache map[uintptr]z3.Value) {
	for _, conjunct := range expr.FlattenBoolAnd(query) {
		s.solver.Assert(s.convertBool(conjunct, cache))
	}
}

// Satisfiable reports whether query is satisfiable.
func (s *Z3Oracle) Satisfiable(ctx context.Context, query *expr.BoolExprPtr) (bool, error) {
	return s.runWithContext(ctx, func() (bool, error) {
		s.solver.Reset()
		s.lastSymbols = make(map[uintptr]z3.BV)
		cache := make(map[uintptr]z3.Value)
		s.assertConjuncts(query, cache)

		r, err := s.solver.Check()
		if err != nil {
			return false, fmt.Errorf("solver: z3 check failed: %w", err)
		}
		return r, nil
	})
}

// Validity reports whether query is valid by checking its negation for
// unsatisfiability directly in Z3's own boolean algebra, rather than
// building a negated expr.BoolExprPtr first — Z3Oracle has no expr.Builder
// of its own, and the negation never needs to outlive this one check.
func (s *Z3Oracle) Validity(ctx context.Context, query *expr.BoolExprPtr) (bool, error) {
	unsat, err := s.runWithContext(ctx, func() (bool, error) {
		s.solver.Reset()
		s.lastSymbols = make(map[uintptr]z3.BV)
		cache := make(map[uintptr]z3.Value)
		neg := s.convertBool(query, cache).Not()
		s.solver.Assert(neg)

		r, err := s.solver.Check()
		if err != nil {
			return false, fmt.Errorf("solver: z3 check failed: %w", err)
		}
		return !r, nil
	})
	if err != nil {
		return false, err
	}
	return unsat, nil
}

func convertZ3Const(c z3.BV) (*expr.BVConst, error) {
	v := expr.MakeBVConstFromString(c.String()[2:], 16, uint(c.Sort().BVSize()))
	if v == nil {
		return nil, fmt.Errorf("solver: z3 model value is not constant")
	}
	return v, nil
}

// Evaluate enumerates up to n distinct values bv can take subject to pi.
func (s *Z3Oracle) Evaluate(ctx context.Context, bv *expr.BVExprPtr, pi *expr.BoolExprPtr, n int) ([]*expr.BVConst, error) {
	type result struct {
		values []*expr.BVConst
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s.solver.Reset()
		s.lastSymbols = make(map[uintptr]z3.BV)
		cache := make(map[uintptr]z3.Value)

		bvZ3 := s.convertBV(bv, cache)
		s.assertConjuncts(pi, cache)

		var values []*expr.BVConst
		for n > 0 {
			r, err := s.solver.Check()
			if err != nil {
				done <- result{nil, fmt.Errorf("solver: z3 check failed: %w", err)}
				return
			}
			if !r {
				break
			}
			m := s.solver.Model()
			if m == nil {
				done <- result{nil, fmt.Errorf("solver: no model despite sat result")}
				return
			}
			v := m.Eval(bvZ3, true).(z3.BV)
			c, err := convertZ3Const(v)
			if err != nil {
				done <- result{nil, err}
				return
			}
			values = append(values, c)
			s.solver.Assert(bvZ3.NE(v))
			n--
		}
		done <- result{values, nil}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.values, r.err
	}
}

// UnsatCore returns the subset of query's top-level conjuncts Z3 actually
// used to derive unsatisfiability, tracking each conjunct under its own
// fresh boolean label the way Z3's AssertAndTrack/UnsatCore pairing is
// meant to be used, then mapping surviving labels back to the conjuncts
// they were assigned to. A satisfiable query has no core; UnsatCore
// returns (nil, nil) rather than an error in that case, since "not
// subsumed" is an ordinary outcome for the interpolation tree's marker
// walk, not a failure.
func (s *Z3Oracle) UnsatCore(ctx context.Context, query *expr.BoolExprPtr) ([]*expr.BoolExprPtr, error) {
	type result struct {
		core []*expr.BoolExprPtr
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s.solver.Reset()
		s.lastSymbols = make(map[uintptr]z3.BV)
		cache := make(map[uintptr]z3.Value)

		conjuncts := expr.FlattenBoolAnd(query)
		trackers := make(map[string]*expr.BoolExprPtr, len(conjuncts))
		for i, c := range conjuncts {
			label := s.ctx.BoolConst(fmt.Sprintf("core_track_%d", i))
			trackers[label.String()] = c
			s.solver.AssertAndTrack(s.convertBool(c, cache), label)
		}

		sat, err := s.solver.Check()
		if err != nil {
			done <- result{nil, fmt.Errorf("solver: z3 check failed: %w", err)}
			return
		}
		if sat {
			done <- result{nil, nil}
			return
		}

		var core []*expr.BoolExprPtr
		for _, label := range s.solver.UnsatCore() {
			if c, ok := trackers[label.String()]; ok {
				core = append(core, c)
			}
		}
		done <- result{core, nil}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.core, r.err
	}
}

func (s *Z3Oracle) convertBV(e *expr.BVExprPtr, cache map[uintptr]z3.Value) z3.BV {
	if v, ok := cache[e.Id()]; ok {
		return v.(z3.BV)
	}
	var result z3.Value
	switch e.Kind() {
	case expr.TY_SYM:
		result = s.ctx.BVConst(e.String(), int(e.Size()))
		s.lastSymbols[e.Id()] = result.(z3.BV)
	case expr.TY_CONST:
		c, _ := e.GetConst()
		result = s.ctx.FromBigInt(c.BigInt(), s.ctx.BVSort(int(e.Size())))
	case expr.TY_EXTRACT:
		high, low := expr.ExtractBounds(e)
		child := s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache)
		result = child.Extract(int(high), int(low))
	case expr.TY_CONCAT:
		n := expr.NumKids(e)
		res := s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache)
		for i := 1; i < n; i++ {
			res = res.Concat(s.convertBV(e.Kid(i).(*expr.BVExprPtr), cache))
		}
		result = res
	case expr.TY_ZEXT:
		_, n := expr.ExtendInfo(e)
		child := s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache)
		result = child.ZeroExtend(int(n))
	case expr.TY_SEXT:
		_, n := expr.ExtendInfo(e)
		child := s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache)
		result = child.SignExtend(int(n))
	case expr.TY_ITE:
		cond, iftrue, iffalse := expr.ITEParts(e)
		g := s.convertBool(cond, cache)
		t := s.convertBV(iftrue, cache)
		f := s.convertBV(iffalse, cache)
		result = g.IfThenElse(t, f)
	case expr.TY_NOT:
		result = s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache).Not()
	case expr.TY_NEG:
		result = s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache).Neg()
	case expr.TY_SHL, expr.TY_LSHR, expr.TY_ASHR, expr.TY_SDIV, expr.TY_UDIV, expr.TY_SREM, expr.TY_UREM:
		lhs := s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache)
		rhs := s.convertBV(e.Kid(1).(*expr.BVExprPtr), cache)
		switch e.Kind() {
		case expr.TY_SHL:
			result = lhs.Lsh(rhs)
		case expr.TY_LSHR:
			result = lhs.URsh(rhs)
		case expr.TY_ASHR:
			result = lhs.SRsh(rhs)
		case expr.TY_SDIV:
			result = lhs.SDiv(rhs)
		case expr.TY_UDIV:
			result = lhs.UDiv(rhs)
		case expr.TY_SREM:
			result = lhs.SRem(rhs)
		case expr.TY_UREM:
			result = lhs.URem(rhs)
		}
	case expr.TY_AND, expr.TY_OR, expr.TY_XOR, expr.TY_ADD, expr.TY_MUL:
		n := expr.NumKids(e)
		res := s.convertBV(e.Kid(0).(*expr.BVExprPtr), cache)
		for i := 1; i < n; i++ {
			child := s.convertBV(e.Kid(i).(*expr.BVExprPtr), cache)
			switch e.Kind() {
			case expr.TY_AND:
				res = res.And(child)
			case expr.TY_OR:
				res = res.Or(child)
			case expr.TY_XOR:
				res = res.Xor(child)
			case expr.TY_ADD:
				res = res.Add(child)
			case expr.TY_MUL:
				res = res.Mul(child)
			}
		}
		result = res
	case expr.TY_READ:
		// base array reads are modeled as fresh opaque symbols: without a
		// backing array theory sort wired to the z3 package, a read that
		// reached this node (i.e. no ITE in the update chain resolved it)
		// is treated as an unconstrained value of the right width.
		result = s.ctx.BVConst(fmt.Sprintf("read_%d", e.Id()), int(e.Size()))
		s.lastSymbols[e.Id()] = result.(z3.BV)
	default:
		panic(fmt.Sprintf("solver: unhandled bitvector kind %d", e.Kind()))
	}
	cache[e.Id()] = result
	return result.(z3.BV)
}

func (s *Z3Oracle) convertBool(e *expr.BoolExprPtr, cache map[uintptr]z3.Value) z3.Bool {
	if v, ok := cache[e.Id()]; ok {
		return v.(z3.Bool)
	}
	var result z3.Value
	switch e.Kind() {
	case expr.TY_BOOL_CONST:
		t, _ := e.GetConst()
		result = s.ctx.FromBool(t)
	case expr.TY_BOOL_NOT:
		result = s.convertBool(e.Kid(0).(*expr.BoolExprPtr), cache).Not()
	case expr.TY_BOOL_AND, expr.TY_BOOL_OR:
		n := expr.NumKids(e)
		res := s.convertBool(e.Kid(0).(*expr.BoolExprPtr), cache)
		for i := 1; i < n; i++ {
			child := s.convertBool(e.Kid(i).(*expr.BoolExprPtr), cache)
			if e.Kind() == expr.TY_BOOL_AND {
				res = res.And(child)
			} else {
				res = res.Or(child)
			}
		}
		result = res
	case expr.TY_ULT, expr.TY_ULE, expr.TY_UGT, expr.TY_UGE, expr.TY_SLT, expr.TY_SLE, expr.TY_SGT, expr.TY_SGE, expr.TY_EQ:
		lhs, rhs := expr.EqOperands(e)
		l := s.convertBV(lhs, cache)
		r := s.convertBV(rhs, cache)
		switch e.Kind() {
		case expr.TY_ULT:
			result = l.ULT(r)
		case expr.TY_ULE:
			result = l.ULE(r)
		case expr.TY_UGT:
			result = l.UGT(r)
		case expr.TY_UGE:
			result = l.UGE(r)
		case expr.TY_SLT:
			result = l.SLT(r)
		case expr.TY_SLE:
			result = l.SLE(r)
		case expr.TY_SGT:
			result = l.SGT(r)
		case expr.TY_SGE:
			result = l.SGE(r)
		case expr.TY_EQ:
			result = l.Eq(r)
		}
	case expr.TY_EXISTS:
		// The go-z3 binding used here exposes no quantifier construction,
		// so a TY_EXISTS reaching the solver is unwrapped to its body
		// rather than asserted as a quantified formula. This is sound for
		// satisfiability (an existential is SAT iff some instantiation of
		// its body is, and leaving its bound variables free for the
		// solver to choose is exactly that instantiation) but loses bound
		// scoping for any other surrounding use of the same variable
		// name; the subsumption table's shadow-variable naming keeps
		// every existential's bound set disjoint from everything else in
		// the query for this reason.
		result = s.convertBool(expr.ExistsBody(e), cache)
	default:
		panic(fmt.Sprintf("solver: unhandled boolean kind %d", e.Kind()))
	}
	cache[e.Id()] = result
	return result.(z3.Bool)
}
