package expr

import (
	"fmt"
	"math/big"
	"runtime"
	"sort"
	"sync"
)

type bvexpr struct {
	exp     internalBVExpr
	counter int
}

type boolexpr struct {
	exp     internalBoolExpr
	counter int
}

// BuilderStats tracks hash-consing cache effectiveness, surfaced by the
// engine's metrics so an operator can tell whether a run is expression-heavy.
type BuilderStats struct {
	CacheHits    uint
	CacheLookups uint
	CachedBVs    uint
	CachedBools  uint
}

// Builder is the hash-consing factory for every expression node. All
// constructors fold constants and apply local rewrites before consulting
// the cache, so structurally-equal expressions always collapse to the same
// pointer; dependency tracking and subsumption lean on that identity.
type Builder struct {
	lock      sync.RWMutex
	bvcache   map[uint64][]bvexpr
	boolcache map[uint64][]boolexpr

	Stats BuilderStats
}

func NewBuilder() *Builder {
	return &Builder{
		bvcache:   map[uint64][]bvexpr{},
		boolcache: map[uint64][]boolexpr{},
	}
}

func (eb *Builder) bvFinalizer(e *BVExprPtr) {
	eb.lock.Lock()
	defer eb.lock.Unlock()

	h := e.e.hash()
	if _, ok := eb.bvcache[h]; !ok {
		return
	}
	buck := eb.bvcache[h]
	newBuck := make([]bvexpr, 0, len(buck))
	for i := 0; i < len(buck); i++ {
		if buck[i].exp.rawPtr() == e.e.rawPtr() {
			buck[i].counter -= 1
			if buck[i].counter <= 0 {
				eb.Stats.CachedBVs -= 1
				continue
			}
		}
		newBuck = append(newBuck, buck[i])
	}
	eb.bvcache[h] = newBuck
}

func (eb *Builder) boolFinalizer(e *BoolExprPtr) {
	eb.lock.Lock()
	defer eb.lock.Unlock()

	h := e.e.hash()
	if _, ok := eb.boolcache[h]; !ok {
		return
	}
	buck := eb.boolcache[h]
	newBuck := make([]boolexpr, 0, len(buck))
	for i := 0; i < len(buck); i++ {
		if buck[i].exp.rawPtr() == e.e.rawPtr() {
			buck[i].counter -= 1
			if buck[i].counter <= 0 {
				eb.Stats.CachedBools -= 1
				continue
			}
		}
		newBuck = append(newBuck, buck[i])
	}
	eb.boolcache[h] = newBuck
}

func (eb *Builder) getOrCreateBV(e internalBVExpr) *BVExprPtr {
	eb.lock.Lock()
	defer eb.lock.Unlock()
	eb.Stats.CacheLookups += 1

	h := e.hash()
	bucket := eb.bvcache[h]
	for i := 0; i < len(bucket); i++ {
		if bucket[i].exp.shallowEq(e) {
			eb.Stats.CacheHits += 1
			bucket[i].counter += 1
			r := &BVExprPtr{bucket[i].exp}
			runtime.SetFinalizer(r, eb.bvFinalizer)
			return r
		}
	}
	eb.Stats.CachedBVs += 1

	bucket = append(bucket, bvexpr{e, 1})
	eb.bvcache[h] = bucket
	r := &BVExprPtr{e}
	runtime.SetFinalizer(r, eb.bvFinalizer)
	return r
}

func (eb *Builder) getOrCreateBool(e internalBoolExpr) *BoolExprPtr {
	eb.lock.Lock()
	defer eb.lock.Unlock()
	eb.Stats.CacheLookups += 1

	h := e.hash()
	bucket := eb.boolcache[h]
	for i := 0; i < len(bucket); i++ {
		if bucket[i].exp.shallowEq(e) {
			eb.Stats.CacheHits += 1
			bucket[i].counter += 1
			r := &BoolExprPtr{bucket[i].exp}
			runtime.SetFinalizer(r, eb.boolFinalizer)
			return r
		}
	}
	eb.Stats.CachedBools += 1

	bucket = append(bucket, boolexpr{e, 1})
	eb.boolcache[h] = bucket
	r := &BoolExprPtr{e}
	runtime.SetFinalizer(r, eb.boolFinalizer)
	return r
}

// InvolvedInputs walks e and returns every TY_SYM leaf reachable from it,
// the basis of the dependency tracker's use-def edges.
func (eb *Builder) InvolvedInputs(e ExprPtr) []*BVExprPtr {
	queue := []internalExpr{e.getInternal()}
	visited := make(map[uintptr]bool)
	symbols := make([]*BVExprPtr, 0)

	for len(queue) > 0 {
		el := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if visited[el.rawPtr()] {
			continue
		}
		visited[el.rawPtr()] = true

		if el.kind() == TY_SYM {
			symbols = append(symbols, eb.getOrCreateBV(el.(internalBVExpr)))
			continue
		}
		queue = append(queue, el.subexprs()...)
	}
	return symbols
}

// *** Constructors ***

func flattenOrAddArithmeticArg(e *BVExprPtr, ty int, children []*BVExprPtr) []*BVExprPtr {
	if e.Kind() == ty {
		lhsInner := e.e.(*internalBVExprBinArithmetic)
		children = append(children, lhsInner.children...)
	} else {
		children = append(children, e)
	}
	return children
}

func removeOneIf(exprs []*BVExprPtr, cmpFun func(*BVExprPtr, *BVExprPtr) bool) []*BVExprPtr {
	exprsPruned := make([]*BVExprPtr, 0, len(exprs))
	for i := 0; i < len(exprs); i++ {
		shouldRemove := false
		for j := i + 1; j < len(exprs); j++ {
			if cmpFun(exprs[i], exprs[j]) {
				shouldRemove = true
				break
			}
		}
		if shouldRemove {
			continue
		}
		exprsPruned = append(exprsPruned, exprs[i])
	}
	return exprsPruned
}

func removeBothIf(exprs []*BVExprPtr, cmpFun func(*BVExprPtr, *BVExprPtr) bool) []*BVExprPtr {
	removed := make(map[int]bool)
	exprsPruned := make([]*BVExprPtr, 0, len(exprs))
	for i := 0; i < len(exprs); i++ {
		if removed[i] {
			continue
		}
		oppositeId := -1
		for j := i + 1; j < len(exprs); j++ {
			if cmpFun(exprs[i], exprs[j]) {
				oppositeId = j
				break
			}
		}
		if oppositeId >= 0 {
			removed[i] = true
			removed[oppositeId] = true
			continue
		}
		exprsPruned = append(exprsPruned, exprs[i])
	}
	return exprsPruned
}

func (eb *Builder) BVV(val int64, size uint) *BVExprPtr {
	return eb.getOrCreateBV(mkinternalBVV(val, size))
}

func (eb *Builder) BVS(name string, size uint) *BVExprPtr {
	return eb.getOrCreateBV(mkinternalBVS(name, size))
}

func (eb *Builder) Neg(e *BVExprPtr) *BVExprPtr {
	if e.IsConst() {
		c, _ := e.GetConst()
		c.Neg()
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c))
	}
	if e.Kind() == TY_NEG {
		eNeg := e.e.(*internalBVExprUnArithmetic)
		return eNeg.child
	}
	if e.Kind() == TY_ADD {
		eAdd := e.e.(*internalBVExprBinArithmetic)
		children := make([]*BVExprPtr, 0, len(eAdd.children))
		for i := 0; i < len(eAdd.children); i++ {
			children = append(children, eb.Neg(eAdd.children[i]))
		}
		r, err := eb.Add(children[0], children[1])
		if err != nil {
			panic(err)
		}
		for i := 2; i < len(children); i++ {
			r, err = eb.Add(r, children[i])
			if err != nil {
				panic(err)
			}
		}
		return r
	}
	ex, _ := mkinternalBVExprNeg(e)
	return eb.getOrCreateBV(ex)
}

func (eb *Builder) Not(e *BVExprPtr) *BVExprPtr {
	if e.IsConst() {
		c, _ := e.GetConst()
		c.Not()
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c))
	}
	if e.Kind() == TY_NOT {
		eNot := e.e.(*internalBVExprUnArithmetic)
		return eNot.child
	}
	ex, _ := mkinternalBVExprNot(e)
	return eb.getOrCreateBV(ex)
}

func (eb *Builder) Add(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if err := c2.Add(c1); err != nil {
			return nil, err
		}
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c2)), nil
	}
	if lhs.IsZero() {
		return rhs, nil
	}
	if rhs.IsZero() {
		return lhs, nil
	}
	if lhs.IsOppositeOf(rhs) {
		return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
	}

	childrenFlattened := make([]*BVExprPtr, 0)
	childrenFlattened = flattenOrAddArithmeticArg(lhs, TY_ADD, childrenFlattened)
	childrenFlattened = flattenOrAddArithmeticArg(rhs, TY_ADD, childrenFlattened)

	children := make([]*BVExprPtr, 0)
	cVal := MakeBVConst(0, lhs.Size())
	for _, child := range childrenFlattened {
		if child.IsConst() {
			childConst, _ := child.GetConst()
			cVal.Add(childConst)
		} else {
			children = append(children, child)
		}
	}
	if !cVal.IsZero() {
		children = append(children, eb.getOrCreateBV(mkinternalBVVFromConst(*cVal)))
	}
	if len(children) == 0 {
		return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
	}
	if len(children) == 1 {
		return children[0], nil
	}
	if len(children) > 2 {
		children = removeBothIf(children, func(bp1, bp2 *BVExprPtr) bool { return bp1.IsOppositeOf(bp2) })
		if len(children) == 0 {
			return eb.BVV(0, lhs.Size()), nil
		}
		if len(children) == 1 {
			return children[0], nil
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex, err := mkinternalBVExprAdd(children)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) Mul(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsOne() {
		return rhs, nil
	}
	if rhs.IsOne() {
		return lhs, nil
	}
	if lhs.IsZero() {
		return lhs, nil
	}
	if rhs.IsZero() {
		return rhs, nil
	}

	childrenFlattened := make([]*BVExprPtr, 0)
	childrenFlattened = flattenOrAddArithmeticArg(lhs, TY_MUL, childrenFlattened)
	childrenFlattened = flattenOrAddArithmeticArg(rhs, TY_MUL, childrenFlattened)

	children := make([]*BVExprPtr, 0)
	cVal := MakeBVConst(1, lhs.Size())
	for _, child := range childrenFlattened {
		if child.IsConst() {
			childConst, _ := child.GetConst()
			cVal.Mul(childConst)
		} else {
			children = append(children, child)
		}
	}
	if !cVal.IsOne() {
		children = append(children, eb.getOrCreateBV(mkinternalBVVFromConst(*cVal)))
	}
	if len(children) == 0 {
		return eb.getOrCreateBV(mkinternalBVV(1, lhs.Size())), nil
	}
	if len(children) == 1 {
		return children[0], nil
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex, err := mkinternalBVExprMul(children)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) And(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsZero() {
		return lhs, nil
	}
	if rhs.IsZero() {
		return rhs, nil
	}
	if lhs.HasAllBitsSet() {
		return rhs, nil
	}
	if rhs.HasAllBitsSet() {
		return lhs, nil
	}
	if lhs.Id() == rhs.Id() {
		return lhs, nil
	}

	childrenFlattened := make([]*BVExprPtr, 0)
	childrenFlattened = flattenOrAddArithmeticArg(lhs, TY_AND, childrenFlattened)
	childrenFlattened = flattenOrAddArithmeticArg(rhs, TY_AND, childrenFlattened)

	children := make([]*BVExprPtr, 0)
	cVal := MakeBVConst(-1, lhs.Size())
	for _, child := range childrenFlattened {
		if child.IsConst() {
			childConst, _ := child.GetConst()
			cVal.And(childConst)
		} else {
			children = append(children, child)
		}
	}
	if !cVal.HasAllBitsSet() {
		children = append(children, eb.getOrCreateBV(mkinternalBVVFromConst(*cVal)))
	}
	if len(children) == 0 {
		return eb.getOrCreateBV(mkinternalBVV(-1, lhs.Size())), nil
	}
	if len(children) == 1 {
		return children[0], nil
	}
	if len(children) > 2 {
		children = removeOneIf(children, func(bp1, bp2 *BVExprPtr) bool { return bp1.Id() == bp2.Id() })
		if len(children) == 1 {
			return children[0], nil
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex, err := mkinternalBVExprAnd(children)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) Or(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsZero() {
		return rhs, nil
	}
	if rhs.IsZero() {
		return lhs, nil
	}
	if lhs.HasAllBitsSet() {
		return lhs, nil
	}
	if rhs.HasAllBitsSet() {
		return rhs, nil
	}
	if lhs.Id() == rhs.Id() {
		return lhs, nil
	}

	childrenFlattened := make([]*BVExprPtr, 0)
	childrenFlattened = flattenOrAddArithmeticArg(lhs, TY_OR, childrenFlattened)
	childrenFlattened = flattenOrAddArithmeticArg(rhs, TY_OR, childrenFlattened)

	children := make([]*BVExprPtr, 0)
	cVal := MakeBVConst(0, lhs.Size())
	for _, child := range childrenFlattened {
		if child.IsConst() {
			childConst, _ := child.GetConst()
			cVal.Or(childConst)
		} else {
			children = append(children, child)
		}
	}
	if !cVal.IsZero() {
		children = append(children, eb.getOrCreateBV(mkinternalBVVFromConst(*cVal)))
	}
	if len(children) == 0 {
		return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
	}
	if len(children) == 1 {
		return children[0], nil
	}
	if len(children) > 2 {
		children = removeOneIf(children, func(bp1, bp2 *BVExprPtr) bool { return bp1.Id() == bp2.Id() })
		if len(children) == 1 {
			return children[0], nil
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex, err := mkinternalBVExprOr(children)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) Xor(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsZero() {
		return rhs, nil
	}
	if rhs.IsZero() {
		return lhs, nil
	}
	if lhs.Id() == rhs.Id() {
		return eb.BVV(0, lhs.Size()), nil
	}

	childrenFlattened := make([]*BVExprPtr, 0)
	childrenFlattened = flattenOrAddArithmeticArg(lhs, TY_XOR, childrenFlattened)
	childrenFlattened = flattenOrAddArithmeticArg(rhs, TY_XOR, childrenFlattened)

	children := make([]*BVExprPtr, 0)
	cVal := MakeBVConst(0, lhs.Size())
	for _, child := range childrenFlattened {
		if child.IsConst() {
			childConst, _ := child.GetConst()
			cVal.Xor(childConst)
		} else {
			children = append(children, child)
		}
	}
	if !cVal.IsZero() {
		children = append(children, eb.getOrCreateBV(mkinternalBVVFromConst(*cVal)))
	}
	if len(children) == 0 {
		return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
	}
	if len(children) == 1 {
		return children[0], nil
	}
	if len(children) > 2 {
		children = removeBothIf(children, func(bp1, bp2 *BVExprPtr) bool { return bp1.Id() == bp2.Id() })
		if len(children) == 0 {
			return eb.BVV(0, lhs.Size()), nil
		}
		if len(children) == 1 {
			return children[0], nil
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex, err := mkinternalBVExprXor(children)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func min(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}

func (eb *Builder) Shl(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if !c2.FitInLong() {
			return eb.getOrCreateBV(mkinternalBVV(0, c1.Size)), nil
		}
		c1.Shl(uint(c2.AsULong()))
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if rhs.IsConst() {
		n, _ := rhs.GetConst()
		if n.value.Cmp(zero) == 0 {
			return lhs, nil
		}
		if n.value.Cmp(big.NewInt(int64(lhs.Size()))) >= 0 {
			return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
		}
	}
	ex, err := mkinternalBVExprShl(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) LShr(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if !c2.FitInLong() {
			return eb.getOrCreateBV(mkinternalBVV(0, c1.Size)), nil
		}
		c1.LShr(uint(c2.AsULong()))
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if rhs.IsConst() {
		n, _ := rhs.GetConst()
		if n.value.Cmp(zero) == 0 {
			return lhs, nil
		}
		if n.value.Cmp(big.NewInt(int64(lhs.Size()))) >= 0 {
			return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
		}
	}
	ex, err := mkinternalBVExprLshr(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) AShr(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if !c2.FitInLong() {
			return eb.getOrCreateBV(mkinternalBVV(0, c1.Size)), nil
		}
		c1.AShr(uint(c2.AsULong()))
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if rhs.IsConst() {
		n, _ := rhs.GetConst()
		if n.value.Cmp(zero) == 0 {
			return lhs, nil
		}
		if n.value.Cmp(big.NewInt(int64(lhs.Size()))) >= 0 {
			return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
		}
	}
	ex, err := mkinternalBVExprAshr(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) Extract(e *BVExprPtr, high, low uint) (*BVExprPtr, error) {
	if high < low {
		return nil, fmt.Errorf("high < low")
	}
	if e.Size() < high-low+1 {
		return nil, fmt.Errorf("high-low+1 > e.Size")
	}
	if low == 0 && high == e.Size()-1 {
		return e, nil
	}
	if e.IsConst() {
		c, _ := e.GetConst()
		if err := c.Truncate(high, low); err != nil {
			return nil, err
		}
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c)), nil
	}
	if e.Kind() == TY_EXTRACT {
		eInt := e.e.(*internalBVExprExtract)
		newLow := low + eInt.low
		newHigh := high + eInt.low
		ex, err := mkinternalBVExprExtract(eInt.child, newHigh, newLow)
		if err != nil {
			return nil, err
		}
		return eb.getOrCreateBV(ex), nil
	}
	if e.Kind() == TY_CONCAT {
		eInt := e.e.(*internalBVExprConcat)
		off := e.Size()
		for _, child := range eInt.children {
			off -= child.Size()
			concatHigh := child.Size() + off - 1
			concatLow := off
			if concatHigh >= high && low >= concatLow {
				return eb.Extract(child, high-off, low-off)
			}
		}
	}
	if e.Kind() == TY_ZEXT {
		eInt := e.e.(*internalBVExprExtend)
		if low == 0 && high == eInt.child.Size()-1 {
			return eInt.child, nil
		}
		if low >= eInt.child.Size() {
			return eb.BVV(0, high-low+1), nil
		}
		ex, err := eb.Extract(eInt.child, min(high, eInt.child.Size()-1), low)
		if err != nil {
			return nil, err
		}
		return eb.ZExt(ex, high-low+1-ex.Size())
	}
	if e.Kind() == TY_SEXT {
		eInt := e.e.(*internalBVExprExtend)
		if low == 0 && high == eInt.child.Size()-1 {
			return eInt.child, nil
		}
		if high < eInt.child.Size() {
			return eb.Extract(eInt.child, high, low)
		}
	}

	ex, err := mkinternalBVExprExtract(e, high, low)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) ZExt(e *BVExprPtr, n uint) (*BVExprPtr, error) {
	if n == 0 {
		return e, nil
	}
	if e.Kind() == TY_ZEXT {
		eInt := e.e.(*internalBVExprExtend)
		return eb.ZExt(eInt.child, eInt.n+n)
	}
	if e.IsConst() {
		c, _ := e.GetConst()
		c.ZExt(n)
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c)), nil
	}
	ex, err := mkinternalBVExprZExt(e, n)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) SExt(e *BVExprPtr, n uint) (*BVExprPtr, error) {
	if n == 0 {
		return e, nil
	}
	if e.Kind() == TY_SEXT {
		eInt := e.e.(*internalBVExprExtend)
		return eb.SExt(eInt.child, eInt.n+n)
	}
	if e.Kind() == TY_ZEXT {
		eInt := e.e.(*internalBVExprExtend)
		if eInt.n == 0 {
			panic("zext with n==0")
		}
		return eb.ZExt(eInt.child, eInt.n+n)
	}
	if e.IsConst() {
		c, _ := e.GetConst()
		c.SExt(n)
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c)), nil
	}
	ex, err := mkinternalBVExprSExt(e, n)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) Concat(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Kind() == TY_EXTRACT {
		lhsInt := lhs.e.(*internalBVExprExtract)
		if lhsInt.low == rhs.Size() && lhsInt.child.Kind() == TY_SEXT {
			lhsChildInt := lhsInt.child.e.(*internalBVExprExtend)
			if lhsChildInt.child.Id() == rhs.Id() {
				return eb.SExt(rhs, lhs.Size())
			}
		}
	}
	if lhs.Kind() == TY_EXTRACT && rhs.Kind() == TY_SEXT {
		lhsInt := lhs.e.(*internalBVExprExtract)
		rhsInt := rhs.e.(*internalBVExprExtend)
		if lhsInt.low == rhs.Size() && lhsInt.child.Kind() == TY_SEXT {
			lhsChildInt := lhsInt.child.e.(*internalBVExprExtend)
			if lhsChildInt.child.Id() == rhsInt.child.Id() {
				return eb.SExt(rhsInt.child, lhs.Size())
			}
		}
	}

	children := make([]*BVExprPtr, 0)
	if lhs.Kind() == TY_CONCAT {
		children = append(children, lhs.e.(*internalBVExprConcat).children...)
	} else {
		children = append(children, lhs)
	}
	if rhs.Kind() == TY_CONCAT {
		children = append(children, rhs.e.(*internalBVExprConcat).children...)
	} else {
		children = append(children, rhs)
	}

	constpropChildren := make([]*BVExprPtr, 0)
	for i := 0; i < len(children); i += 1 {
		child := children[i]
		if child.IsConst() {
			conc, _ := child.GetConst()
			var j int
			for j = i + 1; j < len(children); j++ {
				nextChild := children[j]
				if !nextChild.IsConst() {
					break
				}
				nextConc, _ := nextChild.GetConst()
				conc.Concat(nextConc)
			}
			i = j - 1
			constpropChildren = append(constpropChildren, eb.getOrCreateBV(mkinternalBVVFromConst(*conc)))
		} else {
			constpropChildren = append(constpropChildren, child)
		}
	}

	mergedExtractChildren := make([]*BVExprPtr, 0)
	for i := 0; i < len(constpropChildren); i += 1 {
		child := constpropChildren[i]
		if child.Kind() == TY_EXTRACT {
			childInt := child.e.(*internalBVExprExtract)
			high := childInt.high
			low := childInt.low
			var j int
			for j = i + 1; j < len(constpropChildren); j++ {
				nextChild := constpropChildren[j]
				if nextChild.Kind() != TY_EXTRACT {
					break
				}
				nextChildInt := nextChild.e.(*internalBVExprExtract)
				if nextChildInt.child.Id() != childInt.child.Id() {
					break
				}
				if low != nextChildInt.high+1 {
					break
				}
				low = nextChildInt.low
			}
			i = j - 1
			ex, err := eb.Extract(childInt.child, high, low)
			if err != nil {
				return nil, err
			}
			mergedExtractChildren = append(mergedExtractChildren, ex)
		} else {
			mergedExtractChildren = append(mergedExtractChildren, child)
		}
	}

	if len(mergedExtractChildren) == 0 {
		panic("concat has no children")
	}
	if len(mergedExtractChildren) == 1 {
		return mergedExtractChildren[0], nil
	}

	ex, err := mkinternalBVExprConcat(mergedExtractChildren)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) UDiv(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if c2.IsZero() {
			// consistent with the solver backend: div by zero yields -1
			return eb.getOrCreateBV(mkinternalBVV(-1, c1.Size)), nil
		}
		c1.UDiv(c2)
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if lhs.Id() == rhs.Id() {
		return eb.getOrCreateBV(mkinternalBVV(1, lhs.Size())), nil
	}
	ex, err := mkinternalBVExprUdiv(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) SDiv(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if c2.IsZero() {
			return eb.getOrCreateBV(mkinternalBVV(-1, c1.Size)), nil
		}
		c1.SDiv(c2)
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if lhs.Id() == rhs.Id() {
		return eb.getOrCreateBV(mkinternalBVV(1, lhs.Size())), nil
	}
	ex, err := mkinternalBVExprSdiv(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) URem(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if c2.IsZero() {
			return lhs, nil
		}
		c1.URem(c2)
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if lhs.Id() == rhs.Id() {
		return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
	}
	if rhs.IsConst() {
		c, _ := rhs.GetConst()
		if c.IsOne() {
			return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
		}
	}
	ex, err := mkinternalBVExprUrem(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) SRem(lhs, rhs *BVExprPtr) (*BVExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		if c2.IsZero() {
			return lhs, nil
		}
		c1.SRem(c2)
		return eb.getOrCreateBV(mkinternalBVVFromConst(*c1)), nil
	}
	if lhs.Id() == rhs.Id() {
		return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
	}
	if rhs.IsConst() {
		c, _ := rhs.GetConst()
		if c.IsOne() {
			return eb.getOrCreateBV(mkinternalBVV(0, lhs.Size())), nil
		}
	}
	ex, err := mkinternalBVExprSrem(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) ITE(guard *BoolExprPtr, iftrue *BVExprPtr, iffalse *BVExprPtr) (*BVExprPtr, error) {
	if iftrue.Size() != iffalse.Size() {
		return nil, fmt.Errorf("invalid sizes in ITE")
	}
	if guard.IsConst() {
		g, _ := guard.GetConst()
		if g {
			return iftrue, nil
		}
		return iffalse, nil
	}
	ex, err := mkinternalBVExprITE(guard, iftrue, iffalse)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBV(ex), nil
}

func (eb *Builder) cmp(lhs, rhs *BVExprPtr, fold func(*BVConst, *BVConst) (BoolConst, error), mk func(*BVExprPtr, *BVExprPtr) (*internalBoolExprCmp, error)) (*BoolExprPtr, error) {
	if lhs.Size() != rhs.Size() {
		return nil, fmt.Errorf("different sizes")
	}
	if lhs.IsConst() && rhs.IsConst() {
		c1, _ := lhs.GetConst()
		c2, _ := rhs.GetConst()
		r, err := fold(c1, c2)
		if err != nil {
			return nil, err
		}
		return eb.getOrCreateBool(mkinternalBoolConst(r.Value)), nil
	}
	ex, err := mk(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.getOrCreateBool(ex), nil
}

func (eb *Builder) Ult(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).Ult, mkinternalBoolExprUlt)
}
func (eb *Builder) Ule(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).Ule, mkinternalBoolExprUle)
}
func (eb *Builder) UGt(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).UGt, mkinternalBoolExprUgt)
}
func (eb *Builder) UGe(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).UGe, mkinternalBoolExprUge)
}
func (eb *Builder) SLt(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).SLt, mkinternalBoolExprSlt)
}
func (eb *Builder) SLe(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).SLe, mkinternalBoolExprSle)
}
func (eb *Builder) SGt(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).SGt, mkinternalBoolExprSgt)
}
func (eb *Builder) SGe(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).SGe, mkinternalBoolExprSge)
}
func (eb *Builder) Eq(lhs, rhs *BVExprPtr) (*BoolExprPtr, error) {
	return eb.cmp(lhs, rhs, (*BVConst).Eq, mkinternalBoolExprEq)
}

func (eb *Builder) BoolVal(v bool) *BoolExprPtr {
	return eb.getOrCreateBool(mkinternalBoolConst(v))
}

func (eb *Builder) BoolNot(e *BoolExprPtr) (*BoolExprPtr, error) {
	if e.IsConst() {
		v, _ := e.GetConst()
		return eb.getOrCreateBool(mkinternalBoolConst(!v)), nil
	}
	if e.Kind() == TY_BOOL_NOT {
		return e.e.(*internalBoolUnArithmetic).child, nil
	}
	if e.Kind() == TY_BOOL_AND {
		eInt := e.e.(*internalBoolExprNaryOp)
		children := make([]*BoolExprPtr, 0, len(eInt.children))
		for _, c := range eInt.children {
			nc, err := eb.BoolNot(c)
			if err != nil {
				return nil, err
			}
			children = append(children, nc)
		}
		r, err := eb.BoolOr(children[0], children[1])
		if err != nil {
			return nil, err
		}
		for i := 2; i < len(children); i++ {
			r, err = eb.BoolOr(r, children[i])
			if err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	if e.Kind() == TY_BOOL_OR {
		eInt := e.e.(*internalBoolExprNaryOp)
		children := make([]*BoolExprPtr, 0, len(eInt.children))
		for _, c := range eInt.children {
			nc, err := eb.BoolNot(c)
			if err != nil {
				return nil, err
			}
			children = append(children, nc)
		}
		r, err := eb.BoolAnd(children[0], children[1])
		if err != nil {
			return nil, err
		}
		for i := 2; i < len(children); i++ {
			r, err = eb.BoolAnd(r, children[i])
			if err != nil {
				return nil, err
			}
		}
		return r, nil
	}

	if negate, ok := cmpNegations[e.Kind()]; ok {
		eInt := e.e.(*internalBoolExprCmp)
		ex, err := negate(eInt.lhs, eInt.rhs)
		if err != nil {
			return nil, err
		}
		return eb.getOrCreateBool(ex), nil
	}

	ex := mkinternalBoolNot(e)
	return eb.getOrCreateBool(ex), nil
}

var cmpNegations = map[int]func(*BVExprPtr, *BVExprPtr) (*internalBoolExprCmp, error){
	TY_ULE: mkinternalBoolExprUgt,
	TY_ULT: mkinternalBoolExprUge,
	TY_UGE: mkinternalBoolExprUlt,
	TY_UGT: mkinternalBoolExprUle,
	TY_SLE: mkinternalBoolExprSgt,
	TY_SLT: mkinternalBoolExprSge,
	TY_SGT: mkinternalBoolExprSle,
	TY_SGE: mkinternalBoolExprSlt,
}

// Iff builds a biconditional between lhs and rhs: (lhs AND rhs) OR (NOT lhs
// AND NOT rhs). Used to compare two boolean-valued Values the way Eq
// compares two bitvector-valued ones, e.g. subsumption's state-equality
// constraint over a store entry that happens to hold an icmp result.
func (eb *Builder) Iff(lhs, rhs *BoolExprPtr) (*BoolExprPtr, error) {
	if lhs.Id() == rhs.Id() {
		return eb.BoolVal(true), nil
	}
	notLhs, err := eb.BoolNot(lhs)
	if err != nil {
		return nil, err
	}
	notRhs, err := eb.BoolNot(rhs)
	if err != nil {
		return nil, err
	}
	bothTrue, err := eb.BoolAnd(lhs, rhs)
	if err != nil {
		return nil, err
	}
	bothFalse, err := eb.BoolAnd(notLhs, notRhs)
	if err != nil {
		return nil, err
	}
	return eb.BoolOr(bothTrue, bothFalse)
}

func (eb *Builder) BoolAnd(lhs, rhs *BoolExprPtr) (*BoolExprPtr, error) {
	if lhs.IsConst() {
		v, _ := lhs.GetConst()
		if v {
			return rhs, nil
		}
		return eb.getOrCreateBool(mkinternalBoolConst(false)), nil
	}
	if rhs.IsConst() {
		v, _ := rhs.GetConst()
		if v {
			return lhs, nil
		}
		return eb.getOrCreateBool(mkinternalBoolConst(false)), nil
	}

	children := make([]*BoolExprPtr, 0)
	if lhs.Kind() == TY_BOOL_AND {
		children = append(children, lhs.e.(*internalBoolExprNaryOp).children...)
	} else {
		children = append(children, lhs)
	}
	if rhs.Kind() == TY_BOOL_AND {
		children = append(children, rhs.e.(*internalBoolExprNaryOp).children...)
	} else {
		children = append(children, rhs)
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex := mkinternalBoolExprAnd(children)
	return eb.getOrCreateBool(ex), nil
}

func (eb *Builder) BoolOr(lhs, rhs *BoolExprPtr) (*BoolExprPtr, error) {
	if lhs.IsConst() {
		v, _ := lhs.GetConst()
		if !v {
			return rhs, nil
		}
		return eb.getOrCreateBool(mkinternalBoolConst(true)), nil
	}
	if rhs.IsConst() {
		v, _ := rhs.GetConst()
		if !v {
			return lhs, nil
		}
		return eb.getOrCreateBool(mkinternalBoolConst(true)), nil
	}

	children := make([]*BoolExprPtr, 0)
	if lhs.Kind() == TY_BOOL_OR {
		children = append(children, lhs.e.(*internalBoolExprNaryOp).children...)
	} else {
		children = append(children, lhs)
	}
	if rhs.Kind() == TY_BOOL_OR {
		children = append(children, rhs.e.(*internalBoolExprNaryOp).children...)
	} else {
		children = append(children, rhs)
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Id() < children[j].Id() })
	ex := mkinternalBoolExprOr(children)
	return eb.getOrCreateBool(ex), nil
}
