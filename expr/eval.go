package expr

// Eval concretizes every TY_SYM leaf found in interpr and re-folds the
// expression through the builder's constant-propagating constructors, so
// the result is itself a canonical hash-consed node (usually a constant).
func (eb *Builder) Eval(e ExprPtr, interpr map[string]*BVConst) ExprPtr {
	cache := make(map[uintptr]ExprPtr)
	return eb.evalInternal(e, cache, interpr)
}

func (eb *Builder) evalInternal(eptr ExprPtr, cache map[uintptr]ExprPtr, interpr map[string]*BVConst) ExprPtr {
	e := eptr.getInternal()
	if r, ok := cache[e.rawPtr()]; ok {
		return r
	}

	var result ExprPtr
	var err error
	switch e.kind() {
	case TY_SYM:
		bv := e.(*internalBVS)
		if c, ok := interpr[bv.name]; ok {
			return eb.getOrCreateBV(mkinternalBVVFromConst(*c))
		}
		return eptr
	case TY_CONST:
		return eptr
	case TY_EXTRACT:
		n := e.(*internalBVExprExtract)
		child := eb.evalInternal(n.child, cache, interpr).(*BVExprPtr)
		result, err = eb.Extract(child, n.high, n.low)
	case TY_CONCAT:
		n := e.(*internalBVExprConcat)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		for i := 1; i < len(n.children); i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BVExprPtr)
			res, err = eb.Concat(res, child)
		}
		result = res
	case TY_ZEXT:
		n := e.(*internalBVExprExtend)
		child := eb.evalInternal(n.child, cache, interpr).(*BVExprPtr)
		result, err = eb.ZExt(child, n.n)
	case TY_SEXT:
		n := e.(*internalBVExprExtend)
		child := eb.evalInternal(n.child, cache, interpr).(*BVExprPtr)
		result, err = eb.SExt(child, n.n)
	case TY_ITE:
		n := e.(*internalBVExprITE)
		guard := eb.evalInternal(n.cond, cache, interpr).(*BoolExprPtr)
		iftrue := eb.evalInternal(n.iftrue, cache, interpr).(*BVExprPtr)
		iffalse := eb.evalInternal(n.iffalse, cache, interpr).(*BVExprPtr)
		result, err = eb.ITE(guard, iftrue, iffalse)
	case TY_NOT:
		n := e.(*internalBVExprUnArithmetic)
		child := eb.evalInternal(n.child, cache, interpr).(*BVExprPtr)
		result = eb.Not(child)
	case TY_NEG:
		n := e.(*internalBVExprUnArithmetic)
		child := eb.evalInternal(n.child, cache, interpr).(*BVExprPtr)
		result = eb.Neg(child)
	case TY_SHL:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.Shl(lhs, rhs)
	case TY_LSHR:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.LShr(lhs, rhs)
	case TY_ASHR:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.AShr(lhs, rhs)
	case TY_AND:
		n := e.(*internalBVExprBinArithmetic)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BVExprPtr)
			res, err = eb.And(res, child)
		}
		result = res
	case TY_OR:
		n := e.(*internalBVExprBinArithmetic)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BVExprPtr)
			res, err = eb.Or(res, child)
		}
		result = res
	case TY_XOR:
		n := e.(*internalBVExprBinArithmetic)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BVExprPtr)
			res, err = eb.Xor(res, child)
		}
		result = res
	case TY_ADD:
		n := e.(*internalBVExprBinArithmetic)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BVExprPtr)
			res, err = eb.Add(res, child)
		}
		result = res
	case TY_MUL:
		n := e.(*internalBVExprBinArithmetic)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BVExprPtr)
			res, err = eb.Mul(res, child)
		}
		result = res
	case TY_SDIV:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.SDiv(lhs, rhs)
	case TY_UDIV:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.UDiv(lhs, rhs)
	case TY_SREM:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.SRem(lhs, rhs)
	case TY_UREM:
		n := e.(*internalBVExprBinArithmetic)
		lhs := eb.evalInternal(n.children[0], cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.children[1], cache, interpr).(*BVExprPtr)
		result, err = eb.URem(lhs, rhs)
	case TY_ULT:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.Ult(lhs, rhs)
	case TY_ULE:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.Ule(lhs, rhs)
	case TY_UGT:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.UGt(lhs, rhs)
	case TY_UGE:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.UGe(lhs, rhs)
	case TY_SLT:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.SLt(lhs, rhs)
	case TY_SLE:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.SLe(lhs, rhs)
	case TY_SGT:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.SGt(lhs, rhs)
	case TY_SGE:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.SGe(lhs, rhs)
	case TY_EQ:
		n := e.(*internalBoolExprCmp)
		lhs := eb.evalInternal(n.lhs, cache, interpr).(*BVExprPtr)
		rhs := eb.evalInternal(n.rhs, cache, interpr).(*BVExprPtr)
		result, err = eb.Eq(lhs, rhs)
	case TY_BOOL_CONST:
		n := e.(*internalBoolVal)
		result = eb.BoolVal(n.Value.Value)
	case TY_BOOL_NOT:
		n := e.(*internalBoolUnArithmetic)
		child := eb.evalInternal(n.child, cache, interpr).(*BoolExprPtr)
		result, err = eb.BoolNot(child)
	case TY_BOOL_AND:
		n := e.(*internalBoolExprNaryOp)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BoolExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BoolExprPtr)
			res, err = eb.BoolAnd(res, child)
		}
		result = res
	case TY_BOOL_OR:
		n := e.(*internalBoolExprNaryOp)
		res := eb.evalInternal(n.children[0], cache, interpr).(*BoolExprPtr)
		for i := 1; i < len(n.children) && err == nil; i++ {
			child := eb.evalInternal(n.children[i], cache, interpr).(*BoolExprPtr)
			res, err = eb.BoolOr(res, child)
		}
		result = res
	case TY_READ:
		n := e.(*internalArrayRead)
		index := eb.evalInternal(n.index, cache, interpr).(*BVExprPtr)
		if index.Id() == n.index.Id() {
			return eptr
		}
		result = eb.getOrCreateBV(mkinternalArrayRead(n.arrayName, n.elemBits, index, n.updates))
	case TY_EXISTS:
		n := e.(*internalExists)
		body := eb.evalInternal(n.body, cache, interpr).(*BoolExprPtr)
		result = eb.Exists(n.bound, body)
	default:
		panic("invalid expression type")
	}

	if err != nil {
		panic(err)
	}

	cache[e.rawPtr()] = result
	return result
}

// Substitute replaces every occurrence of from (matched by pointer
// identity) with to inside e, re-folding through the builder. This is the
// primitive the weakest-precondition pass uses to push a postcondition
// through a store, and the existential simplifier uses to eliminate a
// shadow variable once its defining equality is found.
func (eb *Builder) Substitute(e ExprPtr, from ExprPtr, to ExprPtr) ExprPtr {
	cache := make(map[uintptr]ExprPtr)
	return eb.substInternal(e, from.getInternal().rawPtr(), to, cache)
}

func (eb *Builder) substInternal(eptr ExprPtr, fromPtr uintptr, to ExprPtr, cache map[uintptr]ExprPtr) ExprPtr {
	e := eptr.getInternal()
	if e.rawPtr() == fromPtr {
		return to
	}
	if r, ok := cache[e.rawPtr()]; ok {
		return r
	}
	if e.isLeaf() {
		cache[e.rawPtr()] = eptr
		return eptr
	}

	var r ExprPtr = eptr
	switch v := eptr.(type) {
	case *BVExprPtr:
		r = eb.substBV(v, fromPtr, to, cache)
	case *BoolExprPtr:
		r = eb.substBool(v, fromPtr, to, cache)
	}
	cache[e.rawPtr()] = r
	return r
}

func (eb *Builder) substBV(v *BVExprPtr, fromPtr uintptr, to ExprPtr, cache map[uintptr]ExprPtr) ExprPtr {
	if v.Kind() == TY_ITE {
		n := v.e.(*internalBVExprITE)
		cond := eb.substInternal(n.cond, fromPtr, to, cache).(*BoolExprPtr)
		iftrue := eb.substInternal(n.iftrue, fromPtr, to, cache).(*BVExprPtr)
		iffalse := eb.substInternal(n.iffalse, fromPtr, to, cache).(*BVExprPtr)
		if cond.Id() == n.cond.Id() && iftrue.Id() == n.iftrue.Id() && iffalse.Id() == n.iffalse.Id() {
			return v
		}
		r, _ := eb.ITE(cond, iftrue, iffalse)
		return r
	}

	kids := v.e.subexprs()
	newKids := make([]*BVExprPtr, len(kids))
	changed := false
	for i, k := range kids {
		nk := eb.substInternal(wrapInternal(k), fromPtr, to, cache).(*BVExprPtr)
		newKids[i] = nk
		if nk.Id() != k.rawPtr() {
			changed = true
		}
	}
	if !changed {
		return v
	}
	return rebuildBV(eb, v, newKids)
}

func (eb *Builder) substBool(v *BoolExprPtr, fromPtr uintptr, to ExprPtr, cache map[uintptr]ExprPtr) ExprPtr {
	switch v.Kind() {
	case TY_EXISTS:
		n := v.e.(*internalExists)
		body := eb.substInternal(n.body, fromPtr, to, cache).(*BoolExprPtr)
		if body.Id() == n.body.Id() {
			return v
		}
		return eb.Exists(n.bound, body)
	}

	kids := v.e.subexprs()
	newKids := make([]ExprPtr, len(kids))
	changed := false
	for i, k := range kids {
		nk := eb.substInternal(wrapInternal(k), fromPtr, to, cache)
		newKids[i] = nk
		if nk.getInternal().rawPtr() != k.rawPtr() {
			changed = true
		}
	}
	if !changed {
		return v
	}
	return rebuildBool(eb, v, newKids)
}

// rebuildBV reconstructs a bitvector node of the same kind as v over
// replacement children, routing through the constant-folding constructors
// so substitution results stay canonical.
func rebuildBV(eb *Builder, v *BVExprPtr, kids []*BVExprPtr) *BVExprPtr {
	switch v.Kind() {
	case TY_EXTRACT:
		n := v.e.(*internalBVExprExtract)
		r, _ := eb.Extract(kids[0], n.high, n.low)
		return r
	case TY_CONCAT:
		res := kids[0]
		for i := 1; i < len(kids); i++ {
			res, _ = eb.Concat(res, kids[i])
		}
		return res
	case TY_ZEXT:
		n := v.e.(*internalBVExprExtend)
		r, _ := eb.ZExt(kids[0], n.n)
		return r
	case TY_SEXT:
		n := v.e.(*internalBVExprExtend)
		r, _ := eb.SExt(kids[0], n.n)
		return r
	case TY_NOT:
		return eb.Not(kids[0])
	case TY_NEG:
		return eb.Neg(kids[0])
	case TY_AND:
		res := kids[0]
		for i := 1; i < len(kids); i++ {
			res, _ = eb.And(res, kids[i])
		}
		return res
	case TY_OR:
		res := kids[0]
		for i := 1; i < len(kids); i++ {
			res, _ = eb.Or(res, kids[i])
		}
		return res
	case TY_XOR:
		res := kids[0]
		for i := 1; i < len(kids); i++ {
			res, _ = eb.Xor(res, kids[i])
		}
		return res
	case TY_ADD:
		res := kids[0]
		for i := 1; i < len(kids); i++ {
			res, _ = eb.Add(res, kids[i])
		}
		return res
	case TY_MUL:
		res := kids[0]
		for i := 1; i < len(kids); i++ {
			res, _ = eb.Mul(res, kids[i])
		}
		return res
	case TY_SDIV:
		r, _ := eb.SDiv(kids[0], kids[1])
		return r
	case TY_UDIV:
		r, _ := eb.UDiv(kids[0], kids[1])
		return r
	case TY_SREM:
		r, _ := eb.SRem(kids[0], kids[1])
		return r
	case TY_UREM:
		r, _ := eb.URem(kids[0], kids[1])
		return r
	case TY_SHL:
		r, _ := eb.Shl(kids[0], kids[1])
		return r
	case TY_LSHR:
		r, _ := eb.LShr(kids[0], kids[1])
		return r
	case TY_ASHR:
		r, _ := eb.AShr(kids[0], kids[1])
		return r
	case TY_READ:
		n := v.e.(*internalArrayRead)
		return eb.getOrCreateBV(mkinternalArrayRead(n.arrayName, n.elemBits, kids[0], n.updates))
	default:
		return v
	}
}

func rebuildBool(eb *Builder, v *BoolExprPtr, kids []ExprPtr) *BoolExprPtr {
	bvKid := func(i int) *BVExprPtr { return kids[i].(*BVExprPtr) }
	switch v.Kind() {
	case TY_ULT:
		r, _ := eb.Ult(bvKid(0), bvKid(1))
		return r
	case TY_ULE:
		r, _ := eb.Ule(bvKid(0), bvKid(1))
		return r
	case TY_UGT:
		r, _ := eb.UGt(bvKid(0), bvKid(1))
		return r
	case TY_UGE:
		r, _ := eb.UGe(bvKid(0), bvKid(1))
		return r
	case TY_SLT:
		r, _ := eb.SLt(bvKid(0), bvKid(1))
		return r
	case TY_SLE:
		r, _ := eb.SLe(bvKid(0), bvKid(1))
		return r
	case TY_SGT:
		r, _ := eb.SGt(bvKid(0), bvKid(1))
		return r
	case TY_SGE:
		r, _ := eb.SGe(bvKid(0), bvKid(1))
		return r
	case TY_EQ:
		r, _ := eb.Eq(bvKid(0), bvKid(1))
		return r
	case TY_BOOL_NOT:
		r, _ := eb.BoolNot(kids[0].(*BoolExprPtr))
		return r
	case TY_BOOL_AND:
		res := kids[0].(*BoolExprPtr)
		for i := 1; i < len(kids); i++ {
			res, _ = eb.BoolAnd(res, kids[i].(*BoolExprPtr))
		}
		return res
	case TY_BOOL_OR:
		res := kids[0].(*BoolExprPtr)
		for i := 1; i < len(kids); i++ {
			res, _ = eb.BoolOr(res, kids[i].(*BoolExprPtr))
		}
		return res
	default:
		return v
	}
}
