package value

import (
	"fmt"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/memloc"
	"github.com/txinterp/core/store"
)

// Execute interprets one instruction symbolically: it builds the result
// expression from args via the builder, threads Sources/Locations
// bookkeeping, registers the resulting Value under instr.ValueID, and
// returns it. callHistory scopes any new Location created for an Alloca or
// a byval argument.
func (d *Dependency) Execute(instr InstrInfo, callHistory memloc.CallHistory, args []Cell, symbolicErr bool) (*Value, error) {
	switch instr.Opcode {
	case OpAlloca:
		return d.executeAlloca(instr, callHistory, args)
	case OpLoad:
		return d.executeLoad(instr, callHistory, args)
	case OpStore:
		return d.executeStore(instr, callHistory, args)
	case OpGetElementPtr:
		return d.executeGEP(instr, callHistory, args)
	case OpIntToPtr, OpPtrToInt, OpBitCast:
		return d.executePassthroughCast(instr, args)
	case OpSExt:
		return d.executeExtend(instr, args, true)
	case OpZExt:
		return d.executeExtend(instr, args, false)
	case OpTrunc:
		return d.executeTrunc(instr, args)
	case OpSelect:
		return d.executeSelect(instr, args)
	case OpBinary:
		return d.executeBinary(instr, args)
	case OpICmp:
		return d.executeICmp(instr, args)
	case OpInsertValue, OpExtractValue:
		return d.executeStructOp(instr, args)
	case OpCall:
		return d.executeCall(instr, callHistory, args, symbolicErr)
	case OpPHI:
		return d.executePHI(instr, args)
	case OpBr, OpRet:
		return nil, nil
	default:
		return nil, fmt.Errorf("value: %w: opcode %v", ErrUnhandledOpcode, instr.Opcode)
	}
}

func asBV(b *expr.Builder, c Cell) (*expr.BVExprPtr, error) {
	if c.Symbolic != nil {
		bv, ok := c.Symbolic.(*expr.BVExprPtr)
		if !ok {
			return nil, fmt.Errorf("value: %w: expected bitvector operand", ErrContextMismatch)
		}
		return bv, nil
	}
	if c.V == nil {
		return nil, fmt.Errorf("value: %w: empty operand cell", ErrOperandNotFound)
	}
	bv, ok := c.V.Expr.(*expr.BVExprPtr)
	if !ok {
		return nil, fmt.Errorf("value: %w: source value is not a bitvector", ErrContextMismatch)
	}
	return bv, nil
}

func newValue(instr InstrInfo, e expr.ExprPtr) *Value {
	return &Value{LLVMValueID: instr.ValueID, Expr: e, CanInterpolateBound: true}
}

func sourcesFrom(args []Cell) map[*Value]*memloc.Location {
	m := make(map[*Value]*memloc.Location, len(args))
	for _, a := range args {
		if a.V != nil {
			m[a.V] = nil
		}
	}
	return m
}

func (d *Dependency) executeAlloca(instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("value: %w: alloca needs a size operand", ErrOperandNotFound)
	}
	size, err := asBV(d.builder, args[0])
	if err != nil {
		return nil, err
	}
	addr := d.builder.BVS(fmt.Sprintf("alloc_%d_%d", instr.SiteID, instr.ValueID), d.TargetData.PointerWidth())
	loc := memloc.NewLocation(instr.SiteID, ch, addr, sizeConst(size))
	v := newValue(instr, addr)
	v.Locations = []*memloc.Location{loc}
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func sizeConst(bv *expr.BVExprPtr) uint64 {
	if c, err := bv.GetConst(); err == nil {
		return c.AsULong()
	}
	return 0
}

func (d *Dependency) executeLoad(instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	if len(args) == 0 || args[0].V == nil {
		return nil, fmt.Errorf("value: %w: load needs an address value", ErrOperandNotFound)
	}
	addrV := args[0].V
	frame := d.frameFor(ch)
	var stored *Value
	var storedLoc *memloc.Location
	for _, loc := range addrV.Locations {
		c, ok := frame.Read(loc)
		if !ok {
			continue
		}
		stored, _ = c.Value.(*Value)
		storedLoc = loc
		break
	}
	if stored == nil {
		v := newValue(instr, d.builder.BVS(fmt.Sprintf("load_%d", instr.ValueID), d.TargetData.PointerWidth()))
		v.Sources = sourcesFrom(args)
		v.LoadAddr = addrV
		d.register(v)
		return v, nil
	}
	v := newValue(instr, stored.Expr)
	v.Sources = map[*Value]*memloc.Location{addrV: storedLoc, stored: nil}
	v.LoadAddr = addrV
	d.register(v)
	return v, nil
}

func (d *Dependency) executeStore(instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	if len(args) < 2 || args[0].V == nil {
		return nil, fmt.Errorf("value: %w: store needs address and value operands", ErrOperandNotFound)
	}
	addrV, valV := args[0].V, args[1].V
	if valV == nil {
		if args[1].Symbolic == nil {
			return nil, fmt.Errorf("value: %w: store needs a value operand", ErrOperandNotFound)
		}
		valV = newValue(instr, args[1].Symbolic)
	}
	frame := d.frameFor(ch)
	for _, loc := range addrV.Locations {
		frame.Update(loc, store.Cell{Expr: valV.Expr, Value: valV})
	}
	valV.StoreAddr = addrV
	return nil, nil
}

func (d *Dependency) executeGEP(instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	if len(args) < 2 || args[0].V == nil {
		return nil, fmt.Errorf("value: %w: getelementptr needs base and offset operands", ErrOperandNotFound)
	}
	baseV := args[0].V
	offset, err := asBV(d.builder, args[1])
	if err != nil {
		return nil, err
	}
	baseBV, ok := baseV.Expr.(*expr.BVExprPtr)
	if !ok {
		return nil, fmt.Errorf("value: %w: gep base is not a bitvector", ErrContextMismatch)
	}
	addr, err := d.builder.Add(baseBV, offset)
	if err != nil {
		return nil, err
	}
	v := newValue(instr, addr)
	v.Sources = sourcesFrom(args)
	if len(baseV.Locations) > 0 {
		locs := make([]*memloc.Location, 0, len(baseV.Locations))
		for _, bl := range baseV.Locations {
			child, err := memloc.NewChildLocation(d.builder, bl, addr, offset)
			if err != nil {
				return nil, err
			}
			locs = append(locs, child)
		}
		v.Locations = locs
	}
	d.register(v)
	return v, nil
}

func (d *Dependency) executePassthroughCast(instr InstrInfo, args []Cell) (*Value, error) {
	if len(args) == 0 || args[0].V == nil {
		return nil, fmt.Errorf("value: %w: cast needs one operand", ErrOperandNotFound)
	}
	src := args[0].V
	v := newValue(instr, src.Expr)
	v.Locations = src.Locations
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executeExtend(instr InstrInfo, args []Cell, signed bool) (*Value, error) {
	bv, err := asBV(d.builder, args[0])
	if err != nil {
		return nil, err
	}
	if len(instr.TypeIDs) == 0 {
		return nil, fmt.Errorf("value: %w: extend needs a target width", ErrOperandNotFound)
	}
	targetWidth := uint(instr.TypeIDs[0])
	n := targetWidth - bv.Size()
	var out *expr.BVExprPtr
	if signed {
		out, err = d.builder.SExt(bv, n)
	} else {
		out, err = d.builder.ZExt(bv, n)
	}
	if err != nil {
		return nil, err
	}
	v := newValue(instr, out)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executeTrunc(instr InstrInfo, args []Cell) (*Value, error) {
	bv, err := asBV(d.builder, args[0])
	if err != nil {
		return nil, err
	}
	if len(instr.TypeIDs) == 0 {
		return nil, fmt.Errorf("value: %w: trunc needs a target width", ErrOperandNotFound)
	}
	targetWidth := uint(instr.TypeIDs[0])
	out, err := d.builder.Extract(bv, targetWidth-1, 0)
	if err != nil {
		return nil, err
	}
	v := newValue(instr, out)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executeSelect(instr InstrInfo, args []Cell) (*Value, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("value: %w: select needs cond/true/false operands", ErrOperandNotFound)
	}
	cond, ok := args[0].Symbolic.(*expr.BoolExprPtr)
	if !ok && args[0].V != nil {
		cond, ok = args[0].V.Expr.(*expr.BoolExprPtr)
	}
	if !ok {
		return nil, fmt.Errorf("value: %w: select condition is not boolean", ErrContextMismatch)
	}
	t, err := asBV(d.builder, args[1])
	if err != nil {
		return nil, err
	}
	f, err := asBV(d.builder, args[2])
	if err != nil {
		return nil, err
	}
	ite, err := d.builder.ITE(cond, t, f)
	if err != nil {
		return nil, err
	}
	v := newValue(instr, ite)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executeBinary(instr InstrInfo, args []Cell) (*Value, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("value: %w: binary op needs two operands", ErrOperandNotFound)
	}
	lhs, err := asBV(d.builder, args[0])
	if err != nil {
		return nil, err
	}
	rhs, err := asBV(d.builder, args[1])
	if err != nil {
		return nil, err
	}
	op := BinOp(instr.TypeIDs[0])
	out, err := d.applyBinOp(op, lhs, rhs)
	if err != nil {
		return nil, err
	}
	v := newValue(instr, out)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) applyBinOp(op BinOp, lhs, rhs *expr.BVExprPtr) (*expr.BVExprPtr, error) {
	b := d.builder
	switch op {
	case BinAdd:
		return b.Add(lhs, rhs)
	case BinSub:
		neg := b.Neg(rhs)
		return b.Add(lhs, neg)
	case BinMul:
		return b.Mul(lhs, rhs)
	case BinUDiv:
		return b.UDiv(lhs, rhs)
	case BinSDiv:
		return b.SDiv(lhs, rhs)
	case BinURem:
		return b.URem(lhs, rhs)
	case BinSRem:
		return b.SRem(lhs, rhs)
	case BinAnd:
		return b.And(lhs, rhs)
	case BinOr:
		return b.Or(lhs, rhs)
	case BinXor:
		return b.Xor(lhs, rhs)
	case BinShl:
		return b.Shl(lhs, rhs)
	case BinLShr:
		return b.LShr(lhs, rhs)
	case BinAShr:
		return b.AShr(lhs, rhs)
	default:
		return nil, fmt.Errorf("value: %w: binop %v", ErrUnhandledOpcode, op)
	}
}

func (d *Dependency) executeICmp(instr InstrInfo, args []Cell) (*Value, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("value: %w: icmp needs two operands", ErrOperandNotFound)
	}
	lhs, err := asBV(d.builder, args[0])
	if err != nil {
		return nil, err
	}
	rhs, err := asBV(d.builder, args[1])
	if err != nil {
		return nil, err
	}
	op := BinOp(instr.TypeIDs[0])
	b := d.builder
	var out *expr.BoolExprPtr
	switch op {
	case CmpEq:
		out, err = b.Eq(lhs, rhs)
	case CmpNe:
		eq, e2 := b.Eq(lhs, rhs)
		if e2 != nil {
			return nil, e2
		}
		out, err = b.BoolNot(eq)
	case CmpUlt:
		out, err = b.Ult(lhs, rhs)
	case CmpUle:
		out, err = b.Ule(lhs, rhs)
	case CmpUgt:
		out, err = b.UGt(lhs, rhs)
	case CmpUge:
		out, err = b.UGe(lhs, rhs)
	case CmpSlt:
		out, err = b.SLt(lhs, rhs)
	case CmpSle:
		out, err = b.SLe(lhs, rhs)
	case CmpSgt:
		out, err = b.SGt(lhs, rhs)
	case CmpSge:
		out, err = b.SGe(lhs, rhs)
	default:
		return nil, fmt.Errorf("value: %w: icmp predicate %v", ErrUnhandledOpcode, op)
	}
	if err != nil {
		return nil, err
	}
	v := newValue(instr, out)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executeStructOp(instr InstrInfo, args []Cell) (*Value, error) {
	if len(args) == 0 || args[0].V == nil {
		return nil, fmt.Errorf("value: %w: struct op needs an aggregate operand", ErrOperandNotFound)
	}
	v := newValue(instr, args[0].V.Expr)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executePHI(instr InstrInfo, args []Cell) (*Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("value: %w: phi needs at least one incoming value", ErrOperandNotFound)
	}
	selected := args[0]
	e := selected.Symbolic
	if e == nil && selected.V != nil {
		e = selected.V.Expr
	}
	v := newValue(instr, e)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func (d *Dependency) executeCall(instr InstrInfo, ch memloc.CallHistory, args []Cell, symbolicErr bool) (*Value, error) {
	if rule, ok := externalHandlers[instr.CalleeName]; ok {
		return rule(d, instr, ch, args)
	}
	return nil, fmt.Errorf("value: %w: %q is not an inlined call and has no external handler", ErrUnknownExternal, instr.CalleeName)
}
