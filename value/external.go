package value

import (
	"fmt"

	"github.com/txinterp/core/expr"
	"github.com/txinterp/core/memloc"
)

// externalRule models one external (non-inlined) function call: given the
// arguments already bound to Cells, it produces the call's result Value
// (nil for void functions) or an error.
type externalRule func(d *Dependency, instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error)

// externalHandlers covers the libc-ish surface a symbolically-executed
// program commonly calls into without a bitcode body to step through:
// allocators get a fresh symbolic address and an Alloca-shaped Location,
// environment/identity/stream queries get a fresh symbolic result, and
// pure side-effect calls (puts, fflush, ...) return nil.
var externalHandlers = map[string]externalRule{
	"_Znwm":    allocatorHandler,
	"_Znam":    allocatorHandler,
	"malloc":   allocatorHandler,
	"calloc":   allocatorHandler,
	"realloc":  allocatorHandler,

	"getenv":       freshResultHandler(64),
	"getpagesize":  freshResultHandler(32),
	"ioctl":        freshResultHandler(32),
	"__ctype_b_loc": freshResultHandler(64),
	"__errno_location": freshResultHandler(64),
	"geteuid":      freshResultHandler(32),
	"syscall":      freshResultHandler(64),

	"strcmp":  freshResultHandler(32),
	"strncmp": freshResultHandler(32),

	"puts":    voidHandler,
	"fflush":  voidHandler,
	"printf":  freshResultHandler(32),
	"vprintf": freshResultHandler(32),

	"fchmodat": freshResultHandler(32),
	"fchownat": freshResultHandler(32),

	"klee_get_valuel":  passthroughHandler,
	"klee_get_valuell": passthroughHandler,
	"klee_get_value_i32": passthroughHandler,
	"klee_get_value_i64": passthroughHandler,

	"fopen":  allocatorHandler,
	"fread":  freshResultHandler(64),
	"fwrite": freshResultHandler(64),
	"fclose": voidHandler,
}

func allocatorHandler(d *Dependency, instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	var size uint64
	if len(args) > 0 {
		if bv, err := asBV(d.builder, args[0]); err == nil {
			size = sizeConst(bv)
		}
	}
	addr := d.builder.BVS(fmt.Sprintf("ext_alloc_%d", instr.ValueID), d.TargetData.PointerWidth())
	loc := memloc.NewLocation(instr.ValueID, ch, addr, size)
	v := newValue(instr, addr)
	v.Locations = []*memloc.Location{loc}
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}

func freshResultHandler(width uint) externalRule {
	return func(d *Dependency, instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
		v := newValue(instr, d.builder.BVS(fmt.Sprintf("ext_ret_%d", instr.ValueID), width))
		v.Sources = sourcesFrom(args)
		d.register(v)
		return v, nil
	}
}

func voidHandler(d *Dependency, instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	return nil, nil
}

func passthroughHandler(d *Dependency, instr InstrInfo, ch memloc.CallHistory, args []Cell) (*Value, error) {
	if len(args) == 0 {
		return freshResultHandler(64)(d, instr, ch, args)
	}
	var e expr.ExprPtr
	if args[0].Symbolic != nil {
		e = args[0].Symbolic
	} else if args[0].V != nil {
		e = args[0].V.Expr
	}
	if e == nil {
		return freshResultHandler(64)(d, instr, ch, args)
	}
	v := newValue(instr, e)
	v.Sources = sourcesFrom(args)
	d.register(v)
	return v, nil
}
