package expr

import "fmt"

// CmpOp identifies one of the builder's comparison constructors, letting a
// caller pick the operator dynamically (e.g. from a parsed ICmp predicate)
// instead of calling Ult/Ule/.../Eq by name.
type CmpOp int

const (
	CmpUlt CmpOp = iota
	CmpUle
	CmpUgt
	CmpUge
	CmpSlt
	CmpSle
	CmpSgt
	CmpSge
	CmpEq
)

// Cmp dispatches to the matching comparison constructor.
func (eb *Builder) Cmp(lhs, rhs *BVExprPtr, op CmpOp) (*BoolExprPtr, error) {
	switch op {
	case CmpUlt:
		return eb.Ult(lhs, rhs)
	case CmpUle:
		return eb.Ule(lhs, rhs)
	case CmpUgt:
		return eb.UGt(lhs, rhs)
	case CmpUge:
		return eb.UGe(lhs, rhs)
	case CmpSlt:
		return eb.SLt(lhs, rhs)
	case CmpSle:
		return eb.SLe(lhs, rhs)
	case CmpSgt:
		return eb.SGt(lhs, rhs)
	case CmpSge:
		return eb.SGe(lhs, rhs)
	case CmpEq:
		return eb.Eq(lhs, rhs)
	default:
		return nil, fmt.Errorf("expr: unknown comparison op %d", op)
	}
}
