package value

import "errors"

var (
	ErrUnhandledOpcode = errors.New("unhandled opcode")
	ErrOperandNotFound  = errors.New("operand not found")
	ErrContextMismatch  = errors.New("operand type mismatch")
	ErrUnknownExternal  = errors.New("unknown external function")
)
