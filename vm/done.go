package vm

import "fmt"

// TrapKind classifies why execution trapped.
type TrapKind uint8

const (
	TrapDivideByZero TrapKind = iota
	TrapIntegerOverflow
	TrapBadConversionToInteger
	TrapMemoryOutOfBounds
	TrapDisabledOpcode
	TrapStackOverflow
	TrapUnreachable
)

func (k TrapKind) String() string {
	switch k {
	case TrapDivideByZero:
		return "divide by zero"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapBadConversionToInteger:
		return "bad conversion to integer"
	case TrapMemoryOutOfBounds:
		return "memory out of bounds"
	case TrapDisabledOpcode:
		return "disabled opcode"
	case TrapStackOverflow:
		return "stack overflow"
	case TrapUnreachable:
		return "unreachable executed"
	default:
		return fmt.Sprintf("trap(%d)", uint8(k))
	}
}

// DoneReason reports why the interpreter loop stopped.
type DoneReason interface {
	isDoneReason()
}

// DoneTrap means execution hit a trapping condition. PC is the offset of
// the instruction that trapped, not the one after it.
type DoneTrap struct {
	PC   uint64
	Kind TrapKind
}

// DoneCallIndirectHost means the program requested host function ID and
// execution should resume at Resume once the host call returns.
type DoneCallIndirectHost struct {
	ID     uint8
	Resume uint64
}

// DoneReturnToHost means a return ran with the host sentinel in lr, which
// ends the outermost activation.
type DoneReturnToHost struct{}

func (DoneTrap) isDoneReason()             {}
func (DoneCallIndirectHost) isDoneReason() {}
func (DoneReturnToHost) isDoneReason()     {}

func (d DoneTrap) Error() string {
	return fmt.Sprintf("vm: trap at pc=%#x: %s", d.PC, d.Kind)
}
