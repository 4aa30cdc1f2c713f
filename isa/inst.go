package isa

import "github.com/chazu/windlass/abi"

// Inst is a pseudo-instruction produced by ABI lowering. These are the
// machine-independent edges of a function body; a code generator lowers them
// to bytecode against the final frame layout.
type Inst interface {
	isInst()
}

// LoadStack loads a value from a symbolic stack location.
type LoadStack struct {
	Mem  abi.StackAMode
	Into abi.Reg
	Type abi.Type
}

// StoreStack stores a value to a symbolic stack location.
type StoreStack struct {
	Mem  abi.StackAMode
	From abi.Reg
	Type abi.Type
}

// StackAddr materializes the address of a symbolic stack location.
type StackAddr struct {
	Mem  abi.StackAMode
	Into abi.Reg
}

// Move copies a register.
type Move struct {
	Into abi.Reg
	From abi.Reg
	Type abi.Type
}

// Extend widens a narrow integer.
type Extend struct {
	Into     abi.Reg
	From     abi.Reg
	Signed   bool
	FromBits uint8
	ToBits   uint8
}

// ArgsEdge opens a function body, constraining incoming arguments to their
// convention registers.
type ArgsEdge struct {
	Pairs []abi.ArgPair
}

// RetsEdge closes a function body, constraining outgoing return values.
type RetsEdge struct {
	Pairs []abi.RetPair
}

// AddImm adds an immediate to a register.
type AddImm struct {
	Into abi.Reg
	From abi.Reg
	Imm  uint32
}

// TrapIfStackBelow traps when SP is below the limit register.
type TrapIfStackBelow struct {
	Limit abi.Reg
}

// LoadBaseOffset loads from base+offset.
type LoadBaseOffset struct {
	Into   abi.Reg
	Base   abi.Reg
	Offset int32
	Type   abi.Type
}

// StoreBaseOffset stores to base+offset.
type StoreBaseOffset struct {
	Base   abi.Reg
	Offset int32
	From   abi.Reg
	Type   abi.Type
}

// PushFrame pushes lr and fp and establishes the new frame pointer.
type PushFrame struct{}

// PopFrame restores sp from fp and pops fp and lr.
type PopFrame struct{}

// GrowIncomingArgs widens the incoming argument area for tail calls that
// pass more stack arguments than the function received.
type GrowIncomingArgs struct {
	Delta uint32
}

// AdjustSP moves the stack pointer by Amount bytes (negative grows the
// frame).
type AdjustSP struct {
	Amount int64
}

// Ret returns to the caller, popping PopBytes of incoming stack arguments
// first (nonzero only under the tail convention).
type Ret struct {
	PopBytes uint32
}

// ProbeStack calls the outline stack-probe routine for a frame of Size
// bytes.
type ProbeStack struct {
	Size uint32
}

// InlineProbeStack probes the frame inline, touching every guard-sized
// step.
type InlineProbeStack struct {
	Size  uint32
	Guard uint32
}

func (LoadStack) isInst()        {}
func (StoreStack) isInst()       {}
func (StackAddr) isInst()        {}
func (Move) isInst()             {}
func (Extend) isInst()           {}
func (ArgsEdge) isInst()         {}
func (RetsEdge) isInst()         {}
func (AddImm) isInst()           {}
func (TrapIfStackBelow) isInst() {}
func (LoadBaseOffset) isInst()   {}
func (StoreBaseOffset) isInst()  {}
func (PushFrame) isInst()        {}
func (PopFrame) isInst()         {}
func (GrowIncomingArgs) isInst() {}
func (AdjustSP) isInst()         {}
func (Ret) isInst()              {}
func (ProbeStack) isInst()       {}
func (InlineProbeStack) isInst() {}
