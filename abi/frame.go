package abi

import "fmt"

// FrameLayout describes a function's finished stack frame. The regions cover
// the frame from high to low addresses in field order; every size includes
// any alignment padding the convention requires.
type FrameLayout struct {
	// WordBytes is the machine word size, kept here so the layout is
	// self-contained.
	WordBytes uint32

	// IncomingArgsSize is the caller-provided stack argument area. Not
	// part of this frame proper, but addressed relative to it.
	IncomingArgsSize uint32

	// TailArgsSize is the incoming argument area grown to the largest
	// tail-call argument area this function needs. Equal to
	// IncomingArgsSize when the function makes no tail calls.
	TailArgsSize uint32

	// SetupAreaSize holds the return address and saved frame pointer.
	SetupAreaSize uint32

	// ClobberSize is the save area for clobbered callee-saved registers.
	ClobberSize uint32

	// FixedFrameStorageSize holds stack slots and spill slots.
	FixedFrameStorageSize uint32

	// StackslotsSize is the portion of fixed frame storage occupied by
	// sized stack slots (spill slots sit above them).
	StackslotsSize uint32

	// OutgoingArgsSize is the reserved outgoing argument area at the
	// bottom of the frame.
	OutgoingArgsSize uint32

	// ClobberedCalleeSaves lists the clobbered callee-saved registers,
	// sorted by class then number.
	ClobberedCalleeSaves []Reg
}

// ActiveSize is the FP-to-SP distance while the frame is active (between
// prologue and epilogue).
func (f *FrameLayout) ActiveSize() uint32 {
	return f.OutgoingArgsSize + f.FixedFrameStorageSize + f.ClobberSize
}

// SPToSizedStackSlots returns the offset from SP to the sized stack slot
// area.
func (f *FrameLayout) SPToSizedStackSlots() uint32 {
	return f.OutgoingArgsSize
}

// SpillslotOffset returns the SP-relative offset of a spill slot within the
// fixed frame storage. Spill slots are one word each and sit above the sized
// stack slots.
func (f *FrameLayout) SpillslotOffset(slot int) int64 {
	if slot < 0 {
		panic(fmt.Sprintf("abi: negative spill slot %d", slot))
	}
	return int64(f.StackslotsSize) + int64(slot)*int64(f.WordBytes)
}

// ClobberedByClass splits the clobbered callee-saves into integer-class and
// float-class groups. Vector-class callee-saves are not supported.
func (f *FrameLayout) ClobberedByClass() (ints, floats []Reg) {
	split := len(f.ClobberedCalleeSaves)
	for i, r := range f.ClobberedCalleeSaves {
		if r.Class() != ClassInt {
			split = i
			break
		}
	}
	ints, floats = f.ClobberedCalleeSaves[:split], f.ClobberedCalleeSaves[split:]
	for _, r := range floats {
		if r.Class() != ClassFloat {
			panic(fmt.Sprintf("abi: clobbered callee-saves not sorted by class: %v", f.ClobberedCalleeSaves))
		}
	}
	return ints, floats
}
