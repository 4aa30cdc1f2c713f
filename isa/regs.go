// Package isa implements the windlass virtual machine as a backend for the
// abi engine: its register conventions, argument classification, frame
// layout, and the pseudo-instructions ABI lowering emits.
package isa

import "github.com/chazu/windlass/abi"

// ---------------------------------------------------------------------------
// Register conventions
// ---------------------------------------------------------------------------

// The machine has 32 registers per bank. x0..x15, f0..f15, and v0..v15 carry
// arguments and return values. x16..x27 and f16..f31 are callee-saved; all
// vector registers are caller-saved. x28 is the prologue scratch register,
// x29 and x30 are temporaries, and x31 is the stack pointer (never
// allocatable).
const (
	NumRegsPerBank = 32
	NumArgRegs     = 16

	ScratchReg uint = 28
	SPReg      uint = 31
)

// X returns integer register n.
func X(n uint) abi.Reg { return abi.RealReg(abi.ClassInt, n) }

// F returns float register n.
func F(n uint) abi.Reg { return abi.RealReg(abi.ClassFloat, n) }

// V returns vector register n.
func V(n uint) abi.Reg { return abi.RealReg(abi.ClassVector, n) }

// calleeSaved reports whether a physical register survives calls.
func calleeSaved(r abi.Reg) bool {
	switch r.Class() {
	case abi.ClassInt:
		return r.Num() >= 16 && r.Num() <= 27
	case abi.ClassFloat:
		return r.Num() >= 16
	default:
		return false
	}
}

// callClobbers is the caller-saved set: everything a call may overwrite.
func callClobbers() abi.RegSet {
	var set abi.RegSet
	for n := uint(0); n < NumRegsPerBank; n++ {
		if n == SPReg {
			continue
		}
		if r := X(n); !calleeSaved(r) {
			set.Add(r)
		}
		if r := F(n); !calleeSaved(r) {
			set.Add(r)
		}
		set.Add(V(n))
	}
	return set
}
