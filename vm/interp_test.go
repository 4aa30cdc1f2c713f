package vm

import (
	"math"
	"testing"
)

// runProgram assembles a program, runs it on a fresh state, and hands back
// both. The arena is 256 bytes of memory plus 256 bytes of stack.
func runProgram(t *testing.T, build func(a *Assembler)) (*MachineState, DoneReason) {
	t.Helper()
	a := NewAssembler()
	build(a)
	m := NewMachineState(256, 256)
	return m, NewInterpreter(m, a.Finish()).Run()
}

func wantHostReturn(t *testing.T, done DoneReason) {
	t.Helper()
	if _, ok := done.(DoneReturnToHost); !ok {
		t.Fatalf("Run = %v, want a return to the host", done)
	}
}

func wantTrap(t *testing.T, done DoneReason, kind TrapKind) DoneTrap {
	t.Helper()
	trap, ok := done.(DoneTrap)
	if !ok {
		t.Fatalf("Run = %v, want a %s trap", done, kind)
	}
	if trap.Kind != kind {
		t.Fatalf("trap kind = %s, want %s", trap.Kind, kind)
	}
	return trap
}

func TestArith32LeavesUpperBytes(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst64(1, -1)
		a.Xconst64(2, 0x1_0000_0005) // low half 5
		a.XAdd32(1, 1, 2)
		a.Ret()
	})
	wantHostReturn(t, done)
	// 32-bit results define only the low half; the stale upper bytes of
	// the destination cell survive.
	if got := m.X(1).U64(); got != 0xffffffff_00000004 {
		t.Errorf("x1 = %#x, want %#x", got, uint64(0xffffffff_00000004))
	}
}

func TestDivisionTraps(t *testing.T) {
	t.Run("signed divide by zero", func(t *testing.T) {
		_, done := runProgram(t, func(a *Assembler) {
			a.Xconst8(1, 7)
			a.XDiv32S(2, 1, 0)
			a.Ret()
		})
		trap := wantTrap(t, done, TrapDivideByZero)
		if trap.PC != 3 {
			t.Errorf("trap pc = %d, want the div at 3", trap.PC)
		}
	})

	t.Run("signed overflow", func(t *testing.T) {
		_, done := runProgram(t, func(a *Assembler) {
			a.Xconst32(1, math.MinInt32)
			a.Xconst8(2, -1)
			a.XDiv32S(3, 1, 2)
			a.Ret()
		})
		wantTrap(t, done, TrapIntegerOverflow)
	})

	t.Run("unsigned divide by zero", func(t *testing.T) {
		_, done := runProgram(t, func(a *Assembler) {
			a.Xconst8(1, 7)
			a.XDiv64U(2, 1, 0)
			a.Ret()
		})
		wantTrap(t, done, TrapDivideByZero)
	})

	t.Run("remainder by minus one is zero", func(t *testing.T) {
		m, done := runProgram(t, func(a *Assembler) {
			a.Xconst64(1, math.MinInt64)
			a.Xconst8(2, -1)
			a.XRem64S(3, 1, 2)
			a.Ret()
		})
		wantHostReturn(t, done)
		if got := m.X(3).I64(); got != 0 {
			t.Errorf("min %% -1 = %d, want 0", got)
		}
	})
}

func TestShiftsMaskTheAmount(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, 1)
		a.Xconst8(2, 33) // masked to 1 for 32-bit shifts
		a.XShl32(3, 1, 2)
		a.Xconst8(4, -8)
		a.Xconst8(5, 65) // masked to 1 for 64-bit shifts
		a.XShrS64(6, 4, 5)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(3).U32(); got != 2 {
		t.Errorf("1 << 33 = %d, want 2", got)
	}
	if got := m.X(6).I64(); got != -4 {
		t.Errorf("-8 >> 65 = %d, want -4", got)
	}
}

func TestMulHi(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, -1)
		a.Xconst8(2, 2)
		a.XMulHi64S(3, 1, 2)
		a.XMulHi64U(4, 1, 2)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(3).I64(); got != -1 {
		t.Errorf("signed mulhi(-1, 2) = %d, want -1", got)
	}
	if got := m.X(4).U64(); got != 1 {
		t.Errorf("unsigned mulhi(~0, 2) = %d, want 1", got)
	}
}

func TestAddWithOverflowTrap(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, 40)
		a.Xconst8(2, 2)
		a.XAddUoverflowTrap64(3, 1, 2)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(3).U64(); got != 42 {
		t.Errorf("checked add = %d, want 42", got)
	}

	_, done = runProgram(t, func(a *Assembler) {
		a.Xconst8(1, -1) // all ones
		a.Xconst8(2, 1)
		a.XAddUoverflowTrap64(3, 1, 2)
		a.Ret()
	})
	wantTrap(t, done, TrapIntegerOverflow)
}

func TestBswapAndExtends(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst64(1, 0x1122334455667788)
		a.XBswap64(2, 1)
		a.Xconst16(3, 0x80)
		a.XSext8(4, 3)
		a.Xconst64(5, -1)
		a.XZext32(6, 5)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(2).U64(); got != 0x8877665544332211 {
		t.Errorf("bswap64 = %#x", got)
	}
	if got := m.X(4).I64(); got != -128 {
		t.Errorf("sext8(0x80) = %d, want -128", got)
	}
	if got := m.X(6).U64(); got != 0xffffffff {
		t.Errorf("zext32(-1) = %#x, want 0xffffffff", got)
	}
}

func TestComparesWriteBool32(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst64(3, -1) // preload the destination with all ones
		a.Xconst8(1, -5)
		a.Xconst8(2, 5)
		a.XSlt32(3, 1, 2)
		a.XUlt32(4, 1, 2) // unsigned: 0xfffffffb < 5 is false
		a.Ret()
	})
	wantHostReturn(t, done)
	// The boolean is a 32-bit result, so the upper bytes stay put.
	if got := m.X(3).U64(); got != 0xffffffff_00000001 {
		t.Errorf("x3 = %#x, want upper bytes intact with low 1", got)
	}
	if got := m.X(4).U32(); got != 0 {
		t.Errorf("unsigned -5 < 5 = %d, want 0", got)
	}
}

func TestBranchLoop(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		loop := a.NewLabel()
		a.Xconst8(1, 3) // counter
		a.Xconst8(2, 0) // accumulator
		a.Xconst8(3, 1)
		a.Bind(loop)
		a.XAdd32(2, 2, 1)
		a.XSub32(1, 1, 3)
		a.BrIf32(1, loop)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(2).U32(); got != 6 {
		t.Errorf("loop accumulated %d, want 6", got)
	}
}

func TestBrTableClamps(t *testing.T) {
	run := func(idx int8) uint32 {
		m, done := runProgram(t, func(a *Assembler) {
			t0, t1, t2 := a.NewLabel(), a.NewLabel(), a.NewLabel()
			a.Xconst8(1, idx)
			a.BrTable32(1, t0, t1, t2)
			a.Bind(t0)
			a.Xconst8(2, 10)
			a.Ret()
			a.Bind(t1)
			a.Xconst8(2, 20)
			a.Ret()
			a.Bind(t2)
			a.Xconst8(2, 30)
			a.Ret()
		})
		wantHostReturn(t, done)
		return m.X(2).U32()
	}

	if got := run(1); got != 20 {
		t.Errorf("table[1] reached %d, want 20", got)
	}
	// An index past the end lands on the last target.
	if got := run(7); got != 30 {
		t.Errorf("table[7] reached %d, want the last target (30)", got)
	}
}

func TestCallAndReturn(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		fn := a.NewLabel()
		a.PushFrame()
		a.Xconst8(5, 21)
		a.Call1(5, fn)
		a.PopFrame()
		a.Ret()
		a.Bind(fn)
		a.XAdd64(0, 0, 0)
		a.Ret()
	})
	wantHostReturn(t, done)
	// call1 moves its operand into x0 before jumping.
	if got := m.X(0).U64(); got != 42 {
		t.Errorf("x0 = %d, want 42", got)
	}
	if m.LR() != HostReturnAddr {
		t.Error("pop_frame did not restore the host-return sentinel")
	}
	if m.SP() != uint64(len(m.Mem())) {
		t.Errorf("sp = %d after balanced frames, want %d", m.SP(), len(m.Mem()))
	}
}

func TestPushFrameSaveRestore(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(16, 1)
		a.Xconst8(17, 2)
		a.Xconst8(18, 3)
		a.PushFrameSave(16, 3)
		a.Xconst8(16, 9)
		a.Xconst8(17, 9)
		a.Xconst8(18, 9)
		a.PopFrameRestore(16, 3)
		a.Ret()
	})
	wantHostReturn(t, done)
	for r, want := range map[XReg]uint64{16: 1, 17: 2, 18: 3} {
		if got := m.X(r).U64(); got != want {
			t.Errorf("%s = %d, want %d", r, got, want)
		}
	}
	if m.SP() != uint64(len(m.Mem())) {
		t.Errorf("sp = %d after balanced save/restore, want %d", m.SP(), len(m.Mem()))
	}
	if m.FP() != HostReturnAddr || m.LR() != HostReturnAddr {
		t.Error("fp or lr not restored to the host-return sentinel")
	}
}

func TestStackAllocTrap(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.StackAlloc32(1 << 16) // far past the 256-byte stack
		a.Ret()
	})
	trap := wantTrap(t, done, TrapStackOverflow)
	if trap.PC != 0 {
		t.Errorf("trap pc = %d, want 0", trap.PC)
	}
	if m.SP() != uint64(len(m.Mem())) {
		t.Error("failed stack_alloc moved sp")
	}
}

func TestPushFrameOverflow(t *testing.T) {
	_, done := runProgram(t, func(a *Assembler) {
		a.StackAlloc32(248) // leave one word of stack
		a.PushFrame()       // needs two
		a.Ret()
	})
	wantTrap(t, done, TrapStackOverflow)
}

func TestO32RoundTrip(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, 8) // base address, clear of reserved null
		a.Xconst64(2, 0x1122334455667788)
		a.XStore64O32(2, 1, 16)
		a.XLoad64O32(3, 1, 16)
		a.XLoad32UO32(4, 1, 16)
		a.XLoad32SO32(5, 1, 20) // high word 0x11223344
		a.XLoad8SO32(6, 1, 23)  // 0x11
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(3).U64(); got != 0x1122334455667788 {
		t.Errorf("load64 = %#x", got)
	}
	// Unsigned narrow loads zero-extend across the whole cell.
	if got := m.X(4).U64(); got != 0x55667788 {
		t.Errorf("load32u = %#x, want 0x55667788", got)
	}
	if got := m.X(5).I64(); got != 0x11223344 {
		t.Errorf("load32s = %#x", got)
	}
	if got := m.X(6).I64(); got != 0x11 {
		t.Errorf("load8s = %#x", got)
	}
}

func TestZNullCheck(t *testing.T) {
	_, done := runProgram(t, func(a *Assembler) {
		a.XLoad64Z(2, 1, 16) // x1 is still zero
		a.Ret()
	})
	wantTrap(t, done, TrapMemoryOutOfBounds)

	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, 8)
		a.Xconst8(2, 42)
		a.XStore64Z(2, 1, 16)
		a.XLoad64Z(3, 1, 16)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(3).U64(); got != 42 {
		t.Errorf("z round trip = %d, want 42", got)
	}
}

func TestG32Bounds(t *testing.T) {
	// bound covers [0, 16); an 8-byte access at address 8 is the last one
	// that fits.
	build := func(addr int8) func(a *Assembler) {
		return func(a *Assembler) {
			a.Xconst8(1, 32) // host base
			a.Xconst8(2, 16) // bound
			a.Xconst8(3, addr)
			a.Xconst8(4, 7)
			a.XStore64G32(4, 1, 2, 3, 0)
			a.XLoad64G32(5, 1, 2, 3, 0)
			a.Ret()
		}
	}

	m, done := runProgram(t, build(8))
	wantHostReturn(t, done)
	if got := m.X(5).U64(); got != 7 {
		t.Errorf("g32 round trip = %d, want 7", got)
	}

	_, done = runProgram(t, build(9))
	wantTrap(t, done, TrapMemoryOutOfBounds)
}

func TestG32OffsetCountsAgainstBound(t *testing.T) {
	_, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, 32)
		a.Xconst8(2, 16)
		a.Xconst8(3, 8)
		a.XLoad64G32(5, 1, 2, 3, 1) // 8+1+8 > 16
		a.Ret()
	})
	wantTrap(t, done, TrapMemoryOutOfBounds)
}

func TestG32BneLoadsBoundFromMemory(t *testing.T) {
	build := func(addr int8) func(a *Assembler) {
		return func(a *Assembler) {
			a.Xconst8(1, 64) // bound lives at address 64+8
			a.Xconst8(2, 16)
			a.XStore64O32(2, 1, 8)
			a.Xconst8(3, 32) // host base
			a.Xconst8(4, addr)
			a.Xconst8(5, 7)
			a.XStore64G32Bne(5, 3, 1, 8, 4, 0)
			a.XLoad64G32Bne(6, 3, 1, 8, 4, 0)
			a.Ret()
		}
	}

	m, done := runProgram(t, build(8))
	wantHostReturn(t, done)
	if got := m.X(6).U64(); got != 7 {
		t.Errorf("g32bne round trip = %d, want 7", got)
	}

	_, done = runProgram(t, build(9))
	wantTrap(t, done, TrapMemoryOutOfBounds)
}

func TestCheckedFloatToInt(t *testing.T) {
	t.Run("f32 at the 32-bit boundary", func(t *testing.T) {
		// 2^31 is representable in f32 and just out of range.
		_, done := runProgram(t, func(a *Assembler) {
			a.Fconst32(1, 2147483648.0)
			a.X32FromF32S(2, 1)
			a.Ret()
		})
		wantTrap(t, done, TrapIntegerOverflow)

		// The largest f32 below 2^31 converts.
		m, done := runProgram(t, func(a *Assembler) {
			a.Fconst32(1, 2147483520.0)
			a.X32FromF32S(2, 1)
			a.Ret()
		})
		wantHostReturn(t, done)
		if got := m.X(2).I32(); got != 2147483520 {
			t.Errorf("converted %d, want 2147483520", got)
		}
	})

	t.Run("f64 reaches max int32", func(t *testing.T) {
		m, done := runProgram(t, func(a *Assembler) {
			a.Fconst64(1, 2147483647.0)
			a.X32FromF64S(2, 1)
			a.Ret()
		})
		wantHostReturn(t, done)
		if got := m.X(2).I32(); got != math.MaxInt32 {
			t.Errorf("converted %d, want %d", got, math.MaxInt32)
		}
	})

	t.Run("nan", func(t *testing.T) {
		_, done := runProgram(t, func(a *Assembler) {
			a.Fconst64(1, math.NaN())
			a.X64FromF64S(2, 1)
			a.Ret()
		})
		wantTrap(t, done, TrapBadConversionToInteger)
	})

	t.Run("unsigned admits fractions above minus one", func(t *testing.T) {
		m, done := runProgram(t, func(a *Assembler) {
			a.Fconst64(1, -0.5)
			a.X64FromF64U(2, 1)
			a.Ret()
		})
		wantHostReturn(t, done)
		if got := m.X(2).U64(); got != 0 {
			t.Errorf("converted %d, want 0", got)
		}
	})
}

func TestSaturatingFloatToInt(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Fconst64(1, math.NaN())
		a.X32FromF64SSat(2, 1)
		a.Fconst64(3, 1e300)
		a.X32FromF64SSat(4, 3)
		a.Fconst64(5, math.Inf(-1))
		a.X64FromF64SSat(6, 5)
		a.X64FromF64USat(7, 5)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.X(2).I32(); got != 0 {
		t.Errorf("sat(nan) = %d, want 0", got)
	}
	if got := m.X(4).I32(); got != math.MaxInt32 {
		t.Errorf("sat(1e300) = %d, want max int32", got)
	}
	if got := m.X(6).I64(); got != math.MinInt64 {
		t.Errorf("signed sat(-inf) = %d, want min int64", got)
	}
	if got := m.X(7).U64(); got != 0 {
		t.Errorf("unsigned sat(-inf) = %d, want 0", got)
	}
}

func TestFloatBitOps(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Fconst64(1, 1.5)
		a.Fconst64(2, math.Copysign(0, -1))
		a.FCopySign64(3, 1, 2)
		a.Fconst64(4, -2.0)
		a.FAbs64(5, 4)
		a.FNeg64(6, 4)
		a.Fconst64(7, 9.0)
		a.FSqrt64(8, 7)
		a.Fconst64(9, -1.7)
		a.FTrunc64(10, 9)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.F(3).F64(); got != -1.5 {
		t.Errorf("copysign(1.5, -0) = %v, want -1.5", got)
	}
	if got := m.F(5).F64(); got != 2.0 {
		t.Errorf("abs(-2) = %v", got)
	}
	if got := m.F(6).F64(); got != 2.0 {
		t.Errorf("neg(-2) = %v", got)
	}
	if got := m.F(8).F64(); got != 3.0 {
		t.Errorf("sqrt(9) = %v", got)
	}
	if got := m.F(10).F64(); got != -1.0 {
		t.Errorf("trunc(-1.7) = %v, want -1", got)
	}
}

func TestVectorOps(t *testing.T) {
	m, done := runProgram(t, func(a *Assembler) {
		a.Xconst8(1, 3)
		a.VSplatX32(1, 1)
		a.Vconst128(2, [16]byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0})
		a.VAddI32x4(3, 1, 2)
		a.VExtractX32(2, 3, 5) // lane index masks to 1
		a.Xconst8(4, 9)
		a.VInsertX64(2, 4, 1)
		a.Ret()
	})
	wantHostReturn(t, done)
	if got := m.V(3).U32x4(); got[0] != 4 || got[3] != 7 {
		t.Errorf("splat(3) + [1 2 3 4] = %v", got)
	}
	if got := m.X(2).U32(); got != 5 {
		t.Errorf("extracted lane = %d, want 5", got)
	}
	if got := m.V(2).U64x2(); got[1] != 9 {
		t.Errorf("inserted lane = %d, want 9", got[1])
	}
}

func TestHostCallSuspendResume(t *testing.T) {
	a := NewAssembler()
	a.CallIndirectHost(3)
	a.Xconst8(1, 5)
	a.Ret()

	m := NewMachineState(64, 64)
	interp := NewInterpreter(m, a.Finish())

	done := interp.Run()
	host, ok := done.(DoneCallIndirectHost)
	if !ok {
		t.Fatalf("Run = %v, want a host-call suspension", done)
	}
	if host.ID != 3 || host.Resume != 2 {
		t.Fatalf("suspension = %+v, want id 3 resume 2", host)
	}

	interp.SetPC(host.Resume)
	wantHostReturn(t, interp.Run())
	if got := m.X(1).U32(); got != 5 {
		t.Errorf("x1 = %d after resume, want 5", got)
	}
}

func TestBadOpcodes(t *testing.T) {
	m := NewMachineState(64, 64)
	done := NewInterpreter(m, []byte{0x1a}).Run()
	wantTrap(t, done, TrapDisabledOpcode)

	_, done = runProgram(t, func(a *Assembler) {
		a.Nop()
		a.Trap()
	})
	trap := wantTrap(t, done, TrapUnreachable)
	if trap.PC != 1 {
		t.Errorf("trap pc = %d, want 1", trap.PC)
	}
}
