package abi_test

import (
	"testing"

	"github.com/chazu/windlass/abi"
	"github.com/chazu/windlass/isa"
)

func newCallee(t *testing.T, cat *abi.SignatureCatalog, sig *abi.Signature, cfg abi.CalleeConfig[isa.Inst]) *abi.Callee[isa.Inst] {
	t.Helper()
	mustIntern(t, cat, sig)
	c, err := abi.NewCallee[isa.Inst](isa.Machine{}, abi.Settings{}, cat, sig, cfg)
	if err != nil {
		t.Fatalf("NewCallee: %v", err)
	}
	return c
}

func TestCalleeRequiresInternedSignature(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	defer func() {
		if recover() == nil {
			t.Fatal("NewCallee with an uninterned signature did not panic")
		}
	}()
	abi.NewCallee[isa.Inst](isa.Machine{}, abi.Settings{}, cat,
		&abi.Signature{Params: i64Params(1)}, abi.CalleeConfig[isa.Inst]{})
}

func TestStackSlotLayout(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	c := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{
		StackSlots: []abi.StackSlotSpec{
			{Size: 4},                 // word-aligned at 0
			{Size: 16, AlignShift: 4}, // 16-aligned at 16
			{Size: 8},                 // at 32
		},
	})

	if got := c.StackslotsSize(); got != 40 {
		t.Fatalf("StackslotsSize = %d, want 40", got)
	}

	var vregs abi.VRegCounter
	into := vregs.Alloc(abi.I64)
	addr := c.SizedStackslotAddr(1, 4, into).(isa.StackAddr)
	want := abi.SlotAddr(20)
	if addr.Mem != want {
		t.Errorf("SizedStackslotAddr(1, 4) = %s, want %s", addr.Mem, want)
	}
}

func TestFrameLayout(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	c := newCallee(t, cat, &abi.Signature{Params: i64Params(2)}, abi.CalleeConfig[isa.Inst]{
		StackSlots: []abi.StackSlotSpec{{Size: 24}},
	})
	c.AccumulateOutgoingArgsSize(16)
	c.AccumulateOutgoingArgsSize(8) // high-water, not additive

	// Deliberately unsorted; the layout must sort by class then number.
	clobbered := []abi.Reg{isa.F(16), isa.X(17), isa.X(16)}
	c.ComputeFrameLayout(cat, 2, clobbered)

	frame := c.FrameLayout()
	if frame.SetupAreaSize != 16 {
		t.Errorf("SetupAreaSize = %d, want 16", frame.SetupAreaSize)
	}
	// Three saves of 8 bytes, kept 16-aligned.
	if frame.ClobberSize != 32 {
		t.Errorf("ClobberSize = %d, want 32", frame.ClobberSize)
	}
	// 24 bytes of slots plus 2 word spill slots, 16-aligned.
	if frame.FixedFrameStorageSize != 48 {
		t.Errorf("FixedFrameStorageSize = %d, want 48", frame.FixedFrameStorageSize)
	}
	if frame.OutgoingArgsSize != 16 {
		t.Errorf("OutgoingArgsSize = %d, want 16", frame.OutgoingArgsSize)
	}
	if got := frame.ActiveSize(); got != 96 {
		t.Errorf("ActiveSize = %d, want 96", got)
	}

	wantOrder := []abi.Reg{isa.X(16), isa.X(17), isa.F(16)}
	for i, want := range wantOrder {
		if frame.ClobberedCalleeSaves[i] != want {
			t.Fatalf("clobber %d = %s, want %s", i, frame.ClobberedCalleeSaves[i], want)
		}
	}

	// Spill slots sit above the sized stack slots.
	if got := c.SpillslotOffset(0); got != 24 {
		t.Errorf("SpillslotOffset(0) = %d, want 24", got)
	}
	if got := c.SpillslotOffset(1); got != 32 {
		t.Errorf("SpillslotOffset(1) = %d, want 32", got)
	}
}

func TestFrameLayoutComputedOnce(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	c := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("FrameLayout before ComputeFrameLayout did not panic")
			}
		}()
		c.FrameLayout()
	}()

	c.ComputeFrameLayout(cat, 0, nil)

	defer func() {
		if recover() == nil {
			t.Error("second ComputeFrameLayout did not panic")
		}
	}()
	c.ComputeFrameLayout(cat, 0, nil)
}

func TestArgIntakeAndTakeArgs(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	sig := &abi.Signature{Params: i64Params(17)} // arg 16 spills to the stack
	c := newCallee(t, cat, sig, abi.CalleeConfig[isa.Inst]{})

	var vregs abi.VRegCounter
	v0 := vregs.Alloc(abi.I64)
	v1 := vregs.Alloc(abi.I64)
	v16 := vregs.Alloc(abi.I64)

	if insts := c.CopyArgToRegs(cat, 0, []abi.Reg{v0}, &vregs); len(insts) != 0 {
		t.Fatalf("register arg intake emitted %d insts, want 0", len(insts))
	}
	if insts := c.CopyArgToRegs(cat, 1, []abi.Reg{v1}, &vregs); len(insts) != 0 {
		t.Fatalf("register arg intake emitted %d insts, want 0", len(insts))
	}

	insts := c.CopyArgToRegs(cat, 16, []abi.Reg{v16}, &vregs)
	if len(insts) != 1 {
		t.Fatalf("stack arg intake emitted %d insts, want 1", len(insts))
	}
	load := insts[0].(isa.LoadStack)
	if load.Mem.Kind != abi.AModeIncomingArg || load.Mem.Offset != 0 {
		t.Errorf("stack arg loaded from %s, want incoming offset 0", load.Mem)
	}

	argsInst, ok := c.TakeArgs()
	if !ok {
		t.Fatal("TakeArgs found no register arguments")
	}
	edge := argsInst.(isa.ArgsEdge)
	if len(edge.Pairs) != 2 {
		t.Fatalf("args edge has %d pairs, want 2", len(edge.Pairs))
	}
	if edge.Pairs[0] != (abi.ArgPair{VReg: v0, PReg: isa.X(0)}) {
		t.Errorf("pair 0 = %+v", edge.Pairs[0])
	}
	if edge.Pairs[1] != (abi.ArgPair{VReg: v1, PReg: isa.X(1)}) {
		t.Errorf("pair 1 = %+v", edge.Pairs[1])
	}

	if _, ok := c.TakeArgs(); ok {
		t.Error("second TakeArgs flushed again")
	}
}

func TestRetvalPlacement(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	sig := &abi.Signature{Rets: i64Params(17)} // ret 16 goes through memory
	c := newCallee(t, cat, sig, abi.CalleeConfig[isa.Inst]{})

	var vregs abi.VRegCounter
	c.InitRetvalArea(cat, &vregs)
	if _, ok := c.RetAreaPtr(); !ok {
		t.Fatal("InitRetvalArea did not allocate a return-area pointer")
	}

	from := vregs.Alloc(abi.I64)
	pairs, insts := c.CopyRegsToRetval(cat, 0, []abi.Reg{from}, &vregs)
	if len(insts) != 0 || len(pairs) != 1 {
		t.Fatalf("register ret: %d insts, %d pairs; want 0, 1", len(insts), len(pairs))
	}
	if pairs[0].PReg != isa.X(0) {
		t.Errorf("ret 0 constrained to %s, want x0", pairs[0].PReg)
	}

	pairs, insts = c.CopyRegsToRetval(cat, 16, []abi.Reg{from}, &vregs)
	if len(pairs) != 0 || len(insts) != 1 {
		t.Fatalf("stack ret: %d insts, %d pairs; want 1, 0", len(insts), len(pairs))
	}
	store := insts[0].(isa.StoreBaseOffset)
	if store.Offset != 0 {
		t.Errorf("stack ret stored at offset %d, want 0", store.Offset)
	}
}

func TestStackRetWithoutRetAreaPanics(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	sig := &abi.Signature{Rets: i64Params(17)}
	c := newCallee(t, cat, sig, abi.CalleeConfig[isa.Inst]{})

	var vregs abi.VRegCounter
	from := vregs.Alloc(abi.I64)
	defer func() {
		if recover() == nil {
			t.Fatal("stack return without InitRetvalArea did not panic")
		}
	}()
	c.CopyRegsToRetval(cat, 16, []abi.Reg{from}, &vregs)
}

func TestPrologueAndEpilogue(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	c := newCallee(t, cat, &abi.Signature{Params: i64Params(1)}, abi.CalleeConfig[isa.Inst]{
		StackSlots: []abi.StackSlotSpec{{Size: 8}},
	})
	c.AccumulateOutgoingArgsSize(16)
	c.ComputeFrameLayout(cat, 0, []abi.Reg{isa.X(16)})

	prologue := c.GenPrologue()
	want := []isa.Inst{
		isa.PushFrame{},
		isa.AdjustSP{Amount: -48}, // 16 clobber + 16 fixed + 16 outgoing
		isa.StoreStack{Mem: abi.SlotAddr(16), From: isa.X(16), Type: abi.I64},
	}
	if len(prologue) != len(want) {
		t.Fatalf("prologue has %d insts, want %d: %#v", len(prologue), len(want), prologue)
	}
	for i := range want {
		if prologue[i] != want[i] {
			t.Errorf("prologue[%d] = %#v, want %#v", i, prologue[i], want[i])
		}
	}

	epilogue := c.GenEpilogue()
	wantEpi := []isa.Inst{
		isa.LoadStack{Mem: abi.SlotAddr(16), Into: isa.X(16), Type: abi.I64},
		isa.AdjustSP{Amount: 48},
		isa.PopFrame{},
		isa.Ret{},
	}
	if len(epilogue) != len(wantEpi) {
		t.Fatalf("epilogue has %d insts, want %d: %#v", len(epilogue), len(wantEpi), epilogue)
	}
	for i := range wantEpi {
		if epilogue[i] != wantEpi[i] {
			t.Errorf("epilogue[%d] = %#v, want %#v", i, epilogue[i], wantEpi[i])
		}
	}
}

func TestFramelessLeaf(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	c := newCallee(t, cat, &abi.Signature{Params: i64Params(1), Rets: i64Params(1)},
		abi.CalleeConfig[isa.Inst]{IsLeaf: true})
	c.ComputeFrameLayout(cat, 0, nil)

	if got := c.GenPrologue(); len(got) != 0 {
		t.Errorf("frameless leaf prologue has %d insts, want 0: %#v", len(got), got)
	}
	epilogue := c.GenEpilogue()
	if len(epilogue) != 1 {
		t.Fatalf("frameless leaf epilogue has %d insts, want 1: %#v", len(epilogue), epilogue)
	}
	if epilogue[0] != (isa.Ret{}) {
		t.Errorf("epilogue = %#v, want bare return", epilogue[0])
	}
}

func TestPrologueStackCheck(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	limit := isa.X(20)
	loadLimit := isa.LoadBaseOffset{Into: limit, Base: isa.X(0), Offset: 0, Type: abi.I64}
	c := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{
		StackSlots: []abi.StackSlotSpec{{Size: 32}},
		StackLimit: &abi.StackLimit[isa.Inst]{Reg: limit, Load: []isa.Inst{loadLimit}},
	})
	c.ComputeFrameLayout(cat, 0, nil)

	prologue := c.GenPrologue()
	// push_frame, the limit load, add-imm into the scratch register, the
	// trap, then the frame allocation.
	want := []isa.Inst{
		isa.PushFrame{},
		loadLimit,
		// 32 fixed + 16 setup for our callees' pushes.
		isa.AddImm{Into: isa.X(28), From: limit, Imm: 48},
		isa.TrapIfStackBelow{Limit: isa.X(28)},
		isa.AdjustSP{Amount: -32},
	}
	if len(prologue) != len(want) {
		t.Fatalf("prologue has %d insts, want %d: %#v", len(prologue), len(want), prologue)
	}
	for i := range want {
		if prologue[i] != want[i] {
			t.Errorf("prologue[%d] = %#v, want %#v", i, prologue[i], want[i])
		}
	}
}
