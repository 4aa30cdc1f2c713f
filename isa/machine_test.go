package isa

import (
	"errors"
	"testing"

	"github.com/chazu/windlass/abi"
)

func classifyArgs(t *testing.T, cc abi.CallConv, params []abi.Param, addRetAreaPtr bool) (uint32, int, []abi.ABIArg) {
	t.Helper()
	var backing []abi.ABIArg
	acc := abi.NewArgsAccumulator(&backing)
	space, retAreaIdx, err := Machine{}.ComputeArgLocs(cc, params, abi.ForArgs, addRetAreaPtr, acc)
	if err != nil {
		t.Fatalf("ComputeArgLocs: %v", err)
	}
	return space, retAreaIdx, acc.Args()
}

func TestArgLocsRegisterBanks(t *testing.T) {
	params := []abi.Param{
		{Type: abi.I64},
		{Type: abi.F64},
		{Type: abi.I32, Ext: abi.ExtZero},
		{Type: abi.V128},
		{Type: abi.F32},
	}
	space, retAreaIdx, args := classifyArgs(t, abi.ConvFast, params, false)
	if space != 0 {
		t.Errorf("stack space = %d, want 0", space)
	}
	if retAreaIdx != -1 {
		t.Errorf("retAreaIdx = %d, want -1", retAreaIdx)
	}

	// Each bank counts independently.
	want := []abi.Reg{X(0), F(0), X(1), V(0), F(1)}
	for i, r := range want {
		slot := args[i].Slots[0]
		if slot.Kind != abi.SlotReg || slot.Reg != r {
			t.Errorf("arg %d at %s, want %s", i, slot, r)
		}
	}
	if args[2].Slots[0].Ext != abi.ExtZero {
		t.Errorf("arg 2 ext = %v, want zero-extension", args[2].Slots[0].Ext)
	}
}

func TestArgLocsStackSpill(t *testing.T) {
	// 16 vector registers, then two spills: the i64 packs at 0, the v128
	// realigns to 16.
	params := make([]abi.Param, 0, 18)
	for i := 0; i < 16; i++ {
		params = append(params, abi.Param{Type: abi.V128})
	}
	params = append(params, abi.Param{Type: abi.I64}, abi.Param{Type: abi.V128})

	space, _, args := classifyArgs(t, abi.ConvFast, params, false)
	if space != 32 {
		t.Errorf("stack space = %d, want 32", space)
	}
	spill := args[16].Slots[0]
	if spill.Kind != abi.SlotStack || spill.Offset != 0 {
		t.Errorf("i64 spill at %s, want stack offset 0", spill)
	}
	vspill := args[17].Slots[0]
	if vspill.Kind != abi.SlotStack || vspill.Offset != 16 {
		t.Errorf("v128 spill at %s, want stack offset 16", vspill)
	}
}

func TestArgLocsRetAreaPointer(t *testing.T) {
	// All integer argument registers taken, so the synthetic pointer
	// spills too.
	params := make([]abi.Param, 16)
	for i := range params {
		params[i] = abi.Param{Type: abi.I64}
	}
	space, retAreaIdx, args := classifyArgs(t, abi.ConvFast, params, true)
	if retAreaIdx != 16 {
		t.Errorf("retAreaIdx = %d, want 16", retAreaIdx)
	}
	if len(args) != 17 {
		t.Fatalf("classified %d args, want 17", len(args))
	}
	ptr := args[16].Slots[0]
	if ptr.Kind != abi.SlotStack || ptr.Offset != 0 {
		t.Errorf("return-area pointer at %s, want stack offset 0", ptr)
	}
	if space != 16 {
		t.Errorf("stack space = %d, want 16", space)
	}
}

func TestStructArgByConvention(t *testing.T) {
	params := []abi.Param{{Type: abi.I64, Purpose: abi.PurposeStructArg, StructSize: 12}}

	_, _, args := classifyArgs(t, abi.ConvFast, params, false)
	if args[0].Kind != abi.ArgStruct {
		t.Fatalf("fast convention struct arg classified as %s", args[0])
	}
	if args[0].Offset != 0 || args[0].Size != 12 {
		t.Errorf("struct copy = %s, want offset 0 size 12", args[0])
	}

	_, _, args = classifyArgs(t, abi.ConvSystem, params, false)
	if args[0].Kind != abi.ArgImplicitPtr {
		t.Fatalf("system convention struct arg classified as %s", args[0])
	}
	if args[0].Pointer.Kind != abi.SlotReg || args[0].Pointer.Reg != X(0) {
		t.Errorf("implicit pointer at %s, want x0", args[0].Pointer)
	}
	// The temporary's buffer is still carved out of the argument area,
	// rounded up to whole words.
	if args[0].Offset != 0 {
		t.Errorf("temporary buffer at offset %d, want 0", args[0].Offset)
	}
}

func TestArgLocsAreaLimit(t *testing.T) {
	params := []abi.Param{{Type: abi.I64, Purpose: abi.PurposeStructArg, StructSize: 256 * 1024 * 1024}}
	var backing []abi.ABIArg
	_, _, err := Machine{}.ComputeArgLocs(abi.ConvFast, params, abi.ForArgs,
		false, abi.NewArgsAccumulator(&backing))
	var limit *abi.LimitError
	if !errors.As(err, &limit) {
		t.Fatalf("oversized struct returned %v, want a limit error", err)
	}
}

func TestFrameLayoutRejectsCallerSaved(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("caller-saved register in the clobber list did not panic")
		}
	}()
	Machine{}.ComputeFrameLayout(abi.ConvFast, []abi.Reg{X(0)}, false, 0, 0, 0, 0, 0)
}

func TestFrameLayoutRejectsShrunkTailArea(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("tail area smaller than incoming did not panic")
		}
	}()
	Machine{}.ComputeFrameLayout(abi.ConvTail, nil, false, 32, 16, 0, 0, 0)
}

func TestGenMemcpyNarrowsTail(t *testing.T) {
	var vregs abi.VRegCounter
	insts := Machine{}.GenMemcpy(abi.ConvFast, X(1), X(2), 15, func(ty abi.Type) abi.Reg {
		return vregs.Alloc(ty)
	})

	// 8 + 4 + 2 + 1 bytes, each a load/store pair.
	type step struct {
		ty  abi.Type
		off int32
	}
	want := []step{{abi.I64, 0}, {abi.I32, 8}, {abi.I16, 12}, {abi.I8, 14}}
	if len(insts) != 2*len(want) {
		t.Fatalf("memcpy emitted %d insts, want %d", len(insts), 2*len(want))
	}
	for i, w := range want {
		load := insts[2*i].(LoadBaseOffset)
		store := insts[2*i+1].(StoreBaseOffset)
		if load.Type != w.ty || load.Offset != w.off || load.Base != X(2) {
			t.Errorf("step %d load = %+v, want %s at %d from x2", i, load, w.ty, w.off)
		}
		if store.Type != w.ty || store.Offset != w.off || store.Base != X(1) {
			t.Errorf("step %d store = %+v, want %s at %d into x1", i, store, w.ty, w.off)
		}
		if load.Into != store.From {
			t.Errorf("step %d copies through different registers: %s vs %s", i, load.Into, store.From)
		}
	}
}

func TestCallClobberSet(t *testing.T) {
	set := Machine{}.CallClobbers(abi.ConvFast)

	for _, r := range []abi.Reg{X(0), X(15), F(0), F(15), V(0), V(16)} {
		if !set.Contains(r) {
			t.Errorf("%s missing from the clobber set", r)
		}
	}
	for _, r := range []abi.Reg{X(16), X(27), F(16), F(31), X(31)} {
		if set.Contains(r) {
			t.Errorf("callee-saved %s in the clobber set", r)
		}
	}
}
