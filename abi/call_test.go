package abi_test

import (
	"testing"

	"github.com/chazu/windlass/abi"
	"github.com/chazu/windlass/isa"
)

func allocN(vregs *abi.VRegCounter, n int) [][]abi.Reg {
	args := make([][]abi.Reg, n)
	for i := range args {
		args[i] = []abi.Reg{vregs.Alloc(abi.I64)}
	}
	return args
}

func TestCallArgsRegistersAndStack(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{Params: i64Params(17)})

	var vregs abi.VRegCounter
	args := allocN(&vregs, 17)
	uses, insts := caller.GenCallArgs(cat, calleeID, args, false, &vregs)

	if len(uses) != 16 {
		t.Fatalf("call uses %d register constraints, want 16", len(uses))
	}
	for i, use := range uses {
		if use.PReg != isa.X(uint(i)) || use.VReg != args[i][0] {
			t.Errorf("use %d = %+v, want %s <- %s", i, use, isa.X(uint(i)), args[i][0])
		}
	}
	if len(insts) != 1 {
		t.Fatalf("call emitted %d insts, want one stack store", len(insts))
	}
	store := insts[0].(isa.StoreStack)
	if store.Mem != abi.OutgoingArg(0) || store.From != args[16][0] {
		t.Errorf("stack arg store = %+v, want %s at outgoing 0", store, args[16][0])
	}
}

func TestCallArgsExtension(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{
		Params: []abi.Param{{Type: abi.I32, Ext: abi.ExtSign}},
	})

	var vregs abi.VRegCounter
	val := vregs.Alloc(abi.I32)
	uses, insts := caller.GenCallArgs(cat, calleeID, [][]abi.Reg{{val}}, false, &vregs)

	if len(insts) != 1 {
		t.Fatalf("narrow arg emitted %d insts, want one extension", len(insts))
	}
	ext := insts[0].(isa.Extend)
	if !ext.Signed || ext.FromBits != 32 || ext.ToBits != 64 || ext.From != val {
		t.Errorf("extension = %+v, want sext32->64 of %s", ext, val)
	}
	if len(uses) != 1 || uses[0].PReg != isa.X(0) || uses[0].VReg != ext.Into {
		t.Errorf("use = %+v, want the extended value in x0", uses)
	}
}

func TestCallArgsStructCopyFirst(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{
		Params: []abi.Param{
			{Type: abi.I64},
			{Type: abi.I64, Purpose: abi.PurposeStructArg, StructSize: 12},
		},
	})

	var vregs abi.VRegCounter
	val := vregs.Alloc(abi.I64)
	ptr := vregs.Alloc(abi.I64)
	uses, insts := caller.GenCallArgs(cat, calleeID, [][]abi.Reg{{val}, {ptr}}, false, &vregs)

	// The struct copy runs before anything else even though the struct is
	// the second argument.
	addr := insts[0].(isa.StackAddr)
	if addr.Mem != abi.OutgoingArg(0) {
		t.Errorf("struct buffer address = %+v, want outgoing 0", addr)
	}
	// 12 bytes copy as a word plus a half-word, each a load/store pair.
	if len(insts) != 5 {
		t.Fatalf("call emitted %d insts, want address plus 4 copy insts", len(insts))
	}
	load := insts[1].(isa.LoadBaseOffset)
	if load.Base != ptr || load.Type != abi.I64 {
		t.Errorf("first copy load = %+v, want i64 from %s", load, ptr)
	}

	if len(uses) != 1 || uses[0] != (abi.CallArgPair{VReg: val, PReg: isa.X(0)}) {
		t.Errorf("uses = %+v, want only %s in x0", uses, val)
	}
}

func TestCallArgsRetAreaPointer(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{Rets: i64Params(17)})

	var vregs abi.VRegCounter
	uses, insts := caller.GenCallArgs(cat, calleeID, nil, false, &vregs)

	// No formal arguments, so the pointer lands in x0 and the return area
	// sits at the top of the (empty) outgoing argument area.
	if len(insts) != 1 {
		t.Fatalf("call emitted %d insts, want one address materialization", len(insts))
	}
	addr := insts[0].(isa.StackAddr)
	if addr.Mem != abi.OutgoingArg(0) {
		t.Errorf("return area address = %+v, want outgoing 0", addr)
	}
	if len(uses) != 1 || uses[0].PReg != isa.X(0) || uses[0].VReg != addr.Into {
		t.Errorf("uses = %+v, want the area pointer in x0", uses)
	}
}

func TestTailCallRules(t *testing.T) {
	t.Run("non-tail caller", func(t *testing.T) {
		cat := abi.NewSignatureCatalog(isa.Machine{})
		caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
		calleeID := mustIntern(t, cat, &abi.Signature{CallConv: abi.ConvTail})
		var vregs abi.VRegCounter
		defer func() {
			if recover() == nil {
				t.Fatal("tail call from a fast-convention function did not panic")
			}
		}()
		caller.GenCallArgs(cat, calleeID, nil, true, &vregs)
	})

	t.Run("missing return area", func(t *testing.T) {
		cat := abi.NewSignatureCatalog(isa.Machine{})
		caller := newCallee(t, cat, &abi.Signature{CallConv: abi.ConvTail},
			abi.CalleeConfig[isa.Inst]{})
		calleeID := mustIntern(t, cat, &abi.Signature{CallConv: abi.ConvTail, Rets: i64Params(17)})
		var vregs abi.VRegCounter
		defer func() {
			if recover() == nil {
				t.Fatal("tail call needing a return area the caller lacks did not panic")
			}
		}()
		caller.GenCallArgs(cat, calleeID, nil, true, &vregs)
	})

	t.Run("stack args overwrite incoming area", func(t *testing.T) {
		cat := abi.NewSignatureCatalog(isa.Machine{})
		sig := &abi.Signature{CallConv: abi.ConvTail, Params: i64Params(17)}
		caller := newCallee(t, cat, sig, abi.CalleeConfig[isa.Inst]{})
		calleeID, _ := cat.Lookup(sig)
		var vregs abi.VRegCounter
		args := allocN(&vregs, 17)
		_, insts := caller.GenCallArgs(cat, calleeID, args, true, &vregs)
		if len(insts) != 1 {
			t.Fatalf("tail call emitted %d insts, want one stack store", len(insts))
		}
		store := insts[0].(isa.StoreStack)
		if store.Mem.Kind != abi.AModeIncomingArg || store.Mem.Offset != 0 {
			t.Errorf("tail stack arg store = %+v, want incoming offset 0", store)
		}
	})
}

func TestCallRets(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{Rets: i64Params(17)})

	var vregs abi.VRegCounter
	outs := allocN(&vregs, 17)
	defs := caller.GenCallRets(cat, calleeID, outs)

	if len(defs) != 17 {
		t.Fatalf("call defines %d return constraints, want 17", len(defs))
	}
	for i := 0; i < 16; i++ {
		loc := defs[i].Loc
		if loc.Kind != abi.RetLocReg || loc.Reg != isa.X(uint(i)) {
			t.Errorf("ret %d at %+v, want %s", i, loc, isa.X(uint(i)))
		}
	}
	// The spilled return reads from past the (empty) argument area.
	loc := defs[16].Loc
	if loc.Kind != abi.RetLocStack || loc.AMode != abi.OutgoingArg(0) {
		t.Errorf("ret 16 at %+v, want outgoing 0", loc)
	}
}

func TestCallRetsSkipStructReturn(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{
		Params: []abi.Param{{Type: abi.I64, Purpose: abi.PurposeStructReturn}},
	})

	// The callee's sole classified return is the echoed buffer pointer,
	// which the caller never consumes.
	if defs := caller.GenCallRets(cat, calleeID, nil); len(defs) != 0 {
		t.Errorf("struct-return call defines %d constraints, want 0", len(defs))
	}
}

func TestNewCallInfo(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{}, abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{Params: i64Params(1), Rets: i64Params(1)})

	var vregs abi.VRegCounter
	args := allocN(&vregs, 1)
	uses, _ := caller.GenCallArgs(cat, calleeID, args, false, &vregs)
	defs := caller.GenCallRets(cat, calleeID, allocN(&vregs, 1))

	info := abi.NewCallInfo(caller, cat, calleeID, "target", uses, defs)
	if info.Dest != "target" {
		t.Errorf("Dest = %q", info.Dest)
	}
	// x0 carries the return value, so the call must not clobber it.
	if info.Clobbers.Contains(isa.X(0)) {
		t.Error("clobber set includes the return register")
	}
	if !info.Clobbers.Contains(isa.X(1)) {
		t.Error("clobber set misses a caller-saved register")
	}
	if info.CalleePopSize != 0 {
		t.Errorf("CalleePopSize = %d, want 0 outside the tail convention", info.CalleePopSize)
	}
}

func TestNewCallInfoTailPop(t *testing.T) {
	cat := abi.NewSignatureCatalog(isa.Machine{})
	caller := newCallee(t, cat, &abi.Signature{CallConv: abi.ConvTail},
		abi.CalleeConfig[isa.Inst]{})
	calleeID := mustIntern(t, cat, &abi.Signature{CallConv: abi.ConvTail, Params: i64Params(17)})

	info := abi.NewCallInfo(caller, cat, calleeID, 0, nil, nil)
	if info.CalleePopSize != 16 {
		t.Errorf("CalleePopSize = %d, want the callee's stack argument area (16)", info.CalleePopSize)
	}
}
