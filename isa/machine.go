package isa

import (
	"fmt"
	"sort"

	"github.com/chazu/windlass/abi"
)

// Machine implements abi.MachineSpec for the windlass VM.
type Machine struct{}

var _ abi.MachineSpec[Inst] = Machine{}

// stackArgRetSizeLimit bounds the sized stack argument and return areas of a
// single signature. Keeping this well under 2 GiB lets stack offsets live in
// i32 fields without overflow checks downstream.
const stackArgRetSizeLimit = 128 * 1024 * 1024

func (Machine) WordBits() uint32  { return 64 }
func (Machine) WordBytes() uint32 { return 8 }

func (Machine) WordType() abi.Type { return abi.I64 }

func (Machine) StackAlign(cc abi.CallConv) uint32 { return 16 }

func (Machine) StackArgRetSizeLimit() uint32 { return stackArgRetSizeLimit }

// ExtMode honors the specified extension under every convention.
func (Machine) ExtMode(cc abi.CallConv, ext abi.Extension) abi.Extension { return ext }

func (Machine) CanonicalType(class abi.RegClass) abi.Type {
	switch class {
	case abi.ClassInt:
		return abi.I64
	case abi.ClassFloat:
		return abi.F64
	case abi.ClassVector:
		return abi.V128
	}
	panic(fmt.Sprintf("isa: invalid register class %d", uint8(class)))
}

func (Machine) CallClobbers(cc abi.CallConv) abi.RegSet { return callClobbers() }

func (Machine) StacklimitReg(cc abi.CallConv) abi.Reg { return X(ScratchReg) }

// ---------------------------------------------------------------------------
// Argument classification
// ---------------------------------------------------------------------------

// ComputeArgLocs assigns the first sixteen values of each register class to
// x0../f0../v0.. and spills the rest to 8-byte-aligned stack slots (16 for
// vectors). Struct arguments are copied to the argument area under the fast
// and tail conventions; the system convention passes a pointer to a
// caller-managed temporary instead.
func (m Machine) ComputeArgLocs(cc abi.CallConv, params []abi.Param, kind abi.ArgsOrRets, addRetAreaPtr bool, args *abi.ArgsAccumulator) (uint32, int, error) {
	var nextX, nextF, nextV uint
	var nextStack uint32

	stackSlot := func(size, align uint32) (int64, bool) {
		mask := align - 1
		start := (nextStack + mask) &^ mask
		end := start + size
		if end < start {
			return 0, false
		}
		nextStack = end
		return int64(start), true
	}

	// One scalar value per location; values never split across slots on a
	// 64-bit word machine.
	classify := func(p abi.Param) (abi.ABIArgSlot, bool) {
		switch p.Type.Class() {
		case abi.ClassInt:
			if nextX < NumArgRegs {
				r := X(nextX)
				nextX++
				return abi.RegSlot(r, p.Type, p.Ext), true
			}
		case abi.ClassFloat:
			if nextF < NumArgRegs {
				r := F(nextF)
				nextF++
				return abi.RegSlot(r, p.Type, p.Ext), true
			}
		case abi.ClassVector:
			if nextV < NumArgRegs {
				r := V(nextV)
				nextV++
				return abi.RegSlot(r, p.Type, p.Ext), true
			}
		}
		size := uint32(8)
		if p.Type.IsVector() {
			size = 16
		}
		off, ok := stackSlot(size, size)
		if !ok {
			return abi.ABIArgSlot{}, false
		}
		return abi.StackSlot(off, p.Type, p.Ext), true
	}

	for _, p := range params {
		if p.Purpose == abi.PurposeStructArg {
			if kind == abi.ForRets {
				panic("isa: struct argument in return position")
			}
			// The copy buffer lives in the argument area either
			// way.
			buf, ok := stackSlot((p.StructSize+7)&^7, 8)
			if !ok {
				return 0, -1, &abi.LimitError{Which: kind, Size: nextStack, Limit: stackArgRetSizeLimit}
			}
			if cc == abi.ConvSystem {
				ptr, ok := classify(abi.Param{Type: abi.I64})
				if !ok {
					return 0, -1, &abi.LimitError{Which: kind, Size: nextStack, Limit: stackArgRetSizeLimit}
				}
				args.Push(abi.ImplicitPtrArg(ptr, buf, abi.I64, p.Purpose))
			} else {
				args.Push(abi.StructArg(buf, p.StructSize))
			}
			continue
		}
		slot, ok := classify(p)
		if !ok {
			return 0, -1, &abi.LimitError{Which: kind, Size: nextStack, Limit: stackArgRetSizeLimit}
		}
		args.Push(abi.SlotsArg([]abi.ABIArgSlot{slot}, p.Purpose))
	}

	retAreaIdx := -1
	if addRetAreaPtr {
		if kind != abi.ForArgs {
			panic("isa: return-area pointer requested while classifying returns")
		}
		retAreaIdx = len(params)
		slot, ok := classify(abi.Param{Type: abi.I64})
		if !ok {
			return 0, -1, &abi.LimitError{Which: kind, Size: nextStack, Limit: stackArgRetSizeLimit}
		}
		args.PushNonFormal(abi.SlotsArg([]abi.ABIArgSlot{slot}, abi.PurposeNormal))
	}

	// Keep SP 16-aligned across calls.
	space := (nextStack + 15) &^ 15
	return space, retAreaIdx, nil
}

// ---------------------------------------------------------------------------
// Frame layout
// ---------------------------------------------------------------------------

func (Machine) ComputeFrameLayout(cc abi.CallConv, clobbered []abi.Reg, isLeaf bool, incomingArgsSize, tailArgsSize, stackslotsSize, fixedFrameStorageSize, outgoingArgsSize uint32) abi.FrameLayout {
	if tailArgsSize < incomingArgsSize {
		panic(fmt.Sprintf("isa: tail argument area %d smaller than incoming %d", tailArgsSize, incomingArgsSize))
	}

	sorted := make([]abi.Reg, len(clobbered))
	copy(sorted, clobbered)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Class() != sorted[j].Class() {
			return sorted[i].Class() < sorted[j].Class()
		}
		return sorted[i].Num() < sorted[j].Num()
	})

	var clobberSize uint32
	for _, r := range sorted {
		if !calleeSaved(r) {
			panic(fmt.Sprintf("isa: register %s is not callee-saved", r))
		}
		clobberSize += 8
	}
	clobberSize = (clobberSize + 15) &^ 15

	// A leaf touching no stack at all runs frameless.
	setup := uint32(16)
	if isLeaf && clobberSize == 0 && fixedFrameStorageSize == 0 &&
		outgoingArgsSize == 0 && tailArgsSize == incomingArgsSize {
		setup = 0
	}

	return abi.FrameLayout{
		WordBytes:             8,
		IncomingArgsSize:      incomingArgsSize,
		TailArgsSize:          tailArgsSize,
		SetupAreaSize:         setup,
		ClobberSize:           clobberSize,
		FixedFrameStorageSize: fixedFrameStorageSize,
		StackslotsSize:        stackslotsSize,
		OutgoingArgsSize:      outgoingArgsSize,
		ClobberedCalleeSaves:  sorted,
	}
}

// ---------------------------------------------------------------------------
// Pseudo-instruction constructors
// ---------------------------------------------------------------------------

func (Machine) GenLoadStack(mem abi.StackAMode, into abi.Reg, ty abi.Type) Inst {
	return LoadStack{Mem: mem, Into: into, Type: ty}
}

func (Machine) GenStoreStack(mem abi.StackAMode, from abi.Reg, ty abi.Type) Inst {
	return StoreStack{Mem: mem, From: from, Type: ty}
}

func (Machine) GenMove(into, from abi.Reg, ty abi.Type) Inst {
	return Move{Into: into, From: from, Type: ty}
}

func (Machine) GenExtend(into, from abi.Reg, signed bool, fromBits, toBits uint8) Inst {
	return Extend{Into: into, From: from, Signed: signed, FromBits: fromBits, ToBits: toBits}
}

func (Machine) GenArgs(args []abi.ArgPair) Inst { return ArgsEdge{Pairs: args} }

func (Machine) GenRets(rets []abi.RetPair) Inst { return RetsEdge{Pairs: rets} }

func (Machine) GenAddImm(cc abi.CallConv, into, from abi.Reg, imm uint32) []Inst {
	return []Inst{AddImm{Into: into, From: from, Imm: imm}}
}

func (Machine) GenStackLowerBoundTrap(limit abi.Reg) []Inst {
	return []Inst{TrapIfStackBelow{Limit: limit}}
}

func (Machine) GenGetStackAddr(mem abi.StackAMode, into abi.Reg) Inst {
	return StackAddr{Mem: mem, Into: into}
}

func (Machine) GenLoadBaseOffset(into, base abi.Reg, offset int32, ty abi.Type) Inst {
	return LoadBaseOffset{Into: into, Base: base, Offset: offset, Type: ty}
}

func (Machine) GenStoreBaseOffset(base abi.Reg, offset int32, from abi.Reg, ty abi.Type) Inst {
	return StoreBaseOffset{Base: base, Offset: offset, From: from, Type: ty}
}

// GenMemcpy copies word by word through scratch registers, narrowing for the
// tail. Struct sizes are small enough that an inline copy beats a call.
func (Machine) GenMemcpy(cc abi.CallConv, dst, src abi.Reg, size uint32, allocTmp func(abi.Type) abi.Reg) []Inst {
	var insts []Inst
	var off uint32
	step := func(ty abi.Type) {
		tmp := allocTmp(ty)
		insts = append(insts,
			LoadBaseOffset{Into: tmp, Base: src, Offset: int32(off), Type: ty},
			StoreBaseOffset{Base: dst, Offset: int32(off), From: tmp, Type: ty})
		off += ty.Bytes()
	}
	for size-off >= 8 {
		step(abi.I64)
	}
	for _, ty := range []abi.Type{abi.I32, abi.I16, abi.I8} {
		for size-off >= ty.Bytes() {
			step(ty)
		}
	}
	return insts
}

func (Machine) GenPrologueFrameSetup(cc abi.CallConv, frame *abi.FrameLayout) []Inst {
	var insts []Inst
	if frame.SetupAreaSize > 0 {
		insts = append(insts, PushFrame{})
	}
	if delta := frame.TailArgsSize - frame.IncomingArgsSize; delta > 0 {
		insts = append(insts, GrowIncomingArgs{Delta: delta})
	}
	return insts
}

func (Machine) GenEpilogueFrameRestore(cc abi.CallConv, frame *abi.FrameLayout) []Inst {
	if frame.SetupAreaSize > 0 {
		return []Inst{PopFrame{}}
	}
	return nil
}

func (Machine) GenReturn(cc abi.CallConv, frame *abi.FrameLayout) []Inst {
	var pop uint32
	if cc == abi.ConvTail {
		pop = frame.TailArgsSize
	}
	return []Inst{Ret{PopBytes: pop}}
}

func (Machine) GenProbestack(frameSize uint32) []Inst {
	return []Inst{ProbeStack{Size: frameSize}}
}

func (Machine) GenInlineProbestack(cc abi.CallConv, frameSize, guardSize uint32) []Inst {
	return []Inst{InlineProbeStack{Size: frameSize, Guard: guardSize}}
}

// GenClobberSave allocates the active frame and saves clobbered callee-saves
// above the fixed frame storage.
func (Machine) GenClobberSave(cc abi.CallConv, frame *abi.FrameLayout) []Inst {
	var insts []Inst
	if active := frame.ActiveSize(); active > 0 {
		insts = append(insts, AdjustSP{Amount: -int64(active)})
	}
	off := int64(frame.FixedFrameStorageSize)
	for _, r := range frame.ClobberedCalleeSaves {
		ty := abi.I64
		if r.Class() == abi.ClassFloat {
			ty = abi.F64
		}
		insts = append(insts, StoreStack{Mem: abi.SlotAddr(off), From: r, Type: ty})
		off += 8
	}
	return insts
}

// GenClobberRestore reloads clobbered callee-saves and frees the active
// frame.
func (Machine) GenClobberRestore(cc abi.CallConv, frame *abi.FrameLayout) []Inst {
	var insts []Inst
	off := int64(frame.FixedFrameStorageSize)
	for _, r := range frame.ClobberedCalleeSaves {
		ty := abi.I64
		if r.Class() == abi.ClassFloat {
			ty = abi.F64
		}
		insts = append(insts, LoadStack{Mem: abi.SlotAddr(off), Into: r, Type: ty})
		off += 8
	}
	if active := frame.ActiveSize(); active > 0 {
		insts = append(insts, AdjustSP{Amount: int64(active)})
	}
	return insts
}
