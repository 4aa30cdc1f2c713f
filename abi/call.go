package abi

import "fmt"

// CallInfo is the finished description of one lowered call site, to be
// attached to the call instruction. Dest is the backend's notion of a call
// target.
type CallInfo[T any] struct {
	Dest T
	// Uses are the argument register constraints.
	Uses []CallArgPair
	// Defs are the return-value constraints.
	Defs []CallRetPair
	// Clobbers are the registers the call may overwrite, excluding those
	// carrying its return values.
	Clobbers RegSet

	CalleeConv CallConv
	CallerConv CallConv

	// CalleePopSize is the stack argument space the callee pops before
	// returning (nonzero only for the tail convention).
	CalleePopSize uint32
}

// GenCallArgs marshals argument values into a callee's locations. It returns
// the register constraints for the call instruction and the instructions
// that fill stack slots, extend narrow values, and copy struct arguments.
//
// Struct arguments are copied in a first pass, before anything else touches
// argument registers: the copy sequence may clobber them.
func (c *Callee[I]) GenCallArgs(cat *SignatureCatalog, callee SigID, args [][]Reg, isTailCall bool, vregs VRegAllocator) ([]CallArgPair, []I) {
	var uses []CallArgPair
	var insts []I

	if got, want := len(args), cat.NumArgs(callee); got != want {
		panic(fmt.Sprintf("abi: call lowered with %d arguments, callee takes %d", got, want))
	}
	if isTailCall && c.callConv != ConvTail {
		panic(fmt.Sprintf("abi: tail calls only allowed from tail-convention functions, not %s", c.callConv))
	}

	data := cat.Data(callee)
	wordTy := c.mach.WordType()
	wordBits := c.mach.WordBits()

	// Tail calls overwrite our own incoming argument area; ordinary calls
	// fill the outgoing area.
	stackArg := func(offset int64) StackAMode {
		if isTailCall {
			return IncomingArg(offset, data.sizedStackArgSpace)
		}
		return OutgoingArg(offset)
	}

	processSlot := func(slot ABIArgSlot, vreg Reg, ty Type) {
		switch slot.Kind {
		case SlotReg:
			uses = append(uses, CallArgPair{VReg: vreg, PReg: slot.Reg})
		case SlotStack:
			insts = append(insts, c.mach.GenStoreStack(stackArg(slot.Offset), vreg, ty))
		}
	}

	calleeArgs := cat.Args(callee)

	// First pass: struct copies into their stack buffers.
	for idx, fromRegs := range args {
		arg := calleeArgs[idx]
		if arg.Kind != ArgStruct {
			continue
		}
		tmp := vregs.Alloc(wordTy)
		insts = append(insts, c.mach.GenGetStackAddr(stackArg(arg.Offset), tmp))
		insts = append(insts, c.mach.GenMemcpy(data.callConv, tmp, fromRegs[0], arg.Size, func(ty Type) Reg {
			return vregs.Alloc(ty)
		})...)
	}

	// Second pass: everything else.
	for idx, fromRegs := range args {
		arg := calleeArgs[idx]
		switch arg.Kind {
		case ArgSlots:
			if len(fromRegs) != len(arg.Slots) {
				panic(fmt.Sprintf("abi: call argument %d has %d slots but %d source registers", idx, len(arg.Slots), len(fromRegs)))
			}
			for i, slot := range arg.Slots {
				vreg, ty := fromRegs[i], slot.Type
				ext := c.mach.ExtMode(data.callConv, slot.Ext)
				if ext != ExtNone && ty.Bits() < wordBits {
					tmp := vregs.Alloc(wordTy)
					insts = append(insts, c.mach.GenExtend(
						tmp, vreg, ext == ExtSign,
						uint8(ty.Bits()), uint8(wordBits)))
					vreg, ty = tmp, wordTy
				}
				processSlot(slot, vreg, ty)
			}
		case ArgImplicitPtr:
			tmp := vregs.Alloc(wordTy)
			insts = append(insts, c.mach.GenGetStackAddr(stackArg(arg.Offset), tmp))
			insts = append(insts, c.mach.GenStoreBaseOffset(tmp, 0, fromRegs[0], arg.PointeeType))
			processSlot(arg.Pointer, tmp, wordTy)
		case ArgStruct:
			// Copied in the first pass.
		}
	}

	// Finally the return-area pointer. A tail call forwards our own; an
	// ordinary call points at the top of the outgoing argument area.
	if retArg, ok := cat.RetAreaPtrArg(callee); ok {
		var retArea Reg
		if isTailCall {
			if !c.retAreaPtr.IsValid() {
				panic("abi: tail callee needs a return-area pointer, so the tail caller must have one")
			}
			retArea = c.retAreaPtr
		} else {
			tmp := vregs.Alloc(wordTy)
			insts = append(insts, c.mach.GenGetStackAddr(OutgoingArg(int64(data.sizedStackArgSpace)), tmp))
			retArea = tmp
		}
		if retArg.Kind != ArgSlots || len(retArg.Slots) != 1 {
			panic(fmt.Sprintf("abi: return-area pointer must occupy a single slot, got %s", retArg))
		}
		processSlot(retArg.Slots[0], retArea, wordTy)
	}

	return uses, insts
}

// GenCallRets binds the destinations for a call's return values. It emits no
// instructions; the constraints are attached to the call.
func (c *Callee[I]) GenCallRets(cat *SignatureCatalog, callee SigID, outputs [][]Reg) []CallRetPair {
	data := cat.Data(callee)
	wordTy := c.mach.WordType()
	wordBits := c.mach.WordBits()

	var defs []CallRetPair
	next := 0
	for idx := 0; idx < cat.NumRets(callee); idx++ {
		ret := cat.Ret(callee, idx)
		switch ret.Kind {
		case ArgSlots:
			// The returned copy of a struct-return buffer pointer
			// is not consumed.
			if ret.Purpose == PurposeStructReturn {
				continue
			}
			outRegs := outputs[next]
			next++
			if len(outRegs) != len(ret.Slots) {
				panic(fmt.Sprintf("abi: call return %d has %d slots but %d destination registers", idx, len(ret.Slots), len(outRegs)))
			}
			for i, slot := range ret.Slots {
				// No extension copying out; the extended type
				// still decides which stack bytes to read.
				ty := slot.Type
				if ext := c.mach.ExtMode(data.callConv, slot.Ext); ext != ExtNone && ty.Bits() < wordBits {
					ty = wordTy
				}
				switch slot.Kind {
				case SlotReg:
					defs = append(defs, CallRetPair{
						VReg: outRegs[i],
						Loc:  RetLocation{Kind: RetLocReg, Reg: slot.Reg, Type: ty},
					})
				case SlotStack:
					amode := OutgoingArg(slot.Offset + int64(data.sizedStackArgSpace))
					defs = append(defs, CallRetPair{
						VReg: outRegs[i],
						Loc:  RetLocation{Kind: RetLocStack, AMode: amode, Type: ty},
					})
				}
			}
		case ArgStruct:
			panic("abi: struct argument not supported in return position")
		case ArgImplicitPtr:
			panic("abi: implicit-pointer argument not supported in return position")
		}
	}
	if next != len(outputs) {
		panic(fmt.Sprintf("abi: call lowered with %d outputs, callee returns %d", len(outputs), next))
	}
	return defs
}

// NewCallInfo assembles the final call descriptor. The clobber set starts
// from everything the convention lets a call overwrite and drops the
// registers that carry this call's return values.
func NewCallInfo[I any, T any](c *Callee[I], cat *SignatureCatalog, callee SigID, dest T, uses []CallArgPair, defs []CallRetPair) CallInfo[T] {
	data := cat.Data(callee)

	clobbers := c.mach.CallClobbers(data.callConv)
	for _, def := range defs {
		if def.Loc.Kind == RetLocReg {
			clobbers.Remove(def.Loc.Reg)
		}
	}

	// The tail convention has callees pop their stack arguments.
	var calleePop uint32
	if data.callConv == ConvTail {
		calleePop = data.sizedStackArgSpace
	}

	return CallInfo[T]{
		Dest:          dest,
		Uses:          uses,
		Defs:          defs,
		Clobbers:      clobbers,
		CalleeConv:    data.callConv,
		CallerConv:    c.callConv,
		CalleePopSize: calleePop,
	}
}
