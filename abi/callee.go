package abi

import (
	"errors"
	"fmt"
)

// ErrFrameTooLarge reports that a function's stack slot layout overflows the
// supported frame size.
var ErrFrameTooLarge = errors.New("abi: frame storage exceeds implementation limit")

// StackSlotSpec declares one sized stack slot of a function.
type StackSlotSpec struct {
	Size uint32
	// AlignShift is the log2 of the required alignment; slots are always
	// at least word-aligned.
	AlignShift uint8
}

// StackLimit carries an explicit stack-limit register for the prologue
// check, along with the instructions that materialize it. The sequence runs
// inside the prologue, so it must only touch caller-saved scratch registers.
type StackLimit[I any] struct {
	Reg  Reg
	Load []I
}

// CalleeConfig carries the per-function facts a Callee is built from.
type CalleeConfig[I any] struct {
	StackSlots []StackSlotSpec
	IsLeaf     bool
	StackLimit *StackLimit[I]
}

// Callee drives the ABI lowering of one function body: argument intake,
// return placement, call-site marshalling, and frame construction.
type Callee[I any] struct {
	mach     MachineSpec[I]
	settings Settings
	sig      SigID
	callConv CallConv

	// sizedStackslots maps slot index to its offset within the stack slot
	// area; stackslotsSize is the area's total (word-aligned) size.
	sizedStackslots []uint32
	stackslotsSize  uint32

	// outgoingArgsSize is the high-water outgoing argument area demanded
	// by calls lowered so far; tailArgsSize is the high-water incoming
	// area demanded by tail calls (at least the function's own).
	outgoingArgsSize uint32
	tailArgsSize     uint32

	// regArgs accumulates incoming register-argument constraints for the
	// single args pseudo-inst flushed by TakeArgs.
	regArgs []ArgPair

	// frame is set exactly once by ComputeFrameLayout, after register
	// allocation.
	frame *FrameLayout

	// retAreaPtr holds the return-area pointer, when the signature
	// carries one and InitRetvalArea has run.
	retAreaPtr Reg

	isLeaf     bool
	stackLimit *StackLimit[I]
}

// NewCallee builds the lowering context for a function with the given
// (already interned) signature.
func NewCallee[I any](mach MachineSpec[I], settings Settings, cat *SignatureCatalog, sig *Signature, cfg CalleeConfig[I]) (*Callee[I], error) {
	id, ok := cat.Lookup(sig)
	if !ok {
		panic(fmt.Sprintf("abi: signature %s must be interned before constructing a callee", sig))
	}

	// Lay out the sized stack slots, at least word-aligned, tighter
	// alignments honored.
	var offsets []uint32
	var end uint32
	for _, slot := range cfg.StackSlots {
		if slot.AlignShift >= 32 {
			panic(fmt.Sprintf("abi: stack slot alignment shift %d out of range", slot.AlignShift))
		}
		align := mach.WordBytes()
		if a := uint32(1) << slot.AlignShift; a > align {
			align = a
		}
		start, ok := checkedRoundUp(end, align-1)
		if !ok {
			return nil, ErrFrameTooLarge
		}
		end = start + slot.Size
		if end < start {
			return nil, ErrFrameTooLarge
		}
		offsets = append(offsets, start)
	}
	size, ok := checkedRoundUp(end, mach.WordBytes()-1)
	if !ok {
		return nil, ErrFrameTooLarge
	}

	data := cat.Data(id)
	return &Callee[I]{
		mach:            mach,
		settings:        settings,
		sig:             id,
		callConv:        data.callConv,
		sizedStackslots: offsets,
		stackslotsSize:  size,
		tailArgsSize:    data.sizedStackArgSpace,
		isLeaf:          cfg.IsLeaf,
		stackLimit:      cfg.StackLimit,
	}, nil
}

func checkedRoundUp(val, mask uint32) (uint32, bool) {
	sum := val + mask
	if sum < val {
		return 0, false
	}
	return sum &^ mask, true
}

// Sig returns the function's interned signature id.
func (c *Callee[I]) Sig() SigID { return c.sig }

// CallConv returns the function's calling convention.
func (c *Callee[I]) CallConv() CallConv { return c.callConv }

// IsLeaf reports whether the function makes no calls.
func (c *Callee[I]) IsLeaf() bool { return c.isLeaf }

// StackslotsSize returns the total sized stack slot area.
func (c *Callee[I]) StackslotsSize() uint32 { return c.stackslotsSize }

// ---------------------------------------------------------------------------
// Pre-regalloc lowering
// ---------------------------------------------------------------------------

// InitRetvalArea allocates the virtual register holding the return-area
// pointer, when the signature needs one. Must run before any return values
// are lowered.
func (c *Callee[I]) InitRetvalArea(cat *SignatureCatalog, vregs VRegAllocator) {
	if cat.Data(c.sig).stackRetArg >= 0 {
		c.retAreaPtr = vregs.Alloc(c.mach.WordType())
	}
}

// RetAreaPtr returns the return-area pointer register, if any.
func (c *Callee[I]) RetAreaPtr() (Reg, bool) {
	return c.retAreaPtr, c.retAreaPtr.IsValid()
}

// CopyArgToRegs lowers the intake of argument idx into the given registers.
// Register slots become deferred constraints on the args pseudo-inst; stack
// slots load from the incoming argument area.
func (c *Callee[I]) CopyArgToRegs(cat *SignatureCatalog, idx int, into []Reg, vregs VRegAllocator) []I {
	var insts []I
	data := cat.Data(c.sig)

	slotToReg := func(slot ABIArgSlot, intoReg Reg) {
		switch slot.Kind {
		case SlotReg:
			// Extension is irrelevant copying out: high bits are
			// ignored by convention.
			c.regArgs = append(c.regArgs, ArgPair{VReg: intoReg, PReg: slot.Reg})
		case SlotStack:
			// The extension mode decides which bytes the stack
			// slot actually holds.
			ty := slot.Type
			if ext := c.mach.ExtMode(data.callConv, slot.Ext); ext != ExtNone && c.mach.WordBits() > ty.Bits() {
				ty = c.mach.WordType()
			}
			insts = append(insts, c.mach.GenLoadStack(
				IncomingArg(slot.Offset, data.sizedStackArgSpace), intoReg, ty))
		}
	}

	arg := cat.Arg(c.sig, idx)
	switch arg.Kind {
	case ArgSlots:
		if len(into) != len(arg.Slots) {
			panic(fmt.Sprintf("abi: argument %d has %d slots but %d destination registers", idx, len(arg.Slots), len(into)))
		}
		for i, slot := range arg.Slots {
			slotToReg(slot, into[i])
		}
	case ArgStruct:
		// The buffer address is implied by the ABI.
		insts = append(insts, c.mach.GenGetStackAddr(
			IncomingArg(arg.Offset, data.sizedStackArgSpace), into[0]))
	case ArgImplicitPtr:
		var base Reg
		switch arg.Pointer.Kind {
		case SlotReg:
			tmp := vregs.Alloc(arg.Pointer.Type)
			c.regArgs = append(c.regArgs, ArgPair{VReg: tmp, PReg: arg.Pointer.Reg})
			base = tmp
		case SlotStack:
			addr := vregs.Alloc(arg.Pointer.Type)
			insts = append(insts, c.mach.GenLoadStack(
				IncomingArg(arg.Pointer.Offset, data.sizedStackArgSpace), addr, arg.Pointer.Type))
			base = addr
		}
		insts = append(insts, c.mach.GenLoadBaseOffset(into[0], base, 0, arg.PointeeType))
	}
	return insts
}

// CopyRegsToRetval lowers the placement of return value idx from the given
// registers, producing the return constraints for the rets pseudo-inst plus
// any store or extension instructions.
func (c *Callee[I]) CopyRegsToRetval(cat *SignatureCatalog, idx int, from []Reg, vregs VRegAllocator) ([]RetPair, []I) {
	var pairs []RetPair
	var insts []I
	data := cat.Data(c.sig)
	wordBits := c.mach.WordBits()

	ret := cat.Ret(c.sig, idx)
	switch ret.Kind {
	case ArgSlots:
		if len(from) != len(ret.Slots) {
			panic(fmt.Sprintf("abi: return %d has %d slots but %d source registers", idx, len(ret.Slots), len(from)))
		}
		for i, slot := range ret.Slots {
			fromReg := from[i]
			ext := c.mach.ExtMode(data.callConv, slot.Ext)
			needExt := ext != ExtNone && slot.Type.Bits() < wordBits

			switch slot.Kind {
			case SlotReg:
				vreg := fromReg
				if needExt {
					dst := vregs.Alloc(slot.Type)
					insts = append(insts, c.mach.GenExtend(
						dst, fromReg, ext == ExtSign,
						uint8(slot.Type.Bits()), uint8(wordBits)))
					vreg = dst
				}
				pairs = append(pairs, RetPair{VReg: vreg, PReg: slot.Reg})
			case SlotStack:
				if !c.retAreaPtr.IsValid() {
					panic("abi: stack return slot without a return-area pointer")
				}
				off := slot.Offset
				if off > int64(^uint32(0)>>1) || off < 0 {
					panic(fmt.Sprintf("abi: return stack offset %d out of range; implementation limit should have tripped first", off))
				}
				src, ty := fromReg, slot.Type
				if needExt {
					dst := vregs.Alloc(slot.Type)
					insts = append(insts, c.mach.GenExtend(
						dst, fromReg, ext == ExtSign,
						uint8(slot.Type.Bits()), uint8(wordBits)))
					src, ty = dst, c.mach.WordType()
				}
				insts = append(insts, c.mach.GenStoreBaseOffset(c.retAreaPtr, int32(off), src, ty))
			}
		}
	case ArgStruct:
		panic("abi: struct argument in return position is unsupported")
	case ArgImplicitPtr:
		panic("abi: implicit-pointer argument in return position is unsupported")
	}
	return pairs, insts
}

// GenRetvalAreaSetup lowers the intake of the synthetic return-area pointer
// argument, if the signature has one.
func (c *Callee[I]) GenRetvalAreaSetup(cat *SignatureCatalog, vregs VRegAllocator) (inst I, ok bool) {
	data := cat.Data(c.sig)
	if data.stackRetArg < 0 {
		log.Debugf("retval area setup: not needed")
		var zero I
		return zero, false
	}
	if !c.retAreaPtr.IsValid() {
		panic("abi: InitRetvalArea must run before GenRetvalAreaSetup")
	}
	insts := c.CopyArgToRegs(cat, data.stackRetArg, []Reg{c.retAreaPtr}, vregs)
	if len(insts) == 0 {
		// The pointer arrived in a register; the constraint is on the
		// args pseudo-inst.
		var zero I
		return zero, false
	}
	log.Debugf("retval area setup: ptr reg is %s", c.retAreaPtr)
	return insts[0], true
}

// GenRets builds the rets pseudo-inst from accumulated return constraints.
func (c *Callee[I]) GenRets(rets []RetPair) I {
	return c.mach.GenRets(rets)
}

// TakeArgs flushes the deferred incoming-argument constraints as the args
// pseudo-inst that must open the function body. Returns false when no
// register arguments were taken (or on a second call).
func (c *Callee[I]) TakeArgs() (inst I, ok bool) {
	if len(c.regArgs) == 0 {
		var zero I
		return zero, false
	}
	args := c.regArgs
	c.regArgs = nil
	return c.mach.GenArgs(args), true
}

// AccumulateOutgoingArgsSize records that some call needs at least size
// bytes of outgoing argument space.
func (c *Callee[I]) AccumulateOutgoingArgsSize(size uint32) {
	if size > c.outgoingArgsSize {
		c.outgoingArgsSize = size
	}
}

// AccumulateTailArgsSize records that some tail call needs at least size
// bytes of incoming argument space.
func (c *Callee[I]) AccumulateTailArgsSize(size uint32) {
	if size > c.tailArgsSize {
		c.tailArgsSize = size
	}
}

// SizedStackslotAddr materializes the address of (part of) a sized stack
// slot.
func (c *Callee[I]) SizedStackslotAddr(slot int, offset uint32, into Reg) I {
	off := int64(c.sizedStackslots[slot]) + int64(offset)
	return c.mach.GenGetStackAddr(SlotAddr(off), into)
}

// ---------------------------------------------------------------------------
// Post-regalloc: frame construction
// ---------------------------------------------------------------------------

// ComputeFrameLayout fixes the final frame layout. Must run after register
// allocation and before GenPrologue or GenEpilogue.
func (c *Callee[I]) ComputeFrameLayout(cat *SignatureCatalog, spillslots int, clobbered []Reg) {
	if c.frame != nil {
		panic("abi: frame layout computed twice")
	}
	total := c.stackslotsSize + c.mach.WordBytes()*uint32(spillslots)
	mask := c.mach.StackAlign(c.callConv) - 1
	total = (total + mask) &^ mask
	frame := c.mach.ComputeFrameLayout(
		c.callConv,
		clobbered,
		c.isLeaf,
		cat.Data(c.sig).sizedStackArgSpace,
		c.tailArgsSize,
		c.stackslotsSize,
		total,
		c.outgoingArgsSize,
	)
	c.frame = &frame
}

// FrameLayout returns the computed layout, panicking when called before
// ComputeFrameLayout.
func (c *Callee[I]) FrameLayout() *FrameLayout {
	if c.frame == nil {
		panic("abi: frame layout not computed before prologue generation")
	}
	return c.frame
}

// FrameSize returns the fixed frame size after prologue emission: clobber
// save area plus fixed frame storage, excluding ephemeral call-site pushes.
func (c *Callee[I]) FrameSize() uint32 {
	frame := c.FrameLayout()
	return frame.ClobberSize + frame.FixedFrameStorageSize
}

// SpillslotOffset returns a spill slot's offset within the fixed frame
// storage area.
func (c *Callee[I]) SpillslotOffset(slot int) int64 {
	return c.FrameLayout().SpillslotOffset(slot)
}

// GenSpill stores a register to its spill slot.
func (c *Callee[I]) GenSpill(toSlot int, from Reg) I {
	ty := c.mach.CanonicalType(from.Class())
	off := c.SpillslotOffset(toSlot)
	log.Debugf("spill %s into slot %d at offset %d", from, toSlot, off)
	return c.mach.GenStoreStack(SlotAddr(off), from, ty)
}

// GenReload loads a register from its spill slot.
func (c *Callee[I]) GenReload(into Reg, fromSlot int) I {
	ty := c.mach.CanonicalType(into.Class())
	off := c.SpillslotOffset(fromSlot)
	log.Debugf("reload %s from slot %d at offset %d", into, fromSlot, off)
	return c.mach.GenLoadStack(SlotAddr(off), into, ty)
}

// GenPrologue emits the full prologue: frame setup, the stack-limit check
// and probes when needed, and clobber saves.
func (c *Callee[I]) GenPrologue() []I {
	frame := c.FrameLayout()
	insts := c.mach.GenPrologueFrameSetup(c.callConv, frame)

	// The check must cover every adjustment up to the next check in any
	// callee: the frame growth beyond what the caller already checked,
	// plus the setup area our callees will push when we are not a leaf.
	total := (frame.TailArgsSize - frame.IncomingArgsSize) +
		frame.ClobberSize +
		frame.FixedFrameStorageSize +
		frame.OutgoingArgsSize
	if !c.isLeaf {
		total += frame.SetupAreaSize
	}

	// A leaf with a zero-sized frame needs no check at all.
	if total > 0 || !c.isLeaf {
		if c.stackLimit != nil {
			insts = append(insts, c.stackLimit.Load...)
			insts = c.insertStackCheck(c.stackLimit.Reg, total, insts)
		}
		switch c.settings.Probestack {
		case ProbeInline:
			insts = append(insts, c.mach.GenInlineProbestack(c.callConv, total, c.settings.GuardSize())...)
		case ProbeOutline:
			if total >= c.settings.GuardSize() {
				insts = append(insts, c.mach.GenProbestack(total)...)
			}
		}
	}

	return append(insts, c.mach.GenClobberSave(c.callConv, frame)...)
}

// insertStackCheck emits a trap when growing the stack by stackSize would
// cross the limit register.
func (c *Callee[I]) insertStackCheck(limit Reg, stackSize uint32, insts []I) []I {
	if stackSize == 0 {
		return append(insts, c.mach.GenStackLowerBoundTrap(limit)...)
	}
	// Large sizes also check the raw limit first, protecting the addition
	// below against wrapping past the stack base.
	if stackSize >= 32*1024 {
		insts = append(insts, c.mach.GenStackLowerBoundTrap(limit)...)
	}
	scratch := c.mach.StacklimitReg(c.callConv)
	insts = append(insts, c.mach.GenAddImm(c.callConv, scratch, limit, stackSize)...)
	return append(insts, c.mach.GenStackLowerBoundTrap(scratch)...)
}

// GenEpilogue emits clobber restores, frame teardown, and the return.
func (c *Callee[I]) GenEpilogue() []I {
	frame := c.FrameLayout()
	insts := c.mach.GenClobberRestore(c.callConv, frame)
	insts = append(insts, c.mach.GenEpilogueFrameRestore(c.callConv, frame)...)
	insts = append(insts, c.mach.GenReturn(c.callConv, frame)...)
	log.Debugf("epilogue: %d insts", len(insts))
	return insts
}
