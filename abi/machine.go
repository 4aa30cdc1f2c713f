package abi

import "fmt"

// ---------------------------------------------------------------------------
// Stack addressing for generated code
// ---------------------------------------------------------------------------

// StackAModeKind selects the frame region a StackAMode addresses.
type StackAModeKind uint8

const (
	// AModeIncomingArg addresses the caller-provided argument area, with
	// offsets growing downward from its top.
	AModeIncomingArg StackAModeKind = iota
	// AModeSlot addresses the fixed frame storage (stack and spill slots),
	// SP-relative once the frame is established.
	AModeSlot
	// AModeOutgoingArg addresses the outgoing argument area at the bottom
	// of the frame, SP-relative.
	AModeOutgoingArg
)

// StackAMode is a symbolic stack address used by the pseudo-instructions the
// engine emits. The backend resolves it against the final frame layout.
type StackAMode struct {
	Kind   StackAModeKind
	Offset int64
	// ArgSpace is the total sized stack argument space of the relevant
	// signature, for AModeIncomingArg.
	ArgSpace uint32
}

// IncomingArg addresses offset within the caller's argument area of the
// given total size.
func IncomingArg(offset int64, argSpace uint32) StackAMode {
	return StackAMode{Kind: AModeIncomingArg, Offset: offset, ArgSpace: argSpace}
}

// SlotAddr addresses offset within the fixed frame storage.
func SlotAddr(offset int64) StackAMode {
	return StackAMode{Kind: AModeSlot, Offset: offset}
}

// OutgoingArg addresses offset within the outgoing argument area.
func OutgoingArg(offset int64) StackAMode {
	return StackAMode{Kind: AModeOutgoingArg, Offset: offset}
}

func (m StackAMode) String() string {
	switch m.Kind {
	case AModeIncomingArg:
		return fmt.Sprintf("incoming(%d/%d)", m.Offset, m.ArgSpace)
	case AModeSlot:
		return fmt.Sprintf("slot(%d)", m.Offset)
	case AModeOutgoingArg:
		return fmt.Sprintf("outgoing(%d)", m.Offset)
	}
	return fmt.Sprintf("amode(%d)", uint8(m.Kind))
}

// ---------------------------------------------------------------------------
// Register-constraint pairs
// ---------------------------------------------------------------------------

// ArgPair constrains an incoming argument: VReg is defined at function entry
// from physical register PReg.
type ArgPair struct {
	VReg Reg
	PReg Reg
}

// RetPair constrains an outgoing return value: VReg is read into physical
// register PReg at the return.
type RetPair struct {
	VReg Reg
	PReg Reg
}

// CallArgPair constrains a call argument: VReg is used in physical register
// PReg at the call.
type CallArgPair struct {
	VReg Reg
	PReg Reg
}

// RetLocKind selects where a call return value is read from.
type RetLocKind uint8

const (
	RetLocReg RetLocKind = iota
	RetLocStack
)

// RetLocation is the location a call's return value is retrieved from.
type RetLocation struct {
	Kind  RetLocKind
	Reg   Reg        // RetLocReg
	AMode StackAMode // RetLocStack
	Type  Type
}

// CallRetPair binds a call return value: VReg is defined from Loc after the
// call completes.
type CallRetPair struct {
	VReg Reg
	Loc  RetLocation
}

// ---------------------------------------------------------------------------
// Compilation settings
// ---------------------------------------------------------------------------

// ProbestackKind selects the stack-probing strategy used in prologues.
type ProbestackKind uint8

const (
	// ProbeNone disables stack probes.
	ProbeNone ProbestackKind = iota
	// ProbeOutline calls a probing routine when the frame exceeds the
	// guard size.
	ProbeOutline
	// ProbeInline emits an inline probe loop.
	ProbeInline
)

// Settings carries the compilation flags the engine consults.
type Settings struct {
	Probestack ProbestackKind
	// ProbeGuardSize is the guard region size in bytes; frames smaller
	// than this need no outline probe. Zero selects 4 KiB.
	ProbeGuardSize uint32
}

// GuardSize returns the effective probe guard size.
func (s Settings) GuardSize() uint32 {
	if s.ProbeGuardSize == 0 {
		return 4096
	}
	return s.ProbeGuardSize
}

// ---------------------------------------------------------------------------
// Machine backend interface
// ---------------------------------------------------------------------------

// ArgClassifier is the convention-defining half of a machine backend: the
// queries the SignatureCatalog needs to place arguments and return values.
type ArgClassifier interface {
	// WordBits returns the machine word width in bits.
	WordBits() uint32
	// WordBytes returns the machine word width in bytes.
	WordBytes() uint32
	// WordType returns the integer type of a machine word.
	WordType() Type
	// StackAlign returns the required stack alignment in bytes under cc.
	StackAlign(cc CallConv) uint32
	// StackArgRetSizeLimit is the largest sized stack argument or return
	// space the backend supports; beyond it classification fails with a
	// LimitError.
	StackArgRetSizeLimit() uint32
	// ExtMode maps a parameter's specified extension through the
	// convention's rules (a convention may force or forbid extension).
	ExtMode(cc CallConv, ext Extension) Extension
	// ComputeArgLocs assigns a location to every parameter, pushing one
	// ABIArg per parameter into args. When addRetAreaPtr is set it also
	// pushes a non-formal word-sized argument carrying the return-area
	// pointer and returns its index; otherwise the returned index is -1.
	// The returned space is the sized stack space consumed, in bytes.
	ComputeArgLocs(cc CallConv, params []Param, kind ArgsOrRets, addRetAreaPtr bool, args *ArgsAccumulator) (space uint32, retAreaPtrIdx int, err error)
	// CanonicalType returns the widest type of a register class, used for
	// spills and reloads.
	CanonicalType(class RegClass) Type
	// CallClobbers returns the registers a call under cc may overwrite.
	CallClobbers(cc CallConv) RegSet
	// StacklimitReg returns a caller-saved scratch register the prologue
	// stack check may use under cc.
	StacklimitReg(cc CallConv) Reg
	// ComputeFrameLayout assembles the final frame layout from the sizes
	// the engine has accumulated. clobbered holds the clobbered
	// callee-saves in an arbitrary order; the result must carry them
	// sorted by class then number.
	ComputeFrameLayout(cc CallConv, clobbered []Reg, isLeaf bool, incomingArgsSize, tailArgsSize, stackslotsSize, fixedFrameStorageSize, outgoingArgsSize uint32) FrameLayout
}

// MachineSpec is a full machine backend: the classification queries plus the
// pseudo-instruction constructors, parameterized over the backend's
// instruction type.
type MachineSpec[I any] interface {
	ArgClassifier

	// GenLoadStack loads a value of type ty from a stack location.
	GenLoadStack(mem StackAMode, into Reg, ty Type) I
	// GenStoreStack stores a value of type ty to a stack location.
	GenStoreStack(mem StackAMode, from Reg, ty Type) I
	// GenMove copies from into into.
	GenMove(into Reg, from Reg, ty Type) I
	// GenExtend widens from fromBits to toBits, signed or unsigned.
	GenExtend(into Reg, from Reg, signed bool, fromBits, toBits uint8) I
	// GenArgs builds the args pseudo-inst establishing incoming argument
	// constraints at function entry.
	GenArgs(args []ArgPair) I
	// GenRets builds the rets pseudo-inst carrying return constraints.
	GenRets(rets []RetPair) I
	// GenAddImm adds an immediate to from, writing into.
	GenAddImm(cc CallConv, into Reg, from Reg, imm uint32) []I
	// GenStackLowerBoundTrap traps if SP is below limit.
	GenStackLowerBoundTrap(limit Reg) []I
	// GenGetStackAddr materializes the address of a stack location.
	GenGetStackAddr(mem StackAMode, into Reg) I
	// GenLoadBaseOffset loads ty from base+offset.
	GenLoadBaseOffset(into Reg, base Reg, offset int32, ty Type) I
	// GenStoreBaseOffset stores ty to base+offset.
	GenStoreBaseOffset(base Reg, offset int32, from Reg, ty Type) I
	// GenMemcpy copies size bytes from src to dst; allocTmp provides
	// scratch registers.
	GenMemcpy(cc CallConv, dst, src Reg, size uint32, allocTmp func(Type) Reg) []I
	// GenPrologueFrameSetup establishes the frame (setup area, FP).
	GenPrologueFrameSetup(cc CallConv, frame *FrameLayout) []I
	// GenEpilogueFrameRestore tears the frame down.
	GenEpilogueFrameRestore(cc CallConv, frame *FrameLayout) []I
	// GenReturn emits the return sequence, including any callee stack-arg
	// pop the convention requires.
	GenReturn(cc CallConv, frame *FrameLayout) []I
	// GenProbestack emits an outline stack probe for frameSize bytes.
	GenProbestack(frameSize uint32) []I
	// GenInlineProbestack emits an inline probe loop.
	GenInlineProbestack(cc CallConv, frameSize, guardSize uint32) []I
	// GenClobberSave saves the clobbered callee-saves and allocates fixed
	// frame storage.
	GenClobberSave(cc CallConv, frame *FrameLayout) []I
	// GenClobberRestore restores the clobbered callee-saves and frees
	// fixed frame storage.
	GenClobberRestore(cc CallConv, frame *FrameLayout) []I
}

// VRegAllocator allocates fresh virtual registers during lowering.
type VRegAllocator interface {
	Alloc(ty Type) Reg
}
