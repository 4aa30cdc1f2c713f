package abi

import "fmt"

// ---------------------------------------------------------------------------
// Argument locations
// ---------------------------------------------------------------------------

// SlotKind distinguishes register slots from caller-frame stack slots.
type SlotKind uint8

const (
	SlotReg SlotKind = iota
	SlotStack
)

// ABIArgSlot is one location holding (part of) an argument or return value:
// either a physical register or an offset into the caller-frame argument
// area.
type ABIArgSlot struct {
	Kind SlotKind
	// Reg is the physical register, for SlotReg.
	Reg Reg
	// Offset is the byte offset into the argument area, for SlotStack.
	Offset int64
	// Type is the machine type stored in this slot.
	Type Type
	// Ext is the extension applied when the value is narrower than a word.
	Ext Extension
}

// RegSlot builds a register slot.
func RegSlot(reg Reg, ty Type, ext Extension) ABIArgSlot {
	if !reg.IsReal() {
		panic(fmt.Sprintf("abi: argument slot requires a physical register, got %s", reg))
	}
	return ABIArgSlot{Kind: SlotReg, Reg: reg, Type: ty, Ext: ext}
}

// StackSlot builds a caller-frame stack slot.
func StackSlot(offset int64, ty Type, ext Extension) ABIArgSlot {
	return ABIArgSlot{Kind: SlotStack, Offset: offset, Type: ty, Ext: ext}
}

func (s ABIArgSlot) String() string {
	if s.Kind == SlotReg {
		return fmt.Sprintf("reg(%s:%s,%s)", s.Reg, s.Type, s.Ext)
	}
	return fmt.Sprintf("stack(%d:%s,%s)", s.Offset, s.Type, s.Ext)
}

// ABIArgKind is the variant tag of an ABIArg.
type ABIArgKind uint8

const (
	// ArgSlots passes the value in one or more slots.
	ArgSlots ABIArgKind = iota
	// ArgStruct passes a struct by copying it into the argument area; the
	// location of the copy is implicit in the ABI.
	ArgStruct
	// ArgImplicitPtr passes a pointer to a caller-managed temporary; the
	// pointer itself occupies a slot.
	ArgImplicitPtr
)

// ABIArg describes where one argument or return value lives.
type ABIArg struct {
	Kind ABIArgKind

	// Slots holds the value's locations, for ArgSlots. Multi-slot values
	// are split across the slots in machine order.
	Slots []ABIArgSlot

	// Offset is the argument-area byte offset of the struct copy
	// (ArgStruct) or of the pointed-to temporary (ArgImplicitPtr).
	Offset int64
	// Size is the struct byte size, for ArgStruct.
	Size uint32

	// Pointer is the slot carrying the pointer, for ArgImplicitPtr.
	Pointer ABIArgSlot
	// PointeeType is the type stored through the pointer, for
	// ArgImplicitPtr.
	PointeeType Type

	// Purpose is the originating parameter's purpose.
	Purpose ParamPurpose
}

// SlotsArg builds an ABIArg from explicit slots.
func SlotsArg(slots []ABIArgSlot, purpose ParamPurpose) ABIArg {
	if len(slots) == 0 {
		panic("abi: ABIArg requires at least one slot")
	}
	return ABIArg{Kind: ArgSlots, Slots: slots, Purpose: purpose}
}

// RegArg builds a single-register ABIArg.
func RegArg(reg Reg, ty Type, ext Extension, purpose ParamPurpose) ABIArg {
	return SlotsArg([]ABIArgSlot{RegSlot(reg, ty, ext)}, purpose)
}

// StackArg builds a single-stack-slot ABIArg.
func StackArg(offset int64, ty Type, ext Extension, purpose ParamPurpose) ABIArg {
	return SlotsArg([]ABIArgSlot{StackSlot(offset, ty, ext)}, purpose)
}

// StructArg builds an argument passed as a copy in the argument area.
func StructArg(offset int64, size uint32) ABIArg {
	return ABIArg{Kind: ArgStruct, Offset: offset, Size: size, Purpose: PurposeStructArg}
}

// ImplicitPtrArg builds an argument passed as a pointer to a caller-managed
// temporary at the given argument-area offset.
func ImplicitPtrArg(pointer ABIArgSlot, offset int64, pointee Type, purpose ParamPurpose) ABIArg {
	return ABIArg{
		Kind:        ArgImplicitPtr,
		Pointer:     pointer,
		Offset:      offset,
		PointeeType: pointee,
		Purpose:     purpose,
	}
}

func (a ABIArg) String() string {
	switch a.Kind {
	case ArgSlots:
		return fmt.Sprintf("slots%v", a.Slots)
	case ArgStruct:
		return fmt.Sprintf("struct(off=%d,size=%d)", a.Offset, a.Size)
	case ArgImplicitPtr:
		return fmt.Sprintf("implicit-ptr(%s->off=%d:%s)", a.Pointer, a.Offset, a.PointeeType)
	}
	return fmt.Sprintf("arg(kind=%d)", uint8(a.Kind))
}

// ---------------------------------------------------------------------------
// ArgsAccumulator
// ---------------------------------------------------------------------------

// ArgsAccumulator collects the ABIArgs a machine backend produces while
// classifying one side of a signature. It appends into the catalog's shared
// arena and remembers where this batch began.
type ArgsAccumulator struct {
	args      *[]ABIArg
	start     int
	nonFormal bool
}

// NewArgsAccumulator wraps the shared backing slice.
func NewArgsAccumulator(backing *[]ABIArg) *ArgsAccumulator {
	return &ArgsAccumulator{args: backing, start: len(*backing)}
}

// Push appends a formal argument. Formal arguments must all precede
// non-formal ones.
func (a *ArgsAccumulator) Push(arg ABIArg) {
	if a.nonFormal {
		panic("abi: formal argument pushed after a non-formal argument")
	}
	*a.args = append(*a.args, arg)
}

// PushNonFormal appends a synthetic argument, such as the return-area
// pointer, after all formal arguments.
func (a *ArgsAccumulator) PushNonFormal(arg ABIArg) {
	a.nonFormal = true
	*a.args = append(*a.args, arg)
}

// Args returns the arguments accumulated since construction.
func (a *ArgsAccumulator) Args() []ABIArg {
	return (*a.args)[a.start:]
}
