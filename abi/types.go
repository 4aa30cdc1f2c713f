// Package abi implements a machine-independent calling-convention engine.
//
// The engine is split in two halves. The SignatureCatalog interns function
// signatures and records, for each one, where every argument and return
// value lives (registers or caller-frame stack slots), as classified by a
// pluggable machine backend. The Callee type then drives per-function
// lowering: argument intake, return-value placement, call-site marshalling,
// frame layout, and prologue/epilogue generation, all expressed as
// backend-supplied pseudo-instructions.
package abi

import "fmt"

// ---------------------------------------------------------------------------
// Value types
// ---------------------------------------------------------------------------

// Type is the machine-level type of a value passed to or returned from a
// function.
type Type uint8

const (
	I8 Type = iota
	I16
	I32
	I64
	F32
	F64
	V128
)

// Bits returns the width of the type in bits.
func (t Type) Bits() uint32 {
	switch t {
	case I8:
		return 8
	case I16:
		return 16
	case I32, F32:
		return 32
	case I64, F64:
		return 64
	case V128:
		return 128
	}
	panic(fmt.Sprintf("abi: invalid type %d", uint8(t)))
}

// Bytes returns the width of the type in bytes.
func (t Type) Bytes() uint32 { return t.Bits() / 8 }

// IsInt reports whether the type belongs to the integer register class.
func (t Type) IsInt() bool { return t <= I64 }

// IsFloat reports whether the type belongs to the float register class.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// IsVector reports whether the type belongs to the vector register class.
func (t Type) IsVector() bool { return t == V128 }

// Class returns the register class values of this type are allocated to.
func (t Type) Class() RegClass {
	switch {
	case t.IsFloat():
		return ClassFloat
	case t.IsVector():
		return ClassVector
	default:
		return ClassInt
	}
}

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ---------------------------------------------------------------------------
// Calling conventions and extension policy
// ---------------------------------------------------------------------------

// CallConv identifies a calling convention.
type CallConv uint8

const (
	// ConvFast is the default internal convention.
	ConvFast CallConv = iota
	// ConvSystem is the platform convention used at embedder boundaries.
	ConvSystem
	// ConvTail supports guaranteed tail calls. Callees pop their incoming
	// stack arguments before returning.
	ConvTail
)

func (c CallConv) String() string {
	switch c {
	case ConvFast:
		return "fast"
	case ConvSystem:
		return "system"
	case ConvTail:
		return "tail"
	}
	return fmt.Sprintf("callconv(%d)", uint8(c))
}

// Extension describes how a narrow value is widened to a full machine word
// when the convention requires it.
type Extension uint8

const (
	ExtNone Extension = iota
	ExtZero
	ExtSign
)

func (e Extension) String() string {
	switch e {
	case ExtNone:
		return "none"
	case ExtZero:
		return "zext"
	case ExtSign:
		return "sext"
	}
	return fmt.Sprintf("ext(%d)", uint8(e))
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// RegClass is a register bank.
type RegClass uint8

const (
	ClassInt RegClass = iota
	ClassFloat
	ClassVector
)

func (c RegClass) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFloat:
		return "float"
	case ClassVector:
		return "vector"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

type regKind uint8

const (
	regInvalid regKind = iota
	regReal
	regVirtual
)

// Reg is a real (physical) or virtual register. The zero value is invalid.
type Reg struct {
	class RegClass
	num   uint16
	kind  regKind
}

// RealReg returns the physical register num of the given class.
func RealReg(class RegClass, num uint) Reg {
	return Reg{class: class, num: uint16(num), kind: regReal}
}

// VirtualReg returns the virtual register num of the given class.
func VirtualReg(class RegClass, num uint) Reg {
	return Reg{class: class, num: uint16(num), kind: regVirtual}
}

// Class returns the register's bank.
func (r Reg) Class() RegClass { return r.class }

// Num returns the register's index within its bank (or virtual namespace).
func (r Reg) Num() uint { return uint(r.num) }

// IsValid reports whether the register is real or virtual (vs the zero
// value).
func (r Reg) IsValid() bool { return r.kind != regInvalid }

// IsVirtual reports whether the register is virtual.
func (r Reg) IsVirtual() bool { return r.kind == regVirtual }

// IsReal reports whether the register is physical.
func (r Reg) IsReal() bool { return r.kind == regReal }

func (r Reg) String() string {
	if !r.IsValid() {
		return "reg(invalid)"
	}
	prefix := ""
	if r.IsVirtual() {
		prefix = "%"
	}
	switch r.class {
	case ClassInt:
		return fmt.Sprintf("%sx%d", prefix, r.num)
	case ClassFloat:
		return fmt.Sprintf("%sf%d", prefix, r.num)
	case ClassVector:
		return fmt.Sprintf("%sv%d", prefix, r.num)
	}
	return fmt.Sprintf("%sreg(%d,%d)", prefix, r.class, r.num)
}

// RegSet is a set of physical registers, at most 64 per class.
type RegSet struct {
	bits [3]uint64
}

// Add inserts a physical register into the set.
func (s *RegSet) Add(r Reg) {
	if !r.IsReal() {
		panic(fmt.Sprintf("abi: cannot add non-physical register %s to RegSet", r))
	}
	s.bits[r.class] |= 1 << r.num
}

// Remove deletes a physical register from the set; removing an absent
// register is a no-op.
func (s *RegSet) Remove(r Reg) {
	if !r.IsReal() {
		return
	}
	s.bits[r.class] &^= 1 << r.num
}

// Contains reports whether the set holds r.
func (s *RegSet) Contains(r Reg) bool {
	return r.IsReal() && s.bits[r.class]&(1<<r.num) != 0
}

// Count returns the number of registers in the set.
func (s *RegSet) Count() int {
	n := 0
	for _, b := range s.bits {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

// Members returns the registers in the set, ordered by class then number.
func (s *RegSet) Members() []Reg {
	var out []Reg
	for class, b := range s.bits {
		for num := uint(0); b != 0; num++ {
			if b&1 != 0 {
				out = append(out, RealReg(RegClass(class), num))
			}
			b >>= 1
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Signatures
// ---------------------------------------------------------------------------

// ParamPurpose distinguishes ordinary parameters from the struct-passing
// special cases.
type ParamPurpose uint8

const (
	// PurposeNormal is an ordinary value parameter.
	PurposeNormal ParamPurpose = iota
	// PurposeStructArg is a struct passed by copying StructSize bytes into
	// the argument area; the value register holds a pointer to the data.
	PurposeStructArg
	// PurposeStructReturn is a pointer parameter designating the buffer a
	// struct return is written to.
	PurposeStructReturn
)

func (p ParamPurpose) String() string {
	switch p {
	case PurposeNormal:
		return "normal"
	case PurposeStructArg:
		return "sarg"
	case PurposeStructReturn:
		return "sret"
	}
	return fmt.Sprintf("purpose(%d)", uint8(p))
}

// Param is a single parameter or return value in a signature.
type Param struct {
	Type    Type
	Ext     Extension
	Purpose ParamPurpose
	// StructSize is the byte size of the passed struct for
	// PurposeStructArg parameters and zero otherwise.
	StructSize uint32
}

// Signature describes a function's parameters, returns, and convention.
type Signature struct {
	Params   []Param
	Rets     []Param
	CallConv CallConv
}

// structReturnIndex returns the index of the PurposeStructReturn parameter,
// or -1 when the signature has none.
func (s *Signature) structReturnIndex() int {
	for i, p := range s.Params {
		if p.Purpose == PurposeStructReturn {
			return i
		}
	}
	return -1
}

// key builds a canonical interning key. Two signatures passing the same
// values the same way under the same convention share a key.
func (s *Signature) key() string {
	buf := make([]byte, 0, 2+6*(len(s.Params)+len(s.Rets)))
	buf = append(buf, byte(s.CallConv))
	encode := func(ps []Param) {
		buf = append(buf, byte(len(ps)>>8), byte(len(ps)))
		for _, p := range ps {
			buf = append(buf, byte(p.Type), byte(p.Ext), byte(p.Purpose),
				byte(p.StructSize>>24), byte(p.StructSize>>16),
				byte(p.StructSize>>8), byte(p.StructSize))
		}
	}
	encode(s.Params)
	encode(s.Rets)
	return string(buf)
}

func (s *Signature) String() string {
	return fmt.Sprintf("sig(%s: %d params, %d rets)", s.CallConv, len(s.Params), len(s.Rets))
}

// ArgsOrRets selects which side of a signature is being classified.
type ArgsOrRets uint8

const (
	ForArgs ArgsOrRets = iota
	ForRets
)

func (a ArgsOrRets) String() string {
	if a == ForRets {
		return "rets"
	}
	return "args"
}
