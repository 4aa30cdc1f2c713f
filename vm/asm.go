package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Assembler builds a code image one instruction at a time. Branch targets
// are labels; Finish resolves them into rel32 displacements measured from
// the start of the branching instruction.
//
// The assembler checks encodings, not semantics. In particular the g32
// contract, that the bound register covers offset+size, is the producer's
// promise about runtime values and cannot be checked here.
type Assembler struct {
	buf     []byte
	labels  []int64 // bound offset per label, -1 while unbound
	patches []patch
}

type patch struct {
	at      uint64 // offset of the rel32 field
	opStart uint64
	label   Label
}

// Label names a code position. Zero values are valid labels only after
// NewLabel hands them out.
type Label int

func NewAssembler() *Assembler { return &Assembler{} }

// NewLabel makes a fresh unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind pins a label to the current position. A label binds once.
func (a *Assembler) Bind(l Label) {
	if a.labels[l] != -1 {
		panic(fmt.Sprintf("vm: label %d bound twice", l))
	}
	a.labels[l] = int64(len(a.buf))
}

// Here returns the current code offset, for entry points.
func (a *Assembler) Here() uint64 { return uint64(len(a.buf)) }

// Finish resolves all label references and returns the code image.
func (a *Assembler) Finish() []byte {
	for _, p := range a.patches {
		target := a.labels[p.label]
		if target == -1 {
			panic(fmt.Sprintf("vm: label %d never bound", p.label))
		}
		rel := target - int64(p.opStart)
		if rel < math.MinInt32 || rel > math.MaxInt32 {
			panic("vm: branch displacement out of range")
		}
		binary.LittleEndian.PutUint32(a.buf[p.at:], uint32(int32(rel)))
	}
	a.patches = a.patches[:0]
	return a.buf
}

// Raw emitters.

func (a *Assembler) op(op Opcode) uint64 {
	start := uint64(len(a.buf))
	a.buf = append(a.buf, byte(op))
	return start
}

func (a *Assembler) b(v uint8) { a.buf = append(a.buf, v) }

func (a *Assembler) imm16(v uint16) {
	a.buf = binary.LittleEndian.AppendUint16(a.buf, v)
}

func (a *Assembler) imm32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

func (a *Assembler) imm64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

func (a *Assembler) ref(opStart uint64, l Label) {
	a.patches = append(a.patches, patch{at: uint64(len(a.buf)), opStart: opStart, label: l})
	a.imm32(0)
}

func checkReg(n uint8) uint8 {
	if n >= NumRegs {
		panic(fmt.Sprintf("vm: register %d out of range", n))
	}
	return n
}

func (a *Assembler) x(r XReg) { a.b(checkReg(uint8(r))) }
func (a *Assembler) f(r FReg) { a.b(checkReg(uint8(r))) }
func (a *Assembler) v(r VReg) { a.b(checkReg(uint8(r))) }

// Control flow.

func (a *Assembler) Ret() { a.op(OpRet) }

func (a *Assembler) Call(l Label) {
	s := a.op(OpCall)
	a.ref(s, l)
}

func (a *Assembler) Call1(arg0 XReg, l Label) {
	s := a.op(OpCall1)
	a.x(arg0)
	a.ref(s, l)
}

func (a *Assembler) Call2(arg0, arg1 XReg, l Label) {
	s := a.op(OpCall2)
	a.x(arg0)
	a.x(arg1)
	a.ref(s, l)
}

func (a *Assembler) Call3(arg0, arg1, arg2 XReg, l Label) {
	s := a.op(OpCall3)
	a.x(arg0)
	a.x(arg1)
	a.x(arg2)
	a.ref(s, l)
}

func (a *Assembler) Call4(arg0, arg1, arg2, arg3 XReg, l Label) {
	s := a.op(OpCall4)
	a.x(arg0)
	a.x(arg1)
	a.x(arg2)
	a.x(arg3)
	a.ref(s, l)
}

func (a *Assembler) CallIndirect(target XReg) {
	a.op(OpCallIndirect)
	a.x(target)
}

func (a *Assembler) Jump(l Label) {
	s := a.op(OpJump)
	a.ref(s, l)
}

func (a *Assembler) XJump(target XReg) {
	a.op(OpXJump)
	a.x(target)
}

func (a *Assembler) brIf1(op Opcode, cond XReg, l Label) {
	s := a.op(op)
	a.x(cond)
	a.ref(s, l)
}

func (a *Assembler) brIf2(op Opcode, ra, rb XReg, l Label) {
	s := a.op(op)
	a.x(ra)
	a.x(rb)
	a.ref(s, l)
}

func (a *Assembler) BrIf32(cond XReg, l Label)    { a.brIf1(OpBrIf32, cond, l) }
func (a *Assembler) BrIfNot32(cond XReg, l Label) { a.brIf1(OpBrIfNot32, cond, l) }

func (a *Assembler) BrIfXeq32(ra, rb XReg, l Label)    { a.brIf2(OpBrIfXeq32, ra, rb, l) }
func (a *Assembler) BrIfXneq32(ra, rb XReg, l Label)   { a.brIf2(OpBrIfXneq32, ra, rb, l) }
func (a *Assembler) BrIfXslt32(ra, rb XReg, l Label)   { a.brIf2(OpBrIfXslt32, ra, rb, l) }
func (a *Assembler) BrIfXslteq32(ra, rb XReg, l Label) { a.brIf2(OpBrIfXslteq32, ra, rb, l) }
func (a *Assembler) BrIfXult32(ra, rb XReg, l Label)   { a.brIf2(OpBrIfXult32, ra, rb, l) }
func (a *Assembler) BrIfXulteq32(ra, rb XReg, l Label) { a.brIf2(OpBrIfXulteq32, ra, rb, l) }
func (a *Assembler) BrIfXeq64(ra, rb XReg, l Label)    { a.brIf2(OpBrIfXeq64, ra, rb, l) }
func (a *Assembler) BrIfXneq64(ra, rb XReg, l Label)   { a.brIf2(OpBrIfXneq64, ra, rb, l) }
func (a *Assembler) BrIfXslt64(ra, rb XReg, l Label)   { a.brIf2(OpBrIfXslt64, ra, rb, l) }
func (a *Assembler) BrIfXslteq64(ra, rb XReg, l Label) { a.brIf2(OpBrIfXslteq64, ra, rb, l) }
func (a *Assembler) BrIfXult64(ra, rb XReg, l Label)   { a.brIf2(OpBrIfXult64, ra, rb, l) }
func (a *Assembler) BrIfXulteq64(ra, rb XReg, l Label) { a.brIf2(OpBrIfXulteq64, ra, rb, l) }

// BrTable32 emits a clamped jump table. At least one target is required
// since an index past the end lands on the final entry.
func (a *Assembler) BrTable32(idx XReg, targets ...Label) {
	if len(targets) == 0 {
		panic("vm: br_table32 needs at least one target")
	}
	s := a.op(OpBrTable32)
	a.x(idx)
	a.imm32(uint32(len(targets)))
	for _, l := range targets {
		a.ref(s, l)
	}
}

// Frames and stack adjustment.

func (a *Assembler) PushFrame() { a.op(OpPushFrame) }
func (a *Assembler) PopFrame()  { a.op(OpPopFrame) }

func (a *Assembler) PushFrameSave(first XReg, count uint8) {
	a.op(OpPushFrameSave)
	a.x(first)
	a.b(count)
}

func (a *Assembler) PopFrameRestore(first XReg, count uint8) {
	a.op(OpPopFrameRestore)
	a.x(first)
	a.b(count)
}

func (a *Assembler) StackAlloc32(amt uint32) {
	a.op(OpStackAlloc32)
	a.imm32(amt)
}

func (a *Assembler) StackFree32(amt uint32) {
	a.op(OpStackFree32)
	a.imm32(amt)
}

// Moves and constants.

func (a *Assembler) Xmov(dst, src XReg) {
	a.op(OpXmov)
	a.x(dst)
	a.x(src)
}

func (a *Assembler) Fmov(dst, src FReg) {
	a.op(OpFmov)
	a.f(dst)
	a.f(src)
}

func (a *Assembler) Vmov(dst, src VReg) {
	a.op(OpVmov)
	a.v(dst)
	a.v(src)
}

func (a *Assembler) Xconst8(dst XReg, v int8) {
	a.op(OpXconst8)
	a.x(dst)
	a.b(uint8(v))
}

func (a *Assembler) Xconst16(dst XReg, v int16) {
	a.op(OpXconst16)
	a.x(dst)
	a.imm16(uint16(v))
}

func (a *Assembler) Xconst32(dst XReg, v int32) {
	a.op(OpXconst32)
	a.x(dst)
	a.imm32(uint32(v))
}

func (a *Assembler) Xconst64(dst XReg, v int64) {
	a.op(OpXconst64)
	a.x(dst)
	a.imm64(uint64(v))
}

func (a *Assembler) Fconst32(dst FReg, v float32) {
	a.op(OpFconst32)
	a.f(dst)
	a.imm32(math.Float32bits(v))
}

func (a *Assembler) Fconst64(dst FReg, v float64) {
	a.op(OpFconst64)
	a.f(dst)
	a.imm64(math.Float64bits(v))
}

func (a *Assembler) Vconst128(dst VReg, lanes [16]byte) {
	a.op(OpVconst128)
	a.v(dst)
	a.buf = append(a.buf, lanes[:]...)
}

// Loads and stores.

func (a *Assembler) xO32(op Opcode, r XReg, base XReg, off int32) {
	a.op(op)
	a.x(r)
	a.x(base)
	a.imm32(uint32(off))
}

func (a *Assembler) XLoad8UO32(dst, base XReg, off int32)  { a.xO32(OpXLoad8UO32, dst, base, off) }
func (a *Assembler) XLoad8SO32(dst, base XReg, off int32)  { a.xO32(OpXLoad8SO32, dst, base, off) }
func (a *Assembler) XLoad16UO32(dst, base XReg, off int32) { a.xO32(OpXLoad16UO32, dst, base, off) }
func (a *Assembler) XLoad16SO32(dst, base XReg, off int32) { a.xO32(OpXLoad16SO32, dst, base, off) }
func (a *Assembler) XLoad32UO32(dst, base XReg, off int32) { a.xO32(OpXLoad32UO32, dst, base, off) }
func (a *Assembler) XLoad32SO32(dst, base XReg, off int32) { a.xO32(OpXLoad32SO32, dst, base, off) }
func (a *Assembler) XLoad64O32(dst, base XReg, off int32)  { a.xO32(OpXLoad64O32, dst, base, off) }
func (a *Assembler) XStore8O32(src, base XReg, off int32)  { a.xO32(OpXStore8O32, src, base, off) }
func (a *Assembler) XStore16O32(src, base XReg, off int32) { a.xO32(OpXStore16O32, src, base, off) }
func (a *Assembler) XStore32O32(src, base XReg, off int32) { a.xO32(OpXStore32O32, src, base, off) }
func (a *Assembler) XStore64O32(src, base XReg, off int32) { a.xO32(OpXStore64O32, src, base, off) }

func (a *Assembler) fO32(op Opcode, r FReg, base XReg, off int32) {
	a.op(op)
	a.f(r)
	a.x(base)
	a.imm32(uint32(off))
}

func (a *Assembler) FLoad32O32(dst FReg, base XReg, off int32)  { a.fO32(OpFLoad32O32, dst, base, off) }
func (a *Assembler) FLoad64O32(dst FReg, base XReg, off int32)  { a.fO32(OpFLoad64O32, dst, base, off) }
func (a *Assembler) FStore32O32(src FReg, base XReg, off int32) { a.fO32(OpFStore32O32, src, base, off) }
func (a *Assembler) FStore64O32(src FReg, base XReg, off int32) { a.fO32(OpFStore64O32, src, base, off) }

func (a *Assembler) vO32(op Opcode, r VReg, base XReg, off int32) {
	a.op(op)
	a.v(r)
	a.x(base)
	a.imm32(uint32(off))
}

func (a *Assembler) VLoad128O32(dst VReg, base XReg, off int32) { a.vO32(OpVLoad128O32, dst, base, off) }
func (a *Assembler) VStore128O32(src VReg, base XReg, off int32) {
	a.vO32(OpVStore128O32, src, base, off)
}

func (a *Assembler) XLoad32Z(dst, base XReg, off int32)  { a.xO32(OpXLoad32Z, dst, base, off) }
func (a *Assembler) XLoad64Z(dst, base XReg, off int32)  { a.xO32(OpXLoad64Z, dst, base, off) }
func (a *Assembler) XStore32Z(src, base XReg, off int32) { a.xO32(OpXStore32Z, src, base, off) }
func (a *Assembler) XStore64Z(src, base XReg, off int32) { a.xO32(OpXStore64Z, src, base, off) }

func (a *Assembler) xG32(op Opcode, r XReg, base, bound, addr XReg, off uint8) {
	a.op(op)
	a.x(r)
	a.x(base)
	a.x(bound)
	a.x(addr)
	a.b(off)
}

func (a *Assembler) XLoad8UG32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad8UG32, dst, base, bound, addr, off)
}

func (a *Assembler) XLoad8SG32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad8SG32, dst, base, bound, addr, off)
}

func (a *Assembler) XLoad16UG32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad16UG32, dst, base, bound, addr, off)
}

func (a *Assembler) XLoad16SG32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad16SG32, dst, base, bound, addr, off)
}

func (a *Assembler) XLoad32UG32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad32UG32, dst, base, bound, addr, off)
}

func (a *Assembler) XLoad32SG32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad32SG32, dst, base, bound, addr, off)
}

func (a *Assembler) XLoad64G32(dst, base, bound, addr XReg, off uint8) {
	a.xG32(OpXLoad64G32, dst, base, bound, addr, off)
}

func (a *Assembler) XStore8G32(src, base, bound, addr XReg, off uint8) {
	a.xG32(OpXStore8G32, src, base, bound, addr, off)
}

func (a *Assembler) XStore16G32(src, base, bound, addr XReg, off uint8) {
	a.xG32(OpXStore16G32, src, base, bound, addr, off)
}

func (a *Assembler) XStore32G32(src, base, bound, addr XReg, off uint8) {
	a.xG32(OpXStore32G32, src, base, bound, addr, off)
}

func (a *Assembler) XStore64G32(src, base, bound, addr XReg, off uint8) {
	a.xG32(OpXStore64G32, src, base, bound, addr, off)
}

func (a *Assembler) fG32(op Opcode, r FReg, base, bound, addr XReg, off uint8) {
	a.op(op)
	a.f(r)
	a.x(base)
	a.x(bound)
	a.x(addr)
	a.b(off)
}

func (a *Assembler) FLoad32G32(dst FReg, base, bound, addr XReg, off uint8) {
	a.fG32(OpFLoad32G32, dst, base, bound, addr, off)
}

func (a *Assembler) FLoad64G32(dst FReg, base, bound, addr XReg, off uint8) {
	a.fG32(OpFLoad64G32, dst, base, bound, addr, off)
}

func (a *Assembler) FStore32G32(src FReg, base, bound, addr XReg, off uint8) {
	a.fG32(OpFStore32G32, src, base, bound, addr, off)
}

func (a *Assembler) FStore64G32(src FReg, base, bound, addr XReg, off uint8) {
	a.fG32(OpFStore64G32, src, base, bound, addr, off)
}

func (a *Assembler) vG32(op Opcode, r VReg, base, bound, addr XReg, off uint8) {
	a.op(op)
	a.v(r)
	a.x(base)
	a.x(bound)
	a.x(addr)
	a.b(off)
}

func (a *Assembler) VLoad128G32(dst VReg, base, bound, addr XReg, off uint8) {
	a.vG32(OpVLoad128G32, dst, base, bound, addr, off)
}

func (a *Assembler) VStore128G32(src VReg, base, bound, addr XReg, off uint8) {
	a.vG32(OpVStore128G32, src, base, bound, addr, off)
}

func (a *Assembler) xG32Bne(op Opcode, r XReg, base, boundPtr XReg, boundOff uint8, addr XReg, off uint8) {
	a.op(op)
	a.x(r)
	a.x(base)
	a.x(boundPtr)
	a.b(boundOff)
	a.x(addr)
	a.b(off)
}

func (a *Assembler) XLoad32G32Bne(dst, base, boundPtr XReg, boundOff uint8, addr XReg, off uint8) {
	a.xG32Bne(OpXLoad32G32Bne, dst, base, boundPtr, boundOff, addr, off)
}

func (a *Assembler) XLoad64G32Bne(dst, base, boundPtr XReg, boundOff uint8, addr XReg, off uint8) {
	a.xG32Bne(OpXLoad64G32Bne, dst, base, boundPtr, boundOff, addr, off)
}

func (a *Assembler) XStore32G32Bne(src, base, boundPtr XReg, boundOff uint8, addr XReg, off uint8) {
	a.xG32Bne(OpXStore32G32Bne, src, base, boundPtr, boundOff, addr, off)
}

func (a *Assembler) XStore64G32Bne(src, base, boundPtr XReg, boundOff uint8, addr XReg, off uint8) {
	a.xG32Bne(OpXStore64G32Bne, src, base, boundPtr, boundOff, addr, off)
}

// Integer arithmetic and logic.

func (a *Assembler) x3(op Opcode, dst, ra, rb XReg) {
	a.op(op)
	a.x(dst)
	a.x(ra)
	a.x(rb)
}

func (a *Assembler) x2(op Opcode, dst, src XReg) {
	a.op(op)
	a.x(dst)
	a.x(src)
}

func (a *Assembler) XAdd32(dst, ra, rb XReg)  { a.x3(OpXAdd32, dst, ra, rb) }
func (a *Assembler) XAdd64(dst, ra, rb XReg)  { a.x3(OpXAdd64, dst, ra, rb) }
func (a *Assembler) XSub32(dst, ra, rb XReg)  { a.x3(OpXSub32, dst, ra, rb) }
func (a *Assembler) XSub64(dst, ra, rb XReg)  { a.x3(OpXSub64, dst, ra, rb) }
func (a *Assembler) XMul32(dst, ra, rb XReg)  { a.x3(OpXMul32, dst, ra, rb) }
func (a *Assembler) XMul64(dst, ra, rb XReg)  { a.x3(OpXMul64, dst, ra, rb) }
func (a *Assembler) XDiv32S(dst, ra, rb XReg) { a.x3(OpXDiv32S, dst, ra, rb) }
func (a *Assembler) XDiv64S(dst, ra, rb XReg) { a.x3(OpXDiv64S, dst, ra, rb) }
func (a *Assembler) XDiv32U(dst, ra, rb XReg) { a.x3(OpXDiv32U, dst, ra, rb) }
func (a *Assembler) XDiv64U(dst, ra, rb XReg) { a.x3(OpXDiv64U, dst, ra, rb) }
func (a *Assembler) XRem32S(dst, ra, rb XReg) { a.x3(OpXRem32S, dst, ra, rb) }
func (a *Assembler) XRem64S(dst, ra, rb XReg) { a.x3(OpXRem64S, dst, ra, rb) }
func (a *Assembler) XRem32U(dst, ra, rb XReg) { a.x3(OpXRem32U, dst, ra, rb) }
func (a *Assembler) XRem64U(dst, ra, rb XReg) { a.x3(OpXRem64U, dst, ra, rb) }
func (a *Assembler) XAnd32(dst, ra, rb XReg)  { a.x3(OpXAnd32, dst, ra, rb) }
func (a *Assembler) XAnd64(dst, ra, rb XReg)  { a.x3(OpXAnd64, dst, ra, rb) }
func (a *Assembler) XOr32(dst, ra, rb XReg)   { a.x3(OpXOr32, dst, ra, rb) }
func (a *Assembler) XOr64(dst, ra, rb XReg)   { a.x3(OpXOr64, dst, ra, rb) }
func (a *Assembler) XXor32(dst, ra, rb XReg)  { a.x3(OpXXor32, dst, ra, rb) }
func (a *Assembler) XXor64(dst, ra, rb XReg)  { a.x3(OpXXor64, dst, ra, rb) }
func (a *Assembler) XShl32(dst, ra, rb XReg)  { a.x3(OpXShl32, dst, ra, rb) }
func (a *Assembler) XShl64(dst, ra, rb XReg)  { a.x3(OpXShl64, dst, ra, rb) }
func (a *Assembler) XShrS32(dst, ra, rb XReg) { a.x3(OpXShrS32, dst, ra, rb) }
func (a *Assembler) XShrS64(dst, ra, rb XReg) { a.x3(OpXShrS64, dst, ra, rb) }
func (a *Assembler) XShrU32(dst, ra, rb XReg) { a.x3(OpXShrU32, dst, ra, rb) }
func (a *Assembler) XShrU64(dst, ra, rb XReg) { a.x3(OpXShrU64, dst, ra, rb) }
func (a *Assembler) XNeg32(dst, src XReg)     { a.x2(OpXNeg32, dst, src) }
func (a *Assembler) XNeg64(dst, src XReg)     { a.x2(OpXNeg64, dst, src) }

func (a *Assembler) XEq32(dst, ra, rb XReg)    { a.x3(OpXEq32, dst, ra, rb) }
func (a *Assembler) XNeq32(dst, ra, rb XReg)   { a.x3(OpXNeq32, dst, ra, rb) }
func (a *Assembler) XSlt32(dst, ra, rb XReg)   { a.x3(OpXSlt32, dst, ra, rb) }
func (a *Assembler) XSlteq32(dst, ra, rb XReg) { a.x3(OpXSlteq32, dst, ra, rb) }
func (a *Assembler) XUlt32(dst, ra, rb XReg)   { a.x3(OpXUlt32, dst, ra, rb) }
func (a *Assembler) XUlteq32(dst, ra, rb XReg) { a.x3(OpXUlteq32, dst, ra, rb) }
func (a *Assembler) XEq64(dst, ra, rb XReg)    { a.x3(OpXEq64, dst, ra, rb) }
func (a *Assembler) XNeq64(dst, ra, rb XReg)   { a.x3(OpXNeq64, dst, ra, rb) }
func (a *Assembler) XSlt64(dst, ra, rb XReg)   { a.x3(OpXSlt64, dst, ra, rb) }
func (a *Assembler) XSlteq64(dst, ra, rb XReg) { a.x3(OpXSlteq64, dst, ra, rb) }
func (a *Assembler) XUlt64(dst, ra, rb XReg)   { a.x3(OpXUlt64, dst, ra, rb) }
func (a *Assembler) XUlteq64(dst, ra, rb XReg) { a.x3(OpXUlteq64, dst, ra, rb) }

func (a *Assembler) XZext8(dst, src XReg)  { a.x2(OpXZext8, dst, src) }
func (a *Assembler) XZext16(dst, src XReg) { a.x2(OpXZext16, dst, src) }
func (a *Assembler) XZext32(dst, src XReg) { a.x2(OpXZext32, dst, src) }
func (a *Assembler) XSext8(dst, src XReg)  { a.x2(OpXSext8, dst, src) }
func (a *Assembler) XSext16(dst, src XReg) { a.x2(OpXSext16, dst, src) }
func (a *Assembler) XSext32(dst, src XReg) { a.x2(OpXSext32, dst, src) }

func (a *Assembler) XMulHi64S(dst, ra, rb XReg)           { a.x3(OpXMulHi64S, dst, ra, rb) }
func (a *Assembler) XMulHi64U(dst, ra, rb XReg)           { a.x3(OpXMulHi64U, dst, ra, rb) }
func (a *Assembler) XAddUoverflowTrap64(dst, ra, rb XReg) { a.x3(OpXAddUoverflowTrap64, dst, ra, rb) }
func (a *Assembler) XBswap32(dst, src XReg)               { a.x2(OpXBswap32, dst, src) }
func (a *Assembler) XBswap64(dst, src XReg)               { a.x2(OpXBswap64, dst, src) }

// Floating point.

func (a *Assembler) f3(op Opcode, dst, ra, rb FReg) {
	a.op(op)
	a.f(dst)
	a.f(ra)
	a.f(rb)
}

func (a *Assembler) f2(op Opcode, dst, src FReg) {
	a.op(op)
	a.f(dst)
	a.f(src)
}

func (a *Assembler) FAdd32(dst, ra, rb FReg)      { a.f3(OpFAdd32, dst, ra, rb) }
func (a *Assembler) FAdd64(dst, ra, rb FReg)      { a.f3(OpFAdd64, dst, ra, rb) }
func (a *Assembler) FSub32(dst, ra, rb FReg)      { a.f3(OpFSub32, dst, ra, rb) }
func (a *Assembler) FSub64(dst, ra, rb FReg)      { a.f3(OpFSub64, dst, ra, rb) }
func (a *Assembler) FMul32(dst, ra, rb FReg)      { a.f3(OpFMul32, dst, ra, rb) }
func (a *Assembler) FMul64(dst, ra, rb FReg)      { a.f3(OpFMul64, dst, ra, rb) }
func (a *Assembler) FDiv32(dst, ra, rb FReg)      { a.f3(OpFDiv32, dst, ra, rb) }
func (a *Assembler) FDiv64(dst, ra, rb FReg)      { a.f3(OpFDiv64, dst, ra, rb) }
func (a *Assembler) FNeg32(dst, src FReg)         { a.f2(OpFNeg32, dst, src) }
func (a *Assembler) FNeg64(dst, src FReg)         { a.f2(OpFNeg64, dst, src) }
func (a *Assembler) FAbs32(dst, src FReg)         { a.f2(OpFAbs32, dst, src) }
func (a *Assembler) FAbs64(dst, src FReg)         { a.f2(OpFAbs64, dst, src) }
func (a *Assembler) FCopySign32(dst, ra, rb FReg) { a.f3(OpFCopySign32, dst, ra, rb) }
func (a *Assembler) FCopySign64(dst, ra, rb FReg) { a.f3(OpFCopySign64, dst, ra, rb) }
func (a *Assembler) FTrunc32(dst, src FReg)       { a.f2(OpFTrunc32, dst, src) }
func (a *Assembler) FTrunc64(dst, src FReg)       { a.f2(OpFTrunc64, dst, src) }
func (a *Assembler) FSqrt32(dst, src FReg)        { a.f2(OpFSqrt32, dst, src) }
func (a *Assembler) FSqrt64(dst, src FReg)        { a.f2(OpFSqrt64, dst, src) }

func (a *Assembler) fCmp(op Opcode, dst XReg, ra, rb FReg) {
	a.op(op)
	a.x(dst)
	a.f(ra)
	a.f(rb)
}

func (a *Assembler) FEq32(dst XReg, ra, rb FReg)   { a.fCmp(OpFEq32, dst, ra, rb) }
func (a *Assembler) FEq64(dst XReg, ra, rb FReg)   { a.fCmp(OpFEq64, dst, ra, rb) }
func (a *Assembler) FLt32(dst XReg, ra, rb FReg)   { a.fCmp(OpFLt32, dst, ra, rb) }
func (a *Assembler) FLt64(dst XReg, ra, rb FReg)   { a.fCmp(OpFLt64, dst, ra, rb) }
func (a *Assembler) FLteq32(dst XReg, ra, rb FReg) { a.fCmp(OpFLteq32, dst, ra, rb) }
func (a *Assembler) FLteq64(dst XReg, ra, rb FReg) { a.fCmp(OpFLteq64, dst, ra, rb) }

func (a *Assembler) F32FromF64(dst, src FReg) { a.f2(OpF32FromF64, dst, src) }
func (a *Assembler) F64FromF32(dst, src FReg) { a.f2(OpF64FromF32, dst, src) }

func (a *Assembler) fFromX(op Opcode, dst FReg, src XReg) {
	a.op(op)
	a.f(dst)
	a.x(src)
}

func (a *Assembler) F32FromX32S(dst FReg, src XReg) { a.fFromX(OpF32FromX32S, dst, src) }
func (a *Assembler) F32FromX32U(dst FReg, src XReg) { a.fFromX(OpF32FromX32U, dst, src) }
func (a *Assembler) F32FromX64S(dst FReg, src XReg) { a.fFromX(OpF32FromX64S, dst, src) }
func (a *Assembler) F32FromX64U(dst FReg, src XReg) { a.fFromX(OpF32FromX64U, dst, src) }
func (a *Assembler) F64FromX32S(dst FReg, src XReg) { a.fFromX(OpF64FromX32S, dst, src) }
func (a *Assembler) F64FromX32U(dst FReg, src XReg) { a.fFromX(OpF64FromX32U, dst, src) }
func (a *Assembler) F64FromX64S(dst FReg, src XReg) { a.fFromX(OpF64FromX64S, dst, src) }
func (a *Assembler) F64FromX64U(dst FReg, src XReg) { a.fFromX(OpF64FromX64U, dst, src) }

func (a *Assembler) xFromF(op Opcode, dst XReg, src FReg) {
	a.op(op)
	a.x(dst)
	a.f(src)
}

func (a *Assembler) X32FromF32S(dst XReg, src FReg) { a.xFromF(OpX32FromF32S, dst, src) }
func (a *Assembler) X32FromF32U(dst XReg, src FReg) { a.xFromF(OpX32FromF32U, dst, src) }
func (a *Assembler) X32FromF64S(dst XReg, src FReg) { a.xFromF(OpX32FromF64S, dst, src) }
func (a *Assembler) X32FromF64U(dst XReg, src FReg) { a.xFromF(OpX32FromF64U, dst, src) }
func (a *Assembler) X64FromF32S(dst XReg, src FReg) { a.xFromF(OpX64FromF32S, dst, src) }
func (a *Assembler) X64FromF32U(dst XReg, src FReg) { a.xFromF(OpX64FromF32U, dst, src) }
func (a *Assembler) X64FromF64S(dst XReg, src FReg) { a.xFromF(OpX64FromF64S, dst, src) }
func (a *Assembler) X64FromF64U(dst XReg, src FReg) { a.xFromF(OpX64FromF64U, dst, src) }

func (a *Assembler) X32FromF32SSat(dst XReg, src FReg) { a.xFromF(OpX32FromF32SSat, dst, src) }
func (a *Assembler) X32FromF32USat(dst XReg, src FReg) { a.xFromF(OpX32FromF32USat, dst, src) }
func (a *Assembler) X32FromF64SSat(dst XReg, src FReg) { a.xFromF(OpX32FromF64SSat, dst, src) }
func (a *Assembler) X32FromF64USat(dst XReg, src FReg) { a.xFromF(OpX32FromF64USat, dst, src) }
func (a *Assembler) X64FromF32SSat(dst XReg, src FReg) { a.xFromF(OpX64FromF32SSat, dst, src) }
func (a *Assembler) X64FromF32USat(dst XReg, src FReg) { a.xFromF(OpX64FromF32USat, dst, src) }
func (a *Assembler) X64FromF64SSat(dst XReg, src FReg) { a.xFromF(OpX64FromF64SSat, dst, src) }
func (a *Assembler) X64FromF64USat(dst XReg, src FReg) { a.xFromF(OpX64FromF64USat, dst, src) }

// Vector.

func (a *Assembler) v3(op Opcode, dst, ra, rb VReg) {
	a.op(op)
	a.v(dst)
	a.v(ra)
	a.v(rb)
}

func (a *Assembler) VAddI32x4(dst, ra, rb VReg) { a.v3(OpVAddI32x4, dst, ra, rb) }
func (a *Assembler) VAddI64x2(dst, ra, rb VReg) { a.v3(OpVAddI64x2, dst, ra, rb) }
func (a *Assembler) VAddF32x4(dst, ra, rb VReg) { a.v3(OpVAddF32x4, dst, ra, rb) }

func (a *Assembler) VSplatX32(dst VReg, src XReg) {
	a.op(OpVSplatX32)
	a.v(dst)
	a.x(src)
}

func (a *Assembler) VSplatX64(dst VReg, src XReg) {
	a.op(OpVSplatX64)
	a.v(dst)
	a.x(src)
}

func (a *Assembler) VExtractX32(dst XReg, src VReg, lane uint8) {
	a.op(OpVExtractX32)
	a.x(dst)
	a.v(src)
	a.b(lane)
}

func (a *Assembler) VExtractX64(dst XReg, src VReg, lane uint8) {
	a.op(OpVExtractX64)
	a.x(dst)
	a.v(src)
	a.b(lane)
}

func (a *Assembler) VInsertX32(dst VReg, src XReg, lane uint8) {
	a.op(OpVInsertX32)
	a.v(dst)
	a.x(src)
	a.b(lane)
}

func (a *Assembler) VInsertX64(dst VReg, src XReg, lane uint8) {
	a.op(OpVInsertX64)
	a.v(dst)
	a.x(src)
	a.b(lane)
}

// Miscellaneous.

func (a *Assembler) CallIndirectHost(id uint8) {
	a.op(OpCallIndirectHost)
	a.b(id)
}

func (a *Assembler) Nop()  { a.op(OpNop) }
func (a *Assembler) Trap() { a.op(OpTrap) }
