package vm

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// Interpreter executes bytecode against a MachineState. The code image is
// immutable for the interpreter's lifetime; pc and lr are offsets into it.
type Interpreter struct {
	state *MachineState
	code  []byte
	pc    uint64
}

// NewInterpreter wires a machine state to a code image. Execution starts
// wherever SetPC points or where a call lands.
func NewInterpreter(state *MachineState, code []byte) *Interpreter {
	return &Interpreter{state: state, code: code}
}

func (i *Interpreter) State() *MachineState { return i.state }
func (i *Interpreter) PC() uint64           { return i.pc }
func (i *Interpreter) SetPC(pc uint64)      { i.pc = pc }

// Operand accessors. Offsets are absolute code offsets; a truncated
// instruction trips the slice bounds, which is a malformed image.

func (i *Interpreter) u8(off uint64) uint8   { return i.code[off] }
func (i *Interpreter) u16(off uint64) uint16 { return binary.LittleEndian.Uint16(i.code[off:]) }
func (i *Interpreter) u32(off uint64) uint32 { return binary.LittleEndian.Uint32(i.code[off:]) }
func (i *Interpreter) u64(off uint64) uint64 { return binary.LittleEndian.Uint64(i.code[off:]) }

func (i *Interpreter) x(off uint64) *XRegVal { return i.state.X(XReg(i.code[off])) }
func (i *Interpreter) f(off uint64) *FRegVal { return i.state.F(FReg(i.code[off])) }
func (i *Interpreter) v(off uint64) *VRegVal { return i.state.V(VReg(i.code[off])) }

// Branch targets are relative to the start of the branching instruction.
func relTarget(opPC uint64, raw uint32) uint64 {
	return uint64(int64(opPC) + int64(int32(raw)))
}

// guardG32 applies the 32-bit bounds check shared by the g32 and g32bne
// modes. The producer guarantees bound >= offset+size, which lets the
// check run in subtraction form without overflow.
func guardG32(addr32 uint32, bound uint64, offset uint8, size uint64) bool {
	return uint64(addr32) > bound-uint64(offset)-size
}

// Run executes until the program returns to the host, suspends for a host
// call, or traps.
func (i *Interpreter) Run() DoneReason {
	m := i.state
	for {
		opPC := i.pc
		op := Opcode(i.code[opPC])
		switch op {

		// Control flow.

		case OpRet:
			if m.lr == HostReturnAddr {
				return DoneReturnToHost{}
			}
			i.pc = m.lr

		case OpCall:
			m.lr = opPC + 5
			i.pc = relTarget(opPC, i.u32(opPC+1))
		case OpCall1:
			m.X(0).SetU64(i.x(opPC + 1).U64())
			m.lr = opPC + 6
			i.pc = relTarget(opPC, i.u32(opPC+2))
		case OpCall2:
			m.X(0).SetU64(i.x(opPC + 1).U64())
			m.X(1).SetU64(i.x(opPC + 2).U64())
			m.lr = opPC + 7
			i.pc = relTarget(opPC, i.u32(opPC+3))
		case OpCall3:
			m.X(0).SetU64(i.x(opPC + 1).U64())
			m.X(1).SetU64(i.x(opPC + 2).U64())
			m.X(2).SetU64(i.x(opPC + 3).U64())
			m.lr = opPC + 8
			i.pc = relTarget(opPC, i.u32(opPC+4))
		case OpCall4:
			m.X(0).SetU64(i.x(opPC + 1).U64())
			m.X(1).SetU64(i.x(opPC + 2).U64())
			m.X(2).SetU64(i.x(opPC + 3).U64())
			m.X(3).SetU64(i.x(opPC + 4).U64())
			m.lr = opPC + 9
			i.pc = relTarget(opPC, i.u32(opPC+5))
		case OpCallIndirect:
			m.lr = opPC + 2
			i.pc = i.x(opPC + 1).U64()

		case OpJump:
			i.pc = relTarget(opPC, i.u32(opPC+1))
		case OpXJump:
			i.pc = i.x(opPC + 1).U64()

		case OpBrIf32:
			if i.x(opPC+1).U32() != 0 {
				i.pc = relTarget(opPC, i.u32(opPC+2))
			} else {
				i.pc = opPC + 6
			}
		case OpBrIfNot32:
			if i.x(opPC+1).U32() == 0 {
				i.pc = relTarget(opPC, i.u32(opPC+2))
			} else {
				i.pc = opPC + 6
			}

		case OpBrIfXeq32:
			i.branchCmp(opPC, i.x(opPC+1).U32() == i.x(opPC+2).U32())
		case OpBrIfXneq32:
			i.branchCmp(opPC, i.x(opPC+1).U32() != i.x(opPC+2).U32())
		case OpBrIfXslt32:
			i.branchCmp(opPC, i.x(opPC+1).I32() < i.x(opPC+2).I32())
		case OpBrIfXslteq32:
			i.branchCmp(opPC, i.x(opPC+1).I32() <= i.x(opPC+2).I32())
		case OpBrIfXult32:
			i.branchCmp(opPC, i.x(opPC+1).U32() < i.x(opPC+2).U32())
		case OpBrIfXulteq32:
			i.branchCmp(opPC, i.x(opPC+1).U32() <= i.x(opPC+2).U32())
		case OpBrIfXeq64:
			i.branchCmp(opPC, i.x(opPC+1).U64() == i.x(opPC+2).U64())
		case OpBrIfXneq64:
			i.branchCmp(opPC, i.x(opPC+1).U64() != i.x(opPC+2).U64())
		case OpBrIfXslt64:
			i.branchCmp(opPC, i.x(opPC+1).I64() < i.x(opPC+2).I64())
		case OpBrIfXslteq64:
			i.branchCmp(opPC, i.x(opPC+1).I64() <= i.x(opPC+2).I64())
		case OpBrIfXult64:
			i.branchCmp(opPC, i.x(opPC+1).U64() < i.x(opPC+2).U64())
		case OpBrIfXulteq64:
			i.branchCmp(opPC, i.x(opPC+1).U64() <= i.x(opPC+2).U64())

		case OpBrTable32:
			count := i.u32(opPC + 2)
			idx := i.x(opPC + 1).U32()
			if idx >= count {
				idx = count - 1
			}
			i.pc = relTarget(opPC, i.u32(opPC+6+uint64(idx)*4))

		// Frames and stack adjustment.

		case OpPushFrame:
			if !m.push8(m.lr) {
				return DoneTrap{opPC, TrapStackOverflow}
			}
			if !m.push8(m.fp) {
				return DoneTrap{opPC, TrapStackOverflow}
			}
			m.fp = m.SP()
			i.pc = opPC + 1

		case OpPopFrame:
			m.X(SPReg).SetU64(m.fp)
			m.fp = m.pop8()
			m.lr = m.pop8()
			i.pc = opPC + 1

		case OpPushFrameSave:
			first := XReg(i.u8(opPC + 1))
			count := uint64(i.u8(opPC + 2))
			sp := m.SP()
			newSP := sp - 16 - count*8
			if !m.setSP(newSP) {
				return DoneTrap{opPC, TrapStackOverflow}
			}
			m.store64(sp-8, m.lr)
			m.store64(sp-16, m.fp)
			m.fp = sp - 16
			for k := uint64(0); k < count; k++ {
				m.store64(newSP+k*8, m.X(first+XReg(k)).U64())
			}
			i.pc = opPC + 3

		case OpPopFrameRestore:
			first := XReg(i.u8(opPC + 1))
			count := uint64(i.u8(opPC + 2))
			sp := m.SP()
			for k := uint64(0); k < count; k++ {
				m.X(first+XReg(k)).SetU64(m.load64(sp + k*8))
			}
			m.X(SPReg).SetU64(m.fp)
			m.fp = m.pop8()
			m.lr = m.pop8()
			i.pc = opPC + 3

		case OpStackAlloc32:
			amt := uint64(i.u32(opPC + 1))
			if !m.setSP(m.SP() - amt) {
				return DoneTrap{opPC, TrapStackOverflow}
			}
			i.pc = opPC + 5
		case OpStackFree32:
			m.X(SPReg).SetU64(m.SP() + uint64(i.u32(opPC+1)))
			i.pc = opPC + 5

		// Moves and constants.

		case OpXmov:
			i.x(opPC + 1).SetU64(i.x(opPC + 2).U64())
			i.pc = opPC + 3
		case OpFmov:
			i.f(opPC + 1).SetBits64(i.f(opPC + 2).Bits64())
			i.pc = opPC + 3
		case OpVmov:
			*i.v(opPC + 1) = *i.v(opPC + 2)
			i.pc = opPC + 3
		case OpXconst8:
			i.x(opPC + 1).SetI64(int64(int8(i.u8(opPC + 2))))
			i.pc = opPC + 3
		case OpXconst16:
			i.x(opPC + 1).SetI64(int64(int16(i.u16(opPC + 2))))
			i.pc = opPC + 4
		case OpXconst32:
			i.x(opPC + 1).SetI64(int64(int32(i.u32(opPC + 2))))
			i.pc = opPC + 6
		case OpXconst64:
			i.x(opPC + 1).SetU64(i.u64(opPC + 2))
			i.pc = opPC + 10
		case OpFconst32:
			i.f(opPC + 1).SetBits32(i.u32(opPC + 2))
			i.pc = opPC + 6
		case OpFconst64:
			i.f(opPC + 1).SetBits64(i.u64(opPC + 2))
			i.pc = opPC + 10
		case OpVconst128:
			var lanes [16]byte
			copy(lanes[:], i.code[opPC+2:opPC+18])
			*i.v(opPC + 1) = lanes
			i.pc = opPC + 18

		// O32 loads and stores: the producer vouches for the address.

		case OpXLoad8UO32:
			i.x(opPC + 1).SetU64(uint64(m.load8(i.addrO32(opPC))))
			i.pc = opPC + 7
		case OpXLoad8SO32:
			i.x(opPC + 1).SetI64(int64(int8(m.load8(i.addrO32(opPC)))))
			i.pc = opPC + 7
		case OpXLoad16UO32:
			i.x(opPC + 1).SetU64(uint64(m.load16(i.addrO32(opPC))))
			i.pc = opPC + 7
		case OpXLoad16SO32:
			i.x(opPC + 1).SetI64(int64(int16(m.load16(i.addrO32(opPC)))))
			i.pc = opPC + 7
		case OpXLoad32UO32:
			i.x(opPC + 1).SetU64(uint64(m.load32(i.addrO32(opPC))))
			i.pc = opPC + 7
		case OpXLoad32SO32:
			i.x(opPC + 1).SetI64(int64(int32(m.load32(i.addrO32(opPC)))))
			i.pc = opPC + 7
		case OpXLoad64O32:
			i.x(opPC + 1).SetU64(m.load64(i.addrO32(opPC)))
			i.pc = opPC + 7
		case OpFLoad32O32:
			i.f(opPC + 1).SetBits32(m.load32(i.addrO32(opPC)))
			i.pc = opPC + 7
		case OpFLoad64O32:
			i.f(opPC + 1).SetBits64(m.load64(i.addrO32(opPC)))
			i.pc = opPC + 7
		case OpVLoad128O32:
			*i.v(opPC + 1) = m.load128(i.addrO32(opPC))
			i.pc = opPC + 7
		case OpXStore8O32:
			m.store8(i.addrO32(opPC), uint8(i.x(opPC+1).U64()))
			i.pc = opPC + 7
		case OpXStore16O32:
			m.store16(i.addrO32(opPC), uint16(i.x(opPC+1).U64()))
			i.pc = opPC + 7
		case OpXStore32O32:
			m.store32(i.addrO32(opPC), i.x(opPC+1).U32())
			i.pc = opPC + 7
		case OpXStore64O32:
			m.store64(i.addrO32(opPC), i.x(opPC+1).U64())
			i.pc = opPC + 7
		case OpFStore32O32:
			m.store32(i.addrO32(opPC), binary.LittleEndian.Uint32(i.f(opPC+1)[:4]))
			i.pc = opPC + 7
		case OpFStore64O32:
			m.store64(i.addrO32(opPC), i.f(opPC+1).Bits64())
			i.pc = opPC + 7
		case OpVStore128O32:
			m.store128(i.addrO32(opPC), *i.v(opPC + 1))
			i.pc = opPC + 7

		// Z loads and stores: like o32 but the base register is
		// null-checked first.

		case OpXLoad32Z:
			if i.x(opPC+2).U64() == 0 {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(uint64(m.load32(i.addrO32(opPC))))
			i.pc = opPC + 7
		case OpXLoad64Z:
			if i.x(opPC+2).U64() == 0 {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(m.load64(i.addrO32(opPC)))
			i.pc = opPC + 7
		case OpXStore32Z:
			if i.x(opPC+2).U64() == 0 {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store32(i.addrO32(opPC), i.x(opPC+1).U32())
			i.pc = opPC + 7
		case OpXStore64Z:
			if i.x(opPC+2).U64() == 0 {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store64(i.addrO32(opPC), i.x(opPC+1).U64())
			i.pc = opPC + 7

		// G32 loads and stores: a 32-bit guest address is checked against
		// a bound register before the access.

		case OpXLoad8UG32:
			addr, ok := i.addrG32(opPC, 1)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(uint64(m.load8(addr)))
			i.pc = opPC + 6
		case OpXLoad8SG32:
			addr, ok := i.addrG32(opPC, 1)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetI64(int64(int8(m.load8(addr))))
			i.pc = opPC + 6
		case OpXLoad16UG32:
			addr, ok := i.addrG32(opPC, 2)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(uint64(m.load16(addr)))
			i.pc = opPC + 6
		case OpXLoad16SG32:
			addr, ok := i.addrG32(opPC, 2)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetI64(int64(int16(m.load16(addr))))
			i.pc = opPC + 6
		case OpXLoad32UG32:
			addr, ok := i.addrG32(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(uint64(m.load32(addr)))
			i.pc = opPC + 6
		case OpXLoad32SG32:
			addr, ok := i.addrG32(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetI64(int64(int32(m.load32(addr))))
			i.pc = opPC + 6
		case OpXLoad64G32:
			addr, ok := i.addrG32(opPC, 8)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(m.load64(addr))
			i.pc = opPC + 6
		case OpFLoad32G32:
			addr, ok := i.addrG32(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.f(opPC + 1).SetBits32(m.load32(addr))
			i.pc = opPC + 6
		case OpFLoad64G32:
			addr, ok := i.addrG32(opPC, 8)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.f(opPC + 1).SetBits64(m.load64(addr))
			i.pc = opPC + 6
		case OpVLoad128G32:
			addr, ok := i.addrG32(opPC, 16)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			*i.v(opPC + 1) = m.load128(addr)
			i.pc = opPC + 6
		case OpXStore8G32:
			addr, ok := i.addrG32(opPC, 1)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store8(addr, uint8(i.x(opPC+1).U64()))
			i.pc = opPC + 6
		case OpXStore16G32:
			addr, ok := i.addrG32(opPC, 2)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store16(addr, uint16(i.x(opPC+1).U64()))
			i.pc = opPC + 6
		case OpXStore32G32:
			addr, ok := i.addrG32(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store32(addr, i.x(opPC+1).U32())
			i.pc = opPC + 6
		case OpXStore64G32:
			addr, ok := i.addrG32(opPC, 8)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store64(addr, i.x(opPC+1).U64())
			i.pc = opPC + 6
		case OpFStore32G32:
			addr, ok := i.addrG32(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store32(addr, binary.LittleEndian.Uint32(i.f(opPC+1)[:4]))
			i.pc = opPC + 6
		case OpFStore64G32:
			addr, ok := i.addrG32(opPC, 8)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store64(addr, i.f(opPC+1).Bits64())
			i.pc = opPC + 6
		case OpVStore128G32:
			addr, ok := i.addrG32(opPC, 16)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store128(addr, *i.v(opPC + 1))
			i.pc = opPC + 6

		// G32Bne: as g32, with the bound loaded from memory.

		case OpXLoad32G32Bne:
			addr, ok := i.addrG32Bne(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(uint64(m.load32(addr)))
			i.pc = opPC + 7
		case OpXLoad64G32Bne:
			addr, ok := i.addrG32Bne(opPC, 8)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			i.x(opPC + 1).SetU64(m.load64(addr))
			i.pc = opPC + 7
		case OpXStore32G32Bne:
			addr, ok := i.addrG32Bne(opPC, 4)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store32(addr, i.x(opPC+1).U32())
			i.pc = opPC + 7
		case OpXStore64G32Bne:
			addr, ok := i.addrG32Bne(opPC, 8)
			if !ok {
				return DoneTrap{opPC, TrapMemoryOutOfBounds}
			}
			m.store64(addr, i.x(opPC+1).U64())
			i.pc = opPC + 7

		// Integer arithmetic and logic. 32-bit results define only the
		// low half of the destination cell.

		case OpXAdd32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() + i.x(opPC+3).U32())
			i.pc = opPC + 4
		case OpXAdd64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() + i.x(opPC+3).U64())
			i.pc = opPC + 4
		case OpXSub32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() - i.x(opPC+3).U32())
			i.pc = opPC + 4
		case OpXSub64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() - i.x(opPC+3).U64())
			i.pc = opPC + 4
		case OpXMul32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() * i.x(opPC+3).U32())
			i.pc = opPC + 4
		case OpXMul64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() * i.x(opPC+3).U64())
			i.pc = opPC + 4

		case OpXDiv32S:
			a, b := i.x(opPC+2).I32(), i.x(opPC+3).I32()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			if a == math.MinInt32 && b == -1 {
				return DoneTrap{opPC, TrapIntegerOverflow}
			}
			i.x(opPC + 1).SetI32(a / b)
			i.pc = opPC + 4
		case OpXDiv64S:
			a, b := i.x(opPC+2).I64(), i.x(opPC+3).I64()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			if a == math.MinInt64 && b == -1 {
				return DoneTrap{opPC, TrapIntegerOverflow}
			}
			i.x(opPC + 1).SetI64(a / b)
			i.pc = opPC + 4
		case OpXDiv32U:
			b := i.x(opPC + 3).U32()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() / b)
			i.pc = opPC + 4
		case OpXDiv64U:
			b := i.x(opPC + 3).U64()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() / b)
			i.pc = opPC + 4
		case OpXRem32S:
			a, b := i.x(opPC+2).I32(), i.x(opPC+3).I32()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			if b == -1 {
				i.x(opPC + 1).SetI32(0)
			} else {
				i.x(opPC + 1).SetI32(a % b)
			}
			i.pc = opPC + 4
		case OpXRem64S:
			a, b := i.x(opPC+2).I64(), i.x(opPC+3).I64()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			if b == -1 {
				i.x(opPC + 1).SetI64(0)
			} else {
				i.x(opPC + 1).SetI64(a % b)
			}
			i.pc = opPC + 4
		case OpXRem32U:
			b := i.x(opPC + 3).U32()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() % b)
			i.pc = opPC + 4
		case OpXRem64U:
			b := i.x(opPC + 3).U64()
			if b == 0 {
				return DoneTrap{opPC, TrapDivideByZero}
			}
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() % b)
			i.pc = opPC + 4

		case OpXAnd32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() & i.x(opPC+3).U32())
			i.pc = opPC + 4
		case OpXAnd64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() & i.x(opPC+3).U64())
			i.pc = opPC + 4
		case OpXOr32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() | i.x(opPC+3).U32())
			i.pc = opPC + 4
		case OpXOr64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() | i.x(opPC+3).U64())
			i.pc = opPC + 4
		case OpXXor32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() ^ i.x(opPC+3).U32())
			i.pc = opPC + 4
		case OpXXor64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() ^ i.x(opPC+3).U64())
			i.pc = opPC + 4

		case OpXShl32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() << (i.x(opPC+3).U32() & 31))
			i.pc = opPC + 4
		case OpXShl64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() << (i.x(opPC+3).U64() & 63))
			i.pc = opPC + 4
		case OpXShrS32:
			i.x(opPC + 1).SetI32(i.x(opPC+2).I32() >> (i.x(opPC+3).U32() & 31))
			i.pc = opPC + 4
		case OpXShrS64:
			i.x(opPC + 1).SetI64(i.x(opPC+2).I64() >> (i.x(opPC+3).U64() & 63))
			i.pc = opPC + 4
		case OpXShrU32:
			i.x(opPC + 1).SetU32(i.x(opPC+2).U32() >> (i.x(opPC+3).U32() & 31))
			i.pc = opPC + 4
		case OpXShrU64:
			i.x(opPC + 1).SetU64(i.x(opPC+2).U64() >> (i.x(opPC+3).U64() & 63))
			i.pc = opPC + 4
		case OpXNeg32:
			i.x(opPC + 1).SetU32(-i.x(opPC + 2).U32())
			i.pc = opPC + 3
		case OpXNeg64:
			i.x(opPC + 1).SetU64(-i.x(opPC + 2).U64())
			i.pc = opPC + 3

		case OpXEq32:
			i.setBool(opPC, i.x(opPC+2).U32() == i.x(opPC+3).U32())
		case OpXNeq32:
			i.setBool(opPC, i.x(opPC+2).U32() != i.x(opPC+3).U32())
		case OpXSlt32:
			i.setBool(opPC, i.x(opPC+2).I32() < i.x(opPC+3).I32())
		case OpXSlteq32:
			i.setBool(opPC, i.x(opPC+2).I32() <= i.x(opPC+3).I32())
		case OpXUlt32:
			i.setBool(opPC, i.x(opPC+2).U32() < i.x(opPC+3).U32())
		case OpXUlteq32:
			i.setBool(opPC, i.x(opPC+2).U32() <= i.x(opPC+3).U32())
		case OpXEq64:
			i.setBool(opPC, i.x(opPC+2).U64() == i.x(opPC+3).U64())
		case OpXNeq64:
			i.setBool(opPC, i.x(opPC+2).U64() != i.x(opPC+3).U64())
		case OpXSlt64:
			i.setBool(opPC, i.x(opPC+2).I64() < i.x(opPC+3).I64())
		case OpXSlteq64:
			i.setBool(opPC, i.x(opPC+2).I64() <= i.x(opPC+3).I64())
		case OpXUlt64:
			i.setBool(opPC, i.x(opPC+2).U64() < i.x(opPC+3).U64())
		case OpXUlteq64:
			i.setBool(opPC, i.x(opPC+2).U64() <= i.x(opPC+3).U64())

		case OpXZext8:
			i.x(opPC + 1).SetU64(uint64(uint8(i.x(opPC + 2).U64())))
			i.pc = opPC + 3
		case OpXZext16:
			i.x(opPC + 1).SetU64(uint64(uint16(i.x(opPC + 2).U64())))
			i.pc = opPC + 3
		case OpXZext32:
			i.x(opPC + 1).SetU64(uint64(i.x(opPC + 2).U32()))
			i.pc = opPC + 3
		case OpXSext8:
			i.x(opPC + 1).SetI64(int64(int8(i.x(opPC + 2).U64())))
			i.pc = opPC + 3
		case OpXSext16:
			i.x(opPC + 1).SetI64(int64(int16(i.x(opPC + 2).U64())))
			i.pc = opPC + 3
		case OpXSext32:
			i.x(opPC + 1).SetI64(int64(i.x(opPC + 2).I32()))
			i.pc = opPC + 3

		case OpXMulHi64S:
			a, b := i.x(opPC+2).I64(), i.x(opPC+3).I64()
			hi, _ := bits.Mul64(uint64(a), uint64(b))
			t := int64(hi)
			if a < 0 {
				t -= b
			}
			if b < 0 {
				t -= a
			}
			i.x(opPC + 1).SetI64(t)
			i.pc = opPC + 4
		case OpXMulHi64U:
			hi, _ := bits.Mul64(i.x(opPC+2).U64(), i.x(opPC+3).U64())
			i.x(opPC + 1).SetU64(hi)
			i.pc = opPC + 4
		case OpXAddUoverflowTrap64:
			sum, carry := bits.Add64(i.x(opPC+2).U64(), i.x(opPC+3).U64(), 0)
			if carry != 0 {
				return DoneTrap{opPC, TrapIntegerOverflow}
			}
			i.x(opPC + 1).SetU64(sum)
			i.pc = opPC + 4
		case OpXBswap32:
			i.x(opPC + 1).SetU32(bits.ReverseBytes32(i.x(opPC + 2).U32()))
			i.pc = opPC + 3
		case OpXBswap64:
			i.x(opPC + 1).SetU64(bits.ReverseBytes64(i.x(opPC + 2).U64()))
			i.pc = opPC + 3

		// Floating point.

		case OpFAdd32:
			i.f(opPC + 1).SetF32(i.f(opPC+2).F32() + i.f(opPC+3).F32())
			i.pc = opPC + 4
		case OpFAdd64:
			i.f(opPC + 1).SetF64(i.f(opPC+2).F64() + i.f(opPC+3).F64())
			i.pc = opPC + 4
		case OpFSub32:
			i.f(opPC + 1).SetF32(i.f(opPC+2).F32() - i.f(opPC+3).F32())
			i.pc = opPC + 4
		case OpFSub64:
			i.f(opPC + 1).SetF64(i.f(opPC+2).F64() - i.f(opPC+3).F64())
			i.pc = opPC + 4
		case OpFMul32:
			i.f(opPC + 1).SetF32(i.f(opPC+2).F32() * i.f(opPC+3).F32())
			i.pc = opPC + 4
		case OpFMul64:
			i.f(opPC + 1).SetF64(i.f(opPC+2).F64() * i.f(opPC+3).F64())
			i.pc = opPC + 4
		case OpFDiv32:
			i.f(opPC + 1).SetF32(i.f(opPC+2).F32() / i.f(opPC+3).F32())
			i.pc = opPC + 4
		case OpFDiv64:
			i.f(opPC + 1).SetF64(i.f(opPC+2).F64() / i.f(opPC+3).F64())
			i.pc = opPC + 4
		case OpFNeg32:
			i.f(opPC + 1).SetBits32(binary.LittleEndian.Uint32(i.f(opPC+2)[:4]) ^ 0x8000_0000)
			i.pc = opPC + 3
		case OpFNeg64:
			i.f(opPC + 1).SetBits64(i.f(opPC+2).Bits64() ^ 0x8000_0000_0000_0000)
			i.pc = opPC + 3
		case OpFAbs32:
			i.f(opPC + 1).SetBits32(binary.LittleEndian.Uint32(i.f(opPC+2)[:4]) &^ 0x8000_0000)
			i.pc = opPC + 3
		case OpFAbs64:
			i.f(opPC + 1).SetBits64(i.f(opPC+2).Bits64() &^ 0x8000_0000_0000_0000)
			i.pc = opPC + 3
		case OpFCopySign32:
			a := binary.LittleEndian.Uint32(i.f(opPC+2)[:4])
			b := binary.LittleEndian.Uint32(i.f(opPC+3)[:4])
			i.f(opPC + 1).SetBits32(a&^0x8000_0000 | b&0x8000_0000)
			i.pc = opPC + 4
		case OpFCopySign64:
			a, b := i.f(opPC+2).Bits64(), i.f(opPC+3).Bits64()
			i.f(opPC + 1).SetBits64(a &^ (1 << 63) | b&(1<<63))
			i.pc = opPC + 4

		case OpFEq32:
			i.setBool(opPC, i.f(opPC+2).F32() == i.f(opPC+3).F32())
		case OpFEq64:
			i.setBool(opPC, i.f(opPC+2).F64() == i.f(opPC+3).F64())
		case OpFLt32:
			i.setBool(opPC, i.f(opPC+2).F32() < i.f(opPC+3).F32())
		case OpFLt64:
			i.setBool(opPC, i.f(opPC+2).F64() < i.f(opPC+3).F64())
		case OpFLteq32:
			i.setBool(opPC, i.f(opPC+2).F32() <= i.f(opPC+3).F32())
		case OpFLteq64:
			i.setBool(opPC, i.f(opPC+2).F64() <= i.f(opPC+3).F64())

		case OpFTrunc32:
			i.f(opPC + 1).SetF32(float32(math.Trunc(float64(i.f(opPC + 2).F32()))))
			i.pc = opPC + 3
		case OpFTrunc64:
			i.f(opPC + 1).SetF64(math.Trunc(i.f(opPC + 2).F64()))
			i.pc = opPC + 3
		case OpFSqrt32:
			i.f(opPC + 1).SetF32(float32(math.Sqrt(float64(i.f(opPC + 2).F32()))))
			i.pc = opPC + 3
		case OpFSqrt64:
			i.f(opPC + 1).SetF64(math.Sqrt(i.f(opPC + 2).F64()))
			i.pc = opPC + 3

		case OpF32FromF64:
			i.f(opPC + 1).SetF32(float32(i.f(opPC + 2).F64()))
			i.pc = opPC + 3
		case OpF64FromF32:
			i.f(opPC + 1).SetF64(float64(i.f(opPC + 2).F32()))
			i.pc = opPC + 3

		case OpF32FromX32S:
			i.f(opPC + 1).SetF32(float32(i.x(opPC + 2).I32()))
			i.pc = opPC + 3
		case OpF32FromX32U:
			i.f(opPC + 1).SetF32(float32(i.x(opPC + 2).U32()))
			i.pc = opPC + 3
		case OpF32FromX64S:
			i.f(opPC + 1).SetF32(float32(i.x(opPC + 2).I64()))
			i.pc = opPC + 3
		case OpF32FromX64U:
			i.f(opPC + 1).SetF32(float32(i.x(opPC + 2).U64()))
			i.pc = opPC + 3
		case OpF64FromX32S:
			i.f(opPC + 1).SetF64(float64(i.x(opPC + 2).I32()))
			i.pc = opPC + 3
		case OpF64FromX32U:
			i.f(opPC + 1).SetF64(float64(i.x(opPC + 2).U32()))
			i.pc = opPC + 3
		case OpF64FromX64S:
			i.f(opPC + 1).SetF64(float64(i.x(opPC + 2).I64()))
			i.pc = opPC + 3
		case OpF64FromX64U:
			i.f(opPC + 1).SetF64(float64(i.x(opPC + 2).U64()))
			i.pc = opPC + 3

		case OpX32FromF32S:
			t, kind, ok := checkedF32ToInt(i.f(opPC+2).F32(), 32)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetI32(int32(t))
			i.pc = opPC + 3
		case OpX32FromF32U:
			t, kind, ok := checkedF32ToUint(i.f(opPC+2).F32(), 32)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetU32(uint32(t))
			i.pc = opPC + 3
		case OpX32FromF64S:
			t, kind, ok := checkedF64ToInt(i.f(opPC+2).F64(), 32)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetI32(int32(t))
			i.pc = opPC + 3
		case OpX32FromF64U:
			t, kind, ok := checkedF64ToUint(i.f(opPC+2).F64(), 32)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetU32(uint32(t))
			i.pc = opPC + 3
		case OpX64FromF32S:
			t, kind, ok := checkedF32ToInt(i.f(opPC+2).F32(), 64)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetI64(t)
			i.pc = opPC + 3
		case OpX64FromF32U:
			t, kind, ok := checkedF32ToUint(i.f(opPC+2).F32(), 64)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetU64(t)
			i.pc = opPC + 3
		case OpX64FromF64S:
			t, kind, ok := checkedF64ToInt(i.f(opPC+2).F64(), 64)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetI64(t)
			i.pc = opPC + 3
		case OpX64FromF64U:
			t, kind, ok := checkedF64ToUint(i.f(opPC+2).F64(), 64)
			if !ok {
				return DoneTrap{opPC, kind}
			}
			i.x(opPC + 1).SetU64(t)
			i.pc = opPC + 3

		case OpX32FromF32SSat:
			i.x(opPC + 1).SetI32(satF64ToI32(float64(i.f(opPC + 2).F32())))
			i.pc = opPC + 3
		case OpX32FromF32USat:
			i.x(opPC + 1).SetU32(satF64ToU32(float64(i.f(opPC + 2).F32())))
			i.pc = opPC + 3
		case OpX32FromF64SSat:
			i.x(opPC + 1).SetI32(satF64ToI32(i.f(opPC + 2).F64()))
			i.pc = opPC + 3
		case OpX32FromF64USat:
			i.x(opPC + 1).SetU32(satF64ToU32(i.f(opPC + 2).F64()))
			i.pc = opPC + 3
		case OpX64FromF32SSat:
			i.x(opPC + 1).SetI64(satF64ToI64(float64(i.f(opPC + 2).F32())))
			i.pc = opPC + 3
		case OpX64FromF32USat:
			i.x(opPC + 1).SetU64(satF64ToU64(float64(i.f(opPC + 2).F32())))
			i.pc = opPC + 3
		case OpX64FromF64SSat:
			i.x(opPC + 1).SetI64(satF64ToI64(i.f(opPC + 2).F64()))
			i.pc = opPC + 3
		case OpX64FromF64USat:
			i.x(opPC + 1).SetU64(satF64ToU64(i.f(opPC + 2).F64()))
			i.pc = opPC + 3

		// Vector.

		case OpVAddI32x4:
			a, b := i.v(opPC+2).U32x4(), i.v(opPC+3).U32x4()
			var out [4]uint32
			for k := range out {
				out[k] = a[k] + b[k]
			}
			i.v(opPC + 1).SetU32x4(out)
			i.pc = opPC + 4
		case OpVAddI64x2:
			a, b := i.v(opPC+2).U64x2(), i.v(opPC+3).U64x2()
			i.v(opPC + 1).SetU64x2([2]uint64{a[0] + b[0], a[1] + b[1]})
			i.pc = opPC + 4
		case OpVAddF32x4:
			a, b := i.v(opPC+2).F32x4(), i.v(opPC+3).F32x4()
			var out [4]float32
			for k := range out {
				out[k] = a[k] + b[k]
			}
			i.v(opPC + 1).SetF32x4(out)
			i.pc = opPC + 4
		case OpVSplatX32:
			lane := i.x(opPC + 2).U32()
			i.v(opPC + 1).SetU32x4([4]uint32{lane, lane, lane, lane})
			i.pc = opPC + 3
		case OpVSplatX64:
			lane := i.x(opPC + 2).U64()
			i.v(opPC + 1).SetU64x2([2]uint64{lane, lane})
			i.pc = opPC + 3
		case OpVExtractX32:
			lanes := i.v(opPC + 2).U32x4()
			i.x(opPC + 1).SetU32(lanes[i.u8(opPC+3)&3])
			i.pc = opPC + 4
		case OpVExtractX64:
			lanes := i.v(opPC + 2).U64x2()
			i.x(opPC + 1).SetU64(lanes[i.u8(opPC+3)&1])
			i.pc = opPC + 4
		case OpVInsertX32:
			lanes := i.v(opPC + 1).U32x4()
			lanes[i.u8(opPC+3)&3] = i.x(opPC + 2).U32()
			i.v(opPC + 1).SetU32x4(lanes)
			i.pc = opPC + 4
		case OpVInsertX64:
			lanes := i.v(opPC + 1).U64x2()
			lanes[i.u8(opPC+3)&1] = i.x(opPC + 2).U64()
			i.v(opPC + 1).SetU64x2(lanes)
			i.pc = opPC + 4

		// Miscellaneous.

		case OpCallIndirectHost:
			return DoneCallIndirectHost{ID: i.u8(opPC + 1), Resume: opPC + 2}
		case OpNop:
			i.pc = opPC + 1
		case OpTrap:
			return DoneTrap{opPC, TrapUnreachable}

		default:
			return DoneTrap{opPC, TrapDisabledOpcode}
		}
	}
}

// branchCmp finishes a two-register conditional branch whose rel32 sits
// at opPC+3.
func (i *Interpreter) branchCmp(opPC uint64, taken bool) {
	if taken {
		i.pc = relTarget(opPC, i.u32(opPC+3))
	} else {
		i.pc = opPC + 7
	}
}

// setBool writes a 0/1 comparison result into the low 32 bits of the
// destination at opPC+1 and steps past the 4-byte instruction.
func (i *Interpreter) setBool(opPC uint64, v bool) {
	var out uint32
	if v {
		out = 1
	}
	i.x(opPC + 1).SetU32(out)
	i.pc = opPC + 4
}

// addrO32 resolves the o32 (and z, after its null check) operand layout:
// dst/src at +1, base at +2, signed 32-bit displacement at +3.
func (i *Interpreter) addrO32(opPC uint64) uint64 {
	base := i.x(opPC + 2).U64()
	return uint64(int64(base) + int64(int32(i.u32(opPC+3))))
}

// addrG32 resolves the g32 layout: dst/src, base, bound, addr registers
// at +1..+4 and a u8 displacement at +5. ok is false when the access
// falls outside [0, bound).
func (i *Interpreter) addrG32(opPC uint64, size uint64) (uint64, bool) {
	addr32 := i.x(opPC + 4).U32()
	bound := i.x(opPC + 3).U64()
	offset := i.u8(opPC + 5)
	if guardG32(addr32, bound, offset, size) {
		return 0, false
	}
	return i.x(opPC+2).U64() + uint64(addr32) + uint64(offset), true
}

// addrG32Bne resolves the g32bne layout: dst/src, base, bound-pointer
// registers at +1..+3, a u8 bound displacement at +4, the addr register
// at +5, and a u8 displacement at +6. The bound is loaded from memory
// before the check.
func (i *Interpreter) addrG32Bne(opPC uint64, size uint64) (uint64, bool) {
	boundPtr := i.x(opPC + 3).U64()
	bound := i.state.load64(boundPtr + uint64(i.u8(opPC+4)))
	addr32 := i.x(opPC + 5).U32()
	offset := i.u8(opPC + 6)
	if guardG32(addr32, bound, offset, size) {
		return 0, false
	}
	return i.x(opPC+2).U64() + uint64(addr32) + uint64(offset), true
}
