package vm

import "encoding/binary"

const (
	// HostReturnAddr is the sentinel link-register value meaning "return
	// leaves guest code". It is never a valid code offset.
	HostReturnAddr = ^uint64(0)

	// DefaultStackSize is the guest stack size used when a program or
	// manifest does not pick one.
	DefaultStackSize = 1 << 20
)

// MachineState is the full architectural state of one guest: the three
// register banks, the frame and link registers, and a flat byte arena
// holding both guest memory and the guest stack.
//
// Guest addresses are offsets into the arena. Address 0 is reserved as
// null and never handed out. The stack occupies the top of the arena and
// grows downward; the stack pointer lives in integer register 31.
type MachineState struct {
	xRegs [NumRegs]XRegVal
	fRegs [NumRegs]FRegVal
	vRegs [NumRegs]VRegVal

	fp uint64
	lr uint64

	mem        []byte
	stackLimit uint64
}

func alignUp16(x uint64) uint64 { return (x + 15) &^ 15 }

// NewMachineState builds a state with memSize bytes of general memory and
// a stackSize byte stack above it. A zero stackSize gets the default.
func NewMachineState(memSize, stackSize uint64) *MachineState {
	if stackSize == 0 {
		stackSize = DefaultStackSize
	}
	memSize = alignUp16(memSize)
	stackSize = alignUp16(stackSize)

	m := &MachineState{
		mem:        make([]byte, memSize+stackSize),
		stackLimit: memSize,
		fp:         HostReturnAddr,
		lr:         HostReturnAddr,
	}
	m.X(SPReg).SetU64(uint64(len(m.mem)))
	return m
}

// X returns the cell behind integer register r. Register numbers come
// from instruction bytes, so anything out of range is a malformed
// program and panics.
func (m *MachineState) X(r XReg) *XRegVal {
	return &m.xRegs[r]
}

// F returns the cell behind float register r.
func (m *MachineState) F(r FReg) *FRegVal {
	return &m.fRegs[r]
}

// V returns the cell behind vector register r.
func (m *MachineState) V(r VReg) *VRegVal {
	return &m.vRegs[r]
}

// SP reads the stack pointer.
func (m *MachineState) SP() uint64 { return m.X(SPReg).U64() }

// FP reads the frame pointer.
func (m *MachineState) FP() uint64 { return m.fp }

// LR reads the link register.
func (m *MachineState) LR() uint64 { return m.lr }

// SetLR overwrites the link register. The host uses this to arm the
// return sentinel before entering guest code.
func (m *MachineState) SetLR(x uint64) { m.lr = x }

// Mem exposes the backing arena. Callers writing through it are trusted
// the same way o32 addressing is.
func (m *MachineState) Mem() []byte { return m.mem }

// StackLimit is the lowest address the stack pointer may take.
func (m *MachineState) StackLimit() uint64 { return m.stackLimit }

// setSP moves the stack pointer, refusing moves below the stack region.
// On refusal sp is left where it was and false comes back; the caller
// raises the stack-overflow trap.
func (m *MachineState) setSP(newSP uint64) bool {
	if newSP < m.stackLimit || newSP > uint64(len(m.mem)) {
		return false
	}
	m.X(SPReg).SetU64(newSP)
	return true
}

// push8 pushes one 64-bit word. Pushes are checked; a failed push leaves
// sp unchanged.
func (m *MachineState) push8(x uint64) bool {
	newSP := m.SP() - 8
	if !m.setSP(newSP) {
		return false
	}
	binary.LittleEndian.PutUint64(m.mem[newSP:], x)
	return true
}

// pop8 pops one 64-bit word. Pops are unchecked: a pop without a
// matching push is the program's bug, and the slice bounds catch it.
func (m *MachineState) pop8() uint64 {
	sp := m.SP()
	x := binary.LittleEndian.Uint64(m.mem[sp:])
	m.X(SPReg).SetU64(sp + 8)
	return x
}

// Raw little-endian memory accessors. These trust the address the same
// way o32 addressing does; guarded modes validate before calling.

func (m *MachineState) load8(addr uint64) uint8   { return m.mem[addr] }
func (m *MachineState) load16(addr uint64) uint16 { return binary.LittleEndian.Uint16(m.mem[addr:]) }
func (m *MachineState) load32(addr uint64) uint32 { return binary.LittleEndian.Uint32(m.mem[addr:]) }
func (m *MachineState) load64(addr uint64) uint64 { return binary.LittleEndian.Uint64(m.mem[addr:]) }

func (m *MachineState) store8(addr uint64, x uint8)   { m.mem[addr] = x }
func (m *MachineState) store16(addr uint64, x uint16) { binary.LittleEndian.PutUint16(m.mem[addr:], x) }
func (m *MachineState) store32(addr uint64, x uint32) { binary.LittleEndian.PutUint32(m.mem[addr:], x) }
func (m *MachineState) store64(addr uint64, x uint64) { binary.LittleEndian.PutUint64(m.mem[addr:], x) }

func (m *MachineState) load128(addr uint64) (out [16]byte) {
	copy(out[:], m.mem[addr:addr+16])
	return out
}

func (m *MachineState) store128(addr uint64, x [16]byte) {
	copy(m.mem[addr:addr+16], x[:])
}
