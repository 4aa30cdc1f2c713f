package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Register banks. Each bank has 32 registers; operands encode a register
// as a single byte, so anything >= 32 is a malformed program.
const NumRegs = 32

// XReg names an integer register. Register 31 doubles as the stack
// pointer, mirroring hardware conventions.
type XReg uint8

// SPReg is the integer register holding the stack pointer.
const SPReg XReg = 31

// FReg names a scalar floating point register.
type FReg uint8

// VReg names a 128-bit vector register.
type VReg uint8

func (r XReg) String() string { return fmt.Sprintf("x%d", uint8(r)) }
func (r FReg) String() string { return fmt.Sprintf("f%d", uint8(r)) }
func (r VReg) String() string { return fmt.Sprintf("v%d", uint8(r)) }

// XRegVal is the storage cell behind an integer register. The cell is a
// little-endian byte array rather than a uint64 so that narrow setters
// touch only their own bytes and leave the rest of the cell intact.
type XRegVal [8]byte

func (v *XRegVal) U32() uint32 { return binary.LittleEndian.Uint32(v[:4]) }
func (v *XRegVal) I32() int32  { return int32(v.U32()) }
func (v *XRegVal) U64() uint64 { return binary.LittleEndian.Uint64(v[:]) }
func (v *XRegVal) I64() int64  { return int64(v.U64()) }

func (v *XRegVal) SetU32(x uint32) { binary.LittleEndian.PutUint32(v[:4], x) }
func (v *XRegVal) SetI32(x int32)  { v.SetU32(uint32(x)) }
func (v *XRegVal) SetU64(x uint64) { binary.LittleEndian.PutUint64(v[:], x) }
func (v *XRegVal) SetI64(x int64)  { v.SetU64(uint64(x)) }

// FRegVal is the storage cell behind a float register. Like XRegVal it is
// raw little-endian bytes, so a 32-bit store leaves the high half alone.
type FRegVal [8]byte

func (v *FRegVal) F32() float32 { return math.Float32frombits(binary.LittleEndian.Uint32(v[:4])) }
func (v *FRegVal) F64() float64 { return math.Float64frombits(binary.LittleEndian.Uint64(v[:])) }

func (v *FRegVal) SetF32(x float32) { binary.LittleEndian.PutUint32(v[:4], math.Float32bits(x)) }
func (v *FRegVal) SetF64(x float64) { binary.LittleEndian.PutUint64(v[:], math.Float64bits(x)) }

func (v *FRegVal) Bits64() uint64     { return binary.LittleEndian.Uint64(v[:]) }
func (v *FRegVal) SetBits32(x uint32) { binary.LittleEndian.PutUint32(v[:4], x) }
func (v *FRegVal) SetBits64(x uint64) { binary.LittleEndian.PutUint64(v[:], x) }

// VRegVal is the 128-bit storage cell behind a vector register. Lanes are
// numbered from the low end of the cell.
type VRegVal [16]byte

func (v *VRegVal) U64x2() [2]uint64 {
	return [2]uint64{
		binary.LittleEndian.Uint64(v[0:8]),
		binary.LittleEndian.Uint64(v[8:16]),
	}
}

func (v *VRegVal) SetU64x2(x [2]uint64) {
	binary.LittleEndian.PutUint64(v[0:8], x[0])
	binary.LittleEndian.PutUint64(v[8:16], x[1])
}

func (v *VRegVal) U32x4() [4]uint32 {
	var out [4]uint32
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(v[i*4 : i*4+4])
	}
	return out
}

func (v *VRegVal) SetU32x4(x [4]uint32) {
	for i, lane := range x {
		binary.LittleEndian.PutUint32(v[i*4:i*4+4], lane)
	}
}

func (v *VRegVal) I32x4() [4]int32 {
	u := v.U32x4()
	return [4]int32{int32(u[0]), int32(u[1]), int32(u[2]), int32(u[3])}
}

func (v *VRegVal) SetI32x4(x [4]int32) {
	v.SetU32x4([4]uint32{uint32(x[0]), uint32(x[1]), uint32(x[2]), uint32(x[3])})
}

func (v *VRegVal) I64x2() [2]int64 {
	u := v.U64x2()
	return [2]int64{int64(u[0]), int64(u[1])}
}

func (v *VRegVal) SetI64x2(x [2]int64) {
	v.SetU64x2([2]uint64{uint64(x[0]), uint64(x[1])})
}

func (v *VRegVal) F32x4() [4]float32 {
	u := v.U32x4()
	var out [4]float32
	for i := range out {
		out[i] = math.Float32frombits(u[i])
	}
	return out
}

func (v *VRegVal) SetF32x4(x [4]float32) {
	var u [4]uint32
	for i := range x {
		u[i] = math.Float32bits(x[i])
	}
	v.SetU32x4(u)
}

func (v *VRegVal) F64x2() [2]float64 {
	u := v.U64x2()
	return [2]float64{math.Float64frombits(u[0]), math.Float64frombits(u[1])}
}

func (v *VRegVal) SetF64x2(x [2]float64) {
	v.SetU64x2([2]uint64{math.Float64bits(x[0]), math.Float64bits(x[1])})
}
