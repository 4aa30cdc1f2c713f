// Package vm implements the windlass bytecode interpreter: a portable
// register machine with integer, float, and vector banks, an explicit
// downward-growing stack, and a host-call escape protocol.
package vm

import "fmt"

// Opcode is the one-byte operation selector heading every instruction.
type Opcode byte

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

const (
	OpRet          Opcode = 0x00 // return via lr
	OpCall         Opcode = 0x01 // call rel32
	OpCall1        Opcode = 0x02 // move 1 xreg into x0, call rel32
	OpCall2        Opcode = 0x03 // move 2 xregs into x0..x1, call rel32
	OpCall3        Opcode = 0x04 // move 3 xregs into x0..x2, call rel32
	OpCall4        Opcode = 0x05 // move 4 xregs into x0..x3, call rel32
	OpCallIndirect Opcode = 0x06 // call through xreg
	OpJump         Opcode = 0x07 // jump rel32
	OpXJump        Opcode = 0x08 // jump through xreg
	OpBrIf32       Opcode = 0x09 // branch if low 32 bits nonzero
	OpBrIfNot32    Opcode = 0x0A // branch if low 32 bits zero
	OpBrIfXeq32    Opcode = 0x0B
	OpBrIfXneq32   Opcode = 0x0C
	OpBrIfXslt32   Opcode = 0x0D
	OpBrIfXslteq32 Opcode = 0x0E
	OpBrIfXult32   Opcode = 0x0F
	OpBrIfXulteq32 Opcode = 0x10
	OpBrIfXeq64    Opcode = 0x11
	OpBrIfXneq64   Opcode = 0x12
	OpBrIfXslt64   Opcode = 0x13
	OpBrIfXslteq64 Opcode = 0x14
	OpBrIfXult64   Opcode = 0x15
	OpBrIfXulteq64 Opcode = 0x16
	OpBrTable32    Opcode = 0x17 // clamped jump table of rel32 slots
)

// ---------------------------------------------------------------------------
// Frames and stack adjustment
// ---------------------------------------------------------------------------

const (
	OpPushFrame       Opcode = 0x20 // push lr, push fp, fp = sp
	OpPopFrame        Opcode = 0x21 // sp = fp, pop fp, pop lr
	OpPushFrameSave   Opcode = 0x22 // push_frame plus a contiguous xreg range
	OpPopFrameRestore Opcode = 0x23 // inverse of push_frame_save
	OpStackAlloc32    Opcode = 0x24 // sp -= amt (checked)
	OpStackFree32     Opcode = 0x25 // sp += amt
)

// ---------------------------------------------------------------------------
// Moves and constants
// ---------------------------------------------------------------------------

const (
	OpXmov      Opcode = 0x28
	OpFmov      Opcode = 0x29
	OpVmov      Opcode = 0x2A
	OpXconst8   Opcode = 0x2B // sign-extended
	OpXconst16  Opcode = 0x2C // sign-extended
	OpXconst32  Opcode = 0x2D // sign-extended
	OpXconst64  Opcode = 0x2E
	OpFconst32  Opcode = 0x2F
	OpFconst64  Opcode = 0x30
	OpVconst128 Opcode = 0x31
)

// ---------------------------------------------------------------------------
// Loads and stores
//
// The operation is the same across addressing modes; only the address
// computation and its safety contract differ. O32 is trusted, Z null-checks
// the base, G32 bounds-checks a 32-bit address against a bound register, and
// G32Bne loads the bound from memory first.
// ---------------------------------------------------------------------------

const (
	OpXLoad8UO32   Opcode = 0x38
	OpXLoad8SO32   Opcode = 0x39
	OpXLoad16UO32  Opcode = 0x3A
	OpXLoad16SO32  Opcode = 0x3B
	OpXLoad32UO32  Opcode = 0x3C
	OpXLoad32SO32  Opcode = 0x3D
	OpXLoad64O32   Opcode = 0x3E
	OpFLoad32O32   Opcode = 0x3F
	OpFLoad64O32   Opcode = 0x40
	OpVLoad128O32  Opcode = 0x41
	OpXStore8O32   Opcode = 0x42
	OpXStore16O32  Opcode = 0x43
	OpXStore32O32  Opcode = 0x44
	OpXStore64O32  Opcode = 0x45
	OpFStore32O32  Opcode = 0x46
	OpFStore64O32  Opcode = 0x47
	OpVStore128O32 Opcode = 0x48

	OpXLoad32Z  Opcode = 0x49
	OpXLoad64Z  Opcode = 0x4A
	OpXStore32Z Opcode = 0x4B
	OpXStore64Z Opcode = 0x4C

	OpXLoad8UG32   Opcode = 0x50
	OpXLoad8SG32   Opcode = 0x51
	OpXLoad16UG32  Opcode = 0x52
	OpXLoad16SG32  Opcode = 0x53
	OpXLoad32UG32  Opcode = 0x54
	OpXLoad32SG32  Opcode = 0x55
	OpXLoad64G32   Opcode = 0x56
	OpFLoad32G32   Opcode = 0x57
	OpFLoad64G32   Opcode = 0x58
	OpVLoad128G32  Opcode = 0x59
	OpXStore8G32   Opcode = 0x5A
	OpXStore16G32  Opcode = 0x5B
	OpXStore32G32  Opcode = 0x5C
	OpXStore64G32  Opcode = 0x5D
	OpFStore32G32  Opcode = 0x5E
	OpFStore64G32  Opcode = 0x5F
	OpVStore128G32 Opcode = 0x60

	OpXLoad32G32Bne  Opcode = 0x61
	OpXLoad64G32Bne  Opcode = 0x62
	OpXStore32G32Bne Opcode = 0x63
	OpXStore64G32Bne Opcode = 0x64
)

// ---------------------------------------------------------------------------
// Integer arithmetic and logic
// ---------------------------------------------------------------------------

const (
	OpXAdd32 Opcode = 0x68
	OpXAdd64 Opcode = 0x69
	OpXSub32 Opcode = 0x6A
	OpXSub64 Opcode = 0x6B
	OpXMul32 Opcode = 0x6C
	OpXMul64 Opcode = 0x6D

	OpXDiv32S Opcode = 0x6E // traps: divide by zero, MIN/-1
	OpXDiv64S Opcode = 0x6F
	OpXDiv32U Opcode = 0x70 // traps: divide by zero
	OpXDiv64U Opcode = 0x71
	OpXRem32S Opcode = 0x72 // MIN%-1 == 0; traps: divide by zero
	OpXRem64S Opcode = 0x73
	OpXRem32U Opcode = 0x74
	OpXRem64U Opcode = 0x75

	OpXAnd32  Opcode = 0x76
	OpXAnd64  Opcode = 0x77
	OpXOr32   Opcode = 0x78
	OpXOr64   Opcode = 0x79
	OpXXor32  Opcode = 0x7A
	OpXXor64  Opcode = 0x7B
	OpXShl32  Opcode = 0x7C // shift amounts masked to the operand width
	OpXShl64  Opcode = 0x7D
	OpXShrS32 Opcode = 0x7E
	OpXShrS64 Opcode = 0x7F
	OpXShrU32 Opcode = 0x80
	OpXShrU64 Opcode = 0x81
	OpXNeg32  Opcode = 0x82
	OpXNeg64  Opcode = 0x83

	OpXEq32    Opcode = 0x84 // compares produce 0 or 1
	OpXNeq32   Opcode = 0x85
	OpXSlt32   Opcode = 0x86
	OpXSlteq32 Opcode = 0x87
	OpXUlt32   Opcode = 0x88
	OpXUlteq32 Opcode = 0x89
	OpXEq64    Opcode = 0x8A
	OpXNeq64   Opcode = 0x8B
	OpXSlt64   Opcode = 0x8C
	OpXSlteq64 Opcode = 0x8D
	OpXUlt64   Opcode = 0x8E
	OpXUlteq64 Opcode = 0x8F

	OpXZext8  Opcode = 0x90
	OpXZext16 Opcode = 0x91
	OpXZext32 Opcode = 0x92
	OpXSext8  Opcode = 0x93
	OpXSext16 Opcode = 0x94
	OpXSext32 Opcode = 0x95

	OpXMulHi64S           Opcode = 0x96
	OpXMulHi64U           Opcode = 0x97
	OpXAddUoverflowTrap64 Opcode = 0x98
	OpXBswap32            Opcode = 0x99
	OpXBswap64            Opcode = 0x9A
)

// ---------------------------------------------------------------------------
// Floating point
// ---------------------------------------------------------------------------

const (
	OpFAdd32      Opcode = 0xA0
	OpFAdd64      Opcode = 0xA1
	OpFSub32      Opcode = 0xA2
	OpFSub64      Opcode = 0xA3
	OpFMul32      Opcode = 0xA4
	OpFMul64      Opcode = 0xA5
	OpFDiv32      Opcode = 0xA6
	OpFDiv64      Opcode = 0xA7
	OpFNeg32      Opcode = 0xA8
	OpFNeg64      Opcode = 0xA9
	OpFAbs32      Opcode = 0xAA
	OpFAbs64      Opcode = 0xAB
	OpFCopySign32 Opcode = 0xAC
	OpFCopySign64 Opcode = 0xAD
	OpFEq32       Opcode = 0xAE // result in an xreg
	OpFEq64       Opcode = 0xAF
	OpFLt32       Opcode = 0xB0
	OpFLt64       Opcode = 0xB1
	OpFLteq32     Opcode = 0xB2
	OpFLteq64     Opcode = 0xB3
	OpFTrunc32    Opcode = 0xB4
	OpFTrunc64    Opcode = 0xB5
	OpFSqrt32     Opcode = 0xB6
	OpFSqrt64     Opcode = 0xB7

	OpF32FromF64 Opcode = 0xB8
	OpF64FromF32 Opcode = 0xB9

	OpF32FromX32S Opcode = 0xBA
	OpF32FromX32U Opcode = 0xBB
	OpF32FromX64S Opcode = 0xBC
	OpF32FromX64U Opcode = 0xBD
	OpF64FromX32S Opcode = 0xBE
	OpF64FromX32U Opcode = 0xBF
	OpF64FromX64S Opcode = 0xC0
	OpF64FromX64U Opcode = 0xC1

	// Checked conversions trap on NaN and out-of-range values.
	OpX32FromF32S Opcode = 0xC2
	OpX32FromF32U Opcode = 0xC3
	OpX32FromF64S Opcode = 0xC4
	OpX32FromF64U Opcode = 0xC5
	OpX64FromF32S Opcode = 0xC6
	OpX64FromF32U Opcode = 0xC7
	OpX64FromF64S Opcode = 0xC8
	OpX64FromF64U Opcode = 0xC9

	// Saturating conversions never trap: NaN becomes 0, out-of-range
	// values clamp.
	OpX32FromF32SSat Opcode = 0xCA
	OpX32FromF32USat Opcode = 0xCB
	OpX32FromF64SSat Opcode = 0xCC
	OpX32FromF64USat Opcode = 0xCD
	OpX64FromF32SSat Opcode = 0xCE
	OpX64FromF32USat Opcode = 0xCF
	OpX64FromF64SSat Opcode = 0xD0
	OpX64FromF64USat Opcode = 0xD1
)

// ---------------------------------------------------------------------------
// Vector
// ---------------------------------------------------------------------------

const (
	OpVAddI32x4   Opcode = 0xD8
	OpVAddI64x2   Opcode = 0xD9
	OpVAddF32x4   Opcode = 0xDA
	OpVSplatX32   Opcode = 0xDB
	OpVSplatX64   Opcode = 0xDC
	OpVExtractX32 Opcode = 0xDD
	OpVExtractX64 Opcode = 0xDE
	OpVInsertX32  Opcode = 0xDF
	OpVInsertX64  Opcode = 0xE0
)

// ---------------------------------------------------------------------------
// Miscellaneous
// ---------------------------------------------------------------------------

const (
	OpCallIndirectHost Opcode = 0xF0 // suspend to the host with a u8 id
	OpNop              Opcode = 0xFE
	OpTrap             Opcode = 0xFF // unconditional trap
)

// OpInfo describes one opcode's mnemonic and encoded width.
type OpInfo struct {
	Name string
	// Width is the full instruction width in bytes, opcode included.
	// WidthVariable marks instructions whose width depends on operands.
	Width int
}

// WidthVariable marks variable-width instructions (br_table32).
const WidthVariable = -1

var opInfos = map[Opcode]OpInfo{
	OpRet:          {"ret", 1},
	OpCall:         {"call", 5},
	OpCall1:        {"call1", 6},
	OpCall2:        {"call2", 7},
	OpCall3:        {"call3", 8},
	OpCall4:        {"call4", 9},
	OpCallIndirect: {"call_indirect", 2},
	OpJump:         {"jump", 5},
	OpXJump:        {"xjump", 2},
	OpBrIf32:       {"br_if32", 6},
	OpBrIfNot32:    {"br_if_not32", 6},
	OpBrIfXeq32:    {"br_if_xeq32", 7},
	OpBrIfXneq32:   {"br_if_xneq32", 7},
	OpBrIfXslt32:   {"br_if_xslt32", 7},
	OpBrIfXslteq32: {"br_if_xslteq32", 7},
	OpBrIfXult32:   {"br_if_xult32", 7},
	OpBrIfXulteq32: {"br_if_xulteq32", 7},
	OpBrIfXeq64:    {"br_if_xeq64", 7},
	OpBrIfXneq64:   {"br_if_xneq64", 7},
	OpBrIfXslt64:   {"br_if_xslt64", 7},
	OpBrIfXslteq64: {"br_if_xslteq64", 7},
	OpBrIfXult64:   {"br_if_xult64", 7},
	OpBrIfXulteq64: {"br_if_xulteq64", 7},
	OpBrTable32:    {"br_table32", WidthVariable},

	OpPushFrame:       {"push_frame", 1},
	OpPopFrame:        {"pop_frame", 1},
	OpPushFrameSave:   {"push_frame_save", 3},
	OpPopFrameRestore: {"pop_frame_restore", 3},
	OpStackAlloc32:    {"stack_alloc32", 5},
	OpStackFree32:     {"stack_free32", 5},

	OpXmov:      {"xmov", 3},
	OpFmov:      {"fmov", 3},
	OpVmov:      {"vmov", 3},
	OpXconst8:   {"xconst8", 3},
	OpXconst16:  {"xconst16", 4},
	OpXconst32:  {"xconst32", 6},
	OpXconst64:  {"xconst64", 10},
	OpFconst32:  {"fconst32", 6},
	OpFconst64:  {"fconst64", 10},
	OpVconst128: {"vconst128", 18},

	OpXLoad8UO32:   {"xload8u_o32", 7},
	OpXLoad8SO32:   {"xload8s_o32", 7},
	OpXLoad16UO32:  {"xload16u_o32", 7},
	OpXLoad16SO32:  {"xload16s_o32", 7},
	OpXLoad32UO32:  {"xload32u_o32", 7},
	OpXLoad32SO32:  {"xload32s_o32", 7},
	OpXLoad64O32:   {"xload64_o32", 7},
	OpFLoad32O32:   {"fload32_o32", 7},
	OpFLoad64O32:   {"fload64_o32", 7},
	OpVLoad128O32:  {"vload128_o32", 7},
	OpXStore8O32:   {"xstore8_o32", 7},
	OpXStore16O32:  {"xstore16_o32", 7},
	OpXStore32O32:  {"xstore32_o32", 7},
	OpXStore64O32:  {"xstore64_o32", 7},
	OpFStore32O32:  {"fstore32_o32", 7},
	OpFStore64O32:  {"fstore64_o32", 7},
	OpVStore128O32: {"vstore128_o32", 7},

	OpXLoad32Z:  {"xload32_z", 7},
	OpXLoad64Z:  {"xload64_z", 7},
	OpXStore32Z: {"xstore32_z", 7},
	OpXStore64Z: {"xstore64_z", 7},

	OpXLoad8UG32:   {"xload8u_g32", 6},
	OpXLoad8SG32:   {"xload8s_g32", 6},
	OpXLoad16UG32:  {"xload16u_g32", 6},
	OpXLoad16SG32:  {"xload16s_g32", 6},
	OpXLoad32UG32:  {"xload32u_g32", 6},
	OpXLoad32SG32:  {"xload32s_g32", 6},
	OpXLoad64G32:   {"xload64_g32", 6},
	OpFLoad32G32:   {"fload32_g32", 6},
	OpFLoad64G32:   {"fload64_g32", 6},
	OpVLoad128G32:  {"vload128_g32", 6},
	OpXStore8G32:   {"xstore8_g32", 6},
	OpXStore16G32:  {"xstore16_g32", 6},
	OpXStore32G32:  {"xstore32_g32", 6},
	OpXStore64G32:  {"xstore64_g32", 6},
	OpFStore32G32:  {"fstore32_g32", 6},
	OpFStore64G32:  {"fstore64_g32", 6},
	OpVStore128G32: {"vstore128_g32", 6},

	OpXLoad32G32Bne:  {"xload32_g32bne", 7},
	OpXLoad64G32Bne:  {"xload64_g32bne", 7},
	OpXStore32G32Bne: {"xstore32_g32bne", 7},
	OpXStore64G32Bne: {"xstore64_g32bne", 7},

	OpXAdd32:  {"xadd32", 4},
	OpXAdd64:  {"xadd64", 4},
	OpXSub32:  {"xsub32", 4},
	OpXSub64:  {"xsub64", 4},
	OpXMul32:  {"xmul32", 4},
	OpXMul64:  {"xmul64", 4},
	OpXDiv32S: {"xdiv32_s", 4},
	OpXDiv64S: {"xdiv64_s", 4},
	OpXDiv32U: {"xdiv32_u", 4},
	OpXDiv64U: {"xdiv64_u", 4},
	OpXRem32S: {"xrem32_s", 4},
	OpXRem64S: {"xrem64_s", 4},
	OpXRem32U: {"xrem32_u", 4},
	OpXRem64U: {"xrem64_u", 4},
	OpXAnd32:  {"xand32", 4},
	OpXAnd64:  {"xand64", 4},
	OpXOr32:   {"xor32", 4},
	OpXOr64:   {"xor64", 4},
	OpXXor32:  {"xxor32", 4},
	OpXXor64:  {"xxor64", 4},
	OpXShl32:  {"xshl32", 4},
	OpXShl64:  {"xshl64", 4},
	OpXShrS32: {"xshr32_s", 4},
	OpXShrS64: {"xshr64_s", 4},
	OpXShrU32: {"xshr32_u", 4},
	OpXShrU64: {"xshr64_u", 4},
	OpXNeg32:  {"xneg32", 3},
	OpXNeg64:  {"xneg64", 3},

	OpXEq32:    {"xeq32", 4},
	OpXNeq32:   {"xneq32", 4},
	OpXSlt32:   {"xslt32", 4},
	OpXSlteq32: {"xslteq32", 4},
	OpXUlt32:   {"xult32", 4},
	OpXUlteq32: {"xulteq32", 4},
	OpXEq64:    {"xeq64", 4},
	OpXNeq64:   {"xneq64", 4},
	OpXSlt64:   {"xslt64", 4},
	OpXSlteq64: {"xslteq64", 4},
	OpXUlt64:   {"xult64", 4},
	OpXUlteq64: {"xulteq64", 4},

	OpXZext8:  {"xzext8", 3},
	OpXZext16: {"xzext16", 3},
	OpXZext32: {"xzext32", 3},
	OpXSext8:  {"xsext8", 3},
	OpXSext16: {"xsext16", 3},
	OpXSext32: {"xsext32", 3},

	OpXMulHi64S:           {"xmulhi64_s", 4},
	OpXMulHi64U:           {"xmulhi64_u", 4},
	OpXAddUoverflowTrap64: {"xadd64_uoverflow_trap", 4},
	OpXBswap32:            {"xbswap32", 3},
	OpXBswap64:            {"xbswap64", 3},

	OpFAdd32:      {"fadd32", 4},
	OpFAdd64:      {"fadd64", 4},
	OpFSub32:      {"fsub32", 4},
	OpFSub64:      {"fsub64", 4},
	OpFMul32:      {"fmul32", 4},
	OpFMul64:      {"fmul64", 4},
	OpFDiv32:      {"fdiv32", 4},
	OpFDiv64:      {"fdiv64", 4},
	OpFNeg32:      {"fneg32", 3},
	OpFNeg64:      {"fneg64", 3},
	OpFAbs32:      {"fabs32", 3},
	OpFAbs64:      {"fabs64", 3},
	OpFCopySign32: {"fcopysign32", 4},
	OpFCopySign64: {"fcopysign64", 4},
	OpFEq32:       {"feq32", 4},
	OpFEq64:       {"feq64", 4},
	OpFLt32:       {"flt32", 4},
	OpFLt64:       {"flt64", 4},
	OpFLteq32:     {"flteq32", 4},
	OpFLteq64:     {"flteq64", 4},
	OpFTrunc32:    {"ftrunc32", 3},
	OpFTrunc64:    {"ftrunc64", 3},
	OpFSqrt32:     {"fsqrt32", 3},
	OpFSqrt64:     {"fsqrt64", 3},

	OpF32FromF64: {"f32_from_f64", 3},
	OpF64FromF32: {"f64_from_f32", 3},

	OpF32FromX32S: {"f32_from_x32_s", 3},
	OpF32FromX32U: {"f32_from_x32_u", 3},
	OpF32FromX64S: {"f32_from_x64_s", 3},
	OpF32FromX64U: {"f32_from_x64_u", 3},
	OpF64FromX32S: {"f64_from_x32_s", 3},
	OpF64FromX32U: {"f64_from_x32_u", 3},
	OpF64FromX64S: {"f64_from_x64_s", 3},
	OpF64FromX64U: {"f64_from_x64_u", 3},

	OpX32FromF32S: {"x32_from_f32_s", 3},
	OpX32FromF32U: {"x32_from_f32_u", 3},
	OpX32FromF64S: {"x32_from_f64_s", 3},
	OpX32FromF64U: {"x32_from_f64_u", 3},
	OpX64FromF32S: {"x64_from_f32_s", 3},
	OpX64FromF32U: {"x64_from_f32_u", 3},
	OpX64FromF64S: {"x64_from_f64_s", 3},
	OpX64FromF64U: {"x64_from_f64_u", 3},

	OpX32FromF32SSat: {"x32_from_f32_s_sat", 3},
	OpX32FromF32USat: {"x32_from_f32_u_sat", 3},
	OpX32FromF64SSat: {"x32_from_f64_s_sat", 3},
	OpX32FromF64USat: {"x32_from_f64_u_sat", 3},
	OpX64FromF32SSat: {"x64_from_f32_s_sat", 3},
	OpX64FromF32USat: {"x64_from_f32_u_sat", 3},
	OpX64FromF64SSat: {"x64_from_f64_s_sat", 3},
	OpX64FromF64USat: {"x64_from_f64_u_sat", 3},

	OpVAddI32x4:   {"vadd_i32x4", 4},
	OpVAddI64x2:   {"vadd_i64x2", 4},
	OpVAddF32x4:   {"vadd_f32x4", 4},
	OpVSplatX32:   {"vsplat_x32", 3},
	OpVSplatX64:   {"vsplat_x64", 3},
	OpVExtractX32: {"vextract_x32", 4},
	OpVExtractX64: {"vextract_x64", 4},
	OpVInsertX32:  {"vinsert_x32", 4},
	OpVInsertX64:  {"vinsert_x64", 4},

	OpCallIndirectHost: {"call_indirect_host", 2},
	OpNop:              {"nop", 1},
	OpTrap:             {"trap", 1},
}

// Info returns the opcode's metadata; ok is false for undefined opcodes.
func (op Opcode) Info() (OpInfo, bool) {
	info, ok := opInfos[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opInfos[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(0x%02x)", byte(op))
}
