package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

// Disassemble renders a whole code image as one instruction per line,
// prefixed with its offset. Truncated or undefined instruction bytes end
// the listing with a raw-byte line rather than an error, so partial
// images still get a useful dump.
func Disassemble(code []byte) string {
	var sb strings.Builder
	pc := uint64(0)
	for pc < uint64(len(code)) {
		text, width := DisasmOne(code, pc)
		fmt.Fprintf(&sb, "%6x: %s\n", pc, text)
		if width <= 0 {
			break
		}
		pc += uint64(width)
	}
	return sb.String()
}

// DisasmOne decodes the instruction at pc and returns its text and full
// width. A width of 0 means the bytes were undecodable.
func DisasmOne(code []byte, pc uint64) (string, int) {
	op := Opcode(code[pc])
	info, ok := op.Info()
	if !ok {
		return fmt.Sprintf(".byte 0x%02x", byte(op)), 0
	}

	width := info.Width
	if op == OpBrTable32 {
		// The target count lives past the fixed header, so the header
		// itself needs a truncation check before width is known.
		if pc+6 > uint64(len(code)) {
			return fmt.Sprintf(".byte 0x%02x (truncated)", byte(op)), 0
		}
		count := binary.LittleEndian.Uint32(code[pc+2:])
		width = 6 + int(count)*4
	}
	if pc+uint64(width) > uint64(len(code)) {
		return fmt.Sprintf(".byte 0x%02x (truncated)", byte(op)), 0
	}

	operands := disasmOperands(code, pc, op)
	if operands == "" {
		return info.Name, width
	}
	return info.Name + " " + operands, width
}

func dxr(code []byte, off uint64) string { return XReg(code[off]).String() }
func dfr(code []byte, off uint64) string { return FReg(code[off]).String() }
func dvr(code []byte, off uint64) string { return VReg(code[off]).String() }

func dtarget(code []byte, pc, off uint64) string {
	rel := int32(binary.LittleEndian.Uint32(code[off:]))
	return fmt.Sprintf("%#x", uint64(int64(pc)+int64(rel)))
}

func disasmOperands(code []byte, pc uint64, op Opcode) string {
	switch op {
	case OpRet, OpPushFrame, OpPopFrame, OpNop, OpTrap:
		return ""

	case OpCall, OpJump:
		return dtarget(code, pc, pc+1)
	case OpCall1:
		return fmt.Sprintf("%s, %s", dxr(code, pc+1), dtarget(code, pc, pc+2))
	case OpCall2:
		return fmt.Sprintf("%s, %s, %s", dxr(code, pc+1), dxr(code, pc+2), dtarget(code, pc, pc+3))
	case OpCall3:
		return fmt.Sprintf("%s, %s, %s, %s",
			dxr(code, pc+1), dxr(code, pc+2), dxr(code, pc+3), dtarget(code, pc, pc+4))
	case OpCall4:
		return fmt.Sprintf("%s, %s, %s, %s, %s",
			dxr(code, pc+1), dxr(code, pc+2), dxr(code, pc+3), dxr(code, pc+4), dtarget(code, pc, pc+5))
	case OpCallIndirect, OpXJump:
		return dxr(code, pc+1)

	case OpBrIf32, OpBrIfNot32:
		return fmt.Sprintf("%s, %s", dxr(code, pc+1), dtarget(code, pc, pc+2))
	case OpBrIfXeq32, OpBrIfXneq32, OpBrIfXslt32, OpBrIfXslteq32, OpBrIfXult32, OpBrIfXulteq32,
		OpBrIfXeq64, OpBrIfXneq64, OpBrIfXslt64, OpBrIfXslteq64, OpBrIfXult64, OpBrIfXulteq64:
		return fmt.Sprintf("%s, %s, %s", dxr(code, pc+1), dxr(code, pc+2), dtarget(code, pc, pc+3))

	case OpBrTable32:
		count := binary.LittleEndian.Uint32(code[pc+2:])
		targets := lo.Map(lo.Range(int(count)), func(k, _ int) string {
			return dtarget(code, pc, pc+6+uint64(k)*4)
		})
		return fmt.Sprintf("%s, [%s]", dxr(code, pc+1), strings.Join(targets, ", "))

	case OpPushFrameSave, OpPopFrameRestore:
		return fmt.Sprintf("%s, n=%d", dxr(code, pc+1), code[pc+2])
	case OpStackAlloc32, OpStackFree32:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint32(code[pc+1:]))

	case OpXmov:
		return fmt.Sprintf("%s, %s", dxr(code, pc+1), dxr(code, pc+2))
	case OpFmov:
		return fmt.Sprintf("%s, %s", dfr(code, pc+1), dfr(code, pc+2))
	case OpVmov:
		return fmt.Sprintf("%s, %s", dvr(code, pc+1), dvr(code, pc+2))

	case OpXconst8:
		return fmt.Sprintf("%s, %d", dxr(code, pc+1), int8(code[pc+2]))
	case OpXconst16:
		return fmt.Sprintf("%s, %d", dxr(code, pc+1), int16(binary.LittleEndian.Uint16(code[pc+2:])))
	case OpXconst32:
		return fmt.Sprintf("%s, %d", dxr(code, pc+1), int32(binary.LittleEndian.Uint32(code[pc+2:])))
	case OpXconst64:
		return fmt.Sprintf("%s, %d", dxr(code, pc+1), int64(binary.LittleEndian.Uint64(code[pc+2:])))
	case OpFconst32:
		return fmt.Sprintf("%s, %g", dfr(code, pc+1),
			math.Float32frombits(binary.LittleEndian.Uint32(code[pc+2:])))
	case OpFconst64:
		return fmt.Sprintf("%s, %g", dfr(code, pc+1),
			math.Float64frombits(binary.LittleEndian.Uint64(code[pc+2:])))
	case OpVconst128:
		return fmt.Sprintf("%s, %#x", dvr(code, pc+1), code[pc+2:pc+18])

	case OpXLoad8UO32, OpXLoad8SO32, OpXLoad16UO32, OpXLoad16SO32,
		OpXLoad32UO32, OpXLoad32SO32, OpXLoad64O32,
		OpXStore8O32, OpXStore16O32, OpXStore32O32, OpXStore64O32,
		OpXLoad32Z, OpXLoad64Z, OpXStore32Z, OpXStore64Z:
		return fmt.Sprintf("%s, [%s%+d]", dxr(code, pc+1), dxr(code, pc+2),
			int32(binary.LittleEndian.Uint32(code[pc+3:])))
	case OpFLoad32O32, OpFLoad64O32, OpFStore32O32, OpFStore64O32:
		return fmt.Sprintf("%s, [%s%+d]", dfr(code, pc+1), dxr(code, pc+2),
			int32(binary.LittleEndian.Uint32(code[pc+3:])))
	case OpVLoad128O32, OpVStore128O32:
		return fmt.Sprintf("%s, [%s%+d]", dvr(code, pc+1), dxr(code, pc+2),
			int32(binary.LittleEndian.Uint32(code[pc+3:])))

	case OpXLoad8UG32, OpXLoad8SG32, OpXLoad16UG32, OpXLoad16SG32,
		OpXLoad32UG32, OpXLoad32SG32, OpXLoad64G32,
		OpXStore8G32, OpXStore16G32, OpXStore32G32, OpXStore64G32:
		return fmt.Sprintf("%s, [%s+%s+%d; bound=%s]",
			dxr(code, pc+1), dxr(code, pc+2), dxr(code, pc+4), code[pc+5], dxr(code, pc+3))
	case OpFLoad32G32, OpFLoad64G32, OpFStore32G32, OpFStore64G32:
		return fmt.Sprintf("%s, [%s+%s+%d; bound=%s]",
			dfr(code, pc+1), dxr(code, pc+2), dxr(code, pc+4), code[pc+5], dxr(code, pc+3))
	case OpVLoad128G32, OpVStore128G32:
		return fmt.Sprintf("%s, [%s+%s+%d; bound=%s]",
			dvr(code, pc+1), dxr(code, pc+2), dxr(code, pc+4), code[pc+5], dxr(code, pc+3))

	case OpXLoad32G32Bne, OpXLoad64G32Bne, OpXStore32G32Bne, OpXStore64G32Bne:
		return fmt.Sprintf("%s, [%s+%s+%d; bound=[%s+%d]]",
			dxr(code, pc+1), dxr(code, pc+2), dxr(code, pc+5), code[pc+6],
			dxr(code, pc+3), code[pc+4])

	case OpXAdd32, OpXAdd64, OpXSub32, OpXSub64, OpXMul32, OpXMul64,
		OpXDiv32S, OpXDiv64S, OpXDiv32U, OpXDiv64U,
		OpXRem32S, OpXRem64S, OpXRem32U, OpXRem64U,
		OpXAnd32, OpXAnd64, OpXOr32, OpXOr64, OpXXor32, OpXXor64,
		OpXShl32, OpXShl64, OpXShrS32, OpXShrS64, OpXShrU32, OpXShrU64,
		OpXEq32, OpXNeq32, OpXSlt32, OpXSlteq32, OpXUlt32, OpXUlteq32,
		OpXEq64, OpXNeq64, OpXSlt64, OpXSlteq64, OpXUlt64, OpXUlteq64,
		OpXMulHi64S, OpXMulHi64U, OpXAddUoverflowTrap64:
		return fmt.Sprintf("%s, %s, %s", dxr(code, pc+1), dxr(code, pc+2), dxr(code, pc+3))

	case OpXNeg32, OpXNeg64, OpXZext8, OpXZext16, OpXZext32,
		OpXSext8, OpXSext16, OpXSext32, OpXBswap32, OpXBswap64:
		return fmt.Sprintf("%s, %s", dxr(code, pc+1), dxr(code, pc+2))

	case OpFAdd32, OpFAdd64, OpFSub32, OpFSub64, OpFMul32, OpFMul64,
		OpFDiv32, OpFDiv64, OpFCopySign32, OpFCopySign64:
		return fmt.Sprintf("%s, %s, %s", dfr(code, pc+1), dfr(code, pc+2), dfr(code, pc+3))
	case OpFNeg32, OpFNeg64, OpFAbs32, OpFAbs64,
		OpFTrunc32, OpFTrunc64, OpFSqrt32, OpFSqrt64,
		OpF32FromF64, OpF64FromF32:
		return fmt.Sprintf("%s, %s", dfr(code, pc+1), dfr(code, pc+2))
	case OpFEq32, OpFEq64, OpFLt32, OpFLt64, OpFLteq32, OpFLteq64:
		return fmt.Sprintf("%s, %s, %s", dxr(code, pc+1), dfr(code, pc+2), dfr(code, pc+3))

	case OpF32FromX32S, OpF32FromX32U, OpF32FromX64S, OpF32FromX64U,
		OpF64FromX32S, OpF64FromX32U, OpF64FromX64S, OpF64FromX64U:
		return fmt.Sprintf("%s, %s", dfr(code, pc+1), dxr(code, pc+2))
	case OpX32FromF32S, OpX32FromF32U, OpX32FromF64S, OpX32FromF64U,
		OpX64FromF32S, OpX64FromF32U, OpX64FromF64S, OpX64FromF64U,
		OpX32FromF32SSat, OpX32FromF32USat, OpX32FromF64SSat, OpX32FromF64USat,
		OpX64FromF32SSat, OpX64FromF32USat, OpX64FromF64SSat, OpX64FromF64USat:
		return fmt.Sprintf("%s, %s", dxr(code, pc+1), dfr(code, pc+2))

	case OpVAddI32x4, OpVAddI64x2, OpVAddF32x4:
		return fmt.Sprintf("%s, %s, %s", dvr(code, pc+1), dvr(code, pc+2), dvr(code, pc+3))
	case OpVSplatX32, OpVSplatX64:
		return fmt.Sprintf("%s, %s", dvr(code, pc+1), dxr(code, pc+2))
	case OpVExtractX32, OpVExtractX64:
		return fmt.Sprintf("%s, %s[%d]", dxr(code, pc+1), dvr(code, pc+2), code[pc+3])
	case OpVInsertX32, OpVInsertX64:
		return fmt.Sprintf("%s[%d], %s", dvr(code, pc+1), code[pc+3], dxr(code, pc+2))

	case OpCallIndirectHost:
		return fmt.Sprintf("id=%d", code[pc+1])

	default:
		return ""
	}
}
