package vm

import (
	"strings"
	"testing"
)

func TestDisassembleProgram(t *testing.T) {
	a := NewAssembler()
	loop := a.NewLabel()
	a.Xconst8(1, 3)
	a.Bind(loop)
	a.XAdd32(2, 2, 1)
	a.BrIf32(1, loop)
	a.Ret()
	code := a.Finish()

	out := Disassemble(code)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("disassembly has %d lines, want 4:\n%s", len(lines), out)
	}
	want := []string{
		"xconst8 x1, 3",
		"xadd32 x2, x2, x1",
		"br_if32 x1, 0x3", // back to the loop head
		"ret",
	}
	for i, w := range want {
		if !strings.HasSuffix(lines[i], w) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], w)
		}
	}
}

func TestDisasmWidthsMatchInterpreter(t *testing.T) {
	a := NewAssembler()
	a.Xconst64(1, 123456789)
	a.XLoad64G32(2, 1, 3, 4, 8)
	a.XLoad64G32Bne(2, 1, 3, 8, 4, 0)
	a.XStore64O32(2, 1, 16)
	a.Vconst128(1, [16]byte{})
	a.CallIndirectHost(1)
	a.Ret()
	code := a.Finish()

	// Walking the widths must land exactly on the end of the image.
	pc := uint64(0)
	for pc < uint64(len(code)) {
		_, width := DisasmOne(code, pc)
		if width <= 0 {
			t.Fatalf("undecodable instruction at %d", pc)
		}
		pc += uint64(width)
	}
	if pc != uint64(len(code)) {
		t.Fatalf("widths walked to %d, image ends at %d", pc, len(code))
	}
}

func TestDisasmBrTable(t *testing.T) {
	a := NewAssembler()
	t0, t1 := a.NewLabel(), a.NewLabel()
	a.BrTable32(1, t0, t1)
	a.Bind(t0)
	a.Ret()
	a.Bind(t1)
	a.Ret()
	code := a.Finish()

	text, width := DisasmOne(code, 0)
	if width != 14 {
		t.Errorf("br_table32 width = %d, want 14", width)
	}
	if !strings.Contains(text, "br_table32 x1, [0xe, 0xf]") {
		t.Errorf("br_table32 text = %q", text)
	}
}

func TestDisasmStopsOnBadByte(t *testing.T) {
	out := Disassemble([]byte{byte(OpNop), 0x1a, byte(OpRet)})
	if !strings.Contains(out, ".byte 0x1a") {
		t.Errorf("disassembly of a bad byte = %q", out)
	}
	// The listing ends at the undecodable byte.
	if strings.Contains(out, "ret") {
		t.Errorf("disassembly continued past a bad byte:\n%s", out)
	}
}

func TestDisasmTruncatedInstruction(t *testing.T) {
	a := NewAssembler()
	a.Xconst64(1, 123456789)
	code := a.Finish()

	for _, tt := range []struct {
		name string
		code []byte
	}{
		{"mid-instruction", code[:len(code)-3]},
		{"opcode only", code[:1]},
		{"br_table header cut", []byte{byte(OpBrTable32)}},
		{"br_table count cut", []byte{byte(OpBrTable32), 0x01, 0x02, 0x00}},
		{"br_table targets cut", []byte{byte(OpBrTable32), 0x01, 0x02, 0x00, 0x00, 0x00}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			text, width := DisasmOne(tt.code, 0)
			if width != 0 {
				t.Errorf("width = %d, want 0", width)
			}
			if !strings.Contains(text, "(truncated)") {
				t.Errorf("text = %q, want a truncation line", text)
			}
		})
	}
}
