package x86

import (
	"fmt"
	"strings"
)

// Inst is one decoded instruction: its offset from the start of the buffer,
// its encoded length, and its Intel-syntax text.
type Inst struct {
	Off  uint32
	Len  int
	Text string
}

var regNames = [8]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}
var regNames8 = [8]string{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"}

var ccNames = [16]string{
	"o", "no", "b", "ae", "e", "ne", "be", "a",
	"s", "ns", "p", "np", "l", "ge", "le", "g",
}

// Disassemble walks code, decoding the instruction subset the toolchain
// emits, and invokes fn once per instruction. base is the linear address of
// code[0]; call and jump targets are printed as absolute addresses relative
// to it. Bytes that do not decode are reported one at a time as "db 0xNN" so
// the walk always terminates.
func Disassemble(code []byte, base uint32, fn func(Inst)) {
	off := 0
	for off < len(code) {
		text, n := decode(code[off:], base+uint32(off))
		if n <= 0 {
			text, n = fmt.Sprintf("db 0x%02X", code[off]), 1
		}
		fn(Inst{Off: uint32(off), Len: n, Text: text})
		off += n
	}
}

// decode returns the text and length of the instruction at p, whose linear
// address is addr. A zero length means the bytes were not recognised.
func decode(p []byte, addr uint32) (string, int) {
	if len(p) == 0 {
		return "", 0
	}
	op := p[0]

	// rep prefix: only rep stosb/stosd appear.
	if op == 0xF3 && len(p) >= 2 {
		switch p[1] {
		case 0xAA:
			return "rep stosb", 2
		case 0xAB:
			return "rep stosd", 2
		}
		return "", 0
	}

	switch {
	case op == 0x90:
		return "nop", 1
	case op == 0xC3:
		return "ret", 1
	case op == 0xCF:
		return "iret", 1
	case op == 0xF4:
		return "hlt", 1
	case op == 0xFA:
		return "cli", 1
	case op == 0xFB:
		return "sti", 1
	case op == 0x60:
		return "pushad", 1
	case op == 0x61:
		return "popad", 1
	case op == 0x99:
		return "cdq", 1
	case op == 0xEE:
		return "out dx, al", 1
	case op == 0xEC:
		return "in al, dx", 1
	case op == 0xAA:
		return "stosb", 1
	case op == 0xAB:
		return "stosd", 1
	case op == 0xA4:
		return "movsb", 1
	case op == 0xA5:
		return "movsd", 1
	case op >= 0x50 && op <= 0x57:
		return "push " + regNames[op-0x50], 1
	case op >= 0x58 && op <= 0x5F:
		return "pop " + regNames[op-0x58], 1
	case op >= 0x40 && op <= 0x47:
		return "inc " + regNames[op-0x40], 1
	case op >= 0x48 && op <= 0x4F:
		return "dec " + regNames[op-0x48], 1
	case op >= 0xB8 && op <= 0xBF:
		if len(p) < 5 {
			return "", 0
		}
		return fmt.Sprintf("mov %s, 0x%X", regNames[op-0xB8], U32(p[1:])), 5
	case op == 0x68:
		if len(p) < 5 {
			return "", 0
		}
		return fmt.Sprintf("push 0x%X", U32(p[1:])), 5
	case op == 0x6A:
		if len(p) < 2 {
			return "", 0
		}
		return fmt.Sprintf("push 0x%X", p[1]), 2
	case op == 0xCD:
		if len(p) < 2 {
			return "", 0
		}
		return fmt.Sprintf("int 0x%02X", p[1]), 2
	case op == 0xE8, op == 0xE9:
		if len(p) < 5 {
			return "", 0
		}
		mn := "call"
		if op == 0xE9 {
			mn = "jmp"
		}
		target := addr + 5 + U32(p[1:])
		return fmt.Sprintf("%s 0x%08X", mn, target), 5
	case op == 0xEB:
		if len(p) < 2 {
			return "", 0
		}
		target := addr + 2 + uint32(int32(int8(p[1])))
		return fmt.Sprintf("jmp short 0x%08X", target), 2
	case op >= 0x70 && op <= 0x7F:
		if len(p) < 2 {
			return "", 0
		}
		target := addr + 2 + uint32(int32(int8(p[1])))
		return fmt.Sprintf("j%s short 0x%08X", ccNames[op-0x70], target), 2
	case op == 0x05, op == 0x2D, op == 0x25, op == 0x0D, op == 0x35, op == 0x3D, op == 0xA9:
		if len(p) < 5 {
			return "", 0
		}
		mn := map[byte]string{
			0x05: "add", 0x2D: "sub", 0x25: "and",
			0x0D: "or", 0x35: "xor", 0x3D: "cmp", 0xA9: "test",
		}[op]
		return fmt.Sprintf("%s eax, 0x%X", mn, U32(p[1:])), 5
	}

	switch op {
	case 0x01, 0x29, 0x21, 0x09, 0x31, 0x39, 0x85, 0x89, 0x8B, 0x8D, 0x87:
		mn := map[byte]string{
			0x01: "add", 0x29: "sub", 0x21: "and", 0x09: "or",
			0x31: "xor", 0x39: "cmp", 0x85: "test",
			0x89: "mov", 0x8B: "mov", 0x8D: "lea", 0x87: "xchg",
		}[op]
		regFirst := op == 0x8B || op == 0x8D
		return rmFormat(mn, p[1:], regFirst, 4)
	case 0x00, 0x28, 0x20, 0x08, 0x30, 0x38, 0x88, 0x8A:
		mn := map[byte]string{
			0x00: "add", 0x28: "sub", 0x20: "and", 0x08: "or",
			0x30: "xor", 0x38: "cmp", 0x88: "mov", 0x8A: "mov",
		}[op]
		return rmFormat(mn, p[1:], op == 0x8A, 1)
	case 0x81:
		return immGroup(p, 4)
	case 0x83:
		return immGroup(p, 1)
	case 0x69:
		// imul r32, r/m32, imm32; rmFormat already counts the opcode byte
		text, n := rmFormat("imul", p[1:], true, 4)
		if n == 0 || len(p) < n+4 {
			return "", 0
		}
		return fmt.Sprintf("%s, 0x%X", text, U32(p[n:])), n + 4
	case 0xF7:
		return unaryGroup(p)
	case 0xD1, 0xD3:
		return shiftGroup(p)
	case 0xFF:
		mem, reg, n := modrm(p[1:], 4)
		if n == 0 {
			return "", 0
		}
		switch reg {
		case 2:
			return "call " + mem, 1 + n
		case 4:
			return "jmp " + mem, 1 + n
		case 6:
			return "push dword " + mem, 1 + n
		}
		return "", 0
	case 0x0F:
		return decode0F(p, addr)
	}
	return "", 0
}

// decode0F handles the two-byte opcode space.
func decode0F(p []byte, addr uint32) (string, int) {
	if len(p) < 2 {
		return "", 0
	}
	op2 := p[1]
	switch {
	case op2 >= 0x80 && op2 <= 0x8F:
		if len(p) < 6 {
			return "", 0
		}
		target := addr + 6 + U32(p[2:])
		return fmt.Sprintf("j%s 0x%08X", ccNames[op2-0x80], target), 6
	case op2 >= 0x90 && op2 <= 0x9F:
		mem, _, n := modrm(p[2:], 1)
		if n == 0 {
			return "", 0
		}
		return fmt.Sprintf("set%s %s", ccNames[op2-0x90], mem), 2 + n
	case op2 == 0xAF:
		text, n := rmFormat("imul", p[2:], true, 4)
		if n == 0 {
			return "", 0
		}
		return text, 1 + n
	case op2 == 0xB6, op2 == 0xB7, op2 == 0xBE, op2 == 0xBF:
		mn := "movzx"
		if op2 >= 0xBE {
			mn = "movsx"
		}
		srcWidth := 1
		if op2 == 0xB7 || op2 == 0xBF {
			srcWidth = 2
		}
		mem, reg, n := modrm(p[2:], srcWidth)
		if n == 0 {
			return "", 0
		}
		return fmt.Sprintf("%s %s, %s", mn, regNames[reg], mem), 2 + n
	}
	return "", 0
}

// immGroup decodes 81/83 group-1 instructions (opcode extension in reg).
func immGroup(p []byte, immWidth int) (string, int) {
	names := [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}
	mem, reg, n := modrm(p[1:], 4)
	if n == 0 || len(p) < 1+n+immWidth {
		return "", 0
	}
	var imm uint32
	if immWidth == 4 {
		imm = U32(p[1+n:])
	} else {
		imm = uint32(int32(int8(p[1+n])))
	}
	return fmt.Sprintf("%s %s, 0x%X", names[reg], mem, imm), 1 + n + immWidth
}

// unaryGroup decodes the F7 group (test/not/neg/mul/imul/div/idiv).
func unaryGroup(p []byte) (string, int) {
	mem, reg, n := modrm(p[1:], 4)
	if n == 0 {
		return "", 0
	}
	switch reg {
	case 2:
		return "not " + mem, 1 + n
	case 3:
		return "neg " + mem, 1 + n
	case 4:
		return "mul " + mem, 1 + n
	case 5:
		return "imul " + mem, 1 + n
	case 6:
		return "div " + mem, 1 + n
	case 7:
		return "idiv " + mem, 1 + n
	}
	return "", 0
}

// shiftGroup decodes D1 (by 1) and D3 (by cl) shifts and rotates.
func shiftGroup(p []byte) (string, int) {
	names := [8]string{"rol", "ror", "rcl", "rcr", "shl", "shr", "", "sar"}
	mem, reg, n := modrm(p[1:], 4)
	if n == 0 || names[reg] == "" {
		return "", 0
	}
	count := "1"
	if p[0] == 0xD3 {
		count = "cl"
	}
	return fmt.Sprintf("%s %s, %s", names[reg], mem, count), 1 + n
}

// rmFormat decodes a standard /r instruction. regFirst reports whether the
// reg field is the destination (8B/8D direction) or the source (89 direction).
func rmFormat(mn string, p []byte, regFirst bool, width int) (string, int) {
	mem, reg, n := modrm(p, width)
	if n == 0 {
		return "", 0
	}
	regName := regNames[reg]
	if width == 1 {
		regName = regNames8[reg]
	}
	if regFirst {
		return fmt.Sprintf("%s %s, %s", mn, regName, mem), 1 + n
	}
	return fmt.Sprintf("%s %s, %s", mn, mem, regName), 1 + n
}

// modrm decodes a ModR/M byte plus any SIB and displacement, returning the
// r/m operand text, the reg field, and the number of bytes consumed. width
// selects the register name table for mod-11 operands.
func modrm(p []byte, width int) (string, byte, int) {
	if len(p) == 0 {
		return "", 0, 0
	}
	m := p[0]
	mod := m >> 6
	reg := (m >> 3) & 7
	rm := m & 7

	if mod == 3 {
		if width == 1 {
			return regNames8[rm], reg, 1
		}
		return regNames[rm], reg, 1
	}

	n := 1
	base := regNames[rm]
	var index string
	if rm == 4 { // SIB follows
		if len(p) < 2 {
			return "", 0, 0
		}
		sib := p[1]
		n = 2
		base = regNames[sib&7]
		if idx := (sib >> 3) & 7; idx != 4 {
			index = regNames[idx]
			if scale := sib >> 6; scale != 0 {
				index = fmt.Sprintf("%s*%d", index, 1<<scale)
			}
		}
		if sib&7 == 5 && mod == 0 {
			base = ""
		}
	}

	var disp string
	switch mod {
	case 0:
		if rm == 5 { // absolute disp32
			if len(p) < n+4 {
				return "", 0, 0
			}
			return fmt.Sprintf("[0x%08X]", U32(p[n:])), reg, n + 4
		}
		if base == "" { // SIB with no base
			if len(p) < n+4 {
				return "", 0, 0
			}
			disp = fmt.Sprintf("0x%X", U32(p[n:]))
			n += 4
		}
	case 1:
		if len(p) < n+1 {
			return "", 0, 0
		}
		d := int8(p[n])
		n++
		if d < 0 {
			disp = fmt.Sprintf("-0x%X", -int32(d))
		} else if d > 0 {
			disp = fmt.Sprintf("0x%X", d)
		}
	case 2:
		if len(p) < n+4 {
			return "", 0, 0
		}
		d := int32(U32(p[n:]))
		n += 4
		if d < 0 {
			disp = fmt.Sprintf("-0x%X", uint32(-d))
		} else {
			disp = fmt.Sprintf("0x%X", uint32(d))
		}
	}

	var parts []string
	if base != "" {
		parts = append(parts, base)
	}
	if index != "" {
		parts = append(parts, index)
	}
	expr := strings.Join(parts, "+")
	if disp != "" {
		if strings.HasPrefix(disp, "-") {
			expr += disp
		} else if expr != "" {
			expr += "+" + disp
		} else {
			expr = disp
		}
	}
	return "[" + expr + "]", reg, n
}
