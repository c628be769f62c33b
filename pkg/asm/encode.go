package asm

import (
	"fmt"
	"strings"

	"gokos/pkg/x86"
)

// nullaryOps are the no-operand instructions, each a fixed byte sequence.
var nullaryOps = map[string][]byte{
	"nop":    {0x90},
	"ret":    {0xC3},
	"iret":   {0xCF},
	"hlt":    {0xF4},
	"cli":    {0xFA},
	"sti":    {0xFB},
	"pushad": {0x60},
	"popad":  {0x61},
	"cdq":    {0x99},
}

// aluOp is one row of the table-driven ALU family: the store-direction and
// load-direction opcodes for the dword forms, and the /digit of the 81
// immediate form. Byte forms are the dword opcode minus one.
type aluOp struct {
	rmr   byte // r/m, r
	rrm   byte // r, r/m
	digit byte
}

var aluOps = map[string]aluOp{
	"add": {0x01, 0x03, 0},
	"or":  {0x09, 0x0B, 1},
	"and": {0x21, 0x23, 4},
	"sub": {0x29, 0x2B, 5},
	"xor": {0x31, 0x33, 6},
	"cmp": {0x39, 0x3B, 7},
}

// shiftOps maps shift/rotate mnemonics to their C1/D3 /digit.
var shiftOps = map[string]byte{
	"rol": 0,
	"ror": 1,
	"shl": 4,
	"shr": 5,
	"sar": 7,
}

// unaryOps maps the F7-group mnemonics to their /digit.
var unaryOps = map[string]byte{
	"not":  2,
	"neg":  3,
	"mul":  4,
	"imul": 5,
	"div":  6,
	"idiv": 7,
}

// stringOps are the operand-less string instructions usable after rep.
var stringOps = map[string]byte{
	"movsb": 0xA4,
	"movsd": 0xA5,
	"stosb": 0xAA,
	"stosd": 0xAB,
	"lodsb": 0xAC,
	"lodsd": 0xAD,
}

// isMnemonic reports whether name (already lower-cased) starts an instruction.
func isMnemonic(name string) bool {
	if _, ok := nullaryOps[name]; ok {
		return true
	}
	if _, ok := aluOps[name]; ok {
		return true
	}
	if _, ok := shiftOps[name]; ok {
		return true
	}
	if _, ok := unaryOps[name]; ok {
		return true
	}
	if _, ok := stringOps[name]; ok {
		return true
	}
	switch name {
	case "push", "pop", "mov", "lea", "xchg", "movzx", "movsx",
		"call", "jmp", "inc", "dec", "int", "in", "out", "rep", "test":
		return true
	}
	if strings.HasPrefix(name, "j") {
		if _, ok := x86.Cond(name[1:]); ok {
			return true
		}
	}
	return false
}

// emitImm32 writes a 4-byte immediate, patching it when symbolic.
func (a *Assembler) emitImm32(op Operand) error {
	if op.Label != "" {
		if err := a.addCodePatch(op.Label, false, 4); err != nil {
			return err
		}
		return a.img.Code.U32(0)
	}
	return a.img.Code.U32(uint32(int32(op.Imm)))
}

// emitRel32Target writes the rel32 field for a call/jmp whose target is op.
// Symbolic targets become relative patches; numeric targets (bound kernel
// routines, equ addresses) are computed against the current address.
func (a *Assembler) emitRel32Target(op Operand, line int) error {
	if op.Kind != opImm {
		return fmt.Errorf("expected a jump target on line %d", line)
	}
	if op.Label != "" {
		if err := a.addCodePatch(op.Label, true, 4); err != nil {
			return err
		}
		return a.img.Code.U32(0)
	}
	next := a.img.CodeBase + uint32(a.img.Code.Len()) + 4
	return a.img.Code.U32(uint32(int32(uint32(op.Imm)) - int32(next)))
}

// encodeInstr parses the operands of mn and emits its encoding. The mnemonic
// itself is already consumed.
func (a *Assembler) encodeInstr(mn string, line int) error {
	code := a.img.Code

	if bytes, ok := nullaryOps[mn]; ok {
		if err := a.expectNoOperands(mn, line); err != nil {
			return err
		}
		return code.Emit(bytes...)
	}

	if op, ok := stringOps[mn]; ok {
		if err := a.expectNoOperands(mn, line); err != nil {
			return err
		}
		return code.Byte(op)
	}

	if mn == "rep" {
		sub, err := a.lex.Next()
		if err != nil {
			return err
		}
		op, ok := stringOps[lower(sub.Lexeme)]
		if sub.Type != IDENTIFIER || !ok {
			return fmt.Errorf("rep needs a string instruction on line %d", line)
		}
		if err := a.expectNoOperands(mn, line); err != nil {
			return err
		}
		return code.Emit(0xF3, op)
	}

	if mn == "jmp" {
		return a.encodeJmp(line)
	}
	if strings.HasPrefix(mn, "j") {
		if cc, ok := x86.Cond(mn[1:]); ok {
			return a.encodeJcc(cc, line)
		}
	}

	ops, err := a.parseOperands(line)
	if err != nil {
		return err
	}

	if alu, ok := aluOps[mn]; ok {
		return a.encodeALU(mn, alu, ops, line)
	}
	if digit, ok := shiftOps[mn]; ok {
		return a.encodeShift(mn, digit, ops, line)
	}
	if digit, ok := unaryOps[mn]; ok {
		return a.encodeUnary(mn, digit, ops, line)
	}

	switch mn {
	case "push":
		return a.encodePush(ops, line)
	case "pop":
		return a.encodePop(ops, line)
	case "mov":
		return a.encodeMov(ops, line)
	case "lea":
		return a.encodeLea(ops, line)
	case "xchg":
		return a.encodeXchg(ops, line)
	case "movzx", "movsx":
		return a.encodeMovx(mn, ops, line)
	case "call":
		return a.encodeCall(ops, line)
	case "inc":
		return a.encodeIncDec(0, ops, line)
	case "dec":
		return a.encodeIncDec(1, ops, line)
	case "int":
		return a.encodeInt(ops, line)
	case "in":
		return a.encodeIn(ops, line)
	case "out":
		return a.encodeOut(ops, line)
	case "test":
		return a.encodeTest(ops, line)
	}

	return fmt.Errorf("unknown instruction %q on line %d", mn, line)
}

func (a *Assembler) expectNoOperands(mn string, line int) error {
	tok, err := a.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type != NEWLINE && tok.Type != EOF {
		return fmt.Errorf("%s takes no operands on line %d", mn, line)
	}
	return nil
}

func need(ops []Operand, n int, mn string, line int) error {
	if len(ops) != n {
		return fmt.Errorf("%s expects %d operand(s) on line %d, got %d", mn, n, line, len(ops))
	}
	return nil
}

// prefix16 emits the operand-size override for 16-bit forms.
func (a *Assembler) prefix16(width int) error {
	if width == 2 {
		return a.img.Code.Byte(0x66)
	}
	return nil
}

func (a *Assembler) encodePush(ops []Operand, line int) error {
	if err := need(ops, 1, "push", line); err != nil {
		return err
	}
	code := a.img.Code
	switch op := ops[0]; op.Kind {
	case opReg:
		if op.Reg.Width != 4 {
			return fmt.Errorf("push needs a 32-bit register on line %d", line)
		}
		return code.Byte(0x50 + op.Reg.Index)
	case opImm:
		if err := code.Byte(0x68); err != nil {
			return err
		}
		return a.emitImm32(op)
	case opMem:
		if err := code.Byte(0xFF); err != nil {
			return err
		}
		return a.emitModRM(6, op, line)
	}
	return fmt.Errorf("bad push operand on line %d", line)
}

func (a *Assembler) encodePop(ops []Operand, line int) error {
	if err := need(ops, 1, "pop", line); err != nil {
		return err
	}
	code := a.img.Code
	switch op := ops[0]; op.Kind {
	case opReg:
		if op.Reg.Width != 4 {
			return fmt.Errorf("pop needs a 32-bit register on line %d", line)
		}
		return code.Byte(0x58 + op.Reg.Index)
	case opMem:
		if err := code.Byte(0x8F); err != nil {
			return err
		}
		return a.emitModRM(0, op, line)
	}
	return fmt.Errorf("bad pop operand on line %d", line)
}

func (a *Assembler) encodeMov(ops []Operand, line int) error {
	if err := need(ops, 2, "mov", line); err != nil {
		return err
	}
	code := a.img.Code
	dst, src := ops[0], ops[1]

	switch {
	case dst.Kind == opReg && src.Kind == opReg:
		if dst.Reg.Width != src.Reg.Width {
			return fmt.Errorf("mov operand sizes differ on line %d", line)
		}
		if err := a.prefix16(dst.Reg.Width); err != nil {
			return err
		}
		op := byte(0x89)
		if dst.Reg.Width == 1 {
			op = 0x88
		}
		return code.Emit(op, x86.ModRM(3, src.Reg.Index, dst.Reg.Index))

	case dst.Kind == opReg && src.Kind == opImm:
		switch dst.Reg.Width {
		case 1:
			if src.Label != "" {
				return fmt.Errorf("label immediate needs a 32-bit register on line %d", line)
			}
			return code.Emit(0xB0+dst.Reg.Index, byte(int8(src.Imm)))
		case 2:
			if src.Label != "" {
				return fmt.Errorf("label immediate needs a 32-bit register on line %d", line)
			}
			if err := code.Emit(0x66, 0xB8+dst.Reg.Index); err != nil {
				return err
			}
			return code.U16(uint16(src.Imm))
		default:
			if err := code.Byte(0xB8 + dst.Reg.Index); err != nil {
				return err
			}
			return a.emitImm32(src)
		}

	case dst.Kind == opReg && src.Kind == opMem:
		w := dst.Reg.Width
		if src.Mem.Width != 0 && src.Mem.Width != w {
			return fmt.Errorf("mov operand sizes differ on line %d", line)
		}
		if err := a.prefix16(w); err != nil {
			return err
		}
		op := byte(0x8B)
		if w == 1 {
			op = 0x8A
		}
		if err := code.Byte(op); err != nil {
			return err
		}
		return a.emitModRM(dst.Reg.Index, src, line)

	case dst.Kind == opMem && src.Kind == opReg:
		w := src.Reg.Width
		if dst.Mem.Width != 0 && dst.Mem.Width != w {
			return fmt.Errorf("mov operand sizes differ on line %d", line)
		}
		if err := a.prefix16(w); err != nil {
			return err
		}
		op := byte(0x89)
		if w == 1 {
			op = 0x88
		}
		if err := code.Byte(op); err != nil {
			return err
		}
		return a.emitModRM(src.Reg.Index, dst, line)

	case dst.Kind == opMem && src.Kind == opImm:
		switch dst.Mem.Width {
		case 0:
			return fmt.Errorf("mov to memory needs a size hint on line %d", line)
		case 1:
			if err := code.Byte(0xC6); err != nil {
				return err
			}
			if err := a.emitModRM(0, dst, line); err != nil {
				return err
			}
			return code.Byte(byte(int8(src.Imm)))
		case 2:
			if err := code.Emit(0x66, 0xC7); err != nil {
				return err
			}
			if err := a.emitModRM(0, dst, line); err != nil {
				return err
			}
			return code.U16(uint16(src.Imm))
		default:
			if err := code.Byte(0xC7); err != nil {
				return err
			}
			if err := a.emitModRM(0, dst, line); err != nil {
				return err
			}
			return a.emitImm32(src)
		}
	}
	return fmt.Errorf("bad mov operands on line %d", line)
}

func (a *Assembler) encodeLea(ops []Operand, line int) error {
	if err := need(ops, 2, "lea", line); err != nil {
		return err
	}
	if ops[0].Kind != opReg || ops[0].Reg.Width != 4 || ops[1].Kind != opMem {
		return fmt.Errorf("lea expects r32, [mem] on line %d", line)
	}
	if err := a.img.Code.Byte(0x8D); err != nil {
		return err
	}
	return a.emitModRM(ops[0].Reg.Index, ops[1], line)
}

func (a *Assembler) encodeXchg(ops []Operand, line int) error {
	if err := need(ops, 2, "xchg", line); err != nil {
		return err
	}
	if ops[0].Kind != opReg || ops[1].Kind != opReg || ops[0].Reg.Width != ops[1].Reg.Width {
		return fmt.Errorf("xchg expects two same-size registers on line %d", line)
	}
	if err := a.prefix16(ops[0].Reg.Width); err != nil {
		return err
	}
	op := byte(0x87)
	if ops[0].Reg.Width == 1 {
		op = 0x86
	}
	return a.img.Code.Emit(op, x86.ModRM(3, ops[1].Reg.Index, ops[0].Reg.Index))
}

func (a *Assembler) encodeMovx(mn string, ops []Operand, line int) error {
	if err := need(ops, 2, mn, line); err != nil {
		return err
	}
	if ops[0].Kind != opReg || ops[0].Reg.Width != 4 {
		return fmt.Errorf("%s destination must be a 32-bit register on line %d", mn, line)
	}
	srcWidth := 0
	switch ops[1].Kind {
	case opReg:
		srcWidth = ops[1].Reg.Width
	case opMem:
		srcWidth = ops[1].Mem.Width
	}
	var op byte
	switch {
	case mn == "movzx" && srcWidth == 1:
		op = 0xB6
	case mn == "movzx" && srcWidth == 2:
		op = 0xB7
	case mn == "movsx" && srcWidth == 1:
		op = 0xBE
	case mn == "movsx" && srcWidth == 2:
		op = 0xBF
	default:
		return fmt.Errorf("%s source must be 8 or 16 bits on line %d", mn, line)
	}
	if err := a.img.Code.Emit(0x0F, op); err != nil {
		return err
	}
	return a.emitModRM(ops[0].Reg.Index, ops[1], line)
}

func (a *Assembler) encodeCall(ops []Operand, line int) error {
	if err := need(ops, 1, "call", line); err != nil {
		return err
	}
	code := a.img.Code
	switch op := ops[0]; op.Kind {
	case opReg:
		if op.Reg.Width != 4 {
			return fmt.Errorf("call needs a 32-bit register on line %d", line)
		}
		return code.Emit(0xFF, x86.ModRM(3, 2, op.Reg.Index))
	case opImm:
		if err := code.Byte(0xE8); err != nil {
			return err
		}
		return a.emitRel32Target(op, line)
	}
	return fmt.Errorf("bad call operand on line %d", line)
}

// encodeJmp handles "jmp short label", "jmp label" and "jmp reg".
func (a *Assembler) encodeJmp(line int) error {
	code := a.img.Code

	tok, err := a.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type == IDENTIFIER && lower(tok.Lexeme) == "short" {
		a.lex.Next()
		ops, err := a.parseOperands(line)
		if err != nil {
			return err
		}
		if err := need(ops, 1, "jmp short", line); err != nil {
			return err
		}
		op := ops[0]
		if op.Kind != opImm {
			return fmt.Errorf("jmp short needs a label on line %d", line)
		}
		if err := code.Byte(0xEB); err != nil {
			return err
		}
		if op.Label != "" {
			if err := a.addCodePatch(op.Label, true, 1); err != nil {
				return err
			}
			return code.Byte(0)
		}
		next := a.img.CodeBase + uint32(code.Len()) + 1
		disp := int64(uint32(op.Imm)) - int64(next)
		if disp < -128 || disp > 127 {
			return fmt.Errorf("short jump out of range on line %d", line)
		}
		return code.Byte(byte(int8(disp)))
	}

	ops, err := a.parseOperands(line)
	if err != nil {
		return err
	}
	if err := need(ops, 1, "jmp", line); err != nil {
		return err
	}
	switch op := ops[0]; op.Kind {
	case opReg:
		if op.Reg.Width != 4 {
			return fmt.Errorf("jmp needs a 32-bit register on line %d", line)
		}
		return code.Emit(0xFF, x86.ModRM(3, 4, op.Reg.Index))
	case opImm:
		if err := code.Byte(0xE9); err != nil {
			return err
		}
		return a.emitRel32Target(op, line)
	}
	return fmt.Errorf("bad jmp operand on line %d", line)
}

func (a *Assembler) encodeJcc(cc byte, line int) error {
	ops, err := a.parseOperands(line)
	if err != nil {
		return err
	}
	if err := need(ops, 1, "jcc", line); err != nil {
		return err
	}
	if ops[0].Kind != opImm {
		return fmt.Errorf("conditional jump needs a label on line %d", line)
	}
	if err := a.img.Code.Emit(0x0F, 0x80+cc); err != nil {
		return err
	}
	return a.emitRel32Target(ops[0], line)
}

func (a *Assembler) encodeIncDec(digit byte, ops []Operand, line int) error {
	mn := "inc"
	if digit == 1 {
		mn = "dec"
	}
	if err := need(ops, 1, mn, line); err != nil {
		return err
	}
	code := a.img.Code
	switch op := ops[0]; op.Kind {
	case opReg:
		switch op.Reg.Width {
		case 4:
			base := byte(0x40)
			if digit == 1 {
				base = 0x48
			}
			return code.Byte(base + op.Reg.Index)
		case 2:
			base := byte(0x40)
			if digit == 1 {
				base = 0x48
			}
			return code.Emit(0x66, base+op.Reg.Index)
		default:
			return code.Emit(0xFE, x86.ModRM(3, digit, op.Reg.Index))
		}
	case opMem:
		switch op.Mem.Width {
		case 1:
			if err := code.Byte(0xFE); err != nil {
				return err
			}
		case 4:
			if err := code.Byte(0xFF); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s on memory needs a byte/dword hint on line %d", mn, line)
		}
		return a.emitModRM(digit, op, line)
	}
	return fmt.Errorf("bad %s operand on line %d", mn, line)
}

// encodeUnary covers the F7 group: not neg mul imul div idiv.
func (a *Assembler) encodeUnary(mn string, digit byte, ops []Operand, line int) error {
	if err := need(ops, 1, mn, line); err != nil {
		return err
	}
	code := a.img.Code
	switch op := ops[0]; op.Kind {
	case opReg:
		opc := byte(0xF7)
		if op.Reg.Width == 1 {
			opc = 0xF6
		}
		if err := a.prefix16(op.Reg.Width); err != nil {
			return err
		}
		return code.Emit(opc, x86.ModRM(3, digit, op.Reg.Index))
	case opMem:
		switch op.Mem.Width {
		case 1:
			if err := code.Byte(0xF6); err != nil {
				return err
			}
		case 4:
			if err := code.Byte(0xF7); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s on memory needs a byte/dword hint on line %d", mn, line)
		}
		return a.emitModRM(digit, op, line)
	}
	return fmt.Errorf("bad %s operand on line %d", mn, line)
}

func (a *Assembler) encodeInt(ops []Operand, line int) error {
	if err := need(ops, 1, "int", line); err != nil {
		return err
	}
	if ops[0].Kind != opImm || ops[0].Label != "" || ops[0].Imm < 0 || ops[0].Imm > 255 {
		return fmt.Errorf("int expects an 8-bit immediate on line %d", line)
	}
	return a.img.Code.Emit(0xCD, byte(ops[0].Imm))
}

func (a *Assembler) encodeIn(ops []Operand, line int) error {
	if err := need(ops, 2, "in", line); err != nil {
		return err
	}
	dst, src := ops[0], ops[1]
	if dst.Kind != opReg {
		return fmt.Errorf("in destination must be al or eax on line %d", line)
	}
	fromDX := src.Kind == opReg && src.Reg.Name == "dx"
	switch {
	case dst.Reg.Name == "al" && fromDX:
		return a.img.Code.Byte(0xEC)
	case dst.Reg.Name == "eax" && fromDX:
		return a.img.Code.Byte(0xED)
	case dst.Reg.Name == "al" && src.Kind == opImm:
		return a.img.Code.Emit(0xE4, byte(src.Imm))
	}
	return fmt.Errorf("unsupported in form on line %d", line)
}

func (a *Assembler) encodeOut(ops []Operand, line int) error {
	if err := need(ops, 2, "out", line); err != nil {
		return err
	}
	dst, src := ops[0], ops[1]
	toDX := dst.Kind == opReg && dst.Reg.Name == "dx"
	switch {
	case toDX && src.Kind == opReg && src.Reg.Name == "al":
		return a.img.Code.Byte(0xEE)
	case toDX && src.Kind == opReg && src.Reg.Name == "eax":
		return a.img.Code.Byte(0xEF)
	case dst.Kind == opImm && src.Kind == opReg && src.Reg.Name == "al":
		return a.img.Code.Emit(0xE6, byte(dst.Imm))
	}
	return fmt.Errorf("unsupported out form on line %d", line)
}

func (a *Assembler) encodeALU(mn string, alu aluOp, ops []Operand, line int) error {
	if err := need(ops, 2, mn, line); err != nil {
		return err
	}
	code := a.img.Code
	dst, src := ops[0], ops[1]

	switch {
	case dst.Kind == opReg && src.Kind == opReg:
		if dst.Reg.Width != src.Reg.Width {
			return fmt.Errorf("%s operand sizes differ on line %d", mn, line)
		}
		if err := a.prefix16(dst.Reg.Width); err != nil {
			return err
		}
		op := alu.rmr
		if dst.Reg.Width == 1 {
			op--
		}
		return code.Emit(op, x86.ModRM(3, src.Reg.Index, dst.Reg.Index))

	case dst.Kind == opReg && src.Kind == opImm:
		switch dst.Reg.Width {
		case 1:
			if err := code.Emit(0x80, x86.ModRM(3, alu.digit, dst.Reg.Index)); err != nil {
				return err
			}
			return code.Byte(byte(int8(src.Imm)))
		case 2:
			if err := code.Emit(0x66, 0x81, x86.ModRM(3, alu.digit, dst.Reg.Index)); err != nil {
				return err
			}
			return code.U16(uint16(src.Imm))
		default:
			if err := code.Emit(0x81, x86.ModRM(3, alu.digit, dst.Reg.Index)); err != nil {
				return err
			}
			return a.emitImm32(src)
		}

	case dst.Kind == opReg && src.Kind == opMem:
		if err := a.prefix16(dst.Reg.Width); err != nil {
			return err
		}
		op := alu.rrm
		if dst.Reg.Width == 1 {
			op--
		}
		if err := code.Byte(op); err != nil {
			return err
		}
		return a.emitModRM(dst.Reg.Index, src, line)

	case dst.Kind == opMem && src.Kind == opReg:
		if err := a.prefix16(src.Reg.Width); err != nil {
			return err
		}
		op := alu.rmr
		if src.Reg.Width == 1 {
			op--
		}
		if err := code.Byte(op); err != nil {
			return err
		}
		return a.emitModRM(src.Reg.Index, dst, line)

	case dst.Kind == opMem && src.Kind == opImm:
		if dst.Mem.Width != 4 {
			return fmt.Errorf("%s to memory needs a dword hint on line %d", mn, line)
		}
		if err := code.Byte(0x81); err != nil {
			return err
		}
		if err := a.emitModRM(alu.digit, dst, line); err != nil {
			return err
		}
		return a.emitImm32(src)
	}
	return fmt.Errorf("bad %s operands on line %d", mn, line)
}

func (a *Assembler) encodeTest(ops []Operand, line int) error {
	if err := need(ops, 2, "test", line); err != nil {
		return err
	}
	code := a.img.Code
	dst, src := ops[0], ops[1]
	switch {
	case dst.Kind == opReg && src.Kind == opReg:
		if dst.Reg.Width != src.Reg.Width {
			return fmt.Errorf("test operand sizes differ on line %d", line)
		}
		if err := a.prefix16(dst.Reg.Width); err != nil {
			return err
		}
		op := byte(0x85)
		if dst.Reg.Width == 1 {
			op = 0x84
		}
		return code.Emit(op, x86.ModRM(3, src.Reg.Index, dst.Reg.Index))
	case dst.Kind == opReg && src.Kind == opImm:
		if dst.Reg.Width != 4 {
			return fmt.Errorf("test immediate needs a 32-bit register on line %d", line)
		}
		if err := code.Emit(0xF7, x86.ModRM(3, 0, dst.Reg.Index)); err != nil {
			return err
		}
		return a.emitImm32(src)
	}
	return fmt.Errorf("bad test operands on line %d", line)
}

func (a *Assembler) encodeShift(mn string, digit byte, ops []Operand, line int) error {
	if err := need(ops, 2, mn, line); err != nil {
		return err
	}
	code := a.img.Code
	dst, src := ops[0], ops[1]
	if dst.Kind != opReg || dst.Reg.Width != 4 {
		return fmt.Errorf("%s destination must be a 32-bit register on line %d", mn, line)
	}
	switch {
	case src.Kind == opImm && src.Label == "":
		if src.Imm == 1 {
			return code.Emit(0xD1, x86.ModRM(3, digit, dst.Reg.Index))
		}
		return code.Emit(0xC1, x86.ModRM(3, digit, dst.Reg.Index), byte(src.Imm))
	case src.Kind == opReg && src.Reg.Name == "cl":
		return code.Emit(0xD3, x86.ModRM(3, digit, dst.Reg.Index))
	}
	return fmt.Errorf("%s count must be an immediate or cl on line %d", mn, line)
}
