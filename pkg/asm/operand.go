package asm

import (
	"fmt"

	"gokos/pkg/obj"
	"gokos/pkg/x86"
)

type operandKind int

const (
	opNone operandKind = iota
	opReg
	opImm
	opMem
)

// MemRef is a parsed memory operand: [base], [base +/- disp], [base+index],
// [disp32], [label], [base+label].
type MemRef struct {
	HasBase  bool
	Base     x86.Reg
	HasIndex bool
	Index    x86.Reg
	HasDisp  bool
	Disp     int32
	Label    string // symbolic absolute displacement, patched when forward
	Width    int    // byte/word/dword hint; 0 when unspecified
}

// Operand is one decoded instruction operand.
type Operand struct {
	Kind  operandKind
	Reg   x86.Reg
	Imm   int64
	Label string // symbolic immediate (call/jmp target, mov reg, label)
	Mem   MemRef
}

// parseOperands reads operands up to the end of the current line.
func (a *Assembler) parseOperands(line int) ([]Operand, error) {
	var ops []Operand
	for {
		tok, err := a.lex.Peek()
		if err != nil {
			return nil, err
		}
		if tok.Type == NEWLINE || tok.Type == EOF {
			return ops, nil
		}
		if len(ops) > 0 {
			if tok.Type != COMMA {
				return nil, fmt.Errorf("expected ',' between operands on line %d, got %q", line, tok.Lexeme)
			}
			a.lex.Next()
		}
		op, err := a.parseOperand(line)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
}

// widthHint maps a size keyword to its byte width.
func widthHint(word string) (int, bool) {
	switch lower(word) {
	case "byte":
		return 1, true
	case "word":
		return 2, true
	case "dword":
		return 4, true
	}
	return 0, false
}

func (a *Assembler) parseOperand(line int) (Operand, error) {
	tok, err := a.lex.Next()
	if err != nil {
		return Operand{}, err
	}

	switch tok.Type {
	case REGISTER:
		return Operand{Kind: opReg, Reg: tok.Reg}, nil

	case NUMBER:
		return Operand{Kind: opImm, Imm: tok.Value}, nil

	case MINUS:
		num, err := a.lex.Next()
		if err != nil {
			return Operand{}, err
		}
		if num.Type != NUMBER {
			return Operand{}, fmt.Errorf("expected number after '-' on line %d", line)
		}
		return Operand{Kind: opImm, Imm: -num.Value}, nil

	case LBRACKET:
		return a.parseMem(line, 0)

	case IDENTIFIER:
		if w, ok := widthHint(tok.Lexeme); ok {
			open, err := a.lex.Next()
			if err != nil {
				return Operand{}, err
			}
			if open.Type != LBRACKET {
				return Operand{}, fmt.Errorf("expected '[' after %q on line %d", tok.Lexeme, line)
			}
			return a.parseMem(line, w)
		}
		// equ constants fold to immediates; anything else is a symbolic
		// reference resolved by the patch pass.
		if sym, ok := a.symbols[lower(tok.Lexeme)]; ok && sym.kind == symEqu {
			return Operand{Kind: opImm, Imm: int64(int32(sym.addr))}, nil
		}
		return Operand{Kind: opImm, Label: tok.Lexeme}, nil
	}

	return Operand{}, fmt.Errorf("unexpected operand %q on line %d", tok.Lexeme, line)
}

// parseMem consumes a bracketed memory operand; the '[' is already consumed.
func (a *Assembler) parseMem(line int, width int) (Operand, error) {
	m := MemRef{Width: width}
	sign := int32(1)

	for {
		tok, err := a.lex.Next()
		if err != nil {
			return Operand{}, err
		}
		switch tok.Type {
		case REGISTER:
			if tok.Reg.Width != 4 {
				return Operand{}, fmt.Errorf("memory operand needs a 32-bit register on line %d", line)
			}
			if sign < 0 {
				return Operand{}, fmt.Errorf("cannot subtract a register on line %d", line)
			}
			if !m.HasBase {
				m.HasBase = true
				m.Base = tok.Reg
			} else if !m.HasIndex {
				m.HasIndex = true
				m.Index = tok.Reg
			} else {
				return Operand{}, fmt.Errorf("too many registers in memory operand on line %d", line)
			}
		case NUMBER:
			m.HasDisp = true
			m.Disp += sign * int32(tok.Value)
		case IDENTIFIER:
			if sym, ok := a.symbols[lower(tok.Lexeme)]; ok && sym.kind == symEqu {
				m.HasDisp = true
				m.Disp += sign * int32(sym.addr)
			} else {
				if m.Label != "" {
					return Operand{}, fmt.Errorf("multiple labels in memory operand on line %d", line)
				}
				if sign < 0 {
					return Operand{}, fmt.Errorf("cannot subtract a label on line %d", line)
				}
				m.Label = tok.Lexeme
			}
		default:
			return Operand{}, fmt.Errorf("unexpected %q in memory operand on line %d", tok.Lexeme, line)
		}

		tok, err = a.lex.Next()
		if err != nil {
			return Operand{}, err
		}
		switch tok.Type {
		case RBRACKET:
			if !m.HasBase && !m.HasDisp && m.Label == "" {
				return Operand{}, fmt.Errorf("empty memory operand on line %d", line)
			}
			return Operand{Kind: opMem, Mem: m}, nil
		case PLUS:
			sign = 1
		case MINUS:
			sign = -1
		default:
			return Operand{}, fmt.Errorf("expected '+', '-' or ']' on line %d, got %q", line, tok.Lexeme)
		}
	}
}

// emitModRM writes the ModR/M byte (plus SIB/displacement) addressing op,
// with reg as the /r or /digit field. Symbolic displacements record an
// absolute patch over the disp32 bytes.
func (a *Assembler) emitModRM(reg byte, op Operand, line int) error {
	code := a.img.Code

	if op.Kind == opReg {
		return code.Byte(x86.ModRM(3, reg, op.Reg.Index))
	}
	if op.Kind != opMem {
		return fmt.Errorf("expected register or memory operand on line %d", line)
	}
	m := op.Mem

	emitDisp32 := func(v int32, label string) error {
		if label != "" {
			if err := a.addCodePatch(label, false, 4); err != nil {
				return err
			}
			return code.U32(0)
		}
		return code.U32(uint32(v))
	}

	// [disp32] / [label]: no base register at all.
	if !m.HasBase {
		if m.HasIndex {
			return fmt.Errorf("index register without base on line %d", line)
		}
		if err := code.Byte(x86.ModRM(0, reg, 5)); err != nil {
			return err
		}
		return emitDisp32(m.Disp, m.Label)
	}

	// base + index, scale 1.
	if m.HasIndex {
		if m.Index.Index == x86.ESP {
			return fmt.Errorf("esp cannot be an index register on line %d", line)
		}
		if m.Label != "" {
			return fmt.Errorf("label with two registers on line %d", line)
		}
		sib := x86.SIB(0, m.Index.Index, m.Base.Index)
		switch {
		case m.Base.Index == x86.EBP || (m.HasDisp && fitsInt8(m.Disp)):
			if err := code.Emit(x86.ModRM(1, reg, 4), sib); err != nil {
				return err
			}
			return code.Byte(byte(int8(m.Disp)))
		case m.HasDisp:
			if err := code.Emit(x86.ModRM(2, reg, 4), sib); err != nil {
				return err
			}
			return code.U32(uint32(m.Disp))
		default:
			return code.Emit(x86.ModRM(0, reg, 4), sib)
		}
	}

	// single base register; ESP always needs the 0x24 SIB byte.
	rm := m.Base.Index
	espSIB := rm == x86.ESP

	emitModSIB := func(mod byte) error {
		if err := code.Byte(x86.ModRM(mod, reg, rm)); err != nil {
			return err
		}
		if espSIB {
			return code.Byte(0x24)
		}
		return nil
	}

	switch {
	case m.Label != "":
		// [reg+label]: always a 32-bit displacement, patched.
		if m.HasDisp && m.Disp != 0 {
			return fmt.Errorf("label plus numeric displacement on line %d", line)
		}
		if err := emitModSIB(2); err != nil {
			return err
		}
		return emitDisp32(0, m.Label)
	case (!m.HasDisp || m.Disp == 0) && m.Base.Index != x86.EBP:
		return emitModSIB(0)
	case fitsInt8(m.Disp):
		// covers [ebp] too, encoded as [ebp+disp8=0]
		if err := emitModSIB(1); err != nil {
			return err
		}
		return code.Byte(byte(int8(m.Disp)))
	default:
		if err := emitModSIB(2); err != nil {
			return err
		}
		return code.U32(uint32(m.Disp))
	}
}

func fitsInt8(v int32) bool {
	return v >= -128 && v <= 127
}

func (a *Assembler) addCodePatch(name string, relative bool, width int) error {
	return a.img.Patches.Add(obj.Patch{
		Offset:   uint32(a.img.Code.Len()),
		Name:     name,
		Relative: relative,
		Width:    width,
	})
}
