package cc

import (
	"fmt"

	"gokos/pkg/x86"
)

// asmNullary is the no-operand subset allowed inside asm { }.
var asmNullary = map[string]byte{
	"nop":    0x90,
	"ret":    0xC3,
	"iret":   0xCF,
	"hlt":    0xF4,
	"cli":    0xFA,
	"sti":    0xFB,
	"pushad": 0x60,
	"popad":  0x61,
	"cdq":    0x99,
}

// parseAsmBlock compiles the curated inline assembly subset. Emission is
// direct: no fixups, no expressions. An instruction ends at an optional
// ';' or at the next mnemonic.
func (c *Compiler) parseAsmBlock(line int) error {
	if err := c.expect(LBRACE); err != nil {
		return err
	}
	for {
		tok, err := c.lex.Next()
		if err != nil {
			return err
		}
		switch tok.Type {
		case RBRACE:
			return nil
		case SEMICOLON:
			continue
		case EOF:
			return fmt.Errorf("unterminated asm block starting on line %d", line)
		case INT:
			// "int" lexes as a keyword; here it is the instruction.
			if err := c.asmInt(tok.Line); err != nil {
				return err
			}
		case IDENTIFIER:
			if err := c.asmInstr(tok.Lexeme, tok.Line); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected %q in asm block on line %d", tok.Lexeme, tok.Line)
		}
	}
}

func (c *Compiler) asmInstr(mn string, line int) error {
	if op, ok := asmNullary[mn]; ok {
		return c.emit(op)
	}

	switch mn {
	case "push":
		tok, err := c.lex.Next()
		if err != nil {
			return err
		}
		if tok.Type == NUMBER {
			return c.emitPushImm(uint32(int32(tok.Value)))
		}
		r, err := c.asmRegTok(tok, line)
		if err != nil {
			return err
		}
		return c.emit(0x50 + r.Index)
	case "pop":
		r, err := c.asmReg(line)
		if err != nil {
			return err
		}
		return c.emit(0x58 + r.Index)
	case "mov":
		return c.asmMov(line)
	case "inc":
		r, err := c.asmReg(line)
		if err != nil {
			return err
		}
		return c.emit(0x40 + r.Index)
	case "dec":
		r, err := c.asmReg(line)
		if err != nil {
			return err
		}
		return c.emit(0x48 + r.Index)
	case "xor":
		return c.asmAlu(0x31, 6, line)
	case "add":
		return c.asmAlu(0x01, 0, line)
	case "sub":
		return c.asmAlu(0x29, 5, line)
	case "cmp":
		return c.asmAlu(0x39, 7, line)
	case "call":
		tok, err := c.lex.Next()
		if err != nil {
			return err
		}
		if tok.Type == NUMBER {
			// Absolute target, emitted as a relative call.
			if err := c.emit(0xE8); err != nil {
				return err
			}
			rel := uint32(tok.Value) - (c.img.CodeBase + uint32(c.codeOff()) + 4)
			return c.emitU32(rel)
		}
		r, err := c.asmRegTok(tok, line)
		if err != nil {
			return err
		}
		return c.emit(0xFF, x86.ModRM(3, 2, r.Index))
	case "out":
		if err := c.asmFixedPair("dx", "al", line); err != nil {
			return err
		}
		return c.emit(0xEE)
	case "in":
		if err := c.asmFixedPair("al", "dx", line); err != nil {
			return err
		}
		return c.emit(0xEC)
	}
	return fmt.Errorf("instruction %q is not allowed in asm blocks on line %d", mn, line)
}

func (c *Compiler) asmInt(line int) error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type != NUMBER || tok.Value < 0 || tok.Value > 255 {
		return fmt.Errorf("int needs an 8-bit vector on line %d", line)
	}
	return c.emit(0xCD, byte(tok.Value))
}

// asmMov covers mov r,r / r,imm / r,[mem] / [mem],r.
func (c *Compiler) asmMov(line int) error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type == LBRACKET {
		base, disp, err := c.asmMemRest(line)
		if err != nil {
			return err
		}
		if err := c.expect(COMMA); err != nil {
			return err
		}
		src, err := c.asmReg(line)
		if err != nil {
			return err
		}
		if err := c.emit(0x89); err != nil {
			return err
		}
		return c.asmEmitMem(src.Index, base, disp)
	}

	dst, err := c.asmRegTok(tok, line)
	if err != nil {
		return err
	}
	if err := c.expect(COMMA); err != nil {
		return err
	}
	tok, err = c.lex.Next()
	if err != nil {
		return err
	}
	switch tok.Type {
	case NUMBER:
		if err := c.emit(0xB8 + dst.Index); err != nil {
			return err
		}
		return c.emitU32(uint32(int32(tok.Value)))
	case MINUS:
		num, err := c.lex.Next()
		if err != nil {
			return err
		}
		if num.Type != NUMBER {
			return fmt.Errorf("expected number on line %d", line)
		}
		if err := c.emit(0xB8 + dst.Index); err != nil {
			return err
		}
		return c.emitU32(uint32(-int32(num.Value)))
	case LBRACKET:
		base, disp, err := c.asmMemRest(line)
		if err != nil {
			return err
		}
		if err := c.emit(0x8B); err != nil {
			return err
		}
		return c.asmEmitMem(dst.Index, base, disp)
	case IDENTIFIER:
		src, err := c.asmRegTok(tok, line)
		if err != nil {
			return err
		}
		return c.emit(0x89, x86.ModRM(3, src.Index, dst.Index))
	}
	return fmt.Errorf("bad mov operand on line %d", line)
}

// asmAlu: op r,r uses the rm,r opcode; op r,imm uses 81 /digit.
func (c *Compiler) asmAlu(rmr byte, digit byte, line int) error {
	dst, err := c.asmReg(line)
	if err != nil {
		return err
	}
	if err := c.expect(COMMA); err != nil {
		return err
	}
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	switch tok.Type {
	case NUMBER:
		if err := c.emit(0x81, x86.ModRM(3, digit, dst.Index)); err != nil {
			return err
		}
		return c.emitU32(uint32(int32(tok.Value)))
	case MINUS:
		num, err := c.lex.Next()
		if err != nil {
			return err
		}
		if num.Type != NUMBER {
			return fmt.Errorf("expected number on line %d", line)
		}
		if err := c.emit(0x81, x86.ModRM(3, digit, dst.Index)); err != nil {
			return err
		}
		return c.emitU32(uint32(-int32(num.Value)))
	case IDENTIFIER:
		src, err := c.asmRegTok(tok, line)
		if err != nil {
			return err
		}
		return c.emit(rmr, x86.ModRM(3, src.Index, dst.Index))
	}
	return fmt.Errorf("bad operand on line %d", line)
}

// asmMemRest parses the rest of [reg], [reg+imm] or [reg-imm] after the
// opening bracket.
func (c *Compiler) asmMemRest(line int) (x86.Reg, int32, error) {
	r, err := c.asmReg(line)
	if err != nil {
		return x86.Reg{}, 0, err
	}
	tok, err := c.lex.Next()
	if err != nil {
		return x86.Reg{}, 0, err
	}
	var disp int32
	switch tok.Type {
	case RBRACKET:
		return r, 0, nil
	case PLUS, MINUS:
		num, err := c.lex.Next()
		if err != nil {
			return x86.Reg{}, 0, err
		}
		if num.Type != NUMBER {
			return x86.Reg{}, 0, fmt.Errorf("expected displacement on line %d", line)
		}
		disp = int32(num.Value)
		if tok.Type == MINUS {
			disp = -disp
		}
		if err := c.expect(RBRACKET); err != nil {
			return x86.Reg{}, 0, err
		}
		return r, disp, nil
	}
	return x86.Reg{}, 0, fmt.Errorf("bad memory operand on line %d", line)
}

// asmEmitMem writes the ModR/M (and SIB / displacement) for [base+disp]
// with reg in the reg field. Displacements that fit in a signed byte use
// the short form; [ebp] needs a zero disp8.
func (c *Compiler) asmEmitMem(reg byte, base x86.Reg, disp int32) error {
	esp := base.Index == 4
	ebp := base.Index == 5

	emitModSIB := func(mod byte) error {
		if err := c.emit(x86.ModRM(mod, reg, base.Index)); err != nil {
			return err
		}
		if esp {
			return c.emit(0x24)
		}
		return nil
	}

	switch {
	case disp == 0 && !ebp:
		return emitModSIB(0)
	case disp >= -128 && disp <= 127:
		if err := emitModSIB(1); err != nil {
			return err
		}
		return c.emit(byte(int8(disp)))
	default:
		if err := emitModSIB(2); err != nil {
			return err
		}
		return c.emitU32(uint32(disp))
	}
}

func (c *Compiler) asmReg(line int) (x86.Reg, error) {
	tok, err := c.lex.Next()
	if err != nil {
		return x86.Reg{}, err
	}
	return c.asmRegTok(tok, line)
}

func (c *Compiler) asmRegTok(tok Token, line int) (x86.Reg, error) {
	if tok.Type == IDENTIFIER {
		if r, ok := x86.LookupReg(tok.Lexeme); ok && r.Width == 4 {
			return r, nil
		}
	}
	return x86.Reg{}, fmt.Errorf("expected a 32-bit register on line %d", line)
}

// asmFixedPair consumes the fixed operand pair of in/out.
func (c *Compiler) asmFixedPair(first, second string, line int) error {
	a, err := c.lex.Next()
	if err != nil {
		return err
	}
	if err := c.expect(COMMA); err != nil {
		return err
	}
	b, err := c.lex.Next()
	if err != nil {
		return err
	}
	if a.Type != IDENTIFIER || a.Lexeme != first || b.Type != IDENTIFIER || b.Lexeme != second {
		return fmt.Errorf("expected %s, %s on line %d", first, second, line)
	}
	return nil
}
