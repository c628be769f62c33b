package cc

import (
	"fmt"
)

// patchHoleTo points a rel32 hole at an arbitrary code offset, possibly
// backward.
func (c *Compiler) patchHoleTo(off, target int) error {
	return c.img.Code.SetU32(off, uint32(int32(target)-int32(off+4)))
}

// parseStatement compiles one statement inside a function body.
func (c *Compiler) parseStatement() error {
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}

	switch tok.Type {
	case LBRACE:
		c.lex.Next()
		return c.parseBlock()
	case SEMICOLON:
		c.lex.Next()
		return nil
	case IF:
		c.lex.Next()
		return c.parseIf()
	case WHILE:
		c.lex.Next()
		return c.parseWhile()
	case DO:
		c.lex.Next()
		return c.parseDoWhile()
	case FOR:
		c.lex.Next()
		return c.parseFor()
	case SWITCH:
		c.lex.Next()
		return c.parseSwitch()
	case BREAK:
		c.lex.Next()
		return c.parseBreak(tok.Line)
	case CONTINUE:
		c.lex.Next()
		return c.parseContinue(tok.Line)
	case RETURN:
		c.lex.Next()
		return c.parseReturn()
	case ASM:
		c.lex.Next()
		return c.parseAsmBlock(tok.Line)
	}

	if c.isTypeStart(tok) {
		return c.parseLocalDecl()
	}

	if _, err := c.compileExpr(); err != nil {
		return err
	}
	return c.expect(SEMICOLON)
}

// parseBlock compiles statements until the closing brace, scoping any
// declarations to the block.
func (c *Compiler) parseBlock() error {
	mark := c.syms.Mark()
	outer := c.scopeMark
	c.scopeMark = mark
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return err
		}
		if tok.Type == RBRACE {
			c.lex.Next()
			c.syms.Release(mark)
			c.scopeMark = outer
			return nil
		}
		if tok.Type == EOF {
			return fmt.Errorf("unexpected end of file in block")
		}
		if err := c.parseStatement(); err != nil {
			return err
		}
	}
}

func (c *Compiler) parseCond() error {
	if err := c.expect(LPAREN); err != nil {
		return err
	}
	if _, err := c.compileValue(); err != nil {
		return err
	}
	if err := c.expect(RPAREN); err != nil {
		return err
	}
	return c.emit(0x85, 0xC0) // test eax, eax
}

func (c *Compiler) parseIf() error {
	if err := c.parseCond(); err != nil {
		return err
	}
	elseHole, err := c.emitJccHole(0x04) // je
	if err != nil {
		return err
	}
	if err := c.parseStatement(); err != nil {
		return err
	}

	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type != ELSE {
		return c.patchHole(elseHole)
	}
	c.lex.Next()

	endHole, err := c.emitJmpHole()
	if err != nil {
		return err
	}
	if err := c.patchHole(elseHole); err != nil {
		return err
	}
	if err := c.parseStatement(); err != nil {
		return err
	}
	return c.patchHole(endHole)
}

func (c *Compiler) parseWhile() error {
	condOff := c.codeOff()
	if err := c.parseCond(); err != nil {
		return err
	}
	endHole, err := c.emitJccHole(0x04) // je
	if err != nil {
		return err
	}

	ctx := &loopCtx{contTarget: condOff}
	c.loops = append(c.loops, ctx)
	if err := c.parseStatement(); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]

	if err := c.emitJmpTo(condOff); err != nil {
		return err
	}
	if err := c.patchHole(endHole); err != nil {
		return err
	}
	return c.patchBreaks(ctx)
}

func (c *Compiler) parseDoWhile() error {
	bodyOff := c.codeOff()
	ctx := &loopCtx{contTarget: -1}
	c.loops = append(c.loops, ctx)
	if err := c.parseStatement(); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]

	if err := c.expect(WHILE); err != nil {
		return err
	}
	// continue lands on the condition.
	for _, hole := range ctx.conts {
		if err := c.patchHole(hole); err != nil {
			return err
		}
	}
	if err := c.parseCond(); err != nil {
		return err
	}
	if err := c.expect(SEMICOLON); err != nil {
		return err
	}
	if err := c.emit(0x0F, 0x85); err != nil { // jne body
		return err
	}
	rel := int32(bodyOff) - int32(c.codeOff()+4)
	if err := c.emitU32(uint32(rel)); err != nil {
		return err
	}
	return c.patchBreaks(ctx)
}

// parseFor emits init, then the condition, then jumps over the increment
// into the body; the back edge runs through the increment. continue
// targets the increment.
func (c *Compiler) parseFor() error {
	if err := c.expect(LPAREN); err != nil {
		return err
	}
	mark := c.syms.Mark()
	outer := c.scopeMark
	c.scopeMark = mark

	// init clause
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	switch {
	case tok.Type == SEMICOLON:
		c.lex.Next()
	case c.isTypeStart(tok):
		if err := c.parseLocalDecl(); err != nil { // consumes the ';'
			return err
		}
	default:
		if _, err := c.compileExpr(); err != nil {
			return err
		}
		if err := c.expect(SEMICOLON); err != nil {
			return err
		}
	}

	condOff := c.codeOff()
	endHole := -1
	tok, err = c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type != SEMICOLON {
		if _, err := c.compileValue(); err != nil {
			return err
		}
		if err := c.emit(0x85, 0xC0); err != nil {
			return err
		}
		if endHole, err = c.emitJccHole(0x04); err != nil {
			return err
		}
	}
	if err := c.expect(SEMICOLON); err != nil {
		return err
	}

	contTarget := condOff
	tok, err = c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type != RPAREN {
		bodyHole, err := c.emitJmpHole()
		if err != nil {
			return err
		}
		contTarget = c.codeOff()
		if _, err := c.compileExpr(); err != nil {
			return err
		}
		if err := c.emitJmpTo(condOff); err != nil {
			return err
		}
		if err := c.patchHole(bodyHole); err != nil {
			return err
		}
	}
	if err := c.expect(RPAREN); err != nil {
		return err
	}

	ctx := &loopCtx{contTarget: contTarget}
	c.loops = append(c.loops, ctx)
	if err := c.parseStatement(); err != nil {
		return err
	}
	c.loops = c.loops[:len(c.loops)-1]

	if err := c.emitJmpTo(contTarget); err != nil {
		return err
	}
	if endHole >= 0 {
		if err := c.patchHole(endHole); err != nil {
			return err
		}
	}
	if err := c.patchBreaks(ctx); err != nil {
		return err
	}
	c.syms.Release(mark)
	c.scopeMark = outer
	return nil
}

// parseSwitch keeps the scrutinee on the stack and reloads it before each
// case comparison. Case bodies fall through; break jumps to the cleanup.
func (c *Compiler) parseSwitch() error {
	if err := c.expect(LPAREN); err != nil {
		return err
	}
	if _, err := c.compileValue(); err != nil {
		return err
	}
	if err := c.expect(RPAREN); err != nil {
		return err
	}
	if err := c.pushEAX(); err != nil {
		return err
	}
	if err := c.expect(LBRACE); err != nil {
		return err
	}

	ctx := &loopCtx{isSwitch: true}
	c.loops = append(c.loops, ctx)
	mark := c.syms.Mark()
	outerScope := c.scopeMark
	c.scopeMark = mark

	pendingJne := -1
	defaultOff := -1
	caseSeen := false

	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return err
		}
		switch tok.Type {
		case RBRACE:
			c.lex.Next()
			goto done
		case EOF:
			return fmt.Errorf("unexpected end of file in switch")
		case CASE:
			c.lex.Next()
			k, err := c.parseConstValue(tok.Line)
			if err != nil {
				return err
			}
			if err := c.expect(COLON); err != nil {
				return err
			}
			fallHole := -1
			if caseSeen {
				// Fall through from the previous body skips the test.
				if fallHole, err = c.emitJmpHole(); err != nil {
					return err
				}
			}
			if pendingJne >= 0 {
				if err := c.patchHole(pendingJne); err != nil {
					return err
				}
			}
			if err := c.emit(0x8B, 0x04, 0x24); err != nil { // mov eax, [esp]
				return err
			}
			if err := c.emit(0x3D); err != nil { // cmp eax, imm32
				return err
			}
			if err := c.emitU32(uint32(int32(k))); err != nil {
				return err
			}
			if pendingJne, err = c.emitJccHole(0x05); err != nil { // jne
				return err
			}
			if fallHole >= 0 {
				if err := c.patchHole(fallHole); err != nil {
					return err
				}
			}
			caseSeen = true
		case DEFAULT:
			c.lex.Next()
			if err := c.expect(COLON); err != nil {
				return err
			}
			if defaultOff >= 0 {
				return fmt.Errorf("duplicate default on line %d", tok.Line)
			}
			defaultOff = c.codeOff()
			caseSeen = true
		default:
			if err := c.parseStatement(); err != nil {
				return err
			}
		}
	}

done:
	if pendingJne >= 0 {
		if defaultOff >= 0 {
			if err := c.patchHoleTo(pendingJne, defaultOff); err != nil {
				return err
			}
		} else {
			if err := c.patchHole(pendingJne); err != nil {
				return err
			}
		}
	}
	c.loops = c.loops[:len(c.loops)-1]
	if err := c.patchBreaks(ctx); err != nil {
		return err
	}
	// Drop the scrutinee.
	if err := c.emit(0x81, 0xC4); err != nil { // add esp, imm32
		return err
	}
	if err := c.emitU32(4); err != nil {
		return err
	}
	c.syms.Release(mark)
	c.scopeMark = outerScope
	return nil
}

func (c *Compiler) patchBreaks(ctx *loopCtx) error {
	for _, hole := range ctx.breaks {
		if err := c.patchHole(hole); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) parseBreak(line int) error {
	if len(c.loops) == 0 {
		return fmt.Errorf("break outside a loop or switch on line %d", line)
	}
	if err := c.expect(SEMICOLON); err != nil {
		return err
	}
	ctx := c.loops[len(c.loops)-1]
	hole, err := c.emitJmpHole()
	if err != nil {
		return err
	}
	ctx.breaks = append(ctx.breaks, hole)
	return nil
}

// parseContinue targets the innermost loop, popping the scrutinee of any
// switch statements it jumps out of.
func (c *Compiler) parseContinue(line int) error {
	if err := c.expect(SEMICOLON); err != nil {
		return err
	}
	skipped := 0
	for i := len(c.loops) - 1; i >= 0; i-- {
		ctx := c.loops[i]
		if ctx.isSwitch {
			skipped++
			continue
		}
		if skipped > 0 {
			if err := c.emit(0x81, 0xC4); err != nil { // add esp, imm32
				return err
			}
			if err := c.emitU32(uint32(4 * skipped)); err != nil {
				return err
			}
		}
		if ctx.contTarget >= 0 {
			return c.emitJmpTo(ctx.contTarget)
		}
		hole, err := c.emitJmpHole()
		if err != nil {
			return err
		}
		ctx.conts = append(ctx.conts, hole)
		return nil
	}
	return fmt.Errorf("continue outside a loop on line %d", line)
}

func (c *Compiler) parseReturn() error {
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type != SEMICOLON {
		if _, err := c.compileValue(); err != nil {
			return err
		}
	}
	if err := c.expect(SEMICOLON); err != nil {
		return err
	}
	// mov esp, ebp; pop ebp; ret
	return c.emit(0x89, 0xEC, 0x5D, 0xC3)
}

// parseConstValue accepts the constant forms case labels and enum
// initialisers may use: literals, negated literals, and named constants.
func (c *Compiler) parseConstValue(line int) (int32, error) {
	tok, err := c.lex.Next()
	if err != nil {
		return 0, err
	}
	switch tok.Type {
	case NUMBER, CHAR:
		return int32(tok.Value), nil
	case MINUS:
		num, err := c.lex.Next()
		if err != nil {
			return 0, err
		}
		if num.Type != NUMBER && num.Type != CHAR {
			return 0, fmt.Errorf("expected a constant on line %d", line)
		}
		return -int32(num.Value), nil
	case IDENTIFIER:
		sym, ok := c.syms.Lookup(tok.Lexeme)
		if !ok {
			return 0, fmt.Errorf("undefined identifier %q on line %d", tok.Lexeme, line)
		}
		switch sym.Kind {
		case symConst:
			return int32(sym.Addr), nil
		case symEnum:
			return sym.ConstVal, nil
		}
	}
	return 0, fmt.Errorf("expected a constant on line %d", line)
}
