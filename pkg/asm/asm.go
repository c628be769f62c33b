// Package asm assembles Intel-syntax x86-32 source (a NASM subset) into a
// load image. Parsing is single-pass and line-oriented: bytes are emitted as
// each line parses and forward references are fixed by the patch resolver
// after the last line.
package asm

import (
	"fmt"
	"path"
	"strings"

	"gokos/pkg/kernel"
	"gokos/pkg/obj"
)

// maxIncludeDepth bounds %include nesting.
const maxIncludeDepth = 4

// maxName bounds label and equ names.
const maxName = 64

type section int

const (
	secText section = iota
	secData
)

type symKind int

const (
	symLabel symKind = iota
	symEqu
)

// symbol is a label or equ binding. Labels are stored with the case the
// programmer wrote but looked up case-insensitively.
type symbol struct {
	name    string
	kind    symKind
	addr    uint32
	defined bool
}

// Assembler holds all state for one compile: the output image, the symbol
// table, and a stack of lexers for %include.
type Assembler struct {
	host kernel.Host
	mode kernel.Mode

	img     *obj.Image
	symbols map[string]*symbol
	defined int

	lex      *Lexer
	lexStack []*Lexer
	dirStack []string
	baseDir  string

	section section
}

// New creates an assembler bound to a host. Kernel routine addresses and the
// predefined numeric constants (file flags, VFS errors, syscall-table
// offsets) are installed as equ symbols before any source is read.
func New(host kernel.Host, mode kernel.Mode) *Assembler {
	a := &Assembler{
		host:    host,
		mode:    mode,
		img:     obj.NewImage(obj.ASCodeBase, obj.ASDataBase),
		symbols: make(map[string]*symbol),
	}
	for _, c := range kernel.ConstBindings(true) {
		a.symbols[lower(c.Name)] = &symbol{name: c.Name, kind: symEqu, addr: uint32(c.Value), defined: true}
	}
	for _, b := range kernel.FuncBindings(host, mode) {
		a.symbols[lower(b.Name)] = &symbol{name: b.Name, kind: symEqu, addr: b.Addr, defined: true}
	}
	return a
}

// Assemble is the package-level convenience entry point.
func Assemble(host kernel.Host, mode kernel.Mode, src, baseDir string) (*obj.Image, error) {
	return New(host, mode).Assemble(src, baseDir)
}

// Assemble parses src and returns the resolved image. baseDir anchors
// relative %include paths.
func (a *Assembler) Assemble(src, baseDir string) (*obj.Image, error) {
	if len(src) > obj.SourceCap {
		return nil, fmt.Errorf("source too large (%d bytes, max %d)", len(src), obj.SourceCap)
	}
	a.lex = newLexer(src)
	a.baseDir = baseDir

	if err := a.parseAll(); err != nil {
		return nil, err
	}
	if !a.img.HasEntry {
		return nil, fmt.Errorf("no main: or _start: label found")
	}

	err := a.img.Resolve(func(name string) (uint32, bool) {
		sym, ok := a.symbols[lower(name)]
		if !ok || !sym.defined {
			return 0, false
		}
		return sym.addr, true
	})
	if err != nil {
		return nil, err
	}
	return a.img, nil
}

func lower(s string) string { return strings.ToLower(s) }

// buf returns the buffer data directives write to in the current section.
func (a *Assembler) buf() *obj.Buffer {
	if a.section == secData {
		return a.img.Data
	}
	return a.img.Code
}

// here returns the absolute address of the current section cursor.
func (a *Assembler) here() uint32 {
	if a.section == secData {
		return a.img.DataBase + uint32(a.img.Data.Len())
	}
	return a.img.CodeBase + uint32(a.img.Code.Len())
}

// parseAll drives the line loop, popping the lexer stack on include returns.
func (a *Assembler) parseAll() error {
	for {
		tok, err := a.lex.Next()
		if err != nil {
			return err
		}

		switch tok.Type {
		case EOF:
			if len(a.lexStack) == 0 {
				return nil
			}
			// Returning from an include restores the saved lexer state,
			// position, line and peek buffer included.
			a.lex = a.lexStack[len(a.lexStack)-1]
			a.lexStack = a.lexStack[:len(a.lexStack)-1]
			a.baseDir = a.dirStack[len(a.dirStack)-1]
			a.dirStack = a.dirStack[:len(a.dirStack)-1]

		case NEWLINE:
			// blank line

		case LABEL_DEF:
			if err := a.defineLabel(tok); err != nil {
				return err
			}

		case IDENTIFIER:
			if err := a.parseStatement(tok); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unexpected %q on line %d", tok.Lexeme, tok.Line)
		}
	}
}

func (a *Assembler) defineLabel(tok Token) error {
	name := tok.Lexeme
	if len(name) > maxName {
		return fmt.Errorf("label name too long on line %d", tok.Line)
	}
	key := lower(name)
	if existing, ok := a.symbols[key]; ok && existing.defined {
		return fmt.Errorf("duplicate label %q on line %d", name, tok.Line)
	}
	if a.defined >= obj.MaxSymbols {
		return fmt.Errorf("too many labels on line %d", tok.Line)
	}

	a.symbols[key] = &symbol{name: name, kind: symLabel, addr: a.here(), defined: true}
	a.defined++

	if !a.img.HasEntry && a.section == secText &&
		(strings.EqualFold(name, "main") || strings.EqualFold(name, "_start")) {
		a.img.HasEntry = true
		a.img.EntryOffset = uint32(a.img.Code.Len())
	}
	return nil
}

// parseStatement dispatches a line that starts with an identifier: an equ
// binding, a directive, or an instruction.
func (a *Assembler) parseStatement(tok Token) error {
	word := lower(tok.Lexeme)

	// NAME equ VALUE
	if next, err := a.lex.Peek(); err == nil && next.Type == IDENTIFIER && lower(next.Lexeme) == "equ" {
		a.lex.Next()
		return a.defineEqu(tok)
	}

	switch word {
	case "section":
		return a.parseSection(tok.Line)
	case "db":
		return a.parseData(1, tok.Line)
	case "dw":
		return a.parseData(2, tok.Line)
	case "dd":
		return a.parseData(4, tok.Line)
	case "resb", "rb", "reserve":
		return a.parseReserve(1, tok.Line)
	case "resw", "rw":
		return a.parseReserve(2, tok.Line)
	case "resd", "rd":
		return a.parseReserve(4, tok.Line)
	case "times":
		return a.parseTimes(tok.Line)
	case "%include":
		return a.parseInclude(tok.Line)
	}

	if isMnemonic(word) {
		if err := a.encodeInstr(word, tok.Line); err != nil {
			return err
		}
		return a.expectEndOfLine(tok.Line)
	}

	return fmt.Errorf("unknown instruction %q on line %d", tok.Lexeme, tok.Line)
}

func (a *Assembler) expectEndOfLine(line int) error {
	tok, err := a.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type != NEWLINE && tok.Type != EOF {
		return fmt.Errorf("trailing %q on line %d", tok.Lexeme, line)
	}
	return nil
}

func (a *Assembler) defineEqu(name Token) error {
	if len(name.Lexeme) > maxName {
		return fmt.Errorf("equ name too long on line %d", name.Line)
	}
	key := lower(name.Lexeme)
	if existing, ok := a.symbols[key]; ok && existing.defined {
		return fmt.Errorf("redefinition of %q on line %d", name.Lexeme, name.Line)
	}
	if a.defined >= obj.MaxSymbols {
		return fmt.Errorf("too many labels on line %d", name.Line)
	}

	op, err := a.parseOperand(name.Line)
	if err != nil {
		return err
	}
	if op.Kind != opImm || op.Label != "" {
		return fmt.Errorf("equ needs a constant value on line %d", name.Line)
	}
	a.symbols[key] = &symbol{name: name.Lexeme, kind: symEqu, addr: uint32(int32(op.Imm)), defined: true}
	a.defined++
	return a.expectEndOfLine(name.Line)
}

func (a *Assembler) parseSection(line int) error {
	tok, err := a.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type != IDENTIFIER {
		return fmt.Errorf("section needs a name on line %d", line)
	}
	switch lower(tok.Lexeme) {
	case ".text":
		a.section = secText
	case ".data", ".bss":
		a.section = secData
	default:
		return fmt.Errorf("unknown section %q on line %d", tok.Lexeme, line)
	}
	return a.expectEndOfLine(line)
}

// parseData handles db/dw/dd. Identifiers naming equ constants fold to
// numbers; a forward label is only legal in dd, where it records a
// patch tagged as a data-section hole.
func (a *Assembler) parseData(width int, line int) error {
	buf := a.buf()
	first := true
	for {
		tok, err := a.lex.Peek()
		if err != nil {
			return err
		}
		if tok.Type == NEWLINE || tok.Type == EOF {
			if first {
				return fmt.Errorf("data directive needs at least one item on line %d", line)
			}
			return nil
		}
		if !first {
			if tok.Type != COMMA {
				return fmt.Errorf("expected ',' on line %d, got %q", line, tok.Lexeme)
			}
			a.lex.Next()
		}
		first = false

		item, err := a.lex.Next()
		if err != nil {
			return err
		}
		switch item.Type {
		case NUMBER:
			if err := a.writeDatum(buf, width, uint32(int32(item.Value))); err != nil {
				return err
			}
		case MINUS:
			num, err := a.lex.Next()
			if err != nil {
				return err
			}
			if num.Type != NUMBER {
				return fmt.Errorf("expected number after '-' on line %d", line)
			}
			if err := a.writeDatum(buf, width, uint32(-int32(num.Value))); err != nil {
				return err
			}
		case STRING:
			if width != 1 {
				return fmt.Errorf("string literals are only valid with db on line %d", line)
			}
			// Bytes copied as-is, no implicit terminator.
			if err := buf.Emit([]byte(item.Lexeme)...); err != nil {
				return err
			}
		case IDENTIFIER:
			if sym, ok := a.symbols[lower(item.Lexeme)]; ok && sym.kind == symEqu {
				if err := a.writeDatum(buf, width, sym.addr); err != nil {
					return err
				}
				continue
			}
			if width != 4 {
				return fmt.Errorf("label reference needs dd on line %d", line)
			}
			off := uint32(buf.Len())
			if a.section == secData {
				off |= obj.DataPatch
			}
			if err := a.img.Patches.Add(obj.Patch{Offset: off, Name: item.Lexeme, Width: 4}); err != nil {
				return err
			}
			if err := buf.U32(0); err != nil {
				return err
			}
		default:
			return fmt.Errorf("bad data item %q on line %d", item.Lexeme, line)
		}
	}
}

func (a *Assembler) writeDatum(buf *obj.Buffer, width int, v uint32) error {
	switch width {
	case 1:
		return buf.Byte(byte(v))
	case 2:
		return buf.U16(uint16(v))
	default:
		return buf.U32(v)
	}
}

func (a *Assembler) parseReserve(width int, line int) error {
	op, err := a.parseOperand(line)
	if err != nil {
		return err
	}
	if op.Kind != opImm || op.Label != "" || op.Imm < 0 {
		return fmt.Errorf("reserve needs a non-negative count on line %d", line)
	}
	if err := a.buf().Zero(int(op.Imm) * width); err != nil {
		return err
	}
	return a.expectEndOfLine(line)
}

// parseTimes handles "times N db items" and "times N nop".
func (a *Assembler) parseTimes(line int) error {
	count, err := a.parseOperand(line)
	if err != nil {
		return err
	}
	if count.Kind != opImm || count.Label != "" || count.Imm < 0 {
		return fmt.Errorf("times needs a non-negative count on line %d", line)
	}

	tok, err := a.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type != IDENTIFIER {
		return fmt.Errorf("times needs db or nop on line %d", line)
	}
	switch lower(tok.Lexeme) {
	case "nop":
		for i := int64(0); i < count.Imm; i++ {
			if err := a.buf().Byte(0x90); err != nil {
				return err
			}
		}
		return a.expectEndOfLine(line)
	case "db":
		item, err := a.lex.Next()
		if err != nil {
			return err
		}
		buf := a.buf()
		for i := int64(0); i < count.Imm; i++ {
			switch item.Type {
			case NUMBER:
				if err := buf.Byte(byte(item.Value)); err != nil {
					return err
				}
			case STRING:
				if err := buf.Emit([]byte(item.Lexeme)...); err != nil {
					return err
				}
			default:
				return fmt.Errorf("bad times db item on line %d", line)
			}
		}
		return a.expectEndOfLine(line)
	}
	return fmt.Errorf("times needs db or nop on line %d", line)
}

// parseInclude reads and parses another file in place. The current lexer,
// its position, line and one-token peek buffer included, is saved and
// restored when the included file runs out.
func (a *Assembler) parseInclude(line int) error {
	tok, err := a.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type != STRING {
		return fmt.Errorf("%%include needs a quoted path on line %d", line)
	}
	if len(a.lexStack) >= maxIncludeDepth {
		return fmt.Errorf("%%include nesting too deep on line %d (max %d)", line, maxIncludeDepth)
	}

	p := tok.Lexeme
	if !strings.HasPrefix(p, "/") {
		p = path.Join(a.baseDir, p)
	}
	content, err := a.host.ReadFile(p)
	if err != nil {
		return fmt.Errorf("cannot include %q on line %d: %v", tok.Lexeme, line, err)
	}
	if len(content) > obj.SourceCap {
		return fmt.Errorf("included file %q too large on line %d", tok.Lexeme, line)
	}

	a.lexStack = append(a.lexStack, a.lex)
	a.dirStack = append(a.dirStack, a.baseDir)
	a.lex = newLexer(string(content))
	a.baseDir = path.Dir(p)
	return nil
}
