package cc

import (
	"fmt"
)

// isTypeStart reports whether tok can begin a type.
func (c *Compiler) isTypeStart(tok Token) bool {
	switch tok.Type {
	case INT, CHAR_KW, VOID, BOOL, STRUCT:
		return true
	case IDENTIFIER:
		_, ok := c.typedefs[tok.Lexeme]
		return ok
	}
	return false
}

// parseBaseType consumes a type name: a keyword, a struct tag, or a
// typedef alias.
func (c *Compiler) parseBaseType() (TypeInfo, error) {
	tok, err := c.lex.Next()
	if err != nil {
		return TypeInfo{}, err
	}
	switch tok.Type {
	case INT, BOOL:
		return TypeInfo{Kind: TypeInt}, nil
	case CHAR_KW:
		return TypeInfo{Kind: TypeChar}, nil
	case VOID:
		return TypeInfo{Kind: TypeVoid}, nil
	case STRUCT:
		tag, err := c.lex.Next()
		if err != nil {
			return TypeInfo{}, err
		}
		if tag.Type != IDENTIFIER {
			return TypeInfo{}, fmt.Errorf("expected struct tag on line %d", tok.Line)
		}
		idx := c.structIdx(tag.Lexeme)
		return TypeInfo{Kind: TypeStruct, StructIdx: idx}, nil
	case IDENTIFIER:
		if t, ok := c.typedefs[tok.Lexeme]; ok {
			return t, nil
		}
	}
	return TypeInfo{}, fmt.Errorf("expected a type, got %q on line %d", tok.Lexeme, tok.Line)
}

// parseTypeAndStars parses a base type plus pointer stars. Pointer depth
// of two or more collapses to the generic pointer type.
func (c *Compiler) parseTypeAndStars() (TypeInfo, error) {
	t, err := c.parseBaseType()
	if err != nil {
		return TypeInfo{}, err
	}
	return c.parseStars(t)
}

func (c *Compiler) parseStars(t TypeInfo) (TypeInfo, error) {
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return TypeInfo{}, err
		}
		if tok.Type != STAR {
			return t, nil
		}
		c.lex.Next()
		t = pointerTo(t)
	}
}

// structIdx returns the index of the struct with the given tag, creating
// an incomplete entry for a forward reference.
func (c *Compiler) structIdx(tag string) int {
	if idx, ok := c.structTags[tag]; ok {
		return idx
	}
	c.structs = append(c.structs, &StructDef{Tag: tag, Align: 1})
	idx := len(c.structs) - 1
	c.structTags[tag] = idx
	return idx
}

// parseTopLevel compiles one global declaration: a struct or enum
// definition, a typedef, a global variable, or a function.
func (c *Compiler) parseTopLevel() error {
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}

	switch tok.Type {
	case TYPEDEF:
		c.lex.Next()
		return c.parseTypedef(tok.Line)
	case ENUM:
		c.lex.Next()
		return c.parseEnum(tok.Line)
	case STRUCT:
		return c.parseStructOrDecl()
	}

	if !c.isTypeStart(tok) {
		return fmt.Errorf("expected a declaration, got %q on line %d", tok.Lexeme, tok.Line)
	}
	base, err := c.parseBaseType()
	if err != nil {
		return err
	}
	return c.parseGlobalOrFunc(base)
}

// parseStructOrDecl distinguishes "struct S {...};", "struct S;" and a
// declaration with a struct base type.
func (c *Compiler) parseStructOrDecl() error {
	kw, _ := c.lex.Next() // struct
	tag, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tag.Type != IDENTIFIER {
		return fmt.Errorf("expected struct tag on line %d", kw.Line)
	}
	idx := c.structIdx(tag.Lexeme)

	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	switch tok.Type {
	case LBRACE:
		c.lex.Next()
		if err := c.parseStructBody(idx, kw.Line); err != nil {
			return err
		}
		return c.expect(SEMICOLON)
	case SEMICOLON:
		c.lex.Next() // forward tag, stays incomplete
		return nil
	}
	return c.parseGlobalOrFunc(TypeInfo{Kind: TypeStruct, StructIdx: idx})
}

// parseStructBody lays out the fields with natural alignment and marks
// the struct complete.
func (c *Compiler) parseStructBody(idx, line int) error {
	sd := c.structs[idx]
	if sd.Complete {
		return fmt.Errorf("redefinition of struct %s on line %d", sd.Tag, line)
	}

	offset := 0
	align := 1
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return err
		}
		if tok.Type == RBRACE {
			c.lex.Next()
			break
		}
		base, err := c.parseBaseType()
		if err != nil {
			return err
		}
		for {
			ft, err := c.parseStars(base)
			if err != nil {
				return err
			}
			nameTok, err := c.lex.Next()
			if err != nil {
				return err
			}
			if nameTok.Type != IDENTIFIER {
				return fmt.Errorf("expected field name on line %d", nameTok.Line)
			}
			if _, dup := sd.field(nameTok.Lexeme); dup {
				return fmt.Errorf("duplicate field %q in struct %s on line %d", nameTok.Lexeme, sd.Tag, nameTok.Line)
			}
			if len(sd.Fields) >= maxStructFields {
				return fmt.Errorf("struct %s has too many fields on line %d (max %d)", sd.Tag, nameTok.Line, maxStructFields)
			}

			count := 1
			next, err := c.lex.Peek()
			if err != nil {
				return err
			}
			if next.Type == LBRACKET {
				c.lex.Next()
				dim, err := c.lex.Next()
				if err != nil {
					return err
				}
				if dim.Type != NUMBER || dim.Value <= 0 {
					return fmt.Errorf("bad array dimension on line %d", dim.Line)
				}
				count = int(dim.Value)
				if err := c.expect(RBRACKET); err != nil {
					return err
				}
			}

			fsize, err := c.typeSize(ft, nameTok.Line)
			if err != nil {
				return err
			}
			falign := c.typeAlign(ft)
			offset = alignUp(offset, falign)
			sd.Fields = append(sd.Fields, Field{
				Name:   nameTok.Lexeme,
				Type:   ft,
				Offset: offset,
				Count:  count,
			})
			offset += fsize * count
			if falign > align {
				align = falign
			}

			sep, err := c.lex.Next()
			if err != nil {
				return err
			}
			if sep.Type == SEMICOLON {
				break
			}
			if sep.Type != COMMA {
				return fmt.Errorf("expected ';' or ',' on line %d", sep.Line)
			}
		}
	}

	sd.Align = align
	sd.Size = alignUp(offset, align)
	sd.Complete = true
	return nil
}

// parseEnum defines enum constants. Each constant gets a 4-byte backing
// slot in the data section so references compile to a plain load.
func (c *Compiler) parseEnum(line int) error {
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type == IDENTIFIER { // optional tag, not referenceable as a type
		c.lex.Next()
	}
	if err := c.expect(LBRACE); err != nil {
		return err
	}

	next := int32(0)
	for {
		nameTok, err := c.lex.Next()
		if err != nil {
			return err
		}
		if nameTok.Type == RBRACE {
			break
		}
		if nameTok.Type != IDENTIFIER {
			return fmt.Errorf("expected enum constant name on line %d", nameTok.Line)
		}
		if _, exists := c.syms.Lookup(nameTok.Lexeme); exists {
			return fmt.Errorf("redefinition of %q on line %d", nameTok.Lexeme, nameTok.Line)
		}

		sep, err := c.lex.Peek()
		if err != nil {
			return err
		}
		if sep.Type == ASSIGN {
			c.lex.Next()
			v, err := c.parseConstValue(nameTok.Line)
			if err != nil {
				return err
			}
			next = v
		}

		addr, err := c.dataSlot(4, 4)
		if err != nil {
			return err
		}
		if err := c.img.Data.SetU32(int(addr-c.img.DataBase), uint32(next)); err != nil {
			return err
		}
		if _, err := c.syms.Add(&Symbol{
			Name:     nameTok.Lexeme,
			Kind:     symEnum,
			Type:     TypeInfo{Kind: TypeInt},
			Addr:     addr,
			ConstVal: next,
			Defined:  true,
		}, nameTok.Line); err != nil {
			return err
		}
		next++

		sep, err = c.lex.Next()
		if err != nil {
			return err
		}
		if sep.Type == RBRACE {
			break
		}
		if sep.Type != COMMA {
			return fmt.Errorf("expected ',' or '}' on line %d", sep.Line)
		}
	}
	return c.expect(SEMICOLON)
}

func (c *Compiler) parseTypedef(line int) error {
	t, err := c.parseTypeAndStars()
	if err != nil {
		return err
	}
	nameTok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if nameTok.Type != IDENTIFIER {
		return fmt.Errorf("expected typedef name on line %d", line)
	}
	c.typedefs[nameTok.Lexeme] = t
	return c.expect(SEMICOLON)
}

// parseGlobalOrFunc handles declarations that start with a base type at
// file scope.
func (c *Compiler) parseGlobalOrFunc(base TypeInfo) error {
	t, err := c.parseStars(base)
	if err != nil {
		return err
	}
	nameTok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if nameTok.Type != IDENTIFIER {
		return fmt.Errorf("expected a name on line %d", nameTok.Line)
	}

	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type == LPAREN {
		c.lex.Next()
		return c.parseFunction(t, nameTok)
	}

	for {
		if err := c.parseGlobalVar(t, nameTok); err != nil {
			return err
		}
		sep, err := c.lex.Next()
		if err != nil {
			return err
		}
		if sep.Type == SEMICOLON {
			return nil
		}
		if sep.Type != COMMA {
			return fmt.Errorf("expected ';' or ',' on line %d", sep.Line)
		}
		if t, err = c.parseStars(base); err != nil {
			return err
		}
		if nameTok, err = c.lex.Next(); err != nil {
			return err
		}
		if nameTok.Type != IDENTIFIER {
			return fmt.Errorf("expected a name on line %d", nameTok.Line)
		}
	}
}

// parseGlobalVar places one global in the data section: scalars in a
// 4-byte padded slot, arrays and structs at their full aligned size.
func (c *Compiler) parseGlobalVar(t TypeInfo, nameTok Token) error {
	if _, exists := c.syms.Lookup(nameTok.Lexeme); exists {
		return fmt.Errorf("redefinition of %q on line %d", nameTok.Lexeme, nameTok.Line)
	}

	sym := &Symbol{Name: nameTok.Lexeme, Kind: symGlobal, Type: t, Defined: true}

	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type == LBRACKET {
		elemSize, arrayLen, dims, total, err := c.parseArrayDims(t, nameTok.Line)
		if err != nil {
			return err
		}
		addr, err := c.dataSlot(total, c.typeAlign(t))
		if err != nil {
			return err
		}
		sym.Addr = addr
		sym.IsArray = true
		sym.ElemSize = elemSize
		sym.ArrayLen = arrayLen
		sym.Dims = dims
		_, err = c.syms.Add(sym, nameTok.Line)
		return err
	}

	if t.Kind == TypeStruct {
		size, err := c.typeSize(t, nameTok.Line)
		if err != nil {
			return err
		}
		addr, err := c.dataSlot(size, c.typeAlign(t))
		if err != nil {
			return err
		}
		sym.Addr = addr
		_, err = c.syms.Add(sym, nameTok.Line)
		return err
	}

	addr, err := c.dataSlot(4, 4)
	if err != nil {
		return err
	}
	sym.Addr = addr

	if tok.Type == ASSIGN {
		c.lex.Next()
		init, err := c.lex.Peek()
		if err != nil {
			return err
		}
		var v uint32
		if init.Type == STRING && t.Kind == TypeCharPtr {
			c.lex.Next()
			strAddr, err := c.internString(init.Lexeme)
			if err != nil {
				return err
			}
			v = strAddr
		} else {
			k, err := c.parseConstValue(nameTok.Line)
			if err != nil {
				return err
			}
			v = uint32(k)
		}
		if err := c.img.Data.SetU32(int(addr-c.img.DataBase), v); err != nil {
			return err
		}
	}
	_, err = c.syms.Add(sym, nameTok.Line)
	return err
}

// parseArrayDims parses [N] or [M][N] after a declarator name and returns
// the first-subscript scale, outer length, dimension count and total byte
// size.
func (c *Compiler) parseArrayDims(t TypeInfo, line int) (elemSize, arrayLen, dims, total int, err error) {
	base, err := c.typeSize(t, line)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	readDim := func() (int, error) {
		if err := c.expect(LBRACKET); err != nil {
			return 0, err
		}
		dim, err := c.lex.Next()
		if err != nil {
			return 0, err
		}
		if dim.Type != NUMBER || dim.Value <= 0 {
			return 0, fmt.Errorf("bad array dimension on line %d", dim.Line)
		}
		if err := c.expect(RBRACKET); err != nil {
			return 0, err
		}
		return int(dim.Value), nil
	}

	n1, err := readDim()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	tok, err := c.lex.Peek()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if tok.Type != LBRACKET {
		return base, n1, 1, base * n1, nil
	}
	n2, err := readDim()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	row := base * n2
	return row, n1, 2, row * n1, nil
}

// parseFunction compiles a prototype or a definition. The '(' has been
// consumed.
func (c *Compiler) parseFunction(ret TypeInfo, nameTok Token) error {
	name := nameTok.Lexeme

	type param struct {
		name string
		typ  TypeInfo
		line int
	}
	var params []param
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return err
		}
		if tok.Type == RPAREN {
			c.lex.Next()
			break
		}
		if len(params) > 0 {
			if err := c.expect(COMMA); err != nil {
				return err
			}
		}
		tok, err = c.lex.Peek()
		if err != nil {
			return err
		}
		if tok.Type == VOID && len(params) == 0 {
			// void parameter list
			c.lex.Next()
			after, err := c.lex.Peek()
			if err != nil {
				return err
			}
			if after.Type == RPAREN {
				c.lex.Next()
				break
			}
			// "void *x" and friends: fall through with void base.
			pt, err := c.parseStars(TypeInfo{Kind: TypeVoid})
			if err != nil {
				return err
			}
			pname, err := c.paramName()
			if err != nil {
				return err
			}
			params = append(params, param{name: pname, typ: pt, line: tok.Line})
			continue
		}
		pt, err := c.parseTypeAndStars()
		if err != nil {
			return err
		}
		pname, err := c.paramName()
		if err != nil {
			return err
		}
		params = append(params, param{name: pname, typ: pt, line: tok.Line})
	}

	sym, exists := c.syms.Lookup(name)
	if exists && sym.Kind != symFunc {
		return fmt.Errorf("redefinition of %q on line %d", name, nameTok.Line)
	}
	if exists && sym.Argc != len(params) {
		return fmt.Errorf("%q redeclared with %d parameters on line %d", name, len(params), nameTok.Line)
	}
	if !exists {
		var err error
		sym, err = c.syms.Add(&Symbol{
			Name: name,
			Kind: symFunc,
			Type: ret,
			Argc: len(params),
		}, nameTok.Line)
		if err != nil {
			return err
		}
	}

	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type == SEMICOLON {
		return nil // prototype
	}
	if tok.Type != LBRACE {
		return fmt.Errorf("expected '{' or ';' on line %d", tok.Line)
	}
	if sym.Defined {
		return fmt.Errorf("redefinition of function %q on line %d", name, nameTok.Line)
	}

	sym.CodeOff = uint32(c.codeOff())
	sym.Defined = true
	if name == "main" && !c.img.HasEntry {
		c.img.HasEntry = true
		c.img.EntryOffset = sym.CodeOff
	}
	if isExeFunc(name) {
		c.exeFuncs = append(c.exeFuncs, sym.CodeOff)
	}

	mark := c.syms.Mark()
	c.scopeMark = mark
	for i, p := range params {
		if p.name == "" {
			return fmt.Errorf("parameter %d of %q needs a name on line %d", i+1, name, nameTok.Line)
		}
		if _, dup := c.syms.LookupSince(mark, p.name); dup {
			return fmt.Errorf("duplicate parameter %q on line %d", p.name, p.line)
		}
		if _, err := c.syms.Add(&Symbol{
			Name:    p.name,
			Kind:    symParam,
			Type:    p.typ,
			Offset:  int32(8 + 4*i),
			Defined: true,
		}, p.line); err != nil {
			return err
		}
	}

	// push ebp; mov ebp, esp; sub esp, K (K patched after the body)
	if err := c.emit(0x55, 0x89, 0xE5, 0x81, 0xEC); err != nil {
		return err
	}
	kOff := c.codeOff()
	if err := c.emitU32(0); err != nil {
		return err
	}

	c.nextLocal = 0
	c.minLocal = 0
	c.curRetType = ret
	c.loops = c.loops[:0]

	if err := c.parseBlock(); err != nil {
		return err
	}

	// Fall-through returns 0.
	if err := c.emitMovEAX(0); err != nil {
		return err
	}
	if err := c.emit(0x89, 0xEC, 0x5D, 0xC3); err != nil {
		return err
	}

	k := int(-c.minLocal)
	if k < 16 {
		k = 16
	}
	k = alignUp(k, 16)
	if err := c.img.Code.SetU32(kOff, uint32(k)); err != nil {
		return err
	}

	c.syms.Release(mark)
	c.scopeMark = 0
	return nil
}

func (c *Compiler) paramName() (string, error) {
	tok, err := c.lex.Peek()
	if err != nil {
		return "", err
	}
	if tok.Type != IDENTIFIER {
		return "", nil // prototypes may omit names
	}
	c.lex.Next()
	return tok.Lexeme, nil
}

// parseLocalDecl compiles one local declaration statement, consuming the
// trailing semicolon.
func (c *Compiler) parseLocalDecl() error {
	base, err := c.parseBaseType()
	if err != nil {
		return err
	}
	for {
		t, err := c.parseStars(base)
		if err != nil {
			return err
		}
		nameTok, err := c.lex.Next()
		if err != nil {
			return err
		}
		if nameTok.Type != IDENTIFIER {
			return fmt.Errorf("expected a name on line %d", nameTok.Line)
		}
		if err := c.parseLocalVar(t, nameTok); err != nil {
			return err
		}

		sep, err := c.lex.Next()
		if err != nil {
			return err
		}
		if sep.Type == SEMICOLON {
			return nil
		}
		if sep.Type != COMMA {
			return fmt.Errorf("expected ';' or ',' on line %d", sep.Line)
		}
	}
}

func (c *Compiler) parseLocalVar(t TypeInfo, nameTok Token) error {
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if _, dup := c.syms.LookupSince(c.scopeMark, nameTok.Lexeme); dup {
		return fmt.Errorf("redefinition of %q on line %d", nameTok.Lexeme, nameTok.Line)
	}

	sym := &Symbol{Name: nameTok.Lexeme, Kind: symLocal, Type: t, Defined: true}

	if tok.Type == LBRACKET {
		elemSize, arrayLen, dims, total, err := c.parseArrayDims(t, nameTok.Line)
		if err != nil {
			return err
		}
		sym.Offset = c.allocLocal(total)
		sym.IsArray = true
		sym.ElemSize = elemSize
		sym.ArrayLen = arrayLen
		sym.Dims = dims
		_, err = c.syms.Add(sym, nameTok.Line)
		return err
	}

	size := 4
	if t.Kind == TypeStruct {
		var err error
		size, err = c.typeSize(t, nameTok.Line)
		if err != nil {
			return err
		}
	}
	sym.Offset = c.allocLocal(size)
	if _, err := c.syms.Add(sym, nameTok.Line); err != nil {
		return err
	}

	if tok.Type == ASSIGN {
		c.lex.Next()
		if t.Kind == TypeStruct {
			return fmt.Errorf("struct initialisers are not supported on line %d", nameTok.Line)
		}
		if _, err := c.compileValue(); err != nil {
			return err
		}
		return c.storeVar(sym, nameTok.Line)
	}
	return nil
}
