package cc

import (
	"fmt"
)

// maxCallArgs bounds one call's argument list; the stack-slot reversal
// uses 8-bit displacements.
const maxCallArgs = 16

// val describes the result of a partially compiled expression. When addr
// is set, EAX holds the address of the value and the load has not been
// emitted yet; this is what makes assignment and & work in one pass.
// A plain scalar variable defers even the address: sym is set and nothing
// has been emitted, so reads and writes use the direct addressing forms.
// Arrays decay to their base address with scale carrying the subscript
// multiplier and dims the remaining dimensions.
type val struct {
	typ   TypeInfo
	addr  bool
	sym   *Symbol
	scale int
	dims  int
	elem  TypeInfo
}

// rvalize forces v into a plain value in EAX.
func (c *Compiler) rvalize(v val) (val, error) {
	if v.sym != nil {
		if _, err := c.loadVar(v.sym, 0); err != nil {
			return val{}, err
		}
		v.sym = nil
		return v, nil
	}
	if !v.addr {
		return v, nil
	}
	if v.typ.Kind == TypeStruct {
		// A struct value is represented by its address.
		v.addr = false
		return v, nil
	}
	if v.typ.Kind == TypeChar {
		if err := c.emit(0x0F, 0xB6, 0x00); err != nil { // movzx eax, byte [eax]
			return val{}, err
		}
	} else {
		if err := c.emit(0x8B, 0x00); err != nil { // mov eax, [eax]
			return val{}, err
		}
	}
	v.addr = false
	return v, nil
}

// materialize turns a deferred variable reference into an address value
// in EAX, for the operators that genuinely need the address.
func (c *Compiler) materialize(v val, line int) (val, error) {
	if v.sym == nil {
		return v, nil
	}
	if err := c.addrOfVar(v.sym, line); err != nil {
		return val{}, err
	}
	v.sym = nil
	v.addr = true
	return v, nil
}

// compileValue compiles a full expression and leaves its value in EAX.
func (c *Compiler) compileValue() (TypeInfo, error) {
	v, err := c.compileExpr()
	if err != nil {
		return TypeInfo{}, err
	}
	v, err = c.rvalize(v)
	return v.typ, err
}

// compileExpr is the assignment level: lvalue (op)= rvalue, right
// associative, below the ternary.
func (c *Compiler) compileExpr() (val, error) {
	left, err := c.compileTernary()
	if err != nil {
		return val{}, err
	}

	tok, err := c.lex.Peek()
	if err != nil {
		return val{}, err
	}
	if !isAssignOp(tok.Type) {
		return left, nil
	}
	c.lex.Next()

	if left.sym != nil {
		// Direct store: no address to carry across the rvalue.
		right, err := c.compileExpr()
		if err != nil {
			return val{}, err
		}
		if _, err := c.rvalize(right); err != nil {
			return val{}, err
		}
		if tok.Type != ASSIGN {
			if err := c.emit(0x89, 0xC1); err != nil { // mov ecx, eax
				return val{}, err
			}
			if _, err := c.loadVar(left.sym, tok.Line); err != nil {
				return val{}, err
			}
			if err := c.applyCompound(tok.Type); err != nil {
				return val{}, err
			}
		}
		if err := c.storeVar(left.sym, tok.Line); err != nil {
			return val{}, err
		}
		return val{typ: left.typ}, nil
	}

	if !left.addr {
		return val{}, fmt.Errorf("not an lvalue on line %d", tok.Line)
	}
	if err := c.pushEAX(); err != nil { // save the address
		return val{}, err
	}
	right, err := c.compileExpr()
	if err != nil {
		return val{}, err
	}
	if _, err := c.rvalize(right); err != nil {
		return val{}, err
	}
	if err := c.popEBX(); err != nil { // address back in EBX
		return val{}, err
	}

	if tok.Type != ASSIGN {
		// Compound: save the rvalue in ECX, reload the old value, apply.
		if err := c.emit(0x89, 0xC1); err != nil { // mov ecx, eax
			return val{}, err
		}
		if left.typ.Kind == TypeChar {
			err = c.emit(0x0F, 0xB6, 0x03) // movzx eax, byte [ebx]
		} else {
			err = c.emit(0x8B, 0x03) // mov eax, [ebx]
		}
		if err != nil {
			return val{}, err
		}
		if err := c.applyCompound(tok.Type); err != nil {
			return val{}, err
		}
	}

	if left.typ.Kind == TypeChar {
		err = c.emit(0x88, 0x03) // mov [ebx], al
	} else {
		err = c.emit(0x89, 0x03) // mov [ebx], eax
	}
	if err != nil {
		return val{}, err
	}
	return val{typ: left.typ}, nil
}

func isAssignOp(t TokenType) bool {
	switch t {
	case ASSIGN, ADD_ASSIGN, SUB_ASSIGN, MUL_ASSIGN, DIV_ASSIGN,
		AND_ASSIGN, OR_ASSIGN, XOR_ASSIGN, SHL_ASSIGN, SHR_ASSIGN:
		return true
	}
	return false
}

// applyCompound combines EAX (old value) with ECX (rvalue) for a compound
// assignment, leaving the result in EAX.
func (c *Compiler) applyCompound(op TokenType) error {
	switch op {
	case ADD_ASSIGN:
		return c.emit(0x01, 0xC8) // add eax, ecx
	case SUB_ASSIGN:
		return c.emit(0x29, 0xC8) // sub eax, ecx
	case MUL_ASSIGN:
		return c.emit(0x0F, 0xAF, 0xC1) // imul eax, ecx
	case DIV_ASSIGN:
		return c.emit(0x99, 0xF7, 0xF9) // cdq; idiv ecx
	case AND_ASSIGN:
		return c.emit(0x21, 0xC8)
	case OR_ASSIGN:
		return c.emit(0x09, 0xC8)
	case XOR_ASSIGN:
		return c.emit(0x31, 0xC8)
	case SHL_ASSIGN:
		return c.emit(0xD3, 0xE0) // shl eax, cl
	case SHR_ASSIGN:
		return c.emit(0xD3, 0xF8) // sar eax, cl
	}
	return fmt.Errorf("bad compound operator")
}

// compileTernary handles cond ? a : b above the binary ladder.
func (c *Compiler) compileTernary() (val, error) {
	cond, err := c.compileBinary(0)
	if err != nil {
		return val{}, err
	}
	tok, err := c.lex.Peek()
	if err != nil {
		return val{}, err
	}
	if tok.Type != QUESTION {
		return cond, nil
	}
	c.lex.Next()

	if _, err := c.rvalize(cond); err != nil {
		return val{}, err
	}
	if err := c.emit(0x85, 0xC0); err != nil { // test eax, eax
		return val{}, err
	}
	elseHole, err := c.emitJccHole(0x04) // je
	if err != nil {
		return val{}, err
	}

	thenV, err := c.compileExpr()
	if err != nil {
		return val{}, err
	}
	thenV, err = c.rvalize(thenV)
	if err != nil {
		return val{}, err
	}
	endHole, err := c.emitJmpHole()
	if err != nil {
		return val{}, err
	}
	if err := c.patchHole(elseHole); err != nil {
		return val{}, err
	}
	if err := c.expect(COLON); err != nil {
		return val{}, err
	}
	elseV, err := c.compileTernary()
	if err != nil {
		return val{}, err
	}
	if _, err := c.rvalize(elseV); err != nil {
		return val{}, err
	}
	if err := c.patchHole(endHole); err != nil {
		return val{}, err
	}
	return val{typ: thenV.typ}, nil
}

// binOp maps a token to its emit action with the left operand in EBX and
// the right in EAX.
type binOp struct {
	tok TokenType
	cc  byte // setcc nibble for comparisons, else 0xFF
}

// binLevels orders the binary operators from loosest to tightest.
var binLevels = [][]TokenType{
	{LOR},
	{LAND},
	{PIPE},
	{CARET},
	{AMP},
	{EQ, NE},
	{LT, LE, GT, GE},
	{SHL, SHR},
	{PLUS, MINUS},
	{STAR, SLASH, PERCENT},
}

func levelHas(level int, t TokenType) bool {
	for _, op := range binLevels[level] {
		if op == t {
			return true
		}
	}
	return false
}

// compileBinary climbs the precedence ladder. The generated pattern for
// every operator is: left in EAX, push; right in EAX; pop EBX; combine.
func (c *Compiler) compileBinary(level int) (val, error) {
	if level >= len(binLevels) {
		return c.compileUnary()
	}
	left, err := c.compileBinary(level + 1)
	if err != nil {
		return val{}, err
	}
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return val{}, err
		}
		if !levelHas(level, tok.Type) {
			return left, nil
		}
		c.lex.Next()

		left, err = c.rvalize(left)
		if err != nil {
			return val{}, err
		}
		if err := c.pushEAX(); err != nil {
			return val{}, err
		}
		right, err := c.compileBinary(level + 1)
		if err != nil {
			return val{}, err
		}
		right, err = c.rvalize(right)
		if err != nil {
			return val{}, err
		}
		if err := c.popEBX(); err != nil {
			return val{}, err
		}
		resType, err := c.applyBinary(tok, left, right)
		if err != nil {
			return val{}, err
		}
		left = val{typ: resType}
	}
}

// applyBinary combines EBX (left) and EAX (right), result in EAX.
func (c *Compiler) applyBinary(tok Token, left, right val) (TypeInfo, error) {
	resType := left.typ

	switch tok.Type {
	case PLUS, MINUS:
		// Pointer arithmetic scales the integer side by the element size.
		if left.typ.isPointer() && !right.typ.isPointer() {
			if err := c.scaleEAX(left.typ); err != nil {
				return TypeInfo{}, err
			}
		} else if right.typ.isPointer() && tok.Type == PLUS {
			if err := c.scaleEBX(right.typ); err != nil {
				return TypeInfo{}, err
			}
			resType = right.typ
		}
	}

	switch tok.Type {
	case PLUS:
		return resType, c.emit(0x01, 0xD8) // add eax, ebx
	case MINUS:
		// sub ebx, eax; mov eax, ebx
		return resType, c.emit(0x29, 0xC3, 0x89, 0xD8)
	case STAR:
		return resType, c.emit(0x0F, 0xAF, 0xC3) // imul eax, ebx
	case SLASH, PERCENT:
		// mov ecx, eax; mov eax, ebx; cdq; idiv ecx
		if err := c.emit(0x89, 0xC1, 0x89, 0xD8, 0x99, 0xF7, 0xF9); err != nil {
			return TypeInfo{}, err
		}
		if tok.Type == PERCENT {
			return resType, c.emit(0x89, 0xD0) // mov eax, edx
		}
		return resType, nil
	case AMP:
		return resType, c.emit(0x21, 0xD8) // and eax, ebx
	case PIPE:
		return resType, c.emit(0x09, 0xD8) // or eax, ebx
	case CARET:
		return resType, c.emit(0x31, 0xD8) // xor eax, ebx
	case SHL, SHR:
		// mov ecx, eax; mov eax, ebx; shift by cl
		if err := c.emit(0x89, 0xC1, 0x89, 0xD8); err != nil {
			return TypeInfo{}, err
		}
		if tok.Type == SHL {
			return resType, c.emit(0xD3, 0xE0) // shl eax, cl
		}
		return resType, c.emit(0xD3, 0xF8) // sar eax, cl
	case EQ, NE, LT, LE, GT, GE:
		// cmp ebx, eax; setcc al; movzx eax, al
		if err := c.emit(0x39, 0xC3); err != nil {
			return TypeInfo{}, err
		}
		var cc byte
		switch tok.Type {
		case EQ:
			cc = 0x04
		case NE:
			cc = 0x05
		case LT:
			cc = 0x0C
		case LE:
			cc = 0x0E
		case GT:
			cc = 0x0F
		case GE:
			cc = 0x0D
		}
		return TypeInfo{Kind: TypeInt}, c.emitBoolEAX(cc)
	case LAND, LOR:
		// Both sides are always evaluated; no short circuit.
		// test ebx, ebx; setne bl; test eax, eax; setne al
		if err := c.emit(0x85, 0xDB, 0x0F, 0x95, 0xC3, 0x85, 0xC0, 0x0F, 0x95, 0xC0); err != nil {
			return TypeInfo{}, err
		}
		if tok.Type == LAND {
			if err := c.emit(0x20, 0xD8); err != nil { // and al, bl
				return TypeInfo{}, err
			}
		} else {
			if err := c.emit(0x08, 0xD8); err != nil { // or al, bl
				return TypeInfo{}, err
			}
		}
		return TypeInfo{Kind: TypeInt}, c.emit(0x0F, 0xB6, 0xC0) // movzx eax, al
	}
	return TypeInfo{}, fmt.Errorf("bad binary operator %q on line %d", tok.Lexeme, tok.Line)
}

// scaleEAX multiplies EAX by the pointee size of t when it is not 1.
func (c *Compiler) scaleEAX(t TypeInfo) error {
	n, err := c.typeSize(elemType(t), 0)
	if err != nil || n <= 1 {
		return err
	}
	if err := c.emit(0x69, 0xC0); err != nil { // imul eax, eax, imm32
		return err
	}
	return c.emitU32(uint32(n))
}

func (c *Compiler) scaleEBX(t TypeInfo) error {
	n, err := c.typeSize(elemType(t), 0)
	if err != nil || n <= 1 {
		return err
	}
	if err := c.emit(0x69, 0xDB); err != nil { // imul ebx, ebx, imm32
		return err
	}
	return c.emitU32(uint32(n))
}

// compileUnary handles prefix operators, casts, sizeof, and postfix
// chains.
func (c *Compiler) compileUnary() (val, error) {
	tok, err := c.lex.Peek()
	if err != nil {
		return val{}, err
	}

	switch tok.Type {
	case MINUS:
		c.lex.Next()
		v, err := c.compileUnary()
		if err != nil {
			return val{}, err
		}
		if v, err = c.rvalize(v); err != nil {
			return val{}, err
		}
		return val{typ: v.typ}, c.emit(0xF7, 0xD8) // neg eax

	case BANG:
		c.lex.Next()
		v, err := c.compileUnary()
		if err != nil {
			return val{}, err
		}
		if _, err = c.rvalize(v); err != nil {
			return val{}, err
		}
		if err := c.emit(0x85, 0xC0); err != nil { // test eax, eax
			return val{}, err
		}
		return val{typ: TypeInfo{Kind: TypeInt}}, c.emitBoolEAX(0x04) // sete

	case TILDE:
		c.lex.Next()
		v, err := c.compileUnary()
		if err != nil {
			return val{}, err
		}
		if v, err = c.rvalize(v); err != nil {
			return val{}, err
		}
		return val{typ: v.typ}, c.emit(0xF7, 0xD0) // not eax

	case STAR:
		c.lex.Next()
		v, err := c.compileUnary()
		if err != nil {
			return val{}, err
		}
		if v, err = c.rvalize(v); err != nil {
			return val{}, err
		}
		if !v.typ.isPointer() {
			return val{}, fmt.Errorf("cannot dereference a non-pointer on line %d", tok.Line)
		}
		return c.compilePostfix(val{typ: elemType(v.typ), addr: true})

	case AMP:
		c.lex.Next()
		v, err := c.compileUnary()
		if err != nil {
			return val{}, err
		}
		if v, err = c.materialize(v, tok.Line); err != nil {
			return val{}, err
		}
		if !v.addr {
			return val{}, fmt.Errorf("cannot take the address of an rvalue on line %d", tok.Line)
		}
		// The address is already in EAX; only the type changes.
		return val{typ: pointerTo(v.typ)}, nil

	case INC, DEC:
		c.lex.Next()
		v, err := c.compileUnary()
		if err != nil {
			return val{}, err
		}
		if v, err = c.materialize(v, tok.Line); err != nil {
			return val{}, err
		}
		if !v.addr {
			return val{}, fmt.Errorf("%s needs an lvalue on line %d", tok.Lexeme, tok.Line)
		}
		return c.emitIncDec(v, tok.Type == INC, false)

	case SIZEOF:
		c.lex.Next()
		return c.compileSizeof(tok.Line)

	case LPAREN:
		c.lex.Next()
		inner, err := c.lex.Peek()
		if err != nil {
			return val{}, err
		}
		if c.isTypeStart(inner) {
			// Cast: value unchanged, static type replaced.
			t, err := c.parseTypeAndStars()
			if err != nil {
				return val{}, err
			}
			if err := c.expect(RPAREN); err != nil {
				return val{}, err
			}
			v, err := c.compileUnary()
			if err != nil {
				return val{}, err
			}
			if v, err = c.rvalize(v); err != nil {
				return val{}, err
			}
			return val{typ: t}, nil
		}
		v, err := c.compileExpr()
		if err != nil {
			return val{}, err
		}
		if err := c.expect(RPAREN); err != nil {
			return val{}, err
		}
		return c.compilePostfix(v)

	case NUMBER, CHAR:
		c.lex.Next()
		t := TypeInfo{Kind: TypeInt}
		if tok.Type == CHAR {
			t = TypeInfo{Kind: TypeChar}
		}
		return val{typ: t}, c.emitMovEAX(uint32(int32(tok.Value)))

	case STRING:
		c.lex.Next()
		addr, err := c.internString(tok.Lexeme)
		if err != nil {
			return val{}, err
		}
		return val{typ: TypeInfo{Kind: TypeCharPtr}}, c.emitMovEAX(addr)

	case IDENTIFIER:
		c.lex.Next()
		return c.compileIdentExpr(tok)
	}

	return val{}, fmt.Errorf("unexpected %q in expression on line %d", tok.Lexeme, tok.Line)
}

// compileIdentExpr handles a name: a call, or a variable reference
// followed by its postfix chain.
func (c *Compiler) compileIdentExpr(tok Token) (val, error) {
	next, err := c.lex.Peek()
	if err != nil {
		return val{}, err
	}
	if next.Type == LPAREN {
		c.lex.Next()
		return c.compileCall(tok)
	}

	sym, ok := c.syms.Lookup(tok.Lexeme)
	if !ok {
		return val{}, fmt.Errorf("undefined identifier %q on line %d", tok.Lexeme, tok.Line)
	}

	var v val
	switch sym.Kind {
	case symConst:
		if err := c.emitMovEAX(sym.Addr); err != nil {
			return val{}, err
		}
		v = val{typ: TypeInfo{Kind: TypeInt}}
	case symEnum:
		if err := c.emit(0x8B, 0x05); err != nil { // mov eax, [addr]
			return val{}, err
		}
		if err := c.emitU32(sym.Addr); err != nil {
			return val{}, err
		}
		v = val{typ: TypeInfo{Kind: TypeInt}}
	case symLocal, symParam, symGlobal:
		switch {
		case sym.IsArray:
			if err := c.addrOfVar(sym, tok.Line); err != nil {
				return val{}, err
			}
			v = val{
				typ:   pointerTo(sym.Type),
				scale: sym.ElemSize,
				dims:  sym.Dims,
				elem:  sym.Type,
			}
		case sym.Type.Kind == TypeStruct:
			if err := c.addrOfVar(sym, tok.Line); err != nil {
				return val{}, err
			}
			v = val{typ: sym.Type, addr: true}
		default:
			// Scalars defer emission so reads and writes can use the
			// direct addressing forms.
			v = val{typ: sym.Type, sym: sym}
		}
	default:
		return val{}, fmt.Errorf("%q is not a value on line %d", tok.Lexeme, tok.Line)
	}
	return c.compilePostfix(v)
}

// compilePostfix applies [], ., ->, ++ and -- chains to v.
func (c *Compiler) compilePostfix(v val) (val, error) {
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return val{}, err
		}
		switch tok.Type {
		case LBRACKET:
			c.lex.Next()
			v, err = c.compileSubscript(v, tok.Line)
			if err != nil {
				return val{}, err
			}
		case DOT:
			c.lex.Next()
			v, err = c.compileField(v, false, tok.Line)
			if err != nil {
				return val{}, err
			}
		case ARROW:
			c.lex.Next()
			v, err = c.compileField(v, true, tok.Line)
			if err != nil {
				return val{}, err
			}
		case INC, DEC:
			c.lex.Next()
			if v, err = c.materialize(v, tok.Line); err != nil {
				return val{}, err
			}
			if !v.addr {
				return val{}, fmt.Errorf("%s needs an lvalue on line %d", tok.Lexeme, tok.Line)
			}
			return c.emitIncDec(v, tok.Type == INC, true)
		default:
			return v, nil
		}
	}
}

// compileSubscript indexes an array or pointer. The base address is in
// EAX on entry.
func (c *Compiler) compileSubscript(base val, line int) (val, error) {
	scale := base.scale
	result := val{}
	switch {
	case scale > 0 && base.dims > 1:
		// One dimension down: still an address value.
		inner, err := c.typeSize(base.elem, line)
		if err != nil {
			return val{}, err
		}
		result = val{typ: base.typ, scale: inner, dims: base.dims - 1, elem: base.elem}
	case scale > 0:
		result = val{typ: base.elem, addr: true}
	case base.typ.isPointer():
		var err error
		base, err = c.rvalize(base)
		if err != nil {
			return val{}, err
		}
		n, err := c.typeSize(elemType(base.typ), line)
		if err != nil {
			return val{}, err
		}
		scale = n
		result = val{typ: elemType(base.typ), addr: true}
	default:
		return val{}, fmt.Errorf("cannot subscript a non-pointer on line %d", line)
	}

	if err := c.pushEAX(); err != nil { // base address
		return val{}, err
	}
	if _, err := c.compileValue(); err != nil { // index in EAX
		return val{}, err
	}
	if err := c.expect(RBRACKET); err != nil {
		return val{}, err
	}
	if scale > 1 {
		if err := c.emit(0x69, 0xC0); err != nil { // imul eax, eax, imm32
			return val{}, err
		}
		if err := c.emitU32(uint32(scale)); err != nil {
			return val{}, err
		}
	}
	if err := c.popEBX(); err != nil {
		return val{}, err
	}
	if err := c.emit(0x01, 0xD8); err != nil { // add eax, ebx
		return val{}, err
	}
	return result, nil
}

// compileField resolves s.f / p->f. The struct address ends up in EAX
// plus the field offset.
func (c *Compiler) compileField(base val, arrow bool, line int) (val, error) {
	var sd *StructDef
	if arrow {
		v, err := c.rvalize(base)
		if err != nil {
			return val{}, err
		}
		if v.typ.Kind != TypeStructPtr {
			return val{}, fmt.Errorf("-> needs a struct pointer on line %d", line)
		}
		sd = c.structs[v.typ.StructIdx]
	} else {
		if base.typ.Kind != TypeStruct {
			return val{}, fmt.Errorf(". needs a struct value on line %d", line)
		}
		// Struct values carry their address; drop the pending load.
		base.addr = false
		sd = c.structs[base.typ.StructIdx]
	}

	nameTok, err := c.lex.Next()
	if err != nil {
		return val{}, err
	}
	if nameTok.Type != IDENTIFIER {
		return val{}, fmt.Errorf("expected field name on line %d", line)
	}
	f, ok := sd.field(nameTok.Lexeme)
	if !ok {
		return val{}, fmt.Errorf("struct %s has no field %q on line %d", sd.Tag, nameTok.Lexeme, line)
	}

	if f.Offset > 0 {
		if err := c.emit(0x05); err != nil { // add eax, imm32
			return val{}, err
		}
		if err := c.emitU32(uint32(f.Offset)); err != nil {
			return val{}, err
		}
	}
	if f.Count > 1 {
		n, err := c.typeSize(f.Type, line)
		if err != nil {
			return val{}, err
		}
		return val{typ: pointerTo(f.Type), scale: n, dims: 1, elem: f.Type}, nil
	}
	return val{typ: f.Type, addr: true}, nil
}

// emitIncDec bumps the lvalue whose address is in EAX by one. For the
// postfix form the old value is the expression result.
func (c *Compiler) emitIncDec(v val, inc, postfix bool) (val, error) {
	step := uint32(1)
	if v.typ.isPointer() {
		n, err := c.typeSize(elemType(v.typ), 0)
		if err != nil {
			return val{}, err
		}
		if n > 1 {
			step = uint32(n)
		}
	}

	if err := c.emit(0x89, 0xC3); err != nil { // mov ebx, eax (address)
		return val{}, err
	}
	if v.typ.Kind == TypeChar {
		if err := c.emit(0x0F, 0xB6, 0x03); err != nil { // movzx eax, byte [ebx]
			return val{}, err
		}
	} else {
		if err := c.emit(0x8B, 0x03); err != nil { // mov eax, [ebx]
			return val{}, err
		}
	}
	if postfix {
		if err := c.emit(0x89, 0xC1); err != nil { // mov ecx, eax (old value)
			return val{}, err
		}
	}
	op := byte(0x05) // add eax, imm32
	if !inc {
		op = 0x2D // sub eax, imm32
	}
	if err := c.emit(op); err != nil {
		return val{}, err
	}
	if err := c.emitU32(step); err != nil {
		return val{}, err
	}
	if v.typ.Kind == TypeChar {
		if err := c.emit(0x88, 0x03); err != nil { // mov [ebx], al
			return val{}, err
		}
	} else {
		if err := c.emit(0x89, 0x03); err != nil { // mov [ebx], eax
			return val{}, err
		}
	}
	if postfix {
		if err := c.emit(0x89, 0xC8); err != nil { // mov eax, ecx
			return val{}, err
		}
	}
	return val{typ: v.typ}, nil
}

// compileSizeof accepts sizeof(type) and sizeof(variable).
func (c *Compiler) compileSizeof(line int) (val, error) {
	if err := c.expect(LPAREN); err != nil {
		return val{}, err
	}
	tok, err := c.lex.Peek()
	if err != nil {
		return val{}, err
	}

	var size int
	if c.isTypeStart(tok) {
		t, err := c.parseTypeAndStars()
		if err != nil {
			return val{}, err
		}
		size, err = c.typeSize(t, line)
		if err != nil {
			return val{}, err
		}
	} else if tok.Type == IDENTIFIER {
		c.lex.Next()
		sym, ok := c.syms.Lookup(tok.Lexeme)
		if !ok {
			return val{}, fmt.Errorf("undefined identifier %q on line %d", tok.Lexeme, line)
		}
		if sym.IsArray {
			size = sym.ElemSize * sym.ArrayLen
		} else {
			size, err = c.typeSize(sym.Type, line)
			if err != nil {
				return val{}, err
			}
		}
	} else {
		return val{}, fmt.Errorf("sizeof needs a type or variable on line %d", line)
	}
	if err := c.expect(RPAREN); err != nil {
		return val{}, err
	}
	return val{typ: TypeInfo{Kind: TypeInt}}, c.emitMovEAX(uint32(size))
}

// compileCall compiles name(args). Arguments are evaluated left to right
// and pushed; the top argc slots are then reversed in place so the callee
// sees the cdecl right-to-left layout; the caller cleans up afterwards.
func (c *Compiler) compileCall(name Token) (val, error) {
	argc := 0
	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return val{}, err
		}
		if tok.Type == RPAREN {
			c.lex.Next()
			break
		}
		if argc > 0 {
			if err := c.expect(COMMA); err != nil {
				return val{}, err
			}
		}
		if argc >= maxCallArgs {
			return val{}, fmt.Errorf("too many arguments on line %d (max %d)", name.Line, maxCallArgs)
		}
		if err := c.compileArg(); err != nil {
			return val{}, err
		}
		argc++
	}

	if err := c.emitArgReversal(argc); err != nil {
		return val{}, err
	}

	retType := TypeInfo{Kind: TypeInt}
	sym, known := c.syms.Lookup(name.Lexeme)
	if err := c.emit(0xE8); err != nil {
		return val{}, err
	}
	switch {
	case known && sym.Kind == symHost:
		rel := sym.Addr - (c.img.CodeBase + uint32(c.codeOff()) + 4)
		if err := c.emitU32(rel); err != nil {
			return val{}, err
		}
	case known && sym.Kind == symFunc && sym.Defined:
		retType = sym.Type
		rel := int32(sym.CodeOff) - int32(c.codeOff()+4)
		if err := c.emitU32(uint32(rel)); err != nil {
			return val{}, err
		}
	case known && sym.Kind == symFunc:
		retType = sym.Type
		if err := c.addCallPatch(name.Lexeme); err != nil {
			return val{}, err
		}
	case known:
		return val{}, fmt.Errorf("%q is not a function on line %d", name.Lexeme, name.Line)
	default:
		// Not declared yet; the resolver reports it if never defined.
		if err := c.addCallPatch(name.Lexeme); err != nil {
			return val{}, err
		}
	}

	if argc > 0 {
		if err := c.emit(0x81, 0xC4); err != nil { // add esp, imm32
			return val{}, err
		}
		if err := c.emitU32(uint32(4 * argc)); err != nil {
			return val{}, err
		}
	}
	return val{typ: retType}, nil
}

// compileArg pushes one argument. Bare literals take the push imm32 fast
// path; everything else evaluates into EAX first.
func (c *Compiler) compileArg() error {
	tok, err := c.lex.Peek()
	if err != nil {
		return err
	}
	if tok.Type == NUMBER || tok.Type == CHAR || tok.Type == STRING {
		// Only when the literal is the whole argument.
		save := *c.lex
		c.lex.Next()
		after, err := c.lex.Peek()
		if err != nil {
			return err
		}
		if after.Type == COMMA || after.Type == RPAREN {
			if tok.Type == STRING {
				addr, err := c.internString(tok.Lexeme)
				if err != nil {
					return err
				}
				return c.emitPushImm(addr)
			}
			return c.emitPushImm(uint32(int32(tok.Value)))
		}
		*c.lex = save
	}
	if _, err := c.compileValue(); err != nil {
		return err
	}
	return c.pushEAX()
}

// emitArgReversal swaps the top argc stack slots end for end, turning the
// left-to-right push order into the cdecl layout.
func (c *Compiler) emitArgReversal(argc int) error {
	for i := 0; i < argc/2; i++ {
		lo := byte(4 * i)
		hi := byte(4 * (argc - 1 - i))
		if err := c.emit(
			0x8B, 0x44, 0x24, lo, // mov eax, [esp+lo]
			0x8B, 0x5C, 0x24, hi, // mov ebx, [esp+hi]
			0x89, 0x5C, 0x24, lo, // mov [esp+lo], ebx
			0x89, 0x44, 0x24, hi, // mov [esp+hi], eax
		); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) expect(tt TokenType) error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Type != tt {
		return fmt.Errorf("unexpected %q on line %d", tok.Lexeme, tok.Line)
	}
	return nil
}
