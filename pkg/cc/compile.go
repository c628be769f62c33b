// Package cc compiles a small C dialect to 32-bit x86 machine code in a
// single pass: the recursive-descent parser emits bytes as it goes and
// forward references are fixed by the patch resolver after the last
// declaration.
package cc

import (
	"fmt"
	"strings"

	"gokos/pkg/kernel"
	"gokos/pkg/obj"
)

// Program is the result of a successful compile: the load image plus the
// code offsets of any compile-time #exe functions, in source order.
type Program struct {
	Image    *obj.Image
	ExeFuncs []uint32
}

// Compiler holds all state for one compile. A Compiler is used once.
type Compiler struct {
	host kernel.Host
	mode kernel.Mode

	img  *obj.Image
	syms *SymbolTable
	lex  *Lexer

	structs    []*StructDef
	structTags map[string]int
	typedefs   map[string]TypeInfo
	exeFuncs   []uint32

	// Per-function state.
	nextLocal  int32 // next free ebp-relative slot, negative
	minLocal   int32 // deepest slot seen, sizes the prologue reservation
	curRetType TypeInfo
	loops      []*loopCtx
	scopeMark  int // symbol-table mark of the innermost open scope
}

type loopCtx struct {
	breaks     []int // rel32 hole offsets fixed at loop close
	contTarget int   // code offset, -1 while unknown (do/while)
	conts      []int // rel32 holes pending a late continue target
	isSwitch   bool
}

// New creates a compiler bound to a host. Host routines and the
// predefined numeric constants are installed before any source is read.
func New(host kernel.Host, mode kernel.Mode) *Compiler {
	c := &Compiler{
		host:       host,
		mode:       mode,
		img:        obj.NewImage(obj.CCCodeBase, obj.CCDataBase),
		syms:       newSymbolTable(),
		structTags: make(map[string]int),
		typedefs:   make(map[string]TypeInfo),
	}
	// Width aliases all fold to char or int.
	c.typedefs["u8"] = TypeInfo{Kind: TypeChar}
	c.typedefs["i8"] = TypeInfo{Kind: TypeChar}
	c.typedefs["u16"] = TypeInfo{Kind: TypeInt}
	c.typedefs["i16"] = TypeInfo{Kind: TypeInt}
	c.typedefs["u32"] = TypeInfo{Kind: TypeInt}
	c.typedefs["i32"] = TypeInfo{Kind: TypeInt}

	for _, b := range kernel.FuncBindings(host, mode) {
		c.syms.Add(&Symbol{
			Name:    b.Name,
			Kind:    symHost,
			Type:    TypeInfo{Kind: TypeInt},
			Addr:    b.Addr,
			Argc:    b.Argc,
			Defined: true,
		}, 0)
	}
	for _, k := range kernel.ConstBindings(false) {
		c.syms.Add(&Symbol{
			Name:    k.Name,
			Kind:    symConst,
			Type:    TypeInfo{Kind: TypeInt},
			Addr:    uint32(k.Value),
			Defined: true,
		}, 0)
	}
	return c
}

// Compile is the package-level convenience entry point.
func Compile(host kernel.Host, mode kernel.Mode, src, baseDir string) (*Program, error) {
	return New(host, mode).Compile(src, baseDir)
}

// Compile preprocesses and parses src, resolves patches, and returns the
// finished program. baseDir anchors relative #include paths.
func (c *Compiler) Compile(src, baseDir string) (*Program, error) {
	if len(src) > obj.SourceCap {
		return nil, fmt.Errorf("source too large (%d bytes, max %d)", len(src), obj.SourceCap)
	}
	expanded, err := preprocess(c.host, c.mode, src, baseDir)
	if err != nil {
		return nil, err
	}
	c.lex = newLexer(expanded)

	for {
		tok, err := c.lex.Peek()
		if err != nil {
			return nil, err
		}
		if tok.Type == EOF {
			break
		}
		if err := c.parseTopLevel(); err != nil {
			return nil, err
		}
	}

	if !c.img.HasEntry {
		return nil, fmt.Errorf("no entry point found")
	}

	err = c.img.Resolve(func(name string) (uint32, bool) {
		sym, ok := c.syms.Lookup(name)
		if !ok || !sym.Defined {
			return 0, false
		}
		switch sym.Kind {
		case symFunc:
			return c.img.CodeBase + sym.CodeOff, true
		case symHost:
			return sym.Addr, true
		}
		return sym.Addr, true
	})
	if err != nil {
		return nil, err
	}

	return &Program{Image: c.img, ExeFuncs: c.exeFuncs}, nil
}

// enum constants and globals share the data section; this places a new
// aligned slot and returns its absolute address.
func (c *Compiler) dataSlot(size, align int) (uint32, error) {
	pad := alignUp(c.img.Data.Len(), align) - c.img.Data.Len()
	if err := c.img.Data.Zero(pad); err != nil {
		return 0, err
	}
	addr := c.img.DataBase + uint32(c.img.Data.Len())
	if err := c.img.Data.Zero(size); err != nil {
		return 0, err
	}
	return addr, nil
}

// internString emits a nul-terminated string literal into the data section
// and returns its absolute address.
func (c *Compiler) internString(s string) (uint32, error) {
	addr := c.img.DataBase + uint32(c.img.Data.Len())
	if err := c.img.Data.Emit([]byte(s)...); err != nil {
		return 0, err
	}
	if err := c.img.Data.Byte(0); err != nil {
		return 0, err
	}
	return addr, nil
}

func isExeFunc(name string) bool {
	return strings.HasPrefix(name, "__cc_exe_")
}
