package cc

import (
	"fmt"

	"gokos/pkg/obj"
)

// maxSymName bounds symbol names.
const maxSymName = 64

type symKind int

const (
	symLocal symKind = iota
	symParam
	symFunc
	symHost
	symGlobal
	symEnum  // user enum constant, value stored in the data section
	symConst // predefined numeric constant, folds to an immediate
)

// Symbol is one entry in the flat, stack-shaped symbol table.
type Symbol struct {
	Name string
	Kind symKind
	Type TypeInfo

	Offset   int32  // ebp-relative, locals and params
	Addr     uint32 // absolute, globals / enums / host bindings
	ConstVal int32  // numeric value of enum constants
	CodeOff  uint32 // functions
	Argc     int
	Defined  bool

	IsArray  bool
	ElemSize int // first-subscript scale: element size, or row size for 2-D
	ArrayLen int
	Dims     int
}

// SymbolTable is a stack of symbols. Declarations append; closing a block
// truncates back to the mark taken when the block opened, which gives
// lexical scoping with inner shadowing for free.
type SymbolTable struct {
	syms []*Symbol
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

// Mark returns the current length, to be restored by Release.
func (s *SymbolTable) Mark() int { return len(s.syms) }

// Release drops every symbol declared since the matching Mark.
func (s *SymbolTable) Release(mark int) { s.syms = s.syms[:mark] }

// Add appends a symbol. Redeclaration within the current innermost region
// is caught by the callers, which check Lookup against their own mark.
func (s *SymbolTable) Add(sym *Symbol, line int) (*Symbol, error) {
	if len(sym.Name) > maxSymName {
		return nil, fmt.Errorf("name %q too long on line %d", sym.Name[:16]+"...", line)
	}
	if len(s.syms) >= obj.MaxSymbols {
		return nil, fmt.Errorf("too many symbols on line %d", line)
	}
	s.syms = append(s.syms, sym)
	return sym, nil
}

// Lookup scans from the innermost declaration outward.
func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(s.syms) - 1; i >= 0; i-- {
		if s.syms[i].Name == name {
			return s.syms[i], true
		}
	}
	return nil, false
}

// LookupSince scans only symbols declared after mark, for duplicate checks
// within one scope.
func (s *SymbolTable) LookupSince(mark int, name string) (*Symbol, bool) {
	for i := len(s.syms) - 1; i >= mark; i-- {
		if s.syms[i].Name == name {
			return s.syms[i], true
		}
	}
	return nil, false
}
