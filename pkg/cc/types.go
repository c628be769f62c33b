package cc

import "fmt"

// maxStructFields bounds the field list of one struct.
const maxStructFields = 16

// TypeKind is the fixed set of value types the generator knows.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypeChar
	TypePtr     // generic pointer (void*, or pointer depth >= 2)
	TypeIntPtr  // int*
	TypeCharPtr // char*
	TypeStructPtr
	TypeStruct
	TypeFuncPtr
)

// TypeInfo is a type tag plus a struct back-index where applicable.
type TypeInfo struct {
	Kind      TypeKind
	StructIdx int // into Compiler.structs for TypeStruct / TypeStructPtr
}

func (t TypeInfo) isPointer() bool {
	switch t.Kind {
	case TypePtr, TypeIntPtr, TypeCharPtr, TypeStructPtr, TypeFuncPtr:
		return true
	}
	return false
}

// pointerTo maps a value type to its pointer type.
func pointerTo(t TypeInfo) TypeInfo {
	switch t.Kind {
	case TypeInt:
		return TypeInfo{Kind: TypeIntPtr}
	case TypeChar:
		return TypeInfo{Kind: TypeCharPtr}
	case TypeStruct:
		return TypeInfo{Kind: TypeStructPtr, StructIdx: t.StructIdx}
	}
	return TypeInfo{Kind: TypePtr}
}

// elemType maps a pointer type to the type it points at.
func elemType(t TypeInfo) TypeInfo {
	switch t.Kind {
	case TypeIntPtr:
		return TypeInfo{Kind: TypeInt}
	case TypeCharPtr:
		return TypeInfo{Kind: TypeChar}
	case TypeStructPtr:
		return TypeInfo{Kind: TypeStruct, StructIdx: t.StructIdx}
	}
	return TypeInfo{Kind: TypeInt}
}

// Field is one member of a struct.
type Field struct {
	Name   string
	Type   TypeInfo
	Offset int
	Count  int // >1 for inline arrays
}

// StructDef is a named struct layout. Complete flips true only after the
// full body has parsed; sizing an incomplete struct is an error.
type StructDef struct {
	Tag      string
	Fields   []Field
	Size     int
	Align    int
	Complete bool
}

func (s *StructDef) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// typeSize returns the byte size of t. Incomplete structs are an error.
func (c *Compiler) typeSize(t TypeInfo, line int) (int, error) {
	switch t.Kind {
	case TypeChar:
		return 1, nil
	case TypeVoid:
		return 0, nil
	case TypeStruct:
		sd := c.structs[t.StructIdx]
		if !sd.Complete {
			return 0, fmt.Errorf("struct %s is incomplete on line %d", sd.Tag, line)
		}
		return sd.Size, nil
	}
	return 4, nil
}

// typeAlign returns natural alignment: char 1, int and pointers 4,
// struct the max of its field alignments (minimum 1).
func (c *Compiler) typeAlign(t TypeInfo) int {
	switch t.Kind {
	case TypeChar:
		return 1
	case TypeVoid:
		return 1
	case TypeStruct:
		a := c.structs[t.StructIdx].Align
		if a < 1 {
			a = 1
		}
		return a
	}
	return 4
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
