package cc

import (
	"fmt"

	"gokos/pkg/obj"
)

func (c *Compiler) emit(bs ...byte) error  { return c.img.Code.Emit(bs...) }
func (c *Compiler) emitU32(v uint32) error { return c.img.Code.U32(v) }
func (c *Compiler) codeOff() int           { return c.img.Code.Len() }

// emitMovEAX loads a 32-bit immediate into EAX.
func (c *Compiler) emitMovEAX(v uint32) error {
	if err := c.emit(0xB8); err != nil {
		return err
	}
	return c.emitU32(v)
}

// emitPushImm pushes a 32-bit immediate.
func (c *Compiler) emitPushImm(v uint32) error {
	if err := c.emit(0x68); err != nil {
		return err
	}
	return c.emitU32(v)
}

// pushEAX / popEBX implement the operand stack convention: binary
// operators push the left value, evaluate the right into EAX, then pop
// the left into EBX.
func (c *Compiler) pushEAX() error { return c.emit(0x50) }
func (c *Compiler) popEBX() error  { return c.emit(0x5B) }

// emitJmpHole emits jmp rel32 with a zero displacement and returns the
// offset of the hole for patchHole.
func (c *Compiler) emitJmpHole() (int, error) {
	if err := c.emit(0xE9); err != nil {
		return 0, err
	}
	off := c.codeOff()
	return off, c.emitU32(0)
}

// emitJccHole emits a conditional jump (0F 80+cc rel32) with a hole.
func (c *Compiler) emitJccHole(cc byte) (int, error) {
	if err := c.emit(0x0F, 0x80+cc); err != nil {
		return 0, err
	}
	off := c.codeOff()
	return off, c.emitU32(0)
}

// patchHole points a previously emitted rel32 hole at the current cursor.
func (c *Compiler) patchHole(off int) error {
	rel := int32(c.codeOff()) - int32(off+4)
	return c.img.Code.SetU32(off, uint32(rel))
}

// emitJmpTo emits a backward jmp rel32 to a known code offset.
func (c *Compiler) emitJmpTo(target int) error {
	if err := c.emit(0xE9); err != nil {
		return err
	}
	rel := int32(target) - int32(c.codeOff()+4)
	return c.emitU32(uint32(rel))
}

// emitBoolEAX collapses the comparison result in the flags into EAX:
// setcc al; movzx eax, al.
func (c *Compiler) emitBoolEAX(cc byte) error {
	return c.emit(0x0F, 0x90+cc, 0xC0, 0x0F, 0xB6, 0xC0)
}

// allocLocal reserves a stack slot. Scalars take 4 bytes; arrays and
// structs take their full size padded to 4. Offsets are negative and
// non-increasing within one function.
func (c *Compiler) allocLocal(size int) int32 {
	if size < 4 {
		size = 4
	}
	size = alignUp(size, 4)
	c.nextLocal -= int32(size)
	if c.nextLocal < c.minLocal {
		c.minLocal = c.nextLocal
	}
	return c.nextLocal
}

// loadVar leaves the symbol's value in EAX. Arrays decay to their base
// address; char reads are zero-extended byte loads.
func (c *Compiler) loadVar(sym *Symbol, line int) (TypeInfo, error) {
	switch sym.Kind {
	case symLocal, symParam:
		if sym.IsArray || sym.Type.Kind == TypeStruct {
			// lea eax, [ebp+off]
			if err := c.emit(0x8D, 0x85); err != nil {
				return TypeInfo{}, err
			}
			return sym.Type, c.emitU32(uint32(sym.Offset))
		}
		if sym.Type.Kind == TypeChar {
			if err := c.emit(0x0F, 0xB6, 0x85); err != nil {
				return TypeInfo{}, err
			}
			return sym.Type, c.emitU32(uint32(sym.Offset))
		}
		if err := c.emit(0x8B, 0x85); err != nil {
			return TypeInfo{}, err
		}
		return sym.Type, c.emitU32(uint32(sym.Offset))

	case symGlobal:
		if sym.IsArray || sym.Type.Kind == TypeStruct {
			return sym.Type, c.emitMovEAX(sym.Addr)
		}
		if sym.Type.Kind == TypeChar {
			if err := c.emit(0x0F, 0xB6, 0x05); err != nil {
				return TypeInfo{}, err
			}
			return sym.Type, c.emitU32(sym.Addr)
		}
		if err := c.emit(0x8B, 0x05); err != nil {
			return TypeInfo{}, err
		}
		return sym.Type, c.emitU32(sym.Addr)

	case symEnum:
		// Enum constants live in the data section.
		if err := c.emit(0x8B, 0x05); err != nil {
			return TypeInfo{}, err
		}
		return TypeInfo{Kind: TypeInt}, c.emitU32(sym.Addr)

	case symConst:
		return TypeInfo{Kind: TypeInt}, c.emitMovEAX(sym.Addr)
	}
	return TypeInfo{}, fmt.Errorf("%q is not a value on line %d", sym.Name, line)
}

// storeVar writes EAX (or AL for char) into the symbol's slot.
func (c *Compiler) storeVar(sym *Symbol, line int) error {
	switch sym.Kind {
	case symLocal, symParam:
		if sym.Type.Kind == TypeChar {
			if err := c.emit(0x88, 0x85); err != nil {
				return err
			}
			return c.emitU32(uint32(sym.Offset))
		}
		if err := c.emit(0x89, 0x85); err != nil {
			return err
		}
		return c.emitU32(uint32(sym.Offset))
	case symGlobal:
		if sym.Type.Kind == TypeChar {
			if err := c.emit(0x88, 0x05); err != nil {
				return err
			}
			return c.emitU32(sym.Addr)
		}
		if err := c.emit(0x89, 0x05); err != nil {
			return err
		}
		return c.emitU32(sym.Addr)
	}
	return fmt.Errorf("cannot assign to %q on line %d", sym.Name, line)
}

// addrOfVar leaves the symbol's address in EAX.
func (c *Compiler) addrOfVar(sym *Symbol, line int) error {
	switch sym.Kind {
	case symLocal, symParam:
		if err := c.emit(0x8D, 0x85); err != nil {
			return err
		}
		return c.emitU32(uint32(sym.Offset))
	case symGlobal, symEnum:
		return c.emitMovEAX(sym.Addr)
	}
	return fmt.Errorf("cannot take the address of %q on line %d", sym.Name, line)
}

// addCallPatch records a relative patch for a call to a not yet defined
// function and emits the placeholder displacement.
func (c *Compiler) addCallPatch(name string) error {
	p := obj.Patch{
		Offset:   uint32(c.codeOff()),
		Name:     name,
		Relative: true,
		Width:    4,
	}
	if err := c.img.Patches.Add(p); err != nil {
		return err
	}
	return c.emitU32(0)
}
