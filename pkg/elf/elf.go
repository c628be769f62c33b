// Package elf writes the minimal ELF32 container used for AOT output: one
// loadable segment for code and one for data, at the same fixed linear
// addresses the JIT loader uses, so the file bytes match the JIT image.
package elf

import "fmt"

const (
	ehdrSize = 52
	phdrSize = 32
	pageSize = 0x1000

	etExec = 2
	em386  = 3
	ptLoad = 1

	pfX = 1
	pfW = 2
	pfR = 4
)

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

type writer struct {
	buf []byte
}

func (w *writer) byte(v byte)  { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = append(w.buf, byte(v), byte(v>>8)) }
func (w *writer) u32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func (w *writer) pad(n int) { w.buf = append(w.buf, make([]byte, n)...) }

// Build produces a complete ELF32 executable image for i386. entry is the
// absolute entry address (codeBase + entry offset).
func Build(codeBase uint32, code []byte, dataBase uint32, data []byte, entry uint32) ([]byte, error) {
	if entry < codeBase || entry >= codeBase+uint32(len(code))+1 {
		return nil, fmt.Errorf("entry %#x outside code segment", entry)
	}

	// Segment file offsets must be congruent to their virtual addresses
	// modulo the page size; both bases are page aligned so page-aligned
	// offsets satisfy that.
	codeOff := pageSize
	dataOff := alignUp(codeOff+len(code), pageSize)

	w := &writer{buf: make([]byte, 0, dataOff+len(data))}

	// e_ident
	w.byte(0x7F)
	w.byte('E')
	w.byte('L')
	w.byte('F')
	w.byte(1) // ELFCLASS32
	w.byte(1) // little endian
	w.byte(1) // EV_CURRENT
	w.pad(9)

	w.u16(etExec)
	w.u16(em386)
	w.u32(1) // e_version
	w.u32(entry)
	w.u32(ehdrSize) // program header table follows the ELF header
	w.u32(0)        // no section headers
	w.u32(0)        // e_flags
	w.u16(ehdrSize)
	w.u16(phdrSize)
	w.u16(2) // two PT_LOAD entries
	w.u16(0)
	w.u16(0)
	w.u16(0)

	// PT_LOAD: code, R+X
	w.u32(ptLoad)
	w.u32(uint32(codeOff))
	w.u32(codeBase)
	w.u32(codeBase)
	w.u32(uint32(len(code)))
	w.u32(uint32(len(code)))
	w.u32(pfR | pfX)
	w.u32(pageSize)

	// PT_LOAD: data, R+W
	w.u32(ptLoad)
	w.u32(uint32(dataOff))
	w.u32(dataBase)
	w.u32(dataBase)
	w.u32(uint32(len(data)))
	w.u32(uint32(len(data)))
	w.u32(pfR | pfW)
	w.u32(pageSize)

	w.pad(codeOff - len(w.buf))
	w.buf = append(w.buf, code...)
	w.pad(dataOff - len(w.buf))
	w.buf = append(w.buf, data...)

	return w.buf, nil
}
