package obj

import (
	"errors"
	"fmt"
)

// Capacity ceilings for one compile. The load region reserved by the kernel
// is exactly CodeCap+DataCap bytes per tool, so these are hard limits.
const (
	CodeCap   = 128 * 1024
	DataCap   = 512 * 1024
	SourceCap = 256 * 1024

	MaxPatches = 4096
	MaxSymbols = 1024
)

// Fixed load addresses. JIT and AOT use the same linear addresses so that an
// ELF produced from a compile is byte-identical to what the JIT loads.
const (
	CCCodeBase uint32 = 0x00400000
	CCDataBase uint32 = CCCodeBase + CodeCap
	ASCodeBase uint32 = 0x00500000
	ASDataBase uint32 = ASCodeBase + CodeCap
)

var (
	ErrCodeOverflow   = errors.New("code buffer overflow")
	ErrDataOverflow   = errors.New("data buffer overflow")
	ErrTooManyPatches = errors.New("too many patches")
)

// Buffer is a fixed-capacity byte store with a monotone write cursor.
type Buffer struct {
	buf     []byte
	cap     int
	errFull error
}

func NewBuffer(capacity int, errFull error) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity), cap: capacity, errFull: errFull}
}

// Len returns the current write cursor.
func (b *Buffer) Len() int { return len(b.buf) }

// Bytes returns the written bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

// Byte appends one byte.
func (b *Buffer) Byte(v byte) error {
	if len(b.buf)+1 > b.cap {
		return b.errFull
	}
	b.buf = append(b.buf, v)
	return nil
}

// Emit appends a sequence of bytes.
func (b *Buffer) Emit(vs ...byte) error {
	if len(b.buf)+len(vs) > b.cap {
		return b.errFull
	}
	b.buf = append(b.buf, vs...)
	return nil
}

// U16 appends v little-endian in two bytes.
func (b *Buffer) U16(v uint16) error {
	return b.Emit(byte(v), byte(v>>8))
}

// U32 appends v little-endian in four bytes.
func (b *Buffer) U32(v uint32) error {
	return b.Emit(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// Zero appends n zero bytes (reserved/bss-style space).
func (b *Buffer) Zero(n int) error {
	if n < 0 || len(b.buf)+n > b.cap {
		return b.errFull
	}
	b.buf = append(b.buf, make([]byte, n)...)
	return nil
}

// SetU32 overwrites four bytes at off with v little-endian. off must address
// already-written space.
func (b *Buffer) SetU32(off int, v uint32) error {
	if off < 0 || off+4 > len(b.buf) {
		return fmt.Errorf("write at %d outside written range %d", off, len(b.buf))
	}
	b.buf[off] = byte(v)
	b.buf[off+1] = byte(v >> 8)
	b.buf[off+2] = byte(v >> 16)
	b.buf[off+3] = byte(v >> 24)
	return nil
}

// SetByte overwrites one byte at off.
func (b *Buffer) SetByte(off int, v byte) error {
	if off < 0 || off >= len(b.buf) {
		return fmt.Errorf("write at %d outside written range %d", off, len(b.buf))
	}
	b.buf[off] = v
	return nil
}

// Image is the output of one compile: two section buffers, their load
// addresses, the unresolved patch list, and the entry point.
type Image struct {
	CodeBase uint32
	DataBase uint32
	Code     *Buffer
	Data     *Buffer
	Patches  PatchList

	EntryOffset uint32
	HasEntry    bool
}

// NewImage creates an empty image bound to the given load addresses.
func NewImage(codeBase, dataBase uint32) *Image {
	return &Image{
		CodeBase: codeBase,
		DataBase: dataBase,
		Code:     NewBuffer(CodeCap, ErrCodeOverflow),
		Data:     NewBuffer(DataCap, ErrDataOverflow),
	}
}

// EntryAddr returns the absolute address of the entry point.
func (img *Image) EntryAddr() uint32 {
	return img.CodeBase + img.EntryOffset
}
