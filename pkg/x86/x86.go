// Package x86 holds the 32-bit x86 encoding primitives shared by the C
// compiler's code generator and the assembler's instruction encoder:
// register tables, ModR/M and SIB construction, and condition codes.
package x86

import "strings"

// Register indices as used in ModR/M reg and r/m fields.
const (
	EAX = 0
	ECX = 1
	EDX = 2
	EBX = 3
	ESP = 4
	EBP = 5
	ESI = 6
	EDI = 7
)

// Reg is a named register with its ModR/M index and operand width in bytes.
type Reg struct {
	Name  string
	Index byte
	Width int // 1, 2 or 4
}

var regTable = map[string]Reg{
	"eax": {"eax", EAX, 4}, "ecx": {"ecx", ECX, 4}, "edx": {"edx", EDX, 4}, "ebx": {"ebx", EBX, 4},
	"esp": {"esp", ESP, 4}, "ebp": {"ebp", EBP, 4}, "esi": {"esi", ESI, 4}, "edi": {"edi", EDI, 4},
	"ax": {"ax", EAX, 2}, "cx": {"cx", ECX, 2}, "dx": {"dx", EDX, 2}, "bx": {"bx", EBX, 2},
	"sp": {"sp", ESP, 2}, "bp": {"bp", EBP, 2}, "si": {"si", ESI, 2}, "di": {"di", EDI, 2},
	"al": {"al", 0, 1}, "cl": {"cl", 1, 1}, "dl": {"dl", 2, 1}, "bl": {"bl", 3, 1},
	"ah": {"ah", 4, 1}, "ch": {"ch", 5, 1}, "dh": {"dh", 6, 1}, "bh": {"bh", 7, 1},
}

// LookupReg resolves a register name case-insensitively.
func LookupReg(name string) (Reg, bool) {
	r, ok := regTable[strings.ToLower(name)]
	return r, ok
}

// ModRM builds a ModR/M byte from its three fields.
func ModRM(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// SIB builds an SIB byte. scale is the log2 of the index multiplier.
func SIB(scale, index, base byte) byte {
	return scale<<6 | (index&7)<<3 | base&7
}

// Condition-code nibbles for 0F 8x Jcc and 0F 9x setcc.
var condTable = map[string]byte{
	"o": 0x0, "no": 0x1,
	"b": 0x2, "c": 0x2, "nae": 0x2,
	"ae": 0x3, "nb": 0x3, "nc": 0x3,
	"e": 0x4, "z": 0x4,
	"ne": 0x5, "nz": 0x5,
	"be": 0x6, "na": 0x6,
	"a": 0x7, "nbe": 0x7,
	"s": 0x8, "ns": 0x9,
	"p": 0xA, "np": 0xB,
	"l": 0xC, "nge": 0xC,
	"ge": 0xD, "nl": 0xD,
	"le": 0xE, "ng": 0xE,
	"g": 0xF, "nle": 0xF,
}

// Cond resolves a jcc/setcc suffix ("e", "ne", "l", ...) to its nibble.
func Cond(suffix string) (byte, bool) {
	c, ok := condTable[strings.ToLower(suffix)]
	return c, ok
}

// PutU32 writes v little-endian into b, which must hold at least 4 bytes.
func PutU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// U32 returns the little-endian dword at b.
func U32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
