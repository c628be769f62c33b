package x86

import (
	"testing"
)

func disasm(t *testing.T, code []byte, base uint32) []Inst {
	t.Helper()
	var out []Inst
	Disassemble(code, base, func(i Inst) { out = append(out, i) })
	total := 0
	for _, i := range out {
		total += i.Len
	}
	if total != len(code) {
		t.Fatalf("decoded %d of %d bytes", total, len(code))
	}
	return out
}

func TestDisassembleSingles(t *testing.T) {
	cases := []struct {
		code []byte
		want string
	}{
		{[]byte{0x90}, "nop"},
		{[]byte{0xC3}, "ret"},
		{[]byte{0xFA}, "cli"},
		{[]byte{0x99}, "cdq"},
		{[]byte{0x50}, "push eax"},
		{[]byte{0x5B}, "pop ebx"},
		{[]byte{0x41}, "inc ecx"},
		{[]byte{0x4F}, "dec edi"},
		{[]byte{0xB8, 0x2A, 0x00, 0x00, 0x00}, "mov eax, 0x2A"},
		{[]byte{0x68, 0x00, 0x00, 0x42, 0x00}, "push 0x420000"},
		{[]byte{0xCD, 0x80}, "int 0x80"},
		{[]byte{0x89, 0xC3}, "mov ebx, eax"},
		{[]byte{0x8B, 0xD8}, "mov ebx, eax"},
		{[]byte{0x01, 0xD8}, "add eax, ebx"},
		{[]byte{0x39, 0xC3}, "cmp ebx, eax"},
		{[]byte{0x0F, 0xAF, 0xC3}, "imul eax, ebx"},
		{[]byte{0x69, 0xC0, 0x04, 0x00, 0x00, 0x00}, "imul eax, eax, 0x4"},
		{[]byte{0xF7, 0xF9}, "idiv ecx"},
		{[]byte{0xF7, 0xD8}, "neg eax"},
		{[]byte{0xD3, 0xE0}, "shl eax, cl"},
		{[]byte{0xD1, 0xE8}, "shr eax, 1"},
		{[]byte{0x0F, 0x95, 0xC0}, "setne al"},
		{[]byte{0x0F, 0xB6, 0xC0}, "movzx eax, al"},
		{[]byte{0x85, 0xC0}, "test eax, eax"},
		{[]byte{0x3D, 0x02, 0x00, 0x00, 0x00}, "cmp eax, 0x2"},
		{[]byte{0x81, 0xEC, 0x10, 0x00, 0x00, 0x00}, "sub esp, 0x10"},
		{[]byte{0x81, 0xC4, 0x0C, 0x00, 0x00, 0x00}, "add esp, 0xC"},
		{[]byte{0x83, 0xC0, 0x04}, "add eax, 0x4"},
		{[]byte{0xF3, 0xAB}, "rep stosd"},
		{[]byte{0xFF, 0xD0}, "call eax"},
		{[]byte{0x87, 0xD8}, "xchg eax, ebx"},
	}
	for _, c := range cases {
		insts := disasm(t, c.code, 0x400000)
		if len(insts) != 1 || insts[0].Text != c.want {
			t.Errorf("% X => %q, want %q", c.code, insts[0].Text, c.want)
		}
	}
}

func TestDisassembleMemoryOperands(t *testing.T) {
	cases := []struct {
		code []byte
		want string
	}{
		{[]byte{0x8B, 0x00}, "mov eax, [eax]"},
		{[]byte{0x8B, 0x04, 0x24}, "mov eax, [esp]"},
		{[]byte{0x8B, 0x45, 0x08}, "mov eax, [ebp+0x8]"},
		{[]byte{0x8B, 0x45, 0xFC}, "mov eax, [ebp-0x4]"},
		{[]byte{0x8B, 0x85, 0xF8, 0xFF, 0xFF, 0xFF}, "mov eax, [ebp-0x8]"},
		{[]byte{0x89, 0x85, 0x00, 0x01, 0x00, 0x00}, "mov [ebp+0x100], eax"},
		{[]byte{0x8B, 0x05, 0x00, 0x00, 0x42, 0x00}, "mov eax, [0x00420000]"},
		{[]byte{0x8B, 0x14, 0x3E}, "mov edx, [esi+edi]"},
		{[]byte{0x8D, 0x85, 0xF0, 0xFF, 0xFF, 0xFF}, "lea eax, [ebp-0x10]"},
		{[]byte{0x8B, 0x5C, 0x24, 0x08}, "mov ebx, [esp+0x8]"},
		{[]byte{0x88, 0x03}, "mov [ebx], al"},
		{[]byte{0x0F, 0xB6, 0x85, 0xFC, 0xFF, 0xFF, 0xFF}, "movzx eax, [ebp-0x4]"},
	}
	for _, c := range cases {
		insts := disasm(t, c.code, 0x400000)
		if len(insts) != 1 || insts[0].Text != c.want {
			t.Errorf("% X => %q, want %q", c.code, insts[0].Text, c.want)
		}
	}
}

func TestDisassembleBranches(t *testing.T) {
	// call rel32 = +0 lands just past the instruction.
	insts := disasm(t, []byte{0xE8, 0x00, 0x00, 0x00, 0x00}, 0x400000)
	if insts[0].Text != "call 0x00400005" {
		t.Errorf("call = %q", insts[0].Text)
	}

	// jmp short back to self.
	insts = disasm(t, []byte{0xEB, 0xFE}, 0x400000)
	if insts[0].Text != "jmp short 0x00400000" {
		t.Errorf("jmp short = %q", insts[0].Text)
	}

	// je rel32 forward by one.
	insts = disasm(t, []byte{0x0F, 0x84, 0x01, 0x00, 0x00, 0x00, 0x90, 0xC3}, 0x500000)
	if insts[0].Text != "je 0x00500007" {
		t.Errorf("je = %q", insts[0].Text)
	}
}

func TestDisassembleSequence(t *testing.T) {
	// A full tiny function: push ebp; mov ebp, esp; mov eax, 42;
	// mov esp, ebp; pop ebp; ret.
	code := []byte{
		0x55,
		0x89, 0xE5,
		0xB8, 0x2A, 0x00, 0x00, 0x00,
		0x89, 0xEC,
		0x5D,
		0xC3,
	}
	insts := disasm(t, code, 0x400000)
	want := []string{
		"push ebp",
		"mov ebp, esp",
		"mov eax, 0x2A",
		"mov esp, ebp",
		"pop ebp",
		"ret",
	}
	if len(insts) != len(want) {
		t.Fatalf("decoded %d instructions, want %d", len(insts), len(want))
	}
	for i, w := range want {
		if insts[i].Text != w {
			t.Errorf("inst %d = %q, want %q", i, insts[i].Text, w)
		}
	}
	// Offsets track the byte stream.
	if insts[2].Off != 3 || insts[2].Len != 5 {
		t.Errorf("mov eax inst at off %d len %d", insts[2].Off, insts[2].Len)
	}
}

func TestDisassembleUnknownByte(t *testing.T) {
	insts := disasm(t, []byte{0xF1, 0xC3}, 0)
	if insts[0].Text != "db 0xF1" || insts[0].Len != 1 {
		t.Errorf("unknown byte = %+v", insts[0])
	}
	if insts[1].Text != "ret" {
		t.Errorf("resync failed: %+v", insts[1])
	}
}

func TestDisassembleTruncated(t *testing.T) {
	// A B8 with only two immediate bytes cannot decode; every byte falls
	// back to db and the walk still covers the buffer.
	insts := disasm(t, []byte{0xB8, 0xF1, 0xF1}, 0)
	if len(insts) != 3 {
		t.Fatalf("got %d insts, want 3 db fallbacks", len(insts))
	}
	for _, i := range insts {
		if i.Len != 1 {
			t.Errorf("truncated decode consumed %d bytes", i.Len)
		}
	}
}
