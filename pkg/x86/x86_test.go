package x86

import "testing"

func TestModRM(t *testing.T) {
	if got := ModRM(3, EAX, EBX); got != 0xC3 {
		t.Errorf("ModRM(3, eax, ebx) = %#02X, want 0xC3", got)
	}
	if got := ModRM(1, EDX, EBP); got != 0x55 {
		t.Errorf("ModRM(1, edx, ebp) = %#02X, want 0x55", got)
	}
	if got := ModRM(0, ECX, ESI); got != 0x0E {
		t.Errorf("ModRM(0, ecx, esi) = %#02X, want 0x0E", got)
	}
}

func TestSIB(t *testing.T) {
	if got := SIB(0, ESP, ESP); got != 0x24 {
		t.Errorf("SIB(0, esp, esp) = %#02X, want 0x24", got)
	}
	if got := SIB(2, EDI, EAX); got != 0xB8 {
		t.Errorf("SIB(2, edi, eax) = %#02X, want 0xB8", got)
	}
}

func TestLookupReg(t *testing.T) {
	r, ok := LookupReg("EBX")
	if !ok || r.Index != EBX || r.Width != 4 {
		t.Errorf("LookupReg(EBX) = %+v, %v", r, ok)
	}
	r, ok = LookupReg("al")
	if !ok || r.Index != 0 || r.Width != 1 {
		t.Errorf("LookupReg(al) = %+v, %v", r, ok)
	}
	if _, ok := LookupReg("r15"); ok {
		t.Error("r15 should not resolve in 32-bit mode")
	}
}

func TestCond(t *testing.T) {
	cases := map[string]byte{"e": 4, "nz": 5, "l": 0xC, "ge": 0xD, "g": 0xF}
	for suffix, want := range cases {
		got, ok := Cond(suffix)
		if !ok || got != want {
			t.Errorf("Cond(%q) = %#X, %v, want %#X", suffix, got, ok, want)
		}
	}
	if _, ok := Cond("xx"); ok {
		t.Error("Cond(xx) should fail")
	}
}

func TestU32RoundTrip(t *testing.T) {
	b := make([]byte, 4)
	PutU32(b, 0xDEADBEEF)
	if b[0] != 0xEF || b[3] != 0xDE {
		t.Errorf("PutU32 bytes = % X", b)
	}
	if U32(b) != 0xDEADBEEF {
		t.Errorf("U32 = %#X", U32(b))
	}
}
