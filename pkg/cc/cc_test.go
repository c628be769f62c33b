package cc

import (
	"bytes"
	"strings"
	"testing"

	"gokos/pkg/kernel"
	"gokos/pkg/obj"
)

func compile(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Compile(kernel.NewMockHost(), kernel.JIT, src, "/")
	if err != nil {
		t.Fatalf("Compile failed: %v\nsource:\n%s", err, src)
	}
	return prog
}

func compileErr(t *testing.T, src, want string) {
	t.Helper()
	_, err := Compile(kernel.NewMockHost(), kernel.JIT, src, "/")
	if err == nil {
		t.Fatalf("expected error containing %q, got success", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not contain %q", err, want)
	}
}

// findMovEAX collects the imm32 of every "mov eax, imm32" byte pattern.
func findMovEAX(code []byte) []uint32 {
	var out []uint32
	for i := 0; i+4 < len(code); i++ {
		if code[i] == 0xB8 {
			out = append(out, uint32(code[i+1])|uint32(code[i+2])<<8|uint32(code[i+3])<<16|uint32(code[i+4])<<24)
		}
	}
	return out
}

func TestHelloWorld(t *testing.T) {
	prog := compile(t, `void main() { print("hi"); }`)
	img := prog.Image

	// "hi" plus terminator at the very start of the data section.
	if !bytes.HasPrefix(img.Data.Bytes(), []byte{0x68, 0x69, 0x00}) {
		t.Errorf("data = % X, want 68 69 00 prefix", img.Data.Bytes())
	}

	// The call site: push imm32 of the string address, then call rel32.
	wantPush := []byte{0x68, 0x00, 0x00, 0x42, 0x00, 0xE8}
	if !bytes.Contains(img.Code.Bytes(), wantPush) {
		t.Errorf("code does not contain push/call pattern % X:\n% X", wantPush, img.Code.Bytes())
	}
	if !img.HasEntry || img.EntryOffset != 0 {
		t.Errorf("entry = (%v, %d), want (true, 0)", img.HasEntry, img.EntryOffset)
	}
}

func TestArithmeticLiterals(t *testing.T) {
	prog := compile(t, `int main() { return 3*4 + 5; }`)
	imms := findMovEAX(prog.Image.Code.Bytes())

	has := func(v uint32) bool {
		for _, imm := range imms {
			if imm == v {
				return true
			}
		}
		return false
	}
	if !has(3) || !has(5) {
		t.Errorf("literal loads missing, got %v", imms)
	}
	// imul eax, ebx from 3*4, then add eax, ebx for +5.
	code := prog.Image.Code.Bytes()
	if !bytes.Contains(code, []byte{0x0F, 0xAF, 0xC3}) {
		t.Error("multiply pattern missing")
	}
	if !bytes.Contains(code, []byte{0x01, 0xD8}) {
		t.Error("add pattern missing")
	}
}

func TestForLoopPrologue(t *testing.T) {
	prog := compile(t, `int main() { int s = 0; for (int i = 0; i < 10; i++) s += i; return s; }`)
	code := prog.Image.Code.Bytes()

	// Exactly one sub esp, imm32 and its imm covers both locals.
	count := 0
	var k uint32
	for i := 0; i+5 < len(code); i++ {
		if code[i] == 0x81 && code[i+1] == 0xEC {
			count++
			k = uint32(code[i+2]) | uint32(code[i+3])<<8 | uint32(code[i+4])<<16 | uint32(code[i+5])<<24
		}
	}
	if count != 1 {
		t.Fatalf("found %d sub esp sites, want 1", count)
	}
	if k < 8 {
		t.Errorf("stack reservation %d, want >= 8", k)
	}
	if k%16 != 0 {
		t.Errorf("stack reservation %d not rounded to 16", k)
	}
}

func TestFunctionPrologueBytes(t *testing.T) {
	prog := compile(t, `
int helper(int a, int b) { return a + b; }
int main() { return helper(1, 2); }
`)
	code := prog.Image.Code.Bytes()
	// Both functions start with push ebp; mov ebp, esp.
	if code[0] != 0x55 || code[1] != 0x89 || code[2] != 0xE5 {
		t.Errorf("helper prologue = % X", code[0:3])
	}
	entry := prog.Image.EntryOffset
	if code[entry] != 0x55 || code[entry+1] != 0x89 {
		t.Errorf("main prologue = % X", code[entry:entry+2])
	}
	// Epilogue: mov esp, ebp; pop ebp; ret appears.
	if !bytes.Contains(code, []byte{0x89, 0xEC, 0x5D, 0xC3}) {
		t.Error("epilogue pattern missing")
	}
}

func TestCallArgReversal(t *testing.T) {
	prog := compile(t, `
int add3(int a, int b, int c) { return a; }
int main() { int x; x = 1; return add3(x, x, x); }
`)
	code := prog.Image.Code.Bytes()
	// One swap of slots 0 and 8 for three arguments.
	swap := []byte{
		0x8B, 0x44, 0x24, 0x00,
		0x8B, 0x5C, 0x24, 0x08,
		0x89, 0x5C, 0x24, 0x00,
		0x89, 0x44, 0x24, 0x08,
	}
	if !bytes.Contains(code, swap) {
		t.Error("argument reversal pattern missing")
	}
	// Caller cleanup: add esp, 12.
	if !bytes.Contains(code, []byte{0x81, 0xC4, 0x0C, 0x00, 0x00, 0x00}) {
		t.Error("caller cleanup missing")
	}
}

func TestForwardCallPatched(t *testing.T) {
	prog := compile(t, `
int main() { return later(); }
int later() { return 9; }
`)
	// All patches resolved; nothing to assert beyond success and a call
	// into the second function's body.
	code := prog.Image.Code.Bytes()
	if len(code) == 0 {
		t.Fatal("no code emitted")
	}
}

func TestUnresolvedCall(t *testing.T) {
	compileErr(t, `int main() { return missing(); }`, "unresolved reference")
}

func TestNoEntryPoint(t *testing.T) {
	compileErr(t, `int helper() { return 1; }`, "no entry point found")
	compileErr(t, ``, "no entry point found")
}

func TestUndefinedIdentifier(t *testing.T) {
	compileErr(t, `int main() { return x; }`, "undefined identifier")
}

func TestComparisonPattern(t *testing.T) {
	prog := compile(t, `int main() { int a; a = 1; return a < 2; }`)
	code := prog.Image.Code.Bytes()
	// cmp ebx, eax; setl al; movzx eax, al
	if !bytes.Contains(code, []byte{0x39, 0xC3, 0x0F, 0x9C, 0xC0, 0x0F, 0xB6, 0xC0}) {
		t.Errorf("comparison pattern missing:\n% X", code)
	}
}

func TestDivisionPattern(t *testing.T) {
	prog := compile(t, `int main() { return 7 / 2; }`)
	code := prog.Image.Code.Bytes()
	// mov ecx, eax; mov eax, ebx; cdq; idiv ecx
	if !bytes.Contains(code, []byte{0x89, 0xC1, 0x89, 0xD8, 0x99, 0xF7, 0xF9}) {
		t.Errorf("division pattern missing:\n% X", code)
	}
}

func TestModuloTakesEDX(t *testing.T) {
	prog := compile(t, `int main() { return 7 % 2; }`)
	if !bytes.Contains(prog.Image.Code.Bytes(), []byte{0xF7, 0xF9, 0x89, 0xD0}) {
		t.Error("modulo must move the remainder out of EDX")
	}
}

func TestLogicalOpsNoShortCircuit(t *testing.T) {
	// Both sides always run: two calls appear in the code.
	prog := compile(t, `
int side() { return 1; }
int main() { return side() && side(); }
`)
	code := prog.Image.Code.Bytes()
	calls := 0
	for _, b := range code {
		if b == 0xE8 {
			calls++
		}
	}
	if calls < 2 {
		t.Errorf("expected both operands evaluated, found %d call opcodes", calls)
	}
	// setne bl; setne al; and al, bl
	if !bytes.Contains(code, []byte{0x85, 0xC0, 0x0F, 0x95, 0xC0, 0x20, 0xD8}) {
		t.Error("logical-and collapse pattern missing")
	}
}

func TestGlobalVariables(t *testing.T) {
	prog := compile(t, `
int counter = 7;
char flag;
int main() { counter = counter + 1; return counter; }
`)
	data := prog.Image.Data.Bytes()
	if len(data) < 4 || data[0] != 7 {
		t.Errorf("global initial value, data = % X", data)
	}
	// Loads and stores go through the absolute address.
	addr := []byte{0x00, 0x00, 0x42, 0x00}
	code := prog.Image.Code.Bytes()
	if !bytes.Contains(code, append([]byte{0x8B, 0x05}, addr...)) {
		t.Error("global load missing")
	}
	if !bytes.Contains(code, append([]byte{0x89, 0x05}, addr...)) {
		t.Error("global store missing")
	}
}

func TestStringGlobal(t *testing.T) {
	prog := compile(t, `
char *msg = "boot";
void main() { print(msg); }
`)
	data := prog.Image.Data.Bytes()
	if !bytes.Contains(data, []byte("boot\x00")) {
		t.Errorf("string literal missing from data: % X", data)
	}
}

func TestEnumBackingStorage(t *testing.T) {
	prog := compile(t, `
enum { RED, GREEN = 5, BLUE };
int main() { return BLUE; }
`)
	data := prog.Image.Data.Bytes()
	want := []byte{
		0, 0, 0, 0,
		5, 0, 0, 0,
		6, 0, 0, 0,
	}
	if !bytes.HasPrefix(data, want) {
		t.Errorf("enum slots = % X, want % X prefix", data, want)
	}
	// Reference compiles to a load, not an immediate.
	if !bytes.Contains(prog.Image.Code.Bytes(), []byte{0x8B, 0x05, 0x08, 0x00, 0x42, 0x00}) {
		t.Error("enum reference should load its data slot")
	}
}

func TestSizeofStruct(t *testing.T) {
	prog := compile(t, `
struct Point { int x; int y; char tag; };
int main() { return sizeof(struct Point); }
`)
	// 4 + 4 + 1 aligned up to 12.
	imms := findMovEAX(prog.Image.Code.Bytes())
	found := false
	for _, imm := range imms {
		if imm == 12 {
			found = true
		}
	}
	if !found {
		t.Errorf("sizeof(struct Point) immediate missing, got %v", imms)
	}
}

func TestStructFieldAccess(t *testing.T) {
	prog := compile(t, `
struct Point { int x; int y; };
int main() {
	struct Point p;
	p.y = 3;
	return p.y;
}
`)
	code := prog.Image.Code.Bytes()
	// Field offset addition: add eax, 4
	if !bytes.Contains(code, []byte{0x05, 0x04, 0x00, 0x00, 0x00}) {
		t.Errorf("field offset math missing:\n% X", code)
	}
}

func TestIncompleteStruct(t *testing.T) {
	compileErr(t, `
struct Node;
int main() { return sizeof(struct Node); }
`, "incomplete")
}

func TestStructRedefinition(t *testing.T) {
	compileErr(t, `
struct S { int a; };
struct S { int b; };
void main() {}
`, "redefinition of struct")
}

func TestTooManyFields(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("struct Big {")
	for i := 0; i < maxStructFields+1; i++ {
		name := string(rune('a'+i%26)) + string(rune('a'+i/26))
		sb.WriteString(" int " + name + ";")
	}
	sb.WriteString(" };\nvoid main() {}\n")
	compileErr(t, sb.String(), "too many fields")
}

func TestArraySubscript(t *testing.T) {
	prog := compile(t, `
int main() {
	int a[10];
	a[3] = 7;
	return a[3];
}
`)
	code := prog.Image.Code.Bytes()
	// Index scaling by the element size.
	if !bytes.Contains(code, []byte{0x69, 0xC0, 0x04, 0x00, 0x00, 0x00}) {
		t.Errorf("subscript scaling missing:\n% X", code)
	}
}

func TestTwoDimensionalArray(t *testing.T) {
	prog := compile(t, `
int main() {
	int m[2][3];
	m[1][2] = 9;
	return m[1][2];
}
`)
	code := prog.Image.Code.Bytes()
	// Row scale 12, then element scale 4.
	if !bytes.Contains(code, []byte{0x69, 0xC0, 0x0C, 0x00, 0x00, 0x00}) {
		t.Error("row scaling missing")
	}
	if !bytes.Contains(code, []byte{0x69, 0xC0, 0x04, 0x00, 0x00, 0x00}) {
		t.Error("element scaling missing")
	}
}

func TestPointerDeref(t *testing.T) {
	prog := compile(t, `
int main() {
	int x;
	int *p;
	x = 5;
	p = &x;
	*p = 6;
	return *p;
}
`)
	code := prog.Image.Code.Bytes()
	// Store through the pointer: mov [ebx], eax.
	if !bytes.Contains(code, []byte{0x89, 0x03}) {
		t.Errorf("pointer store missing:\n% X", code)
	}
}

func TestCharByteAccess(t *testing.T) {
	prog := compile(t, `
int main() {
	char c;
	c = 'A';
	return c;
}
`)
	code := prog.Image.Code.Bytes()
	// Store: mov [ebp+off], al. Load: movzx eax, byte [ebp+off].
	if !bytes.Contains(code, []byte{0x88, 0x85}) {
		t.Error("char store missing")
	}
	if !bytes.Contains(code, []byte{0x0F, 0xB6, 0x85}) {
		t.Error("char load missing")
	}
}

func TestLocalIntDirectAccess(t *testing.T) {
	prog := compile(t, `int main() { int x; x = 9; return x + 1; }`)
	code := prog.Image.Code.Bytes()
	// Store: mov [ebp+off], eax. Load: mov eax, [ebp+off].
	if !bytes.Contains(code, []byte{0x89, 0x85}) {
		t.Error("local store missing")
	}
	if !bytes.Contains(code, []byte{0x8B, 0x85}) {
		t.Error("local load missing")
	}
}

func TestTernary(t *testing.T) {
	prog := compile(t, `int main() { int a; a = 1; return a ? 10 : 20; }`)
	imms := findMovEAX(prog.Image.Code.Bytes())
	has10, has20 := false, false
	for _, imm := range imms {
		if imm == 10 {
			has10 = true
		}
		if imm == 20 {
			has20 = true
		}
	}
	if !has10 || !has20 {
		t.Errorf("ternary branches missing, imms = %v", imms)
	}
}

func TestSwitchKeepsValueOnStack(t *testing.T) {
	prog := compile(t, `
int main() {
	int r;
	r = 0;
	switch (2) {
	case 1: r = 10; break;
	case 2: r = 20; break;
	default: r = 30;
	}
	return r;
}
`)
	code := prog.Image.Code.Bytes()
	// Reload before each comparison: mov eax, [esp]; cmp eax, imm32.
	reload := []byte{0x8B, 0x04, 0x24, 0x3D}
	n := bytes.Count(code, reload)
	if n != 2 {
		t.Errorf("found %d case comparisons, want 2", n)
	}
	// Scrutinee cleanup.
	if !bytes.Contains(code, []byte{0x81, 0xC4, 0x04, 0x00, 0x00, 0x00}) {
		t.Error("switch cleanup missing")
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	compileErr(t, `int main() { break; }`, "break outside")
}

func TestInlineAsm(t *testing.T) {
	prog := compile(t, `
void main() {
	asm {
		cli;
		mov eax, 0x10;
		push eax;
		pop ebx;
		int 0x80;
		sti;
	}
}
`)
	code := prog.Image.Code.Bytes()
	want := []byte{0xFA, 0xB8, 0x10, 0x00, 0x00, 0x00, 0x50, 0x5B, 0xCD, 0x80, 0xFB}
	if !bytes.Contains(code, want) {
		t.Errorf("asm block bytes missing:\n got % X\nwant % X", code, want)
	}
}

func TestInlineAsmRejectsUnknown(t *testing.T) {
	compileErr(t, `void main() { asm { rdtsc; } }`, "not allowed in asm blocks")
}

func TestInlineAsmShortDisplacement(t *testing.T) {
	prog := compile(t, `
void main() {
	asm {
		mov eax, [ebp+8];
		mov [ebp-4], eax;
		mov ebx, [esi+256];
	}
}
`)
	code := prog.Image.Code.Bytes()
	// Byte-sized displacements take the disp8 form, larger ones disp32.
	if !bytes.Contains(code, []byte{0x8B, 0x45, 0x08}) {
		t.Errorf("disp8 load missing:\n% X", code)
	}
	if !bytes.Contains(code, []byte{0x89, 0x45, 0xFC}) {
		t.Errorf("disp8 store missing:\n% X", code)
	}
	if !bytes.Contains(code, []byte{0x8B, 0x9E, 0x00, 0x01, 0x00, 0x00}) {
		t.Errorf("disp32 load missing:\n% X", code)
	}
}

func TestDuplicateLocal(t *testing.T) {
	compileErr(t, `int main() { int a; int a; return a; }`, "redefinition")
	compileErr(t, `int main() { int a, a; return 0; }`, "redefinition")
}

func TestDuplicateParameter(t *testing.T) {
	compileErr(t, `int f(int a, int a) { return a; }`, "duplicate parameter")
}

func TestInnerScopeShadowing(t *testing.T) {
	compile(t, `
int main() {
	int a;
	a = 1;
	{
		int a;
		a = 2;
	}
	for (int i = 0; i < 2; i++) {
		int i;
		i = 3;
	}
	return a;
}
`)
}

func TestExeFunctionsRecorded(t *testing.T) {
	prog := compile(t, "#exe { print(\"a\"); }\n#exe { print(\"b\"); }\nvoid main() {}\n")
	if len(prog.ExeFuncs) != 2 {
		t.Fatalf("ExeFuncs = %v, want two entries", prog.ExeFuncs)
	}
	if prog.ExeFuncs[0] == prog.ExeFuncs[1] {
		t.Error("exe functions must have distinct offsets")
	}
}

func TestExeIgnoredInAOT(t *testing.T) {
	prog, err := Compile(kernel.NewMockHost(), kernel.AOT, "#exe { print(\"a\"); }\nvoid main() {}\n", "/")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(prog.ExeFuncs) != 0 {
		t.Errorf("AOT compile recorded exe funcs: %v", prog.ExeFuncs)
	}
}

func TestHostConstantsFold(t *testing.T) {
	prog := compile(t, `int main() { return O_CREAT; }`)
	imms := findMovEAX(prog.Image.Code.Bytes())
	found := false
	for _, imm := range imms {
		if imm == 0x100 {
			found = true
		}
	}
	if !found {
		t.Errorf("O_CREAT should fold to an immediate, imms = %v", imms)
	}
}

func TestTypedefAndWidthAliases(t *testing.T) {
	prog := compile(t, `
typedef int handle;
int main() {
	handle h;
	u8 b;
	h = 1;
	b = 2;
	return h;
}
`)
	if len(prog.Image.Code.Bytes()) == 0 {
		t.Fatal("no code emitted")
	}
}

func TestSourceTooLarge(t *testing.T) {
	src := "void main() {}\n" + strings.Repeat("/", obj.SourceCap)
	compileErr(t, src, "source too large")
}

func TestFunctionRedefinition(t *testing.T) {
	compileErr(t, `
void main() {}
void main() {}
`, "redefinition of function")
}

func TestPrototypeThenDefinition(t *testing.T) {
	prog := compile(t, `
int twice(int n);
int main() { return twice(4); }
int twice(int n) { return n * 2; }
`)
	if len(prog.Image.Code.Bytes()) == 0 {
		t.Fatal("no code emitted")
	}
}

func TestWhileAndDoWhile(t *testing.T) {
	prog := compile(t, `
int main() {
	int i;
	i = 0;
	while (i < 3) i++;
	do { i--; } while (i > 0);
	return i;
}
`)
	code := prog.Image.Code.Bytes()
	// do/while closes with jne backward.
	if !bytes.Contains(code, []byte{0x0F, 0x85}) {
		t.Error("do/while back edge missing")
	}
}

func TestCasts(t *testing.T) {
	prog := compile(t, `
int main() {
	int x;
	char *p;
	x = 65;
	p = (char *)&x;
	return (int)*p;
}
`)
	// Dereferencing through the char pointer loads one byte.
	if !bytes.Contains(prog.Image.Code.Bytes(), []byte{0x0F, 0xB6, 0x00}) {
		t.Error("byte-wide deref missing after cast")
	}
}

func TestCompoundAssignOnDeref(t *testing.T) {
	prog := compile(t, `
int main() {
	int x;
	int *p;
	x = 10;
	p = &x;
	*p += 5;
	return x;
}
`)
	// add eax, ecx from the compound apply.
	if !bytes.Contains(prog.Image.Code.Bytes(), []byte{0x01, 0xC8}) {
		t.Error("compound add pattern missing")
	}
}
