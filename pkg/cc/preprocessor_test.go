package cc

import (
	"fmt"
	"strings"
	"testing"

	"gokos/pkg/kernel"
)

func pp(t *testing.T, mode kernel.Mode, src string) string {
	t.Helper()
	out, err := preprocess(kernel.NewMockHost(), mode, src, "/")
	if err != nil {
		t.Fatalf("preprocess failed: %v\nsource:\n%s", err, src)
	}
	return out
}

func TestDefineAndExpand(t *testing.T) {
	out := pp(t, kernel.JIT, "#define WIDTH 80\nint x = WIDTH;\n")
	if !strings.Contains(out, "int x = 80;") {
		t.Errorf("macro not expanded:\n%s", out)
	}
}

func TestDefineRebind(t *testing.T) {
	out := pp(t, kernel.JIT, "#define N 1\n#define N 2\nint x = N;\n")
	if !strings.Contains(out, "int x = 2;") {
		t.Errorf("later #define should rebind:\n%s", out)
	}
}

func TestMacroChain(t *testing.T) {
	out := pp(t, kernel.JIT, "#define A B\n#define B 7\nint x = A;\n")
	if !strings.Contains(out, "int x = 7;") {
		t.Errorf("chained macros:\n%s", out)
	}
}

func TestNoExpansionInStrings(t *testing.T) {
	out := pp(t, kernel.JIT, "#define hi bye\nchar *s = \"hi\"; char c = 'h'; int hi;\n")
	if !strings.Contains(out, `"hi"`) {
		t.Errorf("string contents were expanded:\n%s", out)
	}
	if !strings.Contains(out, "int bye;") {
		t.Errorf("identifier outside string not expanded:\n%s", out)
	}
}

func TestIfdefElseEndif(t *testing.T) {
	src := "#define DEBUG 1\n#ifdef DEBUG\nint a;\n#else\nint b;\n#endif\n#ifndef DEBUG\nint c;\n#endif\n"
	out := pp(t, kernel.JIT, src)
	if !strings.Contains(out, "int a;") || strings.Contains(out, "int b;") || strings.Contains(out, "int c;") {
		t.Errorf("conditional selection wrong:\n%s", out)
	}
}

func TestNestedConditionals(t *testing.T) {
	src := "#ifdef MISSING\n#ifdef ALSO\nint a;\n#endif\nint b;\n#endif\nint c;\n"
	out := pp(t, kernel.JIT, src)
	if strings.Contains(out, "int a;") || strings.Contains(out, "int b;") || !strings.Contains(out, "int c;") {
		t.Errorf("nested inactive branch leaked:\n%s", out)
	}
}

func TestUnterminatedIfdef(t *testing.T) {
	_, err := preprocess(kernel.NewMockHost(), kernel.JIT, "#ifdef X\nint a;\n", "/")
	if err == nil || !strings.Contains(err.Error(), "unterminated #ifdef") {
		t.Errorf("expected unterminated #ifdef, got %v", err)
	}
}

func TestElseWithoutIfdef(t *testing.T) {
	_, err := preprocess(kernel.NewMockHost(), kernel.JIT, "#else\n", "/")
	if err == nil {
		t.Error("expected an error")
	}
}

func TestIncludeFile(t *testing.T) {
	h := kernel.NewMockHost()
	if err := h.Disk.Write("lib/defs.h", []byte("#define MAX 100\n")); err != nil {
		t.Fatal(err)
	}
	out, err := preprocess(h, kernel.JIT, "#include \"lib/defs.h\"\nint x = MAX;\n", "/")
	if err != nil {
		t.Fatalf("preprocess failed: %v", err)
	}
	if !strings.Contains(out, "int x = 100;") {
		t.Errorf("included macro not visible:\n%s", out)
	}
}

func TestIncludeRelativeToIncluder(t *testing.T) {
	h := kernel.NewMockHost()
	if err := h.Disk.Write("lib/a.h", []byte("#include \"b.h\"\n")); err != nil {
		t.Fatal(err)
	}
	if err := h.Disk.Write("lib/b.h", []byte("#define OK 1\n")); err != nil {
		t.Fatal(err)
	}
	out, err := preprocess(h, kernel.JIT, "#include \"lib/a.h\"\nint x = OK;\n", "/")
	if err != nil {
		t.Fatalf("preprocess failed: %v", err)
	}
	if !strings.Contains(out, "int x = 1;") {
		t.Errorf("relative include resolution:\n%s", out)
	}
}

func TestIncludeDepthLimit(t *testing.T) {
	h := kernel.NewMockHost()
	// Each file includes the next; depth 8 is the limit.
	files := []string{"a.h", "b.h", "c.h", "d.h", "e.h", "f.h", "g.h", "h.h"}
	for i, name := range files {
		body := "int ok;\n"
		if i+1 < len(files) {
			body = "#include \"" + files[i+1] + "\"\n"
		}
		if err := h.Disk.Write(name, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := preprocess(h, kernel.JIT, "#include \"a.h\"\n", "/"); err != nil {
		t.Fatalf("eight nested includes should work: %v", err)
	}

	// Self-include blows the limit.
	if err := h.Disk.Write("loop.h", []byte("#include \"loop.h\"\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := preprocess(h, kernel.JIT, "#include \"loop.h\"\n", "/"); err == nil {
		t.Fatal("include cycle should be rejected at the depth limit")
	}
}

func TestExeBlockJIT(t *testing.T) {
	out := pp(t, kernel.JIT, "#exe { print(\"boot\"); }\nvoid main() {}\n")
	if !strings.Contains(out, "void __cc_exe_0() {") {
		t.Errorf("#exe not synthesised:\n%s", out)
	}
	if !strings.Contains(out, "print(\"boot\");") {
		t.Errorf("#exe body missing:\n%s", out)
	}
}

func TestExeBlockMultiline(t *testing.T) {
	out := pp(t, kernel.JIT, "#exe {\nint i;\ni = 1;\n}\nvoid main() {}\n")
	if !strings.Contains(out, "__cc_exe_0") || !strings.Contains(out, "i = 1;") {
		t.Errorf("multi-line #exe:\n%s", out)
	}
}

func TestExeBlockAOT(t *testing.T) {
	h := kernel.NewMockHost()
	out, err := preprocess(h, kernel.AOT, "#exe { f(); }\n#exe { g(); }\nvoid main() {}\n", "/")
	if err != nil {
		t.Fatalf("preprocess failed: %v", err)
	}
	if strings.Contains(out, "__cc_exe_") {
		t.Errorf("AOT must drop #exe bodies:\n%s", out)
	}
	warnings := strings.Count(h.Console.String(), "#exe")
	if warnings != 1 {
		t.Errorf("want exactly one diagnostic, console: %q", h.Console.String())
	}
}

func TestExeBraceInString(t *testing.T) {
	out := pp(t, kernel.JIT, "#exe { print(\"}\"); }\nvoid main() {}\n")
	if !strings.Contains(out, `print("}");`) {
		t.Errorf("brace inside string ended the capture:\n%s", out)
	}
}

func TestPreprocessIdempotent(t *testing.T) {
	src := "#define N 3\nint x = N;\nint y = 4;\n"
	once := pp(t, kernel.JIT, src)
	twice := pp(t, kernel.JIT, once)
	if once != twice {
		t.Errorf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestTooManyMacros(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= maxMacros; i++ {
		fmt.Fprintf(&sb, "#define M%d 1\n", i)
	}
	_, err := preprocess(kernel.NewMockHost(), kernel.JIT, sb.String(), "/")
	if err == nil || !strings.Contains(err.Error(), "too many macros") {
		t.Errorf("expected too many macros, got %v", err)
	}
}
