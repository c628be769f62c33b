package shell

import (
	"strings"
	"testing"

	"gokos/pkg/kernel"
	"gokos/pkg/loader"
	"gokos/pkg/obj"
)

func newShell(t *testing.T) (*Shell, *kernel.MockHost) {
	t.Helper()
	host := kernel.NewMockHost()
	size := obj.CodeCap + obj.DataCap
	s := New(host,
		loader.NewMemRegion(obj.CCCodeBase, size),
		loader.NewMemRegion(obj.ASCodeBase, size))
	return s, host
}

func mustWrite(t *testing.T, h *kernel.MockHost, path, content string) {
	t.Helper()
	if err := h.Disk.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchCCRunsProgram(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/main.c", "int main() { return 5; }")
	host.ExecReturn = 5

	if err := s.Dispatch("cc /main.c"); err != nil {
		t.Fatal(err)
	}
	if len(host.ExecCalls) != 1 || host.ExecCalls[0] != obj.CCCodeBase {
		t.Errorf("ExecCalls = %v", host.ExecCalls)
	}
	if len(host.Ended) != 1 || host.Ended[0] != 5 {
		t.Errorf("Ended = %v", host.Ended)
	}
}

func TestDispatchCCELF(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/main.c", "void main() {}")

	if err := s.Dispatch("ccelf /main.c /main.elf"); err != nil {
		t.Fatal(err)
	}
	out, err := host.Disk.Read("/main.elf")
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0x7F || out[1] != 'E' {
		t.Errorf("not an ELF: % X", out[:4])
	}
	if !strings.Contains(host.Console.String(), "wrote /main.elf") {
		t.Errorf("console = %q", host.Console.String())
	}
}

func TestDispatchASM(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/boot.asm", "section .text\nmain:\nmov eax, 42\nret\n")

	if err := s.Dispatch("asm /boot.asm"); err != nil {
		t.Fatal(err)
	}
	if len(host.ExecCalls) != 1 || host.ExecCalls[0] != obj.ASCodeBase {
		t.Errorf("ExecCalls = %v", host.ExecCalls)
	}
}

func TestDispatchASMELF(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/boot.asm", "main:\nret\n")

	if err := s.Dispatch("asmelf /boot.asm /boot.elf"); err != nil {
		t.Fatal(err)
	}
	if _, err := host.Disk.Read("/boot.elf"); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchDis(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/main.c", "int main() { return 42; }")

	if err := s.Dispatch("dis /main.c"); err != nil {
		t.Fatal(err)
	}
	out := host.Console.String()
	if !strings.Contains(out, "mov eax, 0x2A") {
		t.Errorf("disassembly missing mov:\n%s", out)
	}
	if !strings.Contains(out, "ret") {
		t.Errorf("disassembly missing ret:\n%s", out)
	}
	// Addresses are absolute.
	if !strings.Contains(out, "00400000") {
		t.Errorf("disassembly missing base address:\n%s", out)
	}
}

func TestDispatchLsAndCat(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/a.c", "void main() {}")
	mustWrite(t, host, "/sub/b.asm", "main:\nret\n")

	if err := s.Dispatch("ls"); err != nil {
		t.Fatal(err)
	}
	out := host.Console.String()
	if !strings.Contains(out, "/a.c") || !strings.Contains(out, "/sub/b.asm") {
		t.Errorf("ls output:\n%s", out)
	}

	host.Console.Reset()
	if err := s.Dispatch("ls /sub"); err != nil {
		t.Fatal(err)
	}
	out = host.Console.String()
	if strings.Contains(out, "/a.c") || !strings.Contains(out, "/sub/b.asm") {
		t.Errorf("filtered ls output:\n%s", out)
	}

	host.Console.Reset()
	if err := s.Dispatch("cat /a.c"); err != nil {
		t.Fatal(err)
	}
	if host.Console.String() != "void main() {}" {
		t.Errorf("cat output = %q", host.Console.String())
	}
}

func TestDispatchErrorsReachConsole(t *testing.T) {
	s, host := newShell(t)

	if err := s.Dispatch("cc /missing.c"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if host.Console.String() == "" {
		t.Error("error not printed to console")
	}

	host.Console.Reset()
	mustWrite(t, host, "/bad.c", "int main() { return x; }")
	if err := s.Dispatch("cc /bad.c"); err == nil {
		t.Fatal("expected compile error")
	}
	if !strings.Contains(host.Console.String(), "undefined identifier") {
		t.Errorf("console = %q", host.Console.String())
	}
}

func TestDispatchUnknownAndUsage(t *testing.T) {
	s, _ := newShell(t)
	if err := s.Dispatch("format c:"); err == nil {
		t.Fatal("unknown command accepted")
	}
	if err := s.Dispatch("cc"); err == nil {
		t.Fatal("missing argument accepted")
	}
	if err := s.Dispatch(""); err != nil {
		t.Fatalf("blank line should be a no-op, got %v", err)
	}
	if err := s.Dispatch("help"); err != nil {
		t.Fatalf("help failed: %v", err)
	}
}

func TestIncludeResolvesNextToFile(t *testing.T) {
	s, host := newShell(t)
	mustWrite(t, host, "/proj/defs.h", "#define ANSWER 42\n")
	mustWrite(t, host, "/proj/main.c", "#include \"defs.h\"\nint main() { return ANSWER; }\n")

	if err := s.Dispatch("cc /proj/main.c"); err != nil {
		t.Fatal(err)
	}
}
