package kernel

import "testing"

func TestFuncBindingsExitSplit(t *testing.T) {
	h := NewMockHost()

	find := func(bs []Binding, name string) (Binding, bool) {
		for _, b := range bs {
			if b.Name == name {
				return b, true
			}
		}
		return Binding{}, false
	}

	jit := FuncBindings(h, JIT)
	aot := FuncBindings(h, AOT)

	je, ok := find(jit, "exit")
	if !ok {
		t.Fatal("exit not bound in JIT mode")
	}
	ae, ok := find(aot, "exit")
	if !ok {
		t.Fatal("exit not bound in AOT mode")
	}
	if je.Addr == ae.Addr {
		t.Error("exit must route to different kernel routines in JIT and AOT")
	}

	wantJit, _ := h.RoutineAddr("jit_exit")
	if je.Addr != wantJit {
		t.Errorf("JIT exit addr = %#x, want jit_exit %#x", je.Addr, wantJit)
	}
	wantAot, _ := h.RoutineAddr("end_process")
	if ae.Addr != wantAot {
		t.Errorf("AOT exit addr = %#x, want end_process %#x", ae.Addr, wantAot)
	}
}

func TestFuncBindingsArgc(t *testing.T) {
	h := NewMockHost()
	for _, b := range FuncBindings(h, JIT) {
		switch b.Name {
		case "memcpy", "memset", "read", "write", "lseek":
			if b.Argc != 3 {
				t.Errorf("%s argc = %d, want 3", b.Name, b.Argc)
			}
		case "getch", "yield", "ticks", "cls":
			if b.Argc != 0 {
				t.Errorf("%s argc = %d, want 0", b.Name, b.Argc)
			}
		}
	}
}

func TestConstBindings(t *testing.T) {
	consts := ConstBindings(true)
	want := map[string]int32{
		"O_RDONLY": 0, "O_WRONLY": 1, "O_RDWR": 2,
		"O_CREAT": 0x100, "O_TRUNC": 0x200, "O_APPEND": 0x400,
		"SEEK_SET": 0, "SEEK_CUR": 1, "SEEK_END": 2,
		"ENOENT": -2, "EACCES": -13, "EEXIST": -17,
		"ENOTDIR": -20, "EISDIR": -21, "EINVAL": -22,
		"EMFILE": -24, "ENOSPC": -28, "EIO": -5, "ENOSYS": -38,
	}
	got := map[string]int32{}
	for _, c := range consts {
		got[c.Name] = c.Value
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %d, want %d", name, got[name], v)
		}
	}

	// Syscall offsets are multiples of 4 in table order.
	if got["SYS_PRINT"] != 0 {
		t.Errorf("SYS_PRINT = %d, want 0", got["SYS_PRINT"])
	}
	if got["SYS_PRINTLN"] != 4 {
		t.Errorf("SYS_PRINTLN = %d, want 4", got["SYS_PRINTLN"])
	}
	for _, c := range consts {
		if len(c.Name) > 4 && c.Name[:4] == "SYS_" && c.Value%4 != 0 {
			t.Errorf("%s = %d, not a multiple of 4", c.Name, c.Value)
		}
	}

	// The compiler side gets no syscall offsets.
	for _, c := range ConstBindings(false) {
		if len(c.Name) > 4 && c.Name[:4] == "SYS_" {
			t.Errorf("unexpected %s without syscall table", c.Name)
		}
	}
}
