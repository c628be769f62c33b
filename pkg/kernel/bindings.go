package kernel

// Binding is one predefined symbol installed into a compile state before
// parsing: a kernel routine callable from compiled code.
type Binding struct {
	Name string
	Addr uint32
	Argc int
}

// Const is an equ-style predefined numeric symbol.
type Const struct {
	Name  string
	Value int32
}

// routines is the canonical set of kernel routines user programs may call.
// The order is stable: it doubles as the syscall dispatch-table layout, so
// the byte offset of entry i is 4*i.
var routines = []struct {
	name string
	argc int
}{
	// console
	{"print", 1},
	{"println", 1},
	{"print_int", 1},
	{"print_char", 1},
	{"getch", 0},
	{"readline", 2},
	{"cls", 0},
	// memory
	{"malloc", 1},
	{"free", 1},
	{"memset", 3},
	{"memcpy", 3},
	{"memcmp", 3},
	// strings
	{"strlen", 1},
	{"strcmp", 2},
	{"strcpy", 2},
	{"strcat", 2},
	{"atoi", 1},
	{"itoa", 2},
	// port I/O
	{"outb", 2},
	{"inb", 1},
	{"outw", 2},
	{"inw", 1},
	// filesystem
	{"open", 2},
	{"close", 1},
	{"read", 3},
	{"write", 3},
	{"lseek", 3},
	{"stat", 2},
	{"unlink", 1},
	// process / timer
	{"sleep", 1},
	{"ticks", 0},
	{"yield", 0},
	{"exec", 1},
	{"exit", 1},
}

// FuncBindings resolves the routine set against a host. The exit binding is
// the one place JIT and AOT differ: in JIT mode exit is a plain return to the
// caller, in AOT mode it must end the process.
func FuncBindings(h Host, mode Mode) []Binding {
	out := make([]Binding, 0, len(routines))
	for _, r := range routines {
		target := r.name
		if r.name == "exit" {
			if mode == JIT {
				target = "jit_exit"
			} else {
				target = "end_process"
			}
		}
		addr, ok := h.RoutineAddr(target)
		if !ok {
			continue
		}
		out = append(out, Binding{Name: r.name, Addr: addr, Argc: r.argc})
	}
	return out
}

// File-open flags and seek whence values, mirrored into both toolchains.
var fileConsts = []Const{
	{"O_RDONLY", 0x000},
	{"O_WRONLY", 0x001},
	{"O_RDWR", 0x002},
	{"O_CREAT", 0x100},
	{"O_TRUNC", 0x200},
	{"O_APPEND", 0x400},
	{"SEEK_SET", 0},
	{"SEEK_CUR", 1},
	{"SEEK_END", 2},
}

// VFS node types and error codes, matching the host VFS interface.
var vfsConsts = []Const{
	{"VFS_TYPE_FILE", 1},
	{"VFS_TYPE_DIR", 2},
	{"ENOENT", -2},
	{"EIO", -5},
	{"EACCES", -13},
	{"EEXIST", -17},
	{"ENOTDIR", -20},
	{"EISDIR", -21},
	{"EINVAL", -22},
	{"EMFILE", -24},
	{"ENOSPC", -28},
	{"ENOSYS", -38},
}

// ConstBindings returns the predefined numeric symbols. When withSyscalls is
// set (the assembler), byte offsets into the kernel syscall dispatch table
// are added as SYS_<NAME>.
func ConstBindings(withSyscalls bool) []Const {
	out := make([]Const, 0, len(fileConsts)+len(vfsConsts)+len(routines))
	out = append(out, fileConsts...)
	out = append(out, vfsConsts...)
	if withSyscalls {
		for i, r := range routines {
			out = append(out, Const{Name: "SYS_" + upper(r.name), Value: int32(i * 4)})
		}
	}
	return out
}

// PlaceholderAddrs returns a stable fake address per routine (plus the two
// exit targets), 16 bytes apart in routine-table order. Used wherever no
// real kernel is present: the mock host and the CLI front-ends.
func PlaceholderAddrs(base uint32) map[string]uint32 {
	addrs := make(map[string]uint32, len(routines)+2)
	next := base
	for _, r := range routines {
		addrs[r.name] = next
		next += 16
	}
	addrs["jit_exit"] = next
	addrs["end_process"] = next + 16
	return addrs
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
