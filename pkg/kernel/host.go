// Package kernel defines the narrow surface the surrounding kernel exposes to
// the toolchains: a Host interface the driver implements, plus the binding
// tables that make kernel routines and numeric constants visible to compiled
// programs as predefined symbols.
package kernel

// Mode selects how a compiled program will be delivered.
type Mode int

const (
	JIT Mode = iota // copy to the load region and call the entry
	AOT             // wrap code+data in an ELF32 container
)

func (m Mode) String() string {
	if m == AOT {
		return "aot"
	}
	return "jit"
}

// Host is implemented by the surrounding kernel (or a mock in tests). The
// compilers never touch the real filesystem, console or memory directly;
// everything goes through here.
type Host interface {
	// RoutineAddr returns the absolute address of a named kernel routine,
	// used to bind host symbols at compile-state construction.
	RoutineAddr(name string) (uint32, bool)

	// ReadFile fetches a source or include file by path.
	ReadFile(path string) ([]byte, error)
	// WriteFile stores an output file (AOT ELF) by path.
	WriteFile(path string, data []byte) error
	// Stat returns the byte size of the file at path.
	Stat(path string) (int, error)

	// Print writes a diagnostic or program message to the console.
	Print(msg string)

	// Exec synchronously calls the nullary routine at an absolute address
	// inside the load region and returns its EAX.
	Exec(addr uint32) int32

	// ProgramEnded tells the kernel a JIT program returned with status.
	ProgramEnded(status int32)
}
