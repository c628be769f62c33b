// Package shell is the command dispatcher the kernel console wires the
// toolchains into: cc/asm run a source file through the JIT, ccelf/asmelf
// produce ELF32 files, dis prints a disassembly, and ls/cat browse the
// filesystem. All output goes through the host console.
package shell

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gokos/pkg/asm"
	"gokos/pkg/cc"
	"gokos/pkg/kernel"
	"gokos/pkg/loader"
	"gokos/pkg/obj"
	"gokos/pkg/x86"
)

// Lister is implemented by hosts whose filesystem can enumerate its files;
// the ls command degrades gracefully when the host cannot.
type Lister interface {
	ListFiles() []string
}

// Shell dispatches console commands. It owns one loader per tool, since CC
// and AS images load at different fixed bases.
type Shell struct {
	host kernel.Host
	cc   *loader.Loader
	as   *loader.Loader
}

// New builds a Shell over the host and the two tool load regions.
func New(host kernel.Host, ccRegion, asRegion loader.Region) *Shell {
	return &Shell{
		host: host,
		cc:   loader.New(host, ccRegion),
		as:   loader.New(host, asRegion),
	}
}

// Dispatch parses and runs one command line. Unknown commands and command
// failures are reported on the console; the returned error is non-nil only
// for them, so a console loop can count failures without re-printing.
func (s *Shell) Dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "cc":
		err = s.ccJIT(args)
	case "ccelf":
		err = s.ccAOT(args)
	case "asm":
		err = s.asJIT(args)
	case "asmelf":
		err = s.asAOT(args)
	case "dis":
		err = s.dis(args)
	case "ls":
		err = s.ls(args)
	case "cat":
		err = s.cat(args)
	case "help":
		s.help()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		s.host.Print(fmt.Sprintf("%s: %v\n", cmd, err))
	}
	return err
}

func (s *Shell) help() {
	s.host.Print("commands:\n" +
		"  cc <file>            compile C source and run it\n" +
		"  ccelf <file> <out>   compile C source to an ELF file\n" +
		"  asm <file>           assemble and run\n" +
		"  asmelf <file> <out>  assemble to an ELF file\n" +
		"  dis <file>           compile C source and print a disassembly\n" +
		"  ls                   list files\n" +
		"  cat <file>           print a file\n")
}

func wantArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (s *Shell) ccJIT(args []string) error {
	if err := wantArgs(args, 1, "cc <file>"); err != nil {
		return err
	}
	prog, err := s.compileFile(args[0], kernel.JIT)
	if err != nil {
		return err
	}
	_, err = s.cc.Run(prog.Image, prog.ExeFuncs)
	return err
}

func (s *Shell) ccAOT(args []string) error {
	if err := wantArgs(args, 2, "ccelf <file> <out>"); err != nil {
		return err
	}
	prog, err := s.compileFile(args[0], kernel.AOT)
	if err != nil {
		return err
	}
	if err := s.cc.WriteELF(prog.Image, args[1]); err != nil {
		return err
	}
	s.host.Print(fmt.Sprintf("wrote %s\n", args[1]))
	return nil
}

func (s *Shell) asJIT(args []string) error {
	if err := wantArgs(args, 1, "asm <file>"); err != nil {
		return err
	}
	img, err := s.assembleFile(args[0], kernel.JIT)
	if err != nil {
		return err
	}
	_, err = s.as.Run(img, nil)
	return err
}

func (s *Shell) asAOT(args []string) error {
	if err := wantArgs(args, 2, "asmelf <file> <out>"); err != nil {
		return err
	}
	img, err := s.assembleFile(args[0], kernel.AOT)
	if err != nil {
		return err
	}
	if err := s.as.WriteELF(img, args[1]); err != nil {
		return err
	}
	s.host.Print(fmt.Sprintf("wrote %s\n", args[1]))
	return nil
}

// dis compiles a C source file and prints each instruction with its address
// and bytes, one line per instruction.
func (s *Shell) dis(args []string) error {
	if err := wantArgs(args, 1, "dis <file>"); err != nil {
		return err
	}
	prog, err := s.compileFile(args[0], kernel.JIT)
	if err != nil {
		return err
	}
	code := prog.Image.Code.Bytes()
	x86.Disassemble(code, prog.Image.CodeBase, func(inst x86.Inst) {
		raw := fmt.Sprintf("% X", code[inst.Off:inst.Off+uint32(inst.Len)])
		s.host.Print(fmt.Sprintf("%08X  %-24s %s\n", prog.Image.CodeBase+inst.Off, raw, inst.Text))
	})
	return nil
}

func (s *Shell) ls(args []string) error {
	l, ok := s.host.(Lister)
	if !ok {
		return fmt.Errorf("host filesystem cannot list files")
	}
	names := l.ListFiles()
	if len(args) == 1 {
		prefix := strings.TrimSuffix(args[0], "/") + "/"
		var kept []string
		for _, n := range names {
			if strings.HasPrefix(n, prefix) {
				kept = append(kept, n)
			}
		}
		names = kept
	}
	sort.Strings(names)
	for _, n := range names {
		size, err := s.host.Stat(n)
		if err != nil {
			continue
		}
		s.host.Print(fmt.Sprintf("%8d  %s\n", size, n))
	}
	return nil
}

func (s *Shell) cat(args []string) error {
	if err := wantArgs(args, 1, "cat <file>"); err != nil {
		return err
	}
	data, err := s.host.ReadFile(args[0])
	if err != nil {
		return err
	}
	s.host.Print(string(data))
	return nil
}

func (s *Shell) compileFile(p string, mode kernel.Mode) (*cc.Program, error) {
	src, err := s.host.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return cc.Compile(s.host, mode, string(src), baseDir(p))
}

func (s *Shell) assembleFile(p string, mode kernel.Mode) (*obj.Image, error) {
	src, err := s.host.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return asm.Assemble(s.host, mode, string(src), baseDir(p))
}

// baseDir anchors relative includes next to the including file.
func baseDir(p string) string {
	d := path.Dir(p)
	if d == "." {
		return "/"
	}
	return d
}
