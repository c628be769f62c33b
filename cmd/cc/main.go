// The cc command compiles a C source file for the gokos kernel. In jit mode
// the result is loaded into a memory region and its entry is dispatched
// through the CLI host; in aot mode an ELF32 file is written to the virtual
// disk and exported next to the source.
package main

import (
	"flag"
	"fmt"
	"os"

	"gokos/pkg/cc"
	"gokos/pkg/cli"
	"gokos/pkg/kernel"
	"gokos/pkg/loader"
	"gokos/pkg/obj"
)

func main() {
	aot := flag.Bool("aot", false, "write an ELF file instead of running")
	out := flag.String("o", "", "output path for -aot (default from gokos.toml)")
	storage := flag.String("storage", "", "virtual disk image (default from gokos.toml)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cc [-aot] [-o out.elf] [-storage disk] file.c")
		os.Exit(2)
	}

	cfg, err := cli.LoadConfig(".")
	if err != nil {
		cli.PrintError("Config Error", err)
		os.Exit(1)
	}
	if *storage != "" {
		cfg.Storage = *storage
	}
	if *out != "" {
		cfg.Output = *out
	}
	mode := kernel.JIT
	if *aot || cfg.Mode == "aot" {
		mode = kernel.AOT
	}

	host, err := cli.OpenHost(cfg.Storage)
	if err != nil {
		cli.PrintError("Disk Error", err)
		os.Exit(1)
	}
	host.Debug = cfg.Debug

	fullPath, baseDir, err := cli.GetPathInfo(flag.Arg(0))
	if err != nil {
		cli.PrintError("Path Error", err)
		os.Exit(1)
	}
	src, err := os.ReadFile(fullPath)
	if err != nil {
		cli.PrintError("Read Error", err)
		os.Exit(1)
	}
	// Includes resolve on the virtual disk; mirror the source's directory
	// contents there so relative includes work from the real filesystem.
	if err := mirrorDir(host, baseDir); err != nil {
		cli.PrintError("Disk Error", err)
		os.Exit(1)
	}

	prog, err := cc.Compile(host, mode, string(src), "/")
	if err != nil {
		cli.PrintError("Compile Error", err)
		os.Exit(1)
	}

	ld := loader.New(host, loader.NewMemRegion(obj.CCCodeBase, obj.CodeCap+obj.DataCap))
	if mode == kernel.AOT {
		if err := ld.WriteELF(prog.Image, "/"+cfg.Output); err != nil {
			cli.PrintError("Output Error", err)
			os.Exit(1)
		}
		if err := host.Export("/"+cfg.Output, cfg.Output); err != nil {
			cli.PrintError("Output Error", err)
			os.Exit(1)
		}
		cli.PrintSuccess("OK", fmt.Sprintf("wrote %s (%d code bytes, %d data bytes)",
			cfg.Output, prog.Image.Code.Len(), prog.Image.Data.Len()))
	} else {
		status, err := ld.Run(prog.Image, prog.ExeFuncs)
		if err != nil {
			cli.PrintError("Load Error", err)
			os.Exit(1)
		}
		cli.PrintSuccess("OK", fmt.Sprintf("loaded at %#08x, entry %#08x, status %d",
			obj.CCCodeBase, prog.Image.EntryAddr(), status))
	}

	if err := host.Persist(); err != nil {
		cli.PrintError("Disk Error", err)
		os.Exit(1)
	}
}

// mirrorDir copies the plain files of dir into the virtual disk root.
func mirrorDir(host *cli.Host, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := host.Import(dir+string(os.PathSeparator)+e.Name(), "/"+e.Name()); err != nil {
			return err
		}
	}
	return nil
}
