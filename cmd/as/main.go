// The as command assembles an Intel-syntax source file for the gokos
// kernel, with the same jit/aot split as cmd/cc.
package main

import (
	"flag"
	"fmt"
	"os"

	"gokos/pkg/asm"
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
		fmt.Fprintln(os.Stderr, "usage: as [-aot] [-o out.elf] [-storage disk] file.asm")
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
	// %include resolves on the virtual disk.
	entries, err := os.ReadDir(baseDir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				host.Import(baseDir+string(os.PathSeparator)+e.Name(), "/"+e.Name())
			}
		}
	}

	img, err := asm.Assemble(host, mode, string(src), "/")
	if err != nil {
		cli.PrintError("Assemble Error", err)
		os.Exit(1)
	}

	ld := loader.New(host, loader.NewMemRegion(obj.ASCodeBase, obj.CodeCap+obj.DataCap))
	if mode == kernel.AOT {
		if err := ld.WriteELF(img, "/"+cfg.Output); err != nil {
			cli.PrintError("Output Error", err)
			os.Exit(1)
		}
		if err := host.Export("/"+cfg.Output, cfg.Output); err != nil {
			cli.PrintError("Output Error", err)
			os.Exit(1)
		}
		cli.PrintSuccess("OK", fmt.Sprintf("wrote %s (%d code bytes, %d data bytes)",
			cfg.Output, img.Code.Len(), img.Data.Len()))
	} else {
		status, err := ld.Run(img, nil)
		if err != nil {
			cli.PrintError("Load Error", err)
			os.Exit(1)
		}
		cli.PrintSuccess("OK", fmt.Sprintf("loaded at %#08x, entry %#08x, status %d",
			obj.ASCodeBase, img.EntryAddr(), status))
	}

	if err := host.Persist(); err != nil {
		cli.PrintError("Disk Error", err)
		os.Exit(1)
	}
}
