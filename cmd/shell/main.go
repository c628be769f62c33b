// The shell command is an interactive console over the toolchain dispatcher:
// cc/ccelf/asm/asmelf/dis plus ls/cat on the virtual disk, and import/export
// to move files between the disk image and the development machine.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gokos/pkg/cli"
	"gokos/pkg/loader"
	"gokos/pkg/obj"
	"gokos/pkg/shell"
)

func main() {
	cfg, err := cli.LoadConfig(".")
	if err != nil {
		cli.PrintError("Config Error", err)
		os.Exit(1)
	}
	host, err := cli.OpenHost(cfg.Storage)
	if err != nil {
		cli.PrintError("Disk Error", err)
		os.Exit(1)
	}
	host.Debug = cfg.Debug

	size := obj.CodeCap + obj.DataCap
	sh := shell.New(host,
		loader.NewMemRegion(obj.CCCodeBase, size),
		loader.NewMemRegion(obj.ASCodeBase, size))

	// One-shot form: `shell cc /main.c`.
	if len(os.Args) > 1 {
		sh.Dispatch(strings.Join(os.Args[1:], " "))
		persist(host)
		return
	}

	fmt.Printf("gokos shell, disk %s (exit to quit)\n", cfg.Storage)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			persist(host)
			return
		case "import":
			if len(fields) < 2 || len(fields) > 3 {
				fmt.Println("usage: import <ospath> [vfspath]")
				continue
			}
			dst := ""
			if len(fields) == 3 {
				dst = fields[2]
			}
			if dst, err = host.Import(fields[1], dst); err != nil {
				cli.PrintError("Import Error", err)
			} else {
				fmt.Printf("imported %s\n", dst)
			}
		case "export":
			if len(fields) != 3 {
				fmt.Println("usage: export <vfspath> <ospath>")
				continue
			}
			if err := host.Export(fields[1], fields[2]); err != nil {
				cli.PrintError("Export Error", err)
			}
		default:
			sh.Dispatch(line)
		}
	}
	persist(host)
}

func persist(host *cli.Host) {
	if err := host.Persist(); err != nil {
		cli.PrintError("Disk Error", err)
		os.Exit(1)
	}
}
