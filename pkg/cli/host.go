// Package cli carries what the command-line front-ends share: a Host backed
// by a persistent virtual disk, the gokos.toml project configuration, and
// the console display helpers.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gokos/pkg/kernel"
	"gokos/pkg/vfs"
)

// Host adapts a VirtualDisk to the kernel.Host interface for the CLI tools.
// Compiled programs cannot actually run on the development machine, so Exec
// records the call and reports it instead of jumping into the code.
type Host struct {
	Disk    *vfs.VirtualDisk
	Debug   bool
	storage string

	ExecCalls []uint32
	LastEnded int32
}

// OpenHost loads the virtual disk image at storage, or starts empty when the
// image does not exist yet.
func OpenHost(storage string) (*Host, error) {
	h := &Host{Disk: vfs.NewVirtualDisk(), storage: storage}
	if storage == "" {
		return h, nil
	}
	if _, err := os.Stat(storage); err == nil {
		if err := h.Disk.LoadFrom(storage); err != nil {
			return nil, fmt.Errorf("load disk image %s: %w", storage, err)
		}
	}
	return h, nil
}

// Persist writes the virtual disk back to its storage image.
func (h *Host) Persist() error {
	if h.storage == "" {
		return nil
	}
	return h.Disk.PersistTo(h.storage)
}

// routineAddrs gives CLI compiles the same stable placeholder bindings the
// mock host uses; real addresses only exist inside the kernel.
var routineAddrs = kernel.PlaceholderAddrs(0xC0000000)

func (h *Host) RoutineAddr(name string) (uint32, bool) {
	a, ok := routineAddrs[name]
	return a, ok
}

func (h *Host) ReadFile(path string) ([]byte, error) {
	return h.Disk.Read(path)
}

func (h *Host) WriteFile(path string, data []byte) error {
	return h.Disk.Write(path, data)
}

func (h *Host) Stat(path string) (int, error) {
	return h.Disk.Size(path)
}

func (h *Host) Print(msg string) {
	fmt.Print(msg)
}

func (h *Host) Exec(addr uint32) int32 {
	h.ExecCalls = append(h.ExecCalls, addr)
	if h.Debug {
		fmt.Fprintf(os.Stderr, "exec %#08x (not run outside the kernel)\n", addr)
	}
	return 0
}

func (h *Host) ProgramEnded(status int32) {
	h.LastEnded = status
}

// ListFiles enumerates the virtual disk for the shell ls command. Names carry
// a leading slash so they match the absolute paths ReadFile expects.
func (h *Host) ListFiles() []string {
	names := h.Disk.List()
	for i, n := range names {
		names[i] = "/" + n
	}
	return names
}

// Import copies a file from the development machine into the virtual disk.
// The destination defaults to /<basename>.
func (h *Host) Import(osPath, vfsPath string) (string, error) {
	data, err := os.ReadFile(osPath)
	if err != nil {
		return "", err
	}
	if vfsPath == "" {
		vfsPath = "/" + filepath.Base(osPath)
	}
	return vfsPath, h.Disk.Write(vfsPath, data)
}

// Export copies a file from the virtual disk to the development machine.
func (h *Host) Export(vfsPath, osPath string) error {
	data, err := h.Disk.Read(vfsPath)
	if err != nil {
		return err
	}
	return os.WriteFile(osPath, data, 0o644)
}
