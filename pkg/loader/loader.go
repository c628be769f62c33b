package loader

import (
	"fmt"

	"gokos/pkg/elf"
	"gokos/pkg/kernel"
	"gokos/pkg/obj"
)

// Loader runs or writes out compiled images. One Loader owns one Region and
// keeps a stack of snapshots so a loaded program can itself invoke the
// compiler and launch another program without losing its own code.
type Loader struct {
	host   kernel.Host
	region Region
	saved  [][]byte
}

// New creates a Loader over the given host and region. The region must span
// from the tool's code base through the end of its data area.
func New(host kernel.Host, region Region) *Loader {
	return &Loader{host: host, region: region}
}

// Depth reports how many program contexts are currently saved.
func (l *Loader) Depth() int { return len(l.saved) }

// Run copies img into the region, invokes each initialiser offset in
// exeFuncs once, calls the entry point and reports its status to the host.
// The region contents are restored before Run returns, so a caller that was
// itself loaded keeps running afterwards.
func (l *Loader) Run(img *obj.Image, exeFuncs []uint32) (int32, error) {
	if !img.HasEntry {
		return 0, fmt.Errorf("image has no entry point")
	}
	if img.CodeBase != l.region.Base() {
		return 0, fmt.Errorf("image code base %#x does not match region base %#x", img.CodeBase, l.region.Base())
	}
	dataOff := img.DataBase - img.CodeBase
	if int(dataOff)+img.Data.Len() > l.region.Size() {
		return 0, fmt.Errorf("image does not fit the load region")
	}

	l.saved = append(l.saved, l.region.Snapshot())
	defer func() {
		snap := l.saved[len(l.saved)-1]
		l.saved = l.saved[:len(l.saved)-1]
		l.region.Restore(snap)
	}()

	if err := l.region.WriteAt(0, img.Code.Bytes()); err != nil {
		return 0, err
	}
	if err := l.region.WriteAt(dataOff, img.Data.Bytes()); err != nil {
		return 0, err
	}

	// Each initialiser runs once even if recorded twice.
	seen := make(map[uint32]bool)
	for _, off := range exeFuncs {
		if seen[off] {
			continue
		}
		seen[off] = true
		l.host.Exec(img.CodeBase + off)
	}

	status := l.host.Exec(img.EntryAddr())
	l.host.ProgramEnded(status)
	return status, nil
}

// WriteELF wraps img in a minimal ELF32 container and stores it at path
// through the host filesystem. Used by the AOT entry points; nothing is
// written when Build fails.
func (l *Loader) WriteELF(img *obj.Image, path string) error {
	if !img.HasEntry {
		return fmt.Errorf("image has no entry point")
	}
	out, err := elf.Build(img.CodeBase, img.Code.Bytes(), img.DataBase, img.Data.Bytes(), img.EntryAddr())
	if err != nil {
		return err
	}
	return l.host.WriteFile(path, out)
}
