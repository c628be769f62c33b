//go:build linux

package loader

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapRegion is a Region backed by an anonymous executable mapping, for
// hosts that really jump into the loaded code. The mapping lives wherever
// the kernel put it; Base still reports the linear address the image was
// linked for, so address arithmetic matches the fixed-base convention.
type MmapRegion struct {
	base uint32
	buf  []byte
}

// NewMmapRegion maps size bytes of anonymous read/write/execute memory.
func NewMmapRegion(base uint32, size int) (*MmapRegion, error) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return &MmapRegion{base: base, buf: buf}, nil
}

func (r *MmapRegion) Base() uint32 { return r.base }
func (r *MmapRegion) Size() int    { return len(r.buf) }

func (r *MmapRegion) WriteAt(off uint32, b []byte) error {
	if int(off)+len(b) > len(r.buf) {
		return fmt.Errorf("write of %d bytes at offset %#x exceeds region size %d", len(b), off, len(r.buf))
	}
	copy(r.buf[off:], b)
	return nil
}

func (r *MmapRegion) Snapshot() []byte {
	snap := make([]byte, len(r.buf))
	copy(snap, r.buf)
	return snap
}

func (r *MmapRegion) Restore(snap []byte) error {
	if len(snap) != len(r.buf) {
		return fmt.Errorf("snapshot size %d does not match region size %d", len(snap), len(r.buf))
	}
	copy(r.buf, snap)
	return nil
}

func (r *MmapRegion) Close() error {
	if r.buf == nil {
		return nil
	}
	err := unix.Munmap(r.buf)
	r.buf = nil
	return err
}
