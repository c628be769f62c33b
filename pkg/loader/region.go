// Package loader delivers compiled images. In JIT mode it copies code and
// data into the fixed load region, runs #exe initialisers, calls the entry
// point through the host and restores the region afterwards so nested
// invocations work. In AOT mode it wraps the image in an ELF32 container and
// writes it through the host filesystem.
package loader

import "fmt"

// Region is the fixed execute region a tool loads into. It spans the code
// base through the end of the data area; offsets are relative to Base.
type Region interface {
	// Base returns the linear address of the first byte.
	Base() uint32
	// Size returns the region length in bytes.
	Size() int
	// WriteAt copies b into the region at the given offset.
	WriteAt(off uint32, b []byte) error
	// Snapshot returns a copy of the current contents.
	Snapshot() []byte
	// Restore overwrites the contents from a prior Snapshot.
	Restore(snap []byte) error
	// Close releases the region's backing storage.
	Close() error
}

// MemRegion is a plain in-memory Region for tests and non-linux hosts.
type MemRegion struct {
	base uint32
	buf  []byte
}

// NewMemRegion reserves size bytes at the given linear base address.
func NewMemRegion(base uint32, size int) *MemRegion {
	return &MemRegion{base: base, buf: make([]byte, size)}
}

func (r *MemRegion) Base() uint32 { return r.base }
func (r *MemRegion) Size() int    { return len(r.buf) }

func (r *MemRegion) WriteAt(off uint32, b []byte) error {
	if int(off)+len(b) > len(r.buf) {
		return fmt.Errorf("write of %d bytes at offset %#x exceeds region size %d", len(b), off, len(r.buf))
	}
	copy(r.buf[off:], b)
	return nil
}

func (r *MemRegion) Snapshot() []byte {
	snap := make([]byte, len(r.buf))
	copy(snap, r.buf)
	return snap
}

func (r *MemRegion) Restore(snap []byte) error {
	if len(snap) != len(r.buf) {
		return fmt.Errorf("snapshot size %d does not match region size %d", len(snap), len(r.buf))
	}
	copy(r.buf, snap)
	return nil
}

func (r *MemRegion) Close() error { return nil }

// Bytes exposes the region contents for assertions.
func (r *MemRegion) Bytes() []byte { return r.buf }
