package obj

import "fmt"

// DataPatch is OR-ed into a patch offset to mark a data-section patch.
// Offsets never reach bit 31 on their own (buffers cap out far below).
const DataPatch uint32 = 0x80000000

// Patch records a forward reference: a hole in the code or data buffer that
// must be filled with the address of (or displacement to) a named symbol once
// parsing completes.
type Patch struct {
	Offset   uint32 // buffer offset; DataPatch bit set for data-section holes
	Name     string
	Relative bool // rel32/rel8 jump displacement vs absolute address
	Width    int  // 1 or 4
}

// PatchList accumulates patches up to MaxPatches.
type PatchList struct {
	patches []Patch
}

func (pl *PatchList) Add(p Patch) error {
	if len(pl.patches) >= MaxPatches {
		return ErrTooManyPatches
	}
	pl.patches = append(pl.patches, p)
	return nil
}

// Len returns the number of recorded patches.
func (pl *PatchList) Len() int { return len(pl.patches) }

// All returns the recorded patches in emission order.
func (pl *PatchList) All() []Patch { return pl.patches }

// Resolve walks the patch list and writes every hole. lookup maps a symbol
// name to its absolute address; a miss is a fatal unresolved-reference error.
// Short relative patches are range-checked.
func (img *Image) Resolve(lookup func(name string) (uint32, bool)) error {
	for _, p := range img.Patches.All() {
		target, ok := lookup(p.Name)
		if !ok {
			return fmt.Errorf("unresolved reference to %q", p.Name)
		}

		if p.Offset&DataPatch != 0 {
			// Data-section holes are always absolute addresses.
			off := int(p.Offset &^ DataPatch)
			if err := img.Data.SetU32(off, target); err != nil {
				return err
			}
			continue
		}

		off := int(p.Offset)
		if p.Relative {
			// Displacement is measured from the end of the displacement field.
			next := img.CodeBase + uint32(off) + uint32(p.Width)
			disp := int64(target) - int64(next)
			if p.Width == 1 {
				if disp < -128 || disp > 127 {
					return fmt.Errorf("short jump to %q out of range (%d bytes)", p.Name, disp)
				}
				if err := img.Code.SetByte(off, byte(int8(disp))); err != nil {
					return err
				}
			} else {
				if err := img.Code.SetU32(off, uint32(int32(disp))); err != nil {
					return err
				}
			}
			continue
		}

		if err := img.Code.SetU32(off, target); err != nil {
			return err
		}
	}
	return nil
}
