package obj

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferLittleEndian(t *testing.T) {
	b := NewBuffer(16, ErrCodeOverflow)
	if err := b.U32(0x00400000); err != nil {
		t.Fatalf("U32 failed: %v", err)
	}
	if err := b.U16(0x2A01); err != nil {
		t.Fatalf("U16 failed: %v", err)
	}
	want := []byte{0x00, 0x00, 0x40, 0x00, 0x01, 0x2A}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("got % X, want % X", b.Bytes(), want)
	}
}

func TestBufferExactFill(t *testing.T) {
	b := NewBuffer(4, ErrCodeOverflow)
	if err := b.U32(1); err != nil {
		t.Fatalf("exact fill should succeed: %v", err)
	}
	if err := b.Byte(0); !errors.Is(err, ErrCodeOverflow) {
		t.Errorf("one byte past cap: got %v, want ErrCodeOverflow", err)
	}
	if b.Len() != 4 {
		t.Errorf("failed write must not advance cursor, len=%d", b.Len())
	}
}

func TestBufferSetU32(t *testing.T) {
	b := NewBuffer(8, ErrCodeOverflow)
	b.U32(0)
	if err := b.SetU32(0, 0xDEADBEEF); err != nil {
		t.Fatalf("SetU32 failed: %v", err)
	}
	want := []byte{0xEF, 0xBE, 0xAD, 0xDE}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("got % X, want % X", b.Bytes(), want)
	}
	if err := b.SetU32(1, 0); err == nil {
		t.Error("SetU32 past the cursor must fail")
	}
	if err := b.SetByte(4, 0); err == nil {
		t.Error("SetByte past the cursor must fail")
	}
}

func TestResolveAbsoluteAndRelative(t *testing.T) {
	img := NewImage(ASCodeBase, ASDataBase)

	// call hole at offset 1 (E8 rel32), absolute dword hole at offset 6.
	img.Code.Byte(0xE8)
	img.Code.U32(0)
	img.Code.Byte(0x90)
	img.Code.U32(0)

	img.Patches.Add(Patch{Offset: 1, Name: "f", Relative: true, Width: 4})
	img.Patches.Add(Patch{Offset: 6, Name: "f", Relative: false, Width: 4})

	target := ASCodeBase + 0x40
	err := img.Resolve(func(name string) (uint32, bool) {
		if name == "f" {
			return target, true
		}
		return 0, false
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// rel32 = target - (base+1+4) = 0x40 - 5 = 0x3B
	wantRel := []byte{0x3B, 0x00, 0x00, 0x00}
	if !bytes.Equal(img.Code.Bytes()[1:5], wantRel) {
		t.Errorf("rel32: got % X, want % X", img.Code.Bytes()[1:5], wantRel)
	}
	wantAbs := []byte{0x40, 0x00, 0x50, 0x00}
	if !bytes.Equal(img.Code.Bytes()[6:10], wantAbs) {
		t.Errorf("abs: got % X, want % X", img.Code.Bytes()[6:10], wantAbs)
	}
}

func TestResolveDataPatch(t *testing.T) {
	img := NewImage(ASCodeBase, ASDataBase)
	img.Data.U32(0)
	img.Patches.Add(Patch{Offset: 0 | DataPatch, Name: "L", Width: 4})

	err := img.Resolve(func(string) (uint32, bool) { return ASCodeBase + 1, true })
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []byte{0x01, 0x00, 0x50, 0x00}
	if !bytes.Equal(img.Data.Bytes(), want) {
		t.Errorf("got % X, want % X", img.Data.Bytes(), want)
	}
}

func TestResolveShortJumpRange(t *testing.T) {
	img := NewImage(ASCodeBase, ASDataBase)
	img.Code.Emit(0xEB, 0x00)
	img.Patches.Add(Patch{Offset: 1, Name: "far", Relative: true, Width: 1})

	// +127 from the end of the displacement fits.
	err := img.Resolve(func(string) (uint32, bool) { return ASCodeBase + 2 + 127, true })
	if err != nil {
		t.Fatalf("in-range short jump rejected: %v", err)
	}
	if img.Code.Bytes()[1] != 127 {
		t.Errorf("disp byte = %d, want 127", img.Code.Bytes()[1])
	}

	img.Patches.Add(Patch{Offset: 1, Name: "far", Relative: true, Width: 1})
	err = img.Resolve(func(string) (uint32, bool) { return ASCodeBase + 2 + 128, true })
	if err == nil {
		t.Fatal("out-of-range short jump accepted")
	}
}

func TestResolveUndefined(t *testing.T) {
	img := NewImage(CCCodeBase, CCDataBase)
	img.Code.U32(0)
	img.Patches.Add(Patch{Offset: 0, Name: "ghost", Width: 4})
	if err := img.Resolve(func(string) (uint32, bool) { return 0, false }); err == nil {
		t.Fatal("unresolved reference not reported")
	}
}

func TestPatchLimit(t *testing.T) {
	var pl PatchList
	for i := 0; i < MaxPatches; i++ {
		if err := pl.Add(Patch{Name: "x"}); err != nil {
			t.Fatalf("patch %d rejected below limit: %v", i, err)
		}
	}
	if err := pl.Add(Patch{Name: "x"}); !errors.Is(err, ErrTooManyPatches) {
		t.Errorf("patch past limit: got %v, want ErrTooManyPatches", err)
	}
}
