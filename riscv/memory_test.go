package riscv

import (
	"errors"
	"testing"
)

func TestMemory_ReadWriteWidths(t *testing.T) {
	mem := NewMemory(0)
	if err := mem.WriteByteAt(0x100, 0xAB); err != nil {
		t.Fatalf("WriteByteAt: %v", err)
	}
	if b, err := mem.ReadByteAt(0x100); err != nil || b != 0xAB {
		t.Errorf("ReadByteAt: got 0x%02x, %v", b, err)
	}
	if err := mem.WriteHalfword(0x200, 0xBEEF); err != nil {
		t.Fatalf("WriteHalfword: %v", err)
	}
	if h, err := mem.ReadHalfword(0x200); err != nil || h != 0xBEEF {
		t.Errorf("ReadHalfword: got 0x%04x, %v", h, err)
	}
	if err := mem.WriteWord(0x400, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	if w, err := mem.ReadWord(0x400); err != nil || w != 0xDEADBEEF {
		t.Errorf("ReadWord: got 0x%08x, %v", w, err)
	}
	if b, _ := mem.ReadByteAt(0x400); b != 0xEF {
		t.Errorf("little endian: low byte 0x%02x, want 0xEF", b)
	}
}

func TestMemory_CrossPageWord(t *testing.T) {
	mem := NewMemory(0)
	addr := uint32(PageSize - 2)
	if err := mem.WriteWord(addr, 0x11223344); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	if w, err := mem.ReadWord(addr); err != nil || w != 0x11223344 {
		t.Fatalf("ReadWord: got 0x%08x, %v", w, err)
	}
	if mem.PageCount() != 2 {
		t.Fatalf("PageCount: got %d, want 2", mem.PageCount())
	}
}

func TestMemory_LoadSegment(t *testing.T) {
	mem := NewMemory(0)
	data := make([]byte, PageSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	if err := mem.LoadSegment(0x3000-5, data); err != nil {
		t.Fatalf("LoadSegment: %v", err)
	}
	for _, off := range []int{0, 4, 5, PageSize, PageSize + 9} {
		b, _ := mem.ReadByteAt(0x3000 - 5 + uint32(off))
		if b != byte(off) {
			t.Errorf("offset %d: got %d", off, b)
		}
	}
	if err := mem.LoadSegment(0, nil); !errors.Is(err, ErrSegEmpty) {
		t.Errorf("empty: got %v", err)
	}
	if err := mem.LoadSegment(0xFFFFFF00, make([]byte, 512)); !errors.Is(err, ErrSegOverlap) {
		t.Errorf("overflow: got %v", err)
	}
}

func TestMemory_RAMBound(t *testing.T) {
	mem := NewMemory(2 * PageSize)
	if err := mem.WriteByteAt(0x0000, 1); err != nil {
		t.Fatalf("first page: %v", err)
	}
	if err := mem.WriteByteAt(0x1000, 2); err != nil {
		t.Fatalf("second page: %v", err)
	}
	if err := mem.WriteByteAt(0x2000, 3); !errors.Is(err, ErrPageLimit) {
		t.Errorf("third page: got %v, want ErrPageLimit", err)
	}
	// Touching an allocated page stays within the bound.
	if err := mem.WriteByteAt(0x1FFF, 4); err != nil {
		t.Errorf("existing page: %v", err)
	}
}

func TestMemory_RAMBoundSurfacesFromCPU(t *testing.T) {
	cpu := NewCPU(NewMemory(PageSize), nil)
	if err := cpu.LoadProgram(programBytes([]uint32{Lui(1, 0x10000), Sw(1, 0, 0), Idle()}), 0, 0); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	_ = cpu.Step()
	err := cpu.Step()
	if !errors.Is(err, ErrPageLimit) || !errors.Is(err, ErrMemoryFault) {
		t.Fatalf("got %v, want memory fault wrapping ErrPageLimit", err)
	}
}

func TestMemory_Reset(t *testing.T) {
	mem := NewMemory(0)
	if err := mem.WriteByteAt(0x100, 0xFF); err != nil {
		t.Fatalf("WriteByteAt: %v", err)
	}
	mem.Reset()
	if mem.PageCount() != 0 {
		t.Errorf("PageCount after reset: %d, want 0", mem.PageCount())
	}
	if b, _ := mem.ReadByteAt(0x100); b != 0 {
		t.Errorf("after reset: got 0x%02x, want 0", b)
	}
}
