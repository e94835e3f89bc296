package riscv

import (
	"encoding/binary"
	"errors"
)

const (
	// PageSize is 4KB per page.
	PageSize = 4096

	// PageShift is log2(PageSize).
	PageShift = 12

	// DefaultRAMBound is the memory ceiling when the caller supplies none.
	DefaultRAMBound uint64 = 1 << 30
)

// Memory errors.
var (
	ErrPageLimit  = errors.New("riscv: ram bound exceeded")
	ErrSegOverlap = errors.New("riscv: segment load would overflow")
	ErrSegEmpty   = errors.New("riscv: empty segment data")
)

// Memory is sparse page-based guest memory. Pages are allocated on first
// touch; the number of pages is bounded by the RAM bound.
type Memory struct {
	pages     map[uint32][]byte // pageIndex -> 4KB page
	pageCount int
	maxPages  int
}

// NewMemory creates an empty memory holding at most ramBound bytes. A zero
// bound selects DefaultRAMBound.
func NewMemory(ramBound uint64) *Memory {
	if ramBound == 0 {
		ramBound = DefaultRAMBound
	}
	maxPages := ramBound / PageSize
	if maxPages == 0 {
		maxPages = 1
	}
	if maxPages > 1<<20 {
		maxPages = 1 << 20
	}
	return &Memory{
		pages:    make(map[uint32][]byte),
		maxPages: int(maxPages),
	}
}

// getPage returns the page for addr, allocating on demand.
func (m *Memory) getPage(addr uint32) ([]byte, error) {
	pageIdx := addr >> PageShift
	if page, ok := m.pages[pageIdx]; ok {
		return page, nil
	}
	if m.pageCount >= m.maxPages {
		return nil, ErrPageLimit
	}
	page := make([]byte, PageSize)
	m.pages[pageIdx] = page
	m.pageCount++
	return page, nil
}

func pageOffset(addr uint32) uint32 {
	return addr & (PageSize - 1)
}

// ReadByteAt reads a single byte.
func (m *Memory) ReadByteAt(addr uint32) (byte, error) {
	page, err := m.getPage(addr)
	if err != nil {
		return 0, err
	}
	return page[pageOffset(addr)], nil
}

// WriteByteAt writes a single byte.
func (m *Memory) WriteByteAt(addr uint32, val byte) error {
	page, err := m.getPage(addr)
	if err != nil {
		return err
	}
	page[pageOffset(addr)] = val
	return nil
}

// ReadHalfword reads a 16-bit little-endian value.
func (m *Memory) ReadHalfword(addr uint32) (uint16, error) {
	b0, err := m.ReadByteAt(addr)
	if err != nil {
		return 0, err
	}
	b1, err := m.ReadByteAt(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(b0) | uint16(b1)<<8, nil
}

// WriteHalfword writes a 16-bit little-endian value.
func (m *Memory) WriteHalfword(addr uint32, val uint16) error {
	if err := m.WriteByteAt(addr, byte(val)); err != nil {
		return err
	}
	return m.WriteByteAt(addr+1, byte(val>>8))
}

// ReadWord reads a 32-bit little-endian value.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	off := pageOffset(addr)
	if off <= PageSize-4 {
		page, err := m.getPage(addr)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(page[off:]), nil
	}
	// Cross-page read: byte-by-byte.
	var buf [4]byte
	for i := uint32(0); i < 4; i++ {
		b, err := m.ReadByteAt(addr + i)
		if err != nil {
			return 0, err
		}
		buf[i] = b
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteWord writes a 32-bit little-endian value.
func (m *Memory) WriteWord(addr uint32, val uint32) error {
	off := pageOffset(addr)
	if off <= PageSize-4 {
		page, err := m.getPage(addr)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(page[off:], val)
		return nil
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	for i := uint32(0); i < 4; i++ {
		if err := m.WriteByteAt(addr+i, buf[i]); err != nil {
			return err
		}
	}
	return nil
}

// LoadSegment copies data into memory starting at base.
func (m *Memory) LoadSegment(base uint32, data []byte) error {
	if len(data) == 0 {
		return ErrSegEmpty
	}
	end := uint64(base) + uint64(len(data))
	if end > 1<<32 {
		return ErrSegOverlap
	}
	for len(data) > 0 {
		page, err := m.getPage(base)
		if err != nil {
			return err
		}
		n := copy(page[pageOffset(base):], data)
		data = data[n:]
		base += uint32(n)
	}
	return nil
}

// load performs a load of the width selected by funct3, sign- or
// zero-extending the result.
func (m *Memory) load(funct3, addr uint32) (uint32, error) {
	switch funct3 {
	case 0: // LB
		b, err := m.ReadByteAt(addr)
		return uint32(int32(int8(b))), err
	case 1: // LH
		h, err := m.ReadHalfword(addr)
		return uint32(int32(int16(h))), err
	case 2: // LW
		return m.ReadWord(addr)
	case 4: // LBU
		b, err := m.ReadByteAt(addr)
		return uint32(b), err
	case 5: // LHU
		h, err := m.ReadHalfword(addr)
		return uint32(h), err
	}
	return 0, ErrInvalidInstruction
}

// store performs a store of the width selected by funct3.
func (m *Memory) store(funct3, addr, val uint32) error {
	switch funct3 {
	case 0: // SB
		return m.WriteByteAt(addr, byte(val))
	case 1: // SH
		return m.WriteHalfword(addr, uint16(val))
	case 2: // SW
		return m.WriteWord(addr, val)
	}
	return ErrInvalidInstruction
}

// PageCount returns the number of allocated pages.
func (m *Memory) PageCount() int {
	return m.pageCount
}

// Reset clears all allocated pages.
func (m *Memory) Reset() {
	m.pages = make(map[uint32][]byte)
	m.pageCount = 0
}
