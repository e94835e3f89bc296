package profiler

import (
	"debug/elf"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/log"
)

type symbol struct {
	name  string
	start uint32
	end   uint32 // exclusive; equal to start when the size is unknown
}

// Symbols resolves guest addresses to function names.
type Symbols struct {
	syms []symbol
}

// LoadSymbols reads the function symbols of an ELF file. When the path was
// derived rather than given explicitly, a missing file yields an empty table
// and addresses are reported raw.
func LoadSymbols(path string, explicit bool) (*Symbols, error) {
	f, err := elf.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			log.Module("profiler").Debug("No ELF file, using raw addresses", "path", path)
			return &Symbols{}, nil
		}
		return nil, errs.WithPath(errs.IOError, path, err)
	}
	defer f.Close()
	elfSyms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errs.WithPath(errs.ProgramLoadError, path, err)
	}
	out := &Symbols{}
	for _, s := range elfSyms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Name == "" || s.Value > 0xFFFFFFFF {
			continue
		}
		start := uint32(s.Value)
		out.syms = append(out.syms, symbol{name: s.Name, start: start, end: start + uint32(s.Size)})
	}
	out.sort()
	return out, nil
}

// NewSymbols builds a table from name/address pairs. Each symbol extends to
// the next one.
func NewSymbols(entries map[string]uint32) *Symbols {
	s := &Symbols{}
	for name, addr := range entries {
		s.syms = append(s.syms, symbol{name: name, start: addr, end: addr})
	}
	s.sort()
	return s
}

func (s *Symbols) sort() {
	sort.Slice(s.syms, func(i, j int) bool {
		if s.syms[i].start != s.syms[j].start {
			return s.syms[i].start < s.syms[j].start
		}
		return s.syms[i].name < s.syms[j].name
	})
}

// Len returns the number of function symbols.
func (s *Symbols) Len() int { return len(s.syms) }

// Lookup returns the function containing pc, or the raw address.
func (s *Symbols) Lookup(pc uint32) string {
	i := sort.Search(len(s.syms), func(i int) bool { return s.syms[i].start > pc }) - 1
	if i >= 0 {
		sym := s.syms[i]
		if sym.end == sym.start || pc < sym.end {
			return sym.name
		}
	}
	return fmt.Sprintf("0x%08x", pc)
}
