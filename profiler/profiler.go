// Package profiler samples guest execution on the interpreter and renders
// the samples as a flamegraph.
//
// Call structure is recovered with a shadow stack: jal/jalr that link
// through ra or t0 push the callee, and a jalr through ra or t0 that
// discards the link pops it. Every SamplingRate cycles the current stack is
// recorded.
package profiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/riscv"
)

// DefaultSamplingRate is the number of cycles between samples.
const DefaultSamplingRate = 100

// maxDepth bounds the shadow stack; deeper calls are attributed to the
// deepest tracked frame.
const maxDepth = 1024

// Options configure a profiling run.
type Options struct {
	SamplingRate uint64
	Inverse      bool
	// ELFPath names the symbol file. Empty uses the program's derived
	// .elf path, which may be absent.
	ELFPath    string
	CycleLimit *uint64
	Title      string
}

// sampler is the execution observer collecting stack samples.
type sampler struct {
	rate     uint64
	syms     *Symbols
	stack    []uint32
	overflow int
	counts   map[string]uint64
	samples  uint64
	frameBuf []string
}

func newSampler(rate uint64, syms *Symbols) *sampler {
	return &sampler{
		rate:   rate,
		syms:   syms,
		stack:  []uint32{0},
		counts: make(map[string]uint64),
	}
}

func isLink(r uint32) bool { return r == riscv.RegRA || r == riscv.RegT0 }

func (s *sampler) OnStep(cycle uint64, st *riscv.Step) error {
	if cycle%s.rate == 0 {
		s.sample(st.PC)
	}
	op := riscv.Opcode(st.Instr)
	if op != riscv.OpJAL && op != riscv.OpJALR {
		return nil
	}
	rd := riscv.Rd(st.Instr)
	switch {
	case isLink(rd):
		if len(s.stack) < maxDepth {
			s.stack = append(s.stack, st.NextPC)
		} else {
			s.overflow++
		}
	case rd == 0 && op == riscv.OpJALR && isLink(riscv.Rs1(st.Instr)):
		switch {
		case s.overflow > 0:
			s.overflow--
		case len(s.stack) > 1:
			s.stack = s.stack[:len(s.stack)-1]
		}
	}
	return nil
}

func (s *sampler) sample(pc uint32) {
	frames := s.frameBuf[:0]
	for _, entry := range s.stack {
		frames = append(frames, s.syms.Lookup(entry))
	}
	if leaf := s.syms.Lookup(pc); leaf != frames[len(frames)-1] {
		frames = append(frames, leaf)
	}
	s.frameBuf = frames
	s.counts[strings.Join(frames, ";")]++
	s.samples++
}

// Profile runs img on the interpreter with sampling enabled and returns the
// folded samples. Panics while profiling are returned as errors.
func Profile(ctx context.Context, img *program.Image, inputs []uint32, cfg execution.Config, opts Options) (fg *Flamegraph, err error) {
	defer func() {
		if r := recover(); r != nil {
			fg, err = nil, errs.New(errs.Internal, "profiler panic: %v", r)
		}
	}()
	rate := opts.SamplingRate
	if rate == 0 {
		rate = DefaultSamplingRate
	}
	elfPath, explicit := img.Paths.ELF, opts.ELFPath != ""
	if explicit {
		elfPath = opts.ELFPath
	}
	syms, err := LoadSymbols(elfPath, explicit)
	if err != nil {
		return nil, err
	}

	smp := newSampler(rate, syms)
	eng, err := execution.New(execution.Simulator, cfg)
	if err != nil {
		return nil, err
	}
	res, err := eng.Execute(ctx, img, inputs, execution.Options{CycleLimit: opts.CycleLimit, Observer: smp})
	if err != nil {
		return nil, err
	}
	metrics.ProfileSamples.Add(int64(smp.samples))

	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("%s (%d cycles, 1 sample / %d cycles)", img.Paths.Bin, res.Cycles, rate)
	}
	fg = newFlamegraph(smp.counts, title, opts.Inverse)
	fg.Cycles = res.Cycles
	log.Module("profiler").Info("Profile collected", "cycles", res.Cycles, "samples", smp.samples, "stacks", len(fg.Stacks), "symbols", syms.Len())
	return fg, nil
}
