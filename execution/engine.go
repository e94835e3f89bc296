// Package execution runs guest programs on one of two engines: the
// interpreter ("simulator"), which is authoritative and can record operand
// traces, and the transpiler, which compiles the text section ahead of time
// and can only record replay tapes. Both enforce the same cycle budget and
// RAM bound and agree on cycle counts.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/riscv"
)

// DefaultMaxCycles is the platform cycle ceiling applied when the caller
// supplies no budget.
const DefaultMaxCycles uint64 = 90_000_000_000

// pollInterval is the number of cycles between cancellation checks. Must
// be a power of two.
const pollInterval = 1 << 16

// Mode identifies an engine variant.
type Mode uint8

const (
	Simulator Mode = iota
	Transpiler
)

func (m Mode) String() string {
	switch m {
	case Simulator:
		return "simulator"
	case Transpiler:
		return "transpiler"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Config holds the platform limits shared by both engines.
type Config struct {
	MaxCycles uint64 `koanf:"max-cycles"`
	RAMBound  uint64 `koanf:"ram-bound"`
}

// DefaultConfig is the platform default.
var DefaultConfig = Config{
	MaxCycles: DefaultMaxCycles,
	RAMBound:  riscv.DefaultRAMBound,
}

// Options parameterise a single execution.
type Options struct {
	// CycleLimit is a hard budget; nil means only the platform maximum
	// applies.
	CycleLimit *uint64
	// RAMBound overrides the configured RAM bound when non-zero.
	RAMBound uint64
	Trace    riscv.TraceKind
	Observer riscv.Observer
}

// Result is the outcome of one execution.
type Result struct {
	Mode          Mode
	Registers     [riscv.RegCount]uint32
	PC            uint32
	Cycles        uint64
	ReachedEnd    bool
	Output        []uint32
	InputConsumed int
	Memory        *riscv.Memory
	Trace         *riscv.Trace
	Elapsed       time.Duration
}

// OutputRegisters returns x10..x17, the registers guests return results in.
func (r *Result) OutputRegisters() [8]uint32 {
	var out [8]uint32
	copy(out[:], r.Registers[10:18])
	return out
}

// Engine executes a program image against an input stream.
type Engine interface {
	Mode() Mode
	Execute(ctx context.Context, img *program.Image, inputs []uint32, opts Options) (*Result, error)
}

// New returns the engine for mode.
func New(mode Mode, cfg Config) (Engine, error) {
	switch mode {
	case Simulator:
		return &Interpreter{cfg: cfg}, nil
	case Transpiler:
		return &JIT{cfg: cfg}, nil
	default:
		return nil, errs.New(errs.Internal, "unknown execution mode %d", mode)
	}
}

// Interpreter executes one instruction at a time.
type Interpreter struct {
	cfg Config
}

func (e *Interpreter) Mode() Mode { return Simulator }

func (e *Interpreter) Execute(ctx context.Context, img *program.Image, inputs []uint32, opts Options) (*Result, error) {
	return run(ctx, e.cfg, Simulator, img, inputs, opts, (*riscv.CPU).Step)
}

// JIT executes a compiled text section. Operand-level traces are not
// available; asking for one yields a replay tape instead.
type JIT struct {
	cfg Config
}

func (e *JIT) Mode() Mode { return Transpiler }

func (e *JIT) Execute(ctx context.Context, img *program.Image, inputs []uint32, opts Options) (*Result, error) {
	if opts.Trace == riscv.TraceOperands {
		opts.Trace = riscv.TraceTape
	}
	prog := riscv.Compile(img.Text, 0)
	return run(ctx, e.cfg, Transpiler, img, inputs, opts, prog.Step)
}

func run(ctx context.Context, cfg Config, mode Mode, img *program.Image, inputs []uint32, opts Options, step func(*riscv.CPU) error) (*Result, error) {
	logger := log.Module("engine").With("mode", mode)
	timer := metrics.NewTimer(metrics.ExecutionTime)

	ram := cfg.RAMBound
	if opts.RAMBound != 0 {
		ram = opts.RAMBound
	}
	maxCycles := cfg.MaxCycles
	if maxCycles == 0 {
		maxCycles = DefaultMaxCycles
	}
	limit, budgeted := maxCycles, false
	if opts.CycleLimit != nil && *opts.CycleLimit <= maxCycles {
		limit, budgeted = *opts.CycleLimit, true
	}

	cpu := riscv.NewCPU(riscv.NewMemory(ram), inputs)
	if err := cpu.LoadProgram(img.Binary, 0, 0); err != nil {
		if errors.Is(err, riscv.ErrPageLimit) {
			return nil, errs.Wrap(errs.ProgramExceedsCapacity, err, "image of %d bytes exceeds ram bound %d", img.Size(), ram)
		}
		return nil, errs.WithPath(errs.ProgramLoadError, img.Paths.Bin, err)
	}
	cpu.Trace = riscv.NewTrace(opts.Trace)
	cpu.Observer = opts.Observer

	logger.Debug("Executing program", "bin", img.Paths.Bin, "inputs", len(inputs), "limit", limit, "trace", opts.Trace)
	for !cpu.Halted {
		if cpu.Cycles >= limit {
			metrics.ExecutionCycles.Add(int64(cpu.Cycles))
			if budgeted {
				return nil, errs.New(errs.CycleBudgetExceeded, "program did not finish within %d cycles", limit)
			}
			return nil, errs.New(errs.ProgramExceedsCapacity, "program did not finish within the platform maximum of %d cycles", limit)
		}
		if cpu.Cycles&(pollInterval-1) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errs.Wrap(errs.Interrupted, err, "execution stopped at cycle %d", cpu.Cycles)
			}
		}
		if err := step(cpu); err != nil {
			return nil, classify(err, cpu)
		}
	}
	metrics.ExecutionCycles.Add(int64(cpu.Cycles))
	res := &Result{
		Mode:          mode,
		Registers:     cpu.Regs,
		PC:            cpu.PC,
		Cycles:        cpu.Cycles,
		ReachedEnd:    cpu.Halted,
		Output:        cpu.Output,
		InputConsumed: cpu.InputConsumed(),
		Memory:        cpu.Mem,
		Trace:         cpu.Trace,
		Elapsed:       timer.Stop(),
	}
	logger.Debug("Execution finished", "cycles", res.Cycles, "pc", fmt.Sprintf("0x%08x", res.PC), "elapsed", res.Elapsed)
	return res, nil
}

// classify maps a guest fault onto the error taxonomy. Exhausting the RAM
// bound is a capacity failure; any other trap is reported as internal with
// the faulting location. Errors an observer already classified pass through.
func classify(err error, cpu *riscv.CPU) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, riscv.ErrPageLimit) {
		return errs.Wrap(errs.ProgramExceedsCapacity, err, "cycle %d", cpu.Cycles)
	}
	return errs.Wrap(errs.Internal, err, "guest fault at cycle %d pc 0x%08x", cpu.Cycles, cpu.PC)
}
