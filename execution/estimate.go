package execution

import (
	"context"

	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/riscv"
)

// Estimate pre-runs img on the transpiler without a user budget and returns
// the exact number of cycles it takes. Running the interpreter with this
// value as its limit never fails with CycleBudgetExceeded, since both
// engines retire the same instruction sequence. A program that exceeds the
// platform maximum fails with ProgramExceedsCapacity; no retry is made.
func Estimate(ctx context.Context, img *program.Image, inputs []uint32, cfg Config) (uint64, error) {
	metrics.EstimateRuns.Inc()
	res, err := (&JIT{cfg: cfg}).Execute(ctx, img, inputs, Options{Trace: riscv.TraceNone})
	if err != nil {
		return 0, err
	}
	log.Module("engine").Info("Estimated cycle budget", "cycles", res.Cycles, "elapsed", res.Elapsed)
	return res.Cycles, nil
}

// Budget is the cycle allocation of a proving run. A nil Cycles is resolved
// by Estimate; once resolved it is a hard limit.
type Budget struct {
	Cycles   *uint64
	RAMBound uint64
}

// Resolve returns the budgeted cycle count, pre-running the program when
// none was supplied.
func (b Budget) Resolve(ctx context.Context, img *program.Image, inputs []uint32, cfg Config) (uint64, error) {
	if b.Cycles != nil {
		return *b.Cycles, nil
	}
	if b.RAMBound != 0 {
		cfg.RAMBound = b.RAMBound
	}
	return Estimate(ctx, img, inputs, cfg)
}
