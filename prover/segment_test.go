package prover

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/riscv"
)

// tamper rewrites the first step matching match before passing every step
// on to next.
type tamper struct {
	next  riscv.Observer
	match func(s *riscv.Step) bool
	fn    func(s *riscv.Step)
	done  bool
	seen  uint64
}

func (o *tamper) OnStep(cycle uint64, s *riscv.Step) error {
	o.seen++
	if !o.done && o.match(s) {
		o.done = true
		cp := *s
		o.fn(&cp)
		return o.next.OnStep(cycle, &cp)
	}
	return o.next.OnStep(cycle, s)
}

func TestSegmenter_MatchesTraceProof(t *testing.T) {
	img := countdown()
	cfg := testConfig()
	for _, mode := range []execution.Mode{execution.Simulator, execution.Transpiler} {
		dev, err := Acquire(context.Background(), CPU, cfg)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		seg, err := New(cfg).NewSegmenter(context.Background(), dev, img, riscv.TraceNone)
		if err != nil {
			t.Fatalf("NewSegmenter: %v", err)
		}
		eng, _ := execution.New(mode, execution.DefaultConfig)
		res, err := eng.Execute(context.Background(), img, []uint32{4}, execution.Options{Observer: seg})
		if err != nil {
			t.Fatalf("%v: Execute: %v", mode, err)
		}
		if res.Trace.Len() != 0 {
			t.Fatalf("%v: streamed run kept %d steps", mode, res.Trace.Len())
		}
		streamed, err := seg.Finish(res, RecursionUnrolled)
		seg.Close()
		dev.Release()
		if err != nil {
			t.Fatalf("%v: Finish: %v", mode, err)
		}

		full := prove(t, cfg, CPU, img, execute(t, img, execution.Simulator, riscv.TraceTape, 4), RecursionUnrolled)
		if diff := cmp.Diff(full, streamed); diff != "" {
			t.Fatalf("%v: streamed proof differs (-trace +streamed):\n%s", mode, diff)
		}
		ok, err := Verify(streamed, setup(t, img, RecursionUnrolled))
		if err != nil || !ok {
			t.Fatalf("%v: streamed proof rejected: ok=%v err=%v", mode, ok, err)
		}
	}
}

func TestSegmenter_ConstraintStopsRun(t *testing.T) {
	img := countdown()
	cfg := testConfig()
	cfg.DebugCircuits = true
	dev, _ := Acquire(context.Background(), CPU, cfg)
	defer dev.Release()
	seg, err := New(cfg).NewSegmenter(context.Background(), dev, img, riscv.TraceOperands)
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}
	defer seg.Close()

	obs := &tamper{next: seg, match: isReg(1), fn: func(s *riscv.Step) { s.RdVal ^= 0x10 }}
	eng, _ := execution.New(execution.Simulator, execution.DefaultConfig)
	_, err = eng.Execute(context.Background(), img, []uint32{5}, execution.Options{Observer: obs})
	if !errors.Is(err, errs.ErrUnsatisfiedConstraint) {
		t.Fatalf("expected UnsatisfiedConstraint, got %v", err)
	}
	full := execute(t, img, execution.Simulator, riscv.TraceNone, 5)
	if obs.seen >= full.Cycles {
		t.Fatalf("execution ran to the end (%d cycles) after a violation", obs.seen)
	}
}

func TestNewSegmenter_DebugNeedsOperands(t *testing.T) {
	cfg := testConfig()
	cfg.DebugCircuits = true
	dev, _ := Acquire(context.Background(), CPU, cfg)
	defer dev.Release()
	if _, err := New(cfg).NewSegmenter(context.Background(), dev, countdown(), riscv.TraceTape); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("expected Internal, got %v", err)
	}
	gpu, _ := Acquire(context.Background(), GPU, cfg)
	defer gpu.Release()
	if _, err := New(cfg).NewSegmenter(context.Background(), gpu, countdown(), riscv.TraceTape); err != nil {
		t.Fatalf("gpu backend skips debug checks: %v", err)
	}
}

func TestSegmenter_FinishRejectsShortRun(t *testing.T) {
	img := countdown()
	cfg := testConfig()
	dev, _ := Acquire(context.Background(), CPU, cfg)
	defer dev.Release()
	seg, _ := New(cfg).NewSegmenter(context.Background(), dev, img, riscv.TraceNone)
	defer seg.Close()
	res := execute(t, img, execution.Simulator, riscv.TraceNone, 2)
	if _, err := seg.Finish(res, Base); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("expected Internal for an unobserved run, got %v", err)
	}
}
