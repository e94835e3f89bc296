package prover

import (
	"context"
	"errors"
	"testing"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/riscv"
)

// countdown reads n, sums n..1 with a multiply per step, stores the result
// and halts. It exercises loads, stores, branches and the M extension.
func countdown() *program.Image {
	return program.FromWords("countdown", []uint32{
		riscv.ReadInput(5),     // 0: n
		riscv.Addi(10, 0, 0),   // 4: acc
		riscv.Beq(5, 0, 20),    // 8: loop
		riscv.Mul(6, 5, 5),     // 12
		riscv.Add(10, 10, 6),   // 16
		riscv.Addi(5, 5, -1),   // 20
		riscv.Jal(0, -16),      // 24
		riscv.Sw(0, 10, 0x100), // 28
		riscv.Lw(11, 0, 0x100), // 32
		riscv.WriteOutput(11),  // 36
		riscv.Ecall(),          // 40
	})
}

func testConfig() Config {
	return Config{SegmentCycles: 4, RecursionBatch: 2, Threads: 2, GPUStub: true}
}

func execute(t *testing.T, img *program.Image, mode execution.Mode, kind riscv.TraceKind, inputs ...uint32) *execution.Result {
	t.Helper()
	eng, err := execution.New(mode, execution.DefaultConfig)
	if err != nil {
		t.Fatalf("execution.New: %v", err)
	}
	res, err := eng.Execute(context.Background(), img, inputs, execution.Options{Trace: kind})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return res
}

func prove(t *testing.T, cfg Config, backend Backend, img *program.Image, res *execution.Result, level Level) *Proof {
	t.Helper()
	dev, err := Acquire(context.Background(), backend, cfg)
	if err != nil {
		t.Fatalf("Acquire(%v): %v", backend, err)
	}
	defer dev.Release()
	proof, err := New(cfg).Prove(context.Background(), dev, img, res, level)
	if err != nil {
		t.Fatalf("Prove(%v, %v): %v", level, backend, err)
	}
	return proof
}

func setup(t *testing.T, img *program.Image, level Level) *VerificationKey {
	t.Helper()
	vk, err := Setup(img, level)
	if err != nil {
		t.Fatalf("Setup(%v): %v", level, err)
	}
	return vk
}

func TestProveVerify_AllLevelsAndBackends(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceOperands, 5)
	if res.Output[0] != 55 {
		t.Fatalf("guest output = %v, want [55]", res.Output)
	}
	cfg := testConfig()
	cfg.DebugCircuits = true
	for _, level := range Levels {
		vk := setup(t, img, level)
		for _, backend := range []Backend{CPU, GPU} {
			proof := prove(t, cfg, backend, img, res, level)
			ok, err := Verify(proof, vk)
			if err != nil {
				t.Fatalf("Verify(%v, %v): %v", level, backend, err)
			}
			if !ok {
				t.Fatalf("Verify(%v, %v) rejected a valid proof", level, backend)
			}
		}
	}
}

func TestProve_LayerShape(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceOperands, 3)
	cfg := testConfig()
	segments := int((res.Cycles + 3) / 4)

	base := prove(t, cfg, CPU, img, res, Base)
	if len(base.Layers) != segments {
		t.Fatalf("base layers: got %d, want %d", len(base.Layers), segments)
	}
	unrolled := prove(t, cfg, CPU, img, res, RecursionUnrolled)
	if want := (segments + 1) / 2; len(unrolled.Layers) != want {
		t.Fatalf("unrolled layers: got %d, want %d", len(unrolled.Layers), want)
	}
	unified := prove(t, cfg, CPU, img, res, RecursionUnified)
	if len(unified.Layers) != 1 {
		t.Fatalf("unified layers: got %d, want 1", len(unified.Layers))
	}
	if unified.Layers[0].Cycles != res.Cycles {
		t.Fatalf("unified cycles: got %d, want %d", unified.Layers[0].Cycles, res.Cycles)
	}
	if unified.Layers[0].StartState != base.Layers[0].StartState {
		t.Fatal("unified proof does not start where the base proof starts")
	}
	if unified.Layers[0].EndState != base.Layers[len(base.Layers)-1].EndState {
		t.Fatal("unified proof does not end where the base proof ends")
	}
}

func TestProve_TapeAndOperandTracesAgree(t *testing.T) {
	img := countdown()
	operands := execute(t, img, execution.Simulator, riscv.TraceOperands, 4)
	tape := execute(t, img, execution.Transpiler, riscv.TraceTape, 4)
	cfg := testConfig()
	a := prove(t, cfg, CPU, img, operands, RecursionUnrolled)
	b := prove(t, cfg, GPU, img, tape, RecursionUnrolled)
	if len(a.Layers) != len(b.Layers) {
		t.Fatalf("layer count differs: %d vs %d", len(a.Layers), len(b.Layers))
	}
	for i := range a.Layers {
		if a.Layers[i] != b.Layers[i] {
			t.Fatalf("layer %d differs between interpreter trace and transpiler tape", i)
		}
	}
}

func TestProve_RequiresFullTrace(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceNone, 2)
	dev, _ := Acquire(context.Background(), CPU, testConfig())
	defer dev.Release()
	if _, err := New(testConfig()).Prove(context.Background(), dev, img, res, Base); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("expected Internal for a missing trace, got %v", err)
	}
}

func TestProve_Cancelled(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceTape, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev, _ := Acquire(context.Background(), CPU, testConfig())
	defer dev.Release()
	if _, err := New(testConfig()).Prove(ctx, dev, img, res, Base); !errors.Is(err, errs.ErrInterrupted) {
		t.Fatalf("expected Interrupted, got %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceTape, 3)
	cfg := testConfig()
	vk := setup(t, img, RecursionUnrolled)

	tamper := map[string]func(p *Proof){
		"output":      func(p *Proof) { p.Output = []uint32{1} },
		"cycles":      func(p *Proof) { p.Cycles++ },
		"final pc":    func(p *Proof) { p.FinalPC += 4 },
		"register":    func(p *Proof) { p.FinalRegisters[10]++ },
		"layer value": func(p *Proof) { p.Layers[0].Value[31] ^= 1 },
		"layer root":  func(p *Proof) { p.Layers[0].TraceRoot[0] ^= 1 },
		"drop layer":  func(p *Proof) { p.Layers = p.Layers[1:] },
		"no layers":   func(p *Proof) { p.Layers = nil },
		"app hash":    func(p *Proof) { p.AppBinHash[0] ^= 1 },
	}
	for name, fn := range tamper {
		proof := prove(t, cfg, CPU, img, res, RecursionUnrolled)
		fn(proof)
		ok, err := Verify(proof, vk)
		if err != nil {
			t.Fatalf("%s: Verify error: %v", name, err)
		}
		if ok {
			t.Fatalf("%s: tampered proof accepted", name)
		}
	}
}

func TestVerify_OtherProgram(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceTape, 1)
	proof := prove(t, testConfig(), CPU, img, res, Base)
	other := program.FromWords("other", []uint32{riscv.Nop(), riscv.Ecall()})
	ok, err := Verify(proof, setup(t, other, Base))
	if err != nil || ok {
		t.Fatalf("proof accepted under another program's key: ok=%v err=%v", ok, err)
	}
}

func TestVerify_LevelMismatch(t *testing.T) {
	img := countdown()
	res := execute(t, img, execution.Simulator, riscv.TraceTape, 1)
	proof := prove(t, testConfig(), CPU, img, res, Base)
	_, err := Verify(proof, setup(t, img, RecursionUnified))
	if !errors.Is(err, errs.ErrLevelMismatch) {
		t.Fatalf("expected LevelMismatch, got %v", err)
	}
}
