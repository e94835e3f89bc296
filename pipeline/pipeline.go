// Package pipeline orchestrates the proving workflow: it resolves the cycle
// budget, picks the execution engine for a backend, sequences proof levels
// and connects the prover to the artifact codec.
package pipeline

import (
	"context"
	"errors"

	"github.com/eth2030/airbender/artifact"
	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/prover"
	"github.com/eth2030/airbender/riscv"
)

// Config groups the engine and prover settings of one invocation.
type Config struct {
	Engine execution.Config `koanf:"engine"`
	Prover prover.Config    `koanf:"prover"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{Engine: execution.DefaultConfig, Prover: prover.DefaultConfig}
}

// Codec returns the artifact codec matching the circuit build.
func (c Config) Codec() artifact.Codec {
	return artifact.Codec{Debug: c.Prover.DebugCircuits}
}

// ProveRequest describes one proving run.
type ProveRequest struct {
	Image   *program.Image
	Inputs  []uint32
	Level   prover.Level
	Backend prover.Backend
	Budget  execution.Budget
}

// plan selects how a backend executes the program. Debug circuits need
// per-cycle operands, which only the interpreter provides.
func plan(backend prover.Backend, debug bool) (execution.Mode, riscv.TraceKind, error) {
	switch backend {
	case prover.CPU:
		if debug {
			return execution.Simulator, riscv.TraceOperands, nil
		}
		return execution.Simulator, riscv.TraceTape, nil
	case prover.GPU:
		return execution.Transpiler, riscv.TraceTape, nil
	default:
		return 0, 0, errs.New(errs.Internal, "unknown backend %d", backend)
	}
}

// Prove executes the program within its cycle budget and proves the run
// up to the requested level. Segments are proven while the program runs,
// so the full trace is never held. The backend is held from before
// execution until the proof is complete.
func Prove(ctx context.Context, req ProveRequest, cfg Config) (*artifact.Proof, error) {
	logger := log.Module("pipeline")
	mode, trace, err := plan(req.Backend, cfg.Prover.DebugCircuits)
	if err != nil {
		return nil, err
	}
	dev, err := prover.Acquire(ctx, req.Backend, cfg.Prover)
	if err != nil {
		return nil, err
	}
	defer dev.Release()

	cycles, err := req.Budget.Resolve(ctx, req.Image, req.Inputs, cfg.Engine)
	if err != nil {
		return nil, err
	}
	logger.Info("Proving", "program", req.Image.Paths.Bin, "level", req.Level, "backend", req.Backend,
		"mode", mode, "cycles", cycles, "estimated", req.Budget.Cycles == nil)

	eng, err := execution.New(mode, cfg.Engine)
	if err != nil {
		return nil, err
	}
	seg, err := prover.New(cfg.Prover).NewSegmenter(ctx, dev, req.Image, trace)
	if err != nil {
		return nil, err
	}
	defer seg.Close()
	res, err := eng.Execute(ctx, req.Image, req.Inputs, execution.Options{
		CycleLimit: &cycles,
		RAMBound:   req.Budget.RAMBound,
		Observer:   seg,
	})
	if err != nil {
		return nil, err
	}
	return seg.Finish(res, req.Level)
}

// GenerateVK derives the verification key of img at level. The key
// depends only on the program and level. The backend is checked so that a
// missing device is reported the same way as for proving, but the device
// context is not taken: key generation may run alongside a proof.
func GenerateVK(ctx context.Context, img *program.Image, level prover.Level, backend prover.Backend, cfg Config) (*artifact.VerificationKey, error) {
	if _, err := prover.CheckBackend(backend, cfg.Prover); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Interrupted, err, "generate-vk")
	}
	vk, err := prover.Setup(img, level)
	if err != nil {
		return nil, err
	}
	log.Module("pipeline").Info("Generated verification key", "program", img.Paths.Bin, "level", level, "backend", backend, "app", vk.AppBinHash)
	return vk, nil
}

// Verify decodes a proof and a verification key and checks the proof at
// level. It returns true on accept and false on reject; errors are
// CorruptArtifact, LevelMismatch or Internal.
func Verify(proofData, vkData []byte, level prover.Level, cfg Config) (bool, error) {
	codec := cfg.Codec()
	proof, err := codec.DecodeProof(proofData)
	if err != nil {
		return false, err
	}
	vk, err := codec.DecodeVerificationKey(vkData)
	if err != nil {
		return false, err
	}
	return verify(proof, vk, level)
}

// VerifyFiles is Verify over artifact files. Errors name the offending
// file.
func VerifyFiles(proofPath, vkPath string, level prover.Level, cfg Config) (bool, error) {
	codec := cfg.Codec()
	data, err := artifact.ReadFile(proofPath)
	if err != nil {
		return false, err
	}
	proof, err := codec.DecodeProof(data)
	if err != nil {
		return false, withPath(err, proofPath)
	}
	if data, err = artifact.ReadFile(vkPath); err != nil {
		return false, err
	}
	vk, err := codec.DecodeVerificationKey(data)
	if err != nil {
		return false, withPath(err, vkPath)
	}
	ok, err := verify(proof, vk, level)
	if errs.CodeOf(err) == errs.CorruptArtifact {
		return false, withPath(err, vkPath)
	}
	return ok, err
}

func verify(proof *artifact.Proof, vk *artifact.VerificationKey, level prover.Level) (bool, error) {
	if proof.Level != level {
		return false, errs.New(errs.LevelMismatch, "proof is %s, verifying at %s", proof.Level, level)
	}
	if vk.Level != level {
		return false, errs.New(errs.LevelMismatch, "verification key is %s, verifying at %s", vk.Level, level)
	}
	if err := prover.CheckKey(vk); err != nil {
		return false, err
	}
	return prover.Verify(proof, vk)
}

func withPath(err error, path string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}
