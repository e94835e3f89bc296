// Package prover turns execution traces into layered proofs and checks
// them against verification keys.
//
// A base proof splits the trace into segments. Each segment commits to the
// Merkle root of its steps and to the machine state at both boundaries with
// a KZG commitment opened at a Fiat-Shamir point. The recursion-unrolled
// level folds batches of base layers, and the recursion-unified level folds
// all unrolled layers into one. Every level is derived only from the level
// directly below it.
package prover

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
	"github.com/eth2030/airbender/program"
)

// Prover builds proofs with a fixed configuration.
type Prover struct {
	cfg Config
	log *log.Logger
}

// New returns a prover using cfg.
func New(cfg Config) *Prover {
	return &Prover{cfg: cfg, log: log.Module("prover")}
}

// Prove proves the execution res of img up to level on dev. res must carry
// a full trace of the run; with debug circuits on the cpu backend it must
// carry operands, and every cycle's constraints are checked first. Runs
// that are proven while they execute use NewSegmenter instead.
func (p *Prover) Prove(ctx context.Context, dev *Device, img *program.Image, res *execution.Result, level Level) (*Proof, error) {
	if !level.Valid() {
		return nil, errs.New(errs.Internal, "unknown level %d", level)
	}
	if res.Trace.Len() != int(res.Cycles) {
		return nil, errs.New(errs.Internal, "trace holds %d of %d cycles", res.Trace.Len(), res.Cycles)
	}
	if p.cfg.DebugCircuits && dev.Backend() == CPU {
		if err := CheckConstraints(res.Trace); err != nil {
			return nil, err
		}
		p.log.Debug("Debug constraints satisfied", "cycles", res.Cycles)
	}
	seg := p.newSegmenter(ctx, dev, img, false)
	defer seg.Close()
	for i := range res.Trace.Steps {
		if err := seg.OnStep(uint64(i), &res.Trace.Steps[i]); err != nil {
			return nil, err
		}
	}
	return seg.Finish(res, level)
}

// recurse folds the base layers up to level and assembles the proof.
func (p *Prover) recurse(ctx context.Context, dev *Device, res *execution.Result, level Level, app common.Hash, digests map[Level]common.Hash, layers []Layer, start time.Time) (*Proof, error) {
	var err error
	for _, next := range []Level{RecursionUnrolled, RecursionUnified} {
		if next > level {
			break
		}
		batch := p.cfg.recursionBatch()
		if next == RecursionUnified {
			batch = len(layers)
		}
		layers, err = p.fold(ctx, dev, next, digests[next], layers, batch)
		if err != nil {
			return nil, err
		}
		metrics.RecursionLayers.Add(int64(len(layers)))
	}

	proof := &Proof{
		Level:          level,
		AppBinHash:     app,
		SetupDigest:    digests[level],
		Cycles:         res.Cycles,
		FinalPC:        res.PC,
		FinalRegisters: res.Registers,
		Output:         res.Output,
		Layers:         layers,
	}
	elapsed := time.Since(start)
	metrics.ProveTime.Observe(float64(elapsed.Milliseconds()))
	p.log.Info("Proof generated", "level", level, "backend", dev.Backend(), "stub", dev.Stub(), "cycles", res.Cycles, "layers", len(layers), "elapsed", elapsed)
	return proof, nil
}

// fold builds the layers of level, each aggregating up to batch consecutive
// layers of the level below.
func (p *Prover) fold(ctx context.Context, dev *Device, level Level, setup common.Hash, below []Layer, batch int) ([]Layer, error) {
	out := make([]Layer, (len(below)+batch-1)/batch)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dev.Workers())
	for i := range out {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			children := below[i*batch : min((i+1)*batch, len(below))]
			seals := make([]common.Hash, len(children))
			l := &out[i]
			for j := range children {
				seals[j] = children[j].Seal
				l.Cycles += children[j].Cycles
			}
			l.Index = uint64(i)
			l.StartState = children[0].StartState
			l.EndState = children[len(children)-1].EndState
			l.TraceRoot = merkleRoot(seals)
			return commitLayer(level, setup, l, seals)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, proveError(ctx, err)
	}
	p.log.Debug("Folded layers", "level", level, "in", len(below), "out", len(out))
	return out, nil
}

func proveError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errs.Wrap(errs.Interrupted, ctx.Err(), "proving stopped")
	}
	return errs.Wrap(errs.Internal, err, "proving failed")
}

// String summarises a proof for logs.
func (pf *Proof) String() string {
	return fmt.Sprintf("proof{level=%s cycles=%d layers=%d app=%s}", pf.Level, pf.Cycles, len(pf.Layers), pf.AppBinHash.TerminalString())
}
