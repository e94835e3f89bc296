package prover

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/riscv"
)

// Segmenter proves base segments while a program executes. It is installed
// as the engine's observer: steps are buffered one segment at a time and
// every full segment is handed to a proving worker, so memory is bounded by
// the segment size and worker count rather than by the length of the run.
// A Segmenter is used for one execution and must be closed.
type Segmenter struct {
	p       *Prover
	dev     *Device
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	gctx    context.Context
	app     common.Hash
	digests map[Level]common.Hash
	size    uint64
	check   bool
	tracing bool
	started time.Time

	regs   [riscv.RegCount]uint32
	cycle  uint64
	start  common.Hash
	buf    []riscv.Step
	layers []*Layer
}

// NewSegmenter returns a segmenter for an execution of img recording
// steps of the given kind. With debug circuits on the cpu backend every
// step's constraints are checked as it retires, which needs operands.
func (p *Prover) NewSegmenter(ctx context.Context, dev *Device, img *program.Image, kind riscv.TraceKind) (*Segmenter, error) {
	check := p.cfg.DebugCircuits && dev.Backend() == CPU
	if check && kind != riscv.TraceOperands {
		return nil, errs.New(errs.Internal, "debug circuits need an operand trace, got %s", kind)
	}
	return p.newSegmenter(ctx, dev, img, check), nil
}

func (p *Prover) newSegmenter(ctx context.Context, dev *Device, img *program.Image, check bool) *Segmenter {
	cctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(cctx)
	g.SetLimit(dev.Workers())
	return &Segmenter{
		p:       p,
		dev:     dev,
		ctx:     ctx,
		cancel:  cancel,
		g:       g,
		gctx:    gctx,
		app:     img.Hash,
		digests: SetupDigests(img),
		size:    p.cfg.segmentCycles(),
		check:   check,
		tracing: p.log.Enabled(log.LevelTrace),
		started: time.Now(),
	}
}

// OnStep buffers st, proving the previous segment once it is known not to
// be the last one.
func (s *Segmenter) OnStep(_ uint64, st *riscv.Step) error {
	if uint64(len(s.buf)) == s.size {
		if err := s.flush(stateDigest(st.PC, &s.regs, s.cycle)); err != nil {
			return err
		}
	}
	if len(s.buf) == 0 {
		s.start = stateDigest(st.PC, &s.regs, s.cycle)
	}
	if s.check {
		if name := checkStep(st, &s.regs); name != "" {
			return unsatisfied(name, s.cycle, st)
		}
	}
	s.buf = append(s.buf, *st)
	if st.Rd != 0 {
		s.regs[st.Rd] = st.RdVal
	}
	s.cycle++
	return nil
}

// flush hands the buffered segment, ending in state end, to a worker.
func (s *Segmenter) flush(end common.Hash) error {
	if s.gctx.Err() != nil {
		if err := s.g.Wait(); err != nil {
			return proveError(s.ctx, err)
		}
		return proveError(s.ctx, s.gctx.Err())
	}
	l := &Layer{
		Index:      uint64(len(s.layers)),
		StartState: s.start,
		EndState:   end,
		Cycles:     uint64(len(s.buf)),
	}
	s.layers = append(s.layers, l)
	steps := s.buf
	s.buf = make([]riscv.Step, 0, min(s.size, 1<<16))

	setup := s.digests[Base]
	s.g.Go(func() error {
		if err := s.gctx.Err(); err != nil {
			return err
		}
		leaves := stepLeaves(steps)
		l.TraceRoot = merkleRoot(leaves)
		if err := commitLayer(Base, setup, l, leaves); err != nil {
			return err
		}
		if s.tracing {
			s.p.log.Trace("Proved segment", "index", l.Index, "cycles", l.Cycles, "root", l.TraceRoot.Hex())
		}
		return nil
	})
	return nil
}

// Finish proves the last segment once execution has ended with res and
// builds the proof up to level.
func (s *Segmenter) Finish(res *execution.Result, level Level) (*Proof, error) {
	if !level.Valid() {
		return nil, errs.New(errs.Internal, "unknown level %d", level)
	}
	if s.cycle != res.Cycles {
		return nil, errs.New(errs.Internal, "segmenter saw %d of %d cycles", s.cycle, res.Cycles)
	}
	if s.regs != res.Registers {
		return nil, errs.New(errs.Internal, "trace replay disagrees with final registers")
	}
	if len(s.buf) == 0 {
		s.start = resetState()
	}
	if err := s.flush(finalDigest(stateDigest(res.PC, &s.regs, res.Cycles), res.Output)); err != nil {
		return nil, err
	}
	if err := s.g.Wait(); err != nil {
		return nil, proveError(s.ctx, err)
	}
	layers := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		layers[i] = *l
	}
	metrics.SegmentsProven.Add(int64(len(layers)))
	s.p.log.Debug("Proved base segments", "segments", len(layers), "segment-cycles", s.size, "workers", s.dev.Workers())
	return s.p.recurse(s.ctx, s.dev, res, level, s.app, s.digests, layers, s.started)
}

// Close stops outstanding workers. It is safe to call after Finish.
func (s *Segmenter) Close() {
	s.cancel()
	_ = s.g.Wait()
}
