package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/eth2030/airbender/artifact"
	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/input"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
	"github.com/eth2030/airbender/pipeline"
	"github.com/eth2030/airbender/profiler"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/prover"
)

var (
	inputFlag = &cli.StringFlag{
		Name:     "input",
		Usage:    "hex input file",
		Required: true,
	}
	cyclesFlag = &cli.Uint64Flag{
		Name:  "cycles",
		Usage: "cycle budget; omitted means the platform maximum (or an estimate when proving)",
	}
	ramBoundFlag = &cli.Uint64Flag{
		Name:  "ram-bound",
		Usage: "RAM bound in bytes",
	}
	levelFlag = &cli.StringFlag{
		Name:  "level",
		Usage: "proving level: base, recursion-unrolled or recursion-unified",
		Value: prover.RecursionUnified.String(),
	}
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Execute a program on the interpreter",
	ArgsUsage: "<program>",
	Flags:     []cli.Flag{inputFlag, cyclesFlag, ramBoundFlag},
	Action:    withConfig(runProgram(execution.Simulator)),
}

var runTranspilerCommand = &cli.Command{
	Name:      "run-transpiler",
	Usage:     "Execute a program on the transpiler",
	ArgsUsage: "<program>",
	Flags: []cli.Flag{inputFlag, cyclesFlag, ramBoundFlag,
		&cli.StringFlag{Name: "text-path", Usage: "text section file (default <program>.text)"},
	},
	Action: withConfig(runProgram(execution.Transpiler)),
}

var flamegraphCommand = &cli.Command{
	Name:      "flamegraph",
	Usage:     "Profile a program and write an SVG flamegraph",
	ArgsUsage: "<program>",
	Flags: []cli.Flag{inputFlag, cyclesFlag, ramBoundFlag,
		&cli.StringFlag{Name: "output", Usage: "SVG output path", Value: "flamegraph.svg"},
		&cli.Uint64Flag{Name: "sampling-rate", Usage: "cycles between samples", Value: profiler.DefaultSamplingRate},
		&cli.BoolFlag{Name: "inverse", Usage: "draw an icicle graph (top-down)"},
		&cli.StringFlag{Name: "elf-path", Usage: "ELF file with symbols (default <program>.elf)"},
		&cli.StringFlag{Name: "folded", Usage: "also write folded stacks to this path"},
	},
	Action: withConfig(flamegraph),
}

var proveCommand = &cli.Command{
	Name:      "prove",
	Usage:     "Prove an execution",
	ArgsUsage: "<program>",
	Flags: []cli.Flag{inputFlag, cyclesFlag, ramBoundFlag, levelFlag,
		&cli.StringFlag{Name: "output", Usage: "proof output path", Required: true},
		&cli.StringFlag{Name: "backend", Usage: "cpu or gpu", Value: prover.GPU.String()},
		&cli.IntFlag{Name: "threads", Usage: "proving worker threads (0 = all cores)"},
	},
	Action: withConfig(prove),
}

var generateVKCommand = &cli.Command{
	Name:      "generate-vk",
	Usage:     "Generate the verification key of a program",
	ArgsUsage: "<program>",
	Flags: []cli.Flag{levelFlag,
		&cli.StringFlag{Name: "output", Usage: "verification key output path", Value: "vk.bin"},
		&cli.StringFlag{Name: "backend", Usage: "cpu or gpu", Value: prover.CPU.String()},
	},
	Action: withConfig(generateVK),
}

var verifyProofCommand = &cli.Command{
	Name:      "verify-proof",
	Usage:     "Verify a proof against a verification key",
	ArgsUsage: "<proof>",
	Flags: []cli.Flag{levelFlag,
		&cli.StringFlag{Name: "vk", Usage: "verification key path", Required: true},
	},
	Action: withConfig(verifyProof),
}

// flagOverrides maps explicitly set flags onto config keys.
var flagOverrides = map[string]string{
	"verbosity":    "log.verbosity",
	"log.json":     "log.json",
	"log.file":     "log.file",
	"metrics.file": "metrics.file",
	"ram-bound":    "engine.ram-bound",
	"threads":      "prover.threads",
}

// withConfig loads the configuration, installs logging and writes the
// metrics file once the command finishes.
func withConfig(fn func(c *cli.Context, cfg *Config) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		overrides := make(map[string]interface{})
		for name, key := range flagOverrides {
			if c.IsSet(name) {
				overrides[key] = c.Value(name)
			}
		}
		cfg, err := loadConfig(c.String("config"), overrides)
		if err != nil {
			return err
		}
		closer, err := log.Setup(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()

		err = fn(c, cfg)
		if cfg.Metrics.File != "" {
			if merr := metrics.WriteTextfile(cfg.Metrics.File, metrics.DefaultRegistry); merr != nil {
				log.Warn("Failed to write metrics", "file", cfg.Metrics.File, "err", merr)
			}
		}
		return err
	}
}

func programArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", usagef("%s: expected exactly one %s argument", c.Command.Name, strings.Trim(c.Command.ArgsUsage, "<>"))
	}
	return c.Args().First(), nil
}

func loadInputs(c *cli.Context, cfg *Config) ([]uint32, error) {
	return input.ReadFile(c.String("input"), cfg.Input.Require)
}

func cycleLimit(c *cli.Context) *uint64 {
	if !c.IsSet("cycles") {
		return nil
	}
	v := c.Uint64("cycles")
	return &v
}

func runProgram(mode execution.Mode) func(c *cli.Context, cfg *Config) error {
	return func(c *cli.Context, cfg *Config) error {
		arg, err := programArg(c)
		if err != nil {
			return err
		}
		textPath := ""
		if mode == execution.Transpiler {
			textPath = c.String("text-path")
		}
		img, err := program.Load(arg, textPath)
		if err != nil {
			return err
		}
		inputs, err := loadInputs(c, cfg)
		if err != nil {
			return err
		}
		eng, err := execution.New(mode, cfg.Engine)
		if err != nil {
			return err
		}
		res, err := eng.Execute(c.Context, img, inputs, execution.Options{CycleLimit: cycleLimit(c)})
		if err != nil {
			return err
		}
		log.Info("Execution finished", "mode", res.Mode, "cycles_executed", res.Cycles, "reached_end", res.ReachedEnd, "elapsed", res.Elapsed)
		report(c.App.Writer, res)
		return nil
	}
}

// report prints the outcome of a run.
func report(w io.Writer, res *execution.Result) {
	fmt.Fprintf(w, "mode: %s\n", res.Mode)
	fmt.Fprintf(w, "cycles_executed: %d\n", res.Cycles)
	fmt.Fprintf(w, "reached_end: %v\n", res.ReachedEnd)
	fmt.Fprintf(w, "pc: 0x%08x\n", res.PC)
	for i, r := range res.OutputRegisters() {
		fmt.Fprintf(w, "x%d: 0x%08x (%d)\n", 10+i, r, r)
	}
	if len(res.Output) > 0 {
		fmt.Fprintf(w, "output: %s\n", input.Encode(res.Output))
	}
}

func flamegraph(c *cli.Context, cfg *Config) error {
	arg, err := programArg(c)
	if err != nil {
		return err
	}
	img, err := program.Load(arg, "")
	if err != nil {
		return err
	}
	inputs, err := loadInputs(c, cfg)
	if err != nil {
		return err
	}
	fg, err := profiler.Profile(c.Context, img, inputs, cfg.Engine, profiler.Options{
		SamplingRate: c.Uint64("sampling-rate"),
		Inverse:      c.Bool("inverse"),
		ELFPath:      c.String("elf-path"),
		CycleLimit:   cycleLimit(c),
	})
	if err != nil {
		return err
	}
	if err := writeWith(c.String("output"), fg.WriteSVG); err != nil {
		return err
	}
	if path := c.String("folded"); path != "" {
		if err := writeWith(path, fg.WriteFolded); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "flamegraph written to %s (%d samples)\n", c.String("output"), fg.Total)
	return nil
}

func writeWith(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.WithPath(errs.IOError, path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return errs.WithPath(errs.IOError, path, err)
	}
	if err := f.Close(); err != nil {
		return errs.WithPath(errs.IOError, path, err)
	}
	return nil
}

func levelArg(c *cli.Context) (prover.Level, error) {
	level, err := prover.ParseLevel(c.String("level"))
	if err != nil {
		return 0, usagef("%v", err)
	}
	return level, nil
}

func backendArg(c *cli.Context) (prover.Backend, error) {
	backend, err := prover.ParseBackend(c.String("backend"))
	if err != nil {
		return 0, usagef("%v", err)
	}
	return backend, nil
}

func prove(c *cli.Context, cfg *Config) error {
	arg, err := programArg(c)
	if err != nil {
		return err
	}
	level, err := levelArg(c)
	if err != nil {
		return err
	}
	backend, err := backendArg(c)
	if err != nil {
		return err
	}
	img, err := program.Load(arg, "")
	if err != nil {
		return err
	}
	inputs, err := loadInputs(c, cfg)
	if err != nil {
		return err
	}
	pcfg := cfg.Pipeline()
	proof, err := pipeline.Prove(c.Context, pipeline.ProveRequest{
		Image:   img,
		Inputs:  inputs,
		Level:   level,
		Backend: backend,
		Budget:  execution.Budget{Cycles: cycleLimit(c), RAMBound: c.Uint64("ram-bound")},
	}, pcfg)
	if err != nil {
		return err
	}
	data, err := pcfg.Codec().EncodeProof(proof)
	if err != nil {
		return err
	}
	out := c.String("output")
	if err := artifact.WriteFile(out, data); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s proof written to %s (%d cycles, %d bytes)\n", level, out, proof.Cycles, len(data))
	return nil
}

func generateVK(c *cli.Context, cfg *Config) error {
	arg, err := programArg(c)
	if err != nil {
		return err
	}
	level, err := levelArg(c)
	if err != nil {
		return err
	}
	backend, err := backendArg(c)
	if err != nil {
		return err
	}
	img, err := program.Load(arg, "")
	if err != nil {
		return err
	}
	pcfg := cfg.Pipeline()
	vk, err := pipeline.GenerateVK(c.Context, img, level, backend, pcfg)
	if err != nil {
		return err
	}
	data, err := pcfg.Codec().EncodeVerificationKey(vk)
	if err != nil {
		return err
	}
	out := c.String("output")
	if err := artifact.WriteFile(out, data); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s verification key written to %s\n", level, out)
	fmt.Fprintf(c.App.Writer, "app_bin_hash: %s\n", vk.AppBinHash.Hex())
	for _, l := range vk.Layouts {
		fmt.Fprintf(c.App.Writer, "layout: %s %s\n", l, l.Digest.Hex())
	}
	return nil
}

func verifyProof(c *cli.Context, cfg *Config) error {
	proofPath, err := programArg(c)
	if err != nil {
		return err
	}
	level, err := levelArg(c)
	if err != nil {
		return err
	}
	ok, err := pipeline.VerifyFiles(proofPath, c.String("vk"), level, cfg.Pipeline())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.App.Writer, "proof rejected")
		return errReject
	}
	fmt.Fprintln(c.App.Writer, "proof accepted")
	return nil
}
