// Command airbender runs, profiles, proves and verifies RISC-V guest
// programs.
//
// Usage:
//
//	airbender [global flags] <command> [flags] <program>
//
// Commands:
//
//	run             execute on the interpreter
//	run-transpiler  execute on the transpiler
//	flamegraph      profile on the interpreter and write an SVG flamegraph
//	prove           prove an execution at a level
//	generate-vk     derive the verification key of a program at a level
//	verify-proof    verify a proof against a verification key
//
// Exit status is 0 on success or accept, 1 when a proof is rejected, 2 on
// usage errors and a distinct status per error class otherwise (see
// package errs).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/eth2030/airbender/errs"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

// errReject reports a proof that verified as invalid.
var errReject = errors.New("proof rejected")

// usageError is a bad command line.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runContext(ctx, args, os.Stdout, os.Stderr)
}

func runContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, append([]string{app.Name}, reorderArgs(app, args)...))
	if err != nil && !errors.Is(err, errReject) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps a command result onto the process exit status. Errors the
// pipeline did not classify come from flag parsing or configuration.
func exitCode(err error) int {
	if err == nil {
		return errs.ExitOK
	}
	if errors.Is(err, errReject) {
		return errs.ExitReject
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return errs.ExitUsage
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Code.ExitCode()
	}
	if errors.Is(err, context.Canceled) {
		return errs.Interrupted.ExitCode()
	}
	return errs.ExitUsage
}

// reorderArgs moves positional arguments behind the flags so that
// "prove app --input in.hex" parses like "prove --input in.hex app". The
// first positional is the command name and stays in place.
func reorderArgs(app *cli.App, args []string) []string {
	bools := map[string]bool{"help": true, "h": true, "version": true, "v": true}
	flags := append([]cli.Flag{}, app.Flags...)
	for _, cmd := range app.Commands {
		flags = append(flags, cmd.Flags...)
	}
	for _, f := range flags {
		if _, ok := f.(*cli.BoolFlag); ok {
			for _, n := range f.Names() {
				bools[n] = true
			}
		}
	}
	var (
		out, pos []string
		command  bool
	)
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			pos = append(pos, args[i:]...)
			i = len(args)
		case len(a) > 1 && strings.HasPrefix(a, "-"):
			out = append(out, a)
			name := strings.TrimLeft(a, "-")
			if !strings.Contains(name, "=") && !bools[name] && i+1 < len(args) {
				i++
				out = append(out, args[i])
			}
		case !command:
			command = true
			out = append(out, a)
		default:
			pos = append(pos, a)
		}
	}
	return append(out, pos...)
}

// Global flags.
var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "JSON config file",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level 0-5 (0=silent, 5=trace)",
		Value: 3,
	}
	logJSONFlag = &cli.BoolFlag{
		Name:  "log.json",
		Usage: "log as JSON",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "write logs to a rotating file instead of stderr",
	}
	metricsFileFlag = &cli.StringFlag{
		Name:  "metrics.file",
		Usage: "write metrics in Prometheus text format to this file on exit",
	}
)

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:                 "airbender",
		Usage:                "run, profile, prove and verify RISC-V programs",
		Version:              fmt.Sprintf("%s (commit %s)", version, commit),
		Writer:               stdout,
		ErrWriter:            stderr,
		EnableBashCompletion: false,
		HideHelpCommand:      true,
		Flags:                []cli.Flag{configFlag, verbosityFlag, logJSONFlag, logFileFlag, metricsFileFlag},
		Commands: []*cli.Command{
			runCommand,
			runTranspilerCommand,
			flamegraphCommand,
			proveCommand,
			generateVKCommand,
			verifyProofCommand,
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}
