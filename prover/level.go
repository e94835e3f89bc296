package prover

import (
	"fmt"
	"strings"
)

// Level is the depth of a proof. Each level is built only from the output
// of the level below it.
type Level uint8

const (
	Base Level = iota
	RecursionUnrolled
	RecursionUnified
)

// Levels lists every level in proving order.
var Levels = []Level{Base, RecursionUnrolled, RecursionUnified}

func (l Level) String() string {
	switch l {
	case Base:
		return "base"
	case RecursionUnrolled:
		return "recursion-unrolled"
	case RecursionUnified:
		return "recursion-unified"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool { return l <= RecursionUnified }

// ParseLevel parses a level name as printed by String.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown proving level %q (want base, recursion-unrolled or recursion-unified)", s)
}

// Backend selects where proving work runs.
type Backend uint8

const (
	CPU Backend = iota
	GPU
)

func (b Backend) String() string {
	switch b {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	}
	return fmt.Sprintf("backend(%d)", uint8(b))
}

// ParseBackend parses "cpu" or "gpu".
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	}
	return 0, fmt.Errorf("unknown backend %q (want cpu or gpu)", s)
}
