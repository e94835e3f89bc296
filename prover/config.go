package prover

import (
	"os"
	"runtime"
)

// Config tunes proof generation. None of these settings change the
// verification key.
type Config struct {
	// SegmentCycles is the number of cycles covered by one base layer.
	SegmentCycles uint64 `koanf:"segment-cycles"`
	// RecursionBatch is the number of layers folded by one unrolled
	// recursion layer.
	RecursionBatch int `koanf:"recursion-batch"`
	// Threads bounds CPU proving workers; 0 uses GOMAXPROCS.
	Threads int `koanf:"threads"`
	// GPUStub lets the gpu backend run on the host when no device exists.
	GPUStub bool `koanf:"gpu-stub"`
	// DebugCircuits checks per-cycle constraints on the cpu backend and
	// selects the debug artifact format.
	DebugCircuits bool `koanf:"debug-circuits"`
}

// DefaultConfig is the default proving configuration. The stub and debug
// defaults come from the gpustub and debugcircuits build tags; the stub can
// also be enabled with AIRBENDER_GPU_STUB=1.
var DefaultConfig = Config{
	SegmentCycles:  1 << 20,
	RecursionBatch: 8,
	GPUStub:        gpuStubBuild || os.Getenv("AIRBENDER_GPU_STUB") == "1",
	DebugCircuits:  debugCircuitsBuild,
}

func (c Config) workers() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) segmentCycles() uint64 {
	if c.SegmentCycles == 0 {
		return DefaultConfig.SegmentCycles
	}
	return c.SegmentCycles
}

func (c Config) recursionBatch() int {
	if c.RecursionBatch < 2 {
		return DefaultConfig.RecursionBatch
	}
	return c.RecursionBatch
}
