package metrics

// Pre-defined metrics. All live in DefaultRegistry.

var (
	// ExecutionCycles counts guest cycles retired by either engine.
	ExecutionCycles = DefaultRegistry.Counter("engine.cycles")
	// ExecutionTime records engine wall time in milliseconds.
	ExecutionTime = DefaultRegistry.Histogram("engine.execute_ms")
	// EstimateRuns counts cycle estimation pre-runs.
	EstimateRuns = DefaultRegistry.Counter("engine.estimates")

	// SegmentsProven counts base-level segment proofs.
	SegmentsProven = DefaultRegistry.Counter("prover.segments")
	// RecursionLayers counts recursion-level proof layers.
	RecursionLayers = DefaultRegistry.Counter("prover.recursion_layers")
	// ProveTime records end-to-end proving time in milliseconds.
	ProveTime = DefaultRegistry.Histogram("prover.prove_ms")
	// DeviceBusy is 1 while the GPU device context is held.
	DeviceBusy = DefaultRegistry.Gauge("prover.device_busy")

	// Verifications counts verify-proof invocations.
	Verifications = DefaultRegistry.Counter("verifier.verifications")
	// Rejections counts proofs that failed verification.
	Rejections = DefaultRegistry.Counter("verifier.rejections")

	// ProfileSamples counts flamegraph samples taken.
	ProfileSamples = DefaultRegistry.Counter("profiler.samples")
)
