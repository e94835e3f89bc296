//go:build !debugcircuits

package prover

const debugCircuitsBuild = false
