//go:build !gpustub

package prover

const gpuStubBuild = false
