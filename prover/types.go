package prover

import "github.com/ethereum/go-ethereum/common"

// Layer is one committed unit of a proof: a base segment of the execution
// trace, or a recursion step over layers of the level below. The KZG
// commitment is opened at Point, a Fiat-Shamir challenge derived from the
// rest of the layer.
type Layer struct {
	Index      uint64
	StartState common.Hash
	EndState   common.Hash
	Cycles     uint64
	TraceRoot  common.Hash
	Commitment [48]byte
	Point      [32]byte
	Value      [32]byte
	Opening    [48]byte
	Seal       common.Hash
}

// Proof attests that the program with AppBinHash ran from the reset state
// to the final state in Cycles cycles. Layers belong to Level only.
type Proof struct {
	Level          Level
	AppBinHash     common.Hash
	SetupDigest    common.Hash
	Cycles         uint64
	FinalPC        uint32
	FinalRegisters [32]uint32
	Output         []uint32
	Layers         []Layer
}

// CircuitLayout describes one circuit of a proving level.
type CircuitLayout struct {
	Name    string
	Rows    uint64
	Columns uint64
	Digest  common.Hash
}

// VerificationKey pins the program and level a proof must match. The setup
// point is the level's setup digest hashed onto BLS12-381 G1.
type VerificationKey struct {
	Level       Level
	AppBinHash  common.Hash
	SetupDigest common.Hash
	SetupPoint  [48]byte
	Layouts     []CircuitLayout
}
