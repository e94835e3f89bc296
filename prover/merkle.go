package prover

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/eth2030/airbender/riscv"
)

func keccak(parts ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// merkleRoot computes a binary Keccak-256 tree over leaves. An odd node at
// the end of a level is paired with itself. The root of zero leaves is the
// hash of nothing.
func merkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return keccak()
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]common.Hash, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := left
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = keccak(left[:], right[:])
		}
		level = next
	}
	return level[0]
}

// stepLeaves hashes the committed encoding of each step.
func stepLeaves(steps []riscv.Step) []common.Hash {
	leaves := make([]common.Hash, len(steps))
	buf := make([]byte, 0, riscv.StepEncodingSize)
	for i := range steps {
		buf = steps[i].AppendCommitted(buf[:0])
		leaves[i] = keccak(buf)
	}
	return leaves
}

var stateTag = []byte("airbender/state")

// stateDigest binds a machine state at a cycle boundary.
func stateDigest(pc uint32, regs *[riscv.RegCount]uint32, cycle uint64) common.Hash {
	buf := make([]byte, 0, 4+4*riscv.RegCount+8)
	buf = binary.LittleEndian.AppendUint32(buf, pc)
	for _, r := range regs {
		buf = binary.LittleEndian.AppendUint32(buf, r)
	}
	buf = binary.LittleEndian.AppendUint64(buf, cycle)
	return keccak(stateTag, buf)
}

// finalDigest binds the guest output to the state a run halts in.
func finalDigest(state common.Hash, output []uint32) common.Hash {
	buf := make([]byte, 0, 4*len(output))
	for _, w := range output {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return keccak(state[:], keccak(buf).Bytes())
}

// resetState is the state every execution starts from.
func resetState() common.Hash {
	var regs [riscv.RegCount]uint32
	return stateDigest(0, &regs, 0)
}
