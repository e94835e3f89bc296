package prover

import (
	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
)

// Verify checks proof against vk. It returns true on accept and false on
// reject; an error means verification could not be carried out. Levels
// must match. The reason for a rejection is logged at debug level.
func Verify(proof *Proof, vk *VerificationKey) (bool, error) {
	logger := log.Module("verifier")
	metrics.Verifications.Inc()
	if proof.Level != vk.Level {
		return false, errs.New(errs.LevelMismatch, "proof is %s, verification key is %s", proof.Level, vk.Level)
	}
	if _, err := kzgContext(); err != nil {
		return false, errs.Wrap(errs.Internal, err, "load kzg setup")
	}
	reject := func(reason string, args ...any) (bool, error) {
		metrics.Rejections.Inc()
		logger.Debug("Proof rejected: "+reason, args...)
		return false, nil
	}

	if proof.AppBinHash != vk.AppBinHash {
		return reject("program hash mismatch", "proof", proof.AppBinHash, "vk", vk.AppBinHash)
	}
	if proof.SetupDigest != vk.SetupDigest {
		return reject("setup digest mismatch")
	}
	if len(proof.Layers) == 0 {
		return reject("no layers")
	}
	if proof.Level == RecursionUnified && len(proof.Layers) != 1 {
		return reject("unified proof must have one layer", "layers", len(proof.Layers))
	}

	var cycles uint64
	for i := range proof.Layers {
		l := &proof.Layers[i]
		if l.Index != uint64(i) {
			return reject("layer out of order", "index", l.Index, "position", i)
		}
		if i == 0 && l.StartState != resetState() {
			return reject("first layer does not start from reset")
		}
		if i > 0 && l.StartState != proof.Layers[i-1].EndState {
			return reject("layers are not contiguous", "layer", i)
		}
		if err := checkLayer(proof.Level, vk.SetupDigest, l); err != nil {
			return reject("layer check failed", "err", err)
		}
		cycles += l.Cycles
	}
	if cycles != proof.Cycles {
		return reject("cycle count mismatch", "layers", cycles, "proof", proof.Cycles)
	}
	final := finalDigest(stateDigest(proof.FinalPC, &proof.FinalRegisters, proof.Cycles), proof.Output)
	if proof.Layers[len(proof.Layers)-1].EndState != final {
		return reject("final state mismatch")
	}
	logger.Debug("Proof accepted", "level", proof.Level, "cycles", proof.Cycles, "layers", len(proof.Layers))
	return true, nil
}
