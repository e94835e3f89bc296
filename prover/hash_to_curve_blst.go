//go:build blst

package prover

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// hashToG1 maps msg onto BLS12-381 G1 and returns the compressed point.
func hashToG1(msg, dst []byte) ([48]byte, error) {
	var out [48]byte
	p := blst.HashToG1(msg, dst)
	if p == nil {
		return out, errors.New("prover: blst hash to G1 failed")
	}
	copy(out[:], p.ToAffine().Compress())
	return out, nil
}
