//go:build !blst

package prover

import (
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
)

// hashToG1 maps msg onto BLS12-381 G1 and returns the compressed point.
func hashToG1(msg, dst []byte) ([48]byte, error) {
	p, err := bls12381.HashToG1(msg, dst)
	if err != nil {
		return [48]byte{}, err
	}
	return p.Bytes(), nil
}
