package prover

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// fieldElements is the number of scalars in a committed blob.
	fieldElements = 4096
	// headerElements precede the layer data in a blob: trace root, start
	// state, end state and cycle count.
	headerElements = 4
	dataElements   = fieldElements - headerElements
)

var errChallengeMismatch = errors.New("prover: layer challenge mismatch")

// kzgContext loads the trusted setup once per process.
var kzgContext = sync.OnceValues(func() (*goethkzg.Context, error) {
	ctx, err := goethkzg.NewContext4096Secure()
	if err != nil {
		return nil, fmt.Errorf("prover: kzg setup: %w", err)
	}
	return ctx, nil
})

// scalar reduces a hash to a canonical BLS12-381 scalar by clearing the top
// byte.
func scalar(h common.Hash) goethkzg.Scalar {
	var s goethkzg.Scalar
	copy(s[:], h[:])
	s[0] = 0
	return s
}

// layerBlob lays out the blob committed for a layer. Data beyond the blob
// capacity is folded into contiguous chunks of equal size.
func layerBlob(l *Layer, data []common.Hash) *goethkzg.Blob {
	var blob goethkzg.Blob
	put := func(i int, h common.Hash) {
		s := scalar(h)
		copy(blob[i*32:(i+1)*32], s[:])
	}
	var cycles common.Hash
	binary.BigEndian.PutUint64(cycles[24:], l.Cycles)
	put(0, l.TraceRoot)
	put(1, l.StartState)
	put(2, l.EndState)
	put(3, cycles)

	chunk := (len(data) + dataElements - 1) / dataElements
	if chunk <= 1 {
		for i, h := range data {
			put(headerElements+i, h)
		}
		return &blob
	}
	buf := make([]byte, 0, chunk*32)
	for i := 0; i*chunk < len(data); i++ {
		buf = buf[:0]
		for _, h := range data[i*chunk : min((i+1)*chunk, len(data))] {
			buf = append(buf, h[:]...)
		}
		put(headerElements+i, keccak(buf))
	}
	return &blob
}

// challenge is the Fiat-Shamir evaluation point of a layer.
func challenge(level Level, setup common.Hash, l *Layer) goethkzg.Scalar {
	var hdr [17]byte
	hdr[0] = byte(level)
	binary.BigEndian.PutUint64(hdr[1:], l.Index)
	binary.BigEndian.PutUint64(hdr[9:], l.Cycles)
	return scalar(keccak(hdr[:], setup[:], l.StartState[:], l.EndState[:], l.TraceRoot[:], l.Commitment[:]))
}

// seal binds every field of a layer.
func seal(level Level, setup common.Hash, l *Layer) common.Hash {
	var hdr [17]byte
	hdr[0] = byte(level)
	binary.BigEndian.PutUint64(hdr[1:], l.Index)
	binary.BigEndian.PutUint64(hdr[9:], l.Cycles)
	return keccak(hdr[:], setup[:], l.StartState[:], l.EndState[:], l.TraceRoot[:],
		l.Commitment[:], l.Point[:], l.Value[:], l.Opening[:])
}

// commitLayer commits to the layer's blob and opens it at the layer
// challenge. StartState, EndState, Cycles and TraceRoot must be set.
func commitLayer(level Level, setup common.Hash, l *Layer, data []common.Hash) error {
	kctx, err := kzgContext()
	if err != nil {
		return err
	}
	blob := layerBlob(l, data)
	comm, err := kctx.BlobToKZGCommitment(blob, 0)
	if err != nil {
		return fmt.Errorf("prover: commit layer %d: %w", l.Index, err)
	}
	l.Commitment = [48]byte(comm)
	z := challenge(level, setup, l)
	opening, y, err := kctx.ComputeKZGProof(blob, z, 0)
	if err != nil {
		return fmt.Errorf("prover: open layer %d: %w", l.Index, err)
	}
	l.Point = [32]byte(z)
	l.Value = [32]byte(y)
	l.Opening = [48]byte(opening)
	l.Seal = seal(level, setup, l)
	return nil
}

// checkLayer verifies the opening and seal of a single layer.
func checkLayer(level Level, setup common.Hash, l *Layer) error {
	kctx, err := kzgContext()
	if err != nil {
		return err
	}
	z := challenge(level, setup, l)
	if [32]byte(z) != l.Point {
		return fmt.Errorf("%w: layer %d", errChallengeMismatch, l.Index)
	}
	if err := kctx.VerifyKZGProof(goethkzg.KZGCommitment(l.Commitment), z, goethkzg.Scalar(l.Value), goethkzg.KZGProof(l.Opening)); err != nil {
		return fmt.Errorf("prover: layer %d opening: %w", l.Index, err)
	}
	if seal(level, setup, l) != l.Seal {
		return fmt.Errorf("prover: layer %d seal mismatch", l.Index)
	}
	return nil
}
