// Package artifact is the binary codec for proofs and verification keys.
//
// Every artifact is framed as
//
//	magic[4] | version u16 | payload length u32 | RLP payload | keccak256[32]
//
// with big-endian integers and the checksum taken over everything before
// it. Decoding fails closed: any deviation from the frame, a version other
// than the codec's own, or a payload that does not decode exactly yields
// CorruptArtifact.
package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/prover"
)

// Format versions. Debug-circuit builds write and accept only
// VersionDebug, production builds only VersionProduction.
const (
	VersionProduction uint16 = 1
	VersionDebug      uint16 = 0x8001
)

const (
	headerSize   = 4 + 2 + 4
	checksumSize = 32
	// MaxPayload bounds the payload length accepted by Decode.
	MaxPayload = 1 << 30
)

// Kind identifies what an artifact holds.
type Kind [4]byte

var (
	KindProof = Kind{'A', 'B', 'P', 'F'}
	KindKey   = Kind{'A', 'B', 'V', 'K'}
)

func (k Kind) String() string {
	switch k {
	case KindProof:
		return "proof"
	case KindKey:
		return "verification key"
	}
	return fmt.Sprintf("unknown(%x)", k[:])
}

type (
	Proof           = prover.Proof
	VerificationKey = prover.VerificationKey
)

var (
	errTruncated = errors.New("artifact truncated")
	errChecksum  = errors.New("checksum mismatch")
)

// Codec encodes and decodes artifacts for one circuit build.
type Codec struct {
	Debug bool
}

// Version returns the format version this codec writes and accepts.
func (c Codec) Version() uint16 {
	if c.Debug {
		return VersionDebug
	}
	return VersionProduction
}

// EncodeProof serializes p.
func (c Codec) EncodeProof(p *Proof) ([]byte, error) {
	return c.encode(KindProof, p)
}

// DecodeProof parses a proof artifact.
func (c Codec) DecodeProof(data []byte) (*Proof, error) {
	p := new(Proof)
	if err := c.decode(KindProof, data, p); err != nil {
		return nil, err
	}
	if !p.Level.Valid() {
		return nil, errs.New(errs.CorruptArtifact, "proof has unknown level %d", p.Level)
	}
	return p, nil
}

// EncodeVerificationKey serializes vk.
func (c Codec) EncodeVerificationKey(vk *VerificationKey) ([]byte, error) {
	return c.encode(KindKey, vk)
}

// DecodeVerificationKey parses a verification key artifact.
func (c Codec) DecodeVerificationKey(data []byte) (*VerificationKey, error) {
	vk := new(VerificationKey)
	if err := c.decode(KindKey, data, vk); err != nil {
		return nil, err
	}
	if !vk.Level.Valid() {
		return nil, errs.New(errs.CorruptArtifact, "verification key has unknown level %d", vk.Level)
	}
	return vk, nil
}

func (c Codec) encode(kind Kind, v any) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encode %s", kind)
	}
	if len(payload) > MaxPayload {
		return nil, errs.New(errs.Internal, "%s payload of %d bytes exceeds the format limit", kind, len(payload))
	}
	out := make([]byte, 0, headerSize+len(payload)+checksumSize)
	out = append(out, kind[:]...)
	out = binary.BigEndian.AppendUint16(out, c.Version())
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	return append(out, crypto.Keccak256(out)...), nil
}

func (c Codec) decode(kind Kind, data []byte, v any) error {
	corrupt := func(format string, args ...any) error {
		return errs.New(errs.CorruptArtifact, "%s: "+format, append([]any{kind}, args...)...)
	}
	if len(data) < headerSize+checksumSize {
		return corrupt("%v (%d bytes)", errTruncated, len(data))
	}
	var got Kind
	copy(got[:], data[:4])
	if got != kind {
		return corrupt("artifact holds a %s", got)
	}
	switch version := binary.BigEndian.Uint16(data[4:6]); {
	case version == c.Version():
	case version == VersionDebug:
		return corrupt("debug-circuit artifact is not accepted by a production build")
	case version == VersionProduction:
		return corrupt("production artifact is not accepted by a debug-circuit build")
	default:
		return corrupt("unsupported format version %d", version)
	}
	size := uint64(binary.BigEndian.Uint32(data[6:10]))
	if size > MaxPayload {
		return corrupt("payload length %d exceeds the format limit", size)
	}
	switch total := uint64(headerSize) + size + checksumSize; {
	case uint64(len(data)) < total:
		return corrupt("%v: want %d bytes, have %d", errTruncated, total, len(data))
	case uint64(len(data)) > total:
		return corrupt("%d trailing bytes", uint64(len(data))-total)
	}
	body := data[:len(data)-checksumSize]
	if !bytes.Equal(crypto.Keccak256(body), data[len(body):]) {
		return corrupt("%v", errChecksum)
	}
	if err := rlp.DecodeBytes(body[headerSize:], v); err != nil {
		return corrupt("payload: %v", err)
	}
	return nil
}

// ReadFile reads an artifact file, naming the path on failure.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WithPath(errs.IOError, path, err)
	}
	return data, nil
}

// WriteFile writes an encoded artifact, naming the path on failure.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.WithPath(errs.IOError, path, err)
	}
	return nil
}
