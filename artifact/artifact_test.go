package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/prover"
)

func sampleProof() *Proof {
	p := &Proof{
		Level:       prover.RecursionUnrolled,
		AppBinHash:  common.HexToHash("0x01"),
		SetupDigest: common.HexToHash("0x02"),
		Cycles:      1234,
		FinalPC:     0x40,
		Output:      []uint32{7, 8},
	}
	p.FinalRegisters[10] = 42
	for i := 0; i < 3; i++ {
		l := prover.Layer{Index: uint64(i), Cycles: 400 + uint64(i)}
		l.StartState[0] = byte(i)
		l.EndState[0] = byte(i + 1)
		l.Commitment[0] = 0xc0
		l.Opening[47] = byte(i)
		l.Point[31] = 9
		l.Seal[31] = byte(i)
		p.Layers = append(p.Layers, l)
	}
	return p
}

func sampleKey() *VerificationKey {
	return &VerificationKey{
		Level:       prover.Base,
		AppBinHash:  common.HexToHash("0x01"),
		SetupDigest: common.HexToHash("0x03"),
		SetupPoint:  [48]byte{0xa0, 1, 2},
		Layouts:     prover.Layouts(prover.Base),
	}
}

func expectCorrupt(t *testing.T, name string, err error) {
	t.Helper()
	if !errors.Is(err, errs.ErrCorruptArtifact) {
		t.Fatalf("%s: expected CorruptArtifact, got %v", name, err)
	}
}

func TestProofRoundTrip(t *testing.T) {
	var c Codec
	in := sampleProof()
	data, err := c.EncodeProof(in)
	if err != nil {
		t.Fatalf("EncodeProof: %v", err)
	}
	out, err := c.DecodeProof(data)
	if err != nil {
		t.Fatalf("DecodeProof: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("proof round trip (-want +got):\n%s", diff)
	}
	again, _ := c.EncodeProof(out)
	if !bytes.Equal(again, data) {
		t.Fatal("re-encoding is not stable")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	c := Codec{Debug: true}
	in := sampleKey()
	data, err := c.EncodeVerificationKey(in)
	if err != nil {
		t.Fatalf("EncodeVerificationKey: %v", err)
	}
	out, err := c.DecodeVerificationKey(data)
	if err != nil {
		t.Fatalf("DecodeVerificationKey: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("key round trip (-want +got):\n%s", diff)
	}
}

func TestFrame(t *testing.T) {
	data, _ := Codec{}.EncodeProof(sampleProof())
	if string(data[:4]) != "ABPF" {
		t.Fatalf("magic: %q", data[:4])
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != VersionProduction {
		t.Fatalf("version: %d", v)
	}
	if n := binary.BigEndian.Uint32(data[6:10]); int(n) != len(data)-headerSize-checksumSize {
		t.Fatalf("payload length %d does not match frame", n)
	}
	key, _ := Codec{Debug: true}.EncodeVerificationKey(sampleKey())
	if string(key[:4]) != "ABVK" || binary.BigEndian.Uint16(key[4:6]) != VersionDebug {
		t.Fatalf("key header: %x", key[:6])
	}
}

func TestDecode_Truncated(t *testing.T) {
	var c Codec
	data, _ := c.EncodeProof(sampleProof())
	for _, n := range []int{0, 3, headerSize, headerSize + checksumSize, len(data) / 2, len(data) - 1} {
		_, err := c.DecodeProof(data[:n])
		expectCorrupt(t, "truncated", err)
	}
}

func TestDecode_VersionMismatch(t *testing.T) {
	prod, debug := Codec{}, Codec{Debug: true}
	data, _ := debug.EncodeProof(sampleProof())
	_, err := prod.DecodeProof(data)
	expectCorrupt(t, "debug proof in production build", err)

	key, _ := prod.EncodeVerificationKey(sampleKey())
	_, err = debug.DecodeVerificationKey(key)
	expectCorrupt(t, "production key in debug build", err)

	data, _ = prod.EncodeProof(sampleProof())
	binary.BigEndian.PutUint16(data[4:6], 2)
	_, err = prod.DecodeProof(data)
	expectCorrupt(t, "future version", err)
}

func TestDecode_Corruption(t *testing.T) {
	var c Codec
	good, _ := c.EncodeProof(sampleProof())
	mutate := map[string]func([]byte) []byte{
		"payload byte": func(b []byte) []byte { b[headerSize+5] ^= 0x01; return b },
		"checksum":     func(b []byte) []byte { b[len(b)-1] ^= 0x80; return b },
		"trailing":     func(b []byte) []byte { return append(b, 0) },
		"length":       func(b []byte) []byte { binary.BigEndian.PutUint32(b[6:10], 1<<31); return b },
	}
	for name, fn := range mutate {
		_, err := c.DecodeProof(fn(bytes.Clone(good)))
		expectCorrupt(t, name, err)
	}
}

func TestDecode_WrongKind(t *testing.T) {
	var c Codec
	key, _ := c.EncodeVerificationKey(sampleKey())
	_, err := c.DecodeProof(key)
	expectCorrupt(t, "key as proof", err)
	proof, _ := c.EncodeProof(sampleProof())
	_, err = c.DecodeVerificationKey(proof)
	expectCorrupt(t, "proof as key", err)
}

func TestDecode_UnknownLevel(t *testing.T) {
	var c Codec
	p := sampleProof()
	p.Level = 7
	data, err := c.EncodeProof(p)
	if err != nil {
		t.Fatalf("EncodeProof: %v", err)
	}
	_, err = c.DecodeProof(data)
	expectCorrupt(t, "unknown level", err)
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proof.bin")
	if err := WriteFile(path, []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if data, err := ReadFile(path); err != nil || string(data) != "x" {
		t.Fatalf("ReadFile: %q, %v", data, err)
	}
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing"))
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.IOError || e.Path == "" {
		t.Fatalf("missing file: %v", err)
	}
}
