package prover

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/program"
)

// setupDST is the hash-to-curve domain separation tag for setup points.
const setupDST = "AIRBENDER-V01-CS01-with-BLS12381G1_XMD:SHA-256_SSWU_RO_"

// layoutSpecs are the circuits of each level.
var layoutSpecs = map[Level][]CircuitLayout{
	Base: {
		{Name: "riscv-main", Rows: 1 << 22, Columns: 246},
		{Name: "memory-argument", Rows: 1 << 22, Columns: 60},
		{Name: "delegation-blake2s", Rows: 1 << 20, Columns: 1154},
	},
	RecursionUnrolled: {
		{Name: "recursion-unrolled", Rows: 1 << 20, Columns: 180},
	},
	RecursionUnified: {
		{Name: "recursion-unified", Rows: 1 << 20, Columns: 202},
	},
}

// Layouts returns the circuit layouts of level with their digests filled
// in.
func Layouts(level Level) []CircuitLayout {
	specs := layoutSpecs[level]
	out := make([]CircuitLayout, len(specs))
	for i, l := range specs {
		var dims [16]byte
		binary.BigEndian.PutUint64(dims[:8], l.Rows)
		binary.BigEndian.PutUint64(dims[8:], l.Columns)
		l.Digest = keccak([]byte(l.Name), dims[:])
		out[i] = l
	}
	return out
}

func layoutsDigest(level Level) common.Hash {
	layouts := Layouts(level)
	parts := make([][]byte, 0, len(layouts)+1)
	parts = append(parts, []byte(level.String()))
	for i := range layouts {
		parts = append(parts, layouts[i].Digest[:])
	}
	return keccak(parts...)
}

// SetupDigests derives the setup digest of every level for img. The base
// digest binds the program bytes and text section; each recursion level
// binds the level below it.
func SetupDigests(img *program.Image) map[Level]common.Hash {
	text := make([]byte, 0, 4*len(img.Text))
	for _, w := range img.Text {
		text = binary.LittleEndian.AppendUint32(text, w)
	}
	base := keccak([]byte("airbender/setup"), img.Hash[:], keccak(text).Bytes(), layoutsDigest(Base).Bytes())
	unrolled := keccak([]byte("airbender/setup"), base[:], layoutsDigest(RecursionUnrolled).Bytes())
	unified := keccak([]byte("airbender/setup"), unrolled[:], layoutsDigest(RecursionUnified).Bytes())
	return map[Level]common.Hash{
		Base:              base,
		RecursionUnrolled: unrolled,
		RecursionUnified:  unified,
	}
}

// Setup derives the verification key of img at level. It depends only on
// the program and level.
func Setup(img *program.Image, level Level) (*VerificationKey, error) {
	if !level.Valid() {
		return nil, errs.New(errs.Internal, "unknown level %d", level)
	}
	digest := SetupDigests(img)[level]
	point, err := hashToG1(digest[:], []byte(setupDST))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "hash setup digest to curve")
	}
	return &VerificationKey{
		Level:       level,
		AppBinHash:  img.Hash,
		SetupDigest: digest,
		SetupPoint:  point,
		Layouts:     Layouts(level),
	}, nil
}

// CheckKey checks that vk is internally consistent: known level, the
// expected layouts and a setup point matching the digest.
func CheckKey(vk *VerificationKey) error {
	if !vk.Level.Valid() {
		return errs.New(errs.CorruptArtifact, "verification key has unknown level %d", vk.Level)
	}
	want := Layouts(vk.Level)
	if len(vk.Layouts) != len(want) {
		return errs.New(errs.CorruptArtifact, "verification key has %d layouts, %s needs %d", len(vk.Layouts), vk.Level, len(want))
	}
	for i := range want {
		if vk.Layouts[i] != want[i] {
			return errs.New(errs.CorruptArtifact, "verification key layout %q does not match %s", vk.Layouts[i].Name, vk.Level)
		}
	}
	point, err := hashToG1(vk.SetupDigest[:], []byte(setupDST))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "hash setup digest to curve")
	}
	if point != vk.SetupPoint {
		return errs.New(errs.CorruptArtifact, "verification key setup point does not match its digest")
	}
	return nil
}

func (l CircuitLayout) String() string {
	return fmt.Sprintf("%s(%dx%d)", l.Name, l.Rows, l.Columns)
}
