package prover

import (
	"errors"
	"testing"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/program"
	"github.com/eth2030/airbender/riscv"
)

func TestSetup_Deterministic(t *testing.T) {
	for _, level := range Levels {
		a := setup(t, countdown(), level)
		b := setup(t, countdown(), level)
		if a.SetupDigest != b.SetupDigest || a.SetupPoint != b.SetupPoint {
			t.Fatalf("%v: setup is not deterministic", level)
		}
		if a.AppBinHash != countdown().Hash {
			t.Fatalf("%v: app hash not recorded", level)
		}
		if err := CheckKey(a); err != nil {
			t.Fatalf("%v: CheckKey: %v", level, err)
		}
	}
}

func TestSetup_DistinctPerLevelAndProgram(t *testing.T) {
	seen := make(map[[48]byte]string)
	other := program.FromWords("other", []uint32{riscv.Ecall()})
	for _, img := range []*program.Image{countdown(), other} {
		for _, level := range Levels {
			vk := setup(t, img, level)
			name := img.Paths.Bin + "/" + level.String()
			if prev, ok := seen[vk.SetupPoint]; ok {
				t.Fatalf("%s shares a setup point with %s", name, prev)
			}
			seen[vk.SetupPoint] = name
		}
	}
}

func TestSetup_Layouts(t *testing.T) {
	if n := len(setup(t, countdown(), Base).Layouts); n != 3 {
		t.Fatalf("base layouts: got %d, want 3", n)
	}
	unified := setup(t, countdown(), RecursionUnified).Layouts
	if len(unified) != 1 || unified[0].Name != "recursion-unified" {
		t.Fatalf("unified layouts: %v", unified)
	}
}

func TestCheckKey_Corrupt(t *testing.T) {
	tests := map[string]func(vk *VerificationKey){
		"setup point": func(vk *VerificationKey) { vk.SetupPoint[5] ^= 1 },
		"digest":      func(vk *VerificationKey) { vk.SetupDigest[0] ^= 1 },
		"layout":      func(vk *VerificationKey) { vk.Layouts[0].Rows++ },
		"no layouts":  func(vk *VerificationKey) { vk.Layouts = nil },
		"level":       func(vk *VerificationKey) { vk.Level = 9 },
	}
	for name, fn := range tests {
		vk := setup(t, countdown(), RecursionUnrolled)
		fn(vk)
		if err := CheckKey(vk); !errors.Is(err, errs.ErrCorruptArtifact) {
			t.Fatalf("%s: expected CorruptArtifact, got %v", name, err)
		}
	}
}
