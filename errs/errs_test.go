package errs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestExitCodes(t *testing.T) {
	want := map[Code]int{
		MalformedInput:         10,
		ProgramLoadError:       11,
		CycleBudgetExceeded:    12,
		ProgramExceedsCapacity: 13,
		BackendUnavailable:     14,
		UnsatisfiedConstraint:  15,
		CorruptArtifact:        16,
		LevelMismatch:          17,
		IOError:                18,
		Internal:               3,
		Interrupted:            130,
	}
	seen := make(map[int]Code)
	for code, exit := range want {
		if got := code.ExitCode(); got != exit {
			t.Errorf("%v: exit %d, want %d", code, got, exit)
		}
		if prev, ok := seen[exit]; ok {
			t.Errorf("exit %d shared by %v and %v", exit, prev, code)
		}
		seen[exit] = code
	}
}

func TestErrorIsByCode(t *testing.T) {
	err := fmt.Errorf("prove: %w", New(CycleBudgetExceeded, "limit %d", 10))
	if !errors.Is(err, ErrCycleBudgetExceeded) {
		t.Fatal("expected CycleBudgetExceeded")
	}
	if errors.Is(err, ErrCorruptArtifact) {
		t.Fatal("unexpected CorruptArtifact match")
	}
	if got := ExitCode(err); got != 12 {
		t.Fatalf("ExitCode: got %d, want 12", got)
	}
}

func TestWithPathNamesFile(t *testing.T) {
	err := WithPath(IOError, "/tmp/missing.bin", os.ErrNotExist)
	if !strings.Contains(err.Error(), "/tmp/missing.bin") {
		t.Fatalf("message %q does not name path", err.Error())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("cause not unwrapped")
	}
}

func TestCodeOfContext(t *testing.T) {
	if got := CodeOf(fmt.Errorf("run: %w", context.Canceled)); got != Interrupted {
		t.Fatalf("CodeOf(canceled): got %v", got)
	}
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Fatalf("CodeOf(plain): got %v", got)
	}
	if ExitCode(nil) != ExitOK {
		t.Fatal("nil error must exit 0")
	}
	if Wrap(IOError, nil, "x") != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
}
