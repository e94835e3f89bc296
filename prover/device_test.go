package prover

import (
	"context"
	"errors"
	"testing"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/metrics"
)

func TestAcquire_CPU(t *testing.T) {
	dev, err := Acquire(context.Background(), CPU, Config{Threads: 3})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer dev.Release()
	if dev.Backend() != CPU || dev.Workers() != 3 {
		t.Fatalf("device: backend=%v workers=%d", dev.Backend(), dev.Workers())
	}
}

func TestAcquire_GPUUnavailable(t *testing.T) {
	if gpuPresent() {
		t.Skip("gpu device present")
	}
	_, err := Acquire(context.Background(), GPU, Config{})
	if !errors.Is(err, errs.ErrBackendUnavailable) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestCheckBackend(t *testing.T) {
	if stub, err := CheckBackend(CPU, Config{}); err != nil || stub {
		t.Fatalf("cpu: stub=%v err=%v", stub, err)
	}
	if _, err := CheckBackend(Backend(7), Config{}); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("unknown backend: expected Internal, got %v", err)
	}
	stub, err := CheckBackend(GPU, Config{GPUStub: true})
	if err != nil {
		t.Fatalf("gpu stub: %v", err)
	}
	if stub == gpuPresent() {
		t.Fatalf("stub=%v with device present=%v", stub, gpuPresent())
	}

	// Checking never takes the device context.
	dev, err := Acquire(context.Background(), GPU, Config{GPUStub: true})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer dev.Release()
	if dev.Stub() != stub {
		t.Fatalf("Device.Stub() = %v, want %v", dev.Stub(), stub)
	}
	if _, err := CheckBackend(GPU, Config{GPUStub: true}); err != nil {
		t.Fatalf("check while held: %v", err)
	}
}

func TestAcquire_GPUExclusive(t *testing.T) {
	cfg := Config{GPUStub: true}
	dev, err := Acquire(context.Background(), GPU, cfg)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if metrics.DeviceBusy.Value() != 1 {
		t.Fatal("device not marked busy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Acquire(ctx, GPU, cfg); !errors.Is(err, errs.ErrInterrupted) {
		t.Fatalf("second acquire: expected Interrupted, got %v", err)
	}

	dev.Release()
	dev.Release()
	if metrics.DeviceBusy.Value() != 0 {
		t.Fatal("device still marked busy")
	}
	again, err := Acquire(context.Background(), GPU, cfg)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again.Release()
}

func TestLevelAndBackendNames(t *testing.T) {
	for _, l := range Levels {
		got, err := ParseLevel(l.String())
		if err != nil || got != l {
			t.Fatalf("ParseLevel(%q) = %v, %v", l, got, err)
		}
	}
	if _, err := ParseLevel("recursion"); err == nil {
		t.Fatal("ParseLevel accepted an unknown level")
	}
	for _, b := range []Backend{CPU, GPU} {
		got, err := ParseBackend(b.String())
		if err != nil || got != b {
			t.Fatalf("ParseBackend(%q) = %v, %v", b, got, err)
		}
	}
	if _, err := ParseBackend("tpu"); err == nil {
		t.Fatal("ParseBackend accepted an unknown backend")
	}
}
