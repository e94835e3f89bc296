package prover

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/metrics"
)

// deviceNodes are the character devices whose presence marks a usable GPU.
var deviceNodes = []string{"/dev/nvidiactl", "/dev/nvidia0"}

// deviceContext is the process-wide GPU context. At most one proving
// operation holds it at a time.
var deviceContext = semaphore.NewWeighted(1)

// Device is a backend acquired for one proving operation. It must be
// released on every exit path.
type Device struct {
	backend Backend
	workers int
	stub    bool
	once    sync.Once
}

// CheckBackend reports whether backend can be used without taking the
// device context: gpu needs a device or stub mode. It returns whether the
// gpu runs on the host.
func CheckBackend(backend Backend, cfg Config) (stub bool, err error) {
	switch backend {
	case CPU:
		return false, nil
	case GPU:
		if gpuPresent() {
			return false, nil
		}
		if !cfg.GPUStub {
			return false, errs.New(errs.BackendUnavailable, "gpu backend requested but no device found (build with -tags gpustub or set AIRBENDER_GPU_STUB=1)")
		}
		return true, nil
	default:
		return false, errs.New(errs.Internal, "unknown backend %d", backend)
	}
}

// Acquire prepares backend for a proving operation. The gpu backend takes
// the exclusive device context, waiting for ctx if another operation holds
// it. Availability is checked first, see CheckBackend.
func Acquire(ctx context.Context, backend Backend, cfg Config) (*Device, error) {
	stub, err := CheckBackend(backend, cfg)
	if err != nil {
		return nil, err
	}
	if backend == CPU {
		return &Device{backend: CPU, workers: cfg.workers()}, nil
	}
	if err := deviceContext.Acquire(ctx, 1); err != nil {
		return nil, errs.Wrap(errs.Interrupted, err, "waiting for gpu device")
	}
	metrics.DeviceBusy.Set(1)
	log.Module("prover").Debug("Acquired gpu device", "stub", stub)
	return &Device{backend: GPU, workers: cfg.workers(), stub: stub}, nil
}

// Backend returns the backend the device was acquired for.
func (d *Device) Backend() Backend { return d.backend }

// Stub reports whether a gpu device runs on the host.
func (d *Device) Stub() bool { return d.stub }

// Workers returns the number of parallel proving workers.
func (d *Device) Workers() int { return d.workers }

// Release returns the device context. Calling it more than once is safe.
func (d *Device) Release() {
	d.once.Do(func() {
		if d.backend == GPU {
			metrics.DeviceBusy.Set(0)
			deviceContext.Release(1)
		}
	})
}

func gpuPresent() bool {
	for _, node := range deviceNodes {
		if _, err := os.Stat(node); err == nil {
			return true
		}
	}
	return false
}
