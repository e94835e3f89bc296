package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCounter_IncAndAdd(t *testing.T) {
	c := NewCounter("test.counter")
	c.Inc()
	c.Add(9)
	if c.Value() != 10 {
		t.Fatalf("value = %d, want 10", c.Value())
	}
	// Negative adds must be ignored (counters are monotonic).
	c.Add(-5)
	c.Add(0)
	if c.Value() != 10 {
		t.Fatalf("after Add(-5) value = %d, want 10", c.Value())
	}
	if c.Name() != "test.counter" {
		t.Fatalf("name = %q", c.Name())
	}
}

func TestCounter_ConcurrentIncrement(t *testing.T) {
	c := NewCounter("test.concurrent")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if c.Value() != 8000 {
		t.Fatalf("value = %d, want 8000", c.Value())
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	g := NewGauge("test.gauge")
	g.Set(42)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 41 {
		t.Fatalf("value = %d, want 41", g.Value())
	}
	g.Set(-10)
	if g.Value() != -10 {
		t.Fatalf("value = %d, want -10", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	h := NewHistogram("test.hist")
	if s := h.Snapshot(); s.Count != 0 || s.Min != 0 || s.Max != 0 || s.Mean() != 0 {
		t.Fatalf("empty histogram: %+v", s)
	}
	for _, v := range []float64{10, 20, 30} {
		h.Observe(v)
	}
	s := h.Snapshot()
	if s.Count != 3 || s.Sum != 60 || s.Min != 10 || s.Max != 30 || s.Mean() != 20 {
		t.Fatalf("snapshot = %+v", s)
	}
	h.Observe(-5)
	if s := h.Snapshot(); s.Min != -5 {
		t.Fatalf("min = %f, want -5", s.Min)
	}
}

func TestTimer_RecordsDuration(t *testing.T) {
	h := NewHistogram("test.timer")
	timer := NewTimer(h)
	time.Sleep(2 * time.Millisecond)
	if d := timer.Stop(); d < 2*time.Millisecond {
		t.Fatalf("duration = %v, want >= 2ms", d)
	}
	if h.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Count())
	}
	// A timer without a histogram only measures.
	if d := NewTimer(nil).Stop(); d < 0 {
		t.Fatalf("negative duration %v", d)
	}
}
