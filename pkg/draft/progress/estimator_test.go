package progress

import (
	"sync"
	"testing"
	"time"
)

func TestEstimatorCeilingAndFinish(t *testing.T) {
	// A huge tick interval keeps the background loop quiet so the test
	// drives Tick deterministically.
	e := NewEstimator(90, time.Hour, nil)
	e.Start()

	for i := 0; i < 200; i++ {
		e.Tick()
	}

	snap := e.Snapshot()
	if !snap.Running {
		t.Fatal("estimator should still be running")
	}
	if snap.Percent > 90 {
		t.Fatalf("percent = %d, must not exceed ceiling while running", snap.Percent)
	}
	if snap.Percent == 0 {
		t.Fatal("percent did not advance")
	}

	e.Finish()
	snap = e.Snapshot()
	if snap.Running {
		t.Fatal("estimator still running after Finish")
	}
	if snap.Percent != 100 {
		t.Fatalf("percent after Finish = %d, want 100", snap.Percent)
	}

	// Ticks and extra Finish calls after completion are no-ops.
	e.Tick()
	e.Finish()
	if got := e.Snapshot().Percent; got != 100 {
		t.Fatalf("percent after post-Finish calls = %d, want 100", got)
	}
}

func TestEstimatorMonotonic(t *testing.T) {
	e := NewEstimator(90, time.Hour, nil)
	e.Start()

	last := 0
	for i := 0; i < 50; i++ {
		e.Tick()
		cur := e.Snapshot().Percent
		if cur < last {
			t.Fatalf("progress went backwards: %d -> %d", last, cur)
		}
		last = cur
	}
}

func TestEstimatorNotifies(t *testing.T) {
	var mu sync.Mutex
	var snaps []Snapshot

	e := NewEstimator(90, time.Hour, func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	e.Start()
	e.Tick()
	e.Finish()

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) < 3 {
		t.Fatalf("got %d notifications, want at least start, tick and finish", len(snaps))
	}
	final := snaps[len(snaps)-1]
	if final.Percent != 100 || final.Running {
		t.Fatalf("final notification = %+v, want finished at 100", final)
	}
}

func TestEstimatorBadConfigFallsBack(t *testing.T) {
	e := NewEstimator(150, 0, nil)
	if e.ceiling != DefaultCeiling {
		t.Errorf("ceiling = %d, want default %d", e.ceiling, DefaultCeiling)
	}
	if e.tickEvery != DefaultTickEvery {
		t.Errorf("tickEvery = %v, want default %v", e.tickEvery, DefaultTickEvery)
	}
}

func TestEstimatorRestart(t *testing.T) {
	e := NewEstimator(90, time.Hour, nil)
	e.Start()
	e.Tick()
	e.Finish()

	e.Start()
	snap := e.Snapshot()
	if snap.Percent != 0 || !snap.Running {
		t.Fatalf("restart snapshot = %+v, want fresh running state", snap)
	}
	e.Finish()
}
