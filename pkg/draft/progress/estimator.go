package progress

import (
	"math/rand"
	"sync"
	"time"
)

// Snapshot is a point-in-time view of a stage's synthetic progress.
type Snapshot struct {
	Percent        int  `json:"percent"`
	ElapsedSeconds int  `json:"elapsed_seconds"`
	Running        bool `json:"running"`
}

// Estimator produces a monotonically increasing, capped progress value for a
// stage of unknown duration. It is purely cosmetic: nothing in the pipeline
// reads it to make control-flow decisions.
type Estimator struct {
	mu      sync.Mutex
	percent int
	elapsed int
	running bool

	ceiling   int
	tickEvery time.Duration
	rng       *rand.Rand
	onChange  func(Snapshot)

	stop chan struct{}
}

const (
	// DefaultCeiling keeps the bar short of 100 until Finish snaps it there.
	DefaultCeiling   = 90
	DefaultTickEvery = 500 * time.Millisecond

	minStep = 2
	maxStep = 9
)

// NewEstimator creates an estimator. onChange (optional) is invoked outside
// the lock on every visible change, for pushing updates to the UI.
func NewEstimator(ceiling int, tickEvery time.Duration, onChange func(Snapshot)) *Estimator {
	if ceiling <= 0 || ceiling >= 100 {
		ceiling = DefaultCeiling
	}
	if tickEvery <= 0 {
		tickEvery = DefaultTickEvery
	}
	return &Estimator{
		ceiling:   ceiling,
		tickEvery: tickEvery,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		onChange:  onChange,
	}
}

// Start resets progress to 0 and begins ticking. Calling Start while a
// previous stage is still ticking restarts the estimator for the new stage.
func (e *Estimator) Start() {
	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
	}
	e.stop = make(chan struct{})
	stop := e.stop
	e.percent = 0
	e.elapsed = 0
	e.running = true
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)

	go e.loop(stop)
}

func (e *Estimator) loop(stop chan struct{}) {
	tick := time.NewTicker(e.tickEvery)
	second := time.NewTicker(1 * time.Second)
	defer tick.Stop()
	defer second.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			e.Tick()
		case <-second.C:
			e.mu.Lock()
			if !e.running {
				e.mu.Unlock()
				return
			}
			e.elapsed++
			snap := e.snapshotLocked()
			e.mu.Unlock()
			e.notify(snap)
		}
	}
}

// Tick advances progress by a small random increment, never past the
// ceiling while the stage is still running.
func (e *Estimator) Tick() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	step := minStep + e.rng.Intn(maxStep-minStep+1)
	e.percent += step
	if e.percent > e.ceiling {
		e.percent = e.ceiling
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
}

// Finish snaps progress to 100 and stops the tickers. Safe to call once per
// Start; extra calls are no-ops.
func (e *Estimator) Finish() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.percent = 100
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
}

func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Estimator) snapshotLocked() Snapshot {
	return Snapshot{
		Percent:        e.percent,
		ElapsedSeconds: e.elapsed,
		Running:        e.running,
	}
}

func (e *Estimator) notify(snap Snapshot) {
	if e.onChange != nil {
		e.onChange(snap)
	}
}
