/*
scheduler.go - Automated sweep and queue drain scheduler

PURPOSE:
  Periodically reconciles local case records with the external source and
  drains the enrichment queue, so neither depends on someone pressing a
  button.

DESIGN:
  - Runs a background goroutine with two independent intervals
  - Sweeps immediately on start, then every SweepInterval
  - Drains every DrainInterval, at most DrainBatch records per drain
  - Every sweep goes through SweepRunner, so runs are recorded for audit
    and a manual trigger landing mid-sweep joins it
  - A zero interval disables that job

CONFIGURATION:
  - SweepInterval: schedule.sweep (default: 1 hour)
  - DrainInterval: schedule.drain (default: 10 minutes)
  - DrainBatch:    queue.batch    (default: 25)

USAGE:
  scheduler := NewSweepScheduler(runner, drainer)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - runs.go: SweepRunner
  - handlers.go: TriggerSweep and DrainQueue endpoints (manual runs)
  - violations/enrichment.go: Drainer
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/violation-sync/violations"
)

// Scheduler defaults.
const (
	DefaultSweepInterval = 1 * time.Hour
	DefaultDrainInterval = 10 * time.Minute
	DefaultDrainBatch    = 25
)

// SweepScheduler runs sweeps and queue drains on a timer.
type SweepScheduler struct {
	Runner        *SweepRunner
	Drainer       *violations.Drainer
	SweepInterval time.Duration
	DrainInterval time.Duration
	DrainBatch    int
	Enabled       bool

	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewSweepScheduler creates a scheduler with default intervals.
func NewSweepScheduler(runner *SweepRunner, drainer *violations.Drainer) *SweepScheduler {
	return &SweepScheduler{
		Runner:        runner,
		Drainer:       drainer,
		SweepInterval: DefaultSweepInterval,
		DrainInterval: DefaultDrainInterval,
		DrainBatch:    DefaultDrainBatch,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stop = make(chan struct{})
	s.running = true
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started: sweep every %v, drain every %v (batch %d)",
		s.SweepInterval, s.DrainInterval, s.DrainBatch)
}

// Stop stops the scheduler and waits for the current job to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stop)
	s.cancel()
	s.wg.Wait()
	s.running = false
	log.Println("[Scheduler] Stopped")
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	sweepC, stopSweep := tick(s.SweepInterval)
	defer stopSweep()
	drainC, stopDrain := tick(s.DrainInterval)
	defer stopDrain()

	// Run immediately on start
	if sweepC != nil {
		s.sweep(s.ctx)
	}

	for {
		select {
		case <-sweepC:
			s.sweep(s.ctx)
		case <-drainC:
			s.drain(s.ctx)
		case <-s.stop:
			return
		}
	}
}

// tick returns a nil channel for a non-positive interval, which never fires.
func tick(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (s *SweepScheduler) sweep(ctx context.Context) {
	if s.Runner == nil {
		return
	}
	run, err := s.Runner.Run(ctx, TriggerScheduler)
	if err != nil {
		if violations.IsBusy(err) {
			log.Printf("[Scheduler] Sweep skipped: another sweep is running")
			return
		}
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Sweep %s: %d matched, %d created, %d updated, %d errors",
		run.ID, run.Result.Matched, run.Result.Created, run.Result.Updated, run.Result.Errors)
}

func (s *SweepScheduler) drain(ctx context.Context) {
	if s.Drainer == nil {
		return
	}
	if _, err := s.Drainer.Drain(ctx, s.DrainBatch); err != nil {
		log.Printf("[Scheduler] Drain failed: %v", err)
	}
}
