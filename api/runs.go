package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/warp/violation-sync/store/sqlite"
	"github.com/warp/violation-sync/violations"
)

// Sweep triggers recorded in sweep_runs.
const (
	TriggerScheduler = "scheduler"
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
)

// RunStore persists sweep run history.
type RunStore interface {
	SaveSweepRun(ctx context.Context, r sqlite.SweepRun) error
	GetSweepRuns(ctx context.Context, status string, limit int) ([]sqlite.SweepRun, error)
}

// Sweeper is satisfied by *violations.Engine.
type Sweeper interface {
	Sweep(ctx context.Context) (violations.SweepResult, error)
}

// SweepRunner runs sweeps and records each attempt. Concurrent callers in the
// same process share one in-flight sweep; the engine's RunGuard covers the
// cross-process case.
type SweepRunner struct {
	Engine Sweeper
	Runs   RunStore

	group singleflight.Group
}

func NewSweepRunner(engine Sweeper, runs RunStore) *SweepRunner {
	return &SweepRunner{Engine: engine, Runs: runs}
}

// Run sweeps once. The returned run is the one that actually executed,
// which may have been started by another caller.
func (sr *SweepRunner) Run(ctx context.Context, trigger string) (sqlite.SweepRun, error) {
	v, err, shared := sr.group.Do(violations.SweepKey, func() (any, error) {
		return sr.run(ctx, trigger)
	})
	if shared {
		log.Printf("[Sweep] %s trigger joined an in-flight sweep", trigger)
	}
	run, _ := v.(sqlite.SweepRun)
	return run, err
}

func (sr *SweepRunner) run(ctx context.Context, trigger string) (sqlite.SweepRun, error) {
	run := sqlite.SweepRun{
		ID:        fmt.Sprintf("sweep-%s", uuid.Must(uuid.NewV7())),
		Trigger:   trigger,
		Status:    sqlite.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	sr.save(ctx, run)

	result, err := sr.Engine.Sweep(ctx)

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Result = result
	switch {
	case errors.Is(err, violations.ErrSweepInProgress):
		run.Status = sqlite.RunSkipped
		run.Error = err.Error()
	case err != nil:
		run.Status = sqlite.RunFailed
		run.Error = err.Error()
	default:
		run.Status = sqlite.RunCompleted
	}
	sr.save(ctx, run)
	return run, err
}

// save is best effort; history must not fail a sweep.
func (sr *SweepRunner) save(ctx context.Context, run sqlite.SweepRun) {
	if sr.Runs == nil {
		return
	}
	if err := sr.Runs.SaveSweepRun(context.WithoutCancel(ctx), run); err != nil {
		log.Printf("[Sweep] Failed to record run %s: %v", run.ID, err)
	}
}
