package entrypoint

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/cascadeflow/cascade/flow"
)

// Scheduler runs pipelines on cron schedules. Each firing executes the
// pipeline on a fresh registry seeded with the trigger values; failures are
// logged, never fatal to the scheduler.
type Scheduler struct {
	cron *cron.Cron
	cfg  flow.Config
}

func NewScheduler(cfg flow.Config) *Scheduler {
	return &Scheduler{cron: cron.New(), cfg: cfg}
}

// Add schedules an action under a standard 5-field cron spec. The seed
// values are copied into the registry of every firing.
func (s *Scheduler) Add(spec string, action flow.Action, seed flow.Values) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return 0, fmt.Errorf("%w: cron spec %q: %v", flow.ErrNotProperlyConfigured, spec, err)
	}
	return s.cron.AddFunc(spec, func() {
		data := flow.CreateWith(s.cfg, seed)
		out, err := flow.ExecuteAsync(context.Background(), action, data)
		if err != nil {
			s.cfg.Logger().Error("scheduled pipeline failed",
				"action", action.Name(), "spec", spec, "error", err)
			return
		}
		if err := out.WaitFutures(context.Background()); err != nil {
			s.cfg.Logger().Error("scheduled pipeline futures failed",
				"action", action.Name(), "spec", spec, "error", err)
		}
	})
}

// Start launches the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish and shuts the scheduler down.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
