package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

// Job is one scheduled run. It receives the scheduler's context.
type Job func(ctx context.Context) error

// Scheduler runs Job on the UPDATE_CRON schedule (with seconds). A run that
// is still going when the next tick fires makes that tick a no-op.
type Scheduler struct {
	Log    *logger.Entry
	Config *Config
	Job    Job
}

// Start blocks until ctx is done, then waits for a running job to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Config == nil {
		s.Config = GetConfig()
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.Log))),
	)
	if _, err := c.AddFunc(s.Config.UpdateCron, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("register update job %q: %w", s.Config.UpdateCron, err)
	}

	if s.Config.RunOnStart {
		s.run(ctx)
	}

	c.Start()
	s.Log.WithField("schedule", s.Config.UpdateCron).Info("Scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.Log.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.Log.Info("Job started")

	if err := s.Job(ctx); err != nil {
		s.Log.WithError(err).WithField("duration", time.Since(start).String()).Error("Job failed")
		return
	}
	s.Log.WithField("duration", time.Since(start).String()).Info("Job completed")
}
