package cron

import (
	"context"
	"fmt"
	use_cases "outreach/internal/application/use-cases"
	"outreach/pkg/config"

	"go.uber.org/zap"
)

type Controller struct {
	scheduler *Scheduler
	logger    *zap.SugaredLogger
}

func NewController(ctx context.Context, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		scheduler: NewScheduler(ctx),
		logger:    logger,
	}
}

// RegisterJobs wires the three periodic jobs. Each spec is either a
// cron expression or an interval ("@every 10s"); unset specs fall back
// to conservative defaults.
func (c *Controller) RegisterJobs(usecase use_cases.UseCaser, conf config.Cron) error {
	jobs := []struct {
		name     string
		spec     string
		fallback string
		job      Job
	}{
		{"dispatch", conf.DispatchSpec, "@every 10s", NewDispatchJob(usecase, c.logger)},
		{"outreach", conf.OutreachSpec, "@every 1m", NewOutreachJob(usecase, c.logger)},
		{"lease reaper", conf.ReaperSpec, "@every 1m", NewReaperJob(usecase, c.logger)},
	}

	for _, j := range jobs {
		spec := j.spec
		if spec == "" {
			spec = j.fallback
			c.logger.Warnf("no spec configured for %s job, using default: %s", j.name, spec)
		}
		entryID, err := c.scheduler.Add(spec, j.job)
		if err != nil {
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
		c.logger.Infof("registered %s job with ID %d, spec %q", j.name, entryID, spec)
	}

	return nil
}

func (c *Controller) Start() {
	c.logger.Info("starting cron scheduler")
	c.scheduler.Start()
}

func (c *Controller) Stop() {
	c.logger.Info("stopping cron scheduler")
	c.scheduler.Stop()
	c.logger.Info("cron scheduler stopped")
}
