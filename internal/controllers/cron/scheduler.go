package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type Job interface {
	Run(ctx context.Context)
}

type Scheduler struct {
	c   *cron.Cron
	ctx context.Context
}

func NewScheduler(ctx context.Context) *Scheduler {
	// Standard cron format with a seconds field, plus descriptors
	// (@every, @hourly, ...) for interval specs.
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)),
	)
	return &Scheduler{c: c, ctx: ctx}
}

func (s *Scheduler) Add(spec string, job Job) (cron.EntryID, error) {
	return s.c.AddFunc(spec, func() {
		// A run never outlives the pass budget; the next tick picks up
		// whatever was left unclaimed.
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Minute)
		defer cancel()
		job.Run(ctx)
	})
}

func (s *Scheduler) Start() {
	s.c.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}
