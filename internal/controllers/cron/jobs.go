package cron

import (
	"context"
	use_cases "outreach/internal/application/use-cases"

	"go.uber.org/zap"
)

// DispatchJob drains due outbox events through their handlers.
type DispatchJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewDispatchJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *DispatchJob {
	return &DispatchJob{usecase: usecase, logger: logger}
}

func (j *DispatchJob) Run(ctx context.Context) {
	defer recoverJob(j.logger, "dispatch")
	j.usecase.DispatchEvents(ctx)
}

// OutreachJob sends the due steps of active enrollments.
type OutreachJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewOutreachJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *OutreachJob {
	return &OutreachJob{usecase: usecase, logger: logger}
}

func (j *OutreachJob) Run(ctx context.Context) {
	defer recoverJob(j.logger, "outreach")
	j.usecase.RunOutreachQueue(ctx)
}

// ReaperJob returns events abandoned by crashed workers to PENDING.
type ReaperJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewReaperJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *ReaperJob {
	return &ReaperJob{usecase: usecase, logger: logger}
}

func (j *ReaperJob) Run(ctx context.Context) {
	defer recoverJob(j.logger, "lease reaper")
	j.usecase.ReclaimLeases(ctx)
}

// A panicking job must not take down the whole scheduler process.
func recoverJob(logger *zap.SugaredLogger, name string) {
	if r := recover(); r != nil {
		logger.Errorf("panic in %s job: %v", name, r)
	}
}
