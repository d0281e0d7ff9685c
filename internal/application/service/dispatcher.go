package service

import (
	"context"
	"fmt"
	"outreach/internal/application/entity"
	"time"
)

// EventHandler processes one claimed outbox event. A nil return marks
// the event PROCESSED, any error marks it FAILED and parks it.
type EventHandler func(ctx context.Context, e *entity.Event) error

// ProcessEvents claims a batch of due PENDING events and runs each one
// through its registered handler. Failures are isolated per event: one
// bad payload never blocks the rest of the batch.
func (s *ServiceImpl) ProcessEvents(ctx context.Context) error {
	events, err := s.tx.ClaimEventBatch(ctx, s.dispatcher)
	if err != nil {
		return fmt.Errorf("claim event batch: %w", err)
	}

	s.m.Dispatcher.BatchSize.Observe(float64(len(events)))
	if len(events) == 0 {
		return nil
	}

	s.logger.Debugf("dispatching %d events", len(events))
	for i := range events {
		s.processEvent(ctx, &events[i])
	}

	return nil
}

func (s *ServiceImpl) processEvent(ctx context.Context, e *entity.Event) {
	handler, ok := s.handlers[e.Type]
	if !ok {
		// Unknown types are terminal: retrying can never succeed, so
		// fail fast and park instead of leaving the row stuck.
		s.logger.Errorw("no handler for event type", "event", e.ID, "type", e.Type)
		s.failEvent(ctx, e, fmt.Sprintf("no handler registered for type %q", e.Type))
		s.m.Dispatcher.EventsTotal.WithLabelValues(string(e.Type), "no_handler").Inc()
		return
	}

	start := time.Now()
	err := handler(ctx, e)
	s.m.Dispatcher.HandlerDuration.WithLabelValues(string(e.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Errorw("event handler failed", "event", e.ID, "type", e.Type, "err", err)
		s.failEvent(ctx, e, err.Error())
		s.m.Dispatcher.EventsTotal.WithLabelValues(string(e.Type), "failed").Inc()
		return
	}

	if err := s.repo.MarkEventProcessed(ctx, e.ID); err != nil {
		// The lease will expire and the event will be retried, which is
		// safe because handlers are idempotent per provider message id.
		s.logger.Errorw("mark event processed failed", "event", e.ID, "err", err)
		return
	}

	s.m.Dispatcher.EventsTotal.WithLabelValues(string(e.Type), "processed").Inc()
	s.logger.Debugf("[event: %s] processed type=%s", e.ID, e.Type)
}

func (s *ServiceImpl) failEvent(ctx context.Context, e *entity.Event, reason string) {
	if err := s.repo.MarkEventFailed(ctx, e.ID, reason); err != nil {
		s.logger.Errorw("mark event failed errored", "event", e.ID, "err", err)
		return
	}

	e.Status = entity.EventFailed
	e.LastError = reason
	if s.parkingLot == nil {
		return
	}
	if err := s.parkingLot.PublishDeadLetter(ctx, e); err != nil {
		// The authoritative FAILED row is already in the database, the
		// parking lot copy is best effort.
		s.logger.Errorw("publish dead letter failed", "event", e.ID, "err", err)
	}
}

// ReclaimLeases returns events whose worker died mid-flight back to
// PENDING once their lease has expired.
func (s *ServiceImpl) ReclaimLeases(ctx context.Context) error {
	n, err := s.repo.ReclaimExpiredLeases(ctx)
	if err != nil {
		return fmt.Errorf("reclaim expired leases: %w", err)
	}
	if n > 0 {
		s.m.Dispatcher.LeasesReclaimed.Add(float64(n))
		s.logger.Infof("reclaimed %d expired event leases", n)
	}
	return nil
}
