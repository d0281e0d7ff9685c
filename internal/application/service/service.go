package service

import (
	"context"
	"encoding/json"
	"fmt"
	"outreach/internal/application/entity"
	"outreach/internal/application/repo"
	"outreach/internal/transport/mailer"
	"outreach/internal/transport/producer"
	"outreach/pkg/config"
	"outreach/pkg/metrics"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// QueueResult aggregates one ProcessOutreachQueue call for observability.
type QueueResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

type Service interface {
	// outbox
	Emit(ctx context.Context, typ entity.EventType, payload any, metadata map[string]string) (uuid.UUID, error)
	IngestProviderNotification(ctx context.Context, n entity.ProviderNotification) (uuid.UUID, error)
	ProcessEvents(ctx context.Context) error
	ReclaimLeases(ctx context.Context) error

	// drip scheduler
	ProcessOutreachQueue(ctx context.Context) (QueueResult, error)

	// lead scoring
	UpdateLeadScore(ctx context.Context, leadID uuid.UUID, delta int, tr *StageTransition) error

	// campaign management
	CreateCampaign(ctx context.Context, req entity.CampaignRequest) (*entity.Campaign, error)
	UpdateCampaign(ctx context.Context, id uuid.UUID, req entity.CampaignUpdateRequest) (*entity.Campaign, error)
	AddLeadsToCampaign(ctx context.Context, campaignID uuid.UUID, leadIDs []uuid.UUID) (int, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*entity.Campaign, error)
	GetCampaignAnalytics(ctx context.Context, id uuid.UUID) (*entity.CampaignAnalytics, error)

	HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error)
}

type ServiceImpl struct {
	repo       repo.Repo
	tx         repo.Transactions
	mailer     mailer.Mailer
	parkingLot producer.Publisher
	logger     *zap.SugaredLogger
	dispatcher config.DispatcherConfig
	scheduler  config.SchedulerConfig
	m          *metrics.Metrics
	handlers   map[entity.EventType]EventHandler

	// now is swapped for a fixed clock in tests.
	now func() time.Time
}

func NewService(
	repo repo.Repo,
	tx repo.Transactions,
	mail mailer.Mailer,
	parkingLot producer.Publisher,
	logger *zap.SugaredLogger,
	conf *config.Config,
	m *metrics.Metrics,
) *ServiceImpl {
	s := &ServiceImpl{
		repo:       repo,
		tx:         tx,
		mailer:     mail,
		parkingLot: parkingLot,
		logger:     logger,
		dispatcher: withDispatcherDefaults(conf.Dispatcher),
		scheduler:  withSchedulerDefaults(conf.Scheduler),
		m:          m,
		now:        time.Now,
	}
	s.handlers = buildEngagementHandlers(s)
	return s
}

func withDispatcherDefaults(c config.DispatcherConfig) config.DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Lease <= 0 {
		c.Lease = 2 * time.Minute
	}
	return c
}

func withSchedulerDefaults(c config.SchedulerConfig) config.SchedulerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Emit appends a PENDING outbox row. When the caller runs inside an
// ambient transaction, the insert joins it, so the event commits or
// rolls back together with the business write that produced it.
func (s *ServiceImpl) Emit(ctx context.Context, typ entity.EventType, payload any, metadata map[string]string) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("new event id: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal event payload: %w", err)
	}

	evt := &entity.Event{
		ID:      id,
		Type:    typ,
		Payload: raw,
		Status:  entity.EventPending,
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal event metadata: %w", err)
		}
		evt.Metadata = meta
	}

	if err := s.repo.InsertEvent(ctx, evt); err != nil {
		s.logger.Errorf("[event: %s] emit failed: %v", id, err)
		return uuid.Nil, err
	}

	s.logger.Debugf("[event: %s] emitted type=%s", id, typ)
	return id, nil
}

// IngestProviderNotification translates a provider callback (webhook or
// Kafka) into an outbox event.
func (s *ServiceImpl) IngestProviderNotification(ctx context.Context, n entity.ProviderNotification) (uuid.UUID, error) {
	occurredAt := n.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	payload := entity.EngagementPayload{
		MessageID:  n.MessageID,
		OccurredAt: occurredAt,
		Reason:     n.Reason,
	}

	return s.Emit(ctx, entity.EventType(n.Type), payload, map[string]string{"source": "provider"})
}

func (s *ServiceImpl) HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error) {
	dbErr := s.repo.HealthCheck(ctx)
	dbHealthy = dbErr == nil

	kafkaErr := s.parkingLot.HealthCheck(ctx)
	kafkaHealthy = kafkaErr == nil

	// Only report an error when both sides are down.
	if !dbHealthy && !kafkaHealthy {
		return dbHealthy, kafkaHealthy, fmt.Errorf("database: %v, kafka: %v", dbErr, kafkaErr)
	}

	return dbHealthy, kafkaHealthy, nil
}

func metaJSON(kv map[string]string) json.RawMessage {
	raw, err := json.Marshal(kv)
	if err != nil {
		return nil
	}
	return raw
}
