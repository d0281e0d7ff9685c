package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"outreach/internal/application/common"
	"outreach/internal/application/entity"
	"outreach/pkg/broker"
	"outreach/pkg/metrics"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher parks dead-lettered outbox events on a Kafka topic for
// operator replay.
type Publisher interface {
	PublishDeadLetter(ctx context.Context, e *entity.Event) error
	HealthCheck(ctx context.Context) error
}

type KafkaPublisher struct {
	broker      *broker.KafkaBroker
	logger      *zap.SugaredLogger
	maxAttempts int
	m           *metrics.Metrics
}

func NewPublisher(broker *broker.KafkaBroker, logger *zap.SugaredLogger, maxAttempts int, m *metrics.Metrics) *KafkaPublisher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &KafkaPublisher{
		broker:      broker,
		logger:      logger,
		maxAttempts: maxAttempts,
		m:           m,
	}
}

func (p *KafkaPublisher) HealthCheck(ctx context.Context) error {
	if p.broker == nil {
		return errors.New("kafka broker is not initialized")
	}
	return p.broker.HealthCheck(ctx)
}

func (p *KafkaPublisher) PublishDeadLetter(ctx context.Context, e *entity.Event) error {
	topic := p.broker.ParkingLotTopic

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic:     topic,
			Key:       sarama.StringEncoder(e.ID.String()),
			Value:     sarama.ByteEncoder(payload),
			Timestamp: time.Now(),
		}

		t0 := time.Now()
		part, off, err := p.broker.SyncProducer.SendMessage(msg)
		rt := time.Since(t0)

		if err == nil {
			if p.m != nil {
				p.m.Kafka.ProducerOperationsTotal.WithLabelValues(topic, "success").Inc()
			}
			p.logger.Infof("[event: %s] parked topic=%s partition=%d offset=%d attempt=%d rt=%s",
				e.ID, topic, part, off, attempt, rt)
			return nil
		}

		lastErr = err

		if kerr, ok := err.(sarama.KError); ok && isPermanent(kerr) {
			if p.m != nil {
				p.m.Kafka.ProducerOperationsTotal.WithLabelValues(topic, "permanent").Inc()
			}
			p.logger.Errorf("[event: %s] permanent kafka error attempt=%d rt=%s kafka_error=%s code=%d",
				e.ID, attempt, rt, kerr.Error(), int16(kerr))
			return fmt.Errorf("permanent kafka error: %w", kerr)
		}

		p.logger.Warnf("[event: %s] retryable kafka error attempt=%d rt=%s err=%v", e.ID, attempt, rt, err)

		if attempt == p.maxAttempts {
			break
		}

		if err := common.SleepCtx(ctx, common.NextBackoffWithJitter(attempt-1)); err != nil {
			if p.m != nil {
				p.m.Kafka.ProducerOperationsTotal.WithLabelValues(topic, "canceled").Inc()
			}
			return err
		}
	}

	if p.m != nil {
		p.m.Kafka.ProducerOperationsTotal.WithLabelValues(topic, "failed").Inc()
	}
	p.logger.Errorf("[event: %s] park failed after %d attempts: %v", e.ID, p.maxAttempts, lastErr)
	return fmt.Errorf("park failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func isPermanent(k sarama.KError) bool {
	switch k {
	case sarama.ErrTopicAuthorizationFailed,
		sarama.ErrClusterAuthorizationFailed,
		sarama.ErrInvalidRequest,
		sarama.ErrInvalidMessage,
		sarama.ErrMessageSizeTooLarge,
		sarama.ErrSASLAuthenticationFailed:
		return true
	default:
		return false
	}
}
