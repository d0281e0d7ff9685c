package listener

import (
	"context"
	"encoding/json"
	"outreach/internal/application/entity"
	use_cases "outreach/internal/application/use-cases"
	"outreach/pkg/metrics"
	"outreach/pkg/validator"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaBrokerConsumer turns provider notification messages into outbox
// events. Malformed messages are logged and acknowledged; the topic is
// not the system of record, the outbox table is.
type KafkaBrokerConsumer struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
	m       *metrics.Metrics
}

func NewKafkaBrokerConsumer(usecase use_cases.UseCaser, logger *zap.SugaredLogger, m *metrics.Metrics) *KafkaBrokerConsumer {
	return &KafkaBrokerConsumer{
		logger:  logger,
		usecase: usecase,
		m:       m,
	}
}

func (k *KafkaBrokerConsumer) Setup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("Kafka setup success")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("setup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("Kafka cleanup success")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("cleanup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()

	for msg := range claim.Messages() {
		if k.m != nil {
			k.m.Kafka.ConsumerInFlight.WithLabelValues(topic).Inc()
		}
		start := time.Now()
		k.logger.Debugf("Message topic:%q partition:%d offset:%d", msg.Topic, msg.Partition, msg.Offset)

		k.handleMessage(context.Background(), msg.Value)
		if k.m != nil {
			k.m.Kafka.ConsumerMessagesTotal.WithLabelValues(topic).Inc()
			k.m.Kafka.ConsumerProcessDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
			k.m.Kafka.ConsumerInFlight.WithLabelValues(topic).Dec()
		}

		session.MarkMessage(msg, "")
	}

	return nil
}

func (k *KafkaBrokerConsumer) handleMessage(ctx context.Context, raw []byte) {
	var n entity.ProviderNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		k.logger.Errorw("unparseable provider notification", "err", err, "payload", string(raw))
		return
	}

	if err := validator.Validate.Struct(n); err != nil {
		k.logger.Errorw("invalid provider notification", "err", err, "type", n.Type, "messageId", n.MessageID)
		return
	}

	eventID, err := k.usecase.IngestProviderNotification(ctx, n)
	if err != nil {
		k.logger.Errorw("ingest provider notification failed", "err", err, "messageId", n.MessageID)
		return
	}
	k.logger.Debugf("[event: %s] provider notification ingested type=%s", eventID, n.Type)
}
