package broker

import (
	"context"
	"fmt"
	"outreach/pkg/config"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/IBM/sarama"
)

const (
	_consumerGroup = "outreach-consumer-group"
)

// KafkaBroker holds the consumer group reading provider notifications and
// the sync producer publishing dead-lettered events to the parking lot.
type KafkaBroker struct {
	ConsumerTopic   string
	ParkingLotTopic string
	ConsumerGroup   sarama.ConsumerGroup
	SyncProducer    sarama.SyncProducer
	Brokers         []string
	conf            config.Kafka
	logger          *zap.SugaredLogger
}

func NewKafkaBroker(conf config.Kafka, logger *zap.SugaredLogger) (*KafkaBroker, error) {
	logger.Debugf("creating consumer group for brokers: %s", conf.Brokers)
	consumerGroup, err := newConsumerGroup(conf)
	if err != nil {
		logger.Errorf("consumer group creation failed: %v", err)
		return nil, fmt.Errorf("%w", err)
	}

	logger.Debugf("creating producer for brokers: %s", conf.Brokers)
	syncProducer, err := newSyncProducer(conf)
	if err != nil {
		logger.Errorf("producer creation failed: %v", err)
		return nil, fmt.Errorf("%w", err)
	}

	brokers := strings.Split(conf.Brokers, ",")
	broker := &KafkaBroker{
		ConsumerTopic:   conf.ReaderTopic,
		ParkingLotTopic: conf.ParkingLotTopic,
		ConsumerGroup:   consumerGroup,
		SyncProducer:    syncProducer,
		Brokers:         brokers,
		conf:            conf,
		logger:          logger,
	}
	logger.Infof("kafka broker ready. consumer topic: %s, parking lot topic: %s", broker.ConsumerTopic, broker.ParkingLotTopic)
	return broker, nil
}

// HealthCheck verifies broker reachability without Describe-level ACLs:
// Partitions() needs Describe rights which restricted producer/consumer
// service accounts often lack. Successful construction of the producer
// and consumer group already proves their Write/Read rights; here we only
// confirm the cluster answers a minimal client.
func (kb *KafkaBroker) HealthCheck(ctx context.Context) error {
	if kb.SyncProducer == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}

	if kb.ConsumerGroup == nil {
		return fmt.Errorf("kafka consumer group is not initialized")
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 2 * time.Second
	cfg.Net.ReadTimeout = 2 * time.Second
	cfg.Net.WriteTimeout = 2 * time.Second
	cfg.Metadata.Timeout = 2 * time.Second
	cfg.Metadata.Retry.Max = 1

	// Same SASL settings as the producer (writer credentials take priority).
	if kb.conf.WriterUsr != "" && kb.conf.WriterUsrPwd != "" {
		applySASLConfig(cfg, kb.conf, true)
	} else {
		applySASLConfig(cfg, kb.conf, false)
	}

	client, err := sarama.NewClient(kb.Brokers, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka brokers: %w", err)
	}
	defer client.Close()

	brokers := client.Brokers()
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers available")
	}

	return nil
}

// applySASLConfig wires SASL credentials into cfg.
// useWriterCreds selects WriterUsr/WriterUsrPwd over ReaderUsr/ReaderUsrPwd.
func applySASLConfig(cfg *sarama.Config, conf config.Kafka, useWriterCreds bool) {
	if useWriterCreds {
		if conf.WriterUsr != "" && conf.WriterUsrPwd != "" {
			cfg.Net.SASL.User = conf.WriterUsr
			cfg.Net.SASL.Password = conf.WriterUsrPwd
			cfg.Net.SASL.Enable = true
			cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	} else {
		if conf.ReaderUsr != "" && conf.ReaderUsrPwd != "" {
			cfg.Net.SASL.User = conf.ReaderUsr
			cfg.Net.SASL.Password = conf.ReaderUsrPwd
			cfg.Net.SASL.Enable = true
			cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}
}

func EnableSaramaZapLogs(base *zap.SugaredLogger) {
	logger := base.Named("sarama")
	sarama.Logger = &zapSarama{logger}
	logger.Info("sarama logger initialized")
}

type zapSarama struct{ l *zap.SugaredLogger }

func (z *zapSarama) Print(v ...interface{})                 { z.l.Debug(v...) }
func (z *zapSarama) Printf(format string, v ...interface{}) { z.l.Debugf(format, v...) }
func (z *zapSarama) Println(v ...interface{})               { z.l.Debug(v...) }

func newConsumerGroup(conf config.Kafka) (sarama.ConsumerGroup, error) {
	kafkaConfig := sarama.NewConfig()
	applySASLConfig(kafkaConfig, conf, false) // reader credentials

	brokers := strings.Split(conf.Brokers, ",")

	consumer, err := sarama.NewConsumerGroup(brokers, _consumerGroup, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer group: %w", err)
	}

	return consumer, nil
}

func newSyncProducer(conf config.Kafka) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()

	kafkaConfig.Net.DialTimeout = 10 * time.Second
	kafkaConfig.Net.ReadTimeout = 15 * time.Second
	kafkaConfig.Net.WriteTimeout = 15 * time.Second
	kafkaConfig.Net.KeepAlive = 30 * time.Second

	kafkaConfig.Metadata.Timeout = 10 * time.Second
	kafkaConfig.Metadata.Retry.Max = 1
	kafkaConfig.Metadata.Retry.Backoff = 1 * time.Second
	kafkaConfig.Metadata.RefreshFrequency = 1 * time.Minute

	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 0
	kafkaConfig.Producer.Timeout = 10 * time.Second
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	applySASLConfig(kafkaConfig, conf, true) // writer credentials

	brokers := strings.Split(conf.Brokers, ",")

	producer, err := sarama.NewSyncProducer(brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka sync producer: %w", err)
	}

	return producer, nil
}
