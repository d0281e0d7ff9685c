package application

import (
	"context"
	"fmt"
	"outreach/internal/application/common"
	"outreach/internal/application/repo"
	"outreach/internal/application/service"
	use_cases "outreach/internal/application/use-cases"
	"outreach/internal/controllers/cron"
	"outreach/internal/controllers/handler"
	"outreach/internal/controllers/listener"
	"outreach/internal/transport/mailer"
	"outreach/internal/transport/producer"
	"outreach/pkg/broker"
	"outreach/pkg/config"
	"outreach/pkg/db"
	"outreach/pkg/httpclient"
	"outreach/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	postgres       *db.Postgres
	httpServer     *fiber.App
	kafka          *broker.KafkaBroker
	cronController *cron.Controller
}

func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	httpServer *fiber.App,
	kafkaBroker *broker.KafkaBroker,
	m *metrics.Metrics) *App {
	logger.Infof("Starting outreach service version %s", common.Version)

	go func() {
		<-ctx.Done()
		logger.Info("closing consumer group")
		kafkaBroker.ConsumerGroup.Close()
		logger.Info("closing consumer group: done")
	}()

	store := repo.NewRepo(postgres, logger)
	tx := repo.NewTransactions(store, logger)
	parkingLot := producer.NewPublisher(kafkaBroker, logger, conf.Broker.Kafka.MaxAttempts, m)

	httpClient := httpclient.NewClient(conf.HTTPClient)
	mailClient := mailer.NewClient(
		httpclient.NewRetryClient(httpClient, conf.HTTPClient.MaxRetries, logger),
		conf.Provider, logger, m,
	)

	srv := service.NewService(store, tx, mailClient, parkingLot, logger, conf, m)
	uc := use_cases.NewUseCase(srv, logger, conf)
	h := handler.NewOutreachHandler(uc, logger)
	r := handler.NewRouter(h, httpServer, conf, logger)

	cronController := cron.NewController(ctx, logger)
	if err := cronController.RegisterJobs(uc, conf.Cron); err != nil {
		logger.Fatalf("failed to register cron jobs: %v", err)
	}
	cronController.Start()

	r.RegisterRouter()

	app := &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		postgres:       postgres,
		httpServer:     httpServer,
		kafka:          kafkaBroker,
		cronController: cronController,
	}

	go app.runConsumer(ctx, logger, uc, kafkaBroker, m)

	return app
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

func (a *App) Shutdown() error {
	if a.cronController != nil {
		a.cronController.Stop()
	}
	return a.httpServer.Shutdown()
}

func (a *App) runConsumer(ctx context.Context, logger *zap.SugaredLogger, usecase use_cases.UseCaser, kafkaBroker *broker.KafkaBroker, m *metrics.Metrics) {
	logger.Infof("starting consumer for topic: %s", kafkaBroker.ConsumerTopic)

	kafkaBrokerConsumer := listener.NewKafkaBrokerConsumer(usecase, logger, m)

	for {
		logger.Debug("joining consumer group...")
		err := kafkaBroker.ConsumerGroup.Consume(ctx, []string{kafkaBroker.ConsumerTopic}, kafkaBrokerConsumer)
		if err != nil {
			logger.Errorf("consumer error: %v", err)
		}
		if ctx.Err() != nil {
			logger.Info("consumer stopped by context")
			return
		}
	}
}
