package main

import (
	"context"
	"net"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/api"
	"github.com/vultisig/trigger-plugin/config"
	"github.com/vultisig/trigger-plugin/internal/ethereum"
	"github.com/vultisig/trigger-plugin/internal/governor"
	"github.com/vultisig/trigger-plugin/internal/quote"
	"github.com/vultisig/trigger-plugin/internal/scheduler"
	"github.com/vultisig/trigger-plugin/internal/signer"
	"github.com/vultisig/trigger-plugin/service"
	"github.com/vultisig/trigger-plugin/storage"
	"github.com/vultisig/trigger-plugin/storage/postgres"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		panic(err)
	}
	logger := logrus.New()

	sdClient, err := statsd.New(net.JoinHostPort(cfg.Datadog.Host, cfg.Datadog.Port))
	if err != nil {
		panic(err)
	}
	redisStorage, err := storage.NewRedisStorage(cfg.Redis)
	if err != nil {
		panic(err)
	}
	db, err := postgres.NewPostgresBackend(context.Background(), cfg.Server.Database.DSN, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	engine, err := newEngine(cfg, redisStorage, logger)
	if err != nil {
		logger.Fatalf("failed to create engine: %v", err)
	}
	orders, err := service.NewOrderService(db, logger)
	if err != nil {
		logger.Fatalf("failed to create order service: %v", err)
	}

	if cfg.Server.SchedulerEnabled() {
		redisOptions := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Username: cfg.Redis.User,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		client := asynq.NewClient(redisOptions)
		inspector := asynq.NewInspector(redisOptions)
		defer func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Error("fail to close asynq client")
			}
		}()
		sched, err := scheduler.New(cfg.Scheduler, db, client, inspector, logger)
		if err != nil {
			logger.Fatalf("failed to create scheduler: %v", err)
		}
		if err := sched.Start(context.Background()); err != nil {
			logger.Fatalf("failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	server := api.NewServer(cfg.Server, engine, orders, sdClient, logger)
	if err := server.StartServer(); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
}

func newEngine(cfg *config.Config, counter governor.Counter, logger logrus.FieldLogger) (*service.Engine, error) {
	quotes, err := quote.NewOneInchClient(cfg.Quote, logger)
	if err != nil {
		return nil, err
	}
	chain, err := ethereum.Dial(cfg.Chains, logger)
	if err != nil {
		return nil, err
	}
	submitter, err := signer.NewClient(cfg.Signer, logger)
	if err != nil {
		return nil, err
	}
	var gov service.Governor
	if cfg.Governor.MaxExecutions > 0 {
		g, err := governor.NewFixedWindow(counter, cfg.Governor, logger)
		if err != nil {
			return nil, err
		}
		gov = g
	}
	return service.NewEngine(cfg.Engine.EngineConfig, quotes, chain, submitter, gov, logger)
}
