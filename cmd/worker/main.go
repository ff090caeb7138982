package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/config"
	"github.com/vultisig/trigger-plugin/internal/ethereum"
	"github.com/vultisig/trigger-plugin/internal/governor"
	"github.com/vultisig/trigger-plugin/internal/quote"
	"github.com/vultisig/trigger-plugin/internal/signer"
	"github.com/vultisig/trigger-plugin/internal/tasks"
	"github.com/vultisig/trigger-plugin/service"
	"github.com/vultisig/trigger-plugin/storage"
	"github.com/vultisig/trigger-plugin/storage/postgres"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		panic(err)
	}
	logger := logrus.StandardLogger()

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
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("fail to close database")
		}
	}()

	engine, err := newEngine(cfg, redisStorage, logger)
	if err != nil {
		logger.Fatalf("failed to create engine: %v", err)
	}

	var archive service.ReceiptStore
	if cfg.Archive.Enabled() {
		a, err := storage.NewReceiptArchive(cfg.Archive)
		if err != nil {
			logger.Fatalf("failed to create receipt archive: %v", err)
		}
		archive = a
	}

	worker, err := service.NewWorker(db, engine, redisStorage, archive, sdClient,
		time.Duration(cfg.Engine.LockTTLSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatalf("failed to create worker: %v", err)
	}

	redisOptions := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	srv := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:      logger,
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeOrderTrigger, worker.HandleOrderTrigger)
	if err := srv.Run(mux); err != nil {
		panic(fmt.Errorf("could not run server: %w", err))
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
