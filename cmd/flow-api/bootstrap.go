package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/SellerFlow/config"
	jobsapi "github.com/BearBump/SellerFlow/internal/api/jobs_api"
	"github.com/BearBump/SellerFlow/internal/broker/kafka"
	"github.com/BearBump/SellerFlow/internal/cache/rediscache"
	"github.com/BearBump/SellerFlow/internal/logger"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/BearBump/SellerFlow/internal/services/combinedjobs"
	"github.com/BearBump/SellerFlow/internal/storage/pgqueue"
	"go.uber.org/zap"
)

type flowAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     flowAPIOpts
	api      *jobsapi.JobsAPI
	warmers  map[string]snapshotWarmer
	consumer *kafka.Consumer
	ready    func(ctx context.Context) error
	log      *zap.Logger
	closers  []func()
}

func mustBootstrapFlowAPI() *flowAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log, err := logger.New(cfg.Logger, "flow-api")
	if err != nil {
		panic(err)
	}

	// к БД подключаемся лениво: очередь стартует при первом запросе
	q, err := pgqueue.New(cfg.Database.ConnString(), cfg.Flow.QueueSchema)
	if err != nil {
		panic(err)
	}

	client := rediscache.NewClient(rediscache.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rc := rediscache.New(client, cfg.Redis.KeyPrefix)

	combined := combinedjobs.New(q, cfg.Flow.CombinedQueueName, models.AggregationModeLatest, log).
		WithSettings(cfg.Flow.JobExpire(), cfg.Flow.JobRetention()).
		WithSnapshotCache(rc, cfg.Flow.SnapshotCacheTTL())
	waiting := combinedjobs.New(q, cfg.Flow.WaitingQueueName, models.AggregationModeWaiting, log).
		WithSettings(cfg.Flow.JobExpire(), cfg.Flow.JobRetention()).
		WithSnapshotCache(rc, cfg.Flow.SnapshotCacheTTL())

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.JobFinishedTopicName, cfg.Flow.KafkaConsumerGroup, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &flowAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: flowAPIOpts{
			httpAddr:      cfg.Flow.HTTPAddr,
			topic:         cfg.Kafka.JobFinishedTopicName,
			consumerGroup: cfg.Flow.KafkaConsumerGroup,
		},
		api: jobsapi.New(combined, waiting, log),
		warmers: map[string]snapshotWarmer{
			combined.QueueName(): combined,
			waiting.QueueName():  waiting,
		},
		consumer: consumer,
		ready: func(ctx context.Context) error {
			if err := q.Ping(ctx); err != nil {
				return err
			}
			return rc.Ping(ctx)
		},
		log: log,
		closers: []func(){
			func() { _ = consumer.Close() },
			func() { _ = client.Close() },
			q.Close,
		},
	}
}

func (a *flowAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
	_ = a.log.Sync()
}

func (a *flowAPIApp) Run() error {
	return runFlowAPI(a.ctx, a.opts, a.api, a.warmers, a.consumer, a.ready, a.log)
}
