package main

import (
	"context"

	"github.com/BearBump/SellerFlow/config"
	"github.com/BearBump/SellerFlow/internal/broker/kafka"
	"github.com/BearBump/SellerFlow/internal/cache/rediscache"
	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
	"github.com/BearBump/SellerFlow/internal/integrations/marketplace/fake"
	"github.com/BearBump/SellerFlow/internal/integrations/marketplace/wbhttp"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/BearBump/SellerFlow/internal/notify/telegram"
	"github.com/BearBump/SellerFlow/internal/services/aggregation"
	"github.com/BearBump/SellerFlow/internal/services/combinedjobs"
	"github.com/BearBump/SellerFlow/internal/services/documents"
	"github.com/BearBump/SellerFlow/internal/storage/pgqueue"
	"github.com/BearBump/SellerFlow/internal/storage/pgstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type workerStorage struct {
	shops aggregation.ShopRepository
	cards aggregation.CardRepository
	queue combinedjobs.Queue
	ping  func(ctx context.Context) error
}

type workerCache struct {
	bytes   documents.BytesCache
	limiter marketplace.RateLimiter
	ping    func(ctx context.Context) error
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (workerStorage, func(), error)
	newCache       func(cfg *config.Config) (workerCache, func())
	newProducer    func(cfg *config.Config) (combinedjobs.EventPublisher, func())
	newMarketplace func(cfg *config.Config) marketplace.Factory
	newNotifier    func(cfg *config.Config, log *zap.Logger) combinedjobs.Notifier
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			st, err := pgstore.New(cfg.Database.ConnString())
			if err != nil {
				return workerStorage{}, nil, err
			}
			// очередь живёт в той же БД и использует тот же пул
			q := pgqueue.NewWithPool(st.Pool(), cfg.Flow.QueueSchema)
			return workerStorage{shops: st, cards: st, queue: q, ping: st.Ping}, st.Close, nil
		},
		newCache: func(cfg *config.Config) (workerCache, func()) {
			client := rediscache.NewClient(rediscache.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			rc := rediscache.New(client, cfg.Redis.KeyPrefix)
			return workerCache{
				bytes:   rc,
				limiter: rediscache.NewRateLimiter(client, cfg.Redis.KeyPrefix),
				ping:    rc.Ping,
			}, func() { _ = client.Close() }
		},
		newProducer: func(cfg *config.Config) (combinedjobs.EventPublisher, func()) {
			p := kafka.NewProducer(cfg.Kafka.Brokers(), cfg.Kafka.JobFinishedTopicName)
			return p, func() { _ = p.Close() }
		},
		newMarketplace: func(cfg *config.Config) marketplace.Factory {
			// fake: детерминированный демо-клиент без сети
			if cfg.Marketplace.Mode == "fake" {
				return fake.Factory{Prefix: cfg.Marketplace.FakeSupplyPrefix}
			}
			return wbhttp.Factory{
				BaseURL:        cfg.Marketplace.BaseURL,
				SandboxBaseURL: cfg.Marketplace.SandboxBaseURL,
				Timeout:        cfg.Marketplace.Timeout(),
			}
		},
		newNotifier: func(cfg *config.Config, log *zap.Logger) combinedjobs.Notifier {
			if cfg.Telegram.BotToken == "" {
				return telegram.NewLogSender(log)
			}
			return telegram.New(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.Timeout())
		},
	}
}

func newEngine(cfg *config.Config, st workerStorage, cache workerCache, clients marketplace.Factory, log *zap.Logger) (*aggregation.Engine, error) {
	var normalizer documents.Normalizer = documents.NewImagingNormalizer(cfg.Documents.ImageMaxPx, cfg.Documents.JPEGQuality)
	if cfg.Documents.DisableNormalization {
		normalizer = documents.PassThrough{}
	}
	images := documents.NewImageFetcher(cache.bytes, normalizer, log).
		WithSettings(cfg.Documents.ImageTimeout(), cfg.Documents.ImageRetries, cfg.Documents.ImageCacheTTL())
	renderer := documents.New(images, log).
		WithFont(cfg.Documents.FontPath).
		WithSettings(cfg.Documents.RenderConcurrency, cfg.Documents.JPEGQuality)

	if cache.limiter != nil {
		clients = marketplace.NewRateLimitedFactory(clients, cache.limiter, int64(cfg.Marketplace.RateLimitPerMinute), log)
	}

	loc, err := cfg.Aggregation.Location()
	if err != nil {
		return nil, err
	}
	settings := aggregation.Settings{
		SupplyPageSize: cfg.Aggregation.SupplyPageSize,
		LatestCount:    cfg.Aggregation.LatestCount,
		WaitingCount:   cfg.Aggregation.WaitingCount,
		OrderLookback:  cfg.Aggregation.OrderLookback(),
		OrderPageSize:  cfg.Aggregation.OrderPageSize,
		StatusBatch:    cfg.Aggregation.StatusBatch,
		StickerBatch:   cfg.Aggregation.StickerBatch,
		MaxPages:       cfg.Aggregation.MaxPages,
		Location:       loc,
	}
	return aggregation.New(st.shops, st.cards, clients, renderer, log).WithSettings(settings), nil
}

func newWorkers(cfg *config.Config, st workerStorage, engine combinedjobs.Aggregator, notifier combinedjobs.Notifier, events combinedjobs.EventPublisher, log *zap.Logger) []*combinedjobs.Worker {
	queues := []struct {
		name string
		mode models.AggregationMode
	}{
		{cfg.Flow.CombinedQueueName, models.AggregationModeLatest},
		{cfg.Flow.WaitingQueueName, models.AggregationModeWaiting},
	}
	workers := make([]*combinedjobs.Worker, 0, len(queues))
	for _, q := range queues {
		orch := combinedjobs.New(st.queue, q.name, q.mode, log).
			WithSettings(cfg.Flow.JobExpire(), cfg.Flow.JobRetention())
		w := combinedjobs.NewWorker(orch, engine, notifier, events, log).
			WithSettings(cfg.Flow.PollInterval(), cfg.Flow.WorkerConcurrency, cfg.Flow.WorkerBatchSize, cfg.Flow.MaintenanceInterval())
		workers = append(workers, w)
	}
	return workers
}

func RunFlowWorker(ctx context.Context, cfg *config.Config, f workerFactories, log *zap.Logger) error {
	st, closeDB, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}
	cache, closeCache := f.newCache(cfg)
	if closeCache != nil {
		defer closeCache()
	}
	events, closeProducer := f.newProducer(cfg)
	if closeProducer != nil {
		defer closeProducer()
	}

	engine, err := newEngine(cfg, st, cache, f.newMarketplace(cfg), log)
	if err != nil {
		return err
	}
	workers := newWorkers(cfg, st, engine, f.newNotifier(cfg, log), events, log)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr: cfg.Flow.WorkerHTTPAddr,
			workers:  workers,
			cfg:      cfg,
			ready:    readiness(st.ping, cache.ping),
		})
	})
	log.Info("flow worker started", zap.Int("queues", len(workers)))
	return g.Wait()
}

func readiness(checks ...func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
