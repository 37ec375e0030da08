package combinedjobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/SellerFlow/internal/broker/messages"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/BearBump/SellerFlow/internal/storage/pgqueue"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Aggregator interface {
	Aggregate(ctx context.Context, tenantID string, mode models.AggregationMode, lang string) (*models.AggregationResult, error)
}

type Notifier interface {
	SendDocuments(ctx context.Context, chatID int64, orderList, stickers models.Document, lang string) error
	SendFailure(ctx context.Context, chatID int64, message, lang string) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Worker выбирает задачи своей очереди по одной и доводит каждую до конца.
type Worker struct {
	orch     *Orchestrator
	engine   Aggregator
	notifier Notifier
	events   EventPublisher
	logger   *zap.Logger

	pollInterval        time.Duration
	concurrency         int
	batchSize           int
	maintenanceInterval time.Duration
	publishAttempts     int

	triggerCh chan struct{}
	now       func() time.Time

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalFetched        atomic.Int64
	totalCompleted      atomic.Int64
	totalFailed         atomic.Int64
	totalExpired        atomic.Int64
	totalLate           atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

// NewWorker: events может быть nil, тогда события о завершении не публикуются.
func NewWorker(orch *Orchestrator, engine Aggregator, notifier Notifier, events EventPublisher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		orch:                orch,
		engine:              engine,
		notifier:            notifier,
		events:              events,
		logger:              logger.With(zap.String("queue", orch.QueueName())),
		pollInterval:        2 * time.Second,
		concurrency:         1,
		batchSize:           1,
		maintenanceInterval: time.Minute,
		publishAttempts:     3,
		triggerCh:           make(chan struct{}, 1),
		now:                 func() time.Time { return time.Now().UTC() },
		startedAtUnixNano:   time.Now().UTC().UnixNano(),
	}
}

func (w *Worker) WithSettings(pollInterval time.Duration, concurrency, batchSize int, maintenanceInterval time.Duration) *Worker {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if maintenanceInterval > 0 {
		w.maintenanceInterval = maintenanceInterval
	}
	return w
}

// Trigger запускает внеочередной цикл выборки, не блокируясь.
func (w *Worker) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	Queue          string     `json:"queue"`
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalFetched   int64      `json:"totalFetched"`
	TotalCompleted int64      `json:"totalCompleted"`
	TotalFailed    int64      `json:"totalFailed"`
	TotalExpired   int64      `json:"totalExpired"`
	TotalLate      int64      `json:"totalLate"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		Queue:          w.orch.QueueName(),
		StartedAt:      time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalFetched:   w.totalFetched.Load(),
		TotalCompleted: w.totalCompleted.Load(),
		TotalFailed:    w.totalFailed.Load(),
		TotalExpired:   w.totalExpired.Load(),
		TotalLate:      w.totalLate.Load(),
		InFlight:       w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Worker) setLastError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()
	m := time.NewTicker(w.maintenanceInterval)
	defer m.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.runOnce(ctx)
		case <-w.triggerCh:
			w.runOnce(ctx)
		case <-m.C:
			w.maintain(ctx)
		}
	}
}

// runOnce разбирает очередь, пока в ней есть задачи. Каждый слот берёт batchSize задач.
func (w *Worker) runOnce(ctx context.Context) {
	w.lastCycleUnixNano.Store(w.now().UnixNano())
	if err := w.orch.ensureStarted(ctx); err != nil {
		w.logger.Error("queue not started", zap.Error(err))
		w.setLastError(err)
		return
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()
	for ctx.Err() == nil {
		sem <- struct{}{}
		jobs, err := w.orch.queue.Fetch(ctx, w.orch.QueueName(), w.batchSize)
		if err != nil {
			<-sem
			if ctx.Err() == nil {
				w.logger.Error("fetch jobs", zap.Error(err))
				w.setLastError(err)
			}
			return
		}
		if len(jobs) == 0 {
			<-sem
			return
		}
		w.totalFetched.Add(int64(len(jobs)))

		wg.Add(1)
		w.inFlight.Add(int64(len(jobs)))
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			for _, job := range jobs {
				w.process(ctx, job)
				w.inFlight.Add(-1)
			}
		}()
	}
}

// process не прерывается отменой ctx: начатая задача доводится до конца.
func (w *Worker) process(ctx context.Context, job *models.QueueJob) {
	ctx = context.WithoutCancel(ctx)
	log := w.logger.With(zap.String("job_id", job.ID))
	log.Info("job started")

	payload, output, err := w.handle(ctx, job)
	state := models.JobStatusCompleted
	if err != nil {
		state = models.JobStatusFailed
		w.totalFailed.Add(1)
		w.setLastError(err)
		log.Error("job failed", zap.Error(err))

		out, _ := json.Marshal(map[string]string{"message": err.Error()})
		if ferr := w.orch.queue.Fail(ctx, w.orch.QueueName(), job.ID, out); ferr != nil {
			w.finishRejected(log, ferr, state)
			return
		}
	} else {
		if cerr := w.orch.queue.Complete(ctx, w.orch.QueueName(), job.ID, output); cerr != nil {
			w.finishRejected(log, cerr, state)
			return
		}
		w.totalCompleted.Add(1)
		log.Info("job completed")
	}

	if payload.TenantID != "" {
		w.publishFinished(ctx, messages.JobFinished{
			JobID:      job.ID,
			Queue:      w.orch.QueueName(),
			TenantID:   payload.TenantID,
			State:      state,
			FinishedAt: w.now(),
		})
	}
}

// finishRejected: очередь не приняла исход. Если задачу уже закрыло обслуживание
// по expireIn, в очереди остаётся failed "job expired", хотя получатель мог уже
// получить документы. Событие не публикуем: снапшот берётся из очереди.
func (w *Worker) finishRejected(log *zap.Logger, err error, outcome string) {
	w.setLastError(err)
	if errors.Is(err, pgqueue.ErrJobNotActive) {
		w.totalLate.Add(1)
		log.Warn("job finished after expiry, queue state kept",
			zap.String("outcome", outcome), zap.Error(err))
		return
	}
	log.Error("mark job "+outcome, zap.Error(err))
}

// handle собирает документы, отправляет их получателю и возвращает output задачи.
// Ошибка уведомления только логируется и не меняет исход.
func (w *Worker) handle(ctx context.Context, job *models.QueueJob) (models.CombinedJobPayload, json.RawMessage, error) {
	payload, err := decodePayload(job.Data)
	if err != nil {
		return models.CombinedJobPayload{}, nil, err
	}
	log := w.logger.With(zap.String("job_id", job.ID), zap.String("tenant_id", payload.TenantID))

	res, err := w.engine.Aggregate(ctx, payload.TenantID, w.orch.Mode(), payload.LanguageCode)
	if err != nil {
		if nerr := w.notifier.SendFailure(ctx, payload.ChatID, err.Error(), payload.LanguageCode); nerr != nil {
			log.Warn("failure notification not sent", zap.Error(nerr))
		}
		return payload, nil, err
	}

	if nerr := w.notifier.SendDocuments(ctx, payload.ChatID, res.OrderList, res.Stickers, payload.LanguageCode); nerr != nil {
		log.Warn("documents not sent", zap.Error(nerr))
	}

	out, err := json.Marshal(resultOf(res))
	if err != nil {
		return payload, nil, errors.Wrap(err, "marshal result")
	}
	log.Info("aggregation done",
		zap.Int("shops", res.ProcessedShops),
		zap.Int("failed_shops", res.FailedShops),
		zap.Int("orders", res.TotalOrders),
	)
	return payload, out, nil
}

func resultOf(res *models.AggregationResult) models.JobResult {
	return models.JobResult{
		Summary: models.JobSummary{
			Mode:                res.Mode,
			ProcessedShops:      res.ProcessedShops,
			SuccessShops:        res.SuccessShops,
			SkippedShops:        res.SkippedShops,
			FailedShops:         res.FailedShops,
			TotalOrders:         res.TotalOrders,
			MissingProductCards: res.MissingProductCards,
			MissingOrderFacts:   res.MissingOrderFacts,
		},
		Documents: models.JobDocuments{
			OrderList: models.JobDocument{FileName: res.OrderList.FileName, Base64: base64.StdEncoding.EncodeToString(res.OrderList.Data)},
			Stickers:  models.JobDocument{FileName: res.Stickers.FileName, Base64: base64.StdEncoding.EncodeToString(res.Stickers.Data)},
		},
	}
}

func (w *Worker) publishFinished(ctx context.Context, ev messages.JobFinished) {
	if w.events == nil {
		return
	}
	var err error
	for i := 0; i < w.publishAttempts; i++ {
		if err = w.events.PublishJSON(ctx, ev.TenantID, ev); err == nil {
			return
		}
		time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
	}
	w.logger.Warn("job finished event not published", zap.String("job_id", ev.JobID), zap.Error(err))
}

// maintain переводит просроченные active-задачи в failed и удаляет отжившие.
func (w *Worker) maintain(ctx context.Context) {
	if err := w.orch.ensureStarted(ctx); err != nil {
		w.logger.Error("queue not started", zap.Error(err))
		return
	}
	expired, err := w.orch.queue.ExpireActive(ctx, w.orch.QueueName())
	if err != nil {
		w.logger.Error("expire jobs", zap.Error(err))
		w.setLastError(err)
	} else if expired > 0 {
		w.totalExpired.Add(expired)
		w.logger.Warn("jobs expired", zap.Int64("count", expired))
	}
	purged, err := w.orch.queue.Purge(ctx, w.orch.QueueName())
	if err != nil {
		w.logger.Error("purge jobs", zap.Error(err))
		w.setLastError(err)
	} else if purged > 0 {
		w.logger.Info("jobs purged", zap.Int64("count", purged))
	}
}
