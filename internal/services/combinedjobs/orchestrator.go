package combinedjobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/BearBump/SellerFlow/internal/storage/pgqueue"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrJobNotFound: задачи нет или она чужого тенанта. Эти случаи не различаются.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidPayload: data задачи в очереди не разбирается.
	ErrInvalidPayload = errors.New("invalid job payload")
)

type Queue interface {
	Start(ctx context.Context) error
	EnsureQueue(ctx context.Context, name string) error
	Send(ctx context.Context, name string, opts pgqueue.SendOptions) (*models.QueueJob, error)
	FindActiveByTenant(ctx context.Context, name, tenantID string) (*models.QueueJob, error)
	GetByID(ctx context.Context, name, id string) (*models.QueueJob, error)
	Fetch(ctx context.Context, name string, batch int) ([]*models.QueueJob, error)
	Complete(ctx context.Context, name, id string, output json.RawMessage) error
	Fail(ctx context.Context, name, id string, output json.RawMessage) error
	ExpireActive(ctx context.Context, name string) (int64, error)
	Purge(ctx context.Context, name string) (int64, error)
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Orchestrator: не более одной незавершённой задачи на тенанта в очереди.
type Orchestrator struct {
	queue     Queue
	queueName string
	mode      models.AggregationMode
	logger    *zap.Logger

	expireIn  time.Duration
	retention time.Duration

	cache    BytesCache
	cacheTTL time.Duration

	startMu sync.Mutex
	started bool

	newID func() string
}

func New(queue Queue, queueName string, mode models.AggregationMode, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		queue:     queue,
		queueName: queueName,
		mode:      mode,
		logger:    logger.With(zap.String("queue", queueName)),
		expireIn:  time.Hour,
		retention: 30 * time.Minute,
		cacheTTL:  30 * time.Minute,
		newID:     uuid.NewString,
	}
}

func (o *Orchestrator) WithSettings(expireIn, retention time.Duration) *Orchestrator {
	if expireIn > 0 {
		o.expireIn = expireIn
	}
	if retention > 0 {
		o.retention = retention
	}
	return o
}

// WithSnapshotCache: снапшоты завершённых задач кладутся в кэш по событию из Kafka.
func (o *Orchestrator) WithSnapshotCache(cache BytesCache, ttl time.Duration) *Orchestrator {
	o.cache = cache
	if ttl > 0 {
		o.cacheTTL = ttl
	}
	return o
}

func (o *Orchestrator) QueueName() string            { return o.queueName }
func (o *Orchestrator) Mode() models.AggregationMode { return o.mode }

// ensureStarted лениво поднимает очередь. Неудачный старт повторится при следующем вызове.
func (o *Orchestrator) ensureStarted(ctx context.Context) error {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.started {
		return nil
	}
	if err := o.queue.Start(ctx); err != nil {
		return errors.Wrap(err, "start queue")
	}
	if err := o.queue.EnsureQueue(ctx, o.queueName); err != nil {
		return errors.Wrap(err, "ensure queue")
	}
	o.started = true
	o.logger.Info("job queue started")
	return nil
}

// Start ставит задачу или возвращает уже существующую незавершённую задачу тенанта.
// Проверка и вставка не атомарны: при одновременных запросах возможен дубль.
func (o *Orchestrator) Start(ctx context.Context, tenantID string, chatID int64, lang string) (*models.JobStartResult, error) {
	if tenantID == "" {
		return nil, errors.Wrap(ErrInvalidPayload, "empty tenant id")
	}
	if err := o.ensureStarted(ctx); err != nil {
		return nil, err
	}

	existing, err := o.queue.FindActiveByTenant(ctx, o.queueName, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "find active job")
	}
	if existing != nil {
		status := models.JobStatusQueued
		if existing.State == models.QueueStateActive {
			status = models.JobStatusRunning
		}
		o.logger.Info("job reused", zap.String("tenant_id", tenantID), zap.String("job_id", existing.ID))
		return &models.JobStartResult{JobID: existing.ID, Status: status, CreatedAt: existing.CreatedAt, Reused: true}, nil
	}

	data, err := json.Marshal(models.CombinedJobPayload{TenantID: tenantID, ChatID: chatID, LanguageCode: lang})
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	job, err := o.queue.Send(ctx, o.queueName, pgqueue.SendOptions{
		ID:                   o.newID(),
		Data:                 data,
		RetryLimit:           0,
		ExpireIn:             o.expireIn,
		RetentionAfterFinish: o.retention,
	})
	if err != nil {
		return nil, errors.Wrap(err, "send job")
	}
	o.logger.Info("job queued", zap.String("tenant_id", tenantID), zap.String("job_id", job.ID))
	return &models.JobStartResult{JobID: job.ID, Status: models.JobStatusQueued, CreatedAt: job.CreatedAt}, nil
}

// GetSnapshot отдаёт состояние задачи только владельцу-тенанту.
func (o *Orchestrator) GetSnapshot(ctx context.Context, tenantID, jobID string) (*models.JobSnapshot, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, ErrJobNotFound
	}
	if snap, ok := o.cachedSnapshot(ctx, tenantID, jobID); ok {
		return snap, nil
	}
	return o.loadSnapshot(ctx, tenantID, jobID)
}

func (o *Orchestrator) loadSnapshot(ctx context.Context, tenantID, jobID string) (*models.JobSnapshot, error) {
	if err := o.ensureStarted(ctx); err != nil {
		return nil, err
	}
	job, err := o.queue.GetByID(ctx, o.queueName, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	payload, err := decodePayload(job.Data)
	if err != nil {
		o.logger.Debug("job payload rejected", zap.String("job_id", jobID), zap.Error(err))
		return nil, ErrJobNotFound
	}
	if payload.TenantID != tenantID {
		return nil, ErrJobNotFound
	}
	return o.snapshotOf(job, payload), nil
}

func (o *Orchestrator) snapshotOf(job *models.QueueJob, payload models.CombinedJobPayload) *models.JobSnapshot {
	snap := &models.JobSnapshot{
		JobID:     job.ID,
		TenantID:  payload.TenantID,
		Status:    mapState(job.State),
		CreatedAt: job.CreatedAt,
		StartedAt: job.StartedAt,
	}
	switch snap.Status {
	case models.JobStatusCompleted:
		snap.FinishedAt = job.CompletedAt
		res, err := decodeResult(job.Output)
		if err != nil {
			o.logger.Warn("job output not decoded", zap.String("job_id", job.ID), zap.Error(err))
			break
		}
		snap.Result = res
	case models.JobStatusFailed:
		snap.FinishedAt = job.CompletedAt
		msg := decodeError(job.Output)
		snap.Error = &msg
	}
	return snap
}

type cachedSnapshot struct {
	TenantID string             `json:"tenantId"`
	Snapshot models.JobSnapshot `json:"snapshot"`
}

func (o *Orchestrator) snapshotKey(jobID string) string {
	return "snapshot:" + o.queueName + ":" + jobID
}

func (o *Orchestrator) cachedSnapshot(ctx context.Context, tenantID, jobID string) (*models.JobSnapshot, bool) {
	if o.cache == nil {
		return nil, false
	}
	b, ok, err := o.cache.Get(ctx, o.snapshotKey(jobID))
	if err != nil {
		o.logger.Warn("snapshot cache get", zap.String("job_id", jobID), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var c cachedSnapshot
	if err := json.Unmarshal(b, &c); err != nil || c.TenantID != tenantID {
		return nil, false
	}
	c.Snapshot.TenantID = c.TenantID
	return &c.Snapshot, true
}

// CacheSnapshot сохраняет снапшот завершённой задачи. Незавершённые не кэшируются.
func (o *Orchestrator) CacheSnapshot(ctx context.Context, tenantID, jobID string) error {
	if o.cache == nil {
		return nil
	}
	snap, err := o.loadSnapshot(ctx, tenantID, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !snap.Terminal() {
		return nil
	}
	b, err := json.Marshal(cachedSnapshot{TenantID: tenantID, Snapshot: *snap})
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	return o.cache.Set(ctx, o.snapshotKey(jobID), b, o.cacheTTL)
}
