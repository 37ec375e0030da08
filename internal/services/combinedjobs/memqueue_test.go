package combinedjobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/BearBump/SellerFlow/internal/storage/pgqueue"
	"github.com/pkg/errors"
)

// memQueue повторяет переходы состояний pgqueue в памяти.
type memQueue struct {
	mu       sync.Mutex
	jobs     map[string]*models.QueueJob
	order    []string
	queues   map[string]bool
	startErr error

	starts  int
	ensures int
	sends   int
	gets    int
	expired int64
	purged  int64
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: map[string]*models.QueueJob{}, queues: map[string]bool{}}
}

func (q *memQueue) Start(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.starts++
	return q.startErr
}

func (q *memQueue) EnsureQueue(_ context.Context, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensures++
	q.queues[name] = true
	return nil
}

func (q *memQueue) Send(_ context.Context, name string, opts pgqueue.SendOptions) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.queues[name] {
		return nil, errors.Errorf("queue %q does not exist", name)
	}
	q.sends++
	j := &models.QueueJob{
		ID:         opts.ID,
		Queue:      name,
		State:      models.QueueStateCreated,
		Data:       opts.Data,
		RetryLimit: opts.RetryLimit,
		ExpireIn:   opts.ExpireIn,
		CreatedAt:  time.Now().UTC(),
	}
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)
	return clone(j), nil
}

// put кладёт задачу в обход Send, например с битым data.
func (q *memQueue) put(j *models.QueueJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)
}

func (q *memQueue) job(id string) *models.QueueJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		return clone(j)
	}
	return nil
}

func (q *memQueue) FindActiveByTenant(_ context.Context, name, tenantID string) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		j := q.jobs[id]
		if j.Queue != name || !isActive(j.State) {
			continue
		}
		var p struct {
			TenantID string `json:"tenantId"`
		}
		if json.Unmarshal(j.Data, &p) == nil && p.TenantID == tenantID {
			return clone(j), nil
		}
	}
	return nil, nil
}

func (q *memQueue) GetByID(_ context.Context, name, id string) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gets++
	j, ok := q.jobs[id]
	if !ok || j.Queue != name {
		return nil, nil
	}
	return clone(j), nil
}

func (q *memQueue) Fetch(_ context.Context, name string, batch int) ([]*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.QueueJob
	for _, id := range q.order {
		if len(out) == batch {
			break
		}
		j := q.jobs[id]
		if j.Queue != name || (j.State != models.QueueStateCreated && j.State != models.QueueStateRetry) {
			continue
		}
		now := time.Now().UTC()
		j.State = models.QueueStateActive
		j.StartedAt = &now
		out = append(out, clone(j))
	}
	return out, nil
}

func (q *memQueue) finish(name, id, state string, output json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.Queue != name || j.State != models.QueueStateActive {
		return errors.Wrapf(pgqueue.ErrJobNotActive, "job %s", id)
	}
	now := time.Now().UTC()
	j.State = state
	j.Output = output
	j.CompletedAt = &now
	return nil
}

func (q *memQueue) Complete(_ context.Context, name, id string, output json.RawMessage) error {
	return q.finish(name, id, models.QueueStateCompleted, output)
}

func (q *memQueue) Fail(_ context.Context, name, id string, output json.RawMessage) error {
	return q.finish(name, id, models.QueueStateFailed, output)
}

func (q *memQueue) ExpireActive(context.Context, string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.expired, nil
}

// expireNow делает то же, что ExpireActive с одной протухшей задачей.
func (q *memQueue) expireNow(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.jobs[id]
	now := time.Now().UTC()
	j.State = models.QueueStateFailed
	j.Output = json.RawMessage(`{"message":"job expired"}`)
	j.CompletedAt = &now
}

func (q *memQueue) Purge(context.Context, string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.purged, nil
}

func (q *memQueue) states() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.jobs {
		out = append(out, j.State)
	}
	sort.Strings(out)
	return out
}

func isActive(state string) bool {
	for _, s := range models.QueueActiveStates {
		if s == state {
			return true
		}
	}
	return false
}

func clone(j *models.QueueJob) *models.QueueJob {
	c := *j
	return &c
}
