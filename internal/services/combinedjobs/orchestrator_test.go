package combinedjobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/SellerFlow/internal/cache/rediscache"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testQueue = "combined-pdf"

func newTestOrchestrator(q *memQueue) *Orchestrator {
	return New(q, testQueue, models.AggregationModeLatest, nil)
}

func TestOrchestrator_StartReusesActiveJob(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	o := newTestOrchestrator(q)

	first, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusQueued, first.Status)
	require.False(t, first.Reused)
	_, err = uuid.Parse(first.JobID)
	require.NoError(t, err)

	second, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
	require.Equal(t, models.JobStatusQueued, second.Status)
	require.True(t, second.Reused)

	_, err = q.Fetch(ctx, testQueue, 1)
	require.NoError(t, err)
	third, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)
	require.Equal(t, first.JobID, third.JobID)
	require.Equal(t, models.JobStatusRunning, third.Status)

	other, err := o.Start(ctx, "tenant-2", 7, "en")
	require.NoError(t, err)
	require.NotEqual(t, first.JobID, other.JobID)

	require.Equal(t, 2, q.sends)
	require.Equal(t, 1, q.starts)
	require.Equal(t, 1, q.ensures)

	job := q.job(first.JobID)
	require.JSONEq(t, `{"tenantId":"tenant-1","chatId":42,"languageCode":"ru"}`, string(job.Data))
	require.Equal(t, 0, job.RetryLimit)
	require.Equal(t, time.Hour, job.ExpireIn)
}

func TestOrchestrator_StartAfterTerminalCreatesNewJob(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	o := newTestOrchestrator(q)

	first, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)
	_, err = q.Fetch(ctx, testQueue, 1)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, testQueue, first.JobID, json.RawMessage(`{}`)))

	second, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)
	require.NotEqual(t, first.JobID, second.JobID)
	require.False(t, second.Reused)
}

func TestOrchestrator_LazyStartRetriedAfterError(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	q.startErr = errors.New("connection refused")
	o := newTestOrchestrator(q)

	_, err := o.Start(ctx, "tenant-1", 1, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "start queue")

	q.startErr = nil
	_, err = o.Start(ctx, "tenant-1", 1, "")
	require.NoError(t, err)
	_, err = o.Start(ctx, "tenant-2", 1, "")
	require.NoError(t, err)
	require.Equal(t, 2, q.starts)
	require.Equal(t, 1, q.ensures)
}

func TestOrchestrator_StartEmptyTenant(t *testing.T) {
	_, err := newTestOrchestrator(newMemQueue()).Start(context.Background(), "", 1, "ru")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestOrchestrator_GetSnapshot_NotFound(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	o := newTestOrchestrator(q)

	started, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)

	badChat := uuid.NewString()
	q.put(&models.QueueJob{ID: badChat, Queue: testQueue, State: models.QueueStateCreated, Data: json.RawMessage(`{"tenantId":"tenant-1","chatId":"42"}`)})
	fractional := uuid.NewString()
	q.put(&models.QueueJob{ID: fractional, Queue: testQueue, State: models.QueueStateCreated, Data: json.RawMessage(`{"tenantId":"tenant-1","chatId":4.5}`)})
	noTenant := uuid.NewString()
	q.put(&models.QueueJob{ID: noTenant, Queue: testQueue, State: models.QueueStateCreated, Data: json.RawMessage(`{"chatId":42}`)})
	otherQueue := uuid.NewString()
	q.put(&models.QueueJob{ID: otherQueue, Queue: "waiting-pdf", State: models.QueueStateCreated, Data: json.RawMessage(`{"tenantId":"tenant-1","chatId":42}`)})

	cases := []struct {
		name   string
		tenant string
		jobID  string
	}{
		{"absent", "tenant-1", uuid.NewString()},
		{"not a uuid", "tenant-1", "job-1"},
		{"other tenant", "tenant-2", started.JobID},
		{"string chat id", "tenant-1", badChat},
		{"fractional chat id", "tenant-1", fractional},
		{"missing tenant", "tenant-1", noTenant},
		{"other queue", "tenant-1", otherQueue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.GetSnapshot(ctx, tc.tenant, tc.jobID)
			require.ErrorIs(t, err, ErrJobNotFound)
		})
	}

	snap, err := o.GetSnapshot(ctx, "tenant-1", started.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusQueued, snap.Status)
	require.Nil(t, snap.StartedAt)
	require.Nil(t, snap.FinishedAt)
	require.Nil(t, snap.Result)
	require.Nil(t, snap.Error)
}

func TestOrchestrator_GetSnapshot_CompletedOutputShapes(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	o := newTestOrchestrator(q)

	result := `{"summary":{"mode":"latest","processedShops":2,"successShops":1,"skippedShops":1,"failedShops":0,"totalOrders":3,"missingProductCards":0,"missingOrderFacts":1},` +
		`"documents":{"orderList":{"fileName":"a.pdf","base64":"JVBERg=="},"stickers":{"fileName":"b.pdf","base64":"JVBERg=="}}}`

	for name, output := range map[string]string{
		"bare":    result,
		"wrapped": `{"result":` + result + `}`,
	} {
		t.Run(name, func(t *testing.T) {
			id := uuid.NewString()
			done := time.Now().UTC()
			q.put(&models.QueueJob{
				ID: id, Queue: testQueue, State: models.QueueStateCompleted,
				Data:        json.RawMessage(`{"tenantId":"tenant-1","chatId":42}`),
				Output:      json.RawMessage(output),
				StartedAt:   &done,
				CompletedAt: &done,
			})

			snap, err := o.GetSnapshot(ctx, "tenant-1", id)
			require.NoError(t, err)
			require.Equal(t, models.JobStatusCompleted, snap.Status)
			require.NotNil(t, snap.FinishedAt)
			require.NotNil(t, snap.Result)
			require.Equal(t, 3, snap.Result.Summary.TotalOrders)
			require.Equal(t, 1, snap.Result.Summary.MissingOrderFacts)
			require.Equal(t, "a.pdf", snap.Result.Documents.OrderList.FileName)
			require.Equal(t, "JVBERg==", snap.Result.Documents.Stickers.Base64)
		})
	}
}

func TestOrchestrator_GetSnapshot_CompletedWithoutResult(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	core, logs := observer.New(zap.WarnLevel)
	o := New(q, testQueue, models.AggregationModeLatest, zap.New(core))

	for _, output := range []string{``, `null`, `{}`, ` { } `, `{"result":{}}`, `[1]`} {
		id := uuid.NewString()
		done := time.Now().UTC()
		q.put(&models.QueueJob{
			ID: id, Queue: testQueue, State: models.QueueStateCompleted,
			Data:        json.RawMessage(`{"tenantId":"tenant-1","chatId":42}`),
			Output:      json.RawMessage(output),
			CompletedAt: &done,
		})

		snap, err := o.GetSnapshot(ctx, "tenant-1", id)
		require.NoError(t, err, output)
		require.Equal(t, models.JobStatusCompleted, snap.Status, output)
		require.Nil(t, snap.Result, output)
	}
	require.Equal(t, 6, logs.FilterMessage("job output not decoded").Len())
}

func TestOrchestrator_GetSnapshot_Failed(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	o := newTestOrchestrator(q)

	cases := []struct {
		name   string
		state  string
		output string
		want   string
	}{
		{"message first", models.QueueStateFailed, `{"error":"e","message":"m"}`, "m"},
		{"error", models.QueueStateFailed, `{"error":"boom"}`, "boom"},
		{"value", models.QueueStateFailed, `{"value":"thrown"}`, "thrown"},
		{"stack", models.QueueStateFailed, `{"stack":"at line 1"}`, "at line 1"},
		{"nested error object", models.QueueStateFailed, `{"error":{"message":"inner"}}`, "inner"},
		{"bare string", models.QueueStateFailed, `"plain"`, "plain"},
		{"empty fields", models.QueueStateFailed, `{"message":""}`, "job failed"},
		{"no output", models.QueueStateFailed, ``, "job failed"},
		{"cancelled", models.QueueStateCancelled, `{}`, "job failed"},
		{"expired", models.QueueStateFailed, `{"message":"job expired"}`, "job expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := uuid.NewString()
			q.put(&models.QueueJob{
				ID: id, Queue: testQueue, State: tc.state,
				Data:   json.RawMessage(`{"tenantId":"tenant-1","chatId":42}`),
				Output: json.RawMessage(tc.output),
			})
			snap, err := o.GetSnapshot(ctx, "tenant-1", id)
			require.NoError(t, err)
			require.Equal(t, models.JobStatusFailed, snap.Status)
			require.NotNil(t, snap.Error)
			require.Equal(t, tc.want, *snap.Error)
			require.Nil(t, snap.Result)
		})
	}
}

func TestOrchestrator_SnapshotCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cache := rediscache.New(rediscache.NewClient(rediscache.Options{Addr: mr.Addr()}), "sf:")

	q := newMemQueue()
	o := newTestOrchestrator(q).WithSnapshotCache(cache, time.Minute)

	started, err := o.Start(ctx, "tenant-1", 42, "ru")
	require.NoError(t, err)

	// незавершённая задача в кэш не попадает
	require.NoError(t, o.CacheSnapshot(ctx, "tenant-1", started.JobID))
	_, found, err := cache.Get(ctx, "snapshot:"+testQueue+":"+started.JobID)
	require.NoError(t, err)
	require.False(t, found)

	_, err = q.Fetch(ctx, testQueue, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, testQueue, started.JobID, json.RawMessage(`{"message":"no shops"}`)))
	require.NoError(t, o.CacheSnapshot(ctx, "tenant-1", started.JobID))
	require.True(t, mr.Exists("sf:snapshot:"+testQueue+":"+started.JobID))

	gets := q.gets
	snap, err := o.GetSnapshot(ctx, "tenant-1", started.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, snap.Status)
	require.Equal(t, "no shops", *snap.Error)
	require.Equal(t, gets, q.gets)

	_, err = o.GetSnapshot(ctx, "tenant-2", started.JobID)
	require.ErrorIs(t, err, ErrJobNotFound)
	require.Equal(t, gets+1, q.gets)

	// событие по чужой задаче игнорируется
	require.NoError(t, o.CacheSnapshot(ctx, "tenant-2", started.JobID))
}

func TestMapState(t *testing.T) {
	require.Equal(t, models.JobStatusQueued, mapState(models.QueueStateCreated))
	require.Equal(t, models.JobStatusQueued, mapState(models.QueueStateRetry))
	require.Equal(t, models.JobStatusRunning, mapState(models.QueueStateActive))
	require.Equal(t, models.JobStatusCompleted, mapState(models.QueueStateCompleted))
	require.Equal(t, models.JobStatusFailed, mapState(models.QueueStateFailed))
	require.Equal(t, models.JobStatusFailed, mapState(models.QueueStateCancelled))
}

func TestDecodePayload(t *testing.T) {
	p, err := decodePayload(json.RawMessage(`{"tenantId":"t","chatId":-100123}`))
	require.NoError(t, err)
	require.Equal(t, int64(-100123), p.ChatID)
	require.Equal(t, "ru", p.LanguageCode)

	p, err = decodePayload(json.RawMessage(`{"tenantId":"t","chatId":5,"languageCode":"en"}`))
	require.NoError(t, err)
	require.Equal(t, "en", p.LanguageCode)

	for _, raw := range []string{`null`, `[]`, `{"tenantId":"","chatId":1}`, `{"tenantId":5,"chatId":1}`, `{"tenantId":"t"}`, `{"tenantId":"t","chatId":true}`} {
		_, err := decodePayload(json.RawMessage(raw))
		require.ErrorIs(t, err, ErrInvalidPayload, raw)
	}
}
