package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jobsapi "github.com/BearBump/SellerFlow/internal/api/jobs_api"
	"github.com/BearBump/SellerFlow/internal/broker/kafka"
	"github.com/BearBump/SellerFlow/internal/broker/messages"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct{}

func (fakeService) Start(_ context.Context, tenantID string, chatID int64, lang string) (*models.JobStartResult, error) {
	return &models.JobStartResult{JobID: "j-" + tenantID, Status: models.JobStatusQueued, CreatedAt: time.Unix(0, 0).UTC()}, nil
}

func (fakeService) GetSnapshot(_ context.Context, tenantID, jobID string) (*models.JobSnapshot, error) {
	return &models.JobSnapshot{JobID: jobID, TenantID: tenantID, Status: models.JobStatusRunning}, nil
}

type recordingWarmer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (w *recordingWarmer) CacheSnapshot(_ context.Context, tenantID, jobID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, tenantID+"/"+jobID)
	return w.err
}

type sliceConsumer struct {
	msgs [][]byte
	errs []error
}

func (c *sliceConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, m := range c.msgs {
		c.errs = append(c.errs, handler(nil, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func event(t *testing.T, queue, tenant, job string) []byte {
	t.Helper()
	b, err := json.Marshal(messages.JobFinished{JobID: job, Queue: queue, TenantID: tenant, State: models.JobStatusCompleted, FinishedAt: time.Now().UTC()})
	require.NoError(t, err)
	return b
}

func TestJobFinishedHandler(t *testing.T) {
	combined := &recordingWarmer{}
	waiting := &recordingWarmer{err: errors.New("redis down")}
	h := jobFinishedHandler(context.Background(), map[string]snapshotWarmer{
		"combined-pdf": combined,
		"waiting-pdf":  waiting,
	}, zap.NewNop())

	require.NoError(t, h(nil, event(t, "combined-pdf", "t1", "j1")))
	require.NoError(t, h(nil, event(t, "waiting-pdf", "t1", "j2")))
	require.ErrorIs(t, h(nil, event(t, "other", "t1", "j3")), kafka.ErrSkip)
	require.ErrorIs(t, h(nil, []byte(`{"jobId":"j4"}`)), kafka.ErrSkip)
	require.ErrorIs(t, h(nil, []byte(`garbage`)), kafka.ErrSkip)

	require.Equal(t, []string{"t1/j1"}, combined.calls)
	require.Equal(t, []string{"t1/j2"}, waiting.calls)
}

func TestRunFlowAPI_ServesJobsAndConsumesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	warmer := &recordingWarmer{}
	cons := &sliceConsumer{msgs: [][]byte{event(t, "combined-pdf", "t1", "j1")}}
	addrCh := make(chan string, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runFlowAPI(ctx, flowAPIOpts{
			httpAddr: "127.0.0.1:0",
			topic:    "combined.job.finished",
			onListen: func(addr string) { addrCh <- addr },
		}, jobsapi.New(fakeService{}, fakeService{}, nil), map[string]snapshotWarmer{"combined-pdf": warmer}, cons, nil, zap.NewNop())
	}()
	addr := <-addrCh

	resp, err := http.Post("http://"+addr+"/v1/tenants/t1/waiting-pdf/jobs", "application/json", strings.NewReader(`{"chatId":5}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Contains(t, string(body), `"jobId":"j-t1"`)

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		warmer.mu.Lock()
		defer warmer.mu.Unlock()
		return len(warmer.calls) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting api to stop")
	}
}

func TestAPIRouter_Readyz(t *testing.T) {
	var readyErr error
	h := apiRouter(jobsapi.New(fakeService{}, nil, nil), func(context.Context) error { return readyErr })

	rec := httpRecorder(h, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	readyErr = errors.New("pg down")
	rec = httpRecorder(h, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func httpRecorder(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}
