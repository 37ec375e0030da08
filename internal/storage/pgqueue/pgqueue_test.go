package pgqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestSafeSchema(t *testing.T) {
	require.Equal(t, "jobs_v2", SafeSchema("jobs_v2"))
	require.Equal(t, "_q", SafeSchema("_q"))
	require.Equal(t, DefaultSchema, SafeSchema(""))
	require.Equal(t, DefaultSchema, SafeSchema("Jobs"))
	require.Equal(t, DefaultSchema, SafeSchema("1jobs"))
	require.Equal(t, DefaultSchema, SafeSchema("jobs; DROP TABLE x"))
}

func startPG(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "sellerflow_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return "postgres://admin:admin@" + host + ":" + port.Port() + "/sellerflow_test?sslmode=disable"
}

func TestQueue_Flow(t *testing.T) {
	ctx := context.Background()
	dsn := startPG(t)

	q, err := New(dsn, "bad-name")
	require.NoError(t, err)
	t.Cleanup(q.Close)
	require.Equal(t, DefaultSchema, q.Schema())
	require.NoError(t, q.Ping(ctx))

	// Start идемпотентен
	require.NoError(t, q.Start(ctx))
	require.NoError(t, q.Start(ctx))
	require.NoError(t, q.EnsureQueue(ctx, "combined"))
	require.NoError(t, q.EnsureQueue(ctx, "combined"))

	none, err := q.FindActiveByTenant(ctx, "combined", "t1")
	require.NoError(t, err)
	require.Nil(t, none)

	id := uuid.NewString()
	sent, err := q.Send(ctx, "combined", SendOptions{
		ID:                   id,
		Data:                 json.RawMessage(`{"tenantId":"t1","chatId":42}`),
		ExpireIn:             time.Hour,
		RetentionAfterFinish: 30 * time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, id, sent.ID)
	require.Equal(t, models.QueueStateCreated, sent.State)
	require.Equal(t, time.Hour, sent.ExpireIn)
	require.Nil(t, sent.StartedAt)

	active, err := q.FindActiveByTenant(ctx, "combined", "t1")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, id, active.ID)

	other, err := q.FindActiveByTenant(ctx, "combined", "t2")
	require.NoError(t, err)
	require.Nil(t, other)

	jobs, err := q.Fetch(ctx, "combined", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, models.QueueStateActive, jobs[0].State)
	require.NotNil(t, jobs[0].StartedAt)

	// повторный fetch ничего не возвращает
	jobs2, err := q.Fetch(ctx, "combined", 1)
	require.NoError(t, err)
	require.Empty(t, jobs2)

	require.NoError(t, q.Complete(ctx, "combined", id, json.RawMessage(`{"summary":{}}`)))
	require.ErrorIs(t, q.Complete(ctx, "combined", id, json.RawMessage(`{}`)), ErrJobNotActive)

	got, err := q.GetByID(ctx, "combined", id)
	require.NoError(t, err)
	require.Equal(t, models.QueueStateCompleted, got.State)
	require.NotNil(t, got.CompletedAt)
	require.JSONEq(t, `{"summary":{}}`, string(got.Output))

	// после завершения тенант снова свободен
	none, err = q.FindActiveByTenant(ctx, "combined", "t1")
	require.NoError(t, err)
	require.Nil(t, none)

	missing, err := q.GetByID(ctx, "combined", uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestQueue_FailExpirePurge(t *testing.T) {
	ctx := context.Background()
	dsn := startPG(t)

	q, err := New(dsn, "q_test")
	require.NoError(t, err)
	t.Cleanup(q.Close)
	require.NoError(t, q.Start(ctx))
	require.NoError(t, q.EnsureQueue(ctx, "combined"))

	failID := uuid.NewString()
	_, err = q.Send(ctx, "combined", SendOptions{ID: failID, Data: json.RawMessage(`{"tenantId":"a"}`), ExpireIn: time.Hour})
	require.NoError(t, err)
	_, err = q.Fetch(ctx, "combined", 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, "combined", failID, json.RawMessage(`{"message":"boom"}`)))

	failed, err := q.GetByID(ctx, "combined", failID)
	require.NoError(t, err)
	require.Equal(t, models.QueueStateFailed, failed.State)
	require.JSONEq(t, `{"message":"boom"}`, string(failed.Output))

	// протухшая active-задача
	staleID := uuid.NewString()
	_, err = q.Send(ctx, "combined", SendOptions{ID: staleID, Data: json.RawMessage(`{"tenantId":"b"}`), ExpireIn: time.Minute})
	require.NoError(t, err)
	_, err = q.Fetch(ctx, "combined", 1)
	require.NoError(t, err)
	_, err = q.db.Exec(ctx, `UPDATE q_test.job SET started_on = now() - interval '2 minutes' WHERE id = $1`, staleID)
	require.NoError(t, err)

	n, err := q.ExpireActive(ctx, "combined")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stale, err := q.GetByID(ctx, "combined", staleID)
	require.NoError(t, err)
	require.Equal(t, models.QueueStateFailed, stale.State)
	require.JSONEq(t, `{"message":"job expired"}`, string(stale.Output))
	// воркер, доделавший протухшую задачу, статус уже не меняет
	require.ErrorIs(t, q.Complete(ctx, "combined", staleID, json.RawMessage(`{"summary":{}}`)), ErrJobNotActive)
	require.ErrorIs(t, q.Fail(ctx, "combined", staleID, json.RawMessage(`{}`)), ErrJobNotActive)

	// retention 0 → сразу под очистку
	_, err = q.db.Exec(ctx, `UPDATE q_test.job SET keep_until = now() - interval '1 second'`)
	require.NoError(t, err)
	n, err = q.Purge(ctx, "combined")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	gone, err := q.GetByID(ctx, "combined", failID)
	require.NoError(t, err)
	require.Nil(t, gone)
}
