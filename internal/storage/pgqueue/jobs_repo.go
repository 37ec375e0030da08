package pgqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ErrJobNotActive: задача уже не active (например, её закрыл ExpireActive).
var ErrJobNotActive = errors.New("job is not active")

type SendOptions struct {
	ID         string
	Data       json.RawMessage
	RetryLimit int
	ExpireIn   time.Duration
	// Сколько держать задачу после перехода в терминальное состояние.
	RetentionAfterFinish time.Duration
}

const jobColumns = `
  id::text, name, state, data, output, retry_limit, expire_in_seconds,
  created_on, started_on, completed_on, keep_until`

const jobColumnsJ = `
  j.id::text, j.name, j.state, j.data, j.output, j.retry_limit, j.expire_in_seconds,
  j.created_on, j.started_on, j.completed_on, j.keep_until`

func (q *Queue) EnsureQueue(ctx context.Context, name string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO `+q.queueTable+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return errors.Wrap(err, "ensure queue")
}

func (q *Queue) Send(ctx context.Context, name string, opts SendOptions) (*models.QueueJob, error) {
	expire := int(opts.ExpireIn / time.Second)
	retention := int(opts.RetentionAfterFinish / time.Second)

	row := q.db.QueryRow(ctx, `
INSERT INTO `+q.jobTable+` (
  id, name, state, data, retry_limit, expire_in_seconds, retention_seconds, created_on, keep_until
)
VALUES ($1::uuid, $2, $3, $4, $5, $6::int, $7::int, now(), now() + make_interval(secs => $6::int + $7::int))
RETURNING`+jobColumns,
		opts.ID, name, models.QueueStateCreated, opts.Data, opts.RetryLimit, expire, retention)

	j, err := scanJob(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert job")
	}
	return j, nil
}

// FindActiveByTenant: последняя нетерминальная задача тенанта в очереди.
func (q *Queue) FindActiveByTenant(ctx context.Context, name, tenantID string) (*models.QueueJob, error) {
	row := q.db.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM `+q.jobTable+`
WHERE name = $1
  AND state = ANY($2)
  AND data->>'tenantId' = $3
ORDER BY created_on DESC
LIMIT 1
`, name, models.QueueActiveStates, tenantID)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select active job")
	}
	return j, nil
}

// GetByID возвращает nil, nil, если задачи нет.
func (q *Queue) GetByID(ctx context.Context, name, id string) (*models.QueueJob, error) {
	row := q.db.QueryRow(ctx, `SELECT`+jobColumns+` FROM `+q.jobTable+` WHERE name = $1 AND id = $2::uuid`, name, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select job")
	}
	return j, nil
}

// Fetch переводит до batch задач в active. SKIP LOCKED не даёт двум воркерам взять одну задачу.
func (q *Queue) Fetch(ctx context.Context, name string, batch int) ([]*models.QueueJob, error) {
	rows, err := q.db.Query(ctx, `
WITH next AS (
  SELECT id
  FROM `+q.jobTable+`
  WHERE name = $1
    AND state IN ($2, $3)
  ORDER BY created_on ASC
  LIMIT $4
  FOR UPDATE SKIP LOCKED
)
UPDATE `+q.jobTable+` j
SET state = $5, started_on = now()
FROM next
WHERE j.id = next.id
RETURNING`+jobColumnsJ,
		name, models.QueueStateCreated, models.QueueStateRetry, batch, models.QueueStateActive)
	if err != nil {
		return nil, errors.Wrap(err, "fetch jobs")
	}
	defer rows.Close()

	var out []*models.QueueJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, j)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (q *Queue) Complete(ctx context.Context, name, id string, output json.RawMessage) error {
	tag, err := q.db.Exec(ctx, `
UPDATE `+q.jobTable+`
SET state = $3,
    output = $4,
    completed_on = now(),
    keep_until = now() + make_interval(secs => retention_seconds)
WHERE name = $1 AND id = $2::uuid AND state = $5
`, name, id, models.QueueStateCompleted, output, models.QueueStateActive)
	if err != nil {
		return errors.Wrap(err, "complete job")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrJobNotActive, "complete job %s", id)
	}
	return nil
}

// Fail: при исчерпанном retry_limit задача становится failed, иначе retry.
func (q *Queue) Fail(ctx context.Context, name, id string, output json.RawMessage) error {
	tag, err := q.db.Exec(ctx, `
UPDATE `+q.jobTable+`
SET state = CASE WHEN retry_count < retry_limit THEN $3 ELSE $4 END,
    retry_count = CASE WHEN retry_count < retry_limit THEN retry_count + 1 ELSE retry_count END,
    output = $5,
    completed_on = CASE WHEN retry_count < retry_limit THEN NULL ELSE now() END,
    keep_until = now() + make_interval(secs => retention_seconds)
WHERE name = $1 AND id = $2::uuid AND state = $6
`, name, id, models.QueueStateRetry, models.QueueStateFailed, output, models.QueueStateActive)
	if err != nil {
		return errors.Wrap(err, "fail job")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrJobNotActive, "fail job %s", id)
	}
	return nil
}

// ExpireActive помечает failed активные задачи, превысившие expire_in.
func (q *Queue) ExpireActive(ctx context.Context, name string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE `+q.jobTable+`
SET state = $2,
    output = $3,
    completed_on = now(),
    keep_until = now() + make_interval(secs => retention_seconds)
WHERE name = $1
  AND state = $4
  AND started_on + make_interval(secs => expire_in_seconds) < now()
`, name, models.QueueStateFailed, json.RawMessage(`{"message":"job expired"}`), models.QueueStateActive)
	if err != nil {
		return 0, errors.Wrap(err, "expire jobs")
	}
	return tag.RowsAffected(), nil
}

// Purge удаляет терминальные задачи с истёкшим сроком хранения.
func (q *Queue) Purge(ctx context.Context, name string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
DELETE FROM `+q.jobTable+`
WHERE name = $1
  AND state IN ($2, $3, $4)
  AND keep_until < now()
`, name, models.QueueStateCompleted, models.QueueStateFailed, models.QueueStateCancelled)
	if err != nil {
		return 0, errors.Wrap(err, "purge jobs")
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*models.QueueJob, error) {
	var j models.QueueJob
	var data, output []byte
	var expireSec int
	if err := row.Scan(
		&j.ID, &j.Queue, &j.State, &data, &output, &j.RetryLimit, &expireSec,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.KeepUntil,
	); err != nil {
		return nil, err
	}
	j.Data = data
	if output != nil {
		j.Output = output
	}
	j.ExpireIn = time.Duration(expireSec) * time.Second
	return &j, nil
}
