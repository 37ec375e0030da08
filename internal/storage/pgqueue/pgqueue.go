package pgqueue

import (
	"context"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const DefaultSchema = "flowqueue"

var schemaRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SafeSchema возвращает schema, если это допустимый идентификатор, иначе DefaultSchema.
// Имя схемы попадает в SQL как идентификатор, поэтому произвольные значения не пропускаем.
func SafeSchema(schema string) string {
	if schemaRe.MatchString(schema) {
		return schema
	}
	return DefaultSchema
}

type Queue struct {
	db     *pgxpool.Pool
	schema string

	jobTable   string
	queueTable string
}

func New(connString, schema string) (*Queue, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}
	return NewWithPool(db, schema), nil
}

func NewWithPool(db *pgxpool.Pool, schema string) *Queue {
	schema = SafeSchema(schema)
	return &Queue{
		db:         db,
		schema:     schema,
		jobTable:   pgx.Identifier{schema, "job"}.Sanitize(),
		queueTable: pgx.Identifier{schema, "queue"}.Sanitize(),
	}
}

func (q *Queue) Schema() string { return q.schema }

// Start создаёт схему и таблицы (идемпотентно).
func (q *Queue) Start(ctx context.Context) error {
	if err := q.db.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping pg")
	}
	return q.initSchema(ctx)
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.db.Ping(ctx)
}

func (q *Queue) Close() {
	if q.db != nil {
		q.db.Close()
	}
}
