package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"bioage/internal/audit"
)

// PgAuditRepository replica el audit log en la tabla prediction_audit.
type PgAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPgAuditRepository(pool *pgxpool.Pool) *PgAuditRepository {
	return &PgAuditRepository{pool: pool}
}

// EnsureSchema crea la extensión vector y la tabla si no existen.
func (r *PgAuditRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS prediction_audit (
			id          uuid PRIMARY KEY,
			request_id  text NOT NULL,
			stage       text NOT NULL,
			message     text NOT NULL,
			features    vector(12),
			created_at  timestamptz NOT NULL
		);
		CREATE INDEX IF NOT EXISTS prediction_audit_request_id_idx ON prediction_audit (request_id);
	`
	_, err := r.pool.Exec(ctx, query)
	return err
}

func (r *PgAuditRepository) Save(ctx context.Context, e audit.Entry) error {
	const query = `
		INSERT INTO prediction_audit (id, request_id, stage, message, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var features interface{}
	if e.Features != nil {
		vals := make([]float32, len(e.Features))
		for i, f := range e.Features {
			vals[i] = float32(f)
		}
		features = pgvector.NewVector(vals)
	}

	_, err := r.pool.Exec(ctx, query,
		uuid.NewString(),
		e.RequestID,
		string(e.Stage),
		e.Message,
		features,
		e.Time.UTC(),
	)
	return err
}
