package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)
var _ repo.Pruner = (*Store)(nil)

// Schema is applied by Migrate; it is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS run_records (
  id          TEXT PRIMARY KEY,
  job_name    TEXT NOT NULL,
  target      TEXT NOT NULL,
  outcome     TEXT NOT NULL,
  error_kind  TEXT NOT NULL DEFAULT '',
  detail      TEXT NOT NULL DEFAULT '',
  transmitted INTEGER NOT NULL DEFAULT 0,
  received    INTEGER NOT NULL DEFAULT 0,
  loss_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
  avg_rtt_ms  DOUBLE PRECISION NULL,
  started_at  TIMESTAMPTZ NOT NULL,
  duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_run_records_job_time ON run_records (job_name, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_records_started  ON run_records (started_at DESC);
`

const columns = `id, job_name, target, outcome, error_kind, detail, transmitted, received, loss_pct, avg_rtt_ms, started_at, duration_ms`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, r *domain.RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_records (`+columns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.JobName, r.Target, r.Outcome, r.ErrorKind, r.Detail,
		r.Transmitted, r.Received, r.LossPct, r.AvgRTTMS, r.StartedAt, r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context) ([]domain.RunRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (job_name) `+columns+`
  FROM run_records
 ORDER BY job_name, started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	return collect(rows)
}

func (s *Store) History(ctx context.Context, job string, limit int) ([]domain.RunRecord, error) {
	q := `SELECT ` + columns + ` FROM run_records WHERE job_name = $1 ORDER BY started_at DESC`
	args := []any{job}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return collect(rows)
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM run_records WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collect(rows pgx.Rows) ([]domain.RunRecord, error) {
	defer rows.Close()
	out := make([]domain.RunRecord, 0)
	for rows.Next() {
		var r domain.RunRecord
		if err := rows.Scan(&r.ID, &r.JobName, &r.Target, &r.Outcome, &r.ErrorKind, &r.Detail,
			&r.Transmitted, &r.Received, &r.LossPct, &r.AvgRTTMS, &r.StartedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		r.StartedAt = r.StartedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
