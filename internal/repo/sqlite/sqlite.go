// Package sqlite stores run history in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS run_records (
    id           TEXT PRIMARY KEY,
    job_name     TEXT NOT NULL,
    target       TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    error_kind   TEXT NOT NULL DEFAULT '',
    detail       TEXT NOT NULL DEFAULT '',
    transmitted  INTEGER NOT NULL DEFAULT 0,
    received     INTEGER NOT NULL DEFAULT 0,
    loss_pct     REAL NOT NULL DEFAULT 0,
    avg_rtt_ms   REAL,
    started_at   INTEGER NOT NULL, -- unix nanoseconds, UTC
    duration_ms  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_run_records_job_time ON run_records(job_name, started_at);
CREATE INDEX IF NOT EXISTS idx_run_records_time ON run_records(started_at);
`

const columns = `id, job_name, target, outcome, error_kind, detail, transmitted, received, loss_pct, avg_rtt_ms, started_at, duration_ms`

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one writer at a time; WAL lets readers proceed alongside it
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite_pragma_failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, r *domain.RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	var avg sql.NullFloat64
	if r.AvgRTTMS != nil {
		avg = sql.NullFloat64{Float64: *r.AvgRTTMS, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_records (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobName, r.Target, r.Outcome, r.ErrorKind, r.Detail,
		r.Transmitted, r.Received, r.LossPct, avg, r.StartedAt.UTC().UnixNano(), r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+columns+`
  FROM run_records r
 WHERE r.id = (SELECT id FROM run_records
                WHERE job_name = r.job_name
                ORDER BY started_at DESC, id DESC
                LIMIT 1)
 ORDER BY r.job_name`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	return scanAll(rows)
}

func (s *Store) History(ctx context.Context, job string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM run_records WHERE job_name = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		job, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return scanAll(rows)
}

// Prune deletes records that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_records WHERE started_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

func scanAll(rows *sql.Rows) ([]domain.RunRecord, error) {
	defer rows.Close()
	out := make([]domain.RunRecord, 0)
	for rows.Next() {
		var (
			r       domain.RunRecord
			avg     sql.NullFloat64
			started int64
		)
		if err := rows.Scan(&r.ID, &r.JobName, &r.Target, &r.Outcome, &r.ErrorKind, &r.Detail,
			&r.Transmitted, &r.Received, &r.LossPct, &avg, &started, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		if avg.Valid {
			v := avg.Float64
			r.AvgRTTMS = &v
		}
		r.StartedAt = time.Unix(0, started).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
