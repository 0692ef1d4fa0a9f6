package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hamed0406/pingstatus/internal/domain"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExists   = errors.New("job already exists")
)

// ErrStale means the job was deleted and created again since the caller read it.
var ErrStale = errors.New("job was replaced")

// StoreIOError is a persistence failure. The in-memory state stays at the
// last committed snapshot.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// Ports (interfaces); the engine and the API only see these.
type JobStore interface {
	Get(ctx context.Context, name string) (domain.Job, error)
	// List returns jobs in creation order.
	List(ctx context.Context) ([]domain.Job, error)
	// Upsert validates j; last_run_at of an existing job is preserved.
	Upsert(ctx context.Context, j domain.Job) error
	Delete(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	// SetLastRun is the engine's write path. rev is the Job.Rev the run was
	// started from; a different record under the same name gives ErrStale.
	SetLastRun(ctx context.Context, name string, rev uint64, at time.Time) error
}

type ResultStore interface {
	Append(ctx context.Context, r *domain.RunRecord) error
	// Latest returns the newest record per job.
	Latest(ctx context.Context) ([]domain.RunRecord, error)
	// History returns up to limit records of one job, newest first.
	History(ctx context.Context, job string, limit int) ([]domain.RunRecord, error)
}

// Pruner is implemented by result stores whose retention is not automatic.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
