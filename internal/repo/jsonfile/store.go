// Package jsonfile keeps the job definitions in a single JSON file.
//
// Every mutation rewrites the whole file through <path>.tmp and a rename, so
// the file on disk is always a complete earlier or later state. Mutations are
// serialized by one writer lock; readers use the last committed snapshot and
// never wait for a write in progress.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/repo"
)

var ErrCorruptStore = errors.New("job store file is corrupted")

var _ repo.JobStore = (*Store)(nil)

type fileFormat struct {
	Jobs []domain.Job `json:"jobs"`
}

// snapshot is immutable once published.
type snapshot struct {
	jobs  []domain.Job
	index map[string]int
}

func newSnapshot(jobs []domain.Job) *snapshot {
	s := &snapshot{jobs: jobs, index: make(map[string]int, len(jobs))}
	for i, j := range jobs {
		s.index[j.Name] = i
	}
	return s
}

func (s *snapshot) clone() []domain.Job {
	out := make([]domain.Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

type Store struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex // writers only
	snap atomic.Pointer[snapshot]
	rev  atomic.Uint64
}

// Open loads the store at path, creating an empty one when the file does not
// exist. A file that cannot be parsed, or holds an invalid or duplicate job,
// is an error: callers must not continue with an empty job list.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, log: log}

	tmp := path + ".tmp"
	if err := os.Remove(tmp); err == nil {
		log.Warn("job_store_stale_tmp_removed", zap.String("path", tmp))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &repo.StoreIOError{Op: "remove", Path: tmp, Err: err}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &repo.StoreIOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
		}
		if err := s.commit(nil); err != nil {
			return nil, err
		}
		log.Info("job_store_created", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, &repo.StoreIOError{Op: "read", Path: path, Err: err}
	}

	jobs, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range jobs {
		jobs[i].Rev = s.rev.Add(1)
	}
	s.snap.Store(newSnapshot(jobs))
	log.Info("job_store_loaded", zap.String("path", path), zap.Int("jobs", len(jobs)))
	return s, nil
}

// Read parses the store at path without opening it for writing. It touches
// nothing on disk, so it is safe next to a running server.
func Read(path string) ([]domain.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &repo.StoreIOError{Op: "read", Path: path, Err: err}
	}
	jobs, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

func decode(data []byte) ([]domain.Job, error) {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	seen := make(map[string]bool, len(f.Jobs))
	for _, j := range f.Jobs {
		if err := j.Validate(); err != nil {
			return nil, fmt.Errorf("%w: job %q: %v", ErrCorruptStore, j.Name, err)
		}
		if seen[j.Name] {
			return nil, fmt.Errorf("%w: duplicate job %q", ErrCorruptStore, j.Name)
		}
		seen[j.Name] = true
	}
	return f.Jobs, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get(_ context.Context, name string) (domain.Job, error) {
	cur := s.snap.Load()
	i, ok := cur.index[name]
	if !ok {
		return domain.Job{}, repo.ErrNotFound
	}
	return cur.jobs[i], nil
}

func (s *Store) List(_ context.Context) ([]domain.Job, error) {
	return s.snap.Load().clone(), nil
}

func (s *Store) Upsert(ctx context.Context, j domain.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(cur *snapshot) ([]domain.Job, error) {
		next := cur.clone()
		if i, ok := cur.index[j.Name]; ok {
			j.LastRunAt = next[i].LastRunAt
			j.Rev = next[i].Rev
			next[i] = j
			return next, nil
		}
		j.LastRunAt = nil
		j.Rev = s.rev.Add(1)
		return append(next, j), nil
	})
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.mutate(ctx, func(cur *snapshot) ([]domain.Job, error) {
		i, ok := cur.index[name]
		if !ok {
			return nil, repo.ErrNotFound
		}
		next := make([]domain.Job, 0, len(cur.jobs)-1)
		next = append(next, cur.jobs[:i]...)
		return append(next, cur.jobs[i+1:]...), nil
	})
}

// Rename deletes oldName and recreates it as newName in one commit. The new
// job has never run.
func (s *Store) Rename(ctx context.Context, oldName, newName string) error {
	if err := domain.ValidateName(newName); err != nil {
		return err
	}
	return s.mutate(ctx, func(cur *snapshot) ([]domain.Job, error) {
		i, ok := cur.index[oldName]
		if !ok {
			return nil, repo.ErrNotFound
		}
		if _, taken := cur.index[newName]; taken {
			return nil, repo.ErrExists
		}
		j := cur.jobs[i]
		j.Name = newName
		j.LastRunAt = nil
		j.Rev = s.rev.Add(1)
		next := make([]domain.Job, 0, len(cur.jobs))
		next = append(next, cur.jobs[:i]...)
		next = append(next, cur.jobs[i+1:]...)
		return append(next, j), nil
	})
}

func (s *Store) SetLastRun(ctx context.Context, name string, rev uint64, at time.Time) error {
	at = at.UTC()
	return s.mutate(ctx, func(cur *snapshot) ([]domain.Job, error) {
		i, ok := cur.index[name]
		if !ok {
			return nil, repo.ErrNotFound
		}
		if cur.jobs[i].Rev != rev {
			return nil, repo.ErrStale
		}
		next := cur.clone()
		next[i].LastRunAt = &at
		return next, nil
	})
}

// mutate runs fn under the writer lock and commits its result.
func (s *Store) mutate(ctx context.Context, fn func(cur *snapshot) ([]domain.Job, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.snap.Load())
	if err != nil {
		return err
	}
	return s.commit(next)
}

// commit writes jobs to disk and publishes them. The snapshot is swapped only
// after the rename succeeded.
func (s *Store) commit(jobs []domain.Job) error {
	if jobs == nil {
		jobs = []domain.Job{}
	}
	data, err := json.MarshalIndent(fileFormat{Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		s.log.Error("job_store_write_error", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.snap.Store(newSnapshot(jobs))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &repo.StoreIOError{Op: "create", Path: tmp, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &repo.StoreIOError{Op: "write", Path: tmp, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &repo.StoreIOError{Op: "fsync", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &repo.StoreIOError{Op: "close", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &repo.StoreIOError{Op: "rename", Path: path, Err: err}
	}
	// make the rename itself durable; not every platform supports it
	if d, err := os.Open(filepath.Dir(path)); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
