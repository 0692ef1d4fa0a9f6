package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/repo"
)

const DefaultRetention = 24 * time.Hour

var _ repo.ResultStore = (*Store)(nil)

// Store keeps run records in memory; each record expires after the
// retention period.
type Store struct {
	data *gocache.Cache
}

func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{data: gocache.New(retention, retention*2)}
}

func (m *Store) Append(_ context.Context, r *domain.RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	m.data.Set(r.ID, *r, gocache.DefaultExpiration)
	return nil
}

func (m *Store) records() []domain.RunRecord {
	items := m.data.Items()
	out := make([]domain.RunRecord, 0, len(items))
	for _, it := range items {
		if r, ok := it.Object.(domain.RunRecord); ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *Store) Latest(_ context.Context) ([]domain.RunRecord, error) {
	seen := make(map[string]bool)
	out := make([]domain.RunRecord, 0)
	for _, r := range m.records() {
		if seen[r.JobName] {
			continue
		}
		seen[r.JobName] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out, nil
}

func (m *Store) History(_ context.Context, job string, limit int) ([]domain.RunRecord, error) {
	out := make([]domain.RunRecord, 0)
	for _, r := range m.records() {
		if r.JobName != job {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
