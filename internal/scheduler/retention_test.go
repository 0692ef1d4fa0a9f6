package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePruner struct {
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func TestRetention_PrunesWithCutoff(t *testing.T) {
	p := &fakePruner{}
	r := NewRetention(nil, p, RetentionConfig{Keep: 24 * time.Hour})
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if err := r.pruneOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("unexpected cutoffs: %v", p.cutoffs)
	}
}

func TestRetention_ErrorIsReported(t *testing.T) {
	p := &fakePruner{err: errors.New("db gone")}
	r := NewRetention(nil, p, RetentionConfig{Keep: time.Hour})
	if err := r.pruneOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetention_RunStopsOnCancel(t *testing.T) {
	p := &fakePruner{}
	r := NewRetention(nil, p, RetentionConfig{Keep: time.Hour, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if len(p.cutoffs) < 2 {
		t.Fatalf("expected initial pass and ticks, got %d", len(p.cutoffs))
	}
}

func TestRetention_DisabledWithoutKeep(t *testing.T) {
	r := NewRetention(nil, &fakePruner{}, RetentionConfig{})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("disabled retention should return nil, got %v", err)
	}
}
