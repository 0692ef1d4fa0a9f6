package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/repo"
)

type RetentionConfig struct {
	// Keep is how long run records are kept.
	Keep         time.Duration
	PollInterval time.Duration
}

// Retention periodically prunes run history from stores that do not expire
// records on their own.
type Retention struct {
	log    *zap.Logger
	pruner repo.Pruner
	cfg    RetentionConfig
	now    func() time.Time
}

func NewRetention(log *zap.Logger, pruner repo.Pruner, cfg RetentionConfig) *Retention {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Hour
	}
	return &Retention{log: log, pruner: pruner, cfg: cfg, now: time.Now}
}

func (r *Retention) Run(ctx context.Context) error {
	if r.pruner == nil || r.cfg.Keep <= 0 {
		r.log.Info("retention_disabled")
		return nil
	}
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()

	// initial pass
	_ = r.pruneOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = r.pruneOnce(ctx)
		}
	}
}

func (r *Retention) pruneOnce(ctx context.Context) error {
	cutoff := r.now().Add(-r.cfg.Keep)
	n, err := r.pruner.Prune(ctx, cutoff)
	if err != nil {
		r.log.Warn("retention_prune_error", zap.Error(err))
		return err
	}
	if n > 0 {
		r.log.Info("retention_pruned", zap.Int64("records", n), zap.Time("cutoff", cutoff))
	}
	return nil
}
