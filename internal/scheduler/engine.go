package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/metrics"
	"github.com/hamed0406/pingstatus/internal/notify"
	"github.com/hamed0406/pingstatus/internal/probe"
	"github.com/hamed0406/pingstatus/internal/report"
	"github.com/hamed0406/pingstatus/internal/repo"
)

const (
	DefaultTick          = 10 * time.Second
	DefaultMaxConcurrent = 4
	DefaultErrorCooldown = 15 * time.Minute
	DefaultDrainTimeout  = 30 * time.Second
	defaultBackstop      = time.Minute
	sideEffectTimeout    = 15 * time.Second
)

var ErrAlreadyRunning = errors.New("job is already running")

// jobState is the engine's view of one job. Guarded by Engine.mu.
type jobState struct {
	// store record this state belongs to
	rev     uint64
	lastRun time.Time
	running bool
	// lastRun has not reached the store yet
	pendingPersist bool
	overlapWarned  bool
}

func newState(j domain.Job) *jobState {
	st := &jobState{rev: j.Rev}
	if j.LastRunAt != nil {
		st.lastRun = *j.LastRunAt
	}
	return st
}

type Options struct {
	Tick          time.Duration
	MaxConcurrent int
	// MinTimeout is passed to the runner as the lower bound of a run's deadline.
	MinTimeout time.Duration
	// Backstop is added on top of count*interval+MinTimeout to bound a runner
	// that ignores its own deadline.
	Backstop time.Duration
	// ErrorCooldown is the minimum gap between two admin alerts for the same
	// kind of failure.
	ErrorCooldown time.Duration
	// DrainTimeout bounds how long Run waits for in-flight runs after its
	// context is done.
	DrainTimeout time.Duration

	Results  repo.ResultStore
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	Now      func() time.Time
}

// Engine decides when jobs are due and runs them, at most one run per job
// name at a time.
type Engine struct {
	log      *zap.Logger
	jobs     repo.JobStore
	runner   probe.Runner
	results  repo.ResultStore
	notifier notify.Notifier
	metrics  *metrics.Collector

	tick          time.Duration
	maxConcurrent int
	minTimeout    time.Duration
	backstop      time.Duration
	errCooldown   time.Duration
	drainTimeout  time.Duration
	now           func() time.Time

	mu       sync.Mutex
	index    map[string]*jobState
	inflight int

	alertMu sync.Mutex
	alerted map[string]time.Time

	wg sync.WaitGroup
}

func New(log *zap.Logger, jobs repo.JobStore, runner probe.Runner, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Backstop <= 0 {
		opts.Backstop = defaultBackstop
	}
	if opts.ErrorCooldown <= 0 {
		opts.ErrorCooldown = DefaultErrorCooldown
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		log:           log,
		jobs:          jobs,
		runner:        runner,
		results:       opts.Results,
		notifier:      opts.Notifier,
		metrics:       opts.Metrics,
		tick:          opts.Tick,
		maxConcurrent: opts.MaxConcurrent,
		minTimeout:    opts.MinTimeout,
		backstop:      opts.Backstop,
		errCooldown:   opts.ErrorCooldown,
		drainTimeout:  opts.DrainTimeout,
		now:           opts.Now,
		index:         make(map[string]*jobState),
		alerted:       make(map[string]time.Time),
	}
}

// Load syncs the index with the job store. State of jobs the engine already
// tracks, running flags included, is kept, so calling it again is safe. An
// error here means the store is unreadable and the engine must not start.
func (e *Engine) Load(ctx context.Context) error {
	jobs, err := e.jobs.List(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.reconcile(jobs)
	e.mu.Unlock()
	e.log.Info("engine_loaded", zap.Int("jobs", len(jobs)))
	return nil
}

// Run loads the index, does an immediate pass, then runs each tick. When ctx
// is cancelled it stops ticking and waits for in-flight runs.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Load(ctx); err != nil {
		return err
	}
	t := time.NewTicker(e.tick)
	defer t.Stop()

	// immediate pass
	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine_stopping", zap.Int("in_flight", e.InFlight()))
			dctx, cancel := context.WithTimeout(context.Background(), e.drainTimeout)
			_ = e.Drain(dctx)
			cancel()
			e.log.Info("engine_stopped")
			return nil
		case <-t.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce is a single scheduler pass. It starts due runs and returns without
// waiting for them.
func (e *Engine) RunOnce(ctx context.Context) {
	jobs, err := e.jobs.List(ctx)
	if err != nil {
		e.log.Warn("engine_list_error", zap.Error(err))
		e.alert("job_store_list", "Reading the job store", err)
		return
	}
	e.metrics.RecordTick(len(jobs))

	now := e.now()
	var (
		start []domain.Job
		retry []pendingWrite
	)

	e.mu.Lock()
	e.reconcile(jobs)
	for _, j := range jobs {
		st := e.index[j.Name]
		if st == nil {
			continue
		}
		if st.pendingPersist && !st.running {
			retry = append(retry, pendingWrite{j.Name, st.rev, st.lastRun})
		}
		if !due(st, j, now) {
			continue
		}
		if st.running {
			if !st.overlapWarned {
				st.overlapWarned = true
				e.log.Warn("engine_run_overlap",
					zap.String("job", j.Name),
					zap.Duration("schedule", j.Schedule()),
				)
			}
			e.metrics.RecordSkip(metrics.SkipOverlap)
			continue
		}
		if e.inflight >= e.maxConcurrent {
			e.log.Debug("engine_run_deferred", zap.String("job", j.Name), zap.Int("in_flight", e.inflight))
			e.metrics.RecordSkip(metrics.SkipCapacity)
			continue
		}
		st.running = true
		e.inflight++
		start = append(start, j)
	}
	e.mu.Unlock()

	// last-run times whose earlier write failed
	for _, p := range retry {
		e.persist(ctx, p.name, p.rev, p.at)
	}
	for _, j := range start {
		e.launch(j)
	}
}

type pendingWrite struct {
	name string
	rev  uint64
	at   time.Time
}

func due(st *jobState, j domain.Job, now time.Time) bool {
	return st.lastRun.IsZero() || now.Sub(st.lastRun) >= j.Schedule()
}

// reconcile brings the index in line with a store listing. A record with a
// new Rev is a job that was deleted and created again; its old state is
// dropped once no run of it is in progress. Caller holds e.mu.
func (e *Engine) reconcile(jobs []domain.Job) {
	present := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		present[j.Name] = true
		st, ok := e.index[j.Name]
		switch {
		case !ok:
			e.index[j.Name] = newState(j)
		case st.rev != j.Rev && !st.running:
			e.log.Info("engine_job_recreated", zap.String("job", j.Name))
			e.index[j.Name] = newState(j)
		}
	}
	for name, st := range e.index {
		if !present[name] && !st.running {
			delete(e.index, name)
		}
	}
}

func (e *Engine) launch(j domain.Job) {
	e.wg.Add(1)
	e.metrics.RunStarted()
	go func() {
		defer e.wg.Done()
		defer e.metrics.RunFinished()
		e.execute(j)
	}()
}

func (e *Engine) execute(j domain.Job) {
	req := probe.RequestFor(j)
	req.Timeout = e.minTimeout

	// Only the run's own deadline may cancel it; shutdown of the loop does not.
	expected := time.Duration(float64(j.Count) * j.IntervalSec * float64(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), expected+e.minTimeout+e.backstop)
	defer cancel()

	e.log.Debug("engine_run_started", zap.String("job", j.Name), zap.String("target", j.Target))
	started := e.now()
	res := e.runner.Run(ctx, req)
	if res.StartedAt.IsZero() {
		res.StartedAt = started
	}
	finished := e.now()
	if res.Duration == 0 {
		res.Duration = finished.Sub(started)
	}

	errKind := ""
	if res.Err != nil {
		errKind = string(res.Err.Kind)
	}
	e.metrics.RecordRun(res.Outcome.String(), errKind, res.Duration.Seconds())
	e.log.Info("engine_run_finished",
		zap.String("job", j.Name),
		zap.String("outcome", res.Outcome.String()),
		zap.String("error_kind", errKind),
		zap.Duration("duration", res.Duration),
	)

	e.mu.Lock()
	if st := e.index[j.Name]; st != nil && st.rev == j.Rev {
		st.lastRun = finished
		st.running = false
		st.overlapWarned = false
		st.pendingPersist = true
	}
	e.inflight--
	e.mu.Unlock()

	sctx, scancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer scancel()
	e.persist(sctx, j.Name, j.Rev, finished)
	e.record(sctx, j, res)
	e.report(sctx, j, res)
}

// persist writes a last-run time for the store record rev. A record that is
// gone or was replaced keeps whatever it has.
func (e *Engine) persist(ctx context.Context, name string, rev uint64, at time.Time) {
	err := e.jobs.SetLastRun(ctx, name, rev, at)
	// deleted, or deleted and recreated, while running
	gone := errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrStale)

	e.mu.Lock()
	st := e.index[name]
	mine := st != nil && st.rev == rev
	switch {
	case err == nil:
		if mine && st.lastRun.Equal(at) {
			st.pendingPersist = false
		}
	case gone:
		if mine && !st.running {
			delete(e.index, name)
		}
	}
	e.mu.Unlock()

	if err == nil || gone {
		return
	}
	e.metrics.RecordStoreError()
	e.log.Warn("engine_store_write_error", zap.String("job", name), zap.Error(err))
	e.alert("job_store_write", "Saving the last run of "+name, err)
}

func (e *Engine) record(ctx context.Context, j domain.Job, res domain.ProbeResult) {
	if e.results == nil {
		return
	}
	rec := domain.NewRunRecord(uuid.NewString(), j, res)
	if err := e.results.Append(ctx, &rec); err != nil {
		e.log.Warn("engine_result_append_error", zap.String("job", j.Name), zap.Error(err))
	}
}

func (e *Engine) report(ctx context.Context, j domain.Job, res domain.ProbeResult) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, report.Format(j, res)); err != nil {
		e.metrics.RecordNotifyError()
		e.log.Warn("engine_notify_error", zap.String("job", j.Name), zap.Error(err))
		e.alert("notify", "Sending the report for "+j.Name, err)
	}
}

// alert sends an engine failure to the admin through the notifier, at most
// once per key per cooldown. The send happens off the caller's goroutine.
func (e *Engine) alert(key, what string, err error) {
	if e.notifier == nil {
		return
	}
	now := e.now()
	e.alertMu.Lock()
	if last, ok := e.alerted[key]; ok && now.Sub(last) < e.errCooldown {
		e.alertMu.Unlock()
		return
	}
	e.alerted[key] = now
	e.alertMu.Unlock()

	msg := report.FormatError(what, err)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if serr := e.notifier.Send(ctx, msg); serr != nil {
			e.log.Warn("engine_alert_error", zap.String("key", key), zap.Error(serr))
		}
	}()
}

// RunNow starts name immediately, outside its schedule. The concurrency
// ceiling does not apply; the one-run-per-name rule does.
func (e *Engine) RunNow(ctx context.Context, name string) error {
	j, err := e.jobs.Get(ctx, name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	st, ok := e.index[name]
	if !ok || (st.rev != j.Rev && !st.running) {
		st = newState(j)
		e.index[name] = st
	}
	if st.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	st.running = true
	e.inflight++
	e.mu.Unlock()

	e.log.Info("engine_run_manual", zap.String("job", name))
	e.launch(j)
	return nil
}

type JobStatus struct {
	domain.Job
	Running   bool      `json:"running"`
	NextRunAt time.Time `json:"next_run_at"`
}

// Status lists the jobs with their engine state, in store order.
func (e *Engine) Status(ctx context.Context) ([]JobStatus, error) {
	jobs, err := e.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]JobStatus, 0, len(jobs))
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, j := range jobs {
		s := JobStatus{Job: j, NextRunAt: j.NextRun(now)}
		if st := e.index[j.Name]; st != nil {
			s.Running = st.running
			if st.lastRun.IsZero() {
				s.NextRunAt = now
			} else {
				s.NextRunAt = st.lastRun.Add(j.Schedule())
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (e *Engine) Running(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.index[name]
	return st != nil && st.running
}

func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight
}

// Wait blocks until every started run has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// Drain is Wait bounded by ctx. Runs still going when ctx is done are logged
// and left to end on their own deadline.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	names := e.runningNames()
	e.log.Warn("engine_drain_abandoned", zap.Strings("running", names), zap.Error(ctx.Err()))
	return fmt.Errorf("engine drain: %d run(s) still in flight: %w", len(names), ctx.Err())
}

func (e *Engine) runningNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for name, st := range e.index {
		if st.running {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
