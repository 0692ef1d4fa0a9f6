package probe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/domain"
)

const (
	DefaultBinary = "ping"
	DefaultGrace  = 10 * time.Second
)

// Pinger runs the system ping utility, one child process per call.
type Pinger struct {
	Binary string
	// Grace is added to count*interval to get the hard deadline.
	Grace time.Duration
	// WaitDelay bounds how long output pipes may stay open after the kill.
	WaitDelay time.Duration

	log *zap.Logger
}

func NewPinger(binary string, grace time.Duration, log *zap.Logger) *Pinger {
	if binary == "" {
		binary = DefaultBinary
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pinger{Binary: binary, Grace: grace, WaitDelay: 2 * time.Second, log: log}
}

// Deadline is the wall-clock limit applied to req.
func (p *Pinger) Deadline(req Request) time.Duration {
	d := time.Duration(float64(req.Count)*req.IntervalSec*float64(time.Second)) + p.Grace
	if req.Timeout > d {
		d = req.Timeout
	}
	return d
}

func (p *Pinger) Run(ctx context.Context, req Request) domain.ProbeResult {
	deadline := p.Deadline(req)
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	args := []string{
		"-c", strconv.Itoa(req.Count),
		"-i", strconv.FormatFloat(req.IntervalSec, 'f', -1, 64),
		req.Target,
	}
	cmd := exec.CommandContext(runCtx, p.Binary, args...)
	// summary lines are matched in the C locale only
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	cmd.WaitDelay = p.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	res := p.exec(runCtx, cmd, &stdout, &stderr, start)
	res.StartedAt = start
	res.Duration = time.Since(start)

	if res.Outcome == domain.OutcomeError {
		p.log.Warn("probe_error",
			zap.String("target", req.Target),
			zap.String("kind", string(res.Err.Kind)),
			zap.String("detail", res.Err.Detail),
			zap.Duration("elapsed", res.Duration),
		)
	} else {
		p.log.Debug("probe_finished",
			zap.String("target", req.Target),
			zap.String("outcome", res.Outcome.String()),
			zap.Duration("elapsed", res.Duration),
		)
	}
	return res
}

func (p *Pinger) exec(ctx context.Context, cmd *exec.Cmd, stdout, stderr *bytes.Buffer, start time.Time) domain.ProbeResult {
	if err := cmd.Start(); err != nil {
		return domain.Failure(domain.ErrLaunchFailure, err.Error())
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		// killed by our deadline (or the caller gave up); output is incomplete
		return domain.Failure(domain.ErrTimeout, "killed after "+time.Since(start).Round(time.Millisecond).String())
	}
	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return domain.Failure(domain.ErrLaunchFailure, err.Error())
		}
		exitCode = ee.ExitCode()
	}
	return Parse(stdout.String(), stderr.String(), exitCode)
}
