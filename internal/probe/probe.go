package probe

import (
	"context"
	"time"

	"github.com/hamed0406/pingstatus/internal/domain"
)

// Request describes one probe run.
type Request struct {
	Target      string
	IntervalSec float64
	Count       int
	// Timeout is a lower bound; runners extend it to cover the packets sent.
	Timeout time.Duration
}

// RequestFor builds the request for a job.
func RequestFor(j domain.Job) Request {
	return Request{Target: j.Target, IntervalSec: j.IntervalSec, Count: j.Count}
}

// Runner performs a single probe run. Failures are carried inside the
// result, Run never returns an error.
type Runner interface {
	Run(ctx context.Context, req Request) domain.ProbeResult
}
