package domain

import (
	"fmt"
	"time"
)

// Outcome is the tag of a ProbeResult.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomePartialLoss
	OutcomeTotalLoss
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialLoss:
		return "partial_loss"
	case OutcomeTotalLoss:
		return "total_loss"
	case OutcomeError:
		return "error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ErrorKind classifies a failed probe.
type ErrorKind string

const (
	ErrNameResolution   ErrorKind = "NameResolution"
	ErrUnprivileged     ErrorKind = "Unprivileged"
	ErrLaunchFailure    ErrorKind = "LaunchFailure"
	ErrUnparsableOutput ErrorKind = "UnparsableOutput"
	ErrTimeout          ErrorKind = "Timeout"
)

// ProbeError is the failure half of a ProbeResult. It is reported, never
// returned up the call stack.
type ProbeError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ProbeError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// RTT holds round-trip timings in milliseconds. Busybox ping prints no
// mean deviation, hence HasMdev.
type RTT struct {
	MinMS   float64 `json:"min_ms"`
	AvgMS   float64 `json:"avg_ms"`
	MaxMS   float64 `json:"max_ms"`
	MdevMS  float64 `json:"mdev_ms"`
	HasMdev bool    `json:"has_mdev"`
}

// Stats is the packet summary of one run.
type Stats struct {
	Transmitted int     `json:"transmitted"`
	Received    int     `json:"received"`
	LossPct     float64 `json:"loss_pct"`
	RTT         *RTT    `json:"rtt,omitempty"`
}

// ProbeResult is the ephemeral outcome of one probe run.
//
// Stats is set for success, partial_loss and total_loss (the latter without
// RTT). Err is set only for OutcomeError.
type ProbeResult struct {
	Outcome   Outcome
	Stats     *Stats
	Err       *ProbeError
	StartedAt time.Time
	Duration  time.Duration
}

func Success(s Stats) ProbeResult     { return ProbeResult{Outcome: OutcomeSuccess, Stats: &s} }
func PartialLoss(s Stats) ProbeResult { return ProbeResult{Outcome: OutcomePartialLoss, Stats: &s} }
func TotalLoss(s Stats) ProbeResult   { return ProbeResult{Outcome: OutcomeTotalLoss, Stats: &s} }

func Failure(kind ErrorKind, detail string) ProbeResult {
	return ProbeResult{Outcome: OutcomeError, Err: &ProbeError{Kind: kind, Detail: detail}}
}

// RunRecord is a flattened ProbeResult kept in the result history.
type RunRecord struct {
	ID          string    `json:"id"`
	JobName     string    `json:"job_name"`
	Target      string    `json:"target"`
	Outcome     string    `json:"outcome"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Transmitted int       `json:"transmitted"`
	Received    int       `json:"received"`
	LossPct     float64   `json:"loss_pct"`
	AvgRTTMS    *float64  `json:"avg_rtt_ms,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// NewRunRecord flattens res for storage.
func NewRunRecord(id string, job Job, res ProbeResult) RunRecord {
	rec := RunRecord{
		ID:         id,
		JobName:    job.Name,
		Target:     job.Target,
		Outcome:    res.Outcome.String(),
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Stats != nil {
		rec.Transmitted = res.Stats.Transmitted
		rec.Received = res.Stats.Received
		rec.LossPct = res.Stats.LossPct
		if res.Stats.RTT != nil {
			v := res.Stats.RTT.AvgMS
			rec.AvgRTTMS = &v
		}
	}
	if res.Err != nil {
		rec.ErrorKind = string(res.Err.Kind)
		rec.Detail = res.Err.Detail
	}
	return rec
}
