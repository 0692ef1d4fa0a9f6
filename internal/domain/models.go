package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Limits accepted for job parameters.
const (
	MaxNameLen         = 32
	MaxTargetLen       = 253
	MaxIntervalSec     = 3600.0
	MaxCount           = 100000
	MaxScheduleMinutes = 10080 // one week
)

var nameRE = regexp.MustCompile(`^[a-zA-Z0-9_. -]+$`)

// Job is a named, persisted probe definition.
type Job struct {
	Name            string     `json:"name"`
	Target          string     `json:"target"`
	IntervalSec     float64    `json:"interval_sec"`
	Count           int        `json:"count"`
	ScheduleMinutes int        `json:"schedule_minutes"`
	LastRunAt       *time.Time `json:"last_run_at"`

	// Rev is set by the job store when the record is created and kept across
	// updates; a job deleted and created again under the same name gets a new
	// one. Not persisted.
	Rev uint64 `json:"-"`
}

// Schedule is the recurrence period between runs.
func (j Job) Schedule() time.Duration {
	return time.Duration(j.ScheduleMinutes) * time.Minute
}

// NextRun returns when the job becomes due. A job that never ran is due now.
func (j Job) NextRun(now time.Time) time.Time {
	if j.LastRunAt == nil {
		return now
	}
	return j.LastRunAt.Add(j.Schedule())
}

// ValidationError reports a rejected job parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateName checks a job name on its own, e.g. before a rename.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > MaxNameLen {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("longer than %d characters", MaxNameLen)}
	}
	if !nameRE.MatchString(name) {
		return &ValidationError{Field: "name", Reason: "use letters, digits, space, '_', '-' or '.'"}
	}
	return nil
}

// Validate checks every job field. It runs on every create and update,
// never on read.
func (j Job) Validate() error {
	if err := ValidateName(j.Name); err != nil {
		return err
	}
	switch {
	case j.Target == "":
		return &ValidationError{Field: "target", Reason: "must not be empty"}
	case len(j.Target) > MaxTargetLen:
		return &ValidationError{Field: "target", Reason: "too long"}
	case strings.HasPrefix(j.Target, "-"):
		// would be read as a ping flag
		return &ValidationError{Field: "target", Reason: "must not start with '-'"}
	case strings.ContainsAny(j.Target, " \t\r\n/"):
		return &ValidationError{Field: "target", Reason: "must be a hostname or IP literal"}
	}
	if !(j.IntervalSec > 0) || j.IntervalSec > MaxIntervalSec {
		return &ValidationError{Field: "interval_sec", Reason: fmt.Sprintf("must be in (0, %g]", MaxIntervalSec)}
	}
	if j.Count < 1 || j.Count > MaxCount {
		return &ValidationError{Field: "count", Reason: fmt.Sprintf("must be in [1, %d]", MaxCount)}
	}
	if j.ScheduleMinutes < 1 || j.ScheduleMinutes > MaxScheduleMinutes {
		return &ValidationError{Field: "schedule_minutes", Reason: fmt.Sprintf("must be in [1, %d]", MaxScheduleMinutes)}
	}
	return nil
}

// EventType distinguishes the two inbound front-end event kinds.
type EventType string

const (
	EventCommand  EventType = "command"
	EventCallback EventType = "callback"
)

// Event is what the messaging front end hands to the core. The front end has
// already rejected non-admin senders.
type Event struct {
	Type    EventType `json:"type"`
	AdminID int64     `json:"admin_id"`
	Payload string    `json:"payload"`
}
