package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/notify"
)

var testJob = domain.Job{Name: "home", Target: "1.1.1.1", IntervalSec: 0.2, Count: 10, ScheduleMinutes: 5}

func at(res domain.ProbeResult) domain.ProbeResult {
	res.StartedAt = time.Date(2025, 8, 18, 10, 30, 0, 0, time.UTC)
	return res
}

func TestFormat_SuccessShowsZeroLossAndTimings(t *testing.T) {
	res := at(domain.Success(domain.Stats{
		Transmitted: 10, Received: 10, LossPct: 0,
		RTT: &domain.RTT{MinMS: 10.912, AvgMS: 11.346, MaxMS: 12.5, MdevMS: 0.321, HasMdev: true},
	}))

	msg := Format(testJob, res)

	assert.Contains(t, msg.Title, "home")
	for _, want := range []string{
		"Target: 1.1.1.1",
		"10 packets, interval 0.2s",
		"2025-08-18 10:30:00 UTC",
		"Packet loss: 0%",
		"Min: 10.91 ms",
		"Avg: 11.35 ms",
		"Max: 12.5 ms",
		"Jitter (mdev): 0.32 ms",
	} {
		assert.Contains(t, msg.Text, want)
	}
}

func TestFormat_TotalLossHasNoTimings(t *testing.T) {
	msg := Format(testJob, at(domain.TotalLoss(domain.Stats{Transmitted: 10, Received: 0, LossPct: 100})))

	assert.Contains(t, msg.Text, "Unreachable")
	assert.Contains(t, msg.Text, "Packet loss: 100%")
	assert.NotContains(t, msg.Text, "Latency")
	assert.NotContains(t, msg.Text, " ms")
}

func TestFormat_PartialLoss(t *testing.T) {
	msg := Format(testJob, at(domain.PartialLoss(domain.Stats{
		Transmitted: 10, Received: 7, LossPct: 30,
		RTT: &domain.RTT{MinMS: 1, AvgMS: 2, MaxMS: 3},
	})))

	assert.Contains(t, msg.Text, "Partial packet loss")
	assert.Contains(t, msg.Text, "Received: 7")
	assert.Contains(t, msg.Text, "Packet loss: 30%")
	assert.NotContains(t, msg.Text, "Jitter")
}

func TestFormat_ErrorShowsKindAndDetail(t *testing.T) {
	msg := Format(testJob, at(domain.Failure(domain.ErrNameResolution, "ping: bad address 'x'")))

	assert.Contains(t, msg.Text, "Probe failed: NameResolution")
	assert.Contains(t, msg.Text, "ping: bad address 'x'")
	assert.NotContains(t, msg.Text, "Results")
}

func TestFormat_Actions(t *testing.T) {
	msg := Format(testJob, at(domain.Failure(domain.ErrTimeout, "")))
	require.Len(t, msg.Actions, 2)
	name, ok := JobRunTarget(msg.Actions[0].Data)
	assert.True(t, ok)
	assert.Equal(t, "home", name)
	assert.Equal(t, ActionJobsMenu, msg.Actions[1].Data)
}

func TestFormat_UnknownOutcomePanics(t *testing.T) {
	assert.Panics(t, func() { Format(testJob, domain.ProbeResult{Outcome: domain.Outcome(99)}) })
}

func TestFormat_CapsLength(t *testing.T) {
	msg := Format(testJob, at(domain.Failure(domain.ErrUnparsableOutput, strings.Repeat("x", 10000))))
	total := len([]rune(msg.Title)) + 2 + len([]rune(msg.Text))
	assert.LessOrEqual(t, total, notify.MaxTelegramText)
	assert.True(t, strings.HasSuffix(msg.Text, "…"))
}

func TestFormatError(t *testing.T) {
	msg := FormatError("Reading the job store", errors.New("jobs.json: permission denied"))
	assert.Equal(t, ErrorTitle, msg.Title)
	assert.Contains(t, msg.Text, "Context: Reading the job store")
	assert.Contains(t, msg.Text, "Error: jobs.json: permission denied")
	assert.Contains(t, msg.Text, "Time: ")
	require.Len(t, msg.Actions, 1)
	assert.Equal(t, ActionJobsMenu, msg.Actions[0].Data)

	long := FormatError("x", errors.New(strings.Repeat("e", 10000)))
	assert.LessOrEqual(t, len([]rune(long.Title))+2+len([]rune(long.Text)), notify.MaxTelegramText)
}

func TestFmtNum(t *testing.T) {
	cases := map[float64]string{0: "0", 30: "30", 33.333: "33.3", 0.2: "0.2", 100: "100"}
	for in, want := range cases {
		assert.Equal(t, want, fmtNum(in, 1), "fmtNum(%v)", in)
	}
}
