// Package report renders probe results for the operator.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/notify"
)

const (
	ActionRunPrefix = "job_run:"
	ActionJobsMenu  = "menu_jobs"

	ErrorTitle = "⚠️ pingstatus error"
)

// Format renders the outcome of one run of job. It panics on an outcome it
// does not know, which can only be a programming error.
func Format(job domain.Job, res domain.ProbeResult) notify.Message {
	at := res.StartedAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 Target: %s\n", job.Target)
	fmt.Fprintf(&b, "📦 Test: %d packets, interval %ss\n", job.Count, fmtNum(job.IntervalSec, 3))
	fmt.Fprintf(&b, "🕒 Time: %s\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("\n")

	switch res.Outcome {
	case domain.OutcomeSuccess:
		b.WriteString("✅ Reachable\n\n")
		writeStats(&b, res.Stats)
		writeRTT(&b, res.Stats.RTT)
	case domain.OutcomePartialLoss:
		b.WriteString("⚠️ Partial packet loss\n\n")
		writeStats(&b, res.Stats)
		writeRTT(&b, res.Stats.RTT)
	case domain.OutcomeTotalLoss:
		b.WriteString("❌ Unreachable: no replies received\n\n")
		writeStats(&b, res.Stats)
	case domain.OutcomeError:
		fmt.Fprintf(&b, "🚫 Probe failed: %s\n", res.Err.Kind)
		if res.Err.Detail != "" {
			fmt.Fprintf(&b, "\n%s\n", res.Err.Detail)
		}
	default:
		panic(fmt.Sprintf("report: unmapped outcome %v", res.Outcome))
	}

	title := "📡 Ping report: " + job.Name
	return notify.Message{
		Title: title,
		Text:  truncate(strings.TrimRight(b.String(), "\n"), notify.MaxTelegramText-len([]rune(title))-2),
		Actions: []notify.Action{
			{Label: "Run now", Data: ActionRunPrefix + job.Name},
			{Label: "Jobs", Data: ActionJobsMenu},
		},
	}
}

// FormatError renders an internal failure for the admin. what says what the
// service was doing when err happened.
func FormatError(what string, err error) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s\n", what)
	fmt.Fprintf(&b, "Error: %v\n", err)
	fmt.Fprintf(&b, "🕒 Time: %s", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	return notify.Message{
		Title:   ErrorTitle,
		Text:    truncate(b.String(), notify.MaxTelegramText-len([]rune(ErrorTitle))-2),
		Actions: []notify.Action{{Label: "Jobs", Data: ActionJobsMenu}},
	}
}

func writeStats(b *strings.Builder, st *domain.Stats) {
	if st == nil {
		return
	}
	b.WriteString("📊 Results:\n")
	fmt.Fprintf(b, "• Sent: %d\n", st.Transmitted)
	fmt.Fprintf(b, "• Received: %d\n", st.Received)
	fmt.Fprintf(b, "• Packet loss: %s%%\n", fmtNum(st.LossPct, 1))
}

func writeRTT(b *strings.Builder, rtt *domain.RTT) {
	if rtt == nil {
		return
	}
	b.WriteString("\n⏱ Latency (RTT):\n")
	fmt.Fprintf(b, "• Min: %s ms\n", fmtNum(rtt.MinMS, 2))
	fmt.Fprintf(b, "• Avg: %s ms\n", fmtNum(rtt.AvgMS, 2))
	fmt.Fprintf(b, "• Max: %s ms\n", fmtNum(rtt.MaxMS, 2))
	if rtt.HasMdev {
		fmt.Fprintf(b, "• Jitter (mdev): %s ms\n", fmtNum(rtt.MdevMS, 2))
	}
}

// fmtNum prints v with at most digits decimals and no trailing zeros.
func fmtNum(v float64, digits int) string {
	s := strconv.FormatFloat(v, 'f', digits, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// JobRunTarget extracts the job name from a "Run now" callback payload.
func JobRunTarget(data string) (string, bool) {
	name, ok := strings.CutPrefix(data, ActionRunPrefix)
	return name, ok && name != ""
}
