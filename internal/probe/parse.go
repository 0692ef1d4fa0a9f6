package probe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hamed0406/pingstatus/internal/domain"
)

// Summary formats accepted:
//
//	iputils:  10 packets transmitted, 10 received, 0% packet loss, time 9013ms
//	          rtt min/avg/max/mdev = 10.912/11.345/12.001/0.321 ms
//	macOS:    10 packets transmitted, 10 packets received, 0.0% packet loss
//	          round-trip min/avg/max/stddev = 10.1/11.2/12.3/0.5 ms
//	busybox:  10 packets transmitted, 10 packets received, 0% packet loss
//	          round-trip min/avg/max = 10.1/11.2/12.3 ms
var (
	countsRE = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)
	lossRE   = regexp.MustCompile(`([\d.]+)% packet loss`)
	rttRE    = regexp.MustCompile(`(?:rtt|round-trip) min/avg/max(?:/(?:mdev|stddev))? = ([\d.]+)/([\d.]+)/([\d.]+)(?:/([\d.]+))? ms`)
)

var resolverMarkers = []string{
	"Name or service not known",
	"Temporary failure in name resolution",
	"No address associated with hostname",
	"cannot resolve",
	"Unknown host",
	"unknown host",
	"bad address",
	"Name does not resolve",
}

var privilegeMarkers = []string{
	"cannot flood",
	"minimal interval",
	"interval too short",
	"Operation not permitted",
	"Permission denied",
	"permission denied",
}

// Parse turns the captured output of one ping invocation into a result.
// It never consults the network or the process table.
func Parse(stdout, stderr string, exitCode int) domain.ProbeResult {
	m := countsRE.FindStringSubmatch(stdout)
	if m == nil {
		return classifyFailure(stdout, stderr, exitCode)
	}
	tx, _ := strconv.Atoi(m[1])
	rx, _ := strconv.Atoi(m[2])
	if rx > tx {
		// duplicates are reported separately; a larger count means a format we do not know
		return domain.Failure(domain.ErrUnparsableOutput, rawOutput(stdout, stderr))
	}

	st := domain.Stats{Transmitted: tx, Received: rx}
	if lm := lossRE.FindStringSubmatch(stdout); lm != nil {
		st.LossPct, _ = strconv.ParseFloat(lm[1], 64)
	} else if tx > 0 {
		st.LossPct = 100 * float64(tx-rx) / float64(tx)
	}

	if rx == 0 {
		return domain.TotalLoss(st)
	}

	rtt, ok := parseRTT(stdout)
	if !ok {
		return domain.Failure(domain.ErrUnparsableOutput, rawOutput(stdout, stderr))
	}
	st.RTT = rtt
	if rx < tx {
		return domain.PartialLoss(st)
	}
	return domain.Success(st)
}

func parseRTT(out string) (*domain.RTT, bool) {
	m := rttRE.FindStringSubmatch(out)
	if m == nil {
		return nil, false
	}
	var vals [4]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	rtt := &domain.RTT{MinMS: vals[0], AvgMS: vals[1], MaxMS: vals[2]}
	if m[4] != "" {
		v, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return nil, false
		}
		rtt.MdevMS = v
		rtt.HasMdev = true
	}
	return rtt, true
}

func classifyFailure(stdout, stderr string, exitCode int) domain.ProbeResult {
	msg := firstLine(stderr)
	if msg == "" {
		msg = firstLine(stdout)
	}
	all := stderr + "\n" + stdout
	switch {
	case containsAny(all, resolverMarkers):
		return domain.Failure(domain.ErrNameResolution, msg)
	case containsAny(all, privilegeMarkers):
		return domain.Failure(domain.ErrUnprivileged, msg)
	}
	raw := rawOutput(stdout, stderr)
	if exitCode != 0 {
		raw = fmt.Sprintf("exit status %d: %s", exitCode, raw)
	}
	return domain.Failure(domain.ErrUnparsableOutput, raw)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func rawOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout)
	if e := strings.TrimSpace(stderr); e != "" {
		if out != "" {
			out += "\n"
		}
		out += e
	}
	if out == "" {
		return "(no output)"
	}
	return out
}
