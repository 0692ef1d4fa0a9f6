package probe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/domain"
)

// fakePing writes an executable shell script standing in for ping.
func fakePing(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ping")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestPinger_ParsesScriptOutput(t *testing.T) {
	bin := fakePing(t, "cat <<'EOF'\n"+linuxSuccess+"EOF")
	p := NewPinger(bin, time.Second, zap.NewNop())

	res := p.Run(context.Background(), Request{Target: "1.1.1.1", IntervalSec: 0.2, Count: 10})

	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 10, res.Stats.Received)
	assert.False(t, res.StartedAt.IsZero())
}

func TestPinger_PassesArguments(t *testing.T) {
	bin := fakePing(t, `[ "$*" = "-c 3 -i 0.5 example.org" ] || { echo "bad args: $*" >&2; exit 9; }
echo "3 packets transmitted, 0 received, 100% packet loss"
exit 1`)
	p := NewPinger(bin, time.Second, zap.NewNop())

	res := p.Run(context.Background(), Request{Target: "example.org", IntervalSec: 0.5, Count: 3})

	require.Equal(t, domain.OutcomeTotalLoss, res.Outcome)
}

func TestPinger_NonZeroExitIsParsed(t *testing.T) {
	bin := fakePing(t, `echo "ping: nosuch.invalid: Name or service not known" >&2
exit 2`)
	p := NewPinger(bin, time.Second, zap.NewNop())

	res := p.Run(context.Background(), Request{Target: "nosuch.invalid", IntervalSec: 0.2, Count: 1})

	require.Equal(t, domain.OutcomeError, res.Outcome)
	assert.Equal(t, domain.ErrNameResolution, res.Err.Kind)
}

func TestPinger_TimeoutKillsChild(t *testing.T) {
	bin := fakePing(t, "exec sleep 30")
	p := NewPinger(bin, 200*time.Millisecond, zap.NewNop())
	p.WaitDelay = 100 * time.Millisecond

	start := time.Now()
	res := p.Run(context.Background(), Request{Target: "1.1.1.1", IntervalSec: 0.01, Count: 1})

	require.Equal(t, domain.OutcomeError, res.Outcome)
	assert.Equal(t, domain.ErrTimeout, res.Err.Kind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPinger_MissingBinary(t *testing.T) {
	p := NewPinger(filepath.Join(t.TempDir(), "no-such-ping"), time.Second, zap.NewNop())

	res := p.Run(context.Background(), Request{Target: "1.1.1.1", IntervalSec: 0.2, Count: 1})

	require.Equal(t, domain.OutcomeError, res.Outcome)
	assert.Equal(t, domain.ErrLaunchFailure, res.Err.Kind)
}

func TestPinger_Deadline(t *testing.T) {
	p := NewPinger("", 10*time.Second, nil)
	assert.Equal(t, DefaultBinary, p.Binary)
	assert.Equal(t, 12*time.Second, p.Deadline(Request{IntervalSec: 0.2, Count: 10}))
	assert.Equal(t, time.Minute, p.Deadline(Request{IntervalSec: 0.2, Count: 10, Timeout: time.Minute}))
}

// Runs the real utility when present, like the network-monitor checks.
func TestPinger_RealLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real ping in short mode")
	}
	bin, err := lookPing()
	if err != nil {
		t.Skip("ping not installed")
	}
	p := NewPinger(bin, 5*time.Second, zap.NewNop())
	res := p.Run(context.Background(), Request{Target: "127.0.0.1", IntervalSec: 0.2, Count: 2})
	// sandboxes often forbid raw sockets; only a parsed success is asserted
	if res.Outcome == domain.OutcomeError {
		t.Skipf("ping unusable here: %v", res.Err)
	}
	assert.Equal(t, 2, res.Stats.Transmitted)
}
