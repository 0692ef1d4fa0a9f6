package probe

import (
	"strings"
	"testing"

	"github.com/hamed0406/pingstatus/internal/domain"
)

const linuxSuccess = `PING 1.1.1.1 (1.1.1.1) 56(84) bytes of data.
64 bytes from 1.1.1.1: icmp_seq=1 ttl=57 time=11.2 ms
64 bytes from 1.1.1.1: icmp_seq=2 ttl=57 time=10.9 ms

--- 1.1.1.1 ping statistics ---
10 packets transmitted, 10 received, 0% packet loss, time 1809ms
rtt min/avg/max/mdev = 10.912/11.345/12.001/0.321 ms
`

const linuxPartial = `PING 10.0.0.7 (10.0.0.7) 56(84) bytes of data.
64 bytes from 10.0.0.7: icmp_seq=1 ttl=64 time=0.512 ms

--- 10.0.0.7 ping statistics ---
10 packets transmitted, 7 received, 30% packet loss, time 1820ms
rtt min/avg/max/mdev = 0.401/0.512/0.733/0.101 ms
`

const linuxTotalLoss = `PING 10.255.255.1 (10.255.255.1) 56(84) bytes of data.

--- 10.255.255.1 ping statistics ---
10 packets transmitted, 0 received, 100% packet loss, time 9213ms
`

const linuxUnreachable = `PING 10.0.0.99 (10.0.0.99) 56(84) bytes of data.
From 10.0.0.1 icmp_seq=1 Destination Host Unreachable

--- 10.0.0.99 ping statistics ---
10 packets transmitted, 0 received, +10 errors, 100% packet loss, time 9150ms
`

const macSuccess = `PING 8.8.8.8 (8.8.8.8): 56 data bytes
64 bytes from 8.8.8.8: icmp_seq=0 ttl=118 time=44.347 ms

--- 8.8.8.8 ping statistics ---
3 packets transmitted, 3 packets received, 0.0% packet loss
round-trip min/avg/max/stddev = 43.100/44.347/45.020/0.750 ms
`

const busyboxSuccess = `PING 8.8.8.8 (8.8.8.8): 56 data bytes
64 bytes from 8.8.8.8: seq=0 ttl=118 time=12.300 ms

--- 8.8.8.8 ping statistics ---
2 packets transmitted, 2 packets received, 0% packet loss
round-trip min/avg/max = 12.1/12.3/12.5 ms
`

func TestParse_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		stderr  string
		exit    int
		outcome domain.Outcome
		kind    domain.ErrorKind
		tx, rx  int
		loss    float64
	}{
		{name: "linux success", stdout: linuxSuccess, outcome: domain.OutcomeSuccess, tx: 10, rx: 10, loss: 0},
		{name: "linux partial", stdout: linuxPartial, exit: 1, outcome: domain.OutcomePartialLoss, tx: 10, rx: 7, loss: 30},
		{name: "linux total loss", stdout: linuxTotalLoss, exit: 1, outcome: domain.OutcomeTotalLoss, tx: 10, rx: 0, loss: 100},
		{name: "linux unreachable", stdout: linuxUnreachable, exit: 1, outcome: domain.OutcomeTotalLoss, tx: 10, rx: 0, loss: 100},
		{name: "macOS success", stdout: macSuccess, outcome: domain.OutcomeSuccess, tx: 3, rx: 3, loss: 0},
		{name: "busybox success", stdout: busyboxSuccess, outcome: domain.OutcomeSuccess, tx: 2, rx: 2, loss: 0},
		{
			name:    "linux unknown host",
			stderr:  "ping: nosuchhost.invalid: Name or service not known\n",
			exit:    2,
			outcome: domain.OutcomeError, kind: domain.ErrNameResolution,
		},
		{
			name:    "macOS unknown host",
			stderr:  "ping: cannot resolve nosuchhost.invalid: Unknown host\n",
			exit:    68,
			outcome: domain.OutcomeError, kind: domain.ErrNameResolution,
		},
		{
			name:    "busybox bad address",
			stderr:  "ping: bad address 'nosuchhost.invalid'\n",
			exit:    1,
			outcome: domain.OutcomeError, kind: domain.ErrNameResolution,
		},
		{
			name:    "flood interval refused",
			stderr:  "ping: cannot flood; minimal interval allowed for user is 200ms\n",
			exit:    2,
			outcome: domain.OutcomeError, kind: domain.ErrUnprivileged,
		},
		{
			name:    "macOS interval refused",
			stderr:  "ping: -i interval too short: Operation not permitted\n",
			exit:    64,
			outcome: domain.OutcomeError, kind: domain.ErrUnprivileged,
		},
		{
			name:    "unknown format",
			stdout:  "PONG 1.1.1.1 all good, 10 of 10 back\n",
			outcome: domain.OutcomeError, kind: domain.ErrUnparsableOutput,
		},
		{
			name:    "empty",
			exit:    2,
			outcome: domain.OutcomeError, kind: domain.ErrUnparsableOutput,
		},
		{
			name:    "received but no rtt line",
			stdout:  "5 packets transmitted, 5 received, 0% packet loss\n",
			outcome: domain.OutcomeError, kind: domain.ErrUnparsableOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.stdout, tt.stderr, tt.exit)
			if got.Outcome != tt.outcome {
				t.Fatalf("outcome = %v, want %v (err=%v)", got.Outcome, tt.outcome, got.Err)
			}
			if tt.outcome == domain.OutcomeError {
				if got.Err == nil || got.Err.Kind != tt.kind {
					t.Fatalf("err = %v, want kind %s", got.Err, tt.kind)
				}
				if got.Stats != nil {
					t.Fatalf("error result must not carry stats")
				}
				return
			}
			if got.Stats == nil {
				t.Fatal("stats missing")
			}
			if got.Stats.Transmitted != tt.tx || got.Stats.Received != tt.rx || got.Stats.LossPct != tt.loss {
				t.Fatalf("stats = %+v", *got.Stats)
			}
		})
	}
}

func TestParse_RTTVariants(t *testing.T) {
	linux := Parse(linuxSuccess, "", 0).Stats.RTT
	if linux == nil || linux.MinMS != 10.912 || linux.AvgMS != 11.345 || linux.MaxMS != 12.001 || linux.MdevMS != 0.321 || !linux.HasMdev {
		t.Fatalf("linux rtt = %+v", linux)
	}
	mac := Parse(macSuccess, "", 0).Stats.RTT
	if mac == nil || mac.MdevMS != 0.75 || !mac.HasMdev {
		t.Fatalf("mac rtt = %+v", mac)
	}
	bb := Parse(busyboxSuccess, "", 0).Stats.RTT
	if bb == nil || bb.AvgMS != 12.3 || bb.HasMdev {
		t.Fatalf("busybox rtt = %+v", bb)
	}
	if total := Parse(linuxTotalLoss, "", 1); total.Stats.RTT != nil {
		t.Fatalf("total loss must have no timing")
	}
}

func TestParse_UnparsableKeepsRawOutput(t *testing.T) {
	out := "PONG 1.1.1.1 all good\nsecond line\n"
	got := Parse(out, "warning: odd\n", 3)
	if got.Err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"exit status 3", "PONG 1.1.1.1 all good", "second line", "warning: odd"} {
		if !strings.Contains(got.Err.Detail, want) {
			t.Fatalf("detail %q missing %q", got.Err.Detail, want)
		}
	}
}

func TestParse_LossComputedWhenMissing(t *testing.T) {
	out := "4 packets transmitted, 3 received\nrtt min/avg/max/mdev = 1.0/2.0/3.0/0.5 ms\n"
	got := Parse(out, "", 1)
	if got.Outcome != domain.OutcomePartialLoss || got.Stats.LossPct != 25 {
		t.Fatalf("got %v %+v", got.Outcome, got.Stats)
	}
}
