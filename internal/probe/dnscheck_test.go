package probe

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/hamed0406/pingstatus/internal/domain"
)

func lookPing() (string, error) { return exec.LookPath(DefaultBinary) }

type stubRunner struct{ res domain.ProbeResult }

func (s stubRunner) Run(context.Context, Request) domain.ProbeResult { return s.res }

func TestCheckDNS_NoNetworkCases(t *testing.T) {
	if got := CheckDNS(context.Background(), nil, "").Class; got != DNSInvalidName {
		t.Fatalf("empty host class = %s", got)
	}
	if got := CheckDNS(context.Background(), nil, "http://x").Class; got != DNSInvalidName {
		t.Fatalf("url class = %s", got)
	}
	if got := CheckDNS(context.Background(), nil, "192.0.2.1").Class; got != DNSResolves {
		t.Fatalf("ip literal class = %s", got)
	}
}

func TestDNSAnnotator_AppendsClassOnResolutionFailure(t *testing.T) {
	a := NewDNSAnnotator(stubRunner{res: domain.Failure(domain.ErrNameResolution, "ping: bad address 'x.invalid'")})
	var looked string
	a.Lookup = func(_ context.Context, host string) DNSStatus {
		looked = host
		return DNSStatus{Host: host, Class: DNSNXDomain}
	}

	res := a.Run(context.Background(), Request{Target: "x.invalid", IntervalSec: 1, Count: 1})

	if looked != "x.invalid" {
		t.Fatalf("lookup host = %q", looked)
	}
	if !strings.HasSuffix(res.Err.Detail, "(dns: NXDOMAIN)") {
		t.Fatalf("detail = %q", res.Err.Detail)
	}
}

func TestDNSAnnotator_PassesOtherOutcomes(t *testing.T) {
	for _, res := range []domain.ProbeResult{
		domain.Success(domain.Stats{Transmitted: 1, Received: 1}),
		domain.Failure(domain.ErrTimeout, "killed after 11s"),
	} {
		a := NewDNSAnnotator(stubRunner{res: res})
		a.Lookup = func(context.Context, string) DNSStatus {
			t.Fatal("lookup must not run")
			return DNSStatus{}
		}
		got := a.Run(context.Background(), Request{Target: "1.1.1.1"})
		if got.Outcome != res.Outcome {
			t.Fatalf("outcome changed: %v", got.Outcome)
		}
	}
}
