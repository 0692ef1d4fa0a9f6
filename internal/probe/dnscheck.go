package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hamed0406/pingstatus/internal/domain"
)

type DNSClass string

const (
	DNSResolves    DNSClass = "RESOLVES"
	DNSNXDomain    DNSClass = "NXDOMAIN"
	DNSNoARecord   DNSClass = "NO_A_RECORD"
	DNSServfail    DNSClass = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName DNSClass = "INVALID_NAME"
)

var defaultDNSBudget = 3 * time.Second

type DNSStatus struct {
	Host          string
	IPs           []net.IP
	Nameservers   []string
	Class         DNSClass
	ResolverError string
}

// CheckDNS classifies why host does or does not resolve. A nil resolver
// means the OS resolver.
func CheckDNS(ctx context.Context, r *net.Resolver, host string) DNSStatus {
	s := DNSStatus{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.Contains(s.Host, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if net.ParseIP(s.Host) != nil {
		s.Class = DNSResolves
		return s
	}
	if r == nil {
		r = net.DefaultResolver
	}

	ips, err := r.LookupIP(ctx, "ip", s.Host)
	if err == nil && len(ips) > 0 {
		s.IPs = ips
		s.Class = DNSResolves
		return s
	}
	if err != nil {
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			switch {
			case de.IsNotFound:
				s.Class = DNSNXDomain
			case de.IsTemporary || de.Timeout():
				s.Class = DNSServfail
			}
		}
	}

	// the zone exists but has no address records
	if ns, err := r.LookupNS(ctx, s.Host); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		s.Class = DNSNoARecord
	}

	if s.Class == "" {
		if s.ResolverError != "" {
			s.Class = DNSServfail
		} else {
			s.Class = DNSNXDomain
		}
	}
	return s
}

// DNSAnnotator adds a resolver diagnosis to NameResolution failures of the
// wrapped runner. Other outcomes pass through untouched.
type DNSAnnotator struct {
	Next   Runner
	Budget time.Duration
	Lookup func(ctx context.Context, host string) DNSStatus
}

func NewDNSAnnotator(next Runner) *DNSAnnotator {
	return &DNSAnnotator{
		Next:   next,
		Budget: defaultDNSBudget,
		Lookup: func(ctx context.Context, host string) DNSStatus { return CheckDNS(ctx, nil, host) },
	}
}

func (a *DNSAnnotator) Run(ctx context.Context, req Request) domain.ProbeResult {
	res := a.Next.Run(ctx, req)
	if res.Outcome != domain.OutcomeError || res.Err == nil || res.Err.Kind != domain.ErrNameResolution {
		return res
	}
	budget := a.Budget
	if budget <= 0 {
		budget = defaultDNSBudget
	}
	lctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	var st DNSStatus
	if a.Lookup != nil {
		st = a.Lookup(lctx, req.Target)
	} else {
		st = CheckDNS(lctx, nil, req.Target)
	}
	res.Err.Detail = fmt.Sprintf("%s (dns: %s)", res.Err.Detail, st.Class)
	return res
}
