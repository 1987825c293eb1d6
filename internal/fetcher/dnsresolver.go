package fetcher

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// DNSResolver is a Resolver backed directly by miekg/dns rather than the
// standard library's resolver. Unlike net.Resolver, it distinguishes a
// SERVFAIL response (temporary, should be retried) from NXDOMAIN/NODATA
// (permanent, no policy published), which the discovery sequence in
// RFC 8461 §3.1 depends on.
type DNSResolver struct {
	client *dns.Client
	cfg    *dns.ClientConfig
}

// NewDNSResolver builds a DNSResolver from the system's /etc/resolv.conf.
func NewDNSResolver() (*DNSResolver, error) {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, err
	}
	return &DNSResolver{client: new(dns.Client), cfg: cfg}, nil
}

// RCodeError is returned when a query completes but the server reports a
// non-success RCODE.
type RCodeError struct {
	Name string
	Code int
}

func (e RCodeError) Error() string {
	switch e.Code {
	case dns.RcodeServerFailure:
		return "dns: rcode SERVFAIL when looking up " + e.Name
	case dns.RcodeNameError:
		return "dns: rcode NXDOMAIN when looking up " + e.Name
	case dns.RcodeRefused:
		return "dns: rcode REFUSED when looking up " + e.Name
	}
	return "dns: non-success rcode " + strconv.Itoa(e.Code) + " when looking up " + e.Name
}

// Temporary reports whether retrying the query later might succeed.
func (e RCodeError) Temporary() bool {
	return e.Code == dns.RcodeServerFailure
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.SetEdns0(4096, false)

	var resp *dns.Msg
	var lastErr error
	for _, srv := range r.cfg.Servers {
		resp, _, lastErr = r.client.ExchangeContext(ctx, msg, net.JoinHostPort(srv, r.cfg.Port))
		if lastErr != nil {
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = RCodeError{Name: name, Code: resp.Rcode}
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	recs := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		recs = append(recs, strings.Join(txt.Txt, ""))
	}
	if len(recs) == 0 {
		return nil, RCodeError{Name: name, Code: dns.RcodeNameError}
	}
	return recs, nil
}
