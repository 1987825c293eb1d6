// Package fetcher implements the RFC 8461 discovery sequence for a single
// domain: TXT lookup at _mta-sts.<domain>, an optional conditional
// short-circuit, and a strict HTTPS fetch of the policy document.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/mxstsd/mxstsd/internal/policy"
)

// Status is the outcome of a Fetch call, matching the FetchResult variants
// of the MTA-STS freshness protocol.
type Status int

const (
	// StatusValid means a new or replacement policy was retrieved.
	StatusValid Status = iota
	// StatusNotChanged means the cached policy id is still current; the
	// caller's cached body is still good.
	StatusNotChanged
	// StatusNone means no STS policy exists for this domain.
	StatusNone
	// StatusFetchError means a transient failure occurred; the caller
	// must not evict any existing cache entry.
	StatusFetchError
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNotChanged:
		return "not_changed"
	case StatusNone:
		return "none"
	case StatusFetchError:
		return "fetch_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of a discovery attempt.
type Result struct {
	Status   Status
	PolicyID string
	Body     *policy.Body
}

// Resolver is the DNS TXT lookup seam. It is satisfied by *net.Resolver
// and by github.com/foxcpp/go-mockdns's Resolver in tests.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Fetcher performs RFC 8461 discovery for a domain.
type Fetcher struct {
	Resolver   Resolver
	HTTPClient *http.Client
}

// New builds a Fetcher that looks up TXT records through resolver and
// fetches policies with an HTTP client configured per RFC 8461: no redirects, strict PKIX validation (the Go
// default transport already does this), and the given overall timeout
// applied as the client's own deadline on top of whatever the caller's
// context carries.
func New(resolver Resolver, timeout time.Duration) *Fetcher {
	return &Fetcher{
		Resolver: resolver,
		HTTPClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return errors.New("fetcher: HTTP redirects are forbidden by RFC 8461")
			},
		},
	}
}

// Fetch runs the discovery sequence for domain. latestPolicyID, if
// non-empty, is the id of the policy the caller already has cached; if the
// TXT record advertises the same id, Fetch returns StatusNotChanged
// without performing the HTTPS round trip.
func (f *Fetcher) Fetch(ctx context.Context, domain, latestPolicyID string) Result {
	txt, err := f.Resolver.LookupTXT(ctx, "_mta-sts."+domain)
	if err != nil {
		if isTemporaryDNSErr(err) {
			return Result{Status: StatusFetchError}
		}
		// NXDOMAIN, NODATA, or any other permanent failure: no policy.
		return Result{Status: StatusNone}
	}

	// RFC 8461 §3.1: if the number of resulting records is not one, or
	// the record is syntactically invalid, assume no policy is published.
	if len(txt) != 1 {
		return Result{Status: StatusNone}
	}

	txtID, err := policy.ReadDNSRecord(txt[0])
	if err != nil {
		return Result{Status: StatusNone}
	}

	if latestPolicyID != "" && latestPolicyID == txtID {
		return Result{Status: StatusNotChanged, PolicyID: txtID}
	}

	body, err := f.downloadPolicy(ctx, domain)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return Result{Status: StatusNone}
		}
		return Result{Status: StatusFetchError}
	}

	return Result{Status: StatusValid, PolicyID: txtID, Body: body}
}

var errNotFound = errors.New("fetcher: policy host returned 404")

func (f *Fetcher) downloadPolicy(ctx context.Context, domain string) (*policy.Body, error) {
	url := "https://mta-sts." + domain + "/.well-known/mta-sts.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Host = "mta-sts." + domain

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetcher: unexpected HTTP status %s", resp.Status)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err == nil && parsed != "text/plain" {
			return nil, fmt.Errorf("fetcher: unexpected content type %q", parsed)
		}
	}

	body, err := policy.ReadBody(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		// A policy host that serves garbage is, for decision purposes,
		// indistinguishable from one that serves nothing.
		return nil, errNotFound
	}
	return body, nil
}

func isTemporaryDNSErr(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return false
		}
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
