package server

import (
	"context"
	"strings"
	"time"

	"github.com/mxstsd/mxstsd/internal/metrics"
	"github.com/mxstsd/mxstsd/internal/policy"
)

const (
	replyNotFound = "NOTFOUND "
	replyOKPrefix = "OK secure match="
)

// processRequest implements the socketmap decision logic: split the
// request into zone and domain, short-circuit non-recipients, resolve the
// domain's policy through the configured zone, and format the reply.
func (s *Server) processRequest(ctx context.Context, raw string) string {
	start := time.Now()
	zoneName, rawDomain := splitRequest(raw)

	if policy.IsNonRecipient(rawDomain) {
		metrics.RequestsTotal.WithLabelValues("notfound").Inc()
		return replyNotFound
	}

	domain := policy.NormalizeDomain(rawDomain)
	z := s.Zones.Lookup(zoneName)

	entry, found, err := z.Resolve(ctx, s.Cache, domain)
	outcome := "notfound"
	defer func() {
		metrics.ResolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	}()

	if err != nil {
		s.Log.Error("resolve failed", err, "domain", domain, "zone", zoneName)
		return replyNotFound
	}
	if !found {
		return replyNotFound
	}
	if !entry.Fresh(s.Cache.Now()) {
		// Served stale from a FetchError fallback, but too old to trust.
		return replyNotFound
	}

	decision := z.Decide(entry)
	if !decision.Enforce {
		return replyNotFound
	}

	outcome = "ok"
	return replyOKPrefix + strings.Join(decision.MXList, ":")
}

// splitRequest splits raw at the first space into a zone name and a
// domain, per the "<zone> <domain>" request grammar. A request with no
// space at all is treated as an empty zone and an empty (non-recipient)
// domain.
func splitRequest(raw string) (zone, domain string) {
	idx := strings.IndexByte(raw, ' ')
	if idx < 0 {
		return "", ""
	}
	return raw[:idx], raw[idx+1:]
}
