// Package resolver wraps a fetcher.Fetcher with the per-zone timeout that
// bounds a single discovery attempt.
package resolver

import (
	"context"
	"time"

	"github.com/mxstsd/mxstsd/internal/fetcher"
)

// Fetcher is the subset of *fetcher.Fetcher the Resolver depends on.
type Fetcher interface {
	Fetch(ctx context.Context, domain, latestPolicyID string) fetcher.Result
}

// Resolver runs a single discovery attempt for a domain within a bounded
// deadline. It holds no state of its own; the Cache above it owns
// freshness and deduplication.
type Resolver struct {
	Fetcher Fetcher
	Timeout time.Duration
}

// New builds a Resolver with the given timeout. timeout <= 0 means no
// deadline is imposed beyond the caller's context.
func New(f Fetcher, timeout time.Duration) *Resolver {
	return &Resolver{Fetcher: f, Timeout: timeout}
}

// Resolve performs discovery for domain, bounding the attempt by r.Timeout.
// latestPolicyID is the id of the currently cached policy, if any, enabling
// the fetcher's not-changed short-circuit.
func (r *Resolver) Resolve(ctx context.Context, domain, latestPolicyID string) fetcher.Result {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res := r.Fetcher.Fetch(ctx, domain, latestPolicyID)
	if ctx.Err() != nil {
		// The deadline fired mid-fetch; report it uniformly as a
		// transient failure regardless of what the fetcher itself saw.
		return fetcher.Result{Status: fetcher.StatusFetchError}
	}
	return res
}
