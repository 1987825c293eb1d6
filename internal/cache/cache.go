// Package cache implements the domain-to-policy cache: a bounded LRU with
// singleflight-protected resolution, so that concurrent lookups for the
// same domain share a single in-flight fetch.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mxstsd/mxstsd/internal/fetcher"
	"github.com/mxstsd/mxstsd/internal/metrics"
	"github.com/mxstsd/mxstsd/internal/policy"
)

// Entry is a cached policy together with the time it was fetched, from
// which freshness (fetchedAt + max_age) is derived.
type Entry struct {
	PolicyID  string
	Body      *policy.Body
	FetchedAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return now.After(e.FetchedAt.Add(time.Duration(e.Body.MaxAge) * time.Second))
}

// Fresh reports whether e is still usable for decisions as of now: the
// decision layer must re-check this even for entries GetOrResolve returned
// after a FetchError, since those are served stale-as-is.
func (e Entry) Fresh(now time.Time) bool {
	return !e.expired(now)
}

// Resolver is the lookup seam the cache drives on a miss or expiry.
type Resolver interface {
	Resolve(ctx context.Context, domain, latestPolicyID string) fetcher.Result
}

// Cache is a bounded, single-flight-protected store of per-domain
// policies.
type Cache struct {
	resolver Resolver

	mu    sync.Mutex
	lru   *lru.Cache[string, Entry]
	group singleflight.Group

	now func() time.Time
}

// New builds a Cache backed by an LRU of the given capacity. capacity <= 0
// makes the LRU constructor fail, and New returns that error; configuration
// validation already rejects such values before New is called.
func New(resolver Resolver, capacity int) (*Cache, error) {
	l, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{resolver: resolver, lru: l, now: time.Now}, nil
}

// Get returns the cached policy for domain and whether it was present and
// still fresh, without triggering a resolution.
func (c *Cache) Get(domain string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(domain)
	if !ok {
		return Entry{}, false
	}
	return e, !e.expired(c.now())
}

// GetOrResolve returns the fresh cached entry for domain if one exists;
// otherwise it resolves the domain, deduplicating concurrent callers for
// the same domain via singleflight. The boolean result is false when the
// outcome is "no policy published" (fetcher.StatusNone) rather than an
// error.
func (c *Cache) GetOrResolve(ctx context.Context, domain string) (Entry, bool, error) {
	if e, fresh := c.Get(domain); fresh {
		return e, true, nil
	}

	v, err, _ := c.group.Do(domain, func() (interface{}, error) {
		metrics.SingleflightInflight.Inc()
		defer metrics.SingleflightInflight.Dec()
		return c.resolve(ctx, domain)
	})
	if err != nil {
		return Entry{}, false, err
	}
	res := v.(resolveOutcome)
	if !res.found {
		return Entry{}, false, nil
	}
	return res.entry, true, nil
}

type resolveOutcome struct {
	entry Entry
	found bool
}

func (c *Cache) resolve(ctx context.Context, domain string) (resolveOutcome, error) {
	stale, hadStale := c.peekStale(domain)
	latestID := ""
	if hadStale {
		latestID = stale.PolicyID
	}

	res := c.resolver.Resolve(ctx, domain, latestID)
	metrics.FetchTotal.WithLabelValues(res.Status.String()).Inc()
	switch res.Status {
	case fetcher.StatusFetchError:
		if hadStale {
			// A transient failure must not evict a still-unexpired-enough
			// cache entry; serve what we have.
			return resolveOutcome{entry: stale, found: true}, nil
		}
		return resolveOutcome{}, fetchError{}
	case fetcher.StatusNotChanged:
		if !hadStale {
			// Should not happen: the fetcher only reports NotChanged when
			// we supplied a latestID, which implies we had an entry.
			return resolveOutcome{}, nil
		}
		entry := Entry{PolicyID: stale.PolicyID, Body: stale.Body, FetchedAt: c.now()}
		c.store(domain, entry)
		return resolveOutcome{entry: entry, found: true}, nil
	case fetcher.StatusValid:
		entry := Entry{PolicyID: res.PolicyID, Body: res.Body, FetchedAt: c.now()}
		c.store(domain, entry)
		return resolveOutcome{entry: entry, found: true}, nil
	case fetcher.StatusNone:
		// No usable TXT record is not sufficient grounds to remove a
		// previously cached policy: leave any existing entry untouched.
		return resolveOutcome{found: false}, nil
	default:
		return resolveOutcome{found: false}, nil
	}
}

// peekStale returns the cached entry for domain even if expired, so an
// expired-but-present entry can still be used as the NotChanged reference
// id and as a fallback on FetchError.
func (c *Cache) peekStale(domain string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(domain)
}

func (c *Cache) store(domain string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(domain, e)
}

// Now returns the cache's notion of the current time, so callers that
// need to judge freshness against the same clock (tests, the decision
// layer) don't drift from it.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Len reports the number of entries currently cached, for metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

type fetchError struct{}

func (fetchError) Error() string { return "cache: resolution failed and no cached policy is available" }
