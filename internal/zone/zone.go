// Package zone implements the zone registry: a named set of timeout and
// strict-testing overrides, selected per lookup by a postfix-supplied zone
// name, falling back to a configured default.
package zone

import (
	"context"
	"sort"
	"time"

	"github.com/mxstsd/mxstsd/internal/cache"
	"github.com/mxstsd/mxstsd/internal/policy"
)

// Entry holds the per-zone behavior: how long a resolution may take, and
// whether "testing" mode policies should be enforced as if they were
// "enforce" (useful for an operator running their own pre-production
// check).
type Entry struct {
	Name          string
	Timeout       time.Duration
	StrictTesting bool
}

// Registry is an immutable collection of zones, selected by name, with a
// mandatory default used for any unrecognized or empty zone name.
type Registry struct {
	zones map[string]*Entry
	dflt  *Entry
}

// NewRegistry builds a Registry. dflt is used whenever the caller asks for
// a zone name not present in zones (including the empty string); it must
// be non-nil.
func NewRegistry(dflt *Entry, zones ...*Entry) *Registry {
	m := make(map[string]*Entry, len(zones))
	for _, z := range zones {
		m[z.Name] = z
	}
	return &Registry{zones: m, dflt: dflt}
}

// Lookup returns the Entry for name, or the default entry if name is
// empty or unknown.
func (r *Registry) Lookup(name string) *Entry {
	if name == "" {
		return r.dflt
	}
	if z, ok := r.zones[name]; ok {
		return z
	}
	return r.dflt
}

// Decision is the outcome process_request derives from a resolved policy:
// whether to enforce it, and (if so) the match= MX list to report.
type Decision struct {
	Enforce bool
	MXList  []string
}

// Decide applies the zone's strict_testing override to a cache entry and
// formats the reported match list: wildcard markers stripped, duplicates
// removed.
func (e *Entry) Decide(entry cache.Entry) Decision {
	body := entry.Body
	enforce := body.Mode == policy.ModeEnforce
	if e.StrictTesting && body.Mode == policy.ModeTesting {
		enforce = true
	}
	if !enforce {
		return Decision{Enforce: false}
	}

	stripped := make([]string, len(body.MX))
	for i, mx := range body.MX {
		stripped[i] = policy.StripWildcard(mx)
	}
	deduped := policy.Dedup(stripped)
	// The source's ordering was unspecified set iteration; sort here for
	// deterministic, testable output.
	sort.Strings(deduped)
	return Decision{Enforce: true, MXList: deduped}
}

// Resolve looks up domain through c, within the zone's configured
// timeout. It is a thin convenience so callers only need a Registry and a
// Cache, not a separate per-zone resolver.Resolver.
func (e *Entry) Resolve(ctx context.Context, c *cache.Cache, domain string) (cache.Entry, bool, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return c.GetOrResolve(ctx, domain)
}
