package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mxstsd/mxstsd/internal/fetcher"
	"github.com/mxstsd/mxstsd/internal/policy"
)

type stubResolver struct {
	calls int32
	fn    func(calls int32) fetcher.Result
}

func (s *stubResolver) Resolve(ctx context.Context, domain, latestPolicyID string) fetcher.Result {
	n := atomic.AddInt32(&s.calls, 1)
	return s.fn(n)
}

func TestGetOrResolve_CachesValidPolicy(t *testing.T) {
	r := &stubResolver{fn: func(int32) fetcher.Result {
		return fetcher.Result{Status: fetcher.StatusValid, PolicyID: "a", Body: &policy.Body{Mode: policy.ModeEnforce, MaxAge: 3600, MX: []string{"mx.example.org"}}}
	}}
	c, err := New(r, 16)
	if err != nil {
		t.Fatal(err)
	}

	e, found, err := c.GetOrResolve(context.Background(), "example.org")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if e.PolicyID != "a" {
		t.Fatalf("policy id = %q", e.PolicyID)
	}

	e2, found2, err := c.GetOrResolve(context.Background(), "example.org")
	if err != nil || !found2 || e2.PolicyID != "a" {
		t.Fatalf("second call: found=%v err=%v e=%+v", found2, err, e2)
	}
	if atomic.LoadInt32(&r.calls) != 1 {
		t.Fatalf("resolver called %d times, want 1 (second call should hit cache)", r.calls)
	}
}

func TestGetOrResolve_NoneReturnsNotFoundWithoutAnyCachedEntry(t *testing.T) {
	r := &stubResolver{fn: func(int32) fetcher.Result {
		return fetcher.Result{Status: fetcher.StatusNone}
	}}
	c, _ := New(r, 16)
	_, found, err := c.GetOrResolve(context.Background(), "example.org")
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

// A None result must not be treated the same as a confirmed withdrawal: an
// already-cached policy has to survive a later lookup that comes back with
// no usable TXT record, per RFC 8461's guidance that the absence of a
// record is not by itself sufficient grounds to drop a cached policy.
func TestGetOrResolve_NoneDoesNotEvictAnExistingEntry(t *testing.T) {
	first := true
	r := &stubResolver{fn: func(int32) fetcher.Result {
		if first {
			first = false
			return fetcher.Result{Status: fetcher.StatusValid, PolicyID: "a", Body: &policy.Body{Mode: policy.ModeNone, MaxAge: 1}}
		}
		return fetcher.Result{Status: fetcher.StatusNone}
	}}
	c, _ := New(r, 16)
	c.now = func() time.Time { return time.Unix(1000, 0) }

	if _, found, err := c.GetOrResolve(context.Background(), "example.org"); err != nil || !found {
		t.Fatalf("priming call failed: found=%v err=%v", found, err)
	}

	// advance past max_age so the entry is stale and a resolve is triggered
	c.now = func() time.Time { return time.Unix(1002, 0) }
	e, found, err := c.GetOrResolve(context.Background(), "example.org")
	if err != nil || found {
		t.Fatalf("expected not-found outcome from the None result itself: found=%v err=%v", found, err)
	}
	if e.PolicyID != "" {
		t.Fatalf("unexpected entry returned: %+v", e)
	}

	stale, hadStale := c.peekStale("example.org")
	if !hadStale || stale.PolicyID != "a" {
		t.Fatalf("existing entry must still be cached after None, got hadStale=%v stale=%+v", hadStale, stale)
	}
}

func TestGetOrResolve_FetchErrorWithNoStaleFails(t *testing.T) {
	r := &stubResolver{fn: func(int32) fetcher.Result {
		return fetcher.Result{Status: fetcher.StatusFetchError}
	}}
	c, _ := New(r, 16)
	_, _, err := c.GetOrResolve(context.Background(), "example.org")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGetOrResolve_FetchErrorServesStale(t *testing.T) {
	first := true
	r := &stubResolver{fn: func(int32) fetcher.Result {
		if first {
			first = false
			return fetcher.Result{Status: fetcher.StatusValid, PolicyID: "a", Body: &policy.Body{Mode: policy.ModeNone, MaxAge: 1}}
		}
		return fetcher.Result{Status: fetcher.StatusFetchError}
	}}
	c, _ := New(r, 16)
	c.now = func() time.Time { return time.Unix(1000, 0) }

	if _, found, err := c.GetOrResolve(context.Background(), "example.org"); err != nil || !found {
		t.Fatalf("priming call failed: found=%v err=%v", found, err)
	}

	// advance past max_age so the entry is stale and a resolve is triggered
	c.now = func() time.Time { return time.Unix(1002, 0) }
	e, found, err := c.GetOrResolve(context.Background(), "example.org")
	if err != nil || !found || e.PolicyID != "a" {
		t.Fatalf("expected stale entry served: found=%v err=%v e=%+v", found, err, e)
	}
}

func TestGetOrResolve_SingleflightDeduplicatesConcurrentCallers(t *testing.T) {
	var inflight int32
	r := &stubResolver{fn: func(int32) fetcher.Result {
		atomic.AddInt32(&inflight, 1)
		time.Sleep(20 * time.Millisecond)
		return fetcher.Result{Status: fetcher.StatusValid, PolicyID: "a", Body: &policy.Body{Mode: policy.ModeNone, MaxAge: 3600}}
	}}
	c, _ := New(r, 16)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrResolve(context.Background(), "example.org")
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&r.calls) != 1 {
		t.Fatalf("resolver called %d times, want 1", r.calls)
	}
}

func TestGetOrResolve_NotChangedRefreshesFetchedAt(t *testing.T) {
	body := &policy.Body{Mode: policy.ModeEnforce, MaxAge: 1, MX: []string{"mx.example.org"}}
	calls := 0
	r := &stubResolver{fn: func(int32) fetcher.Result {
		calls++
		if calls == 1 {
			return fetcher.Result{Status: fetcher.StatusValid, PolicyID: "a", Body: body}
		}
		return fetcher.Result{Status: fetcher.StatusNotChanged, PolicyID: "a"}
	}}
	c, _ := New(r, 16)
	c.now = func() time.Time { return time.Unix(2000, 0) }
	c.GetOrResolve(context.Background(), "example.org")

	c.now = func() time.Time { return time.Unix(2002, 0) }
	e, found, err := c.GetOrResolve(context.Background(), "example.org")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if !e.FetchedAt.Equal(time.Unix(2002, 0)) {
		t.Fatalf("FetchedAt = %v, want refreshed", e.FetchedAt)
	}
	if e.Body != body {
		t.Fatalf("body should be carried over from the stale entry")
	}
}
