package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/mxstsd/mxstsd/internal/fetcher"
)

type fakeFetcher struct {
	delay time.Duration
	res   fetcher.Result
}

func (f fakeFetcher) Fetch(ctx context.Context, domain, latestPolicyID string) fetcher.Result {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return fetcher.Result{Status: fetcher.StatusValid}
		}
	}
	return f.res
}

func TestResolve_PassesThroughResult(t *testing.T) {
	r := New(fakeFetcher{res: fetcher.Result{Status: fetcher.StatusValid, PolicyID: "abc"}}, time.Second)
	res := r.Resolve(context.Background(), "example.org", "")
	if res.Status != fetcher.StatusValid || res.PolicyID != "abc" {
		t.Fatalf("res = %+v", res)
	}
}

func TestResolve_TimeoutBecomesFetchError(t *testing.T) {
	r := New(fakeFetcher{delay: 50 * time.Millisecond, res: fetcher.Result{Status: fetcher.StatusValid}}, 5*time.Millisecond)
	res := r.Resolve(context.Background(), "example.org", "")
	if res.Status != fetcher.StatusFetchError {
		t.Fatalf("status = %v, want StatusFetchError", res.Status)
	}
}

func TestResolve_NoTimeoutMeansNoDeadline(t *testing.T) {
	r := New(fakeFetcher{res: fetcher.Result{Status: fetcher.StatusNone}}, 0)
	res := r.Resolve(context.Background(), "example.org", "")
	if res.Status != fetcher.StatusNone {
		t.Fatalf("status = %v, want StatusNone", res.Status)
	}
}
