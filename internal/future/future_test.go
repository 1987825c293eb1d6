package future

import (
	"context"
	"testing"
	"time"
)

func TestFuture_GetBlocksUntilSet(t *testing.T) {
	f := New()
	done := make(chan struct{})
	go func() {
		v, err := f.Get()
		if err != nil || v != "hello" {
			t.Errorf("v=%v err=%v", v, err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Get returned before Set")
	case <-time.After(20 * time.Millisecond):
	}

	f.Set("hello", nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Set")
	}
}

func TestFuture_SetTwiceIgnoresSecond(t *testing.T) {
	f := New()
	f.Set("first", nil)
	f.Set("second", nil)
	v, _ := f.Get()
	if v != "first" {
		t.Fatalf("v = %v, want first", v)
	}
}

func TestFuture_GetContextTimesOut(t *testing.T) {
	f := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.GetContext(ctx)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestFuture_AlreadySetReturnsImmediately(t *testing.T) {
	f := New()
	f.Set(42, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := f.GetContext(ctx)
	if err != nil || v != 42 {
		t.Fatalf("v=%v err=%v", v, err)
	}
}
