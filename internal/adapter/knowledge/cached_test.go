package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheHits(t *testing.T) {
	inner := &countingRetriever{text: "ctx"}
	c := NewCache(inner, 8, time.Minute)

	for range 3 {
		got, err := c.Retrieve(context.Background(), "q", "sql")
		if err != nil || got != "ctx" {
			t.Fatalf("Retrieve = %q, %v", got, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls.Load())
	}

	_, _ = c.Retrieve(context.Background(), "q", "csharp")
	if inner.calls.Load() != 2 {
		t.Error("a different agent is a different key")
	}
}

func TestCachePurge(t *testing.T) {
	inner := &countingRetriever{text: "ctx"}
	c := NewCache(inner, 8, time.Minute)
	_, _ = c.Retrieve(context.Background(), "q", "sql")
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len = %d after purge", c.Len())
	}
	_, _ = c.Retrieve(context.Background(), "q", "sql")
	if inner.calls.Load() != 2 {
		t.Error("purged entry should be fetched again")
	}
}

func TestCacheSkipsErrors(t *testing.T) {
	inner := &countingRetriever{err: errors.New("disk")}
	c := NewCache(inner, 8, time.Minute)
	for range 2 {
		if _, err := c.Retrieve(context.Background(), "q", "sql"); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls.Load() != 2 {
		t.Error("errors must not be cached")
	}
}

func TestCacheExpires(t *testing.T) {
	inner := &countingRetriever{text: "ctx"}
	c := NewCache(inner, 8, 20*time.Millisecond)
	_, _ = c.Retrieve(context.Background(), "q", "sql")
	time.Sleep(60 * time.Millisecond)
	_, _ = c.Retrieve(context.Background(), "q", "sql")
	if inner.calls.Load() != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls.Load())
	}
}
