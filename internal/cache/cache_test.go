// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c := New(ttl, time.Minute)
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get = %v, %v, want v, true", got, ok)
	}
}

func TestExpiration(t *testing.T) {
	c := newTestCache(t, 20*time.Millisecond)

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestZeroTTLDisablesStorage(t *testing.T) {
	c := newTestCache(t, 0)

	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Error("zero TTL must not store entries")
	}
}

func TestGetOrCompute(t *testing.T) {
	c := newTestCache(t, time.Minute)
	var calls atomic.Int64

	compute := func() (interface{}, error) {
		calls.Add(1)
		return 42, nil
	}

	got, cached, err := c.GetOrCompute("k", compute)
	if err != nil || got != 42 || cached {
		t.Fatalf("first call = %v, %v, %v", got, cached, err)
	}
	got, cached, err = c.GetOrCompute("k", compute)
	if err != nil || got != 42 || !cached {
		t.Fatalf("second call = %v, %v, %v, want cached", got, cached, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
}

func TestGetOrCompute_Error(t *testing.T) {
	c := newTestCache(t, time.Minute)
	wantErr := errors.New("store down")

	_, _, err := c.GetOrCompute("k", func() (interface{}, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	// Failures are not cached.
	got, _, err := c.GetOrCompute("k", func() (interface{}, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("retry = %v, %v, want 7", got, err)
	}
}

// TestGetOrCompute_Coalesces checks that concurrent identical queries share
// one compute call even with caching disabled.
func TestGetOrCompute_Coalesces(t *testing.T) {
	c := newTestCache(t, 0)
	var calls atomic.Int64
	gate := make(chan struct{})

	compute := func() (interface{}, error) {
		calls.Add(1)
		<-gate
		return "result", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, _, err := c.GetOrCompute("k", compute)
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
			}
			results[i] = got
		}(i)
	}

	// Give the goroutines time to pile onto the flight group.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("compute ran %d times for %d concurrent callers, want 1", calls.Load(), n)
	}
	for i, r := range results {
		if r != "result" {
			t.Errorf("goroutine %d got %v", i, r)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	type params struct {
		Account string
		Days    int
	}
	a := GenerateKey("traffic", params{"acct-1", 7})
	b := GenerateKey("traffic", params{"acct-1", 7})
	c := GenerateKey("traffic", params{"acct-1", 30})

	if a != b {
		t.Error("identical params produced different keys")
	}
	if a == c {
		t.Error("different params produced the same key")
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Set("k", "v")
	c.Get("k")
	c.Get("absent")

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %d hits, %d misses, want 1, 1", stats.Hits, stats.Misses)
	}
	if rate := stats.HitRate(); rate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", rate)
	}
}
