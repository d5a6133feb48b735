/*-------------------------------------------------------------------------
 *
 * manager_test.go
 *    Tests for the caching layer
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/cache/manager_test.go
 *
 *-------------------------------------------------------------------------
 */

package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheSetAndGet(t *testing.T) {
	cache := NewTTLCache(time.Minute, 10)

	cache.Set("key1", "value1", 0)
	value, found := cache.Get("key1")
	if !found {
		t.Fatal("Get() did not find stored key")
	}
	if value != "value1" {
		t.Errorf("Get() = %v, want value1", value)
	}

	if _, found := cache.Get("missing"); found {
		t.Error("Get() found a key that was never stored")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	cache := NewTTLCache(time.Minute, 10)

	cache.Set("short", "value", 10*time.Millisecond)
	if _, found := cache.Get("short"); !found {
		t.Fatal("Get() did not find fresh key")
	}

	time.Sleep(20 * time.Millisecond)
	if _, found := cache.Get("short"); found {
		t.Error("Get() returned an expired value")
	}
}

func TestTTLCacheDelete(t *testing.T) {
	cache := NewTTLCache(time.Minute, 10)
	cache.Set("key", "value", 0)
	cache.Delete("key")
	if _, found := cache.Get("key"); found {
		t.Error("Get() found a deleted key")
	}
}

func TestTTLCacheEvictsLRU(t *testing.T) {
	cache := NewTTLCache(time.Minute, 3)

	cache.Set("a", 1, 0)
	time.Sleep(time.Millisecond)
	cache.Set("b", 2, 0)
	time.Sleep(time.Millisecond)
	cache.Set("c", 3, 0)

	/* Touch a and b so c becomes least recently used */
	time.Sleep(time.Millisecond)
	cache.Get("a")
	cache.Get("b")

	cache.Set("d", 4, 0)

	if _, found := cache.Get("c"); found {
		t.Error("least recently used key survived eviction")
	}
	for _, key := range []string{"a", "b", "d"} {
		if _, found := cache.Get(key); !found {
			t.Errorf("key %s evicted unexpectedly", key)
		}
	}
	if cache.Size() != 3 {
		t.Errorf("Size() = %d, want 3", cache.Size())
	}
}

func TestTTLCacheClear(t *testing.T) {
	cache := NewTTLCache(time.Minute, 10)
	cache.Set("a", 1, 0)
	cache.Set("b", 2, 0)
	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", cache.Size())
	}
}

func TestCacheManagerGateResults(t *testing.T) {
	manager := NewCacheManager(time.Minute, time.Minute, 10)
	ctx := context.Background()
	artifact := map[string]interface{}{"content": "draft"}

	manager.CacheGateResult(ctx, "gate-1", artifact, map[string]interface{}{"score": 90.0}, 0)

	result, found := manager.GetCachedGateResult(ctx, "gate-1", artifact)
	if !found {
		t.Fatal("GetCachedGateResult() missed a cached evaluation")
	}
	if scored, ok := result.(map[string]interface{}); !ok || scored["score"] != 90.0 {
		t.Errorf("GetCachedGateResult() = %v", result)
	}

	/* A different artifact must hash to a different key */
	other := map[string]interface{}{"content": "different draft"}
	if _, found := manager.GetCachedGateResult(ctx, "gate-1", other); found {
		t.Error("GetCachedGateResult() returned a result for a different artifact")
	}
}

func TestCacheManagerStats(t *testing.T) {
	manager := NewCacheManager(time.Minute, time.Minute, 10)
	manager.Generations().Set("k", "v", 0)

	stats := manager.GetStats()
	if stats["generations_size"] != 1 {
		t.Errorf("generations_size = %v, want 1", stats["generations_size"])
	}

	manager.ClearAll()
	stats = manager.GetStats()
	if stats["generations_size"] != 0 || stats["gate_results_size"] != 0 {
		t.Errorf("stats after ClearAll = %v", stats)
	}
}
