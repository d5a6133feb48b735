/*-------------------------------------------------------------------------
 *
 * manager.go
 *    Caching layer for generation results and gate evaluations
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/cache/manager.go
 *
 *-------------------------------------------------------------------------
 */

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

/* CacheManager manages caching for the orchestration engine */
type CacheManager struct {
	generations *TTLCache
	gateResults *TTLCache
}

/* TTLCache is a time-to-live cache */
type TTLCache struct {
	items      map[string]*CacheItem
	mu         sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
}

/* CacheItem represents a cached item */
type CacheItem struct {
	Value       interface{}
	ExpiresAt   time.Time
	AccessCount int64
	LastAccess  time.Time
}

/* NewCacheManager creates a new cache manager */
func NewCacheManager(generationTTL, gateResultTTL time.Duration, maxSize int) *CacheManager {
	return &CacheManager{
		generations: NewTTLCache(generationTTL, maxSize),
		gateResults: NewTTLCache(gateResultTTL, maxSize),
	}
}

/* NewTTLCache creates a new TTL cache */
func NewTTLCache(defaultTTL time.Duration, maxSize int) *TTLCache {
	cache := &TTLCache{
		items:      make(map[string]*CacheItem),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
	}
	/* Start cleanup goroutine */
	go cache.cleanup()
	return cache
}

/* Get retrieves a value from cache */
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}

	/* Check if expired */
	if time.Now().After(item.ExpiresAt) {
		return nil, false
	}

	/* Update access stats */
	item.AccessCount++
	item.LastAccess = time.Now()

	return item.Value, true
}

/* Set stores a value in cache */
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	/* Check if we need to evict */
	if len(c.items) >= c.maxSize {
		c.evictLRU()
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.items[key] = &CacheItem{
		Value:       value,
		ExpiresAt:   time.Now().Add(ttl),
		AccessCount: 0,
		LastAccess:  time.Now(),
	}
}

/* Delete removes a key from cache */
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

/* Clear clears all items from cache */
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*CacheItem)
}

/* Size returns the number of items in cache */
func (c *TTLCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

/* evictLRU evicts the least recently used item */
func (c *TTLCache) evictLRU() {
	if len(c.items) == 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time = time.Now()

	for key, item := range c.items {
		if item.LastAccess.Before(oldestTime) {
			oldestTime = item.LastAccess
			oldestKey = key
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

/* cleanup periodically removes expired items */
func (c *TTLCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.items {
			if now.After(item.ExpiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

/* Generations returns the generation result cache */
func (cm *CacheManager) Generations() *TTLCache {
	return cm.generations
}

/* CacheGateResult caches a quality gate evaluation */
func (cm *CacheManager) CacheGateResult(ctx context.Context, gateID string, artifact map[string]interface{}, result interface{}, ttl time.Duration) {
	key := hashGateEvaluation(gateID, artifact)
	cm.gateResults.Set(key, result, ttl)
}

/* GetCachedGateResult retrieves a cached gate evaluation */
func (cm *CacheManager) GetCachedGateResult(ctx context.Context, gateID string, artifact map[string]interface{}) (interface{}, bool) {
	key := hashGateEvaluation(gateID, artifact)
	return cm.gateResults.Get(key)
}

/* ClearAll clears all caches */
func (cm *CacheManager) ClearAll() {
	cm.generations.Clear()
	cm.gateResults.Clear()
}

/* GetStats returns cache statistics */
func (cm *CacheManager) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"generations_size":  cm.generations.Size(),
		"gate_results_size": cm.gateResults.Size(),
	}
}

func hashGateEvaluation(gateID string, artifact map[string]interface{}) string {
	data := map[string]interface{}{
		"gate":     gateID,
		"artifact": artifact,
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		/* Fallback to simple concatenation */
		return fmt.Sprintf("%s:%v", gateID, artifact)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}
