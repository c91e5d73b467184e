// Package cache provides in-memory caching for source documents and merged results.
package cache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xxxbrian/ini2clash/internal/converter"
)

// DocumentCache holds downloaded source documents keyed by source location.
type DocumentCache struct {
	mu          sync.RWMutex
	entries     map[string]*documentEntry
	ttl         time.Duration
	persistPath string
}

type documentEntry struct {
	Data      []byte
	ETag      string
	Timestamp time.Time
}

// NewDocumentCache creates a new DocumentCache with the specified TTL
func NewDocumentCache(ttl time.Duration) *DocumentCache {
	return &DocumentCache{
		entries: make(map[string]*documentEntry),
		ttl:     ttl,
	}
}

// SetPersistPath enables on-disk persistence for the document cache.
func (c *DocumentCache) SetPersistPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistPath = path
}

// Get returns the cached body for source if it is still fresh. The ETag is
// returned even for an expired entry so callers can revalidate.
func (c *DocumentCache) Get(source string) ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[source]
	if !ok {
		return nil, "", false
	}

	if time.Since(entry.Timestamp) > c.ttl {
		return nil, entry.ETag, false
	}

	return entry.Data, entry.ETag, true
}

// GetAny returns the cached body regardless of TTL.
func (c *DocumentCache) GetAny(source string) ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[source]
	if !ok {
		return nil, "", false
	}
	return entry.Data, entry.ETag, true
}

// Set stores a document and persists the cache when a path is configured.
func (c *DocumentCache) Set(source string, data []byte, etag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[source] = &documentEntry{
		Data:      data,
		ETag:      etag,
		Timestamp: time.Now(),
	}
	return c.persistToFileLocked()
}

// Touch marks a cached entry as fresh without replacing its body.
func (c *DocumentCache) Touch(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[source]; ok {
		entry.Timestamp = time.Now()
	}
}

// GetETag returns the current ETag for source
func (c *DocumentCache) GetETag(source string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[source]; ok {
		return entry.ETag
	}
	return ""
}

// LoadFromFile restores cache data from disk if available.
func (c *DocumentCache) LoadFromFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	persisted := make(map[string]*documentEntry)
	if err := gob.NewDecoder(file).Decode(&persisted); err != nil {
		return err
	}

	c.entries = persisted
	c.persistPath = path
	return nil
}

func (c *DocumentCache) persistToFileLocked() error {
	if c.persistPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.persistPath), 0o755); err != nil {
		return err
	}

	tmpPath := c.persistPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(c.entries)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}

	return os.Rename(tmpPath, c.persistPath)
}

// Result is one merged conversion: the final document plus its rendered blocks.
type Result struct {
	Document string
	Blocks   converter.Blocks
}

// ResultCache caches merged results keyed by the ETags of their sources.
type ResultCache struct {
	mu      sync.RWMutex
	results map[string]*resultEntry
	ttl     time.Duration
}

type resultEntry struct {
	value     Result
	timestamp time.Time
}

// NewResultCache creates a new ResultCache with the specified TTL
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		results: make(map[string]*resultEntry),
		ttl:     ttl,
	}
}

// Key combines source ETags into a result cache key.
func Key(rulesETag, templateETag string) string {
	return rulesETag + "|" + templateETag
}

// Get retrieves a cached result if valid
func (c *ResultCache) Get(key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.results[key]
	if !ok || time.Since(entry.timestamp) > c.ttl {
		return Result{}, false
	}
	return entry.value, true
}

// Set stores a result in the cache
func (c *ResultCache) Set(key string, value Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = &resultEntry{
		value:     value,
		timestamp: time.Now(),
	}
}

// Len returns the number of cached results, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Cleanup removes expired entries
func (c *ResultCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.results {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.results, key)
		}
	}
}
