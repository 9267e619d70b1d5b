package explain

import (
	"fmt"
	"sync"
	"time"

	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

// CachedExplainer wraps an Explainer with an in-memory LRU cache keyed by
// (location, timestamp). Attributions are deterministic for a fixed model
// and dataset, so entries never expire; the cap only bounds memory.
type CachedExplainer struct {
	inner   *Explainer
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCached creates a cache decorator around an explainer.
func NewCached(inner *Explainer, maxEntries int, metrics *observability.Metrics) *CachedExplainer {
	return &CachedExplainer{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Explain returns the cached attribution when one exists, computing and
// caching it otherwise.
func (c *CachedExplainer) Explain(vec domain.FeatureVector) (domain.Attribution, error) {
	key := fmt.Sprintf("%s|%s", vec.LocationID, vec.Timestamp.UTC().Format(time.RFC3339))
	if attr, ok := c.cache.get(key); ok {
		c.metrics.ExplainCache.WithLabelValues("hit").Inc()
		return attr, nil
	}
	c.metrics.ExplainCache.WithLabelValues("miss").Inc()

	attr, err := c.inner.Explain(vec)
	if err != nil {
		c.metrics.ExplainRequests.WithLabelValues("error").Inc()
		return attr, err
	}
	c.metrics.ExplainRequests.WithLabelValues("success").Inc()
	c.cache.put(key, attr)
	return attr, nil
}

// lruCache is a simple thread-safe LRU cache for attributions.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Attribution
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Attribution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Attribution{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Attribution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
