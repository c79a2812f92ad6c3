package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/amerfu/llmgate/internal/config"
)

// Logical namespaces. Every cached record belongs to exactly one, and
// invalidation messages address entries as (namespace, id).
const (
	NamespaceKey     = "key"
	NamespaceAccount = "account"
	NamespacePrice   = "price"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_cache_hits_total",
			Help: "Cache hits by namespace",
		},
		[]string{"namespace"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_cache_misses_total",
			Help: "Cache misses by namespace",
		},
		[]string{"namespace"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_cache_evictions_total",
			Help: "Entries evicted by capacity pressure, by namespace",
		},
		[]string{"namespace"},
	)
)

// LoadFunc reads the authoritative record from the store on a cache miss.
type LoadFunc func(ctx context.Context) (interface{}, error)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// store is one bounded TTL namespace.
type store struct {
	namespace  string
	maxEntries int
	ttl        time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newStore(namespace string, maxEntries int, ttl time.Duration) *store {
	return &store{
		namespace:  namespace,
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]entry),
	}
}

func (s *store) get(id string) (interface{}, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		s.misses.Add(1)
		cacheMisses.WithLabelValues(s.namespace).Inc()
		return nil, false
	}
	s.hits.Add(1)
	cacheHits.WithLabelValues(s.namespace).Inc()
	return e.value, true
}

func (s *store) set(id string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}
	s.entries[id] = entry{value: v, expiresAt: time.Now().Add(s.ttl)}
}

// evictLocked frees one slot: expired entries first, otherwise the entry
// closest to expiry. maxEntries bounds the scan.
func (s *store) evictLocked() {
	now := time.Now()
	removed := false
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed = true
		}
	}
	if removed {
		return
	}

	var oldestID string
	var oldest time.Time
	for id, e := range s.entries {
		if oldestID == "" || e.expiresAt.Before(oldest) {
			oldestID = id
			oldest = e.expiresAt
		}
	}
	if oldestID != "" {
		delete(s.entries, oldestID)
		s.evictions.Add(1)
		cacheEvictions.WithLabelValues(s.namespace).Inc()
	}
}

func (s *store) delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

func (s *store) sweep() {
	now := time.Now()
	s.mu.Lock()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
}

func (s *store) snapshot() Stats {
	s.mu.RLock()
	entries := len(s.entries)
	s.mu.RUnlock()
	return Stats{
		Namespace: s.namespace,
		Entries:   entries,
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
}

// Stats is one namespace's counters, exposed on the admin health surface.
type Stats struct {
	Namespace string `json:"namespace"`
	Entries   int    `json:"entries"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
}

// Cache is the replica-local read path for auth and pricing lookups: three
// bounded TTL namespaces with read-through loaders. Entries die by TTL even
// if an invalidation is lost, so a missed publish costs at most ttl seconds
// of staleness.
type Cache struct {
	stores map[string]*store
	group  singleflight.Group
	logger *zap.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(cfg config.CacheConfig, logger *zap.Logger) *Cache {
	ttl := cfg.TTL()
	c := &Cache{
		stores: map[string]*store{
			NamespaceKey:     newStore(NamespaceKey, cfg.MaxEntries, ttl),
			NamespaceAccount: newStore(NamespaceAccount, cfg.MaxEntries, ttl),
			NamespacePrice:   newStore(NamespacePrice, cfg.MaxEntries, ttl),
		},
		logger: logger,
		stop:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.janitor()
	return c
}

// Get returns the cached record or loads it through load and caches the
// result. Concurrent misses for the same entry share a single load.
func (c *Cache) Get(ctx context.Context, namespace, id string, load LoadFunc) (interface{}, error) {
	s, ok := c.stores[namespace]
	if !ok {
		return load(ctx)
	}

	if v, ok := s.get(id); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(namespace+":"+id, func() (interface{}, error) {
		if v, ok := s.get(id); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.set(id, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Invalidate drops a single entry. Unknown namespaces are ignored so a newer
// publisher cannot crash older replicas.
func (c *Cache) Invalidate(namespace, id string) {
	s, ok := c.stores[namespace]
	if !ok {
		c.logger.Warn("Invalidation for unknown cache namespace",
			zap.String("namespace", namespace),
			zap.String("id", id))
		return
	}
	s.delete(id)
}

// Stats returns a point-in-time snapshot of every namespace.
func (c *Cache) Stats() []Stats {
	out := make([]Stats, 0, len(c.stores))
	for _, ns := range []string{NamespaceKey, NamespaceAccount, NamespacePrice} {
		out = append(out, c.stores[ns].snapshot())
	}
	return out
}

// Close stops the janitor.
func (c *Cache) Close() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Cache) janitor() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, s := range c.stores {
				s.sweep()
			}
		case <-c.stop:
			return
		}
	}
}
