package geo

import (
	"sync"
	"time"

	"github.com/radiusdt/storefront-notify/internal/metrics"
)

// Info is the location resolved for an IP.
type Info struct {
	CountryCode string `json:"country"`
	Country     string `json:"countryName,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`
}

// Provider resolves IPs to locations.
type Provider interface {
	Lookup(ip string) (*Info, error)
}

// Resolver adds a TTL cache and metrics in front of a Provider.
// A nil *Resolver resolves nothing.
type Resolver struct {
	provider Provider
	cache    *cache
	metrics  *metrics.Metrics
}

func NewResolver(p Provider, cacheSize int, ttl time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{
		provider: p,
		cache: &cache{
			data:    make(map[string]*cacheEntry),
			maxSize: cacheSize,
			ttl:     ttl,
		},
		metrics: m,
	}
}

// Resolve returns nil when the IP cannot be located. Failed lookups are cached too.
func (r *Resolver) Resolve(ip string) *Info {
	if r == nil || r.provider == nil || ip == "" {
		return nil
	}

	start := time.Now()
	if info, ok := r.cache.get(ip); ok {
		if r.metrics != nil {
			r.metrics.RecordGeoLookup(true, time.Since(start))
		}
		return info
	}

	info, err := r.provider.Lookup(ip)
	if err != nil || info == nil || info.CountryCode == "" {
		info = nil
	}
	r.cache.set(ip, info)
	if r.metrics != nil {
		r.metrics.RecordGeoLookup(false, time.Since(start))
	}
	return info
}

type cache struct {
	mu      sync.RWMutex
	data    map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

func (c *cache) get(ip string) (*Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[ip]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.info, true
}

// set evicts the oldest inserted entry when full.
func (c *cache) set(ip string, info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[ip]; !exists {
		if c.maxSize > 0 && len(c.order) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.data, oldest)
		}
		c.order = append(c.order, ip)
	}
	c.data[ip] = &cacheEntry{
		info:      info,
		expiresAt: time.Now().Add(c.ttl),
	}
}
