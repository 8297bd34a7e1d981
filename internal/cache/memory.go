package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryProvider keeps entries in process memory with per-key expiry.
type MemoryProvider struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, []byte]
	once  sync.Once
}

// NewMemoryProvider returns a started in-memory cache. defaultTTL applies when Set is
// called with a zero ttl.
func NewMemoryProvider(defaultTTL time.Duration) *MemoryProvider {
	c := ttlcache.New(
		ttlcache.WithTTL[string, []byte](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &MemoryProvider{cache: c}
}

// Get returns a copy of the stored value or ErrCacheMiss.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	item := p.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.Value()...), nil
}

// Set stores value under key.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.cache.Set(key, append([]byte(nil), value...), ttlOrDefault(ttl))
	return nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item := p.cache.Get(key); item != nil && !item.IsExpired() {
		return false, nil
	}
	p.cache.Set(key, append([]byte(nil), value...), ttlOrDefault(ttl))
	return true, nil
}

// Del removes key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.cache.Delete(key)
	return nil
}

// Close stops the expiry loop. Safe to call more than once.
func (p *MemoryProvider) Close() error {
	p.once.Do(p.cache.Stop)
	return nil
}

// Len reports the number of live entries.
func (p *MemoryProvider) Len() int {
	return p.cache.Len()
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.DefaultTTL
	}
	return ttl
}
