package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrTenantNotFound is matched by TenantNotFoundError.
var ErrTenantNotFound = errors.New("tenancy: tenant not found")

// TenantNotFoundError reports an unknown tenant key.
type TenantNotFoundError struct {
	Key string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenancy: tenant %q not found", e.Key)
}

func (e *TenantNotFoundError) Is(target error) bool {
	return target == ErrTenantNotFound
}

// Resolver maps a tenant key onto its subaccount configuration.
type Resolver interface {
	Resolve(ctx context.Context, tenantKey string) (SubaccountConfig, error)
}

// StaticResolver serves a fixed set of centers, typically loaded from TENANTS_JSON.
type StaticResolver struct {
	configs map[string]SubaccountConfig
}

// NewStaticResolver indexes the given configs by key.
func NewStaticResolver(configs ...SubaccountConfig) (*StaticResolver, error) {
	r := &StaticResolver{configs: make(map[string]SubaccountConfig, len(configs))}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		r.configs[cfg.Key] = cfg
	}
	return r, nil
}

// ParseStaticResolver decodes a JSON array of subaccount configs.
func ParseStaticResolver(raw string) (*StaticResolver, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewStaticResolver()
	}
	var configs []SubaccountConfig
	if err := json.Unmarshal([]byte(raw), &configs); err != nil {
		return nil, fmt.Errorf("tenancy: decode tenants json: %w", err)
	}
	return NewStaticResolver(configs...)
}

func (r *StaticResolver) Resolve(_ context.Context, tenantKey string) (SubaccountConfig, error) {
	cfg, ok := r.configs[strings.TrimSpace(tenantKey)]
	if !ok {
		return SubaccountConfig{}, &TenantNotFoundError{Key: tenantKey}
	}
	return cfg, nil
}

// Keys lists the configured centers in sorted order.
func (r *StaticResolver) Keys() []string {
	keys := make([]string, 0, len(r.configs))
	for key := range r.configs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type cacheEntry struct {
	cfg       SubaccountConfig
	expiresAt time.Time
}

// CachingResolver memoizes another resolver for a TTL. Misses are not cached.
type CachingResolver struct {
	next Resolver
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	if next == nil {
		panic("tenancy: resolver required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, tenantKey string) (SubaccountConfig, error) {
	now := r.now()
	r.mu.RLock()
	entry, ok := r.entries[tenantKey]
	r.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.cfg, nil
	}

	cfg, err := r.next.Resolve(ctx, tenantKey)
	if err != nil {
		return SubaccountConfig{}, err
	}
	r.mu.Lock()
	r.entries[tenantKey] = cacheEntry{cfg: cfg, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return cfg, nil
}

// Invalidate drops a cached entry so the next Resolve reloads it.
func (r *CachingResolver) Invalidate(tenantKey string) {
	r.mu.Lock()
	delete(r.entries, tenantKey)
	r.mu.Unlock()
}

// Keys lists the centers of the wrapped resolver when it can enumerate them.
func (r *CachingResolver) Keys() []string {
	if lister, ok := r.next.(interface{ Keys() []string }); ok {
		return lister.Keys()
	}
	return nil
}
