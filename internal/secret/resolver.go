// Package secret resolves the process secrets: the OAuth client secret, the
// session signing key and the edge verification header value.
package secret

import (
	"context"
	"sync"
)

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// GetOrDefault resolves name and falls back to def when the lookup fails.
// The lookup error is returned alongside the fallback so callers can log it.
func GetOrDefault(ctx context.Context, r Resolver, name, def string) (string, error) {
	val, err := r.GetSecret(ctx, name)
	if err != nil {
		return def, err
	}
	return val, nil
}

// Cache memoizes successful lookups of another Resolver. Failures are not
// cached, so a missing parameter is retried on the next call.
type Cache struct {
	next Resolver

	mu     sync.Mutex
	values map[string]string
}

// NewCache wraps next.
func NewCache(next Resolver) *Cache {
	return &Cache{next: next, values: make(map[string]string)}
}

func (c *Cache) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	val, ok := c.values[name]
	c.mu.Unlock()
	if ok {
		return val, nil
	}

	val, err := c.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[name] = val
	c.mu.Unlock()
	return val, nil
}
