// Package credential holds bearer credentials for outbound provider calls.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultSkew refreshes a token this long before it actually expires
const DefaultSkew = 30 * time.Second

// Source yields a bearer token for one request
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static is a Source that never expires
type Static string

// Token implements Source
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no credential configured")
	}
	return string(s), nil
}

// RefreshFunc fetches a new token and its expiry
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// Cache memoizes a token until shortly before it expires.
// The zero value is not usable; construct with NewCache.
type Cache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	refresh RefreshFunc
	skew    time.Duration
	now     func() time.Time
}

// NewCache wraps refresh with a memoizing cache
func NewCache(refresh RefreshFunc, skew time.Duration) *Cache {
	if skew < 0 {
		skew = 0
	}
	return &Cache{refresh: refresh, skew: skew, now: time.Now}
}

// Token returns the cached token, refreshing it when now >= expiresAt - skew
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-c.skew)) {
		return c.token, nil
	}

	token, expiresAt, err := c.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh credential: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("refresh credential: empty token")
	}
	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}

// Invalidate forces the next Token call to refresh
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// ExpiresAt reports the cached expiry (zero when empty)
func (c *Cache) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}
