package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ImageCache speichert aufgelöste Bild-URLs pro normalisiertem Namen mit Ablaufzeit.
// Der Cache ist reine Optimierung; Fehler führen zu einem normalen Lookup.
type ImageCache interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, url string) error
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// MemoryImageCache ist der prozesslokale Cache. Der Mutex wird nur für
// den Zugriff auf die Map gehalten.
type MemoryImageCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryImageCache(ttl time.Duration) *MemoryImageCache {
	return &MemoryImageCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryImageCache) Get(_ context.Context, name string) (string, bool, error) {
	key := NormalizeName(name)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.url, true, nil
}

func (c *MemoryImageCache) Set(_ context.Context, name, url string) error {
	key := NormalizeName(name)
	c.mu.Lock()
	c.entries[key] = cacheEntry{url: url, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// RedisImageCache teilt den Cache zwischen mehreren Instanzen; der Ablauf läuft über das Redis-TTL.
type RedisImageCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisImageCache(client *redis.Client, ttl time.Duration) *RedisImageCache {
	return &RedisImageCache{client: client, ttl: ttl, prefix: "newsfaces:image:"}
}

func (c *RedisImageCache) Get(ctx context.Context, name string) (string, bool, error) {
	url, err := c.client.Get(ctx, c.prefix+NormalizeName(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get image cache: %w", err)
	}
	return url, true, nil
}

func (c *RedisImageCache) Set(ctx context.Context, name, url string) error {
	if err := c.client.Set(ctx, c.prefix+NormalizeName(name), url, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set image cache: %w", err)
	}
	return nil
}
